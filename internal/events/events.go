// Package events defines the wire contracts exchanged over the bus.
//
// Field names are shared with other services and must stay stable. Decoding
// is lenient: unknown fields are ignored and missing optional fields default.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType discriminates user lifecycle events.
type EventType string

const (
	EventUserCreated EventType = "UserCreated"
	EventUserUpdated EventType = "UserUpdated"
)

// SchemaVersion is stamped on every lifecycle event this service emits.
const SchemaVersion = "1.0"

var (
	// ErrMalformed reports a payload that cannot be decoded.
	ErrMalformed = errors.New("malformed event")
	// ErrUnknownType reports an event type this service does not handle.
	ErrUnknownType = errors.New("unknown event type")
	// ErrUnsupportedVersion reports an incompatible schema major version.
	ErrUnsupportedVersion = errors.New("unsupported event version")
)

// Envelope carries the fields common to all lifecycle events.
type Envelope struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// UserProfile is the payload shared by created and updated events.
// ExternalID is the identity-provider id and the idempotence key for
// replication; UserID is the producer's local surrogate id.
type UserProfile struct {
	UserID     string  `json:"user_id"`
	ExternalID string  `json:"auth0_id"`
	Email      string  `json:"email"`
	Name       *string `json:"name,omitempty"`
	Picture    *string `json:"picture,omitempty"`
}

// DisplayName returns the name or "" when absent.
func (p UserProfile) DisplayName() string {
	if p.Name == nil {
		return ""
	}
	return strings.TrimSpace(*p.Name)
}

// PictureURL returns the picture or "" when absent.
func (p UserProfile) PictureURL() string {
	if p.Picture == nil {
		return ""
	}
	return strings.TrimSpace(*p.Picture)
}

// UserCreated is published after a user row is committed.
type UserCreated struct {
	Envelope
	UserProfile
	CreatedAt time.Time `json:"created_at"`
}

// UserUpdated is published after a user row changes.
type UserUpdated struct {
	Envelope
	UserProfile
	UpdatedAt time.Time `json:"updated_at"`
}

// PeekEnvelope decodes only the envelope so callers can dispatch before a
// full decode.
func PeekEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if len(data) == 0 {
		return env, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.EventType == "" {
		return env, fmt.Errorf("%w: missing event_type", ErrMalformed)
	}
	if !SupportedVersion(env.Version) {
		return env, fmt.Errorf("%w: %q", ErrUnsupportedVersion, env.Version)
	}
	return env, nil
}

// SupportedVersion accepts an absent version or any 1.x version.
func SupportedVersion(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	major, _, _ := strings.Cut(v, ".")
	return major == "1"
}

// DecodeUserCreated decodes a created event and checks its idempotence key.
func DecodeUserCreated(data []byte) (UserCreated, error) {
	var evt UserCreated
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(evt.ExternalID) == "" {
		return evt, fmt.Errorf("%w: missing auth0_id", ErrMalformed)
	}
	return evt, nil
}

// DecodeUserUpdated decodes an updated event and checks its idempotence key.
func DecodeUserUpdated(data []byte) (UserUpdated, error) {
	var evt UserUpdated
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(evt.ExternalID) == "" {
		return evt, fmt.Errorf("%w: missing auth0_id", ErrMalformed)
	}
	return evt, nil
}

// AsCreated reinterprets an update for a user never seen locally.
func (e UserUpdated) AsCreated() UserCreated {
	created := e.UpdatedAt
	if created.IsZero() {
		created = e.Timestamp
	}
	return UserCreated{
		Envelope:    e.Envelope,
		UserProfile: e.UserProfile,
		CreatedAt:   created,
	}
}
