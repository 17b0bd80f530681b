package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Operations understood by the authorization service. Other values pass
// through unchanged.
const (
	OperationRead   = "read"
	OperationWrite  = "write"
	OperationDelete = "delete"
)

// AuthMessage is the wire shape of both halves of the authorization
// exchange.
type AuthMessage struct {
	UserID          string    `json:"user_id"`
	Roles           []string  `json:"roles"`
	IsAuthenticated bool      `json:"is_authenticated"`
	ResourcePath    string    `json:"resource_path"`
	Operation       string    `json:"operation"`
	Timestamp       time.Time `json:"timestamp"`
	CorrelationID   string    `json:"correlation_id"`
	IsAuthorized    bool      `json:"is_authorized"`
}

// AuthorizationRequest asks the authorization service for a decision.
type AuthorizationRequest struct {
	RequesterID   string
	Roles         []string
	ResourcePath  string
	Operation     string
	CorrelationID string
	Timestamp     time.Time
}

// AuthorizationResponse is the decision for one correlation id.
type AuthorizationResponse struct {
	CorrelationID string
	IsAuthorized  bool
	RespondedAt   time.Time
}

// Message converts the request to its wire shape. The gateway has already
// authenticated the caller by the time a request is built.
func (r AuthorizationRequest) Message() AuthMessage {
	roles := r.Roles
	if roles == nil {
		roles = []string{}
	}
	return AuthMessage{
		UserID:          r.RequesterID,
		Roles:           roles,
		IsAuthenticated: r.RequesterID != "",
		ResourcePath:    r.ResourcePath,
		Operation:       r.Operation,
		Timestamp:       r.Timestamp.UTC(),
		CorrelationID:   r.CorrelationID,
	}
}

// PeekCorrelationID extracts only the correlation id, so a reply whose other
// fields are malformed can still be matched to its waiter.
func PeekCorrelationID(data []byte) string {
	var probe struct {
		CorrelationID json.RawMessage `json:"correlation_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	var id string
	if err := json.Unmarshal(probe.CorrelationID, &id); err != nil {
		return ""
	}
	return strings.TrimSpace(id)
}

// DecodeAuthorizationResponse decodes a reply message.
func DecodeAuthorizationResponse(data []byte) (AuthorizationResponse, error) {
	if len(data) == 0 {
		return AuthorizationResponse{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	var msg AuthMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return AuthorizationResponse{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	id := strings.TrimSpace(msg.CorrelationID)
	if id == "" {
		return AuthorizationResponse{}, fmt.Errorf("%w: missing correlation_id", ErrMalformed)
	}
	return AuthorizationResponse{
		CorrelationID: id,
		IsAuthorized:  msg.IsAuthorized,
		RespondedAt:   msg.Timestamp,
	}, nil
}
