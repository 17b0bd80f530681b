package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRole is assigned to users materialized from lifecycle events.
const DefaultRole = "User"

// User is the local projection of a user. ExternalID is the identity
// provider's id; at most one User exists per ExternalID.
type User struct {
	ID          uuid.UUID
	ExternalID  string
	Username    string
	Email       string
	FirstName   string
	LastName    string
	Role        string
	DisplayName string
	PictureURL  string
	Bio         string
	Address     string
	PhoneNumber string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FullName joins the name parts, falling back to the display name when
// either part is missing.
func (u *User) FullName() string {
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.DisplayName
}

// ProfileChanges carries a partial profile update. Empty values leave the
// stored field untouched.
type ProfileChanges struct {
	Email       string
	DisplayName string
	PictureURL  string
	Bio         string
	Address     string
	PhoneNumber string
}

// Apply merges non-empty changes into u and re-derives the name parts when
// a display name is supplied. It reports whether anything changed.
func (u *User) Apply(c ProfileChanges) bool {
	changed := false
	if c.Email != "" && c.Email != u.Email {
		u.Email = c.Email
		changed = true
	}
	if c.DisplayName != "" {
		first, last := SplitName(c.DisplayName)
		if c.DisplayName != u.DisplayName || first != u.FirstName || last != u.LastName {
			changed = true
		}
		u.DisplayName = c.DisplayName
		u.FirstName, u.LastName = first, last
	}
	for _, f := range []struct {
		dst *string
		val string
	}{
		{&u.PictureURL, c.PictureURL},
		{&u.Bio, c.Bio},
		{&u.Address, c.Address},
		{&u.PhoneNumber, c.PhoneNumber},
	} {
		if f.val != "" && f.val != *f.dst {
			*f.dst = f.val
			changed = true
		}
	}
	return changed
}
