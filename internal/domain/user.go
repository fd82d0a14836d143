// Package domain contains entity without logic, just meta-data
package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const MaxIDLen = 64

type UserID string

func (id UserID) String() string { return string(id) }

type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Caller is an identity already resolved by the auth collaborator.
// Role is the platform role (admin, staff...) and is informational here;
// meeting authority comes from the room's hostId.
type Caller struct {
	UserID UserID
	Role   string
}

var validate = validator.New()

// ValidateID rejects empty, oversized or non-printable identifiers.
func ValidateID(kind, id string) error {
	if err := validate.Var(id, fmt.Sprintf("required,printascii,max=%d", MaxIDLen)); err != nil {
		return fmt.Errorf("%w: %s %q", ErrInvalidParticipant, kind, id)
	}
	return nil
}

// NewUserID validates raw and converts it.
func NewUserID(raw string) (UserID, error) {
	if err := ValidateID("user", raw); err != nil {
		return "", err
	}
	return UserID(raw), nil
}
