// Package account describes the users the engine acts on. Account management
// itself lives outside the engine; this package only reads it.
package account

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Type distinguishes individual bookkeeping users from business accounts
type Type string

const (
	TypeIndividual Type = "individual"
	TypeBusiness   Type = "business"
)

// IsValid returns true if the account type is known
func (t Type) IsValid() bool {
	return t == TypeIndividual || t == TypeBusiness
}

// User is the engine's view of an account holder
type User struct {
	ID         uuid.UUID
	BusinessID *uuid.UUID
	Type       Type
	Name       string
	Email      string
	Phone      string
	IsActive   bool
}

// IsBusiness returns true for business-type accounts that belong to a business
func (u *User) IsBusiness() bool {
	return u.Type == TypeBusiness && u.BusinessID != nil
}

// IsContactable returns true if notifications can be delivered to the user
func (u *User) IsContactable() bool {
	return u.IsActive && strings.TrimSpace(u.Email) != ""
}

// Directory looks up users. Implementations return shared.ErrNotFound for
// unknown IDs.
type Directory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	// FindOwner returns the user that owns the business account
	FindOwner(ctx context.Context, businessID uuid.UUID) (*User, error)
}
