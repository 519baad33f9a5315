package models

import (
	"time"

	"github.com/bizbook/backend/internal/domain/account"
	"github.com/google/uuid"
)

// UserModel is the persistence model for an account holder. Business
// owners carry the business_id they own.
type UserModel struct {
	BaseModel
	BusinessID *uuid.UUID `gorm:"type:uuid;index"`
	Type       string     `gorm:"type:varchar(20);not null"`
	Name       string     `gorm:"type:varchar(200);not null"`
	Email      string     `gorm:"type:varchar(200)"`
	Phone      string     `gorm:"type:varchar(20)"`
	IsActive   bool       `gorm:"not null"`
	LastLogin  *time.Time
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the model to a domain User
func (m *UserModel) ToDomain() *account.User {
	return &account.User{
		ID:         m.ID,
		BusinessID: m.BusinessID,
		Type:       account.Type(m.Type),
		Name:       m.Name,
		Email:      m.Email,
		Phone:      m.Phone,
		IsActive:   m.IsActive,
	}
}

// UserModelFromDomain creates a persistence model from a domain User
func UserModelFromDomain(u *account.User, now time.Time) *UserModel {
	m := &UserModel{
		BusinessID: u.BusinessID,
		Type:       string(u.Type),
		Name:       u.Name,
		Email:      u.Email,
		Phone:      u.Phone,
		IsActive:   u.IsActive,
	}
	m.ID = u.ID
	m.CreatedAt = now
	m.UpdatedAt = now
	return m
}
