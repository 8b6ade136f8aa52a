package model

import (
	"github.com/google/uuid"
)

// User status constants
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User represents a system user
type User struct {
	Base
	Email        string `json:"email" db:"email"`
	Name         string `json:"name" db:"name"`
	Role         Role   `json:"role" db:"role"`
	PasswordHash string `json:"-" db:"password_hash"`
	Status       string `json:"status" db:"status"`
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Role     Role   `json:"role" binding:"required,user_role"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// UpdateUserRequest is an administrator's change to an account. Omitted
// fields are left as they are.
type UpdateUserRequest struct {
	Name   *string `json:"name" binding:"omitempty,min=1"`
	Role   *Role   `json:"role" binding:"omitempty,user_role"`
	Status *string `json:"status" binding:"omitempty,oneof=active inactive"`
}

// Actor is the authenticated caller of a request. Its capabilities are
// resolved once from the role when the actor is built.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role Role

	caps CapabilitySet
}

func NewActor(u *User) *Actor {
	return &Actor{
		ID:   u.ID,
		Name: u.Name,
		Role: u.Role,
		caps: CapabilitiesFor(u.Role),
	}
}

func (a *Actor) Can(c Capability) bool {
	return a != nil && a.caps.Has(c)
}
