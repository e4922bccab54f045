package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is the minimal identity record this core needs: enough to attach a
// token family to somebody. Profile storage beyond that lives elsewhere.
type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the payload a provider integration hands over after a
// successful round-trip. It seeds a new User when no account exists yet.
type Profile struct {
	Name  string
	Email string
}

// UserStore defines persistence operations for users.
type UserStore interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
}
