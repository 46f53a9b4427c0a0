package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no API key matches the supplied hash.
var ErrNotFound = errors.New("api key not found")

// Role distinguishes regular customers from administrators.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Identity holds the resolved caller behind a validated API key.
type Identity struct {
	ID      string
	KeyHash string
	UserID  string
	Name    string
	Role    Role
}

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Identity, error)
}
