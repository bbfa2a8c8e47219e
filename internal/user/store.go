package user

import (
	"context"

	"consentire/pkg/domain"
)

// Store persists derived user profiles. Implementations return
// sentinel.ErrNotFound for unknown users.
type Store interface {
	Insert(ctx context.Context, profile *Profile) error
	GetByID(ctx context.Context, userID domain.UserID) (*Profile, error)
}
