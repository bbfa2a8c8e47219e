package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"consentire/internal/sentinel"
	"consentire/pkg/domain"
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists user profiles in the users table.
type PostgresStore struct {
	db dbExecutor
}

func NewPostgresStore(db dbExecutor) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, profile *Profile) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, did, wallet_address, public_key, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		profile.ID.String(), profile.DID.String(), profile.WalletAddress,
		profile.PublicKey, profile.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, userID domain.UserID) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, did, wallet_address, public_key, registered_at
		FROM users
		WHERE id = $1`,
		userID.String(),
	)

	var (
		profile Profile
		id      string
		did     string
	)
	err := row.Scan(&id, &did, &profile.WalletAddress, &profile.PublicKey, &profile.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	profile.ID = domain.UserID(id)
	profile.DID = domain.DID(did)
	return &profile, nil
}
