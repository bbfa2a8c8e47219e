package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"consentire/internal/sentinel"
	"consentire/pkg/domain"
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists controllers in the controllers table.
type PostgresStore struct {
	db dbExecutor
}

func NewPostgresStore(db dbExecutor) *PostgresStore {
	return &PostgresStore{db: db}
}

const controllerColumns = `ref, org_id, org_name, controller_hash, public_key, api_secret_hash, metadata, registered_at`

func (s *PostgresStore) Insert(ctx context.Context, rec *ControllerRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO controllers (`+controllerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (org_id) DO NOTHING`,
		rec.Ref.String(), rec.OrgID.String(), rec.OrgName, rec.ControllerHash.String(),
		rec.PublicKey, rec.APISecretHash, metadata, rec.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("insert controller: %w", err)
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

func (s *PostgresStore) GetByOrgID(ctx context.Context, orgID domain.OrgID) (*ControllerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+controllerColumns+`
		FROM controllers
		WHERE org_id = $1`,
		orgID.String(),
	)
	return scanController(row)
}

func (s *PostgresStore) GetByRef(ctx context.Context, ref domain.ControllerRef) (*ControllerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+controllerColumns+`
		FROM controllers
		WHERE ref = $1`,
		ref.String(),
	)
	return scanController(row)
}

func (s *PostgresStore) UpdateMetadata(ctx context.Context, ref domain.ControllerRef, metadata map[string]string) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE controllers SET metadata = $2 WHERE ref = $1`,
		ref.String(), raw,
	)
	if err != nil {
		return fmt.Errorf("update controller metadata: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanController(row *sql.Row) (*ControllerRecord, error) {
	var (
		rec      ControllerRecord
		ref      string
		orgID    string
		ctrlHash string
		metadata []byte
	)
	err := row.Scan(&ref, &orgID, &rec.OrgName, &ctrlHash, &rec.PublicKey,
		&rec.APISecretHash, &metadata, &rec.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan controller: %w", err)
	}
	rec.Ref = domain.ControllerRef(ref)
	rec.OrgID = domain.OrgID(orgID)
	rec.ControllerHash = domain.ControllerHash(ctrlHash)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}
