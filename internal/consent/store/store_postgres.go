package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"consentire/internal/consent/models"
	"consentire/internal/sentinel"
	"consentire/pkg/domain"
)

// PostgresStore persists consent records in PostgreSQL. The atomicity contract
// rests on a partial unique index over (user_id, controller_hash, purpose_hash)
// WHERE status = 'granted' and on conditional UPDATEs guarded by the expected
// status.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed consent store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const recordColumns = `id, user_id, controller_ref, controller_hash, purpose, purpose_hash,
	data_categories, lawful_basis, status, granted_at, expires_at, revoked_at,
	ledger_tx_hash, proof_attestation`

func (s *PostgresStore) GetByKey(ctx context.Context, key models.Key) (*models.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM consent_records
		WHERE user_id = $1 AND controller_hash = $2 AND purpose_hash = $3
		ORDER BY granted_at DESC
		LIMIT 1
	`
	row := s.execer().QueryRowContext(ctx, query,
		string(key.UserID), string(key.ControllerHash), string(key.PurposeHash))
	return scanRecord(row)
}

func (s *PostgresStore) GetByID(ctx context.Context, id domain.ConsentID) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM consent_records WHERE id = $1`
	return scanRecord(s.execer().QueryRowContext(ctx, query, string(id)))
}

func (s *PostgresStore) InsertIfAbsentGranted(ctx context.Context, record *models.Record) (bool, error) {
	if record == nil {
		return false, fmt.Errorf("consent record is required")
	}
	categories, err := json.Marshal(record.DataCategories)
	if err != nil {
		return false, fmt.Errorf("encode data categories: %w", err)
	}
	query := `
		INSERT INTO consent_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULL, $12, $13)
		ON CONFLICT (user_id, controller_hash, purpose_hash) WHERE status = 'granted'
		DO NOTHING
	`
	res, err := s.execer().ExecContext(ctx, query,
		string(record.ID),
		string(record.UserID),
		string(record.ControllerRef),
		string(record.ControllerHash),
		record.Purpose,
		string(record.PurposeHash),
		categories,
		string(record.LawfulBasis),
		string(record.Status),
		record.GrantedAt,
		record.ExpiresAt,
		nullableString(record.LedgerTxHash),
		nullableBytes(record.ProofAttestation),
	)
	if err != nil {
		return false, fmt.Errorf("insert consent record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert consent record: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id domain.ConsentID, expected, next models.Status, at time.Time) (bool, error) {
	query := `
		UPDATE consent_records
		SET status = $3,
		    revoked_at = CASE WHEN $3 = 'revoked' THEN $4 ELSE revoked_at END
		WHERE id = $1 AND status = $2
	`
	res, err := s.execer().ExecContext(ctx, query, string(id), string(expected), string(next), at)
	if err != nil {
		return false, fmt.Errorf("update consent status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update consent status: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing record from a status mismatch so the engine
		// can report the right failure.
		var exists bool
		err := s.execer().QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM consent_records WHERE id = $1)`, string(id)).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("update consent status: %w", err)
		}
		if !exists {
			return false, sentinel.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) AttachLedgerTxHash(ctx context.Context, id domain.ConsentID, txHash string) error {
	res, err := s.execer().ExecContext(ctx,
		`UPDATE consent_records SET ledger_tx_hash = $2 WHERE id = $1`, string(id), txHash)
	if err != nil {
		return fmt.Errorf("attach ledger tx hash: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach ledger tx hash: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID domain.UserID, status *models.Status) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM consent_records WHERE user_id = $1`
	args := []any{string(userID)}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY granted_at DESC`

	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	return collectRecords(rows)
}

func (s *PostgresStore) ListByController(ctx context.Context, controllerHash domain.ControllerHash) ([]*models.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM consent_records
		WHERE controller_hash = $1
		ORDER BY granted_at DESC
	`
	rows, err := s.execer().QueryContext(ctx, query, string(controllerHash))
	if err != nil {
		return nil, fmt.Errorf("list controller consents: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	return collectRecords(rows)
}

func (s *PostgresStore) ListExpiredGranted(ctx context.Context, now time.Time, limit int) ([]*models.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM consent_records
		WHERE status = 'granted' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`
	rows, err := s.execer().QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired consents: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	return collectRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		record      models.Record
		id          string
		userID      string
		ref         sql.NullString
		ctrlHash    string
		purposeHash string
		categories  []byte
		basis       string
		status      string
		expiresAt   sql.NullTime
		revokedAt   sql.NullTime
		txHash      sql.NullString
		attestation []byte
	)
	err := row.Scan(&id, &userID, &ref, &ctrlHash, &record.Purpose, &purposeHash,
		&categories, &basis, &status, &record.GrantedAt, &expiresAt, &revokedAt,
		&txHash, &attestation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan consent record: %w", err)
	}

	record.ID = domain.ConsentID(id)
	record.UserID = domain.UserID(userID)
	record.ControllerRef = domain.ControllerRef(ref.String)
	record.ControllerHash = domain.ControllerHash(ctrlHash)
	record.PurposeHash = domain.PurposeHash(purposeHash)
	record.LawfulBasis = models.LawfulBasis(basis)
	record.Status = models.Status(status)
	if expiresAt.Valid {
		t := expiresAt.Time
		record.ExpiresAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		record.RevokedAt = &t
	}
	if txHash.Valid {
		record.LedgerTxHash = txHash.String
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &record.DataCategories); err != nil {
			return nil, fmt.Errorf("decode data categories: %w", err)
		}
	}
	if len(attestation) > 0 {
		record.ProofAttestation = attestation
	}
	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]*models.Record, error) {
	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return records, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
