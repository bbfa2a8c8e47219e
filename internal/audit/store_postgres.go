package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"consentire/pkg/domain"
)

// PostgresStore persists audit entries in PostgreSQL. Append-only: the table
// has no UPDATE or DELETE path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, consent_id, actor, action, details, ledger_tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		entry.ID,
		nullable(string(entry.ConsentID)),
		entry.Actor,
		entry.Action,
		details,
		nullable(entry.LedgerTxHash),
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByConsent(ctx context.Context, consentID domain.ConsentID) ([]Entry, error) {
	return s.list(ctx, `consent_id = $1`, string(consentID))
}

func (s *PostgresStore) ListByActor(ctx context.Context, actor string) ([]Entry, error) {
	return s.list(ctx, `actor = $1`, actor)
}

func (s *PostgresStore) list(ctx context.Context, where string, arg any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, consent_id, actor, action, details, ledger_tx_hash, created_at
		FROM audit_log
		WHERE `+where+`
		ORDER BY created_at
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			consentID sql.NullString
			txHash    sql.NullString
			details   []byte
		)
		if err := rows.Scan(&entry.ID, &consentID, &entry.Actor, &entry.Action,
			&details, &txHash, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ConsentID = domain.ConsentID(consentID.String)
		entry.LedgerTxHash = txHash.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
