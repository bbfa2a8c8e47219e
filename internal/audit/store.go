package audit

import (
	"context"

	"consentire/pkg/domain"
)

// Store is the append-only persistence sink for audit entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByConsent(ctx context.Context, consentID domain.ConsentID) ([]Entry, error)
	ListByActor(ctx context.Context, actor string) ([]Entry, error)
}
