package service

import (
	"context"

	"consentire/internal/audit"
	"consentire/internal/ledger"
	"consentire/internal/registry"
	"consentire/pkg/domain"
)

// ControllerRegistry resolves registered controllers by organization ID.
// Satisfied by registry.Service.
type ControllerRegistry interface {
	Resolve(ctx context.Context, orgID domain.OrgID) (*registry.ControllerRecord, error)
}

// RevocationVerifier checks that a revocation request was signed by the
// consent's owner.
type RevocationVerifier interface {
	VerifyRevocation(ctx context.Context, userID domain.UserID, consentID domain.ConsentID, signature string) error
}

// Auditor captures audit entries. Satisfied by audit.Recorder. Appends are
// best-effort; the engine never checks an outcome.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry)
}

// PendingEnqueuer accepts ledger writes that failed inline, for background
// retry. Satisfied by ledger.Reconciler.
type PendingEnqueuer interface {
	Enqueue(p ledger.Pending)
}
