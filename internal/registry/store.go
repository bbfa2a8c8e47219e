package registry

import (
	"context"

	"consentire/pkg/domain"
)

// Store persists controller registrations. Implementations return
// sentinel.ErrNotFound for missing controllers and sentinel.ErrConflict when
// an organization is already registered.
type Store interface {
	Insert(ctx context.Context, rec *ControllerRecord) error
	GetByOrgID(ctx context.Context, orgID domain.OrgID) (*ControllerRecord, error)
	GetByRef(ctx context.Context, ref domain.ControllerRef) (*ControllerRecord, error)
	UpdateMetadata(ctx context.Context, ref domain.ControllerRef, metadata map[string]string) error
}
