// Package compliance builds per-controller reports over the consent store.
// Reports are computed on demand from the authoritative records; nothing here
// keeps its own state.
package compliance

import (
	"context"
	"fmt"
	"time"

	"consentire/internal/consent/models"
	"consentire/internal/consent/store"
	"consentire/internal/registry"
	"consentire/pkg/domain"
)

// ControllerRegistry resolves the controller whose report is requested.
type ControllerRegistry interface {
	Resolve(ctx context.Context, orgID domain.OrgID) (*registry.ControllerRecord, error)
}

// Report summarizes a controller's consent position at generation time.
// Counts use effective status: a GRANTED record past its expiry counts as
// expired even if the sweep has not flipped it yet.
type Report struct {
	ControllerHash domain.ControllerHash `json:"controllerHash"`
	GeneratedAt    time.Time             `json:"generatedAt"`

	TotalRecords   int `json:"totalRecords"`
	ActiveGrants   int `json:"activeGrants"`
	Revoked        int `json:"revoked"`
	Expired        int `json:"expired"`
	PendingAnchors int `json:"pendingAnchors"`

	// ByLawfulBasis counts active grants per GDPR basis.
	ByLawfulBasis map[models.LawfulBasis]int `json:"byLawfulBasis"`

	OldestActiveGrant *time.Time `json:"oldestActiveGrant,omitempty"`
}

// Service generates compliance reports.
type Service struct {
	consents store.Store
	registry ControllerRegistry
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(consents store.Store, reg ControllerRegistry, opts ...Option) *Service {
	s := &Service{
		consents: consents,
		registry: reg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ControllerReport builds the report for one controller, identified by its
// raw organization ID.
func (s *Service) ControllerReport(ctx context.Context, orgID domain.OrgID) (*Report, error) {
	ctrl, err := s.registry.Resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}

	records, err := s.consents.ListByController(ctx, ctrl.ControllerHash)
	if err != nil {
		return nil, fmt.Errorf("list controller consents: %w", err)
	}

	now := s.now().UTC()
	report := &Report{
		ControllerHash: ctrl.ControllerHash,
		GeneratedAt:    now,
		TotalRecords:   len(records),
		ByLawfulBasis:  make(map[models.LawfulBasis]int),
	}

	for _, record := range records {
		switch record.EffectiveStatus(now) {
		case models.StatusGranted:
			report.ActiveGrants++
			report.ByLawfulBasis[record.LawfulBasis]++
			if report.OldestActiveGrant == nil || record.GrantedAt.Before(*report.OldestActiveGrant) {
				grantedAt := record.GrantedAt
				report.OldestActiveGrant = &grantedAt
			}
		case models.StatusRevoked:
			report.Revoked++
		case models.StatusExpired:
			report.Expired++
		}
		if record.LedgerTxHash == "" {
			report.PendingAnchors++
		}
	}
	return report, nil
}
