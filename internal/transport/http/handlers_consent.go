package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consentire/internal/audit"
	"consentire/internal/consent/models"
	consentservice "consentire/internal/consent/service"
	"consentire/internal/platform/middleware"
	"consentire/internal/transport/http/json"
	"consentire/internal/transport/http/shared"
	domainerrors "consentire/pkg/domain-errors"
	"consentire/pkg/domain"
	"consentire/pkg/validation"
)

// ConsentService is the engine surface the transport layer depends on.
// Satisfied by consentservice.Service.
type ConsentService interface {
	Grant(ctx context.Context, req consentservice.GrantRequest) (*models.GrantResult, error)
	Verify(ctx context.Context, req consentservice.VerifyRequest) (*models.VerifyResult, error)
	Revoke(ctx context.Context, req consentservice.RevokeRequest) (*models.RevokeResult, error)
	GetActiveConsents(ctx context.Context, userID domain.UserID) ([]*models.Record, error)
	ListConsents(ctx context.Context, userID domain.UserID, status *models.Status) ([]*models.Record, error)
	GetConsent(ctx context.Context, consentID domain.ConsentID, userID domain.UserID) (*models.Record, error)
}

//go:generate mockgen -source=handlers_consent.go -destination=mocks/consent-mocks.go -package=mocks ConsentService

// ConsentHandler is the thin HTTP layer over the consent engine. It delegates
// to the engine without embedding business logic so transport concerns remain
// isolated.
type ConsentHandler struct {
	consent    ConsentService
	auditTrail audit.Store
	logger     *slog.Logger
}

func NewConsentHandler(consent ConsentService, auditTrail audit.Store, logger *slog.Logger) *ConsentHandler {
	return &ConsentHandler{consent: consent, auditTrail: auditTrail, logger: logger}
}

// RegisterUser wires endpoints that require a user token.
func (h *ConsentHandler) RegisterUser(r chi.Router) {
	r.Post("/consents", h.handleGrant)
	r.Get("/consents", h.handleList)
	r.Get("/consents/active", h.handleListActive)
	r.Get("/consents/{consentID}", h.handleGet)
	r.Post("/consents/{consentID}/revoke", h.handleRevoke)
	r.Get("/consents/{consentID}/audit", h.handleAuditTrail)
}

// RegisterController wires endpoints that require a controller token.
func (h *ConsentHandler) RegisterController(r chi.Router) {
	r.Post("/consents/verify", h.handleVerify)
}

type grantRequest struct {
	OrganizationID string   `json:"organizationId" validate:"required,notblank"`
	Purpose        string   `json:"purpose" validate:"required,notblank"`
	DataCategories []string `json:"dataCategories,omitempty"`
	LawfulBasis    string   `json:"lawfulBasis" validate:"required,oneof=consent contract legal_obligation vital_interest public_task legitimate_interest"`
	ExpiresAt      *string  `json:"expiresAt,omitempty"`
}

func (h *ConsentHandler) handleGrant(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "user token required"))
		return
	}

	var req grantRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			shared.WriteError(w, domainerrors.New(domainerrors.CodeValidation,
				"expires_at must be an RFC 3339 timestamp"))
			return
		}
		expiresAt = &t
	}

	result, err := h.consent.Grant(r.Context(), consentservice.GrantRequest{
		UserID:         userID,
		OrgID:          domain.OrgID(req.OrganizationID),
		Purpose:        req.Purpose,
		DataCategories: req.DataCategories,
		LawfulBasis:    models.LawfulBasis(req.LawfulBasis),
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, result)
}

type verifyRequest struct {
	UserID         string `json:"userId" validate:"required,len=64,hexadecimal"`
	OrganizationID string `json:"organizationId" validate:"required,notblank"`
	Purpose        string `json:"purpose" validate:"required,notblank"`
}

func (h *ConsentHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if authenticatedControllerRef(r).IsNil() {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "controller token required"))
		return
	}

	var req verifyRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	userID, err := domain.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeValidation, err.Error()))
		return
	}

	result, err := h.consent.Verify(r.Context(), consentservice.VerifyRequest{
		UserID:  userID,
		OrgID:   domain.OrgID(req.OrganizationID),
		Purpose: req.Purpose,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// Verification outcomes are payload variants, not HTTP failures.
	json.WriteJSON(w, http.StatusOK, result)
}

type revokeRequest struct {
	Signature string `json:"signature" validate:"required,notblank"`
}

func (h *ConsentHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "user token required"))
		return
	}
	consentID, err := domain.ParseConsentID(chi.URLParam(r, "consentID"))
	if err != nil {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeValidation, err.Error()))
		return
	}

	var req revokeRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.consent.Revoke(r.Context(), consentservice.RevokeRequest{
		ConsentID: consentID,
		UserID:    userID,
		Signature: req.Signature,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, result)
}

func (h *ConsentHandler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "user token required"))
		return
	}

	var status *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := models.Status(raw)
		if !st.IsValid() {
			shared.WriteError(w, domainerrors.New(domainerrors.CodeValidation,
				"status must be one of granted, revoked, expired"))
			return
		}
		status = &st
	}

	records, err := h.consent.ListConsents(r.Context(), userID, status)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, toConsentViews(records))
}

func (h *ConsentHandler) handleListActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "user token required"))
		return
	}

	records, err := h.consent.GetActiveConsents(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, toConsentViews(records))
}

func (h *ConsentHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "user token required"))
		return
	}
	consentID, err := domain.ParseConsentID(chi.URLParam(r, "consentID"))
	if err != nil {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeValidation, err.Error()))
		return
	}

	record, err := h.consent.GetConsent(r.Context(), consentID, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, toConsentView(record))
}

func (h *ConsentHandler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "user token required"))
		return
	}
	consentID, err := domain.ParseConsentID(chi.URLParam(r, "consentID"))
	if err != nil {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeValidation, err.Error()))
		return
	}

	// Ownership gate; the audit trail leaks nothing about foreign consents.
	if _, err := h.consent.GetConsent(r.Context(), consentID, userID); err != nil {
		shared.WriteError(w, err)
		return
	}

	entries, err := h.auditTrail.ListByConsent(r.Context(), consentID)
	if err != nil {
		shared.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "audit trail unavailable"))
		return
	}
	json.WriteJSON(w, http.StatusOK, entries)
}

// consentView is the API shape of a consent record. The opaque attestation is
// included; nothing else beyond what the owner already knows.
type consentView struct {
	ConsentID      domain.ConsentID   `json:"consentId"`
	ControllerHash string             `json:"controllerHash"`
	Purpose        string             `json:"purpose"`
	DataCategories []string           `json:"dataCategories,omitempty"`
	LawfulBasis    models.LawfulBasis `json:"lawfulBasis"`
	Status         models.Status      `json:"status"`
	GrantedAt      time.Time          `json:"grantedAt"`
	ExpiresAt      *time.Time         `json:"expiresAt,omitempty"`
	RevokedAt      *time.Time         `json:"revokedAt,omitempty"`
	LedgerTxHash   string             `json:"ledgerTxHash,omitempty"`
}

func toConsentView(record *models.Record) consentView {
	return consentView{
		ConsentID:      record.ID,
		ControllerHash: record.ControllerHash.String(),
		Purpose:        record.Purpose,
		DataCategories: record.DataCategories,
		LawfulBasis:    record.LawfulBasis,
		Status:         record.Status,
		GrantedAt:      record.GrantedAt,
		ExpiresAt:      record.ExpiresAt,
		RevokedAt:      record.RevokedAt,
		LedgerTxHash:   record.LedgerTxHash,
	}
}

func toConsentViews(records []*models.Record) []consentView {
	views := make([]consentView, 0, len(records))
	for _, record := range records {
		views = append(views, toConsentView(record))
	}
	return views
}

func authenticatedUserID(r *http.Request) (domain.UserID, bool) {
	raw := middleware.GetUserID(r.Context())
	if raw == "" {
		return "", false
	}
	userID, err := domain.ParseUserID(raw)
	if err != nil {
		return "", false
	}
	return userID, true
}
