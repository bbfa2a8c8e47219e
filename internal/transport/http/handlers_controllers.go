package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"consentire/internal/auth"
	"consentire/internal/compliance"
	"consentire/internal/platform/middleware"
	"consentire/internal/registry"
	"consentire/internal/transport/http/json"
	"consentire/internal/transport/http/shared"
	domainerrors "consentire/pkg/domain-errors"
	"consentire/pkg/domain"
	"consentire/pkg/validation"
)

// ControllerHandler handles controller registration, authentication, metadata
// and compliance reporting.
type ControllerHandler struct {
	registry   *registry.Service
	compliance *compliance.Service
	tokens     *auth.TokenService
	logger     *slog.Logger
}

func NewControllerHandler(reg *registry.Service, comp *compliance.Service,
	tokens *auth.TokenService, logger *slog.Logger) *ControllerHandler {
	return &ControllerHandler{registry: reg, compliance: comp, tokens: tokens, logger: logger}
}

// Register wires the public controller endpoints.
func (h *ControllerHandler) Register(r chi.Router) {
	r.Post("/controllers/register", h.handleRegister)
	r.Post("/controllers/token", h.handleToken)
}

// RegisterAuthenticated wires endpoints that require a controller token.
func (h *ControllerHandler) RegisterAuthenticated(r chi.Router) {
	r.Put("/controllers/metadata", h.handleUpdateMetadata)
	r.Get("/controllers/compliance", h.handleComplianceReport)
}

type registerControllerRequest struct {
	OrganizationID   string            `json:"organizationId" validate:"required,notblank"`
	OrganizationName string            `json:"organizationName" validate:"required,notblank"`
	PublicKey        string            `json:"publicKey" validate:"required,notblank"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type registerControllerResponse struct {
	*registry.RegistrationResult
	Token string `json:"token"`
}

func (h *ControllerHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerControllerRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.registry.Register(r.Context(), registry.RegisterRequest{
		OrgID:     domain.OrgID(req.OrganizationID),
		OrgName:   req.OrganizationName,
		PublicKey: req.PublicKey,
		Metadata:  req.Metadata,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	token, err := h.tokens.IssueControllerToken(result.Ref)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	json.WriteJSON(w, http.StatusCreated, registerControllerResponse{RegistrationResult: result, Token: token})
}

type controllerTokenRequest struct {
	ControllerRef string `json:"controllerRef" validate:"required,notblank"`
	APISecret     string `json:"apiSecret" validate:"required,notblank"`
}

func (h *ControllerHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req controllerTokenRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	ref := domain.ControllerRef(req.ControllerRef)
	if err := h.registry.VerifySecret(r.Context(), ref, req.APISecret); err != nil {
		shared.WriteError(w, err)
		return
	}

	token, err := h.tokens.IssueControllerToken(ref)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

type updateMetadataRequest struct {
	Metadata map[string]string `json:"metadata" validate:"required"`
}

func (h *ControllerHandler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ref := authenticatedControllerRef(r)
	if ref.IsNil() {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "controller token required"))
		return
	}

	var req updateMetadataRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.registry.UpdateMetadata(r.Context(), ref, req.Metadata); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *ControllerHandler) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	ref := authenticatedControllerRef(r)
	if ref.IsNil() {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "controller token required"))
		return
	}

	ctrl, err := h.registry.ResolveByRef(r.Context(), ref)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	report, err := h.compliance.ControllerReport(r.Context(), ctrl.OrgID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, report)
}

func authenticatedControllerRef(r *http.Request) domain.ControllerRef {
	return domain.ControllerRef(middleware.GetControllerRef(r.Context()))
}
