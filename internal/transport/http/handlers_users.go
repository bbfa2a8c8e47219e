package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"consentire/internal/auth"
	"consentire/internal/transport/http/json"
	"consentire/internal/transport/http/shared"
	"consentire/internal/user"
	"consentire/pkg/identity"
	"consentire/pkg/validation"
)

// UserHandler handles user registration and token issuance.
type UserHandler struct {
	users  *user.Service
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewUserHandler(users *user.Service, tokens *auth.TokenService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, tokens: tokens, logger: logger}
}

func (h *UserHandler) Register(r chi.Router) {
	r.Post("/users/register", h.handleRegister)
	r.Post("/users/token", h.handleToken)
}

type registerUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	PublicKey string `json:"publicKey" validate:"required,notblank"`
}

type registerUserResponse struct {
	*user.Profile
	Token string `json:"token"`
}

func (h *UserHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	profile, err := h.users.Register(r.Context(), req.Email, req.PublicKey)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	token, err := h.tokens.IssueUserToken(profile.ID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	json.WriteJSON(w, http.StatusCreated, registerUserResponse{Profile: profile, Token: token})
}

// handleToken re-issues a token for an already registered user. The email and
// public key deterministically derive the user ID, so possession of both is
// the login credential.
func (h *UserHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	profile, err := h.users.Get(r.Context(), identity.UserID(req.Email, req.PublicKey))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	token, err := h.tokens.IssueUserToken(profile.ID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}
