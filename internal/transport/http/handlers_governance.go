package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consentire/internal/governance"
	"consentire/internal/transport/http/json"
	"consentire/internal/transport/http/shared"
	domainerrors "consentire/pkg/domain-errors"
	"consentire/pkg/validation"
)

// GovernanceHandler exposes proposals and voting to registered users.
type GovernanceHandler struct {
	governance *governance.Service
	logger     *slog.Logger
}

func NewGovernanceHandler(gov *governance.Service, logger *slog.Logger) *GovernanceHandler {
	return &GovernanceHandler{governance: gov, logger: logger}
}

func (h *GovernanceHandler) Register(r chi.Router) {
	r.Post("/governance/proposals", h.handlePropose)
	r.Get("/governance/proposals", h.handleListProposals)
	r.Post("/governance/proposals/{proposalID}/votes", h.handleVote)
	r.Get("/governance/proposals/{proposalID}/tally", h.handleTally)
	r.Post("/governance/proposals/{proposalID}/finalize", h.handleFinalize)
}

type proposeRequest struct {
	Title        string `json:"title" validate:"required,notblank,max=200"`
	Description  string `json:"description,omitempty" validate:"max=4000"`
	VotingPeriod string `json:"votingPeriod" validate:"required"`
}

func (h *GovernanceHandler) handlePropose(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "user token required"))
		return
	}

	var req proposeRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}
	period, err := time.ParseDuration(req.VotingPeriod)
	if err != nil {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeValidation,
			"voting_period must be a duration such as 72h"))
		return
	}

	proposal, err := h.governance.Propose(r.Context(), userID, req.Title, req.Description, period)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, proposal)
}

func (h *GovernanceHandler) handleListProposals(w http.ResponseWriter, r *http.Request) {
	var status *governance.ProposalStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := governance.ProposalStatus(raw)
		status = &st
	}

	proposals, err := h.governance.ListProposals(r.Context(), status)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, proposals)
}

type voteRequest struct {
	Support bool  `json:"support"`
	Weight  int64 `json:"weight,omitempty" validate:"min=0"`
}

func (h *GovernanceHandler) handleVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "user token required"))
		return
	}

	var req voteRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := validation.Validate(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	vote, err := h.governance.CastVote(r.Context(), chi.URLParam(r, "proposalID"), userID, req.Support, req.Weight)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, vote)
}

func (h *GovernanceHandler) handleTally(w http.ResponseWriter, r *http.Request) {
	tally, err := h.governance.Tally(r.Context(), chi.URLParam(r, "proposalID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, tally)
}

func (h *GovernanceHandler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.governance.Finalize(r.Context(), chi.URLParam(r, "proposalID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, proposal)
}
