package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"consentire/internal/audit"
	"consentire/internal/consent/models"
	consentservice "consentire/internal/consent/service"
	"consentire/internal/platform/middleware"
	"consentire/internal/transport/http/mocks"
	domainerrors "consentire/pkg/domain-errors"
	"consentire/pkg/domain"
	"consentire/pkg/identity"
)

type ConsentHandlerSuite struct {
	suite.Suite
	userID domain.UserID
}

func (s *ConsentHandlerSuite) SetupSuite() {
	s.userID = identity.UserID("alice@example.com", "pk_alice")
}

// newUserRouter mounts the handler behind a middleware that injects an
// authenticated user, standing in for token validation.
func (s *ConsentHandlerSuite) newUserRouter(t *testing.T) (*mocks.MockConsentService, audit.Store, chi.Router) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockConsentService(ctrl)
	trail := audit.NewInMemoryStore()
	handler := NewConsentHandler(mockService, trail, slog.New(slog.NewTextHandler(io.Discard, nil)))

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), s.userID.String())))
		})
	})
	handler.RegisterUser(router)
	return mockService, trail, router
}

func (s *ConsentHandlerSuite) newControllerRouter(t *testing.T) (*mocks.MockConsentService, chi.Router) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockConsentService(ctrl)
	handler := NewConsentHandler(mockService, audit.NewInMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithControllerRef(r.Context(), "ref-1")))
		})
	})
	handler.RegisterController(router)
	return mockService, router
}

func (s *ConsentHandlerSuite) do(router chi.Router, method, path, body string) (int, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]any
	raw, _ := io.ReadAll(rec.Result().Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return rec.Code, decoded
}

func (s *ConsentHandlerSuite) TestGrant() {
	validBody := `{"organizationId":"acme","purpose":"marketing","lawfulBasis":"consent"}`

	s.T().Run("valid grant returns 201", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		granted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		mockService.EXPECT().Grant(gomock.Any(), consentservice.GrantRequest{
			UserID:      s.userID,
			OrgID:       "acme",
			Purpose:     "marketing",
			LawfulBasis: models.BasisConsent,
		}).Return(&models.GrantResult{
			ConsentID: identity.ConsentID(s.userID, "acme", "marketing", granted.UnixMilli()),
			Status:    models.StatusGranted,
			GrantedAt: granted,
		}, nil)

		status, body := s.do(router, http.MethodPost, "/consents", validBody)

		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, "granted", body["status"])
		assert.Len(t, body["consentId"], 64)
	})

	s.T().Run("duplicate grant returns 409", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		mockService.EXPECT().Grant(gomock.Any(), gomock.Any()).Return(nil,
			domainerrors.New(domainerrors.CodeDuplicateConsent,
				"an active consent already exists for this controller and purpose"))

		status, body := s.do(router, http.MethodPost, "/consents", validBody)

		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, string(domainerrors.CodeDuplicateConsent), body["error"])
	})

	s.T().Run("oracle outage returns 503", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		mockService.EXPECT().Grant(gomock.Any(), gomock.Any()).Return(nil,
			domainerrors.New(domainerrors.CodeUnavailable, "proof oracle unavailable"))

		status, body := s.do(router, http.MethodPost, "/consents", validBody)

		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, string(domainerrors.CodeUnavailable), body["error"])
	})

	s.T().Run("malformed json returns 400 without reaching the engine", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		mockService.EXPECT().Grant(gomock.Any(), gomock.Any()).Times(0)

		status, _ := s.do(router, http.MethodPost, "/consents", "{bad-json")

		assert.Equal(t, http.StatusBadRequest, status)
	})

	s.T().Run("unknown lawful basis returns 400", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		mockService.EXPECT().Grant(gomock.Any(), gomock.Any()).Times(0)

		status, body := s.do(router, http.MethodPost, "/consents",
			`{"organizationId":"acme","purpose":"marketing","lawfulBasis":"vibes"}`)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, string(domainerrors.CodeValidation), body["error"])
	})

	s.T().Run("bad expiry timestamp returns 400", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		mockService.EXPECT().Grant(gomock.Any(), gomock.Any()).Times(0)

		status, _ := s.do(router, http.MethodPost, "/consents",
			`{"organizationId":"acme","purpose":"marketing","lawfulBasis":"consent","expiresAt":"tomorrow"}`)

		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func (s *ConsentHandlerSuite) TestVerify() {
	s.T().Run("valid consent returns 200 with isValid true", func(t *testing.T) {
		mockService, router := s.newControllerRouter(t)
		consentID := identity.ConsentID(s.userID, "acme", "marketing", 1700000000000)
		mockService.EXPECT().Verify(gomock.Any(), consentservice.VerifyRequest{
			UserID:  s.userID,
			OrgID:   "acme",
			Purpose: "marketing",
		}).Return(&models.VerifyResult{
			Valid:     true,
			ConsentID: consentID,
			Status:    models.StatusGranted,
		}, nil)

		status, body := s.do(router, http.MethodPost, "/consents/verify",
			`{"userId":"`+s.userID.String()+`","organizationId":"acme","purpose":"marketing"}`)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["isValid"])
		assert.Equal(t, consentID.String(), body["consentId"])
	})

	s.T().Run("absent consent is still HTTP 200", func(t *testing.T) {
		mockService, router := s.newControllerRouter(t)
		mockService.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&models.VerifyResult{
			Valid:  false,
			Reason: models.ReasonNotFound,
			Detail: "no consent found",
		}, nil)

		status, body := s.do(router, http.MethodPost, "/consents/verify",
			`{"userId":"`+s.userID.String()+`","organizationId":"acme","purpose":"marketing"}`)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["isValid"])
	})

	s.T().Run("user token is rejected with 403", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockService := mocks.NewMockConsentService(ctrl)
		mockService.EXPECT().Verify(gomock.Any(), gomock.Any()).Times(0)
		handler := NewConsentHandler(mockService, audit.NewInMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))

		router := chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), s.userID.String())))
			})
		})
		handler.RegisterController(router)

		status, body := s.do(router, http.MethodPost, "/consents/verify",
			`{"userId":"`+s.userID.String()+`","organizationId":"acme","purpose":"marketing"}`)

		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, string(domainerrors.CodeForbidden), body["error"])
	})

	s.T().Run("malformed user id fails validation", func(t *testing.T) {
		mockService, router := s.newControllerRouter(t)
		mockService.EXPECT().Verify(gomock.Any(), gomock.Any()).Times(0)

		status, body := s.do(router, http.MethodPost, "/consents/verify",
			`{"userId":"not-a-hash","organizationId":"acme","purpose":"marketing"}`)

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, string(domainerrors.CodeValidation), body["error"])
	})
}

func (s *ConsentHandlerSuite) TestRevoke() {
	consentID := identity.ConsentID(s.userID, "acme", "marketing", 1700000000000)

	s.T().Run("valid revocation returns 200", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		revoked := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		mockService.EXPECT().Revoke(gomock.Any(), consentservice.RevokeRequest{
			ConsentID: consentID,
			UserID:    s.userID,
			Signature: "sig",
		}).Return(&models.RevokeResult{
			ConsentID: consentID,
			Status:    models.StatusRevoked,
			RevokedAt: revoked,
		}, nil)

		status, body := s.do(router, http.MethodPost,
			"/consents/"+consentID.String()+"/revoke", `{"signature":"sig"}`)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "revoked", body["status"])
	})

	s.T().Run("bad signature returns 403", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		mockService.EXPECT().Revoke(gomock.Any(), gomock.Any()).Return(nil,
			domainerrors.New(domainerrors.CodeInvalidSignature, "revocation signature did not verify"))

		status, body := s.do(router, http.MethodPost,
			"/consents/"+consentID.String()+"/revoke", `{"signature":"wrong"}`)

		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, string(domainerrors.CodeInvalidSignature), body["error"])
	})

	s.T().Run("already revoked returns 409", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		mockService.EXPECT().Revoke(gomock.Any(), gomock.Any()).Return(nil,
			domainerrors.New(domainerrors.CodeInvalidState,
				"consent is revoked, only granted consents can be revoked"))

		status, _ := s.do(router, http.MethodPost,
			"/consents/"+consentID.String()+"/revoke", `{"signature":"sig"}`)

		assert.Equal(t, http.StatusConflict, status)
	})

	s.T().Run("garbage consent id returns 400", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		mockService.EXPECT().Revoke(gomock.Any(), gomock.Any()).Times(0)

		status, _ := s.do(router, http.MethodPost, "/consents/nope/revoke", `{"signature":"sig"}`)

		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func (s *ConsentHandlerSuite) TestList() {
	s.T().Run("status filter is passed through", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		revoked := models.StatusRevoked
		mockService.EXPECT().ListConsents(gomock.Any(), s.userID, &revoked).Return(nil, nil)

		status, _ := s.do(router, http.MethodGet, "/consents?status=revoked", "")

		assert.Equal(t, http.StatusOK, status)
	})

	s.T().Run("unknown status filter returns 400", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		mockService.EXPECT().ListConsents(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		status, _ := s.do(router, http.MethodGet, "/consents?status=paused", "")

		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func (s *ConsentHandlerSuite) TestAuditTrail() {
	consentID := identity.ConsentID(s.userID, "acme", "marketing", 1700000000000)

	s.T().Run("owner sees the trail", func(t *testing.T) {
		mockService, trail, router := s.newUserRouter(t)
		mockService.EXPECT().GetConsent(gomock.Any(), consentID, s.userID).
			Return(&models.Record{ID: consentID, UserID: s.userID}, nil)
		require.NoError(t, trail.Append(t.Context(), audit.Entry{
			ConsentID: consentID,
			Actor:     s.userID.String(),
			Action:    models.AuditActionConsentGranted,
		}))

		status, _ := s.do(router, http.MethodGet, "/consents/"+consentID.String()+"/audit", "")

		assert.Equal(t, http.StatusOK, status)
	})

	s.T().Run("foreign consent yields 404 and no trail access", func(t *testing.T) {
		mockService, _, router := s.newUserRouter(t)
		mockService.EXPECT().GetConsent(gomock.Any(), consentID, s.userID).
			Return(nil, domainerrors.New(domainerrors.CodeNotFound, "consent not found"))

		status, body := s.do(router, http.MethodGet, "/consents/"+consentID.String()+"/audit", "")

		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, string(domainerrors.CodeNotFound), body["error"])
	})
}

func TestConsentHandlerSuite(t *testing.T) {
	suite.Run(t, new(ConsentHandlerSuite))
}
