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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentire/internal/audit"
	"consentire/internal/auth"
	"consentire/internal/compliance"
	consentservice "consentire/internal/consent/service"
	consentstore "consentire/internal/consent/store"
	"consentire/internal/governance"
	"consentire/internal/ledger"
	"consentire/internal/proof"
	"consentire/internal/registry"
	"consentire/internal/user"
	"consentire/pkg/domain"
)

// newTestServer assembles the full router over in-memory stores, the same
// shape main builds in development mode.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	consents := consentstore.New()
	trail := audit.NewInMemoryStore()

	users := user.NewService(user.NewMemoryStore(), user.WithLogger(log))
	controllers := registry.NewService(registry.NewMemoryStore(), registry.WithLogger(log))

	consent := consentservice.NewService(consents, controllers,
		proof.NewMockOracle(), ledger.NewMockClient(),
		consentservice.NewHashRevocationVerifier(users),
		consentservice.WithAuditor(audit.NewRecorder(trail)),
		consentservice.WithLogger(log),
	)

	tokens := auth.NewTokenService("test-signing-key", "consentire", time.Hour)

	router := NewRouter(Deps{
		Logger:         log,
		Tokens:         tokens,
		Users:          users,
		Registry:       controllers,
		Consent:        consent,
		Compliance:     compliance.NewService(consents, controllers),
		Governance:     governance.NewService(governance.NewMemoryStore()),
		AuditTrail:     trail,
		RequestTimeout: 5 * time.Second,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token, body string) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func mustConsentID(t *testing.T, raw string) domain.ConsentID {
	t.Helper()
	id, err := domain.ParseConsentID(raw)
	require.NoError(t, err)
	return id
}

func TestConsentLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	// A consent endpoint without a token is rejected before routing to the
	// handler.
	status, _ := doJSON(t, srv, http.MethodGet, "/consents", "", "")
	require.Equal(t, http.StatusUnauthorized, status)

	status, userBody := doJSON(t, srv, http.MethodPost, "/users/register", "",
		`{"email":"alice@example.com","publicKey":"pk_alice"}`)
	require.Equal(t, http.StatusCreated, status)
	userToken, _ := userBody["token"].(string)
	require.NotEmpty(t, userToken)
	userID, _ := userBody["userId"].(string)
	require.Len(t, userID, 64)

	status, ctrlBody := doJSON(t, srv, http.MethodPost, "/controllers/register", "",
		`{"organizationId":"acme","organizationName":"Acme Corp","publicKey":"pk_acme"}`)
	require.Equal(t, http.StatusCreated, status)
	ctrlToken, _ := ctrlBody["token"].(string)
	require.NotEmpty(t, ctrlToken)
	require.Len(t, ctrlBody["apiSecret"], 64)

	status, grantBody := doJSON(t, srv, http.MethodPost, "/consents", userToken,
		`{"organizationId":"acme","purpose":"marketing","lawfulBasis":"consent"}`)
	require.Equal(t, http.StatusCreated, status)
	consentID, _ := grantBody["consentId"].(string)
	require.Len(t, consentID, 64)

	// Same key again is a duplicate.
	status, dupBody := doJSON(t, srv, http.MethodPost, "/consents", userToken,
		`{"organizationId":"acme","purpose":"marketing","lawfulBasis":"consent"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_consent", dupBody["error"])

	// Verification is controller-only; a user token is turned away.
	status, _ = doJSON(t, srv, http.MethodPost, "/consents/verify", userToken,
		`{"userId":"`+userID+`","organizationId":"acme","purpose":"marketing"}`)
	assert.Equal(t, http.StatusForbidden, status)

	// The controller verifies against the pseudonymous user ID.
	status, verifyBody := doJSON(t, srv, http.MethodPost, "/consents/verify", ctrlToken,
		`{"userId":"`+userID+`","organizationId":"acme","purpose":"marketing"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, verifyBody["isValid"])

	// The audit trail is owner-only.
	status, _ = doJSON(t, srv, http.MethodGet, "/consents/"+consentID+"/audit", userToken, "")
	assert.Equal(t, http.StatusOK, status)

	sig := consentservice.SignRevocation(mustConsentID(t, consentID), "pk_alice")
	status, revokeBody := doJSON(t, srv, http.MethodPost,
		"/consents/"+consentID+"/revoke", userToken, `{"signature":"`+sig+`"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "revoked", revokeBody["status"])

	status, verifyBody = doJSON(t, srv, http.MethodPost, "/consents/verify", ctrlToken,
		`{"userId":"`+userID+`","organizationId":"acme","purpose":"marketing"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, verifyBody["isValid"])

	// Compliance report reflects the revocation.
	status, report := doJSON(t, srv, http.MethodGet, "/controllers/compliance", ctrlToken, "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, report["totalRecords"])
	assert.EqualValues(t, 1, report["revoked"])
	assert.EqualValues(t, 0, report["activeGrants"])
}

func TestOperationalEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metrics, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}
