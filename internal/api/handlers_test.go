package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"subhub/internal/database"
	"subhub/internal/models"
	"subhub/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

// stubZones accepts every zone operation unless told otherwise
type stubZones struct {
	mu        sync.Mutex
	verifyErr error
	nextID    int
}

func (s *stubZones) VerifyZone(ctx context.Context, creds services.ZoneCredentials) error {
	return s.verifyErr
}

func (s *stubZones) CreateRecord(ctx context.Context, creds services.ZoneCredentials, fqdn string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("rec-%d", s.nextID), nil
}

func (s *stubZones) DeleteRecord(ctx context.Context, creds services.ZoneCredentials, recordID string) error {
	return nil
}

func testRouter(t *testing.T) (*gin.Engine, *stubZones) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	zones := &stubZones{}
	log := zap.NewNop()
	authService := services.NewAuthService("test-secret", time.Hour)
	registry := services.NewRegistry(db, zones, 50, log)
	allocator := services.NewAllocator(db, zones, nil, log)
	reporter := services.NewReporter(db)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	SetupRoutes(r, NewHandler(db, registry, allocator, reporter, authService))
	return r, zones
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": username,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func submitDomain(t *testing.T, r *gin.Engine, token, name string) uint {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/domains/donated", token, gin.H{
		"domain_name":          name,
		"cloudflare_zone_id":   "zone-1",
		"cloudflare_api_token": "cf-secret-token",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Domain models.DomainView `json:"domain"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Domain.ID
}

func activateDomain(t *testing.T, r *gin.Engine, token string, id uint) {
	t.Helper()
	w := doJSON(t, r, http.MethodPatch, fmt.Sprintf("/api/v1/domains/%d", id), token, gin.H{
		"action":    "toggle-status",
		"is_active": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Kind
}

func TestHealthz(t *testing.T) {
	r, _ := testRouter(t)
	w := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	r, _ := testRouter(t)

	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/domains/donated"},
		{http.MethodGet, "/api/v1/domains/donated"},
		{http.MethodPost, "/api/v1/domains/check-subdomain"},
		{http.MethodPost, "/api/v1/domains/claim"},
		{http.MethodGet, "/api/v1/domains/1"},
		{http.MethodPatch, "/api/v1/domains/1"},
	}
	for _, p := range paths {
		w := doJSON(t, r, p.method, p.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", p.method, p.path)
		assert.Equal(t, "AuthRequired", errorKind(t, w))
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/domains/donated", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	r, _ := testRouter(t)
	registerUser(t, r, "alice")

	// Duplicate username
	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice", "password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice", "password": "hunter22",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitDomain_RedactsCredentials(t *testing.T) {
	r, _ := testRouter(t)
	token := registerUser(t, r, "alice")

	w := doJSON(t, r, http.MethodPost, "/api/v1/domains/donated", token, gin.H{
		"domain_name":          "example.org",
		"cloudflare_zone_id":   "zone-1",
		"cloudflare_api_token": "cf-secret-token",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "cf-secret-token")
	assert.NotContains(t, body, "cloudflare_api_token")
	assert.Contains(t, body, `"is_active":false`)
}

func TestSubmitDomain_Invalid(t *testing.T) {
	r, zones := testRouter(t)
	token := registerUser(t, r, "alice")

	w := doJSON(t, r, http.MethodPost, "/api/v1/domains/donated", token, gin.H{
		"domain_name":          "not a domain",
		"cloudflare_zone_id":   "zone-1",
		"cloudflare_api_token": "tok",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidDomainName", errorKind(t, w))

	zones.verifyErr = services.E(services.KindInvalidCredentials, "cloudflare rejected the zone credentials")
	w = doJSON(t, r, http.MethodPost, "/api/v1/domains/donated", token, gin.H{
		"domain_name":          "example.org",
		"cloudflare_zone_id":   "zone-1",
		"cloudflare_api_token": "tok",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidCredentials", errorKind(t, w))
}

func TestCheckSubdomain_MalformedLabel(t *testing.T) {
	r, _ := testRouter(t)
	token := registerUser(t, r, "alice")
	domainID := submitDomain(t, r, token, "example.org")
	activateDomain(t, r, token, domainID)

	for _, label := range []string{"-abc", "abc-", "a b"} {
		w := doJSON(t, r, http.MethodPost, "/api/v1/domains/check-subdomain", token, gin.H{
			"domain_id": domainID, "subdomain": label,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, "label %q", label)
		assert.Equal(t, "InvalidFormat", errorKind(t, w))
	}
}

// The full spec scenario: donate, claim against inactive fails, activate,
// claim succeeds, availability flips case-insensitively, duplicate claim
// conflicts.
func TestClaimWorkflow(t *testing.T) {
	r, _ := testRouter(t)
	owner := registerUser(t, r, "owner")
	claimant := registerUser(t, r, "claimant")

	domainID := submitDomain(t, r, owner, "example.org")

	// Not yet active: the domain is not claimable and not discoverable.
	w := doJSON(t, r, http.MethodPost, "/api/v1/domains/claim", claimant, gin.H{
		"domain_id": domainID, "subdomain": "blog",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	activateDomain(t, r, owner, domainID)

	w = doJSON(t, r, http.MethodPost, "/api/v1/domains/check-subdomain", claimant, gin.H{
		"domain_id": domainID, "subdomain": "blog",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":true`)

	w = doJSON(t, r, http.MethodPost, "/api/v1/domains/claim", claimant, gin.H{
		"domain_id": domainID, "subdomain": "blog",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	for _, label := range []string{"blog", "BLOG"} {
		w = doJSON(t, r, http.MethodPost, "/api/v1/domains/check-subdomain", claimant, gin.H{
			"domain_id": domainID, "subdomain": label,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"available":false`, "label %q", label)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/domains/claim", claimant, gin.H{
		"domain_id": domainID, "subdomain": "blog",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyTaken", errorKind(t, w))
}

func TestListDomains(t *testing.T) {
	r, _ := testRouter(t)
	owner := registerUser(t, r, "owner")
	visitor := registerUser(t, r, "visitor")

	active := submitDomain(t, r, owner, "active.org")
	activateDomain(t, r, owner, active)
	submitDomain(t, r, owner, "pending.org") // stays inactive

	w := doJSON(t, r, http.MethodGet, "/api/v1/domains/donated?type=available", visitor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var avail struct {
		Domains []models.DomainView `json:"domains"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &avail))
	require.Len(t, avail.Domains, 1)
	assert.Equal(t, "active.org", avail.Domains[0].DomainName)

	w = doJSON(t, r, http.MethodGet, "/api/v1/domains/donated?type=my-domains", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine struct {
		Domains []models.DomainView `json:"domains"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	assert.Len(t, mine.Domains, 2)

	w = doJSON(t, r, http.MethodGet, "/api/v1/domains/donated?type=bogus", visitor, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOwnerAuthorization(t *testing.T) {
	r, _ := testRouter(t)
	owner := registerUser(t, r, "owner")
	intruder := registerUser(t, r, "intruder")

	domainID := submitDomain(t, r, owner, "example.org")

	w := doJSON(t, r, http.MethodPatch, fmt.Sprintf("/api/v1/domains/%d", domainID), intruder, gin.H{
		"action": "toggle-status", "is_active": true,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Forbidden", errorKind(t, w))

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/domains/%d", domainID), intruder, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The owner sees usage stats, credentials stay redacted.
	activateDomain(t, r, owner, domainID)
	claimant := registerUser(t, r, "claimant")
	w = doJSON(t, r, http.MethodPost, "/api/v1/domains/claim", claimant, gin.H{
		"domain_id": domainID, "subdomain": "blog",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/domains/%d", domainID), owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"label":"blog"`)
	assert.NotContains(t, w.Body.String(), "cf-secret-token")
}

func TestPatchDomain_UpdateSettings(t *testing.T) {
	r, _ := testRouter(t)
	owner := registerUser(t, r, "owner")
	domainID := submitDomain(t, r, owner, "example.org")

	w := doJSON(t, r, http.MethodPatch, fmt.Sprintf("/api/v1/domains/%d", domainID), owner, gin.H{
		"action":           "update-settings",
		"max_subdomains":   3,
		"donation_message": "enjoy",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodGet, "/api/v1/domains/donated?type=my-domains", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"max_subdomains":3`)
	assert.Contains(t, w.Body.String(), `"donation_message":"enjoy"`)

	w = doJSON(t, r, http.MethodPatch, fmt.Sprintf("/api/v1/domains/%d", domainID), owner, gin.H{
		"action": "self-destruct",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
