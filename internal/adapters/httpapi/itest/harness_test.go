package itest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dma-portal/association-api/internal/adapters/httpapi"
	memadminlogrepo "github.com/dma-portal/association-api/internal/adapters/memory/adminlogrepo"
	memcandidaterepo "github.com/dma-portal/association-api/internal/adapters/memory/candidaterepo"
	memclock "github.com/dma-portal/association-api/internal/adapters/memory/clock"
	memidempotency "github.com/dma-portal/association-api/internal/adapters/memory/idempotency"
	memmemberrepo "github.com/dma-portal/association-api/internal/adapters/memory/memberrepo"
	memrevocation "github.com/dma-portal/association-api/internal/adapters/memory/revocation"
	memsettingsrepo "github.com/dma-portal/association-api/internal/adapters/memory/settingsrepo"
	pgadminlogrepo "github.com/dma-portal/association-api/internal/adapters/postgres/adminlogrepo"
	pgballot "github.com/dma-portal/association-api/internal/adapters/postgres/ballot"
	pgcandidaterepo "github.com/dma-portal/association-api/internal/adapters/postgres/candidaterepo"
	pgidempotency "github.com/dma-portal/association-api/internal/adapters/postgres/idempotency"
	pgmemberrepo "github.com/dma-portal/association-api/internal/adapters/postgres/memberrepo"
	pgsettingsrepo "github.com/dma-portal/association-api/internal/adapters/postgres/settingsrepo"
	postgres_testutil "github.com/dma-portal/association-api/internal/adapters/postgres/testutil"
	"github.com/dma-portal/association-api/internal/app/auditlog"
	"github.com/dma-portal/association-api/internal/app/bootstrap"
	"github.com/dma-portal/association-api/internal/app/candidates"
	"github.com/dma-portal/association-api/internal/app/members"
	"github.com/dma-portal/association-api/internal/app/sessions"
	"github.com/dma-portal/association-api/internal/app/settings"
	"github.com/dma-portal/association-api/internal/app/voting"
	"github.com/dma-portal/association-api/internal/platform/auth/passwords"
	"github.com/dma-portal/association-api/internal/platform/auth/sessiontoken"
	"github.com/dma-portal/association-api/internal/platform/config"
	"github.com/dma-portal/association-api/internal/platform/credentials"
	adminlogrepoport "github.com/dma-portal/association-api/internal/ports/out/adminlogrepo"
	candidaterepoport "github.com/dma-portal/association-api/internal/ports/out/candidaterepo"
	idempotencyport "github.com/dma-portal/association-api/internal/ports/out/idempotency"
	memberrepoport "github.com/dma-portal/association-api/internal/ports/out/memberrepo"
	settingsrepoport "github.com/dma-portal/association-api/internal/ports/out/settingsrepo"
)

const adminPassword = "Admin@02223"

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
}

// newTestServer wires the full API over the chosen backend and runs bootstrap with demo data.
func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	clk := memclock.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var (
		memberRepo    memberrepoport.Repository
		candidateRepo candidaterepoport.Repository
		adminLogRepo  adminlogrepoport.Repository
		settingsRepo  settingsrepoport.Repository
		idemStore     idempotencyport.Store
		votingOpts    voting.Options
	)

	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		memberRepo = pgmemberrepo.NewRepo(pool)
		candidateRepo = pgcandidaterepo.NewRepo(pool)
		adminLogRepo = pgadminlogrepo.NewRepo(pool)
		settingsRepo = pgsettingsrepo.NewRepo(pool)
		idemStore = pgidempotency.NewStore(pool)
		votingOpts.Recorder = pgballot.NewRecorder(pool)
	case backendMemory:
		memberRepo = memmemberrepo.NewRepo()
		candidateRepo = memcandidaterepo.NewRepo()
		adminLogRepo = memadminlogrepo.NewRepo()
		settingsRepo = memsettingsrepo.NewRepo()
		idemStore = memidempotency.NewStore()
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	hasher := passwords.NewHasher(bcrypt.MinCost)
	gen := credentials.New()
	tokens := sessiontoken.NewWithOptions(config.SessionConfig{
		Secret: []byte("itest-secret"),
		Issuer: "itest-issuer",
		TTL:    time.Hour,
	}, clk)

	audit := auditlog.NewService(adminLogRepo, clk, nil)
	settingsSvc := settings.NewService(settingsRepo, clk, audit, nil)
	svcs := httpapi.Services{
		Sessions:   sessions.NewService(memberRepo, memrevocation.NewStore(clk), tokens, hasher, settingsSvc, audit, clk, nil),
		Members:    members.NewService(memberRepo, clk, gen, hasher, audit, nil),
		Candidates: candidates.NewService(candidateRepo, clk, audit, nil),
		Voting:     voting.NewService(memberRepo, candidateRepo, clk, nil, votingOpts),
		AuditLog:   audit,
		Settings:   settingsSvc,
	}

	runner := bootstrap.NewRunner(memberRepo, candidateRepo, settingsSvc, hasher, gen, clk, nil)
	if _, err := runner.Run(context.Background(), bootstrap.Options{AdminPassword: adminPassword, Demo: true}); err != nil {
		t.Fatalf("bootstrap err=%v", err)
	}

	handler := httpapi.NewRouterWithOptions(httpapi.NewServer(svcs, idemStore, nil), httpapi.RouterOptions{})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, token string, body any) (int, []byte, http.Header) {
	t.Helper()
	return s.doJSONWithKey(t, method, path, token, "", body)
}

func (s *testServer) doJSONWithKey(t *testing.T, method string, path string, token string, idemKey string, body any) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

func (s *testServer) login(t *testing.T, identifier, password string) string {
	t.Helper()
	status, body, _ := s.doJSON(t, http.MethodPost, "/auth/login", "", map[string]any{
		"identifier": identifier,
		"password":   password,
	})
	if status != http.StatusOK {
		t.Fatalf("login(%s) status=%d body=%s", identifier, status, string(body))
	}
	return mustUnmarshal[struct {
		Token string `json:"token"`
	}](t, body).Token
}

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestId string `json:"requestId"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status=%d want=%d body=%s", status, wantStatus, string(body))
	}
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
