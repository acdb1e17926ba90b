package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	memadminlogrepo "github.com/dma-portal/association-api/internal/adapters/memory/adminlogrepo"
	memcandidaterepo "github.com/dma-portal/association-api/internal/adapters/memory/candidaterepo"
	memclock "github.com/dma-portal/association-api/internal/adapters/memory/clock"
	memidempotency "github.com/dma-portal/association-api/internal/adapters/memory/idempotency"
	memmemberrepo "github.com/dma-portal/association-api/internal/adapters/memory/memberrepo"
	memrevocation "github.com/dma-portal/association-api/internal/adapters/memory/revocation"
	memsettingsrepo "github.com/dma-portal/association-api/internal/adapters/memory/settingsrepo"
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
)

const adminPassword = "Admin@02223"

type testAPI struct {
	srv  *httptest.Server
	idem *memidempotency.Store
	clk  *memclock.ManualClock
}

// newTestAPI wires every service over the memory backend and seeds the demo data.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	clk := memclock.NewManualClock(time.Now().UTC().Truncate(time.Second))
	memberRepo := memmemberrepo.NewRepo()
	candidateRepo := memcandidaterepo.NewRepo()
	idem := memidempotency.NewStore()
	hasher := passwords.NewHasher(bcrypt.MinCost)
	gen := credentials.New()

	audit := auditlog.NewService(memadminlogrepo.NewRepo(), clk, nil)
	settingsSvc := settings.NewService(memsettingsrepo.NewRepo(), clk, audit, nil)
	tokens := sessiontoken.NewWithOptions(config.SessionConfig{
		Secret: []byte("httpapi-test-secret"),
		Issuer: "association-api",
		TTL:    time.Hour,
	}, clk)

	svcs := Services{
		Sessions:   sessions.NewService(memberRepo, memrevocation.NewStore(clk), tokens, hasher, settingsSvc, audit, clk, nil),
		Members:    members.NewService(memberRepo, clk, gen, hasher, audit, nil),
		Candidates: candidates.NewService(candidateRepo, clk, audit, nil),
		Voting:     voting.NewService(memberRepo, candidateRepo, clk, nil, voting.Options{}),
		AuditLog:   audit,
		Settings:   settingsSvc,
	}

	runner := bootstrap.NewRunner(memberRepo, candidateRepo, settingsSvc, hasher, gen, clk, nil)
	if _, err := runner.Run(context.Background(), bootstrap.Options{AdminPassword: adminPassword, Demo: true}); err != nil {
		t.Fatalf("bootstrap err=%v", err)
	}

	h := NewRouterWithOptions(NewServer(svcs, idem, nil), RouterOptions{RequestTimeout: 5 * time.Second})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, idem: idem, clk: clk}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, hdr map[string]string) (int, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := a.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func (a *testAPI) login(t *testing.T, identifier, password string) string {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Identifier: identifier, Password: password}, nil)
	if status != http.StatusOK {
		t.Fatalf("login(%s) status=%d body=%s", identifier, status, body)
	}
	return mustUnmarshal[LoginResponse](t, body).Token
}

func (a *testAPI) candidateID(t *testing.T, name string) string {
	t.Helper()
	status, body := a.do(t, http.MethodGet, "/candidates", "", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("candidates status=%d body=%s", status, body)
	}
	for _, c := range mustUnmarshal[CandidatesResponse](t, body).Candidates {
		if c.Name == name {
			return c.Id
		}
	}
	t.Fatalf("candidate %q not found", name)
	return ""
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
	got := mustUnmarshal[ErrorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}
