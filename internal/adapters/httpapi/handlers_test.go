package httpapi

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	status, body := api.do(t, http.MethodGet, "/healthz", "", nil, nil)
	if status != http.StatusOK || string(body) != "ok" {
		t.Fatalf("status=%d body=%s", status, body)
	}
}

func TestAuth_LoginMeLogout(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	status, body := api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Identifier: "alice@example.com", Password: "nope"}, nil)
	requireErrorCode(t, status, body, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	status, body = api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Identifier: "charlie@example.com", Password: "password123"}, nil)
	requireErrorCode(t, status, body, http.StatusForbidden, "PENDING_APPROVAL")

	token := api.login(t, "ALICE@example.com", "password123")

	status, body = api.do(t, http.MethodGet, "/auth/me", token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("me status=%d body=%s", status, body)
	}
	me := mustUnmarshal[MeResponse](t, body)
	if me.Member.Id != "mem1" || me.Role != "member" || me.Member.MembershipDate.Format("2006-01-02") != "2023-01-15" {
		t.Fatalf("me=%+v", me)
	}

	status, _ = api.do(t, http.MethodPost, "/auth/logout", token, nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("logout status=%d", status)
	}
	status, body = api.do(t, http.MethodGet, "/auth/me", token, nil, nil)
	requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestAuth_MalformedHeaderAndAnonymous(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	status, body := api.do(t, http.MethodGet, "/candidates", "", nil, map[string]string{"Authorization": "Basic abc"})
	requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")

	status, body = api.do(t, http.MethodGet, "/auth/me", "not-a-token", nil, nil)
	requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")

	// Public reads need no token at all.
	status, body = api.do(t, http.MethodGet, "/results", "", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("results status=%d body=%s", status, body)
	}
	status, body = api.do(t, http.MethodGet, "/auth/me", "", nil, nil)
	requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestVotes_SuccessThenAlreadyVoted(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	diana := api.candidateID(t, "Diana Prince")
	token := api.login(t, "mem1", "password123")

	status, body := api.do(t, http.MethodPost, "/votes", token, CastVoteRequest{CandidateId: diana}, nil)
	if status != http.StatusCreated {
		t.Fatalf("vote status=%d body=%s", status, body)
	}
	if got := mustUnmarshal[CastVoteResponse](t, body).Tally.Votes; got != 121 {
		t.Fatalf("votes=%d, want 121", got)
	}

	status, body = api.do(t, http.MethodPost, "/votes", token, CastVoteRequest{CandidateId: diana}, nil)
	requireErrorCode(t, status, body, http.StatusConflict, "ALREADY_VOTED")

	// mem2 voted before the election opened here.
	bob := api.login(t, "bob@example.com", "password123")
	status, body = api.do(t, http.MethodPost, "/votes", bob, CastVoteRequest{CandidateId: api.candidateID(t, "Clark Kent")}, nil)
	requireErrorCode(t, status, body, http.StatusConflict, "ALREADY_VOTED")

	status, body = api.do(t, http.MethodGet, "/results", "", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("results status=%d", status)
	}
	res := mustUnmarshal[ResultsResponse](t, body)
	if res.TotalVotes != 366 || res.MembersVoted != 2 {
		t.Fatalf("results=%+v", res)
	}
}

func TestVotes_IdempotentReplay(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	diana := api.candidateID(t, "Diana Prince")
	token := api.login(t, "mem1", "password123")
	hdr := map[string]string{"Idempotency-Key": "vote-1"}

	status, first := api.do(t, http.MethodPost, "/votes", token, CastVoteRequest{CandidateId: diana}, hdr)
	if status != http.StatusCreated {
		t.Fatalf("vote status=%d body=%s", status, first)
	}
	status, second := api.do(t, http.MethodPost, "/votes", token, CastVoteRequest{CandidateId: diana}, hdr)
	if status != http.StatusCreated || string(second) != string(first) {
		t.Fatalf("replay status=%d body=%s, want %s", status, second, first)
	}

	status, body := api.do(t, http.MethodPost, "/votes", token, CastVoteRequest{CandidateId: api.candidateID(t, "Bruce Wayne")}, hdr)
	requireErrorCode(t, status, body, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE")
}

func TestVotes_AdminAndAnonymousRejected(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	diana := api.candidateID(t, "Diana Prince")

	status, body := api.do(t, http.MethodPost, "/votes", "", CastVoteRequest{CandidateId: diana}, nil)
	requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")

	admin := api.login(t, "admin", adminPassword)
	status, body = api.do(t, http.MethodPost, "/votes", admin, CastVoteRequest{CandidateId: diana}, nil)
	requireErrorCode(t, status, body, http.StatusForbidden, "UNAUTHORIZED")

	member := api.login(t, "mem1", "password123")
	status, body = api.do(t, http.MethodPost, "/votes", member, CastVoteRequest{CandidateId: "nope"}, nil)
	requireErrorCode(t, status, body, http.StatusServiceUnavailable, "VOTE_FAILED")
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	member := api.login(t, "mem1", "password123")

	status, body := api.do(t, http.MethodGet, "/admin/members", member, nil, nil)
	requireErrorCode(t, status, body, http.StatusForbidden, "UNAUTHORIZED")
	status, body = api.do(t, http.MethodGet, "/admin/logs", "", nil, nil)
	requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestAdmin_MemberLifecycle(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	admin := api.login(t, "contact@dma.org", adminPassword)

	status, body := api.do(t, http.MethodGet, "/admin/members?status=pending", admin, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("list status=%d body=%s", status, body)
	}
	pending := mustUnmarshal[MembersResponse](t, body).Members
	if len(pending) != 1 || pending[0].Id != "mem3" {
		t.Fatalf("pending=%+v", pending)
	}

	status, body = api.do(t, http.MethodPost, "/admin/members/mem3/approve", admin, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("approve status=%d body=%s", status, body)
	}
	status, body = api.do(t, http.MethodPost, "/admin/members/mem3/approve", admin, nil, nil)
	requireErrorCode(t, status, body, http.StatusConflict, "ALREADY_ACTIVE")
	api.login(t, "mem3", "password123")

	status, body = api.do(t, http.MethodPost, "/admin/members/mem3/credentials", admin, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("regenerate status=%d body=%s", status, body)
	}
	creds := mustUnmarshal[CredentialsResponse](t, body).Credentials
	if creds.Member.Id != "mem3" || len(creds.Password) != 8 {
		t.Fatalf("creds=%+v", creds)
	}
	api.login(t, "mem3", creds.Password)

	api.clk.Advance(time.Second)
	status, _ = api.do(t, http.MethodDelete, "/admin/members/mem3", admin, nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete status=%d", status)
	}
	status, body = api.do(t, http.MethodDelete, "/admin/members/mem3", admin, nil, nil)
	requireErrorCode(t, status, body, http.StatusNotFound, "MEMBER_NOT_FOUND")

	status, body = api.do(t, http.MethodGet, "/admin/logs?limit=2", admin, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("logs status=%d body=%s", status, body)
	}
	logs := mustUnmarshal[AdminLogsResponse](t, body).Logs
	if len(logs) != 2 || logs[0].Action != "Deleted member: Charlie Brown" || logs[0].Admin != "Admin User" {
		t.Fatalf("logs=%+v", logs)
	}
}

func TestAdmin_ImportAppendAndReplay(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	admin := api.login(t, "admin", adminPassword)
	req := ImportRequest{
		Members: []ImportRecord{
			{Name: "Dana Scully", Affiliation: "Slytherin", Email: "dana@example.com"},
			{Name: "Dana Dup", Affiliation: "Slytherin", Email: "DANA@example.com"},
			{Name: "Alice Again", Affiliation: "Gryffindor", Email: "alice@example.com"},
			{Name: "Fox Mulder", Affiliation: "Slytherin", Email: "fox@example.com"},
		},
	}
	hdr := map[string]string{"Idempotency-Key": "import-1"}

	status, first := api.do(t, http.MethodPost, "/admin/members/import", admin, req, hdr)
	if status != http.StatusCreated {
		t.Fatalf("import status=%d body=%s", status, first)
	}
	res := mustUnmarshal[ImportResponse](t, first)
	if res.Mode != "append" || len(res.Imported) != 2 || len(res.SkippedDuplicates) != 1 || len(res.SkippedExisting) != 1 {
		t.Fatalf("import=%+v", res)
	}
	for _, c := range res.Imported {
		if !strings.HasPrefix(c.Member.Id, "DMA-") || c.Member.Status != "Active" {
			t.Fatalf("member=%+v", c.Member)
		}
	}
	api.login(t, res.Imported[0].Member.Id, res.Imported[0].Password)

	// A replay creates nothing and does not hand the generated passwords out again.
	status, second := api.do(t, http.MethodPost, "/admin/members/import", admin, req, hdr)
	requireErrorCode(t, status, second, http.StatusConflict, "IMPORT_ALREADY_APPLIED")
	for _, c := range res.Imported {
		if strings.Contains(string(second), c.Password) {
			t.Fatalf("replay leaked a password: %s", second)
		}
	}
	replayed := mustUnmarshal[ErrorResponse](t, second)
	ids, _ := replayed.Error.Details.MustGet()["memberIds"].([]any)
	if len(ids) != 2 || ids[0] != res.Imported[0].Member.Id {
		t.Fatalf("details=%+v", replayed.Error.Details)
	}
	status, body := api.do(t, http.MethodGet, "/admin/members", admin, nil, nil)
	if status != http.StatusOK || len(mustUnmarshal[MembersResponse](t, body).Members) != 6 {
		t.Fatalf("list status=%d body=%s", status, body)
	}

	req.Members = req.Members[:1]
	status, body = api.do(t, http.MethodPost, "/admin/members/import", admin, req, hdr)
	requireErrorCode(t, status, body, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE")
}

func TestAdmin_ImportReplayStoresNoPasswords(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	admin := api.login(t, "admin", adminPassword)
	req := ImportRequest{Members: []ImportRecord{{Name: "Dana Scully", Affiliation: "Slytherin", Email: "dana@example.com"}}}

	status, body := api.do(t, http.MethodPost, "/admin/members/import", admin, req, map[string]string{"Idempotency-Key": "k1"})
	if status != http.StatusCreated {
		t.Fatalf("import status=%d body=%s", status, body)
	}
	imported := mustUnmarshal[ImportResponse](t, body).Imported[0]

	status, body = api.do(t, http.MethodPost, "/admin/members/"+imported.Member.Id+"/credentials", admin, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("regenerate status=%d body=%s", status, body)
	}
	regenerated := mustUnmarshal[CredentialsResponse](t, body).Credentials.Password

	status, body = api.do(t, http.MethodPost, "/admin/members/import", admin, req, map[string]string{"Idempotency-Key": "k1"})
	requireErrorCode(t, status, body, http.StatusConflict, "IMPORT_ALREADY_APPLIED")
	if strings.Contains(string(body), imported.Password) {
		t.Fatalf("replay served the original password: %s", body)
	}
	for _, raw := range api.idem.Bodies() {
		if strings.Contains(string(raw), imported.Password) {
			t.Fatalf("idempotency store holds a plaintext password: %s", raw)
		}
	}
	api.login(t, imported.Member.Id, regenerated)
}

func TestAdmin_ImportDropsInvalidRows(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	admin := api.login(t, "admin", adminPassword)

	status, body := api.do(t, http.MethodPost, "/admin/members/import", admin, ImportRequest{
		Members: []ImportRecord{
			{Name: "Dana Scully", Affiliation: "Slytherin", Email: "dana@example.com"},
			{Name: "", Affiliation: "Slytherin", Email: "nameless@example.com"},
		},
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("import status=%d body=%s", status, body)
	}
	res := mustUnmarshal[ImportResponse](t, body)
	if len(res.Imported) != 1 || len(res.SkippedInvalid) != 1 || res.SkippedInvalid[0].Row != 2 {
		t.Fatalf("import=%+v", res)
	}
}

func TestAdmin_ImportReplace(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	admin := api.login(t, "admin", adminPassword)

	status, body := api.do(t, http.MethodPost, "/admin/members/import", admin, ImportRequest{
		Mode:    "replace",
		Members: []ImportRecord{{Name: "Dana Scully", Affiliation: "Slytherin", Email: "dana@example.com"}},
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("import status=%d body=%s", status, body)
	}
	res := mustUnmarshal[ImportResponse](t, body)
	if res.Mode != "replace" || len(res.Imported) != 1 {
		t.Fatalf("import=%+v", res)
	}

	// Replace removed the old roster, including Alice.
	status, body = api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Identifier: "mem1", Password: "password123"}, nil)
	requireErrorCode(t, status, body, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	api.login(t, "dana@example.com", res.Imported[0].Password)
}

func TestAdmin_ImportValidationAndClearConfirm(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	admin := api.login(t, "admin", adminPassword)

	status, body := api.do(t, http.MethodPost, "/admin/members/import", admin, ImportRequest{
		Members: []ImportRecord{{Name: "", Affiliation: "X", Email: "bad"}},
	}, nil)
	requireErrorCode(t, status, body, http.StatusUnprocessableEntity, "IMPORT_VALIDATION_FAILED")

	status, body = api.do(t, http.MethodDelete, "/admin/members", admin, nil, nil)
	requireErrorCode(t, status, body, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	status, body = api.do(t, http.MethodDelete, "/admin/members?confirm=true", admin, nil, nil)
	if status != http.StatusOK || mustUnmarshal[CountResponse](t, body).Count != 4 {
		t.Fatalf("clear status=%d body=%s", status, body)
	}
}

func TestSignupAndSettings(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)

	status, body := api.do(t, http.MethodPost, "/members/signup", "", map[string]any{
		"name": "Gina", "affiliation": "Gryffindor", "email": "not-an-email", "password": "longenough",
	}, nil)
	requireErrorCode(t, status, body, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	status, body = api.do(t, http.MethodPost, "/members/signup", "", map[string]any{
		"name": "Gina", "affiliation": "Gryffindor", "email": "gina@example.com", "password": "longenough",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("signup status=%d body=%s", status, body)
	}
	if m := mustUnmarshal[MemberResponse](t, body).Member; m.Status != "Pending" {
		t.Fatalf("member=%+v", m)
	}
	status, body = api.do(t, http.MethodPost, "/members/signup", "", map[string]any{
		"name": "Gina2", "affiliation": "Gryffindor", "email": "GINA@example.com", "password": "longenough",
	}, nil)
	requireErrorCode(t, status, body, http.StatusConflict, "DUPLICATE_EMAIL")

	admin := api.login(t, "admin", adminPassword)
	status, body = api.do(t, http.MethodPut, "/admin/settings", admin, map[string]any{
		"contactEmail":  "alice@example.com",
		"membershipFee": "200.50",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("settings status=%d body=%s", status, body)
	}

	// Alice now holds the contact email and resolves to admin on her next request.
	alice := api.login(t, "mem1", "password123")
	status, body = api.do(t, http.MethodGet, "/auth/me", alice, nil, nil)
	if status != http.StatusOK || mustUnmarshal[MeResponse](t, body).Role != "admin" {
		t.Fatalf("me status=%d body=%s", status, body)
	}

	status, body = api.do(t, http.MethodGet, "/settings", "", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("get settings status=%d", status)
	}
	st := mustUnmarshal[SettingsResponse](t, body).Settings
	if st.ContactEmail != "alice@example.com" || st.MembershipFee.String() != "200.5" {
		t.Fatalf("settings=%+v", st)
	}
}

func TestAdmin_CandidateCRUD(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	admin := api.login(t, "admin", adminPassword)

	status, body := api.do(t, http.MethodPost, "/admin/candidates", admin, map[string]any{
		"name": "Barry Allen", "position": "Treasurer",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", status, body)
	}
	c := mustUnmarshal[CandidateResponse](t, body).Candidate
	if c.Votes != 0 || !c.PhotoUrl.IsNull() {
		t.Fatalf("candidate=%+v", c)
	}

	status, body = api.do(t, http.MethodPatch, "/admin/candidates/"+c.Id, admin, map[string]any{
		"photoUrl": "https://img.example/barry.png",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("patch status=%d body=%s", status, body)
	}
	c = mustUnmarshal[CandidateResponse](t, body).Candidate
	if photo, _ := c.PhotoUrl.Get(); photo != "https://img.example/barry.png" || c.Name != "Barry Allen" {
		t.Fatalf("candidate=%+v", c)
	}

	status, _ = api.do(t, http.MethodDelete, "/admin/candidates/"+c.Id, admin, nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete status=%d", status)
	}
	status, body = api.do(t, http.MethodDelete, "/admin/candidates/"+c.Id, admin, nil, nil)
	requireErrorCode(t, status, body, http.StatusNotFound, "CANDIDATE_NOT_FOUND")
}

func TestAuth_ChangePasswordEndsSession(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.login(t, "mem1", "password123")
	api.clk.Advance(time.Second)

	status, body := api.do(t, http.MethodPost, "/auth/password", token, ChangePasswordRequest{
		CurrentPassword: "password123",
		NewPassword:     "correct-horse",
	}, nil)
	if status != http.StatusNoContent {
		t.Fatalf("change status=%d body=%s", status, body)
	}
	status, body = api.do(t, http.MethodGet, "/auth/me", token, nil, nil)
	requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")

	fresh := api.login(t, "mem1", "correct-horse")
	if status, _ := api.do(t, http.MethodGet, "/auth/me", fresh, nil, nil); status != http.StatusOK {
		t.Fatalf("fresh session status=%d", status)
	}
}
