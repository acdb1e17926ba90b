package contracttest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dma-portal/association-api/internal/domain"
	adminlogrepoport "github.com/dma-portal/association-api/internal/ports/out/adminlogrepo"
	ballotport "github.com/dma-portal/association-api/internal/ports/out/ballot"
	candidaterepoport "github.com/dma-portal/association-api/internal/ports/out/candidaterepo"
	idempotencyport "github.com/dma-portal/association-api/internal/ports/out/idempotency"
	memberrepoport "github.com/dma-portal/association-api/internal/ports/out/memberrepo"
	revocationport "github.com/dma-portal/association-api/internal/ports/out/revocation"
	settingsrepoport "github.com/dma-portal/association-api/internal/ports/out/settingsrepo"
)

type CleanupFunc = func()

type MemberRepoFactory func(t *testing.T) (memberrepoport.Repository, CleanupFunc)
type CandidateRepoFactory func(t *testing.T) (candidaterepoport.Repository, CleanupFunc)
type AdminLogRepoFactory func(t *testing.T) (adminlogrepoport.Repository, CleanupFunc)
type SettingsRepoFactory func(t *testing.T) (settingsrepoport.Repository, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)
type RevocationStoreFactory func(t *testing.T) (revocationport.Store, CleanupFunc)

// BallotFactory returns a recorder together with the repositories it writes through.
type BallotFactory func(t *testing.T) (ballotport.Recorder, memberrepoport.Repository, candidaterepoport.Repository, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:      idempotencyport.Key("k-" + uuid.NewString()),
		Actor:    domain.MemberID("mem-1"),
		Method:   "POST",
		Route:    "/admin/members/import",
		BodyHash: "",
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get before Put: ok=%v err=%v", ok, err)
	}

	rec := idempotencyport.Record{
		StatusCode:  201,
		ContentType: "application/json",
		Body:        []byte(`{"inserted":[]}`),
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != `{"inserted":[]}` || got.ContentType != "application/json" || got.StatusCode != 201 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte(`{"inserted":[1]}`)
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != `{"inserted":[1]}` {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}

	// Same key from another actor or route is a different request.
	other := fp
	other.Actor = "mem-2"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("expected miss for other actor, ok=%v err=%v", ok, err)
	}
	other = fp
	other.BodyHash = "different"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("expected miss for other body, ok=%v err=%v", ok, err)
	}

	// A record past the default retention window is gone.
	stale := fp
	stale.Key = idempotencyport.Key("k-" + uuid.NewString())
	old := rec
	old.CreatedAt = time.Now().UTC().Add(-2 * idempotencyport.DefaultRetention)
	if err := store.Put(ctx, stale, old); err != nil {
		t.Fatalf("Put stale: %v", err)
	}
	if _, ok, err := store.Get(ctx, stale); err != nil || ok {
		t.Fatalf("expected miss for expired record, ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || !ok {
		t.Fatalf("fresh record lost: ok=%v err=%v", ok, err)
	}
}

func memberFixture(id, name, email string, status domain.MemberStatus, now time.Time) memberrepoport.Member {
	return memberrepoport.Member{
		ID:             domain.MemberID(id),
		Name:           name,
		Affiliation:    "House System",
		Email:          email,
		PasswordHash:   "hash-" + id,
		Status:         status,
		MembershipDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func RunMemberRepo(t *testing.T, newRepo MemberRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	alice := memberFixture("DMA-a", "Alice Johnson", "alice@example.com", domain.MemberStatusActive, now)
	if err := repo.Create(ctx, alice); err != nil {
		t.Fatalf("Create alice: %v", err)
	}
	got, err := repo.GetByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Email != alice.Email || got.PasswordHash != alice.PasswordHash || got.Status != domain.MemberStatusActive || !got.MembershipDate.Equal(now) {
		t.Fatalf("unexpected member: %#v", got)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("GetByID(missing) err=%v", err)
	}

	// Uniqueness: id, and email case-insensitively.
	if err := repo.Create(ctx, memberFixture("DMA-a", "Other", "other@example.com", domain.MemberStatusActive, now)); !errors.Is(err, memberrepoport.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := repo.Create(ctx, memberFixture("DMA-x", "Other", "ALICE@example.com", domain.MemberStatusActive, now)); !errors.Is(err, memberrepoport.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	bob := memberFixture("DMA-b", "bob", "bob@example.com", domain.MemberStatusActive, now)
	charlie := memberFixture("DMA-c", "Charlie", "charlie@example.com", domain.MemberStatusPending, now)
	if err := repo.InsertBatch(ctx, []memberrepoport.Member{bob, charlie}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n, err := repo.Count(ctx); err != nil || n != 3 {
		t.Fatalf("Count: n=%d err=%v", n, err)
	}

	// All-or-nothing batch.
	if err := repo.InsertBatch(ctx, []memberrepoport.Member{
		memberFixture("DMA-d", "Dana", "dana@example.com", domain.MemberStatusActive, now),
		memberFixture("DMA-e", "Eve", "Bob@Example.com", domain.MemberStatusActive, now),
	}); !errors.Is(err, memberrepoport.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken from batch, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "DMA-d"); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("partial batch persisted: err=%v", err)
	}

	existing, err := repo.ExistingEmails(ctx, []string{"alice@example.com", "nobody@example.com", "bob@example.com"})
	if err != nil {
		t.Fatalf("ExistingEmails: %v", err)
	}
	if !existing["alice@example.com"] || !existing["bob@example.com"] || existing["nobody@example.com"] {
		t.Fatalf("unexpected existing emails: %v", existing)
	}

	// Deterministic list ordering by name (case-insensitive), filters.
	all, err := repo.List(ctx, memberrepoport.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != alice.ID || all[1].ID != bob.ID || all[2].ID != charlie.ID {
		t.Fatalf("unexpected ordering: %#v", all)
	}
	pending, err := repo.List(ctx, memberrepoport.Filter{Status: domain.MemberStatusPending})
	if err != nil || len(pending) != 1 || pending[0].ID != charlie.ID {
		t.Fatalf("List(pending)=%#v err=%v", pending, err)
	}
	search, err := repo.List(ctx, memberrepoport.Filter{Query: "JOHN"})
	if err != nil || len(search) != 1 || search[0].ID != alice.ID {
		t.Fatalf("List(q=JOHN)=%#v err=%v", search, err)
	}

	// Login lookup by id or email, case-insensitively.
	byLogin, err := repo.FindByLogin(ctx, "dma-B")
	if err != nil || len(byLogin) != 1 || byLogin[0].ID != bob.ID {
		t.Fatalf("FindByLogin(id)=%#v err=%v", byLogin, err)
	}
	byLogin, err = repo.FindByLogin(ctx, "Alice@Example.com")
	if err != nil || len(byLogin) != 1 || byLogin[0].ID != alice.ID {
		t.Fatalf("FindByLogin(email)=%#v err=%v", byLogin, err)
	}

	// Update writes profile fields only.
	later := now.Add(time.Minute)
	upd := charlie
	upd.Status = domain.MemberStatusActive
	upd.PasswordHash = "ignored"
	upd.UpdatedAt = later
	if err := repo.Update(ctx, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = repo.GetByID(ctx, charlie.ID)
	if got.Status != domain.MemberStatusActive || got.PasswordHash != charlie.PasswordHash {
		t.Fatalf("unexpected after update: %#v", got)
	}
	clash := bob
	clash.Email = "alice@EXAMPLE.com"
	if err := repo.Update(ctx, clash); !errors.Is(err, memberrepoport.ErrEmailTaken) {
		t.Fatalf("Update(email clash) err=%v", err)
	}

	// Passwords.
	if err := repo.SetPasswordHash(ctx, alice.ID, "new-hash", later); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}
	if err := repo.SetPasswordHash(ctx, "missing", "x", later); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("SetPasswordHash(missing) err=%v", err)
	}
	updated, err := repo.SetPasswordHashes(ctx, map[domain.MemberID]string{
		alice.ID:  "bulk-a",
		bob.ID:    "bulk-b",
		"missing": "bulk-x",
	}, later)
	if err != nil {
		t.Fatalf("SetPasswordHashes: %v", err)
	}
	if len(updated) != 2 {
		t.Fatalf("SetPasswordHashes updated=%v, want alice and bob", updated)
	}
	got, _ = repo.GetByID(ctx, bob.ID)
	if got.PasswordHash != "bulk-b" || !got.PasswordChangedAt.Equal(later) {
		t.Fatalf("bob after bulk set=%#v", got)
	}
	got, _ = repo.GetByID(ctx, charlie.ID)
	if !got.PasswordChangedAt.IsZero() {
		t.Fatalf("charlie PasswordChangedAt=%v, want zero", got.PasswordChangedAt)
	}

	// Vote flag: conditional set, compensation, bulk reset.
	if err := repo.MarkVoted(ctx, alice.ID, later); err != nil {
		t.Fatalf("MarkVoted: %v", err)
	}
	if err := repo.MarkVoted(ctx, alice.ID, later); !errors.Is(err, memberrepoport.ErrAlreadyVoted) {
		t.Fatalf("second MarkVoted err=%v", err)
	}
	if err := repo.MarkVoted(ctx, "missing", later); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("MarkVoted(missing) err=%v", err)
	}
	if n, err := repo.CountVoted(ctx); err != nil || n != 1 {
		t.Fatalf("CountVoted n=%d err=%v", n, err)
	}
	if err := repo.ClearVoted(ctx, alice.ID, later); err != nil {
		t.Fatalf("ClearVoted: %v", err)
	}
	if err := repo.MarkVoted(ctx, alice.ID, later); err != nil {
		t.Fatalf("MarkVoted after clear: %v", err)
	}
	if err := repo.MarkVoted(ctx, bob.ID, later); err != nil {
		t.Fatalf("MarkVoted bob: %v", err)
	}
	if n, err := repo.ResetVotes(ctx, later); err != nil || n != 2 {
		t.Fatalf("ResetVotes n=%d err=%v", n, err)
	}
	if n, err := repo.CountVoted(ctx); err != nil || n != 0 {
		t.Fatalf("CountVoted after reset n=%d err=%v", n, err)
	}

	// Concurrent MarkVoted for one member succeeds exactly once.
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.MarkVoted(ctx, charlie.ID, later); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("concurrent MarkVoted wins=%d, want 1", wins.Load())
	}

	// Delete and replace.
	if err := repo.Delete(ctx, bob.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, bob.ID); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("Delete twice err=%v", err)
	}
	// The freed email is reusable.
	if err := repo.Create(ctx, memberFixture("DMA-b2", "Bob Again", "BOB@example.com", domain.MemberStatusActive, now)); err != nil {
		t.Fatalf("Create with freed email: %v", err)
	}

	replacement := []memberrepoport.Member{
		memberFixture("DMA-r1", "Rita", "alice@example.com", domain.MemberStatusActive, later),
		memberFixture("DMA-r2", "Ravi", "ravi@example.com", domain.MemberStatusActive, later),
	}
	if err := repo.ReplaceAll(ctx, replacement); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	all, err = repo.List(ctx, memberrepoport.Filter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("List after replace=%#v err=%v", all, err)
	}

	n, err := repo.DeleteAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("DeleteAll n=%d err=%v", n, err)
	}
	if n, err := repo.Count(ctx); err != nil || n != 0 {
		t.Fatalf("Count after DeleteAll n=%d err=%v", n, err)
	}
}

func RunCandidateRepo(t *testing.T, newRepo CandidateRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	mk := func(name, position string, votes int64) candidaterepoport.Candidate {
		return candidaterepoport.Candidate{
			ID:        domain.CandidateID(uuid.NewString()),
			Name:      name,
			Position:  position,
			Votes:     votes,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	diana := mk("Diana Prince", "President", 120)
	bruce := mk("Bruce Wayne", "President", 95)
	clark := mk("Clark Kent", "Vice President", 150)
	for _, c := range []candidaterepoport.Candidate{diana, bruce, clark} {
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create %s: %v", c.Name, err)
		}
	}
	if err := repo.Create(ctx, diana); !errors.Is(err, candidaterepoport.ErrAlreadyExists) {
		t.Fatalf("Create dup err=%v", err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].ID != bruce.ID || list[1].ID != diana.ID || list[2].ID != clark.ID {
		t.Fatalf("unexpected ordering: %#v", list)
	}
	if n, err := repo.Count(ctx); err != nil || n != 3 {
		t.Fatalf("Count n=%d err=%v", n, err)
	}

	// Update never touches votes.
	upd := diana
	upd.Name = "Diana of Themyscira"
	upd.Votes = 0
	if err := repo.Update(ctx, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := repo.GetByID(ctx, diana.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Diana of Themyscira" || got.Votes != 120 {
		t.Fatalf("unexpected after update: %#v", got)
	}

	v, err := repo.IncrementVotes(ctx, diana.ID, 1)
	if err != nil || v != 121 {
		t.Fatalf("IncrementVotes v=%d err=%v", v, err)
	}
	if _, err := repo.IncrementVotes(ctx, domain.CandidateID(uuid.NewString()), 1); !errors.Is(err, candidaterepoport.ErrNotFound) {
		t.Fatalf("IncrementVotes(missing) err=%v", err)
	}

	// Concurrent increments are conserved.
	zero := mk("Zero Seed", "Treasurer", 0)
	if err := repo.Create(ctx, zero); err != nil {
		t.Fatalf("Create zero: %v", err)
	}
	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementVotes(ctx, zero.ID, 1); err != nil {
				t.Errorf("IncrementVotes: %v", err)
			}
		}()
	}
	wg.Wait()
	got, _ = repo.GetByID(ctx, zero.ID)
	if got.Votes != n {
		t.Fatalf("votes=%d, want %d", got.Votes, n)
	}

	if err := repo.Delete(ctx, bruce.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, bruce.ID); !errors.Is(err, candidaterepoport.ErrNotFound) {
		t.Fatalf("Delete twice err=%v", err)
	}
}

func RunAdminLogRepo(t *testing.T, newRepo AdminLogRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	base := time.Unix(5000, 0).UTC()
	for i := 0; i < 5; i++ {
		if err := repo.Append(ctx, adminlogrepoport.Entry{
			ID:        domain.AdminLogID(uuid.NewString()),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Admin:     "House System",
			Action:    "action-" + string(rune('a'+i)),
		}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := repo.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len=%d, want 3", len(got))
	}
	if got[0].Action != "action-e" || got[1].Action != "action-d" || got[2].Action != "action-c" {
		t.Fatalf("unexpected order: %#v", got)
	}

	got, err = repo.ListRecent(ctx, 100)
	if err != nil || len(got) != 5 {
		t.Fatalf("ListRecent(100) len=%d err=%v", len(got), err)
	}
}

func RunSettingsRepo(t *testing.T, newRepo SettingsRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	if _, err := repo.Get(ctx); !errors.Is(err, settingsrepoport.ErrNotFound) {
		t.Fatalf("Get before Save err=%v", err)
	}

	s := domain.DefaultSiteSettings()
	s.UpdatedAt = time.Unix(1000, 0).UTC()
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ContactEmail != "contact@dma.org" || !got.MembershipFee.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected settings: %#v", got)
	}

	s.ContactEmail = "board@dma.org"
	s.MembershipFee = decimal.RequireFromString("175.50")
	s.MaintenanceMode = true
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, err = repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ContactEmail != "board@dma.org" || !got.MaintenanceMode || !got.MembershipFee.Equal(decimal.RequireFromString("175.5")) {
		t.Fatalf("unexpected settings after overwrite: %#v", got)
	}
}

func RunRevocationStore(t *testing.T, newStore RevocationStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	sid := domain.SessionID(uuid.NewString())
	if ok, err := store.IsRevoked(ctx, sid); err != nil || ok {
		t.Fatalf("IsRevoked before revoke ok=%v err=%v", ok, err)
	}
	if err := store.Revoke(ctx, sid, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if ok, err := store.IsRevoked(ctx, sid); err != nil || !ok {
		t.Fatalf("IsRevoked after revoke ok=%v err=%v", ok, err)
	}
	if ok, err := store.IsRevoked(ctx, domain.SessionID(uuid.NewString())); err != nil || ok {
		t.Fatalf("IsRevoked(other) ok=%v err=%v", ok, err)
	}
}

// RunBallotRecorder checks that a vote sets the flag and increments the tally together, or not at all.
func RunBallotRecorder(t *testing.T, newRecorder BallotFactory) {
	t.Helper()
	ctx := context.Background()

	rec, members, candidates, cleanup := newRecorder(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(3000, 0).UTC()
	voter := memberFixture("DMA-voter", "Voter", "voter@example.com", domain.MemberStatusActive, now)
	if err := members.Create(ctx, voter); err != nil {
		t.Fatalf("Create voter: %v", err)
	}
	cand := candidaterepoport.Candidate{
		ID:        domain.CandidateID(uuid.NewString()),
		Name:      "Clark Kent",
		Position:  "Vice President",
		Votes:     150,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := candidates.Create(ctx, cand); err != nil {
		t.Fatalf("Create candidate: %v", err)
	}

	// Missing candidate leaves the member's flag untouched.
	if _, err := rec.RecordVote(ctx, voter.ID, domain.CandidateID(uuid.NewString()), now); !errors.Is(err, candidaterepoport.ErrNotFound) {
		t.Fatalf("RecordVote(missing candidate) err=%v", err)
	}
	got, _ := members.GetByID(ctx, voter.ID)
	if got.HasVoted {
		t.Fatalf("flag set despite failed vote")
	}

	votes, err := rec.RecordVote(ctx, voter.ID, cand.ID, now)
	if err != nil {
		t.Fatalf("RecordVote: %v", err)
	}
	if votes != 151 {
		t.Fatalf("votes=%d, want 151", votes)
	}
	if _, err := rec.RecordVote(ctx, voter.ID, cand.ID, now); !errors.Is(err, memberrepoport.ErrAlreadyVoted) {
		t.Fatalf("second RecordVote err=%v", err)
	}
	if _, err := rec.RecordVote(ctx, "DMA-missing", cand.ID, now); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("RecordVote(missing member) err=%v", err)
	}
	c, _ := candidates.GetByID(ctx, cand.ID)
	if c.Votes != 151 {
		t.Fatalf("final votes=%d, want 151", c.Votes)
	}
}
