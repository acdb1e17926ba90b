package memberrepo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/memberrepo"
)

func newMember(id, name, email string) memberrepo.Member {
	now := time.Unix(100, 0).UTC()
	return memberrepo.Member{
		ID:          domain.MemberID(id),
		Name:        name,
		Affiliation: "Tech House",
		Email:       email,
		Status:      domain.MemberStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRepo_CreateAndGet(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	m := newMember("m1", "Alice Smith", "alice@example.com")
	m.PasswordHash = "hash"

	if err := r.Create(context.Background(), m); err != nil {
		t.Fatalf("Create() err=%v", err)
	}
	got, err := r.GetByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("GetByID() err=%v", err)
	}
	if got.ID != m.ID || got.Name != m.Name || got.PasswordHash != "hash" {
		t.Fatalf("GetByID()=%+v, want %+v", got, m)
	}
}

func TestRepo_CreateRejectsDuplicateIDAndEmail(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	if err := r.Create(context.Background(), newMember("m1", "A", "a@example.com")); err != nil {
		t.Fatalf("Create(m1) err=%v", err)
	}
	if err := r.Create(context.Background(), newMember("m1", "B", "b@example.com")); !errors.Is(err, memberrepo.ErrAlreadyExists) {
		t.Fatalf("Create(dup id) err=%v, want %v", err, memberrepo.ErrAlreadyExists)
	}
	if err := r.Create(context.Background(), newMember("m2", "B", "A@Example.COM")); !errors.Is(err, memberrepo.ErrEmailTaken) {
		t.Fatalf("Create(dup email) err=%v, want %v", err, memberrepo.ErrEmailTaken)
	}
}

func TestRepo_UpdateLeavesPasswordAndVoteFlagAlone(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	m := newMember("m1", "Alice", "alice@example.com")
	m.PasswordHash = "hash"
	m.HasVoted = true
	if err := r.Create(context.Background(), m); err != nil {
		t.Fatalf("Create() err=%v", err)
	}

	upd := m
	upd.Name = "Alice Z"
	upd.PasswordHash = ""
	upd.HasVoted = false
	upd.Status = domain.MemberStatusPending
	if err := r.Update(context.Background(), upd); err != nil {
		t.Fatalf("Update() err=%v", err)
	}
	got, _ := r.GetByID(context.Background(), "m1")
	if got.Name != "Alice Z" || got.Status != domain.MemberStatusPending {
		t.Fatalf("profile not updated: %+v", got)
	}
	if got.PasswordHash != "hash" || !got.HasVoted {
		t.Fatalf("Update touched password/vote flag: %+v", got)
	}

	if err := r.Update(context.Background(), newMember("nope", "X", "x@example.com")); !errors.Is(err, memberrepo.ErrNotFound) {
		t.Fatalf("Update(missing) err=%v, want %v", err, memberrepo.ErrNotFound)
	}
}

func TestRepo_ListFiltersAndSearches(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	pending := newMember("m3", "Charlie", "charlie@example.com")
	pending.Status = domain.MemberStatusPending
	_ = r.Create(ctx, newMember("m2", "bob", "bob@example.com"))
	_ = r.Create(ctx, newMember("m1", "Alice", "alice@example.com"))
	_ = r.Create(ctx, pending)

	all, err := r.List(ctx, memberrepo.Filter{})
	if err != nil {
		t.Fatalf("List() err=%v", err)
	}
	if len(all) != 3 || all[0].ID != "m1" || all[1].ID != "m2" || all[2].ID != "m3" {
		t.Fatalf("List() order=%v", all)
	}

	got, _ := r.List(ctx, memberrepo.Filter{Status: domain.MemberStatusPending})
	if len(got) != 1 || got[0].ID != "m3" {
		t.Fatalf("List(pending)=%v", got)
	}

	got, _ = r.List(ctx, memberrepo.Filter{Query: "BOB@"})
	if len(got) != 1 || got[0].ID != "m2" {
		t.Fatalf("List(q=BOB@)=%v", got)
	}
}

func TestRepo_FindByLogin_EmailOrIDCaseInsensitive(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	_ = r.Create(ctx, newMember("admin", "Admin", "contact@dma.org"))
	_ = r.Create(ctx, newMember("DMA-1", "Alice", "alice@example.com"))

	for _, ident := range []string{"ADMIN", "Contact@DMA.org", "dma-1", " alice@example.com "} {
		got, err := r.FindByLogin(ctx, ident)
		if err != nil {
			t.Fatalf("FindByLogin(%q) err=%v", ident, err)
		}
		if len(got) != 1 {
			t.Fatalf("FindByLogin(%q) len=%d, want 1", ident, len(got))
		}
	}
	got, _ := r.FindByLogin(ctx, "")
	if len(got) != 0 {
		t.Fatalf("FindByLogin(empty) len=%d", len(got))
	}
}

func TestRepo_InsertBatchIsAllOrNothing(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	_ = r.Create(ctx, newMember("m1", "Alice", "alice@example.com"))

	err := r.InsertBatch(ctx, []memberrepo.Member{
		newMember("m2", "Bob", "bob@example.com"),
		newMember("m3", "Alice Again", "ALICE@example.com"),
	})
	if !errors.Is(err, memberrepo.ErrEmailTaken) {
		t.Fatalf("InsertBatch err=%v, want %v", err, memberrepo.ErrEmailTaken)
	}
	if n, _ := r.Count(ctx); n != 1 {
		t.Fatalf("Count=%d after failed batch, want 1", n)
	}
}

func TestRepo_ReplaceAllRestoresOnFailure(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	_ = r.Create(ctx, newMember("m1", "Alice", "alice@example.com"))

	err := r.ReplaceAll(ctx, []memberrepo.Member{
		newMember("n1", "Nina", "nina@example.com"),
		newMember("n1", "Nina Dup", "nina2@example.com"),
	})
	if !errors.Is(err, memberrepo.ErrAlreadyExists) {
		t.Fatalf("ReplaceAll err=%v, want %v", err, memberrepo.ErrAlreadyExists)
	}
	if _, err := r.GetByID(ctx, "m1"); err != nil {
		t.Fatalf("original member lost after failed replace: %v", err)
	}

	if err := r.ReplaceAll(ctx, []memberrepo.Member{newMember("n1", "Nina", "alice@example.com")}); err != nil {
		t.Fatalf("ReplaceAll err=%v", err)
	}
	if _, err := r.GetByID(ctx, "m1"); !errors.Is(err, memberrepo.ErrNotFound) {
		t.Fatalf("expected m1 removed, err=%v", err)
	}
}

func TestRepo_MarkVoted_ConcurrentCallsSucceedOnce(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	_ = r.Create(ctx, newMember("m1", "Alice", "alice@example.com"))

	const workers = 32
	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.MarkVoted(ctx, "m1", time.Unix(200, 0).UTC())
			if err == nil {
				ok.Add(1)
			} else if !errors.Is(err, memberrepo.ErrAlreadyVoted) {
				t.Errorf("MarkVoted err=%v", err)
			}
		}()
	}
	wg.Wait()

	if got := ok.Load(); got != 1 {
		t.Fatalf("successful MarkVoted=%d, want 1", got)
	}
}
