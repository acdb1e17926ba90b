package memberrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/memberrepo"
)

// Repo is an in-memory implementation of memberrepo.Repository.
// It is safe for concurrent use; every check-and-set happens under one lock.
type Repo struct {
	mu sync.RWMutex

	byID      map[domain.MemberID]memberrepo.Member
	idByEmail map[string]domain.MemberID
}

func NewRepo() *Repo {
	return &Repo{
		byID:      make(map[domain.MemberID]memberrepo.Member),
		idByEmail: make(map[string]domain.MemberID),
	}
}

func (r *Repo) Create(ctx context.Context, m memberrepo.Member) error {
	_ = ctx
	if m.ID == "" {
		return memberrepo.ErrAlreadyExists // treat empty ID as invalid; the app layer always assigns one
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkInsertLocked(m); err != nil {
		return err
	}
	r.insertLocked(m)
	return nil
}

func (r *Repo) Update(ctx context.Context, m memberrepo.Member) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[m.ID]
	if !ok {
		return memberrepo.ErrNotFound
	}
	oldKey := domain.FoldEmail(existing.Email)
	newKey := domain.FoldEmail(m.Email)
	if newKey != oldKey {
		if _, taken := r.idByEmail[newKey]; taken {
			return memberrepo.ErrEmailTaken
		}
		delete(r.idByEmail, oldKey)
		r.idByEmail[newKey] = m.ID
	}

	existing.Name = m.Name
	existing.Affiliation = m.Affiliation
	existing.Email = m.Email
	existing.Status = m.Status
	existing.MembershipDate = m.MembershipDate
	existing.UpdatedAt = m.UpdatedAt
	r.byID[m.ID] = existing
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (memberrepo.Member, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	return m, nil
}

func (r *Repo) FindByLogin(ctx context.Context, identifier string) ([]memberrepo.Member, error) {
	_ = ctx
	key := strings.TrimSpace(identifier)
	if key == "" {
		return []memberrepo.Member{}, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]memberrepo.Member, 0, 1)
	for _, m := range r.byID {
		if strings.EqualFold(m.Email, key) || strings.EqualFold(string(m.ID), key) {
			out = append(out, m)
		}
	}
	sortMembersByName(out)
	return out, nil
}

func (r *Repo) ExistingEmails(ctx context.Context, folded []string) (map[string]bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool)
	for _, e := range folded {
		if _, ok := r.idByEmail[domain.FoldEmail(e)]; ok {
			out[domain.FoldEmail(e)] = true
		}
	}
	return out, nil
}

func (r *Repo) List(ctx context.Context, f memberrepo.Filter) ([]memberrepo.Member, error) {
	_ = ctx
	q := strings.ToLower(strings.TrimSpace(f.Query))

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]memberrepo.Member, 0, len(r.byID))
	for _, m := range r.byID {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(m.Name), q) && !strings.Contains(strings.ToLower(m.Email), q) {
			continue
		}
		out = append(out, m)
	}
	sortMembersByName(out)
	return out, nil
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

func (r *Repo) CountVoted(ctx context.Context) (int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.byID {
		if m.HasVoted {
			n++
		}
	}
	return n, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.MemberID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.idByEmail, domain.FoldEmail(m.Email))
	return nil
}

func (r *Repo) DeleteAll(ctx context.Context) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.byID)
	r.byID = make(map[domain.MemberID]memberrepo.Member)
	r.idByEmail = make(map[string]domain.MemberID)
	return n, nil
}

func (r *Repo) InsertBatch(ctx context.Context, ms []memberrepo.Member) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertBatchLocked(ms)
}

func (r *Repo) ReplaceAll(ctx context.Context, ms []memberrepo.Member) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	prevByID, prevByEmail := r.byID, r.idByEmail
	r.byID = make(map[domain.MemberID]memberrepo.Member, len(ms))
	r.idByEmail = make(map[string]domain.MemberID, len(ms))
	if err := r.insertBatchLocked(ms); err != nil {
		r.byID, r.idByEmail = prevByID, prevByEmail
		return err
	}
	return nil
}

func (r *Repo) SetPasswordHash(ctx context.Context, id domain.MemberID, hash string, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.ErrNotFound
	}
	m.PasswordHash = hash
	m.UpdatedAt = at
	m.PasswordChangedAt = at
	r.byID[id] = m
	return nil
}

func (r *Repo) SetPasswordHashes(ctx context.Context, hashes map[domain.MemberID]string, at time.Time) ([]domain.MemberID, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := make([]domain.MemberID, 0, len(hashes))
	for id, hash := range hashes {
		m, ok := r.byID[id]
		if !ok {
			continue
		}
		m.PasswordHash = hash
		m.UpdatedAt = at
		m.PasswordChangedAt = at
		r.byID[id] = m
		updated = append(updated, id)
	}
	sort.Slice(updated, func(i, j int) bool { return updated[i] < updated[j] })
	return updated, nil
}

func (r *Repo) MarkVoted(ctx context.Context, id domain.MemberID, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.ErrNotFound
	}
	if m.HasVoted {
		return memberrepo.ErrAlreadyVoted
	}
	m.HasVoted = true
	m.UpdatedAt = at
	r.byID[id] = m
	return nil
}

func (r *Repo) ClearVoted(ctx context.Context, id domain.MemberID, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.ErrNotFound
	}
	m.HasVoted = false
	m.UpdatedAt = at
	r.byID[id] = m
	return nil
}

func (r *Repo) ResetVotes(ctx context.Context, at time.Time) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, m := range r.byID {
		if !m.HasVoted {
			continue
		}
		m.HasVoted = false
		m.UpdatedAt = at
		r.byID[id] = m
		n++
	}
	return n, nil
}

func (r *Repo) checkInsertLocked(m memberrepo.Member) error {
	if _, ok := r.byID[m.ID]; ok {
		return memberrepo.ErrAlreadyExists
	}
	if _, ok := r.idByEmail[domain.FoldEmail(m.Email)]; ok {
		return memberrepo.ErrEmailTaken
	}
	return nil
}

func (r *Repo) insertLocked(m memberrepo.Member) {
	r.byID[m.ID] = m
	r.idByEmail[domain.FoldEmail(m.Email)] = m.ID
}

// insertBatchLocked validates the whole batch (against the store and itself) before writing anything.
func (r *Repo) insertBatchLocked(ms []memberrepo.Member) error {
	ids := make(map[domain.MemberID]bool, len(ms))
	emails := make(map[string]bool, len(ms))
	for _, m := range ms {
		if m.ID == "" || ids[m.ID] {
			return memberrepo.ErrAlreadyExists
		}
		key := domain.FoldEmail(m.Email)
		if emails[key] {
			return memberrepo.ErrEmailTaken
		}
		if err := r.checkInsertLocked(m); err != nil {
			return err
		}
		ids[m.ID] = true
		emails[key] = true
	}
	for _, m := range ms {
		r.insertLocked(m)
	}
	return nil
}

func sortMembersByName(ms []memberrepo.Member) {
	sort.Slice(ms, func(i, j int) bool {
		ni := strings.ToLower(ms[i].Name)
		nj := strings.ToLower(ms[j].Name)
		if ni == nj {
			return string(ms[i].ID) < string(ms[j].ID)
		}
		return ni < nj
	})
}
