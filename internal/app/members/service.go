// Package members owns the member lifecycle: signup, approval, bulk import and credential regeneration.
package members

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dma-portal/association-api/internal/app/apperr"
	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/platform/credentials"
	"github.com/dma-portal/association-api/internal/platform/logging"
	clockport "github.com/dma-portal/association-api/internal/ports/out/clock"
	"github.com/dma-portal/association-api/internal/ports/out/memberrepo"
)

// createAttempts bounds retries when a generated id collides.
const createAttempts = 3

type Service struct {
	repo   memberrepo.Repository
	clk    clockport.Clock
	gen    CredentialGenerator
	hasher PasswordHasher
	audit  AuditRecorder
	log    *zap.Logger

	// HashConcurrency bounds parallel bcrypt work in bulk operations.
	HashConcurrency int
}

func NewService(
	repo memberrepo.Repository,
	clk clockport.Clock,
	gen CredentialGenerator,
	hasher PasswordHasher,
	audit AuditRecorder,
	log *zap.Logger,
) *Service {
	return &Service{
		repo:            repo,
		clk:             clk,
		gen:             gen,
		hasher:          hasher,
		audit:           audit,
		log:             logging.OrNop(log),
		HashConcurrency: runtime.GOMAXPROCS(0),
	}
}

// Register is the public signup. New members wait in Pending until an admin approves them.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.Member, error) {
	name := domain.NormalizeHumanName(in.Name)
	if name == "" {
		return domain.Member{}, apperr.Validation("name", "must be non-empty")
	}
	affiliation := domain.NormalizeHumanName(in.Affiliation)
	if affiliation == "" {
		return domain.Member{}, apperr.Validation("affiliation", "must be non-empty")
	}
	email := strings.TrimSpace(in.Email)
	if err := domain.ValidateEmail(email); err != nil {
		return domain.Member{}, apperr.Validation("email", err.Error())
	}
	if len(in.Password) < MinPasswordLength {
		return domain.Member{}, apperr.Validation("password", "must be at least "+strconv.Itoa(MinPasswordLength)+" characters")
	}

	taken, err := s.repo.ExistingEmails(ctx, []string{domain.FoldEmail(email)})
	if err != nil {
		return domain.Member{}, err
	}
	if taken[domain.FoldEmail(email)] {
		return domain.Member{}, apperr.DuplicateEmail(email)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.Member{}, err
	}

	now := s.clk.Now()
	rec := memberrepo.Member{
		Name:           name,
		Affiliation:    affiliation,
		Email:          email,
		PasswordHash:   hash,
		Status:         domain.MemberStatusPending,
		MembershipDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for attempt := 1; ; attempt++ {
		rec.ID = domain.MemberID(s.gen.NewMemberID(credentials.MemberIDPrefix))
		err = s.repo.Create(ctx, rec)
		if err == nil {
			break
		}
		if errors.Is(err, memberrepo.ErrEmailTaken) {
			return domain.Member{}, apperr.DuplicateEmail(email)
		}
		if !errors.Is(err, memberrepo.ErrAlreadyExists) || attempt >= createAttempts {
			return domain.Member{}, err
		}
	}

	s.log.Info("member registered", zap.String("memberId", string(rec.ID)))
	return toDomain(rec), nil
}

func (s *Service) Approve(ctx context.Context, id domain.Identity, memberID domain.MemberID) (domain.Member, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return domain.Member{}, err
	}
	m, err := s.get(ctx, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	if m.Status == domain.MemberStatusActive {
		return domain.Member{}, &apperr.Error{
			Status:  http.StatusConflict,
			Code:    apperr.CodeAlreadyActive,
			Message: "Member is already active.",
		}
	}
	m.Status = domain.MemberStatusActive
	m.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, m); err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Member{}, apperr.MemberNotFound()
		}
		return domain.Member{}, err
	}
	s.record(ctx, id, "Approved member: "+m.Name)
	return toDomain(m), nil
}

func (s *Service) Delete(ctx context.Context, id domain.Identity, memberID domain.MemberID) error {
	if err := apperr.RequireAdmin(id); err != nil {
		return err
	}
	m, err := s.get(ctx, memberID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, memberID); err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return apperr.MemberNotFound()
		}
		return err
	}
	s.record(ctx, id, "Deleted member: "+m.Name)
	return nil
}

// BulkImport creates Active members with generated credentials. Rows missing a field are dropped
// and reported; the batch fails only when no row is usable.
func (s *Service) BulkImport(ctx context.Context, id domain.Identity, records []ImportRecord, mode ImportMode) (ImportResult, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return ImportResult{}, err
	}
	if !mode.Valid() {
		return ImportResult{}, &apperr.Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    apperr.CodeImportValidationFailed,
			Message: "Unknown import mode.",
			Details: map[string]any{"mode": string(mode)},
		}
	}
	if len(records) == 0 {
		return ImportResult{}, &apperr.Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    apperr.CodeImportValidationFailed,
			Message: "No records to import.",
		}
	}

	res := ImportResult{Mode: mode}
	cleaned, invalid := validateRecords(records)
	res.SkippedInvalid = invalid
	if len(cleaned) == 0 {
		return ImportResult{}, &apperr.Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    apperr.CodeImportValidationFailed,
			Message: "No valid records to import; each row needs a name, affiliation and email.",
			Details: map[string]any{"rows": invalidDetails(invalid)},
		}
	}

	seen := make(map[string]bool, len(cleaned))
	unique := make([]ImportRecord, 0, len(cleaned))
	for _, r := range cleaned {
		key := domain.FoldEmail(r.Email)
		if seen[key] {
			res.SkippedDuplicates = append(res.SkippedDuplicates, r.Email)
			continue
		}
		seen[key] = true
		unique = append(unique, r)
	}

	keys := make([]string, 0, len(unique))
	for _, r := range unique {
		keys = append(keys, domain.FoldEmail(r.Email))
	}
	existing, err := s.repo.ExistingEmails(ctx, keys)
	if err != nil {
		return ImportResult{}, importFailed(err)
	}
	kept := unique[:0]
	for _, r := range unique {
		if existing[domain.FoldEmail(r.Email)] {
			res.SkippedExisting = append(res.SkippedExisting, r.Email)
			continue
		}
		kept = append(kept, r)
	}
	unique = kept

	now := s.clk.Now()
	creds := make([]domain.Credentials, len(unique))
	recs := make([]memberrepo.Member, len(unique))
	ids := make(map[domain.MemberID]bool, len(unique))
	for i, r := range unique {
		mid := domain.MemberID(s.gen.NewMemberID(credentials.MemberIDPrefix))
		for ids[mid] {
			mid = domain.MemberID(s.gen.NewMemberID(credentials.MemberIDPrefix))
		}
		ids[mid] = true
		recs[i] = memberrepo.Member{
			ID:             mid,
			Name:           r.Name,
			Affiliation:    r.Affiliation,
			Email:          r.Email,
			Status:         domain.MemberStatusActive,
			MembershipDate: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		creds[i].Password = s.gen.NewPassword()
	}

	if err := s.hashAll(ctx, creds, func(i int, hash string) { recs[i].PasswordHash = hash }); err != nil {
		return ImportResult{}, importFailed(err)
	}

	if mode == ImportReplace {
		err = s.repo.ReplaceAll(ctx, recs)
	} else if len(recs) > 0 {
		err = s.repo.InsertBatch(ctx, recs)
	}
	if err != nil {
		return ImportResult{}, importFailed(err)
	}

	for i := range recs {
		creds[i].Member = toDomain(recs[i])
	}
	res.Imported = creds

	s.log.Info("members imported",
		zap.String("mode", string(mode)),
		zap.Int("imported", len(creds)),
		zap.Int("skippedDuplicates", len(res.SkippedDuplicates)),
		zap.Int("skippedExisting", len(res.SkippedExisting)),
		zap.Int("skippedInvalid", len(res.SkippedInvalid)),
	)
	s.record(ctx, id, fmt.Sprintf("Bulk imported %d members. Append: %t", len(creds), mode == ImportAppend))
	return res, nil
}

// ClearAll deletes every member, the reserved admin included.
func (s *Service) ClearAll(ctx context.Context, id domain.Identity) (int, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Warn("all members cleared", zap.Int("deleted", n))
	s.record(ctx, id, "Cleared all members from the database.")
	return n, nil
}

func (s *Service) RegenerateCredentials(ctx context.Context, id domain.Identity, memberID domain.MemberID) (domain.Credentials, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return domain.Credentials{}, err
	}
	m, err := s.get(ctx, memberID)
	if err != nil {
		return domain.Credentials{}, err
	}
	pw := s.gen.NewPassword()
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return domain.Credentials{}, err
	}
	now := s.clk.Now()
	if err := s.repo.SetPasswordHash(ctx, memberID, hash, now); err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Credentials{}, apperr.MemberNotFound()
		}
		return domain.Credentials{}, err
	}
	m.PasswordHash = hash
	m.UpdatedAt = now
	s.record(ctx, id, "Regenerated password for "+m.Name)
	return domain.Credentials{Member: toDomain(m), Password: pw}, nil
}

// BulkRegenerateCredentials gives every member a new password in one repository write.
func (s *Service) BulkRegenerateCredentials(ctx context.Context, id domain.Identity) (BulkRegenerateResult, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return BulkRegenerateResult{}, err
	}
	ms, err := s.repo.List(ctx, memberrepo.Filter{})
	if err != nil {
		return BulkRegenerateResult{}, err
	}

	creds := make([]domain.Credentials, len(ms))
	hashes := make([]string, len(ms))
	for i := range ms {
		creds[i].Password = s.gen.NewPassword()
	}
	if err := s.hashAll(ctx, creds, func(i int, hash string) { hashes[i] = hash }); err != nil {
		return BulkRegenerateResult{}, err
	}

	byID := make(map[domain.MemberID]string, len(ms))
	for i, m := range ms {
		byID[m.ID] = hashes[i]
	}
	now := s.clk.Now()
	updated, err := s.repo.SetPasswordHashes(ctx, byID, now)
	if err != nil {
		return BulkRegenerateResult{}, err
	}
	done := make(map[domain.MemberID]bool, len(updated))
	for _, mid := range updated {
		done[mid] = true
	}

	var res BulkRegenerateResult
	for i, m := range ms {
		if !done[m.ID] {
			res.Missing = append(res.Missing, m.ID)
			continue
		}
		m.PasswordHash = hashes[i]
		m.UpdatedAt = now
		creds[i].Member = toDomain(m)
		res.Regenerated = append(res.Regenerated, creds[i])
	}
	if len(res.Missing) > 0 {
		s.log.Warn("members vanished during credential regeneration", zap.Int("missing", len(res.Missing)))
	}
	s.record(ctx, id, fmt.Sprintf("Regenerated passwords for %d members", len(res.Regenerated)))
	return res, nil
}

// ResetVotingStatus clears every member's voted flag. Candidate tallies are left as they are.
func (s *Service) ResetVotingStatus(ctx context.Context, id domain.Identity) (int, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return 0, err
	}
	n, err := s.repo.ResetVotes(ctx, s.clk.Now())
	if err != nil {
		return 0, err
	}
	s.record(ctx, id, fmt.Sprintf("Reset voting status for %d members", n))
	return n, nil
}

func (s *Service) List(ctx context.Context, id domain.Identity, f ListFilter) ([]domain.Member, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return nil, err
	}
	var status domain.MemberStatus
	switch f.Status {
	case StatusAll:
	case StatusActive:
		status = domain.MemberStatusActive
	case StatusPending:
		status = domain.MemberStatusPending
	default:
		return nil, apperr.Validation("status", "must be one of All, Active, Pending")
	}
	ms, err := s.repo.List(ctx, memberrepo.Filter{Status: status, Query: strings.TrimSpace(f.Query)})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(ms))
	for _, m := range ms {
		out = append(out, toDomain(m))
	}
	return out, nil
}

// Get is open to admins and to the member themself.
func (s *Service) Get(ctx context.Context, id domain.Identity, memberID domain.MemberID) (domain.Member, error) {
	if err := apperr.RequireAuthenticated(id); err != nil {
		return domain.Member{}, err
	}
	if !id.IsAdmin() && id.MemberID != memberID {
		return domain.Member{}, &apperr.Error{
			Status:  http.StatusForbidden,
			Code:    apperr.CodeUnauthorized,
			Message: "You may only view your own record.",
		}
	}
	m, err := s.get(ctx, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	return toDomain(m), nil
}

func (s *Service) get(ctx context.Context, memberID domain.MemberID) (memberrepo.Member, error) {
	m, err := s.repo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return memberrepo.Member{}, apperr.MemberNotFound()
		}
		return memberrepo.Member{}, err
	}
	return m, nil
}

// hashAll hashes creds[i].Password in parallel and hands each result to set.
func (s *Service) hashAll(ctx context.Context, creds []domain.Credentials, set func(i int, hash string)) error {
	g, ctx := errgroup.WithContext(ctx)
	if s.HashConcurrency > 0 {
		g.SetLimit(s.HashConcurrency)
	}
	for i := range creds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			hash, err := s.hasher.Hash(creds[i].Password)
			if err != nil {
				return err
			}
			set(i, hash)
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) record(ctx context.Context, id domain.Identity, action string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, id, action); err != nil {
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func validateRecords(records []ImportRecord) ([]ImportRecord, []InvalidRecord) {
	out := make([]ImportRecord, 0, len(records))
	var invalid []InvalidRecord
	for i, r := range records {
		c := ImportRecord{
			Name:        domain.NormalizeHumanName(r.Name),
			Affiliation: domain.NormalizeHumanName(r.Affiliation),
			Email:       strings.TrimSpace(r.Email),
		}
		var issues []string
		if c.Name == "" {
			issues = append(issues, "name is required")
		}
		if c.Affiliation == "" {
			issues = append(issues, "affiliation is required")
		}
		if err := domain.ValidateEmail(c.Email); err != nil {
			issues = append(issues, "email "+err.Error())
		}
		if len(issues) > 0 {
			invalid = append(invalid, InvalidRecord{Row: i + 1, Email: c.Email, Issues: issues})
			continue
		}
		out = append(out, c)
	}
	return out, invalid
}

func invalidDetails(invalid []InvalidRecord) []map[string]any {
	out := make([]map[string]any, 0, len(invalid))
	for _, r := range invalid {
		out = append(out, map[string]any{"row": r.Row, "email": r.Email, "issues": r.Issues})
	}
	return out
}

func importFailed(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return &apperr.Error{
		Status:  http.StatusServiceUnavailable,
		Code:    apperr.CodeImportFailed,
		Message: "Import failed; no members were changed.",
		Cause:   err,
	}
}

func toDomain(m memberrepo.Member) domain.Member {
	return domain.Member{
		ID:             m.ID,
		Name:           m.Name,
		Affiliation:    m.Affiliation,
		Email:          m.Email,
		Status:         m.Status,
		HasVoted:       m.HasVoted,
		MembershipDate: m.MembershipDate,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
