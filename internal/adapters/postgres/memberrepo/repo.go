package memberrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/dma-portal/association-api/internal/adapters/postgres"
	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/memberrepo"
)

const (
	pkConstraint    = "members_pkey"
	emailConstraint = "members_email_folded_unique"
)

const memberColumns = `
	id,
	name,
	affiliation,
	email,
	password_hash,
	status,
	has_voted,
	membership_date,
	created_at,
	updated_at,
	password_changed_at
`

// Repo is a Postgres implementation of memberrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, m memberrepo.Member) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	return insertMember(ctx, r.pool, m)
}

func (r *Repo) Update(ctx context.Context, m memberrepo.Member) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE members
		SET name = $2,
		    affiliation = $3,
		    email = $4,
		    status = $5,
		    membership_date = $6,
		    updated_at = $7
		WHERE id = $1
	`,
		string(m.ID),
		m.Name,
		m.Affiliation,
		m.Email,
		string(m.Status),
		m.MembershipDate.UTC(),
		m.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapWriteError(err)
	}
	if ct.RowsAffected() == 0 {
		return memberrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (memberrepo.Member, error) {
	if r.pool == nil {
		return memberrepo.Member{}, errors.New("nil postgres pool")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, string(id))
	return scanMember(row)
}

func (r *Repo) FindByLogin(ctx context.Context, identifier string) ([]memberrepo.Member, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	key := strings.ToLower(strings.TrimSpace(identifier))
	if key == "" {
		return []memberrepo.Member{}, nil
	}
	return queryMembers(ctx, r.pool, `
		SELECT `+memberColumns+`
		FROM members
		WHERE lower(email) = $1 OR lower(id) = $1
		ORDER BY lower(name) ASC, id ASC
	`, key)
}

func (r *Repo) ExistingEmails(ctx context.Context, folded []string) (map[string]bool, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	keys := make([]string, 0, len(folded))
	for _, e := range folded {
		keys = append(keys, domain.FoldEmail(e))
	}
	out := make(map[string]bool)
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT lower(email) FROM members WHERE lower(email) = ANY($1)`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out[e] = true
	}
	return out, rows.Err()
}

func (r *Repo) List(ctx context.Context, f memberrepo.Filter) ([]memberrepo.Member, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + memberColumns + ` FROM members WHERE true`)
	args := make([]any, 0, 2)
	if f.Status != "" {
		args = append(args, string(f.Status))
		sb.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		sb.WriteString(fmt.Sprintf(" AND (lower(name) LIKE $%d OR lower(email) LIKE $%d)", len(args), len(args)))
	}
	sb.WriteString(" ORDER BY lower(name) ASC, id ASC")

	out, err := queryMembers(ctx, r.pool, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	// Keep ordering identical to the memory adapter even if the collation differs.
	sortMembersByName(out)
	return out, nil
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	if r.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM members`).Scan(&n)
	return n, err
}

func (r *Repo) CountVoted(ctx context.Context) (int, error) {
	if r.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM members WHERE has_voted`).Scan(&n)
	return n, err
}

func (r *Repo) Delete(ctx context.Context, id domain.MemberID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM members WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return memberrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteAll(ctx context.Context) (int, error) {
	if r.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM members`)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (r *Repo) InsertBatch(ctx context.Context, ms []memberrepo.Member) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return insertAll(ctx, tx, ms)
	})
}

func (r *Repo) ReplaceAll(ctx context.Context, ms []memberrepo.Member) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM members`); err != nil {
			return err
		}
		return insertAll(ctx, tx, ms)
	})
}

func (r *Repo) SetPasswordHash(ctx context.Context, id domain.MemberID, hash string, at time.Time) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE members SET password_hash = $2, updated_at = $3, password_changed_at = $3 WHERE id = $1
	`, string(id), hash, at.UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return memberrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) SetPasswordHashes(ctx context.Context, hashes map[domain.MemberID]string, at time.Time) ([]domain.MemberID, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	ids := make([]domain.MemberID, 0, len(hashes))
	for id := range hashes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	updated := make([]domain.MemberID, 0, len(ids))
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, id := range ids {
			batch.Queue(`UPDATE members SET password_hash = $2, updated_at = $3, password_changed_at = $3 WHERE id = $1`, string(id), hashes[id], at.UTC())
		}
		br := tx.SendBatch(ctx, batch)
		for _, id := range ids {
			ct, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return err
			}
			if ct.RowsAffected() > 0 {
				updated = append(updated, id)
			}
		}
		return br.Close()
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Repo) MarkVoted(ctx context.Context, id domain.MemberID, at time.Time) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	return MarkVoted(ctx, r.pool, id, at)
}

func (r *Repo) ClearVoted(ctx context.Context, id domain.MemberID, at time.Time) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	ct, err := r.pool.Exec(ctx, `UPDATE members SET has_voted = false, updated_at = $2 WHERE id = $1`, string(id), at.UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return memberrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) ResetVotes(ctx context.Context, at time.Time) (int, error) {
	if r.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	ct, err := r.pool.Exec(ctx, `UPDATE members SET has_voted = false, updated_at = $1 WHERE has_voted`, at.UTC())
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// MarkVoted is the conditional has-voted write, usable inside a caller's transaction.
func MarkVoted(ctx context.Context, q postgres.Querier, id domain.MemberID, at time.Time) error {
	ct, err := q.Exec(ctx, `
		UPDATE members SET has_voted = true, updated_at = $2
		WHERE id = $1 AND has_voted = false
	`, string(id), at.UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// Zero rows: either already voted or missing.
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM members WHERE id = $1)`, string(id)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return memberrepo.ErrNotFound
	}
	return memberrepo.ErrAlreadyVoted
}

// --- helpers ---

func insertMember(ctx context.Context, q postgres.Querier, m memberrepo.Member) error {
	if m.ID == "" {
		return memberrepo.ErrAlreadyExists
	}
	_, err := q.Exec(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		string(m.ID),
		m.Name,
		m.Affiliation,
		m.Email,
		m.PasswordHash,
		string(m.Status),
		m.HasVoted,
		m.MembershipDate.UTC(),
		m.CreatedAt.UTC(),
		m.UpdatedAt.UTC(),
		nullableTime(m.PasswordChangedAt),
	)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func insertAll(ctx context.Context, tx pgx.Tx, ms []memberrepo.Member) error {
	for _, m := range ms {
		if err := insertMember(ctx, tx, m); err != nil {
			return err
		}
	}
	return nil
}

func mapWriteError(err error) error {
	switch {
	case postgres.IsUniqueViolation(err, pkConstraint):
		return memberrepo.ErrAlreadyExists
	case postgres.IsUniqueViolation(err, emailConstraint):
		return memberrepo.ErrEmailTaken
	default:
		return err
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func sortMembersByName(ms []memberrepo.Member) {
	sort.SliceStable(ms, func(i, j int) bool {
		ni := strings.ToLower(ms[i].Name)
		nj := strings.ToLower(ms[j].Name)
		if ni == nj {
			return string(ms[i].ID) < string(ms[j].ID)
		}
		return ni < nj
	})
}

func queryMembers(ctx context.Context, q postgres.Querier, sql string, args ...any) ([]memberrepo.Member, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]memberrepo.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanMember(row interface {
	Scan(dest ...any) error
}) (memberrepo.Member, error) {
	var (
		id             string
		status         string
		membershipDate time.Time
		createdAt      time.Time
		updatedAt      time.Time
		pwChangedAt    *time.Time
		m              memberrepo.Member
	)
	if err := row.Scan(
		&id,
		&m.Name,
		&m.Affiliation,
		&m.Email,
		&m.PasswordHash,
		&status,
		&m.HasVoted,
		&membershipDate,
		&createdAt,
		&updatedAt,
		&pwChangedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return memberrepo.Member{}, memberrepo.ErrNotFound
		}
		return memberrepo.Member{}, err
	}
	m.ID = domain.MemberID(id)
	m.Status = domain.MemberStatus(status)
	m.MembershipDate = membershipDate.UTC()
	m.CreatedAt = createdAt.UTC()
	m.UpdatedAt = updatedAt.UTC()
	if pwChangedAt != nil {
		m.PasswordChangedAt = pwChangedAt.UTC()
	}
	return m, nil
}
