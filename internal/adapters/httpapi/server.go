package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/nullable"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/app/apperr"
	"github.com/dma-portal/association-api/internal/app/auditlog"
	"github.com/dma-portal/association-api/internal/app/candidates"
	"github.com/dma-portal/association-api/internal/app/members"
	"github.com/dma-portal/association-api/internal/app/optional"
	"github.com/dma-portal/association-api/internal/app/sessions"
	"github.com/dma-portal/association-api/internal/app/settings"
	"github.com/dma-portal/association-api/internal/app/voting"
	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/platform/logging"
	"github.com/dma-portal/association-api/internal/ports/out/idempotency"
)

const maxBodyBytes = 4 << 20

type Services struct {
	Sessions   *sessions.Service
	Members    *members.Service
	Candidates *candidates.Service
	Voting     *voting.Service
	AuditLog   *auditlog.Service
	Settings   *settings.Service
}

// Server is the HTTP adapter: it decodes requests, passes the caller's identity to the
// services and encodes their results.
type Server struct {
	Services
	Idem idempotency.Store

	log *zap.Logger
}

func NewServer(svcs Services, idem idempotency.Store, log *zap.Logger) *Server {
	return &Server{
		Services: svcs,
		Idem:     idem,
		log:      logging.OrNop(log),
	}
}

// Auth

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	s.respond(w, r, func() (int, any, error) {
		sess, err := s.Sessions.Login(r.Context(), req.Identifier, req.Password)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, LoginResponse{
			Token:     sess.Token,
			ExpiresAt: sess.Identity.ExpiresAt,
			Role:      string(sess.Identity.Role),
			Member:    memberProfileFromDomain(sess.Member),
		}, nil
	})
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, func() (int, any, error) {
		if err := s.Sessions.Logout(r.Context(), IdentityFromContext(r.Context())); err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil
	})
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	s.respond(w, r, func() (int, any, error) {
		m, err := s.Members.Get(r.Context(), id, id.MemberID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, MeResponse{
			Role:      string(id.Role),
			ExpiresAt: id.ExpiresAt,
			Member:    memberProfileFromDomain(m),
		}, nil
	})
}

func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	s.respond(w, r, func() (int, any, error) {
		err := s.Sessions.ChangePassword(r.Context(), IdentityFromContext(r.Context()), req.CurrentPassword, req.NewPassword)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil
	})
}

// Members

func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	s.respond(w, r, func() (int, any, error) {
		m, err := s.Members.Register(r.Context(), members.RegisterInput{
			Name:        req.Name,
			Affiliation: req.Affiliation,
			Email:       string(req.Email),
			Password:    req.Password,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, MemberResponse{Member: memberProfileFromDomain(m)}, nil
	})
}

func (s *Server) GetMember(w http.ResponseWriter, r *http.Request) {
	memberID := domain.MemberID(chi.URLParam(r, "memberId"))
	s.respond(w, r, func() (int, any, error) {
		m, err := s.Members.Get(r.Context(), IdentityFromContext(r.Context()), memberID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, MemberResponse{Member: memberProfileFromDomain(m)}, nil
	})
}

// Election

func (s *Server) ListCandidates(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, func() (int, any, error) {
		cs, err := s.Candidates.List(r.Context())
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, CandidatesResponse{Candidates: candidatesFromDomain(cs)}, nil
	})
}

func (s *Server) Results(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, func() (int, any, error) {
		res, err := s.Voting.Results(r.Context())
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, ResultsResponse{
			Candidates:   candidatesFromDomain(res.Candidates),
			TotalVotes:   res.TotalVotes,
			MembersVoted: res.MembersVoted,
		}, nil
	})
}

func (s *Server) CastVote(w http.ResponseWriter, r *http.Request) {
	var req CastVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	req.CandidateId = strings.TrimSpace(req.CandidateId)
	id := IdentityFromContext(r.Context())
	s.idempotent(w, r, id.MemberID, "POST /votes", req, func() (int, any, error) {
		t, err := s.Voting.CastVote(r.Context(), id, domain.CandidateID(req.CandidateId))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, CastVoteResponse{Tally: Tally{
			CandidateId: string(t.CandidateID),
			Votes:       t.Votes,
			At:          t.At,
		}}, nil
	})
}

// Admin: members

func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
	var status members.StatusFilter
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))) {
	case "", "all":
		status = members.StatusAll
	case "active":
		status = members.StatusActive
	case "pending":
		status = members.StatusPending
	default:
		writeAppError(w, r, s.log, apperr.Validation("status", "must be one of All, Active, Pending"))
		return
	}
	f := members.ListFilter{Status: status, Query: r.URL.Query().Get("q")}
	s.respond(w, r, func() (int, any, error) {
		ms, err := s.Members.List(r.Context(), IdentityFromContext(r.Context()), f)
		if err != nil {
			return 0, nil, err
		}
		out := make([]MemberProfile, 0, len(ms))
		for _, m := range ms {
			out = append(out, memberProfileFromDomain(m))
		}
		return http.StatusOK, MembersResponse{Members: out}, nil
	})
}

func (s *Server) ApproveMember(w http.ResponseWriter, r *http.Request) {
	memberID := domain.MemberID(chi.URLParam(r, "memberId"))
	s.respond(w, r, func() (int, any, error) {
		m, err := s.Members.Approve(r.Context(), IdentityFromContext(r.Context()), memberID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, MemberResponse{Member: memberProfileFromDomain(m)}, nil
	})
}

func (s *Server) DeleteMember(w http.ResponseWriter, r *http.Request) {
	memberID := domain.MemberID(chi.URLParam(r, "memberId"))
	s.respond(w, r, func() (int, any, error) {
		if err := s.Members.Delete(r.Context(), IdentityFromContext(r.Context()), memberID); err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil
	})
}

func (s *Server) ImportMembers(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	mode := members.ImportMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if mode == "" {
		mode = members.ImportAppend
	}
	req.Mode = string(mode)
	records := make([]members.ImportRecord, 0, len(req.Members))
	for _, m := range req.Members {
		records = append(records, members.ImportRecord{Name: m.Name, Affiliation: m.Affiliation, Email: m.Email})
	}

	id := IdentityFromContext(r.Context())
	s.idempotentWith(w, r, id.MemberID, "POST /admin/members/import", req, func() (int, any, error) {
		res, err := s.Members.BulkImport(r.Context(), id, records, mode)
		if err != nil {
			return 0, nil, err
		}
		invalid := make([]InvalidImportRow, 0, len(res.SkippedInvalid))
		for _, row := range res.SkippedInvalid {
			invalid = append(invalid, InvalidImportRow{Row: row.Row, Email: row.Email, Issues: row.Issues})
		}
		return http.StatusCreated, ImportResponse{
			Mode:              string(res.Mode),
			Imported:          credentialsFromDomain(res.Imported),
			SkippedDuplicates: nonNil(res.SkippedDuplicates),
			SkippedExisting:   nonNil(res.SkippedExisting),
			SkippedInvalid:    invalid,
		}, nil
	}, importAlreadyApplied(r))
}

// importAlreadyApplied replays an import as a conflict naming the created members. Generated
// passwords are shown once; a lost response is recovered by regenerating credentials.
func importAlreadyApplied(r *http.Request) replayer {
	return func(_ int, resp any) (int, any) {
		ids := []string{}
		if ir, ok := resp.(ImportResponse); ok {
			for _, c := range ir.Imported {
				ids = append(ids, c.Member.Id)
			}
		}
		return http.StatusConflict, apiError(r.Context(), codeImportAlreadyApplied,
			"This import was already applied. Generated passwords are not kept; regenerate credentials to issue new ones.",
			map[string]any{"memberIds": ids})
	}
}

func (s *Server) ClearMembers(w http.ResponseWriter, r *http.Request) {
	if confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirm {
		writeAppError(w, r, s.log, apperr.Validation("confirm", "must be true to delete every member"))
		return
	}
	s.respond(w, r, func() (int, any, error) {
		n, err := s.Members.ClearAll(r.Context(), IdentityFromContext(r.Context()))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, CountResponse{Count: n}, nil
	})
}

func (s *Server) RegenerateCredentials(w http.ResponseWriter, r *http.Request) {
	memberID := domain.MemberID(chi.URLParam(r, "memberId"))
	s.respond(w, r, func() (int, any, error) {
		c, err := s.Members.RegenerateCredentials(r.Context(), IdentityFromContext(r.Context()), memberID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, CredentialsResponse{Credentials: MemberCredentials{
			Member:   memberProfileFromDomain(c.Member),
			Password: c.Password,
		}}, nil
	})
}

func (s *Server) BulkRegenerateCredentials(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, func() (int, any, error) {
		res, err := s.Members.BulkRegenerateCredentials(r.Context(), IdentityFromContext(r.Context()))
		if err != nil {
			return 0, nil, err
		}
		missing := make([]string, 0, len(res.Missing))
		for _, id := range res.Missing {
			missing = append(missing, string(id))
		}
		return http.StatusOK, BulkCredentialsResponse{
			Credentials: credentialsFromDomain(res.Regenerated),
			Missing:     missing,
		}, nil
	})
}

func (s *Server) ResetVotes(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, func() (int, any, error) {
		n, err := s.Members.ResetVotingStatus(r.Context(), IdentityFromContext(r.Context()))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, CountResponse{Count: n}, nil
	})
}

// Admin: candidates

func (s *Server) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req CreateCandidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	in := candidates.AddInput{Name: req.Name, Position: req.Position}
	if req.PhotoUrl != nil {
		in.PhotoURL = *req.PhotoUrl
	}
	if req.Votes != nil {
		in.Votes = *req.Votes
	}
	s.respond(w, r, func() (int, any, error) {
		c, err := s.Candidates.Add(r.Context(), IdentityFromContext(r.Context()), in)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, CandidateResponse{Candidate: candidateFromDomain(c)}, nil
	})
}

func (s *Server) UpdateCandidate(w http.ResponseWriter, r *http.Request) {
	var req UpdateCandidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	candidateID := domain.CandidateID(chi.URLParam(r, "candidateId"))
	p := candidates.Patch{
		Name:     optionalFromNullable(req.Name),
		Position: optionalFromNullable(req.Position),
		PhotoURL: optionalFromNullable(req.PhotoUrl),
	}
	s.respond(w, r, func() (int, any, error) {
		c, err := s.Candidates.Update(r.Context(), IdentityFromContext(r.Context()), candidateID, p)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, CandidateResponse{Candidate: candidateFromDomain(c)}, nil
	})
}

func (s *Server) DeleteCandidate(w http.ResponseWriter, r *http.Request) {
	candidateID := domain.CandidateID(chi.URLParam(r, "candidateId"))
	s.respond(w, r, func() (int, any, error) {
		if err := s.Candidates.Delete(r.Context(), IdentityFromContext(r.Context()), candidateID); err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil
	})
}

// Admin: logs and settings

func (s *Server) ListAdminLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeAppError(w, r, s.log, apperr.Validation("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}
	s.respond(w, r, func() (int, any, error) {
		es, err := s.AuditLog.ListRecent(r.Context(), IdentityFromContext(r.Context()), limit)
		if err != nil {
			return 0, nil, err
		}
		out := make([]AdminLogEntry, 0, len(es))
		for _, e := range es {
			out = append(out, AdminLogEntry{Id: string(e.ID), Timestamp: e.Timestamp, Admin: e.Admin, Action: e.Action})
		}
		return http.StatusOK, AdminLogsResponse{Logs: out}, nil
	})
}

func (s *Server) GetSettings(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, func() (int, any, error) {
		st, err := s.Settings.Get(r.Context())
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, SettingsResponse{Settings: settingsFromDomain(st)}, nil
	})
}

func (s *Server) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	p := settings.Patch{
		SiteName:        optionalFromNullable(req.SiteName),
		ContactEmail:    optionalFromNullable(req.ContactEmail),
		ContactPhone:    optionalFromNullable(req.ContactPhone),
		ContactAddress:  optionalFromNullable(req.ContactAddress),
		MembershipFee:   optionalFromNullable(req.MembershipFee),
		MaintenanceMode: optionalFromNullable(req.MaintenanceMode),
	}
	s.respond(w, r, func() (int, any, error) {
		st, err := s.Settings.Update(r.Context(), IdentityFromContext(r.Context()), p)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, SettingsResponse{Settings: settingsFromDomain(st)}, nil
	})
}

// decodeJSON reads one JSON object. Malformed input is a 422 VALIDATION_ERROR.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("body", "missing request body")
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return &apperr.Error{Status: http.StatusRequestEntityTooLarge, Code: apperr.CodeValidation, Message: "request body too large"}
		}
		return apperr.Validation("body", err.Error())
	}
	return nil
}

func optionalFromNullable[T any](n nullable.Nullable[T]) optional.Value[T] {
	if !n.IsSpecified() {
		return optional.Unspecified[T]()
	}
	if n.IsNull() {
		return optional.Null[T]()
	}
	v, err := n.Get()
	if err != nil {
		return optional.Unspecified[T]()
	}
	return optional.Some(v)
}
