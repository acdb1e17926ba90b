package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/platform/logging"
)

type RouterOptions struct {
	// AuthMiddleware defaults to NewAuthMiddleware over the server's session service.
	AuthMiddleware func(http.Handler) http.Handler
	Logger         *zap.Logger
	// RequestTimeout bounds API handlers; zero disables it. The websocket feed is never bounded.
	RequestTimeout time.Duration
	// Tallies serves GET /ws/tallies when set.
	Tallies http.Handler
}

// NewRouter constructs the API HTTP router.
func NewRouter(s *Server) http.Handler {
	return NewRouterWithOptions(s, RouterOptions{})
}

func NewRouterWithOptions(s *Server, opts RouterOptions) http.Handler {
	log := logging.OrNop(opts.Logger)
	authMW := opts.AuthMiddleware
	if authMW == nil {
		authMW = NewAuthMiddleware(s.Sessions, log)
	}

	r := chi.NewRouter()

	// Baseline production-safe middleware (minimal but useful).
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewRequestLogger(log))
	r.Use(middleware.Recoverer)

	// Health endpoint is used for infra checks.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if opts.Tallies != nil {
		r.Method(http.MethodGet, "/ws/tallies", opts.Tallies)
	}

	r.Group(func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		r.Use(authMW)

		r.Post("/auth/login", s.Login)
		r.Post("/auth/logout", s.Logout)
		r.Get("/auth/me", s.Me)
		r.Post("/auth/password", s.ChangePassword)

		r.Post("/members/signup", s.Signup)
		r.Get("/members/{memberId}", s.GetMember)

		r.Get("/candidates", s.ListCandidates)
		r.Get("/results", s.Results)
		r.Post("/votes", s.CastVote)

		r.Get("/settings", s.GetSettings)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/members", s.ListMembers)
			r.Delete("/members", s.ClearMembers)
			r.Post("/members/import", s.ImportMembers)
			r.Post("/members/credentials", s.BulkRegenerateCredentials)
			r.Post("/members/votes/reset", s.ResetVotes)
			r.Post("/members/{memberId}/approve", s.ApproveMember)
			r.Post("/members/{memberId}/credentials", s.RegenerateCredentials)
			r.Delete("/members/{memberId}", s.DeleteMember)

			r.Post("/candidates", s.CreateCandidate)
			r.Patch("/candidates/{candidateId}", s.UpdateCandidate)
			r.Delete("/candidates/{candidateId}", s.DeleteCandidate)

			r.Get("/logs", s.ListAdminLogs)
			r.Put("/settings", s.UpdateSettings)
		})
	})

	return r
}
