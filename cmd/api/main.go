package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/adapters/httpapi"
	memadminlogrepo "github.com/dma-portal/association-api/internal/adapters/memory/adminlogrepo"
	memcandidaterepo "github.com/dma-portal/association-api/internal/adapters/memory/candidaterepo"
	memidempotency "github.com/dma-portal/association-api/internal/adapters/memory/idempotency"
	memmemberrepo "github.com/dma-portal/association-api/internal/adapters/memory/memberrepo"
	memrevocation "github.com/dma-portal/association-api/internal/adapters/memory/revocation"
	memsettingsrepo "github.com/dma-portal/association-api/internal/adapters/memory/settingsrepo"
	postgres "github.com/dma-portal/association-api/internal/adapters/postgres"
	pgadminlogrepo "github.com/dma-portal/association-api/internal/adapters/postgres/adminlogrepo"
	pgballot "github.com/dma-portal/association-api/internal/adapters/postgres/ballot"
	pgcandidaterepo "github.com/dma-portal/association-api/internal/adapters/postgres/candidaterepo"
	pgidempotency "github.com/dma-portal/association-api/internal/adapters/postgres/idempotency"
	pgmemberrepo "github.com/dma-portal/association-api/internal/adapters/postgres/memberrepo"
	pgsettingsrepo "github.com/dma-portal/association-api/internal/adapters/postgres/settingsrepo"
	"github.com/dma-portal/association-api/internal/adapters/realtime"
	redisadapter "github.com/dma-portal/association-api/internal/adapters/redis"
	redisrevocation "github.com/dma-portal/association-api/internal/adapters/redis/revocation"
	redistallyfeed "github.com/dma-portal/association-api/internal/adapters/redis/tallyfeed"
	"github.com/dma-portal/association-api/internal/app/auditlog"
	"github.com/dma-portal/association-api/internal/app/bootstrap"
	"github.com/dma-portal/association-api/internal/app/candidates"
	"github.com/dma-portal/association-api/internal/app/members"
	"github.com/dma-portal/association-api/internal/app/sessions"
	"github.com/dma-portal/association-api/internal/app/settings"
	"github.com/dma-portal/association-api/internal/app/voting"
	"github.com/dma-portal/association-api/internal/platform/auth/passwords"
	"github.com/dma-portal/association-api/internal/platform/auth/sessiontoken"
	platformclock "github.com/dma-portal/association-api/internal/platform/clock"
	"github.com/dma-portal/association-api/internal/platform/config"
	"github.com/dma-portal/association-api/internal/platform/credentials"
	"github.com/dma-portal/association-api/internal/platform/logging"
	adminlogrepoport "github.com/dma-portal/association-api/internal/ports/out/adminlogrepo"
	candidaterepoport "github.com/dma-portal/association-api/internal/ports/out/candidaterepo"
	idempotencyport "github.com/dma-portal/association-api/internal/ports/out/idempotency"
	memberrepoport "github.com/dma-portal/association-api/internal/ports/out/memberrepo"
	revocationport "github.com/dma-portal/association-api/internal/ports/out/revocation"
	settingsrepoport "github.com/dma-portal/association-api/internal/ports/out/settingsrepo"
	"github.com/dma-portal/association-api/internal/ports/out/tallyfeed"
)

func main() {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Config{}).Fatal("invalid config", zap.Error(err))
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	clk := platformclock.NewSystemClock()

	var (
		memberRepo    memberrepoport.Repository
		candidateRepo candidaterepoport.Repository
		adminLogRepo  adminlogrepoport.Repository
		settingsRepo  settingsrepoport.Repository
		idemStore     idempotencyport.Store
		votingOpts    voting.Options
	)

	switch cfg.Storage {
	case config.StoragePostgres:
		if err := postgres.Migrate(cfg.DatabaseURL, log); err != nil {
			return err
		}
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return err
		}
		defer pool.Close()

		memberRepo = pgmemberrepo.NewRepo(pool)
		candidateRepo = pgcandidaterepo.NewRepo(pool)
		adminLogRepo = pgadminlogrepo.NewRepo(pool)
		settingsRepo = pgsettingsrepo.NewRepo(pool)
		idemStore = pgidempotency.NewStore(pool)
		votingOpts.Recorder = pgballot.NewRecorder(pool)
	default:
		memberRepo = memmemberrepo.NewRepo()
		candidateRepo = memcandidaterepo.NewRepo()
		adminLogRepo = memadminlogrepo.NewRepo()
		settingsRepo = memsettingsrepo.NewRepo()
		idemStore = memidempotency.NewStore()
	}
	log.Info("storage configured", zap.String("backend", string(cfg.Storage)))

	hub := realtime.NewHub(log.Named("realtime"))
	go hub.Run(ctx)

	var (
		revoked   revocationport.Store = memrevocation.NewStore(clk)
		publisher tallyfeed.Publisher  = hub
	)
	if cfg.RedisURL != "" {
		client, err := redisadapter.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		revoked = redisrevocation.NewStore(client, clk)
		feed := redistallyfeed.NewFeed(client, redistallyfeed.DefaultChannel, log.Named("tallyfeed"))
		publisher = feed
		go func() {
			if err := feed.Relay(ctx, hub.Deliver); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("tally relay stopped", zap.Error(err))
			}
		}()
		log.Info("redis configured; sessions and tallies are shared across instances")
	}
	votingOpts.Publisher = publisher

	hasher := passwords.NewHasher(cfg.BcryptCost)
	gen := credentials.New()
	tokens := sessiontoken.New(cfg.Session)

	audit := auditlog.NewService(adminLogRepo, clk, log.Named("auditlog"))
	settingsSvc := settings.NewService(settingsRepo, clk, audit, log.Named("settings"))

	runner := bootstrap.NewRunner(memberRepo, candidateRepo, settingsSvc, hasher, gen, clk, log.Named("bootstrap"))
	report, err := runner.Run(ctx, bootstrap.Options{AdminPassword: cfg.BootstrapAdminPassword, Demo: cfg.BootstrapSeed})
	if err != nil {
		return err
	}
	log.Info("bootstrap finished",
		zap.Bool("settingsCreated", report.SettingsCreated),
		zap.Bool("adminCreated", report.AdminCreated),
		zap.Int("membersSeeded", report.MembersSeeded),
		zap.Int("candidatesSeeded", report.CandidatesSeeded),
	)

	svcs := httpapi.Services{
		Sessions:   sessions.NewService(memberRepo, revoked, tokens, hasher, settingsSvc, audit, clk, log.Named("sessions")),
		Members:    members.NewService(memberRepo, clk, gen, hasher, audit, log.Named("members")),
		Candidates: candidates.NewService(candidateRepo, clk, audit, log.Named("candidates")),
		Voting:     voting.NewService(memberRepo, candidateRepo, clk, log.Named("voting"), votingOpts),
		AuditLog:   audit,
		Settings:   settingsSvc,
	}

	handler := httpapi.NewRouterWithOptions(
		httpapi.NewServer(svcs, idemStore, log.Named("httpapi")),
		httpapi.RouterOptions{
			Logger:         log.Named("http"),
			RequestTimeout: cfg.RequestTimeout,
			Tallies:        hub,
		},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
