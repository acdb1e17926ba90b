package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/platform/auth/sessiontoken"
	"github.com/dma-portal/association-api/internal/platform/config"
	"github.com/dma-portal/association-api/internal/platform/logging"
)

// Tiny dev-only session token minter.
//
// It signs tokens with the same SESSION_* settings as cmd/api, so a local API accepts them
// for any member id that exists there. The role claim is informational; the API recomputes it.

func main() {
	_ = godotenv.Load()
	log := logging.New(logging.Config{Level: getenv("LOG_LEVEL", "info"), Format: "console"})
	defer func() { _ = log.Sync() }()

	if os.Getenv("APP_ENV") == "" {
		_ = os.Setenv("APP_ENV", "development")
	}
	cfg, err := config.LoadSessionConfigFromEnv()
	if err != nil {
		log.Fatal("invalid session config", zap.Error(err))
	}
	tokens := sessiontoken.New(cfg)

	// One-shot mode: devtoken <memberId> prints a token and exits.
	if len(os.Args) > 1 {
		tok, _, err := tokens.Issue(strings.TrimSpace(os.Args[1]), getenv("ROLE", "member"))
		if err != nil {
			log.Fatal("mint token", zap.Error(err))
		}
		_, _ = os.Stdout.WriteString(tok + "\n")
		return
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Mint a token:
	//   GET /token?sub=mem1&role=member
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		sub := strings.TrimSpace(r.URL.Query().Get("sub"))
		if sub == "" {
			http.Error(w, "missing sub", http.StatusBadRequest)
			return
		}
		role := strings.TrimSpace(r.URL.Query().Get("role"))
		if role == "" {
			role = "member"
		}

		tok, claims, err := tokens.Issue(sub, role)
		if err != nil {
			log.Error("mint token", zap.String("sub", sub), zap.Error(err))
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":     tok,
			"sub":       claims.Subject,
			"role":      claims.Role,
			"sessionId": claims.SessionID,
			"iss":       cfg.Issuer,
			"exp":       claims.ExpiresAt.Unix(),
		})
	})

	port := getenv("PORT", "5556")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("devtoken listening", zap.String("addr", srv.Addr), zap.String("iss", cfg.Issuer), zap.Duration("ttl", cfg.TTL))
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal("listen", zap.Error(err))
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
