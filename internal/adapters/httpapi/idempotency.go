package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/idempotency"
)

const (
	idempotencyHeader = "Idempotency-Key"

	codeImportAlreadyApplied = "IMPORT_ALREADY_APPLIED"
)

// handler produces a status and a JSON-encodable body, or an error for writeAppError.
type handler func() (int, any, error)

// replayer derives the response stored for later replays from the one sent the first time.
type replayer func(status int, resp any) (int, any)

// idempotent runs h at most once per (Idempotency-Key, actor, route, body):
// - no key: h runs normally
// - same key and body: the stored response is replayed
// - same key, different body: 409 IDEMPOTENCY_KEY_REUSE
//
// Only successful responses are stored, so failed attempts may be retried with the same key.
func (s *Server) idempotent(w http.ResponseWriter, r *http.Request, actor domain.MemberID, route string, body any, h handler) {
	s.idempotentWith(w, r, actor, route, body, h, nil)
}

// idempotentWith is idempotent with the stored response rewritten by replay. Responses carrying
// secrets use it so the idempotency store never holds them.
func (s *Server) idempotentWith(w http.ResponseWriter, r *http.Request, actor domain.MemberID, route string, body any, h handler, replay replayer) {
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" || s.Idem == nil {
		s.respond(w, r, h)
		return
	}
	ctx := r.Context()

	bodyHash, err := hashBody(body)
	if err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	metaFP := idempotency.Fingerprint{
		Key:    idempotency.Key(key),
		Actor:  actor,
		Method: r.Method,
		Route:  route,
	}
	if meta, ok, err := s.Idem.Get(ctx, metaFP); err != nil {
		writeAppError(w, r, s.log, err)
		return
	} else if ok {
		if string(meta.Body) != bodyHash {
			writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
			return
		}
	} else {
		_ = s.Idem.Put(ctx, metaFP, idempotency.Record{
			StatusCode:  0,
			ContentType: "text/plain",
			Body:        []byte(bodyHash),
			CreatedAt:   time.Now().UTC(),
		})
	}

	respFP := metaFP
	respFP.BodyHash = bodyHash
	if rec, ok, err := s.Idem.Get(ctx, respFP); err != nil {
		writeAppError(w, r, s.log, err)
		return
	} else if ok && rec.StatusCode > 0 {
		w.Header().Set("Content-Type", rec.ContentType)
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.Body)
		return
	}

	status, resp, err := h()
	if err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	stored, storedStatus := raw, status
	if replay != nil {
		var v any
		storedStatus, v = replay(status, resp)
		if stored, err = json.Marshal(v); err != nil {
			writeAppError(w, r, s.log, err)
			return
		}
	}
	_ = s.Idem.Put(ctx, respFP, idempotency.Record{
		StatusCode:  storedStatus,
		ContentType: "application/json",
		Body:        stored,
		CreatedAt:   time.Now().UTC(),
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, h handler) {
	status, resp, err := h()
	if err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	if resp == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, resp)
}

func hashBody(body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
