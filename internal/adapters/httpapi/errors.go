package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/app/apperr"
)

type ErrorBody struct {
	Code      string                             `json:"code"`
	Message   string                             `json:"message"`
	Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
	RequestId nullable.Nullable[string]          `json:"requestId,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func apiError(ctx context.Context, code string, message string, details map[string]any) ErrorResponse {
	var er ErrorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(ctx); rid != "" {
		er.Error.RequestId = nullable.NewNullableWithValue(rid)
	}
	return er
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	writeJSON(w, status, apiError(r.Context(), code, message, details))
}

// writeAppError maps service errors to the envelope. Anything unrecognised is a logged 500.
func writeAppError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	if ae, ok := apperr.As(err); ok {
		if ae.Status >= http.StatusInternalServerError {
			log.Warn("request failed",
				zap.String("code", ae.Code),
				zap.String("requestId", middleware.GetReqID(r.Context())),
				zap.Error(err),
			)
		}
		if ae.Retryable() {
			w.Header().Set("Retry-After", "1")
		}
		writeError(w, r, ae.Status, ae.Code, ae.Message, ae.Details)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, "TIMEOUT", "The request timed out. Please try again.", nil)
		return
	}
	log.Error("unhandled error",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("requestId", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, r, http.StatusInternalServerError, apperr.CodeInternal, "Internal server error.", nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
