package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/shopstream/api/internal/platform/requestctx"
)

// Error is the JSON error envelope every order API endpoint returns. Code is
// a stable machine-readable identifier (order_not_found, insufficient_stock);
// Message is for humans and may change between releases.
type Error struct {
	Code    string
	Message string
	Status  int
}

// NewError builds an envelope, clamping code and message so a hostile input
// cannot inject newlines or oversized text into responses and logs.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clampLine(code, 80),
		Message: clampLine(message, 512),
		Status:  status,
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteError serialises the envelope, filling request and trace identifiers
// from the context so clients can quote them in support requests.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := errorBody{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: clampLine(middleware.GetReqID(ctx), 80),
		TraceID:   clampLine(requestctx.TraceID(ctx), 64),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func clampLine(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
