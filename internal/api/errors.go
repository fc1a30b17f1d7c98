package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Esemudje/portfolio-manager-team02/internal/backend"
	"github.com/Esemudje/portfolio-manager-team02/internal/cash"
	"github.com/Esemudje/portfolio-manager-team02/internal/order"
	"github.com/Esemudje/portfolio-manager-team02/internal/poller"
	"github.com/Esemudje/portfolio-manager-team02/internal/quote"
	"github.com/Esemudje/portfolio-manager-team02/internal/symbol"
	"github.com/Esemudje/portfolio-manager-team02/internal/watchlist"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeErrorBody(w, errorResponse{Error: message}, status)
}

func writeErrorBody(w http.ResponseWriter, body errorResponse, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeFailure maps a domain or upstream error to a status code and a
// user-readable message.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *order.ValidationError
		br  *backend.BusinessRuleError
		he  *backend.HTTPError
		msg string
	)
	switch {
	case errors.As(err, &ve):
		writeErrorBody(w, errorResponse{Error: ve.Message, Code: ve.Code(), Field: ve.Field}, http.StatusUnprocessableEntity)
		return
	case errors.Is(err, watchlist.ErrDuplicateSymbol):
		writeErrorBody(w, errorResponse{Error: err.Error(), Code: "duplicate_symbol"}, http.StatusConflict)
		return
	case errors.Is(err, watchlist.ErrInvalidSymbol),
		errors.Is(err, symbol.ErrEmpty),
		errors.Is(err, symbol.ErrInvalidFormat):
		writeErrorBody(w, errorResponse{Error: err.Error(), Code: "invalid_symbol"}, http.StatusUnprocessableEntity)
		return
	case errors.Is(err, cash.ErrInvalidAmount):
		writeErrorBody(w, errorResponse{Error: err.Error(), Code: "invalid_amount"}, http.StatusUnprocessableEntity)
		return
	case errors.Is(err, cash.ErrInsufficientBalance):
		writeErrorBody(w, errorResponse{Error: err.Error(), Code: "insufficient_balance"}, http.StatusUnprocessableEntity)
		return
	case errors.As(err, &br):
		// The backend's reason is shown verbatim.
		writeErrorBody(w, errorResponse{Error: br.Reason, Code: "rejected"}, http.StatusUnprocessableEntity)
		return
	case errors.Is(err, quote.ErrMarker), errors.Is(err, quote.ErrNoPrice):
		writeError(w, "Stock symbol not found", http.StatusNotFound)
		return
	case errors.Is(err, backend.ErrUnknownReference):
		writeError(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, poller.ErrDiscarded):
		writeError(w, "refresh cancelled", http.StatusServiceUnavailable)
		return
	case errors.As(err, &he):
		msg = he.Message
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, backend.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, backend.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, backend.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, backend.ErrNetwork), errors.Is(err, backend.ErrServer), errors.Is(err, backend.ErrRequest):
		status = http.StatusBadGateway
	}
	if msg == "" {
		msg = "internal error"
	}
	if status >= 500 {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeError(w, msg, status)
}
