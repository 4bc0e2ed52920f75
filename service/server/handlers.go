package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/brojonat/celf/client"
	"github.com/brojonat/celf/service/wallet"
)

const maxTransactionIDLength = 128

// handleGetWallet returns a handler that renders the wallet view model.
// GET /api/v1/wallet
func handleGetWallet(ctrl *wallet.Controller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vm := ctrl.View()
		logger.Debug("wallet view rendered",
			"transactions", len(vm.Transactions),
			"refresh_failed", vm.RefreshFailed,
		)
		writeJSON(w, vm, http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists the cached transactions.
// GET /api/v1/wallet/transactions?limit={n}
func handleListTransactions(ctrl *wallet.Controller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		window := ctrl.Store().Window()
		limit := window
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsed < 1 || parsed > window {
				writeError(w, fmt.Sprintf("limit must be between 1 and %d", window), http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		rows := ctrl.Rows(ctrl.Store().Transactions(), limit)
		logger.Debug("transactions listed", "count", len(rows), "limit", limit)

		writeJSON(w, map[string]interface{}{
			"transactions": rows,
			"count":        len(rows),
			"loaded":       ctrl.Store().TransactionsLoaded(),
		}, http.StatusOK)
	})
}

// handleGetTransaction returns a handler for the transaction detail view.
// GET /api/v1/wallet/transactions/{id}
func handleGetTransaction(ctrl *wallet.Controller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := validateTransactionID(id); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		txn, err := ctrl.Transaction(r.Context(), id)
		if err != nil {
			if errors.Is(err, client.ErrNotFound) {
				writeError(w, "transaction not found", http.StatusNotFound)
				return
			}
			if errors.Is(err, wallet.ErrMalformedRecord) {
				logger.Warn("malformed transaction record", "id", id, "error", err)
				writeError(w, "transaction record is malformed", http.StatusBadGateway)
				return
			}
			logger.Error("failed to fetch transaction", "id", id, "error", err)
			writeError(w, "failed to fetch transaction", http.StatusBadGateway)
			return
		}

		writeJSON(w, ctrl.Detail(txn), http.StatusOK)
	})
}

// handleRefresh returns a handler that triggers a refresh.
// POST /api/v1/wallet/refresh?force={bool}
func handleRefresh(ctrl *wallet.Controller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		force, err := parseBoolParam(r, "force")
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		outcome := ctrl.Refresh(r.Context(), force)
		logger.Info("refresh requested", "force", force, "outcome", outcome)

		writeJSON(w, map[string]interface{}{
			"outcome": outcome,
			"wallet":  ctrl.View(),
		}, http.StatusOK)
	})
}

// handleInvalidateSession returns a handler that clears the cached wallet state.
// DELETE /api/v1/wallet/session
func handleInvalidateSession(ctrl *wallet.Controller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctrl.Invalidate()
		logger.Info("wallet session invalidated", "remote_addr", r.RemoteAddr)
		w.WriteHeader(http.StatusNoContent)
	})
}

// debugResponse is the JSON response format of the debug endpoints.
type debugResponse struct {
	wallet.Snapshot
	Outcome          wallet.Outcome `json:"outcome,omitempty"`
	BreakdownMatches *bool          `json:"breakdown_matches,omitempty"`
}

func newDebugResponse(snap wallet.Snapshot, outcome wallet.Outcome) debugResponse {
	resp := debugResponse{Snapshot: snap, Outcome: outcome}
	if snap.Balance != nil {
		matches := snap.Balance.BreakdownMatches()
		resp.BreakdownMatches = &matches
	}
	return resp
}

// handleDebugDump returns a handler that dumps the wallet state without side effects.
// GET /debug/wallet
func handleDebugDump(ctrl *wallet.Controller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, newDebugResponse(ctrl.DebugDump(), ""), http.StatusOK)
	})
}

// handleDebugRefresh returns a handler that forces a refresh and dumps the result.
// POST /debug/wallet/refresh
func handleDebugRefresh(ctrl *wallet.Controller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outcome, snap := ctrl.DebugRefresh(r.Context())
		writeJSON(w, newDebugResponse(snap, outcome), http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateTransactionID rejects ids that cannot be a valid path segment upstream.
func validateTransactionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("transaction id is required")
	}
	if len(id) > maxTransactionIDLength {
		return fmt.Errorf("transaction id too long (max %d characters)", maxTransactionIDLength)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f || r == '/' {
			return fmt.Errorf("transaction id contains invalid characters")
		}
	}
	return nil
}

func parseBoolParam(r *http.Request, name string) (bool, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s parameter: must be a boolean", name)
	}
	return b, nil
}
