package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/celf/service/metrics"
	"github.com/brojonat/celf/service/wallet"
)

// sseKeepaliveInterval is how often a keepalive comment is written.
var sseKeepaliveInterval = 10 * time.Second

// handleStreamWallet handles SSE streaming of the wallet view model.
// The current view is sent on connect and again after every refresh or
// invalidation.
func handleStreamWallet(ctrl *wallet.Controller, userID string, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		// Streams outlive the server's write timeout.
		if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
			logger.DebugContext(r.Context(), "cannot clear write deadline", "error", err)
		}

		updates, unsubscribe := ctrl.Subscribe()
		defer unsubscribe()

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		logger.DebugContext(r.Context(), "SSE client connected",
			"remote_addr", r.RemoteAddr,
		)

		send := func(event string, payload interface{}) bool {
			data, err := json.Marshal(payload)
			if err != nil {
				logger.WarnContext(r.Context(), "failed to marshal event",
					"event", event,
					"error", err,
				)
				return true
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return false
			}
			flusher.Flush()
			if m != nil {
				m.RecordSSEEventSent(event)
			}
			return true
		}

		// Send initial connection event and the current state
		if !send("connected", map[string]string{"user_id": userID}) {
			return
		}
		if !send("wallet", ctrl.View()) {
			return
		}

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				// Send keepalive comment to prevent timeout
				if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
					return
				}
				flusher.Flush()

			case _, ok := <-updates:
				if !ok {
					return
				}
				if !send("wallet", ctrl.View()) {
					return
				}

			case <-r.Context().Done():
				// Client disconnected
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
