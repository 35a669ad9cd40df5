package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"webdiary-server/internal/observability"
)

// HistoryPruner removes stale status history entries.
type HistoryPruner interface {
	PruneStatusHistory(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// CleanupHandler serves the cron-triggered cleanup endpoint. It is
// hidden (404) unless a cron secret is configured.
type CleanupHandler struct {
	pruner     HistoryPruner
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
	batchSize  int
}

func NewCleanupHandler(pruner HistoryPruner, logger *observability.Logger, cronSecret string, retention time.Duration, batchSize int) *CleanupHandler {
	if retention <= 0 {
		retention = 365 * 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	return &CleanupHandler{
		pruner:     pruner,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	runID := uuid.NewString()
	cutoff := time.Now().UTC().Add(-h.retention)

	deleted, err := h.pruner.PruneStatusHistory(r.Context(), cutoff, h.batchSize)
	if err != nil {
		h.logger.Error("history_cleanup_failed", map[string]any{"run_id": runID, "error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("history_cleanup_completed", map[string]any{
		"run_id":                 runID,
		"deleted_status_changes": deleted,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                 "ok",
		"run_id":                 runID,
		"deleted_status_changes": deleted,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
