package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webdiary-server/internal/observability"
)

type fakePruner struct {
	calls   int
	cutoff  time.Time
	batch   int
	deleted int64
	err     error
}

func (p *fakePruner) PruneStatusHistory(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	p.calls++
	p.cutoff = cutoff
	p.batch = batchSize
	return p.deleted, p.err
}

func cleanupRequest(h *CleanupHandler, method, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/internal/maintenance/cleanup", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestCleanupHiddenWithoutSecret(t *testing.T) {
	t.Parallel()

	pruner := &fakePruner{}
	handler := NewCleanupHandler(pruner, observability.NewLoggerTo(io.Discard), "", 0, 0)

	rec := cleanupRequest(handler, http.MethodPost, "Bearer anything")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, pruner.calls)
}

func TestCleanupRejectsBadSecret(t *testing.T) {
	t.Parallel()

	pruner := &fakePruner{}
	handler := NewCleanupHandler(pruner, observability.NewLoggerTo(io.Discard), "cron-secret", 0, 0)

	for name, header := range map[string]string{
		"missing":     "",
		"wrong value": "Bearer not-the-secret",
		"no scheme":   "cron-secret",
		"bad scheme":  "Basic cron-secret",
	} {
		rec := cleanupRequest(handler, http.MethodPost, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "case %q", name)
	}
	assert.Zero(t, pruner.calls)
}

func TestCleanupRejectsWrongMethod(t *testing.T) {
	t.Parallel()

	pruner := &fakePruner{}
	handler := NewCleanupHandler(pruner, observability.NewLoggerTo(io.Discard), "cron-secret", 0, 0)

	rec := cleanupRequest(handler, http.MethodDelete, "Bearer cron-secret")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, pruner.calls)
}

func TestCleanupRuns(t *testing.T) {
	t.Parallel()

	pruner := &fakePruner{deleted: 42}
	handler := NewCleanupHandler(pruner, observability.NewLoggerTo(io.Discard), "cron-secret", 30*24*time.Hour, 100)

	rec := cleanupRequest(handler, http.MethodPost, "Bearer cron-secret")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, 100, pruner.batch)
	assert.WithinDuration(t, time.Now().UTC().Add(-30*24*time.Hour), pruner.cutoff, time.Minute)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(42), body["deleted_status_changes"])
	assert.NotEmpty(t, body["run_id"])
}

func TestCleanupReportsFailure(t *testing.T) {
	t.Parallel()

	pruner := &fakePruner{err: errors.New("connection reset")}
	handler := NewCleanupHandler(pruner, observability.NewLoggerTo(io.Discard), "cron-secret", 0, 0)

	rec := cleanupRequest(handler, http.MethodGet, "Bearer cron-secret")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
