package computer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webdiary-server/internal/observability"
)

type fakeStore struct {
	computers []Computer
	history   []StatusChange

	statusCalls  []statusCall
	versionCalls []versionCall
	rebootCalls  [][]int64

	err error
}

type statusCall struct {
	ids       []int64
	status    string
	note      string
	changedBy string
}

type versionCall struct {
	ids       []int64
	version   string
	changedBy string
}

func (s *fakeStore) List(context.Context) ([]Computer, error) {
	return s.computers, s.err
}

func (s *fakeStore) Get(_ context.Context, id int64) (Computer, error) {
	if s.err != nil {
		return Computer{}, s.err
	}
	for _, c := range s.computers {
		if c.ID == id {
			return c, nil
		}
	}
	return Computer{}, ErrComputerNotFound
}

func (s *fakeStore) StatusHistory(context.Context, int64, int) ([]StatusChange, error) {
	return s.history, s.err
}

func (s *fakeStore) UpdateStatus(_ context.Context, ids []int64, status, note, changedBy string) ([]Computer, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.statusCalls = append(s.statusCalls, statusCall{ids: ids, status: status, note: note, changedBy: changedBy})
	return s.computers, nil
}

func (s *fakeStore) UpdateVersion(_ context.Context, ids []int64, version, changedBy string) ([]Computer, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.versionCalls = append(s.versionCalls, versionCall{ids: ids, version: version, changedBy: changedBy})
	return s.computers, nil
}

func (s *fakeStore) RecordReboot(_ context.Context, ids []int64) ([]Computer, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.rebootCalls = append(s.rebootCalls, ids)
	return s.computers, nil
}

func newTestHandler(store Store) *Handler {
	return NewHandler(store, observability.NewLoggerTo(io.Discard))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func postJSON(t *testing.T, h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestListComputers(t *testing.T) {
	t.Parallel()

	store := &fakeStore{computers: []Computer{
		{ID: 1, Name: "FE-01", IPAddress: "192.168.10.11", Status: StatusReady},
		{ID: 2, Name: "FE-02", IPAddress: "192.168.10.12", Status: StatusReserved, StatusNote: "Release-Test"},
	}}
	handler := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/computers", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Timestamp)

	computers, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Len(t, computers, 2)
}

func TestDetails(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		computers: []Computer{{ID: 3, Name: "FE-03", IPAddress: "192.168.10.13", Status: StatusReady}},
		history:   []StatusChange{{OldStatus: StatusReserved, NewStatus: StatusReady, ChangedBy: "alice"}},
	}
	handler := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/computers/3", nil)
	req.SetPathValue("id", "3")
	rec := httptest.NewRecorder()
	handler.Details(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "computer")
	assert.Contains(t, data, "status_history")
	assert.Contains(t, data, "system_info")
	assert.Contains(t, data, "ping_status")
}

func TestDetailsNotFound(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/computers/99", nil)
	req.SetPathValue("id", "99")
	rec := httptest.NewRecorder()
	handler.Details(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)
}

func TestDetailsInvalidID(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(&fakeStore{})

	for _, raw := range []string{"abc", "0", "-5", ""} {
		req := httptest.NewRequest(http.MethodGet, "/api/computers/x", nil)
		req.SetPathValue("id", raw)
		rec := httptest.NewRecorder()
		handler.Details(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "id %q", raw)
	}
}

func TestUpdateStatusValidation(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	handler := newTestHandler(store)

	cases := map[string]string{
		"no ids":         `{"computer_ids":[],"status":"Testbereit"}`,
		"bad status":     `{"computer_ids":[1],"status":"Kaputt"}`,
		"reserved blank": `{"computer_ids":[1],"status":"Reserviert","status_note":"   "}`,
		"bad json":       `{"computer_ids":`,
		"unknown field":  `{"computer_ids":[1],"status":"Testbereit","bogus":true}`,
	}
	for name, body := range cases {
		rec := postJSON(t, handler.UpdateStatus, "/api/computers/status", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "case %q", name)
	}
	assert.Empty(t, store.statusCalls, "store must not be touched on validation failure")
}

func TestUpdateStatusSuccess(t *testing.T) {
	t.Parallel()

	store := &fakeStore{computers: []Computer{
		{ID: 1, Name: "FE-01", Status: StatusReserved, StatusNote: "Release-Test"},
		{ID: 2, Name: "FE-02", Status: StatusReserved, StatusNote: "Release-Test"},
	}}
	handler := newTestHandler(store)

	rec := postJSON(t, handler.UpdateStatus, "/api/computers/status",
		`{"computer_ids":[1,2],"status":"Reserviert","status_note":"Release-Test"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	require.Len(t, store.statusCalls, 1)
	call := store.statusCalls[0]
	assert.Equal(t, []int64{1, 2}, call.ids)
	assert.Equal(t, StatusReserved, call.status)
	assert.Equal(t, "Release-Test", call.note)
	// No token on the request, so the fallback actor is recorded.
	assert.Equal(t, "System", call.changedBy)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), data["count"])
}

func TestUpdateStatusMissingComputers(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: &MissingComputersError{IDs: []int64{7, 9}}}
	handler := newTestHandler(store)

	rec := postJSON(t, handler.UpdateStatus, "/api/computers/status",
		`{"computer_ids":[1,7,9],"status":"Testbereit"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{float64(7), float64(9)}, data["missing_ids"])
}

func TestUpdateVersionValidation(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	handler := newTestHandler(store)

	for name, body := range map[string]string{
		"no ids":        `{"computer_ids":[],"version":"2024.3"}`,
		"blank version": `{"computer_ids":[1],"version":"  "}`,
	} {
		rec := postJSON(t, handler.UpdateVersion, "/api/computers/version", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "case %q", name)
	}
	assert.Empty(t, store.versionCalls)
}

func TestUpdateVersionSuccess(t *testing.T) {
	t.Parallel()

	store := &fakeStore{computers: []Computer{{ID: 1, Name: "FE-01", InstalledVersion: "2024.3"}}}
	handler := newTestHandler(store)

	rec := postJSON(t, handler.UpdateVersion, "/api/computers/version",
		`{"computer_ids":[1],"version":"2024.3"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.versionCalls, 1)
	assert.Equal(t, "2024.3", store.versionCalls[0].version)
}

func TestReboot(t *testing.T) {
	t.Parallel()

	store := &fakeStore{computers: []Computer{{ID: 1, Name: "FE-01", IPAddress: "192.168.10.11"}}}
	handler := newTestHandler(store)

	rec := postJSON(t, handler.Reboot, "/api/computers/reboot", `{"computer_ids":[1]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	require.Len(t, store.rebootCalls, 1)
	assert.Equal(t, []int64{1}, store.rebootCalls[0])
}

func TestRebootRequiresIDs(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	handler := newTestHandler(store)

	rec := postJSON(t, handler.Reboot, "/api/computers/reboot", `{"computer_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.rebootCalls)
}
