package computer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"webdiary-server/internal/auth"
	"webdiary-server/internal/observability"
)

const (
	maxJSONBodyBytes   = 1 << 20
	statusHistoryLimit = 20
)

// Store is the computer store consumed by the handlers.
type Store interface {
	List(ctx context.Context) ([]Computer, error)
	Get(ctx context.Context, id int64) (Computer, error)
	StatusHistory(ctx context.Context, id int64, limit int) ([]StatusChange, error)
	UpdateStatus(ctx context.Context, ids []int64, status, note, changedBy string) ([]Computer, error)
	UpdateVersion(ctx context.Context, ids []int64, version, changedBy string) ([]Computer, error)
	RecordReboot(ctx context.Context, ids []int64) ([]Computer, error)
}

type Handler struct {
	store  Store
	logger *observability.Logger
}

func NewHandler(store Store, logger *observability.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

type statusUpdateRequest struct {
	ComputerIDs []int64 `json:"computer_ids"`
	Status      string  `json:"status"`
	StatusNote  string  `json:"status_note"`
}

type versionUpdateRequest struct {
	ComputerIDs []int64 `json:"computer_ids"`
	Version     string  `json:"version"`
}

type rebootRequest struct {
	ComputerIDs []int64 `json:"computer_ids"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	computers, err := h.store.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list computers")
		return
	}

	writeSuccess(w, http.StatusOK, computers, "computers loaded")
}

func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid computer id")
		return
	}

	c, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrComputerNotFound) {
			writeError(w, http.StatusNotFound, "computer not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load computer details")
		return
	}

	history, err := h.store.StatusHistory(r.Context(), id, statusHistoryLimit)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load computer details")
		return
	}

	info := simulateSystemInfo(time.Now().UTC())

	writeSuccess(w, http.StatusOK, Details{
		Computer:      c,
		StatusHistory: history,
		SystemInfo:    info,
		PingStatus:    info.NetworkStatus,
	}, "computer details loaded")
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusUpdateRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if len(body.ComputerIDs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one computer must be selected")
		return
	}
	if !IsValidStatus(body.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if body.Status == StatusReserved && strings.TrimSpace(body.StatusNote) == "" {
		writeError(w, http.StatusBadRequest, "a note is required for status 'Reserviert'")
		return
	}

	updated, err := h.store.UpdateStatus(r.Context(), body.ComputerIDs, body.Status, body.StatusNote, actingUsername(r))
	if err != nil {
		h.writeBulkError(w, err, "failed to update status")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"updated_computers": updated,
		"count":             len(updated),
	}, "status updated")
}

func (h *Handler) UpdateVersion(w http.ResponseWriter, r *http.Request) {
	var body versionUpdateRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if len(body.ComputerIDs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one computer must be selected")
		return
	}
	if strings.TrimSpace(body.Version) == "" {
		writeError(w, http.StatusBadRequest, "version must not be empty")
		return
	}

	updated, err := h.store.UpdateVersion(r.Context(), body.ComputerIDs, body.Version, actingUsername(r))
	if err != nil {
		h.writeBulkError(w, err, "failed to update version")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"updated_computers": updated,
		"count":             len(updated),
	}, "version updated")
}

func (h *Handler) Reboot(w http.ResponseWriter, r *http.Request) {
	var body rebootRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if len(body.ComputerIDs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one computer must be selected")
		return
	}

	rebooted, err := h.store.RecordReboot(r.Context(), body.ComputerIDs)
	if err != nil {
		h.writeBulkError(w, err, "failed to initiate reboot")
		return
	}

	// The reboot is mocked: log the command that a real integration
	// would dispatch over remote management.
	for _, c := range rebooted {
		h.logger.Info("reboot_requested", map[string]any{
			"computer_id":   c.ID,
			"name":          c.Name,
			"requested_by":  actingUsername(r),
			"would_execute": fmt.Sprintf("ssh admin@%s 'sudo reboot'", c.IPAddress),
		})
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"rebooted_computers": rebooted,
		"count":              len(rebooted),
	}, "reboot initiated")
}

func (h *Handler) writeBulkError(w http.ResponseWriter, err error, fallback string) {
	var missingErr *MissingComputersError
	if errors.As(err, &missingErr) {
		writeEnvelope(w, http.StatusBadRequest, false, map[string]any{
			"missing_ids": missingErr.IDs,
		}, missingErr.Error())
		return
	}

	sentry.CaptureException(err)
	writeError(w, http.StatusInternalServerError, fallback)
}

func actingUsername(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.Username
	}
	return "System"
}

func simulateSystemInfo(now time.Time) SystemInfo {
	networkStatus := "offline"
	if rand.IntN(2) == 1 {
		networkStatus = "online"
	}

	return SystemInfo{
		OS:            "Windows 10 Enterprise",
		CPU:           "Intel Core i7-10700K @ 3.80GHz",
		RAM:           "16 GB DDR4-3200",
		Storage:       "512 GB NVMe SSD",
		Uptime:        "7 Tage, 14 Stunden",
		LastSeen:      now.Add(-time.Duration(1+rand.IntN(60)) * time.Minute).Format(noteTimeLayout),
		NetworkStatus: networkStatus,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	writeEnvelope(w, status, true, data, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, false, nil, message)
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:   success,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
