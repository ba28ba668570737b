package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/govledger/internal/accounting"
)

// StatusHandler reports the running mode and the loaded snapshot.
type StatusHandler struct {
	mode      string
	accountID string
	snapshots accounting.SnapshotSource
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, accountID string, snapshots accounting.SnapshotSource, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, accountID: accountID, snapshots: snapshots, startedAt: startedAt}
}

// GetStatus responds with mode, account and snapshot metadata.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.mode,
		"account":        h.accountID,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"loaded":         false,
	}
	if snap := h.snapshots.Snapshot(); snap != nil {
		body["loaded"] = true
		body["version"] = snap.Version
		body["records"] = snap.Len()
		body["fetched_at"] = snap.FetchedAt
	}
	writeJSON(w, http.StatusOK, body)
}
