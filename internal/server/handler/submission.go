package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
)

// SubmissionHandler serves the submission history.
type SubmissionHandler struct {
	store  domain.SubmissionStore
	logger *slog.Logger
}

// NewSubmissionHandler creates a SubmissionHandler.
func NewSubmissionHandler(store domain.SubmissionStore, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{store: store, logger: logger.With(slog.String("handler", "submission"))}
}

type submissionResponse struct {
	ID        string                  `json:"id"`
	Account   string                  `json:"account"`
	Action    domain.ActionKind       `json:"action"`
	Status    domain.SubmissionStatus `json:"status"`
	TxHash    string                  `json:"tx_hash,omitempty"`
	Error     string                  `json:"error,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

func toSubmissionResponse(s domain.Submission) submissionResponse {
	return submissionResponse{
		ID:        s.ID,
		Account:   s.AccountID,
		Action:    s.Action,
		Status:    s.Status,
		TxHash:    s.TxHash,
		Error:     s.Error,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// ListSubmissions lists an account's recent submissions.
// GET /api/accounts/{id}/submissions
func (h *SubmissionHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	id, ok := accountParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	subs, err := h.store.ListRecent(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list submissions", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	out := make([]submissionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toSubmissionResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSubmission returns one submission.
// GET /api/submissions/{sid}
func (h *SubmissionHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetByID(r.Context(), r.PathValue("sid"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get submission", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load submission")
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(s))
}
