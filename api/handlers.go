package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/crednest/loan-engine/loan"
	"github.com/crednest/loan-engine/schedule"
	"github.com/crednest/loan-engine/store/sqlite"
)

// Handler serves the ops endpoints.
type Handler struct {
	Store    *sqlite.Store
	Registry *schedule.Registry
	Logger   *zap.Logger
}

func NewHandler(store *sqlite.Store, registry *schedule.Registry, logger *zap.Logger) *Handler {
	return &Handler{Store: store, Registry: registry, Logger: logger}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListJobs returns the registered task names.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"jobs": h.Registry.TaskNames()})
}

// RunJob triggers a task outside its cadence. The registry's
// single-flight guard still applies, so an in-flight run makes this a
// logged no-op rather than a concurrent second run.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Registry.RunNow(name); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "triggered"})
}

type runResponse struct {
	ID          string     `json:"id"`
	Job         string     `json:"job"`
	Status      string     `json:"status"`
	Processed   int        `json:"processed"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ListRuns returns recent batch runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		h.Logger.Error("failed to list runs", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse{
			ID:          run.ID,
			Job:         run.Job,
			Status:      run.Status,
			Processed:   run.Processed,
			Failed:      run.Failed,
			Skipped:     run.Skipped,
			Error:       run.Error,
			StartedAt:   run.StartedAt,
			CompletedAt: run.CompletedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": out})
}

type loanResponse struct {
	ID                 int64    `json:"id"`
	Principal          string   `json:"principal"`
	DailyInterestRate  string   `json:"dailyInterestRate"`
	DueDates           []string `json:"dueDates"`
	AccruedInterest    string   `json:"accruedInterest"`
	AccruedPenalty     string   `json:"accruedPenalty"`
	LastCalculatedDate string   `json:"lastCalculatedDate,omitempty"`
	Status             string   `json:"status"`
	Version            int64    `json:"version"`
}

// GetLoan returns one loan's accrual state.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	l, err := h.Store.GetLoan(r.Context(), id)
	if err != nil {
		if errors.Is(err, loan.ErrLoanNotFound) {
			respondError(w, http.StatusNotFound, "loan not found")
			return
		}
		h.Logger.Error("failed to load loan", zap.Int64("loan_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load loan")
		return
	}

	dueDates := make([]string, 0, len(l.DueDates))
	for _, d := range l.DueDates {
		dueDates = append(dueDates, d.String())
	}

	respondJSON(w, http.StatusOK, loanResponse{
		ID:                 l.ID,
		Principal:          l.Principal.String(),
		DailyInterestRate:  l.DailyInterestRate.String(),
		DueDates:           dueDates,
		AccruedInterest:    l.AccruedInterest.String(),
		AccruedPenalty:     l.AccruedPenalty.String(),
		LastCalculatedDate: l.LastCalculatedDate.String(),
		Status:             string(l.Status),
		Version:            l.Version,
	})
}

// QueueStats returns the notification queue's per-status counts.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.QueueCounts(r.Context())
	if err != nil {
		h.Logger.Error("failed to count queue", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to count queue")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
