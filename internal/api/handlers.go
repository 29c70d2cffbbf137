// Package api exposes the admin HTTP endpoints for triggering syncs and exporting filings.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ellenzeng3/lda-filing-bot/internal/auth"
	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/export"
	"github.com/ellenzeng3/lda-filing-bot/internal/notify"
	"github.com/ellenzeng3/lda-filing-bot/internal/pipeline"
)

// Runner starts and tracks background syncs.
type Runner interface {
	Start(req pipeline.Request, onDone func(*pipeline.Task)) *pipeline.Task
	Get(id string) (*pipeline.Task, bool)
}

// Handler coordinates HTTP requests with the sync runner and store.
type Handler struct {
	runner   Runner
	store    domain.Store
	notifier notify.Notifier
	now      func() time.Time
	logger   logrus.FieldLogger
}

// NewHandler builds a Handler. notifier may be nil, which disables ?notify=true.
func NewHandler(runner Runner, store domain.Store, notifier notify.Notifier, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{runner: runner, store: store, notifier: notifier, now: time.Now, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sync", h.sync)
	mux.HandleFunc("/v1/sync/", h.syncByID)
	mux.HandleFunc("/v1/filings", h.filings)
	mux.HandleFunc("/v1/filings/export", h.exportCSV)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SyncResponse acknowledges a started sync.
type SyncResponse struct {
	TaskID  string             `json:"task_id"`
	State   pipeline.TaskState `json:"state"`
	Request pipeline.Request   `json:"request"`
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeFilingsSync) {
		return
	}

	period, year, err := h.periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	req := pipeline.Request{Period: period, Year: year, ClientName: strings.TrimSpace(r.URL.Query().Get("client"))}

	// Syncs announce what they find unless the caller opts out with notify=false.
	announce := h.notifier != nil
	if raw := r.URL.Query().Get("notify"); raw != "" {
		want, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "notify must be true or false")
			return
		}
		if want && h.notifier == nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "no notifier configured")
			return
		}
		announce = want
	}
	var onDone func(*pipeline.Task)
	if announce {
		onDone = h.notifyOnDone
	}

	task := h.runner.Start(req, onDone)
	writeJSON(w, http.StatusAccepted, SyncResponse{TaskID: task.ID, State: task.State(), Request: req})
}

func (h *Handler) notifyOnDone(t *pipeline.Task) {
	report, err := t.Result()
	if err != nil {
		return
	}
	if nerr := h.notifier.Notify(context.Background(), report.NewRelevant); nerr != nil {
		h.logger.WithError(nerr).WithField("task_id", t.ID).Warn("notification failed")
	}
}

func (h *Handler) syncByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/sync/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing task id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeFilingsRead) {
		return
	}

	task, ok := h.runner.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task.View())
}

// FilingsResponse lists stored filings for a period.
type FilingsResponse struct {
	Period  domain.Period   `json:"period"`
	Year    int             `json:"year"`
	Count   int             `json:"count"`
	Filings []domain.Filing `json:"filings"`
}

func (h *Handler) filings(w http.ResponseWriter, r *http.Request) {
	period, year, filings, ok := h.query(w, r)
	if !ok {
		return
	}
	if filings == nil {
		filings = []domain.Filing{}
	}
	writeJSON(w, http.StatusOK, FilingsResponse{Period: period, Year: year, Count: len(filings), Filings: filings})
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	period, year, filings, ok := h.query(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, filings); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(period, year)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// query handles the shared read path; ok is false once an error response has been written.
func (h *Handler) query(w http.ResponseWriter, r *http.Request) (domain.Period, int, []domain.Filing, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return "", 0, nil, false
	}
	if !requireScope(w, r, auth.ScopeFilingsRead) {
		return "", 0, nil, false
	}
	period, year, err := h.periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return "", 0, nil, false
	}
	filings, err := h.store.QueryByPeriod(r.Context(), period, year, !parseBool(r.URL.Query().Get("all")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return "", 0, nil, false
	}
	return period, year, filings, true
}

// periodFromQuery reads period and year, defaulting both to the current quarter.
func (h *Handler) periodFromQuery(r *http.Request) (domain.Period, int, error) {
	q := r.URL.Query()
	period, year := domain.CurrentPeriod(h.now())
	if raw := q.Get("period"); raw != "" {
		p, err := domain.ParsePeriod(raw)
		if err != nil {
			return "", 0, err
		}
		period = p
	}
	if raw := q.Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1999 {
			return "", 0, fmt.Errorf("invalid year %q", raw)
		}
		year = y
	}
	return period, year, nil
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return false
	}
	return true
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
