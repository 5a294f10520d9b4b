package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"erp-sync-service/internal/store"
	"erp-sync-service/internal/sync"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.syncManager.RunOnce(r.Context())
	if errors.Is(err, sync.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.syncManager.GetStatus())
}

func (h *Handler) PullDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := sync.PullOptions{}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		opts.Since = since
	}
	var err error
	if opts.Offset, opts.Limit, err = pageParams(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.PullDeliveries(r.Context(), opts)
	writeBatch(w, res, err)
}

func (h *Handler) RetryPendingDeliveries(w http.ResponseWriter, r *http.Request) {
	_, limit, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.engine.RetryPendingDeliveries(r.Context(), limit)
	writeBatch(w, res, err)
}

func (h *Handler) SyncLeads(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.engine.SyncLeads(r.Context(), sync.PageOptions{Offset: offset, Limit: limit})
	writeBatch(w, res, err)
}

type statusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *Handler) PushStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	status := store.DeliveryStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}
	writeResult(w, h.engine.PushStatus(r.Context(), chi.URLParam(r, "id"), status, req.Notes))
}

type assignRequest struct {
	DriverID string `json:"driver_id"`
}

func (h *Handler) AssignDriver(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decode(w, r, &req) {
		return
	}
	if req.DriverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id is required")
		return
	}
	writeResult(w, h.engine.AssignDriver(r.Context(), chi.URLParam(r, "id"), req.DriverID))
}

type completeRequest struct {
	RecipientName   string     `json:"recipient_name"`
	Notes           string     `json:"notes"`
	SignatureBase64 string     `json:"signature_base64"`
	DeliveredAt     *time.Time `json:"delivered_at"`
}

func (h *Handler) CompleteDelivery(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !decode(w, r, &req) {
		return
	}
	proof := sync.ProofOfDelivery{RecipientName: req.RecipientName, Notes: req.Notes}
	if req.SignatureBase64 != "" {
		sig, err := base64.StdEncoding.DecodeString(req.SignatureBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "signature_base64 is not valid base64")
			return
		}
		proof.Signature = sig
	}
	if req.DeliveredAt != nil {
		proof.DeliveredAt = *req.DeliveredAt
	}
	writeResult(w, h.engine.CompleteDelivery(r.Context(), chi.URLParam(r, "id"), proof))
}

func (h *Handler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.engine.RetryDelivery(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) PushLead(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.engine.PushLead(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) PullQuotes(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.engine.PullQuotes(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) ListSyncLogs(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	q := r.URL.Query()
	logs, err := h.store.ListSyncLogs(r.Context(), store.SyncLogFilter{
		SubjectType: q.Get("subject_type"),
		SubjectID:   q.Get("subject_id"),
	}, store.Page{Offset: offset, Limit: limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]syncLogView, 0, len(logs))
	for _, e := range logs {
		out = append(out, newSyncLogView(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type syncLogView struct {
	ID            string          `json:"id"`
	SubjectType   string          `json:"subject_type"`
	SubjectID     string          `json:"subject_id,omitempty"`
	Operation     string          `json:"operation"`
	Outcome       string          `json:"outcome"`
	RemoteSummary json.RawMessage `json:"remote_summary,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func newSyncLogView(e *store.SyncLogEntry) syncLogView {
	return syncLogView{
		ID:            e.ID,
		SubjectType:   e.SubjectType,
		SubjectID:     e.SubjectID.String,
		Operation:     e.Operation,
		Outcome:       e.Outcome,
		RemoteSummary: e.RemoteSummary,
		Error:         e.ErrorMessage.String,
		CreatedAt:     e.CreatedAt,
	}
}

// pageParams reads offset and limit. Absent values are zero.
func pageParams(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	if offset, err = nonNegative(q.Get("offset")); err != nil {
		return 0, 0, fmt.Errorf("offset: %w", err)
	}
	if limit, err = nonNegative(q.Get("limit")); err != nil {
		return 0, 0, fmt.Errorf("limit: %w", err)
	}
	return offset, limit, nil
}

func nonNegative(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return n, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeBatch(w http.ResponseWriter, res *sync.BatchResult, err error) {
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeResult maps a failed local operation onto a status code. A result
// carrying only a sync error is still a 200.
func writeResult(w http.ResponseWriter, res sync.Result) {
	code := http.StatusOK
	if err := res.Err(); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			code = http.StatusNotFound
		case errors.Is(err, sync.ErrInvalidTransition), errors.Is(err, sync.ErrNotLinked):
			code = http.StatusConflict
		default:
			code = http.StatusInternalServerError
		}
	}
	writeJSON(w, code, res)
}
