// Package auditlog keeps the append-only history of sync attempts. Nothing
// in the engine reads it back.
package auditlog

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/store"
)

const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

const (
	SubjectDelivery = "delivery"
	SubjectLead     = "lead"
	SubjectBatch    = "batch"
)

// Entry is one attempted operation. Summary is marshalled to JSON.
type Entry struct {
	SubjectType string
	SubjectID   string
	Operation   string
	Outcome     string
	Summary     any
	Err         error
}

type Appender interface {
	AppendSyncLog(ctx context.Context, entry *store.SyncLogEntry) error
}

type Recorder struct {
	store Appender
	now   func() time.Time
}

func NewRecorder(s Appender) *Recorder {
	return &Recorder{store: s, now: time.Now}
}

// Record appends e. Failures are logged and swallowed so a broken audit
// table never changes a sync outcome.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.store == nil {
		return
	}

	entry := &store.SyncLogEntry{
		SubjectType: e.SubjectType,
		SubjectID:   store.NullString(e.SubjectID),
		Operation:   e.Operation,
		Outcome:     e.Outcome,
		CreatedAt:   r.now().UTC(),
	}
	if e.Err != nil {
		entry.ErrorMessage = store.NullString(e.Err.Error())
	}
	if e.Summary != nil {
		raw, err := json.Marshal(e.Summary)
		if err != nil {
			logger.Log.Warn("Failed to encode sync log summary",
				zap.String("operation", e.Operation), zap.Error(err))
		} else {
			entry.RemoteSummary = raw
		}
	}

	// The caller's context may already be cancelled by a time budget; the
	// history of that attempt still gets written.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.store.AppendSyncLog(ctx, entry); err != nil {
		logger.Log.Error("Failed to append sync log",
			zap.String("subject_type", e.SubjectType),
			zap.String("subject_id", e.SubjectID),
			zap.String("operation", e.Operation),
			zap.Error(err),
		)
	}
}

// OutcomeOf classifies a batch by how many records failed.
func OutcomeOf(succeeded, failed int) string {
	switch {
	case failed == 0:
		return OutcomeSuccess
	case succeeded == 0:
		return OutcomeError
	}
	return OutcomePartial
}
