package sync

import (
	"context"
	"time"

	"erp-sync-service/internal/auditlog"
	"erp-sync-service/internal/config"
	"erp-sync-service/internal/store"
)

const (
	defaultConcurrency = 5
	defaultBatchSize   = 50

	// settleTimeout bounds the local writes that record a remote outcome.
	settleTimeout = 5 * time.Second
)

// Engine reconciles local deliveries and leads with the ERP. Local state is
// written first and never rolled back when the remote leg fails.
type Engine struct {
	cfg   config.SyncConfig
	erp   ERP
	store store.Store
	audit *auditlog.Recorder
	now   func() time.Time
}

func NewEngine(cfg config.SyncConfig, erp ERP, s store.Store, audit *auditlog.Recorder) *Engine {
	if audit == nil {
		audit = auditlog.NewRecorder(s)
	}
	return &Engine{
		cfg:   cfg,
		erp:   erp,
		store: s,
		audit: audit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// detached outlives a cancelled batch so a known remote outcome is still
// written locally.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func (e *Engine) batchSize(limit int) int {
	switch {
	case limit > 0:
		return limit
	case e.cfg.BatchSize > 0:
		return e.cfg.BatchSize
	}
	return defaultBatchSize
}

// paginate fills the continuation fields. An interrupted page is resumed
// from its own offset; re-running its records is idempotent.
func paginate(res *BatchResult, total, offset, pageLen int, interrupted bool) {
	res.Total = total
	if interrupted {
		res.NextOffset = offset
		res.HasMore = true
		return
	}
	res.NextOffset = offset + pageLen
	res.HasMore = res.NextOffset < total
}
