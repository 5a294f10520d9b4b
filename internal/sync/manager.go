package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/logger"
)

const (
	StatusIdle    = "idle"
	StatusRunning = "running"
)

// RunReport summarizes one full cycle.
type RunReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Deliveries *BatchResult `json:"deliveries,omitempty"`
	Retries    *BatchResult `json:"retries,omitempty"`
	Leads      *BatchResult `json:"leads,omitempty"`
	Errors     []string     `json:"errors,omitempty"`
}

type ManagerStatus struct {
	Status     string     `json:"status"`
	LastRun    *RunReport `json:"last_run,omitempty"`
	LastPullAt time.Time  `json:"last_pull_at"`
	LeadCursor int        `json:"lead_cursor"`
}

// Manager runs full sync cycles one at a time. Between cycles it keeps the
// watermark of the last clean delivery pull and where the lead pass stopped.
type Manager struct {
	cfg    config.SyncConfig
	engine *Engine

	mu         sync.Mutex
	status     string
	lastRun    *RunReport
	lastPullAt time.Time
	leadCursor int
}

func NewManager(cfg config.SyncConfig, engine *Engine) *Manager {
	return &Manager{
		cfg:    cfg,
		engine: engine,
		status: StatusIdle,
	}
}

func (m *Manager) Engine() *Engine {
	return m.engine
}

// RunOnce pulls deliveries changed since the last clean pull, retries
// pending pushes and syncs one page of leads, all within the time budget.
func (m *Manager) RunOnce(ctx context.Context) (*RunReport, error) {
	m.mu.Lock()
	if m.status == StatusRunning {
		m.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	m.status = StatusRunning
	since, cursor := m.lastPullAt, m.leadCursor
	m.mu.Unlock()

	logger.Log.Info("Starting sync cycle", zap.Time("since", since), zap.Int("lead_cursor", cursor))

	if m.cfg.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.TimeBudget)
		defer cancel()
	}

	report := &RunReport{StartedAt: m.engine.now()}
	cleanPull := m.pullAll(ctx, since, report)

	if ctx.Err() == nil && !aborted(report.Deliveries) {
		retries, err := m.engine.RetryPendingDeliveries(ctx, m.cfg.BatchSize)
		if err != nil {
			report.Errors = append(report.Errors, "retry: "+err.Error())
		}
		report.Retries = retries
	}

	nextCursor := cursor
	if ctx.Err() == nil && !aborted(report.Deliveries) && !aborted(report.Retries) {
		leads, err := m.engine.SyncLeads(ctx, PageOptions{Offset: cursor, Limit: m.cfg.BatchSize})
		if err != nil {
			report.Errors = append(report.Errors, "leads: "+err.Error())
		} else {
			report.Leads = leads
			nextCursor = 0
			if leads.HasMore {
				nextCursor = leads.NextOffset
			}
		}
	}
	report.FinishedAt = m.engine.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if cleanPull {
		m.lastPullAt = report.StartedAt
	}
	m.leadCursor = nextCursor
	m.lastRun = report
	m.status = StatusIdle

	logger.Log.Info("Finished sync cycle",
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// pullAll pages through changed pickings. It reports whether every picking
// was pulled, which is the only case where the watermark may advance.
func (m *Manager) pullAll(ctx context.Context, since time.Time, report *RunReport) bool {
	total := &BatchResult{Errors: []string{}}
	report.Deliveries = total

	offset := 0
	for {
		page, err := m.engine.PullDeliveries(ctx, PullOptions{Since: since, Offset: offset, Limit: m.cfg.BatchSize})
		if err != nil {
			report.Errors = append(report.Errors, "pull: "+err.Error())
			return false
		}
		total.merge(page, m.cfg.MaxBatchErrors)
		if page.Aborted || ctx.Err() != nil {
			return false
		}
		if !page.HasMore || page.NextOffset <= offset {
			return total.Failed == 0 && !page.HasMore
		}
		offset = page.NextOffset
	}
}

func aborted(r *BatchResult) bool {
	return r != nil && r.Aborted
}

func (m *Manager) GetStatus() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStatus{
		Status:     m.status,
		LastRun:    m.lastRun,
		LastPullAt: m.lastPullAt,
		LeadCursor: m.leadCursor,
	}
}
