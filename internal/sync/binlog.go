package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-mysql-org/go-mysql/canal"
	"go.uber.org/zap"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/store"
)

const deliveriesTable = "deliveries"

// PendingWatcher tails the local binlog for deliveries that another writer
// flagged pending_push and re-pushes them once they have been pending for
// the retry grace.
type PendingWatcher struct {
	cfg    config.DatabaseConnection
	grace  time.Duration
	engine *Engine
	canal  *canal.Canal
	tick   time.Duration
	now    func() time.Time

	mu  sync.Mutex
	due map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPendingWatcher(cfg config.RealtimeConfig, grace time.Duration, engine *Engine) (*PendingWatcher, error) {
	src := cfg.Source
	user, password := src.ReplicationUser, src.ReplicationPassword
	if user == "" {
		user, password = src.User, src.Password
	}

	c, err := canal.NewCanal(&canal.Config{
		Addr:     fmt.Sprintf("%s:%d", src.Host, src.Port),
		User:     user,
		Password: password,
		Flavor:   "mysql",
		ServerID: cfg.ServerID,
		Dump: canal.DumpConfig{
			ExecutionPath: "", // only the live binlog is needed
		},
		IncludeTableRegex: []string{fmt.Sprintf("^%s\\.%s$", src.Database, deliveriesTable)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create canal: %w", err)
	}

	w := newPendingWatcher(grace, engine)
	w.cfg = src
	w.canal = c
	c.SetEventHandler(&eventHandler{watcher: w})
	return w, nil
}

func newPendingWatcher(grace time.Duration, engine *Engine) *PendingWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &PendingWatcher{
		grace:  grace,
		engine: engine,
		tick:   time.Second,
		now:    time.Now,
		due:    make(map[string]time.Time),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start tails from the current master position; history is left to the
// scheduled retry pass.
func (w *PendingWatcher) Start() error {
	pos, err := w.canal.GetMasterPos()
	if err != nil {
		return fmt.Errorf("read master position: %w", err)
	}
	logger.Log.Info("Starting pending-push watcher",
		zap.String("host", w.cfg.Host),
		zap.String("binlog_file", pos.Name),
		zap.Uint32("binlog_pos", pos.Pos),
	)

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		if err := w.canal.RunFrom(pos); err != nil && w.ctx.Err() == nil {
			logger.Log.Error("Canal run error", zap.Error(err))
		}
	}()
	go w.run()
	return nil
}

func (w *PendingWatcher) Stop() {
	w.cancel()
	if w.canal != nil {
		w.canal.Close()
	}
	w.wg.Wait()
	logger.Log.Info("Stopped pending-push watcher")
}

func (w *PendingWatcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flush(w.ctx)
		case <-w.ctx.Done():
			return
		}
	}
}

// track schedules ids for a retry one grace period from now. An id already
// waiting keeps its original deadline.
func (w *PendingWatcher) track(ids []string) {
	if len(ids) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	at := w.now().Add(w.grace)
	for _, id := range ids {
		if _, ok := w.due[id]; !ok {
			w.due[id] = at
		}
	}
}

// flush retries every id whose deadline has passed.
func (w *PendingWatcher) flush(ctx context.Context) int {
	now := w.now()

	w.mu.Lock()
	var ready []string
	for id, at := range w.due {
		if !at.After(now) {
			ready = append(ready, id)
			delete(w.due, id)
		}
	}
	w.mu.Unlock()

	for _, id := range ready {
		r := w.engine.RetryDelivery(ctx, id)
		switch {
		case r.Err() != nil:
			logger.Log.Warn("Pending delivery retry failed", zap.String("delivery_id", id), zap.Error(r.Err()))
		case r.SyncErr() != nil:
			logger.Log.Warn("Pending delivery still not synced", zap.String("delivery_id", id), zap.Error(r.SyncErr()))
		default:
			logger.Log.Debug("Pending delivery retried", zap.String("delivery_id", id), zap.String("message", r.Message))
		}
	}
	return len(ready)
}

type eventHandler struct {
	canal.DummyEventHandler
	watcher *PendingWatcher
}

func (h *eventHandler) OnRow(e *canal.RowsEvent) error {
	if e.Table == nil || e.Table.Name != deliveriesTable {
		return nil
	}
	h.watcher.track(pendingIDs(e))
	return nil
}

func (h *eventHandler) String() string {
	return "PendingPushHandler"
}

// pendingIDs returns the ids of rows written with sync_status pending_push.
// Update events carry before/after pairs; only the after image counts.
func pendingIDs(e *canal.RowsEvent) []string {
	idCol := e.Table.FindColumn("id")
	statusCol := e.Table.FindColumn("sync_status")
	if idCol < 0 || statusCol < 0 {
		return nil
	}

	var rows [][]interface{}
	switch e.Action {
	case canal.InsertAction:
		rows = e.Rows
	case canal.UpdateAction:
		for i := 1; i < len(e.Rows); i += 2 {
			rows = append(rows, e.Rows[i])
		}
	default:
		return nil
	}

	var ids []string
	for _, row := range rows {
		if len(row) <= idCol || len(row) <= statusCol {
			continue
		}
		if columnString(row[statusCol]) != string(store.SyncPendingPush) {
			continue
		}
		if id := columnString(row[idCol]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func columnString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}
