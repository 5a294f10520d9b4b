package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/mapping"
	"erp-sync-service/internal/odoo/odootest"
	"erp-sync-service/internal/store"
)

func TestManager_RunOnce(t *testing.T) {
	f := newFixture(t)
	f.erp.setPickings(picking(10, "assigned", 0), picking(11, "confirmed", 0))
	f.createLead("Office refit", "sam@buyer.test", store.LeadNew)
	m := NewManager(f.engine.cfg, f.engine)

	report, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Deliveries)
	assert.Equal(t, 2, report.Deliveries.Succeeded)
	require.NotNil(t, report.Retries)
	assert.Zero(t, report.Retries.Attempted)
	require.NotNil(t, report.Leads)
	assert.Equal(t, 1, report.Leads.Succeeded)
	assert.Empty(t, report.Errors)

	status := m.GetStatus()
	assert.Equal(t, StatusIdle, status.Status)
	assert.Equal(t, report, status.LastRun)
	assert.Equal(t, report.StartedAt, status.LastPullAt)
	assert.Zero(t, status.LeadCursor)

	f.advance(time.Hour)
	_, err = m.RunOnce(context.Background())
	require.NoError(t, err)

	counts := f.srv.CallsTo(mapping.ModelPicking, "search_count")
	require.Len(t, counts, 2)
	_, ok := odootest.DomainValue(counts[0].Args, "write_date")
	assert.False(t, ok)
	since, ok := odootest.DomainValue(counts[1].Args, "write_date")
	require.True(t, ok)
	assert.Equal(t, mapping.FormatTime(report.StartedAt), since)
}

func TestManager_WatermarkHoldsOnPartialPull(t *testing.T) {
	f := newFixture(t)
	broken := picking(11, "assigned", 0)
	delete(broken, "name")
	f.erp.setPickings(picking(10, "assigned", 0), broken)
	m := NewManager(f.engine.cfg, f.engine)

	report, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deliveries.Failed)
	assert.True(t, m.GetStatus().LastPullAt.IsZero())
}

func TestManager_PagesThroughPickings(t *testing.T) {
	f := newFixture(t, func(c *config.SyncConfig) { c.BatchSize = 2 })
	f.erp.setPickings(picking(10, "assigned", 0), picking(11, "assigned", 0), picking(12, "assigned", 0))
	m := NewManager(f.engine.cfg, f.engine)

	report, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Deliveries.Attempted)
	assert.False(t, report.Deliveries.HasMore)

	n, err := f.store.CountDeliveries(context.Background(), store.DeliveryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestManager_AdvancesLeadCursor(t *testing.T) {
	f := newFixture(t, func(c *config.SyncConfig) { c.BatchSize = 2 })
	for _, name := range []string{"A", "B", "C"} {
		f.createLead(name, "", store.LeadNew)
	}
	m := NewManager(f.engine.cfg, f.engine)

	_, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, m.GetStatus().LeadCursor)

	report, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Leads.Attempted)
	assert.Zero(t, m.GetStatus().LeadCursor)
}

func TestManager_StopsAfterAuthAbort(t *testing.T) {
	f := newFixture(t)
	f.erp.setPickings(picking(10, "assigned", 0))
	f.createLead("Office refit", "sam@buyer.test", store.LeadNew)
	f.srv.Handle(mapping.ModelPicking, "search_read", func(args []any, kwargs map[string]any) (any, error) {
		f.srv.SetUID(0)
		return []any{picking(10, "assigned", 0)}, nil
	})
	m := NewManager(f.engine.cfg, f.engine)

	report, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Deliveries.Aborted)
	assert.Nil(t, report.Retries)
	assert.Nil(t, report.Leads)
	assert.Empty(t, f.srv.CallsTo(mapping.ModelLead, "create"))
	assert.True(t, m.GetStatus().LastPullAt.IsZero())
}

func TestManager_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.engine.cfg, f.engine)
	m.status = StatusRunning

	report, err := m.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Nil(t, report)
	assert.Empty(t, f.srv.Calls())
}

func TestManager_PullErrorIsReported(t *testing.T) {
	f := newFixture(t)
	f.srv.SetHTTPStatus(500)
	m := NewManager(f.engine.cfg, f.engine)

	report, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "pull:")
	assert.Equal(t, StatusIdle, m.GetStatus().Status)
}

func TestScheduler(t *testing.T) {
	t.Run("disabled does nothing", func(t *testing.T) {
		f := newFixture(t)
		s := NewScheduler(config.SchedulerConfig{Enabled: false, Interval: "@every 1m"}, NewManager(f.engine.cfg, f.engine))
		require.NoError(t, s.Start())
		s.Stop()
	})

	t.Run("rejects bad interval", func(t *testing.T) {
		f := newFixture(t)
		s := NewScheduler(config.SchedulerConfig{Enabled: true, Interval: "every minute"}, NewManager(f.engine.cfg, f.engine))
		assert.Error(t, s.Start())
	})

	t.Run("skips while a cycle runs", func(t *testing.T) {
		f := newFixture(t)
		m := NewManager(f.engine.cfg, f.engine)
		m.status = StatusRunning
		s := NewScheduler(config.SchedulerConfig{Enabled: true, Interval: "@every 1m"}, m)

		s.triggerSync()
		assert.Empty(t, f.srv.Calls())
		assert.Nil(t, m.GetStatus().LastRun)
	})

	t.Run("runs a cycle", func(t *testing.T) {
		f := newFixture(t)
		m := NewManager(f.engine.cfg, f.engine)
		s := NewScheduler(config.SchedulerConfig{Enabled: true, Interval: "@every 1m"}, m)

		s.triggerSync()
		assert.NotNil(t, m.GetStatus().LastRun)
	})
}
