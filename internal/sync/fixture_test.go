package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/odoo"
	"erp-sync-service/internal/odoo/odootest"
	"erp-sync-service/internal/store"
)

// fixture wires an engine to a fake Odoo and an in-memory store.
type fixture struct {
	t      *testing.T
	srv    *odootest.Server
	store  *store.MemoryStore
	engine *Engine
	erp    *fakeERP

	clockMu sync.Mutex
	clock   time.Time
}

func newFixture(t *testing.T, opts ...func(*config.SyncConfig)) *fixture {
	t.Helper()
	cfg := config.SyncConfig{
		Concurrency:     5,
		BatchSize:       50,
		MaxBatchErrors:  10,
		PickingTypeCode: "outgoing",
		TimeBudget:      30 * time.Second,
		RetryGrace:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		t:     t,
		srv:   odootest.NewServer(t),
		store: store.NewMemoryStore(),
		clock: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(cfg, odoo.NewClient(f.srv.Config()), f.store, nil)
	f.engine.now = f.now
	f.erp = newFakeERP(f.srv)
	return f
}

func (f *fixture) now() time.Time {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	return f.clock
}

func (f *fixture) advance(d time.Duration) {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	f.clock = f.clock.Add(d)
}

// seedDelivery stores a delivery as if an earlier pull had created it.
func (f *fixture) seedDelivery(pickingID int64, status store.DeliveryStatus) string {
	f.t.Helper()
	id, err := f.store.UpsertDelivery(context.Background(), &store.Delivery{
		OdooPickingID: store.NullInt64(pickingID),
		Reference:     fmt.Sprintf("WH/OUT/%05d", pickingID),
		Status:        status,
	})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) delivery(id string) *store.Delivery {
	f.t.Helper()
	d, err := f.store.GetDelivery(context.Background(), id)
	require.NoError(f.t, err)
	return d
}

func (f *fixture) lines(id string) []store.DeliveryLine {
	f.t.Helper()
	lines, err := f.store.ListDeliveryLines(context.Background(), id)
	require.NoError(f.t, err)
	return lines
}

func (f *fixture) logs(subjectID string) []*store.SyncLogEntry {
	f.t.Helper()
	logs, err := f.store.ListSyncLogs(context.Background(), store.SyncLogFilter{SubjectID: subjectID}, store.Page{})
	require.NoError(f.t, err)
	return logs
}

// fakeERP holds the remote records served by the fake Odoo.
type fakeERP struct {
	mu       sync.Mutex
	pickings []map[string]any
	moves    map[int][]map[string]any
	partners map[int]map[string]any
	orders   map[int][]map[string]any
	stages   map[string]int
	leads    map[int]map[string]any
	nextID   int
	// failLeadNames makes crm.lead.create fail for names containing it.
	failLeadNames string
}

func newFakeERP(srv *odootest.Server) *fakeERP {
	e := &fakeERP{
		moves:    make(map[int][]map[string]any),
		partners: make(map[int]map[string]any),
		orders:   make(map[int][]map[string]any),
		stages:   map[string]int{"New": 1, "Qualified": 2, "Proposition": 3, "Won": 4},
		leads:    make(map[int]map[string]any),
		nextID:   1000,
	}

	srv.Handle("stock.picking", "search_count", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.pickings), nil
	})
	srv.Handle("stock.picking", "search_read", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		offset, _ := kwargs["offset"].(int)
		limit, _ := kwargs["limit"].(int)
		var out []any
		for i := offset; i < len(e.pickings); i++ {
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, e.pickings[i])
		}
		return list(out), nil
	})
	srv.Handle("stock.move", "search_read", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		v, _ := odootest.DomainValue(args, "picking_id")
		id, _ := v.(int)
		out := []any{}
		for _, m := range e.moves[id] {
			out = append(out, m)
		}
		return out, nil
	})
	srv.Handle("res.partner", "read", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		out := []any{}
		for _, id := range odootest.IDs(args) {
			if p, ok := e.partners[id]; ok {
				out = append(out, p)
			}
		}
		return out, nil
	})
	srv.Handle("res.partner", "search_read", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		email, _ := odootest.DomainValue(args, "email")
		out := []any{}
		for id, p := range e.partners {
			if p["email"] == email {
				out = append(out, map[string]any{"id": id})
			}
		}
		return out, nil
	})
	srv.Handle("res.partner", "create", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		values, _ := args[0].(map[string]any)
		id := e.newID()
		values["id"] = id
		e.partners[id] = values
		return id, nil
	})
	srv.Handle("crm.stage", "search_read", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		name, _ := odootest.DomainValue(args, "name")
		if id, ok := e.stages[fmt.Sprint(name)]; ok {
			return []any{map[string]any{"id": id}}, nil
		}
		return []any{}, nil
	})
	srv.Handle("crm.lead", "create", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		values, _ := args[0].(map[string]any)
		name, _ := values["name"].(string)
		if e.failLeadNames != "" && strings.Contains(name, e.failLeadNames) {
			return nil, errors.New("ValidationError: lead rejected")
		}
		id := e.newID()
		values["id"] = id
		e.leads[id] = values
		return id, nil
	})
	srv.Handle("crm.lead", "write", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		values, _ := args[1].(map[string]any)
		for _, id := range odootest.IDs(args) {
			for k, v := range values {
				e.leads[id][k] = v
			}
		}
		return true, nil
	})
	srv.Handle("crm.lead", "read", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		out := []any{}
		for _, id := range odootest.IDs(args) {
			lead, ok := e.leads[id]
			if !ok {
				continue
			}
			rec := map[string]any{"id": id, "stage_id": false, "partner_id": false}
			if stageID, ok := lead["stage_id"].(int); ok {
				for name, sid := range e.stages {
					if sid == stageID {
						rec["stage_id"] = []any{sid, name}
					}
				}
			}
			out = append(out, rec)
		}
		return out, nil
	})
	srv.Handle("crm.lead", "action_set_lost", func(args []any, kwargs map[string]any) (any, error) {
		return true, nil
	})
	srv.Handle("sale.order", "search_read", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		v, _ := odootest.DomainValue(args, "opportunity_id")
		id, _ := v.(int)
		out := []any{}
		for _, o := range e.orders[id] {
			out = append(out, o)
		}
		return out, nil
	})
	for _, method := range []string{"write", "button_validate", "action_cancel"} {
		srv.Handle("stock.picking", method, func(args []any, kwargs map[string]any) (any, error) {
			return true, nil
		})
	}
	srv.Handle("ir.attachment", "create", func(args []any, kwargs map[string]any) (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.newID(), nil
	})
	return e
}

func (e *fakeERP) newID() int {
	e.nextID++
	return e.nextID
}

func (e *fakeERP) setPickings(pickings ...map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pickings = pickings
}

func (e *fakeERP) setMoves(pickingID int, moves ...map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moves[pickingID] = moves
}

func (e *fakeERP) addPartner(p map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.partners[p["id"].(int)] = p
}

func (e *fakeERP) setOrders(leadID int, orders ...map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders[leadID] = orders
}

// setLeadStage moves a remote lead as a salesperson would in the ERP.
func (e *fakeERP) setLeadStage(leadID int, stage string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leads[leadID]["stage_id"] = e.stages[stage]
}

// cancelAwareStore fails sync-status writes on a cancelled context, as a SQL
// driver does.
type cancelAwareStore struct {
	*store.MemoryStore
}

func (s cancelAwareStore) MarkDeliverySync(ctx context.Context, id string, state store.SyncState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkDeliverySync(ctx, id, state)
}

func (s cancelAwareStore) MarkLeadSync(ctx context.Context, id string, state store.SyncState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkLeadSync(ctx, id, state)
}

func list(items []any) []any {
	if items == nil {
		return []any{}
	}
	return items
}

func picking(id int, state string, partnerID int) map[string]any {
	rec := map[string]any{
		"id":             id,
		"name":           fmt.Sprintf("WH/OUT/%05d", id),
		"origin":         false,
		"state":          state,
		"partner_id":     false,
		"scheduled_date": "2026-04-02 09:00:00",
		"date_done":      false,
		"write_date":     "2026-04-01 08:00:00",
	}
	if partnerID > 0 {
		rec["partner_id"] = []any{partnerID, "Acme Corp"}
	}
	return rec
}

func move(id int, product string, qty float64) map[string]any {
	return map[string]any{
		"id":                  id,
		"product_id":          []any{id + 500, product},
		"product_uom_qty":     qty,
		"product_uom":         []any{1, "Units"},
		"description_picking": false,
	}
}

func partner(id int) map[string]any {
	return map[string]any{
		"id":                id,
		"name":              "Acme Corp",
		"email":             "ops@acme.test",
		"phone":             "+1 555 0100",
		"mobile":            false,
		"street":            "1 Main St",
		"street2":           false,
		"city":              "Springfield",
		"zip":               false,
		"country_id":        false,
		"partner_latitude":  40.7,
		"partner_longitude": -74.0,
	}
}
