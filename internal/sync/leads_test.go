package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-sync-service/internal/auditlog"
	"erp-sync-service/internal/mapping"
	"erp-sync-service/internal/odoo/odootest"
	"erp-sync-service/internal/store"
)

func (f *fixture) createLead(name, email string, status store.LeadStatus) string {
	f.t.Helper()
	l := &store.Lead{
		Name:            name,
		ContactName:     store.NullString("Sam Buyer"),
		Email:           store.NullString(email),
		Status:          status,
		ExpectedRevenue: decimal.NewNullDecimal(decimal.RequireFromString("1250.50")),
	}
	require.NoError(f.t, f.store.CreateLead(context.Background(), l))
	return l.ID
}

func (f *fixture) lead(id string) *store.Lead {
	f.t.Helper()
	l, err := f.store.GetLead(context.Background(), id)
	require.NoError(f.t, err)
	return l
}

func saleOrder(id int, name, state string, amount float64, created string) map[string]any {
	return map[string]any{
		"id":           id,
		"name":         name,
		"state":        state,
		"amount_total": amount,
		"date_order":   false,
		"create_date":  created,
	}
}

func TestPushLead_CreatesPartnerAndLead(t *testing.T) {
	f := newFixture(t)
	id := f.createLead("Office refit", "sam@buyer.test", store.LeadQualified)

	r := f.engine.PushLead(context.Background(), id)
	require.True(t, r.Success, r.Message)
	assert.Empty(t, r.SyncError)

	partners := f.srv.CallsTo(mapping.ModelPartner, "create")
	require.Len(t, partners, 1)
	pv := partners[0].Args[0].(map[string]any)
	assert.Equal(t, "Sam Buyer", pv["name"])
	assert.Equal(t, "sam@buyer.test", pv["email"])

	leads := f.srv.CallsTo(mapping.ModelLead, "create")
	require.Len(t, leads, 1)
	lv := leads[0].Args[0].(map[string]any)
	assert.Equal(t, "Office refit", lv["name"])
	assert.Equal(t, "opportunity", lv["type"])
	assert.Equal(t, 2, lv["stage_id"])
	assert.InDelta(t, 1250.50, lv["expected_revenue"], 1e-9)

	l := f.lead(id)
	assert.True(t, l.OdooLeadID.Valid)
	assert.Equal(t, int64(lv["partner_id"].(int)), l.OdooPartnerID.Int64)
	assert.Equal(t, store.SyncSynced, l.SyncStatus)
	assert.True(t, l.LastSyncedAt.Valid)
}

func TestPushLead_ReusesPartnerByEmail(t *testing.T) {
	f := newFixture(t)
	f.erp.addPartner(partner(7))
	id := f.createLead("Warehouse racks", "ops@acme.test", store.LeadNew)

	r := f.engine.PushLead(context.Background(), id)
	require.True(t, r.Success)

	assert.Empty(t, f.srv.CallsTo(mapping.ModelPartner, "create"))
	assert.Equal(t, int64(7), f.lead(id).OdooPartnerID.Int64)
}

func TestPushLead_UpdatesLinkedLead(t *testing.T) {
	f := newFixture(t)
	id := f.createLead("Office refit", "sam@buyer.test", store.LeadNew)
	require.True(t, f.engine.PushLead(context.Background(), id).Success)
	remoteID := f.lead(id).OdooLeadID.Int64

	r := f.engine.PushLead(context.Background(), id)
	require.True(t, r.Success)

	assert.Len(t, f.srv.CallsTo(mapping.ModelLead, "create"), 1)
	writes := f.srv.CallsTo(mapping.ModelLead, "write")
	require.Len(t, writes, 1)
	assert.Equal(t, []int{int(remoteID)}, odootest.IDs(writes[0].Args))
	assert.Equal(t, remoteID, f.lead(id).OdooLeadID.Int64)
}

func TestPushLead_LostLeadIsMarkedLost(t *testing.T) {
	f := newFixture(t)
	id := f.createLead("Dead end", "sam@buyer.test", store.LeadLost)

	r := f.engine.PushLead(context.Background(), id)
	require.True(t, r.Success)
	assert.Len(t, f.srv.CallsTo(mapping.ModelLead, mapping.ActionSetLost), 1)
}

func TestPushLead_RemoteFailureKeepsLead(t *testing.T) {
	f := newFixture(t)
	f.erp.failLeadNames = "Rejected"
	id := f.createLead("Rejected deal", "sam@buyer.test", store.LeadQualified)

	r := f.engine.PushLead(context.Background(), id)
	assert.True(t, r.Success)
	require.Error(t, r.SyncErr())
	assert.Equal(t, "Lead kept locally; ERP sync failed", r.Message)

	l := f.lead(id)
	assert.False(t, l.OdooLeadID.Valid)
	assert.Equal(t, store.LeadQualified, l.Status)
	assert.Equal(t, store.SyncError, l.SyncStatus)
	assert.Contains(t, l.SyncError.String, "lead rejected")

	logs := f.logs(id)
	require.Len(t, logs, 1)
	assert.Equal(t, auditlog.OutcomeError, logs[0].Outcome)
}

func TestPushLead_RetryReusesCreatedPartner(t *testing.T) {
	f := newFixture(t)
	f.erp.failLeadNames = "Walk-in"
	id := f.createLead("Walk-in enquiry", "", store.LeadNew)

	for i := 0; i < 3; i++ {
		r := f.engine.PushLead(context.Background(), id)
		require.True(t, r.Success)
		require.Error(t, r.SyncErr())
	}
	partners := f.srv.CallsTo(mapping.ModelPartner, "create")
	require.Len(t, partners, 1)
	partnerID := f.lead(id).OdooPartnerID
	require.True(t, partnerID.Valid)
	assert.False(t, f.lead(id).OdooLeadID.Valid)

	f.erp.failLeadNames = ""
	r := f.engine.PushLead(context.Background(), id)
	require.True(t, r.Success)
	require.NoError(t, r.SyncErr())
	assert.Len(t, f.srv.CallsTo(mapping.ModelPartner, "create"), 1)
	assert.Equal(t, int(partnerID.Int64), r.Data.(map[string]any)["odoo_partner_id"])

	creates := f.srv.CallsTo(mapping.ModelLead, "create")
	require.Len(t, creates, 4)
	values := creates[3].Args[0].(map[string]any)
	assert.Equal(t, int(partnerID.Int64), values["partner_id"])
}

func TestPullQuotes_WonStageWithoutOrderDoesNotConvert(t *testing.T) {
	f := newFixture(t)
	id := f.createLead("Office refit", "sam@buyer.test", store.LeadQualified)
	require.True(t, f.engine.PushLead(context.Background(), id).Success)
	remoteID := int(f.lead(id).OdooLeadID.Int64)
	f.erp.setLeadStage(remoteID, mapping.StageWon)

	r := f.engine.PullQuotes(context.Background(), id)
	require.True(t, r.Success, r.Message)
	assert.Equal(t, store.LeadQualified, r.Data.(map[string]any)["status"])
	assert.Equal(t, "", r.Data.(map[string]any)["order_number"])

	l := f.lead(id)
	assert.Equal(t, store.LeadQualified, l.Status)
	assert.False(t, l.Status.Terminal())
	assert.False(t, l.OrderNumber.Valid)
}

func TestPullQuotes_LostStageKeepsConvertedLead(t *testing.T) {
	f := newFixture(t)
	id := f.createLead("Office refit", "sam@buyer.test", store.LeadProposal)
	require.True(t, f.engine.PushLead(context.Background(), id).Success)
	remoteID := int(f.lead(id).OdooLeadID.Int64)
	f.erp.setOrders(remoteID, saleOrder(1, "S00001", "sale", 900, "2026-03-20 09:00:00"))
	require.True(t, f.engine.PullQuotes(context.Background(), id).Success)
	require.Equal(t, store.LeadConverted, f.lead(id).Status)

	f.erp.setOrders(remoteID)
	f.erp.stages[mapping.StageLost] = 5
	f.erp.setLeadStage(remoteID, mapping.StageLost)

	require.True(t, f.engine.PullQuotes(context.Background(), id).Success)
	assert.Equal(t, store.LeadConverted, f.lead(id).Status)
}

func TestFinishLead_SettlesAfterCancel(t *testing.T) {
	f := newFixture(t)
	f.engine.store = cancelAwareStore{f.store}
	id := f.createLead("Office refit", "sam@buyer.test", store.LeadQualified)
	require.NoError(t, f.store.MarkLeadSync(context.Background(), id, store.SyncState{Status: store.SyncPendingPush}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := f.engine.finishLead(ctx, id, opPushLead, context.Canceled, "Lead pushed", nil)
	assert.True(t, r.Success)

	l := f.lead(id)
	assert.Equal(t, store.SyncError, l.SyncStatus)
	assert.Contains(t, l.SyncError.String, "context canceled")
}

func TestPullQuotes_ConvertsOnWonOrder(t *testing.T) {
	f := newFixture(t)
	id := f.createLead("Office refit", "sam@buyer.test", store.LeadProposal)
	require.True(t, f.engine.PushLead(context.Background(), id).Success)
	remoteID := int(f.lead(id).OdooLeadID.Int64)
	f.erp.setOrders(remoteID,
		saleOrder(1, "S00001", "sale", 1999.999, "2026-03-20 09:00:00"),
		saleOrder(2, "S00002", "draft", 2400, "2026-03-25 09:00:00"),
		saleOrder(3, "S00003", "cancel", 10, "2026-03-28 09:00:00"),
	)

	r := f.engine.PullQuotes(context.Background(), id)
	require.True(t, r.Success, r.Message)

	l := f.lead(id)
	assert.Equal(t, store.LeadConverted, l.Status)
	assert.Equal(t, "S00002", l.QuoteNumber.String)
	assert.Equal(t, "2400", l.QuoteAmount.Decimal.String())
	assert.Equal(t, "S00001", l.OrderNumber.String)
	assert.Equal(t, "2000", l.OrderAmount.Decimal.String())
	assert.True(t, l.OrderDate.Valid)
	assert.Equal(t, f.now(), l.LastSyncedAt.Time)
}

func TestPullQuotes_LostLeadStaysLost(t *testing.T) {
	f := newFixture(t)
	id := f.createLead("Dead end", "sam@buyer.test", store.LeadLost)
	require.True(t, f.engine.PushLead(context.Background(), id).Success)
	remoteID := int(f.lead(id).OdooLeadID.Int64)
	f.erp.setOrders(remoteID, saleOrder(1, "S00001", "done", 500, "2026-03-20 09:00:00"))

	r := f.engine.PullQuotes(context.Background(), id)
	require.True(t, r.Success)

	l := f.lead(id)
	assert.Equal(t, store.LeadLost, l.Status)
	assert.Equal(t, "S00001", l.OrderNumber.String)
}

func TestPullQuotes_RequiresLink(t *testing.T) {
	f := newFixture(t)
	id := f.createLead("Office refit", "sam@buyer.test", store.LeadNew)

	r := f.engine.PullQuotes(context.Background(), id)
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Err(), ErrNotLinked)
	assert.Empty(t, f.srv.Calls())
}

func TestSyncLeads_CountsPerLeadOutcomes(t *testing.T) {
	f := newFixture(t)
	f.erp.failLeadNames = "Rejected"
	for i, name := range []string{"Deal A", "Rejected B", "Deal C", "Rejected D", "Deal E"} {
		f.createLead(name, fmt.Sprintf("buyer%d@example.test", i), store.LeadNew)
	}

	res, err := f.engine.SyncLeads(context.Background(), PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Attempted)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, 5, res.Total)
	assert.False(t, res.HasMore)
	assert.False(t, res.Aborted)

	linked, err := f.store.CountLeads(context.Background(), store.LeadFilter{LinkedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 3, linked)
	assert.Len(t, f.srv.CallsTo(mapping.ModelSaleOrder, "search_read"), 3)

	logs, err := f.store.ListSyncLogs(context.Background(), store.SyncLogFilter{SubjectType: auditlog.SubjectBatch}, store.Page{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, auditlog.OutcomePartial, logs[0].Outcome)
}

func TestSyncLeads_TruncatesErrors(t *testing.T) {
	f := newFixture(t)
	f.engine.cfg.MaxBatchErrors = 1
	f.erp.failLeadNames = "Rejected"
	f.createLead("Rejected A", "a@example.test", store.LeadNew)
	f.createLead("Rejected B", "b@example.test", store.LeadNew)

	res, err := f.engine.SyncLeads(context.Background(), PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Errors, 1)
}
