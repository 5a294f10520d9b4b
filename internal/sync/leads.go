package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"erp-sync-service/internal/auditlog"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/mapping"
	"erp-sync-service/internal/odoo"
	"erp-sync-service/internal/store"
)

const (
	opPushLead   = "push_lead"
	opPullQuotes = "pull_quotes"
	opSyncLeads  = "sync_leads"
)

// PushLead creates or updates the lead's crm.lead, creating its contact
// partner first when needed. Remote ids are bound to the lead once.
func (e *Engine) PushLead(ctx context.Context, leadID string) Result {
	l, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return failedf(err, "lead %s not loaded", leadID)
	}
	if err := e.store.MarkLeadSync(ctx, l.ID, store.SyncState{Status: store.SyncPendingPush}); err != nil {
		return failedf(err, "lead %s not saved", l.ID)
	}

	remoteID, partnerID, remoteErr := e.pushLead(ctx, l)
	data := map[string]any{}
	if remoteID > 0 {
		data["odoo_lead_id"] = remoteID
	}
	if partnerID > 0 {
		data["odoo_partner_id"] = partnerID
	}
	return e.finishLead(ctx, l.ID, opPushLead, remoteErr, "Lead pushed", data)
}

func (e *Engine) pushLead(ctx context.Context, l *store.Lead) (remoteID, partnerID int, err error) {
	partnerID = int(l.OdooPartnerID.Int64)
	if partnerID == 0 {
		if partnerID, err = e.ensurePartner(ctx, l); err != nil {
			return 0, 0, fmt.Errorf("partner: %w", err)
		}
		// Bound before the lead create so a retry reuses the same partner.
		if err := e.linkPartner(ctx, l.ID, partnerID); err != nil {
			return 0, partnerID, fmt.Errorf("link partner: %w", err)
		}
	}

	stageID, err := e.stageID(ctx, mapping.StageName(l.Status))
	if err != nil {
		return 0, partnerID, fmt.Errorf("stage: %w", err)
	}
	values := mapping.LeadValues(l, partnerID, stageID)

	if l.OdooLeadID.Valid {
		remoteID = int(l.OdooLeadID.Int64)
		if err := e.erp.Write(ctx, mapping.ModelLead, []int{remoteID}, values); err != nil {
			return remoteID, partnerID, err
		}
	} else {
		if remoteID, err = e.erp.Create(ctx, mapping.ModelLead, values); err != nil {
			return 0, partnerID, err
		}
	}
	linkCtx, cancel := detached(ctx)
	defer cancel()
	if err := e.store.LinkLead(linkCtx, l.ID, int64(remoteID), int64(partnerID)); err != nil {
		return remoteID, partnerID, fmt.Errorf("link lead: %w", err)
	}

	if l.Status == store.LeadLost {
		if _, err := e.erp.Execute(ctx, mapping.ModelLead, mapping.ActionSetLost, []int{remoteID}); err != nil {
			return remoteID, partnerID, err
		}
	}
	return remoteID, partnerID, nil
}

// ensurePartner finds the contact by email, or creates it.
func (e *Engine) ensurePartner(ctx context.Context, l *store.Lead) (int, error) {
	if l.Email.Valid {
		found, err := e.erp.SearchRead(ctx, mapping.ModelPartner,
			odoo.Domain{odoo.Cond("email", "=", l.Email.String)},
			odoo.ReadOptions{Fields: []string{"id"}, Limit: 1})
		if err != nil {
			return 0, err
		}
		if len(found) > 0 {
			if id, ok := found[0]["id"].(int); ok {
				return id, nil
			}
		}
	}
	return e.erp.Create(ctx, mapping.ModelPartner, mapping.PartnerValues(l))
}

func (e *Engine) linkPartner(ctx context.Context, leadID string, partnerID int) error {
	ctx, cancel := detached(ctx)
	defer cancel()
	return e.store.LinkLeadPartner(ctx, leadID, int64(partnerID))
}

// stageID returns 0 when the ERP has no stage of that name.
func (e *Engine) stageID(ctx context.Context, name string) (int, error) {
	found, err := e.erp.SearchRead(ctx, mapping.ModelStage,
		odoo.Domain{odoo.Cond("name", "=", name)},
		odoo.ReadOptions{Fields: []string{"id"}, Limit: 1})
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		logger.Log.Warn("CRM stage not found", zap.String("stage", name))
		return 0, nil
	}
	id, _ := found[0]["id"].(int)
	return id, nil
}

// PullQuotes refreshes the lead's quotation and order fields from its sale
// orders and advances its status from the ERP stage.
func (e *Engine) PullQuotes(ctx context.Context, leadID string) Result {
	l, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return failedf(err, "lead %s not loaded", leadID)
	}
	if !l.OdooLeadID.Valid {
		return failedf(ErrNotLinked, "lead %s has not been pushed", l.ID)
	}

	quotes, err := e.pullQuotes(ctx, l)
	if err != nil {
		logger.Log.Warn("Quote pull failed", zap.String("lead_id", l.ID), zap.Error(err))
		e.audit.Record(ctx, auditlog.Entry{
			SubjectType: auditlog.SubjectLead,
			SubjectID:   l.ID,
			Operation:   opPullQuotes,
			Outcome:     auditlog.OutcomeError,
			Err:         err,
		})
		return failedf(err, "quotes for lead %s not pulled", l.ID)
	}
	if err := e.store.UpdateLeadQuotes(ctx, l.ID, quotes); err != nil {
		return failedf(err, "lead %s not saved", l.ID)
	}

	status := l.Status
	if quotes.Status != "" {
		status = quotes.Status
	}
	data := map[string]any{
		"status":       status,
		"quote_number": quotes.QuoteNumber.String,
		"order_number": quotes.OrderNumber.String,
	}
	e.audit.Record(ctx, auditlog.Entry{
		SubjectType: auditlog.SubjectLead,
		SubjectID:   l.ID,
		Operation:   opPullQuotes,
		Outcome:     auditlog.OutcomeSuccess,
		Summary:     data,
	})
	return Result{Success: true, Message: "Quotes pulled", Data: data}
}

func (e *Engine) pullQuotes(ctx context.Context, l *store.Lead) (store.LeadQuotes, error) {
	remoteID := int(l.OdooLeadID.Int64)

	status := l.Status
	recs, err := e.erp.Read(ctx, mapping.ModelLead, []int{remoteID}, mapping.LeadFields)
	if err != nil {
		return store.LeadQuotes{}, err
	}
	if len(recs) > 0 {
		remote, err := mapping.RemoteLeadFromRecord(recs[0])
		if err != nil {
			return store.LeadQuotes{}, err
		}
		if remote.StageName != "" {
			status = mapping.MergeLeadStage(status, mapping.LeadStatusFromStage(remote.StageName))
		}
	}

	orderRecs, err := e.erp.SearchRead(ctx, mapping.ModelSaleOrder,
		odoo.Domain{odoo.Cond("opportunity_id", "=", remoteID)},
		odoo.ReadOptions{Fields: mapping.SaleOrderFields, Order: "create_date desc, id desc"})
	if err != nil {
		return store.LeadQuotes{}, err
	}
	orders := make([]mapping.SaleOrder, 0, len(orderRecs))
	for _, rec := range orderRecs {
		o, err := mapping.SaleOrderFromRecord(rec)
		if err != nil {
			return store.LeadQuotes{}, err
		}
		orders = append(orders, o)
	}

	open, won := mapping.SelectQuotes(orders)
	quotes := mapping.LeadQuotesFrom(open, won, status, e.now())
	if quotes.Status == "" && status != l.Status {
		quotes.Status = status
	}
	return quotes, nil
}

// SyncLeads pushes every unsynced lead of one page and pulls quotes for the
// linked ones. Leads are paged in creation order.
func (e *Engine) SyncLeads(ctx context.Context, opts PageOptions) (*BatchResult, error) {
	total, err := e.store.CountLeads(ctx, store.LeadFilter{})
	if err != nil {
		return nil, err
	}
	leads, err := e.store.ListLeads(ctx, store.LeadFilter{}, store.Page{
		Offset: opts.Offset,
		Limit:  e.batchSize(opts.Limit),
	})
	if err != nil {
		return nil, err
	}

	tasks := make([]batchTask, len(leads))
	for i, l := range leads {
		l := l
		tasks[i] = batchTask{
			label: "lead " + l.ID,
			run: func(ctx context.Context) error {
				return e.syncLead(ctx, l)
			},
		}
	}

	res, interrupted := e.runBatch(ctx, opSyncLeads, tasks)
	paginate(&res, total, opts.Offset, len(leads), interrupted)

	logger.Log.Info("Synced leads",
		zap.Int("attempted", res.Attempted),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("next_offset", res.NextOffset),
		zap.Bool("has_more", res.HasMore),
	)
	e.audit.Record(ctx, auditlog.Entry{
		SubjectType: auditlog.SubjectBatch,
		Operation:   opSyncLeads,
		Outcome:     auditlog.OutcomeOf(res.Succeeded, res.Failed),
		Summary:     res,
	})
	return &res, nil
}

func (e *Engine) syncLead(ctx context.Context, l *store.Lead) error {
	linked := l.OdooLeadID.Valid
	if l.SyncStatus != store.SyncSynced {
		r := e.PushLead(ctx, l.ID)
		if err := r.failure(); err != nil {
			return err
		}
		linked = true
	}
	if !linked {
		return nil
	}
	return e.PullQuotes(ctx, l.ID).failure()
}

// finishLead mirrors finishDelivery for leads.
func (e *Engine) finishLead(ctx context.Context, leadID, op string, remoteErr error, msg string, data map[string]any) Result {
	entry := auditlog.Entry{
		SubjectType: auditlog.SubjectLead,
		SubjectID:   leadID,
		Operation:   op,
		Summary:     data,
	}

	state := store.SyncState{Status: store.SyncSynced, SyncedAt: e.now()}
	if remoteErr != nil {
		state = store.SyncState{Status: store.SyncError, Error: remoteErr.Error()}
	}
	settleCtx, cancel := detached(ctx)
	defer cancel()
	if err := e.store.MarkLeadSync(settleCtx, leadID, state); err != nil {
		logger.Log.Error("Failed to record lead sync status",
			zap.String("lead_id", leadID), zap.String("sync_status", string(state.Status)), zap.Error(err))
	}

	if remoteErr != nil {
		logger.Log.Warn("ERP lead push failed",
			zap.String("operation", op),
			zap.String("lead_id", leadID),
			zap.Error(remoteErr),
		)
		entry.Outcome = auditlog.OutcomeError
		entry.Err = remoteErr
		e.audit.Record(ctx, entry)
		return Result{
			Success:   true,
			Message:   "Lead kept locally; ERP sync failed",
			Data:      data,
			SyncError: remoteErr.Error(),
			syncErr:   remoteErr,
		}
	}

	entry.Outcome = auditlog.OutcomeSuccess
	e.audit.Record(ctx, entry)
	return Result{Success: true, Message: msg, Data: data}
}
