package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"erp-sync-service/internal/auditlog"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/mapping"
	"erp-sync-service/internal/odoo"
	"erp-sync-service/internal/store"
)

const (
	opPullDeliveries = "pull_deliveries"
	opPushStatus     = "push_status"
	opAssignDriver   = "assign_driver"
	opComplete       = "complete_delivery"
	opRetryDelivery  = "retry_delivery"
	opRetryPending   = "retry_pending"
)

// PullDeliveries materializes one page of outgoing pickings locally.
// Errors returned are batch-level: the count or page query failed.
func (e *Engine) PullDeliveries(ctx context.Context, opts PullOptions) (*BatchResult, error) {
	domain := odoo.Domain{odoo.Cond("picking_type_code", "=", e.cfg.PickingTypeCode)}
	if !opts.Since.IsZero() {
		domain = append(domain, odoo.Cond("write_date", ">=", mapping.FormatTime(opts.Since)))
	}
	limit := e.batchSize(opts.Limit)

	total, err := e.erp.SearchCount(ctx, mapping.ModelPicking, domain)
	if err != nil {
		e.recordBatchError(ctx, opPullDeliveries, err)
		return nil, fmt.Errorf("count pickings: %w", err)
	}
	records, err := e.erp.SearchRead(ctx, mapping.ModelPicking, domain, odoo.ReadOptions{
		Fields: mapping.PickingFields,
		Offset: opts.Offset,
		Limit:  limit,
		Order:  "id asc",
	})
	if err != nil {
		e.recordBatchError(ctx, opPullDeliveries, err)
		return nil, fmt.Errorf("read pickings: %w", err)
	}

	tasks := make([]batchTask, len(records))
	for i, rec := range records {
		rec := rec
		tasks[i] = batchTask{
			label: "picking " + recordLabel(rec),
			run: func(ctx context.Context) error {
				_, err := e.pullPicking(ctx, rec)
				return err
			},
		}
	}

	res, interrupted := e.runBatch(ctx, opPullDeliveries, tasks)
	paginate(&res, total, opts.Offset, len(records), interrupted)

	logger.Log.Info("Pulled deliveries",
		zap.Int("attempted", res.Attempted),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("total", res.Total),
		zap.Bool("has_more", res.HasMore),
	)
	e.audit.Record(ctx, auditlog.Entry{
		SubjectType: auditlog.SubjectBatch,
		Operation:   opPullDeliveries,
		Outcome:     auditlog.OutcomeOf(res.Succeeded, res.Failed),
		Summary:     res,
	})
	return &res, nil
}

// pullPicking upserts one picking, replaces its lines and recomputes the
// totals from what was stored.
func (e *Engine) pullPicking(ctx context.Context, rec map[string]any) (string, error) {
	p, err := mapping.PickingFromRecord(rec)
	if err != nil {
		return "", err
	}

	moveRecs, err := e.erp.SearchRead(ctx, mapping.ModelMove,
		odoo.Domain{odoo.Cond("picking_id", "=", p.ID)},
		odoo.ReadOptions{Fields: mapping.MoveFields, Order: "id asc"})
	if err != nil {
		return "", err
	}
	moves := make([]mapping.Move, 0, len(moveRecs))
	for _, m := range moveRecs {
		mv, err := mapping.MoveFromRecord(m)
		if err != nil {
			return "", err
		}
		moves = append(moves, mv)
	}

	var partner mapping.Partner
	if p.PartnerID > 0 {
		partners, err := e.erp.Read(ctx, mapping.ModelPartner, []int{p.PartnerID}, mapping.PartnerFields)
		if err != nil {
			return "", err
		}
		if len(partners) > 0 {
			if partner, err = mapping.PartnerFromRecord(partners[0]); err != nil {
				return "", err
			}
		}
	}

	d := mapping.DeliveryFromPicking(p, partner, e.now())
	existing, err := e.store.GetDeliveryByRemoteID(ctx, int64(p.ID))
	switch {
	case err == nil:
		d.Status = mapping.MergeDeliveryStatus(existing.Status, d.Status)
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}

	id, err := e.store.UpsertDelivery(ctx, d)
	if err != nil {
		return "", fmt.Errorf("upsert delivery: %w", err)
	}
	if err := e.store.ReplaceDeliveryLines(ctx, id, mapping.LinesFromMoves(moves)); err != nil {
		return "", fmt.Errorf("replace lines: %w", err)
	}
	stored, err := e.store.ListDeliveryLines(ctx, id)
	if err != nil {
		return "", err
	}
	if err := e.store.SetDeliveryTotals(ctx, id, mapping.TotalQuantity(stored), len(stored)); err != nil {
		return "", fmt.Errorf("set totals: %w", err)
	}
	return id, nil
}

// PushStatus records the new status locally, then mirrors it to the picking.
func (e *Engine) PushStatus(ctx context.Context, deliveryID string, status store.DeliveryStatus, notes string) Result {
	d, err := e.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return failedf(err, "delivery %s not loaded", deliveryID)
	}
	if !mapping.CanTransition(d.Status, status) {
		return failedf(ErrInvalidTransition, "cannot move delivery from %s to %s", d.Status, status)
	}

	now := e.now()
	d.Status = status
	if notes != "" {
		d.Notes = store.NullString(notes)
	}
	if status == store.DeliveryDelivered && !d.DeliveredAt.Valid {
		d.DeliveredAt = store.NullTime(now)
	}
	if r, ok := e.writeLocal(ctx, d); !ok {
		return r
	}

	if !d.OdooPickingID.Valid {
		return e.finishDelivery(ctx, d, opPushStatus, nil, "Status updated locally", nil)
	}
	remoteErr := e.pushPickingState(ctx, int(d.OdooPickingID.Int64), status, notes)
	return e.finishDelivery(ctx, d, opPushStatus, remoteErr, "Status updated", map[string]any{"status": status})
}

// AssignDriver sets the driver locally and mirrors it as the picking's
// responsible user when the driver maps to an ERP user.
func (e *Engine) AssignDriver(ctx context.Context, deliveryID, driverID string) Result {
	d, err := e.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return failedf(err, "delivery %s not loaded", deliveryID)
	}
	driver, err := e.store.GetDriver(ctx, driverID)
	if err != nil {
		return failedf(err, "driver %s not loaded", driverID)
	}

	d.DriverID = store.NullString(driver.ID)
	if r, ok := e.writeLocal(ctx, d); !ok {
		return r
	}

	data := map[string]any{"driver_id": driver.ID}
	if !driver.OdooUserID.Valid || !d.OdooPickingID.Valid {
		data["local_only"] = true
		return e.finishDelivery(ctx, d, opAssignDriver, nil, "Driver assigned locally", data)
	}
	remoteErr := e.erp.Write(ctx, mapping.ModelPicking, []int{int(d.OdooPickingID.Int64)},
		map[string]any{"user_id": int(driver.OdooUserID.Int64)})
	return e.finishDelivery(ctx, d, opAssignDriver, remoteErr, "Driver assigned", data)
}

// CompleteDelivery marks the delivery delivered with its proof, validates
// the picking and uploads the signature. A failed upload only logs a warning.
func (e *Engine) CompleteDelivery(ctx context.Context, deliveryID string, proof ProofOfDelivery) Result {
	d, err := e.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return failedf(err, "delivery %s not loaded", deliveryID)
	}
	if !mapping.CanTransition(d.Status, store.DeliveryDelivered) {
		return failedf(ErrInvalidTransition, "cannot complete a %s delivery", d.Status)
	}

	deliveredAt := proof.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = e.now()
	}
	d.Status = store.DeliveryDelivered
	d.DeliveredAt = store.NullTime(deliveredAt.UTC())
	if proof.RecipientName != "" {
		d.RecipientName = store.NullString(proof.RecipientName)
	}
	if proof.Notes != "" {
		d.Notes = store.NullString(proof.Notes)
	}
	if r, ok := e.writeLocal(ctx, d); !ok {
		return r
	}

	if !d.OdooPickingID.Valid {
		return e.finishDelivery(ctx, d, opComplete, nil, "Delivery completed locally", nil)
	}
	pickingID := int(d.OdooPickingID.Int64)
	remoteErr := e.pushPickingState(ctx, pickingID, store.DeliveryDelivered, proof.Notes)

	data := map[string]any{"delivered_at": d.DeliveredAt.Time}
	if len(proof.Signature) > 0 {
		attachmentID, err := e.erp.Create(ctx, mapping.ModelAttachment,
			mapping.SignatureAttachment(pickingID, d.Reference, proof.Signature))
		if err != nil {
			logger.Log.Warn("Failed to upload delivery signature",
				zap.String("delivery_id", d.ID),
				zap.Int("picking_id", pickingID),
				zap.Error(err),
			)
			data["attachment_error"] = err.Error()
		} else {
			data["attachment_id"] = attachmentID
		}
	}
	return e.finishDelivery(ctx, d, opComplete, remoteErr, "Delivery completed", data)
}

// RetryDelivery re-pushes the current status (and driver) of a delivery whose
// last push did not reach the ERP.
func (e *Engine) RetryDelivery(ctx context.Context, deliveryID string) Result {
	d, err := e.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return failedf(err, "delivery %s not loaded", deliveryID)
	}
	if d.SyncStatus == store.SyncSynced {
		return Result{Success: true, Message: "Delivery already synced"}
	}
	if !d.OdooPickingID.Valid {
		return e.finishDelivery(ctx, d, opRetryDelivery, nil, "Delivery is local only", nil)
	}
	pickingID := int(d.OdooPickingID.Int64)

	var remoteErr error
	if d.DriverID.Valid {
		driver, err := e.store.GetDriver(ctx, d.DriverID.String)
		switch {
		case err == nil && driver.OdooUserID.Valid:
			remoteErr = e.erp.Write(ctx, mapping.ModelPicking, []int{pickingID},
				map[string]any{"user_id": int(driver.OdooUserID.Int64)})
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return failedf(err, "driver %s not loaded", d.DriverID.String)
		}
	}
	if remoteErr == nil {
		remoteErr = e.pushPickingState(ctx, pickingID, d.Status, "")
	}
	return e.finishDelivery(ctx, d, opRetryDelivery, remoteErr, "Delivery re-synced", map[string]any{"status": d.Status})
}

// RetryPendingDeliveries re-pushes deliveries left pending or in error. Rows
// touched within the retry grace are skipped, since their push may still
// be in flight.
func (e *Engine) RetryPendingDeliveries(ctx context.Context, limit int) (*BatchResult, error) {
	filter := store.DeliveryFilter{
		SyncStatuses:  []store.SyncStatus{store.SyncPendingPush, store.SyncError},
		UpdatedBefore: e.now().Add(-e.cfg.RetryGrace),
	}
	total, err := e.store.CountDeliveries(ctx, filter)
	if err != nil {
		return nil, err
	}
	pending, err := e.store.ListDeliveries(ctx, filter, store.Page{Limit: e.batchSize(limit)})
	if err != nil {
		return nil, err
	}

	tasks := make([]batchTask, len(pending))
	for i, d := range pending {
		id := d.ID
		tasks[i] = batchTask{
			label: "delivery " + id,
			run: func(ctx context.Context) error {
				return e.RetryDelivery(ctx, id).failure()
			},
		}
	}

	res, interrupted := e.runBatch(ctx, opRetryPending, tasks)
	// Retried rows leave the filter, so the next page always starts at zero.
	paginate(&res, total, 0, len(pending), interrupted)
	res.NextOffset = 0

	if res.Attempted > 0 {
		e.audit.Record(ctx, auditlog.Entry{
			SubjectType: auditlog.SubjectBatch,
			Operation:   opRetryPending,
			Outcome:     auditlog.OutcomeOf(res.Succeeded, res.Failed),
			Summary:     res,
		})
	}
	return &res, nil
}

// writeLocal stores d as a pending push. ok is false when the local write
// failed, in which case r is the failure to return.
func (e *Engine) writeLocal(ctx context.Context, d *store.Delivery) (r Result, ok bool) {
	d.SyncStatus = store.SyncPendingPush
	d.SyncError = store.NullString("")
	d.LastLocalUpdate = store.NullTime(e.now())
	if err := e.store.UpdateDelivery(ctx, d); err != nil {
		return failedf(err, "delivery %s not saved", d.ID), false
	}
	return Result{}, true
}

// pushPickingState sends status as a completion or cancellation action, or
// as a plain state write for every other status.
func (e *Engine) pushPickingState(ctx context.Context, pickingID int, status store.DeliveryStatus, notes string) error {
	ids := []int{pickingID}
	var action string
	switch status {
	case store.DeliveryDelivered:
		action = mapping.ActionValidate
	case store.DeliveryCancelled:
		action = mapping.ActionCancel
	default:
		return e.erp.Write(ctx, mapping.ModelPicking, ids, mapping.PickingValues(status, notes))
	}

	if notes != "" {
		if err := e.erp.Write(ctx, mapping.ModelPicking, ids, map[string]any{"note": notes}); err != nil {
			return err
		}
	}
	_, err := e.erp.Execute(ctx, mapping.ModelPicking, action, ids)
	return err
}

// finishDelivery settles the sync status after the remote leg and records
// the attempt. The local status is kept whatever remoteErr is.
func (e *Engine) finishDelivery(ctx context.Context, d *store.Delivery, op string, remoteErr error, msg string, data map[string]any) Result {
	entry := auditlog.Entry{
		SubjectType: auditlog.SubjectDelivery,
		SubjectID:   d.ID,
		Operation:   op,
	}
	if data != nil {
		entry.Summary = data
	}

	state := store.SyncState{Status: store.SyncSynced, SyncedAt: e.now()}
	if remoteErr != nil {
		state = store.SyncState{Status: store.SyncError, Error: remoteErr.Error()}
	}
	settleCtx, cancel := detached(ctx)
	defer cancel()
	if err := e.store.MarkDeliverySync(settleCtx, d.ID, state); err != nil {
		logger.Log.Error("Failed to record delivery sync status",
			zap.String("delivery_id", d.ID), zap.String("sync_status", string(state.Status)), zap.Error(err))
	}

	if remoteErr != nil {
		logger.Log.Warn("ERP push failed; local change kept",
			zap.String("operation", op),
			zap.String("delivery_id", d.ID),
			zap.Error(remoteErr),
		)
		entry.Outcome = auditlog.OutcomeError
		entry.Err = remoteErr
		e.audit.Record(ctx, entry)
		return Result{
			Success:   true,
			Message:   msg + " locally; ERP sync failed",
			Data:      data,
			SyncError: remoteErr.Error(),
			syncErr:   remoteErr,
		}
	}

	entry.Outcome = auditlog.OutcomeSuccess
	e.audit.Record(ctx, entry)
	return Result{Success: true, Message: msg, Data: data}
}

func (e *Engine) recordBatchError(ctx context.Context, op string, err error) {
	logger.Log.Error("Batch failed", zap.String("operation", op), zap.Error(err))
	e.audit.Record(ctx, auditlog.Entry{
		SubjectType: auditlog.SubjectBatch,
		Operation:   op,
		Outcome:     auditlog.OutcomeError,
		Err:         err,
	})
}

func recordLabel(rec map[string]any) string {
	if id, ok := rec["id"].(int); ok {
		return strconv.Itoa(id)
	}
	return "?"
}
