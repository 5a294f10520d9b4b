package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"erp-sync-service/internal/database"
)

const deliveryColumns = `id, odoo_picking_id, reference, origin, status, sync_status, sync_error,
	customer_name, customer_address, customer_phone, latitude, longitude, scheduled_at,
	driver_id, notes, recipient_name, delivered_at, total_quantity, line_count,
	last_local_update, last_synced_at, created_at, updated_at`

const leadColumns = `id, name, contact_name, email, phone, description, status, expected_revenue,
	odoo_lead_id, odoo_partner_id, odoo_quote_number, odoo_quote_amount, odoo_quote_date,
	odoo_order_number, odoo_order_amount, odoo_order_date, odoo_sync_status, odoo_sync_error,
	odoo_synced_at, last_local_update, created_at, updated_at`

type MySQLStore struct {
	db *database.Database
}

func NewMySQLStore(db *database.Database) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	var d Delivery
	err := row.Scan(
		&d.ID,
		&d.OdooPickingID,
		&d.Reference,
		&d.Origin,
		&d.Status,
		&d.SyncStatus,
		&d.SyncError,
		&d.CustomerName,
		&d.CustomerAddress,
		&d.CustomerPhone,
		&d.Latitude,
		&d.Longitude,
		&d.ScheduledAt,
		&d.DriverID,
		&d.Notes,
		&d.RecipientName,
		&d.DeliveredAt,
		&d.TotalQuantity,
		&d.LineCount,
		&d.LastLocalUpdate,
		&d.LastSyncedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanLead(row rowScanner) (*Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.ContactName,
		&l.Email,
		&l.Phone,
		&l.Description,
		&l.Status,
		&l.ExpectedRevenue,
		&l.OdooLeadID,
		&l.OdooPartnerID,
		&l.QuoteNumber,
		&l.QuoteAmount,
		&l.QuoteDate,
		&l.OrderNumber,
		&l.OrderAmount,
		&l.OrderDate,
		&l.SyncStatus,
		&l.SyncError,
		&l.LastSyncedAt,
		&l.LastLocalUpdate,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// where joins conditions with AND and returns the clause with a leading space.
func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func inClause[T ~string](column string, values []T, args []any) (string, []any) {
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = "?"
		args = append(args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(marks, ", ")), args
}

func limitClause(page Page, args []any) (string, []any) {
	switch {
	case page.Limit > 0:
		return " LIMIT ? OFFSET ?", append(args, page.Limit, page.Offset)
	case page.Offset > 0:
		// MySQL needs a LIMIT to take an OFFSET.
		return " LIMIT 18446744073709551615 OFFSET ?", append(args, page.Offset)
	}
	return "", args
}

func (f DeliveryFilter) clause() (string, []any) {
	var conds []string
	var args []any
	if len(f.Statuses) > 0 {
		var c string
		c, args = inClause("status", f.Statuses, args)
		conds = append(conds, c)
	}
	if len(f.SyncStatuses) > 0 {
		var c string
		c, args = inClause("sync_status", f.SyncStatuses, args)
		conds = append(conds, c)
	}
	if !f.UpdatedBefore.IsZero() {
		conds = append(conds, "(last_local_update IS NULL OR last_local_update < ?)")
		args = append(args, f.UpdatedBefore)
	}
	return where(conds), args
}

func (f LeadFilter) clause() (string, []any) {
	var conds []string
	var args []any
	if len(f.SyncStatuses) > 0 {
		var c string
		c, args = inClause("odoo_sync_status", f.SyncStatuses, args)
		conds = append(conds, c)
	}
	if f.LinkedOnly {
		conds = append(conds, "odoo_lead_id IS NOT NULL")
	}
	return where(conds), args
}

func (s *MySQLStore) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = ?`
	return scanDelivery(s.db.DB.QueryRowContext(ctx, query, id))
}

func (s *MySQLStore) GetDeliveryByRemoteID(ctx context.Context, pickingID int64) (*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE odoo_picking_id = ?`
	return scanDelivery(s.db.DB.QueryRowContext(ctx, query, pickingID))
}

func (s *MySQLStore) ListDeliveries(ctx context.Context, filter DeliveryFilter, page Page) ([]*Delivery, error) {
	cond, args := filter.clause()
	limit, args := limitClause(page, args)
	query := `SELECT ` + deliveryColumns + ` FROM deliveries` + cond + ` ORDER BY created_at, id` + limit

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *MySQLStore) CountDeliveries(ctx context.Context, filter DeliveryFilter) (int, error) {
	cond, args := filter.clause()
	var n int
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries`+cond, args...).Scan(&n)
	return n, err
}

func (s *MySQLStore) UpsertDelivery(ctx context.Context, d *Delivery) (string, error) {
	if !d.OdooPickingID.Valid {
		return "", errors.New("store: upsert requires a picking id")
	}
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	syncStatus := d.SyncStatus
	if syncStatus == "" {
		syncStatus = SyncSynced
	}

	query := `INSERT INTO deliveries (id, odoo_picking_id, reference, origin, status, sync_status,
			  customer_name, customer_address, customer_phone, latitude, longitude, scheduled_at,
			  delivered_at, last_synced_at, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(6), NOW(6))
			  ON DUPLICATE KEY UPDATE
			  reference = VALUES(reference),
			  origin = VALUES(origin),
			  status = VALUES(status),
			  customer_name = VALUES(customer_name),
			  customer_address = VALUES(customer_address),
			  customer_phone = VALUES(customer_phone),
			  latitude = VALUES(latitude),
			  longitude = VALUES(longitude),
			  scheduled_at = VALUES(scheduled_at),
			  delivered_at = COALESCE(delivered_at, VALUES(delivered_at)),
			  last_synced_at = VALUES(last_synced_at),
			  updated_at = NOW(6)`

	_, err := s.db.DB.ExecContext(ctx, query,
		id,
		d.OdooPickingID,
		d.Reference,
		d.Origin,
		d.Status,
		syncStatus,
		d.CustomerName,
		d.CustomerAddress,
		d.CustomerPhone,
		d.Latitude,
		d.Longitude,
		d.ScheduledAt,
		d.DeliveredAt,
		d.LastSyncedAt,
	)
	if err != nil {
		return "", err
	}

	var stored string
	err = s.db.DB.QueryRowContext(ctx, `SELECT id FROM deliveries WHERE odoo_picking_id = ?`, d.OdooPickingID).Scan(&stored)
	return stored, err
}

func (s *MySQLStore) UpdateDelivery(ctx context.Context, d *Delivery) error {
	query := `UPDATE deliveries SET status = ?, driver_id = ?, notes = ?, recipient_name = ?,
			  delivered_at = ?, sync_status = ?, sync_error = ?, last_local_update = ?, updated_at = NOW(6)
			  WHERE id = ?`

	res, err := s.db.DB.ExecContext(ctx, query,
		d.Status,
		d.DriverID,
		d.Notes,
		d.RecipientName,
		d.DeliveredAt,
		d.SyncStatus,
		d.SyncError,
		d.LastLocalUpdate,
		d.ID,
	)
	return affected(res, err)
}

func (s *MySQLStore) MarkDeliverySync(ctx context.Context, id string, state SyncState) error {
	query := `UPDATE deliveries SET sync_status = ?, sync_error = ?,
			  last_synced_at = COALESCE(?, last_synced_at), updated_at = NOW(6) WHERE id = ?`

	res, err := s.db.DB.ExecContext(ctx, query, state.Status, NullString(state.Error), NullTime(state.SyncedAt), id)
	return affected(res, err)
}

func (s *MySQLStore) SetDeliveryTotals(ctx context.Context, id string, totalQuantity float64, lineCount int) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE deliveries SET total_quantity = ?, line_count = ? WHERE id = ?`,
		totalQuantity, lineCount, id)
	return affected(res, err)
}

// ReplaceDeliveryLines deletes and re-inserts the lines in one transaction.
func (s *MySQLStore) ReplaceDeliveryLines(ctx context.Context, deliveryID string, lines []DeliveryLine) error {
	return s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM deliveries WHERE id = ? FOR UPDATE`, deliveryID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM delivery_lines WHERE delivery_id = ?`, deliveryID); err != nil {
			return fmt.Errorf("delete lines: %w", err)
		}

		query := `INSERT INTO delivery_lines (id, delivery_id, odoo_move_id, product_name, product_code, quantity, uom, position)
				  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		for i, l := range lines {
			id := l.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx, query,
				id, deliveryID, l.OdooMoveID, l.ProductName, l.ProductCode, l.Quantity, l.UoM, i,
			); err != nil {
				return fmt.Errorf("insert line %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *MySQLStore) ListDeliveryLines(ctx context.Context, deliveryID string) ([]DeliveryLine, error) {
	query := `SELECT id, delivery_id, odoo_move_id, product_name, product_code, quantity, uom
			  FROM delivery_lines WHERE delivery_id = ? ORDER BY position`

	rows, err := s.db.DB.QueryContext(ctx, query, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []DeliveryLine{}
	for rows.Next() {
		var l DeliveryLine
		if err := rows.Scan(&l.ID, &l.DeliveryID, &l.OdooMoveID, &l.ProductName, &l.ProductCode, &l.Quantity, &l.UoM); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *MySQLStore) CreateLead(ctx context.Context, lead *Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Status == "" {
		lead.Status = LeadNew
	}
	if lead.SyncStatus == "" {
		lead.SyncStatus = SyncUnsynced
	}

	query := `INSERT INTO leads (id, name, contact_name, email, phone, description, status, expected_revenue,
			  odoo_sync_status, last_local_update, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(6), NOW(6))`

	_, err := s.db.DB.ExecContext(ctx, query,
		lead.ID,
		lead.Name,
		lead.ContactName,
		lead.Email,
		lead.Phone,
		lead.Description,
		lead.Status,
		lead.ExpectedRevenue,
		lead.SyncStatus,
		lead.LastLocalUpdate,
	)
	return err
}

func (s *MySQLStore) GetLead(ctx context.Context, id string) (*Lead, error) {
	return scanLead(s.db.DB.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
}

func (s *MySQLStore) ListLeads(ctx context.Context, filter LeadFilter, page Page) ([]*Lead, error) {
	cond, args := filter.clause()
	limit, args := limitClause(page, args)
	query := `SELECT ` + leadColumns + ` FROM leads` + cond + ` ORDER BY created_at, id` + limit

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *MySQLStore) CountLeads(ctx context.Context, filter LeadFilter) (int, error) {
	cond, args := filter.clause()
	var n int
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`+cond, args...).Scan(&n)
	return n, err
}

func (s *MySQLStore) UpdateLead(ctx context.Context, lead *Lead) error {
	query := `UPDATE leads SET name = ?, contact_name = ?, email = ?, phone = ?, description = ?,
			  status = ?, expected_revenue = ?, odoo_sync_status = ?, odoo_sync_error = ?,
			  last_local_update = ?, updated_at = NOW(6) WHERE id = ?`

	res, err := s.db.DB.ExecContext(ctx, query,
		lead.Name,
		lead.ContactName,
		lead.Email,
		lead.Phone,
		lead.Description,
		lead.Status,
		lead.ExpectedRevenue,
		lead.SyncStatus,
		lead.SyncError,
		lead.LastLocalUpdate,
		lead.ID,
	)
	return affected(res, err)
}

func (s *MySQLStore) LinkLead(ctx context.Context, id string, odooLeadID, odooPartnerID int64) error {
	query := `UPDATE leads SET odoo_lead_id = ?, odoo_partner_id = COALESCE(odoo_partner_id, ?), updated_at = NOW(6)
			  WHERE id = ? AND (odoo_lead_id IS NULL OR odoo_lead_id = ?)`

	res, err := s.db.DB.ExecContext(ctx, query, odooLeadID, NullInt64(odooPartnerID), id, odooLeadID)
	if err := affected(res, err); !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := s.GetLead(ctx, id); err != nil {
		return err
	}
	return ErrRemoteIDConflict
}

func (s *MySQLStore) LinkLeadPartner(ctx context.Context, id string, odooPartnerID int64) error {
	query := `UPDATE leads SET odoo_partner_id = COALESCE(odoo_partner_id, ?), updated_at = NOW(6) WHERE id = ?`

	res, err := s.db.DB.ExecContext(ctx, query, NullInt64(odooPartnerID), id)
	return affected(res, err)
}

func (s *MySQLStore) UpdateLeadQuotes(ctx context.Context, id string, q LeadQuotes) error {
	query := `UPDATE leads SET odoo_quote_number = ?, odoo_quote_amount = ?, odoo_quote_date = ?,
			  odoo_order_number = ?, odoo_order_amount = ?, odoo_order_date = ?,
			  status = COALESCE(?, status), odoo_synced_at = COALESCE(?, odoo_synced_at), updated_at = NOW(6)
			  WHERE id = ?`

	res, err := s.db.DB.ExecContext(ctx, query,
		q.QuoteNumber,
		q.QuoteAmount,
		q.QuoteDate,
		q.OrderNumber,
		q.OrderAmount,
		q.OrderDate,
		NullString(string(q.Status)),
		NullTime(q.SyncedAt),
		id,
	)
	return affected(res, err)
}

func (s *MySQLStore) MarkLeadSync(ctx context.Context, id string, state SyncState) error {
	query := `UPDATE leads SET odoo_sync_status = ?, odoo_sync_error = ?,
			  odoo_synced_at = COALESCE(?, odoo_synced_at), updated_at = NOW(6) WHERE id = ?`

	res, err := s.db.DB.ExecContext(ctx, query, state.Status, NullString(state.Error), NullTime(state.SyncedAt), id)
	return affected(res, err)
}

func (s *MySQLStore) CreateDriver(ctx context.Context, driver *Driver) error {
	if driver.ID == "" {
		driver.ID = uuid.NewString()
	}
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO drivers (id, name, odoo_user_id, created_at) VALUES (?, ?, ?, NOW(6))`,
		driver.ID, driver.Name, driver.OdooUserID)
	return err
}

func (s *MySQLStore) GetDriver(ctx context.Context, id string) (*Driver, error) {
	var d Driver
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, odoo_user_id, created_at FROM drivers WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.OdooUserID, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *MySQLStore) AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	// JSON columns reject binary strings, so the summary goes in as text.
	var summary sql.NullString
	if len(entry.RemoteSummary) > 0 {
		summary = sql.NullString{String: string(entry.RemoteSummary), Valid: true}
	}

	query := `INSERT INTO sync_log (id, subject_type, subject_id, operation, outcome, remote_summary, error_message, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE(?, NOW(6)))`

	_, err := s.db.DB.ExecContext(ctx, query,
		entry.ID,
		entry.SubjectType,
		entry.SubjectID,
		entry.Operation,
		entry.Outcome,
		summary,
		entry.ErrorMessage,
		NullTime(entry.CreatedAt),
	)
	return err
}

func (s *MySQLStore) ListSyncLogs(ctx context.Context, filter SyncLogFilter, page Page) ([]*SyncLogEntry, error) {
	var conds []string
	var args []any
	if filter.SubjectType != "" {
		conds = append(conds, "subject_type = ?")
		args = append(args, filter.SubjectType)
	}
	if filter.SubjectID != "" {
		conds = append(conds, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	limit, args := limitClause(page, args)

	query := `SELECT id, subject_type, subject_id, operation, outcome, remote_summary, error_message, created_at
			  FROM sync_log` + where(conds) + ` ORDER BY created_at DESC` + limit

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		var summary []byte
		if err := rows.Scan(&e.ID, &e.SubjectType, &e.SubjectID, &e.Operation, &e.Outcome,
			&summary, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(summary) > 0 {
			e.RemoteSummary = summary
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
