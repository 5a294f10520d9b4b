package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type DeliveryStatus string

const (
	DeliveryDraft     DeliveryStatus = "draft"
	DeliveryWaiting   DeliveryStatus = "waiting"
	DeliveryConfirmed DeliveryStatus = "confirmed"
	DeliveryAssigned  DeliveryStatus = "assigned"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryDraft, DeliveryWaiting, DeliveryConfirmed, DeliveryAssigned,
		DeliveryInTransit, DeliveryDelivered, DeliveryCancelled:
		return true
	}
	return false
}

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryCancelled
}

type LeadStatus string

const (
	LeadNew         LeadStatus = "new"
	LeadContacted   LeadStatus = "contacted"
	LeadQualified   LeadStatus = "qualified"
	LeadProposal    LeadStatus = "proposal"
	LeadNegotiation LeadStatus = "negotiation"
	LeadConverted   LeadStatus = "converted"
	LeadLost        LeadStatus = "lost"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadQualified, LeadProposal,
		LeadNegotiation, LeadConverted, LeadLost:
		return true
	}
	return false
}

func (s LeadStatus) Terminal() bool {
	return s == LeadConverted || s == LeadLost
}

// SyncStatus tracks the last push to the ERP, independent of business status.
type SyncStatus string

const (
	SyncUnsynced    SyncStatus = "unsynced"
	SyncPendingPush SyncStatus = "pending_push"
	SyncSynced      SyncStatus = "synced"
	SyncError       SyncStatus = "error"
)

type Delivery struct {
	ID              string          `db:"id"`
	OdooPickingID   sql.NullInt64   `db:"odoo_picking_id"`
	Reference       string          `db:"reference"`
	Origin          sql.NullString  `db:"origin"`
	Status          DeliveryStatus  `db:"status"`
	SyncStatus      SyncStatus      `db:"sync_status"`
	SyncError       sql.NullString  `db:"sync_error"`
	CustomerName    sql.NullString  `db:"customer_name"`
	CustomerAddress sql.NullString  `db:"customer_address"`
	CustomerPhone   sql.NullString  `db:"customer_phone"`
	Latitude        sql.NullFloat64 `db:"latitude"`
	Longitude       sql.NullFloat64 `db:"longitude"`
	ScheduledAt     sql.NullTime    `db:"scheduled_at"`
	DriverID        sql.NullString  `db:"driver_id"`
	Notes           sql.NullString  `db:"notes"`
	RecipientName   sql.NullString  `db:"recipient_name"`
	DeliveredAt     sql.NullTime    `db:"delivered_at"`
	TotalQuantity   float64         `db:"total_quantity"`
	LineCount       int             `db:"line_count"`
	LastLocalUpdate sql.NullTime    `db:"last_local_update"`
	LastSyncedAt    sql.NullTime    `db:"last_synced_at"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// DeliveryLine is owned by exactly one delivery and replaced wholesale on pull.
type DeliveryLine struct {
	ID          string         `db:"id"`
	DeliveryID  string         `db:"delivery_id"`
	OdooMoveID  sql.NullInt64  `db:"odoo_move_id"`
	ProductName string         `db:"product_name"`
	ProductCode sql.NullString `db:"product_code"`
	Quantity    float64        `db:"quantity"`
	UoM         sql.NullString `db:"uom"`
}

type Lead struct {
	ID              string              `db:"id"`
	Name            string              `db:"name"`
	ContactName     sql.NullString      `db:"contact_name"`
	Email           sql.NullString      `db:"email"`
	Phone           sql.NullString      `db:"phone"`
	Description     sql.NullString      `db:"description"`
	Status          LeadStatus          `db:"status"`
	ExpectedRevenue decimal.NullDecimal `db:"expected_revenue"`
	OdooLeadID      sql.NullInt64       `db:"odoo_lead_id"`
	OdooPartnerID   sql.NullInt64       `db:"odoo_partner_id"`
	QuoteNumber     sql.NullString      `db:"odoo_quote_number"`
	QuoteAmount     decimal.NullDecimal `db:"odoo_quote_amount"`
	QuoteDate       sql.NullTime        `db:"odoo_quote_date"`
	OrderNumber     sql.NullString      `db:"odoo_order_number"`
	OrderAmount     decimal.NullDecimal `db:"odoo_order_amount"`
	OrderDate       sql.NullTime        `db:"odoo_order_date"`
	SyncStatus      SyncStatus          `db:"odoo_sync_status"`
	SyncError       sql.NullString      `db:"odoo_sync_error"`
	LastSyncedAt    sql.NullTime        `db:"odoo_synced_at"`
	LastLocalUpdate sql.NullTime        `db:"last_local_update"`
	CreatedAt       time.Time           `db:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
}

// Driver is a local actor; OdooUserID maps it to an ERP user when known.
type Driver struct {
	ID         string        `db:"id"`
	Name       string        `db:"name"`
	OdooUserID sql.NullInt64 `db:"odoo_user_id"`
	CreatedAt  time.Time     `db:"created_at"`
}

type SyncLogEntry struct {
	ID            string          `db:"id"`
	SubjectType   string          `db:"subject_type"`
	SubjectID     sql.NullString  `db:"subject_id"`
	Operation     string          `db:"operation"`
	Outcome       string          `db:"outcome"`
	RemoteSummary json.RawMessage `db:"remote_summary"`
	ErrorMessage  sql.NullString  `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
}

// SyncState is the outcome of a push. A zero SyncedAt leaves the previous
// sync timestamp in place.
type SyncState struct {
	Status   SyncStatus
	Error    string
	SyncedAt time.Time
}

// LeadQuotes carries the sales documents pulled for a lead. An empty Status
// leaves the lead status unchanged.
type LeadQuotes struct {
	QuoteNumber sql.NullString
	QuoteAmount decimal.NullDecimal
	QuoteDate   sql.NullTime
	OrderNumber sql.NullString
	OrderAmount decimal.NullDecimal
	OrderDate   sql.NullTime
	Status      LeadStatus
	SyncedAt    time.Time
}

// Page bounds a list query. A zero Limit returns every row from Offset.
type Page struct {
	Limit  int
	Offset int
}

type DeliveryFilter struct {
	Statuses     []DeliveryStatus
	SyncStatuses []SyncStatus
	// UpdatedBefore keeps rows whose last local update is older than this.
	UpdatedBefore time.Time
}

type LeadFilter struct {
	SyncStatuses []SyncStatus
	LinkedOnly   bool
}

type SyncLogFilter struct {
	SubjectType string
	SubjectID   string
}

func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func NullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func NullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
