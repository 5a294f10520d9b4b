package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("store: record not found")
	// ErrRemoteIDConflict means a record is already bound to a different ERP id.
	ErrRemoteIDConflict = errors.New("store: record is bound to another remote id")
)

type Store interface {
	// Deliveries
	GetDelivery(ctx context.Context, id string) (*Delivery, error)
	GetDeliveryByRemoteID(ctx context.Context, pickingID int64) (*Delivery, error)
	ListDeliveries(ctx context.Context, filter DeliveryFilter, page Page) ([]*Delivery, error)
	CountDeliveries(ctx context.Context, filter DeliveryFilter) (int, error)
	// UpsertDelivery inserts d keyed by its picking id, or refreshes the
	// remote-derived fields and status of the existing row while keeping its
	// local-only fields. It returns the local id.
	UpsertDelivery(ctx context.Context, d *Delivery) (string, error)
	// UpdateDelivery writes the locally owned fields of d.
	UpdateDelivery(ctx context.Context, d *Delivery) error
	MarkDeliverySync(ctx context.Context, id string, state SyncState) error
	SetDeliveryTotals(ctx context.Context, id string, totalQuantity float64, lineCount int) error

	// Delivery lines
	ReplaceDeliveryLines(ctx context.Context, deliveryID string, lines []DeliveryLine) error
	ListDeliveryLines(ctx context.Context, deliveryID string) ([]DeliveryLine, error)

	// Leads
	CreateLead(ctx context.Context, lead *Lead) error
	GetLead(ctx context.Context, id string) (*Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter, page Page) ([]*Lead, error)
	CountLeads(ctx context.Context, filter LeadFilter) (int, error)
	UpdateLead(ctx context.Context, lead *Lead) error
	// LinkLead binds the ERP lead id once; the partner id is only filled when empty.
	LinkLead(ctx context.Context, id string, odooLeadID, odooPartnerID int64) error
	// LinkLeadPartner fills the ERP partner id when it is still empty.
	LinkLeadPartner(ctx context.Context, id string, odooPartnerID int64) error
	UpdateLeadQuotes(ctx context.Context, id string, quotes LeadQuotes) error
	MarkLeadSync(ctx context.Context, id string, state SyncState) error

	// Drivers
	CreateDriver(ctx context.Context, driver *Driver) error
	GetDriver(ctx context.Context, id string) (*Driver, error)

	// Sync log
	AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error
	ListSyncLogs(ctx context.Context, filter SyncLogFilter, page Page) ([]*SyncLogEntry, error)

	// General
	Close() error
}
