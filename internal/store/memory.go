package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It follows the same
// contract as MySQLStore and backs tests and the "memory" storage type.
type MemoryStore struct {
	mu sync.RWMutex

	deliveries    map[string]*Delivery
	deliveryOrder []string
	lines         map[string][]DeliveryLine
	leads         map[string]*Lead
	leadOrder     []string
	drivers       map[string]*Driver
	logs          []*SyncLogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deliveries: make(map[string]*Delivery),
		lines:      make(map[string][]DeliveryLine),
		leads:      make(map[string]*Lead),
		drivers:    make(map[string]*Driver),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) GetDeliveryByRemoteID(ctx context.Context, pickingID int64) (*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d := s.deliveryByRemoteID(pickingID); d != nil {
		cp := *d
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) deliveryByRemoteID(pickingID int64) *Delivery {
	for _, d := range s.deliveries {
		if d.OdooPickingID.Valid && d.OdooPickingID.Int64 == pickingID {
			return d
		}
	}
	return nil
}

func (f DeliveryFilter) matches(d *Delivery) bool {
	if len(f.Statuses) > 0 && !contains(f.Statuses, d.Status) {
		return false
	}
	if len(f.SyncStatuses) > 0 && !contains(f.SyncStatuses, d.SyncStatus) {
		return false
	}
	if !f.UpdatedBefore.IsZero() && d.LastLocalUpdate.Valid && !d.LastLocalUpdate.Time.Before(f.UpdatedBefore) {
		return false
	}
	return true
}

func (f LeadFilter) matches(l *Lead) bool {
	if len(f.SyncStatuses) > 0 && !contains(f.SyncStatuses, l.SyncStatus) {
		return false
	}
	if f.LinkedOnly && !l.OdooLeadID.Valid {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

func (s *MemoryStore) ListDeliveries(ctx context.Context, filter DeliveryFilter, page Page) ([]*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Delivery
	for _, id := range s.deliveryOrder {
		d := s.deliveries[id]
		if filter.matches(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return paginate(out, page), nil
}

func (s *MemoryStore) CountDeliveries(ctx context.Context, filter DeliveryFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, d := range s.deliveries {
		if filter.matches(d) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpsertDelivery(ctx context.Context, d *Delivery) (string, error) {
	if !d.OdooPickingID.Valid {
		return "", errors.New("store: upsert requires a picking id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if cur := s.deliveryByRemoteID(d.OdooPickingID.Int64); cur != nil {
		cur.Reference = d.Reference
		cur.Origin = d.Origin
		cur.Status = d.Status
		cur.CustomerName = d.CustomerName
		cur.CustomerAddress = d.CustomerAddress
		cur.CustomerPhone = d.CustomerPhone
		cur.Latitude = d.Latitude
		cur.Longitude = d.Longitude
		cur.ScheduledAt = d.ScheduledAt
		if !cur.DeliveredAt.Valid {
			cur.DeliveredAt = d.DeliveredAt
		}
		cur.LastSyncedAt = d.LastSyncedAt
		cur.UpdatedAt = now
		return cur.ID, nil
	}

	cp := *d
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if _, exists := s.deliveries[cp.ID]; exists {
		return "", fmt.Errorf("store: delivery %s already exists", cp.ID)
	}
	if cp.SyncStatus == "" {
		cp.SyncStatus = SyncSynced
	}
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.deliveries[cp.ID] = &cp
	s.deliveryOrder = append(s.deliveryOrder, cp.ID)
	return cp.ID, nil
}

func (s *MemoryStore) UpdateDelivery(ctx context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.deliveries[d.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = d.Status
	cur.DriverID = d.DriverID
	cur.Notes = d.Notes
	cur.RecipientName = d.RecipientName
	cur.DeliveredAt = d.DeliveredAt
	cur.SyncStatus = d.SyncStatus
	cur.SyncError = d.SyncError
	cur.LastLocalUpdate = d.LastLocalUpdate
	cur.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkDeliverySync(ctx context.Context, id string, state SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	cur.SyncStatus = state.Status
	cur.SyncError = NullString(state.Error)
	if !state.SyncedAt.IsZero() {
		cur.LastSyncedAt = NullTime(state.SyncedAt)
	}
	cur.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetDeliveryTotals(ctx context.Context, id string, totalQuantity float64, lineCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	cur.TotalQuantity = totalQuantity
	cur.LineCount = lineCount
	return nil
}

func (s *MemoryStore) ReplaceDeliveryLines(ctx context.Context, deliveryID string, lines []DeliveryLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[deliveryID]; !ok {
		return ErrNotFound
	}
	fresh := make([]DeliveryLine, len(lines))
	for i, l := range lines {
		l.DeliveryID = deliveryID
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		fresh[i] = l
	}
	s.lines[deliveryID] = fresh
	return nil
}

func (s *MemoryStore) ListDeliveryLines(ctx context.Context, deliveryID string) ([]DeliveryLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]DeliveryLine{}, s.lines[deliveryID]...), nil
}

func (s *MemoryStore) CreateLead(ctx context.Context, lead *Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if _, exists := s.leads[lead.ID]; exists {
		return fmt.Errorf("store: lead %s already exists", lead.ID)
	}
	if lead.Status == "" {
		lead.Status = LeadNew
	}
	if lead.SyncStatus == "" {
		lead.SyncStatus = SyncUnsynced
	}
	now := time.Now()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	cp := *lead
	s.leads[cp.ID] = &cp
	s.leadOrder = append(s.leadOrder, cp.ID)
	return nil
}

func (s *MemoryStore) GetLead(ctx context.Context, id string) (*Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ListLeads(ctx context.Context, filter LeadFilter, page Page) ([]*Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Lead
	for _, id := range s.leadOrder {
		l := s.leads[id]
		if filter.matches(l) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return paginate(out, page), nil
}

func (s *MemoryStore) CountLeads(ctx context.Context, filter LeadFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, l := range s.leads {
		if filter.matches(l) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpdateLead(ctx context.Context, lead *Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leads[lead.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name = lead.Name
	cur.ContactName = lead.ContactName
	cur.Email = lead.Email
	cur.Phone = lead.Phone
	cur.Description = lead.Description
	cur.Status = lead.Status
	cur.ExpectedRevenue = lead.ExpectedRevenue
	cur.SyncStatus = lead.SyncStatus
	cur.SyncError = lead.SyncError
	cur.LastLocalUpdate = lead.LastLocalUpdate
	cur.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) LinkLead(ctx context.Context, id string, odooLeadID, odooPartnerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leads[id]
	if !ok {
		return ErrNotFound
	}
	if cur.OdooLeadID.Valid && cur.OdooLeadID.Int64 != odooLeadID {
		return ErrRemoteIDConflict
	}
	cur.OdooLeadID = NullInt64(odooLeadID)
	if !cur.OdooPartnerID.Valid {
		cur.OdooPartnerID = NullInt64(odooPartnerID)
	}
	cur.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) LinkLeadPartner(ctx context.Context, id string, odooPartnerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leads[id]
	if !ok {
		return ErrNotFound
	}
	if !cur.OdooPartnerID.Valid {
		cur.OdooPartnerID = NullInt64(odooPartnerID)
		cur.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) UpdateLeadQuotes(ctx context.Context, id string, quotes LeadQuotes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leads[id]
	if !ok {
		return ErrNotFound
	}
	cur.QuoteNumber = quotes.QuoteNumber
	cur.QuoteAmount = quotes.QuoteAmount
	cur.QuoteDate = quotes.QuoteDate
	cur.OrderNumber = quotes.OrderNumber
	cur.OrderAmount = quotes.OrderAmount
	cur.OrderDate = quotes.OrderDate
	if quotes.Status != "" {
		cur.Status = quotes.Status
	}
	if !quotes.SyncedAt.IsZero() {
		cur.LastSyncedAt = NullTime(quotes.SyncedAt)
	}
	cur.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkLeadSync(ctx context.Context, id string, state SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leads[id]
	if !ok {
		return ErrNotFound
	}
	cur.SyncStatus = state.Status
	cur.SyncError = NullString(state.Error)
	if !state.SyncedAt.IsZero() {
		cur.LastSyncedAt = NullTime(state.SyncedAt)
	}
	cur.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CreateDriver(ctx context.Context, driver *Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if driver.ID == "" {
		driver.ID = uuid.NewString()
	}
	driver.CreatedAt = time.Now()
	cp := *driver
	s.drivers[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDriver(ctx context.Context, id string) (*Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	s.logs = append(s.logs, &cp)
	return nil
}

// ListSyncLogs returns entries newest first.
func (s *MemoryStore) ListSyncLogs(ctx context.Context, filter SyncLogFilter, page Page) ([]*SyncLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*SyncLogEntry
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if filter.SubjectType != "" && e.SubjectType != filter.SubjectType {
			continue
		}
		if filter.SubjectID != "" && e.SubjectID.String != filter.SubjectID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return paginate(out, page), nil
}
