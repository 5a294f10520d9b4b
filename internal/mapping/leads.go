package mapping

import (
	"time"

	"github.com/shopspring/decimal"

	"erp-sync-service/internal/store"
)

// sale.order states grouped by how the bridge reports them.
var (
	openOrderStates = map[string]bool{"draft": true, "sent": true}
	wonOrderStates  = map[string]bool{"sale": true, "done": true}
)

// later orders by creation time, then id.
func later(a, b SaleOrder) bool {
	if !a.CreateDate.Equal(b.CreateDate) {
		return a.CreateDate.After(b.CreateDate)
	}
	return a.ID > b.ID
}

// SelectQuotes returns the latest open quotation and the latest confirmed
// order. Either may be nil.
func SelectQuotes(orders []SaleOrder) (open, won *SaleOrder) {
	for i := range orders {
		o := orders[i]
		switch {
		case openOrderStates[o.State]:
			if open == nil || later(o, *open) {
				open = &o
			}
		case wonOrderStates[o.State]:
			if won == nil || later(o, *won) {
				won = &o
			}
		}
	}
	return open, won
}

// LeadQuotesFrom turns the selected documents into the lead's cached fields.
// The lead becomes converted only when an order was won and it is not
// already terminal.
func LeadQuotesFrom(open, won *SaleOrder, current store.LeadStatus, now time.Time) store.LeadQuotes {
	q := store.LeadQuotes{SyncedAt: now}
	if open != nil {
		q.QuoteNumber = store.NullString(open.Name)
		q.QuoteAmount = money(open.AmountTotal)
		q.QuoteDate = store.NullTime(orderDate(*open))
	}
	if won != nil {
		q.OrderNumber = store.NullString(won.Name)
		q.OrderAmount = money(won.AmountTotal)
		q.OrderDate = store.NullTime(orderDate(*won))
		if !current.Terminal() {
			q.Status = store.LeadConverted
		}
	}
	return q
}

func orderDate(o SaleOrder) time.Time {
	if !o.DateOrder.IsZero() {
		return o.DateOrder
	}
	return o.CreateDate
}

// money rounds to the two decimal places the lead columns hold.
func money(v float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v).Round(2))
}

// PartnerValues is the res.partner created for a lead with no known contact.
func PartnerValues(l *store.Lead) map[string]any {
	name := l.ContactName.String
	if name == "" {
		name = l.Name
	}
	values := map[string]any{"name": name}
	if l.Email.Valid {
		values["email"] = l.Email.String
	}
	if l.Phone.Valid {
		values["phone"] = l.Phone.String
	}
	return values
}

// LeadValues is the crm.lead create or write payload. Zero ids are left out.
func LeadValues(l *store.Lead, partnerID, stageID int) map[string]any {
	values := map[string]any{
		"name": l.Name,
		"type": "opportunity",
	}
	if l.ContactName.Valid {
		values["contact_name"] = l.ContactName.String
	}
	if l.Email.Valid {
		values["email_from"] = l.Email.String
	}
	if l.Phone.Valid {
		values["phone"] = l.Phone.String
	}
	if l.Description.Valid {
		values["description"] = l.Description.String
	}
	if l.ExpectedRevenue.Valid {
		values["expected_revenue"] = l.ExpectedRevenue.Decimal.InexactFloat64()
	}
	if partnerID > 0 {
		values["partner_id"] = partnerID
	}
	if stageID > 0 {
		values["stage_id"] = stageID
	}
	return values
}
