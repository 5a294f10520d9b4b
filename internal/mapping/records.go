package mapping

import (
	"strings"
	"time"
)

const (
	ModelPicking    = "stock.picking"
	ModelMove       = "stock.move"
	ModelPartner    = "res.partner"
	ModelLead       = "crm.lead"
	ModelStage      = "crm.stage"
	ModelSaleOrder  = "sale.order"
	ModelAttachment = "ir.attachment"
)

// Field lists requested from Odoo for each typed record.
var (
	PickingFields   = []string{"id", "name", "origin", "state", "partner_id", "scheduled_date", "date_done", "write_date"}
	MoveFields      = []string{"id", "product_id", "product_uom_qty", "product_uom", "description_picking"}
	PartnerFields   = []string{"id", "name", "email", "phone", "mobile", "street", "street2", "city", "zip", "country_id", "partner_latitude", "partner_longitude"}
	SaleOrderFields = []string{"id", "name", "state", "amount_total", "date_order", "create_date"}
	LeadFields      = []string{"id", "stage_id", "partner_id"}
)

type Picking struct {
	ID            int
	Name          string
	Origin        string
	State         string
	PartnerID     int
	PartnerName   string
	ScheduledDate time.Time
	DateDone      time.Time
	WriteDate     time.Time
}

// PickingFromRecord requires id, name and state.
func PickingFromRecord(m map[string]any) (Picking, error) {
	r, err := newRecord(ModelPicking, m)
	if err != nil {
		return Picking{}, err
	}
	p := Picking{ID: r.id}
	if p.Name, err = r.requireString("name"); err != nil {
		return Picking{}, err
	}
	if p.State, err = r.requireString("state"); err != nil {
		return Picking{}, err
	}
	if p.Origin, err = r.optString("origin"); err != nil {
		return Picking{}, err
	}
	if p.PartnerID, p.PartnerName, err = r.many2one("partner_id"); err != nil {
		return Picking{}, err
	}
	if p.ScheduledDate, err = r.optTime("scheduled_date"); err != nil {
		return Picking{}, err
	}
	if p.DateDone, err = r.optTime("date_done"); err != nil {
		return Picking{}, err
	}
	if p.WriteDate, err = r.optTime("write_date"); err != nil {
		return Picking{}, err
	}
	return p, nil
}

type Move struct {
	ID          int
	ProductID   int
	ProductName string
	ProductCode string
	Quantity    float64
	UoM         string
}

// MoveFromRecord requires id, product_id and product_uom_qty.
func MoveFromRecord(m map[string]any) (Move, error) {
	r, err := newRecord(ModelMove, m)
	if err != nil {
		return Move{}, err
	}
	mv := Move{ID: r.id}
	if mv.ProductID, mv.ProductName, err = r.many2one("product_id"); err != nil {
		return Move{}, err
	}
	if mv.ProductID == 0 {
		return Move{}, r.missing("product_id")
	}
	if mv.Quantity, err = r.requireFloat("product_uom_qty"); err != nil {
		return Move{}, err
	}
	if _, mv.UoM, err = r.many2one("product_uom"); err != nil {
		return Move{}, err
	}
	mv.ProductCode, mv.ProductName = splitProductName(mv.ProductName)
	if desc, _ := r.optString("description_picking"); mv.ProductName == "" {
		mv.ProductName = desc
	}
	return mv, nil
}

// splitProductName separates the "[CODE] Name" display form.
func splitProductName(display string) (code, name string) {
	if strings.HasPrefix(display, "[") {
		if end := strings.Index(display, "]"); end > 0 {
			return display[1:end], strings.TrimSpace(display[end+1:])
		}
	}
	return "", display
}

type Partner struct {
	ID        int
	Name      string
	Email     string
	Phone     string
	Address   string
	Latitude  float64
	Longitude float64
	HasGeo    bool
}

// PartnerFromRecord requires id and name.
func PartnerFromRecord(m map[string]any) (Partner, error) {
	r, err := newRecord(ModelPartner, m)
	if err != nil {
		return Partner{}, err
	}
	p := Partner{ID: r.id}
	if p.Name, err = r.requireString("name"); err != nil {
		return Partner{}, err
	}
	if p.Email, err = r.optString("email"); err != nil {
		return Partner{}, err
	}
	if p.Phone, err = r.optString("phone"); err != nil {
		return Partner{}, err
	}
	if p.Phone == "" {
		if p.Phone, err = r.optString("mobile"); err != nil {
			return Partner{}, err
		}
	}

	var parts []string
	for _, f := range []string{"street", "street2", "city", "zip"} {
		s, err := r.optString(f)
		if err != nil {
			return Partner{}, err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	_, country, err := r.many2one("country_id")
	if err != nil {
		return Partner{}, err
	}
	if country != "" {
		parts = append(parts, country)
	}
	p.Address = strings.Join(parts, ", ")

	lat, hasLat, err := r.optFloat("partner_latitude")
	if err != nil {
		return Partner{}, err
	}
	lng, hasLng, err := r.optFloat("partner_longitude")
	if err != nil {
		return Partner{}, err
	}
	// Odoo stores an unset location as 0,0.
	if hasLat && hasLng && (lat != 0 || lng != 0) {
		p.Latitude, p.Longitude, p.HasGeo = lat, lng, true
	}
	return p, nil
}

type SaleOrder struct {
	ID          int
	Name        string
	State       string
	AmountTotal float64
	DateOrder   time.Time
	CreateDate  time.Time
}

// SaleOrderFromRecord requires id, name, state and create_date.
func SaleOrderFromRecord(m map[string]any) (SaleOrder, error) {
	r, err := newRecord(ModelSaleOrder, m)
	if err != nil {
		return SaleOrder{}, err
	}
	o := SaleOrder{ID: r.id}
	if o.Name, err = r.requireString("name"); err != nil {
		return SaleOrder{}, err
	}
	if o.State, err = r.requireString("state"); err != nil {
		return SaleOrder{}, err
	}
	if o.CreateDate, err = r.requireTime("create_date"); err != nil {
		return SaleOrder{}, err
	}
	if o.AmountTotal, _, err = r.optFloat("amount_total"); err != nil {
		return SaleOrder{}, err
	}
	if o.DateOrder, err = r.optTime("date_order"); err != nil {
		return SaleOrder{}, err
	}
	return o, nil
}

// RemoteLead is the part of crm.lead read back on pull.
type RemoteLead struct {
	ID        int
	StageID   int
	StageName string
	PartnerID int
}

// RemoteLeadFromRecord requires id.
func RemoteLeadFromRecord(m map[string]any) (RemoteLead, error) {
	r, err := newRecord(ModelLead, m)
	if err != nil {
		return RemoteLead{}, err
	}
	l := RemoteLead{ID: r.id}
	if l.StageID, l.StageName, err = r.many2one("stage_id"); err != nil {
		return RemoteLead{}, err
	}
	if l.PartnerID, _, err = r.many2one("partner_id"); err != nil {
		return RemoteLead{}, err
	}
	return l, nil
}
