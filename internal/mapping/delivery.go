package mapping

import (
	"database/sql"
	"encoding/base64"
	"strings"
	"time"

	"erp-sync-service/internal/store"
)

// DeliveryFromPicking builds the remote-derived half of a delivery. The
// status is the raw reverse mapping; callers merge it with the local status.
func DeliveryFromPicking(p Picking, partner Partner, now time.Time) *store.Delivery {
	d := &store.Delivery{
		OdooPickingID:   store.NullInt64(int64(p.ID)),
		Reference:       p.Name,
		Origin:          store.NullString(p.Origin),
		Status:          DeliveryStatusFromPicking(p.State),
		CustomerName:    store.NullString(partner.Name),
		CustomerAddress: store.NullString(partner.Address),
		CustomerPhone:   store.NullString(partner.Phone),
		ScheduledAt:     store.NullTime(p.ScheduledDate),
		LastSyncedAt:    store.NullTime(now),
	}
	if d.CustomerName.String == "" {
		d.CustomerName = store.NullString(p.PartnerName)
	}
	if partner.HasGeo {
		d.Latitude = sql.NullFloat64{Float64: partner.Latitude, Valid: true}
		d.Longitude = sql.NullFloat64{Float64: partner.Longitude, Valid: true}
	}
	if p.State == PickingDone {
		d.DeliveredAt = store.NullTime(p.DateDone)
	}
	return d
}

func LinesFromMoves(moves []Move) []store.DeliveryLine {
	lines := make([]store.DeliveryLine, 0, len(moves))
	for _, mv := range moves {
		lines = append(lines, store.DeliveryLine{
			OdooMoveID:  store.NullInt64(int64(mv.ID)),
			ProductName: mv.ProductName,
			ProductCode: store.NullString(mv.ProductCode),
			Quantity:    mv.Quantity,
			UoM:         store.NullString(mv.UoM),
		})
	}
	return lines
}

// TotalQuantity sums the stored lines of one delivery.
func TotalQuantity(lines []store.DeliveryLine) float64 {
	var total float64
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}

// PickingValues is the plain write used for non-terminal pushes.
func PickingValues(status store.DeliveryStatus, notes string) map[string]any {
	values := map[string]any{"state": PickingState(status)}
	if notes != "" {
		values["note"] = notes
	}
	return values
}

// SignatureAttachment is the ir.attachment payload for a proof-of-delivery image.
func SignatureAttachment(pickingID int, reference string, png []byte) map[string]any {
	return map[string]any{
		"name":      "signature-" + strings.ReplaceAll(reference, "/", "-") + ".png",
		"type":      "binary",
		"datas":     base64.StdEncoding.EncodeToString(png),
		"res_model": ModelPicking,
		"res_id":    pickingID,
		"mimetype":  "image/png",
	}
}
