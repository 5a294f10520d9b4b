package mapping

import "erp-sync-service/internal/store"

// stock.picking states.
const (
	PickingDraft     = "draft"
	PickingWaiting   = "waiting"
	PickingConfirmed = "confirmed"
	PickingAssigned  = "assigned"
	PickingDone      = "done"
	PickingCancel    = "cancel"
)

// Delivery actions that replace a plain state write on push.
const (
	ActionValidate = "button_validate"
	ActionCancel   = "action_cancel"
	ActionSetLost  = "action_set_lost"
)

// in_transit has no picking state of its own and is pushed as assigned.
var deliveryToPicking = map[store.DeliveryStatus]string{
	store.DeliveryDraft:     PickingDraft,
	store.DeliveryWaiting:   PickingWaiting,
	store.DeliveryConfirmed: PickingConfirmed,
	store.DeliveryAssigned:  PickingAssigned,
	store.DeliveryInTransit: PickingAssigned,
	store.DeliveryDelivered: PickingDone,
	store.DeliveryCancelled: PickingCancel,
}

var pickingToDelivery = map[string]store.DeliveryStatus{
	PickingDraft:     store.DeliveryDraft,
	PickingWaiting:   store.DeliveryWaiting,
	PickingConfirmed: store.DeliveryConfirmed,
	PickingAssigned:  store.DeliveryAssigned,
	PickingDone:      store.DeliveryDelivered,
	PickingCancel:    store.DeliveryCancelled,
}

// FallbackDeliveryStatus is used for picking states this bridge does not know.
const FallbackDeliveryStatus = store.DeliveryConfirmed

func PickingState(s store.DeliveryStatus) string {
	return deliveryToPicking[s]
}

func DeliveryStatusFromPicking(state string) store.DeliveryStatus {
	if s, ok := pickingToDelivery[state]; ok {
		return s
	}
	return FallbackDeliveryStatus
}

// crm.stage names.
const (
	StageNew         = "New"
	StageQualified   = "Qualified"
	StageProposition = "Proposition"
	StageWon         = "Won"
	StageLost        = "Lost"
)

// contacted and negotiation collapse onto the nearest stage.
var leadToStage = map[store.LeadStatus]string{
	store.LeadNew:         StageNew,
	store.LeadContacted:   StageNew,
	store.LeadQualified:   StageQualified,
	store.LeadProposal:    StageProposition,
	store.LeadNegotiation: StageProposition,
	store.LeadConverted:   StageWon,
	store.LeadLost:        StageLost,
}

var stageToLead = map[string]store.LeadStatus{
	StageNew:         store.LeadNew,
	StageQualified:   store.LeadQualified,
	StageProposition: store.LeadProposal,
	StageWon:         store.LeadConverted,
	StageLost:        store.LeadLost,
}

const FallbackLeadStatus = store.LeadQualified

func StageName(s store.LeadStatus) string {
	return leadToStage[s]
}

func LeadStatusFromStage(name string) store.LeadStatus {
	if s, ok := stageToLead[name]; ok {
		return s
	}
	return FallbackLeadStatus
}

var deliveryRank = map[store.DeliveryStatus]int{
	store.DeliveryDraft:     0,
	store.DeliveryWaiting:   1,
	store.DeliveryConfirmed: 2,
	store.DeliveryAssigned:  3,
	store.DeliveryInTransit: 4,
	store.DeliveryDelivered: 5,
	store.DeliveryCancelled: 5,
}

var leadRank = map[store.LeadStatus]int{
	store.LeadNew:         0,
	store.LeadContacted:   1,
	store.LeadQualified:   2,
	store.LeadProposal:    3,
	store.LeadNegotiation: 4,
	store.LeadConverted:   5,
	store.LeadLost:        5,
}

// MergeDeliveryStatus picks the status a pull should store. A terminal local
// status only yields to a terminal remote one; otherwise the further along
// the lattice wins, so a local in_transit survives a remote assigned.
func MergeDeliveryStatus(local, remote store.DeliveryStatus) store.DeliveryStatus {
	switch {
	case local == "":
		return remote
	case remote.Terminal():
		return remote
	case local.Terminal():
		return local
	case deliveryRank[remote] > deliveryRank[local]:
		return remote
	}
	return local
}

// CanTransition reports whether a push may move a delivery from one status
// to another. Re-pushing the current status is allowed so failed syncs can
// be retried.
func CanTransition(from, to store.DeliveryStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to || from == "" {
		return true
	}
	if from.Terminal() {
		return false
	}
	return deliveryRank[to] >= deliveryRank[from]
}

func MergeLeadStatus(local, remote store.LeadStatus) store.LeadStatus {
	switch {
	case local == "":
		return remote
	case remote.Terminal():
		return remote
	case local.Terminal():
		return local
	case leadRank[remote] > leadRank[local]:
		return remote
	}
	return local
}

// MergeLeadStage folds the crm.lead stage into the local status. A Won stage
// alone does not convert a lead; only a won sale order does. A terminal local
// status is never overwritten by a stage.
func MergeLeadStage(local, stage store.LeadStatus) store.LeadStatus {
	if stage == store.LeadConverted || local.Terminal() {
		return local
	}
	return MergeLeadStatus(local, stage)
}
