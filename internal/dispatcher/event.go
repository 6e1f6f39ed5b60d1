package dispatcher

import "lobsim/internal/common"

// Kind tags the variant carried by an Event (spec.md §3: "A tagged
// variant carrying ts and one of SUBMIT/CANCEL/MODIFY/STOP_TRIGGER/
// ICEBERG_REFRESH").
type Kind int

const (
	Submit Kind = iota
	Cancel
	Modify
	StopTrigger
	IcebergRefresh
)

func (k Kind) String() string {
	switch k {
	case Submit:
		return "SUBMIT"
	case Cancel:
		return "CANCEL"
	case Modify:
		return "MODIFY"
	case StopTrigger:
		return "STOP_TRIGGER"
	case IcebergRefresh:
		return "ICEBERG_REFRESH"
	default:
		return "UNKNOWN"
	}
}

// Event is one heap entry. Only the fields relevant to Kind are
// populated by the caller; Seq is assigned by the dispatcher at
// enqueue time, never by the producer, so it is a reliable
// submission-order tie-break (spec.md §4.4).
type Event struct {
	TS  int64
	Seq uint64
	Kind Kind

	Order      *common.Order // SUBMIT
	OrderID    string        // CANCEL, MODIFY, STOP_TRIGGER, ICEBERG_REFRESH
	NewQty     uint64        // MODIFY
	NewPrice   *common.Price // MODIFY, nil means unchanged
}
