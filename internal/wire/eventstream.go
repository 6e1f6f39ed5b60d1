package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"lobsim/internal/common"
	"lobsim/internal/dispatcher"
)

// streamRecord mirrors spec.md §6's normalized event-stream schema:
// {ts, kind, <kind-specific payload>}, one JSON object per line.
// ITCH/Pillar decoding into this shape is an external producer's
// concern; this decoder only consumes the already-normalized form.
type streamRecord struct {
	TS   int64  `json:"ts"`
	Kind string `json:"kind"`

	OrderID string `json:"order_id,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Side    string `json:"side,omitempty"`
	Type    string `json:"type,omitempty"`
	TIF     string `json:"tif,omitempty"`

	Price       *int64 `json:"price,omitempty"`
	StopPrice   *int64 `json:"stop_price,omitempty"`
	Quantity    uint64 `json:"quantity,omitempty"`
	DisplayQty  uint64 `json:"display_quantity,omitempty"`
	OwnerTag    string `json:"owner_tag,omitempty"`
	NewQuantity uint64 `json:"new_quantity,omitempty"`
	NewPrice    *int64 `json:"new_price,omitempty"`
}

// DecodeEventStream reads newline-delimited JSON records from r and
// converts each into a dispatcher.Event, in file order. A malformed
// line aborts decoding with the line number in the returned error.
func DecodeEventStream(r io.Reader) ([]*dispatcher.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []*dispatcher.Event
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec streamRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ev, err := recordToEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func recordToEvent(rec streamRecord) (*dispatcher.Event, error) {
	switch rec.Kind {
	case "SUBMIT":
		order, err := recordToOrder(rec)
		if err != nil {
			return nil, err
		}
		return &dispatcher.Event{TS: rec.TS, Kind: dispatcher.Submit, Order: order}, nil

	case "CANCEL":
		return &dispatcher.Event{TS: rec.TS, Kind: dispatcher.Cancel, OrderID: rec.OrderID}, nil

	case "MODIFY":
		var newPrice *common.Price
		if rec.NewPrice != nil {
			p := common.Price(*rec.NewPrice)
			newPrice = &p
		}
		return &dispatcher.Event{
			TS:       rec.TS,
			Kind:     dispatcher.Modify,
			OrderID:  rec.OrderID,
			NewQty:   rec.NewQuantity,
			NewPrice: newPrice,
		}, nil

	default:
		return nil, fmt.Errorf("unrecognized event kind %q", rec.Kind)
	}
}

func recordToOrder(rec streamRecord) (*common.Order, error) {
	side, err := parseSide(rec.Side)
	if err != nil {
		return nil, err
	}
	orderType, err := parseOrderType(rec.Type)
	if err != nil {
		return nil, err
	}
	tif, err := parseTIF(rec.TIF)
	if err != nil {
		return nil, err
	}

	order := &common.Order{
		OrderID:      rec.OrderID,
		Symbol:       rec.Symbol,
		Side:         side,
		Type:         orderType,
		TIF:          tif,
		OriginalQty:  rec.Quantity,
		RemainingQty: rec.Quantity, // Engine.Submit caps this to DisplayQty for icebergs
		DisplayQty:   rec.DisplayQty,
		SubmitTS:     rec.TS,
		OwnerTag:     rec.OwnerTag,
		State:        common.Pending,
	}
	if rec.Price != nil {
		order.Price = common.Price(*rec.Price)
	}
	if rec.StopPrice != nil {
		order.StopPrice = common.Price(*rec.StopPrice)
	}
	return order, nil
}

func parseSide(s string) (common.Side, error) {
	switch s {
	case "BUY":
		return common.Buy, nil
	case "SELL":
		return common.Sell, nil
	default:
		return 0, fmt.Errorf("unrecognized side %q", s)
	}
}

func parseOrderType(s string) (common.OrderType, error) {
	switch s {
	case "LIMIT":
		return common.LimitOrder, nil
	case "MARKET":
		return common.MarketOrder, nil
	case "STOP":
		return common.StopOrder, nil
	case "STOP_LIMIT":
		return common.StopLimitOrder, nil
	case "ICEBERG":
		return common.IcebergOrder, nil
	default:
		return 0, fmt.Errorf("unrecognized order type %q", s)
	}
}

func parseTIF(s string) (common.TimeInForce, error) {
	switch s {
	case "", "DAY":
		return common.DAY, nil
	case "IOC":
		return common.IOC, nil
	case "FOK":
		return common.FOK, nil
	case "GTC":
		return common.GTC, nil
	case "POST_ONLY":
		return common.PostOnly, nil
	default:
		return 0, fmt.Errorf("unrecognized time-in-force %q", s)
	}
}
