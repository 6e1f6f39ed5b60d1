// Package wire implements the binary trade-tape/execution-report
// formats and the JSON normalized event-stream schema of spec.md §6,
// grounded on the teacher's internal/net/messages.go fixed-width
// binary.BigEndian framing (generalized here from float64 monetary
// prices to int64 tick prices, and split into the two distinct record
// shapes the spec calls out instead of one overloaded Report struct).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"lobsim/internal/common"
)

var ErrRecordTooShort = errors.New("wire record too short")

// tradeRecordFixedLen is the fixed-width encoding of spec.md §6's trade
// record: sequence(8) + ts(8) + price_ticks(8) + quantity(8) +
// aggressor_side(1) + maker_id_len(2) + taker_id_len(2), followed by
// the two variable-length id strings.
const tradeRecordFixedLen = 8 + 8 + 8 + 8 + 1 + 2 + 2

// EncodeTrade serializes a Trade to the wire trade-tape format.
func EncodeTrade(t common.Trade) []byte {
	makerLen := len(t.MakerOrderID)
	takerLen := len(t.TakerOrderID)

	buf := make([]byte, tradeRecordFixedLen+makerLen+takerLen)
	binary.BigEndian.PutUint64(buf[0:8], t.Sequence)
	binary.BigEndian.PutUint64(buf[8:16], uint64(t.TS))
	binary.BigEndian.PutUint64(buf[16:24], uint64(t.Price))
	binary.BigEndian.PutUint64(buf[24:32], t.Quantity)
	buf[32] = byte(t.AggressorSide)
	binary.BigEndian.PutUint16(buf[33:35], uint16(makerLen))
	binary.BigEndian.PutUint16(buf[35:37], uint16(takerLen))

	offset := tradeRecordFixedLen
	copy(buf[offset:offset+makerLen], t.MakerOrderID)
	offset += makerLen
	copy(buf[offset:offset+takerLen], t.TakerOrderID)

	return buf
}

// DecodeTrade parses a wire trade record produced by EncodeTrade.
func DecodeTrade(buf []byte) (common.Trade, error) {
	if len(buf) < tradeRecordFixedLen {
		return common.Trade{}, ErrRecordTooShort
	}
	t := common.Trade{
		Sequence:      binary.BigEndian.Uint64(buf[0:8]),
		TS:            int64(binary.BigEndian.Uint64(buf[8:16])),
		Price:         common.Price(binary.BigEndian.Uint64(buf[16:24])),
		Quantity:      binary.BigEndian.Uint64(buf[24:32]),
		AggressorSide: common.Side(buf[32]),
	}
	makerLen := int(binary.BigEndian.Uint16(buf[33:35]))
	takerLen := int(binary.BigEndian.Uint16(buf[35:37]))

	want := tradeRecordFixedLen + makerLen + takerLen
	if len(buf) < want {
		return common.Trade{}, fmt.Errorf("%w: need %d bytes, have %d", ErrRecordTooShort, want, len(buf))
	}
	offset := tradeRecordFixedLen
	t.MakerOrderID = string(buf[offset : offset+makerLen])
	offset += makerLen
	t.TakerOrderID = string(buf[offset : offset+takerLen])

	return t, nil
}

// executionReportFixedLen encodes spec.md §6's execution report:
// new_state(1) + cumulative_filled(8) + avg_fill_price_ticks(8) +
// order_id_len(2) + reason_len(2), followed by the two strings.
const executionReportFixedLen = 1 + 8 + 8 + 2 + 2

// EncodeExecutionReport serializes an ExecutionReport to the wire format.
func EncodeExecutionReport(r common.ExecutionReport) []byte {
	idLen := len(r.OrderID)
	reasonLen := len(r.Reason)

	buf := make([]byte, executionReportFixedLen+idLen+reasonLen)
	buf[0] = byte(r.NewState)
	binary.BigEndian.PutUint64(buf[1:9], r.CumulativeFilled)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.AverageFillPriceTicks))
	binary.BigEndian.PutUint16(buf[17:19], uint16(idLen))
	binary.BigEndian.PutUint16(buf[19:21], uint16(reasonLen))

	offset := executionReportFixedLen
	copy(buf[offset:offset+idLen], r.OrderID)
	offset += idLen
	copy(buf[offset:offset+reasonLen], r.Reason)

	return buf
}

// DecodeExecutionReport parses a wire execution report produced by
// EncodeExecutionReport.
func DecodeExecutionReport(buf []byte) (common.ExecutionReport, error) {
	if len(buf) < executionReportFixedLen {
		return common.ExecutionReport{}, ErrRecordTooShort
	}
	r := common.ExecutionReport{
		NewState:              common.OrderState(buf[0]),
		CumulativeFilled:      binary.BigEndian.Uint64(buf[1:9]),
		AverageFillPriceTicks: common.Price(binary.BigEndian.Uint64(buf[9:17])),
	}
	idLen := int(binary.BigEndian.Uint16(buf[17:19]))
	reasonLen := int(binary.BigEndian.Uint16(buf[19:21]))

	want := executionReportFixedLen + idLen + reasonLen
	if len(buf) < want {
		return common.ExecutionReport{}, fmt.Errorf("%w: need %d bytes, have %d", ErrRecordTooShort, want, len(buf))
	}
	offset := executionReportFixedLen
	r.OrderID = string(buf[offset : offset+idLen])
	offset += idLen
	r.Reason = string(buf[offset : offset+reasonLen])

	return r, nil
}
