package decode

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
	"time"

	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/errs"
)

// programDataPrefix is the log line prefix a transaction's meta logs
// carry a base64-encoded event record under (spec.md §4.4).
const programDataPrefix = "Program data: "

// Event discriminators selecting Buy vs Sell inside a decoded
// Program-data record.
var (
	BuyEventDiscriminator  = [8]byte{0x67, 0xf4, 0x52, 0x1f, 0x2c, 0x71, 0x4e, 0x9c}
	SellEventDiscriminator = [8]byte{0x3e, 0xad, 0x3b, 0x66, 0xb1, 0x91, 0x54, 0xc2}
)

const (
	eventDiscriminatorLen = 8
	eventFieldCount       = 14
	eventFieldLen         = 8
	eventMinLen           = eventDiscriminatorLen + eventFieldCount*eventFieldLen
)

// TradeEvent is the 14-field Buy/Sell record emitted as Program-data
// log output, decoded in wire order (spec.md §4.4).
type TradeEvent struct {
	IsBuy bool

	Timestamp             int64
	BaseAmount             uint64
	MaxQuoteAmount         uint64
	UserBaseReserves       uint64
	UserQuoteReserves      uint64
	PoolBaseReserves       uint64
	PoolQuoteReserves      uint64
	QuoteAmount            uint64
	LPFeeBP                uint64
	LPFee                  uint64
	ProtocolFeeBP          uint64
	ProtocolFee            uint64
	QuoteAmountWithLPFee   uint64
	UserQuoteAmount        uint64
}

// ExtractProgramDataLines returns the base64 payload of every
// "Program data: " log line in logs, in order.
func ExtractProgramDataLines(logs []string) []string {
	var out []string
	for _, line := range logs {
		if payload, ok := strings.CutPrefix(line, programDataPrefix); ok {
			out = append(out, payload)
		}
	}
	return out
}

// DecodeTradeEvent decodes one base64 Program-data payload into a
// TradeEvent. Returns errs.KindDecodeShort if the decoded bytes are
// shorter than the fixed 14-field record, and
// errs.KindDecodeDiscriminatorUnknown if the leading 8 bytes match
// neither BuyEventDiscriminator nor SellEventDiscriminator.
func DecodeTradeEvent(base64Payload string) (*TradeEvent, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindDecodeShort, "base64 decode program data", err)
	}
	if len(raw) < eventMinLen {
		return nil, errs.NewDecodeShort("trade_event", len(raw), eventMinLen)
	}

	var disc [8]byte
	copy(disc[:], raw[:eventDiscriminatorLen])

	var isBuy bool
	switch disc {
	case BuyEventDiscriminator:
		isBuy = true
	case SellEventDiscriminator:
		isBuy = false
	default:
		return nil, errs.NewUnknownDiscriminator(disc)
	}

	fields := make([]uint64, eventFieldCount)
	for i := 0; i < eventFieldCount; i++ {
		off := eventDiscriminatorLen + i*eventFieldLen
		fields[i] = binary.LittleEndian.Uint64(raw[off:])
	}

	return &TradeEvent{
		IsBuy:                isBuy,
		Timestamp:            int64(fields[0]),
		BaseAmount:           fields[1],
		MaxQuoteAmount:       fields[2],
		UserBaseReserves:     fields[3],
		UserQuoteReserves:    fields[4],
		PoolBaseReserves:     fields[5],
		PoolQuoteReserves:    fields[6],
		QuoteAmount:          fields[7],
		LPFeeBP:              fields[8],
		LPFee:                fields[9],
		ProtocolFeeBP:        fields[10],
		ProtocolFee:          fields[11],
		QuoteAmountWithLPFee: fields[12],
		UserQuoteAmount:      fields[13],
	}, nil
}

// Direction maps IsBuy onto the domain enum.
func (e *TradeEvent) Direction() domain.Direction {
	if e.IsBuy {
		return domain.DirectionBuy
	}
	return domain.DirectionSell
}

// BlockTime converts the event's on-chain unix timestamp to a
// time.Time.
func (e *TradeEvent) BlockTime() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}
