package decode

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/errs"
)

func buildEventPayload(disc [8]byte, fields [14]uint64) string {
	raw := make([]byte, eventMinLen)
	copy(raw[:eventDiscriminatorLen], disc[:])
	for i, f := range fields {
		binary.LittleEndian.PutUint64(raw[eventDiscriminatorLen+i*eventFieldLen:], f)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestExtractProgramDataLinesFiltersNonMatching(t *testing.T) {
	logs := []string{
		"Program log: instruction: buy",
		"Program data: aGVsbG8=",
		"Program consumed 1200 of 200000 compute units",
	}
	got := ExtractProgramDataLines(logs)
	if len(got) != 1 || got[0] != "aGVsbG8=" {
		t.Fatalf("ExtractProgramDataLines = %v", got)
	}
}

func TestDecodeTradeEventParsesBuy(t *testing.T) {
	fields := [14]uint64{1700000000, 1_000_000, 5_000_000_000, 0, 0, 0, 0, 4_950_000, 30, 14850, 5, 2475, 4_967_325, 4_950_000}
	payload := buildEventPayload(BuyEventDiscriminator, fields)

	ev, err := DecodeTradeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeTradeEvent: %v", err)
	}
	if !ev.IsBuy {
		t.Fatalf("expected IsBuy = true")
	}
	if ev.Direction() != domain.DirectionBuy {
		t.Fatalf("Direction() = %v, want buy", ev.Direction())
	}
	if ev.BaseAmount != 1_000_000 {
		t.Fatalf("BaseAmount = %d, want 1_000_000", ev.BaseAmount)
	}
}

func TestDecodeTradeEventParsesSell(t *testing.T) {
	var fields [14]uint64
	payload := buildEventPayload(SellEventDiscriminator, fields)

	ev, err := DecodeTradeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeTradeEvent: %v", err)
	}
	if ev.Direction() != domain.DirectionSell {
		t.Fatalf("Direction() = %v, want sell", ev.Direction())
	}
}

func TestDecodeTradeEventRejectsUnknownDiscriminator(t *testing.T) {
	var fields [14]uint64
	payload := buildEventPayload([8]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, fields)

	_, err := DecodeTradeEvent(payload)
	if !errs.Is(err, errs.KindDecodeDiscriminatorUnknown) {
		t.Fatalf("expected KindDecodeDiscriminatorUnknown, got %v", err)
	}
}

func TestDecodeTradeEventRejectsShortPayload(t *testing.T) {
	raw := make([]byte, eventMinLen-1)
	copy(raw[:eventDiscriminatorLen], BuyEventDiscriminator[:])
	payload := base64.StdEncoding.EncodeToString(raw)

	_, err := DecodeTradeEvent(payload)
	if !errs.Is(err, errs.KindDecodeShort) {
		t.Fatalf("expected KindDecodeShort, got %v", err)
	}
}
