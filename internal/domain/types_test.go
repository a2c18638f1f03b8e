package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestVenueRoundTrip(t *testing.T) {
	for _, v := range []Venue{VenueBondingCurve, VenueAMM} {
		if got := ParseVenue(v.String()); got != v {
			t.Fatalf("ParseVenue(%q) = %v, want %v", v.String(), got, v)
		}
	}
	if ParseVenue("garbage") != VenueUnknown {
		t.Fatalf("ParseVenue(garbage) should be VenueUnknown")
	}
}

func TestDirectionRoundTrip(t *testing.T) {
	for _, d := range []Direction{DirectionBuy, DirectionSell} {
		if got := ParseDirection(d.String()); got != d {
			t.Fatalf("ParseDirection(%q) = %v, want %v", d.String(), got, d)
		}
	}
}

func TestTokenCloneIsIndependent(t *testing.T) {
	crossedAt := time.Now()
	price := decimal.NewFromFloat(9000.0)
	slot := uint64(100)

	tok := &Token{
		ThresholdCrossedAt: &crossedAt,
		ThresholdPriceUSD:  &price,
		ThresholdSlot:      &slot,
		Metadata:           &TokenMetadata{Symbol: "FOO"},
	}

	cp := tok.Clone()
	*cp.ThresholdSlot = 999
	cp.Metadata.Symbol = "BAR"

	if *tok.ThresholdSlot != 100 {
		t.Fatalf("mutating clone's ThresholdSlot leaked into original: %d", *tok.ThresholdSlot)
	}
	if tok.Metadata.Symbol != "FOO" {
		t.Fatalf("mutating clone's Metadata leaked into original: %s", tok.Metadata.Symbol)
	}
}

func TestTradeKeyIncludesVenueAndDirection(t *testing.T) {
	base := Trade{Signature: "sig1"}
	buy := base
	buy.Venue, buy.Direction = VenueBondingCurve, DirectionBuy
	sell := base
	sell.Venue, sell.Direction = VenueAMM, DirectionSell

	if buy.Key() == sell.Key() {
		t.Fatalf("expected distinct keys for different venue/direction, got %q for both", buy.Key())
	}
}

func TestSolQuoteAge(t *testing.T) {
	now := time.Now()
	q := SolQuote{ObservedAt: now.Add(-90 * time.Second)}
	if age := q.Age(now); age < 89*time.Second || age > 91*time.Second {
		t.Fatalf("Age() = %v, want ~90s", age)
	}
}
