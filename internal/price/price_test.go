package price

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pumpfeed/ingest-core/internal/domain"
)

func TestCalculateZeroBaseReservesIsArithmeticPrecisionError(t *testing.T) {
	c := NewCalculator()
	_, err := c.Calculate(0, 1_000_000_000, 1_000_000_000_000, &domain.SolQuote{PriceUSD: decimal.NewFromInt(150)}, false)
	if err == nil {
		t.Fatalf("expected error for zero base reserves")
	}
}

func TestCalculateNilQuoteReturnsPriceSOLOnly(t *testing.T) {
	c := NewCalculator()
	result, err := c.Calculate(30_000_000_000, 1_000_000_000, 1_000_000_000_000, nil, false)
	if err == nil {
		t.Fatalf("expected ErrNilQuote")
	}
	if result.PriceSOL.IsZero() {
		t.Fatalf("expected PriceSOL to still be computed")
	}
	if !result.PriceUSD.IsZero() {
		t.Fatalf("expected PriceUSD to remain zero without a quote")
	}
	if !result.StaleQuote {
		t.Fatalf("expected StaleQuote = true when quote is nil")
	}
}

func TestCalculateStaleQuoteFlagsResultButStillPricesSOL(t *testing.T) {
	c := NewCalculator()
	quote := &domain.SolQuote{PriceUSD: decimal.NewFromInt(150), ObservedAt: time.Now().Add(-time.Hour)}
	result, err := c.Calculate(30_000_000_000, 1_000_000_000, 1_000_000_000_000, quote, true)
	if err == nil {
		t.Fatalf("expected KindStaleSolQuote error")
	}
	if !result.StaleQuote {
		t.Fatalf("expected StaleQuote = true")
	}
	if result.PriceSOL.IsZero() {
		t.Fatalf("expected PriceSOL to still be computed for a stale quote")
	}
}

func TestCalculateHealthyQuoteProducesNonZeroMarketCap(t *testing.T) {
	c := NewCalculator()
	quote := &domain.SolQuote{PriceUSD: decimal.NewFromInt(150), ObservedAt: time.Now()}
	result, err := c.Calculate(30_000_000_000, 1_000_000_000, 1_000_000_000_000, quote, false)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if result.MarketCapUSD.IsZero() {
		t.Fatalf("expected non-zero market cap")
	}
}

func TestLegacySupplyFactorReducesMarketCapByTenX(t *testing.T) {
	quote := &domain.SolQuote{PriceUSD: decimal.NewFromInt(150), ObservedAt: time.Now()}

	standard := NewCalculator()
	legacy := Calculator{LegacySupplyFactor: true}

	r1, err := standard.Calculate(30_000_000_000, 1_000_000_000, 1_000_000_000_000, quote, false)
	if err != nil {
		t.Fatalf("standard Calculate: %v", err)
	}
	r2, err := legacy.Calculate(30_000_000_000, 1_000_000_000, 1_000_000_000_000, quote, false)
	if err != nil {
		t.Fatalf("legacy Calculate: %v", err)
	}

	ratio := r1.MarketCapUSD.Div(r2.MarketCapUSD)
	if !ratio.Round(4).Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected standard market cap to be 10x the legacy one, ratio = %s", ratio.String())
	}
}

func TestBondingCurveProgressClampsAtOneHundred(t *testing.T) {
	progress := BondingCurveProgress(200_000_000_000) // 200 SOL, far past the 84 SOL threshold
	if !progress.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("BondingCurveProgress = %s, want 100", progress.String())
	}
}

func TestBondingCurveProgressHalfway(t *testing.T) {
	progress := BondingCurveProgress(42_000_000_000) // 42 SOL, half of 84
	if !progress.Round(2).Equal(decimal.NewFromInt(50)) {
		t.Fatalf("BondingCurveProgress = %s, want 50", progress.String())
	}
}
