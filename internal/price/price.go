// Package price turns raw reserve counts into the SOL-denominated and
// USD-denominated price metrics the rest of the core persists.
// Grounded on other_examples' ninja0404-pump-go-sdk quote.go
// (calculatePriceMetrics' spot-price-scaled-by-1e9 big.Int arithmetic)
// and nick199910-SolRoute's use of lukechampine.com/uint128 for
// widening multiplies ahead of a division (pkg/pool/raydium/ammPool.go),
// generalized from "quote a hypothetical trade" to "price the token at
// its current reserves".
package price

import (
	"math/big"

	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"

	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/errs"
)

// Decimal places of the two units every reserve count is denominated
// in (spec.md §4.5): SOL has 9, the pump-style SPL token has 6.
const (
	solDecimals   = 9
	tokenDecimals = 6
)

// bondingCurveMigrationSOL is the real-SOL-raised threshold used for
// the bonding-curve progress metric (spec.md §4.5: "sol_reserves_in_sol / 84").
const bondingCurveMigrationSOL = 84

// Calculator computes price and market-cap metrics from reserve
// snapshots. LegacySupplyFactor reproduces a historical 10%-of-supply
// market-cap undercount for side-by-side comparison against older
// dashboards; it defaults to false, meaning the full circulating
// supply is used, per this core's Open Question decision (SPEC_FULL.md).
type Calculator struct {
	LegacySupplyFactor bool
}

// NewCalculator returns a Calculator with the spec-correct default
// (full-supply market cap).
func NewCalculator() Calculator {
	return Calculator{}
}

// Result is one priced snapshot.
type Result struct {
	PriceSOL     decimal.Decimal
	PriceUSD     decimal.Decimal
	MarketCapUSD decimal.Decimal
	StaleQuote   bool
}

// Calculate prices a bonding-curve or AMM reserve pair. quote may be
// nil (no quote observed yet) or stale (quote.Age(now) beyond the
// oracle's ceiling, reported by the caller via staleQuote); either way
// Calculate still returns PriceSOL, leaves PriceUSD/MarketCapUSD at
// zero, and sets Result.StaleQuote. The error is errs.ErrNilQuote
// (KindArithmeticPrecision) for a nil quote and a KindStaleSolQuote
// error for a stale one, so the caller can decide whether that's fatal
// for its own purpose.
func (c Calculator) Calculate(baseReserves, quoteReserves, totalSupply uint64, quote *domain.SolQuote, staleQuote bool) (Result, error) {
	priceSOL, err := priceInSOL(quoteReserves, baseReserves)
	if err != nil {
		return Result{}, err
	}

	if quote == nil {
		return Result{PriceSOL: priceSOL, StaleQuote: true}, errs.ErrNilQuote
	}
	if staleQuote {
		return Result{PriceSOL: priceSOL, StaleQuote: true}, errs.New(errs.KindStaleSolQuote, "sol/usd quote exceeded staleness ceiling")
	}

	priceUSD := priceSOL.Mul(quote.PriceUSD)
	marketCapUSD := c.marketCap(priceUSD, totalSupply)

	return Result{
		PriceSOL:     priceSOL,
		PriceUSD:     priceUSD,
		MarketCapUSD: marketCapUSD,
		StaleQuote:   false,
	}, nil
}

// priceInSOL computes (quoteReserves / 10^solDecimals) / (baseReserves
// / 10^tokenDecimals), i.e. SOL per token, using a uint128 widening
// multiply so the unit-scaling multiplication never overflows a u64
// before the division runs.
func priceInSOL(quoteReserves, baseReserves uint64) (decimal.Decimal, error) {
	if baseReserves == 0 {
		return decimal.Zero, errs.New(errs.KindArithmeticPrecision, "zero base reserves")
	}
	if quoteReserves == 0 {
		return decimal.Zero, errs.New(errs.KindArithmeticPrecision, "zero quote reserves")
	}

	num := uint128.From64(quoteReserves).Mul64(pow10(tokenDecimals))
	denom := uint128.From64(baseReserves).Mul64(pow10(solDecimals))

	numDec := decimal.NewFromBigInt(num.Big(), 0)
	denomDec := decimal.NewFromBigInt(denom.Big(), 0)
	return numDec.DivRound(denomDec, 18), nil
}

// marketCap scales priceUSD (per whole token) by the circulating
// supply, in whole tokens. LegacySupplyFactor, when enabled, multiplies
// by 0.1 to reproduce the historical undercount.
func (c Calculator) marketCap(priceUSD decimal.Decimal, totalSupply uint64) decimal.Decimal {
	supplyWhole := decimal.NewFromBigInt(new(big.Int).SetUint64(totalSupply), -tokenDecimals)
	marketCap := priceUSD.Mul(supplyWhole)
	if c.LegacySupplyFactor {
		marketCap = marketCap.Mul(decimal.NewFromFloat(0.1))
	}
	return marketCap
}

// BondingCurveProgress returns min(100, (realSOLReserves/1e9/84)*100),
// clamped to [0, 100] (spec.md §4.5). A curve reporting complete=true
// is exposed as a distinct state by the lifecycle engine, not folded
// into this percentage.
func BondingCurveProgress(realSOLReserves uint64) decimal.Decimal {
	sol := decimal.NewFromBigInt(new(big.Int).SetUint64(realSOLReserves), -solDecimals)
	progress := sol.Div(decimal.NewFromInt(bondingCurveMigrationSOL)).Mul(decimal.NewFromInt(100))
	hundred := decimal.NewFromInt(100)
	if progress.GreaterThan(hundred) {
		return hundred
	}
	if progress.IsNegative() {
		return decimal.Zero
	}
	return progress
}

func pow10(n int) uint64 {
	v := uint64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
