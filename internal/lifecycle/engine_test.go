package lifecycle

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/pumpfeed/ingest-core/internal/decode"
	"github.com/pumpfeed/ingest-core/internal/domain"
)

func testConfig() Config {
	return Config{
		ThresholdUSDBondingCurve: decimal.NewFromInt(8888),
		ThresholdUSDAMM:          decimal.NewFromInt(1000),
		PendingMintCap:           100,
	}
}

func bcTrade(mint solana.PublicKey, slot uint64, marketCap int64) *domain.Trade {
	return &domain.Trade{
		Signature:    "sig1",
		Mint:         mint,
		Venue:        domain.VenueBondingCurve,
		Direction:    domain.DirectionBuy,
		Trader:       solana.NewWallet().PublicKey(),
		SOLAmount:    1_000_000_000,
		TokenAmount:  1_000_000,
		PriceSOL:     decimal.NewFromFloat(0.00000006),
		PriceUSD:     decimal.NewFromFloat(0.000009),
		MarketCapUSD: decimal.NewFromInt(marketCap),
		Slot:         slot,
		BlockTime:    time.Unix(1700000000, 0),
	}
}

func TestApplyTradeBelowThresholdHoldsNoToken(t *testing.T) {
	e := New(testConfig(), Handlers{})
	mint := solana.NewWallet().PublicKey()

	tok, isNew := e.ApplyTrade(bcTrade(mint, 100, 5000), time.Now())
	if tok != nil || isNew {
		t.Fatalf("expected no token below threshold, got tok=%v isNew=%v", tok, isNew)
	}
	if got := e.Token(mint); got != nil {
		t.Fatalf("expected no tracked token, got %+v", got)
	}
}

func TestApplyTradeCrossingThresholdCreatesTokenAndFlushesHeld(t *testing.T) {
	var newTokenFired bool
	var tradesSeen int
	e := New(testConfig(), Handlers{
		OnNewToken: func(*domain.Token) { newTokenFired = true },
		OnTrade:    func(*domain.Token, *domain.Trade) { tradesSeen++ },
	})
	mint := solana.NewWallet().PublicKey()

	// Two below-threshold trades held in the LRU.
	e.ApplyTrade(bcTrade(mint, 100, 3000), time.Now())
	e.ApplyTrade(bcTrade(mint, 101, 5000), time.Now())

	tok, isNew := e.ApplyTrade(bcTrade(mint, 102, 9000), time.Now())
	if tok == nil || !isNew {
		t.Fatalf("expected new token on crossing trade")
	}
	if !newTokenFired {
		t.Fatalf("expected OnNewToken to fire")
	}
	if tok.ThresholdCrossedAt == nil {
		t.Fatalf("expected ThresholdCrossedAt to be set")
	}
	if tradesSeen != 3 {
		t.Fatalf("expected 3 trades admitted (2 flushed + 1 crossing), got %d", tradesSeen)
	}
	if tok.TradeCount != 3 {
		t.Fatalf("TradeCount = %d, want 3", tok.TradeCount)
	}
}

func TestApplyTradeThresholdCrossedAtNeverOverwritten(t *testing.T) {
	e := New(testConfig(), Handlers{})
	mint := solana.NewWallet().PublicKey()

	first, _ := e.ApplyTrade(bcTrade(mint, 100, 9000), time.Now())
	firstCrossedAt := *first.ThresholdCrossedAt

	second, _ := e.ApplyTrade(bcTrade(mint, 101, 20000), time.Now().Add(time.Minute))
	if !second.ThresholdCrossedAt.Equal(firstCrossedAt) {
		t.Fatalf("ThresholdCrossedAt should never be overwritten")
	}
}

func TestBondingCurveAccountUpdateDoesNotAdmitBelowThresholdTrade(t *testing.T) {
	var newTokenFired, tradeFired bool
	e := New(testConfig(), Handlers{
		OnNewToken: func(*domain.Token) { newTokenFired = true },
		OnTrade:    func(*domain.Token, *domain.Trade) { tradeFired = true },
	})
	mint := solana.NewWallet().PublicKey()

	// The account update for a brand-new mint's bonding curve always
	// arrives before its first trade on the live firehose.
	e.ApplyBondingCurveState(&domain.BondingCurveState{
		Mint: mint, VirtualSOLReserves: 30_000_000_000, RealSOLReserves: 1_000_000_000, Slot: 10,
	}, time.Now())

	tok, isNew := e.ApplyTrade(bcTrade(mint, 11, 5000), time.Now())
	if tok != nil || isNew {
		t.Fatalf("expected below-threshold trade against a BC placeholder to be held, got tok=%v isNew=%v", tok, isNew)
	}
	if newTokenFired || tradeFired {
		t.Fatalf("expected no handler to fire for a below-threshold trade, got newToken=%v trade=%v", newTokenFired, tradeFired)
	}

	admitted, isNew := e.ApplyTrade(bcTrade(mint, 12, 9000), time.Now())
	if admitted == nil || !isNew {
		t.Fatalf("expected the crossing trade to admit the placeholder token")
	}
	if !newTokenFired {
		t.Fatalf("expected OnNewToken to fire once the placeholder crosses threshold")
	}
	if admitted.TradeCount != 2 {
		t.Fatalf("TradeCount = %d, want 2 (held trade flushed plus crossing trade)", admitted.TradeCount)
	}
}

func TestAMMTradeForUnknownMintCreatesGraduatedToken(t *testing.T) {
	e := New(testConfig(), Handlers{})
	mint := solana.NewWallet().PublicKey()

	trade := bcTrade(mint, 500, 2000)
	trade.Venue = domain.VenueAMM

	tok, isNew := e.ApplyTrade(trade, time.Now())
	if !isNew {
		t.Fatalf("expected new token")
	}
	if tok.State != domain.StateGraduated || !tok.Graduated {
		t.Fatalf("expected Graduated state, got %v", tok.State)
	}
	if tok.CurrentVenue != domain.VenueAMM {
		t.Fatalf("expected current venue AMM")
	}
}

func TestBondingCurveCompleteTransitionsState(t *testing.T) {
	e := New(testConfig(), Handlers{})
	mint := solana.NewWallet().PublicKey()

	e.ApplyBondingCurveState(&domain.BondingCurveState{
		Mint: mint, VirtualSOLReserves: 30_000_000_000, RealSOLReserves: 42_000_000_000, Slot: 10,
	}, time.Now())
	tok := e.Token(mint)
	if tok.State != domain.StateBondingCurve {
		t.Fatalf("expected BondingCurve state, got %v", tok.State)
	}

	tok2 := e.ApplyBondingCurveState(&domain.BondingCurveState{
		Mint: mint, RealSOLReserves: 84_000_000_000, Complete: true, Slot: 20,
	}, time.Now())
	if tok2.State != domain.StateBondingCurveComplete {
		t.Fatalf("expected BondingCurveComplete state, got %v", tok2.State)
	}
	if tok2.Graduated {
		t.Fatalf("BondingCurveComplete must not itself set Graduated")
	}
}

func TestGraduationConfirmedByAMMTradeAfterComplete(t *testing.T) {
	var graduations int
	e := New(testConfig(), Handlers{OnGraduation: func(*domain.Token) { graduations++ }})
	mint := solana.NewWallet().PublicKey()

	// Get the token admitted via a crossing BC trade first.
	e.ApplyTrade(bcTrade(mint, 5, 9000), time.Now())
	e.ApplyBondingCurveState(&domain.BondingCurveState{
		Mint: mint, RealSOLReserves: 84_000_000_000, Complete: true, Slot: 20,
	}, time.Now())

	ammTrade := bcTrade(mint, 21, 12000)
	ammTrade.Venue = domain.VenueAMM
	tok, _ := e.ApplyTrade(ammTrade, time.Now())

	if !tok.Graduated || tok.CurrentVenue != domain.VenueAMM {
		t.Fatalf("expected graduation confirmed by AMM trade")
	}
	if tok.GraduationSlot == nil || *tok.GraduationSlot != 21 {
		t.Fatalf("expected GraduationSlot = 21, got %v", tok.GraduationSlot)
	}
	if graduations != 1 {
		t.Fatalf("expected exactly one OnGraduation fire, got %d", graduations)
	}

	// A second AMM trade must not re-fire graduation.
	ammTrade2 := bcTrade(mint, 22, 13000)
	ammTrade2.Venue = domain.VenueAMM
	e.ApplyTrade(ammTrade2, time.Now())
	if graduations != 1 {
		t.Fatalf("graduation must be idempotent, got %d fires", graduations)
	}
}

func TestGraduationViaPoolCreationAlone(t *testing.T) {
	e := New(testConfig(), Handlers{})
	mint := solana.NewWallet().PublicKey()
	e.ApplyTrade(bcTrade(mint, 5, 9000), time.Now())

	pool := &decode.PoolAccount{
		Pool: solana.NewWallet().PublicKey(), BaseMint: mint,
		BaseReserves: 1_000_000, QuoteReserves: 30_000_000_000, Slot: 50,
	}
	tok := e.ApplyPoolState(pool, time.Now())
	if !tok.Graduated {
		t.Fatalf("expected graduation from pool account alone")
	}
}

func TestSameSlotAMMWinsCurrentVenueTieBreak(t *testing.T) {
	e := New(testConfig(), Handlers{})
	mint := solana.NewWallet().PublicKey()
	e.ApplyTrade(bcTrade(mint, 5, 9000), time.Now())

	bc := bcTrade(mint, 100, 9500)
	e.ApplyTrade(bc, time.Now())

	amm := bcTrade(mint, 100, 9600)
	amm.Venue = domain.VenueAMM
	tok, _ := e.ApplyTrade(amm, time.Now())

	if tok.CurrentVenue != domain.VenueAMM {
		t.Fatalf("expected AMM to win same-slot tie-break, got %v", tok.CurrentVenue)
	}
}

type fakeEvidence struct {
	slot  uint64
	found bool
}

func (f fakeEvidence) EarliestAMMTrade(solana.PublicKey) (uint64, bool) { return f.slot, f.found }

func TestReconcilePromotesStaleBondingCurveCompleteTokens(t *testing.T) {
	e := New(testConfig(), Handlers{})
	mint := solana.NewWallet().PublicKey()
	e.ApplyTrade(bcTrade(mint, 5, 9000), time.Now().Add(-time.Hour))
	e.ApplyBondingCurveState(&domain.BondingCurveState{
		Mint: mint, RealSOLReserves: 84_000_000_000, Complete: true, Slot: 20,
	}, time.Now().Add(-time.Hour))

	promoted := e.Reconcile(time.Now(), 10*time.Minute, fakeEvidence{slot: 30, found: true})
	if len(promoted) != 1 {
		t.Fatalf("expected 1 promoted token, got %d", len(promoted))
	}
	if !promoted[0].Graduated {
		t.Fatalf("expected promoted token to be graduated")
	}
}

func TestReconcileSkipsTokensWithinWindowOrNoEvidence(t *testing.T) {
	e := New(testConfig(), Handlers{})
	mint := solana.NewWallet().PublicKey()
	e.ApplyTrade(bcTrade(mint, 5, 9000), time.Now())
	e.ApplyBondingCurveState(&domain.BondingCurveState{
		Mint: mint, RealSOLReserves: 84_000_000_000, Complete: true, Slot: 20,
	}, time.Now())

	promoted := e.Reconcile(time.Now(), 10*time.Minute, fakeEvidence{found: false})
	if len(promoted) != 0 {
		t.Fatalf("expected no promotions within window, got %d", len(promoted))
	}
}
