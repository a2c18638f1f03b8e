// Package lifecycle owns the per-mint Token state machine: discovery,
// admission-threshold gating, bonding-curve progress, and graduation
// to the AMM (spec.md §4.6). The authoritative Token map is a plain
// mutex-guarded map with copy-on-read accessors, the same shape as
// gurre-prime-fix-md-go/fixclient/orderstore.go's OrderStore — readers
// (EventBus subscribers, the HTTP layer this core feeds) only ever see
// a *domain.Token snapshot, never the map's own entry.
package lifecycle

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/pumpfeed/ingest-core/internal/decode"
	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/price"
)

// Handlers is the set of callbacks the Engine fires as Token state
// changes. Any nil handler is skipped. OnTrade fires once per admitted
// trade, including ones flushed out of the pending LRU on admission.
type Handlers struct {
	OnNewToken   func(token *domain.Token)
	OnTrade      func(token *domain.Token, trade *domain.Trade)
	OnGraduation func(token *domain.Token)
}

// Config carries the admission thresholds and LRU bound the Engine is
// built with (spec.md §4.6 defaults: 8,888 USD bonding-curve, 1,000 USD
// AMM, live in internal/config.Config and are threaded in here by the
// composition root).
type Config struct {
	ThresholdUSDBondingCurve decimal.Decimal
	ThresholdUSDAMM          decimal.Decimal
	PendingMintCap           int
}

// DefaultPendingMintCap bounds the admission LRU when the caller leaves
// Config.PendingMintCap unset.
const DefaultPendingMintCap = 50_000

// Engine is the LifecycleEngine of spec.md §4.6: it owns the
// in-memory Token map, applies account/trade updates to it in slot
// order, and decides admission and graduation.
type Engine struct {
	mu       sync.RWMutex
	tokens   map[string]*domain.Token
	pending  *pendingLRU
	cfg      Config
	handlers Handlers
}

// New builds an Engine. A zero-value Config.PendingMintCap is replaced
// with DefaultPendingMintCap.
func New(cfg Config, handlers Handlers) *Engine {
	if cfg.PendingMintCap <= 0 {
		cfg.PendingMintCap = DefaultPendingMintCap
	}
	return &Engine{
		tokens:   make(map[string]*domain.Token),
		pending:  newPendingLRU(cfg.PendingMintCap),
		cfg:      cfg,
		handlers: handlers,
	}
}

// Token returns a snapshot of the tracked token for mint, or nil if the
// mint has never been observed. Placeholder records staged by
// ApplyBondingCurveState/ApplyPoolState are returned too, before any
// trade has admitted them.
func (e *Engine) Token(mint solana.PublicKey) *domain.Token {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tokens[mint.String()].Clone()
}

// Tokens returns a snapshot of every token in the map, admitted or
// still a placeholder.
func (e *Engine) Tokens() []*domain.Token {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.Token, 0, len(e.tokens))
	for _, t := range e.tokens {
		out = append(out, t.Clone())
	}
	return out
}

// ApplyBondingCurveState folds a decoded bonding-curve account snapshot
// into the token's reserves, progress, and completion state. Never
// admits a token by itself (spec.md §4.6 scenario 1: account updates
// alone do not cross the USD threshold — only a trade's computed
// market cap does), but it does create a placeholder Unseen->BondingCurve
// record so a later trade for the same mint has somewhere to land, and
// it moves the in-memory record to BondingCurveComplete as soon as the
// complete flag is observed. No handler fires from here, so nothing is
// enqueued for storage by this call.
func (e *Engine) ApplyBondingCurveState(state *domain.BondingCurveState, now time.Time) *domain.Token {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := state.Mint.String()
	token, existed := e.tokens[key]
	if !existed {
		token = e.newToken(state.Mint, domain.VenueBondingCurve, state.Slot, now)
		e.tokens[key] = token
	}
	if existed && state.Slot < token.LatestUpdateSlot {
		return token.Clone()
	}

	progress := price.BondingCurveProgress(state.RealSOLReserves)
	e.setCurrentVenueLocked(token, domain.VenueBondingCurve, state.Slot)
	token.LatestVirtualSOL = state.VirtualSOLReserves
	token.LatestVirtualToken = state.VirtualTokenReserves
	token.LatestBCProgress = progress
	token.LatestUpdateSlot = state.Slot
	token.LatestUpdateAt = now
	if state.TokenTotalSupply > 0 {
		token.TokenTotalSupply = state.TokenTotalSupply
	}

	switch {
	case state.Complete && token.State != domain.StateGraduated:
		token.State = domain.StateBondingCurveComplete
	case token.State == domain.StateUnseen:
		token.State = domain.StateBondingCurve
	}

	return token.Clone()
}

// ApplyPoolState folds an AMM pool-creation/update account into the
// token map. Per this core's Open Question decision (SPEC_FULL.md #2), a
// pool account carrying non-zero reserves is sufficient on its own to
// confirm graduation — it does not wait for a first AMM trade.
func (e *Engine) ApplyPoolState(pool *decode.PoolAccount, now time.Time) *domain.Token {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := pool.BaseMint.String()
	token, existed := e.tokens[key]
	if !existed {
		token = e.newToken(pool.BaseMint, domain.VenueAMM, pool.Slot, now)
		e.tokens[key] = token
	}
	if pool.Slot < token.LatestUpdateSlot {
		return token.Clone()
	}

	e.setCurrentVenueLocked(token, domain.VenueAMM, pool.Slot)
	token.LatestUpdateSlot = pool.Slot
	token.LatestUpdateAt = now

	if pool.BaseReserves > 0 || pool.QuoteReserves > 0 {
		e.graduateLocked(token, pool.Slot)
	}
	return token.Clone()
}

// ApplyTrade admits, prices, and records a single decoded trade
// (spec.md §4.6 admission rule and §4.6 graduation-confirmation rule).
// trade.MarketCapUSD and trade.PriceUSD/PriceSOL must already be
// computed by the caller (internal/price.Calculator) before this call;
// the Engine only decides whether that computed figure clears the
// admission threshold, not how it was computed.
func (e *Engine) ApplyTrade(trade *domain.Trade, now time.Time) (token *domain.Token, isNew bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := trade.Mint.String()
	tok, existed := e.tokens[key]

	if !existed && trade.Venue == domain.VenueAMM {
		// spec.md §4.6: "a direct observation of an AMM trade for an
		// unknown mint creates the Token in Graduated state."
		tok = e.newToken(trade.Mint, domain.VenueAMM, trade.Slot, now)
		tok.State = domain.StateGraduated
		e.graduateLocked(tok, trade.Slot)
		e.tokens[key] = tok
		e.markThresholdCrossedLocked(tok, trade, now)
		e.admitAndRecordLocked(tok, trade, now)
		return tok.Clone(), true
	}

	// A token can already be present in the map without having been
	// admitted: ApplyBondingCurveState and ApplyPoolState both stage a
	// placeholder record (reserves, progress, completion state) ahead of
	// any trade so that a trade landing later has somewhere to go, but
	// neither crosses the USD threshold itself. ThresholdCrossedAt is
	// only ever set by a trade that clears crossesThreshold, so it is
	// the one reliable marker of "this mint has actually been admitted."
	admitted := existed && tok.ThresholdCrossedAt != nil

	if !admitted {
		if !e.crossesThreshold(trade) {
			e.pending.hold(key, heldTrade{signature: trade.Signature, index: trade.Index, trade: trade})
			return nil, false
		}
		if !existed {
			tok = e.newToken(trade.Mint, trade.Venue, trade.Slot, now)
			e.tokens[key] = tok
		}
		e.markThresholdCrossedLocked(tok, trade, now)
		for _, held := range e.pending.flush(key) {
			e.admitAndRecordLocked(tok, held.trade, now)
		}
		e.admitAndRecordLocked(tok, trade, now)
		if e.handlers.OnNewToken != nil {
			e.handlers.OnNewToken(tok.Clone())
		}
		return tok.Clone(), true
	}

	if trade.Slot < tok.LatestUpdateSlot {
		e.admitAndRecordLocked(tok, trade, now)
		return tok.Clone(), false
	}

	e.setCurrentVenueLocked(tok, trade.Venue, trade.Slot)
	if trade.Venue == domain.VenueAMM && tok.State != domain.StateGraduated {
		e.graduateLocked(tok, trade.Slot)
	}
	e.admitAndRecordLocked(tok, trade, now)
	return tok.Clone(), false
}

// GraduationEvidence is the minimal read the periodic reconciliation
// sweep needs from the durable store: the earliest AMM trade on record
// for a mint, if any.
type GraduationEvidence interface {
	EarliestAMMTrade(mint solana.PublicKey) (slot uint64, found bool)
}

// Reconcile promotes any BondingCurveComplete token that has not yet
// graduated after window has elapsed, using the earliest AMM evidence
// already in storage (spec.md §4.6: "a periodic reconciliation pass
// promotes it using the earliest AMM evidence already in storage").
// Tokens with no AMM evidence yet are left untouched for the next
// sweep.
func (e *Engine) Reconcile(now time.Time, window time.Duration, evidence GraduationEvidence) []*domain.Token {
	e.mu.Lock()
	defer e.mu.Unlock()

	var promoted []*domain.Token
	for _, tok := range e.tokens {
		if tok.State != domain.StateBondingCurveComplete {
			continue
		}
		if now.Sub(tok.LatestUpdateAt) < window {
			continue
		}
		slot, found := evidence.EarliestAMMTrade(tok.Mint)
		if !found {
			continue
		}
		e.setCurrentVenueLocked(tok, domain.VenueAMM, slot)
		e.graduateLocked(tok, slot)
		promoted = append(promoted, tok.Clone())
	}
	return promoted
}

func (e *Engine) newToken(mint solana.PublicKey, venue domain.Venue, slot uint64, now time.Time) *domain.Token {
	return &domain.Token{
		Mint:           mint,
		FirstSeenSlot:  slot,
		FirstSeenAt:    now,
		FirstSeenVenue: venue,
		CurrentVenue:   venue,
		State:          domain.StateUnseen,
		LatestUpdateAt: now,
	}
}

// setCurrentVenueLocked applies the monotonic-by-slot update rule plus
// the same-slot AMM-wins tie-break (spec.md §4.6: "if both a BC trade
// and an AMM trade for the same mint arrive in the same slot, the AMM
// trade wins for current venue purposes").
func (e *Engine) setCurrentVenueLocked(tok *domain.Token, venue domain.Venue, slot uint64) {
	if slot > tok.LatestUpdateSlot {
		tok.CurrentVenue = venue
		return
	}
	if slot == tok.LatestUpdateSlot && venue == domain.VenueAMM {
		tok.CurrentVenue = domain.VenueAMM
	}
}

func (e *Engine) graduateLocked(tok *domain.Token, slot uint64) {
	if tok.Graduated {
		return
	}
	tok.Graduated = true
	tok.State = domain.StateGraduated
	tok.CurrentVenue = domain.VenueAMM
	s := slot
	tok.GraduationSlot = &s
	if e.handlers.OnGraduation != nil {
		e.handlers.OnGraduation(tok.Clone())
	}
}

func (e *Engine) markThresholdCrossedLocked(tok *domain.Token, trade *domain.Trade, now time.Time) {
	if tok.ThresholdCrossedAt != nil {
		return
	}
	at := now
	priceUSD := trade.PriceUSD
	slot := trade.Slot
	tok.ThresholdCrossedAt = &at
	tok.ThresholdPriceUSD = &priceUSD
	tok.ThresholdSlot = &slot
}

func (e *Engine) admitAndRecordLocked(tok *domain.Token, trade *domain.Trade, now time.Time) {
	tok.TradeCount++
	tok.LatestPriceSOL = trade.PriceSOL
	tok.LatestPriceUSD = trade.PriceUSD
	tok.LatestMarketCapUSD = trade.MarketCapUSD
	tok.LatestVirtualSOL = trade.VirtualSOLReserves
	tok.LatestVirtualToken = trade.VirtualTokenReserves
	if trade.BCProgress != nil {
		tok.LatestBCProgress = *trade.BCProgress
	}
	if trade.Slot >= tok.LatestUpdateSlot {
		tok.LatestUpdateSlot = trade.Slot
		tok.LatestUpdateAt = now
	}
	if e.handlers.OnTrade != nil {
		e.handlers.OnTrade(tok.Clone(), trade)
	}
}

func (e *Engine) crossesThreshold(trade *domain.Trade) bool {
	threshold := e.cfg.ThresholdUSDBondingCurve
	if trade.Venue == domain.VenueAMM {
		threshold = e.cfg.ThresholdUSDAMM
	}
	return trade.MarketCapUSD.GreaterThanOrEqual(threshold)
}
