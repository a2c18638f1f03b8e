// Package domain holds the entities of the ingestion core: Token,
// Trade, the venue account snapshots, the SOL/USD quote, and the
// downtime-gap record. These are plain value types; nothing in this
// package talks to a transport or a database.
//
// Modeled on the typed-record-with-copy-accessors shape of
// gurre-prime-fix-md-go/fixclient/orderstore.go's Order/Quote types,
// generalized to the pump-curve domain of spec.md §3.
package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Venue is a closed enum identifying which on-chain program produced a
// trade or account snapshot. Per spec.md §9, the string forms
// ("bonding_curve", "amm_pool") are an encoding boundary for storage,
// never the internal representation.
type Venue uint8

const (
	VenueUnknown Venue = iota
	VenueBondingCurve
	VenueAMM
)

// String returns the storage encoding for a Venue.
func (v Venue) String() string {
	switch v {
	case VenueBondingCurve:
		return "bonding_curve"
	case VenueAMM:
		return "amm_pool"
	default:
		return "unknown"
	}
}

// ParseVenue inverts Venue.String for reads from storage.
func ParseVenue(s string) Venue {
	switch s {
	case "bonding_curve":
		return VenueBondingCurve
	case "amm_pool":
		return VenueAMM
	default:
		return VenueUnknown
	}
}

// Direction is a closed enum for trade side.
type Direction uint8

const (
	DirectionUnknown Direction = iota
	DirectionBuy
	DirectionSell
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseDirection inverts Direction.String for reads from storage.
func ParseDirection(s string) Direction {
	switch s {
	case "buy":
		return DirectionBuy
	case "sell":
		return DirectionSell
	default:
		return DirectionUnknown
	}
}

// LifecycleState is the per-mint state machine position of spec.md §4.6.
type LifecycleState uint8

const (
	StateUnseen LifecycleState = iota
	StateBondingCurve
	StateBondingCurveComplete
	StateGraduated
)

func (s LifecycleState) String() string {
	switch s {
	case StateBondingCurve:
		return "bonding_curve"
	case StateBondingCurveComplete:
		return "bonding_curve_complete"
	case StateGraduated:
		return "graduated"
	default:
		return "unseen"
	}
}

// TokenMetadata is the asynchronously-enriched optional metadata slot
// on a Token (symbol, name, URI, image, description, creator).
type TokenMetadata struct {
	Symbol      string
	Name        string
	URI         string
	Image       string
	Description string
	Creator     solana.PublicKey
}

// Token is the authoritative per-mint record owned by the
// LifecycleEngine. Zero-value TokenMetadata means "not yet enriched".
//
// Invariants (spec.md §3): FirstSeenSlot <= ThresholdSlot <=
// GraduationSlot when each is set; Graduated implies CurrentVenue ==
// VenueAMM; ThresholdCrossedAt is set at most once and never cleared.
type Token struct {
	Mint solana.PublicKey

	FirstSeenSlot uint64
	FirstSeenAt   time.Time
	FirstSeenVenue Venue

	// ThresholdCrossedAt, ThresholdPriceUSD and ThresholdSlot are nil until the token's
	// market cap first exceeds the admission threshold.
	ThresholdCrossedAt *time.Time
	ThresholdPriceUSD  *decimal.Decimal
	ThresholdSlot      *uint64

	CurrentVenue Venue
	State        LifecycleState

	Graduated     bool
	GraduationSlot *uint64

	TradeCount uint64

	// TokenTotalSupply is the raw (smallest-unit) circulating supply
	// last observed on a bonding-curve account. Carried forward across
	// graduation since the AMM side never re-reports it.
	TokenTotalSupply uint64

	LatestPriceSOL       decimal.Decimal
	LatestPriceUSD       decimal.Decimal
	LatestMarketCapUSD   decimal.Decimal
	LatestVirtualSOL     uint64
	LatestVirtualToken   uint64
	LatestBCProgress     decimal.Decimal
	LatestUpdateSlot     uint64
	LatestUpdateAt       time.Time

	Metadata *TokenMetadata
}

// Clone returns a deep-enough copy safe to hand to a reader that must
// never observe in-place mutation of the authoritative map entry.
// Mirrors the "return *copy" accessor idiom of
// gurre-prime-fix-md-go/fixclient/orderstore.go.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	cp := *t
	if t.ThresholdCrossedAt != nil {
		v := *t.ThresholdCrossedAt
		cp.ThresholdCrossedAt = &v
	}
	if t.ThresholdPriceUSD != nil {
		v := *t.ThresholdPriceUSD
		cp.ThresholdPriceUSD = &v
	}
	if t.ThresholdSlot != nil {
		v := *t.ThresholdSlot
		cp.ThresholdSlot = &v
	}
	if t.GraduationSlot != nil {
		v := *t.GraduationSlot
		cp.GraduationSlot = &v
	}
	if t.Metadata != nil {
		m := *t.Metadata
		cp.Metadata = &m
	}
	return &cp
}

// Trade is an insert-only record of a single buy/sell. Index is the
// event's position among the transaction's Program-data records; it is
// not part of the storage identity (see Key), so two events sharing a
// signature, venue and direction are stored once.
//
// Invariant: reserves are non-negative (uint64 enforces this at the
// type level); SOLAmount > 0 && TokenAmount > 0.
type Trade struct {
	Signature string
	Index     int

	Mint      solana.PublicKey
	Venue     Venue
	Direction Direction
	Trader    solana.PublicKey

	SOLAmount   uint64
	TokenAmount uint64

	PriceSOL     decimal.Decimal
	PriceUSD     decimal.Decimal
	MarketCapUSD decimal.Decimal
	StaleQuote   bool

	VirtualSOLReserves   uint64
	VirtualTokenReserves uint64
	BCProgress           *decimal.Decimal

	Slot      uint64
	BlockTime time.Time
}

// Key returns the storage dedup key: signature plus venue/direction,
// per spec.md §3 ("signature is globally unique for a given
// venue+direction decoding").
func (t Trade) Key() string {
	return t.Signature + ":" + t.Venue.String() + ":" + t.Direction.String()
}

// BondingCurveState is a decoded snapshot of a bonding-curve account at
// a slot.
type BondingCurveState struct {
	Mint    solana.PublicKey
	Creator solana.PublicKey

	VirtualTokenReserves uint64
	VirtualSOLReserves   uint64
	RealTokenReserves    uint64
	RealSOLReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool

	Slot uint64
}

// PoolState is a decoded snapshot of an AMM pool account at a slot.
type PoolState struct {
	Pool      solana.PublicKey
	BaseMint  solana.PublicKey
	QuoteMint solana.PublicKey

	BaseReserves  uint64
	QuoteReserves uint64
	LPSupply      *uint64

	Slot uint64
}

// SolQuote is a single SOL/USD price observation.
type SolQuote struct {
	PriceUSD  decimal.Decimal
	Source    string
	ObservedAt time.Time
}

// Age reports how stale the quote is relative to now.
func (q SolQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedAt)
}

// DowntimeGap records a detected stream outage and its recovery status.
type DowntimeGap struct {
	StartSlot          uint64
	EndSlot            uint64
	Duration           time.Duration
	EstimatedMissed    uint64
	RecoveryAttempted  bool
	AffectedPrograms   []string
}
