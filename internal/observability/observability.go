// Package observability aggregates the counters spec.md §2 asks for —
// parse-rate per venue, circuit-breaker state, gap-recovery backlog —
// into one periodic StatsTick published on the EventBus, so a
// downstream consumer never has to poll half a dozen internal types
// directly.
//
// Counters follow internal/stream.Client's own idiom exactly:
// sync/atomic fields plus a Stats() snapshot method, generalized from
// "one client's delivered/dropped/malformed" to "every stage's
// success/failure pair".
package observability

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/eventbus"
	"github.com/pumpfeed/ingest-core/internal/lifecycle"
	"github.com/pumpfeed/ingest-core/internal/stream"
)

// CircuitOpenFunc reports whether the write pipeline's failure queue
// has tripped its circuit-open threshold. Taking a func rather than a
// *storage.WritePipeline keeps this package free of a storage import.
type CircuitOpenFunc func() bool

// VenueCounters holds the decode success/failure tally for one venue.
type VenueCounters struct {
	decodeOK   uint64
	decodeFail uint64
}

func (v *VenueCounters) recordOK()   { atomic.AddUint64(&v.decodeOK, 1) }
func (v *VenueCounters) recordFail() { atomic.AddUint64(&v.decodeFail, 1) }

// VenueSnapshot is the read-only view of a VenueCounters pair.
type VenueSnapshot struct {
	DecodeOK   uint64
	DecodeFail uint64
}

func (v *VenueCounters) snapshot() VenueSnapshot {
	return VenueSnapshot{
		DecodeOK:   atomic.LoadUint64(&v.decodeOK),
		DecodeFail: atomic.LoadUint64(&v.decodeFail),
	}
}

// Collector taps every pipeline stage and periodically emits a
// StatsTick. Construct with New and register it as the
// demux.Handlers.OnDecodeError / lifecycle engine event source in the
// composition root.
type Collector struct {
	engine          *lifecycle.Engine
	streamClient    *stream.Client
	bus             *eventbus.Bus
	circuitOpenFunc CircuitOpenFunc

	bondingCurve    VenueCounters
	amm             VenueCounters
	tradesAdmitted  uint64
	gapQueueDepth   int64
}

// New builds a Collector. streamClient and circuitOpenFunc may be nil
// in tests that don't exercise those stages.
func New(engine *lifecycle.Engine, streamClient *stream.Client, bus *eventbus.Bus, circuitOpenFunc CircuitOpenFunc) *Collector {
	return &Collector{
		engine:          engine,
		streamClient:    streamClient,
		bus:             bus,
		circuitOpenFunc: circuitOpenFunc,
	}
}

// RecordDecode tallies a successful or failed decode for venue.
// Intended to be wired as demux.Handlers.OnDecodeError's companion:
// call with ok=true from OnBondingCurve/OnPool/OnTrade, and derive
// venue+ok=false from OnDecodeError when the venue is known.
func (c *Collector) RecordDecode(venue domain.Venue, ok bool) {
	counters := c.countersFor(venue)
	if counters == nil {
		return
	}
	if ok {
		counters.recordOK()
	} else {
		counters.recordFail()
	}
}

func (c *Collector) countersFor(venue domain.Venue) *VenueCounters {
	switch venue {
	case domain.VenueBondingCurve:
		return &c.bondingCurve
	case domain.VenueAMM:
		return &c.amm
	default:
		return nil
	}
}

// RecordTradeAdmitted tallies one trade that passed admission and was
// recorded onto a Token (internal/lifecycle.Engine's OnTrade/OnNewToken
// handlers should call this).
func (c *Collector) RecordTradeAdmitted() {
	atomic.AddUint64(&c.tradesAdmitted, 1)
}

// SetGapRecoveryQueueDepth records how many DowntimeGaps are currently
// queued for backfill (internal/gaprecovery's composition-root caller
// updates this as it drains its queue).
func (c *Collector) SetGapRecoveryQueueDepth(depth int) {
	atomic.StoreInt64(&c.gapQueueDepth, int64(depth))
}

// Snapshot builds one StatsSnapshot from the current counters.
func (c *Collector) Snapshot() eventbus.StatsSnapshot {
	tracked := 0
	if c.engine != nil {
		tracked = len(c.engine.Tokens())
	}
	circuitOpen := false
	if c.circuitOpenFunc != nil {
		circuitOpen = c.circuitOpenFunc()
	}
	return eventbus.StatsSnapshot{
		TokensTracked:  tracked,
		TradesAdmitted: atomic.LoadUint64(&c.tradesAdmitted),
		ParseFailures:  atomic.LoadUint64(&c.bondingCurve.decodeFail) + atomic.LoadUint64(&c.amm.decodeFail),
		CircuitOpen:    circuitOpen,
	}
}

// VenueSnapshots returns the per-venue decode counters, for a richer
// operator surface than the single aggregated StatsSnapshot carries.
func (c *Collector) VenueSnapshots() map[domain.Venue]VenueSnapshot {
	return map[domain.Venue]VenueSnapshot{
		domain.VenueBondingCurve: c.bondingCurve.snapshot(),
		domain.VenueAMM:          c.amm.snapshot(),
	}
}

// GapRecoveryQueueDepth returns the last depth reported by
// SetGapRecoveryQueueDepth.
func (c *Collector) GapRecoveryQueueDepth() int {
	return int(atomic.LoadInt64(&c.gapQueueDepth))
}

// Run publishes a StatsTick on bus every interval until ctx is
// cancelled.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.bus != nil {
				c.bus.PublishStatsTick(c.Snapshot())
			}
		}
	}
}
