// Package eventbus is the typed in-process publish/subscribe layer
// spec.md §9 asks for in place of ad-hoc callback chains: a closed set
// of event variants, delivered as immutable snapshots, decoupling the
// ingestion pipeline from whatever downstream service eventually
// serves browsers (spec.md §5 "Downstream fan-out").
//
// Concurrency follows the teacher's single-producer channel idiom
// (laserstream.go's writeChan/writeStopChan, already adapted once for
// internal/storage.WritePipeline): each subscriber owns a buffered
// channel; Publish never blocks on a slow subscriber, it drops and
// counts instead, so one stalled consumer can never back up the
// pipeline that feeds it.
package eventbus

import (
	"sync"

	"github.com/pumpfeed/ingest-core/internal/domain"
)

// Kind identifies which of the five closed event variants an Event
// carries (spec.md §5's `on(NewToken)`, `on(Trade)`, `on(Graduation)`,
// `on(StatsTick)`, plus the DowntimeGap event §4.1 asks StreamClient to
// publish on reconnect).
type Kind uint8

const (
	KindNewToken Kind = iota
	KindTrade
	KindGraduation
	KindStatsTick
	KindDowntimeGap
)

func (k Kind) String() string {
	switch k {
	case KindNewToken:
		return "new_token"
	case KindTrade:
		return "trade"
	case KindGraduation:
		return "graduation"
	case KindStatsTick:
		return "stats_tick"
	case KindDowntimeGap:
		return "downtime_gap"
	default:
		return "unknown"
	}
}

// Event is one immutable published value. Exactly one of the typed
// fields is set, matching Kind; subscribers switch on Kind rather than
// on which field is non-nil so a future variant can't be read wrong.
type Event struct {
	Kind Kind

	Token      *domain.Token
	Trade      *domain.Trade
	Graduation *domain.Token
	Stats      StatsSnapshot
	Gap        *domain.DowntimeGap
}

// StatsSnapshot is the payload of a periodic StatsTick event —
// observability counters a downstream service can render without
// reaching into the core's internals.
type StatsSnapshot struct {
	TokensTracked   int
	TradesAdmitted  uint64
	ParseFailures   uint64
	CircuitOpen     bool
}

// subscriber is one registered listener: a bounded channel plus a
// counter of events dropped because the channel was full.
type subscriber struct {
	ch      chan Event
	dropped uint64
}

// Bus fans Events out to every current subscriber. The zero value is
// not usable; construct with New.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a new listener with the given channel buffer
// depth and returns the channel to read from plus an unsubscribe func.
// Callers must keep draining the channel or call unsubscribe; Publish
// never blocks for them.
func (b *Bus) Subscribe(bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	sub := &subscriber{ch: make(chan Event, bufferSize)}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(sub.ch)
	}
	return sub.ch, unsubscribe
}

// Publish fans ev out to every current subscriber. A subscriber whose
// channel is full has the event dropped for it, not for the others.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
		}
	}
}

// PublishNewToken is a typed convenience wrapper over Publish.
func (b *Bus) PublishNewToken(tok *domain.Token) {
	b.Publish(Event{Kind: KindNewToken, Token: tok})
}

// PublishTrade is a typed convenience wrapper over Publish.
func (b *Bus) PublishTrade(trade *domain.Trade) {
	b.Publish(Event{Kind: KindTrade, Trade: trade})
}

// PublishGraduation is a typed convenience wrapper over Publish.
func (b *Bus) PublishGraduation(tok *domain.Token) {
	b.Publish(Event{Kind: KindGraduation, Graduation: tok})
}

// PublishStatsTick is a typed convenience wrapper over Publish.
func (b *Bus) PublishStatsTick(stats StatsSnapshot) {
	b.Publish(Event{Kind: KindStatsTick, Stats: stats})
}

// PublishDowntimeGap is a typed convenience wrapper over Publish.
func (b *Bus) PublishDowntimeGap(gap *domain.DowntimeGap) {
	b.Publish(Event{Kind: KindDowntimeGap, Gap: gap})
}

// SubscriberCount reports how many listeners are currently registered,
// for internal/observability.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
