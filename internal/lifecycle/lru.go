package lifecycle

import (
	"container/list"

	"github.com/pumpfeed/ingest-core/internal/domain"
)

// pendingLRU holds trades for mints that have not yet crossed the
// admission threshold (spec.md §4.6: "trades are held in a bounded LRU
// keyed by mint and discarded with the Token if it never crosses").
// Bounded by maxMints; the least-recently-touched mint is evicted
// whole (its held trades discarded) when the cap is exceeded.
type pendingLRU struct {
	maxMints int
	order    *list.List               // front = most recently touched
	elems    map[string]*list.Element // mint -> its element in order
	held     map[string][]heldTrade   // mint -> trades awaiting admission, arrival order
}

type heldTrade struct {
	signature string
	index     int
	trade     *domain.Trade
}

func newPendingLRU(maxMints int) *pendingLRU {
	return &pendingLRU{
		maxMints: maxMints,
		order:    list.New(),
		elems:    make(map[string]*list.Element),
		held:     make(map[string][]heldTrade),
	}
}

// touch moves mint to the front, evicting the least-recently-touched
// mint if the cap would be exceeded by adding a never-seen mint.
func (l *pendingLRU) touch(mint string) {
	if e, ok := l.elems[mint]; ok {
		l.order.MoveToFront(e)
		return
	}
	e := l.order.PushFront(mint)
	l.elems[mint] = e
	if l.order.Len() > l.maxMints {
		l.evictOldest()
	}
}

func (l *pendingLRU) evictOldest() {
	e := l.order.Back()
	if e == nil {
		return
	}
	mint := e.Value.(string)
	l.order.Remove(e)
	delete(l.elems, mint)
	delete(l.held, mint)
}

// hold appends a trade to the mint's held queue, in arrival order.
func (l *pendingLRU) hold(mint string, t heldTrade) {
	l.touch(mint)
	l.held[mint] = append(l.held[mint], t)
}

// flush returns and clears the held trades for mint, in arrival order.
func (l *pendingLRU) flush(mint string) []heldTrade {
	trades := l.held[mint]
	delete(l.held, mint)
	if e, ok := l.elems[mint]; ok {
		l.order.Remove(e)
		delete(l.elems, mint)
	}
	return trades
}

// drop discards a mint's held trades without flushing them. Nothing in
// this package calls it; capacity eviction goes through evictOldest.
func (l *pendingLRU) drop(mint string) {
	delete(l.held, mint)
	if e, ok := l.elems[mint]; ok {
		l.order.Remove(e)
		delete(l.elems, mint)
	}
}
