// Package oracle polls an external SOL/USD price source on a fixed
// cadence and exposes the latest quote (plus its staleness) to the
// composition root, which prices trades with internal/price.
//
// Grounded on web3-fighter-wallet-chain-account-rebuild's
// service/svmbase/svm.go svmClient — a resty.Client wrapped in a typed
// request/response shape (c.client.R().SetContext(ctx).SetResult(...).Get/Post(...))
// — generalized from a JSON-RPC POST body to a single REST GET against
// a price API, and the teacher's poll-loop-with-ticker shape
// (laserstream.go's reconnect loop) generalized from "retry a stream"
// to "refresh a quote every interval".
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/errs"
	"github.com/pumpfeed/ingest-core/internal/logging"
)

// coingeckoResponse mirrors the default SolPriceSourceURL's response
// shape: {"solana":{"usd": 123.45}}.
type coingeckoResponse struct {
	Solana struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"solana"`
}

// SolPriceOracle polls sourceURL every pollEvery and holds the latest
// observed domain.SolQuote behind a mutex, following the pack's
// copy-on-read accessor idiom
// (gurre-prime-fix-md-go/fixclient/orderstore.go) rather than exposing
// the field directly.
type SolPriceOracle struct {
	client    *resty.Client
	sourceURL string
	pollEvery time.Duration
	staleCap  time.Duration
	log       *logging.Logger

	mu    sync.RWMutex
	quote *domain.SolQuote
}

// New builds a SolPriceOracle. The resty.Client is constructed here
// (not injected) because this package owns its single concern end to
// end, matching NewSVMHttpClientAll's self-contained construction
// shape in the grounding source.
func New(sourceURL string, pollEvery, staleCap time.Duration, log *logging.Logger) *SolPriceOracle {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &SolPriceOracle{
		client:    client,
		sourceURL: sourceURL,
		pollEvery: pollEvery,
		staleCap:  staleCap,
		log:       log,
	}
}

// Run polls sourceURL every pollEvery until ctx is cancelled. It fetches
// once immediately so the oracle has a quote before the first tick.
func (o *SolPriceOracle) Run(ctx context.Context) {
	o.refresh(ctx)

	ticker := time.NewTicker(o.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.refresh(ctx)
		}
	}
}

func (o *SolPriceOracle) refresh(ctx context.Context) {
	result := &coingeckoResponse{}
	resp, err := o.client.R().
		SetContext(ctx).
		SetResult(result).
		Get(o.sourceURL)
	if err != nil {
		if o.log != nil {
			o.log.Warnf("sol price fetch failed: %v", err)
		}
		return
	}
	if resp.IsError() {
		if o.log != nil {
			o.log.Warnf("sol price fetch returned status %d", resp.StatusCode())
		}
		return
	}
	if result.Solana.USD.IsZero() {
		if o.log != nil {
			o.log.Warnf("sol price fetch returned a zero quote, discarding")
		}
		return
	}

	o.mu.Lock()
	o.quote = &domain.SolQuote{
		PriceUSD:   result.Solana.USD,
		Source:     o.sourceURL,
		ObservedAt: time.Now(),
	}
	o.mu.Unlock()
}

// Quote returns the latest observed quote and whether it is still
// within the staleness cap as of now. A nil quote (never successfully
// polled) always reports stale.
func (o *SolPriceOracle) Quote(now time.Time) (domain.SolQuote, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.quote == nil {
		return domain.SolQuote{}, false
	}
	return *o.quote, o.quote.Age(now) <= o.staleCap
}

// RequireFreshQuote returns the latest quote or a typed
// errs.KindStaleSolQuote/errs.ErrNilQuote error, for callers (spec.md
// §4.9) that must refuse to price a trade against a stale quote rather
// than silently use one.
func (o *SolPriceOracle) RequireFreshQuote(now time.Time) (domain.SolQuote, error) {
	o.mu.RLock()
	q := o.quote
	o.mu.RUnlock()

	if q == nil {
		return domain.SolQuote{}, errs.ErrNilQuote
	}
	if age := q.Age(now); age > o.staleCap {
		return domain.SolQuote{}, errs.NewStaleQuote(age, o.staleCap)
	}
	return *q, nil
}
