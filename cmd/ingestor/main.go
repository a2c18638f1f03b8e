// Command ingestor is the composition root: it wires every internal
// package into one long-running process that follows a Yellowstone
// firehose, decodes pump.fun-style bonding-curve and AMM activity, and
// persists it.
//
// Signal-driven graceful shutdown follows
// other_examples/af78d459_VladislavFirsov-solana-token-lab__cmd-pipeline-main.go.go's
// shape (signal.Notify on SIGINT/SIGTERM, cancel a context, let every
// task drain); exit codes follow spec.md §6 (0 normal, 2 configuration
// error, 3 fatal transport authentication error).
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/pumpfeed/ingest-core/internal/config"
	"github.com/pumpfeed/ingest-core/internal/decode"
	"github.com/pumpfeed/ingest-core/internal/demux"
	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/errs"
	"github.com/pumpfeed/ingest-core/internal/eventbus"
	"github.com/pumpfeed/ingest-core/internal/gaprecovery"
	"github.com/pumpfeed/ingest-core/internal/lifecycle"
	"github.com/pumpfeed/ingest-core/internal/logging"
	"github.com/pumpfeed/ingest-core/internal/observability"
	"github.com/pumpfeed/ingest-core/internal/oracle"
	"github.com/pumpfeed/ingest-core/internal/price"
	"github.com/pumpfeed/ingest-core/internal/storage"
	"github.com/pumpfeed/ingest-core/internal/stream"
)

const (
	exitOK            = 0
	exitConfigInvalid = 2
	exitFatalAuth     = 3
)

// defaultTokenTotalSupply is the fixed pump.fun-style circulating
// supply (1B tokens at 6 decimals) used to price a trade whose mint
// has never been seen on the bonding-curve side (e.g. a direct AMM
// trade on an unknown mint, spec.md §4.6).
const defaultTokenTotalSupply = 1_000_000_000 * 1_000_000

// reconcileInterval and statsInterval are the composition root's own
// periodic-sweep cadences; neither is part of the admission/pricing
// domain logic so they are not threaded through config.Config.
const (
	reconcileInterval = 30 * time.Second
	statsInterval     = 10 * time.Second
)

// fatalErrBox holds the first fatal transport error reported by the
// stream client's errorCallback or Subscribe's own startup error, so
// run's final exit-code check can branch on it after shutdown. A plain
// mutex-guarded field, not atomic.Value, since errorCallback and
// Subscribe's return may carry different concrete error types.
type fatalErrBox struct {
	mu  sync.Mutex
	err error
}

func (b *fatalErrBox) set(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
	}
}

func (b *fatalErrBox) get() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func main() {
	os.Exit(run())
}

func run() int {
	log := logging.New("ingestor")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Errorf("config: %v", err)
		return exitConfigInvalid
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	store, err := storage.Open(cfg.StoragePath)
	if err != nil {
		log.Errorf("storage open: %v", err)
		return exitConfigInvalid
	}
	defer store.Close()

	bus := eventbus.New()

	pipelineCfg := storage.DefaultPipelineConfig()
	pipelineCfg.BatchSize = cfg.WriteBatchSize
	pipelineCfg.MaxWait = cfg.WriteBatchMaxWait
	pipeline := storage.New(store, pipelineCfg, log.With("storage"))
	go pipeline.Run(ctx)

	var collector *observability.Collector

	engineCfg := lifecycle.Config{
		ThresholdUSDBondingCurve: decimal.NewFromFloat(cfg.ThresholdUSDBondingCurve),
		ThresholdUSDAMM:          decimal.NewFromFloat(cfg.ThresholdUSDAMM),
		PendingMintCap:           lifecycle.DefaultPendingMintCap,
	}
	engine := lifecycle.New(engineCfg, lifecycle.Handlers{
		OnNewToken: func(tok *domain.Token) {
			pipeline.EnqueueToken(tok, true)
			bus.PublishNewToken(tok)
		},
		OnTrade: func(tok *domain.Token, trade *domain.Trade) {
			pipeline.EnqueueToken(tok, false)
			pipeline.EnqueueTrade(trade)
			bus.PublishTrade(trade)
			if collector != nil {
				collector.RecordTradeAdmitted()
			}
		},
		OnGraduation: func(tok *domain.Token) {
			pipeline.EnqueueToken(tok, true)
			bus.PublishGraduation(tok)
		},
	})

	priceOracle := oracle.New(cfg.SolPriceSourceURL, cfg.SolPricePollEvery, cfg.SolPriceStaleCap, log.With("oracle"))
	go priceOracle.Run(ctx)
	go runQuotePersistLoop(ctx, priceOracle, pipeline, cfg.SolPricePollEvery)
	calculator := price.NewCalculator()

	streamClient := stream.NewClient(stream.NewConfig(cfg.GRPCEndpoint, cfg.GRPCAPIKey), log.With("stream"))

	collector = observability.New(engine, streamClient, bus, pipeline.CircuitOpen)
	go collector.Run(ctx, statsInterval)

	recovererClient := gaprecovery.NewClient(cfg.RPCEndpoint, cfg.RPCRequestsPerSecond)
	recoverer := gaprecovery.NewRecoverer(recovererClient, cfg.GapRecoveryHorizon)
	venuePrograms := []solana.PublicKey{demux.BondingCurveProgramID, demux.AMMProgramID}

	var fatalErr fatalErrBox

	demultiplexer := demux.New(demux.Handlers{
		OnBondingCurve: func(state *domain.BondingCurveState) {
			tok := engine.ApplyBondingCurveState(state, time.Now())
			collector.RecordDecode(domain.VenueBondingCurve, tok != nil)
		},
		OnPool: func(pool *decode.PoolAccount) {
			tok := engine.ApplyPoolState(pool, time.Now())
			collector.RecordDecode(domain.VenueAMM, tok != nil)
		},
		OnTrade: func(signature string, index int, venue domain.Venue, mint, trader solana.PublicKey, slot uint64, ev *decode.TradeEvent) {
			trade := buildTrade(engine, priceOracle, calculator, signature, index, venue, mint, trader, slot, ev)
			engine.ApplyTrade(trade, time.Now())
			collector.RecordDecode(venue, true)
		},
		OnDecodeError: func(err error) {
			log.Warnf("decode error: %v", err)
		},
	})

	commitmentLevel := commitmentLevelFor(cfg.Commitment)
	builder := stream.NewSubscriptionBuilder(commitmentLevel)
	if cfg.FromSlot != nil {
		builder.FromSlot(*cfg.FromSlot)
	}
	if err := builder.AccountChannel("bonding_curve", []string{demux.BondingCurveProgramID.String()}); err != nil {
		log.Errorf("build bonding curve channel: %v", err)
		return exitConfigInvalid
	}
	if err := builder.AccountChannel("amm_pool", []string{demux.AMMProgramID.String()}); err != nil {
		log.Errorf("build amm pool channel: %v", err)
		return exitConfigInvalid
	}
	builder.TransactionChannel("trades", []string{demux.BondingCurveProgramID.String(), demux.AMMProgramID.String()}, nil, boolPtr(false))
	req := builder.Build()

	gapCh := make(chan detectedGap, 64)
	go runGapRecoveryQueue(ctx, gapCh, recoverer, venuePrograms, engine, collector, log.With("gaprecovery"))

	go func() {
		subErr := streamClient.Subscribe(ctx, req,
			demultiplexer.Dispatch,
			func(gap domain.DowntimeGap) {
				bus.PublishDowntimeGap(&gap)
				pipeline.EnqueueGap(&gap)
				select {
				case gapCh <- detectedGap{gap: gap, detectedAt: time.Now()}:
				default:
					log.Warnf("gap recovery queue full, dropping gap %+v", gap)
				}
			},
			func(err error) {
				fatalErr.set(err)
				cancel()
			},
		)
		if subErr != nil {
			fatalErr.set(subErr)
			cancel()
		}
	}()

	go runReconcileLoop(ctx, engine, store, reconcileInterval)

	log.Infof("ingestor running: commitment=%v threshold_usd_bc=%v threshold_usd_amm=%v",
		cfg.Commitment, cfg.ThresholdUSDBondingCurve, cfg.ThresholdUSDAMM)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	streamClient.Close()
	pipeline.Close()
	<-shutdownCtx.Done()

	if cerr := fatalErr.get(); cerr != nil && errs.Is(cerr, errs.KindTransportAuth) {
		log.Errorf("fatal transport auth error: %v", cerr)
		return exitFatalAuth
	}
	return exitOK
}

// buildTrade prices a decoded trade event and assembles the
// domain.Trade the lifecycle engine admits or records. totalSupply
// falls back to defaultTokenTotalSupply when the mint has never
// reported a bonding-curve account (e.g. a direct AMM observation).
func buildTrade(engine *lifecycle.Engine, priceOracle *oracle.SolPriceOracle, calculator price.Calculator, signature string, index int, venue domain.Venue, mint, trader solana.PublicKey, slot uint64, ev *decode.TradeEvent) *domain.Trade {
	now := time.Now()

	totalSupply := uint64(defaultTokenTotalSupply)
	if tok := engine.Token(mint); tok != nil && tok.TokenTotalSupply > 0 {
		totalSupply = tok.TokenTotalSupply
	}

	quote, fresh := priceOracle.Quote(now)
	var quotePtr *domain.SolQuote
	if fresh {
		quotePtr = &quote
	}

	result, _ := calculator.Calculate(ev.PoolBaseReserves, ev.PoolQuoteReserves, totalSupply, quotePtr, !fresh)

	trade := &domain.Trade{
		Signature: signature,
		Index:     index,

		Mint:      mint,
		Venue:     venue,
		Direction: ev.Direction(),
		Trader:    trader,

		SOLAmount:   ev.QuoteAmount,
		TokenAmount: ev.BaseAmount,

		PriceSOL:     result.PriceSOL,
		PriceUSD:     result.PriceUSD,
		MarketCapUSD: result.MarketCapUSD,
		StaleQuote:   result.StaleQuote,

		VirtualSOLReserves:   ev.PoolQuoteReserves,
		VirtualTokenReserves: ev.PoolBaseReserves,

		Slot:      slot,
		BlockTime: ev.BlockTime(),
	}
	if venue == domain.VenueBondingCurve {
		progress := price.BondingCurveProgress(ev.PoolQuoteReserves)
		trade.BCProgress = &progress
	}
	return trade
}

// detectedGap pairs a DowntimeGap with the wall-clock time it was
// detected at, so the horizon check in gaprecovery.Recoverer.Recover
// measures queue latency rather than processing latency.
type detectedGap struct {
	gap        domain.DowntimeGap
	detectedAt time.Time
}

// runGapRecoveryQueue drains detected downtime gaps one at a time,
// backfilling each via RPC (spec.md §4.8 redesign: RPC-based backfill,
// not a gRPC fromSlot replay) and folding every recovered trade back
// through the same lifecycle.Engine path a live trade takes.
func runGapRecoveryQueue(ctx context.Context, gapCh <-chan detectedGap, recoverer *gaprecovery.Recoverer, programIDs []solana.PublicKey, engine *lifecycle.Engine, collector *observability.Collector, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case dg, ok := <-gapCh:
			if !ok {
				return
			}
			collector.SetGapRecoveryQueueDepth(len(gapCh))
			gap := dg.gap
			trades, err := recoverer.Recover(ctx, &gap, dg.detectedAt, time.Now(), programIDs)
			if err != nil {
				log.Warnf("gap recovery failed for %+v: %v", gap, err)
				continue
			}
			for _, rt := range trades {
				trade := &domain.Trade{
					Signature:            rt.Signature,
					Index:                rt.Index,
					Mint:                 rt.Mint,
					Venue:                rt.Venue,
					Direction:            rt.Event.Direction(),
					Trader:               rt.Trader,
					SOLAmount:            rt.Event.QuoteAmount,
					TokenAmount:          rt.Event.BaseAmount,
					VirtualSOLReserves:   rt.Event.PoolQuoteReserves,
					VirtualTokenReserves: rt.Event.PoolBaseReserves,
					Slot:                 rt.Slot,
					BlockTime:            rt.BlockTime,
				}
				engine.ApplyTrade(trade, rt.BlockTime)
			}
			collector.SetGapRecoveryQueueDepth(len(gapCh))
		}
	}
}

// runReconcileLoop periodically promotes any BondingCurveComplete
// token that has sat unconfirmed past window, using the store's
// earliest-AMM-trade evidence (spec.md §4.6).
func runReconcileLoop(ctx context.Context, engine *lifecycle.Engine, evidence lifecycle.GraduationEvidence, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.Reconcile(time.Now(), interval, evidence)
		}
	}
}

// runQuotePersistLoop mirrors every fresh SOL/USD quote into the write
// pipeline on the same cadence the oracle polls at, so storage keeps
// its own trail of observed quotes independent of what any single
// trade happened to price against.
func runQuotePersistLoop(ctx context.Context, priceOracle *oracle.SolPriceOracle, pipeline *storage.WritePipeline, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if quote, ok := priceOracle.Quote(time.Now()); ok {
				pipeline.EnqueueQuote(&quote)
			}
		}
	}
}

func commitmentLevelFor(c config.Commitment) stream.CommitmentLevel {
	switch c {
	case config.CommitmentProcessed:
		return stream.CommitmentLevelProcessed
	case config.CommitmentFinalized:
		return stream.CommitmentLevelFinalized
	default:
		return stream.CommitmentLevelConfirmed
	}
}

func boolPtr(b bool) *bool { return &b }
