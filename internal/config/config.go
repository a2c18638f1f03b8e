// Package config assembles one immutable Config value from a .env file,
// environment variables, and CLI flags, following the teacher's
// LaserstreamConfig-as-a-value idiom (laserstream.go's
// NewLaserstreamConfig) and the flag-parsing shape of
// VladislavFirsov-solana-token-lab's cmd/pipeline/main.go. Nothing in
// this package is read as a global; Load returns a value that the
// composition root threads explicitly into every component.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/pumpfeed/ingest-core/internal/errs"
)

// Commitment mirrors the three Yellowstone commitment levels (spec.md
// §4.1), ordered processed < confirmed < finalized.
type Commitment int

const (
	CommitmentProcessed Commitment = iota
	CommitmentConfirmed
	CommitmentFinalized
)

// ParseCommitment maps a CLI/env string onto a Commitment, defaulting to
// confirmed per spec.md §4.1.
func ParseCommitment(s string) (Commitment, error) {
	switch s {
	case "", "confirmed":
		return CommitmentConfirmed, nil
	case "processed":
		return CommitmentProcessed, nil
	case "finalized":
		return CommitmentFinalized, nil
	default:
		return CommitmentConfirmed, errs.NewValidationError("commitment", "must be one of processed|confirmed|finalized, got "+s)
	}
}

// Config is the fully-resolved, immutable configuration for one run of
// the ingestion core.
type Config struct {
	// Transport
	GRPCEndpoint string
	GRPCAPIKey   string
	Commitment   Commitment
	FromSlot     *uint64

	// Admission thresholds (spec.md §4.6)
	ThresholdUSDBondingCurve float64
	ThresholdUSDAMM          float64

	// SolPriceOracle (spec.md §4.9)
	SolPriceSourceURL string
	SolPricePollEvery time.Duration
	SolPriceStaleCap  time.Duration

	// WritePipeline (spec.md §4.7)
	StoragePath       string
	WriteBatchSize    int
	WriteBatchMaxWait time.Duration

	// GapRecovery (spec.md §4.8)
	GapRecoveryHorizon    time.Duration
	RPCEndpoint           string
	RPCRequestsPerSecond  int

	// Shutdown grace (spec.md §5)
	ShutdownGrace time.Duration
}

// Defaults returns the spec's documented default values (§4.6, §4.7,
// §4.9, §5) with no transport endpoint configured.
func Defaults() Config {
	return Config{
		Commitment:               CommitmentConfirmed,
		ThresholdUSDBondingCurve: 8888,
		ThresholdUSDAMM:          1000,
		SolPriceSourceURL:        "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd",
		SolPricePollEvery:        30 * time.Second,
		SolPriceStaleCap:         5 * time.Minute,
		StoragePath:              "ingest.db",
		WriteBatchSize:           500,
		WriteBatchMaxWait:        1 * time.Second,
		GapRecoveryHorizon:       1 * time.Hour,
		RPCEndpoint:              "https://api.mainnet-beta.solana.com",
		RPCRequestsPerSecond:     10,
		ShutdownGrace:            5 * time.Second,
	}
}

// Validate enforces the invariants a fatal ConfigInvalid error must
// catch before the composition root starts any component.
func (c Config) Validate() error {
	if c.GRPCEndpoint == "" {
		return errs.NewValidationError("grpc_endpoint", "required")
	}
	if c.ThresholdUSDBondingCurve < 0 || c.ThresholdUSDAMM < 0 {
		return errs.NewValidationError("threshold_usd", "must be non-negative")
	}
	if c.WriteBatchSize <= 0 {
		return errs.NewValidationError("write_batch_size", "must be positive")
	}
	return nil
}

// Load reads a .env file (if present, silently ignored otherwise — same
// as the teacher's examples/*.go `godotenv.Load()` idiom), layers
// environment variables, then layers CLI flags from args (excluding the
// program name). Flags take precedence over environment, which takes
// precedence over defaults.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	cfg.GRPCEndpoint = os.Getenv("INGEST_GRPC_ENDPOINT")
	cfg.GRPCAPIKey = os.Getenv("INGEST_GRPC_API_KEY")
	if v := os.Getenv("INGEST_STORAGE_PATH"); v != "" {
		cfg.StoragePath = v
	}
	if v := os.Getenv("INGEST_SOL_PRICE_URL"); v != "" {
		cfg.SolPriceSourceURL = v
	}
	if v := os.Getenv("INGEST_RPC_ENDPOINT"); v != "" {
		cfg.RPCEndpoint = v
	}

	fs := flag.NewFlagSet("ingestor", flag.ContinueOnError)
	commitmentFlag := fs.String("commitment", "", "commitment level: processed|confirmed|finalized")
	fromSlotFlag := fs.Uint64("from-slot", 0, "replay from this slot (0 = live only)")
	thresholdUSDFlag := fs.Float64("threshold-usd", 0, "override the bonding-curve admission threshold in USD (0 = use default)")

	if err := fs.Parse(args); err != nil {
		return Config{}, errs.Wrap(errs.KindConfigInvalid, "parse flags", err)
	}

	commitment, err := ParseCommitment(*commitmentFlag)
	if err != nil {
		return Config{}, err
	}
	cfg.Commitment = commitment

	if *fromSlotFlag > 0 {
		slot := *fromSlotFlag
		cfg.FromSlot = &slot
	}
	if *thresholdUSDFlag > 0 {
		cfg.ThresholdUSDBondingCurve = *thresholdUSDFlag
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
