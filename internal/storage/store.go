// Package storage is the WritePipeline of spec.md §4.7: it batches
// decoded tokens/trades/snapshots behind an admission threshold
// already enforced by internal/lifecycle and persists them
// transactionally to a durable SQLite store. Grounded on
// gurre-prime-fix-md-go/database/marketdata.go's MarketDataDb: a
// WAL-mode sql.Open DSN, statements prepared once at startup, and
// batch inserts run through tx.Stmt(stmt) inside a single
// transaction.
package storage

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/gagliardetto/solana-go"

	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/errs"
)

// Store owns the SQLite connection and its prepared statements.
type Store struct {
	db *sql.DB

	stmtUpsertToken *sql.Stmt
	stmtInsertTrade *sql.Stmt
	stmtSnapshot    *sql.Stmt
	stmtUpsertQuote *sql.Stmt
	stmtInsertGap   *sql.Stmt
}

// Open opens (creating if absent) a SQLite database at path in WAL
// mode, applies the schema, and prepares every statement the
// WritePipeline needs up front — matching MarketDataDb's "prepare
// once, reuse for every batch" shape.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, errs.Wrap(errs.KindStoragePermanent, "open sqlite", err)
	}

	s := &Store{db: db}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.KindStoragePermanent, "apply schema", err)
	}

	prep := func(query string) (*sql.Stmt, error) {
		stmt, err := db.Prepare(query)
		if err != nil {
			return nil, errs.Wrap(errs.KindStoragePermanent, "prepare statement", err)
		}
		return stmt, nil
	}

	var prepErr error
	if s.stmtUpsertToken, prepErr = prep(upsertTokenQuery); prepErr != nil {
		_ = db.Close()
		return nil, prepErr
	}
	if s.stmtInsertTrade, prepErr = prep(insertTradeQuery); prepErr != nil {
		_ = s.Close()
		return nil, prepErr
	}
	if s.stmtSnapshot, prepErr = prep(insertSnapshotQuery); prepErr != nil {
		_ = s.Close()
		return nil, prepErr
	}
	if s.stmtUpsertQuote, prepErr = prep(upsertQuoteQuery); prepErr != nil {
		_ = s.Close()
		return nil, prepErr
	}
	if s.stmtInsertGap, prepErr = prep(insertGapQuery); prepErr != nil {
		_ = s.Close()
		return nil, prepErr
	}
	return s, nil
}

// Close releases every prepared statement and the underlying
// connection.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtUpsertToken, s.stmtInsertTrade, s.stmtSnapshot, s.stmtUpsertQuote, s.stmtInsertGap} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

// FlushBatch applies a batch of pending writes inside one transaction.
// Any failure aborts and rolls back the whole batch; the caller
// (WritePipeline) decides whether the error is retryable via
// errs.Kind.
func (s *Store) FlushBatch(ctx context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindStorageTransient, "begin tx", err)
	}

	if err := s.flushLocked(ctx, tx, batch); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStorageTransient, "commit batch", err)
	}
	return nil
}

func (s *Store) flushLocked(ctx context.Context, tx *sql.Tx, batch Batch) error {
	for _, tok := range batch.Tokens {
		if err := upsertToken(ctx, tx.StmtContext(ctx, s.stmtUpsertToken), tok); err != nil {
			return errs.Wrap(errs.KindStorageTransient, "upsert token", err)
		}
	}
	for _, tr := range batch.Trades {
		if err := insertTrade(ctx, tx.StmtContext(ctx, s.stmtInsertTrade), tr); err != nil {
			return errs.Wrap(errs.KindStorageTransient, "insert trade", err)
		}
	}
	for _, snap := range batch.Snapshots {
		if err := insertSnapshot(ctx, tx.StmtContext(ctx, s.stmtSnapshot), snap); err != nil {
			return errs.Wrap(errs.KindStorageTransient, "insert snapshot", err)
		}
	}
	for _, q := range batch.Quotes {
		if _, err := tx.StmtContext(ctx, s.stmtUpsertQuote).ExecContext(ctx, q.ObservedAt.UTC().Format(timeLayout), q.PriceUSD.String(), q.Source); err != nil {
			return errs.Wrap(errs.KindStorageTransient, "upsert quote", err)
		}
	}
	for _, g := range batch.Gaps {
		if err := insertGap(ctx, tx.StmtContext(ctx, s.stmtInsertGap), g); err != nil {
			return errs.Wrap(errs.KindStorageTransient, "insert gap", err)
		}
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func upsertToken(ctx context.Context, stmt *sql.Stmt, t *domain.Token) error {
	var thresholdCrossedAt, thresholdPriceUSD sql.NullString
	var thresholdSlot, graduationSlot sql.NullInt64
	if t.ThresholdCrossedAt != nil {
		thresholdCrossedAt = sql.NullString{String: t.ThresholdCrossedAt.UTC().Format(timeLayout), Valid: true}
	}
	if t.ThresholdPriceUSD != nil {
		thresholdPriceUSD = sql.NullString{String: t.ThresholdPriceUSD.String(), Valid: true}
	}
	if t.ThresholdSlot != nil {
		thresholdSlot = sql.NullInt64{Int64: int64(*t.ThresholdSlot), Valid: true}
	}
	if t.GraduationSlot != nil {
		graduationSlot = sql.NullInt64{Int64: int64(*t.GraduationSlot), Valid: true}
	}

	_, err := stmt.ExecContext(ctx,
		t.Mint.String(), t.FirstSeenSlot, t.FirstSeenAt.UTC().Format(timeLayout), t.FirstSeenVenue.String(),
		thresholdCrossedAt, thresholdPriceUSD, thresholdSlot,
		t.CurrentVenue.String(), t.State.String(), boolToInt(t.Graduated), graduationSlot, t.TradeCount,
		t.LatestPriceSOL.String(), t.LatestPriceUSD.String(), t.LatestMarketCapUSD.String(),
		t.LatestVirtualSOL, t.LatestVirtualToken, t.LatestBCProgress.String(),
		t.LatestUpdateSlot, t.LatestUpdateAt.UTC().Format(timeLayout),
	)
	return err
}

func insertTrade(ctx context.Context, stmt *sql.Stmt, t *domain.Trade) error {
	var bcProgress sql.NullString
	if t.BCProgress != nil {
		bcProgress = sql.NullString{String: t.BCProgress.String(), Valid: true}
	}
	_, err := stmt.ExecContext(ctx,
		t.Signature, t.Index, t.Mint.String(), t.Venue.String(), t.Direction.String(), t.Trader.String(),
		t.SOLAmount, t.TokenAmount, t.PriceSOL.String(), t.PriceUSD.String(), t.MarketCapUSD.String(),
		boolToInt(t.StaleQuote), t.VirtualSOLReserves, t.VirtualTokenReserves, bcProgress,
		t.Slot, t.BlockTime.UTC().Format(timeLayout),
	)
	return err
}

// Snapshot is one append-only state snapshot row (spec.md §3's "one
// Token has many State snapshots" relationship).
type Snapshot struct {
	Mint             solana.PublicKey
	CreatedAt        string
	State            domain.LifecycleState
	CurrentVenue     domain.Venue
	LatestPriceUSD   decimal.Decimal
	LatestMarketCapUSD decimal.Decimal
	Slot             uint64
}

func insertSnapshot(ctx context.Context, stmt *sql.Stmt, snap Snapshot) error {
	_, err := stmt.ExecContext(ctx,
		snap.Mint.String(), snap.CreatedAt, snap.State.String(), snap.CurrentVenue.String(),
		snap.LatestPriceUSD.String(), snap.LatestMarketCapUSD.String(), snap.Slot,
	)
	return err
}

func insertGap(ctx context.Context, stmt *sql.Stmt, g *domain.DowntimeGap) error {
	affected := ""
	for i, p := range g.AffectedPrograms {
		if i > 0 {
			affected += ","
		}
		affected += p
	}
	_, err := stmt.ExecContext(ctx, g.StartSlot, g.EndSlot, int64(g.Duration), g.EstimatedMissed, boolToInt(g.RecoveryAttempted), affected)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EarliestAMMTrade implements internal/lifecycle.GraduationEvidence:
// the earliest recorded AMM-venue trade slot for mint, if any.
func (s *Store) EarliestAMMTrade(mint solana.PublicKey) (uint64, bool) {
	var slot sql.NullInt64
	if err := s.db.QueryRow(earliestAMMTradeQuery, mint.String()).Scan(&slot); err != nil {
		return 0, false
	}
	if !slot.Valid {
		return 0, false
	}
	return uint64(slot.Int64), true
}
