package storage

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
)

func TestWritePipelineFlushesOnBatchSize(t *testing.T) {
	s := openTestStore(t)
	cfg := DefaultPipelineConfig()
	cfg.BatchSize = 3
	cfg.MaxWait = time.Hour // never fires on its own
	p := New(s, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	mint := solana.NewWallet().PublicKey()
	for i := 0; i < 3; i++ {
		p.EnqueueTrade(sampleTrade(mint, sigFor(i), uint64(100+i)))
	}

	waitForRowCount(t, s, "trades", 3)
	p.Close()
}

func TestWritePipelineFlushesImmediatelyOnNewToken(t *testing.T) {
	s := openTestStore(t)
	cfg := DefaultPipelineConfig()
	cfg.BatchSize = 500
	cfg.MaxWait = time.Hour
	p := New(s, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	mint := solana.NewWallet().PublicKey()
	p.EnqueueToken(sampleToken(mint), true)

	waitForRowCount(t, s, "tokens", 1)
	p.Close()
}

func TestWritePipelineFlushesOnMaxWait(t *testing.T) {
	s := openTestStore(t)
	cfg := DefaultPipelineConfig()
	cfg.BatchSize = 500
	cfg.MaxWait = 30 * time.Millisecond
	p := New(s, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	mint := solana.NewWallet().PublicKey()
	p.EnqueueTrade(sampleTrade(mint, "lone-sig", 100))

	waitForRowCount(t, s, "trades", 1)
	p.Close()
}

func TestWritePipelineCloseFlushesPendingBatch(t *testing.T) {
	s := openTestStore(t)
	cfg := DefaultPipelineConfig()
	cfg.BatchSize = 500
	cfg.MaxWait = time.Hour
	p := New(s, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	mint := solana.NewWallet().PublicKey()
	p.EnqueueTrade(sampleTrade(mint, "final-sig", 100))
	p.Close()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE signature = ?`, "final-sig").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected final batch flushed on Close, got %d rows", count)
	}
}

func sigFor(i int) string {
	return "sig-" + string(rune('a'+i))
}

func waitForRowCount(t *testing.T, s *Store, table string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("query %s: %v", table, err)
		}
		if count >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s to reach %d rows", table, want)
}
