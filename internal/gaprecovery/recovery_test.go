package gaprecovery

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/pumpfeed/ingest-core/internal/demux"
	"github.com/pumpfeed/ingest-core/internal/domain"
)

// fakeGateway replays canned signature pages so Recoverer's
// paging/window logic can be exercised without dialing a real RPC
// endpoint. transaction always returns nil, meaning every signature in
// a test page decodes to zero trades — these tests verify the paging
// and horizon rules, not event decoding (covered by
// internal/decode's own tests).
type fakeGateway struct {
	pages [][]*rpc.TransactionSignature
	calls int
}

func (f *fakeGateway) signaturesBefore(_ context.Context, _ solana.PublicKey, _ solana.Signature, _ int) ([]*rpc.TransactionSignature, error) {
	if f.calls >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func (f *fakeGateway) transaction(_ context.Context, _ solana.Signature) (*rpc.GetTransactionResult, error) {
	return nil, nil
}

func sig(b byte) solana.Signature {
	var s solana.Signature
	s[0] = b
	return s
}

func TestRecoverSkipsGapOlderThanHorizon(t *testing.T) {
	gw := &fakeGateway{}
	r := &Recoverer{client: gw, horizon: time.Hour}

	gap := &domain.DowntimeGap{StartSlot: 100, EndSlot: 110}
	detectedAt := time.Now().Add(-2 * time.Hour)

	trades, err := r.Recover(context.Background(), gap, detectedAt, time.Now(), nil)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if trades != nil {
		t.Fatalf("expected no trades for a gap past the horizon, got %d", len(trades))
	}
	if gap.RecoveryAttempted {
		t.Fatalf("RecoveryAttempted should remain false past the horizon")
	}
	if gw.calls != 0 {
		t.Fatalf("expected no RPC calls for a gap past the horizon, got %d", gw.calls)
	}
}

func TestRecoverMarksAttemptedWithinHorizon(t *testing.T) {
	gw := &fakeGateway{pages: [][]*rpc.TransactionSignature{{}}}
	r := &Recoverer{client: gw, horizon: time.Hour}

	gap := &domain.DowntimeGap{StartSlot: 100, EndSlot: 110}
	detectedAt := time.Now().Add(-10 * time.Minute)

	_, err := r.Recover(context.Background(), gap, detectedAt, time.Now(), []solana.PublicKey{demux.BondingCurveProgramID})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !gap.RecoveryAttempted {
		t.Fatalf("RecoveryAttempted should be true once a backfill is attempted")
	}
}

func TestRecoverProgramStopsPagingPastWindow(t *testing.T) {
	gw := &fakeGateway{
		pages: [][]*rpc.TransactionSignature{
			{
				{Signature: sig(1), Slot: 120},
				{Signature: sig(2), Slot: 95}, // older than gap.StartSlot: stop here
			},
		},
	}
	r := &Recoverer{client: gw, horizon: time.Hour}

	gap := &domain.DowntimeGap{StartSlot: 100, EndSlot: 110}
	trades, err := r.recoverProgram(context.Background(), demux.BondingCurveProgramID, gap)
	if err != nil {
		t.Fatalf("recoverProgram: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trades decoded from a nil transaction body, got %d", len(trades))
	}
	if gw.calls != 1 {
		t.Fatalf("expected paging to stop after the page containing a below-window slot, got %d calls", gw.calls)
	}
}

func TestRecoverProgramPagesUntilEmpty(t *testing.T) {
	gw := &fakeGateway{
		pages: [][]*rpc.TransactionSignature{
			{{Signature: sig(1), Slot: 108}},
			{{Signature: sig(2), Slot: 104}},
			{},
		},
	}
	r := &Recoverer{client: gw, horizon: time.Hour}

	gap := &domain.DowntimeGap{StartSlot: 100, EndSlot: 110}
	_, err := r.recoverProgram(context.Background(), demux.BondingCurveProgramID, gap)
	if err != nil {
		t.Fatalf("recoverProgram: %v", err)
	}
	if gw.calls != 3 {
		t.Fatalf("expected paging to continue until an empty page, got %d calls", gw.calls)
	}
}
