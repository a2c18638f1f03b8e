package stream

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestAccountChannelRejectsDuplicateMemcmpOffset(t *testing.T) {
	ff := NewFilterFactory()
	b := NewSubscriptionBuilder(CommitmentLevelConfirmed)

	creator := solana.NewWallet().PublicKey()
	err := b.AccountChannel("bc", []string{"BondingCurveProgram111111111111111111111"},
		ff.CreatorFilter(creator),
		ff.BondingCurveCompleteFilter(false),
	)
	if err != nil {
		t.Fatalf("unexpected error with distinct offsets: %v", err)
	}

	err = b.AccountChannel("bc-dup", []string{"BondingCurveProgram111111111111111111111"},
		ff.CreatorFilter(creator),
		ff.CreatorFilter(solana.NewWallet().PublicKey()),
	)
	if err == nil {
		t.Fatalf("expected error for two memcmp filters at the same offset")
	}
}

func TestAccountChannelRejectsTwoDataSizeFilters(t *testing.T) {
	ff := NewFilterFactory()
	b := NewSubscriptionBuilder(CommitmentLevelConfirmed)

	err := b.AccountChannel("bc", []string{"Program"}, ff.DataSizeFilter(165), ff.DataSizeFilter(200))
	if err == nil {
		t.Fatalf("expected error for two dataSize filters on one channel")
	}
}

func TestBuildIncludesCommitmentAndFromSlot(t *testing.T) {
	b := NewSubscriptionBuilder(CommitmentLevelFinalized).FromSlot(12345)
	req := b.Build()

	if req.Commitment == nil || *req.Commitment != CommitmentLevelFinalized {
		t.Fatalf("Build() commitment = %v, want finalized", req.Commitment)
	}
	if req.FromSlot == nil || *req.FromSlot != 12345 {
		t.Fatalf("Build() FromSlot = %v, want 12345", req.FromSlot)
	}
}

func TestBuildCompilesAccountChannelFilters(t *testing.T) {
	ff := NewFilterFactory()
	b := NewSubscriptionBuilder(CommitmentLevelConfirmed)
	if err := b.AccountChannel("bc", []string{"Prog1"}, ff.BondingCurveCompleteFilter(true)); err != nil {
		t.Fatalf("AccountChannel: %v", err)
	}

	req := b.Build()
	ch, ok := req.Accounts["bc"]
	if !ok {
		t.Fatalf("expected channel %q in built request", "bc")
	}
	if len(ch.Filters) != 1 {
		t.Fatalf("expected 1 compiled filter, got %d", len(ch.Filters))
	}
}

func TestWithAccountDataSliceRequiresExistingChannel(t *testing.T) {
	b := NewSubscriptionBuilder(CommitmentLevelConfirmed)
	if err := b.WithAccountDataSlice("missing", 0, 8); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
}
