package observability

import (
	"testing"

	"github.com/pumpfeed/ingest-core/internal/domain"
)

func TestRecordDecodeTalliesPerVenue(t *testing.T) {
	c := New(nil, nil, nil, nil)
	c.RecordDecode(domain.VenueBondingCurve, true)
	c.RecordDecode(domain.VenueBondingCurve, false)
	c.RecordDecode(domain.VenueAMM, true)

	snaps := c.VenueSnapshots()
	if snaps[domain.VenueBondingCurve].DecodeOK != 1 || snaps[domain.VenueBondingCurve].DecodeFail != 1 {
		t.Fatalf("bonding curve snapshot = %+v, want OK=1 Fail=1", snaps[domain.VenueBondingCurve])
	}
	if snaps[domain.VenueAMM].DecodeOK != 1 || snaps[domain.VenueAMM].DecodeFail != 0 {
		t.Fatalf("amm snapshot = %+v, want OK=1 Fail=0", snaps[domain.VenueAMM])
	}
}

func TestSnapshotAggregatesParseFailuresAcrossVenues(t *testing.T) {
	c := New(nil, nil, nil, func() bool { return true })
	c.RecordDecode(domain.VenueBondingCurve, false)
	c.RecordDecode(domain.VenueAMM, false)
	c.RecordTradeAdmitted()
	c.RecordTradeAdmitted()

	snap := c.Snapshot()
	if snap.ParseFailures != 2 {
		t.Fatalf("ParseFailures = %d, want 2", snap.ParseFailures)
	}
	if snap.TradesAdmitted != 2 {
		t.Fatalf("TradesAdmitted = %d, want 2", snap.TradesAdmitted)
	}
	if !snap.CircuitOpen {
		t.Fatalf("expected CircuitOpen true from the injected func")
	}
}

func TestGapRecoveryQueueDepthRoundTrips(t *testing.T) {
	c := New(nil, nil, nil, nil)
	c.SetGapRecoveryQueueDepth(3)
	if c.GapRecoveryQueueDepth() != 3 {
		t.Fatalf("GapRecoveryQueueDepth = %d, want 3", c.GapRecoveryQueueDepth())
	}
}

func TestRecordDecodeIgnoresUnknownVenue(t *testing.T) {
	c := New(nil, nil, nil, nil)
	c.RecordDecode(domain.VenueUnknown, true) // must not panic

	snap := c.Snapshot()
	if snap.ParseFailures != 0 {
		t.Fatalf("expected unknown-venue records to be dropped, got ParseFailures=%d", snap.ParseFailures)
	}
}
