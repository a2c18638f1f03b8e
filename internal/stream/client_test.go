package stream

import (
	"testing"

	"github.com/pumpfeed/ingest-core/internal/domain"
)

func TestDialTargetAddsDefaultPortForHTTPSURL(t *testing.T) {
	target, err := dialTarget("https://laserstream.example.com")
	if err != nil {
		t.Fatalf("dialTarget error: %v", err)
	}
	if target != "laserstream.example.com:443" {
		t.Fatalf("dialTarget = %q, want host:443", target)
	}
}

func TestDialTargetPreservesExplicitPort(t *testing.T) {
	target, err := dialTarget("grpc.example.com:10000")
	if err != nil {
		t.Fatalf("dialTarget error: %v", err)
	}
	if target != "grpc.example.com:10000" {
		t.Fatalf("dialTarget = %q, want unchanged", target)
	}
}

func TestDialTargetAddsDefaultPortForBareHost(t *testing.T) {
	target, err := dialTarget("grpc.example.com")
	if err != nil {
		t.Fatalf("dialTarget error: %v", err)
	}
	if target != "grpc.example.com:443" {
		t.Fatalf("dialTarget = %q, want host:443", target)
	}
}

func TestStripInternalFilterRemovesOnlyInternalID(t *testing.T) {
	got := stripInternalFilter([]string{"user-channel", "__internal_slot_tracker_abc"}, "__internal_slot_tracker_abc")
	if len(got) != 1 || got[0] != "user-channel" {
		t.Fatalf("stripInternalFilter = %v, want [user-channel]", got)
	}
}

func TestReportGapIfAnyFiresOnDiscontinuity(t *testing.T) {
	c := &Client{}
	var got *domain.DowntimeGap
	c.gapCallback = func(gap domain.DowntimeGap) { got = &gap }

	c.reportGapIfAny(100, 105)
	if got == nil {
		t.Fatalf("expected gap callback to fire for a 4-slot jump")
	}
	if got.EstimatedMissed != 4 {
		t.Fatalf("EstimatedMissed = %d, want 4", got.EstimatedMissed)
	}
}

func TestReportGapIfAnySkipsContiguousResume(t *testing.T) {
	c := &Client{}
	fired := false
	c.gapCallback = func(_ domain.DowntimeGap) { fired = true }

	c.reportGapIfAny(100, 101)
	if fired {
		t.Fatalf("did not expect gap callback for contiguous resume")
	}
}

func TestReportGapIfAnySkipsFirstAttempt(t *testing.T) {
	c := &Client{}
	fired := false
	c.gapCallback = func(_ domain.DowntimeGap) { fired = true }

	c.reportGapIfAny(0, 500)
	if fired {
		t.Fatalf("did not expect gap callback when there was no prior tracked slot")
	}
}

func TestDeliveryQueueDropsOldestPastHighWaterMark(t *testing.T) {
	q := newDeliveryQueue(2)

	first := &SubscribeUpdate{}
	second := &SubscribeUpdate{}
	third := &SubscribeUpdate{}

	if dropped := q.push(first); dropped {
		t.Fatalf("push 1: unexpected drop")
	}
	if dropped := q.push(second); dropped {
		t.Fatalf("push 2: unexpected drop")
	}
	if dropped := q.push(third); !dropped {
		t.Fatalf("push 3: expected oldest to be dropped at high-water mark")
	}

	got, ok := q.pop()
	if !ok || got != second {
		t.Fatalf("pop = %v, %v; want second (first should have been evicted)", got, ok)
	}
	got, ok = q.pop()
	if !ok || got != third {
		t.Fatalf("pop = %v, %v; want third", got, ok)
	}
}

func TestDeliveryQueuePopUnblocksOnClose(t *testing.T) {
	q := newDeliveryQueue(4)
	done := make(chan struct{})
	go func() {
		if _, ok := q.pop(); ok {
			t.Errorf("pop on closed empty queue returned ok=true")
		}
		close(done)
	}()
	q.close()
	<-done
}
