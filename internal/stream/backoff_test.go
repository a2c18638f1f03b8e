package stream

import "testing"

func TestBackoffNextCapsAtMax(t *testing.T) {
	p := DefaultBackoffPolicy()
	p.JitterFrac = 0 // deterministic
	d := p.Next(20)
	if d != p.Max {
		t.Fatalf("Next(20) = %v, want capped at %v", d, p.Max)
	}
}

func TestBackoffNextGrowsExponentially(t *testing.T) {
	p := DefaultBackoffPolicy()
	p.JitterFrac = 0
	first := p.Next(1)
	second := p.Next(2)
	if first != p.Initial {
		t.Fatalf("Next(1) = %v, want initial %v", first, p.Initial)
	}
	if second <= first {
		t.Fatalf("Next(2) = %v, want > Next(1) = %v", second, first)
	}
}

func TestBackoffNextAppliesJitterWithinBounds(t *testing.T) {
	p := DefaultBackoffPolicy()
	for i := 0; i < 50; i++ {
		d := p.Next(1)
		lower := p.Initial - p.Initial/5 // 20% jitter
		upper := p.Initial + p.Initial/5
		if d < lower || d > upper {
			t.Fatalf("Next(1) = %v, outside jitter bounds [%v,%v]", d, lower, upper)
		}
	}
}
