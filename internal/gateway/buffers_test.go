package gateway

import (
	"math"
	"testing"
)

// ── ReplayBuffer ──

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.Range(3, 7)
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5, got %d", len(got))
	}
	for i, e := range got {
		if want := int64(i) + 3; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	got := rb.Range(1, 10)
	if len(got) != 5 {
		t.Fatalf("Range(1,10): expected 5, got %d", len(got))
	}
	if got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("seqs = %d..%d, want 4..8", got[0].Seq, got[4].Seq)
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'x'

	if got := string(rb.Range(1, 1)[0].Data); got != "abc" {
		t.Errorf("stored data = %q, want %q", got, "abc")
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Range(1, 100); len(got) != 0 {
		t.Fatalf("empty buffer Range should return 0, got %d", len(got))
	}
}

// ── LatencyTracker ──

func TestLatencyTracker_Empty(t *testing.T) {
	p50, p95, p99 := NewLatencyTracker(100).Percentiles()
	if p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("empty tracker: expected (0,0,0), got (%f,%f,%f)", p50, p95, p99)
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(100)
	lt.Record(42.5)

	p50, p95, p99 := lt.Percentiles()
	if p50 != 42.5 || p95 != 42.5 || p99 != 42.5 {
		t.Errorf("got (%f,%f,%f), want all 42.5", p50, p95, p99)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(10000)
	for i := 1; i <= 100; i++ {
		lt.Record(float64(i))
	}

	p50, p95, p99 := lt.Percentiles()
	if math.Abs(p50-50.5) > 1e-9 {
		t.Errorf("p50: got %f, want 50.5", p50)
	}
	if math.Abs(p95-95.05) > 1e-9 {
		t.Errorf("p95: got %f, want 95.05", p95)
	}
	if math.Abs(p99-99.01) > 1e-9 {
		t.Errorf("p99: got %f, want 99.01", p99)
	}
}

func TestLatencyTracker_Wraparound(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 1; i <= 20; i++ {
		lt.Record(float64(i))
	}

	if lt.Count() != 10 {
		t.Fatalf("Count() = %d, want 10", lt.Count())
	}
	// Buffer holds 11..20.
	if p50, _, _ := lt.Percentiles(); math.Abs(p50-15.5) > 1e-9 {
		t.Errorf("p50 after wraparound: got %f, want 15.5", p50)
	}
}
