package metrics

import (
	"testing"
)

func TestNewTimeBucketStore(t *testing.T) {
	store := NewTimeBucketStore(100)
	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0", store.Count())
	}

	// Invalid size falls back to default
	store = NewTimeBucketStore(0)
	if store == nil {
		t.Fatal("NewTimeBucketStore(0) returned nil")
	}
}

func TestTimeBucketStore_CreateBucket(t *testing.T) {
	store := NewTimeBucketStore(100)

	store.RecordRequest(true, 100)
	store.RecordRequest(true, 200)
	store.RecordRequest(false, 50)

	bucket := store.CreateBucket(3, 2, 1, 350, LatencyPercentiles{}, 5, PhaseSteady)

	if bucket.IntervalRequests != 3 {
		t.Errorf("IntervalRequests = %d, want 3", bucket.IntervalRequests)
	}
	if bucket.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", bucket.TotalRequests)
	}
	if bucket.ActiveVUs != 5 {
		t.Errorf("ActiveVUs = %d, want 5", bucket.ActiveVUs)
	}
	if bucket.Phase != PhaseSteady {
		t.Errorf("Phase = %v, want %v", bucket.Phase, PhaseSteady)
	}

	wantRate := 1.0 / 3.0
	if bucket.IntervalErrorRate < wantRate-0.01 || bucket.IntervalErrorRate > wantRate+0.01 {
		t.Errorf("IntervalErrorRate = %v, want ~%v", bucket.IntervalErrorRate, wantRate)
	}
}

func TestTimeBucketStore_AccumulatorResets(t *testing.T) {
	store := NewTimeBucketStore(100)

	store.RecordRequest(true, 100)
	store.CreateBucket(1, 1, 0, 100, LatencyPercentiles{}, 1, PhaseSteady)

	// Next bucket starts from a fresh accumulator
	bucket := store.CreateBucket(1, 1, 0, 100, LatencyPercentiles{}, 1, PhaseSteady)
	if bucket.IntervalRequests != 0 {
		t.Errorf("IntervalRequests = %d, want 0 after swap", bucket.IntervalRequests)
	}
}

func TestTimeBucketStore_RingBuffer(t *testing.T) {
	store := NewTimeBucketStore(3)

	for i := int64(1); i <= 5; i++ {
		store.CreateBucket(i, i, 0, 0, LatencyPercentiles{}, 0, PhaseSteady)
	}

	if store.Count() != 3 {
		t.Errorf("Count() = %d, want 3", store.Count())
	}

	buckets := store.GetBuckets()
	if len(buckets) != 3 {
		t.Fatalf("GetBuckets() length = %d, want 3", len(buckets))
	}

	// Oldest buckets evicted; order is chronological
	if buckets[0].TotalRequests != 3 || buckets[2].TotalRequests != 5 {
		t.Errorf("buckets totals = %d..%d, want 3..5", buckets[0].TotalRequests, buckets[2].TotalRequests)
	}
}

func TestTimeBucketStore_GetLatestBucket(t *testing.T) {
	store := NewTimeBucketStore(10)

	if store.GetLatestBucket() != nil {
		t.Error("GetLatestBucket() != nil on empty store")
	}

	store.CreateBucket(1, 1, 0, 0, LatencyPercentiles{}, 0, PhaseRampUp)
	store.CreateBucket(2, 2, 0, 0, LatencyPercentiles{}, 0, PhaseSteady)

	latest := store.GetLatestBucket()
	if latest == nil || latest.TotalRequests != 2 {
		t.Errorf("GetLatestBucket() = %+v, want TotalRequests 2", latest)
	}
}

func TestTimeBucketStore_GetRecentBuckets(t *testing.T) {
	store := NewTimeBucketStore(10)

	for i := int64(1); i <= 5; i++ {
		store.CreateBucket(i, i, 0, 0, LatencyPercentiles{}, 0, PhaseSteady)
	}

	recent := store.GetRecentBuckets(2)
	if len(recent) != 2 {
		t.Fatalf("GetRecentBuckets(2) length = %d, want 2", len(recent))
	}
	if recent[0].TotalRequests != 4 || recent[1].TotalRequests != 5 {
		t.Errorf("recent totals = %d, %d, want 4, 5", recent[0].TotalRequests, recent[1].TotalRequests)
	}

	// Asking for more than stored returns what exists
	recent = store.GetRecentBuckets(100)
	if len(recent) != 5 {
		t.Errorf("GetRecentBuckets(100) length = %d, want 5", len(recent))
	}
}

func TestTimeBucketStore_GetBucketsForPhase(t *testing.T) {
	store := NewTimeBucketStore(10)

	store.CreateBucket(1, 1, 0, 0, LatencyPercentiles{}, 0, PhaseRampUp)
	store.CreateBucket(2, 2, 0, 0, LatencyPercentiles{}, 0, PhaseSteady)
	store.CreateBucket(3, 3, 0, 0, LatencyPercentiles{}, 0, PhaseSteady)

	steady := store.GetBucketsForPhase(PhaseSteady)
	if len(steady) != 2 {
		t.Errorf("GetBucketsForPhase(steady) length = %d, want 2", len(steady))
	}
}

func TestTimeBucketStore_CalculateSteadyStateRPS(t *testing.T) {
	store := NewTimeBucketStore(10)

	// No steady buckets yet
	rps, n := store.CalculateSteadyStateRPS()
	if rps != 0 || n != 0 {
		t.Errorf("CalculateSteadyStateRPS() = %v, %d on empty store", rps, n)
	}

	// Two steady buckets with 10 and 20 interval requests
	for i := 0; i < 10; i++ {
		store.RecordRequest(true, 0)
	}
	store.CreateBucket(10, 10, 0, 0, LatencyPercentiles{}, 0, PhaseSteady)

	for i := 0; i < 20; i++ {
		store.RecordRequest(true, 0)
	}
	store.CreateBucket(30, 30, 0, 0, LatencyPercentiles{}, 0, PhaseSteady)

	rps, n = store.CalculateSteadyStateRPS()
	if n != 2 {
		t.Errorf("steady bucket count = %d, want 2", n)
	}
	if rps != 15 {
		t.Errorf("steady-state RPS = %v, want 15", rps)
	}
}

func TestTimeBucketStore_Reset(t *testing.T) {
	store := NewTimeBucketStore(10)

	store.RecordRequest(true, 100)
	store.CreateBucket(1, 1, 0, 100, LatencyPercentiles{}, 1, PhaseSteady)

	store.Reset()

	if store.Count() != 0 {
		t.Errorf("Count() after reset = %d, want 0", store.Count())
	}
	if store.GetLatestBucket() != nil {
		t.Error("GetLatestBucket() != nil after reset")
	}
}
