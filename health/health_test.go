package health

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestTracker(t *testing.T, opts ...TrackerOption) *Tracker {
	t.Helper()
	tr, err := NewTracker(opts...)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

func TestTrackerClassification(t *testing.T) {
	probeErr := errors.New("connect: connection refused")

	type probe struct {
		latency time.Duration
		err     error
	}
	tests := []struct {
		name   string
		probes []probe
		want   State
	}{
		{
			name:   "fast success is healthy",
			probes: []probe{{50 * time.Millisecond, nil}},
			want:   StateHealthy,
		},
		{
			name:   "slow success is degraded",
			probes: []probe{{3 * time.Second, nil}},
			want:   StateDegraded,
		},
		{
			name:   "single failure is degraded",
			probes: []probe{{50 * time.Millisecond, probeErr}},
			want:   StateDegraded,
		},
		{
			name: "threshold failures are unhealthy",
			probes: []probe{
				{time.Second, probeErr},
				{time.Second, probeErr},
				{time.Second, probeErr},
			},
			want: StateUnhealthy,
		},
		{
			name: "success resets the failure streak",
			probes: []probe{
				{time.Second, probeErr},
				{time.Second, probeErr},
				{100 * time.Millisecond, nil},
				{time.Second, probeErr},
			},
			want: StateDegraded,
		},
		{
			name: "recovery after unhealthy",
			probes: []probe{
				{time.Second, probeErr},
				{time.Second, probeErr},
				{time.Second, probeErr},
				{100 * time.Millisecond, nil},
			},
			want: StateHealthy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(t)
			for _, p := range tt.probes {
				tr.Observe("openai", p.latency, p.err)
			}
			st, ok := tr.Get("openai")
			if !ok {
				t.Fatal("provider not tracked after Observe")
			}
			if st.State != tt.want {
				t.Fatalf("state = %s, want %s", st.State, tt.want)
			}
		})
	}
}

func TestTrackerCounters(t *testing.T) {
	tr := newTestTracker(t)
	probeErr := errors.New("upstream timeout")

	tr.Observe("openai", 10*time.Millisecond, nil)
	tr.Observe("openai", 10*time.Millisecond, nil)
	tr.Observe("openai", 10*time.Millisecond, probeErr)

	st, _ := tr.Get("openai")
	if st.ConsecutiveSuccesses != 0 {
		t.Fatalf("ConsecutiveSuccesses = %d, want 0 after a failure", st.ConsecutiveSuccesses)
	}
	if st.ConsecutiveFailures != 1 {
		t.Fatalf("ConsecutiveFailures = %d, want 1", st.ConsecutiveFailures)
	}
	if st.LastError != "upstream timeout" {
		t.Fatalf("LastError = %q", st.LastError)
	}

	tr.Observe("openai", 20*time.Millisecond, nil)
	st, _ = tr.Get("openai")
	if st.ConsecutiveSuccesses != 1 || st.ConsecutiveFailures != 0 {
		t.Fatalf("after recovery: successes=%d failures=%d", st.ConsecutiveSuccesses, st.ConsecutiveFailures)
	}
	if st.LastError != "" {
		t.Fatalf("LastError = %q, want cleared on success", st.LastError)
	}
	if st.Latency != 20*time.Millisecond {
		t.Fatalf("Latency = %s, want most recent probe", st.Latency)
	}
}

func TestTrackerLastCheckAtUsesClock(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, WithClock(func() time.Time { return at }))

	tr.Observe("openai", time.Millisecond, nil)
	st, _ := tr.Get("openai")
	if !st.LastCheckAt.Equal(at) {
		t.Fatalf("LastCheckAt = %s, want %s", st.LastCheckAt, at)
	}
}

func TestTrackerUnknownProviderNotFound(t *testing.T) {
	tr := newTestTracker(t)
	tr.Observe("openai", time.Millisecond, nil)

	if st, ok := tr.Get("never-probed"); ok {
		t.Fatalf("Get(never-probed) = %+v, want ok=false", st)
	}
}

func TestTrackerAllSorted(t *testing.T) {
	tr := newTestTracker(t)
	for _, p := range []string{"openai", "anthropic", "cohere"} {
		tr.Observe(p, time.Millisecond, nil)
	}

	got := tr.All()
	want := []string{"anthropic", "cohere", "openai"}
	if len(got) != len(want) {
		t.Fatalf("All() returned %d entries, want %d", len(got), len(want))
	}
	for i, p := range want {
		if got[i].Provider != p {
			t.Fatalf("All()[%d].Provider = %q, want %q", i, got[i].Provider, p)
		}
	}
}

func TestTrackerForget(t *testing.T) {
	tr := newTestTracker(t)
	tr.Observe("openai", time.Millisecond, nil)

	if !tr.Forget("openai") {
		t.Fatal("Forget returned false for a tracked provider")
	}
	if _, ok := tr.Get("openai"); ok {
		t.Fatal("provider still tracked after Forget")
	}
	if tr.Forget("openai") {
		t.Fatal("Forget returned true for an untracked provider")
	}
}

func TestTrackerCustomThresholds(t *testing.T) {
	tr := newTestTracker(t, WithThresholds(Thresholds{
		UnhealthyAfter:  1,
		DegradedLatency: 100 * time.Millisecond,
	}))

	tr.Observe("openai", time.Millisecond, errors.New("boom"))
	st, _ := tr.Get("openai")
	if st.State != StateUnhealthy {
		t.Fatalf("state = %s, want unhealthy with threshold 1", st.State)
	}

	tr.Observe("anthropic", 150*time.Millisecond, nil)
	st, _ = tr.Get("anthropic")
	if st.State != StateDegraded {
		t.Fatalf("state = %s, want degraded above 100ms", st.State)
	}
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"default", DefaultThresholds(), false},
		{"zero unhealthy-after", Thresholds{UnhealthyAfter: 0, DegradedLatency: time.Second}, true},
		{"zero degraded latency", Thresholds{UnhealthyAfter: 3, DegradedLatency: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTrackerConcurrentObserve(t *testing.T) {
	tr := newTestTracker(t, WithThresholds(Thresholds{
		UnhealthyAfter:  10_000,
		DegradedLatency: time.Second,
	}))
	probeErr := errors.New("flaky")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Observe("openai", time.Millisecond, probeErr)
			}
		}()
	}
	wg.Wait()

	st, ok := tr.Get("openai")
	if !ok {
		t.Fatal("provider missing after concurrent observes")
	}
	if st.ConsecutiveFailures != 800 {
		t.Fatalf("ConsecutiveFailures = %d, want 800 (no lost updates)", st.ConsecutiveFailures)
	}
}
