package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

// countingProfiles returns a pgProfiles whose loader counts calls and returns
// whatever result currently holds.
func countingProfiles(clk *fakeClock, fallback profile) (*pgProfiles, *int, *func() (profile, error)) {
	calls := 0
	result := func() (profile, error) { return profile{}, errors.New("connection refused") }
	s := &pgProfiles{clientID: "c1", fallback: fallback, now: clk.Now}
	s.load = func(context.Context) (profile, error) {
		calls++
		return result()
	}
	return s, &calls, &result
}

// TestPGProfiles_BacksOffWhenUnavailable verifies an unreachable database is
// asked at most once per backoff period, serving the fallback meanwhile.
func TestPGProfiles_BacksOffWhenUnavailable(t *testing.T) {
	clk := newFakeClock()
	fallback := profile{WeightKG: 81}
	s, calls, _ := countingProfiles(clk, fallback)

	for i := 0; i < 5; i++ {
		p, err := s.Profile(context.Background())
		if err != nil || p.WeightKG != 81 {
			t.Fatalf("call %d = (%+v, %v), want fallback", i, p, err)
		}
	}
	if *calls != 1 {
		t.Errorf("loader calls = %d, want 1 within the backoff", *calls)
	}

	clk.Advance(profileRetryBackoff)
	s.Profile(context.Background())
	if *calls != 2 {
		t.Errorf("loader calls = %d, want a retry after the backoff", *calls)
	}
}

func TestPGProfiles_CachesAndKeepsLastGood(t *testing.T) {
	clk := newFakeClock()
	s, calls, result := countingProfiles(clk, profile{WeightKG: 81})
	*result = func() (profile, error) { return profile{WeightKG: 64}, nil }

	if p, _ := s.Profile(context.Background()); p.WeightKG != 64 {
		t.Fatalf("WeightKG = %f, want fetched 64", p.WeightKG)
	}
	clk.Advance(time.Minute)
	s.Profile(context.Background())
	if *calls != 1 {
		t.Errorf("loader calls = %d, want 1 inside the cache TTL", *calls)
	}

	*result = func() (profile, error) { return profile{}, errors.New("timeout") }
	clk.Advance(profileCacheTTL)
	if p, _ := s.Profile(context.Background()); p.WeightKG != 64 {
		t.Errorf("WeightKG = %f, want last good 64 after a failed refresh", p.WeightKG)
	}
}
