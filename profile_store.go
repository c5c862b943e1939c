package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// profileCacheTTL bounds how stale a cached profile may get. Every mutation
// and summary reads the profile, so it must not hit the network each time.
const (
	profileCacheTTL     = 5 * time.Minute
	profileRetryBackoff = 30 * time.Second
	profileFetchTimeout = 2 * time.Second
)

// staticProfile serves a fixed profile (env defaults, tests).
type staticProfile struct {
	p profile
}

func (s staticProfile) Profile(context.Context) (profile, error) {
	return s.p, nil
}

// profileRow maps to the profiles table.
type profileRow struct {
	ClientID         string    `db:"client_id"`
	WeightKG         float64   `db:"weight_kg"`
	HeightCM         float64   `db:"height_cm"`
	Age              int       `db:"age"`
	Sex              string    `db:"sex"`
	DeficitPct       float64   `db:"deficit_pct"`
	SleepHours       float64   `db:"sleep_hours"`
	StepsGoal        int       `db:"steps_goal"`
	InsulinWaveHours float64   `db:"insulin_wave_hours"`
	ZoneMET          []float64 `db:"zone_met"`
	CycleTracking    bool      `db:"cycle_tracking"`
}

func (r profileRow) toProfile() profile {
	p := profile{
		ClientID:         r.ClientID,
		WeightKG:         r.WeightKG,
		HeightCM:         r.HeightCM,
		Age:              r.Age,
		Sex:              r.Sex,
		DeficitPct:       r.DeficitPct,
		SleepHours:       r.SleepHours,
		StepsGoal:        r.StepsGoal,
		InsulinWaveHours: r.InsulinWaveHours,
		CycleTracking:    r.CycleTracking,
	}
	copy(p.ZoneMET[:], r.ZoneMET)
	return p
}

// pgProfiles reads the client's profile from Postgres, caching it for
// profileCacheTTL. A failed or empty fetch is not retried before
// profileRetryBackoff; until then the last good profile (or the env fallback)
// keeps serving.
type pgProfiles struct {
	load     func(ctx context.Context) (profile, error)
	clientID string
	fallback profile
	now      func() time.Time

	mu          sync.Mutex
	cached      profile
	fetched     time.Time // last successful fetch
	lastAttempt time.Time
}

func newPGProfiles(pool *pgxpool.Pool, clientID string, fallback profile) *pgProfiles {
	s := &pgProfiles{clientID: clientID, fallback: fallback, now: time.Now}
	s.load = func(ctx context.Context) (profile, error) {
		row, err := queryOne[profileRow](pool, ctx,
			`SELECT client_id, weight_kg, height_cm, age, sex, deficit_pct, sleep_hours,
			        steps_goal, insulin_wave_hours, zone_met, cycle_tracking
			 FROM profiles WHERE client_id = @clientID`,
			pgx.NamedArgs{"clientID": clientID})
		if err != nil {
			return profile{}, err
		}
		return row.toProfile(), nil
	}
	return s
}

func (s *pgProfiles) Profile(ctx context.Context) (profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !s.fetched.IsZero() && now.Sub(s.fetched) < profileCacheTTL {
		return s.cached, nil
	}
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < profileRetryBackoff {
		return s.servingLocked(), nil
	}
	s.lastAttempt = now

	ctx, cancel := context.WithTimeout(ctx, profileFetchTimeout)
	defer cancel()
	p, err := s.load(ctx)
	if err != nil {
		if s.fetched.IsZero() {
			log.Printf("[profiles] no profile for %q yet, using env defaults: %v", s.clientID, err)
		} else {
			log.Printf("[profiles] refresh failed, serving cached profile: %v", err)
		}
		return s.servingLocked(), nil
	}
	s.cached = p
	s.fetched = now
	return s.cached, nil
}

// servingLocked is the profile to use when no fresh fetch is available.
func (s *pgProfiles) servingLocked() profile {
	if s.fetched.IsZero() {
		return s.fallback
	}
	return s.cached
}
