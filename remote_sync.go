package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultSyncInterval = 60 * time.Second
	syncPullDays        = 7
)

// remoteStore is the durable server-side copy of day records.
type remoteStore interface {
	FetchDays(ctx context.Context, dates []string) ([]dayRecord, error)
	PushDay(ctx context.Context, rec dayRecord) error
}

/* ─── Postgres remote ────────────────────────────────────────────────── */

// pgRemote keeps day records in the day_records table, one row per
// (client_id, date).
type pgRemote struct {
	db       *pgxpool.Pool
	clientID string
}

// remoteDayRow is the shape of a day_records row.
type remoteDayRow struct {
	Date      DateOnly `db:"date"`
	Payload   []byte   `db:"payload"`
	UpdatedAt int64    `db:"updated_at"`
}

func (r *pgRemote) FetchDays(ctx context.Context, dates []string) ([]dayRecord, error) {
	rows, err := queryMany[remoteDayRow](r.db, ctx,
		`SELECT date, payload, updated_at FROM day_records
		 WHERE client_id = @clientID AND date = ANY(CAST(@dates AS date[]))
		 ORDER BY date`,
		pgx.NamedArgs{"clientID": r.clientID, "dates": dates})
	if err != nil {
		return nil, fmt.Errorf("fetch remote days: %w", err)
	}
	out := make([]dayRecord, 0, len(rows))
	for _, row := range rows {
		date := row.Date.Time.Format(dateLayout)
		rec, err := decodeDay(date, row.Payload)
		if err != nil {
			log.Printf("[sync] skipping unreadable remote day %s: %v", date, err)
			continue
		}
		// The column is authoritative; payloads written by older clients may lag.
		rec.UpdatedAt = row.UpdatedAt
		out = append(out, rec)
	}
	return out, nil
}

func (r *pgRemote) PushDay(ctx context.Context, rec dayRecord) error {
	payload, err := encodeDay(rec)
	if err != nil {
		return fmt.Errorf("encode day %s: %w", rec.Date, err)
	}
	// Only move the row forward; a slower client never overwrites a newer copy.
	_, err = r.db.Exec(ctx,
		`INSERT INTO day_records (client_id, date, payload, updated_at)
		 VALUES (@clientID, CAST(@date AS date), CAST(@payload AS jsonb), @updatedAt)
		 ON CONFLICT (client_id, date) DO UPDATE
		   SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
		 WHERE day_records.updated_at < EXCLUDED.updated_at`,
		pgx.NamedArgs{
			"clientID":  r.clientID,
			"date":      rec.Date,
			"payload":   string(payload),
			"updatedAt": rec.UpdatedAt,
		})
	if err != nil {
		return fmt.Errorf("push day %s: %w", rec.Date, err)
	}
	return nil
}

/* ─── Syncer ─────────────────────────────────────────────────────────── */

// syncer uploads persisted local writes and periodically pulls remote
// changes back into the store through ApplyRemote.
type syncer struct {
	store    *dayStore
	remote   remoteStore
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]bool
	signal  chan struct{}
}

func newSyncer(store *dayStore, remote remoteStore, interval time.Duration, now func() time.Time) *syncer {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	if now == nil {
		now = time.Now
	}
	return &syncer{
		store:    store,
		remote:   remote,
		interval: interval,
		now:      now,
		pending:  make(map[string]bool),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue marks date for upload. Never blocks; repeated calls coalesce.
func (s *syncer) Enqueue(date string) {
	s.mu.Lock()
	s.pending[date] = true
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *syncer) takePending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	dates := make([]string, 0, len(s.pending))
	for d := range s.pending {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	s.pending = make(map[string]bool)
	return dates
}

// PushPending uploads every queued date. Failed dates are re-queued for the
// next round.
func (s *syncer) PushPending(ctx context.Context) (pushed int) {
	for _, date := range s.takePending() {
		rec, ok := s.store.Persisted(date)
		if !ok {
			continue
		}
		if err := s.remote.PushDay(ctx, rec); err != nil {
			log.Printf("[sync] %v", err)
			s.mu.Lock()
			s.pending[date] = true
			s.mu.Unlock()
			continue
		}
		pushed++
	}
	return pushed
}

// Pull fetches the last syncPullDays dates and offers each to the store.
// Returns how many were applied.
func (s *syncer) Pull(ctx context.Context) (applied int, err error) {
	today := s.now().Format(dateLayout)
	dates := make([]string, 0, syncPullDays)
	for i := syncPullDays - 1; i >= 0; i-- {
		dates = append(dates, addDays(today, -i))
	}
	recs, err := s.remote.FetchDays(ctx, dates)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		if s.store.ApplyRemote(rec.Date, rec) {
			applied++
		}
	}
	return applied, nil
}

// Run pushes on demand and pulls every interval until ctx is done.
func (s *syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Last chance to upload what the shutdown flush just wrote.
			pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.PushPending(pushCtx)
			cancel()
			return nil
		case <-s.signal:
			s.PushPending(ctx)
		case <-ticker.C:
			s.PushPending(ctx)
			if n, err := s.Pull(ctx); err != nil {
				log.Printf("[sync] pull failed: %v", err)
			} else if n > 0 {
				log.Printf("[sync] applied %d remote day(s)", n)
			}
		}
	}
}
