package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	defaultDebounce         = 500 * time.Millisecond
	defaultProtectionWindow = 3 * time.Second
)

// kvStore is the local persistent key-value collaborator.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// keyScanner is implemented by kv stores that can find the first key under
// a prefix.
type keyScanner interface {
	FirstKey(ctx context.Context, prefix string) (string, bool, error)
}

// timer is a cancellable delayed task.
type timer interface {
	Stop() bool
}

// clock abstracts wall time and delayed tasks so autosave can be driven
// deterministically in tests.
type clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) timer { return time.AfterFunc(d, f) }

// saveState is the autosave state of one date.
type saveState string

const (
	stateIdle    saveState = "idle"
	statePending saveState = "pending"
	stateWriting saveState = "writing"
)

// dayEntry is the store's bookkeeping for one date.
type dayEntry struct {
	rec           dayRecord
	exists        bool // loaded from storage, mutated, or applied from remote
	dirty         bool
	lastLocalEdit time.Time
	state         saveState
	timer         timer
	gen           uint64
}

// storeOptions configures a dayStore. Zero values select the defaults.
type storeOptions struct {
	ClientID         string
	Debounce         time.Duration
	ProtectionWindow time.Duration
	Clock            clock
}

// dayStore holds the authoritative in-memory day records, one entry per date,
// and persists them to kv with a debounce.
type dayStore struct {
	mu         sync.Mutex
	kv         kvStore
	clock      clock
	clientID   string
	debounce   time.Duration
	protection time.Duration
	entries    map[string]*dayEntry
	current    string

	// resolveProfile runs before mu is taken, so a slow profile source never
	// stalls the store. snapshot then runs inside the mutation with that
	// profile and a reader that does not take mu.
	resolveProfile func() profile
	snapshot       func(rec *dayRecord, days dayReader, p profile)

	onChange       func(rec dayRecord)
	onPersisted    func(date string)
	onPersistError func(date string, err error)
}

func newDayStore(kv kvStore, opts storeOptions) *dayStore {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.ProtectionWindow <= 0 {
		opts.ProtectionWindow = defaultProtectionWindow
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &dayStore{
		kv:         kv,
		clock:      opts.Clock,
		clientID:   opts.ClientID,
		debounce:   opts.Debounce,
		protection: opts.ProtectionWindow,
		entries:    make(map[string]*dayEntry),
	}
}

// dayKey is the local storage key for date, namespaced by client when set.
func dayKey(clientID, date string) string {
	return dayKeyPrefix(clientID) + date
}

func dayKeyPrefix(clientID string) string {
	if clientID == "" {
		return "heys_dayv2_"
	}
	return "heys_" + clientID + "_dayv2_"
}

/* ─── Reads ──────────────────────────────────────────────────────────── */

// readLocked fetches and decodes date from kv. Missing or unreadable values
// return ok=false; errors are logged, never returned.
func (s *dayStore) readLocked(date string) (dayRecord, bool) {
	raw, found, err := s.kv.Get(context.Background(), dayKey(s.clientID, date))
	if err != nil {
		log.Printf("[store] read %s failed: %v", date, err)
		return dayRecord{}, false
	}
	if !found {
		return dayRecord{}, false
	}
	rec, err := decodeDay(date, raw)
	if err != nil {
		log.Printf("[store] %v, starting from an empty day", err)
		return dayRecord{}, false
	}
	return rec, true
}

// entryLocked returns the cached entry for date, loading or synthesizing it.
func (s *dayStore) entryLocked(date string) *dayEntry {
	if e, ok := s.entries[date]; ok {
		return e
	}
	e := &dayEntry{state: stateIdle}
	if rec, ok := s.readLocked(date); ok {
		e.rec, e.exists = rec, true
	} else {
		e.rec = emptyDay(date)
	}
	s.entries[date] = e
	return e
}

// peekLocked returns the record for date only when data exists for it.
func (s *dayStore) peekLocked(date string) (dayRecord, bool) {
	if e, ok := s.entries[date]; ok {
		return cloneDay(e.rec), e.exists
	}
	rec, ok := s.readLocked(date)
	if !ok {
		return dayRecord{}, false
	}
	s.entries[date] = &dayEntry{rec: rec, exists: true, state: stateIdle}
	return cloneDay(rec), true
}

// Load returns the record for date. It never fails: a missing or unreadable
// record yields the empty-day template.
func (s *dayStore) Load(date string) dayRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDay(s.entryLocked(date).rec)
}

// Peek implements dayReader.
func (s *dayStore) Peek(date string) (dayRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peekLocked(date)
}

// State reports the autosave state of date.
func (s *dayStore) State(date string) saveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[date]; ok {
		return e.state
	}
	return stateIdle
}

// Earliest returns the first date holding any data, in memory or in kv.
func (s *dayStore) Earliest() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest string
	for date, e := range s.entries {
		if e.exists && (earliest == "" || date < earliest) {
			earliest = date
		}
	}
	if ks, ok := s.kv.(keyScanner); ok {
		prefix := dayKeyPrefix(s.clientID)
		key, found, err := ks.FirstKey(context.Background(), prefix)
		if err != nil {
			log.Printf("[store] scan for earliest day failed: %v", err)
		} else if d := strings.TrimPrefix(key, prefix); found && validDate(d) && (earliest == "" || d < earliest) {
			earliest = d
		}
	}
	return earliest, earliest != ""
}

// Current returns the currently viewed date ("" before the first Open).
func (s *dayStore) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

/* ─── Mutations ──────────────────────────────────────────────────────── */

// Mutate applies fn to a copy of the record for date, stamps a strictly
// increasing updatedAt and schedules a debounced persist. When fn returns an
// error the record is left untouched.
func (s *dayStore) Mutate(date string, fn func(rec *dayRecord) error) (dayRecord, error) {
	var p profile
	if s.snapshot != nil && s.resolveProfile != nil {
		p = s.resolveProfile()
	}

	s.mu.Lock()
	e := s.entryLocked(date)
	next := cloneDay(e.rec)
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return cloneDay(e.rec), err
	}
	normalizeDay(&next, date)
	if s.snapshot != nil {
		s.snapshot(&next, dayLookupFunc(s.peekLocked), p)
	}

	now := s.clock.Now()
	stamp := now.UnixMilli()
	if stamp <= e.rec.UpdatedAt {
		stamp = e.rec.UpdatedAt + 1
	}
	next.UpdatedAt = stamp
	e.rec = next
	e.exists = true
	e.dirty = true
	e.lastLocalEdit = now
	s.scheduleLocked(date, e)
	out := cloneDay(next)
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(out)
	}
	return out, nil
}

// scheduleLocked (re)arms the debounce timer for date, coalescing bursts of
// edits into one write.
func (s *dayStore) scheduleLocked(date string, e *dayEntry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.state = statePending
	e.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(date, gen) })
}

// fire is the debounce callback. Stale generations are ignored.
func (s *dayStore) fire(date string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[date]
	if !ok || e.gen != gen || e.state != statePending {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	err := s.persistLocked(date, e)
	s.mu.Unlock()
	s.afterPersist(date, err, true)
}

// persistLocked writes e to kv. In-memory state stays authoritative when the
// write fails; dirty is kept so the next mutation or flush retries.
func (s *dayStore) persistLocked(date string, e *dayEntry) error {
	e.state = stateWriting
	defer func() { e.state = stateIdle }()

	raw, err := encodeDay(e.rec)
	if err != nil {
		return fmt.Errorf("encode day %s: %w", date, err)
	}
	if err := s.kv.Set(context.Background(), dayKey(s.clientID, date), raw); err != nil {
		return fmt.Errorf("persist day %s: %w", date, err)
	}
	e.dirty = false
	return nil
}

// afterPersist reports the outcome of a write outside the lock. Only local
// writes are handed to onPersisted for upload.
func (s *dayStore) afterPersist(date string, err error, local bool) {
	if err != nil {
		log.Printf("[store] %v", err)
		if s.onPersistError != nil {
			s.onPersistError(date, err)
		}
		return
	}
	if local && s.onPersisted != nil {
		s.onPersisted(date)
	}
}

// flushLocked cancels the pending timer and writes date when dirty.
// wrote=false means there was nothing to write.
func (s *dayStore) flushLocked(date string) (wrote bool, err error) {
	e, ok := s.entries[date]
	if !ok {
		return false, nil
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	if !e.dirty {
		e.state = stateIdle
		return false, nil
	}
	return true, s.persistLocked(date, e)
}

// Flush persists date immediately, bypassing the debounce.
func (s *dayStore) Flush(date string) error {
	s.mu.Lock()
	wrote, err := s.flushLocked(date)
	s.mu.Unlock()
	if wrote {
		s.afterPersist(date, err, true)
	}
	return err
}

// Open switches the viewed date. The outgoing date is flushed before the
// incoming one is loaded so no edit is lost across navigation.
func (s *dayStore) Open(date string) dayRecord {
	s.mu.Lock()
	prev := s.current
	var wrote bool
	var err error
	if prev != "" && prev != date {
		wrote, err = s.flushLocked(prev)
	}
	s.current = date
	rec := cloneDay(s.entryLocked(date).rec)
	s.mu.Unlock()

	if wrote {
		s.afterPersist(prev, err, true)
	}
	return rec
}

// ApplyRemote merges a record delivered by the sync collaborator. It is
// accepted only when strictly newer than the held record and no local edit
// happened within the protection window; otherwise it is dropped as stale.
func (s *dayStore) ApplyRemote(date string, incoming dayRecord) bool {
	s.mu.Lock()
	e := s.entryLocked(date)
	now := s.clock.Now()
	if incoming.UpdatedAt <= e.rec.UpdatedAt {
		s.mu.Unlock()
		return false
	}
	if !e.lastLocalEdit.IsZero() && now.Sub(e.lastLocalEdit) < s.protection {
		s.mu.Unlock()
		return false
	}

	rec := cloneDay(incoming)
	normalizeDay(&rec, date)
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	e.rec = rec
	e.exists = true
	e.dirty = true
	err := s.persistLocked(date, e)
	out := cloneDay(rec)
	onChange := s.onChange
	s.mu.Unlock()

	s.afterPersist(date, err, false)
	if onChange != nil {
		onChange(out)
	}
	return true
}

// ClearDay resets date to the empty-day template (the "remove day" action).
func (s *dayStore) ClearDay(date string) dayRecord {
	rec, _ := s.Mutate(date, func(r *dayRecord) error {
		*r = emptyDay(date)
		return nil
	})
	return rec
}

// Close flushes every dirty date. Used on shutdown.
func (s *dayStore) Close() error {
	s.mu.Lock()
	var firstErr error
	var written []string
	for date := range s.entries {
		wrote, err := s.flushLocked(date)
		if err != nil {
			log.Printf("[store] close: %v", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if wrote {
			written = append(written, date)
		}
	}
	s.mu.Unlock()

	for _, date := range written {
		s.afterPersist(date, nil, true)
	}
	return firstErr
}

// Persisted reads the value currently in local storage for date, bypassing
// the in-memory record. The sync pusher uploads exactly what was saved.
func (s *dayStore) Persisted(date string) (dayRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(date)
}
