package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// dayBoundaryHour is the hour before which post-midnight meals still belong
// to the previous day (encoded as hours 24-26).
const dayBoundaryHour = 3

// emptyDay returns the empty-day template for date: no meals, empty training
// slots, no scalars. Used for first reads and for the "remove day" action.
func emptyDay(date string) dayRecord {
	return dayRecord{
		Date:          date,
		Meals:         []meal{},
		Trainings:     make([]training, maxTrainings),
		SchemaVersion: currentSchemaVersion,
	}
}

// validDate reports whether s is a well-formed YYYY-MM-DD date.
func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// addDays shifts a YYYY-MM-DD date by n days. Invalid input is returned as is.
func addDays(date string, n int) string {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, n).Format(dateLayout)
}

/* ─── Persistence boundary: decoding + legacy migration ──────────────── */

// persistedDay is the on-disk shape. Trainings stay raw so both the current
// array shape and the legacy shapes can be decoded.
type persistedDay struct {
	dayRecord
	Trainings json.RawMessage `json:"trainings"`
}

// legacyTraining accepts both the current and the version-1 training shape.
type legacyTraining struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Time      string    `json:"time"`
	Z         []float64 `json:"z"`
	Zones     []float64 `json:"zones"`
	Mood      *float64  `json:"mood"`
	Wellbeing *float64  `json:"wellbeing"`
	Stress    *float64  `json:"stress"`
	Quality   *float64  `json:"quality"`
	FeelAfter *float64  `json:"feelAfter"`
	Comment   string    `json:"comment"`
}

func (lt legacyTraining) migrate() training {
	t := training{
		ID:        lt.ID,
		Type:      lt.Type,
		Time:      lt.Time,
		Mood:      lt.Mood,
		Wellbeing: lt.Wellbeing,
		Stress:    lt.Stress,
		Comment:   lt.Comment,
	}
	zones := lt.Z
	if len(zones) == 0 {
		zones = lt.Zones
	}
	for i := 0; i < len(t.Z) && i < len(zones); i++ {
		if zones[i] > 0 {
			t.Z[i] = zones[i]
		}
	}
	if t.Mood == nil && lt.Quality != nil {
		t.Mood = lt.Quality
	}
	if t.Wellbeing == nil && lt.FeelAfter != nil {
		t.Wellbeing = lt.FeelAfter
	}
	if !validTrainingTypes[t.Type] {
		t.Type = "cardio"
	}
	return t
}

// decodeTrainings reads trainings stored as an array, as a slot-indexed
// object ({"0": {...}}), or as null.
func decodeTrainings(raw json.RawMessage) ([]training, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var list []legacyTraining
	if strings.HasPrefix(trimmed, "{") {
		var bySlot map[string]legacyTraining
		if err := json.Unmarshal(raw, &bySlot); err != nil {
			return nil, fmt.Errorf("decode trainings object: %w", err)
		}
		keys := make([]int, 0, len(bySlot))
		for k := range bySlot {
			if n, err := strconv.Atoi(k); err == nil && n >= 0 {
				keys = append(keys, n)
			}
		}
		sort.Ints(keys)
		for _, k := range keys {
			list = append(list, bySlot[strconv.Itoa(k)])
		}
	} else if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode trainings array: %w", err)
	}

	out := make([]training, 0, len(list))
	for _, lt := range list {
		out = append(out, lt.migrate())
	}
	return out, nil
}

// decodeDay parses a persisted value into a canonical dayRecord. A value that
// is not JSON at all is an error; every other shape problem is normalized.
func decodeDay(date string, raw []byte) (dayRecord, error) {
	var p persistedDay
	if err := json.Unmarshal(raw, &p); err != nil {
		return dayRecord{}, fmt.Errorf("decode day %s: %w", date, err)
	}
	rec := p.dayRecord
	trainings, err := decodeTrainings(p.Trainings)
	if err != nil {
		// Unreadable trainings are dropped rather than losing the whole day.
		trainings = nil
	}
	rec.Trainings = trainings
	normalizeDay(&rec, date)
	return rec, nil
}

// derivedID names an entity that arrived without an id. It depends only on
// the date and the entity's position, so normalizing the same payload twice
// yields the same record.
func derivedID(date string, path ...int) string {
	name := "heys:" + date
	for _, n := range path {
		name += "/" + strconv.Itoa(n)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// encodeDay serializes rec in the current schema version.
func encodeDay(rec dayRecord) ([]byte, error) {
	rec.SchemaVersion = currentSchemaVersion
	return json.Marshal(rec)
}

// normalizeDay coerces a record into the canonical in-memory shape: date set,
// arrays non-nil, ids present, training slots padded to maxTrainings.
func normalizeDay(rec *dayRecord, date string) {
	rec.Date = date
	if rec.Meals == nil {
		rec.Meals = []meal{}
	}
	for i := range rec.Meals {
		m := &rec.Meals[i]
		if m.ID == "" {
			m.ID = derivedID(date, i)
		}
		if m.Items == nil {
			m.Items = []mealItem{}
		}
		for j := range m.Items {
			if m.Items[j].ID == "" {
				m.Items[j].ID = derivedID(date, i, j)
			}
			if m.Items[j].Grams < 0 {
				m.Items[j].Grams = 0
			}
		}
	}
	for len(rec.Trainings) < maxTrainings {
		rec.Trainings = append(rec.Trainings, training{})
	}
	rec.Trainings = rec.Trainings[:maxTrainings]
	for i := range rec.Trainings {
		for z := range rec.Trainings[i].Z {
			if rec.Trainings[i].Z[z] < 0 {
				rec.Trainings[i].Z[z] = 0
			}
		}
	}
	rec.SchemaVersion = currentSchemaVersion
}

/* ─── Copying ────────────────────────────────────────────────────────── */

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// cloneDay returns a deep copy so updaters can never alias the stored record.
func cloneDay(r dayRecord) dayRecord {
	out := r
	out.Meals = make([]meal, len(r.Meals))
	for i, m := range r.Meals {
		cm := m
		cm.Items = append([]mealItem{}, m.Items...)
		if m.Photos != nil {
			cm.Photos = append([]string{}, m.Photos...)
		}
		cm.Mood = clonePtr(m.Mood)
		cm.Wellbeing = clonePtr(m.Wellbeing)
		cm.Stress = clonePtr(m.Stress)
		out.Meals[i] = cm
	}
	out.Trainings = make([]training, len(r.Trainings))
	for i, t := range r.Trainings {
		ct := t
		ct.Mood = clonePtr(t.Mood)
		ct.Wellbeing = clonePtr(t.Wellbeing)
		ct.Stress = clonePtr(t.Stress)
		out.Trainings[i] = ct
	}
	out.Steps = clonePtr(r.Steps)
	out.WaterMl = clonePtr(r.WaterMl)
	out.WeightMorning = clonePtr(r.WeightMorning)
	out.HouseholdMin = clonePtr(r.HouseholdMin)
	out.SleepStart = clonePtr(r.SleepStart)
	out.SleepEnd = clonePtr(r.SleepEnd)
	out.SleepQuality = clonePtr(r.SleepQuality)
	out.DayScore = clonePtr(r.DayScore)
	out.MoodAvg = clonePtr(r.MoodAvg)
	out.WellbeingAvg = clonePtr(r.WellbeingAvg)
	out.StressAvg = clonePtr(r.StressAvg)
	out.CycleDay = clonePtr(r.CycleDay)
	out.DeficitPct = clonePtr(r.DeficitPct)
	out.SavedDisplayOptimum = clonePtr(r.SavedDisplayOptimum)
	out.SavedEatenKcal = clonePtr(r.SavedEatenKcal)
	return out
}

/* ─── Meal time helpers ──────────────────────────────────────────────── */

// parseClock parses "HH:MM" into minutes of the (virtual) day. Hours up to 26
// are accepted. ok=false for anything else.
func parseClock(s string) (minutes int, ok bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 26 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// virtualMinutes maps a meal time onto the virtual day: real times before the
// day boundary (00:00-02:59) count as 24:00-26:59 of the previous day.
func virtualMinutes(s string) int {
	m, ok := parseClock(s)
	if !ok {
		return 0
	}
	if m < dayBoundaryHour*60 {
		m += 24 * 60
	}
	return m
}

// mealTypeFor returns the manual override when set, otherwise the type
// derived from the meal's virtual hour.
func mealTypeFor(m meal) string {
	if m.MealType != "" {
		return m.MealType
	}
	h := virtualMinutes(m.Time) / 60
	switch {
	case h < 10:
		return "breakfast"
	case h < 12:
		return "snack1"
	case h < 15:
		return "lunch"
	case h < 18:
		return "snack2"
	case h < 22:
		return "dinner"
	default:
		return "night"
	}
}

// sortedMeals returns meals in display order: latest first.
func sortedMeals(meals []meal) []meal {
	out := append([]meal{}, meals...)
	sort.SliceStable(out, func(i, j int) bool {
		return virtualMinutes(out[i].Time) > virtualMinutes(out[j].Time)
	})
	return out
}

// latestMeal returns the meal with the latest virtual time that has items.
func latestMeal(meals []meal) (meal, bool) {
	for _, m := range sortedMeals(meals) {
		if len(m.Items) > 0 {
			return m, true
		}
	}
	return meal{}, false
}
