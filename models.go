package main

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(dateLayout) + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into DateOnly. NULL values zero the time and return nil.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

const dateLayout = "2006-01-02"

/* ─── Domain structs ─────────────────────────────────────────────────── */

// maxTrainings is the number of training slots every loaded day carries.
const maxTrainings = 3

// currentSchemaVersion is written on every persisted dayRecord. Version 1
// (or a missing field) is the legacy training shape migrated on load.
const currentSchemaVersion = 2

// dayRecord is one calendar day of logged data. Nullable scalars use pointers
// so "not logged" and zero stay distinct in JSON.
type dayRecord struct {
	Date      string     `json:"date"`
	Meals     []meal     `json:"meals"`
	Trainings []training `json:"trainings"`

	Steps         *int     `json:"steps,omitempty"`
	WaterMl       *int     `json:"waterMl,omitempty"`
	WeightMorning *float64 `json:"weightMorning,omitempty"`
	HouseholdMin  *int     `json:"householdMin,omitempty"`
	SleepStart    *string  `json:"sleepStart,omitempty"`
	SleepEnd      *string  `json:"sleepEnd,omitempty"`
	SleepQuality  *float64 `json:"sleepQuality,omitempty"`
	DayScore      *float64 `json:"dayScore,omitempty"`
	MoodAvg       *float64 `json:"moodAvg,omitempty"`
	WellbeingAvg  *float64 `json:"wellbeingAvg,omitempty"`
	StressAvg     *float64 `json:"stressAvg,omitempty"`
	CycleDay      *int     `json:"cycleDay,omitempty"`
	IsRefeedDay   bool     `json:"isRefeedDay,omitempty"`
	IsFastingDay  bool     `json:"isFastingDay,omitempty"`
	IsIncomplete  bool     `json:"isIncomplete,omitempty"`
	DeficitPct    *float64 `json:"deficitPct,omitempty"`

	UpdatedAt int64 `json:"updatedAt"`

	// Snapshot of the target and intake the day was last displayed with, so
	// history keeps the target it was logged under after the profile changes.
	SavedDisplayOptimum *float64 `json:"savedDisplayOptimum,omitempty"`
	SavedEatenKcal      *float64 `json:"savedEatenKcal,omitempty"`

	SchemaVersion int `json:"schemaVersion"`
}

// meal is one eating occasion. Time is "HH:MM"; hours 24-26 encode meals
// eaten after midnight but before the day boundary.
type meal struct {
	ID        string     `json:"id"`
	Time      string     `json:"time"`
	MealType  string     `json:"mealType,omitempty"`
	Items     []mealItem `json:"items"`
	Mood      *float64   `json:"mood,omitempty"`
	Wellbeing *float64   `json:"wellbeing,omitempty"`
	Stress    *float64   `json:"stress,omitempty"`
	Photos    []string   `json:"photos,omitempty"`
}

// mealItem is a consumed portion with an inline per-100g nutrient snapshot.
// The snapshot is copied from the catalog on add or swap and never refreshed.
type mealItem struct {
	ID         string  `json:"id"`
	ProductID  string  `json:"product_id"`
	Name       string  `json:"name"`
	Grams      float64 `json:"grams"`
	Kcal100    float64 `json:"kcal100"`
	Protein100 float64 `json:"protein100"`
	Carbs100   float64 `json:"carbs100"`
	Fat100     float64 `json:"fat100"`
	Fiber100   float64 `json:"fiber100"`
	GI         float64 `json:"gi"`
	Harm       float64 `json:"harm"`
}

// training is one workout slot. Z holds minutes spent in each heart-rate zone.
type training struct {
	ID        string     `json:"id,omitempty"`
	Type      string     `json:"type,omitempty"`
	Time      string     `json:"time,omitempty"`
	Z         [4]float64 `json:"z"`
	Mood      *float64   `json:"mood,omitempty"`
	Wellbeing *float64   `json:"wellbeing,omitempty"`
	Stress    *float64   `json:"stress,omitempty"`
	Comment   string     `json:"comment,omitempty"`
}

// validTrainingTypes is the set of allowed training.Type values ("" = empty slot).
var validTrainingTypes = map[string]bool{
	"":         true,
	"cardio":   true,
	"strength": true,
	"hobby":    true,
}

// profile holds the user's physiological and goal constants. It is read-only
// from the store's point of view.
type profile struct {
	ClientID         string     `json:"client_id"`
	WeightKG         float64    `json:"weight"`
	HeightCM         float64    `json:"height"`
	Age              int        `json:"age"`
	Sex              string     `json:"sex"`
	DeficitPct       float64    `json:"deficitPct"`
	SleepHours       float64    `json:"sleepHours"`
	StepsGoal        int        `json:"stepsGoal"`
	InsulinWaveHours float64    `json:"insulinWaveHours"`
	ZoneMET          [4]float64 `json:"zoneMET"`
	CycleTracking    bool       `json:"cycleTracking"`
}

// product is a catalog entry with per-100g nutrients.
type product struct {
	ID         string  `json:"id"         db:"id"`
	Name       string  `json:"name"       db:"name"`
	Kcal100    float64 `json:"kcal100"    db:"kcal100"`
	Protein100 float64 `json:"protein100" db:"protein100"`
	Carbs100   float64 `json:"carbs100"   db:"carbs100"`
	Fat100     float64 `json:"fat100"     db:"fat100"`
	Fiber100   float64 `json:"fiber100"   db:"fiber100"`
	GI         float64 `json:"gi"         db:"gi"`
	Harm       float64 `json:"harm"       db:"harm"`
}

/* ─── API request / response shapes ──────────────────────────────────── */

// daySummary is the response shape for GET /api/day/:date.
type daySummary struct {
	Day     dayRecord     `json:"day"`
	Totals  dayTotals     `json:"totals"`
	Energy  energyBudget  `json:"energy"`
	Goal    goalProgress  `json:"goal"`
	Meals   []mealSummary `json:"meals"`
	Pending string        `json:"save_state"`
}

// patchDayRequest is the request body for PATCH /api/day/:date.
// All fields are pointers, only non-nil fields are written.
type patchDayRequest struct {
	Steps         *int     `json:"steps"`
	WaterMl       *int     `json:"waterMl"`
	WeightMorning *float64 `json:"weightMorning"`
	HouseholdMin  *int     `json:"householdMin"`
	SleepStart    *string  `json:"sleepStart"`
	SleepEnd      *string  `json:"sleepEnd"`
	SleepQuality  *float64 `json:"sleepQuality"`
	DayScore      *float64 `json:"dayScore"`
	CycleDay      *int     `json:"cycleDay"`
	IsRefeedDay   *bool    `json:"isRefeedDay"`
	IsFastingDay  *bool    `json:"isFastingDay"`
	IsIncomplete  *bool    `json:"isIncomplete"`
	DeficitPct    *float64 `json:"deficitPct"`
}

// createMealRequest is the request body for POST /api/day/:date/meals.
type createMealRequest struct {
	Time      string   `json:"time"`
	MealType  string   `json:"mealType"`
	Mood      *float64 `json:"mood"`
	Wellbeing *float64 `json:"wellbeing"`
	Stress    *float64 `json:"stress"`
}

// addItemRequest is the request body for POST .../meals/:mealID/items.
type addItemRequest struct {
	ProductID string  `json:"product_id"`
	Grams     float64 `json:"grams"`
}

// updateItemRequest is the request body for PUT .../items/:itemID. Grams
// changes the portion; ProductID swaps the product and re-snapshots nutrients.
type updateItemRequest struct {
	Grams     *float64 `json:"grams"`
	ProductID *string  `json:"product_id"`
}
