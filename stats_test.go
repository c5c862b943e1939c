package main

import (
	"context"
	"testing"
	"time"
)

// mapDays is a dayReader over a fixed set of records.
type mapDays map[string]dayRecord

func (m mapDays) Peek(date string) (dayRecord, bool) {
	rec, ok := m[date]
	return rec, ok
}

func (m mapDays) Earliest() (string, bool) {
	var first string
	for d := range m {
		if first == "" || d < first {
			first = d
		}
	}
	return first, first != ""
}

// loggedDay is a past day carrying only its saved snapshot, the shape days
// take once their items have been summarized.
func loggedDay(date string, eaten, target float64) dayRecord {
	rec := emptyDay(date)
	rec.SavedEatenKcal = &eaten
	rec.SavedDisplayOptimum = &target
	return rec
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
}

/* ─── Totals and goal zones ──────────────────────────────────────────── */

func TestDayTotalsFor(t *testing.T) {
	rec := emptyDay(testDate)
	rec.Meals = []meal{
		{ID: "m1", Time: "08:00", Items: []mealItem{
			{ID: "a", Grams: 150, Kcal100: 200, Protein100: 10, Carbs100: 20, GI: 40, Harm: 2},
			{ID: "b", Grams: 50, Kcal100: 300, Carbs100: 40, GI: 80},
		}},
		{ID: "m2", Time: "13:00", Items: []mealItem{
			// No kcal in the snapshot: 10*4 + 10*4 + 10*9 = 170 per 100g.
			{ID: "c", Grams: 100, Protein100: 10, Carbs100: 10, Fat100: 10},
			{ID: "d", Grams: 0, Kcal100: 900},
		}},
	}
	got := dayTotalsFor(rec)

	if !approxEqual(got.Kcal, 300+150+170) {
		t.Errorf("Kcal = %f, want 620", got.Kcal)
	}
	if !approxEqual(got.Carbs, 30+20+10) || !approxEqual(got.Protein, 15+10) {
		t.Errorf("Carbs = %f, Protein = %f", got.Carbs, got.Protein)
	}
	// Carb-weighted GI: (40*30 + 80*20 + 0*10) / 60
	if !approxEqual(got.GI, 2800.0/60) {
		t.Errorf("GI = %f, want %f", got.GI, 2800.0/60)
	}
	if !approxEqual(got.Grams, 300) {
		t.Errorf("Grams = %f, want 300", got.Grams)
	}
}

func TestEatenKcal_SavedFallback(t *testing.T) {
	if got := eatenKcal(loggedDay(testDate, 1750, 2000)); got != 1750 {
		t.Errorf("eatenKcal = %f, want saved 1750", got)
	}
	rec := loggedDay(testDate, 1750, 2000)
	rec.Meals = []meal{{ID: "m", Time: "09:00", Items: []mealItem{{ID: "i", Grams: 100, Kcal100: 400}}}}
	if got := eatenKcal(rec); got != 400 {
		t.Errorf("eatenKcal = %f, want live 400", got)
	}
}

func TestGoalZone(t *testing.T) {
	cases := []struct {
		eaten, target float64
		want          string
	}{
		{1000, 0, "unknown"},
		{1700, 2000, "deficit"},
		{1800, 2000, "on_target"},
		{2000, 2000, "on_target"},
		{2200, 2000, "on_target"},
		{2300, 2000, "excess"},
	}
	for _, tc := range cases {
		if got := goalProgressFor(tc.eaten, tc.target).Zone; got != tc.want {
			t.Errorf("zone(%.0f/%.0f) = %s, want %s", tc.eaten, tc.target, got, tc.want)
		}
	}
}

/* ─── Pipeline ───────────────────────────────────────────────────────── */

// TestSummary_DebtOnlyForToday verifies today's target carries the caloric
// debt boost while a past day keeps its saved target.
func TestSummary_DebtOnlyForToday(t *testing.T) {
	days := mapDays{
		"2026-03-09": loggedDay("2026-03-09", 1800, 2000),
		"2026-03-08": loggedDay("2026-03-08", 1600, 2000),
		"2026-03-07": loggedDay("2026-03-07", 1500, 2000),
	}
	s := newStatsPipeline(days, staticProfile{}, fixedNow)

	today := s.Summary(context.Background(), emptyDay(testDate), "idle")
	base := today.Energy.BaseOptimum
	if today.Energy.DebtBoost <= 0 {
		t.Fatalf("DebtBoost = %f, want > 0", today.Energy.DebtBoost)
	}
	if today.Energy.Optimum <= base || today.Energy.Optimum > base*(1+debtMaxBoostShare)+1e-9 {
		t.Errorf("Optimum = %f, want in (%f, %f]", today.Energy.Optimum, base, base*(1+debtMaxBoostShare))
	}
	if today.Goal.Target != today.Energy.Optimum {
		t.Errorf("Goal.Target = %f, want boosted optimum %f", today.Goal.Target, today.Energy.Optimum)
	}

	past := s.Summary(context.Background(), days["2026-03-08"], "idle")
	if past.Energy.DebtBoost != 0 || past.Energy.Optimum != 2000 {
		t.Errorf("past day energy = %+v, want saved target 2000 without boost", past.Energy)
	}
	if past.Goal.Eaten != 1600 {
		t.Errorf("past day eaten = %f, want saved 1600", past.Goal.Eaten)
	}
}

func TestSummary_MealsInDisplayOrder(t *testing.T) {
	s := newStatsPipeline(mapDays{}, nil, fixedNow)
	rec := emptyDay(testDate)
	rec.Meals = []meal{
		{ID: "b", Time: "08:00", Items: []mealItem{}},
		{ID: "n", Time: "00:30", Items: []mealItem{}},
		{ID: "l", Time: "13:00", Items: []mealItem{}},
	}
	got := s.Summary(context.Background(), rec, "pending")
	if len(got.Meals) != 3 || got.Meals[0].ID != "n" || got.Meals[2].ID != "b" {
		t.Errorf("meal order = %+v", got.Meals)
	}
	if got.Meals[0].MealType != "night" || got.Pending != "pending" {
		t.Errorf("summary = %+v", got)
	}
}

// TestSnapshot_PastDayKeepsTarget verifies editing a past day does not
// replace the target it was first logged under.
func TestSnapshot_PastDayKeepsTarget(t *testing.T) {
	s := newStatsPipeline(mapDays{}, staticProfile{}, fixedNow)
	p := s.currentProfile()

	past := loggedDay("2026-03-01", 0, 2500)
	s.snapshot(&past, mapDays{}, p)
	if *past.SavedDisplayOptimum != 2500 {
		t.Errorf("past SavedDisplayOptimum = %f, want 2500", *past.SavedDisplayOptimum)
	}

	fresh := emptyDay("2026-03-02")
	s.snapshot(&fresh, mapDays{}, p)
	if fresh.SavedDisplayOptimum == nil || *fresh.SavedDisplayOptimum <= 0 {
		t.Error("expected a base optimum snapshot for a first edit")
	}

	today := emptyDay(testDate)
	today.Meals = []meal{{ID: "m", Time: "09:00", Items: []mealItem{{ID: "i", Grams: 200, Kcal100: 100}}}}
	s.snapshot(&today, mapDays{}, p)
	if today.SavedEatenKcal == nil || *today.SavedEatenKcal != 200 {
		t.Errorf("SavedEatenKcal = %v, want 200", today.SavedEatenKcal)
	}
}

func TestBalance(t *testing.T) {
	incomplete := loggedDay("2026-03-08", 1900, 2000)
	incomplete.IsIncomplete = true
	days := mapDays{
		"2026-03-09": loggedDay("2026-03-09", 1800, 2000),
		"2026-03-08": incomplete,
		"2026-03-07": loggedDay("2026-03-07", 400, 2000),
	}
	s := newStatsPipeline(days, staticProfile{}, fixedNow)
	rep := s.Balance(context.Background(), testDate)

	if len(rep.Days) != debtScanDays {
		t.Fatalf("len(Days) = %d, want %d", len(rep.Days), debtScanDays)
	}
	want := map[string]string{
		"2026-03-09": "",
		"2026-03-08": "marked_incomplete",
		"2026-03-07": "incomplete_log",
		"2026-03-06": "no_data",
	}
	for _, d := range rep.Days {
		if reason, ok := want[d.Date]; ok && d.Reason != reason {
			t.Errorf("%s reason = %q, want %q", d.Date, d.Reason, reason)
		}
	}
	if len(rep.Debt.DaysUsed) != 1 || rep.Debt.DaysUsed[0] != "2026-03-09" {
		t.Errorf("DaysUsed = %v, want only 2026-03-09", rep.Debt.DaysUsed)
	}
}

func TestInsulinWave_NoMeals(t *testing.T) {
	s := newStatsPipeline(mapDays{}, nil, fixedNow)
	if _, ok := s.InsulinWave(context.Background(), emptyDay(testDate)); ok {
		t.Error("expected no wave for a day without meals")
	}
}

/* ─── Series ─────────────────────────────────────────────────────────── */

// TestBuildSeries covers unknown-day classification, interpolation, averages
// excluding today, and forecast padding for days before the first record.
func TestBuildSeries(t *testing.T) {
	incomplete := loggedDay("2026-03-07", 1200, 2000)
	incomplete.IsIncomplete = true
	days := mapDays{
		"2026-03-06": loggedDay("2026-03-06", 1800, 2000),
		"2026-03-07": incomplete,
		"2026-03-08": loggedDay("2026-03-08", 1900, 2000),
		// 2026-03-09 missing
		testDate: emptyDay(testDate),
	}
	rep := buildSeries(days, normalizeProfile(profile{}), testDate, 7)

	if len(rep.Points) != 7 {
		t.Fatalf("len(Points) = %d, want 7", len(rep.Points))
	}
	wantKinds := []string{"known", "unknown", "known", "unknown", "unknown", "forecast", "forecast"}
	for i, k := range wantKinds {
		if rep.Points[i].Kind != k {
			t.Errorf("point %d (%s) kind = %s, want %s", i, rep.Points[i].Date, rep.Points[i].Kind, k)
		}
	}
	if rep.Points[0].Date != "2026-03-06" || rep.Points[6].Date != "2026-03-12" {
		t.Errorf("date range = %s..%s", rep.Points[0].Date, rep.Points[6].Date)
	}
	if !rep.Points[4].IsToday {
		t.Error("expected point 4 to be today")
	}
	if !approxEqual(rep.Points[1].Kcal, 1850) || !approxEqual(rep.Points[3].Kcal, 1900) {
		t.Errorf("interpolated kcal = %f, %f, want 1850, 1900", rep.Points[1].Kcal, rep.Points[3].Kcal)
	}
	if rep.Points[1].Zone != "unknown" {
		t.Errorf("unknown point zone = %s", rep.Points[1].Zone)
	}
	if rep.KnownDays != 2 || !approxEqual(rep.AvgKcal, 1850) || !approxEqual(rep.AvgTarget, 2000) {
		t.Errorf("KnownDays = %d, AvgKcal = %f, AvgTarget = %f", rep.KnownDays, rep.AvgKcal, rep.AvgTarget)
	}
	// Regression over [1800, 1900] continues at 2000, then blends towards 2000.
	if !approxEqual(rep.Points[5].Kcal, 2000) || !approxEqual(rep.Points[6].Kcal, 2075) {
		t.Errorf("forecast = %f, %f, want 2000, 2075", rep.Points[5].Kcal, rep.Points[6].Kcal)
	}
	if rep.Chart.Path == "" || rep.Chart.ForecastPath == "" {
		t.Error("expected chart paths")
	}
}

// TestBuildSeries_GapAfterOlderHistory verifies missing days at the start of
// the window stay in the chart as unknowns when older records exist.
func TestBuildSeries_GapAfterOlderHistory(t *testing.T) {
	days := mapDays{
		"2026-02-20": loggedDay("2026-02-20", 2100, 2000),
		"2026-03-07": loggedDay("2026-03-07", 1700, 2000),
		"2026-03-08": loggedDay("2026-03-08", 1800, 2000),
		"2026-03-09": loggedDay("2026-03-09", 1900, 2000),
		testDate:     emptyDay(testDate),
	}
	rep := buildSeries(days, normalizeProfile(profile{}), testDate, 7)

	if len(rep.Points) != 7 {
		t.Fatalf("len(Points) = %d, want 7", len(rep.Points))
	}
	if rep.Points[0].Date != "2026-03-04" || rep.Points[6].Date != testDate {
		t.Errorf("date range = %s..%s, want 2026-03-04..%s", rep.Points[0].Date, rep.Points[6].Date, testDate)
	}
	wantKinds := []string{"unknown", "unknown", "unknown", "known", "known", "known", "unknown"}
	for i, k := range wantKinds {
		if rep.Points[i].Kind != k {
			t.Errorf("point %d (%s) kind = %s, want %s", i, rep.Points[i].Date, rep.Points[i].Kind, k)
		}
	}
	// Leading unknowns extend flat from the first known day.
	if !approxEqual(rep.Points[0].Kcal, 1700) {
		t.Errorf("leading unknown kcal = %f, want 1700", rep.Points[0].Kcal)
	}
}

func TestBuildSeries_NoHistory(t *testing.T) {
	rep := buildSeries(mapDays{}, normalizeProfile(profile{}), testDate, 14)
	if len(rep.Points) != 14 {
		t.Fatalf("len(Points) = %d, want 14", len(rep.Points))
	}
	if rep.Points[0].Date != testDate || rep.Points[0].Kind != "unknown" {
		t.Errorf("first point = %+v, want today as unknown", rep.Points[0])
	}
	for _, pt := range rep.Points[1:] {
		if pt.Kind != "forecast" || !approxEqual(pt.Kcal, rep.Points[0].Target) {
			t.Errorf("forecast point = %+v, want target %f", pt, rep.Points[0].Target)
		}
	}
	if rep.KnownDays != 0 || rep.AvgKcal != 0 {
		t.Errorf("averages should be empty: %+v", rep)
	}
}

func TestInterpolateUnknown_NoKnown(t *testing.T) {
	pts := []seriesPoint{{Kind: "unknown", Target: 1800}, {Kind: "unknown", Target: 1900}}
	interpolateUnknown(pts)
	if pts[0].Kcal != 1800 || pts[1].Kcal != 1900 {
		t.Errorf("kcal = %f, %f, want targets", pts[0].Kcal, pts[1].Kcal)
	}
}
