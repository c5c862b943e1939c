package main

import (
	"encoding/json"
	"testing"
)

/* ─── Legacy migration ───────────────────────────────────────────────── */

// TestDecodeDay_LegacyTrainings verifies version-1 trainings (zones, quality,
// feelAfter) are migrated into the current shape on read.
func TestDecodeDay_LegacyTrainings(t *testing.T) {
	raw := []byte(`{
		"date": "2026-03-01",
		"meals": [],
		"trainings": [
			{"type": "strength", "zones": [5, 10, 15, 0], "quality": 7, "feelAfter": 8}
		],
		"updatedAt": 1000
	}`)
	rec, err := decodeDay("2026-03-01", raw)
	if err != nil {
		t.Fatalf("decodeDay: %v", err)
	}
	if len(rec.Trainings) != maxTrainings {
		t.Fatalf("len(Trainings) = %d, want %d", len(rec.Trainings), maxTrainings)
	}
	tr := rec.Trainings[0]
	if tr.Z != [4]float64{5, 10, 15, 0} {
		t.Errorf("Z = %v, want [5 10 15 0]", tr.Z)
	}
	if tr.Mood == nil || *tr.Mood != 7 {
		t.Errorf("Mood = %v, want 7 (from quality)", tr.Mood)
	}
	if tr.Wellbeing == nil || *tr.Wellbeing != 8 {
		t.Errorf("Wellbeing = %v, want 8 (from feelAfter)", tr.Wellbeing)
	}
	if rec.SchemaVersion != currentSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", rec.SchemaVersion, currentSchemaVersion)
	}
	if rec.UpdatedAt != 1000 {
		t.Errorf("UpdatedAt = %d, want 1000", rec.UpdatedAt)
	}
}

// TestDecodeDay_CurrentFieldsWin verifies new-shape fields are not overwritten
// by legacy aliases present in the same object.
func TestDecodeDay_CurrentFieldsWin(t *testing.T) {
	raw := []byte(`{"trainings": [{"type": "cardio", "z": [1, 2, 3, 4], "zones": [9, 9, 9, 9], "mood": 3, "quality": 9}]}`)
	rec, err := decodeDay("2026-03-01", raw)
	if err != nil {
		t.Fatalf("decodeDay: %v", err)
	}
	if rec.Trainings[0].Z != [4]float64{1, 2, 3, 4} {
		t.Errorf("Z = %v, want [1 2 3 4]", rec.Trainings[0].Z)
	}
	if *rec.Trainings[0].Mood != 3 {
		t.Errorf("Mood = %v, want 3", *rec.Trainings[0].Mood)
	}
}

func TestDecodeTrainings_Shapes(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantLen int
		check   func(t *testing.T, got []training)
	}{
		{"null", `null`, 0, nil},
		{"empty array", `[]`, 0, nil},
		{"slot object", `{"1": {"type": "hobby"}, "0": {"type": "cardio"}}`, 2, func(t *testing.T, got []training) {
			if got[0].Type != "cardio" || got[1].Type != "hobby" {
				t.Errorf("slots out of order: %+v", got)
			}
		}},
		{"unknown type", `[{"type": "yoga"}]`, 1, func(t *testing.T, got []training) {
			if got[0].Type != "cardio" {
				t.Errorf("Type = %q, want cardio", got[0].Type)
			}
		}},
		{"negative zones dropped", `[{"type": "cardio", "z": [-5, 10]}]`, 1, func(t *testing.T, got []training) {
			if got[0].Z != [4]float64{0, 10, 0, 0} {
				t.Errorf("Z = %v, want [0 10 0 0]", got[0].Z)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeTrainings(json.RawMessage(tc.raw))
			if err != nil {
				t.Fatalf("decodeTrainings: %v", err)
			}
			if len(got) != tc.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tc.wantLen)
			}
			if tc.check != nil {
				tc.check(t, got)
			}
		})
	}
}

// TestDecodeDay_Normalizes covers the shape repairs applied on read.
func TestDecodeDay_Normalizes(t *testing.T) {
	raw := []byte(`{
		"date": "1999-01-01",
		"meals": [{"time": "12:00", "items": [{"name": "x", "grams": -10}]}],
		"trainings": [{}, {}, {}, {"type": "cardio"}]
	}`)
	rec, err := decodeDay("2026-03-01", raw)
	if err != nil {
		t.Fatalf("decodeDay: %v", err)
	}
	if rec.Date != "2026-03-01" {
		t.Errorf("Date = %s, want the storage key date", rec.Date)
	}
	if len(rec.Trainings) != maxTrainings {
		t.Errorf("len(Trainings) = %d, want %d", len(rec.Trainings), maxTrainings)
	}
	m := rec.Meals[0]
	if m.ID == "" || m.Items[0].ID == "" {
		t.Error("expected ids to be assigned to meals and items")
	}
	if m.Items[0].Grams != 0 {
		t.Errorf("Grams = %f, want 0", m.Items[0].Grams)
	}
}

// TestDecodeDay_StableIDs verifies decoding one id-less payload twice gives
// identical ids, distinct per meal and item.
func TestDecodeDay_StableIDs(t *testing.T) {
	raw := []byte(`{"meals": [
		{"time": "08:00", "items": [{"grams": 10}, {"grams": 20}]},
		{"id": "kept", "time": "13:00", "items": [{"grams": 30}]}
	]}`)
	a, _ := decodeDay("2026-03-01", raw)
	b, _ := decodeDay("2026-03-01", raw)

	if a.Meals[0].ID != b.Meals[0].ID || a.Meals[0].Items[1].ID != b.Meals[0].Items[1].ID {
		t.Errorf("ids differ between decodes: %s/%s vs %s/%s",
			a.Meals[0].ID, a.Meals[0].Items[1].ID, b.Meals[0].ID, b.Meals[0].Items[1].ID)
	}
	seen := map[string]bool{a.Meals[0].ID: true}
	for _, it := range append(a.Meals[0].Items, a.Meals[1].Items...) {
		if seen[it.ID] {
			t.Errorf("duplicate id %s", it.ID)
		}
		seen[it.ID] = true
	}
	if a.Meals[1].ID != "kept" {
		t.Errorf("existing id replaced: %s", a.Meals[1].ID)
	}
	if other, _ := decodeDay("2026-03-02", raw); other.Meals[0].ID == a.Meals[0].ID {
		t.Error("derived ids should differ across dates")
	}
}

func TestDecodeDay_Garbage(t *testing.T) {
	if _, err := decodeDay("2026-03-01", []byte("not json")); err == nil {
		t.Error("expected error for non-JSON value")
	}
	// Unreadable trainings drop only the trainings.
	rec, err := decodeDay("2026-03-01", []byte(`{"steps": 100, "trainings": "nope"}`))
	if err != nil {
		t.Fatalf("decodeDay: %v", err)
	}
	if rec.Steps == nil || *rec.Steps != 100 || len(rec.Trainings) != maxTrainings {
		t.Errorf("unexpected record: %+v", rec)
	}
}

// TestEncodeDay_RoundTrip verifies the current shape survives a write/read.
func TestEncodeDay_RoundTrip(t *testing.T) {
	rec := emptyDay("2026-03-01")
	rec.Steps = intPtr(5000)
	rec.Trainings[1] = training{ID: "t1", Type: "strength", Z: [4]float64{0, 20, 0, 0}}
	rec.Meals = append(rec.Meals, meal{ID: "m1", Time: "08:00", Items: []mealItem{{ID: "i1", Grams: 50, Kcal100: 200}}})
	rec.UpdatedAt = 42

	raw, err := encodeDay(rec)
	if err != nil {
		t.Fatalf("encodeDay: %v", err)
	}
	got, err := decodeDay("2026-03-01", raw)
	if err != nil {
		t.Fatalf("decodeDay: %v", err)
	}
	if got.Trainings[1].Z != rec.Trainings[1].Z || got.Trainings[1].Type != "strength" {
		t.Errorf("trainings changed: %+v", got.Trainings)
	}
	if *got.Steps != 5000 || got.UpdatedAt != 42 || got.Meals[0].Items[0].Kcal100 != 200 {
		t.Errorf("record changed: %+v", got)
	}
}

func TestCloneDay_NoAliasing(t *testing.T) {
	rec := emptyDay("2026-03-01")
	rec.Steps = intPtr(10)
	rec.Meals = append(rec.Meals, meal{ID: "m1", Items: []mealItem{{ID: "i1", Grams: 10}}})

	c := cloneDay(rec)
	*c.Steps = 99
	c.Meals[0].Items[0].Grams = 500
	c.Trainings[0].Type = "cardio"

	if *rec.Steps != 10 || rec.Meals[0].Items[0].Grams != 10 || rec.Trainings[0].Type != "" {
		t.Errorf("clone aliases the original: %+v", rec)
	}
}

/* ─── Meal time helpers ──────────────────────────────────────────────── */

func TestParseClock(t *testing.T) {
	cases := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"08:30", 510, true},
		{"00:00", 0, true},
		{"26:59", 26*60 + 59, true},
		{"27:00", 0, false},
		{"12:60", 0, false},
		{"noon", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseClock(tc.in)
		if ok != tc.wantOK || (ok && got != tc.want) {
			t.Errorf("parseClock(%q) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

// TestVirtualMinutes verifies post-midnight meals sort after late dinner.
func TestVirtualMinutes(t *testing.T) {
	if got := virtualMinutes("01:30"); got != 25*60+30 {
		t.Errorf("virtualMinutes(01:30) = %d, want %d", got, 25*60+30)
	}
	if got := virtualMinutes("03:00"); got != 180 {
		t.Errorf("virtualMinutes(03:00) = %d, want 180", got)
	}

	meals := []meal{
		{ID: "breakfast", Time: "08:00"},
		{ID: "late", Time: "01:00"},
		{ID: "dinner", Time: "20:00"},
	}
	got := sortedMeals(meals)
	if got[0].ID != "late" || got[1].ID != "dinner" || got[2].ID != "breakfast" {
		t.Errorf("sortedMeals order = %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if meals[0].ID != "breakfast" {
		t.Error("sortedMeals must not reorder its input")
	}
}

func TestMealTypeFor(t *testing.T) {
	cases := []struct {
		m    meal
		want string
	}{
		{meal{Time: "07:30"}, "breakfast"},
		{meal{Time: "11:00"}, "snack1"},
		{meal{Time: "13:00"}, "lunch"},
		{meal{Time: "16:00"}, "snack2"},
		{meal{Time: "19:00"}, "dinner"},
		{meal{Time: "23:00"}, "night"},
		{meal{Time: "01:00"}, "night"},
		{meal{Time: "13:00", MealType: "dinner"}, "dinner"},
	}
	for _, tc := range cases {
		if got := mealTypeFor(tc.m); got != tc.want {
			t.Errorf("mealTypeFor(%s, %q) = %s, want %s", tc.m.Time, tc.m.MealType, got, tc.want)
		}
	}
}

func TestLatestMeal_SkipsEmpty(t *testing.T) {
	meals := []meal{
		{ID: "a", Time: "08:00", Items: []mealItem{{ID: "i", Grams: 10}}},
		{ID: "b", Time: "21:00"},
	}
	m, ok := latestMeal(meals)
	if !ok || m.ID != "a" {
		t.Errorf("latestMeal = %s, %v, want a, true", m.ID, ok)
	}
	if _, ok := latestMeal([]meal{{ID: "x", Time: "09:00"}}); ok {
		t.Error("expected no latest meal when all meals are empty")
	}
}
