package main

import (
	"math"
	"time"
)

const (
	minWaveHours          = 1.5
	maxWaveHours          = 6.0
	waveTrainingWindowMin = 120
	waveTrainingFactor    = 0.85
)

// insulinWave is the estimated post-meal insulin response for one meal.
type insulinWave struct {
	MealID          string  `json:"meal_id"`
	MealTime        string  `json:"meal_time"`
	BaseHours       float64 `json:"base_hours"`
	GI              float64 `json:"gi"`
	GIFactor        float64 `json:"gi_factor"`
	ProteinFactor   float64 `json:"protein_factor"`
	FiberFactor     float64 `json:"fiber_factor"`
	CircadianFactor float64 `json:"circadian_factor"`
	ActivityFactor  float64 `json:"activity_factor"`
	DurationMin     float64 `json:"duration_min"`
	ElapsedMin      float64 `json:"elapsed_min"`
	RemainingMin    float64 `json:"remaining_min"`
	Progress        float64 `json:"progress"`
	Active          bool    `json:"active"`
	EndsAt          string  `json:"ends_at"`
}

// giFactor lengthens the wave for slow carbohydrates.
func giFactor(gi float64) float64 {
	switch {
	case gi <= 0:
		return 1
	case gi <= 35:
		return 1.2
	case gi <= 55:
		return 1.1
	case gi <= 70:
		return 1
	default:
		return 0.85
	}
}

func proteinFactor(proteinG float64) float64 {
	return 1 + math.Min(math.Max(proteinG, 0)*0.005, 0.15)
}

func fiberFactor(fiberG float64) float64 {
	return 1 + math.Min(math.Max(fiberG, 0)*0.01, 0.10)
}

// circadianFactor reflects higher morning insulin sensitivity. hour is the
// virtual hour of the meal (24-26 for post-midnight meals).
func circadianFactor(hour int) float64 {
	h := hour % 24
	switch {
	case h >= 6 && h < 10:
		return 0.9
	case h >= 10 && h < 17:
		return 1
	case h >= 17 && h < 21:
		return 1.1
	default:
		return 1.2
	}
}

// activityFactor shortens the wave when a training happened within
// waveTrainingWindowMin of the meal, before or after.
func activityFactor(mealMin int, trainings []training) float64 {
	for _, t := range trainings {
		tm, ok := parseClock(t.Time)
		if !ok || t.Z == [4]float64{} {
			continue
		}
		if tm < dayBoundaryHour*60 {
			tm += 24 * 60
		}
		if math.Abs(float64(tm-mealMin)) <= waveTrainingWindowMin {
			return waveTrainingFactor
		}
	}
	return 1
}

// computeInsulinWave estimates the wave for m on date and reports progress
// against now. Location of now is used to place the meal in time.
func computeInsulinWave(date string, m meal, trainings []training, p profile, now time.Time) insulinWave {
	p = normalizeProfile(p)
	totals := mealTotals(m)
	mealMin := virtualMinutes(m.Time)

	w := insulinWave{
		MealID:          m.ID,
		MealTime:        m.Time,
		BaseHours:       p.InsulinWaveHours,
		GI:              totals.GI,
		GIFactor:        giFactor(totals.GI),
		ProteinFactor:   proteinFactor(totals.Protein),
		FiberFactor:     fiberFactor(totals.Fiber),
		CircadianFactor: circadianFactor(mealMin / 60),
		ActivityFactor:  activityFactor(mealMin, trainings),
	}
	hours := w.BaseHours * w.GIFactor * w.ProteinFactor * w.FiberFactor * w.CircadianFactor * w.ActivityFactor
	hours = clamp(hours, minWaveHours, maxWaveHours)
	w.DurationMin = hours * 60

	day, err := time.ParseInLocation(dateLayout, date, now.Location())
	if err != nil {
		return w
	}
	mealAt := day.Add(time.Duration(mealMin) * time.Minute)
	endsAt := mealAt.Add(time.Duration(w.DurationMin * float64(time.Minute)))
	w.EndsAt = endsAt.Format(time.RFC3339)

	elapsed := now.Sub(mealAt).Minutes()
	if elapsed < 0 {
		elapsed = 0
	}
	w.ElapsedMin = elapsed
	w.RemainingMin = math.Max(0, w.DurationMin-elapsed)
	w.Progress = clamp(elapsed/w.DurationMin, 0, 1)
	w.Active = now.After(mealAt) && now.Before(endsAt)
	return w
}
