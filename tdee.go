package main

import "math"

/* ─── Calibration constants ──────────────────────────────────────────── */

const (
	stepKcalPer1000PerKg = 0.5 // kcal per 1000 steps per kg body weight
	householdMET         = 2.5

	// TEF as a share of each macro's energy. Protein is ~0 under the net
	// Atwater convention the per-100g values already follow.
	tefProteinShare = 0.0
	tefCarbShare    = 0.075
	tefFatShare     = 0.015

	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9

	// NDTE qualification on the previous day's training.
	ndteMinTrainingKcal  = 300
	ndteMinHighZoneMin   = 20
	refeedBoostPct       = 35
	minDeficitPct        = -50
	maxDeficitPct        = 50
	defaultDeficitPct    = -15
	defaultWeightKG      = 70
	defaultHeightCM      = 170
	defaultAge           = 30
	defaultSleepHours    = 8
	defaultStepsGoal     = 7000
	defaultInsulinWaveHr = 3
)

// defaultZoneMET is the MET coefficient per heart-rate zone (1..4).
var defaultZoneMET = [4]float64{2.5, 6, 8, 10}

// normalizeProfile clamps out-of-domain profile values to safe defaults so
// downstream formulas never divide by zero or go negative.
func normalizeProfile(p profile) profile {
	if p.WeightKG <= 0 || p.WeightKG > 400 {
		p.WeightKG = defaultWeightKG
	}
	if p.HeightCM <= 0 || p.HeightCM > 260 {
		p.HeightCM = defaultHeightCM
	}
	if p.Age <= 0 || p.Age > 130 {
		p.Age = defaultAge
	}
	if p.Sex != "male" && p.Sex != "female" {
		p.Sex = "female"
	}
	if p.DeficitPct == 0 {
		p.DeficitPct = defaultDeficitPct
	}
	p.DeficitPct = clamp(p.DeficitPct, minDeficitPct, maxDeficitPct)
	if p.SleepHours <= 0 {
		p.SleepHours = defaultSleepHours
	}
	if p.StepsGoal <= 0 {
		p.StepsGoal = defaultStepsGoal
	}
	if p.InsulinWaveHours <= 0 {
		p.InsulinWaveHours = defaultInsulinWaveHr
	}
	for i, met := range p.ZoneMET {
		if met <= 0 {
			p.ZoneMET[i] = defaultZoneMET[i]
		}
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

/* ─── Component formulas ─────────────────────────────────────────────── */

// computeBMR is Mifflin-St Jeor. p must already be normalized.
func computeBMR(p profile) float64 {
	bmr := 10*p.WeightKG + 6.25*p.HeightCM - 5*float64(p.Age)
	if p.Sex == "male" {
		return bmr + 5
	}
	return bmr - 161
}

func stepsKcal(steps int, weightKG float64) float64 {
	if steps <= 0 {
		return 0
	}
	return float64(steps) / 1000 * stepKcalPer1000PerKg * weightKG
}

// trainingKcal converts zone minutes to kcal: minutes x MET x kg / 60.
func trainingKcal(t training, zoneMET [4]float64, weightKG float64) float64 {
	var kcal float64
	for i, minutes := range t.Z {
		if minutes > 0 {
			kcal += minutes * zoneMET[i] * weightKG / 60
		}
	}
	return kcal
}

func householdKcal(minutes int, weightKG float64) float64 {
	if minutes <= 0 {
		return 0
	}
	return float64(minutes) * householdMET * weightKG / 60
}

// tefKcal is the thermic effect of the day's macros, in kcal.
func tefKcal(proteinG, carbsG, fatG float64) float64 {
	return proteinG*kcalPerGramProtein*tefProteinShare +
		carbsG*kcalPerGramCarbs*tefCarbShare +
		fatG*kcalPerGramFat*tefFatShare
}

// ndteBoostPct returns the next-day training effect as a percentage of BMR,
// based on the previous day's trainings. Zero when nothing qualifies.
func ndteBoostPct(prev *dayRecord, p profile) float64 {
	if prev == nil {
		return 0
	}
	var kcal, highZone float64
	for _, t := range prev.Trainings {
		kcal += trainingKcal(t, p.ZoneMET, p.WeightKG)
		highZone += t.Z[2] + t.Z[3]
	}
	if kcal < ndteMinTrainingKcal && highZone < ndteMinHighZoneMin {
		return 0
	}
	switch {
	case kcal >= 800:
		return 7
	case kcal >= 500:
		return 5
	default:
		return 3
	}
}

// cycleMultiplier scales expenditure by menstrual-cycle phase. Nil or
// out-of-range days are neutral.
func cycleMultiplier(cycleDay *int) float64 {
	if cycleDay == nil {
		return 1
	}
	switch d := *cycleDay; {
	case d >= 14 && d <= 16:
		return 1.02
	case d >= 17 && d <= 28:
		return 1.05
	default:
		return 1
	}
}

/* ─── TDEE ───────────────────────────────────────────────────────────── */

// tdeeInputs are the already-computed components of daily expenditure.
type tdeeInputs struct {
	BMR           float64
	StepsKcal     float64
	TrainingKcal  float64
	HouseholdKcal float64
	TEFKcal       float64
	NDTEPct       float64
	CycleMult     float64
}

// energyBudget is the expenditure breakdown and resulting calorie target.
type energyBudget struct {
	BMR           float64 `json:"bmr"`
	StepsKcal     float64 `json:"steps_kcal"`
	TrainingKcal  float64 `json:"training_kcal"`
	HouseholdKcal float64 `json:"household_kcal"`
	TEFKcal       float64 `json:"tef_kcal"`
	NDTEKcal      float64 `json:"ndte_kcal"`
	CycleMult     float64 `json:"cycle_multiplier"`
	TDEE          float64 `json:"tdee"`
	DeficitPct    float64 `json:"deficit_pct"`
	BaseOptimum   float64 `json:"base_optimum"`
	DebtBoost     float64 `json:"debt_boost"`
	Optimum       float64 `json:"optimum"`
}

// computeTDEE sums the components: (BMR + activity + TEF + NDTE) x cycle.
func computeTDEE(in tdeeInputs) energyBudget {
	mult := in.CycleMult
	if mult <= 0 {
		mult = 1
	}
	ndte := in.BMR * in.NDTEPct / 100
	sum := in.BMR + in.StepsKcal + in.TrainingKcal + in.HouseholdKcal + in.TEFKcal + ndte
	return energyBudget{
		BMR:           in.BMR,
		StepsKcal:     in.StepsKcal,
		TrainingKcal:  in.TrainingKcal,
		HouseholdKcal: in.HouseholdKcal,
		TEFKcal:       in.TEFKcal,
		NDTEKcal:      ndte,
		CycleMult:     mult,
		TDEE:          sum * mult,
	}
}

// effectiveDeficitPct resolves the day's deficit: refeed beats a per-day
// override, which beats the profile value.
func effectiveDeficitPct(day dayRecord, p profile) float64 {
	if day.IsRefeedDay {
		return refeedBoostPct
	}
	if day.DeficitPct != nil {
		return clamp(*day.DeficitPct, minDeficitPct, maxDeficitPct)
	}
	return p.DeficitPct
}

// optimumFor applies the deficit/surplus percentage to TDEE.
func optimumFor(tdee, deficitPct float64) float64 {
	return tdee * (1 + deficitPct/100)
}

// computeEnergy evaluates the full expenditure pipeline for day. prev is the
// previous calendar day (nil when unknown) and feeds the NDTE boost. The
// caloric-debt boost is applied separately by the stats pipeline.
func computeEnergy(p profile, day dayRecord, prev *dayRecord, totals dayTotals) energyBudget {
	p = normalizeProfile(p)
	weight := p.WeightKG
	if day.WeightMorning != nil && *day.WeightMorning > 0 && *day.WeightMorning < 400 {
		weight = *day.WeightMorning
	}
	var trainKcal float64
	for _, t := range day.Trainings {
		trainKcal += trainingKcal(t, p.ZoneMET, weight)
	}
	steps, household := 0, 0
	if day.Steps != nil {
		steps = *day.Steps
	}
	if day.HouseholdMin != nil {
		household = *day.HouseholdMin
	}

	bmrProfile := p
	bmrProfile.WeightKG = weight
	e := computeTDEE(tdeeInputs{
		BMR:           computeBMR(bmrProfile),
		StepsKcal:     stepsKcal(steps, weight),
		TrainingKcal:  trainKcal,
		HouseholdKcal: householdKcal(household, weight),
		TEFKcal:       tefKcal(totals.Protein, totals.Carbs, totals.Fat),
		NDTEPct:       ndteBoostPct(prev, p),
		CycleMult:     cycleMultiplier(day.CycleDay),
	})
	e.DeficitPct = effectiveDeficitPct(day, p)
	e.BaseOptimum = optimumFor(e.TDEE, e.DeficitPct)
	e.Optimum = e.BaseOptimum
	return e
}
