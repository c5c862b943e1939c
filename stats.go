package main

import (
	"context"
	"log"
	"time"
)

/* ─── Nutrient totals ────────────────────────────────────────────────── */

// dayTotals are grams-scaled nutrient sums. GI is carb-weighted, Harm is
// gram-weighted.
type dayTotals struct {
	Kcal    float64 `json:"kcal"`
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
	Fiber   float64 `json:"fiber"`
	GI      float64 `json:"gi"`
	Harm    float64 `json:"harm"`
	Grams   float64 `json:"grams"`
}

// mealSummary is one meal in display order with its totals.
type mealSummary struct {
	ID       string    `json:"id"`
	Time     string    `json:"time"`
	MealType string    `json:"meal_type"`
	Totals   dayTotals `json:"totals"`
}

// itemKcal100 falls back to Atwater factors when the snapshot has no kcal.
func itemKcal100(it mealItem) float64 {
	if it.Kcal100 > 0 {
		return it.Kcal100
	}
	return it.Protein100*kcalPerGramProtein + it.Carbs100*kcalPerGramCarbs + it.Fat100*kcalPerGramFat
}

// totalsAccumulator keeps the weights needed for the averaged fields.
type totalsAccumulator struct {
	t            dayTotals
	giWeighted   float64
	harmWeighted float64
}

func (a *totalsAccumulator) addItem(it mealItem) {
	if it.Grams <= 0 {
		return
	}
	f := it.Grams / 100
	carbs := it.Carbs100 * f
	a.t.Kcal += itemKcal100(it) * f
	a.t.Protein += it.Protein100 * f
	a.t.Carbs += carbs
	a.t.Fat += it.Fat100 * f
	a.t.Fiber += it.Fiber100 * f
	a.t.Grams += it.Grams
	a.giWeighted += it.GI * carbs
	a.harmWeighted += it.Harm * it.Grams
}

func (a *totalsAccumulator) result() dayTotals {
	t := a.t
	if t.Carbs > 0 {
		t.GI = a.giWeighted / t.Carbs
	}
	if t.Grams > 0 {
		t.Harm = a.harmWeighted / t.Grams
	}
	return t
}

func mealTotals(m meal) dayTotals {
	var acc totalsAccumulator
	for _, it := range m.Items {
		acc.addItem(it)
	}
	return acc.result()
}

func dayTotalsFor(rec dayRecord) dayTotals {
	var acc totalsAccumulator
	for _, m := range rec.Meals {
		for _, it := range m.Items {
			acc.addItem(it)
		}
	}
	return acc.result()
}

// eatenKcal prefers the live item sum and falls back to the saved snapshot
// for days whose meals carry no items.
func eatenKcal(rec dayRecord) float64 {
	t := dayTotalsFor(rec)
	if t.Grams == 0 && rec.SavedEatenKcal != nil {
		return *rec.SavedEatenKcal
	}
	return t.Kcal
}

/* ─── Goal progress ──────────────────────────────────────────────────── */

const (
	goalDeficitBelow = 0.9
	goalExcessAbove  = 1.1
)

// goalProgress is eaten/target with its qualitative zone.
type goalProgress struct {
	Eaten  float64 `json:"eaten"`
	Target float64 `json:"target"`
	Ratio  float64 `json:"ratio"`
	Zone   string  `json:"zone"`
}

func goalZone(ratio, target float64) string {
	switch {
	case target <= 0:
		return "unknown"
	case ratio < goalDeficitBelow:
		return "deficit"
	case ratio > goalExcessAbove:
		return "excess"
	default:
		return "on_target"
	}
}

func goalProgressFor(eaten, target float64) goalProgress {
	g := goalProgress{Eaten: eaten, Target: target}
	if target > 0 {
		g.Ratio = eaten / target
	}
	g.Zone = goalZone(g.Ratio, target)
	return g
}

/* ─── Pipeline ───────────────────────────────────────────────────────── */

// dayReader returns the persisted or cached record for a date without
// synthesizing a default. ok=false means no data exists for the date.
type dayReader interface {
	Peek(date string) (dayRecord, bool)
}

// earliestReader is implemented by readers that know the first date with
// data, including dates older than any window being built.
type earliestReader interface {
	Earliest() (string, bool)
}

// dayLookupFunc adapts a plain function to dayReader.
type dayLookupFunc func(date string) (dayRecord, bool)

func (f dayLookupFunc) Peek(date string) (dayRecord, bool) { return f(date) }

// profileProvider is the read-only source of profile constants.
type profileProvider interface {
	Profile(ctx context.Context) (profile, error)
}

// statsPipeline derives read-only aggregates from the day store.
type statsPipeline struct {
	days     dayReader
	profiles profileProvider
	now      func() time.Time
}

func newStatsPipeline(days dayReader, profiles profileProvider, now func() time.Time) *statsPipeline {
	if now == nil {
		now = time.Now
	}
	return &statsPipeline{days: days, profiles: profiles, now: now}
}

// profile loads the current profile, degrading to defaults on failure.
func (s *statsPipeline) profile(ctx context.Context) profile {
	if s.profiles == nil {
		return normalizeProfile(profile{})
	}
	p, err := s.profiles.Profile(ctx)
	if err != nil {
		log.Printf("[stats] profile unavailable, using defaults: %v", err)
		return normalizeProfile(profile{})
	}
	return normalizeProfile(p)
}

func (s *statsPipeline) today() string {
	return s.now().Format(dateLayout)
}

// historyTarget is the target a past day was logged under: its saved
// snapshot when present, otherwise the base optimum recomputed from p.
func historyTarget(rec dayRecord, prev *dayRecord, p profile) float64 {
	if rec.SavedDisplayOptimum != nil && *rec.SavedDisplayOptimum > 0 {
		return *rec.SavedDisplayOptimum
	}
	return computeEnergy(p, rec, prev, dayTotalsFor(rec)).BaseOptimum
}

func previousDay(days dayReader, date string) *dayRecord {
	if prev, ok := days.Peek(addDays(date, -1)); ok {
		return &prev
	}
	return nil
}

// balanceWindow builds the weekly window that feeds the caloric debt:
// debtScanDays days before date, most recent first.
func balanceWindow(days dayReader, date string, p profile) []balanceDay {
	out := make([]balanceDay, 0, debtScanDays)
	for i := 1; i <= debtScanDays; i++ {
		d := addDays(date, -i)
		rec, ok := days.Peek(d)
		if !ok {
			out = append(out, balanceDay{Date: d, Reason: "no_data"})
			continue
		}
		eaten := eatenKcal(rec)
		target := historyTarget(rec, previousDay(days, d), p)
		included, reason := classifyBalanceDay(&rec, eaten, target)
		out = append(out, balanceDay{
			Date:     d,
			Eaten:    eaten,
			Target:   target,
			Delta:    eaten - target,
			Included: included,
			Reason:   reason,
		})
	}
	return out
}

// summarize computes totals, energy (with caloric-debt adjustment) and goal
// progress for rec. Only today's target receives the debt adjustment.
func summarize(rec dayRecord, days dayReader, p profile, today string) (dayTotals, energyBudget, goalProgress) {
	totals := dayTotalsFor(rec)
	energy := computeEnergy(p, rec, previousDay(days, rec.Date), totals)
	if rec.Date == today {
		debt := computeCaloricDebt(balanceWindow(days, rec.Date, p), energy.BaseOptimum)
		energy.DebtBoost = debt.Adjustment
		energy.Optimum = debt.BoostedOptimum
	} else if rec.SavedDisplayOptimum != nil && *rec.SavedDisplayOptimum > 0 {
		energy.Optimum = *rec.SavedDisplayOptimum
	}
	eaten := totals.Kcal
	if totals.Grams == 0 && rec.SavedEatenKcal != nil {
		eaten = *rec.SavedEatenKcal
	}
	return totals, energy, goalProgressFor(eaten, energy.Optimum)
}

// currentProfile is the store's resolveProfile hook.
func (s *statsPipeline) currentProfile() profile {
	return s.profile(context.Background())
}

// snapshot stamps the saved target/eaten fields on rec. Called by the store
// inside every mutation with a lock-free reader and an already resolved p.
func (s *statsPipeline) snapshot(rec *dayRecord, days dayReader, p profile) {
	totals := dayTotalsFor(*rec)
	energy := computeEnergy(p, *rec, previousDay(days, rec.Date), totals)
	eaten := totals.Kcal
	rec.SavedEatenKcal = &eaten
	switch {
	case rec.Date == s.today():
		optimum := computeCaloricDebt(balanceWindow(days, rec.Date, p), energy.BaseOptimum).BoostedOptimum
		rec.SavedDisplayOptimum = &optimum
	case rec.SavedDisplayOptimum == nil:
		// Past days keep the target they were first logged under.
		optimum := energy.BaseOptimum
		rec.SavedDisplayOptimum = &optimum
	}
}

// Summary is the full day view model.
func (s *statsPipeline) Summary(ctx context.Context, rec dayRecord, saveState string) daySummary {
	p := s.profile(ctx)
	totals, energy, goal := summarize(rec, s.days, p, s.today())
	meals := make([]mealSummary, 0, len(rec.Meals))
	for _, m := range sortedMeals(rec.Meals) {
		meals = append(meals, mealSummary{
			ID:       m.ID,
			Time:     m.Time,
			MealType: mealTypeFor(m),
			Totals:   mealTotals(m),
		})
	}
	return daySummary{
		Day:     rec,
		Totals:  totals,
		Energy:  energy,
		Goal:    goal,
		Meals:   meals,
		Pending: saveState,
	}
}

// balanceReport is the weekly calorie-balance window plus today's debt.
type balanceReport struct {
	Date string       `json:"date"`
	Days []balanceDay `json:"days"`
	Debt debtResult   `json:"debt"`
}

// Balance reproduces the caloric-debt inputs for display.
func (s *statsPipeline) Balance(ctx context.Context, date string) balanceReport {
	p := s.profile(ctx)
	window := balanceWindow(s.days, date, p)
	rec, ok := s.days.Peek(date)
	if !ok {
		rec = emptyDay(date)
	}
	base := computeEnergy(p, rec, previousDay(s.days, date), dayTotalsFor(rec)).BaseOptimum
	return balanceReport{Date: date, Days: window, Debt: computeCaloricDebt(window, base)}
}

// InsulinWave returns the wave for the latest meal with items on date.
func (s *statsPipeline) InsulinWave(ctx context.Context, rec dayRecord) (insulinWave, bool) {
	m, ok := latestMeal(rec.Meals)
	if !ok {
		return insulinWave{}, false
	}
	return computeInsulinWave(rec.Date, m, rec.Trainings, s.profile(ctx), s.now()), true
}

/* ─── Time series ────────────────────────────────────────────────────── */

// validPeriods are the selectable chart periods.
var validPeriods = map[int]bool{7: true, 14: true, 30: true}

// seriesPoint is one day on the sparkline.
type seriesPoint struct {
	Date    string  `json:"date"`
	Kcal    float64 `json:"kcal"`
	Target  float64 `json:"target"`
	Ratio   float64 `json:"ratio"`
	Zone    string  `json:"zone"`
	Kind    string  `json:"kind"` // known, unknown, forecast
	IsToday bool    `json:"is_today,omitempty"`
}

// seriesReport is the chart-ready series plus averages over known days.
type seriesReport struct {
	Period    int           `json:"period"`
	Points    []seriesPoint `json:"points"`
	KnownDays int           `json:"known_days"`
	AvgKcal   float64       `json:"avg_kcal"`
	AvgTarget float64       `json:"avg_target"`
	Chart     sparkline     `json:"chart"`
}

// Series assembles the last period days ending today. Days before the first
// existing record are replaced by forecast placeholders after today.
func (s *statsPipeline) Series(ctx context.Context, period int) seriesReport {
	if !validPeriods[period] {
		period = 7
	}
	p := s.profile(ctx)
	today := s.today()
	return buildSeries(s.days, p, today, period)
}

func buildSeries(days dayReader, p profile, today string, period int) seriesReport {
	type slot struct {
		date string
		rec  dayRecord
		ok   bool
	}
	slots := make([]slot, period)
	first := -1
	for i := 0; i < period; i++ {
		d := addDays(today, i-period+1)
		rec, ok := days.Peek(d)
		slots[i] = slot{date: d, rec: rec, ok: ok}
		if ok && first < 0 {
			first = i
		}
	}
	// Window days are only dropped when they precede the very first record;
	// a gap inside long history stays in the chart as unknown days.
	if first != 0 {
		if er, ok := days.(earliestReader); ok {
			if d, ok := er.Earliest(); ok && d < slots[0].date {
				first = 0
			}
		}
	}
	if first < 0 {
		first = period - 1 // no history at all: only today is real
	}

	points := make([]seriesPoint, 0, period)
	for _, sl := range slots[first:] {
		pt := seriesPoint{Date: sl.date, IsToday: sl.date == today, Kind: "unknown"}
		if sl.ok {
			pt.Target = historyTarget(sl.rec, previousDay(days, sl.date), p)
			if sl.date == today {
				_, energy, _ := summarize(sl.rec, days, p, today)
				pt.Target = energy.Optimum
			}
			eaten := eatenKcal(sl.rec)
			if included, _ := classifyBalanceDay(&sl.rec, eaten, pt.Target); included {
				pt.Kind = "known"
				pt.Kcal = eaten
			}
		} else {
			pt.Target = computeEnergy(p, emptyDay(sl.date), nil, dayTotals{}).BaseOptimum
		}
		points = append(points, pt)
	}
	interpolateUnknown(points)

	rep := seriesReport{Period: period}
	var known []float64
	var targetSum float64
	for i := range points {
		pt := &points[i]
		if pt.Target > 0 {
			pt.Ratio = pt.Kcal / pt.Target
		}
		pt.Zone = goalZone(pt.Ratio, pt.Target)
		if pt.Kind != "known" {
			pt.Zone = "unknown"
			continue
		}
		known = append(known, pt.Kcal)
		if pt.IsToday {
			continue
		}
		rep.KnownDays++
		rep.AvgKcal += pt.Kcal
		targetSum += pt.Target
	}
	if rep.KnownDays > 0 {
		rep.AvgKcal /= float64(rep.KnownDays)
		rep.AvgTarget = targetSum / float64(rep.KnownDays)
	}

	// Forecast placeholders fill the window to the full period.
	if n := first; n > 0 {
		targetMean := rep.AvgTarget
		if targetMean == 0 && len(points) > 0 {
			targetMean = points[len(points)-1].Target
		}
		values := forecastValues(known, targetMean, n)
		for i, v := range values {
			d := addDays(today, i+1)
			points = append(points, seriesPoint{
				Date:   d,
				Kcal:   v,
				Target: targetMean,
				Kind:   "forecast",
				Zone:   "unknown",
			})
		}
	}
	rep.Points = points
	rep.Chart = buildSparkline(points, sparklineWidth, sparklineHeight)
	return rep
}

// interpolateUnknown fills unknown points linearly between the nearest known
// neighbours, extending flat at the edges. With no known points it uses the
// target.
func interpolateUnknown(points []seriesPoint) {
	for i := range points {
		if points[i].Kind == "known" {
			continue
		}
		left, right := -1, -1
		for j := i - 1; j >= 0; j-- {
			if points[j].Kind == "known" {
				left = j
				break
			}
		}
		for j := i + 1; j < len(points); j++ {
			if points[j].Kind == "known" {
				right = j
				break
			}
		}
		switch {
		case left >= 0 && right >= 0:
			t := float64(i-left) / float64(right-left)
			points[i].Kcal = points[left].Kcal + t*(points[right].Kcal-points[left].Kcal)
		case left >= 0:
			points[i].Kcal = points[left].Kcal
		case right >= 0:
			points[i].Kcal = points[right].Kcal
		default:
			points[i].Kcal = points[i].Target
		}
	}
}
