package main

import "math"

const (
	debtLookbackDays   = 3 // qualifying days summed
	debtScanDays       = 7 // how far back to search for them
	debtMinTrigger     = 100
	maxDebtKcal        = 1500
	debtFullRateLimit  = 700  // debt recovered at debtFullRate up to here
	debtFullRate       = 0.5  // share of debt recovered at the first tier
	debtTailRate       = 0.25 // share recovered beyond the first tier
	debtMaxBoostShare  = 0.15 // daily boost cap, share of base optimum
	excessTrigger      = 500
	excessRate         = 0.2
	excessMaxCutShare  = 0.10
	incompleteFraction = 1.0 / 3 // eaten below target*fraction = incomplete log
)

// balanceDay is one historical day as seen by the weekly balance window.
type balanceDay struct {
	Date     string  `json:"date"`
	Eaten    float64 `json:"eaten"`
	Target   float64 `json:"target"`
	Delta    float64 `json:"delta"`
	Included bool    `json:"included"`
	Reason   string  `json:"reason,omitempty"`
}

// debtResult describes the caloric-debt adjustment for today.
type debtResult struct {
	NetBalance       float64  `json:"net_balance"`
	Debt             float64  `json:"debt"`
	Recoverable      float64  `json:"recoverable"`
	RecoveryDays     int      `json:"recovery_days"`
	DailyBoost       float64  `json:"daily_boost"`
	ExcessCorrection float64  `json:"excess_correction"`
	Adjustment       float64  `json:"adjustment"`
	BaseOptimum      float64  `json:"base_optimum"`
	BoostedOptimum   float64  `json:"boosted_optimum"`
	DaysUsed         []string `json:"days_used"`
}

// classifyBalanceDay decides whether a logged day counts towards the debt.
// Days the user marked incomplete never count; days with implausibly little
// logged food count only when explicitly marked as fasting.
func classifyBalanceDay(rec *dayRecord, eaten, target float64) (included bool, reason string) {
	switch {
	case rec == nil:
		return false, "no_data"
	case rec.IsIncomplete:
		return false, "marked_incomplete"
	case target <= 0:
		return false, "no_target"
	case eaten < target*incompleteFraction && !rec.IsFastingDay:
		return false, "incomplete_log"
	}
	return true, ""
}

// recoverableDebt applies the decaying-return model: the first tier of debt
// is recovered at debtFullRate, the remainder at debtTailRate.
func recoverableDebt(debt float64) float64 {
	debt = math.Min(debt, maxDebtKcal)
	first := math.Min(debt, debtFullRateLimit)
	tail := math.Max(0, debt-debtFullRateLimit)
	return first*debtFullRate + tail*debtTailRate
}

// recoveryDaysFor spreads larger amounts over more days.
func recoveryDaysFor(recoverable float64) int {
	switch {
	case recoverable < 300:
		return 1
	case recoverable <= 700:
		return 2
	default:
		return 3
	}
}

// computeCaloricDebt sums (eaten - target) over the first debtLookbackDays
// included entries of history (most recent first) and derives today's target
// adjustment relative to baseOptimum.
func computeCaloricDebt(history []balanceDay, baseOptimum float64) debtResult {
	res := debtResult{BaseOptimum: baseOptimum, BoostedOptimum: baseOptimum, DaysUsed: []string{}}
	for _, d := range history {
		if len(res.DaysUsed) == debtLookbackDays {
			break
		}
		if !d.Included {
			continue
		}
		res.NetBalance += d.Eaten - d.Target
		res.DaysUsed = append(res.DaysUsed, d.Date)
	}
	if baseOptimum <= 0 || len(res.DaysUsed) == 0 {
		return res
	}

	if res.NetBalance < -debtMinTrigger {
		res.Debt = math.Min(-res.NetBalance, maxDebtKcal)
		res.Recoverable = recoverableDebt(res.Debt)
		res.RecoveryDays = recoveryDaysFor(res.Recoverable)
		boost := res.Recoverable / float64(res.RecoveryDays)
		res.DailyBoost = math.Min(boost, baseOptimum*debtMaxBoostShare)
		res.Adjustment = res.DailyBoost
	} else if res.NetBalance > excessTrigger {
		cut := res.NetBalance * excessRate
		res.ExcessCorrection = math.Min(cut, baseOptimum*excessMaxCutShare)
		res.Adjustment = -res.ExcessCorrection
	}
	res.BoostedOptimum = baseOptimum + res.Adjustment
	return res
}
