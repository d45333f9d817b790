// Package calc implements the payout incentive rule set. The rules are fixed
// and applied in a fixed order; the cap in RuleCapAt20Percent is evaluated
// against the post-bonus incentive, so the order is load-bearing.
package calc

import "time"

const (
	RuleBonusOnHighBase = "bonus_on_high_base"
	RuleCapAt20Percent  = "cap_at_20_percent"

	highBaseThreshold = 100000
	highBaseBonus     = 1.10
	incentiveCapRate  = 0.20
)

// Input carries the already-validated monetary fields of a payout row.
type Input struct {
	BaseAmount      float64
	IncentiveAmount float64
	DeductionAmount float64
	RecoveryAmount  float64
}

// Trace records which rules fired for one calculation. Immutable once written;
// persisted as JSON alongside the payout case.
type Trace struct {
	OriginalIncentive    float64   `json:"original_incentive"`
	CalculatedIncentive  float64   `json:"calculated_incentive"`
	RulesApplied         []string  `json:"rules_applied"`
	CalculationTimestamp time.Time `json:"calculation_timestamp"`
}

// Result is the computed payout for one row.
type Result struct {
	BaseAmount          float64
	CalculatedIncentive float64
	DeductionAmount     float64
	RecoveryAmount      float64
	NetAmount           float64
	Trace               Trace
}

// Apply runs the rule set over in. It is pure apart from the trace timestamp.
func Apply(in Input) Result {
	incentive := in.IncentiveAmount
	rules := make([]string, 0, 2)

	if in.BaseAmount > highBaseThreshold {
		incentive *= highBaseBonus
		rules = append(rules, RuleBonusOnHighBase)
	}

	if cap := in.BaseAmount * incentiveCapRate; incentive > cap {
		incentive = cap
		rules = append(rules, RuleCapAt20Percent)
	}

	return Result{
		BaseAmount:          in.BaseAmount,
		CalculatedIncentive: incentive,
		DeductionAmount:     in.DeductionAmount,
		RecoveryAmount:      in.RecoveryAmount,
		NetAmount:           in.BaseAmount + incentive - in.DeductionAmount - in.RecoveryAmount,
		Trace: Trace{
			OriginalIncentive:    in.IncentiveAmount,
			CalculatedIncentive:  incentive,
			RulesApplied:         rules,
			CalculationTimestamp: time.Now().UTC(),
		},
	}
}
