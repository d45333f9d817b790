package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLowBaseUnderCap(t *testing.T) {
	res := Apply(Input{BaseAmount: 100000, IncentiveAmount: 15000})

	assert.Equal(t, 15000.0, res.CalculatedIncentive)
	assert.Equal(t, 115000.0, res.NetAmount)
	assert.Empty(t, res.Trace.RulesApplied)
}

func TestApplyLowBaseCapped(t *testing.T) {
	// base <= 100000: incentive = min(incentive, 0.20*base)
	res := Apply(Input{BaseAmount: 50000, IncentiveAmount: 20000})

	assert.Equal(t, 10000.0, res.CalculatedIncentive)
	assert.Equal(t, []string{RuleCapAt20Percent}, res.Trace.RulesApplied)
}

func TestApplyHighBaseBonusThenCap(t *testing.T) {
	// Worked example: base=200000, incentive=50000.
	// Bonus: 50000*1.10=55000; cap: 0.20*200000=40000.
	res := Apply(Input{BaseAmount: 200000, IncentiveAmount: 50000})

	require.Equal(t, 40000.0, res.CalculatedIncentive)
	assert.Equal(t, 240000.0, res.NetAmount)
	assert.Equal(t, []string{RuleBonusOnHighBase, RuleCapAt20Percent}, res.Trace.RulesApplied)
	assert.Equal(t, 50000.0, res.Trace.OriginalIncentive)
}

func TestApplyHighBaseBonusUnderCap(t *testing.T) {
	// base > 100000, bonus applies but stays under the 20% cap.
	res := Apply(Input{BaseAmount: 500000, IncentiveAmount: 50000})

	assert.InDelta(t, 55000.0, res.CalculatedIncentive, 1e-9)
	assert.Equal(t, []string{RuleBonusOnHighBase}, res.Trace.RulesApplied)
}

func TestApplyDeductionsAndRecoveries(t *testing.T) {
	res := Apply(Input{BaseAmount: 100000, IncentiveAmount: 10000, DeductionAmount: 2500, RecoveryAmount: 1500})

	assert.Equal(t, 106000.0, res.NetAmount)
}

func TestApplyTraceTimestampSet(t *testing.T) {
	res := Apply(Input{BaseAmount: 1000, IncentiveAmount: 100})
	assert.False(t, res.Trace.CalculationTimestamp.IsZero())
}
