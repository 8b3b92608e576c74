package validate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/nitinkhare/patterncore/internal/store"
)

func money(v float64) *float64 { return &v }

func TestExecution_ValidSimulateSubmission(t *testing.T) {
	details := []DetailSubmission{
		{ResultID: uuid.New(), WeightPercent: 60},
		{ResultID: uuid.New(), WeightPercent: 40},
	}
	result := Execution(store.ModeSimulate, nil, details)
	assert.True(t, result.Approved)
	assert.Empty(t, result.Rejections)
}

func TestExecution_WeightSumWithinTolerancePasses(t *testing.T) {
	details := []DetailSubmission{
		{ResultID: uuid.New(), WeightPercent: 60.005},
		{ResultID: uuid.New(), WeightPercent: 39.999},
	}
	result := Execution(store.ModeSimulate, nil, details)
	assert.True(t, result.Approved)
}

func TestExecution_RejectsWeightSumOutsideTolerance(t *testing.T) {
	details := []DetailSubmission{
		{ResultID: uuid.New(), WeightPercent: 60},
		{ResultID: uuid.New(), WeightPercent: 30},
	}
	result := Execution(store.ModeSimulate, nil, details)
	assert.False(t, result.Approved)
	assert.Equal(t, "WEIGHT_SUM", result.Rejections[0].Rule)
}

func TestExecution_RejectsDuplicateResult(t *testing.T) {
	id := uuid.New()
	details := []DetailSubmission{
		{ResultID: id, WeightPercent: 50},
		{ResultID: id, WeightPercent: 50},
	}
	result := Execution(store.ModeSimulate, nil, details)
	assert.False(t, result.Approved)
	assertHasRule(t, result, "DUPLICATE_RESULT")
}

func TestExecution_RejectsNonPositiveWeight(t *testing.T) {
	details := []DetailSubmission{
		{ResultID: uuid.New(), WeightPercent: 0},
		{ResultID: uuid.New(), WeightPercent: 100},
	}
	result := Execution(store.ModeSimulate, nil, details)
	assert.False(t, result.Approved)
	assertHasRule(t, result, "NON_POSITIVE_WEIGHT")
}

func TestExecution_RealModeRequiresCapital(t *testing.T) {
	details := []DetailSubmission{{ResultID: uuid.New(), WeightPercent: 100}}
	result := Execution(store.ModeReal, nil, details)
	assert.False(t, result.Approved)
	assertHasRule(t, result, "MISSING_CAPITAL")
}

func TestExecution_RealModeWithCapitalPasses(t *testing.T) {
	details := []DetailSubmission{{ResultID: uuid.New(), WeightPercent: 100}}
	result := Execution(store.ModeReal, money(50000), details)
	assert.True(t, result.Approved)
}

func TestExecution_RejectsInvalidMode(t *testing.T) {
	details := []DetailSubmission{{ResultID: uuid.New(), WeightPercent: 100}}
	result := Execution(store.Mode("paper"), nil, details)
	assert.False(t, result.Approved)
	assertHasRule(t, result, "INVALID_MODE")
}

func TestExecution_RejectsEmptyDetails(t *testing.T) {
	result := Execution(store.ModeSimulate, nil, nil)
	assert.False(t, result.Approved)
	assertHasRule(t, result, "NO_DETAILS")
}

func assertHasRule(t *testing.T, result Result, rule string) {
	t.Helper()
	for _, r := range result.Rejections {
		if r.Rule == rule {
			return
		}
	}
	t.Errorf("expected a rejection with rule %s, got %+v", rule, result.Rejections)
}
