// Package validate is the final gatekeeper before a strategy execution
// is accepted: it enforces the capital-allocation invariants a
// StrategyExecution's details must satisfy before any task is ever
// created for them. Strategies and callers cannot bypass these checks.
package validate

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nitinkhare/patterncore/internal/store"
)

// weightTolerance is the slack allowed when summing capital weights:
// weights across all details of one execution must sum to 100, plus
// or minus this tolerance.
const weightTolerance = 0.01

// RejectionReason explains why a submitted execution was rejected.
type RejectionReason struct {
	Rule    string
	Message string
}

func (r RejectionReason) Error() string {
	return fmt.Sprintf("execution rejected [%s]: %s", r.Rule, r.Message)
}

// DetailSubmission is one (result, weight) pair proposed for a new
// StrategyExecution, before any ID has been assigned.
type DetailSubmission struct {
	ResultID      uuid.UUID
	WeightPercent float64
}

// Result holds the outcome of validating a proposed execution.
type Result struct {
	Approved   bool
	Rejections []RejectionReason
}

// Execution validates a proposed StrategyExecution's mode, capital, and
// detail weights. It does not touch the store — callers resolve
// ResultID existence against store.Store themselves and fold any
// not-found errors into the rejection list before acting on Approved.
func Execution(mode store.Mode, totalMoney *float64, details []DetailSubmission) Result {
	result := Result{Approved: true}

	if len(details) == 0 {
		reject(&result, "NO_DETAILS", "an execution must allocate at least one result")
	}

	checkMode(&result, mode, totalMoney)
	checkWeightSum(&result, details)
	checkNoDuplicateResults(&result, details)
	checkPositiveWeights(&result, details)

	return result
}

func checkMode(result *Result, mode store.Mode, totalMoney *float64) {
	switch mode {
	case store.ModeSimulate, store.ModeReal:
	default:
		reject(result, "INVALID_MODE", fmt.Sprintf("mode must be %q or %q, got %q", store.ModeSimulate, store.ModeReal, mode))
		return
	}
	if mode == store.ModeReal && (totalMoney == nil || *totalMoney <= 0) {
		reject(result, "MISSING_CAPITAL", "real-money executions require a positive total_money")
	}
}

func checkWeightSum(result *Result, details []DetailSubmission) {
	var sum float64
	for _, d := range details {
		sum += d.WeightPercent
	}
	if len(details) > 0 && (sum < 100-weightTolerance || sum > 100+weightTolerance) {
		reject(result, "WEIGHT_SUM", fmt.Sprintf("detail weights sum to %.4f, want 100 +/- %.2f", sum, weightTolerance))
	}
}

func checkNoDuplicateResults(result *Result, details []DetailSubmission) {
	seen := make(map[uuid.UUID]bool, len(details))
	for _, d := range details {
		if seen[d.ResultID] {
			reject(result, "DUPLICATE_RESULT", fmt.Sprintf("result %s allocated more than once", d.ResultID))
			return
		}
		seen[d.ResultID] = true
	}
}

func checkPositiveWeights(result *Result, details []DetailSubmission) {
	for _, d := range details {
		if d.WeightPercent <= 0 {
			reject(result, "NON_POSITIVE_WEIGHT", fmt.Sprintf("result %s has non-positive weight %.4f", d.ResultID, d.WeightPercent))
		}
	}
}

func reject(result *Result, rule, message string) {
	result.Approved = false
	result.Rejections = append(result.Rejections, RejectionReason{Rule: rule, Message: message})
}
