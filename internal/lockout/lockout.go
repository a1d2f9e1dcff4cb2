// Package lockout holds the eligibility arithmetic for dispense lockouts and
// snooze budgets. Snooze counts themselves are stored by callers; this
// package only computes.
package lockout

import (
	"time"

	"github.com/example/dose-scheduler/internal/dosing"
)

// NextEligibleTime returns the first instant a new dispense is permitted
// after an action at lastAction under a lockout of lockoutMinutes. Pure
// addition, no clamping or calendar rounding.
func NextEligibleTime(lastAction time.Time, lockoutMinutes int) time.Time {
	return lastAction.Add(time.Duration(lockoutMinutes) * time.Minute)
}

// Budget evaluates a schedule's snooze policy against an externally tracked
// per-occurrence snooze count.
type Budget struct {
	policy dosing.SnoozePolicy
}

// NewBudget wraps the policy of a schedule.
func NewBudget(policy dosing.SnoozePolicy) Budget {
	return Budget{policy: policy}
}

// Remaining reports how many snoozes are left after used snoozes.
func (b Budget) Remaining(used int) int {
	remaining := b.policy.MaxSnoozes - used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanSnooze reports whether one more snooze is within budget.
func (b Budget) CanSnooze(used int) bool {
	return b.Remaining(used) > 0
}

// NextSnoozeTime returns when a snoozed occurrence comes due again.
func (b Budget) NextSnoozeTime(from time.Time) time.Time {
	return from.Add(time.Duration(b.policy.IntervalMinutes) * time.Minute)
}
