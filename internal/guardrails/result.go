// Package guardrails implements the defensive filtering layer wrapped around
// the hosted model: pattern-based validation of user input before any model
// call, and leakage scanning of model output before it reaches the caller.
//
// All pattern tables are package-level immutable data compiled once at
// process start, so the validators are safe for concurrent use without
// locking.
package guardrails

import "github.com/averla/portfolio-ai-backend/internal/domain"

// Result is the outcome of a guardrail check. It is transient (never
// persisted); the orchestrator consumes it to decide pass/block and the
// security sink shapes violations into incident records.
type Result struct {
	Valid         bool
	Reason        string
	Severity      domain.Severity
	ViolationType domain.ViolationType
}

// Pass returns a passing result.
func Pass() Result {
	return Result{Valid: true}
}

// Block returns a failing result with the given classification.
func Block(reason string, sev domain.Severity, vt domain.ViolationType) Result {
	return Result{Valid: false, Reason: reason, Severity: sev, ViolationType: vt}
}
