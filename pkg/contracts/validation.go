package contracts

import (
	"time"
)

// ErrorCategory classifies a validation failure.
type ErrorCategory string

const (
	// CategoryValidation covers domain rules and completeness checks.
	CategoryValidation ErrorCategory = "validation"
	// CategoryTemporal covers timestamps, causal order, and date ranges.
	CategoryTemporal ErrorCategory = "temporal"
	// CategoryConsistency covers cycles, orphan references, and limits.
	CategoryConsistency ErrorCategory = "consistency"
	// CategoryAuthorization is reserved for actor-permission rules.
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryIntegration covers failures reaching external collaborators.
	CategoryIntegration ErrorCategory = "integration"
)

// ValidationError is one failed rule. ViolatedRule names the rule in a
// stable machine-matchable form; Message is for humans.
type ValidationError struct {
	ConstraintID   string         `json:"constraint_id,omitempty"`
	Message        string         `json:"message"`
	ViolatedRule   string         `json:"violated_rule"`
	AffectedHolons []string       `json:"affected_holons,omitempty"`
	Category       ErrorCategory  `json:"category,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Context        map[string]any `json:"context,omitempty"`
}

// ValidationResult is the outcome every engine method that can fail returns.
// Valid iff Errors is empty; warnings never fail a result.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// OK returns a passing result.
func OK() *ValidationResult {
	return &ValidationResult{Valid: true}
}

// Failed returns a failing result carrying the given errors.
func Failed(errs ...ValidationError) *ValidationResult {
	return &ValidationResult{Valid: false, Errors: errs}
}

// AddError appends an error and marks the result invalid.
func (r *ValidationResult) AddError(e ValidationError) {
	r.Errors = append(r.Errors, e)
	r.Valid = false
}

// AddWarning appends a warning without affecting validity.
func (r *ValidationResult) AddWarning(e ValidationError) {
	r.Warnings = append(r.Warnings, e)
}

// Merge folds another result into this one. Validity is the conjunction.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if !other.Valid {
		r.Valid = false
	}
}

// FirstError returns the first error message, or "" for a valid result.
func (r *ValidationResult) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}
