// Package workflow implements the condition evaluator.
//
// Evaluation never raises past the component boundary: missing data (an
// absent lab result, an absent patient reply) evaluates to "not yet true"
// rather than an error. For patient_response conditions a false result must
// not be read as "no" — the pending-store mechanism exists precisely to
// avoid drawing that conclusion prematurely.
package workflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/store"
)

// affirmativeWords is the fixed set recognized as "yes" by fuzzy substring
// membership against the normalized response text.
var affirmativeWords = []string{"yes", "y", "yeah", "yep", "sure", "ok", "okay", "confirmed", "approve", "accept"}

// negativeWords is the symmetric set recognized as "no".
var negativeWords = []string{"no", "n", "nope", "nah", "negative", "cancel", "decline", "deny", "reject"}

// Evaluator decides workflow conditions against the execution context,
// calling out to the data layer only for lab-value conditions.
type Evaluator struct {
	store     store.Store
	responses *ResponseRegistry
}

// NewEvaluator creates a condition evaluator.
func NewEvaluator(st store.Store, responses *ResponseRegistry) *Evaluator {
	return &Evaluator{store: st, responses: responses}
}

// Evaluate returns whether the condition currently holds. It dispatches
// exhaustively over the condition type; unknown types evaluate false.
func (e *Evaluator) Evaluate(ctx context.Context, cond models.Condition, execCtx *models.ExecutionContext) bool {
	switch cond.Type {
	case models.ConditionPatientResponse:
		return e.evaluatePatientResponse(cond, execCtx)
	case models.ConditionLabValue:
		return e.evaluateLabValue(cond, execCtx)
	case models.ConditionResultEmpty:
		return evaluateResultEmpty(execCtx)
	case models.ConditionResultCount:
		return evaluateResultCount(cond, execCtx)
	default:
		slog.Error("Evaluator unknown condition type", "type", cond.Type)
		return false
	}
}

// evaluatePatientResponse checks the latest recorded response for the
// patient. An absent response means the condition is not yet decidable and
// evaluates false.
func (e *Evaluator) evaluatePatientResponse(cond models.Condition, execCtx *models.ExecutionContext) bool {
	text := ""
	if execCtx != nil && execCtx.PatientResponse != "" {
		text = execCtx.PatientResponse
	} else if rec, ok := e.responses.Peek(cond.PatientID); ok {
		text = rec.NormalizedText
	}
	if text == "" {
		slog.Debug("Evaluator no response recorded", "patient_id", cond.PatientID)
		return false
	}

	return MatchesExpectedResponse(text, cond.ExpectedResponse)
}

// MatchesExpectedResponse reports whether a normalized reply satisfies the
// expected response: "yes" and "no" use fuzzy word-set membership checked as
// substring matches; "any" is satisfied by any non-empty response.
func MatchesExpectedResponse(normalized, expected string) bool {
	normalized = strings.ToLower(strings.TrimSpace(normalized))
	switch expected {
	case "yes":
		return containsAnyWord(normalized, affirmativeWords)
	case "no":
		return containsAnyWord(normalized, negativeWords)
	case "any", "":
		return normalized != ""
	default:
		return false
	}
}

func containsAnyWord(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// evaluateLabValue fetches the most recent observation for the code and
// applies the operator. Absent data or a data-layer failure evaluates false.
func (e *Evaluator) evaluateLabValue(cond models.Condition, execCtx *models.ExecutionContext) bool {
	patientID := cond.PatientID
	if patientID == "" && execCtx != nil {
		patientID = execCtx.ActivePatientID
	}
	if patientID == "" {
		slog.Debug("Evaluator lab condition without patient", "lab_code", cond.LabCode)
		return false
	}

	lab, err := e.store.GetLatestLab(patientID, cond.LabCode)
	if err != nil {
		slog.Error("Evaluator lab lookup failed", "error", err, "patient_id", patientID, "lab_code", cond.LabCode)
		return false
	}
	if lab == nil {
		slog.Debug("Evaluator no lab observation", "patient_id", patientID, "lab_code", cond.LabCode)
		return false
	}

	met, err := cond.Operator.Compare(lab.Value, cond.Value)
	if err != nil {
		slog.Error("Evaluator comparison failed", "error", err, "operator", cond.Operator)
		return false
	}
	return met
}

// evaluateResultEmpty is true iff the tracked result count is exactly zero,
// or (if no count was tracked) the tracked result set is nil or empty.
func evaluateResultEmpty(execCtx *models.ExecutionContext) bool {
	if execCtx == nil {
		return true
	}
	if execCtx.LastResultCount != nil {
		return *execCtx.LastResultCount == 0
	}
	return len(execCtx.LastResultSet) == 0
}

// evaluateResultCount compares the tracked count against the threshold.
// An untracked count evaluates false.
func evaluateResultCount(cond models.Condition, execCtx *models.ExecutionContext) bool {
	if execCtx == nil || execCtx.LastResultCount == nil {
		return false
	}
	met, err := cond.Operator.Compare(float64(*execCtx.LastResultCount), cond.Value)
	if err != nil {
		slog.Error("Evaluator comparison failed", "error", err, "operator", cond.Operator)
		return false
	}
	return met
}
