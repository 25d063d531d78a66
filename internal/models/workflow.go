// Package models defines workflow structures for ChartFlow conditional commands.
package models

import (
	"fmt"
	"time"
)

// ConditionType identifies how a workflow condition is decided.
type ConditionType string

const (
	// ConditionPatientResponse waits for a patient's asynchronous reply.
	ConditionPatientResponse ConditionType = "patient_response"
	// ConditionLabValue compares the most recent lab observation to a threshold.
	ConditionLabValue ConditionType = "lab_value"
	// ConditionResultEmpty is true when the tracked result set is empty.
	ConditionResultEmpty ConditionType = "result_empty"
	// ConditionResultCount compares the tracked result count to a threshold.
	ConditionResultCount ConditionType = "result_count"
)

// IsValidConditionType checks if the given condition type is supported.
func IsValidConditionType(ct ConditionType) bool {
	switch ct {
	case ConditionPatientResponse, ConditionLabValue, ConditionResultEmpty, ConditionResultCount:
		return true
	default:
		return false
	}
}

// ComparisonOperator is a numeric comparison used by lab and count conditions.
type ComparisonOperator string

const (
	OpGreaterThan  ComparisonOperator = ">"
	OpLessThan     ComparisonOperator = "<"
	OpEqual        ComparisonOperator = "="
	OpGreaterEqual ComparisonOperator = ">="
	OpLessEqual    ComparisonOperator = "<="
)

// Compare applies the operator to the given operands.
func (op ComparisonOperator) Compare(left, right float64) (bool, error) {
	switch op {
	case OpGreaterThan:
		return left > right, nil
	case OpLessThan:
		return left < right, nil
	case OpEqual:
		return left == right, nil
	case OpGreaterEqual:
		return left >= right, nil
	case OpLessEqual:
		return left <= right, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidOperator, string(op))
	}
}

// Condition is the tagged variant evaluated by the workflow engine.
// The fields used depend on Type; the evaluator dispatches exhaustively.
type Condition struct {
	Type ConditionType `json:"type"`

	// ConditionPatientResponse
	PatientID        string `json:"patient_id,omitempty"`
	ExpectedResponse string `json:"expected_response,omitempty"` // "yes", "no" or "any"

	// ConditionLabValue
	LabCode string `json:"lab_code,omitempty"`

	// ConditionLabValue and ConditionResultCount
	Operator ComparisonOperator `json:"operator,omitempty"`
	Value    float64            `json:"value,omitempty"`
}

// WorkflowActionType identifies what a workflow branch does when selected.
type WorkflowActionType string

const (
	WorkflowActionReschedule       WorkflowActionType = "reschedule"
	WorkflowActionFlagForSpecialty WorkflowActionType = "flag_for_specialty"
	WorkflowActionAddMedication    WorkflowActionType = "add_medication"
	WorkflowActionShowMedications  WorkflowActionType = "show_medications"
	WorkflowActionShowLabs         WorkflowActionType = "show_labs"
	WorkflowActionSendMessage      WorkflowActionType = "send_message"
	WorkflowActionCreateNote       WorkflowActionType = "create_note"
	// WorkflowActionLog records the literal branch text without side effects.
	// It is the fallback that guarantees every branch compiles to something
	// executable.
	WorkflowActionLog WorkflowActionType = "log"
)

// WorkflowAction is the tagged variant executed by the action dispatcher.
type WorkflowAction struct {
	Type WorkflowActionType `json:"type"`

	PatientID      string `json:"patient_id,omitempty"`
	AppointmentID  string `json:"appointment_id,omitempty"`
	NewTime        string `json:"new_time,omitempty"` // RFC3339 for reschedule
	Specialty      string `json:"specialty,omitempty"`
	MedicationName string `json:"medication_name,omitempty"`
	Message        string `json:"message,omitempty"`
	NoteContent    string `json:"note_content,omitempty"`
	Text           string `json:"text,omitempty"` // literal branch text for log actions
}

// WorkflowDescriptor is the parse-time product of the workflow compiler.
// It is consumed to build a ConditionalWorkflow.
type WorkflowDescriptor struct {
	ConditionType    ConditionType      `json:"condition_type"`
	ExpectedResponse string             `json:"expected_response,omitempty"`
	LabCode          string             `json:"lab_code,omitempty"`
	Operator         ComparisonOperator `json:"operator,omitempty"`
	Value            float64            `json:"value,omitempty"`
	ThenCommand      string             `json:"then_command"`
	ElseCommand      string             `json:"else_command,omitempty"`
	AskMessage       string             `json:"ask_message,omitempty"`
}

// WorkflowStatus represents the lifecycle state of a conditional workflow.
type WorkflowStatus string

const (
	// WorkflowStatusPending means the condition is not yet decidable.
	WorkflowStatusPending WorkflowStatus = "pending"
	// WorkflowStatusReady means the workflow is about to be evaluated.
	WorkflowStatusReady WorkflowStatus = "ready"
	// WorkflowStatusCompleted is terminal: the workflow was executed.
	WorkflowStatusCompleted WorkflowStatus = "completed"
	// WorkflowStatusFailed is terminal: evaluation or execution failed.
	WorkflowStatusFailed WorkflowStatus = "failed"
)

// CanTransitionTo reports whether moving to the target status is allowed.
// Transitions are monotonic and one-directional:
// pending -> ready -> completed|failed.
func (s WorkflowStatus) CanTransitionTo(target WorkflowStatus) bool {
	switch s {
	case WorkflowStatusPending:
		return target == WorkflowStatusReady
	case WorkflowStatusReady:
		return target == WorkflowStatusCompleted || target == WorkflowStatusFailed
	default:
		// completed and failed are terminal
		return false
	}
}

// IsTerminal reports whether the status is a terminal state.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}

// ConditionalWorkflow couples a condition with one or two actions.
// ThenAction is mandatory; ElseAction is optional.
type ConditionalWorkflow struct {
	ID          string          `json:"id"`
	Condition   Condition       `json:"condition"`
	ThenAction  WorkflowAction  `json:"then_action"`
	ElseAction  *WorkflowAction `json:"else_action,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Status      WorkflowStatus  `json:"status"`
	LastError   string          `json:"last_error,omitempty"`
}

// TransitionTo moves the workflow to the target status, enforcing the
// monotonic lifecycle. Terminal states never regress.
func (w *ConditionalWorkflow) TransitionTo(target WorkflowStatus) error {
	if !w.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, target)
	}
	w.Status = target
	return nil
}

// Validate checks structural invariants of a workflow.
func (w *ConditionalWorkflow) Validate() error {
	if !IsValidConditionType(w.Condition.Type) {
		return ErrUnknownCondition
	}
	if w.ThenAction.Type == "" {
		return ErrMissingThenAction
	}
	return nil
}

// ActionExecuted reports which branch of a workflow ran.
type ActionExecuted string

const (
	ActionExecutedThen ActionExecuted = "then"
	ActionExecutedElse ActionExecuted = "else"
	ActionExecutedNone ActionExecuted = "none"
)

// ExecutionResult is the structured outcome of dispatching a workflow.
// Collaborator failures are reported here, never raised past the engine.
type ExecutionResult struct {
	Success        bool           `json:"success"`
	ConditionMet   bool           `json:"condition_met"`
	ActionExecuted ActionExecuted `json:"action_executed"`
	Message        string         `json:"message,omitempty"`
	Error          string         `json:"error,omitempty"`
}
