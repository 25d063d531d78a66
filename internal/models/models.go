// Package models defines the core data structures for ChartFlow.
//
// It includes the command data model produced by the parsers and the
// workflow/context types shared across modules.
package models

import "errors"

// Action is the verb-like intent of a command.
type Action string

const (
	// ActionSearch looks records up by a filter.
	ActionSearch Action = "search"
	// ActionShow displays records for the active or named patient.
	ActionShow Action = "show"
	// ActionList lists records without a patient filter.
	ActionList Action = "list"
	// ActionAdd creates a new record (e.g. a medication).
	ActionAdd Action = "add"
	// ActionUpdate mutates an existing record.
	ActionUpdate Action = "update"
	// ActionPlot renders a result series.
	ActionPlot Action = "plot"
	// ActionDraft prepares content without committing it.
	ActionDraft Action = "draft"
	// ActionMessage sends a message to a patient.
	ActionMessage Action = "message"
	// ActionSelect picks an entry from the last result set by index.
	ActionSelect Action = "select"
	// ActionHelp shows usage information.
	ActionHelp Action = "help"
	// ActionCheck polls for patient replies.
	ActionCheck Action = "check"
	// ActionAsk sends a question and waits for the reply.
	ActionAsk Action = "ask"
	// ActionFlag flags a patient for follow-up.
	ActionFlag Action = "flag"
	// ActionWorkflow manages conditional workflows.
	ActionWorkflow Action = "workflow"
)

// Resource is the noun-like target of a command.
type Resource string

const (
	ResourcePatient     Resource = "patient"
	ResourceSchedule    Resource = "schedule"
	ResourceAppointment Resource = "appointment"
	ResourceMedication  Resource = "medication"
	ResourceLab         Resource = "lab"
	ResourceNote        Resource = "note"
	ResourceEncounter   Resource = "encounter"
	ResourceSMS         Resource = "sms"
	ResourceResponse    Resource = "response"
	ResourceWorkflow    Resource = "workflow"
	// ResourceUnknown is the lenient default when no rule matches.
	ResourceUnknown Resource = "unknown"
)

// Error variables for better error handling and testability
var (
	ErrEmptyInput         = errors.New("input cannot be empty")
	ErrInvalidIndex       = errors.New("selection index must be >= 1")
	ErrNestedConditional  = errors.New("branch command cannot contain another conditional")
	ErrMissingThenAction  = errors.New("workflow requires a then action")
	ErrUnknownCondition   = errors.New("unknown condition type")
	ErrUnknownAction      = errors.New("unknown workflow action type")
	ErrInvalidTransition  = errors.New("invalid workflow status transition")
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrNoActivePatient    = errors.New("no active patient in context")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrRecordNotFound     = errors.New("record not found")
	ErrInvalidTimeOfDay   = errors.New("invalid time of day")
	ErrInvalidOperator    = errors.New("invalid comparison operator")
	ErrEmptyMessageBody   = errors.New("message body cannot be empty")
	ErrUnknownLabCode     = errors.New("unknown lab test name")
	ErrConversationClosed = errors.New("conversation is closed")
)

// IsValidAction checks if the given action is one of the closed action values.
func IsValidAction(a Action) bool {
	switch a {
	case ActionSearch, ActionShow, ActionList, ActionAdd, ActionUpdate,
		ActionPlot, ActionDraft, ActionMessage, ActionSelect, ActionHelp,
		ActionCheck, ActionAsk, ActionFlag, ActionWorkflow:
		return true
	default:
		return false
	}
}

// IsValidResource checks if the given resource is one of the closed resource values.
func IsValidResource(r Resource) bool {
	switch r {
	case ResourcePatient, ResourceSchedule, ResourceAppointment,
		ResourceMedication, ResourceLab, ResourceNote, ResourceEncounter,
		ResourceSMS, ResourceResponse, ResourceWorkflow, ResourceUnknown:
		return true
	default:
		return false
	}
}

// CommandParams holds the typed parameters extracted from a command string.
// Absent fields are simply unset; extraction failures are non-fatal.
type CommandParams struct {
	PatientID        string `json:"patient_id,omitempty"`
	PatientName      string `json:"patient_name,omitempty"`
	LabCode          string `json:"lab_code,omitempty"`
	MedicationName   string `json:"medication_name,omitempty"`
	TimeRange        string `json:"time_range,omitempty"`        // canonical token, e.g. "1y", "6m", "1w", "1d"
	MessageContent   string `json:"message_content,omitempty"`
	ConversationID   string `json:"conversation_id,omitempty"`
	Index            int    `json:"index,omitempty"`             // 1-based selection index
	UseActivePatient bool   `json:"use_active_patient,omitempty"`
	NewTime          string `json:"new_time,omitempty"`
	Specialty        string `json:"specialty,omitempty"`
	AppointmentID    string `json:"appointment_id,omitempty"`
}

// Command is a single structured clinical command.
//
// Action and Resource are always one of the closed values; unresolved input
// defaults to show/unknown rather than failing.
type Command struct {
	Action   Action              `json:"action"`
	Resource Resource            `json:"resource"`
	Params   CommandParams       `json:"params"`
	Raw      string              `json:"raw"`
	Workflow *WorkflowDescriptor `json:"workflow,omitempty"`
}

// IsConditional reports whether the command carries a workflow descriptor.
func (c *Command) IsConditional() bool {
	return c.Workflow != nil
}

// Validate performs basic validation on a compiled command.
func (c *Command) Validate() error {
	if c.Raw == "" {
		return ErrEmptyInput
	}
	if !IsValidAction(c.Action) {
		return errors.New("invalid action")
	}
	if !IsValidResource(c.Resource) {
		return errors.New("invalid resource")
	}
	if c.Action == ActionSelect && c.Params.Index < 1 {
		return ErrInvalidIndex
	}
	return nil
}
