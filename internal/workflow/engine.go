// Package workflow implements the workflow engine: the public surface tying
// together the compiler, evaluator, dispatcher, pending-workflow store and
// patient-response registry.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/store"
	"github.com/BTreeMap/ChartFlow/internal/util"
)

// DefaultRemovalGracePeriod is how long a completed workflow stays in the
// store before removal, giving callers a window to inspect the outcome.
const DefaultRemovalGracePeriod = 30 * time.Second

// Engine owns the workflow state machine. The pending store and response
// registry are engine-owned (dependency-injected, never global) so multiple
// independent engines can run without shared state.
type Engine struct {
	store       store.Store
	evaluator   *Evaluator
	dispatcher  *Dispatcher
	pending     *PendingStore
	responses   *ResponseRegistry
	timer       *SimpleTimer
	gracePeriod time.Duration
	pendingHook func(*models.ConditionalWorkflow)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRemovalGracePeriod overrides the cleanup delay for completed workflows.
func WithRemovalGracePeriod(d time.Duration) EngineOption {
	return func(e *Engine) { e.gracePeriod = d }
}

// WithPendingHook registers a callback invoked each time a workflow is
// parked in the pending store. The wiring layer uses it to route the bound
// patient's next inbound reply back into the engine.
func WithPendingHook(hook func(*models.ConditionalWorkflow)) EngineOption {
	return func(e *Engine) { e.pendingHook = hook }
}

// NewEngine creates a workflow engine with isolated pending and response
// registries.
func NewEngine(st store.Store, messenger Messenger, opts ...EngineOption) *Engine {
	responses := NewResponseRegistry()
	e := &Engine{
		store:       st,
		responses:   responses,
		evaluator:   NewEvaluator(st, responses),
		dispatcher:  NewDispatcher(st, messenger),
		pending:     NewPendingStore(),
		timer:       NewSimpleTimer(),
		gracePeriod: DefaultRemovalGracePeriod,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PendingWorkflows returns the engine's pending-workflow store.
func (e *Engine) PendingWorkflows() *PendingStore {
	return e.pending
}

// BuildWorkflow turns a parse-time descriptor into a conditional workflow,
// binding the active patient from the execution context. A workflow with a
// patient_response condition is always created pending; every other kind is
// created ready since its condition is decidable synchronously.
func (e *Engine) BuildWorkflow(desc *models.WorkflowDescriptor, execCtx *models.ExecutionContext) (*models.ConditionalWorkflow, error) {
	if desc == nil {
		return nil, fmt.Errorf("workflow descriptor cannot be nil")
	}
	if desc.ThenCommand == "" {
		return nil, models.ErrMissingThenAction
	}

	cond := models.Condition{
		Type:             desc.ConditionType,
		ExpectedResponse: desc.ExpectedResponse,
		LabCode:          desc.LabCode,
		Operator:         desc.Operator,
		Value:            desc.Value,
	}
	if execCtx != nil {
		cond.PatientID = execCtx.ActivePatientID
	}

	wf := &models.ConditionalWorkflow{
		ID:          util.GenerateWorkflowID(),
		Condition:   cond,
		ThenAction:  CompileBranchAction(desc.ThenCommand),
		Description: describeWorkflow(desc),
		CreatedAt:   time.Now(),
		Status:      models.WorkflowStatusReady,
	}
	if desc.ElseCommand != "" {
		elseAction := CompileBranchAction(desc.ElseCommand)
		wf.ElseAction = &elseAction
	}
	if desc.ConditionType == models.ConditionPatientResponse {
		wf.Status = models.WorkflowStatusPending
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("Engine built workflow", "id", wf.ID, "condition_type", cond.Type, "status", wf.Status)
	return wf, nil
}

// EvaluateCondition decides a condition against the execution context.
func (e *Engine) EvaluateCondition(ctx context.Context, cond models.Condition, execCtx *models.ExecutionContext) bool {
	return e.evaluator.Evaluate(ctx, cond, execCtx)
}

// ExecuteAction runs a single workflow action against the collaborators.
func (e *Engine) ExecuteAction(ctx context.Context, action models.WorkflowAction, execCtx *models.ExecutionContext) (string, error) {
	return e.dispatcher.Execute(ctx, action, execCtx)
}

// ExecuteWorkflow evaluates the workflow's condition, selects the then
// branch if true, the else branch if false (or no action when absent),
// executes the selected action, and reports the structured outcome.
// Collaborator failures are reported in the result, never raised.
func (e *Engine) ExecuteWorkflow(ctx context.Context, wf *models.ConditionalWorkflow, execCtx *models.ExecutionContext) models.ExecutionResult {
	conditionMet := e.evaluator.Evaluate(ctx, wf.Condition, execCtx)

	var action *models.WorkflowAction
	executed := models.ActionExecutedNone
	if conditionMet {
		action = &wf.ThenAction
		executed = models.ActionExecutedThen
	} else if wf.ElseAction != nil {
		action = wf.ElseAction
		executed = models.ActionExecutedElse
	}

	if action == nil {
		return models.ExecutionResult{
			Success:        true,
			ConditionMet:   conditionMet,
			ActionExecuted: models.ActionExecutedNone,
			Message:        "condition not met and no else action",
		}
	}

	message, err := e.dispatcher.Execute(ctx, *action, execCtx)
	if err != nil {
		slog.Error("Engine workflow action failed", "error", err, "workflow_id", wf.ID, "branch", executed)
		return models.ExecutionResult{
			Success:        false,
			ConditionMet:   conditionMet,
			ActionExecuted: executed,
			Error:          err.Error(),
		}
	}

	slog.Info("Engine workflow executed", "workflow_id", wf.ID, "condition_met", conditionMet, "branch", executed)
	return models.ExecutionResult{
		Success:        true,
		ConditionMet:   conditionMet,
		ActionExecuted: executed,
		Message:        message,
	}
}

// SetPendingWorkflow places a workflow in the pending store. Only
// patient_response workflows belong there; every other condition type is
// decidable synchronously and must be executed immediately instead.
func (e *Engine) SetPendingWorkflow(wf *models.ConditionalWorkflow) error {
	if wf.Condition.Type != models.ConditionPatientResponse {
		return fmt.Errorf("only patient_response workflows can pend, got %s", wf.Condition.Type)
	}
	if wf.Status != models.WorkflowStatusPending {
		return fmt.Errorf("%w: workflow %s is %s, expected pending", models.ErrInvalidTransition, wf.ID, wf.Status)
	}
	e.pending.Add(wf)
	slog.Info("Engine workflow pending", "workflow_id", wf.ID, "patient_id", wf.Condition.PatientID)
	if e.pendingHook != nil {
		e.pendingHook(wf)
	}
	return nil
}

// RecordPatientResponse stores the latest reply for a patient. The newest
// message overwrites any previous one.
func (e *Engine) RecordPatientResponse(patientID, text string) {
	e.responses.Record(patientID, text)
	slog.Info("Engine recorded patient response", "patient_id", patientID, "body_length", len(text))
}

// CheckPendingWorkflows scans the store for pending workflows whose
// condition can now be evaluated (a response has arrived for the patient),
// transitions them through ready to a terminal state, and schedules removal
// of completed workflows after a grace period. Failed workflows are retained
// for diagnostic inspection and are not auto-retried. A failure in one
// workflow never affects the others in the same scan.
func (e *Engine) CheckPendingWorkflows(ctx context.Context) []models.ExecutionResult {
	var results []models.ExecutionResult

	for _, wf := range e.pending.ListPending() {
		rec, ok := e.responses.Peek(wf.Condition.PatientID)
		if !ok {
			continue
		}

		result := e.resolvePendingWorkflow(ctx, wf, rec)
		results = append(results, result)
	}

	return results
}

// resolvePendingWorkflow drives one pending workflow to a terminal state.
// The patient's response is consumed and cleared in the process.
func (e *Engine) resolvePendingWorkflow(ctx context.Context, wf *models.ConditionalWorkflow, rec models.PatientResponseRecord) models.ExecutionResult {
	if err := wf.TransitionTo(models.WorkflowStatusReady); err != nil {
		slog.Error("Engine pending workflow transition failed", "error", err, "workflow_id", wf.ID)
		return models.ExecutionResult{Success: false, ActionExecuted: models.ActionExecutedNone, Error: err.Error()}
	}

	e.responses.Consume(wf.Condition.PatientID)
	execCtx := &models.ExecutionContext{
		ActivePatientID: wf.Condition.PatientID,
		PatientResponse: rec.NormalizedText,
	}

	result := e.ExecuteWorkflow(ctx, wf, execCtx)
	if result.Success {
		if err := wf.TransitionTo(models.WorkflowStatusCompleted); err != nil {
			slog.Error("Engine completion transition failed", "error", err, "workflow_id", wf.ID)
		}
		e.scheduleRemoval(wf.ID)
	} else {
		if err := wf.TransitionTo(models.WorkflowStatusFailed); err != nil {
			slog.Error("Engine failure transition failed", "error", err, "workflow_id", wf.ID)
		}
		wf.LastError = result.Error
	}

	slog.Info("Engine pending workflow resolved", "workflow_id", wf.ID, "status", wf.Status, "condition_met", result.ConditionMet)
	return result
}

// scheduleRemoval removes a completed workflow from the store after the
// grace period.
func (e *Engine) scheduleRemoval(workflowID string) {
	_, err := e.timer.ScheduleAfter(e.gracePeriod, func() {
		e.pending.Remove(workflowID)
		slog.Debug("Engine removed completed workflow", "workflow_id", workflowID)
	})
	if err != nil {
		slog.Error("Engine failed to schedule workflow removal", "error", err, "workflow_id", workflowID)
	}
}

// describeWorkflow builds a short human-readable description for listings.
func describeWorkflow(desc *models.WorkflowDescriptor) string {
	switch desc.ConditionType {
	case models.ConditionPatientResponse:
		return fmt.Sprintf("if patient responds %s: %s", desc.ExpectedResponse, desc.ThenCommand)
	case models.ConditionLabValue:
		return fmt.Sprintf("if lab %s %s %g: %s", desc.LabCode, desc.Operator, desc.Value, desc.ThenCommand)
	case models.ConditionResultEmpty:
		return fmt.Sprintf("if no results: %s", desc.ThenCommand)
	case models.ConditionResultCount:
		return fmt.Sprintf("if result count %s %g: %s", desc.Operator, desc.Value, desc.ThenCommand)
	default:
		return desc.ThenCommand
	}
}
