package exec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/session"
	"github.com/BTreeMap/ChartFlow/internal/store"
	"github.com/BTreeMap/ChartFlow/internal/workflow"
)

// CommandResult is the outcome of one executed command in a chain.
type CommandResult struct {
	Command    models.Command        `json:"command"`
	Message    string                `json:"message"`
	Records    []models.ResultRecord `json:"records,omitempty"`
	WorkflowID string                `json:"workflow_id,omitempty"`
	Pending    bool                  `json:"pending,omitempty"`
}

// Runner executes command chains strictly in order. Each step's outcome is
// folded into the execution context before the next step runs; the chain
// aborts at the first step error with no rollback of earlier effects.
type Runner struct {
	store     store.Store
	session   *session.Session
	engine    *workflow.Engine
	messenger workflow.Messenger
}

// NewRunner creates a chain runner over the shared collaborators.
func NewRunner(st store.Store, sess *session.Session, engine *workflow.Engine, messenger workflow.Messenger) *Runner {
	return &Runner{store: st, session: sess, engine: engine, messenger: messenger}
}

// Run interprets the input and executes the resulting chain. Empty input
// yields nil results with no error. Results for completed steps are returned
// even when a later step fails.
func (r *Runner) Run(ctx context.Context, input string) ([]CommandResult, error) {
	cmds, err := Interpret(input)
	if err != nil {
		return nil, err
	}
	if len(cmds) == 0 {
		return nil, nil
	}

	execCtx := r.newExecContext()
	defer r.foldBack(execCtx)

	var results []CommandResult
	for i, cmd := range cmds {
		res, err := r.runCommand(ctx, cmd, execCtx)
		if err != nil {
			slog.Error("Runner chain aborted", "error", err, "step", i+1, "raw", cmd.Raw)
			return results, fmt.Errorf("step %d (%q): %w", i+1, cmd.Raw, err)
		}
		results = append(results, res)
	}

	slog.Debug("Runner chain completed", "steps", len(results))
	return results, nil
}

// newExecContext seeds a per-chain context from the session so pronoun and
// index references work across independent inputs.
func (r *Runner) newExecContext() *models.ExecutionContext {
	execCtx := &models.ExecutionContext{}
	if r.session != nil {
		execCtx.ActivePatientID, execCtx.ActivePatientName = r.session.GetActivePatient()
		if last := r.session.LastResults(); len(last) > 0 {
			execCtx.LastResultSet = last
		}
	}
	return execCtx
}

// foldBack persists the chain's final context into the session.
func (r *Runner) foldBack(execCtx *models.ExecutionContext) {
	if r.session == nil {
		return
	}
	if execCtx.ActivePatientID != "" {
		r.session.SetActivePatient(execCtx.ActivePatientID, execCtx.ActivePatientName)
	}
	if execCtx.LastResultCount != nil {
		r.session.SetLastResults(execCtx.LastResultSet)
	}
}

// runCommand routes one command: conditionals go through the workflow
// engine, everything else through the plain action switch.
func (r *Runner) runCommand(ctx context.Context, cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	if cmd.IsConditional() {
		return r.runConditional(ctx, cmd, execCtx)
	}
	return r.runPlain(ctx, cmd, execCtx)
}

// runConditional builds a workflow from the command's descriptor. Workflows
// with a synchronously decidable condition execute immediately; a
// patient_response workflow sends its question and parks in the pending
// store until the reply arrives.
func (r *Runner) runConditional(ctx context.Context, cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	// An explicit patient reference in the base clause, by ID or by name,
	// becomes the workflow's bound patient.
	if cmd.Params.PatientID != "" || cmd.Params.PatientName != "" {
		patientID, err := r.resolvePatientID(cmd, execCtx)
		if err != nil {
			return CommandResult{}, err
		}
		execCtx.ActivePatientID = patientID
		if patient, err := r.store.GetPatient(patientID); err == nil && patient != nil {
			execCtx.ActivePatientName = patient.Name
		}
	}

	// Result-driven conditions need the base command's results tracked
	// before evaluation.
	desc := cmd.Workflow
	if (desc.ConditionType == models.ConditionResultEmpty || desc.ConditionType == models.ConditionResultCount) &&
		cmd.Action != models.ActionWorkflow {
		base := cmd
		base.Workflow = nil
		if _, err := r.runPlain(ctx, base, execCtx); err != nil {
			return CommandResult{}, err
		}
	}

	wf, err := r.engine.BuildWorkflow(desc, execCtx)
	if err != nil {
		return CommandResult{}, err
	}

	if wf.Status == models.WorkflowStatusPending {
		return r.parkPendingWorkflow(ctx, cmd, wf, execCtx)
	}

	result := r.engine.ExecuteWorkflow(ctx, wf, execCtx)
	if !result.Success {
		return CommandResult{}, fmt.Errorf("workflow %s failed: %s", wf.ID, result.Error)
	}
	return CommandResult{Command: cmd, Message: result.Message, WorkflowID: wf.ID}, nil
}

// parkPendingWorkflow sends the question to the patient and registers the
// workflow to be resolved when the reply arrives.
func (r *Runner) parkPendingWorkflow(ctx context.Context, cmd models.Command, wf *models.ConditionalWorkflow, execCtx *models.ExecutionContext) (CommandResult, error) {
	question := cmd.Workflow.AskMessage
	if question == "" {
		question = cmd.Params.MessageContent
	}
	if question == "" {
		question = "Please reply yes or no."
	}

	patientID := wf.Condition.PatientID
	if patientID == "" {
		return CommandResult{}, models.ErrNoActivePatient
	}

	if _, err := r.messenger.SendPatientMessage(ctx, patientID, question); err != nil {
		return CommandResult{}, err
	}
	if err := r.engine.SetPendingWorkflow(wf); err != nil {
		return CommandResult{}, err
	}

	slog.Info("Runner workflow parked pending reply", "workflow_id", wf.ID, "patient_id", patientID)
	return CommandResult{
		Command:    cmd,
		Message:    fmt.Sprintf("asked patient %s, awaiting reply (workflow %s)", patientID, wf.ID),
		WorkflowID: wf.ID,
		Pending:    true,
	}, nil
}
