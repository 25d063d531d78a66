package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/store"
)

// mockMessenger records outbound patient messages.
type mockMessenger struct {
	mu       sync.Mutex
	sent     []string
	failNext error
}

func (m *mockMessenger) SendPatientMessage(ctx context.Context, patientID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return "", err
	}
	m.sent = append(m.sent, patientID+": "+text)
	return "conv_test", nil
}

func TestEngine_PendingWorkflowLifecycle(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := NewEngine(st, &mockMessenger{})

	cmd, err := CompileWorkflow("ask pt p1 if he wants a refill, if he says yes then add metformin")
	if err != nil {
		t.Fatalf("CompileWorkflow failed: %v", err)
	}

	execCtx := &models.ExecutionContext{ActivePatientID: "p1"}
	wf, err := engine.BuildWorkflow(cmd.Workflow, execCtx)
	if err != nil {
		t.Fatalf("BuildWorkflow failed: %v", err)
	}
	if wf.Status != models.WorkflowStatusPending {
		t.Fatalf("status = %s, want pending", wf.Status)
	}
	if err := engine.SetPendingWorkflow(wf); err != nil {
		t.Fatalf("SetPendingWorkflow failed: %v", err)
	}

	// No reply yet: the scan resolves nothing and the workflow stays pending.
	if results := engine.CheckPendingWorkflows(context.Background()); len(results) != 0 {
		t.Fatalf("expected no resolutions before a reply, got %d", len(results))
	}
	if wf.Status != models.WorkflowStatusPending {
		t.Errorf("status = %s, want pending after empty scan", wf.Status)
	}

	engine.RecordPatientResponse("p1", "Yes please")
	results := engine.CheckPendingWorkflows(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 resolution, got %d", len(results))
	}
	if !results[0].Success || !results[0].ConditionMet {
		t.Errorf("result = %+v, want success with condition met", results[0])
	}
	if results[0].ActionExecuted != models.ActionExecutedThen {
		t.Errorf("executed branch = %s, want then", results[0].ActionExecuted)
	}
	if wf.Status != models.WorkflowStatusCompleted {
		t.Errorf("status = %s, want completed", wf.Status)
	}

	meds, err := st.GetPatientMedications("p1")
	if err != nil {
		t.Fatalf("GetPatientMedications failed: %v", err)
	}
	if len(meds) != 1 || meds[0].Name != "metformin" {
		t.Errorf("medications = %+v, want one metformin order", meds)
	}

	// The reply was consumed; a second scan must not re-resolve anything.
	if results := engine.CheckPendingWorkflows(context.Background()); len(results) != 0 {
		t.Errorf("expected no resolutions on second scan, got %d", len(results))
	}
}

func TestEngine_SetPendingWorkflowRejectsDecidableConditions(t *testing.T) {
	engine := NewEngine(store.NewInMemoryStore(), &mockMessenger{})

	cmd, err := CompileWorkflow("if creatinine > 2.0 then flag for nephrology")
	if err != nil {
		t.Fatalf("CompileWorkflow failed: %v", err)
	}
	wf, err := engine.BuildWorkflow(cmd.Workflow, &models.ExecutionContext{ActivePatientID: "p1"})
	if err != nil {
		t.Fatalf("BuildWorkflow failed: %v", err)
	}
	if wf.Status != models.WorkflowStatusReady {
		t.Fatalf("status = %s, want ready", wf.Status)
	}

	if err := engine.SetPendingWorkflow(wf); err == nil {
		t.Error("a lab_value workflow must not be allowed to pend")
	}
}

func TestEngine_ExecuteWorkflowNoElseIsSuccess(t *testing.T) {
	engine := NewEngine(store.NewInMemoryStore(), &mockMessenger{})

	wf := &models.ConditionalWorkflow{
		ID: "wf_test",
		Condition: models.Condition{
			Type:      models.ConditionLabValue,
			PatientID: "p1",
			LabCode:   "2160-0",
			Operator:  models.OpGreaterThan,
			Value:     2.0,
		},
		ThenAction: models.WorkflowAction{Type: models.WorkflowActionFlagForSpecialty, Specialty: "Nephrology"},
		Status:     models.WorkflowStatusReady,
	}

	result := engine.ExecuteWorkflow(context.Background(), wf, nil)
	if !result.Success {
		t.Errorf("result = %+v, want success", result)
	}
	if result.ConditionMet {
		t.Error("condition should not be met with no lab data")
	}
	if result.ActionExecuted != models.ActionExecutedNone {
		t.Errorf("executed branch = %s, want none", result.ActionExecuted)
	}
}

func TestEngine_ElseBranchSelectedOnNegativeReply(t *testing.T) {
	st := store.NewInMemoryStore()
	messenger := &mockMessenger{}
	engine := NewEngine(st, messenger)

	wf := &models.ConditionalWorkflow{
		ID: "wf_else",
		Condition: models.Condition{
			Type:             models.ConditionPatientResponse,
			PatientID:        "p1",
			ExpectedResponse: "yes",
		},
		ThenAction: models.WorkflowAction{Type: models.WorkflowActionAddMedication, MedicationName: "metformin"},
		ElseAction: &models.WorkflowAction{Type: models.WorkflowActionSendMessage, Message: "no problem, another time"},
		Status:     models.WorkflowStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := engine.SetPendingWorkflow(wf); err != nil {
		t.Fatalf("SetPendingWorkflow failed: %v", err)
	}

	engine.RecordPatientResponse("p1", "no thanks")
	results := engine.CheckPendingWorkflows(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 resolution, got %d", len(results))
	}
	if results[0].ActionExecuted != models.ActionExecutedElse {
		t.Errorf("executed branch = %s, want else", results[0].ActionExecuted)
	}
	if wf.Status != models.WorkflowStatusCompleted {
		t.Errorf("status = %s, want completed", wf.Status)
	}

	messenger.mu.Lock()
	defer messenger.mu.Unlock()
	if len(messenger.sent) != 1 || !strings.Contains(messenger.sent[0], "another time") {
		t.Errorf("sent = %v, want the else-branch message", messenger.sent)
	}
}

func TestEngine_FailedWorkflowRetainedWithError(t *testing.T) {
	messenger := &mockMessenger{failNext: errors.New("carrier rejected message")}
	engine := NewEngine(store.NewInMemoryStore(), messenger)

	wf := &models.ConditionalWorkflow{
		ID: "wf_fail",
		Condition: models.Condition{
			Type:             models.ConditionPatientResponse,
			PatientID:        "p1",
			ExpectedResponse: "yes",
		},
		ThenAction: models.WorkflowAction{Type: models.WorkflowActionSendMessage, Message: "see you then"},
		Status:     models.WorkflowStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := engine.SetPendingWorkflow(wf); err != nil {
		t.Fatalf("SetPendingWorkflow failed: %v", err)
	}

	engine.RecordPatientResponse("p1", "yes")
	results := engine.CheckPendingWorkflows(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 resolution, got %d", len(results))
	}
	if results[0].Success {
		t.Error("result should report the action failure")
	}
	if wf.Status != models.WorkflowStatusFailed {
		t.Errorf("status = %s, want failed", wf.Status)
	}
	if wf.LastError == "" {
		t.Error("failed workflow should retain its error")
	}
	// Failed workflows stay in the store for inspection.
	if engine.PendingWorkflows().Get("wf_fail") == nil {
		t.Error("failed workflow should remain in the store")
	}
}

func TestEngine_CompletedWorkflowRemovedAfterGracePeriod(t *testing.T) {
	engine := NewEngine(store.NewInMemoryStore(), &mockMessenger{}, WithRemovalGracePeriod(10*time.Millisecond))

	wf := &models.ConditionalWorkflow{
		ID: "wf_grace",
		Condition: models.Condition{
			Type:             models.ConditionPatientResponse,
			PatientID:        "p1",
			ExpectedResponse: "any",
		},
		ThenAction: models.WorkflowAction{Type: models.WorkflowActionLog, Text: "acknowledged"},
		Status:     models.WorkflowStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := engine.SetPendingWorkflow(wf); err != nil {
		t.Fatalf("SetPendingWorkflow failed: %v", err)
	}

	engine.RecordPatientResponse("p1", "got it")
	if results := engine.CheckPendingWorkflows(context.Background()); len(results) != 1 {
		t.Fatalf("expected 1 resolution, got %d", len(results))
	}
	if engine.PendingWorkflows().Get("wf_grace") == nil {
		t.Fatal("completed workflow should survive until the grace period elapses")
	}

	deadline := time.Now().Add(2 * time.Second)
	for engine.PendingWorkflows().Get("wf_grace") != nil {
		if time.Now().After(deadline) {
			t.Fatal("completed workflow was not removed after the grace period")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_TerminalStatusNeverRegresses(t *testing.T) {
	wf := &models.ConditionalWorkflow{Status: models.WorkflowStatusCompleted}
	if err := wf.TransitionTo(models.WorkflowStatusPending); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}
	if wf.Status != models.WorkflowStatusCompleted {
		t.Errorf("status = %s, terminal state must not change", wf.Status)
	}
}

func TestEngine_PendingHookFiresOnPark(t *testing.T) {
	st := store.NewInMemoryStore()
	var hooked []string
	engine := NewEngine(st, &mockMessenger{}, WithPendingHook(func(wf *models.ConditionalWorkflow) {
		hooked = append(hooked, wf.Condition.PatientID)
	}))

	wf := &models.ConditionalWorkflow{
		ID: "wf_hook",
		Condition: models.Condition{
			Type:             models.ConditionPatientResponse,
			PatientID:        "5",
			ExpectedResponse: "yes",
		},
		ThenAction: models.WorkflowAction{Type: models.WorkflowActionLog, Text: "ok"},
		Status:     models.WorkflowStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := engine.SetPendingWorkflow(wf); err != nil {
		t.Fatalf("SetPendingWorkflow failed: %v", err)
	}
	if len(hooked) != 1 || hooked[0] != "5" {
		t.Errorf("hook calls = %v, want one for patient 5", hooked)
	}

	// A rejected workflow never reaches the hook.
	bad := &models.ConditionalWorkflow{
		ID:         "wf_bad",
		Condition:  models.Condition{Type: models.ConditionLabValue, LabCode: "2160-0", Operator: models.OpGreaterThan, Value: 2},
		ThenAction: models.WorkflowAction{Type: models.WorkflowActionLog, Text: "ok"},
		Status:     models.WorkflowStatusReady,
		CreatedAt:  time.Now(),
	}
	if err := engine.SetPendingWorkflow(bad); err == nil {
		t.Fatal("expected a rejection for a decidable condition")
	}
	if len(hooked) != 1 {
		t.Errorf("hook calls = %d, want still 1 after a rejected park", len(hooked))
	}
}
