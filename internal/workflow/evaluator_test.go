package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/store"
)

func TestEvaluate_PatientResponseFuzzyYes(t *testing.T) {
	responses := NewResponseRegistry()
	responses.Record("p1", "Yeah sure that works")
	ev := NewEvaluator(store.NewInMemoryStore(), responses)

	cond := models.Condition{
		Type:             models.ConditionPatientResponse,
		PatientID:        "p1",
		ExpectedResponse: "yes",
	}
	if !ev.Evaluate(context.Background(), cond, nil) {
		t.Error("affirmative free-text reply should satisfy expected yes")
	}
}

func TestEvaluate_PatientResponseAbsentIsFalseNotError(t *testing.T) {
	ev := NewEvaluator(store.NewInMemoryStore(), NewResponseRegistry())

	cond := models.Condition{
		Type:             models.ConditionPatientResponse,
		PatientID:        "p1",
		ExpectedResponse: "yes",
	}
	if ev.Evaluate(context.Background(), cond, nil) {
		t.Error("condition should evaluate false when no reply is recorded")
	}
}

func TestEvaluate_PatientResponseNegative(t *testing.T) {
	responses := NewResponseRegistry()
	responses.Record("p1", "nope, cannot make it")
	ev := NewEvaluator(store.NewInMemoryStore(), responses)

	yes := models.Condition{Type: models.ConditionPatientResponse, PatientID: "p1", ExpectedResponse: "yes"}
	no := models.Condition{Type: models.ConditionPatientResponse, PatientID: "p1", ExpectedResponse: "no"}
	if ev.Evaluate(context.Background(), yes, nil) {
		t.Error("negative reply should not satisfy expected yes")
	}
	if !ev.Evaluate(context.Background(), no, nil) {
		t.Error("negative reply should satisfy expected no")
	}
}

func TestMatchesExpectedResponse_Any(t *testing.T) {
	if !MatchesExpectedResponse("whatever", "any") {
		t.Error("any should accept a non-empty reply")
	}
	if MatchesExpectedResponse("", "any") {
		t.Error("any should reject an empty reply")
	}
}

func TestEvaluate_LabValueThreshold(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.AddLabResult(models.LabResult{
		ID:         "lab1",
		PatientID:  "p1",
		Code:       "2160-0",
		Name:       "Creatinine",
		Value:      2.4,
		Unit:       "mg/dL",
		ObservedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AddLabResult failed: %v", err)
	}
	ev := NewEvaluator(st, NewResponseRegistry())

	cond := models.Condition{
		Type:      models.ConditionLabValue,
		PatientID: "p1",
		LabCode:   "2160-0",
		Operator:  models.OpGreaterThan,
		Value:     2.0,
	}
	if !ev.Evaluate(context.Background(), cond, nil) {
		t.Error("2.4 > 2.0 should evaluate true")
	}

	cond.Value = 3.0
	if ev.Evaluate(context.Background(), cond, nil) {
		t.Error("2.4 > 3.0 should evaluate false")
	}
}

func TestEvaluate_LabValueAbsentDataIsFalse(t *testing.T) {
	ev := NewEvaluator(store.NewInMemoryStore(), NewResponseRegistry())

	cond := models.Condition{
		Type:      models.ConditionLabValue,
		PatientID: "p1",
		LabCode:   "2160-0",
		Operator:  models.OpGreaterThan,
		Value:     2.0,
	}
	if ev.Evaluate(context.Background(), cond, nil) {
		t.Error("absent observation should evaluate false, not error")
	}
}

func TestEvaluate_LabValueUsesActivePatientFromContext(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.AddLabResult(models.LabResult{
		ID:         "lab1",
		PatientID:  "p7",
		Code:       "2345-7",
		Name:       "Glucose",
		Value:      250,
		ObservedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AddLabResult failed: %v", err)
	}
	ev := NewEvaluator(st, NewResponseRegistry())

	cond := models.Condition{
		Type:     models.ConditionLabValue,
		LabCode:  "2345-7",
		Operator: models.OpGreaterThan,
		Value:    200,
	}
	execCtx := &models.ExecutionContext{ActivePatientID: "p7"}
	if !ev.Evaluate(context.Background(), cond, execCtx) {
		t.Error("condition should bind the active patient from the context")
	}
}

func TestEvaluate_ResultEmpty(t *testing.T) {
	ev := NewEvaluator(store.NewInMemoryStore(), NewResponseRegistry())
	cond := models.Condition{Type: models.ConditionResultEmpty}

	execCtx := &models.ExecutionContext{}
	execCtx.TrackResults(nil)
	if !ev.Evaluate(context.Background(), cond, execCtx) {
		t.Error("zero tracked results should evaluate true")
	}

	execCtx.TrackResults([]models.ResultRecord{{ID: "m1", Label: "metformin", Kind: "medication"}})
	if ev.Evaluate(context.Background(), cond, execCtx) {
		t.Error("a non-empty tracked result set should evaluate false")
	}
}

func TestEvaluate_ResultCount(t *testing.T) {
	ev := NewEvaluator(store.NewInMemoryStore(), NewResponseRegistry())
	cond := models.Condition{
		Type:     models.ConditionResultCount,
		Operator: models.OpGreaterThan,
		Value:    1,
	}

	// Untracked count never satisfies a count condition.
	if ev.Evaluate(context.Background(), cond, &models.ExecutionContext{}) {
		t.Error("untracked count should evaluate false")
	}

	execCtx := &models.ExecutionContext{}
	execCtx.TrackResults([]models.ResultRecord{
		{ID: "p1", Label: "Alice Smith", Kind: "patient"},
		{ID: "p2", Label: "Bob Smith", Kind: "patient"},
	})
	if !ev.Evaluate(context.Background(), cond, execCtx) {
		t.Error("2 > 1 should evaluate true")
	}
}
