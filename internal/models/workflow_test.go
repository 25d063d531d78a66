package models

import (
	"errors"
	"testing"
)

func TestWorkflowStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to WorkflowStatus
		want     bool
	}{
		{WorkflowStatusPending, WorkflowStatusReady, true},
		{WorkflowStatusPending, WorkflowStatusCompleted, false},
		{WorkflowStatusPending, WorkflowStatusFailed, false},
		{WorkflowStatusReady, WorkflowStatusCompleted, true},
		{WorkflowStatusReady, WorkflowStatusFailed, true},
		{WorkflowStatusReady, WorkflowStatusPending, false},
		{WorkflowStatusCompleted, WorkflowStatusReady, false},
		{WorkflowStatusCompleted, WorkflowStatusFailed, false},
		{WorkflowStatusFailed, WorkflowStatusReady, false},
		{WorkflowStatusFailed, WorkflowStatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestWorkflowStatus_IsTerminal(t *testing.T) {
	if WorkflowStatusPending.IsTerminal() || WorkflowStatusReady.IsTerminal() {
		t.Error("pending and ready are not terminal")
	}
	if !WorkflowStatusCompleted.IsTerminal() || !WorkflowStatusFailed.IsTerminal() {
		t.Error("completed and failed are terminal")
	}
}

func TestConditionalWorkflow_TransitionToRejectsInvalid(t *testing.T) {
	wf := &ConditionalWorkflow{Status: WorkflowStatusPending}

	if err := wf.TransitionTo(WorkflowStatusCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}
	if wf.Status != WorkflowStatusPending {
		t.Errorf("status = %s, rejected transition must not change status", wf.Status)
	}

	if err := wf.TransitionTo(WorkflowStatusReady); err != nil {
		t.Fatalf("pending -> ready should succeed, got %v", err)
	}
	if err := wf.TransitionTo(WorkflowStatusCompleted); err != nil {
		t.Fatalf("ready -> completed should succeed, got %v", err)
	}
}

func TestComparisonOperator_Compare(t *testing.T) {
	cases := []struct {
		op          ComparisonOperator
		left, right float64
		want        bool
	}{
		{OpGreaterThan, 2.4, 2.0, true},
		{OpGreaterThan, 2.0, 2.0, false},
		{OpLessThan, 1.5, 2.0, true},
		{OpEqual, 2.0, 2.0, true},
		{OpGreaterEqual, 2.0, 2.0, true},
		{OpLessEqual, 2.1, 2.0, false},
	}
	for _, tc := range cases {
		got, err := tc.op.Compare(tc.left, tc.right)
		if err != nil {
			t.Errorf("Compare(%v %s %v) unexpected error: %v", tc.left, tc.op, tc.right, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Compare(%v %s %v) = %v, want %v", tc.left, tc.op, tc.right, got, tc.want)
		}
	}

	if _, err := ComparisonOperator("!=").Compare(1, 2); !errors.Is(err, ErrInvalidOperator) {
		t.Errorf("error = %v, want ErrInvalidOperator", err)
	}
}

func TestConditionalWorkflow_Validate(t *testing.T) {
	wf := &ConditionalWorkflow{
		Condition:  Condition{Type: ConditionLabValue},
		ThenAction: WorkflowAction{Type: WorkflowActionLog},
	}
	if err := wf.Validate(); err != nil {
		t.Errorf("valid workflow rejected: %v", err)
	}

	wf.Condition.Type = "someday"
	if err := wf.Validate(); !errors.Is(err, ErrUnknownCondition) {
		t.Errorf("error = %v, want ErrUnknownCondition", err)
	}

	wf.Condition.Type = ConditionLabValue
	wf.ThenAction.Type = ""
	if err := wf.Validate(); !errors.Is(err, ErrMissingThenAction) {
		t.Errorf("error = %v, want ErrMissingThenAction", err)
	}
}
