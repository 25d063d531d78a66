package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/store"
)

func TestResponseHandler_HookReceivesCanonicalNumber(t *testing.T) {
	svc := NewSimulatorService()
	defer svc.Stop()
	rh := NewResponseHandler(svc)

	var gotFrom, gotBody string
	err := rh.RegisterHook("+1 (555) 123-4567", func(ctx context.Context, from, responseText string, timestamp int64) (bool, error) {
		gotFrom = from
		gotBody = responseText
		return true, nil
	})
	if err != nil {
		t.Fatalf("RegisterHook failed: %v", err)
	}
	if !rh.IsHookRegistered("15551234567") {
		t.Error("hook should be registered under the canonical number")
	}

	err = rh.ProcessResponse(context.Background(), models.Response{From: "1-555-123-4567", Body: "yes", Time: 1})
	if err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	if gotFrom != "15551234567" || gotBody != "yes" {
		t.Errorf("hook got %q/%q, want canonical number and body", gotFrom, gotBody)
	}

	// A handled response sends nothing back.
	if sent := svc.SentMessages(); len(sent) != 0 {
		t.Errorf("sent = %+v, want no outbound messages for a handled reply", sent)
	}
}

func TestResponseHandler_DefaultMessageWhenUnhandled(t *testing.T) {
	svc := NewSimulatorService()
	defer svc.Stop()
	rh := NewResponseHandler(svc)

	err := rh.ProcessResponse(context.Background(), models.Response{From: "15551234567", Body: "hello?", Time: 1})
	if err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}

	sent := svc.SentMessages()
	if len(sent) != 1 || sent[0].Body != rh.GetDefaultMessage() {
		t.Errorf("sent = %+v, want the default acknowledgment", sent)
	}
}

func TestResponseHandler_HookErrorSendsApology(t *testing.T) {
	svc := NewSimulatorService()
	defer svc.Stop()
	rh := NewResponseHandler(svc)

	hookErr := errors.New("downstream unavailable")
	if err := rh.RegisterHook("15551234567", func(ctx context.Context, from, responseText string, timestamp int64) (bool, error) {
		return false, hookErr
	}); err != nil {
		t.Fatalf("RegisterHook failed: %v", err)
	}

	err := rh.ProcessResponse(context.Background(), models.Response{From: "15551234567", Body: "yes", Time: 1})
	if !errors.Is(err, hookErr) {
		t.Errorf("error = %v, want the hook failure wrapped", err)
	}

	sent := svc.SentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent = %+v, want an error notice to the patient", sent)
	}
}

func TestResponseHandler_UnregisterHook(t *testing.T) {
	svc := NewSimulatorService()
	defer svc.Stop()
	rh := NewResponseHandler(svc)

	rh.RegisterHook("15551234567", func(ctx context.Context, from, responseText string, timestamp int64) (bool, error) {
		return true, nil
	})
	if rh.GetHookCount() != 1 {
		t.Fatalf("hook count = %d, want 1", rh.GetHookCount())
	}

	if err := rh.UnregisterHook("+1 555 123 4567"); err != nil {
		t.Fatalf("UnregisterHook failed: %v", err)
	}
	if rh.GetHookCount() != 0 {
		t.Errorf("hook count = %d, want 0 after unregister", rh.GetHookCount())
	}
	if rh.IsHookRegistered("15551234567") {
		t.Error("hook should be gone after unregister")
	}
}

func TestResponseHandler_RejectsInvalidRecipient(t *testing.T) {
	svc := NewSimulatorService()
	defer svc.Stop()
	rh := NewResponseHandler(svc)

	if err := rh.RegisterHook("not a number", nil); err == nil {
		t.Error("expected an error for an invalid recipient")
	}
}

// mockResolver stands in for the workflow engine behind a reply hook.
type mockResolver struct {
	recorded []string
	results  []models.ExecutionResult
}

func (m *mockResolver) RecordPatientResponse(patientID, text string) {
	m.recorded = append(m.recorded, patientID+": "+text)
}

func (m *mockResolver) CheckPendingWorkflows(ctx context.Context) []models.ExecutionResult {
	return m.results
}

func TestResponseHandler_ReplyHookResolvesWorkflow(t *testing.T) {
	svc := NewSimulatorService()
	defer svc.Stop()
	rh := NewResponseHandler(svc)
	st := store.NewInMemoryStore()
	st.AddPatient(models.Patient{ID: "p1", Name: "Alice Smith", PhoneNumber: "+1 (555) 123-4567"})
	messenger := NewPatientMessenger(st, svc)
	resolver := &mockResolver{results: []models.ExecutionResult{{Success: true}}}

	if err := rh.RegisterReplyHook(messenger, resolver, "p1"); err != nil {
		t.Fatalf("RegisterReplyHook failed: %v", err)
	}
	if !rh.IsHookRegistered("15551234567") {
		t.Fatal("hook should be registered under the patient's canonical number")
	}

	if err := rh.ProcessResponse(context.Background(), models.Response{From: "1-555-123-4567", Body: "yes that works", Time: 1}); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	if len(resolver.recorded) != 1 || resolver.recorded[0] != "p1: yes that works" {
		t.Errorf("recorded = %v, want the reply recorded for p1", resolver.recorded)
	}
	if rh.IsHookRegistered("15551234567") {
		t.Error("hook should remove itself after resolving a workflow")
	}
	if sent := svc.SentMessages(); len(sent) != 0 {
		t.Errorf("sent = %+v, want no outbound messages for a resolved reply", sent)
	}
}

func TestResponseHandler_ReplyHookStaysWhenNothingResolves(t *testing.T) {
	svc := NewSimulatorService()
	defer svc.Stop()
	rh := NewResponseHandler(svc)
	st := store.NewInMemoryStore()
	st.AddPatient(models.Patient{ID: "p1", Name: "Alice Smith", PhoneNumber: "15551234567"})
	messenger := NewPatientMessenger(st, svc)
	resolver := &mockResolver{}

	if err := rh.RegisterReplyHook(messenger, resolver, "p1"); err != nil {
		t.Fatalf("RegisterReplyHook failed: %v", err)
	}
	if err := rh.ProcessResponse(context.Background(), models.Response{From: "15551234567", Body: "maybe", Time: 1}); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}

	if !rh.IsHookRegistered("15551234567") {
		t.Error("hook should stay registered while its workflow is unresolved")
	}
	sent := svc.SentMessages()
	if len(sent) != 1 || sent[0].Body != rh.GetDefaultMessage() {
		t.Errorf("sent = %+v, want the default acknowledgment", sent)
	}
}

func TestResponseHandler_ReplyHookUnknownPatient(t *testing.T) {
	svc := NewSimulatorService()
	defer svc.Stop()
	rh := NewResponseHandler(svc)
	messenger := NewPatientMessenger(store.NewInMemoryStore(), svc)

	err := rh.RegisterReplyHook(messenger, &mockResolver{}, "ghost")
	if !errors.Is(err, models.ErrPatientNotFound) {
		t.Errorf("error = %v, want ErrPatientNotFound", err)
	}
}
