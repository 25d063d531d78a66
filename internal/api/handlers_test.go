package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/exec"
	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/session"
	"github.com/BTreeMap/ChartFlow/internal/store"
	"github.com/BTreeMap/ChartFlow/internal/workflow"
)

// mockMessenger records outbound patient messages.
type mockMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *mockMessenger) SendPatientMessage(ctx context.Context, patientID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, patientID+": "+text)
	return "conv_test", nil
}

func newTestServer(st *store.InMemoryStore) (*Server, *workflow.Engine) {
	messenger := &mockMessenger{}
	engine := workflow.NewEngine(st, messenger)
	runner := exec.NewRunner(st, session.New(), engine, messenger)
	return NewServer(runner, engine), engine
}

func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestCommandsHandler_ExecutesChain(t *testing.T) {
	st := store.NewInMemoryStore()
	st.AddPatient(models.Patient{ID: "p1", Name: "Alice Smith"})
	s, _ := newTestServer(st)

	rec := postJSON(t, s, "/commands", `{"input":"find patients named Smith"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestCommandsHandler_BadJSON(t *testing.T) {
	s, _ := newTestServer(store.NewInMemoryStore())

	rec := postJSON(t, s, "/commands", `{"input":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCommandsHandler_InvalidIndexIsBadRequest(t *testing.T) {
	s, _ := newTestServer(store.NewInMemoryStore())

	rec := postJSON(t, s, "/commands", `{"input":"select 0"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body %s", rec.Code, rec.Body.String())
	}
}

func TestCommandsHandler_EmptyInputIsNoOp(t *testing.T) {
	s, _ := newTestServer(store.NewInMemoryStore())

	rec := postJSON(t, s, "/commands", `{"input":"  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Message != "nothing to do" {
		t.Errorf("message = %q, want nothing to do", resp.Message)
	}
}

func TestCommandsHandler_PendingWorkflowIsAccepted(t *testing.T) {
	st := store.NewInMemoryStore()
	st.AddPatient(models.Patient{ID: "5", Name: "Dan Lee"})
	s, _ := newTestServer(st)

	rec := postJSON(t, s, "/commands", `{"input":"ask pt 5 if he wants a refill, if he says yes then add metformin"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Status != string(models.APIStatusPending) {
		t.Errorf("status = %q, want pending", resp.Status)
	}
}

func TestCommandsHandler_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(store.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/commands", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestResponsesHandler_RecordsAndResolves(t *testing.T) {
	st := store.NewInMemoryStore()
	st.AddPatient(models.Patient{ID: "5", Name: "Dan Lee"})
	s, engine := newTestServer(st)

	// No pending workflow: the reply is recorded only.
	rec := postJSON(t, s, "/responses", `{"patient_id":"5","body":"yes"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status != string(models.APIStatusRecorded) {
		t.Errorf("status = %q, want recorded", resp.Status)
	}

	// Park a workflow, then the next reply resolves it.
	wf := &models.ConditionalWorkflow{
		ID: "wf_api",
		Condition: models.Condition{
			Type:             models.ConditionPatientResponse,
			PatientID:        "5",
			ExpectedResponse: "yes",
		},
		ThenAction: models.WorkflowAction{Type: models.WorkflowActionAddMedication, MedicationName: "metformin"},
		Status:     models.WorkflowStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := engine.SetPendingWorkflow(wf); err != nil {
		t.Fatalf("SetPendingWorkflow failed: %v", err)
	}

	rec = postJSON(t, s, "/responses", `{"patient_id":"5","body":"yes please"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status != string(models.APIStatusOK) {
		t.Errorf("status = %q, want ok with resolutions", resp.Status)
	}

	meds, _ := st.GetPatientMedications("5")
	if len(meds) != 1 || meds[0].Name != "metformin" {
		t.Errorf("medications = %+v, want the resolved workflow's order", meds)
	}
}

func TestResponsesHandler_RequiresFields(t *testing.T) {
	s, _ := newTestServer(store.NewInMemoryStore())

	rec := postJSON(t, s, "/responses", `{"patient_id":"","body":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWorkflowsHandler_ListsParked(t *testing.T) {
	st := store.NewInMemoryStore()
	st.AddPatient(models.Patient{ID: "5", Name: "Dan Lee"})
	s, engine := newTestServer(st)

	wf := &models.ConditionalWorkflow{
		ID: "wf_list",
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

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wf_list") {
		t.Errorf("body = %s, want the parked workflow listed", rec.Body.String())
	}
}

func TestPreviewHandler_DryRunDoesNotExecute(t *testing.T) {
	st := store.NewInMemoryStore()
	st.AddPatient(models.Patient{ID: "p1", Name: "Alice Smith"})
	s, _ := newTestServer(st)

	rec := postJSON(t, s, "/commands/preview", `{"input":"add metformin for pt p1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	// Preview compiles only; nothing is written.
	meds, _ := st.GetPatientMedications("p1")
	if len(meds) != 0 {
		t.Errorf("medications = %+v, preview must not execute", meds)
	}
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(store.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("body = %s, want healthy", rec.Body.String())
	}
}
