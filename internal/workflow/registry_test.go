package workflow

import (
	"testing"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

func TestResponseRegistry_RecordNormalizes(t *testing.T) {
	rr := NewResponseRegistry()
	rr.Record("p1", "  YES Please  ")

	rec, ok := rr.Peek("p1")
	if !ok {
		t.Fatal("expected a recorded response")
	}
	if rec.NormalizedText != "yes please" {
		t.Errorf("normalized text = %q, want %q", rec.NormalizedText, "yes please")
	}
	if rec.PatientID != "p1" {
		t.Errorf("patient ID = %q, want p1", rec.PatientID)
	}
}

func TestResponseRegistry_NewestReplyWins(t *testing.T) {
	rr := NewResponseRegistry()
	rr.Record("p1", "no")
	rr.Record("p1", "actually yes")

	rec, ok := rr.Peek("p1")
	if !ok {
		t.Fatal("expected a recorded response")
	}
	if rec.NormalizedText != "actually yes" {
		t.Errorf("normalized text = %q, newest reply should overwrite", rec.NormalizedText)
	}
}

func TestResponseRegistry_PeekDoesNotConsume(t *testing.T) {
	rr := NewResponseRegistry()
	rr.Record("p1", "yes")

	if _, ok := rr.Peek("p1"); !ok {
		t.Fatal("Peek should find the record")
	}
	if _, ok := rr.Peek("p1"); !ok {
		t.Error("Peek must not consume the record")
	}

	if _, ok := rr.Consume("p1"); !ok {
		t.Fatal("Consume should find the record")
	}
	if _, ok := rr.Peek("p1"); ok {
		t.Error("Consume should clear the record")
	}
	if _, ok := rr.Consume("p1"); ok {
		t.Error("second Consume should find nothing")
	}
}

func TestPendingStore_ListOrderedByCreation(t *testing.T) {
	ps := NewPendingStore()
	base := time.Now()
	ps.Add(&models.ConditionalWorkflow{ID: "wf_b", CreatedAt: base.Add(time.Second), Status: models.WorkflowStatusPending})
	ps.Add(&models.ConditionalWorkflow{ID: "wf_a", CreatedAt: base, Status: models.WorkflowStatusPending})
	ps.Add(&models.ConditionalWorkflow{ID: "wf_c", CreatedAt: base.Add(2 * time.Second), Status: models.WorkflowStatusCompleted})

	list := ps.List()
	if len(list) != 3 {
		t.Fatalf("List returned %d workflows, want 3", len(list))
	}
	if list[0].ID != "wf_a" || list[1].ID != "wf_b" || list[2].ID != "wf_c" {
		t.Errorf("order = %s, %s, %s; want wf_a, wf_b, wf_c", list[0].ID, list[1].ID, list[2].ID)
	}

	pending := ps.ListPending()
	if len(pending) != 2 {
		t.Fatalf("ListPending returned %d workflows, want 2", len(pending))
	}
	if pending[0].ID != "wf_a" || pending[1].ID != "wf_b" {
		t.Errorf("pending order = %s, %s; want wf_a, wf_b", pending[0].ID, pending[1].ID)
	}
}

func TestPendingStore_AddGetRemove(t *testing.T) {
	ps := NewPendingStore()
	ps.Add(&models.ConditionalWorkflow{ID: "wf_1", Status: models.WorkflowStatusPending})

	if ps.Get("wf_1") == nil {
		t.Error("Get should find the stored workflow")
	}
	if ps.Count() != 1 {
		t.Errorf("Count = %d, want 1", ps.Count())
	}

	ps.Remove("wf_1")
	if ps.Get("wf_1") != nil {
		t.Error("Get should return nil after removal")
	}
	if ps.Count() != 0 {
		t.Errorf("Count = %d, want 0", ps.Count())
	}
}
