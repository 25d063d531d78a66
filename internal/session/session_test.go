package session

import (
	"errors"
	"testing"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

func TestSession_ActivePatient(t *testing.T) {
	s := New()

	id, name := s.GetActivePatient()
	if id != "" || name != "" {
		t.Errorf("new session has active patient %q/%q, want empty", id, name)
	}

	s.SetActivePatient("p1", "Alice Smith")
	id, name = s.GetActivePatient()
	if id != "p1" || name != "Alice Smith" {
		t.Errorf("active patient = %q/%q, want p1/Alice Smith", id, name)
	}

	s.ClearActivePatient()
	id, name = s.GetActivePatient()
	if id != "" || name != "" {
		t.Errorf("cleared session has active patient %q/%q, want empty", id, name)
	}
}

func TestSession_GetPatientFromIndex(t *testing.T) {
	s := New()
	s.SetLastResults([]models.ResultRecord{
		{ID: "p1", Label: "Alice Smith", Kind: "patient"},
		{ID: "p2", Label: "Bob Smith", Kind: "patient"},
	})

	rec, err := s.GetPatientFromIndex(2)
	if err != nil {
		t.Fatalf("GetPatientFromIndex failed: %v", err)
	}
	if rec.ID != "p2" {
		t.Errorf("record = %+v, want p2", rec)
	}

	if _, err := s.GetPatientFromIndex(0); !errors.Is(err, models.ErrInvalidIndex) {
		t.Errorf("index 0 error = %v, want ErrInvalidIndex", err)
	}
	if _, err := s.GetPatientFromIndex(-3); !errors.Is(err, models.ErrInvalidIndex) {
		t.Errorf("negative index error = %v, want ErrInvalidIndex", err)
	}
	if _, err := s.GetPatientFromIndex(3); !errors.Is(err, models.ErrRecordNotFound) {
		t.Errorf("out-of-range error = %v, want ErrRecordNotFound", err)
	}
}

func TestSession_LastResultsReturnsCopy(t *testing.T) {
	s := New()
	original := []models.ResultRecord{{ID: "p1", Label: "Alice Smith", Kind: "patient"}}
	s.SetLastResults(original)

	got := s.LastResults()
	got[0].Label = "mutated"

	again := s.LastResults()
	if again[0].Label != "Alice Smith" {
		t.Error("mutating a returned slice must not affect session state")
	}

	original[0].Label = "also mutated"
	if s.LastResults()[0].Label != "Alice Smith" {
		t.Error("mutating the caller's slice must not affect session state")
	}
}
