// Package store provides the in-memory store used by tests and by default
// when no database DSN is configured.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

// InMemoryStore is a mutex-guarded in-memory implementation of Store.
type InMemoryStore struct {
	mu           sync.RWMutex
	patients     map[string]models.Patient
	medications  map[string][]models.Medication // keyed by patient ID
	labs         map[string][]models.LabResult  // keyed by patient ID
	appointments map[string]models.Appointment  // keyed by appointment ID
	notes        map[string][]models.Note       // keyed by patient ID
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		patients:     make(map[string]models.Patient),
		medications:  make(map[string][]models.Medication),
		labs:         make(map[string][]models.LabResult),
		appointments: make(map[string]models.Appointment),
		notes:        make(map[string][]models.Note),
	}
}

// AddPatient inserts a patient record.
func (s *InMemoryStore) AddPatient(p models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		return fmt.Errorf("patient ID cannot be empty")
	}
	s.patients[p.ID] = p
	return nil
}

// GetPatient retrieves a patient by ID.
func (s *InMemoryStore) GetPatient(id string) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SearchPatients returns patients whose name contains the filter.
func (s *InMemoryStore) SearchPatients(nameFilter string) ([]models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filter := strings.ToLower(nameFilter)
	var results []models.Patient
	for _, p := range s.patients {
		if filter == "" || strings.Contains(strings.ToLower(p.Name), filter) {
			results = append(results, p)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

// GetPatientMedications returns the medications for a patient.
func (s *InMemoryStore) GetPatientMedications(patientID string) ([]models.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meds := make([]models.Medication, len(s.medications[patientID]))
	copy(meds, s.medications[patientID])
	return meds, nil
}

// AddMedication inserts a medication record.
func (s *InMemoryStore) AddMedication(m models.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.PatientID == "" {
		return fmt.Errorf("medication patient ID cannot be empty")
	}
	s.medications[m.PatientID] = append(s.medications[m.PatientID], m)
	return nil
}

// GetPatientLabs returns lab results, optionally filtered by code, most recent first.
func (s *InMemoryStore) GetPatientLabs(patientID, code string) ([]models.LabResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []models.LabResult
	for _, l := range s.labs[patientID] {
		if code == "" || l.Code == code {
			results = append(results, l)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ObservedAt.After(results[j].ObservedAt) })
	return results, nil
}

// GetLatestLab returns the most recent observation for the given code.
func (s *InMemoryStore) GetLatestLab(patientID, code string) (*models.LabResult, error) {
	labs, err := s.GetPatientLabs(patientID, code)
	if err != nil {
		return nil, err
	}
	if len(labs) == 0 {
		return nil, nil
	}
	latest := labs[0]
	return &latest, nil
}

// AddLabResult inserts a lab observation.
func (s *InMemoryStore) AddLabResult(l models.LabResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.PatientID == "" {
		return fmt.Errorf("lab result patient ID cannot be empty")
	}
	s.labs[l.PatientID] = append(s.labs[l.PatientID], l)
	return nil
}

// GetPatientAppointments returns appointments for a patient, soonest first.
func (s *InMemoryStore) GetPatientAppointments(patientID string) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []models.Appointment
	for _, a := range s.appointments {
		if a.PatientID == patientID {
			results = append(results, a)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Time.Before(results[j].Time) })
	return results, nil
}

// AddAppointment inserts an appointment.
func (s *InMemoryStore) AddAppointment(a models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		return fmt.Errorf("appointment ID cannot be empty")
	}
	s.appointments[a.ID] = a
	return nil
}

// RescheduleAppointment moves an appointment to a new time.
func (s *InMemoryStore) RescheduleAppointment(appointmentID string, newTime time.Time) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[appointmentID]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	a.Time = newTime
	a.Status = "rescheduled"
	a.UpdatedAt = time.Now()
	s.appointments[appointmentID] = a
	return &a, nil
}

// CreateNote attaches a note to a patient chart.
func (s *InMemoryStore) CreateNote(n models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.PatientID == "" {
		return fmt.Errorf("note patient ID cannot be empty")
	}
	s.notes[n.PatientID] = append(s.notes[n.PatientID], n)
	return nil
}

// GetPatientNotes returns notes for a patient, newest first.
func (s *InMemoryStore) GetPatientNotes(patientID string) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notes := make([]models.Note, len(s.notes[patientID]))
	copy(notes, s.notes[patientID])
	sort.Slice(notes, func(i, j int) bool { return notes[i].CreatedAt.After(notes[j].CreatedAt) })
	return notes, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
