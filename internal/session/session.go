// Package session holds the longer-lived context that persists the active
// patient and last search results between independent user inputs, unlike
// the per-chain execution context which is discarded when a chain finishes.
package session

import (
	"log/slog"
	"sync"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

// Session tracks the active patient and last result set for one user.
// It is injected, never global, so tests can construct isolated sessions.
type Session struct {
	mu                sync.RWMutex
	activePatientID   string
	activePatientName string
	lastResults       []models.ResultRecord
}

// New creates an empty session.
func New() *Session {
	return &Session{}
}

// SetActivePatient records the patient referenced by later pronoun commands.
func (s *Session) SetActivePatient(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePatientID = id
	s.activePatientName = name
	slog.Debug("Session active patient set", "patient_id", id, "name", name)
}

// GetActivePatient returns the active patient ID and name, empty when unset.
func (s *Session) GetActivePatient() (id, name string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePatientID, s.activePatientName
}

// ClearActivePatient forgets the active patient.
func (s *Session) ClearActivePatient() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePatientID = ""
	s.activePatientName = ""
}

// SetLastResults records the most recent result set for index selection.
func (s *Session) SetLastResults(results []models.ResultRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResults = make([]models.ResultRecord, len(results))
	copy(s.lastResults, results)
}

// LastResults returns a copy of the most recent result set.
func (s *Session) LastResults() []models.ResultRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]models.ResultRecord, len(s.lastResults))
	copy(results, s.lastResults)
	return results
}

// GetPatientFromIndex resolves a 1-based selection index against the last
// result set.
func (s *Session) GetPatientFromIndex(n int) (models.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 1 {
		return models.ResultRecord{}, models.ErrInvalidIndex
	}
	if n > len(s.lastResults) {
		return models.ResultRecord{}, models.ErrRecordNotFound
	}
	return s.lastResults[n-1], nil
}
