// Package workflow implements the pending-workflow store and the
// patient-response registry.
//
// Both are process-wide mutable state with no persistence guarantee: they
// are explicitly volatile, not a durable log. They are owned by the engine
// and injected into its entry points so tests can construct isolated
// instances.
package workflow

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

// PendingStore is a keyed registry of workflows whose condition cannot yet
// be evaluated.
type PendingStore struct {
	mu        sync.RWMutex
	workflows map[string]*models.ConditionalWorkflow
}

// NewPendingStore creates an empty pending-workflow store.
func NewPendingStore() *PendingStore {
	return &PendingStore{workflows: make(map[string]*models.ConditionalWorkflow)}
}

// Add registers a workflow under its ID.
func (ps *PendingStore) Add(wf *models.ConditionalWorkflow) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.workflows[wf.ID] = wf
}

// Get returns the workflow with the given ID, or nil.
func (ps *PendingStore) Get(id string) *models.ConditionalWorkflow {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.workflows[id]
}

// Remove deletes the workflow with the given ID.
func (ps *PendingStore) Remove(id string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.workflows, id)
}

// List returns all stored workflows ordered by creation time.
func (ps *PendingStore) List() []*models.ConditionalWorkflow {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	workflows := make([]*models.ConditionalWorkflow, 0, len(ps.workflows))
	for _, wf := range ps.workflows {
		workflows = append(workflows, wf)
	}
	sort.Slice(workflows, func(i, j int) bool { return workflows[i].CreatedAt.Before(workflows[j].CreatedAt) })
	return workflows
}

// ListPending returns stored workflows still in pending status, ordered by
// creation time.
func (ps *PendingStore) ListPending() []*models.ConditionalWorkflow {
	var pending []*models.ConditionalWorkflow
	for _, wf := range ps.List() {
		if wf.Status == models.WorkflowStatusPending {
			pending = append(pending, wf)
		}
	}
	return pending
}

// Count returns the number of stored workflows.
func (ps *PendingStore) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.workflows)
}

// ResponseRegistry holds the latest recorded reply per patient. The newest
// message overwrites older ones; a record is consumed and cleared once a
// pending workflow reads it.
type ResponseRegistry struct {
	mu        sync.RWMutex
	responses map[string]models.PatientResponseRecord
}

// NewResponseRegistry creates an empty response registry.
func NewResponseRegistry() *ResponseRegistry {
	return &ResponseRegistry{responses: make(map[string]models.PatientResponseRecord)}
}

// Record stores the normalized response text for a patient, overwriting any
// previous record.
func (rr *ResponseRegistry) Record(patientID, text string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.responses[patientID] = models.PatientResponseRecord{
		PatientID:      patientID,
		NormalizedText: normalizeResponse(text),
		ReceivedAt:     time.Now(),
	}
}

// Peek returns the latest response for a patient without consuming it.
func (rr *ResponseRegistry) Peek(patientID string) (models.PatientResponseRecord, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	rec, ok := rr.responses[patientID]
	return rec, ok
}

// Consume returns and clears the latest response for a patient.
func (rr *ResponseRegistry) Consume(patientID string) (models.PatientResponseRecord, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rec, ok := rr.responses[patientID]
	if ok {
		delete(rr.responses, patientID)
	}
	return rec, ok
}

// normalizeResponse lower-cases and trims a raw reply.
func normalizeResponse(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
