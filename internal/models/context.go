// Package models defines execution context structures shared by the
// command chain executor and the workflow engine.
package models

import "time"

// ResultRecord is a lightweight entry in a command's result set, carrying
// just enough to resolve later references ("select 2", "their meds").
type ResultRecord struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind,omitempty"` // patient, medication, lab, appointment, note
}

// ExecutionContext carries patient/result state between commands in a chain
// and into a just-created workflow. It is owned per chain invocation and
// discarded when the chain finishes; the longer-lived session context lives
// in the session package.
type ExecutionContext struct {
	ActivePatientID   string         `json:"active_patient_id,omitempty"`
	ActivePatientName string         `json:"active_patient_name,omitempty"`
	LastResultSet     []ResultRecord `json:"last_result_set,omitempty"`
	LastResultCount   *int           `json:"last_result_count,omitempty"`
	PatientResponse   string         `json:"patient_response,omitempty"`
}

// TrackResults records a result set and its count on the context.
func (ec *ExecutionContext) TrackResults(results []ResultRecord) {
	ec.LastResultSet = results
	n := len(results)
	ec.LastResultCount = &n
}

// HasPatient reports whether a patient has been established on the context.
func (ec *ExecutionContext) HasPatient() bool {
	return ec.ActivePatientID != "" || ec.ActivePatientName != ""
}

// PatientResponseRecord is the latest reply recorded for a patient.
// One record per patient; the newest message overwrites older ones, and the
// record is consumed and cleared once a pending workflow reads it.
type PatientResponseRecord struct {
	PatientID      string    `json:"patient_id"`
	NormalizedText string    `json:"normalized_text"`
	ReceivedAt     time.Time `json:"received_at"`
}
