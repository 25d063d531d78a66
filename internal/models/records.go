// Package models defines the clinical record types served by the store.
package models

import "time"

// Patient is a clinical record subject.
type Patient struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DateOfBirth string    `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	PhoneNumber string    `json:"phone_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Medication is an active or historical medication order for a patient.
type Medication struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	Name      string    `json:"name"`
	Dose      string    `json:"dose,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// LabResult is a single lab observation.
type LabResult struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patient_id"`
	Code       string    `json:"code"` // LOINC code, e.g. "2160-0" for creatinine
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Appointment is a scheduled patient visit.
type Appointment struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	Time      time.Time `json:"time"`
	Provider  string    `json:"provider,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Status    string    `json:"status,omitempty"` // scheduled, rescheduled, cancelled
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Note is a clinical note attached to a patient chart.
type Note struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	Content   string    `json:"content"`
	NoteType  string    `json:"note_type,omitempty"` // progress, flag, followup
	CreatedAt time.Time `json:"created_at"`
}

// ToResultRecord converts a patient into a lightweight result entry.
func (p Patient) ToResultRecord() ResultRecord {
	return ResultRecord{ID: p.ID, Label: p.Name, Kind: "patient"}
}

// ToResultRecord converts a medication into a lightweight result entry.
func (m Medication) ToResultRecord() ResultRecord {
	return ResultRecord{ID: m.ID, Label: m.Name, Kind: "medication"}
}

// ToResultRecord converts a lab result into a lightweight result entry.
func (l LabResult) ToResultRecord() ResultRecord {
	return ResultRecord{ID: l.ID, Label: l.Name, Kind: "lab"}
}
