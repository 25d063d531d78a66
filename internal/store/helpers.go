package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanPatientRow(row *sql.Row) (*models.Patient, error) {
	var p models.Patient
	var dob, phone sql.NullString
	err := row.Scan(&p.ID, &p.Name, &dob, &phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.DateOfBirth = dob.String
	p.PhoneNumber = phone.String
	return &p, nil
}

func scanPatients(rows *sql.Rows) ([]models.Patient, error) {
	var patients []models.Patient
	for rows.Next() {
		var p models.Patient
		var dob, phone sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &dob, &phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan patient failed: %w", err)
		}
		p.DateOfBirth = dob.String
		p.PhoneNumber = phone.String
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func scanMedications(rows *sql.Rows) ([]models.Medication, error) {
	var meds []models.Medication
	for rows.Next() {
		var m models.Medication
		var dose sql.NullString
		if err := rows.Scan(&m.ID, &m.PatientID, &m.Name, &dose, &m.Active, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan medication failed: %w", err)
		}
		m.Dose = dose.String
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

func scanLabResults(rows *sql.Rows) ([]models.LabResult, error) {
	var labs []models.LabResult
	for rows.Next() {
		var l models.LabResult
		var unit sql.NullString
		if err := rows.Scan(&l.ID, &l.PatientID, &l.Code, &l.Name, &l.Value, &unit, &l.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan lab result failed: %w", err)
		}
		l.Unit = unit.String
		labs = append(labs, l)
	}
	return labs, rows.Err()
}

func scanAppointmentRow(row *sql.Row) (*models.Appointment, error) {
	var a models.Appointment
	var provider, reason, status sql.NullString
	err := row.Scan(&a.ID, &a.PatientID, &a.Time, &provider, &reason, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Provider = provider.String
	a.Reason = reason.String
	a.Status = status.String
	return &a, nil
}

func scanAppointments(rows *sql.Rows) ([]models.Appointment, error) {
	var appts []models.Appointment
	for rows.Next() {
		var a models.Appointment
		var provider, reason, status sql.NullString
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Time, &provider, &reason, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan appointment failed: %w", err)
		}
		a.Provider = provider.String
		a.Reason = reason.String
		a.Status = status.String
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func scanNotes(rows *sql.Rows) ([]models.Note, error) {
	var notes []models.Note
	for rows.Next() {
		var n models.Note
		var noteType sql.NullString
		if err := rows.Scan(&n.ID, &n.PatientID, &n.Content, &noteType, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note failed: %w", err)
		}
		n.NoteType = noteType.String
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
