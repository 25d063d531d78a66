// Package store provides storage backends for ChartFlow.
//
// This file implements an SQLite-backed store for clinical records.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/ChartFlow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")

	return &SQLiteStore{db: db}, nil
}

// AddPatient inserts a patient record.
func (s *SQLiteStore) AddPatient(p models.Patient) error {
	_, err := s.db.Exec(
		`INSERT INTO patients (id, name, date_of_birth, phone_number, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, nilIfEmpty(p.DateOfBirth), nilIfEmpty(p.PhoneNumber), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	return nil
}

// GetPatient retrieves a patient by ID. Returns nil when not found.
func (s *SQLiteStore) GetPatient(id string) (*models.Patient, error) {
	row := s.db.QueryRow(
		`SELECT id, name, date_of_birth, phone_number, created_at, updated_at FROM patients WHERE id = ?`, id,
	)
	p, err := scanPatientRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SearchPatients returns patients whose name contains the filter.
func (s *SQLiteStore) SearchPatients(nameFilter string) ([]models.Patient, error) {
	rows, err := s.db.Query(
		`SELECT id, name, date_of_birth, phone_number, created_at, updated_at FROM patients WHERE name LIKE ? ORDER BY name`,
		"%"+nameFilter+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search patients: %w", err)
	}
	defer rows.Close()
	return scanPatients(rows)
}

// GetPatientMedications returns the medications for a patient.
func (s *SQLiteStore) GetPatientMedications(patientID string) ([]models.Medication, error) {
	rows, err := s.db.Query(
		`SELECT id, patient_id, name, dose, active, created_at FROM medications WHERE patient_id = ? ORDER BY created_at`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query medications: %w", err)
	}
	defer rows.Close()
	return scanMedications(rows)
}

// AddMedication inserts a medication record.
func (s *SQLiteStore) AddMedication(m models.Medication) error {
	_, err := s.db.Exec(
		`INSERT INTO medications (id, patient_id, name, dose, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.PatientID, m.Name, nilIfEmpty(m.Dose), m.Active, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert medication: %w", err)
	}
	return nil
}

// GetPatientLabs returns lab results, optionally filtered by code, most recent first.
func (s *SQLiteStore) GetPatientLabs(patientID, code string) ([]models.LabResult, error) {
	query := `SELECT id, patient_id, code, name, value, unit, observed_at FROM lab_results WHERE patient_id = ?`
	args := []interface{}{patientID}
	if code != "" {
		query += ` AND code = ?`
		args = append(args, code)
	}
	query += ` ORDER BY observed_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lab results: %w", err)
	}
	defer rows.Close()
	return scanLabResults(rows)
}

// GetLatestLab returns the most recent observation for the given code.
func (s *SQLiteStore) GetLatestLab(patientID, code string) (*models.LabResult, error) {
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
func (s *SQLiteStore) AddLabResult(l models.LabResult) error {
	_, err := s.db.Exec(
		`INSERT INTO lab_results (id, patient_id, code, name, value, unit, observed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.PatientID, l.Code, l.Name, l.Value, nilIfEmpty(l.Unit), l.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lab result: %w", err)
	}
	return nil
}

// GetPatientAppointments returns appointments for a patient, soonest first.
func (s *SQLiteStore) GetPatientAppointments(patientID string) ([]models.Appointment, error) {
	rows, err := s.db.Query(
		`SELECT id, patient_id, time, provider, reason, status, created_at, updated_at FROM appointments WHERE patient_id = ? ORDER BY time`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// AddAppointment inserts an appointment.
func (s *SQLiteStore) AddAppointment(a models.Appointment) error {
	_, err := s.db.Exec(
		`INSERT INTO appointments (id, patient_id, time, provider, reason, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PatientID, a.Time, nilIfEmpty(a.Provider), nilIfEmpty(a.Reason), nilIfEmpty(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	return nil
}

// RescheduleAppointment moves an appointment to a new time.
func (s *SQLiteStore) RescheduleAppointment(appointmentID string, newTime time.Time) (*models.Appointment, error) {
	res, err := s.db.Exec(
		`UPDATE appointments SET time = ?, status = 'rescheduled', updated_at = ? WHERE id = ?`,
		newTime, time.Now(), appointmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reschedule appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return nil, models.ErrRecordNotFound
	}

	row := s.db.QueryRow(
		`SELECT id, patient_id, time, provider, reason, status, created_at, updated_at FROM appointments WHERE id = ?`,
		appointmentID,
	)
	return scanAppointmentRow(row)
}

// CreateNote attaches a note to a patient chart.
func (s *SQLiteStore) CreateNote(n models.Note) error {
	_, err := s.db.Exec(
		`INSERT INTO notes (id, patient_id, content, note_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.PatientID, n.Content, nilIfEmpty(n.NoteType), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// GetPatientNotes returns notes for a patient, newest first.
func (s *SQLiteStore) GetPatientNotes(patientID string) ([]models.Note, error) {
	rows, err := s.db.Query(
		`SELECT id, patient_id, content, note_type, created_at FROM notes WHERE patient_id = ? ORDER BY created_at DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
