// Package store provides storage backends for ChartFlow.
//
// This file implements a PostgreSQL-backed store for clinical records.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/ChartFlow/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.PostgresDSN != "")

	dsn := cfg.PostgresDSN
	if dsn == "" {
		dsn = cfg.DSN
	}
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied")

	return &PostgresStore{db: db}, nil
}

// AddPatient inserts a patient record.
func (s *PostgresStore) AddPatient(p models.Patient) error {
	_, err := s.db.Exec(
		`INSERT INTO patients (id, name, date_of_birth, phone_number, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, nilIfEmpty(p.DateOfBirth), nilIfEmpty(p.PhoneNumber), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	return nil
}

// GetPatient retrieves a patient by ID. Returns nil when not found.
func (s *PostgresStore) GetPatient(id string) (*models.Patient, error) {
	row := s.db.QueryRow(
		`SELECT id, name, date_of_birth, phone_number, created_at, updated_at FROM patients WHERE id = $1`, id,
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
func (s *PostgresStore) SearchPatients(nameFilter string) ([]models.Patient, error) {
	rows, err := s.db.Query(
		`SELECT id, name, date_of_birth, phone_number, created_at, updated_at FROM patients WHERE name ILIKE $1 ORDER BY name`,
		"%"+nameFilter+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search patients: %w", err)
	}
	defer rows.Close()
	return scanPatients(rows)
}

// GetPatientMedications returns the medications for a patient.
func (s *PostgresStore) GetPatientMedications(patientID string) ([]models.Medication, error) {
	rows, err := s.db.Query(
		`SELECT id, patient_id, name, dose, active, created_at FROM medications WHERE patient_id = $1 ORDER BY created_at`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query medications: %w", err)
	}
	defer rows.Close()
	return scanMedications(rows)
}

// AddMedication inserts a medication record.
func (s *PostgresStore) AddMedication(m models.Medication) error {
	_, err := s.db.Exec(
		`INSERT INTO medications (id, patient_id, name, dose, active, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.PatientID, m.Name, nilIfEmpty(m.Dose), m.Active, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert medication: %w", err)
	}
	return nil
}

// GetPatientLabs returns lab results, optionally filtered by code, most recent first.
func (s *PostgresStore) GetPatientLabs(patientID, code string) ([]models.LabResult, error) {
	query := `SELECT id, patient_id, code, name, value, unit, observed_at FROM lab_results WHERE patient_id = $1`
	args := []interface{}{patientID}
	if code != "" {
		query += ` AND code = $2`
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
func (s *PostgresStore) GetLatestLab(patientID, code string) (*models.LabResult, error) {
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
func (s *PostgresStore) AddLabResult(l models.LabResult) error {
	_, err := s.db.Exec(
		`INSERT INTO lab_results (id, patient_id, code, name, value, unit, observed_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.PatientID, l.Code, l.Name, l.Value, nilIfEmpty(l.Unit), l.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lab result: %w", err)
	}
	return nil
}

// GetPatientAppointments returns appointments for a patient, soonest first.
func (s *PostgresStore) GetPatientAppointments(patientID string) ([]models.Appointment, error) {
	rows, err := s.db.Query(
		`SELECT id, patient_id, time, provider, reason, status, created_at, updated_at FROM appointments WHERE patient_id = $1 ORDER BY time`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// AddAppointment inserts an appointment.
func (s *PostgresStore) AddAppointment(a models.Appointment) error {
	_, err := s.db.Exec(
		`INSERT INTO appointments (id, patient_id, time, provider, reason, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.PatientID, a.Time, nilIfEmpty(a.Provider), nilIfEmpty(a.Reason), nilIfEmpty(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	return nil
}

// RescheduleAppointment moves an appointment to a new time.
func (s *PostgresStore) RescheduleAppointment(appointmentID string, newTime time.Time) (*models.Appointment, error) {
	res, err := s.db.Exec(
		`UPDATE appointments SET time = $1, status = 'rescheduled', updated_at = $2 WHERE id = $3`,
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
		`SELECT id, patient_id, time, provider, reason, status, created_at, updated_at FROM appointments WHERE id = $1`,
		appointmentID,
	)
	return scanAppointmentRow(row)
}

// CreateNote attaches a note to a patient chart.
func (s *PostgresStore) CreateNote(n models.Note) error {
	_, err := s.db.Exec(
		`INSERT INTO notes (id, patient_id, content, note_type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.PatientID, n.Content, nilIfEmpty(n.NoteType), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// GetPatientNotes returns notes for a patient, newest first.
func (s *PostgresStore) GetPatientNotes(patientID string) ([]models.Note, error) {
	rows, err := s.db.Query(
		`SELECT id, patient_id, content, note_type, created_at FROM notes WHERE patient_id = $1 ORDER BY created_at DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
