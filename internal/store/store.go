// Package store provides storage backends for ChartFlow clinical records.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backed stores selected by DSN detection. The pending-workflow
// registry is deliberately not stored here: workflow state is volatile by
// design and owned by the workflow engine.
package store

import (
	"strings"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

// Store defines the clinical record data layer consumed by the command
// executor and the workflow engine.
type Store interface {
	// AddPatient inserts a patient record.
	AddPatient(p models.Patient) error
	// GetPatient retrieves a patient by ID. Returns nil when not found.
	GetPatient(id string) (*models.Patient, error)
	// SearchPatients returns patients whose name contains the filter,
	// case-insensitive. An empty filter returns all patients.
	SearchPatients(nameFilter string) ([]models.Patient, error)

	// GetPatientMedications returns the medications for a patient.
	GetPatientMedications(patientID string) ([]models.Medication, error)
	// AddMedication inserts a medication record.
	AddMedication(m models.Medication) error

	// GetPatientLabs returns lab results for a patient, optionally filtered
	// by canonical code, most recent first.
	GetPatientLabs(patientID, code string) ([]models.LabResult, error)
	// GetLatestLab returns the most recent observation for the given code.
	// Returns nil when no observation exists.
	GetLatestLab(patientID, code string) (*models.LabResult, error)
	// AddLabResult inserts a lab observation.
	AddLabResult(l models.LabResult) error

	// GetPatientAppointments returns appointments for a patient, soonest first.
	GetPatientAppointments(patientID string) ([]models.Appointment, error)
	// AddAppointment inserts an appointment.
	AddAppointment(a models.Appointment) error
	// RescheduleAppointment moves an appointment to a new time and returns
	// the updated record.
	RescheduleAppointment(appointmentID string, newTime time.Time) (*models.Appointment, error)

	// CreateNote attaches a note to a patient chart.
	CreateNote(n models.Note) error
	// GetPatientNotes returns notes for a patient, newest first.
	GetPatientNotes(patientID string) ([]models.Note, error)

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store construction.
type Opts struct {
	DSN         string
	PostgresDSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
