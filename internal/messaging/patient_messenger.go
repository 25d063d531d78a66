package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/store"
	"github.com/BTreeMap/ChartFlow/internal/util"
)

// PatientMessenger resolves a patient ID to a phone number and delivers
// messages through the configured transport. It is the adapter the workflow
// engine and command runner use for outbound patient messages.
type PatientMessenger struct {
	store   store.Store
	service Service
}

// NewPatientMessenger creates a messenger backed by the record store and a
// transport service.
func NewPatientMessenger(st store.Store, service Service) *PatientMessenger {
	return &PatientMessenger{store: st, service: service}
}

// SendPatientMessage looks up the patient's phone number, sends the text,
// and returns a fresh conversation ID for the exchange.
func (m *PatientMessenger) SendPatientMessage(ctx context.Context, patientID, text string) (string, error) {
	patient, err := m.store.GetPatient(patientID)
	if err != nil {
		return "", fmt.Errorf("failed to look up patient %s: %w", patientID, err)
	}
	if patient == nil {
		return "", models.ErrPatientNotFound
	}
	if patient.PhoneNumber == "" {
		return "", fmt.Errorf("patient %s has no phone number on file", patientID)
	}

	if err := m.service.SendMessage(ctx, patient.PhoneNumber, text); err != nil {
		return "", err
	}

	conversationID := util.GenerateConversationID()
	slog.Info("PatientMessenger message sent", "patient_id", patientID, "conversation_id", conversationID)
	return conversationID, nil
}

// PhoneNumberFor returns the canonical phone number for a patient, used when
// registering response hooks.
func (m *PatientMessenger) PhoneNumberFor(patientID string) (string, error) {
	patient, err := m.store.GetPatient(patientID)
	if err != nil {
		return "", fmt.Errorf("failed to look up patient %s: %w", patientID, err)
	}
	if patient == nil {
		return "", models.ErrPatientNotFound
	}
	if patient.PhoneNumber == "" {
		return "", fmt.Errorf("patient %s has no phone number on file", patientID)
	}
	return m.service.ValidateAndCanonicalizeRecipient(patient.PhoneNumber)
}

// PatientIDFor reverse-resolves a canonical phone number to a patient ID by
// scanning patients. Used when an inbound reply arrives.
func (m *PatientMessenger) PatientIDFor(phone string) (string, error) {
	canonical, err := m.service.ValidateAndCanonicalizeRecipient(phone)
	if err != nil {
		return "", err
	}
	patients, err := m.store.SearchPatients("")
	if err != nil {
		return "", fmt.Errorf("failed to scan patients: %w", err)
	}
	for _, p := range patients {
		if p.PhoneNumber == "" {
			continue
		}
		pc, err := m.service.ValidateAndCanonicalizeRecipient(p.PhoneNumber)
		if err != nil {
			continue
		}
		if pc == canonical {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("no patient on file for number %s", canonical)
}
