// Package workflow implements the action dispatcher.
//
// Dispatch is a pure mapping from an action descriptor plus execution
// context to a collaborator call. Collaborator failures are caught at this
// boundary and reported in the outcome, never raised past the engine.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/store"
	"github.com/BTreeMap/ChartFlow/internal/util"
)

// Messenger sends outbound patient messages. It is the workflow engine's
// view of the messaging layer.
type Messenger interface {
	// SendPatientMessage sends text to a patient and returns a conversation ID.
	SendPatientMessage(ctx context.Context, patientID, text string) (string, error)
}

// Dispatcher executes workflow actions against the external collaborators.
type Dispatcher struct {
	store     store.Store
	messenger Messenger
}

// NewDispatcher creates an action dispatcher.
func NewDispatcher(st store.Store, messenger Messenger) *Dispatcher {
	return &Dispatcher{store: st, messenger: messenger}
}

// Execute runs a single workflow action and returns a human-readable outcome
// message. It dispatches exhaustively over the action type.
func (d *Dispatcher) Execute(ctx context.Context, action models.WorkflowAction, execCtx *models.ExecutionContext) (string, error) {
	switch action.Type {
	case models.WorkflowActionReschedule:
		return d.executeReschedule(action, execCtx)
	case models.WorkflowActionFlagForSpecialty:
		return d.executeFlag(action, execCtx)
	case models.WorkflowActionAddMedication:
		return d.executeAddMedication(action, execCtx)
	case models.WorkflowActionShowMedications:
		return d.executeShowMedications(action, execCtx)
	case models.WorkflowActionShowLabs:
		return d.executeShowLabs(action, execCtx)
	case models.WorkflowActionSendMessage:
		return d.executeSendMessage(ctx, action, execCtx)
	case models.WorkflowActionCreateNote:
		return d.executeCreateNote(action, execCtx)
	case models.WorkflowActionLog:
		slog.Info("Dispatcher log action", "text", action.Text)
		return fmt.Sprintf("noted: %s", action.Text), nil
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnknownAction, string(action.Type))
	}
}

// resolvePatient returns the patient the action targets, preferring the
// action's own patient over the execution context.
func resolvePatient(action models.WorkflowAction, execCtx *models.ExecutionContext) (string, error) {
	if action.PatientID != "" {
		return action.PatientID, nil
	}
	if execCtx != nil && execCtx.ActivePatientID != "" {
		return execCtx.ActivePatientID, nil
	}
	return "", models.ErrNoActivePatient
}

func (d *Dispatcher) executeReschedule(action models.WorkflowAction, execCtx *models.ExecutionContext) (string, error) {
	patientID, err := resolvePatient(action, execCtx)
	if err != nil {
		return "", err
	}

	newTime, err := time.Parse(time.RFC3339, action.NewTime)
	if err != nil {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidTimeOfDay, action.NewTime)
	}

	appointmentID := action.AppointmentID
	if appointmentID == "" {
		appts, err := d.store.GetPatientAppointments(patientID)
		if err != nil {
			return "", fmt.Errorf("failed to look up appointments: %w", err)
		}
		if len(appts) == 0 {
			return "", fmt.Errorf("no appointment to reschedule for patient %s", patientID)
		}
		appointmentID = appts[0].ID
	}

	appt, err := d.store.RescheduleAppointment(appointmentID, newTime)
	if err != nil {
		return "", fmt.Errorf("failed to reschedule appointment: %w", err)
	}
	return fmt.Sprintf("rescheduled appointment %s to %s", appt.ID, appt.Time.Format(time.RFC1123)), nil
}

func (d *Dispatcher) executeFlag(action models.WorkflowAction, execCtx *models.ExecutionContext) (string, error) {
	patientID, err := resolvePatient(action, execCtx)
	if err != nil {
		return "", err
	}

	specialty := action.Specialty
	if specialty == "" {
		specialty = "follow-up"
	}
	note := models.Note{
		ID:        util.GenerateRecordID("note"),
		PatientID: patientID,
		Content:   fmt.Sprintf("Flagged for %s", specialty),
		NoteType:  "flag",
		CreatedAt: time.Now(),
	}
	if err := d.store.CreateNote(note); err != nil {
		return "", fmt.Errorf("failed to flag patient: %w", err)
	}
	return fmt.Sprintf("flagged patient %s for %s", patientID, specialty), nil
}

func (d *Dispatcher) executeAddMedication(action models.WorkflowAction, execCtx *models.ExecutionContext) (string, error) {
	patientID, err := resolvePatient(action, execCtx)
	if err != nil {
		return "", err
	}
	if action.MedicationName == "" {
		return "", fmt.Errorf("medication name cannot be empty")
	}

	med := models.Medication{
		ID:        util.GenerateRecordID("med"),
		PatientID: patientID,
		Name:      action.MedicationName,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := d.store.AddMedication(med); err != nil {
		return "", fmt.Errorf("failed to add medication: %w", err)
	}
	return fmt.Sprintf("added %s for patient %s", med.Name, patientID), nil
}

func (d *Dispatcher) executeShowMedications(action models.WorkflowAction, execCtx *models.ExecutionContext) (string, error) {
	patientID, err := resolvePatient(action, execCtx)
	if err != nil {
		return "", err
	}
	meds, err := d.store.GetPatientMedications(patientID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch medications: %w", err)
	}

	records := make([]models.ResultRecord, 0, len(meds))
	names := make([]string, 0, len(meds))
	for _, m := range meds {
		records = append(records, m.ToResultRecord())
		names = append(names, m.Name)
	}
	if execCtx != nil {
		execCtx.TrackResults(records)
	}
	return fmt.Sprintf("%d medication(s): %s", len(meds), strings.Join(names, ", ")), nil
}

func (d *Dispatcher) executeShowLabs(action models.WorkflowAction, execCtx *models.ExecutionContext) (string, error) {
	patientID, err := resolvePatient(action, execCtx)
	if err != nil {
		return "", err
	}
	labs, err := d.store.GetPatientLabs(patientID, "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch labs: %w", err)
	}

	records := make([]models.ResultRecord, 0, len(labs))
	for _, l := range labs {
		records = append(records, l.ToResultRecord())
	}
	if execCtx != nil {
		execCtx.TrackResults(records)
	}
	return fmt.Sprintf("%d lab result(s)", len(labs)), nil
}

func (d *Dispatcher) executeSendMessage(ctx context.Context, action models.WorkflowAction, execCtx *models.ExecutionContext) (string, error) {
	patientID, err := resolvePatient(action, execCtx)
	if err != nil {
		return "", err
	}
	if action.Message == "" {
		return "", models.ErrEmptyMessageBody
	}
	if d.messenger == nil {
		return "", fmt.Errorf("messaging layer not configured")
	}

	conversationID, err := d.messenger.SendPatientMessage(ctx, patientID, action.Message)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return fmt.Sprintf("message sent to patient %s (conversation %s)", patientID, conversationID), nil
}

func (d *Dispatcher) executeCreateNote(action models.WorkflowAction, execCtx *models.ExecutionContext) (string, error) {
	patientID, err := resolvePatient(action, execCtx)
	if err != nil {
		return "", err
	}
	content := action.NoteContent
	if content == "" {
		return "", fmt.Errorf("note content cannot be empty")
	}

	note := models.Note{
		ID:        util.GenerateRecordID("note"),
		PatientID: patientID,
		Content:   content,
		NoteType:  "progress",
		CreatedAt: time.Now(),
	}
	if err := d.store.CreateNote(note); err != nil {
		return "", fmt.Errorf("failed to create note: %w", err)
	}
	return fmt.Sprintf("note created for patient %s", patientID), nil
}
