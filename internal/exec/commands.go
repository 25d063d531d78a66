package exec

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/parser"
	"github.com/BTreeMap/ChartFlow/internal/util"
	"github.com/BTreeMap/ChartFlow/internal/workflow"
)

const helpText = `Commands I understand:
  find patients named <name>         search the patient registry
  select <n>                         pick an entry from the last results
  show their meds | labs | notes     records for the active patient
  show schedule                      appointments for the active patient
  add <medication>                   start a medication
  flag for <specialty>               flag the chart for follow-up
  message pt <id> about <text>       send the patient a message
  ask pt <id> if <question>          ask and wait for the reply
  check responses                    resolve workflows awaiting replies
  list workflows                     show workflows awaiting replies
Conditionals: "if creatinine > 2 then flag for nephrology",
"ask pt 5 if he can come at 3pm, if he says yes reschedule to 3pm".`

// runPlain executes a non-conditional command. Unrecognized input is
// answered leniently with a hint rather than an error.
func (r *Runner) runPlain(ctx context.Context, cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	switch cmd.Action {
	case models.ActionSearch:
		return r.searchPatients(cmd, execCtx)
	case models.ActionSelect:
		return r.selectResult(cmd, execCtx)
	case models.ActionShow, models.ActionList, models.ActionPlot:
		return r.showResource(ctx, cmd, execCtx)
	case models.ActionAdd:
		return r.addRecord(cmd, execCtx)
	case models.ActionUpdate:
		return r.updateRecord(cmd, execCtx)
	case models.ActionMessage, models.ActionAsk:
		return r.sendMessage(ctx, cmd, execCtx)
	case models.ActionDraft:
		return r.draft(cmd, execCtx)
	case models.ActionFlag:
		return r.flagPatient(cmd, execCtx)
	case models.ActionCheck:
		return r.checkResponses(ctx, cmd)
	case models.ActionWorkflow:
		return r.listWorkflows(cmd)
	case models.ActionHelp:
		return CommandResult{Command: cmd, Message: helpText}, nil
	default:
		slog.Debug("Runner unhandled action", "action", cmd.Action, "raw", cmd.Raw)
		return CommandResult{Command: cmd, Message: "I did not understand that. Try 'help'."}, nil
	}
}

// resolvePatientID resolves the patient a command targets: an explicit ID
// wins, then a unique name match, then the active patient from context.
func (r *Runner) resolvePatientID(cmd models.Command, execCtx *models.ExecutionContext) (string, error) {
	if cmd.Params.PatientID != "" {
		return cmd.Params.PatientID, nil
	}
	if cmd.Params.PatientName != "" {
		matches, err := r.store.SearchPatients(cmd.Params.PatientName)
		if err != nil {
			return "", fmt.Errorf("failed to search patients: %w", err)
		}
		if len(matches) == 1 {
			return matches[0].ID, nil
		}
		if len(matches) > 1 {
			return "", fmt.Errorf("%d patients match %q, be more specific or select one", len(matches), cmd.Params.PatientName)
		}
		return "", models.ErrPatientNotFound
	}
	if execCtx != nil && execCtx.ActivePatientID != "" {
		return execCtx.ActivePatientID, nil
	}
	return "", models.ErrNoActivePatient
}

func (r *Runner) searchPatients(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	patients, err := r.store.SearchPatients(cmd.Params.PatientName)
	if err != nil {
		return CommandResult{}, fmt.Errorf("failed to search patients: %w", err)
	}

	records := make([]models.ResultRecord, 0, len(patients))
	names := make([]string, 0, len(patients))
	for _, p := range patients {
		records = append(records, p.ToResultRecord())
		names = append(names, p.Name)
	}
	execCtx.TrackResults(records)

	// A unique hit becomes the active patient so later pronoun commands
	// in the chain resolve without an explicit selection.
	if len(patients) == 1 {
		execCtx.ActivePatientID = patients[0].ID
		execCtx.ActivePatientName = patients[0].Name
	}

	message := fmt.Sprintf("found %d patient(s)", len(patients))
	if len(names) > 0 {
		message += ": " + strings.Join(names, ", ")
	}
	return CommandResult{Command: cmd, Message: message, Records: records}, nil
}

func (r *Runner) selectResult(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	idx := cmd.Params.Index
	if idx < 1 {
		return CommandResult{}, models.ErrInvalidIndex
	}
	if idx > len(execCtx.LastResultSet) {
		return CommandResult{}, fmt.Errorf("%w: index %d of %d results", models.ErrRecordNotFound, idx, len(execCtx.LastResultSet))
	}

	rec := execCtx.LastResultSet[idx-1]
	if rec.Kind == "patient" {
		execCtx.ActivePatientID = rec.ID
		execCtx.ActivePatientName = rec.Label
	}
	return CommandResult{Command: cmd, Message: fmt.Sprintf("selected %s", rec.Label), Records: []models.ResultRecord{rec}}, nil
}

// showResource handles show, list and plot over every resource kind.
func (r *Runner) showResource(ctx context.Context, cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	switch cmd.Resource {
	case models.ResourcePatient:
		if cmd.Params.PatientName != "" || cmd.Action == models.ActionList {
			return r.searchPatients(cmd, execCtx)
		}
		return r.showPatient(cmd, execCtx)
	case models.ResourceMedication:
		return r.showMedications(cmd, execCtx)
	case models.ResourceLab:
		return r.showLabs(cmd, execCtx)
	case models.ResourceSchedule, models.ResourceAppointment:
		return r.showAppointments(cmd, execCtx)
	case models.ResourceNote, models.ResourceEncounter:
		return r.showNotes(cmd, execCtx)
	case models.ResourceWorkflow:
		return r.listWorkflows(cmd)
	case models.ResourceResponse:
		return r.checkResponses(ctx, cmd)
	default:
		return CommandResult{Command: cmd, Message: "I did not understand that. Try 'help'."}, nil
	}
}

func (r *Runner) showPatient(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	patientID, err := r.resolvePatientID(cmd, execCtx)
	if err != nil {
		return CommandResult{}, err
	}
	patient, err := r.store.GetPatient(patientID)
	if err != nil {
		return CommandResult{}, fmt.Errorf("failed to look up patient: %w", err)
	}
	if patient == nil {
		return CommandResult{}, models.ErrPatientNotFound
	}

	rec := patient.ToResultRecord()
	execCtx.TrackResults([]models.ResultRecord{rec})
	execCtx.ActivePatientID = patient.ID
	execCtx.ActivePatientName = patient.Name
	return CommandResult{Command: cmd, Message: fmt.Sprintf("patient %s (%s)", patient.Name, patient.ID), Records: []models.ResultRecord{rec}}, nil
}

func (r *Runner) showMedications(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	patientID, err := r.resolvePatientID(cmd, execCtx)
	if err != nil {
		return CommandResult{}, err
	}
	meds, err := r.store.GetPatientMedications(patientID)
	if err != nil {
		return CommandResult{}, fmt.Errorf("failed to fetch medications: %w", err)
	}

	records := make([]models.ResultRecord, 0, len(meds))
	names := make([]string, 0, len(meds))
	for _, m := range meds {
		records = append(records, m.ToResultRecord())
		names = append(names, m.Name)
	}
	execCtx.TrackResults(records)

	message := fmt.Sprintf("%d medication(s)", len(meds))
	if len(names) > 0 {
		message += ": " + strings.Join(names, ", ")
	}
	return CommandResult{Command: cmd, Message: message, Records: records}, nil
}

func (r *Runner) showLabs(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	patientID, err := r.resolvePatientID(cmd, execCtx)
	if err != nil {
		return CommandResult{}, err
	}
	labs, err := r.store.GetPatientLabs(patientID, cmd.Params.LabCode)
	if err != nil {
		return CommandResult{}, fmt.Errorf("failed to fetch labs: %w", err)
	}
	labs = filterLabsByRange(labs, cmd.Params.TimeRange)

	records := make([]models.ResultRecord, 0, len(labs))
	for _, l := range labs {
		records = append(records, l.ToResultRecord())
	}
	execCtx.TrackResults(records)

	verb := "showing"
	if cmd.Action == models.ActionPlot {
		verb = "plotting"
	}
	message := fmt.Sprintf("%s %d lab result(s)", verb, len(labs))
	if cmd.Params.LabCode != "" {
		message += " for " + parser.LabNameForCode(cmd.Params.LabCode)
	}
	if cmd.Params.TimeRange != "" {
		message += " over " + cmd.Params.TimeRange
	}
	return CommandResult{Command: cmd, Message: message, Records: records}, nil
}

// filterLabsByRange keeps observations within the relative range token the
// extractor emits ("2y", "6m", "1w", "30d"). An empty or unparseable token
// keeps everything.
func filterLabsByRange(labs []models.LabResult, timeRange string) []models.LabResult {
	if len(timeRange) < 2 {
		return labs
	}
	n, err := strconv.Atoi(timeRange[:len(timeRange)-1])
	if err != nil || n < 1 {
		return labs
	}

	var cutoff time.Time
	now := time.Now()
	switch timeRange[len(timeRange)-1] {
	case 'y':
		cutoff = now.AddDate(-n, 0, 0)
	case 'm':
		cutoff = now.AddDate(0, -n, 0)
	case 'w':
		cutoff = now.AddDate(0, 0, -7*n)
	case 'd':
		cutoff = now.AddDate(0, 0, -n)
	default:
		return labs
	}

	filtered := labs[:0]
	for _, l := range labs {
		if !l.ObservedAt.Before(cutoff) {
			filtered = append(filtered, l)
		}
	}
	return filtered
}

func (r *Runner) showAppointments(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	patientID, err := r.resolvePatientID(cmd, execCtx)
	if err != nil {
		return CommandResult{}, err
	}
	appts, err := r.store.GetPatientAppointments(patientID)
	if err != nil {
		return CommandResult{}, fmt.Errorf("failed to fetch appointments: %w", err)
	}

	records := make([]models.ResultRecord, 0, len(appts))
	for _, a := range appts {
		records = append(records, models.ResultRecord{ID: a.ID, Label: a.Time.Format(time.RFC1123), Kind: "appointment"})
	}
	execCtx.TrackResults(records)
	return CommandResult{Command: cmd, Message: fmt.Sprintf("%d appointment(s)", len(appts)), Records: records}, nil
}

func (r *Runner) showNotes(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	patientID, err := r.resolvePatientID(cmd, execCtx)
	if err != nil {
		return CommandResult{}, err
	}
	notes, err := r.store.GetPatientNotes(patientID)
	if err != nil {
		return CommandResult{}, fmt.Errorf("failed to fetch notes: %w", err)
	}

	records := make([]models.ResultRecord, 0, len(notes))
	for _, n := range notes {
		records = append(records, models.ResultRecord{ID: n.ID, Label: n.Content, Kind: "note"})
	}
	execCtx.TrackResults(records)
	return CommandResult{Command: cmd, Message: fmt.Sprintf("%d note(s)", len(notes)), Records: records}, nil
}

func (r *Runner) addRecord(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	patientID, err := r.resolvePatientID(cmd, execCtx)
	if err != nil {
		return CommandResult{}, err
	}

	switch cmd.Resource {
	case models.ResourceMedication, models.ResourceUnknown:
		if cmd.Params.MedicationName == "" {
			return CommandResult{}, fmt.Errorf("no medication name in %q", cmd.Raw)
		}
		med := models.Medication{
			ID:        util.GenerateRecordID("med"),
			PatientID: patientID,
			Name:      cmd.Params.MedicationName,
			Active:    true,
			CreatedAt: time.Now(),
		}
		if err := r.store.AddMedication(med); err != nil {
			return CommandResult{}, fmt.Errorf("failed to add medication: %w", err)
		}
		return CommandResult{Command: cmd, Message: fmt.Sprintf("added %s for patient %s", med.Name, patientID)}, nil
	case models.ResourceNote:
		content := cmd.Params.MessageContent
		if content == "" {
			content = cmd.Raw
		}
		note := models.Note{
			ID:        util.GenerateRecordID("note"),
			PatientID: patientID,
			Content:   content,
			NoteType:  "progress",
			CreatedAt: time.Now(),
		}
		if err := r.store.CreateNote(note); err != nil {
			return CommandResult{}, fmt.Errorf("failed to create note: %w", err)
		}
		return CommandResult{Command: cmd, Message: fmt.Sprintf("note created for patient %s", patientID)}, nil
	default:
		return CommandResult{Command: cmd, Message: "I can add medications and notes. Try 'help'."}, nil
	}
}

func (r *Runner) updateRecord(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	switch cmd.Resource {
	case models.ResourceSchedule, models.ResourceAppointment:
		return r.rescheduleAppointment(cmd, execCtx)
	default:
		return CommandResult{Command: cmd, Message: "I can only reschedule appointments for now. Try 'help'."}, nil
	}
}

func (r *Runner) rescheduleAppointment(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	patientID, err := r.resolvePatientID(cmd, execCtx)
	if err != nil {
		return CommandResult{}, err
	}

	newTime, err := workflow.ParseTimeOfDay(cmd.Raw)
	if err != nil {
		return CommandResult{}, err
	}

	appointmentID := cmd.Params.AppointmentID
	if appointmentID == "" {
		appts, err := r.store.GetPatientAppointments(patientID)
		if err != nil {
			return CommandResult{}, fmt.Errorf("failed to fetch appointments: %w", err)
		}
		if len(appts) == 0 {
			return CommandResult{}, fmt.Errorf("no appointment to reschedule for patient %s", patientID)
		}
		appointmentID = appts[0].ID
	}

	appt, err := r.store.RescheduleAppointment(appointmentID, newTime)
	if err != nil {
		return CommandResult{}, fmt.Errorf("failed to reschedule appointment: %w", err)
	}
	return CommandResult{Command: cmd, Message: fmt.Sprintf("rescheduled appointment %s to %s", appt.ID, appt.Time.Format(time.RFC1123))}, nil
}

func (r *Runner) sendMessage(ctx context.Context, cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	patientID, err := r.resolvePatientID(cmd, execCtx)
	if err != nil {
		return CommandResult{}, err
	}
	body := cmd.Params.MessageContent
	if body == "" {
		return CommandResult{}, models.ErrEmptyMessageBody
	}
	if cmd.Action == models.ActionAsk && !strings.HasSuffix(body, "?") {
		body += "?"
	}

	conversationID, err := r.messenger.SendPatientMessage(ctx, patientID, body)
	if err != nil {
		return CommandResult{}, err
	}
	return CommandResult{Command: cmd, Message: fmt.Sprintf("message sent to patient %s (conversation %s)", patientID, conversationID)}, nil
}

// draft prepares content without committing or sending it.
func (r *Runner) draft(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	content := cmd.Params.MessageContent
	if content == "" {
		content = cmd.Raw
	}

	if cmd.Resource == models.ResourceNote {
		patientID, err := r.resolvePatientID(cmd, execCtx)
		if err != nil {
			return CommandResult{}, err
		}
		note := models.Note{
			ID:        util.GenerateRecordID("note"),
			PatientID: patientID,
			Content:   content,
			NoteType:  "draft",
			CreatedAt: time.Now(),
		}
		if err := r.store.CreateNote(note); err != nil {
			return CommandResult{}, fmt.Errorf("failed to save draft note: %w", err)
		}
		return CommandResult{Command: cmd, Message: fmt.Sprintf("draft note saved for patient %s", patientID)}, nil
	}

	return CommandResult{Command: cmd, Message: fmt.Sprintf("draft (not sent): %s", content)}, nil
}

func (r *Runner) flagPatient(cmd models.Command, execCtx *models.ExecutionContext) (CommandResult, error) {
	patientID, err := r.resolvePatientID(cmd, execCtx)
	if err != nil {
		return CommandResult{}, err
	}

	specialty := cmd.Params.Specialty
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
	if err := r.store.CreateNote(note); err != nil {
		return CommandResult{}, fmt.Errorf("failed to flag patient: %w", err)
	}
	return CommandResult{Command: cmd, Message: fmt.Sprintf("flagged patient %s for %s", patientID, specialty)}, nil
}

// checkResponses runs a pending-workflow scan and reports what resolved.
func (r *Runner) checkResponses(ctx context.Context, cmd models.Command) (CommandResult, error) {
	results := r.engine.CheckPendingWorkflows(ctx)
	remaining := len(r.engine.PendingWorkflows().ListPending())

	if len(results) == 0 {
		return CommandResult{Command: cmd, Message: fmt.Sprintf("no new replies; %d workflow(s) still waiting", remaining)}, nil
	}

	resolved := 0
	for _, res := range results {
		if res.Success {
			resolved++
		}
	}
	return CommandResult{
		Command: cmd,
		Message: fmt.Sprintf("resolved %d workflow(s) (%d failed); %d still waiting", resolved, len(results)-resolved, remaining),
	}, nil
}

func (r *Runner) listWorkflows(cmd models.Command) (CommandResult, error) {
	workflows := r.engine.PendingWorkflows().List()

	records := make([]models.ResultRecord, 0, len(workflows))
	for _, wf := range workflows {
		records = append(records, models.ResultRecord{
			ID:    wf.ID,
			Label: fmt.Sprintf("[%s] %s", wf.Status, wf.Description),
			Kind:  "workflow",
		})
	}
	return CommandResult{Command: cmd, Message: fmt.Sprintf("%d workflow(s)", len(workflows)), Records: records}, nil
}
