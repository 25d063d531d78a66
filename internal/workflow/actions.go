// Package workflow implements branch action compilation.
//
// Then/else branch text is free-form command text mapped to a WorkflowAction
// variant using ordered keyword tests. The final fallback is a no-op log
// action recording the literal text, which guarantees every branch compiles
// to some executable action.
package workflow

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/parser"
)

var (
	reReschedule  = regexp.MustCompile(`(?i)\b(?:move|reschedule)\b`)
	reFlag        = regexp.MustCompile(`(?i)\bflag(?:\s+for)?\b`)
	reFlagFor     = regexp.MustCompile(`(?i)\bflag\s+for\s+([A-Za-z]+)`)
	reAddMed      = regexp.MustCompile(`(?i)\badd\s+([A-Za-z][A-Za-z0-9-]*)`)
	reShowMeds    = regexp.MustCompile(`(?i)\bshow\s+(?:meds|medications)\b`)
	reShowLabs    = regexp.MustCompile(`(?i)\bshow\s+labs?\b`)
	reSendMessage = regexp.MustCompile(`(?i)\b(?:send|message|notify)\b`)
	reCreateNote  = regexp.MustCompile(`(?i)\b(?:create|draft)\b.*\bnote\b`)

	reClockTime = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	reNoon      = regexp.MustCompile(`(?i)\bnoon\b`)
)

// CompileBranchAction maps branch text to a workflow action using ordered
// keyword tests.
func CompileBranchAction(text string) models.WorkflowAction {
	text = strings.TrimSpace(text)

	if reReschedule.MatchString(text) {
		action := models.WorkflowAction{Type: models.WorkflowActionReschedule}
		if t, err := ParseTimeOfDay(text); err == nil {
			action.NewTime = t.Format(time.RFC3339)
		}
		return action
	}

	if reFlag.MatchString(text) {
		action := models.WorkflowAction{Type: models.WorkflowActionFlagForSpecialty}
		if specialty, ok := parser.LookupSpecialty(text); ok {
			action.Specialty = specialty
		} else if m := reFlagFor.FindStringSubmatch(text); m != nil {
			action.Specialty = m[1]
		}
		return action
	}

	if m := reAddMed.FindStringSubmatch(text); m != nil {
		return models.WorkflowAction{Type: models.WorkflowActionAddMedication, MedicationName: strings.ToLower(m[1])}
	}

	if reShowMeds.MatchString(text) {
		return models.WorkflowAction{Type: models.WorkflowActionShowMedications}
	}
	if reShowLabs.MatchString(text) {
		return models.WorkflowAction{Type: models.WorkflowActionShowLabs}
	}

	if reSendMessage.MatchString(text) {
		message := parser.ExtractEntities(text).MessageContent
		if message == "" {
			message = text
		}
		return models.WorkflowAction{Type: models.WorkflowActionSendMessage, Message: message}
	}

	if reCreateNote.MatchString(text) {
		content := parser.ExtractEntities(text).MessageContent
		if content == "" {
			content = text
		}
		return models.WorkflowAction{Type: models.WorkflowActionCreateNote, NoteContent: content}
	}

	return models.WorkflowAction{Type: models.WorkflowActionLog, Text: text}
}

// ParseTimeOfDay extracts a time of day from text and anchors it to today's
// date. "3pm", "14:30" and "noon" are all accepted.
func ParseTimeOfDay(text string) (time.Time, error) {
	now := time.Now()

	if reNoon.MatchString(text) {
		return time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, now.Location()), nil
	}

	m := reClockTime.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, models.ErrInvalidTimeOfDay
	}

	hour := atoiSafe(m[1])
	minute := atoiSafe(m[2])
	meridiem := strings.ToLower(m[3])

	if meridiem == "pm" && hour < 12 {
		hour += 12
	}
	if meridiem == "am" && hour == 12 {
		hour = 0
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: %q", models.ErrInvalidTimeOfDay, m[0])
	}

	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()), nil
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
