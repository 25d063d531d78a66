// Package parser implements the entity extractor.
//
// Extraction is independent of classification and runs unconditionally.
// Extraction errors are non-fatal: absence of a field simply leaves the
// corresponding param unset.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

var (
	reQuoted        = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	reTrailingQuote = regexp.MustCompile(`"([^"]+)"\s*$|'([^']+)'\s*$`)
	reNamed         = regexp.MustCompile(`(?i)\bnamed\s+([A-Za-z][A-Za-z'-]*(?:\s+[A-Z][A-Za-z'-]*)?)`)
	rePatientRef    = regexp.MustCompile(`(?i)\b(?:patient|pt)\s+#?([A-Za-z0-9'-]+)`)
	rePatientID     = regexp.MustCompile(`(?i)\b(?:patient|pt)\s*#?\s*(\d+|[0-9a-fA-F]{6,})\b`)
	reSelectIndex   = regexp.MustCompile(`(?i)\b(?:select|choose|pick)\s+#?(-?\d+)\b`)
	reTimeRange     = regexp.MustCompile(`(?i)\b(?:past|last)\s+(\d+)?\s*(year|month|week|day)s?\b`)
	reAbout         = regexp.MustCompile(`(?i)\babout\s+(.+)$`)
	reSaying        = regexp.MustCompile(`(?i)\bsaying\s+(.+)$`)
	reThat          = regexp.MustCompile(`(?i)\bthat\s+(.+)$`)
	reAskIf         = regexp.MustCompile(`(?i)\bif\s+(.+)$`)
	rePronoun       = regexp.MustCompile(`(?i)\b(?:their|his|her)\b`)
	reAllDigits     = regexp.MustCompile(`^\d+$`)
	reAsk           = regexp.MustCompile(`(?i)\bask\b`)
)

// nameStopwords are words that follow "patient"/"pt" without being a name.
var nameStopwords = map[string]bool{
	"meds": true, "med": true, "medications": true, "medication": true,
	"labs": true, "lab": true, "notes": true, "note": true,
	"records": true, "record": true, "chart": true, "charts": true,
	"list": true, "info": true, "appointments": true, "appointment": true,
	"responses": true, "response": true, "messages": true, "message": true,
	"about": true, "if": true, "says": true, "said": true, "replied": true,
	"schedule": true, "history": true, "and": true, "then": true,
}

// ExtractEntities pulls typed parameters out of a command string using the
// domain vocabularies.
func ExtractEntities(text string) models.CommandParams {
	var params models.CommandParams

	params.PatientName = extractPatientName(text)
	params.PatientID = extractPatientID(text)

	if m := reSelectIndex.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			params.Index = n
		}
	}

	if code, ok := LookupLabCode(text); ok {
		params.LabCode = code
	}

	params.TimeRange = extractTimeRange(text)
	params.MessageContent = extractMessageContent(text)

	if rePronoun.MatchString(text) {
		params.UseActivePatient = true
	}

	return params
}

// extractPatientName finds a patient name from quoted text, text following
// "named", or text following "pt"/"patient" that is not purely numeric.
func extractPatientName(text string) string {
	if m := reQuoted.FindStringSubmatch(text); m != nil {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		return strings.TrimSpace(name)
	}
	if m := reNamed.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := rePatientRef.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if reAllDigits.MatchString(candidate) {
			return ""
		}
		if nameStopwords[strings.ToLower(candidate)] {
			return ""
		}
		return candidate
	}
	return ""
}

// extractPatientID finds a digit or hex-like token following "patient"/"pt".
func extractPatientID(text string) string {
	m := rePatientID.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// extractTimeRange normalizes a relative range to a canonical token:
// "past 6 months" -> "6m", "last year" -> "1y".
func extractTimeRange(text string) string {
	m := reTimeRange.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	n := 1
	if m[1] != "" {
		if parsed, err := strconv.Atoi(m[1]); err == nil && parsed > 0 {
			n = parsed
		}
	}
	unit := strings.ToLower(m[2])[0:1] // y, m, w, d
	return fmt.Sprintf("%d%s", n, unit)
}

// extractMessageContent finds a message body: text following "about",
// "saying" or "that", text following "if" for ask-style commands, or a
// trailing quoted string — checked in that priority order.
func extractMessageContent(text string) string {
	if m := reAbout.FindStringSubmatch(text); m != nil {
		return trimMessage(m[1])
	}
	if m := reSaying.FindStringSubmatch(text); m != nil {
		return trimMessage(m[1])
	}
	if m := reThat.FindStringSubmatch(text); m != nil {
		return trimMessage(m[1])
	}
	if reAsk.MatchString(text) {
		if m := reAskIf.FindStringSubmatch(text); m != nil {
			return trimMessage(m[1])
		}
	}
	if m := reTrailingQuote.FindStringSubmatch(text); m != nil {
		content := m[1]
		if content == "" {
			content = m[2]
		}
		return trimMessage(content)
	}
	return ""
}

func trimMessage(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
