// Package parser implements the intent classifier.
//
// Classification tests an ordered list of (predicate, label) pairs per axis
// and takes the first match by declaration order. The ordering is a
// deliberate tie-break: resource rules for workflow, sms and response are
// tested before the generic patient rule so that "message patient about..."
// resolves to sms rather than patient. No match is a recoverable non-error
// that defaults to show/unknown.
package parser

import (
	"regexp"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

// actionRule pairs a predicate with the action it classifies.
type actionRule struct {
	action models.Action
	match  func(string) bool
}

// resourceRule pairs a predicate with the resource it classifies.
type resourceRule struct {
	resource models.Resource
	match    func(string) bool
}

func rePredicate(pattern string) func(string) bool {
	re := regexp.MustCompile(pattern)
	return re.MatchString
}

// actionRules is evaluated in declaration order; first match wins.
var actionRules = []actionRule{
	{models.ActionSearch, rePredicate(`(?i)\b(?:find|search|look\s*up)\b`)},
	{models.ActionSelect, rePredicate(`(?i)\b(?:select|choose|pick)\b`)},
	{models.ActionPlot, rePredicate(`(?i)\b(?:plot|graph|trend)\b`)},
	{models.ActionDraft, rePredicate(`(?i)\bdraft\b`)},
	{models.ActionAsk, rePredicate(`(?i)\bask\b`)},
	{models.ActionFlag, rePredicate(`(?i)\bflag\b`)},
	{models.ActionAdd, rePredicate(`(?i)\b(?:add|start|prescribe|order)\b`)},
	{models.ActionUpdate, rePredicate(`(?i)\b(?:update|change|modify|reschedule|move)\b`)},
	{models.ActionMessage, rePredicate(`(?i)\b(?:message|text|send|notify|sms)\b`)},
	{models.ActionCheck, rePredicate(`(?i)\bcheck\b`)},
	{models.ActionHelp, rePredicate(`(?i)\bhelp\b`)},
	{models.ActionWorkflow, rePredicate(`(?i)^workflows?\b`)},
	{models.ActionList, rePredicate(`(?i)\blist\b`)},
	{models.ActionShow, rePredicate(`(?i)\b(?:show|display|view|get|pull\s+up)\b`)},
}

// resourceRules is evaluated in declaration order; first match wins.
// workflow, sms and response deliberately precede the generic patient rule.
var resourceRules = []resourceRule{
	{models.ResourceWorkflow, rePredicate(`(?i)\bworkflows?\b`)},
	{models.ResourceSMS, rePredicate(`(?i)\b(?:sms|texts?|messages?)\b`)},
	{models.ResourceResponse, rePredicate(`(?i)\b(?:responses?|repl(?:y|ies|ied)|responded)\b`)},
	{models.ResourceSchedule, rePredicate(`(?i)\bschedule\b`)},
	{models.ResourceAppointment, rePredicate(`(?i)\b(?:appointments?|appts?|visits?)\b`)},
	{models.ResourceMedication, rePredicate(`(?i)\b(?:medications?|meds?|prescriptions?|drugs?)\b`)},
	{models.ResourceLab, func(s string) bool {
		if labRe.MatchString(s) {
			return true
		}
		_, ok := LookupLabCode(s)
		return ok
	}},
	{models.ResourceNote, rePredicate(`(?i)\bnotes?\b`)},
	{models.ResourceEncounter, rePredicate(`(?i)\bencounters?\b`)},
	{models.ResourcePatient, rePredicate(`(?i)\b(?:patients?|pt)\b`)},
}

var labRe = regexp.MustCompile(`(?i)\b(?:labs?|lab\s+results?)\b`)

// Classify assigns exactly one action and one resource to a trimmed,
// non-empty command string.
func Classify(text string) (models.Action, models.Resource) {
	action := models.ActionShow
	for _, r := range actionRules {
		if r.match(text) {
			action = r.action
			break
		}
	}

	resource := models.ResourceUnknown
	for _, r := range resourceRules {
		if r.match(text) {
			resource = r.resource
			break
		}
	}

	return action, resource
}
