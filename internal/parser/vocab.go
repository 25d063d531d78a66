// Package parser implements the rule-based clinical command parser.
//
// This file holds the immutable domain vocabularies shared by the intent
// classifier and the entity extractor. Classification and extraction are pure
// functions of the input text plus these vocabularies, so parsing the same
// string twice always yields structurally identical output.
package parser

import (
	"sort"
	"strings"
)

// labVocabulary maps lower-case lab test phrases to canonical LOINC codes.
// Multiple phrases can map to the same code.
var labVocabulary = map[string]string{
	"creatinine":       "2160-0",
	"serum creatinine": "2160-0",
	"potassium":        "2823-3",
	"sodium":           "2951-2",
	"glucose":          "2345-7",
	"a1c":              "4548-4",
	"hba1c":            "4548-4",
	"hemoglobin a1c":   "4548-4",
	"hemoglobin":       "718-7",
	"wbc":              "6690-2",
	"white blood cell": "6690-2",
	"ldl":              "13457-7",
	"cholesterol":      "2093-3",
	"tsh":              "3016-3",
	"inr":              "34714-6",
	"egfr":             "33914-3",
	"bun":              "3094-0",
}

// labNames maps canonical codes back to display names.
var labNames = map[string]string{
	"2160-0":  "Creatinine",
	"2823-3":  "Potassium",
	"2951-2":  "Sodium",
	"2345-7":  "Glucose",
	"4548-4":  "Hemoglobin A1c",
	"718-7":   "Hemoglobin",
	"6690-2":  "WBC",
	"13457-7": "LDL",
	"2093-3":  "Cholesterol",
	"3016-3":  "TSH",
	"34714-6": "INR",
	"33914-3": "eGFR",
	"3094-0":  "BUN",
}

// specialtyVocabulary maps lower-case specialty keywords to display names.
var specialtyVocabulary = map[string]string{
	"cardiology":       "Cardiology",
	"cardio":           "Cardiology",
	"nephrology":       "Nephrology",
	"renal":            "Nephrology",
	"endocrinology":    "Endocrinology",
	"endo":             "Endocrinology",
	"neurology":        "Neurology",
	"oncology":         "Oncology",
	"dermatology":      "Dermatology",
	"psychiatry":       "Psychiatry",
	"pulmonology":      "Pulmonology",
	"gastroenterology": "Gastroenterology",
	"gi":               "Gastroenterology",
	"rheumatology":     "Rheumatology",
	"urology":          "Urology",
}

// actionVerbs is the fixed set of verbs that make "and <verb>" a chain
// connector. Keeping the set closed avoids false positives such as
// "search and rescue".
var actionVerbs = map[string]bool{
	"search": true, "find": true, "show": true, "display": true,
	"list": true, "add": true, "update": true, "plot": true,
	"draft": true, "message": true, "send": true, "text": true,
	"notify": true, "select": true, "choose": true, "check": true,
	"ask": true, "flag": true, "create": true, "schedule": true,
	"order": true, "reschedule": true,
}

// labPhrasesByLength caches the vocabulary phrases sorted longest-first so
// "hemoglobin a1c" wins over "hemoglobin".
var labPhrasesByLength = func() []string {
	phrases := make([]string, 0, len(labVocabulary))
	for p := range labVocabulary {
		phrases = append(phrases, p)
	}
	sort.Slice(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })
	return phrases
}()

// LookupLabCode returns the canonical code for the first lab phrase found in
// the text, longest phrase first. The second return is false when no phrase
// matches.
func LookupLabCode(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range labPhrasesByLength {
		if containsPhrase(lower, phrase) {
			return labVocabulary[phrase], true
		}
	}
	return "", false
}

// LabCodeForName returns the canonical code for an exact lab name.
func LabCodeForName(name string) (string, bool) {
	code, ok := labVocabulary[strings.ToLower(strings.TrimSpace(name))]
	return code, ok
}

// LabNameForCode returns the display name for a canonical lab code.
func LabNameForCode(code string) string {
	if name, ok := labNames[code]; ok {
		return name
	}
	return code
}

// LookupSpecialty returns the display name for the first specialty keyword
// found in the text.
func LookupSpecialty(text string) (string, bool) {
	lower := strings.ToLower(text)
	for keyword, name := range specialtyVocabulary {
		if containsPhrase(lower, keyword) {
			return name, true
		}
	}
	return "", false
}

// IsActionVerb reports whether the word is in the chain-connector verb set.
func IsActionVerb(word string) bool {
	return actionVerbs[strings.ToLower(word)]
}

// containsPhrase reports whether text contains phrase on word boundaries.
func containsPhrase(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
