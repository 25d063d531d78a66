// Package parser implements the compound command splitter.
package parser

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

// chainSeparator is the internal token all recognized connectors are
// normalized to before segmenting.
const chainSeparator = "\x1f"

var (
	reConnectorAndThen = regexp.MustCompile(`(?i)\s+and\s+then\s+`)
	reConnectorThen    = regexp.MustCompile(`(?i)\s+then\s+`)
	reConnectorPunct   = regexp.MustCompile(`[,;]\s*`)
	reConnectorAnd     = regexp.MustCompile(`(?i)\s+and\s+([a-z]+)\b`)
	reThenWord         = regexp.MustCompile(`(?i)\bthen\b`)
	rePunctNoSpace     = regexp.MustCompile(`[,;]\S`)
)

// IsCompound reports whether the input expresses an ordered chain of
// commands. A string is compound if it contains the literal connector
// "then", a comma or semicolon immediately followed by a non-space
// character, or the word "and" immediately followed by a known action verb
// (so "search and rescue" is not a chain).
func IsCompound(input string) bool {
	if reThenWord.MatchString(input) {
		return true
	}
	if rePunctNoSpace.MatchString(input) {
		return true
	}
	for _, m := range reConnectorAnd.FindAllStringSubmatch(input, -1) {
		if IsActionVerb(m[1]) {
			return true
		}
	}
	return false
}

// Split normalizes all recognized connectors to a single internal separator
// and segments on it, discarding empty segments after trimming.
func Split(input string) []string {
	normalized := reConnectorAndThen.ReplaceAllString(input, chainSeparator)
	normalized = reConnectorThen.ReplaceAllString(normalized, chainSeparator)
	normalized = reConnectorPunct.ReplaceAllString(normalized, chainSeparator)
	normalized = reConnectorAnd.ReplaceAllStringFunc(normalized, func(m string) string {
		sub := reConnectorAnd.FindStringSubmatch(m)
		if IsActionVerb(sub[1]) {
			return chainSeparator + sub[1]
		}
		return m
	})

	var segments []string
	for _, seg := range strings.Split(normalized, chainSeparator) {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// CompileChain splits a compound input and compiles each segment
// independently, applying forward-only context inheritance: a later segment
// lacking any patient reference inherits "use the active patient" from an
// earlier segment that established one. A segment never looks ahead.
func CompileChain(input string) ([]models.Command, error) {
	segments := Split(input)
	slog.Debug("Parser compound split", "segments", len(segments))

	commands := make([]models.Command, 0, len(segments))
	patientEstablished := false
	for _, seg := range segments {
		cmd, err := Compile(seg)
		if err != nil {
			return nil, err
		}
		if !cmd.Params.UseActivePatient && cmd.Params.PatientName == "" && cmd.Params.PatientID == "" {
			if patientEstablished {
				cmd.Params.UseActivePatient = true
			}
		}
		if cmd.Params.PatientName != "" || cmd.Params.PatientID != "" {
			patientEstablished = true
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}
