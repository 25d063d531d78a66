// Package workflow implements the conditional workflow engine for ChartFlow.
//
// This file implements the workflow compiler: it detects whether an input
// expresses a conditional, and if so produces a WorkflowDescriptor plus
// residual base-command text. Four sentence shapes are tried in a fixed
// priority order; the first structural match wins. A conditional sentence is
// handled here, never by the compound splitter.
package workflow

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/parser"
)

var (
	// Shape 1: "ask <pt|patient> <ref> <question>, if <he|she|they> <says|responds> <yes|no> [then] <then-text> [else <else-text>]"
	reAskShape = regexp.MustCompile(`(?i)^(ask\s+(?:pt|patient)\s+.+?)[,;]?\s+if\s+(?:he|she|they)\s+(?:says?|responds?|repl(?:y|ies))\s+(yes|no)\b[,;]?\s*(?:then\s+)?(.+)$`)

	// Shape 2: "if <lab-name> <operator> <number> then <then-text> [else <else-text>]"
	reLabShape = regexp.MustCompile(`(?i)^if\s+(?:the\s+)?([a-z][a-z0-9 ]*?)\s*(>=|<=|>|<|=)\s*(\d+(?:\.\d+)?)\s*[,;]?\s*then\s+(.+)$`)

	// Shape 3: "<base-command>, if none|empty|no results|nothing [found] [then] <then-text> [else <else-text>]"
	reEmptyShape = regexp.MustCompile(`(?i)^(.+?)[,;]?\s+if\s+(?:none|empty|nothing|no\s+results?)(?:\s+found)?\b[,;]?\s*(?:then\s+)?(.+)$`)

	// Shape 4: "<base-command>, if [they say] yes|no [then] <then-text> [else <else-text>]"
	reYesNoShape = regexp.MustCompile(`(?i)^(.+?)[,;]?\s+if\s+(?:(?:he|she|they)\s+(?:says?|responds?|repl(?:y|ies))\s+)?(yes|no)\b[,;]?\s*(?:then\s+)?(.+)$`)

	reElseSplit  = regexp.MustCompile(`(?i)\s+else\s+`)
	reEmbeddedIf = regexp.MustCompile(`(?i)\bif\s+(.+)$`)
)

// IsConditional reports whether the input matches one of the four
// conditional sentence shapes.
func IsConditional(input string) bool {
	desc, _, err := detectShape(strings.TrimSpace(input))
	return err == nil && desc != nil
}

// CompileWorkflow compiles input into a command with its Workflow descriptor
// populated when the input matches a conditional shape. Text that resembles
// but does not fully match any shape is recovered by compiling the whole
// string as a plain command. A branch that itself contains a conditional is
// rejected: only one level of nesting is supported.
func CompileWorkflow(input string) (models.Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return models.Command{}, models.ErrEmptyInput
	}

	desc, baseText, err := detectShape(input)
	if err != nil {
		return models.Command{}, err
	}
	if desc == nil {
		// Not a workflow; fall back to plain compilation.
		slog.Debug("WorkflowCompiler no shape matched, falling back", "raw", input)
		return parser.Compile(input)
	}

	var cmd models.Command
	if baseText != "" {
		cmd, err = parser.Compile(baseText)
		if err != nil {
			return models.Command{}, err
		}
	} else {
		// Pure condition-triggered workflow with no base command.
		cmd = models.Command{Action: models.ActionWorkflow, Resource: models.ResourceWorkflow}
	}
	cmd.Raw = input
	cmd.Workflow = desc

	slog.Debug("WorkflowCompiler compiled conditional", "condition_type", desc.ConditionType, "has_base", baseText != "", "has_else", desc.ElseCommand != "")
	return cmd, nil
}

// detectShape tries the four conditional shapes in priority order and
// returns the descriptor plus residual base-command text. A nil descriptor
// with nil error means the input is not a conditional.
func detectShape(input string) (*models.WorkflowDescriptor, string, error) {
	if m := reAskShape.FindStringSubmatch(input); m != nil {
		base := strings.TrimRight(strings.TrimSpace(m[1]), ",;")
		thenText, elseText := splitElse(m[3])
		if err := rejectNested(thenText, elseText); err != nil {
			return nil, "", err
		}
		return &models.WorkflowDescriptor{
			ConditionType:    models.ConditionPatientResponse,
			ExpectedResponse: strings.ToLower(m[2]),
			ThenCommand:      thenText,
			ElseCommand:      elseText,
			AskMessage:       askMessageFromBase(base),
		}, base, nil
	}

	if m := reLabShape.FindStringSubmatch(input); m != nil {
		labName := strings.TrimSpace(m[1])
		code, ok := parser.LabCodeForName(labName)
		if ok {
			value, err := strconv.ParseFloat(m[3], 64)
			if err == nil {
				thenText, elseText := splitElse(m[4])
				if err := rejectNested(thenText, elseText); err != nil {
					return nil, "", err
				}
				return &models.WorkflowDescriptor{
					ConditionType: models.ConditionLabValue,
					LabCode:       code,
					Operator:      models.ComparisonOperator(m[2]),
					Value:         value,
					ThenCommand:   thenText,
					ElseCommand:   elseText,
				}, "", nil
			}
		}
		// Unknown lab name or bad number: not this shape, keep trying.
	}

	if m := reEmptyShape.FindStringSubmatch(input); m != nil {
		base := strings.TrimRight(strings.TrimSpace(m[1]), ",;")
		thenText, elseText := splitElse(m[2])
		if err := rejectNested(thenText, elseText); err != nil {
			return nil, "", err
		}
		return &models.WorkflowDescriptor{
			ConditionType: models.ConditionResultEmpty,
			ThenCommand:   thenText,
			ElseCommand:   elseText,
		}, base, nil
	}

	if m := reYesNoShape.FindStringSubmatch(input); m != nil {
		base := strings.TrimRight(strings.TrimSpace(m[1]), ",;")
		thenText, elseText := splitElse(m[3])
		if err := rejectNested(thenText, elseText); err != nil {
			return nil, "", err
		}
		return &models.WorkflowDescriptor{
			ConditionType:    models.ConditionPatientResponse,
			ExpectedResponse: strings.ToLower(m[2]),
			ThenCommand:      thenText,
			ElseCommand:      elseText,
		}, base, nil
	}

	return nil, "", nil
}

// splitElse separates branch text into then and else parts on the first
// standalone "else".
func splitElse(branch string) (thenText, elseText string) {
	parts := reElseSplit.Split(branch, 2)
	thenText = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		elseText = strings.TrimSpace(parts[1])
	}
	return thenText, elseText
}

// rejectNested enforces the one-level nesting rule: branch text is free-form
// command text, never another conditional.
func rejectNested(thenText, elseText string) error {
	for _, branch := range []string{thenText, elseText} {
		if branch == "" {
			continue
		}
		if desc, _, _ := detectShape(branch); desc != nil {
			return models.ErrNestedConditional
		}
	}
	return nil
}

// askMessageFromBase derives the question to send from the text following
// the embedded "if" inside the base ask clause, suffixed with "?".
func askMessageFromBase(base string) string {
	m := reEmbeddedIf.FindStringSubmatch(base)
	if m == nil {
		return ""
	}
	question := strings.TrimSpace(strings.TrimRight(m[1], " ?.!,"))
	if question == "" {
		return ""
	}
	return question + "?"
}
