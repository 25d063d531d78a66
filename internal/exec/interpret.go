// Package exec runs compiled command chains against the collaborators,
// folding each step's outcome into the shared execution context.
package exec

import (
	"strings"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/BTreeMap/ChartFlow/internal/parser"
	"github.com/BTreeMap/ChartFlow/internal/workflow"
)

// Interpret compiles raw input into an ordered command list. Conditional
// sentences are checked first so that a comma inside an if/then clause is
// never mistaken for a compound chain; everything else goes through the
// plain parser. Empty input yields nil with no error.
func Interpret(input string) ([]models.Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	if workflow.IsConditional(input) {
		cmd, err := workflow.CompileWorkflow(input)
		if err != nil {
			return nil, err
		}
		return []models.Command{cmd}, nil
	}

	return parser.Parse(input)
}
