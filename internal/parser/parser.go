// Package parser implements the command compiler, combining classifier and
// extractor output into structured commands.
package parser

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

// Compile builds a single structured command from a trimmed command string.
// A classification miss is not an error: the command defaults to
// show/unknown. The only rejected inputs are empty strings and selection
// commands with an index below 1.
func Compile(text string) (models.Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Command{}, models.ErrEmptyInput
	}

	action, resource := Classify(text)
	params := ExtractEntities(text)

	cmd := models.Command{
		Action:   action,
		Resource: resource,
		Params:   params,
		Raw:      text,
	}

	if action == models.ActionSelect && params.Index < 1 {
		slog.Debug("Parser rejected selection index", "raw", text, "index", params.Index)
		return models.Command{}, models.ErrInvalidIndex
	}

	slog.Debug("Parser compiled command", "action", action, "resource", resource, "raw", text)
	return cmd, nil
}

// Parse compiles raw input into an ordered list of commands. Compound input
// is split and each segment compiled independently; plain input yields a
// single-element slice. Empty or whitespace-only input yields nil with no
// error. Parsing is a pure function of the input text plus the immutable
// vocabularies.
func Parse(input string) ([]models.Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	if IsCompound(input) {
		return CompileChain(input)
	}

	cmd, err := Compile(input)
	if err != nil {
		return nil, err
	}
	return []models.Command{cmd}, nil
}
