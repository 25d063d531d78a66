// Package genai provides an OpenAI-backed alternative parser that maps
// free-text clinical commands to the same structured command model as the
// rule-based parser. It is strictly optional: the rule cascade remains the
// default and the authority on semantics.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = `You translate clinical free-text commands into JSON.
Respond with a single JSON object and nothing else, with fields:
  "action": one of search, show, list, add, update, plot, draft, message,
            select, help, check, ask, flag, workflow
  "resource": one of patient, schedule, appointment, medication, lab, note,
              encounter, sms, response, workflow, unknown
  "params": object with any of patient_id, patient_name, lab_code,
            medication_name, time_range, message_content, index,
            use_active_patient, specialty
Unset fields must be omitted. If unsure, use action "show" and resource
"unknown".`

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// chatCompleter is the seam between the client and the OpenAI SDK, mocked
// in tests.
type chatCompleter interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client is the OpenAI-backed parser.
type Client struct {
	chat  chatCompleter
	model openai.ChatModel
}

// NewClient creates a GenAI client, falling back to the OPENAI_API_KEY
// environment variable when no key option is supplied.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key must be provided")
	}

	model := openai.ChatModelGPT4oMini
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}

	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client created", "model", model)
	return &Client{chat: &client.Chat.Completions, model: model}, nil
}

// GenerateCommand asks the model to translate input into a structured
// command. The reply is validated against the closed action and resource
// sets; anything off-model degrades to the lenient show/unknown default.
func (c *Client) GenerateCommand(ctx context.Context, input string) (models.Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return models.Command{}, models.ErrEmptyInput
	}

	completion, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(input),
		},
	})
	if err != nil {
		return models.Command{}, fmt.Errorf("completion request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return models.Command{}, fmt.Errorf("completion returned no choices")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	content = stripCodeFence(content)

	var cmd models.Command
	if err := json.Unmarshal([]byte(content), &cmd); err != nil {
		slog.Error("GenAI unparseable completion", "error", err, "content_length", len(content))
		return models.Command{}, fmt.Errorf("failed to decode completion: %w", err)
	}

	if !models.IsValidAction(cmd.Action) {
		slog.Debug("GenAI invalid action, defaulting", "action", cmd.Action)
		cmd.Action = models.ActionShow
	}
	if !models.IsValidResource(cmd.Resource) {
		slog.Debug("GenAI invalid resource, defaulting", "resource", cmd.Resource)
		cmd.Resource = models.ResourceUnknown
	}
	cmd.Raw = input

	slog.Debug("GenAI compiled command", "action", cmd.Action, "resource", cmd.Resource)
	return cmd, nil
}

// stripCodeFence removes a markdown code fence the model sometimes wraps
// around the JSON despite instructions.
func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
