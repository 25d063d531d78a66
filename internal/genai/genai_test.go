package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/ChartFlow/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChat returns a canned completion instead of calling OpenAI.
type mockChat struct {
	content string
	err     error
}

func (m *mockChat) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

func newTestClient(content string) *Client {
	return &Client{chat: &mockChat{content: content}, model: openai.ChatModelGPT4oMini}
}

func TestGenerateCommand_ValidJSON(t *testing.T) {
	c := newTestClient(`{"action":"show","resource":"medication","params":{"patient_id":"12"}}`)

	cmd, err := c.GenerateCommand(context.Background(), "show pt 12 meds")
	if err != nil {
		t.Fatalf("GenerateCommand failed: %v", err)
	}
	if cmd.Action != models.ActionShow || cmd.Resource != models.ResourceMedication {
		t.Errorf("command = %s/%s, want show/medication", cmd.Action, cmd.Resource)
	}
	if cmd.Params.PatientID != "12" {
		t.Errorf("patient ID = %q, want 12", cmd.Params.PatientID)
	}
	if cmd.Raw != "show pt 12 meds" {
		t.Errorf("raw = %q, want the original input preserved", cmd.Raw)
	}
}

func TestGenerateCommand_StripsCodeFence(t *testing.T) {
	c := newTestClient("```json\n{\"action\":\"search\",\"resource\":\"patient\",\"params\":{\"patient_name\":\"Smith\"}}\n```")

	cmd, err := c.GenerateCommand(context.Background(), "find patients named Smith")
	if err != nil {
		t.Fatalf("GenerateCommand failed: %v", err)
	}
	if cmd.Action != models.ActionSearch || cmd.Params.PatientName != "Smith" {
		t.Errorf("command = %+v, want search for Smith", cmd)
	}
}

func TestGenerateCommand_OffModelValuesDegrade(t *testing.T) {
	c := newTestClient(`{"action":"summon","resource":"dragon"}`)

	cmd, err := c.GenerateCommand(context.Background(), "summon the dragon")
	if err != nil {
		t.Fatalf("GenerateCommand failed: %v", err)
	}
	if cmd.Action != models.ActionShow {
		t.Errorf("action = %s, want show fallback", cmd.Action)
	}
	if cmd.Resource != models.ResourceUnknown {
		t.Errorf("resource = %s, want unknown fallback", cmd.Resource)
	}
}

func TestGenerateCommand_EmptyInput(t *testing.T) {
	c := newTestClient(`{}`)

	if _, err := c.GenerateCommand(context.Background(), "   "); !errors.Is(err, models.ErrEmptyInput) {
		t.Errorf("error = %v, want ErrEmptyInput", err)
	}
}

func TestGenerateCommand_UnparseableContent(t *testing.T) {
	c := newTestClient("sorry, I cannot help with that")

	if _, err := c.GenerateCommand(context.Background(), "show meds"); err == nil {
		t.Error("expected an error for non-JSON content")
	}
}

func TestGenerateCommand_RequestError(t *testing.T) {
	reqErr := errors.New("rate limited")
	c := &Client{chat: &mockChat{err: reqErr}, model: openai.ChatModelGPT4oMini}

	if _, err := c.GenerateCommand(context.Background(), "show meds"); !errors.Is(err, reqErr) {
		t.Errorf("error = %v, want the request failure wrapped", err)
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected an error without an API key")
	}

	c, err := NewClient(WithAPIKey("sk-test"), WithModel("gpt-4o"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.model != openai.ChatModel("gpt-4o") {
		t.Errorf("model = %s, want gpt-4o", c.model)
	}
}
