package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

// SimulatorService implements Service entirely in memory. It is used for
// local development without Twilio or WhatsApp credentials and for tests.
// Inbound patient replies are injected via InjectResponse.
type SimulatorService struct {
	receipts  chan models.Receipt
	responses chan models.Response
	mu        sync.RWMutex
	sent      []models.Response
	stopped   bool
}

// NewSimulatorService creates an in-memory messaging service.
func NewSimulatorService() *SimulatorService {
	return &SimulatorService{
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient applies the same phone canonicalization
// rules as the real transports so simulator runs behave the same.
func (s *SimulatorService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

// SendMessage records the outbound message and emits a sent receipt.
func (s *SimulatorService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.sent = append(s.sent, models.Response{From: canonical, Body: body, Time: time.Now().Unix()})
	s.mu.Unlock()

	slog.Info("SimulatorService message sent", "to", canonical, "body", body)
	select {
	case s.receipts <- models.Receipt{To: canonical, Status: models.MessageStatusSent, Time: time.Now().Unix()}:
	default:
	}
	return nil
}

// InjectResponse simulates an inbound patient reply.
func (s *SimulatorService) InjectResponse(from, body string) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}
	select {
	case s.responses <- models.Response{From: from, Body: body, Time: time.Now().Unix()}:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("SimulatorService responses channel blocked, dropping message", "from", from)
	}
}

// SentMessages returns a copy of everything sent so far, keyed by recipient
// in the From field.
func (s *SimulatorService) SentMessages() []models.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Response, len(s.sent))
	copy(out, s.sent)
	return out
}

// Receipts returns a channel of receipt events.
func (s *SimulatorService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns a channel of incoming response events.
func (s *SimulatorService) Responses() <-chan models.Response {
	return s.responses
}

// Start is a no-op for the simulator.
func (s *SimulatorService) Start(ctx context.Context) error { return nil }

// Stop closes the channels.
func (s *SimulatorService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.receipts)
	close(s.responses)
	return nil
}
