package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/harun/gemchat/internal/observability"
	"github.com/harun/gemchat/internal/tracing"
	"github.com/harun/gemchat/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTimeout bounds a provider call when Config.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// CompletionProvider turns a conversation into the next assistant turn.
type CompletionProvider interface {
	// SendMessage returns the reply to text given the prior history.
	SendMessage(ctx context.Context, history []session.Message, text string) (string, error)

	// Name returns the provider name
	Name() string
}

// Config configures a Manager
type Config struct {
	Provider CompletionProvider
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Manager owns the session of one runtime instance (a browser tab or a terminal run).
type Manager struct {
	provider CompletionProvider
	timeout  time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	session *session.Session
}

// NewManager creates a Manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Provider == nil {
		return nil, errors.New("completion provider is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Manager{
		provider: cfg.Provider,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}, nil
}

// GetOrCreateSession returns the instance's session, creating an empty one on first use.
func (m *Manager) GetOrCreateSession() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		m.session = session.New()
		observability.RecordSessionCreated()
		m.logger.Debug().Str("session_id", m.session.ID()).Msg("Session created")
	}
	return m.session
}

// SendUserMessage runs one exchange and returns the assistant message.
// Blank input is ignored: it returns (nil, nil) without calling the provider.
// On provider failure the user message stays in history and a *ProviderError is returned.
func (m *Manager) SendUserMessage(ctx context.Context, s *session.Session, text string) (*session.Message, error) {
	if s == nil {
		s = m.GetOrCreateSession()
	}
	if strings.TrimSpace(text) == "" {
		observability.RecordIgnoredInput()
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = tracing.WithSessionID(ctx, s.ID())
	ctx = tracing.WithExchangeID(ctx, tracing.NewExchangeID())
	ctx, span := tracing.StartSpan(
		ctx,
		"gemchat.chat",
		"chat.send_user_message",
		attribute.String("session_id", s.ID()),
		attribute.String("provider", m.provider.Name()),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	prior := s.Messages()
	if _, err := s.AppendUser(text); err != nil {
		tracing.FailSpan(span, err)
		return nil, fmt.Errorf("failed to append user message: %w", err)
	}

	s.SetState(session.StateProcessing)
	defer s.SetState(session.StateAwaitingInput)

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	logger.Debug().Int("history", len(prior)).Msg("Requesting completion")
	start := time.Now()
	reply, err := m.provider.SendMessage(callCtx, prior, text)
	duration := time.Since(start)

	if err == nil && strings.TrimSpace(reply) == "" {
		err = NewProviderError(m.provider.Name(), KindMalformed, errors.New("empty completion"))
	}
	if err != nil {
		perr := wrapProviderError(m.provider.Name(), err)
		observability.RecordExchange(m.provider.Name(), duration, false, s.Len())
		observability.RecordProviderError(m.provider.Name(), string(perr.Kind))
		tracing.FailSpan(span, perr)
		logger.Warn().
			Err(perr).
			Str("kind", string(perr.Kind)).
			Dur("duration", duration).
			Msg("Completion failed")
		return nil, perr
	}

	msg, err := s.AppendAssistant(reply)
	if err != nil {
		tracing.FailSpan(span, err)
		return nil, fmt.Errorf("failed to append assistant message: %w", err)
	}

	observability.RecordExchange(m.provider.Name(), duration, true, s.Len())
	span.SetAttributes(attribute.Int("history_length", s.Len()))
	logger.Info().
		Dur("duration", duration).
		Int("history", s.Len()).
		Msg("Exchange completed")

	return &msg, nil
}

// History returns a restartable snapshot of the session's messages.
func (m *Manager) History(s *session.Session) iter.Seq[session.Message] {
	if s == nil {
		return func(func(session.Message) bool) {}
	}
	return s.History()
}

// ProviderName returns the name of the completion provider
func (m *Manager) ProviderName() string {
	return m.provider.Name()
}

// Close ends the runtime instance and drops its session.
// A later GetOrCreateSession starts a new, empty session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.logger.Debug().
			Str("session_id", m.session.ID()).
			Int("messages", m.session.Len()).
			Msg("Session closed")
		m.session = nil
		observability.RecordSessionClosed()
	}
}
