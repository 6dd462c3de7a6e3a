package session

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

var (
	// ErrEmptyContent is returned when appending a message without text.
	ErrEmptyContent = errors.New("message text cannot be empty")
	// ErrUnexpectedRole is returned when an append would break turn order.
	ErrUnexpectedRole = errors.New("unexpected message role")
)

// Message represents a single conversation turn
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the exchange state of a session
type State string

const (
	StateAwaitingInput State = "awaiting_input"
	StateProcessing    State = "processing"
)

// Session is an ordered, append-only conversation. Safe for concurrent reads.
type Session struct {
	id        string
	createdAt time.Time

	mu       sync.RWMutex
	messages []Message
	state    State
}

// New creates an empty session
func New() *Session {
	return &Session{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		messages:  []Message{},
		state:     StateAwaitingInput,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was created
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// AppendUser appends a user turn. A user turn may follow anything, including an
// unanswered user turn left by a failed exchange.
func (s *Session) AppendUser(text string) (Message, error) {
	return s.append(RoleUser, text)
}

// AppendAssistant appends an assistant turn answering the trailing user turn.
func (s *Session) AppendAssistant(text string) (Message, error) {
	return s.append(RoleAssistant, text)
}

func (s *Session) append(role Role, text string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnexpectedRole, role)
	}
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if role == RoleAssistant {
		n := len(s.messages)
		if n == 0 || s.messages[n-1].Role != RoleUser {
			return Message{}, fmt.Errorf("%w: assistant must follow a user message", ErrUnexpectedRole)
		}
	}

	msg := Message{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

// Len returns the number of messages
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Messages returns a copy of the history
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// History returns a snapshot of the conversation as a restartable sequence.
// Messages appended after the call are not part of the snapshot.
func (s *Session) History() iter.Seq[Message] {
	snapshot := s.Messages()
	return func(yield func(Message) bool) {
		for _, msg := range snapshot {
			if !yield(msg) {
				return
			}
		}
	}
}

// Last returns the most recent message
func (s *Session) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// State returns the exchange state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState records the exchange state
func (s *Session) SetState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
