package session

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New()

	assert.NotEmpty(t, s.ID())
	assert.False(t, s.CreatedAt().IsZero())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, StateAwaitingInput, s.State())

	_, ok := s.Last()
	assert.False(t, ok)
	assert.NotEqual(t, s.ID(), New().ID())
}

func TestSession_Append(t *testing.T) {
	t.Run("user then assistant", func(t *testing.T) {
		s := New()

		user, err := s.AppendUser("Hello")
		require.NoError(t, err)
		assert.Equal(t, RoleUser, user.Role)
		assert.False(t, user.Timestamp.IsZero())

		assistant, err := s.AppendAssistant("Hi there")
		require.NoError(t, err)
		assert.Equal(t, RoleAssistant, assistant.Role)

		assert.Equal(t, []Message{user, assistant}, s.Messages())
	})

	t.Run("assistant cannot open a session", func(t *testing.T) {
		s := New()

		_, err := s.AppendAssistant("Hi")
		assert.ErrorIs(t, err, ErrUnexpectedRole)
		assert.Equal(t, 0, s.Len())
	})

	t.Run("assistant cannot follow assistant", func(t *testing.T) {
		s := New()
		_, _ = s.AppendUser("Hello")
		_, _ = s.AppendAssistant("Hi")

		_, err := s.AppendAssistant("Again")
		assert.ErrorIs(t, err, ErrUnexpectedRole)
		assert.Equal(t, 2, s.Len())
	})

	t.Run("user may follow an unanswered user turn", func(t *testing.T) {
		s := New()
		_, _ = s.AppendUser("Hello")

		_, err := s.AppendUser("Anyone there?")
		assert.NoError(t, err)
		assert.Equal(t, 2, s.Len())
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		s := New()

		_, err := s.AppendUser("  \n\t")
		assert.ErrorIs(t, err, ErrEmptyContent)
		assert.Equal(t, 0, s.Len())
	})
}

func TestSession_HistoryIsRestartableSnapshot(t *testing.T) {
	s := New()
	_, _ = s.AppendUser("one")
	_, _ = s.AppendAssistant("two")

	history := s.History()

	// Appends after the snapshot are not visible through it.
	_, _ = s.AppendUser("three")

	first := slices.Collect(history)
	second := slices.Collect(history)
	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, "one", first[0].Text)
	assert.Equal(t, "two", first[1].Text)

	assert.Len(t, slices.Collect(s.History()), 3)
}

func TestSession_HistoryEarlyStop(t *testing.T) {
	s := New()
	_, _ = s.AppendUser("one")
	_, _ = s.AppendAssistant("two")

	seen := 0
	for range s.History() {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestSession_MessagesReturnsCopy(t *testing.T) {
	s := New()
	_, _ = s.AppendUser("original")

	msgs := s.Messages()
	msgs[0].Text = "mutated"

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "original", last.Text)
}

func TestSession_State(t *testing.T) {
	s := New()

	s.SetState(StateProcessing)
	assert.Equal(t, StateProcessing, s.State())
	s.SetState(StateAwaitingInput)
	assert.Equal(t, StateAwaitingInput, s.State())
}

func TestSession_ConcurrentReads(t *testing.T) {
	s := New()
	_, _ = s.AppendUser("Hello")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range s.History() {
			}
			_ = s.Len()
		}()
	}
	_, _ = s.AppendAssistant("Hi")
	wg.Wait()

	assert.Equal(t, 2, s.Len())
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("model").Valid())
}

func TestAppendRejectsUnknownRole(t *testing.T) {
	s := New()
	_, err := s.AppendUser("Hello")
	require.NoError(t, err)

	_, err = s.append(Role("model"), "Hi")
	assert.ErrorIs(t, err, ErrUnexpectedRole)
	assert.Equal(t, 1, s.Len())
}
