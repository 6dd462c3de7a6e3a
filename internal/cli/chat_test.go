package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/harun/gemchat/internal/config"
	"github.com/harun/gemchat/pkg/chat"
	"github.com/harun/gemchat/pkg/provider"
	"github.com/harun/gemchat/pkg/render"
	"github.com/harun/gemchat/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type replyProvider struct {
	reply string
	err   error
	calls int
}

func (p *replyProvider) Name() string { return "reply" }

func (p *replyProvider) SendMessage(context.Context, []session.Message, string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func useProvider(t *testing.T, p chat.CompletionProvider) {
	t.Helper()
	orig := newCompletionProvider
	newCompletionProvider = func(context.Context, config.GeminiConfig, provider.Options) (chat.CompletionProvider, error) {
		return p, nil
	}
	t.Cleanup(func() { newCompletionProvider = orig })
}

func TestChatCommandRequiresAPIKey(t *testing.T) {
	useProvider(t, &replyProvider{reply: "unused"})

	_, err := executeCommand(t, "Hello\n", "chat")
	require.Error(t, err)

	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "gemini.api_key", cfgErr.Field)
}

func TestChatCommandExchange(t *testing.T) {
	p := &replyProvider{reply: "Hi there"}
	useProvider(t, p)
	t.Setenv("GEMCHAT_GEMINI_API_KEY", "test-key")

	output, err := executeCommand(t, "Hello\n   \n/history\n/quit\nignored\n", "chat")
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls)
	assert.Contains(t, output, "💬 Large Language Model ChatBot")
	assert.Contains(t, output, "Let me think.....")
	assert.Contains(t, output, "Hi there")
	assert.Contains(t, output, "[user] Hello")
	assert.Contains(t, output, "[assistant] Hi there")
}

func TestChatCommandProviderFailureContinues(t *testing.T) {
	p := &replyProvider{err: chat.NewProviderError("reply", chat.KindQuota, errors.New("quota exceeded"))}
	useProvider(t, p)
	t.Setenv("GEMCHAT_GEMINI_API_KEY", "test-key")

	output, err := executeCommand(t, "Hello\nAgain\n/history\n", "chat")
	require.NoError(t, err)

	assert.Equal(t, 2, p.calls)
	assert.Contains(t, output, "Error: reply provider error (quota): quota exceeded")
	assert.Contains(t, output, "[user] Hello")
	assert.Contains(t, output, "[user] Again")
	assert.NotContains(t, output, "[assistant]")
}

func TestChatCommandEmptyHistory(t *testing.T) {
	useProvider(t, &replyProvider{reply: "Hi"})
	t.Setenv("GEMCHAT_GEMINI_API_KEY", "test-key")

	output, err := executeCommand(t, "/history\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, output, "(no messages yet)")
}

func TestChatREPLStopsOnCancelWhileIdle(t *testing.T) {
	p := &replyProvider{reply: "unused"}
	mgr, err := chat.NewManager(chat.Config{Provider: p, Logger: zerolog.Nop()})
	require.NoError(t, err)

	term, err := render.NewTerminal("notty", 80)
	require.NoError(t, err)

	stdin, stdinWriter := io.Pipe()
	t.Cleanup(func() { _ = stdinWriter.Close() })

	var out bytes.Buffer
	repl := &chatREPL{
		manager: mgr,
		term:    term,
		ui:      config.DefaultConfig().UI,
		in:      stdin,
		out:     &out,
		logger:  zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- repl.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("chat loop still waiting for input after cancel")
	}
	assert.Equal(t, 0, p.calls)
	assert.Contains(t, out.String(), "What's in your mind....?")
}
