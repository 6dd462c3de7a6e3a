package daemon

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/harun/gemchat/internal/config"
	"github.com/harun/gemchat/internal/logger"
	"github.com/harun/gemchat/pkg/chat"
	"github.com/harun/gemchat/pkg/provider"
	"github.com/harun/gemchat/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) SendMessage(context.Context, []session.Message, string) (string, error) {
	return "ok", nil
}

func useStubProvider(t *testing.T) {
	t.Helper()
	orig := newProvider
	newProvider = func(context.Context, config.GeminiConfig, provider.Options) (chat.CompletionProvider, error) {
		return stubProvider{}, nil
	}
	t.Cleanup(func() { newProvider = orig })
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Gemini.APIKey = "test-key"
	cfg.Server.Port = 18501
	cfg.Server.ShutdownTimeout = 1
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "info", Console: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestNewRequiresAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()

	_, err := New(cfg, testLogger(t))
	require.Error(t, err)

	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "gemini.api_key", cfgErr.Field)
}

func TestNewProviderFailure(t *testing.T) {
	orig := newProvider
	newProvider = func(context.Context, config.GeminiConfig, provider.Options) (chat.CompletionProvider, error) {
		return nil, errors.New("no client")
	}
	t.Cleanup(func() { newProvider = orig })

	_, err := New(testConfig(), testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize provider")
}

func TestDaemonRunAndStop(t *testing.T) {
	useStubProvider(t)

	cfg := testConfig()
	d, err := New(cfg, testLogger(t))
	require.NoError(t, err)
	assert.False(t, d.Status().Running)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + d.Status().Addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	status := d.Status()
	assert.True(t, status.Running)
	assert.False(t, status.StartTime.IsZero())
	assert.Equal(t, 0, status.Clients)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.False(t, d.Status().Running)
}

func TestDaemonRunFailsOnBusyPort(t *testing.T) {
	useStubProvider(t)

	cfg := testConfig()
	cfg.Server.Port = 18502

	first, err := New(cfg, testLogger(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- first.Run(ctx) }()

	require.Eventually(t, func() bool { return first.Status().Running }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + first.Status().Addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	second, err := New(cfg, testLogger(t))
	require.NoError(t, err)
	err = second.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")

	cancel()
	<-done
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDaemonLogsStatusOnStop(t *testing.T) {
	useStubProvider(t)

	out := &lockedBuffer{}
	log, err := logger.New(logger.Config{Level: "info", Console: true, Out: out})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	cfg := testConfig()
	cfg.Server.Port = 18503
	d, err := New(cfg, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Status().Running }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	output := out.String()
	assert.Contains(t, output, "Stopping gemchat")
	assert.Contains(t, output, `"clients":0`)
	assert.Contains(t, output, `"uptime"`)
}
