package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/gemchat/pkg/chat"
	"github.com/harun/gemchat/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// echoProvider replies with a fixed prefix, or fails when the text says so.
type echoProvider struct {
	mu       sync.Mutex
	calls    int
	lastHist []session.Message
}

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) SendMessage(_ context.Context, history []session.Message, text string) (string, error) {
	p.mu.Lock()
	p.calls++
	p.lastHist = history
	p.mu.Unlock()

	if strings.HasPrefix(text, "fail") {
		return "", chat.NewProviderError("echo", chat.KindQuota, errors.New("quota exceeded"))
	}
	return "**echo:** " + text, nil
}

func (p *echoProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()

	cfg := Config{
		Port:              0,
		Provider:          &echoProvider{},
		RequestsPerMinute: 30,
		Logger:            zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// frame is either an event or a response
type frame struct {
	Type      string                 `json:"type"`
	Event     string                 `json:"event"`
	Seq       int64                  `json:"seq"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data"`
	ID        string                 `json:"id"`
	Result    map[string]interface{} `json:"result"`
	Error     *RPCError              `json:"error"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntilResponse collects events until the response with id arrives.
func readUntilResponse(t *testing.T, conn *websocket.Conn, id string) ([]frame, frame) {
	t.Helper()
	var events []frame
	for {
		f := readFrame(t, conn)
		if f.Type == "event" {
			events = append(events, f)
			continue
		}
		if f.ID == id {
			return events, f
		}
	}
}

func call(t *testing.T, conn *websocket.Conn, id, method string, params map[string]interface{}) ([]frame, frame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(RPCRequest{ID: id, Method: method, Params: params}))
	return readUntilResponse(t, conn, id)
}

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	cleanup := func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
		srv.Close()
	}

	return serverConn, clientConn, cleanup
}
