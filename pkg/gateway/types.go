package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/gemchat/pkg/chat"
	"github.com/harun/gemchat/pkg/session"
)

// RPCRequest is a frame sent by the page
type RPCRequest struct {
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
	JSONRPC string                 `json:"jsonrpc"`
}

// RPCResponse answers one RPCRequest
type RPCResponse struct {
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// EventMessage is a server-initiated frame
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq"`
	Timestamp int64       `json:"timestamp"`
	SessionID string      `json:"session_id,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	Data      interface{} `json:"data"`
}

// Event names
const (
	EventSessionReady     = "session.ready"
	EventMessageUser      = "message.user"
	EventAssistantPending = "assistant.pending"
	EventMessageAssistant = "message.assistant"
	EventExchangeFailed   = "exchange.failed"
	EventServerShutdown   = "server.shutdown"
)

// MessageView is a session message as the page displays it
type MessageView struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	HTML      string `json:"html"`
	Timestamp int64  `json:"timestamp"`
}

// ClientInfo describes a connected browser tab
type ClientInfo struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	Messages     int       `json:"messages"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	Idle         bool      `json:"idle"`
}

// RequestHandler handles one RPC method for a client
type RequestHandler func(ctx context.Context, client *Client, params map[string]interface{}) (interface{}, error)

// RPC error codes
const (
	ParseError        = -32700
	InvalidRequest    = -32600
	MethodNotFound    = -32601
	InvalidParams     = -32602
	InternalError     = -32603
	RateLimitExceeded = -32005
	TooManyConcurrent = -32006
	ProviderFailure   = -32010
	ShuttingDown      = -32011
)

// Client is one connected browser tab: a runtime instance with its own chat manager.
type Client struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string
	RateLimiter  *ClientRateLimiter
	Chat         *chat.Manager
	Session      *session.Session

	writeMu sync.Mutex
	seq     atomic.Int64
}

// WriteJSON serializes writes to the connection; gorilla allows one concurrent writer.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.Conn.WriteJSON(v)
}

// SendEvent writes an event frame with the client's next sequence number.
func (c *Client) SendEvent(event string, data interface{}) error {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Seq:       c.seq.Add(1),
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
	if c.Session != nil {
		msg.SessionID = c.Session.ID()
	}
	return c.WriteJSON(msg)
}

const writeTimeout = 10 * time.Second
