package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/harun/gemchat/internal/tracing"
	"github.com/harun/gemchat/pkg/chat"
	"github.com/harun/gemchat/pkg/session"
)

// RPC method names
const (
	MethodChatSend    = "chat.send"
	MethodChatHistory = "chat.history"
)

const chatSendSchema = `{
	"type": "object",
	"properties": {
		"text": {"type": "string", "maxLength": 32768}
	},
	"required": ["text"]
}`

const chatHistorySchema = `{
	"type": "object",
	"additionalProperties": false
}`

func (s *Server) registerBuiltinMethods() {
	// Schemas are constants; a failure here is a programming error.
	if err := s.router.RegisterMethod(MethodChatSend, s.handleChatSend, chatSendSchema); err != nil {
		panic(err)
	}
	if err := s.router.RegisterMethod(MethodChatHistory, s.handleChatHistory, chatHistorySchema); err != nil {
		panic(err)
	}
}

// handleChatSend runs one exchange for the client's session.
// Events go out in order: message.user, assistant.pending, then message.assistant or exchange.failed.
func (s *Server) handleChatSend(ctx context.Context, client *Client, params map[string]interface{}) (interface{}, error) {
	text, _ := params["text"].(string)
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if strings.TrimSpace(text) == "" {
		// Still goes through the manager so the ignored input is counted.
		if _, err := client.Chat.SendUserMessage(ctx, client.Session, text); err != nil {
			return nil, err
		}
		return map[string]interface{}{"ignored": true}, nil
	}

	s.sendEvent(client, EventMessageUser, map[string]interface{}{
		"message": s.messageView(session.Message{
			Role:      session.RoleUser,
			Text:      text,
			Timestamp: time.Now(),
		}),
	})
	s.sendEvent(client, EventAssistantPending, map[string]interface{}{
		"text": s.ui.SpinnerText,
	})

	reply, err := client.Chat.SendUserMessage(ctx, client.Session, text)
	if err != nil {
		data := map[string]interface{}{"error": err.Error()}
		if perr, ok := chat.AsProviderError(err); ok {
			data["kind"] = string(perr.Kind)
		}
		s.sendEvent(client, EventExchangeFailed, data)
		logger.Warn().Err(err).Msg("Exchange failed")
		return nil, err
	}

	view := s.messageView(*reply)
	s.sendEvent(client, EventMessageAssistant, map[string]interface{}{"message": view})

	return map[string]interface{}{"message": view}, nil
}

func (s *Server) handleChatHistory(_ context.Context, client *Client, _ map[string]interface{}) (interface{}, error) {
	messages := make([]MessageView, 0, client.Session.Len())
	for msg := range client.Chat.History(client.Session) {
		messages = append(messages, s.messageView(msg))
	}

	return map[string]interface{}{
		"session_id": client.Session.ID(),
		"messages":   messages,
	}, nil
}

func (s *Server) messageView(msg session.Message) MessageView {
	return MessageView{
		Role:      string(msg.Role),
		Text:      msg.Text,
		HTML:      string(s.renderer.MustHTML(msg.Text)),
		Timestamp: msg.Timestamp.UnixMilli(),
	}
}

func (s *Server) sendEvent(client *Client, event string, data interface{}) {
	if err := client.SendEvent(event, data); err != nil {
		s.logger.Warn().
			Err(err).
			Str("clientId", client.ID).
			Str("event", event).
			Msg("Failed to send event")
	}
}
