package gateway

import (
	"github.com/rs/zerolog"
)

// EventBroadcaster sends an event to every connected client
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Broadcast sends event to all clients and returns how many received it.
// Each client numbers the event in its own sequence.
func (b *EventBroadcaster) Broadcast(event string, data interface{}) int {
	clients := b.clients.GetAll()
	if len(clients) == 0 {
		b.logger.Debug().Str("event", event).Msg("No clients to broadcast to")
		return 0
	}

	successCount := 0
	failureCount := 0
	for _, client := range clients {
		if err := client.SendEvent(event, data); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("event", event).
				Msg("Failed to broadcast to client")
			failureCount++
			continue
		}
		successCount++
	}

	b.logger.Debug().
		Str("event", event).
		Int("success", successCount).
		Int("failed", failureCount).
		Msg("Event broadcast complete")

	return successCount
}
