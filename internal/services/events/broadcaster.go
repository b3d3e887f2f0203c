package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeTurnQueued     EventType = "turn.queued"
	EventTypeTurnProcessing EventType = "turn.processing"
	EventTypeTurnCompleted  EventType = "turn.completed"
	EventTypeTurnFailed     EventType = "turn.failed"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Broadcaster publishes turn lifecycle events to Redis Pub/Sub so clients
// can subscribe instead of polling.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Channel returns the pub/sub channel name for a session.
func Channel(sessionID uuid.UUID) string {
	return fmt.Sprintf("turn-events:%s", sessionID.String())
}

// PublishTurnQueued publishes a turn.queued event
func (b *Broadcaster) PublishTurnQueued(ctx context.Context, sessionID uuid.UUID, requestID string, action string) error {
	event := Event{
		Type:      EventTypeTurnQueued,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data: map[string]any{
			"status": "queued",
			"action": action,
		},
	}
	return b.publish(ctx, sessionID, event)
}

// PublishTurnProcessing publishes a turn.processing event
func (b *Broadcaster) PublishTurnProcessing(ctx context.Context, sessionID uuid.UUID, requestID string) error {
	event := Event{
		Type:      EventTypeTurnProcessing,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data: map[string]any{
			"status": "processing",
		},
	}
	return b.publish(ctx, sessionID, event)
}

// PublishTurnCompleted publishes a turn.completed event with the feed ID
// range produced by the turn.
func (b *Broadcaster) PublishTurnCompleted(ctx context.Context, sessionID uuid.UUID, requestID string, lastFeedID int) error {
	event := Event{
		Type:      EventTypeTurnCompleted,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data: map[string]any{
			"status":       "completed",
			"last_feed_id": lastFeedID,
		},
	}
	return b.publish(ctx, sessionID, event)
}

// PublishTurnFailed publishes a turn.failed event
func (b *Broadcaster) PublishTurnFailed(ctx context.Context, sessionID uuid.UUID, requestID string, errorMsg string) error {
	event := Event{
		Type:      EventTypeTurnFailed,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	}
	return b.publish(ctx, sessionID, event)
}

func (b *Broadcaster) publish(ctx context.Context, sessionID uuid.UUID, event Event) error {
	channel := Channel(sessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	return nil
}
