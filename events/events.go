// Package events fans compose activity out to operators: a redis pub/sub
// publisher fed by the template handler and an SSE relay endpoint.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const eventChannel = "composer:events"

// Event is one compose-activity record on the event feed.
type Event struct {
	Type       string    `json:"type"`
	RequestID  string    `json:"request_id,omitempty"`
	TemplateID string    `json:"template_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher pushes events to redis pub/sub. A nil Publisher or one without
// a redis client drops events silently so the request path never depends on
// redis being up.
type Publisher struct {
	redis  *redis.Client
	logger *slog.Logger
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient, logger: slog.Default()}
}

// ComposeServed publishes one served compose request to the event feed.
func (p *Publisher) ComposeServed(ctx context.Context, requestID, templateID string) {
	p.publish(ctx, Event{
		Type:       "compose",
		RequestID:  requestID,
		TemplateID: templateID,
		Timestamp:  time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, event Event) {
	if p == nil || p.redis == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal compose event", "err", err)
		return
	}
	if err := p.redis.Publish(ctx, eventChannel, payload).Err(); err != nil {
		p.logger.Error("failed to publish compose event", "err", err)
	}
}
