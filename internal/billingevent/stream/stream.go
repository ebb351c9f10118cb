package stream

import (
	"context"
	"encoding/json"
	"strings"

	ceevent "github.com/cloudevents/sdk-go/v2/event"
	redis "github.com/redis/go-redis/v9"

	"github.com/smallbiznis/workspacebilling/internal/billingevent/domain"
	"github.com/smallbiznis/workspacebilling/internal/config"
)

const (
	eventSource     = "workspacebilling/billing-webhook"
	eventTypePrefix = "com.openplan.billing."
)

// Client is the subset of redis used by the sink.
type Client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

var _ Client = (*redis.Client)(nil)

// Sink appends billing events to a redis stream as structured CloudEvents.
type Sink struct {
	client Client
	stream string
	maxLen int64
}

// NewClient returns nil when no redis address is configured.
func NewClient(cfg config.BillingEventsConfig) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}

func NewSink(client Client, stream string, maxLen int64) *Sink {
	stream = strings.TrimSpace(stream)
	if stream == "" {
		stream = "billing:events"
	}
	return &Sink{client: client, stream: stream, maxLen: maxLen}
}

func (s *Sink) Name() string { return "redis_stream" }

func (s *Sink) Write(ctx context.Context, event domain.BillingEvent) error {
	raw, err := Encode(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"workspace_id": event.WorkspaceID,
			"event_type":   event.EventType,
			"cloudevent":   string(raw),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

// Encode renders a billing event as a structured-mode CloudEvent.
func Encode(event domain.BillingEvent) ([]byte, error) {
	ce := ceevent.New()
	ce.SetID(event.ID.String())
	ce.SetSource(eventSource)
	ce.SetType(eventTypePrefix + event.EventType)
	ce.SetSubject(event.WorkspaceID)
	ce.SetTime(event.CreatedAt)
	ce.SetExtension("billingsource", event.Source)
	if err := ce.SetData(ceevent.ApplicationJSON, map[string]any(event.Payload)); err != nil {
		return nil, err
	}
	if err := ce.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(ce)
}
