package obscontext

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	deliveryKey
)

// Delivery identifies the webhook delivery being processed.
type Delivery struct {
	Provider    string
	EventID     string
	WorkspaceID string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithDelivery merges non-empty fields of d into any delivery already on ctx.
func WithDelivery(ctx context.Context, d Delivery) context.Context {
	current := DeliveryFromContext(ctx)
	if v := strings.TrimSpace(d.Provider); v != "" {
		current.Provider = v
	}
	if v := strings.TrimSpace(d.EventID); v != "" {
		current.EventID = v
	}
	if v := strings.TrimSpace(d.WorkspaceID); v != "" {
		current.WorkspaceID = v
	}
	return context.WithValue(ctx, deliveryKey, current)
}

func DeliveryFromContext(ctx context.Context) Delivery {
	if ctx == nil {
		return Delivery{}
	}
	value, _ := ctx.Value(deliveryKey).(Delivery)
	return value
}
