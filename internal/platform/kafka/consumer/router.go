package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Router is a Handler that picks a per-topic handler. Messages on topics
// nobody registered go to the fallback, or are logged and acked.
type Router struct {
	routes   map[string]Handler
	fallback Handler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger, fallback Handler) *Router {
	return &Router{routes: map[string]Handler{}, fallback: fallback, logger: logger}
}

// Register binds topic to h. Registering a topic twice is a wiring bug and
// panics at startup.
func (r *Router) Register(topic string, h Handler) {
	if _, dup := r.routes[topic]; dup {
		panic(fmt.Sprintf("consumer: topic %q registered twice", topic))
	}
	r.routes[topic] = h
}

// Topics returns the registered topics, sorted, for the subscription list.
func (r *Router) Topics() []string {
	return slices.Sorted(maps.Keys(r.routes))
}

func (r *Router) Handle(ctx context.Context, msg *Message) error {
	if h, ok := r.routes[msg.Topic]; ok {
		return h.Handle(ctx, msg)
	}
	if r.fallback != nil {
		return r.fallback.Handle(ctx, msg)
	}
	r.logger.WarnContext(ctx, "unrouted kafka message acked",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	return nil
}
