package sequence

import (
	"context"
	"time"

	"billtrack/internal/billing/models"
)

// Store hands out per-day counters.
type Store interface {
	Next(ctx context.Context, prefix string, day time.Time) (int64, error)
}

// Generator renders PREFIX-YYYYMMDD-NNNN numbers. The day boundary is taken
// in loc so numbers roll over at local midnight.
type Generator struct {
	store Store
	loc   *time.Location
}

func NewGenerator(store Store, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{store: store, loc: loc}
}

func (g *Generator) Next(ctx context.Context, prefix string, now time.Time) (string, error) {
	local := now.In(g.loc)
	seq, err := g.store.Next(ctx, prefix, local)
	if err != nil {
		return "", err
	}
	return models.FormatNumber(prefix, local, seq), nil
}
