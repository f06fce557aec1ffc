// Package sink delivers completed response batches to append-only storage.
//
// Sinks preserve row order and make no attempt at deduplication: a batch that
// is appended twice is stored twice.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/trivia/internal/model"
)

// Sink appends a batch of rows.
type Sink interface {
	Append(ctx context.Context, batch []model.Record) error
}

// Named pairs a sink with a label used in logs and errors.
type Named struct {
	Name string
	Sink Sink
}

// Fanout delivers every batch to all of its sinks.
type Fanout struct {
	sinks []Named
}

// NewFanout builds a fan-out over the given sinks.
func NewFanout(sinks ...Named) *Fanout {
	return &Fanout{sinks: sinks}
}

// Len returns the number of configured sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Append writes the batch to every sink concurrently. A failing sink does not
// stop the others; all failures are joined into the returned error.
func (f *Fanout) Append(ctx context.Context, batch []model.Record) error {
	errs := make([]error, len(f.sinks))
	var g errgroup.Group
	for i, n := range f.sinks {
		g.Go(func() error {
			if err := n.Sink.Append(ctx, batch); err != nil {
				errs[i] = fmt.Errorf("%s: %w", n.Name, err)
				return nil
			}
			slog.Debug("batch appended", "sink", n.Name, "rows", len(batch))
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Nop accepts batches without storing them.
type Nop struct{}

func (Nop) Append(_ context.Context, batch []model.Record) error {
	slog.Warn("no response sink configured, batch discarded", "rows", len(batch))
	return nil
}
