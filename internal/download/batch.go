package download

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/docresolver/internal/metrics"
	queuememory "github.com/JakeFAU/docresolver/internal/queue/memory"
)

// Item is one identifier to save.
type Item struct {
	Identifier string
	Name       string
}

// Outcome reports what happened to one Item. Path is empty and Err nil when
// the identifier was not found.
type Outcome struct {
	Item Item
	Path string
	Err  error
}

// ServiceFactory builds the Service used by one worker. Each call must return
// a Service with its own resolver and mirror directory.
type ServiceFactory func(worker int) (*Service, error)

type job struct {
	index int
	item  Item
}

// Batch saves many identifiers with a fixed number of workers.
type Batch struct {
	workers int
	factory ServiceFactory
	logger  *zap.Logger
}

// NewBatch constructs a Batch. workers below one is treated as one.
func NewBatch(workers int, factory ServiceFactory, logger *zap.Logger) *Batch {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch{workers: workers, factory: factory, logger: logger.Named("batch")}
}

// Run saves items and returns one Outcome per item, in input order. Per-item
// failures are reported in the outcomes; the returned error covers worker
// setup and cancellation only.
func (b *Batch) Run(ctx context.Context, items []Item) ([]Outcome, error) {
	outcomes := make([]Outcome, len(items))
	if len(items) == 0 {
		return outcomes, nil
	}
	if err := ctx.Err(); err != nil {
		return outcomes, fmt.Errorf("batch: %w", err)
	}

	queue := queuememory.NewQueue[job](len(items))
	for i, item := range items {
		outcomes[i].Item = item
		if err := queue.Enqueue(ctx, job{index: i, item: item}); err != nil {
			return outcomes, err
		}
	}
	queue.Close()

	services := make([]*Service, min(b.workers, len(items)))
	for w := range services {
		svc, err := b.factory(w)
		if err != nil {
			return outcomes, fmt.Errorf("build worker %d: %w", w, err)
		}
		services[w] = svc
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(services))
	for w, svc := range services {
		logger := b.logger.With(zap.Int("worker", w))
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			for gctx.Err() == nil {
				j, err := queue.Dequeue(gctx)
				if errors.Is(err, queuememory.ErrClosed) {
					return nil
				}
				if err != nil {
					return err
				}
				path, err := svc.Save(gctx, j.item.Identifier, j.item.Name)
				if err != nil {
					logger.Warn("save failed", zap.String("identifier", j.item.Identifier), zap.Error(err))
				}
				outcomes[j.index].Path = path
				outcomes[j.index].Err = err
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, fmt.Errorf("batch: %w", err)
	}
	return outcomes, nil
}
