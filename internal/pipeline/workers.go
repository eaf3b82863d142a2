package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/polysentinel/internal/logger"
)

// workerGroup runs count copies of task on an errgroup.
type workerGroup struct {
	name  string
	count int
	task  func(ctx context.Context, id int)
}

func (g workerGroup) start(ctx context.Context, eg *errgroup.Group) {
	for id := 0; id < g.count; id++ {
		id := id
		eg.Go(func() error {
			logger.Debug("%s worker %d started", g.name, id)
			g.task(ctx, id)
			logger.Debug("%s worker %d stopped", g.name, id)
			return nil
		})
	}
}
