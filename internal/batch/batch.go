// Package batch 有界并发的批量执行器。
package batch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Run 并发执行 tasks，结果按任务原始顺序返回。
// worker 抢占式领取下一个下标，任一任务失败即整体失败并取消其余任务。
func Run[T any](ctx context.Context, tasks []func(context.Context) (T, error), maxConcurrent int) ([]T, error) {
	if len(tasks) == 0 {
		return []T{}, nil
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxConcurrent > len(tasks) {
		maxConcurrent = len(tasks)
	}

	results := make([]T, len(tasks))
	var next int64 = -1

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < maxConcurrent; w++ {
		g.Go(func() error {
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= len(tasks) {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				out, err := tasks[i](gctx)
				if err != nil {
					return err
				}
				results[i] = out
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
