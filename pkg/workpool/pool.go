// Package workpool 是一个有界的 CPU 密集任务池：任务在独立 goroutine 中执行，
// 并发数由信号量限制，结果通过 channel 以"完成通知"的方式交回调用方，
// 调用方（例如 HTTP handler）只需等待 channel，不会被计算本身占用。
package workpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Result 是一次任务的完成通知。
type Result[T any] struct {
	Value T
	Err   error
}

// Pool 限制同时运行的任务数。
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New 创建容量为 size 的任务池；size <= 0 时使用 runtime.NumCPU()。
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size 返回池容量。
func (p *Pool) Size() int { return p.size }

// Acquire 占用一个槽位，用于把自带并发的计算（如分行构建相似度矩阵）纳入同一上限。
func (p *Pool) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// Release 归还 Acquire 占用的槽位。
func (p *Pool) Release() {
	p.sem.Release(1)
}

// Submit 提交任务，立即返回一个缓冲为 1 的完成 channel。
// 任务在获得槽位后执行；若 ctx 在排队期间被取消，完成通知携带 ctx.Err()。
// 任务一旦开始执行，ctx 只会透传给 fn，由 fn 自行决定是否响应取消。
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			out <- Result[T]{Err: err}
			return
		}
		defer p.sem.Release(1)

		v, err := fn(ctx)
		out <- Result[T]{Value: v, Err: err}
	}()
	return out
}

// Await 等待完成通知或 ctx 取消。ctx 取消只放弃等待，不会终止已开始的任务。
func Await[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Run 是 Submit + Await 的便捷组合。
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	return Await(ctx, Submit(ctx, p, fn))
}
