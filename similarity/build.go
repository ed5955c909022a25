package similarity

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ColumnFunc 返回物品的评分列（user -> rating）。
type ColumnFunc func(itemID int64) map[int64]float64

// BuildOptions 控制矩阵构建。
type BuildOptions struct {
	// MinCommonUsers 两个物品至少需要的共同评分用户数
	MinCommonUsers int

	// Workers 并发 goroutine 数（<=0 时为 1）
	Workers int

	// Progress 每处理完一行回调一次（可选），参数为已完成行数与总行数
	Progress func(done, total int)

	// Slots 限制同时计算的行数（可选），通常是与其他 CPU 密集任务共享的 workpool.Pool。
	// 每行计算前 Acquire 一个槽位，算完即 Release。
	Slots Slots
}

// Slots 是共享的 CPU 槽位。
type Slots interface {
	Acquire(ctx context.Context) error
	Release()
}

// Build 对 items 的每个无序对计算 ItemSimilarity，只保留通过稀疏化规则的条目。
// 行按取模分配给 Workers 个 goroutine，结果在最后合并；设置了 Slots 时，
// 同时计算的行数还受共享槽位限制。
func Build(ctx context.Context, items []int64, column ColumnFunc, opts BuildOptions) (Matrix, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) && len(items) > 0 {
		workers = len(items)
	}

	var (
		mu     sync.Mutex
		merged = NewMatrix()
		done   int
	)

	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		worker := w
		eg.Go(func() error {
			local := make([]Pair, 0, 64)
			for idx := worker; idx < len(items); idx += workers {
				if err := egCtx.Err(); err != nil {
					return err
				}
				if opts.Slots != nil {
					if err := opts.Slots.Acquire(egCtx); err != nil {
						return err
					}
				}
				i := items[idx]
				colI := column(i)
				for _, j := range items[idx+1:] {
					sim, ok := ItemSimilarity(colI, column(j), opts.MinCommonUsers)
					if ok && Keep(sim) {
						local = append(local, Pair{I: i, J: j, Value: sim})
					}
				}
				if opts.Slots != nil {
					opts.Slots.Release()
				}
				if opts.Progress != nil {
					mu.Lock()
					done++
					d := done
					mu.Unlock()
					opts.Progress(d, len(items))
				}
			}

			mu.Lock()
			for _, p := range local {
				merged.Set(p.I, p.J, p.Value)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}
