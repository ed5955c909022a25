package recall

import (
	"context"
	"math"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/utils"
)

// SourcePopular 是热门召回产出的 recall_source 取值。
const SourcePopular = "popular"

// Hot 是热门召回源：按评分条数降序返回用户未评过的物品，Score 固定为 0.0（未排序信号）。
// - Store 为空时使用内存中的 IDs
// - Limit <= 0 时返回全部未评过的热门物品
// Hot 同时实现了 Source 和 Node 接口，可以直接在 Pipeline 中使用
type Hot struct {
	Store PopularityStore
	IDs   []int64
	Limit int
}

func (r *Hot) Name() string        { return "recall.hot" }
func (r *Hot) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (r *Hot) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

// Recall 实现 Source 接口
func (r *Hot) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	return r.recall(ctx, rctx, r.Limit)
}

func (r *Hot) recall(
	ctx context.Context,
	rctx *core.RecommendContext,
	limit int,
) ([]*core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := r.IDs
	if r.Store != nil {
		ids = r.Store.TopPopular(math.MaxInt32)
	}

	capHint := len(ids)
	if limit > 0 && limit < capHint {
		capHint = limit
	}
	out := make([]*core.Item, 0, capHint)
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		if rctx.HasRated(id) {
			continue
		}
		it := core.NewItem(id)
		it.PutLabel(utils.LabelRecallSource, utils.Label{Value: SourcePopular, Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}
