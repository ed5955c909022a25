package recall

import (
	"context"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/conv"
)

// CFNode 把 ItemCF.Recommend 适配为 Pipeline 的召回 Node（recall.cf）。
//
// 召回数量取 N 与 rctx.Params["n"] 中较大者，保证请求的 n 不会被召回截断；
// 两者都未设置时使用引擎配置的 num_recommendations。
type CFNode struct {
	CF *ItemCF
	N  int
}

func (n *CFNode) Name() string        { return "recall.cf" }
func (n *CFNode) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *CFNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	if n.CF == nil {
		return nil, nil
	}
	size := max(n.N, paramN(rctx))
	var ratings map[int64]float64
	if rctx != nil {
		ratings = rctx.Ratings
	}
	return n.CF.Recommend(ctx, ratings, size)
}

func paramN(rctx *core.RecommendContext) int {
	if rctx == nil {
		return 0
	}
	return int(conv.ConfigGetInt64(rctx.Params, "n", 0))
}
