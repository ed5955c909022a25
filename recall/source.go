package recall

import (
	"context"

	"github.com/rushteam/movierec/core"
)

// Source 是一路候选电影来源，由 Fanout 并发调用后合并。
// ItemCF 按预测评分召回，Hot 按评分条数召回用户未评过的电影。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

var (
	_ Source = (*ItemCF)(nil)
	_ Source = (*Hot)(nil)
)
