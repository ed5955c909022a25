package filter

import (
	"context"

	"github.com/rushteam/movierec/core"
)

// Filter 判断一部候选电影是否应从推荐结果中剔除。
// 返回 true 表示剔除，例如用户已评过分、在黑名单中，或不满足请求携带的 CEL 条件。
type Filter interface {
	// Name 返回过滤器名称，出现在日志与配置中（rated/blacklist/expr）
	Name() string

	// ShouldFilter 判断 item 是否应被剔除；rctx.Ratings 是本次请求的用户评分
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}

var (
	_ Filter = (*RatedFilter)(nil)
	_ Filter = (*BlacklistFilter)(nil)
	_ Filter = (*ExprFilter)(nil)
)
