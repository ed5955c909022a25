package filter

import (
	"context"

	"github.com/rushteam/movierec/core"
)

// RatedFilter 过滤掉用户已经评过的物品。
type RatedFilter struct{}

func (f *RatedFilter) Name() string {
	return "filter.rated"
}

func (f *RatedFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	return rctx.HasRated(item.ID), nil
}
