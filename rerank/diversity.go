package rerank

import (
	"context"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/utils"
)

// Diversity 是按类别打散的 ReRank：同一类别最多保留 MaxPerCategory 个（默认 1），
// 保持输入顺序。类别来源优先级：
// - label[LabelKey].Value
// - meta[LabelKey] (string)
//
// LabelKey 默认 "genre"（feature.EnrichNode 写入的主类型）。
// Backfill 为 true 时，被打散掉的物品按原顺序追加到末尾，不减少结果数量。
type Diversity struct {
	LabelKey       string
	MaxPerCategory int
	Backfill       bool
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	key := n.LabelKey
	if key == "" {
		key = utils.LabelGenre
	}
	limit := n.MaxPerCategory
	if limit <= 0 {
		limit = 1
	}

	seen := make(map[string]int, 32)
	out := make([]*core.Item, 0, len(items))
	var rest []*core.Item

	for _, it := range items {
		if it == nil {
			continue
		}

		cate := it.LabelValue(key)
		if cate == "" && it.Meta != nil {
			if v, ok := it.Meta[key]; ok {
				if s, ok := v.(string); ok {
					cate = s
				}
			}
		}

		if cate == "" {
			out = append(out, it)
			continue
		}
		if seen[cate] >= limit {
			rest = append(rest, it)
			continue
		}
		seen[cate]++
		out = append(out, it)
	}

	if n.Backfill {
		out = append(out, rest...)
	}
	return out, nil
}
