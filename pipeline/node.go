package pipeline

import (
	"context"

	"github.com/rushteam/movierec/core"
)

// Kind 标记节点所属阶段，指标按阶段打点。
type Kind string

const (
	KindRecall      Kind = "recall"      // 生成候选电影（协同过滤、热门）
	KindFilter      Kind = "filter"      // 剔除已评分、黑名单或不满足条件的电影
	KindRank        Kind = "rank"        // 对候选电影打分排序
	KindReRank      Kind = "rerank"      // 截断到 n，或按类型打散
	KindPostProcess Kind = "postprocess" // 补充片名、类型等元数据
)

// Node 是推荐链路中的一步：接收上一步的候选电影，返回处理后的列表。
// 召回节点通常忽略输入并生成新候选，其余节点只裁剪、排序或补充字段。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		items []*core.Item,
	) ([]*core.Item, error)
}
