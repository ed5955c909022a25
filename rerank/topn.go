package rerank

import (
	"context"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/conv"
)

// TopNNode 是一个 Top-N 截断节点，保持输入顺序截取前 N 个物品。
// 通常放在 Pipeline 末尾，把召回时多取的余量截回请求数量。
//
// 示例：
//
//	pipeline := &pipeline.Pipeline{
//	    Nodes: []pipeline.Node{
//	        &recall.CFNode{CF: cf, N: 50}, // 多召回一些
//	        &filter.FilterNode{...},       // 过滤
//	        &rerank.Diversity{},           // 多样性重排
//	        &rerank.TopNNode{},            // 截回 n
//	    },
//	}
type TopNNode struct {
	// N 要保留的物品数量（Top N）
	// 如果 N <= 0，读取 rctx.Params["n"]；仍未设置则不截断
	// 如果 N > len(items)，则返回所有物品
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	limit := n.N
	if limit <= 0 && rctx != nil {
		limit = int(conv.ConfigGetInt64(rctx.Params, "n", 0))
	}

	// 如果 limit <= 0，不截断，返回所有物品
	if limit <= 0 {
		return items, nil
	}

	// 如果物品数量小于等于 limit，直接返回
	if len(items) <= limit {
		return items, nil
	}

	// 截取前 limit 个物品
	return items[:limit], nil
}
