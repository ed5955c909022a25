// Package movierec 是基于物品协同过滤（item-based CF）的电影推荐引擎。
//
// 设计要点：
// - 相似度矩阵：物品-物品皮尔逊相关系数，只在共同评分用户上计算，稀疏化后缓存
// - 懒构建：首次预测/推荐时构建一次，并发调用方共享同一次构建
// - Pipeline-first: 推荐结果通过 Node 串联（Recall → PostProcess → Filter → ReRank）
// - Labels-first: recall_source 等 label 全链路透传，便于解释与观测
package movierec

import (
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/recall"
)

// 轻量 facade：便于直接 import "movierec" 使用核心抽象。
type (
	Pipeline = pipeline.Pipeline
	Node     = pipeline.Node
	Kind     = pipeline.Kind
	ItemCF   = recall.ItemCF
)

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)

// NewItemCF 是 recall.NewItemCF 的别名。
var NewItemCF = recall.NewItemCF
