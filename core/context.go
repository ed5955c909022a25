package core

import "github.com/rushteam/movierec/pkg/utils"

// RecommendContext 承载一次请求的用户评分与参数，贯穿整个 Pipeline 透传。
//
// 会话状态（对话进度等）归前端所有；CF 核心只通过这里的普通字段接收评分，
// 自身不保存任何会话状态。
type RecommendContext struct {
	UserID string
	Scene  string

	// Ratings 是"虚拟用户"的评分：itemID -> rating
	Ratings map[int64]float64

	// Labels 是用户级标签，可驱动整个 Pipeline 行为
	Labels map[string]utils.Label

	// Params 请求级参数，例如 n、filter 等
	Params map[string]any
}

// NewRecommendContext 创建带评分的上下文。
func NewRecommendContext(userID string, ratings map[int64]float64) *RecommendContext {
	if ratings == nil {
		ratings = make(map[int64]float64)
	}
	return &RecommendContext{
		UserID:  userID,
		Ratings: ratings,
		Labels:  make(map[string]utils.Label),
		Params:  make(map[string]any),
	}
}

// HasRated 判断用户是否已经评过该物品。
func (rctx *RecommendContext) HasRated(itemID int64) bool {
	if rctx == nil || rctx.Ratings == nil {
		return false
	}
	_, ok := rctx.Ratings[itemID]
	return ok
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
