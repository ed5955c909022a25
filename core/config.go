package core

import "runtime"

// 协同过滤的固定常量。
const (
	// MinAbsSimilarity 稀疏化阈值：只保留 |sim| > 0.1 的相似度
	MinAbsSimilarity = 0.1

	// FallbackMean 物品没有任何有效评分时使用的均值
	FallbackMean = 3.0

	// RecommendThreshold 预测分数必须大于该值才进入推荐列表
	RecommendThreshold = 3.0

	// CandidatePoolSize 推荐候选池：最热门的 1000 个物品
	CandidatePoolSize = 1000

	// MinRating / MaxRating 评分区间
	MinRating = 1.0
	MaxRating = 5.0
)

// CFConfig 是协同过滤引擎的超参数。
type CFConfig struct {
	// MinCommonUsers 两个物品（或用户）至少需要的共同评分数
	MinCommonUsers int `yaml:"min_common_users" validate:"min=1"`

	// TopK 预测时考虑的最近邻数量
	TopK int `yaml:"top_k" validate:"min=1"`

	// NumRecommendations 默认推荐数量
	NumRecommendations int `yaml:"num_recommendations" validate:"min=1"`

	// Workers CPU 密集任务（建矩阵、最近用户扫描）的并发上限
	Workers int `yaml:"workers" validate:"min=1"`
}

// DefaultCFConfig 返回默认超参数。
func DefaultCFConfig() CFConfig {
	return CFConfig{
		MinCommonUsers:     3,
		TopK:               20,
		NumRecommendations: 5,
		Workers:            runtime.NumCPU(),
	}
}

// ClampRating 把分数裁剪到 [MinRating, MaxRating]。
func ClampRating(v float64) float64 {
	if v < MinRating {
		return MinRating
	}
	if v > MaxRating {
		return MaxRating
	}
	return v
}

// ValidRating 判断评分是否落在 [MinRating, MaxRating]。
func ValidRating(v float64) bool {
	return v >= MinRating && v <= MaxRating
}
