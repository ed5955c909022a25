package recall

import (
	"context"

	"github.com/rushteam/movierec/simcache"
	"github.com/rushteam/movierec/similarity"
)

// CFStore 是协同过滤读取历史评分的接口，dataset.Repository 实现了它。
// 加载完成后数据只读，实现必须允许并发读取。
type CFStore interface {
	// UserItems 返回用户评过的物品及评分（item -> rating）
	UserItems(userID int64) map[int64]float64

	// ItemUsers 返回评过物品的用户及评分（user -> rating）
	ItemUsers(itemID int64) map[int64]float64

	// AllUserIDs 返回所有用户 ID（升序）
	AllUserIDs() []int64

	// AllItemIDs 返回所有至少有一条评分的物品 ID（升序）
	AllItemIDs() []int64

	// ItemMean 返回物品在所有评过它的用户上的平均分
	ItemMean(itemID int64) (float64, bool)

	PopularityStore
}

// PopularityStore 提供按评分条数排序的热门物品。
type PopularityStore interface {
	// TopPopular 返回前 n 个热门物品（条数降序，ID 升序）
	TopPopular(n int) []int64
}

// SimilarityCache 持久化相似度矩阵，simcache.Cache 实现了它。
type SimilarityCache interface {
	// Load 仅当超参数一致时命中；任何失败都视为未命中
	Load(ctx context.Context, minCommonUsers, topK int) (similarity.Matrix, bool)

	// Save 写入新的缓存记录
	Save(ctx context.Context, rec simcache.Record) error
}
