package recall

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/movierec/pkg/workpool"
	"github.com/rushteam/movierec/similarity"
)

// Neighbor 是与虚拟用户最相似的真实用户。
type Neighbor struct {
	UserID     int64   `json:"user_id"`
	Similarity float64 `json:"similarity"`
}

// scanCheckEvery 控制扫描中检查 ctx 的频率。
const scanCheckEvery = 1024

// FindNearestRealUser 在历史用户中查找与 ratings 皮尔逊相关系数最大的用户（u2u）。
//
// O(U) 扫描在任务池上执行，不依赖相似度矩阵；用户按 ID 升序扫描，
// 相同最大值保留先出现的用户。没有用户满足共同支持阈值时 found=false。
func (r *ItemCF) FindNearestRealUser(ctx context.Context, ratings map[int64]float64) (Neighbor, bool, error) {
	if len(ratings) == 0 {
		return Neighbor{}, false, nil
	}

	type scan struct {
		best  Neighbor
		found bool
	}

	start := time.Now()
	res, err := workpool.Run(ctx, r.pool, func(ctx context.Context) (scan, error) {
		var out scan
		for idx, userID := range r.store.AllUserIDs() {
			if idx%scanCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return scan{}, err
				}
			}
			sim, ok := similarity.UserSimilarity(ratings, r.store.UserItems(userID), r.cfg.MinCommonUsers)
			if !ok {
				continue
			}
			if !out.found || sim > out.best.Similarity {
				out.best = Neighbor{UserID: userID, Similarity: sim}
				out.found = true
			}
		}
		return out, nil
	})
	if err != nil {
		return Neighbor{}, false, err
	}

	r.metrics.ObserveNearestUser(time.Since(start))
	if res.found {
		r.logger.Debug("nearest real user found",
			zap.Int64("user_id", res.best.UserID), zap.Float64("similarity", res.best.Similarity))
	}
	return res.best, res.found, nil
}
