// Package simcache 持久化已构建的物品相似度矩阵，并以构建时的超参数作为有效性键。
//
// 只比较 min_common_users 与 top_k，不校验数据集指纹：
// 数据集变化而超参数不变时，会继续复用旧矩阵（已知的陈旧缓存风险）。
package simcache

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"go.uber.org/zap"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/similarity"
)

// DefaultKey 是默认的缓存 key（file 驱动下即文件路径）。
const DefaultKey = "data/similarity_cache.gob"

// Record 是一次构建结果的快照。
type Record struct {
	Similarity     similarity.Matrix
	MinCommonUsers int
	TopK           int
}

// Cache 把 Record 以 gob 编码保存在任意 core.Store 的一个 key 上。
type Cache struct {
	store  core.Store
	key    string
	logger *zap.Logger
}

// New 创建缓存；key 为空时使用 DefaultKey。
func New(s core.Store, key string, logger *zap.Logger) *Cache {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: s, key: key, logger: logger}
}

// Key 返回缓存 key。
func (c *Cache) Key() string { return c.key }

// Load 读取缓存；仅当超参数完全一致时命中。
// 缺失、损坏、超参数不匹配都视为未命中（CACHE_INVALID 只记录日志），从不返回错误。
func (c *Cache) Load(ctx context.Context, minCommonUsers, topK int) (similarity.Matrix, bool) {
	rec, err := c.Read(ctx)
	if err != nil {
		if core.IsStoreNotFound(err) {
			c.logger.Debug("similarity cache miss", zap.String("key", c.key))
		} else {
			c.logger.Warn("similarity cache unreadable", zap.String("key", c.key), zap.Error(err))
		}
		return nil, false
	}
	if rec.MinCommonUsers != minCommonUsers || rec.TopK != topK {
		c.logger.Info("similarity cache hyperparameters mismatch",
			zap.String("key", c.key),
			zap.Int("cached_min_common_users", rec.MinCommonUsers),
			zap.Int("cached_top_k", rec.TopK),
			zap.Int("min_common_users", minCommonUsers),
			zap.Int("top_k", topK),
		)
		return nil, false
	}
	if rec.Similarity == nil {
		rec.Similarity = similarity.NewMatrix()
	}
	c.logger.Info("similarity matrix restored from cache",
		zap.String("key", c.key), zap.Int("pairs", rec.Similarity.Len()))
	return rec.Similarity, true
}

// Read 读取并解码缓存记录，不做超参数校验。
func (c *Cache) Read(ctx context.Context) (*Record, error) {
	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeCacheInvalid, "simcache: decode", err)
	}
	return &rec, nil
}

// Save 写入新的缓存记录（整体覆盖）。失败返回 PERSISTENCE_FAILURE。
func (c *Cache) Save(ctx context.Context, rec Record) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return core.WrapDomainError(core.ModuleCache, core.ErrorCodePersistenceFailure, "simcache: encode", err)
	}
	if err := c.store.Set(ctx, c.key, buf.Bytes()); err != nil {
		return core.WrapDomainError(core.ModuleCache, core.ErrorCodePersistenceFailure,
			fmt.Sprintf("simcache: write %s", c.key), err)
	}
	c.logger.Info("similarity matrix saved to cache",
		zap.String("key", c.key), zap.Int("pairs", rec.Similarity.Len()))
	return nil
}

// Invalidate 删除缓存记录。
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.store.Delete(ctx, c.key)
}
