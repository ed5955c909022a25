// Package localstore 保存唯一的本地（虚拟）用户的评分记录。
//
// 文档格式：{"local_user": {"ratings": {"<item_id>": <rating>}}}，其余顶层 key 原样保留。
// 每次变更都是整文档读-改-写，并在返回前完成持久化。
// 只在进程内加锁，不做跨进程加锁：同一文档只允许单进程单用户访问。
package localstore

import (
	"context"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pkg/conv"
)

const (
	// DefaultKey 是默认的文档 key（file 驱动下即文件路径）。
	DefaultKey = "data/local_user.json"

	// UserKey 是文档中本地用户对象的顶层 key。
	UserKey = "local_user"
)

type userRecord struct {
	Ratings map[string]float64 `json:"ratings"`
}

// Store 是本地用户评分存储。
type Store struct {
	mu      sync.Mutex
	backend core.Store
	key     string
	logger  *zap.Logger

	loaded  bool
	doc     map[string]json.RawMessage
	ratings map[int64]float64
}

// Option 配置 Store。
type Option func(*Store)

// WithKey 指定文档 key。
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger 指定日志。
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New 创建本地评分存储；首次访问时才读取文档。
func New(backend core.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get 返回当前评分的副本。首次访问且文档不存在时创建并持久化空记录。
func (s *Store) Get(ctx context.Context) (map[int64]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	out := s.snapshot()
	if created {
		if err := s.persist(ctx); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Upsert 写入或覆盖一条评分。rating 不在 [1,5] 时返回 INVALID_INPUT，不做任何写入。
// 持久化失败返回 PERSISTENCE_FAILURE，但内存中的更新保留。
func (s *Store) Upsert(ctx context.Context, itemID int64, rating float64) error {
	if !core.ValidRating(rating) {
		return fmt.Errorf("localstore: upsert item %d rating %v: %w", itemID, rating, core.ErrInvalidRating)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.ratings[itemID] = rating
	return s.persist(ctx)
}

// Clear 清空全部评分并持久化。
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.ratings = make(map[int64]float64)
	return s.persist(ctx)
}

// ensureLoaded 首次访问时读取文档；返回值表示是否新建了空记录。
// 文档无法解析时视为空记录，下次写入时覆盖。
func (s *Store) ensureLoaded(ctx context.Context) (bool, error) {
	if s.loaded {
		return false, nil
	}
	s.doc = make(map[string]json.RawMessage)
	s.ratings = make(map[int64]float64)

	data, err := s.backend.Get(ctx, s.key)
	switch {
	case core.IsStoreNotFound(err):
		s.loaded = true
		return true, nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		s.logger.Warn("local rating document unreadable, starting empty",
			zap.String("key", s.key), zap.Error(err))
		s.loaded = true
		return true, nil
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		s.logger.Warn("local rating document malformed, starting empty",
			zap.String("key", s.key), zap.Error(err))
		s.doc = make(map[string]json.RawMessage)
		s.loaded = true
		return true, nil
	}

	raw, ok := s.doc[UserKey]
	if !ok {
		s.loaded = true
		return true, nil
	}
	var rec userRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("local user record malformed, starting empty",
			zap.String("key", s.key), zap.Error(err))
		s.loaded = true
		return true, nil
	}
	s.ratings = conv.StringKeysToInt64(rec.Ratings)
	if len(s.ratings) != len(rec.Ratings) {
		s.logger.Warn("local user record has non-numeric item ids",
			zap.String("key", s.key), zap.Int("skipped", len(rec.Ratings)-len(s.ratings)))
	}
	s.loaded = true
	return false, nil
}

func (s *Store) snapshot() map[int64]float64 {
	out := make(map[int64]float64, len(s.ratings))
	for k, v := range s.ratings {
		out[k] = v
	}
	return out
}

func (s *Store) persist(ctx context.Context) error {
	user, err := json.Marshal(userRecord{Ratings: conv.Int64KeysToString(s.ratings)})
	if err != nil {
		return core.WrapDomainError(core.ModuleLocal, core.ErrorCodePersistenceFailure, "localstore: encode record", err)
	}
	s.doc[UserKey] = user

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return core.WrapDomainError(core.ModuleLocal, core.ErrorCodePersistenceFailure, "localstore: encode document", err)
	}
	if err := s.backend.Set(ctx, s.key, data); err != nil {
		s.logger.Error("persist local ratings failed",
			zap.String("key", s.key), zap.Int("ratings", len(s.ratings)), zap.Error(err))
		return core.WrapDomainError(core.ModuleLocal, core.ErrorCodePersistenceFailure,
			fmt.Sprintf("localstore: write %s", s.key), err)
	}
	return nil
}
