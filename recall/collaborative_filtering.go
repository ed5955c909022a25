package recall

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/metrics"
	"github.com/rushteam/movierec/pkg/utils"
	"github.com/rushteam/movierec/pkg/workpool"
	"github.com/rushteam/movierec/simcache"
	"github.com/rushteam/movierec/similarity"
)

// SourceCF 是协同过滤召回产出的 recall_source 取值。
const SourceCF = "cf"

// BuildState 是相似度矩阵的构建状态。
type BuildState int32

const (
	StateUnbuilt  BuildState = iota // 尚未构建
	StateBuilding                   // 构建中，后续调用方等待同一次构建
	StateBuilt                      // 已构建，矩阵只读
)

func (s BuildState) String() string {
	switch s {
	case StateUnbuilt:
		return "unbuilt"
	case StateBuilding:
		return "building"
	case StateBuilt:
		return "built"
	default:
		return fmt.Sprintf("BuildState(%d)", int32(s))
	}
}

// ItemCF 是基于物品的协同过滤引擎（Item-based Collaborative Filtering, Item-CF）。
//
// 核心思想："被同一批用户以相似方式打分的物品，相互相似"
//
// 算法流程：
//  1. 首次调用时构建（或从缓存恢复）物品-物品皮尔逊相似度矩阵
//  2. 对目标物品，取用户评过且正相关的 TopK 邻居
//  3. 预测分 = 目标均值 + Σ sim·(r - 邻居均值) / Σ|sim|，截断到 [1,5]
//  4. 推荐：在热门候选池中预测打分，保留 > 3.0 的物品；全部未定义时回退到热门
//
// 构建是单飞的：unbuilt → building → built。第一个调用方启动唯一的构建任务，
// 其余调用方等待同一个完成 channel；调用方 ctx 取消只放弃等待，不会终止构建。
type ItemCF struct {
	store   CFStore
	cache   SimilarityCache
	pool    *workpool.Pool
	cfg     core.CFConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	popular *Hot

	mu     sync.Mutex
	state  BuildState
	task   *buildTask
	matrix similarity.Matrix

	builds atomic.Int64
}

// buildTask 是一次构建的完成通知；done 关闭后 matrix/err 只读。
type buildTask struct {
	done   chan struct{}
	matrix similarity.Matrix
	err    error
}

// ItemCFOption 配置 ItemCF。
type ItemCFOption func(*ItemCF)

// WithCache 注入相似度缓存；未注入时每次进程启动都重新计算。
func WithCache(c SimilarityCache) ItemCFOption {
	return func(r *ItemCF) { r.cache = c }
}

// WithPool 注入 CPU 密集任务池；未注入时按 Workers 创建。
func WithPool(p *workpool.Pool) ItemCFOption {
	return func(r *ItemCF) {
		if p != nil {
			r.pool = p
		}
	}
}

// WithLogger 注入日志。
func WithLogger(l *zap.Logger) ItemCFOption {
	return func(r *ItemCF) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics 注入指标。
func WithMetrics(m *metrics.Metrics) ItemCFOption {
	return func(r *ItemCF) { r.metrics = m }
}

// NewItemCF 创建引擎。cfg 中小于 1 的字段使用 core.DefaultCFConfig 的默认值。
func NewItemCF(store CFStore, cfg core.CFConfig, opts ...ItemCFOption) *ItemCF {
	def := core.DefaultCFConfig()
	if cfg.MinCommonUsers < 1 {
		cfg.MinCommonUsers = def.MinCommonUsers
	}
	if cfg.TopK < 1 {
		cfg.TopK = def.TopK
	}
	if cfg.NumRecommendations < 1 {
		cfg.NumRecommendations = def.NumRecommendations
	}
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}

	r := &ItemCF{
		store:   store,
		cfg:     cfg,
		logger:  zap.NewNop(),
		popular: &Hot{Store: store},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = workpool.New(cfg.Workers)
	}
	return r
}

func (r *ItemCF) Name() string { return "recall.cf" }

// Config 返回生效的配置。
func (r *ItemCF) Config() core.CFConfig { return r.cfg }

// State 返回当前构建状态。
func (r *ItemCF) State() BuildState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Builds 返回构建执行次数（计算或从缓存恢复都算一次）。
func (r *ItemCF) Builds() int64 { return r.builds.Load() }

// Matrix 返回已构建的矩阵（只读）；未构建时返回 nil。
func (r *ItemCF) Matrix() similarity.Matrix {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateBuilt {
		return nil
	}
	return r.matrix
}

// Warm 主动触发构建并等待完成。
func (r *ItemCF) Warm(ctx context.Context) error {
	_, err := r.ensureBuilt(ctx)
	return err
}

// Wait 等待进行中的构建（包括写回缓存）结束；没有构建在进行时立即返回。
// ctx 结束时放弃等待，构建本身不受影响。
func (r *ItemCF) Wait(ctx context.Context) error {
	r.mu.Lock()
	task := r.task
	r.mu.Unlock()
	if task == nil {
		return nil
	}

	select {
	case <-task.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureBuilt 返回已构建的矩阵，必要时启动唯一的构建任务并等待。
func (r *ItemCF) ensureBuilt(ctx context.Context) (similarity.Matrix, error) {
	r.mu.Lock()
	if r.state == StateBuilt {
		m := r.matrix
		r.mu.Unlock()
		return m, nil
	}
	if r.state == StateUnbuilt {
		r.state = StateBuilding
		r.task = &buildTask{done: make(chan struct{})}
		go r.build(context.WithoutCancel(ctx), r.task)
	}
	task := r.task
	r.mu.Unlock()

	select {
	case <-task.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if task.err != nil {
		return nil, fmt.Errorf("recall: build similarity matrix: %w", task.err)
	}
	return task.matrix, nil
}

// build 是唯一的构建任务：先查缓存，未命中再在任务池上计算，最后尽力写回缓存。
// 失败时回到 unbuilt，下一次调用重新构建。
func (r *ItemCF) build(ctx context.Context, task *buildTask) {
	defer close(task.done)
	r.builds.Add(1)

	m, err := r.loadOrCompute(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	task.matrix, task.err = m, err
	r.task = nil
	if err != nil {
		r.logger.Error("similarity matrix build failed", zap.Error(err))
		r.state = StateUnbuilt
		return
	}
	r.matrix = m
	r.state = StateBuilt
}

func (r *ItemCF) loadOrCompute(ctx context.Context) (similarity.Matrix, error) {
	if r.cache != nil {
		m, ok := r.cache.Load(ctx, r.cfg.MinCommonUsers, r.cfg.TopK)
		r.metrics.CacheLookup(ok)
		if ok {
			r.metrics.ObserveBuild("cache", 0, m.Len())
			return m, nil
		}
	}

	start := time.Now()
	items := r.store.AllItemIDs()
	r.logger.Info("computing similarity matrix",
		zap.Int("items", len(items)),
		zap.Int("min_common_users", r.cfg.MinCommonUsers),
		zap.Int("workers", r.pool.Size()),
	)

	// 每一行占用任务池的一个槽位，与最近邻扫描共享同一并发上限
	m, err := similarity.Build(ctx, items, r.store.ItemUsers, similarity.BuildOptions{
		MinCommonUsers: r.cfg.MinCommonUsers,
		Workers:        r.pool.Size(),
		Slots:          r.pool,
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	r.metrics.ObserveBuild("computed", elapsed, m.Len())
	r.logger.Info("similarity matrix computed",
		zap.Int("pairs", m.Len()), zap.Duration("elapsed", elapsed))

	if r.cache != nil {
		rec := simcache.Record{Similarity: m, MinCommonUsers: r.cfg.MinCommonUsers, TopK: r.cfg.TopK}
		if err := r.cache.Save(ctx, rec); err != nil {
			r.logger.Warn("persist similarity cache failed", zap.Error(err))
		}
	}
	return m, nil
}

// Predict 以配置的 top_k 预测评分。
func (r *ItemCF) Predict(ctx context.Context, ratings map[int64]float64, itemID int64) (float64, error) {
	return r.PredictK(ctx, ratings, itemID, 0)
}

// PredictK 预测用户对 itemID 的评分；k <= 0 时使用配置的 top_k。
// 评分为空、无正相关邻居或分母为零时返回 ErrNoPrediction。
func (r *ItemCF) PredictK(ctx context.Context, ratings map[int64]float64, itemID int64, k int) (float64, error) {
	if len(ratings) == 0 {
		r.metrics.Prediction(false)
		return 0, core.ErrNoPrediction
	}
	m, err := r.ensureBuilt(ctx)
	if err != nil {
		return 0, err
	}
	if k <= 0 {
		k = r.cfg.TopK
	}

	score, ok := r.predict(m, ratings, itemID, k)
	r.metrics.Prediction(ok)
	if !ok {
		return 0, core.ErrNoPrediction
	}
	return score, nil
}

type neighbor struct {
	itemID int64
	sim    float64
}

func (r *ItemCF) predict(m similarity.Matrix, ratings map[int64]float64, itemID int64, k int) (float64, bool) {
	row := m.Neighbors(itemID)
	if len(row) == 0 {
		return 0, false
	}

	neighbors := make([]neighbor, 0, len(ratings))
	for rated := range ratings {
		if sim, ok := row[rated]; ok && sim > 0 {
			neighbors = append(neighbors, neighbor{itemID: rated, sim: sim})
		}
	}
	if len(neighbors) == 0 {
		return 0, false
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].sim != neighbors[j].sim {
			return neighbors[i].sim > neighbors[j].sim
		}
		return neighbors[i].itemID < neighbors[j].itemID
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}

	var num, den float64
	for _, nb := range neighbors {
		num += nb.sim * (ratings[nb.itemID] - r.itemMean(nb.itemID))
		den += nb.sim
	}
	if den == 0 {
		return 0, false
	}
	return core.ClampRating(r.itemMean(itemID) + num/den), true
}

func (r *ItemCF) itemMean(itemID int64) float64 {
	if mean, ok := r.store.ItemMean(itemID); ok && mean > 0 {
		return mean
	}
	return core.FallbackMean
}

// Recommend 返回最多 n 个用户未评过的物品；n <= 0 时使用配置的 num_recommendations。
//
// 候选池为前 1000 个热门物品去掉已评物品；保留预测分 > 3.0 的候选，
// 按分数降序（同分按 ID 升序）取前 n。没有候选合格时回退到热门物品，Score 为 0.0。
func (r *ItemCF) Recommend(ctx context.Context, ratings map[int64]float64, n int) ([]*core.Item, error) {
	if n <= 0 {
		n = r.cfg.NumRecommendations
	}
	m, err := r.ensureBuilt(ctx)
	if err != nil {
		return nil, err
	}

	scored := make([]neighbor, 0, 64)
	if len(ratings) > 0 {
		for _, id := range r.store.TopPopular(core.CandidatePoolSize) {
			if _, rated := ratings[id]; rated {
				continue
			}
			score, ok := r.predict(m, ratings, id, r.cfg.TopK)
			if ok && score > core.RecommendThreshold {
				scored = append(scored, neighbor{itemID: id, sim: score})
			}
		}
	}

	if len(scored) == 0 {
		r.metrics.Recommendation(SourcePopular)
		return r.popular.recall(ctx, core.NewRecommendContext("", ratings), n)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].sim != scored[j].sim {
			return scored[i].sim > scored[j].sim
		}
		return scored[i].itemID < scored[j].itemID
	})
	if len(scored) > n {
		scored = scored[:n]
	}

	out := make([]*core.Item, 0, len(scored))
	for _, s := range scored {
		it := core.NewItem(s.itemID)
		it.Score = s.sim
		it.PutLabel(utils.LabelRecallSource, utils.Label{Value: SourceCF, Source: "recall"})
		out = append(out, it)
	}
	r.metrics.Recommendation(SourceCF)
	return out, nil
}

// Recall 实现 Source 接口：使用 rctx.Ratings，数量取 rctx.Params["n"]。
func (r *ItemCF) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if rctx == nil {
		return r.Recommend(ctx, nil, 0)
	}
	return r.Recommend(ctx, rctx.Ratings, paramN(rctx))
}
