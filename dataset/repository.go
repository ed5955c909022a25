// Package dataset 是评分数据仓库（Rating Repository）：加载并索引历史评分与物品元数据，
// 对外只提供只读查询。加载完成后数据不可变，读操作无需加锁。
package dataset

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Rating 是一条历史评分记录，加载后不可变。
type Rating struct {
	UserID    int64
	ItemID    int64
	Value     float64
	Timestamp int64
}

// Movie 是物品元数据。
type Movie struct {
	ID               int64
	Title            string
	ReleaseDate      string
	VideoReleaseDate string
	URL              string
	Genres           []string
}

// Repository 保存稀疏的用户-物品评分表（重复评分取均值）及其倒排。
type Repository struct {
	ratingsPath string
	moviesPath  string
	logger      *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	numRatings int
	userItems  map[int64]map[int64]float64 // user -> item -> mean rating
	itemUsers  map[int64]map[int64]float64 // item -> user -> mean rating
	itemMeans  map[int64]float64
	counts     map[int64]int // item -> 原始评分条数
	popular    []int64       // 按评分条数降序、ID 升序
	users      []int64
	items      []int64
	movies     map[int64]Movie
	catalog    []int64 // 有元数据时为元数据中的物品，否则为评分中的物品
}

// Option 配置 Repository。
type Option func(*Repository)

// WithLogger 设置日志。
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRand 设置 RandomSample 使用的随机源（测试时用于固定结果）。
func WithRand(rng *rand.Rand) Option {
	return func(r *Repository) {
		if rng != nil {
			r.rng = rng
		}
	}
}

// NewRepository 创建一个尚未加载的仓库，调用 Load 后可用。
func NewRepository(ratingsPath, moviesPath string, opts ...Option) *Repository {
	r := &Repository{
		ratingsPath: ratingsPath,
		moviesPath:  moviesPath,
		logger:      zap.NewNop(),
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.index(nil, nil)
	return r
}

// FromRatings 直接用内存数据构建仓库（测试、离线工具）。
func FromRatings(ratings []Rating, movies map[int64]Movie, opts ...Option) *Repository {
	r := NewRepository("", "", opts...)
	r.index(ratings, movies)
	return r
}

// Load 读取评分与元数据文件。
//
// 评分文件缺失/不可读/格式错误时降级为空数据集，元数据缺失或错误时降级为空元数据；
// 这两种情况只记录日志，不返回错误。只有 ctx 被取消时返回错误。
// 调用方应通过 Empty 判断数据是否可用。
func (r *Repository) Load(ctx context.Context) error {
	ratings, err := r.loadRatings(ctx)
	if err != nil {
		return err
	}
	movies, err := r.loadMovies(ctx)
	if err != nil {
		return err
	}
	r.index(ratings, movies)
	r.logger.Info("dataset loaded",
		zap.Int("ratings", r.numRatings),
		zap.Int("users", len(r.users)),
		zap.Int("items", len(r.items)),
		zap.Int("movies", len(r.movies)),
	)
	return nil
}

func (r *Repository) loadRatings(ctx context.Context) ([]Rating, error) {
	f, err := os.Open(r.ratingsPath)
	if err != nil {
		r.logger.Warn("ratings unavailable, using empty dataset",
			zap.String("path", r.ratingsPath), zap.Error(err))
		return nil, nil
	}
	defer f.Close()

	ratings, err := ParseRatings(ctx, f)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		r.logger.Warn("ratings unreadable, using empty dataset",
			zap.String("path", r.ratingsPath), zap.Error(err))
		return nil, nil
	}
	return ratings, nil
}

func (r *Repository) loadMovies(ctx context.Context) (map[int64]Movie, error) {
	if r.moviesPath == "" {
		return nil, nil
	}
	f, err := os.Open(r.moviesPath)
	if err != nil {
		r.logger.Warn("metadata not found, titles unavailable",
			zap.String("path", r.moviesPath), zap.Error(err))
		return nil, nil
	}
	defer f.Close()

	movies, err := ParseMovies(ctx, f)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		r.logger.Warn("metadata unreadable, titles unavailable",
			zap.String("path", r.moviesPath), zap.Error(err))
		return nil, nil
	}
	return movies, nil
}

// index 把原始评分聚合成稀疏表：同一 (user,item) 的多条评分取均值。
func (r *Repository) index(ratings []Rating, movies map[int64]Movie) {
	type acc struct {
		sum float64
		n   int
	}
	pairs := make(map[int64]map[int64]*acc)
	counts := make(map[int64]int)
	for _, rt := range ratings {
		byItem, ok := pairs[rt.UserID]
		if !ok {
			byItem = make(map[int64]*acc)
			pairs[rt.UserID] = byItem
		}
		a, ok := byItem[rt.ItemID]
		if !ok {
			a = &acc{}
			byItem[rt.ItemID] = a
		}
		a.sum += rt.Value
		a.n++
		counts[rt.ItemID]++
	}

	userItems := make(map[int64]map[int64]float64, len(pairs))
	itemUsers := make(map[int64]map[int64]float64, len(counts))
	for userID, byItem := range pairs {
		row := make(map[int64]float64, len(byItem))
		for itemID, a := range byItem {
			mean := a.sum / float64(a.n)
			row[itemID] = mean
			col, ok := itemUsers[itemID]
			if !ok {
				col = make(map[int64]float64)
				itemUsers[itemID] = col
			}
			col[userID] = mean
		}
		userItems[userID] = row
	}

	itemMeans := make(map[int64]float64, len(itemUsers))
	for itemID, col := range itemUsers {
		var sum float64
		for _, v := range col {
			sum += v
		}
		itemMeans[itemID] = sum / float64(len(col))
	}

	users := sortedKeys(userItems)
	items := sortedKeys(itemUsers)

	popular := make([]int64, len(items))
	copy(popular, items)
	sort.SliceStable(popular, func(i, j int) bool {
		ci, cj := counts[popular[i]], counts[popular[j]]
		if ci != cj {
			return ci > cj
		}
		return popular[i] < popular[j]
	})

	if movies == nil {
		movies = make(map[int64]Movie)
	}
	catalog := items
	if len(movies) > 0 {
		catalog = sortedKeys(movies)
	}

	r.numRatings = len(ratings)
	r.userItems = userItems
	r.itemUsers = itemUsers
	r.itemMeans = itemMeans
	r.counts = counts
	r.popular = popular
	r.users = users
	r.items = items
	r.movies = movies
	r.catalog = catalog
}

func sortedKeys[V any](m map[int64]V) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Empty 表示数据集没有任何评分（加载失败或文件为空）。
func (r *Repository) Empty() bool { return r.numRatings == 0 }

// NumRatings 返回原始评分条数。
func (r *Repository) NumRatings() int { return r.numRatings }

// NumUsers 返回有评分的用户数。
func (r *Repository) NumUsers() int { return len(r.users) }

// NumItems 返回有评分的物品数。
func (r *Repository) NumItems() int { return len(r.items) }

// RatingsFor 返回用户评过的物品及评分；未知用户返回空 map。返回值为副本。
func (r *Repository) RatingsFor(userID int64) map[int64]float64 {
	row := r.userItems[userID]
	out := make(map[int64]float64, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// UserItems 返回用户评分行（只读，不要修改）。
func (r *Repository) UserItems(userID int64) map[int64]float64 {
	return r.userItems[userID]
}

// ItemUsers 返回物品评分列（只读，不要修改）。
func (r *Repository) ItemUsers(itemID int64) map[int64]float64 {
	return r.itemUsers[itemID]
}

// ItemMean 返回物品在所有评过它的用户上的平均分。
func (r *Repository) ItemMean(itemID int64) (float64, bool) {
	m, ok := r.itemMeans[itemID]
	return m, ok
}

// RatingCount 返回物品的原始评分条数。
func (r *Repository) RatingCount(itemID int64) int {
	return r.counts[itemID]
}

// AllUserIDs 返回所有用户 ID（升序）。
func (r *Repository) AllUserIDs() []int64 {
	out := make([]int64, len(r.users))
	copy(out, r.users)
	return out
}

// AllItemIDs 返回所有被评过的物品 ID（升序）。
func (r *Repository) AllItemIDs() []int64 {
	out := make([]int64, len(r.items))
	copy(out, r.items)
	return out
}

// Movie 返回物品元数据。
func (r *Repository) Movie(itemID int64) (Movie, bool) {
	mv, ok := r.movies[itemID]
	return mv, ok
}

// TitleOf 返回物品标题；未知物品返回占位名 "Movie <id>"。
func (r *Repository) TitleOf(itemID int64) string {
	if mv, ok := r.movies[itemID]; ok && mv.Title != "" {
		return mv.Title
	}
	return "Movie " + strconv.FormatInt(itemID, 10)
}

// GenresOf 返回物品类型；未知物品返回空列表。
func (r *Repository) GenresOf(itemID int64) []string {
	mv, ok := r.movies[itemID]
	if !ok {
		return []string{}
	}
	out := make([]string, len(mv.Genres))
	copy(out, mv.Genres)
	return out
}

// TopPopular 返回评分条数最多的前 n 个物品（条数降序，ID 升序）。
func (r *Repository) TopPopular(n int) []int64 {
	if n <= 0 {
		return []int64{}
	}
	if n > len(r.popular) {
		n = len(r.popular)
	}
	out := make([]int64, n)
	copy(out, r.popular[:n])
	return out
}

// RandomSample 从目录中无放回均匀抽样 n 个物品，n 超过目录大小时返回整个目录（随机顺序）。
func (r *Repository) RandomSample(n int) []int64 {
	if n <= 0 || len(r.catalog) == 0 {
		return []int64{}
	}
	pool := make([]int64, len(r.catalog))
	copy(pool, r.catalog)
	if n > len(pool) {
		n = len(pool)
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	// 部分 Fisher-Yates
	for i := 0; i < n; i++ {
		j := i + r.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}
