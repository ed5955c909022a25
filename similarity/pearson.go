// Package similarity 提供无状态的相关性统计：物品-物品、用户-用户的皮尔逊相关系数，
// 均只在共同支持集（common support）上计算。
package similarity

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Pearson 计算皮尔逊相关系数。
// 长度不一致、为空，或任一向量方差为零时返回 ok=false（未定义）。
func Pearson(x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) == 0 {
		return 0, false
	}

	meanX := stat.Mean(x, nil)
	meanY := stat.Mean(y, nil)

	var cov, varX, varY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	if varX <= 0 || varY <= 0 {
		return 0, false
	}

	r := cov / (math.Sqrt(varX) * math.Sqrt(varY))
	if math.IsNaN(r) {
		return 0, false
	}
	// 浮点误差可能略超出 [-1,1]
	return math.Max(-1, math.Min(1, r)), true
}

// ItemSimilarity 计算物品 i 与 j 的皮尔逊相关系数。
// a、b 分别是两个物品的评分列（user -> rating）。
// 共同评分用户少于 minCommon 时返回 ok=false。
func ItemSimilarity(a, b map[int64]float64, minCommon int) (float64, bool) {
	return onCommonSupport(a, b, minCommon)
}

// UserSimilarity 计算两个用户的皮尔逊相关系数。
// a、b 分别是两个用户的评分行（item -> rating）。
// 共同评分物品少于 minCommon 时返回 ok=false。
func UserSimilarity(a, b map[int64]float64, minCommon int) (float64, bool) {
	return onCommonSupport(a, b, minCommon)
}

// CommonSupport 返回两个稀疏向量的共同 key（升序）。
func CommonSupport(a, b map[int64]float64) []int64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	keys := make([]int64, 0, len(a))
	for k := range a {
		if _, ok := b[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// onCommonSupport 按升序 key 收集共同评分对，保证同一输入的浮点累加顺序固定，
// 从而 sim(i,j) 与 sim(j,i) 完全相等。
func onCommonSupport(a, b map[int64]float64, minCommon int) (float64, bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	keys := CommonSupport(a, b)
	if len(keys) < minCommon {
		return 0, false
	}
	x := make([]float64, len(keys))
	y := make([]float64, len(keys))
	for idx, k := range keys {
		x[idx] = a[k]
		y[idx] = b[k]
	}
	return Pearson(x, y)
}
