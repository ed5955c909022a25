package similarity

import (
	"math"
	"sort"

	"github.com/rushteam/movierec/core"
)

// Matrix 是稀疏对称的物品相似度矩阵：item -> (item -> correlation)。
// 不包含自身条目；(i,j) 存在则 (j,i) 存在且值相同。
type Matrix map[int64]map[int64]float64

// Pair 是矩阵中的一条无序条目（I < J）。
type Pair struct {
	I, J  int64
	Value float64
}

// NewMatrix 创建空矩阵。
func NewMatrix() Matrix {
	return make(Matrix)
}

// Keep 是稀疏化规则：只保留 |v| > MinAbsSimilarity 的值。
func Keep(v float64) bool {
	return math.Abs(v) > core.MinAbsSimilarity
}

// Set 对称写入 (i,j) 与 (j,i)；i == j 时忽略。
func (m Matrix) Set(i, j int64, v float64) {
	if i == j {
		return
	}
	row, ok := m[i]
	if !ok {
		row = make(map[int64]float64)
		m[i] = row
	}
	row[j] = v
	col, ok := m[j]
	if !ok {
		col = make(map[int64]float64)
		m[j] = col
	}
	col[i] = v
}

// Get 读取 (i,j)。
func (m Matrix) Get(i, j int64) (float64, bool) {
	row, ok := m[i]
	if !ok {
		return 0, false
	}
	v, ok := row[j]
	return v, ok
}

// Neighbors 返回物品 i 的所有相似物品（只读，不要修改）。
func (m Matrix) Neighbors(i int64) map[int64]float64 {
	return m[i]
}

// Len 返回无序条目数。
func (m Matrix) Len() int {
	n := 0
	for _, row := range m {
		n += len(row)
	}
	return n / 2
}

// Pairs 返回所有无序条目，按 (I, J) 升序。
func (m Matrix) Pairs() []Pair {
	out := make([]Pair, 0, m.Len())
	for i, row := range m {
		for j, v := range row {
			if i < j {
				out = append(out, Pair{I: i, J: j, Value: v})
			}
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].I != out[b].I {
			return out[a].I < out[b].I
		}
		return out[a].J < out[b].J
	})
	return out
}

// Symmetric 校验对称性与无自身条目（用于测试与缓存恢复后的自检）。
func (m Matrix) Symmetric() bool {
	for i, row := range m {
		if _, self := row[i]; self {
			return false
		}
		for j, v := range row {
			back, ok := m[j][i]
			if !ok || back != v {
				return false
			}
		}
	}
	return true
}
