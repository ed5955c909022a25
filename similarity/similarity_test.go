package similarity

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func TestPearson(t *testing.T) {
	tests := []struct {
		name   string
		x, y   []float64
		want   float64
		wantOK bool
	}{
		{name: "perfect positive", x: []float64{5, 3, 1}, y: []float64{5, 3, 1}, want: 1, wantOK: true},
		{name: "perfect negative", x: []float64{1, 2, 3}, y: []float64{3, 2, 1}, want: -1, wantOK: true},
		{name: "zero variance", x: []float64{4, 4, 4}, y: []float64{1, 2, 3}, wantOK: false},
		{name: "length mismatch", x: []float64{1, 2}, y: []float64{1}, wantOK: false},
		{name: "empty", wantOK: false},
		{name: "single point", x: []float64{3}, y: []float64{4}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Pearson(tt.x, tt.y)
			if ok != tt.wantOK {
				t.Fatalf("Pearson() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Pearson() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItemSimilarity_PerfectCorrelation(t *testing.T) {
	// 3 个用户对物品 10、20 的评分：(5,5) (3,3) (1,1)
	item10 := map[int64]float64{1: 5, 2: 3, 3: 1}
	item20 := map[int64]float64{1: 5, 2: 3, 3: 1}

	got, ok := ItemSimilarity(item10, item20, 2)
	if !ok {
		t.Fatal("ItemSimilarity() undefined, want ~1.0")
	}
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("ItemSimilarity() = %v, want 1.0", got)
	}
}

func TestItemSimilarity_Symmetric(t *testing.T) {
	cols := []map[int64]float64{
		{1: 5, 2: 3, 3: 4, 4: 1, 7: 2},
		{1: 4, 2: 2, 3: 5, 5: 3, 7: 1},
		{2: 1, 3: 3, 4: 5, 5: 2, 6: 4},
		{1: 1, 2: 5, 6: 2},
	}
	for i := range cols {
		for j := range cols {
			a, okA := ItemSimilarity(cols[i], cols[j], 2)
			b, okB := ItemSimilarity(cols[j], cols[i], 2)
			if okA != okB || a != b {
				t.Errorf("sim(%d,%d) = (%v,%v), sim(%d,%d) = (%v,%v)", i, j, a, okA, j, i, b, okB)
			}
		}
	}
}

func TestItemSimilarity_InsufficientSupport(t *testing.T) {
	a := map[int64]float64{1: 5, 2: 3}
	b := map[int64]float64{1: 4, 3: 2}
	if _, ok := ItemSimilarity(a, b, 2); ok {
		t.Error("ItemSimilarity() defined with 1 common user, min 2")
	}
	if _, ok := ItemSimilarity(a, nil, 1); ok {
		t.Error("ItemSimilarity() defined against empty column")
	}
}

func TestUserSimilarity(t *testing.T) {
	u := map[int64]float64{10: 5, 20: 4, 30: 1}
	v := map[int64]float64{10: 4, 20: 3, 30: 2, 40: 5}

	got, ok := UserSimilarity(u, v, 3)
	if !ok || got <= 0.9 {
		t.Errorf("UserSimilarity() = %v, %v; want strongly positive", got, ok)
	}
	if _, ok := UserSimilarity(u, v, 4); ok {
		t.Error("UserSimilarity() defined with support 3 < 4")
	}
}

func TestMatrix_SetGet(t *testing.T) {
	m := NewMatrix()
	m.Set(1, 2, 0.5)
	m.Set(3, 3, 0.9)

	if v, ok := m.Get(2, 1); !ok || v != 0.5 {
		t.Errorf("Get(2,1) = %v, %v", v, ok)
	}
	if _, ok := m.Get(3, 3); ok {
		t.Error("self entry stored")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if !m.Symmetric() {
		t.Error("Symmetric() = false")
	}
}

func TestBuild_SparsificationAndSupport(t *testing.T) {
	cols := map[int64]map[int64]float64{
		10: {1: 5, 2: 3, 3: 1, 4: 4},
		20: {1: 5, 2: 3, 3: 1},             // 与 10 完全正相关
		30: {1: 1, 2: 3, 3: 5},             // 与 10 完全负相关
		40: {1: 4, 2: 4, 3: 4},             // 方差为零
		50: {4: 2, 5: 3},                   // 与其他物品支持不足
		60: {1: 3, 2: 3.1, 3: 2.9, 4: 3.05}, // 与 10 弱相关
	}
	items := []int64{10, 20, 30, 40, 50, 60}
	column := func(id int64) map[int64]float64 { return cols[id] }

	for _, workers := range []int{1, 3, 16} {
		m, err := Build(context.Background(), items, column, BuildOptions{MinCommonUsers: 3, Workers: workers})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if !m.Symmetric() {
			t.Errorf("workers=%d: matrix not symmetric", workers)
		}
		for _, p := range m.Pairs() {
			if math.Abs(p.Value) <= 0.1 {
				t.Errorf("workers=%d: kept |%v| <= 0.1 for (%d,%d)", workers, p.Value, p.I, p.J)
			}
			if n := len(CommonSupport(cols[p.I], cols[p.J])); n < 3 {
				t.Errorf("workers=%d: kept (%d,%d) with support %d", workers, p.I, p.J, n)
			}
		}
		if v, ok := m.Get(10, 20); !ok || math.Abs(v-1) > 1e-9 {
			t.Errorf("workers=%d: (10,20) = %v, %v", workers, v, ok)
		}
		if v, ok := m.Get(30, 10); !ok || math.Abs(v+1) > 1e-9 {
			t.Errorf("workers=%d: (30,10) = %v, %v", workers, v, ok)
		}
		if _, ok := m.Get(10, 40); ok {
			t.Errorf("workers=%d: zero-variance pair kept", workers)
		}
		if len(m.Neighbors(50)) != 0 {
			t.Errorf("workers=%d: item 50 has neighbors %v", workers, m.Neighbors(50))
		}
	}
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, []int64{1, 2, 3}, func(int64) map[int64]float64 { return nil }, BuildOptions{MinCommonUsers: 1})
	if err == nil {
		t.Fatal("Build() with canceled ctx error = nil")
	}
}

// chanSlots 是容量固定的槽位，记录 Acquire/Release 次数。
type chanSlots struct {
	ch                 chan struct{}
	acquired, released atomic.Int32
}

func (s *chanSlots) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		s.acquired.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chanSlots) Release() {
	s.released.Add(1)
	<-s.ch
}

func TestBuild_SlotsBoundRows(t *testing.T) {
	cols := map[int64]map[int64]float64{
		1: {1: 5, 2: 3, 3: 1},
		2: {1: 5, 2: 3, 3: 1},
		3: {1: 1, 2: 3, 3: 5},
		4: {1: 4, 2: 2, 3: 1},
		5: {1: 2, 2: 3, 3: 5},
		6: {1: 5, 2: 4, 3: 1},
	}
	items := []int64{1, 2, 3, 4, 5, 6}

	var running, peak atomic.Int32
	column := func(id int64) map[int64]float64 {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return cols[id]
	}

	slots := &chanSlots{ch: make(chan struct{}, 1)}
	got, err := Build(context.Background(), items, column, BuildOptions{MinCommonUsers: 3, Workers: 4, Slots: slots})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent rows = %d, want 1", p)
	}
	if a, r := slots.acquired.Load(), slots.released.Load(); a != int32(len(items)) || r != a {
		t.Errorf("acquired = %d, released = %d, want %d each", a, r, len(items))
	}

	want, err := Build(context.Background(), items, func(id int64) map[int64]float64 { return cols[id] },
		BuildOptions{MinCommonUsers: 3, Workers: 4})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got.Len() != want.Len() {
		t.Fatalf("Len() = %d, want %d", got.Len(), want.Len())
	}
	for _, p := range want.Pairs() {
		if v, ok := got.Get(p.I, p.J); !ok || math.Abs(v-p.Value) > 1e-12 {
			t.Errorf("(%d,%d) = %v, %v, want %v", p.I, p.J, v, ok, p.Value)
		}
	}
}
