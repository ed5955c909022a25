package dataset

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const sampleRatings = "1\t10\t5\t881250949\n" +
	"1\t20\t4\t881250950\n" +
	"2\t10\t3\t881250951\n" +
	"2\t10\t5\t881250952\n" +
	"\n" +
	"3\t30\t2\t881250953\n" +
	"3\t10\t1\t881250954\n"

func TestRepository_Load(t *testing.T) {
	dir := t.TempDir()
	ratings := writeFile(t, dir, "u.data", []byte(sampleRatings))
	// "Café" 以 Latin-1 编码：é = 0xE9
	item := []byte("10|Caf\xe9 Society (1995)|01-Jan-1995||http://x|0|1|0|0|0|1|0|0|0|0|0|0|0|0|0|0|0|0|0\n" +
		"20|Heat (1995)|01-Jan-1995||http://y|0|1\n")
	movies := writeFile(t, dir, "u.item", item)

	repo := NewRepository(ratings, movies)
	if err := repo.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if repo.Empty() {
		t.Fatal("Empty() = true, want false")
	}
	if got := repo.NumRatings(); got != 6 {
		t.Errorf("NumRatings() = %d, want 6", got)
	}
	if got := repo.AllUserIDs(); !reflect.DeepEqual(got, []int64{1, 2, 3}) {
		t.Errorf("AllUserIDs() = %v", got)
	}
	if got := repo.AllItemIDs(); !reflect.DeepEqual(got, []int64{10, 20, 30}) {
		t.Errorf("AllItemIDs() = %v", got)
	}

	// 重复的 (2,10) 取均值
	if got := repo.RatingsFor(2); !reflect.DeepEqual(got, map[int64]float64{10: 4}) {
		t.Errorf("RatingsFor(2) = %v, want {10:4}", got)
	}
	if got := repo.RatingsFor(99); len(got) != 0 {
		t.Errorf("RatingsFor(unknown) = %v, want empty", got)
	}

	// 物品均值基于每个用户的均值：(5 + 4 + 1) / 3
	mean, ok := repo.ItemMean(10)
	if !ok || mean != 10.0/3.0 {
		t.Errorf("ItemMean(10) = %v, %v", mean, ok)
	}

	if got := repo.TitleOf(10); got != "Café Society (1995)" {
		t.Errorf("TitleOf(10) = %q", got)
	}
	if got := repo.TitleOf(30); got != "Movie 30" {
		t.Errorf("TitleOf(30) = %q, want placeholder", got)
	}
	if got := repo.GenresOf(10); !reflect.DeepEqual(got, []string{"Action", "Comedy"}) {
		t.Errorf("GenresOf(10) = %v", got)
	}
	if got := repo.GenresOf(20); !reflect.DeepEqual(got, []string{"Action"}) {
		t.Errorf("GenresOf(20) = %v (missing flags count as 0)", got)
	}
	if got := repo.GenresOf(30); got == nil || len(got) != 0 {
		t.Errorf("GenresOf(unknown) = %#v, want empty non-nil", got)
	}
}

func TestRepository_LoadDegrades(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		ratings string
		movies  string
		empty   bool
		movieOK bool
	}{
		{
			name:    "missing ratings file",
			ratings: filepath.Join(dir, "nope.data"),
			empty:   true,
		},
		{
			name:    "malformed ratings line",
			ratings: writeFile(t, dir, "bad.data", []byte("1\t10\t5\t1\n1\tx\t5\t1\n")),
			empty:   true,
		},
		{
			name:    "rating out of range",
			ratings: writeFile(t, dir, "range.data", []byte("1\t10\t7\t1\n")),
			empty:   true,
		},
		{
			name:    "missing metadata keeps ratings",
			ratings: writeFile(t, dir, "ok.data", []byte("1\t10\t5\t1\n")),
			movies:  filepath.Join(dir, "nope.item"),
			empty:   false,
		},
		{
			name:    "malformed metadata keeps ratings",
			ratings: writeFile(t, dir, "ok2.data", []byte("1\t10\t5\t1\n")),
			movies:  writeFile(t, dir, "bad.item", []byte("abc|Title\n")),
			empty:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewRepository(tt.ratings, tt.movies)
			if err := repo.Load(context.Background()); err != nil {
				t.Fatalf("Load() error = %v, want nil (degrade)", err)
			}
			if repo.Empty() != tt.empty {
				t.Errorf("Empty() = %v, want %v", repo.Empty(), tt.empty)
			}
			if _, ok := repo.Movie(10); ok {
				t.Errorf("Movie(10) found, want empty metadata")
			}
			if repo.TopPopular(5) == nil {
				t.Errorf("TopPopular() = nil, want non-nil slice")
			}
		})
	}
}

func TestRepository_TopPopular(t *testing.T) {
	// 物品 5 与 3 各 2 条，物品 9 有 3 条，物品 1 有 1 条
	ratings := []Rating{
		{UserID: 1, ItemID: 9, Value: 4}, {UserID: 2, ItemID: 9, Value: 4}, {UserID: 3, ItemID: 9, Value: 4},
		{UserID: 1, ItemID: 5, Value: 3}, {UserID: 2, ItemID: 5, Value: 3},
		{UserID: 1, ItemID: 3, Value: 2}, {UserID: 2, ItemID: 3, Value: 2},
		{UserID: 1, ItemID: 1, Value: 1},
	}
	repo := FromRatings(ratings, nil)

	tests := []struct {
		n    int
		want []int64
	}{
		{n: 0, want: []int64{}},
		{n: 2, want: []int64{9, 3}},
		{n: 10, want: []int64{9, 3, 5, 1}},
	}
	for _, tt := range tests {
		if got := repo.TopPopular(tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("TopPopular(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestRepository_RandomSample(t *testing.T) {
	movies := map[int64]Movie{
		1: {ID: 1, Title: "a"}, 2: {ID: 2, Title: "b"}, 3: {ID: 3, Title: "c"},
		4: {ID: 4, Title: "d"}, 5: {ID: 5, Title: "e"},
	}
	repo := FromRatings(nil, movies, WithRand(rand.New(rand.NewPCG(1, 2))))

	got := repo.RandomSample(3)
	if len(got) != 3 {
		t.Fatalf("RandomSample(3) len = %d", len(got))
	}
	seen := map[int64]bool{}
	for _, id := range got {
		if _, ok := movies[id]; !ok {
			t.Errorf("sampled unknown id %d", id)
		}
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
	}

	if got := repo.RandomSample(50); len(got) != 5 {
		t.Errorf("RandomSample(50) len = %d, want capped at 5", len(got))
	}
	if got := FromRatings(nil, nil).RandomSample(3); len(got) != 0 {
		t.Errorf("RandomSample on empty catalog = %v", got)
	}
}

func TestParseRatings_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var b strings.Builder
	for i := 0; i < 20000; i++ {
		b.WriteString("1\t1\t3\t1\n")
	}
	if _, err := ParseRatings(ctx, strings.NewReader(b.String())); err == nil {
		t.Fatal("ParseRatings() with canceled ctx error = nil")
	}
}
