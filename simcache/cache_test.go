package simcache

import (
	"context"
	"errors"
	"testing"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/similarity"
	"github.com/rushteam/movierec/store"
)

func sampleMatrix() similarity.Matrix {
	m := similarity.NewMatrix()
	m.Set(10, 20, 0.9)
	m.Set(10, 30, -0.4)
	return m
}

func TestCache_SaveLoad(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewFileStore(t.TempDir()), "sim.gob", nil)

	if _, ok := c.Load(ctx, 3, 20); ok {
		t.Fatal("Load() on empty store hit")
	}

	if err := c.Save(ctx, Record{Similarity: sampleMatrix(), MinCommonUsers: 3, TopK: 20}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	m, ok := c.Load(ctx, 3, 20)
	if !ok {
		t.Fatal("Load() miss after Save")
	}
	if v, ok := m.Get(20, 10); !ok || v != 0.9 {
		t.Errorf("restored (20,10) = %v, %v", v, ok)
	}
	if !m.Symmetric() {
		t.Error("restored matrix not symmetric")
	}
}

func TestCache_HyperparameterMismatch(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemoryStore(), "", nil)
	if err := c.Save(ctx, Record{Similarity: sampleMatrix(), MinCommonUsers: 3, TopK: 20}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tests := []struct {
		name      string
		minCommon int
		topK      int
		wantHit   bool
	}{
		{name: "exact match", minCommon: 3, topK: 20, wantHit: true},
		{name: "min_common_users differs", minCommon: 2, topK: 20},
		{name: "top_k differs", minCommon: 3, topK: 10},
		{name: "both differ", minCommon: 5, topK: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := c.Load(ctx, tt.minCommon, tt.topK); ok != tt.wantHit {
				t.Errorf("Load() hit = %v, want %v", ok, tt.wantHit)
			}
		})
	}
}

func TestCache_CorruptIsMiss(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_ = s.Set(ctx, DefaultKey, []byte("not gob"))
	c := New(s, "", nil)

	if _, ok := c.Load(ctx, 3, 20); ok {
		t.Fatal("Load() hit on corrupt record")
	}
	if _, err := c.Read(ctx); !core.IsCacheInvalid(err) {
		t.Errorf("Read() error = %v, want CACHE_INVALID", err)
	}
}

type failingStore struct{ *store.MemoryStore }

func (failingStore) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestCache_SaveFailure(t *testing.T) {
	c := New(failingStore{store.NewMemoryStore()}, "", nil)
	err := c.Save(context.Background(), Record{Similarity: sampleMatrix(), MinCommonUsers: 1, TopK: 1})
	if !core.IsPersistenceFailure(err) {
		t.Errorf("Save() error = %v, want PERSISTENCE_FAILURE", err)
	}
}
