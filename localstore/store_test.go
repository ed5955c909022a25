package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/store"
)

func TestStore_UpsertGetClear(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewFileStore(t.TempDir()), WithKey("local_user.json"))

	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Get() on first access = %v, want empty", got)
	}

	if err := s.Upsert(ctx, 50, 4.5); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, err = s.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !reflect.DeepEqual(got, map[int64]float64{50: 4.5}) {
		t.Errorf("Get() = %v, want {50:4.5}", got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, _ = s.Get(ctx)
	if len(got) != 0 {
		t.Errorf("Get() after Clear = %v, want empty", got)
	}
}

func TestStore_FirstAccessPersistsEmptyRecord(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	s := New(backend)

	if _, err := s.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, err := backend.Get(ctx, DefaultKey)
	if err != nil {
		t.Fatalf("document not created: %v", err)
	}
	if !strings.Contains(string(data), `"local_user"`) {
		t.Errorf("document = %s", data)
	}
}

func TestStore_DurableAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	key := filepath.Join(dir, "local.json")

	first := New(store.NewFileStore(""), WithKey(key))
	if err := first.Upsert(ctx, 7, 3); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := first.Upsert(ctx, 7, 5); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	second := New(store.NewFileStore(""), WithKey(key))
	got, err := second.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !reflect.DeepEqual(got, map[int64]float64{7: 5}) {
		t.Errorf("Get() = %v, want {7:5}", got)
	}
}

func TestStore_UpsertRejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	s := New(backend)

	for _, r := range []float64{0, 0.99, 5.01, -1} {
		err := s.Upsert(ctx, 1, r)
		if !core.IsInvalidInput(err) {
			t.Errorf("Upsert(%v) error = %v, want INVALID_INPUT", r, err)
		}
	}
	if _, err := backend.Get(ctx, DefaultKey); !core.IsStoreNotFound(err) {
		t.Errorf("rejected upsert wrote document, err = %v", err)
	}
}

func TestStore_PreservesOtherKeys(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	_ = backend.Set(ctx, DefaultKey, []byte(`{"settings":{"theme":"dark"},"local_user":{"ratings":{"12":2}}}`))
	s := New(backend)

	if err := s.Upsert(ctx, 13, 4); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	data, _ := backend.Get(ctx, DefaultKey)
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document not valid json: %v", err)
	}
	if _, ok := doc["settings"]; !ok {
		t.Errorf("settings key dropped: %s", data)
	}
	got, _ := s.Get(ctx)
	if !reflect.DeepEqual(got, map[int64]float64{12: 2, 13: 4}) {
		t.Errorf("Get() = %v", got)
	}
}

func TestStore_MalformedDocumentStartsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	_ = backend.Set(ctx, DefaultKey, []byte(`{not json`))
	s := New(backend)

	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Get() = %v, want empty", got)
	}
}

type brokenStore struct{ *store.MemoryStore }

func (brokenStore) Set(context.Context, string, []byte) error { return errors.New("read-only filesystem") }

func TestStore_PersistenceFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	s := New(brokenStore{store.NewMemoryStore()})

	err := s.Upsert(ctx, 50, 4.5)
	if !core.IsPersistenceFailure(err) {
		t.Fatalf("Upsert() error = %v, want PERSISTENCE_FAILURE", err)
	}
	got, _ := s.Get(ctx)
	if got[50] != 4.5 {
		t.Errorf("in-memory state lost update: %v", got)
	}
}
