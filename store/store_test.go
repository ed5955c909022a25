package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rushteam/movierec/core"
)

func backends(t *testing.T) map[string]core.Store {
	t.Helper()

	out := map[string]core.Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(t.TempDir()),
	}

	b, err := OpenBadgerStore("")
	if err != nil {
		t.Fatalf("OpenBadgerStore() error = %v", err)
	}
	out["badger"] = b

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		r, err := NewRedisStore(addr, 15)
		if err != nil {
			t.Fatalf("NewRedisStore(%s) error = %v", addr, err)
		}
		out["redis"] = r
	}

	t.Cleanup(func() {
		for _, s := range out {
			s.Close()
		}
	})
	return out
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := "movierec-test/doc.json"
			_ = s.Delete(ctx, key)

			if _, err := s.Get(ctx, key); !core.IsStoreNotFound(err) {
				t.Fatalf("Get(missing) error = %v, want not found", err)
			}

			if err := s.Set(ctx, key, []byte("v1")); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := s.Set(ctx, key, []byte("v2-longer")); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !bytes.Equal(got, []byte("v2-longer")) {
				t.Errorf("Get() = %q, want v2-longer", got)
			}

			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete(missing) error = %v", err)
			}
			if _, err := s.Get(ctx, key); !core.IsStoreNotFound(err) {
				t.Errorf("Get(after delete) error = %v, want not found", err)
			}
		})
	}
}

func TestFileStore_AtomicWriteLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	if err := s.Set(context.Background(), "nested/a.json", []byte("{}")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.json" {
		t.Errorf("dir entries = %v, want only a.json", entries)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		cfg     Config
		want    string
		wantErr bool
	}{
		{cfg: Config{}, want: DriverFile},
		{cfg: Config{Driver: DriverMemory}, want: DriverMemory},
		{cfg: Config{Driver: DriverBadger}, want: DriverBadger},
		{cfg: Config{Driver: "etcd"}, wantErr: true},
	}
	for _, tt := range tests {
		s, err := Open(tt.cfg)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Open(%+v) error = %v", tt.cfg, err)
		}
		if err != nil {
			continue
		}
		if s.Name() != tt.want {
			t.Errorf("Open(%+v).Name() = %s, want %s", tt.cfg, s.Name(), tt.want)
		}
		s.Close()
	}
}
