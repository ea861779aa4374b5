package store_test

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stevemurr/flatfile-items/record"
	"github.com/stevemurr/flatfile-items/store"
)

var errAbort = errors.New("abort")

func snapshot(t *testing.T, s store.Store) record.Collection {
	t.Helper()
	var out record.Collection
	if err := s.View(func(c record.Collection) error {
		out = c.Clone()
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return out
}

func appendItem(t *testing.T, s store.Store, id string, fields map[string]any) {
	t.Helper()
	err := s.Update(func(c record.Collection) (record.Collection, error) {
		return c.Append(record.New(id, fields)), nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// runStoreTests runs a common test suite against any Store implementation.
func runStoreTests(t *testing.T, s store.Store) {
	t.Helper()

	t.Run("View empty", func(t *testing.T) {
		items := snapshot(t, s)
		if items == nil {
			t.Fatal("expected non-nil empty collection")
		}
		if len(items) != 0 {
			t.Fatalf("expected 0 items, got %d", len(items))
		}
	})

	t.Run("Update appends in order", func(t *testing.T) {
		appendItem(t, s, "1", map[string]any{"name": "a", "count": float64(42)})
		appendItem(t, s, "2", map[string]any{"name": "b"})

		items := snapshot(t, s)
		if len(items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(items))
		}
		if items[0].ID != "1" || items[1].ID != "2" {
			t.Fatalf("expected order 1,2 got %s,%s", items[0].ID, items[1].ID)
		}
		if items[0].Fields["count"] != float64(42) {
			t.Fatalf("expected count=42, got %v", items[0].Fields["count"])
		}
	})

	t.Run("Update merges", func(t *testing.T) {
		err := s.Update(func(c record.Collection) (record.Collection, error) {
			c, _ = c.ReplaceAt(c.Index("1"), map[string]any{"name": "z"})
			return c, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		r, ok := snapshot(t, s).Find("1")
		if !ok {
			t.Fatal("expected item 1")
		}
		if r.Fields["name"] != "z" || r.Fields["count"] != float64(42) {
			t.Fatalf("unexpected fields after merge: %v", r.Fields)
		}
	})

	t.Run("Update error discards changes", func(t *testing.T) {
		err := s.Update(func(c record.Collection) (record.Collection, error) {
			c = c.Append(record.New("3", nil))
			return c, errAbort
		})
		if !errors.Is(err, errAbort) {
			t.Fatalf("expected errAbort, got %v", err)
		}
		if len(snapshot(t, s)) != 2 {
			t.Fatal("aborted update must not persist")
		}
	})

	t.Run("View does not leak mutations", func(t *testing.T) {
		_ = s.View(func(c record.Collection) error {
			if len(c) > 0 {
				c[0].Fields["name"] = "mutated"
			}
			return nil
		})
		r, _ := snapshot(t, s).Find("1")
		if r.Fields["name"] == "mutated" {
			t.Fatal("mutation inside View must not be persisted")
		}
	})

	t.Run("Update removes", func(t *testing.T) {
		var removed bool
		err := s.Update(func(c record.Collection) (record.Collection, error) {
			c, removed = c.Remove("1")
			return c, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if !removed {
			t.Fatal("expected removal")
		}
		items := snapshot(t, s)
		if len(items) != 1 || items[0].ID != "2" {
			t.Fatalf("expected only item 2, got %+v", items)
		}
	})

	t.Run("Concurrent updates lose nothing", func(t *testing.T) {
		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = s.Update(func(c record.Collection) (record.Collection, error) {
					return c.Append(record.New(fmt.Sprintf("c%d", i), nil)), nil
				})
			}(i)
		}
		wg.Wait()
		if got := len(snapshot(t, s)); got != n+1 {
			t.Fatalf("expected %d items, got %d", n+1, got)
		}
	})
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, store.NewMemoryStore())
}

func TestJSONFileStore(t *testing.T) {
	s, err := store.NewJSONFileStore(filepath.Join(t.TempDir(), "data.json"), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	runStoreTests(t, s)
}

func TestSqliteStore(t *testing.T) {
	s, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	runStoreTests(t, s)
}

func TestFactory(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
	}{
		{"json"},
		{"sqlite"},
		{"memory"},
		{""},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			s, err := store.New(tc.backend, filepath.Join(dir, "x"+tc.backend, "data"), quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			_ = s
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := store.New("redis", dir, quietLogger())
		if !errors.Is(err, store.ErrUnknownBackend) {
			t.Fatalf("expected ErrUnknownBackend, got %v", err)
		}
	})
}

func TestJSONFileLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	s, err := store.NewJSONFileStore(path, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	appendItem(t, s, "1", map[string]any{"name": "widget"})

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "[\n  {\n    \"id\": \"1\",\n    \"name\": \"widget\"\n  }\n]"
	if string(b) != want {
		t.Fatalf("unexpected file content:\n%s", b)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "data.json.tmp-*"))
	if len(leftovers) != 0 {
		t.Fatalf("expected no temp files, got %v", leftovers)
	}
}

func TestJSONFileFailOpen(t *testing.T) {
	for name, content := range map[string]string{
		"empty":     "",
		"blank":     "  \n",
		"null":      "null",
		"truncated": `[{"id":"1"`,
		"object":    `{"id":"1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			s, err := store.NewJSONFileStore(path, quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			items := snapshot(t, s)
			if items == nil || len(items) != 0 {
				t.Fatalf("expected empty collection, got %#v", items)
			}
		})
	}
}

func TestJSONFileReadsWithoutLockFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	if err := os.WriteFile(path, []byte(`[{"id":"1","name":"a"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	// A self-referencing symlink cannot be opened, even by root.
	if err := os.Symlink(path+".lock", path+".lock"); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	s, err := store.NewJSONFileStore(path, log.New(&logs, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	items := snapshot(t, s)
	if len(items) != 1 || items[0].ID != "1" || items[0].Fields["name"] != "a" {
		t.Fatalf("expected stored item, got %+v", items)
	}
	if !strings.Contains(logs.String(), "without shared lock") {
		t.Fatalf("expected lock diagnostic, got %q", logs.String())
	}
	if h := s.Health(); h.Status != "ok" {
		t.Fatalf("expected ok health, got %+v", h)
	}

	// Writers still need the lock and report the failure.
	if err := s.Update(func(c record.Collection) (record.Collection, error) { return c, nil }); err == nil {
		t.Fatal("expected Update to fail without a lock file")
	}
}

func TestJSONFileSaveFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	s, err := store.NewJSONFileStore(path, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	// The rename over the data file fails while a non-empty directory sits there.
	if err := os.MkdirAll(filepath.Join(path, "occupied"), 0o755); err != nil {
		t.Fatal(err)
	}

	err = s.Update(func(c record.Collection) (record.Collection, error) {
		return c.Append(record.New("1", nil)), nil
	})
	if err == nil {
		t.Fatal("expected save to fail")
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		t.Fatalf("expected wrapped *os.LinkError, got %T: %v", err, err)
	}
	if !strings.HasPrefix(err.Error(), "rename ") {
		t.Fatalf("expected rename context in %q", err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "data.json.tmp-*"))
	if len(leftovers) != 0 {
		t.Fatalf("expected temp file cleanup, got %v", leftovers)
	}
}

func TestJSONFileCorruptionBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	corrupt := []byte(`[{"id":"1", "name": `)
	if err := os.WriteFile(path, corrupt, 0o644); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	s, err := store.NewJSONFileStore(path, log.New(&logs, "", 0))
	if err != nil {
		t.Fatal(err)
	}

	snapshot(t, s)
	h := s.Health()
	if h.Status != "degraded" || h.Error == "" {
		t.Fatalf("expected degraded health, got %+v", h)
	}
	if !strings.Contains(logs.String(), "error parsing") {
		t.Fatalf("expected a parse diagnostic, got %q", logs.String())
	}

	appendItem(t, s, "2", nil)
	if h := s.Health(); h.Status != "ok" || h.Error != "" {
		t.Fatalf("expected ok right after the rewrite, got %+v", h)
	}

	backups, _ := filepath.Glob(path + ".corrupt-*")
	if len(backups) != 1 {
		t.Fatalf("expected one backup, got %v", backups)
	}
	b, err := os.ReadFile(backups[0])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, corrupt) {
		t.Fatalf("backup content mismatch: %s", b)
	}
	if s.Health().Backup != backups[0] {
		t.Fatalf("expected health to name the backup, got %+v", s.Health())
	}

	items := snapshot(t, s)
	if len(items) != 1 || items[0].ID != "2" {
		t.Fatalf("expected only item 2, got %+v", items)
	}
	if h := s.Health(); h.Status != "ok" || h.Backup != backups[0] {
		t.Fatalf("expected ok health that still names the backup, got %+v", h)
	}
}

func TestJSONFileSharedAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	a, err := store.NewJSONFileStore(path, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.NewJSONFileStore(path, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		for _, s := range []*store.JSONFileStore{a, b} {
			wg.Add(1)
			go func(s *store.JSONFileStore, i int) {
				defer wg.Done()
				_ = s.Update(func(c record.Collection) (record.Collection, error) {
					return c.Append(record.New(fmt.Sprintf("%p-%d", s, i), nil)), nil
				})
			}(s, i)
		}
	}
	wg.Wait()
	if got := len(snapshot(t, a)); got != 2*n {
		t.Fatalf("expected %d items, got %d", 2*n, got)
	}
}
