package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	return map[string]Backend{
		"local":  local,
		"memory": NewMemory(),
	}
}

func TestBackendContract(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if ok, err := b.Exists(ctx, "history/AAA/year=2024/data"); err != nil || ok {
				t.Fatalf("exists on empty: ok=%v err=%v", ok, err)
			}
			if _, err := b.Read(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("read missing: want ErrNotFound, got %v", err)
			}

			keys := []string{
				"history/BBB/year=2024/data",
				"history/AAA/year=2023/data",
				"history/AAA/year=2024/data",
				"logs/fetch/dt=2024-01-02/metadata.json",
			}
			for i, k := range keys {
				if err := b.Write(ctx, k, []byte{byte(i)}); err != nil {
					t.Fatalf("write %s: %v", k, err)
				}
			}

			got, err := b.Read(ctx, "history/AAA/year=2024/data")
			if err != nil || len(got) != 1 || got[0] != 2 {
				t.Fatalf("read back: %v %v", got, err)
			}

			list, err := b.List(ctx, "history/AAA/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			want := []string{"history/AAA/year=2023/data", "history/AAA/year=2024/data"}
			if !reflect.DeepEqual(list, want) {
				t.Fatalf("list = %v, want %v", list, want)
			}

			list, err = b.List(ctx, "logs/fetch/dt=2024")
			if err != nil || len(list) != 1 {
				t.Fatalf("mid-segment list = %v err=%v", list, err)
			}

			if err := b.Write(ctx, "history/AAA/year=2024/data", []byte("new")); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, _ = b.Read(ctx, "history/AAA/year=2024/data")
			if string(got) != "new" {
				t.Fatalf("overwrite not visible: %q", got)
			}

			if err := b.Delete(ctx, "history/AAA/year=2023/data"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := b.Delete(ctx, "history/AAA/year=2023/data"); err != nil {
				t.Fatalf("delete twice: %v", err)
			}
			list, _ = b.List(ctx, "history/AAA/")
			if len(list) != 1 {
				t.Fatalf("after delete list = %v", list)
			}

			all, _ := b.List(ctx, "")
			if len(all) != 3 {
				t.Fatalf("list all = %v", all)
			}
		})
	}
}

func TestLocalWriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root)
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	if err := l.Write(context.Background(), "a/b/c.json", []byte("{}")); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "a", "b"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLocalDeletePrunesEmptyDirs(t *testing.T) {
	root := t.TempDir()
	l, _ := NewLocal(root)
	ctx := context.Background()
	_ = l.Write(ctx, "history/ZZZ/year=2020/data", []byte("x"))
	if err := l.Delete(ctx, "history/ZZZ/year=2020/data"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "history", "ZZZ")); !os.IsNotExist(err) {
		t.Fatalf("expected ticker dir pruned, stat err=%v", err)
	}
}

func TestMemoryWritesCounter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Write(ctx, "k", []byte("v"))
	_ = m.Write(ctx, "k", []byte("v2"))
	if m.Writes() != 2 {
		t.Fatalf("writes = %d", m.Writes())
	}
	ctx2, cancel := context.WithCancel(ctx)
	cancel()
	if err := m.Write(ctx2, "k", nil); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
	if m.Writes() != 2 {
		t.Fatalf("cancelled write counted")
	}
}

func TestPrefixHelpers(t *testing.T) {
	if got := withPrefix("root/", "a/b"); got != "root/a/b" {
		t.Fatalf("withPrefix = %q", got)
	}
	if got := withoutPrefix("root/", "root/a/b"); got != "a/b" {
		t.Fatalf("withoutPrefix = %q", got)
	}
	if got := Join("history", "AAA", "year=2024", "data"); got != "history/AAA/year=2024/data" {
		t.Fatalf("join = %q", got)
	}
	if got := Segments("/history/AAA/"); len(got) != 2 {
		t.Fatalf("segments = %v", got)
	}
}
