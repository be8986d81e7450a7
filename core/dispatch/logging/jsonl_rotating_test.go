package logging

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/commits.jsonl"
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	pad := strings.Repeat("x", 4096)
	rec := CommitRecord{Timestamp: time.Now(), DeliveryID: "d1", DriverID: pad}
	for i := 0; i < 300; i++ {
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	files, _ := filepath.Glob(dir + "/commits*.jsonl")
	if len(files) < 2 {
		t.Fatalf("expected rotated files, got %v", files)
	}
	out, err := store.Query(context.Background(), CommitQuery{DeliveryID: "d1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected records across files")
	}
}

func TestRotatingJSONLStore_Query(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/commits.jsonl"
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	now := time.Now()
	_ = store.Append(context.Background(), CommitRecord{Timestamp: now, DeliveryID: "d1", DriverID: "drv1"})
	_ = store.Append(context.Background(), CommitRecord{Timestamp: now.Add(time.Second), DeliveryID: "d2", DriverID: "drv2"})
	out, err := store.Query(context.Background(), CommitQuery{DriverID: "drv2"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].DeliveryID != "d2" {
		t.Fatalf("unexpected records %#v", out)
	}
}

func TestJSONLStore_Filters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commits.jsonl")
	store, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"d1", "d2", "d3"} {
		rec := CommitRecord{Timestamp: now.Add(time.Duration(i) * time.Minute), DeliveryID: id, DriverID: "drv1"}
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	out, err := store.Query(context.Background(), CommitQuery{Start: now.Add(30 * time.Second), End: now.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].DeliveryID != "d2" {
		t.Fatalf("unexpected records %#v", out)
	}
}

func TestNewBackends(t *testing.T) {
	s, err := New(Config{})
	if err != nil || s != nil {
		t.Fatalf("expected no store, got %v %v", s, err)
	}
	if _, err := New(Config{Backend: "mongo"}); err == nil {
		t.Fatal("expected unknown backend error")
	}
	s, err = New(Config{Backend: "rotating", Path: filepath.Join(t.TempDir(), "c.jsonl")})
	if err != nil {
		t.Fatalf("rotating: %v", err)
	}
	_ = s.Close()
}
