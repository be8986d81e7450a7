package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFailedOpenReturnsNilStore(t *testing.T) {
	// a regular file where a directory is expected fails every backend
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(parent, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, backend := range []string{"jsonl", "rotating", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			st, err := New(Config{Backend: backend, Path: filepath.Join(parent, "commits.log")})
			if err == nil {
				t.Fatalf("expected open error")
			}
			if st != nil {
				t.Fatalf("failed open must return a nil store, got %T", st)
			}
		})
	}
}

func TestNewNoBackend(t *testing.T) {
	st, err := New(Config{})
	if err != nil || st != nil {
		t.Fatalf("expected nil store and nil error, got %v %v", st, err)
	}
	if _, err := New(Config{Backend: "parquet"}); err == nil {
		t.Fatalf("unknown backend must fail")
	}
}
