package scenarios

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenarios found")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestToggleDefaults(t *testing.T) {
	var d *ToggleDef
	if got := d.ToModel(); !got.Assignment || !got.Escalation {
		t.Fatalf("nil toggles should enable every pass: %+v", got)
	}
	off := false
	d = &ToggleDef{RouteAdvisory: &off}
	got := d.ToModel()
	if got.RouteAdvisory || !got.RebalanceHints {
		t.Fatalf("unexpected toggles %+v", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	tmp, err := os.CreateTemp(t.TempDir(), "bad*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmp.WriteString(":"); err != nil {
		t.Fatal(err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(tmp.Name()); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestSameSet(t *testing.T) {
	if !sameSet([]string{"a", "b"}, []string{"b", "a"}) {
		t.Fatal("expected equal sets")
	}
	if sameSet([]string{"a", "a"}, []string{"a", "b"}) {
		t.Fatal("expected different sets")
	}
}
