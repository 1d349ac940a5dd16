package common

import (
	"errors"
	"testing"
)

func TestGuardNilViewNeverPauses(t *testing.T) {
	if err := Guard(nil, "sale"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestPausesToggle(t *testing.T) {
	p := NewPauses()
	if err := Guard(p, "sale"); err != nil {
		t.Fatalf("expected running module, got %v", err)
	}
	p.Set("sale", true)
	if err := Guard(p, "sale"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(p, "other"); err != nil {
		t.Fatalf("expected unrelated module to run, got %v", err)
	}
	p.Set("sale", false)
	if err := Guard(p, "sale"); err != nil {
		t.Fatalf("expected resumed module, got %v", err)
	}
	if len(p.Snapshot()) != 0 {
		t.Fatalf("expected empty snapshot, got %v", p.Snapshot())
	}
}
