package pools

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRefreshCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	saved := NewRefreshCheckpoint(path, true)
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := saved.Save(42161, at); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := saved.Save(10, at.Add(time.Hour)); err != nil {
		t.Fatalf("save second chain: %v", err)
	}

	// A fresh instance stands in for a restarted process.
	loaded := NewRefreshCheckpoint(path, true)
	got, ok, err := loaded.Load(42161)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("chain 42161 missing after restart")
	}
	if !got.Equal(at) {
		t.Fatalf("loaded %v, want %v", got, at)
	}

	if _, ok, err := loaded.Load(1); err != nil || ok {
		t.Fatalf("unknown chain: ok=%v err=%v, want absent", ok, err)
	}
}

func TestRefreshCheckpointDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	disabled := NewRefreshCheckpoint(path, false)
	if err := disabled.Save(1, time.Now()); err != nil {
		t.Fatalf("disabled save: %v", err)
	}
	if _, ok, err := disabled.Load(1); err != nil || ok {
		t.Fatalf("disabled load: ok=%v err=%v, want no-op", ok, err)
	}

	var nilCheckpoint *RefreshCheckpoint
	if err := nilCheckpoint.Save(1, time.Now()); err != nil {
		t.Fatalf("nil save: %v", err)
	}
	if _, ok, err := nilCheckpoint.Load(1); err != nil || ok {
		t.Fatalf("nil load: ok=%v err=%v, want no-op", ok, err)
	}
}
