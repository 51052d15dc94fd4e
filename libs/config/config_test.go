package config

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("RELAY_IDLE_DELAY", "750ms")
	if got := Duration("RELAY_IDLE_DELAY", time.Second); got != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", got)
	}

	t.Setenv("RELAY_IDLE_DELAY", "5")
	if got := Duration("RELAY_IDLE_DELAY", time.Second); got != 5*time.Second {
		t.Fatalf("bare integers are seconds, got %s", got)
	}

	t.Setenv("RELAY_IDLE_DELAY", "nonsense")
	if got := Duration("RELAY_IDLE_DELAY", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestInt(t *testing.T) {
	t.Setenv("RELAY_BATCH_SIZE", "25")
	if got := Int("RELAY_BATCH_SIZE", 50); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
	t.Setenv("RELAY_BATCH_SIZE", "abc")
	if got := Int("RELAY_BATCH_SIZE", 50); got != 50 {
		t.Fatalf("expected fallback, got %d", got)
	}
}

func TestStringList(t *testing.T) {
	t.Setenv("RELAY_TENANTS", " tenant-a, tenant-b ,,tenant-c")
	got := StringList("RELAY_TENANTS")
	if len(got) != 3 || got[0] != "tenant-a" || got[1] != "tenant-b" || got[2] != "tenant-c" {
		t.Fatalf("unexpected list: %v", got)
	}
}
