package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("X_WINDOW", "150ms")
	if got := Duration("X_WINDOW", time.Second); got != 150*time.Millisecond {
		t.Fatalf("duration: want=150ms got=%s", got)
	}
	t.Setenv("X_WINDOW", "30")
	if got := Duration("X_WINDOW", time.Second); got != 30*time.Second {
		t.Fatalf("seconds: want=30s got=%s", got)
	}
	t.Setenv("X_WINDOW", "nope")
	if got := Duration("X_WINDOW", time.Second); got != time.Second {
		t.Fatalf("fallback: want=1s got=%s", got)
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("X_FLAG", "yes")
	if !Bool("X_FLAG", false) {
		t.Fatalf("bool: want=true")
	}
	t.Setenv("X_FLAG", "garbage")
	if Bool("X_FLAG", false) {
		t.Fatalf("bool fallback: want=false")
	}
	t.Setenv("X_INT", "7")
	if got := Int("X_INT", 5); got != 7 {
		t.Fatalf("int: want=7 got=%d", got)
	}
}
