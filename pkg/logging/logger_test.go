package logging

import "testing"

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		t.Run("level_"+level, func(t *testing.T) {
			logger := New(level)
			if logger == nil || logger.Logger == nil {
				t.Fatalf("New(%q) returned nil logger", level)
			}
		})
	}
}

func TestWith(t *testing.T) {
	base := Default()
	child := base.With("component", "test")
	if child == nil || child.Logger == nil {
		t.Fatal("With returned nil logger")
	}
	if child == base {
		t.Fatal("With should return a new logger")
	}
}
