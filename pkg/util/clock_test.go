package util

import (
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestManualClock(t *testing.T) {
	c := NewManualClock(time.Unix(100, 0))
	if Slot(c) != 100 {
		t.Fatalf("Slot = %d, want 100", Slot(c))
	}
	c.Advance(90 * time.Second)
	if Slot(c) != 190 {
		t.Errorf("after Advance: Slot = %d, want 190", Slot(c))
	}
	c.Set(time.Unix(5, 0))
	if Slot(c) != 5 {
		t.Errorf("after Set: Slot = %d, want 5", Slot(c))
	}

	got := <-c.After(time.Second)
	if !got.Equal(time.Unix(6, 0)) {
		t.Errorf("After fired with %v", got)
	}
}

func TestSlotClampsNegative(t *testing.T) {
	c := NewManualClock(time.Unix(-10, 0))
	if Slot(c) != 0 {
		t.Errorf("Slot before epoch = %d, want 0", Slot(c))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"loud", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
