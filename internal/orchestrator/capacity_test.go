package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/workcrew/internal/event"
)

func TestCapacityTracker_WarnsOncePerThreshold(t *testing.T) {
	var warnings []event.CapacityWarningEvent
	sink := event.Sink(func(e event.Event) {
		warnings = append(warnings, e.(event.CapacityWarningEvent))
	})
	ct := newCapacityTracker("e1", 100, DefaultHaltRatio, sink)

	assert.False(t, ct.Update(50))
	assert.Empty(t, warnings)

	assert.False(t, ct.Update(80))
	require.Len(t, warnings, 1)
	assert.Equal(t, 0.80, warnings[0].Threshold)
	assert.Equal(t, 80, warnings[0].Used)
	assert.Equal(t, 100, warnings[0].Ceiling)

	assert.False(t, ct.Update(85))
	assert.Len(t, warnings, 1, "a crossed threshold fires once")

	assert.False(t, ct.Update(95))
	require.Len(t, warnings, 3)
	assert.Equal(t, 0.90, warnings[1].Threshold)
	assert.Equal(t, 0.95, warnings[2].Threshold)

	assert.True(t, ct.Update(96))
	assert.Len(t, warnings, 3)
	assert.Equal(t, 96, ct.Used())
}

func TestCapacityTracker_HaltRatio(t *testing.T) {
	tests := []struct {
		name      string
		ceiling   int
		haltRatio float64
		used      int
		want      bool
	}{
		{"at halt ratio", 100, 0.95, 95, false},
		{"above halt ratio", 100, 0.95, 96, true},
		{"custom ratio", 200, 0.5, 101, true},
		{"full ratio allows the ceiling", 100, 1, 100, false},
		{"full ratio above ceiling", 100, 1, 101, true},
		{"invalid ratio falls back", 100, 0, 96, true},
		{"no ceiling", 0, 0.95, 1_000_000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := newCapacityTracker("e1", tt.ceiling, tt.haltRatio, nil)
			assert.Equal(t, tt.want, ct.Exceeds(tt.used))
			assert.Equal(t, tt.want, ct.Update(tt.used))
		})
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"[Researcher]\nfacts\nmore", "facts"},
		{"\n\n  padded  \n", "padded"},
		{"[large] echo reply", "[large] echo reply"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, firstLine(tt.in), "input %q", tt.in)
	}
}
