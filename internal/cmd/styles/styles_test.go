package styles

import "testing"

func TestStatusColor(t *testing.T) {
	tests := []struct {
		status   string
		expected string
	}{
		{"completed", "#10B981"},
		{"running", "#60A5FA"},
		{"failed", "#F87171"},
		{"paused", "#F59E0B"},
		{"awaiting_checkpoint", "#F59E0B"},
		{"skipped", "#9CA3AF"},
		{"unknown", "#9CA3AF"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got := StatusColor(tt.status)
			if string(got) != tt.expected {
				t.Errorf("StatusColor(%q) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}
