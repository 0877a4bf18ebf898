package sonar

import "testing"

func TestParseEffortMinutes(t *testing.T) {
	tests := []struct {
		effort string
		want   int
	}{
		{"", 0},
		{"15min", 15},
		{"1h", 60},
		{"1h30min", 90},
		{"2d", 960},
		{"1d2h5min", 605},
	}
	for _, tt := range tests {
		if got := parseEffortMinutes(tt.effort); got != tt.want {
			t.Errorf("parseEffortMinutes(%q) = %d, want %d", tt.effort, got, tt.want)
		}
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		severity string
		want     string
	}{
		{"BLOCKER", "Highest"},
		{"critical", "High"},
		{"MAJOR", "Medium"},
		{"MINOR", "Low"},
		{"INFO", "Lowest"},
		{"weird", ""},
	}
	for _, tt := range tests {
		if got := normalizeSeverity(tt.severity); got != tt.want {
			t.Errorf("normalizeSeverity(%q) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}
