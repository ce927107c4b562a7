package utils

import (
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{
			name:     "trace level",
			input:    "TRACE",
			expected: TRACE,
			wantErr:  false,
		},
		{
			name:     "debug level",
			input:    "DEBUG",
			expected: DEBUG,
			wantErr:  false,
		},
		{
			name:     "info level",
			input:    "INFO",
			expected: INFO,
			wantErr:  false,
		},
		{
			name:     "warn level",
			input:    "WARN",
			expected: WARN,
			wantErr:  false,
		},
		{
			name:     "warning alias",
			input:    "WARNING",
			expected: WARN,
			wantErr:  false,
		},
		{
			name:     "error level",
			input:    "ERROR",
			expected: ERROR,
			wantErr:  false,
		},
		{
			name:     "fatal level",
			input:    "FATAL",
			expected: FATAL,
			wantErr:  false,
		},
		{
			name:     "case insensitive",
			input:    "debug",
			expected: DEBUG,
			wantErr:  false,
		},
		{
			name:     "surrounding whitespace",
			input:    "  info  ",
			expected: INFO,
			wantErr:  false,
		},
		{
			name:     "invalid level",
			input:    "INVALID",
			expected: INFO,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseLogLevel() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{TRACE, "TRACE"},
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{FATAL, "FATAL"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestLogLevelOrdering(t *testing.T) {
	if !(TRACE < DEBUG && DEBUG < INFO && INFO < WARN && WARN < ERROR && ERROR < FATAL) {
		t.Error("log levels must be ordered by severity")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{512 * 1024 * 1024, "512.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
		wantErr  bool
	}{
		{"plain number", "1024", 1024, false},
		{"kilobytes", "1K", 1024, false},
		{"kilobytes with B", "1KB", 1024, false},
		{"megabytes", "512MB", 512 * 1024 * 1024, false},
		{"gigabytes", "2G", 2 * 1024 * 1024 * 1024, false},
		{"fractional", "1.5K", 1536, false},
		{"lowercase", "512mb", 512 * 1024 * 1024, false},
		{"whitespace", " 1K ", 1024, false},
		{"empty", "", 0, true},
		{"garbage", "abc", 0, true},
		{"negative", "-1K", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBytes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseBytes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}
