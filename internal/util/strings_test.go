package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "shorter than maxLen", input: "short", maxLen: 10, want: "short"},
		{name: "equal to maxLen", input: "exactly10c", maxLen: 10, want: "exactly10c"},
		{name: "code prefix", input: "9f86d081884c7d659a2feaa0c55ad015", maxLen: 8, want: "9f86d081"},
		{name: "empty string", input: "", maxLen: 5, want: ""},
		{name: "zero maxLen", input: "test", maxLen: 0, want: ""},
		{name: "negative maxLen", input: "test", maxLen: -1, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "", "signature", "other"); got != "signature" {
		t.Errorf("FirstNonEmpty() = %q, want %q", got, "signature")
	}
	if got := FirstNonEmpty("", ""); got != "" {
		t.Errorf("FirstNonEmpty() = %q, want empty", got)
	}
	if got := FirstNonEmpty(); got != "" {
		t.Errorf("FirstNonEmpty() with no args = %q, want empty", got)
	}
}
