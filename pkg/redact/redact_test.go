package redact

import (
	"strings"
	"testing"
)

func TestToken(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"empty", "", ""},
		{"short value fully masked", "abc123", "***"},
		{"boundary value fully masked", "abcdefghijkl", "***"},
		{"long value keeps prefix", "eyJhbGciOiJSUzI1NiJ9.payload", "eyJhbG***"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Token(tt.value); got != tt.want {
				t.Errorf("Token(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	if got := Fingerprint(""); got != "" {
		t.Errorf("Fingerprint(\"\") = %q, want empty", got)
	}

	fp := Fingerprint("token-A")
	if !strings.HasPrefix(fp, "sha256:") {
		t.Errorf("Fingerprint() = %q, want sha256: prefix", fp)
	}
	if len(fp) != len("sha256:")+16 {
		t.Errorf("Fingerprint() length = %d, want %d", len(fp), len("sha256:")+16)
	}
	if strings.Contains(fp, "token-A") {
		t.Errorf("Fingerprint() = %q, leaks the input", fp)
	}

	// Stable for the same token, distinct across tokens.
	if Fingerprint("token-A") != fp {
		t.Error("Fingerprint() is not deterministic")
	}
	if Fingerprint("token-B") == fp {
		t.Error("Fingerprint() collides for different inputs")
	}
}
