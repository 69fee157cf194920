package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIIMasksSecrets(t *testing.T) {
	out, changed := RedactPII(`remember my key sk-abcdef1234567890 and Bearer abc.def.ghi123`)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if strings.Contains(out, "sk-abcdef") || strings.Contains(out, "abc.def.ghi123") {
		t.Fatalf("secret leaked: %q", out)
	}
}

func TestForLogTruncates(t *testing.T) {
	out := ForLog(strings.Repeat("a", 500))
	if !strings.HasSuffix(out, "...") {
		t.Fatalf("ForLog() = %q, want ellipsis", out)
	}
	if got := len([]rune(out)); got != logPreviewMaxRunes+3 {
		t.Fatalf("len = %d, want %d", got, logPreviewMaxRunes+3)
	}
	if ForLog("short") != "short" {
		t.Fatalf("short input should be unchanged")
	}
}
