package threads

import (
	"strings"
	"time"
)

const (
	maxTitleRunes = 50
	ellipsis      = "..."
)

// DeriveTitle uses the first user message that is not blank, verbatim.
// Titles longer than 50 runes are cut to 47 runes plus "...".
func DeriveTitle(msgs []Message, createdAt time.Time) string {
	for _, m := range msgs {
		if m.Role != RoleUser || strings.TrimSpace(m.Text) == "" {
			continue
		}
		return truncateTitle(m.Text)
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return "Conversation " + createdAt.Local().Format("Jan 2, 2006 3:04 PM")
}

func truncateTitle(s string) string {
	r := []rune(s)
	if len(r) <= maxTitleRunes {
		return s
	}
	return string(r[:maxTitleRunes-len(ellipsis)]) + ellipsis
}

func hasUserText(msgs []Message) bool {
	for _, m := range msgs {
		if m.Role == RoleUser && strings.TrimSpace(m.Text) != "" {
			return true
		}
	}
	return false
}
