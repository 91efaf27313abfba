package logutil

import (
	"strings"
	"unicode/utf8"
)

// maxLogValue bounds how much of a remote path or raw command reaches the log.
const maxLogValue = 256

// SanitizeForLog strips control characters from caller- or server-supplied
// strings so a crafted file name or command cannot forge extra log lines.
// Long values are truncated on a rune boundary.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 32 || r == 127:
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxLogValue {
		cut := maxLogValue
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + "..."
	}
	return out
}
