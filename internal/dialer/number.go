package dialer

import "strings"

// NormalizeE164 canonicalizes a dialable phone number to E.164. Accepts
// numbers with separators, bare NANP 10/11-digit forms, and already-prefixed
// international numbers. Returns false for anything that cannot be made
// dialable.
func NormalizeE164(raw string) (string, bool) {
	hasPlus := strings.HasPrefix(strings.TrimSpace(raw), "+")

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n := digits.String()

	switch {
	case hasPlus && len(n) >= 8 && len(n) <= 15:
		return "+" + n, true
	case !hasPlus && len(n) == 10:
		return "+1" + n, true
	case !hasPlus && len(n) == 11 && n[0] == '1':
		return "+" + n, true
	default:
		return "", false
	}
}
