package chat

import "strings"

// NormalizeID loosely normalizes a user or chat identifier so that the
// same account written in different platform notations compares equal.
//
//	"+1 (555) 010-9999"             -> "15550109999"
//	"15550109999:12@s.whatsapp.net" -> "15550109999"
//	"  @Alice "                     -> "alice"
func NormalizeID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	s = strings.TrimPrefix(s, "@")
	if at := strings.IndexByte(s, '@'); at > 0 {
		s = s[:at]
	}
	if colon := strings.IndexByte(s, ':'); colon > 0 {
		s = s[:colon]
	}
	s = strings.TrimPrefix(s, "+")

	if looksLikePhone(s) {
		var b strings.Builder
		// Negative ids are distinct chats on some platforms.
		if strings.HasPrefix(s, "-") {
			b.WriteByte('-')
		}
		for _, r := range s {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	return s
}

// SameID reports whether a and b normalize to the same non-empty identity.
func SameID(a, b string) bool {
	na := NormalizeID(a)
	return na != "" && na == NormalizeID(b)
}

// ContainsID reports whether id matches any entry of list.
func ContainsID(list []string, id string) bool {
	n := NormalizeID(id)
	if n == "" {
		return false
	}
	for _, v := range list {
		if NormalizeID(v) == n {
			return true
		}
	}
	return false
}

func looksLikePhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits > 0
}
