package offers

// Normalize maps a raw MPN onto its comparable key: ASCII letters are
// lower-cased and every byte outside [a-z0-9] is dropped. Non-ASCII runes are
// removed, never folded onto ASCII.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		}
	}
	return string(out)
}
