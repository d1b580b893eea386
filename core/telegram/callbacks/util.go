package callbacks

import "strings"

// Normalize strips telebot's "\f<unique>|" framing so both raw and framed
// button payloads can be routed the same way.
func Normalize(data string) string {
	if !strings.HasPrefix(data, "\f") {
		return strings.TrimSpace(data)
	}
	raw := strings.TrimPrefix(data, "\f")
	unique, payload, found := strings.Cut(raw, "|")
	if !found || payload == "" {
		return strings.TrimSpace(unique)
	}
	return strings.TrimSpace(unique + "_" + payload)
}

// Data renders a prefixed callback payload such as "buy_category_C1".
func Data(prefix, arg string) string {
	return prefix + arg
}

// SplitPrefix matches data against the prefixes in order and returns the
// first matching prefix with the remaining argument. Empty arguments do not match.
func SplitPrefix(data string, prefixes []string) (string, string, bool) {
	for _, p := range prefixes {
		if arg, ok := strings.CutPrefix(data, p); ok && arg != "" {
			return p, arg, true
		}
	}
	return "", "", false
}
