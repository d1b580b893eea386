package format

import "time"

// DerefString safely dereferences a *string and returns a default value if nil.
func DerefString(s *string, defaultVal string) string {
	if s != nil {
		return *s
	}
	return defaultVal
}

// Timestamp renders an optional time in UTC, or defaultVal when nil.
func Timestamp(t *time.Time, defaultVal string) string {
	if t == nil || t.IsZero() {
		return defaultVal
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
