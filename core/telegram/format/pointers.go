// Package format holds small rendering helpers for outgoing text.
package format

// DerefString returns *s, or defaultVal when s is nil or empty.
func DerefString(s *string, defaultVal string) string {
	if s != nil && *s != "" {
		return *s
	}
	return defaultVal
}
