package sanitizer

import "strings"

// TrimAndNormalize trims s and collapses every run of Unicode whitespace to
// a single space.
func TrimAndNormalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func NormalizeName(name string) string {
	return TrimAndNormalize(name)
}

// NormalizeRegistration uppercases plates so uniqueness is case-insensitive.
func NormalizeRegistration(reg string) string {
	return strings.ToUpper(TrimAndNormalize(reg))
}

// NormalizeEmail lowercases addresses so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone drops every whitespace character.
func NormalizePhone(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}

// NormalizeOptional applies fn in place when s is set.
func NormalizeOptional(s *string, fn func(string) string) {
	if s != nil {
		*s = fn(*s)
	}
}
