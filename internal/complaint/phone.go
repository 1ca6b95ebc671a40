package complaint

import (
	"regexp"
	"strings"
)

// DefaultCountryCode is prefixed to numbers entered without one.
const DefaultCountryCode = "+91"

var phoneNoise = regexp.MustCompile(`[\s-]+`)

// NormalizePhone strips whitespace and hyphens and adds the default country
// code when the number does not already start with "+".
func NormalizePhone(raw string) string {
	p := phoneNoise.ReplaceAllString(raw, "")
	if p == "" || strings.HasPrefix(p, "+") {
		return p
	}
	return DefaultCountryCode + p
}

// IsTextable reports whether a stored phone is worth an SMS attempt: long
// enough to be a real number and not the "unprovided" sentinel.
func IsTextable(phone string) bool {
	p := strings.TrimSpace(phone)
	return len(p) > 9 && !strings.Contains(p, "00000")
}
