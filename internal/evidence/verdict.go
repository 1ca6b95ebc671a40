package evidence

import "strings"

// Verdict is the closed set of outcomes of the AI image check.
type Verdict int

const (
	// Unknown means the provider answered with neither keyword; treated as fail-open.
	Unknown Verdict = iota
	Accept
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseVerdict maps free provider text to a Verdict.
//
// "INVALID" contains "VALID", so it is tested first.
func ParseVerdict(text string) Verdict {
	up := strings.ToUpper(text)
	switch {
	case strings.Contains(up, "INVALID"):
		return Reject
	case strings.Contains(up, "VALID"):
		return Accept
	default:
		return Unknown
	}
}
