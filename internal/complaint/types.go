// Package complaint defines the canonical complaint record and the pure rules
// applied to it at intake: department routing, field normalization and phone
// normalization.
package complaint

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status values that carry meaning for the backend. Callers may supply any other
// value (for example a dashboard-driven "Resolved") and it passes through as-is.
const (
	StatusPending  = "Pending"
	StatusRejected = "Rejected"
)

// AutoAssigned is the placeholder department meaning "let the classifier decide".
const AutoAssigned = "Auto-Assigned"

// Fallback coordinates used when the caller has no GPS fix (New Delhi).
const (
	DefaultLat  = "28.6139"
	DefaultLong = "77.2090"
)

// UnprovidedPhone is stored when an email did not contain a phone number.
const UnprovidedPhone = "+91 00000 00000"

// Source identifies the intake channel that created a complaint.
type Source string

const (
	SourceWeb   Source = "web"
	SourceVoice Source = "voice"
	SourceEmail Source = "email"
)

// idFormat returns the prefix and the inclusive random suffix range for a source.
//
//   - web:   SIGW-0..999
//   - voice: SIGV-0..999
//   - email: MAIL-1000..9999
func (s Source) idFormat() (prefix string, min, max int) {
	switch s {
	case SourceEmail:
		return "MAIL", 1000, 9999
	case SourceVoice:
		return "SIGV", 0, 999
	default:
		return "SIGW", 0, 999
	}
}

// Coord is a latitude or longitude kept in its textual form.
//
// Web clients send numbers, the voice assistant and the dashboard send
// strings; both decode into the same value and always encode as a string.
type Coord string

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (c *Coord) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") || raw == "true" || raw == "false" {
		return fmt.Errorf("coordinate must be a string or a number, got %s", raw)
	}
	s, err := scalarText(b)
	if err != nil {
		return err
	}
	*c = Coord(s)
	return nil
}

// Text is a free-text payload field that tolerates loosely typed clients.
//
// Strings decode as-is, numbers and booleans keep their literal form, and
// null, objects and arrays decode as empty.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	s, err := scalarText(b)
	if err != nil {
		return err
	}
	*t = Text(s)
	return nil
}

func (t Text) String() string { return string(t) }

// scalarText renders one JSON value as trimmed text.
func scalarText(b []byte) (string, error) {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "null", strings.HasPrefix(raw, "{"), strings.HasPrefix(raw, "["):
		return "", nil
	case raw == "true", raw == "false":
		return raw, nil
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Complaint is the canonical grievance record shared by every channel.
//
// The JSON names are the dashboard contract and must not change.
type Complaint struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Desc   string `json:"desc"`
	Loc    string `json:"loc"`
	Status string `json:"status"`
	Date   string `json:"date"`
	Phone  string `json:"phone,omitempty"`
	Dept   string `json:"dept"`
	Lat    Coord  `json:"lat"`
	Long   Coord  `json:"long"`
	Img    string `json:"img,omitempty"`
	Email  string `json:"email,omitempty"`
	Source Source `json:"source,omitempty"`
}

// Partial is an inbound complaint payload before normalization.
//
// Every field is optional. Subject only feeds the classifier and is not stored.
type Partial struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Desc    string `json:"desc"`
	Loc     string `json:"loc"`
	Status  string `json:"status"`
	Date    string `json:"date"`
	Phone   string `json:"phone"`
	Dept    string `json:"dept"`
	Lat     Coord  `json:"lat"`
	Long    Coord  `json:"long"`
	Img     string `json:"img"`
	Email   string `json:"email"`
}
