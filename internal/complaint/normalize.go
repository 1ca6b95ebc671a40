package complaint

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// DateLayout is the registration date format (UTC, date only).
const DateLayout = "2006-01-02"

// Normalizer fills the gaps of an inbound payload so that every stored
// complaint has an id, a status, a date, coordinates and a department.
//
// Now and IntN are swappable so tests can pin the clock and the id suffix.
type Normalizer struct {
	Now  func() time.Time
	IntN func(n int) int
}

// NewNormalizer returns a Normalizer backed by the wall clock and math/rand.
func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now, IntN: rand.IntN}
}

// Normalize converts a partial payload into a complete Complaint. It never fails
// and never validates the phone number.
func (n *Normalizer) Normalize(p Partial, src Source) Complaint {
	c := Complaint{
		ID:     strings.TrimSpace(p.ID),
		Type:   p.Type,
		Desc:   p.Desc,
		Loc:    p.Loc,
		Status: strings.TrimSpace(p.Status),
		Date:   strings.TrimSpace(p.Date),
		Phone:  p.Phone,
		Dept:   strings.TrimSpace(p.Dept),
		Lat:    p.Lat,
		Long:   p.Long,
		Img:    p.Img,
		Email:  p.Email,
		Source: src,
	}

	if c.ID == "" {
		c.ID = n.NewID(src)
	}
	if c.Status == "" {
		c.Status = StatusPending
	}
	if c.Date == "" {
		c.Date = n.Now().UTC().Format(DateLayout)
	}
	if c.Lat == "" {
		c.Lat = DefaultLat
	}
	if c.Long == "" {
		c.Long = DefaultLong
	}
	if IsPlaceholderDept(c.Dept) {
		c.Dept = Classify(p.Type, p.Subject, p.Desc)
	}
	return c
}

// NewID synthesizes a "{prefix}-{n}" identifier for the source.
func (n *Normalizer) NewID(src Source) string {
	prefix, lo, hi := src.idFormat()
	return fmt.Sprintf("%s-%d", prefix, lo+n.IntN(hi-lo+1))
}
