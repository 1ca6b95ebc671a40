package complaint

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNormalizer(suffix int) *Normalizer {
	return &Normalizer{
		Now:  func() time.Time { return time.Date(2024, 3, 10, 2, 0, 0, 0, time.FixedZone("IST", 5*3600+1800)) },
		IntN: func(n int) int { return suffix % n },
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name               string
		typ, subject, desc string
		want               string
	}{
		{"power beats roads", "Road damage", "", "pothole next to a fallen power line", DeptPower},
		{"municipal", "", "Garbage", "overflowing dump near market", DeptMunicipal},
		{"municipal beats water", "", "", "sewage mixing with water supply", DeptMunicipal},
		{"roads", "Pothole", "", "deep hole on main road", DeptRoads},
		{"water", "", "", "Tap is dry since Monday", DeptWater},
		{"street light", "", "", "Lamp post broken", DeptStreetLight},
		{"case folded", "TRANSFORMER", "", "", DeptPower},
		{"default", "Other", "Hello", "noise from neighbours", DeptGeneralAdmin},
		{"empty", "", "", "", DeptGeneralAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.typ, tt.subject, tt.desc))
		})
	}
}

func TestNormalizeFillsMissingFields(t *testing.T) {
	n := fixedNormalizer(42)

	c := n.Normalize(Partial{Type: "Pothole", Desc: "big one"}, SourceWeb)

	assert.Equal(t, "SIGW-42", c.ID)
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, "2024-03-09", c.Date, "date is taken in UTC")
	assert.Equal(t, Coord(DefaultLat), c.Lat)
	assert.Equal(t, Coord(DefaultLong), c.Long)
	assert.Equal(t, DeptRoads, c.Dept)
	assert.Equal(t, SourceWeb, c.Source)
}

func TestNormalizeCompletenessAcrossInputs(t *testing.T) {
	n := NewNormalizer()
	inputs := []Partial{
		{},
		{Dept: AutoAssigned},
		{ID: "X-1", Status: "Resolved", Date: "2023-01-01", Lat: "1", Long: "2"},
		{Desc: "street light out", Dept: "  "},
	}
	for _, src := range []Source{SourceWeb, SourceVoice, SourceEmail} {
		for _, p := range inputs {
			c := n.Normalize(p, src)
			assert.NotEmpty(t, c.ID)
			assert.NotEmpty(t, c.Status)
			assert.NotEmpty(t, c.Date)
			assert.NotEmpty(t, c.Lat)
			assert.NotEmpty(t, c.Long)
			assert.NotEmpty(t, c.Dept)
			assert.False(t, IsPlaceholderDept(c.Dept))
		}
	}
}

func TestNormalizePreservesSuppliedValues(t *testing.T) {
	n := fixedNormalizer(1)
	p := Partial{
		ID:     "SIGV-900",
		Type:   "electricity",
		Status: "In Progress",
		Date:   "2024-01-02",
		Dept:   "Horticulture",
		Lat:    "12.9",
		Long:   "77.5",
		Phone:  "98 1234-5678",
	}

	c := n.Normalize(p, SourceVoice)
	assert.Equal(t, "SIGV-900", c.ID)
	assert.Equal(t, "In Progress", c.Status)
	assert.Equal(t, "2024-01-02", c.Date)
	assert.Equal(t, "Horticulture", c.Dept, "explicit department is never reclassified")
	assert.Equal(t, Coord("12.9"), c.Lat)
	assert.Equal(t, "98 1234-5678", c.Phone, "phone is stored as entered")
}

func TestNewIDRanges(t *testing.T) {
	assert.Equal(t, "MAIL-1000", fixedNormalizer(0).NewID(SourceEmail))
	assert.Equal(t, "MAIL-9999", (&Normalizer{IntN: func(n int) int { return n - 1 }}).NewID(SourceEmail))
	assert.Equal(t, "SIGV-999", (&Normalizer{IntN: func(n int) int { return n - 1 }}).NewID(SourceVoice))
	assert.Equal(t, "SIGW-0", fixedNormalizer(0).NewID(SourceWeb))
}

// Identifier synthesis alone does not guarantee uniqueness; the service layer
// retries on collision.
func TestNewIDCanCollide(t *testing.T) {
	n := fixedNormalizer(7)
	assert.Equal(t, n.NewID(SourceWeb), n.NewID(SourceWeb))
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"98765 43210", "+919876543210"},
		{"98765-43210", "+919876543210"},
		{"+1 555 000 1111", "+15550001111"},
		{" 0091-98765 ", "+91009198765"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), tt.in)
	}
}

func TestIsTextable(t *testing.T) {
	assert.True(t, IsTextable("+91 98765 43210"))
	assert.False(t, IsTextable(UnprovidedPhone))
	assert.False(t, IsTextable("12345"))
	assert.False(t, IsTextable(""))
}

func TestCoordDecodesNumbersAndStrings(t *testing.T) {
	var p Partial
	require.NoError(t, json.Unmarshal([]byte(`{"lat": 28.61, "long": "77.20"}`), &p))
	assert.Equal(t, Coord("28.61"), p.Lat)
	assert.Equal(t, Coord("77.20"), p.Long)

	require.NoError(t, json.Unmarshal([]byte(`{"lat": null}`), &p))
	assert.Equal(t, Coord(""), p.Lat)

	out, err := json.Marshal(Complaint{Lat: "28.61"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"lat":"28.61"`)
}

func TestTextAcceptsLooseScalars(t *testing.T) {
	var v struct {
		Phone Text `json:"phone"`
		ID    Text `json:"id"`
		Flag  Text `json:"flag"`
		Note  Text `json:"note"`
		Extra Text `json:"extra"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"phone": 9876543210, "id": " SIGV-9 ", "flag": true, "note": null, "extra": {"a": 1}}`), &v))
	assert.Equal(t, Text("9876543210"), v.Phone)
	assert.Equal(t, Text("SIGV-9"), v.ID)
	assert.Equal(t, Text("true"), v.Flag)
	assert.Empty(t, v.Note)
	assert.Empty(t, v.Extra)
}

func TestCoordRejectsObjects(t *testing.T) {
	var p Partial
	assert.Error(t, json.Unmarshal([]byte(`{"lat": {"x": 1}}`), &p))
}
