// Package summary renders the pending complaints as a PNG table for the
// officials' chat and the dashboard.
package summary

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"grievance/internal/complaint"
)

// ErrNothingPending is returned when no complaint is pending.
var ErrNothingPending = errors.New("no pending complaints")

// Layout, at 2x scale so the image stays legible when chat clients shrink it.
const (
	cellPadX     = 20
	cellPadY     = 14
	minRowHeight = 64
	headerHeight = 76
	bodySize     = 24
	titleSize    = 36
	titleBand    = 100
	footerBand   = 70
	margin       = 40
	minColWidth  = 110
	maxRows      = 50
	maxCellRunes = 160
)

var (
	bgColor     = color.RGBA{R: 245, G: 247, B: 250, A: 255}
	inkColor    = color.RGBA{R: 30, G: 41, B: 59, A: 255}
	headerColor = color.RGBA{R: 37, G: 99, B: 235, A: 255}
	white       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	stripeColor = color.RGBA{R: 241, G: 245, B: 249, A: 255}
	ruleColor   = color.RGBA{R: 203, G: 213, B: 225, A: 255}
	mutedColor  = color.RGBA{R: 100, G: 116, B: 139, A: 255}
)

type column struct {
	header   string
	value    func(c *complaint.Complaint) string
	maxWidth float64 // 0 = fit content
}

var columns = []column{
	{"ID", func(c *complaint.Complaint) string { return c.ID }, 0},
	{"Type", func(c *complaint.Complaint) string { return c.Type }, 260},
	{"Department", func(c *complaint.Complaint) string { return c.Dept }, 320},
	{"Location", func(c *complaint.Complaint) string { return c.Loc }, 340},
	{"Description", func(c *complaint.Complaint) string { return c.Desc }, 460},
	{"Date", func(c *complaint.Complaint) string { return c.Date }, 0},
	{"Evidence", func(c *complaint.Complaint) string {
		if c.Img != "" {
			return "yes"
		}
		return "-"
	}, 0},
}

type faces struct {
	body, bold, title font.Face
}

// Renderer draws summary tables. The zero value uses the embedded Go fonts
// only, which have no Devanagari glyphs.
type Renderer struct {
	fallback *truetype.Font
}

// NewRenderer returns a Renderer that draws any rune the Go fonts lack with
// fallbackTTF (for example Noto Sans Devanagari). Nil keeps the Go fonts only.
func NewRenderer(fallbackTTF []byte) (*Renderer, error) {
	if len(fallbackTTF) == 0 {
		return &Renderer{}, nil
	}
	f, err := truetype.Parse(fallbackTTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fallback font: %w", err)
	}
	return &Renderer{fallback: f}, nil
}

func (r *Renderer) loadFaces() (faces, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return faces{}, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return faces{}, fmt.Errorf("failed to parse bold font: %w", err)
	}
	return faces{
		body:  r.face(regular, bodySize),
		bold:  r.face(bold, bodySize),
		title: r.face(bold, titleSize),
	}, nil
}

func (r *Renderer) face(primary *truetype.Font, size float64) font.Face {
	opts := &truetype.Options{Size: size}
	if r == nil || r.fallback == nil {
		return truetype.NewFace(primary, opts)
	}
	return &fallbackFace{
		covers:   primary,
		primary:  truetype.NewFace(primary, opts),
		fallback: truetype.NewFace(r.fallback, opts),
	}
}

// Pending filters the complaints whose status is Pending, oldest first.
func Pending(all []complaint.Complaint) []complaint.Complaint {
	var out []complaint.Complaint
	for _, c := range all {
		if c.Status == complaint.StatusPending {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Render draws with the Go fonts only.
func Render(all []complaint.Complaint, now time.Time) ([]byte, error) {
	return (&Renderer{}).Render(all, now)
}

// Render draws the pending complaints in all as a PNG. At most 50 rows are
// drawn; the footer always shows the full count.
func (r *Renderer) Render(all []complaint.Complaint, now time.Time) ([]byte, error) {
	rows := Pending(all)
	if len(rows) == 0 {
		return nil, ErrNothingPending
	}
	total := len(rows)
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	f, err := r.loadFaces()
	if err != nil {
		return nil, err
	}

	measure := gg.NewContext(1, 1)
	widths := columnWidths(measure, f, rows)
	heights := rowHeights(measure, f, rows, widths)

	var tableW, bodyH float64
	for _, w := range widths {
		tableW += w
	}
	for _, h := range heights {
		bodyH += h
	}
	canvasW := tableW + 2*margin
	canvasH := titleBand + headerHeight + bodyH + footerBand

	dc := gg.NewContext(int(canvasW), int(canvasH))
	dc.SetColor(bgColor)
	dc.Clear()

	dc.SetFontFace(f.title)
	dc.SetColor(inkColor)
	dc.DrawStringAnchored("Pending Grievances  |  "+now.Format("02 Jan 2006, 03:04 PM"), canvasW/2, titleBand/2, 0.5, 0.5)

	x0, y0 := float64(margin), float64(titleBand)
	dc.SetColor(headerColor)
	dc.DrawRoundedRectangle(x0, y0, tableW, headerHeight, 14)
	dc.Fill()

	dc.SetFontFace(f.bold)
	dc.SetColor(white)
	x := x0
	for i, col := range columns {
		dc.DrawStringAnchored(col.header, x+widths[i]/2, y0+headerHeight/2, 0.5, 0.5)
		x += widths[i]
	}

	dc.SetFontFace(f.body)
	_, lineH := dc.MeasureString("Ay")
	step := lineH + 4
	y := y0 + headerHeight
	for r := range rows {
		c := &rows[r]
		h := heights[r]
		if r%2 == 0 {
			dc.SetColor(white)
		} else {
			dc.SetColor(stripeColor)
		}
		dc.DrawRectangle(x0, y, tableW, h)
		dc.Fill()

		dc.SetColor(ruleColor)
		dc.SetLineWidth(0.5)
		dc.DrawLine(x0, y+h, x0+tableW, y+h)
		dc.Stroke()

		dc.SetColor(inkColor)
		x := x0
		for i, col := range columns {
			lines := wrap(dc, cell(col, c), widths[i]-cellPadX*2)
			top := y + (h-float64(len(lines))*step)/2 + lineH
			for n, line := range lines {
				dc.DrawString(line, x+cellPadX, top+float64(n)*step)
			}
			x += widths[i]
		}
		y += h
	}

	dc.SetColor(ruleColor)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x0, y0, tableW, headerHeight+bodyH, 14)
	dc.Stroke()

	dc.SetColor(mutedColor)
	footer := fmt.Sprintf("Total: %d pending complaints", total)
	if total > len(rows) {
		footer += fmt.Sprintf(" (oldest %d shown)", len(rows))
	}
	dc.DrawStringAnchored(footer, canvasW/2, canvasH-footerBand/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(dc *gg.Context, f faces, rows []complaint.Complaint) []float64 {
	widths := make([]float64, len(columns))
	dc.SetFontFace(f.bold)
	for i, col := range columns {
		w, _ := dc.MeasureString(col.header)
		widths[i] = max(w+cellPadX*2+4, minColWidth)
	}
	dc.SetFontFace(f.body)
	for r := range rows {
		for i, col := range columns {
			w, _ := dc.MeasureString(cell(col, &rows[r]))
			widths[i] = max(widths[i], w+cellPadX*2+4)
		}
	}
	for i, col := range columns {
		if col.maxWidth > 0 && widths[i] > col.maxWidth {
			widths[i] = col.maxWidth
		}
	}
	return widths
}

func rowHeights(dc *gg.Context, f faces, rows []complaint.Complaint, widths []float64) []float64 {
	dc.SetFontFace(f.body)
	_, lineH := dc.MeasureString("Ay")
	heights := make([]float64, len(rows))
	for r := range rows {
		lines := 1
		for i, col := range columns {
			lines = max(lines, len(wrap(dc, cell(col, &rows[r]), widths[i]-cellPadX*2)))
		}
		heights[r] = max(float64(lines)*(lineH+4)+cellPadY*2, minRowHeight)
	}
	return heights
}

func cell(col column, c *complaint.Complaint) string {
	s := strings.Join(strings.Fields(col.value(c)), " ")
	if utf8.RuneCountInString(s) > maxCellRunes {
		s = string([]rune(s)[:maxCellRunes]) + "…"
	}
	return s
}

// wrap breaks text on spaces so each line fits maxWidth.
func wrap(dc *gg.Context, text string, maxWidth float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if tw, _ := dc.MeasureString(line + " " + w); tw > maxWidth {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}
