package condrv

import "fmt"

// SnapshotView is a JSON-friendly rendering of a ViewportSnapshot, grouping
// same-attribute runs per line the way an external renderer (not part of
// this module) would want to consume them.
type SnapshotView struct {
	Rows   int                `json:"rows"`
	Cols   int                `json:"cols"`
	Cursor SnapshotCursorView `json:"cursor"`
	Lines  []SnapshotLineView `json:"lines"`
}

// SnapshotCursorView is the cursor portion of a SnapshotView.
type SnapshotCursorView struct {
	Row     int  `json:"row"`
	Col     int  `json:"col"`
	Visible bool `json:"visible"`
	Size    int  `json:"size"`
}

// SnapshotLineView is one row of a SnapshotView: plain text plus the runs of
// cells sharing an attribute.
type SnapshotLineView struct {
	Text     string              `json:"text"`
	Segments []SnapshotSegment   `json:"segments"`
}

// SnapshotSegment is a run of cells sharing one Attribute.
type SnapshotSegment struct {
	Text      string `json:"text"`
	Fg        string `json:"fg"`
	Bg        string `json:"bg"`
	Bold      bool   `json:"bold,omitempty"`
	Underline bool `json:"underline,omitempty"`
	Reverse   bool `json:"reverse,omitempty"`
}

// View converts a ViewportSnapshot into a SnapshotView, resolving each
// cell's Attribute to hex colors via the snapshot's own color table.
func (s ViewportSnapshot) View() SnapshotView {
	view := SnapshotView{
		Rows: len(s.Text),
		Cols: s.WindowRect.Width(),
		Cursor: SnapshotCursorView{
			Row:     s.Cursor.Y - s.WindowRect.Top,
			Col:     s.Cursor.X - s.WindowRect.Left,
			Visible: s.CursorVisible,
			Size:    s.CursorSize,
		},
		Lines: make([]SnapshotLineView, len(s.Text)),
	}

	for row := range s.Text {
		view.Lines[row] = s.lineView(row)
	}

	return view
}

func (s ViewportSnapshot) lineView(row int) SnapshotLineView {
	text := s.Text[row]
	attrs := s.Attrs[row]

	line := SnapshotLineView{Text: string(utf16ToRunes(text))}

	var current *SnapshotSegment
	var chars []rune
	flush := func() {
		if current != nil && len(chars) > 0 {
			current.Text = string(chars)
			line.Segments = append(line.Segments, *current)
		}
	}

	for i, ch := range text {
		attr := attrs[i]
		if current == nil || !s.segmentMatches(current, attr) {
			flush()
			seg := s.newSegment(attr)
			current = &seg
			chars = nil
		}
		if ch == 0 {
			ch = ' '
		}
		chars = append(chars, rune(ch))
	}
	flush()

	return line
}

func (s ViewportSnapshot) newSegment(attr Attribute) SnapshotSegment {
	fg, bg := attr.ResolvedColors()
	return SnapshotSegment{
		Fg:        colorHex(s.ColorTable[fg&0x0F]),
		Bg:        colorHex(s.ColorTable[bg&0x0F]),
		Bold:      attr.Foreground()&int(FgIntensity) != 0,
		Underline: attr&LVBUnderscore != 0,
		Reverse:   attr.Reversed(),
	}
}

func (s ViewportSnapshot) segmentMatches(seg *SnapshotSegment, attr Attribute) bool {
	cand := s.newSegment(attr)
	return cand.Fg == seg.Fg && cand.Bg == seg.Bg && cand.Bold == seg.Bold &&
		cand.Underline == seg.Underline && cand.Reverse == seg.Reverse
}

func colorHex(c interface{ RGBA() (r, g, b, a uint32) }) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

func utf16ToRunes(units []uint16) []rune {
	out := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) {
			lo := units[i+1]
			if lo >= 0xDC00 && lo <= 0xDFFF {
				r := (rune(u)-0xD800)<<10 + (rune(lo) - 0xDC00) + 0x10000
				out = append(out, r)
				i++
				continue
			}
		}
		out = append(out, rune(u))
	}
	return out
}
