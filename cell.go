package condrv

// Attribute is the 16-bit console text attribute word: the low 4 bits
// select the foreground color index, the next 4 select the background,
// and the high byte carries the COMMON_LVB rendering bits.
type Attribute uint16

const (
	fgMask Attribute = 0x000F
	bgMask Attribute = 0x00F0

	// FgIntensity and BgIntensity are the bright-color bits, set by SGR
	// 90-97/100-107 and cleared when switching back to a normal 30-37/40-47
	// variant on the same plane.
	FgIntensity Attribute = 0x0008
	BgIntensity Attribute = 0x0080

	// CommonLVBLeadingByte / CommonLVBTrailingByte mark the two halves of a
	// double-wide glyph (see DESIGN.md for the DBCS pairing decision).
	CommonLVBLeadingByte  Attribute = 0x0100
	CommonLVBTrailingByte Attribute = 0x0200

	// LVBGridHorizontal/LVBGridLVertical/LVBGridRVertical are the line-drawing
	// grid bits; condrv never sets them but preserves them on round trip.
	LVBGridHorizontal Attribute = 0x0400
	LVBGridLVertical  Attribute = 0x0800
	LVBGridRVertical  Attribute = 0x1000

	// LVBReverseVideo and LVBUnderscore are set by SGR 7 and SGR 4.
	LVBReverseVideo Attribute = 0x4000
	LVBUnderscore   Attribute = 0x8000
)

// DefaultAttribute is the attribute applied to a freshly reset buffer:
// light gray on black, no rendition bits.
const DefaultAttribute Attribute = 0x07

// Foreground returns the foreground color index (0-15), including intensity.
func (a Attribute) Foreground() int { return int(a & (fgMask | FgIntensity)) }

// Background returns the background color index (0-15), including intensity.
func (a Attribute) Background() int { return int((a & (bgMask | BgIntensity)) >> 4) }

// WithForeground returns a copy of a with the foreground color index replaced.
// The intensity bit is taken from bit 3 of idx, so an index 0-7 clears it
// and 8-15 sets it, matching the SGR 30-37 vs 90-97 distinction.
func (a Attribute) WithForeground(idx int) Attribute {
	return (a &^ (fgMask | FgIntensity)) | Attribute(idx&0x0F)
}

// WithBackground returns a copy of a with the background color index replaced.
func (a Attribute) WithBackground(idx int) Attribute {
	return (a &^ (bgMask | BgIntensity)) | (Attribute(idx&0x0F) << 4)
}

// Reversed reports whether SGR reverse video is active.
func (a Attribute) Reversed() bool { return a&LVBReverseVideo != 0 }

// ResolvedColors returns the (fg, bg) color-table indices to actually render,
// swapping foreground and background when reverse video is set.
func (a Attribute) ResolvedColors() (fg, bg int) {
	fg, bg = a.Foreground(), a.Background()
	if a.Reversed() {
		fg, bg = bg, fg
	}
	return
}

// Cell is one grid position: a UTF-16 code unit plus its rendition attribute.
// A double-wide glyph occupies two adjacent cells; the leading cell carries
// CommonLVBLeadingByte and the trailing (spacer) cell carries
// CommonLVBTrailingByte.
type Cell struct {
	Char uint16
	Attr Attribute
}

// NewCell returns a blank cell (space, given attribute).
func NewCell(attr Attribute) Cell {
	return Cell{Char: ' ', Attr: attr}
}

// IsLeadingByte reports whether this cell is the first half of a wide glyph.
func (c Cell) IsLeadingByte() bool { return c.Attr&CommonLVBLeadingByte != 0 }

// IsTrailingByte reports whether this cell is the spacer half of a wide glyph.
func (c Cell) IsTrailingByte() bool { return c.Attr&CommonLVBTrailingByte != 0 }
