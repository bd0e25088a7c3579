package condrv

// Cursor tracks the current screen-buffer position, rendering size, and
// visibility (0-based coordinates).
type Cursor struct {
	X, Y    int
	Size    int // percentage, 1-100
	Visible bool
}

// NewCursor creates a cursor at (0, 0), default size, visible.
func NewCursor() *Cursor {
	return &Cursor{X: 0, Y: 0, Size: 25, Visible: true}
}

// Charset selects the character encoding variant designated into a G-slot
// by ESC ( / ESC ) / etc. (consumed with no cell effect beyond
// translating line-drawing glyphs).
type Charset int

const (
	CharsetASCII Charset = iota
	CharsetLineDrawing
)

// CharsetIndex selects one of four character set slots (G0-G3).
type CharsetIndex int

const (
	CharsetIndexG0 CharsetIndex = iota
	CharsetIndexG1
	CharsetIndexG2
	CharsetIndexG3
)

// SavedCursor stores cursor position, attributes, origin mode, charset
// state, and the delayed-wrap latch for DECSC/DECRC and alternate
// buffer entry/exit.
type SavedCursor struct {
	X, Y          int
	Attr          Attribute
	OriginMode    bool
	ActiveCharset CharsetIndex
	Charsets      [4]Charset
	DelayedWrap   bool
}
