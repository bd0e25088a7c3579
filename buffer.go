package condrv

import (
	"image/color"
	"sync"
)

// Coord is a 0-based (x, y) screen-buffer coordinate.
type Coord struct{ X, Y int }

// SmallRect is an inclusive rectangle, (Left, Top)-(Right, Bottom), used for
// the viewport (window_rect) and for scroll/fill bounds.
type SmallRect struct{ Left, Top, Right, Bottom int }

// Width returns the rectangle's width in cells (inclusive bounds).
func (r SmallRect) Width() int { return r.Right - r.Left + 1 }

// Height returns the rectangle's height in cells (inclusive bounds).
func (r SmallRect) Height() int { return r.Bottom - r.Top + 1 }

// ScreenBuffer is the 2-D cell grid with cursor, viewport, scroll region,
// and alternate-buffer pairing the console protocol's output APIs operate on.
type ScreenBuffer struct {
	mu sync.RWMutex

	width, height int
	cells         [][]Cell // cells[y][x]

	windowRect SmallRect
	maxWindow  Coord

	cursor *Cursor

	defaultAttr Attribute
	colorTable  [16]color.RGBA

	// scroll region: [scrollTop, scrollBottom] inclusive, 0-based. Defaults
	// to the whole buffer.
	scrollTop, scrollBottom int

	autowrap          bool
	originMode        bool
	insertMode        bool
	delayedWrap       bool
	newlineAutoReturn bool

	savedCursor *SavedCursor

	isAlt    bool                // true while the alternate screen is active
	altSaved *alternateSnapshot // main-buffer state stashed while isAlt is true

	revision uint64
}

// NewScreenBuffer creates a buffer of the given size with default attributes,
// the classic 16-color table, cursor at home, autowrap and newline-auto-
// return enabled (the console's power-on defaults).
func NewScreenBuffer(width, height int) *ScreenBuffer {
	b := &ScreenBuffer{
		width:             width,
		height:            height,
		defaultAttr:       DefaultAttribute,
		colorTable:        DefaultColorTable,
		cursor:            NewCursor(),
		autowrap:          true,
		newlineAutoReturn: true,
	}
	b.cells = makeGrid(width, height, b.defaultAttr)
	b.windowRect = SmallRect{Left: 0, Top: 0, Right: width - 1, Bottom: height - 1}
	b.maxWindow = Coord{X: width, Y: height}
	b.scrollTop, b.scrollBottom = 0, height-1
	return b
}

func makeGrid(width, height int, attr Attribute) [][]Cell {
	cells := make([][]Cell, height)
	for y := range cells {
		row := make([]Cell, width)
		for x := range row {
			row[x] = NewCell(attr)
		}
		cells[y] = row
	}
	return cells
}

func (b *ScreenBuffer) bump() { b.revision++ }

// Revision returns the monotonically increasing mutation counter.
func (b *ScreenBuffer) Revision() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.revision
}

// Size returns (width, height).
func (b *ScreenBuffer) Size() (int, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.width, b.height
}

// WindowRect returns the current viewport rectangle.
func (b *ScreenBuffer) WindowRect() SmallRect {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.windowRect
}

// CursorPosition returns the current cursor coordinate.
func (b *ScreenBuffer) CursorPosition() Coord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Coord{X: b.cursor.X, Y: b.cursor.Y}
}

// SetCursorPosition moves the cursor, clamping to buffer bounds, and clears
// the delayed-wrap latch (any cursor-changing operation clears it).
func (b *ScreenBuffer) SetCursorPosition(x, y int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setCursorLocked(x, y)
}

func (b *ScreenBuffer) setCursorLocked(x, y int) {
	b.cursor.X = clampInt(x, 0, b.width-1)
	b.cursor.Y = clampInt(y, 0, b.height-1)
	b.delayedWrap = false
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CursorVisible / SetCursorVisible expose DECTCEM state.
func (b *ScreenBuffer) CursorVisible() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursor.Visible
}

func (b *ScreenBuffer) SetCursorVisible(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor.Visible = v
}

// CursorSize / SetCursorSize expose the cursor render-percentage.
func (b *ScreenBuffer) CursorSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursor.Size
}

func (b *ScreenBuffer) SetCursorSize(pct int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor.Size = clampInt(pct, 1, 100)
}

// DefaultAttribute / SetDefaultAttribute expose the buffer's current fill
// attribute (the SGR "reset" target and the fill used by ED/EL/scroll-in).
func (b *ScreenBuffer) DefaultAttribute() Attribute {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.defaultAttr
}

func (b *ScreenBuffer) SetDefaultAttribute(a Attribute) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaultAttr = a
}

// ColorTable returns a copy of the 16-entry COLORREF palette.
func (b *ScreenBuffer) ColorTable() [16]color.RGBA {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.colorTable
}

func (b *ScreenBuffer) SetColorTableEntry(i int, c color.RGBA) {
	if i < 0 || i > 15 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.colorTable[i] = c
}

// ScrollRegion returns the current DECSTBM margins (0-based, inclusive).
func (b *ScreenBuffer) ScrollRegion() (top, bottom int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scrollTop, b.scrollBottom
}

// SetScrollRegion sets DECSTBM margins, clamped to the buffer.
func (b *ScreenBuffer) SetScrollRegion(top, bottom int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	top = clampInt(top, 0, b.height-1)
	bottom = clampInt(bottom, 0, b.height-1)
	if top >= bottom {
		top, bottom = 0, b.height-1
	}
	b.scrollTop, b.scrollBottom = top, bottom
}

// ResetScrollRegion restores the scroll region to the whole buffer.
func (b *ScreenBuffer) ResetScrollRegion() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrollTop, b.scrollBottom = 0, b.height-1
}

// Modes accessors (DECAWM/DECOM/IRM + the newline-auto-return inverse of
// DISABLE_NEWLINE_AUTO_RETURN, and the delayed-wrap latch).
func (b *ScreenBuffer) Autowrap() bool { b.mu.RLock(); defer b.mu.RUnlock(); return b.autowrap }
func (b *ScreenBuffer) OriginMode() bool { b.mu.RLock(); defer b.mu.RUnlock(); return b.originMode }
func (b *ScreenBuffer) InsertMode() bool { b.mu.RLock(); defer b.mu.RUnlock(); return b.insertMode }
func (b *ScreenBuffer) DelayedWrap() bool { b.mu.RLock(); defer b.mu.RUnlock(); return b.delayedWrap }
func (b *ScreenBuffer) NewlineAutoReturn() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.newlineAutoReturn
}

func (b *ScreenBuffer) SetAutowrap(v bool) { b.mu.Lock(); b.autowrap = v; b.mu.Unlock() }
func (b *ScreenBuffer) SetOriginMode(v bool) { b.mu.Lock(); b.originMode = v; b.mu.Unlock() }
func (b *ScreenBuffer) SetInsertMode(v bool) { b.mu.Lock(); b.insertMode = v; b.mu.Unlock() }
func (b *ScreenBuffer) SetNewlineAutoReturn(v bool) { b.mu.Lock(); b.newlineAutoReturn = v; b.mu.Unlock() }

// --- primitives ---

// Cell returns the cell at (x, y), or a zero Cell if out of bounds.
func (b *ScreenBuffer) Cell(x, y int) Cell {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		return Cell{}
	}
	return b.cells[y][x]
}

// WriteCell writes a single cell, bounds-checked; no-op outside the buffer.
func (b *ScreenBuffer) WriteCell(c Coord, ch uint16, attr Attribute) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeCellLocked(c, ch, attr)
}

func (b *ScreenBuffer) writeCellLocked(c Coord, ch uint16, attr Attribute) {
	if c.X < 0 || c.X >= b.width || c.Y < 0 || c.Y >= b.height {
		return
	}
	b.cells[c.Y][c.X] = Cell{Char: ch, Attr: attr}
	b.bump()
}

// ReadSpan reads up to len characters starting at coord, clipped to the end
// of the row; the length of the returned slice is the actual count read.
func (b *ScreenBuffer) ReadSpan(coord Coord, length int) []uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.readSpanLocked(coord, length)
}

func (b *ScreenBuffer) readSpanLocked(coord Coord, length int) []uint16 {
	if coord.Y < 0 || coord.Y >= b.height || length <= 0 {
		return nil
	}
	row := b.cells[coord.Y]
	out := make([]uint16, 0, length)
	for x := coord.X; x < coord.X+length && x < b.width; x++ {
		if x < 0 {
			continue
		}
		out = append(out, row[x].Char)
	}
	return out
}

// ReadAttrs reads up to len attributes starting at coord, clipped.
func (b *ScreenBuffer) ReadAttrs(coord Coord, length int) []Attribute {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if coord.Y < 0 || coord.Y >= b.height || length <= 0 {
		return nil
	}
	row := b.cells[coord.Y]
	out := make([]Attribute, 0, length)
	for x := coord.X; x < coord.X+length && x < b.width; x++ {
		if x < 0 {
			continue
		}
		out = append(out, row[x].Attr)
	}
	return out
}

// FillChar fills length cells starting at coord with ch, leaving attributes
// untouched; returns the count actually written.
func (b *ScreenBuffer) FillChar(coord Coord, length int, ch uint16) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if coord.Y < 0 || coord.Y >= b.height {
		return 0
	}
	row := b.cells[coord.Y]
	n := 0
	for x := coord.X; x < coord.X+length && x < b.width; x++ {
		if x < 0 {
			continue
		}
		row[x].Char = ch
		n++
	}
	if n > 0 {
		b.bump()
	}
	return n
}

// FillAttr fills length cells starting at coord with attr, leaving
// characters untouched; returns the count actually written.
func (b *ScreenBuffer) FillAttr(coord Coord, length int, attr Attribute) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if coord.Y < 0 || coord.Y >= b.height {
		return 0
	}
	row := b.cells[coord.Y]
	n := 0
	for x := coord.X; x < coord.X+length && x < b.width; x++ {
		if x < 0 {
			continue
		}
		row[x].Attr = attr
		n++
	}
	if n > 0 {
		b.bump()
	}
	return n
}

// ClearRect resets every cell in rect (inclusive) to (space, attr).
func (b *ScreenBuffer) ClearRect(rect SmallRect, attr Attribute) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearRectLocked(rect, attr)
}

func (b *ScreenBuffer) clearRectLocked(rect SmallRect, attr Attribute) {
	top := clampInt(rect.Top, 0, b.height-1)
	bottom := clampInt(rect.Bottom, 0, b.height-1)
	left := clampInt(rect.Left, 0, b.width-1)
	right := clampInt(rect.Right, 0, b.width-1)
	for y := top; y <= bottom; y++ {
		for x := left; x <= right; x++ {
			b.cells[y][x] = NewCell(attr)
		}
	}
	b.bump()
}

// scrollUpLocked moves lines [top+n, bottom] to [top, bottom-n], filling the
// newly exposed lines at the bottom with blanks. Margin-aware: callers pass
// the active scroll region intersected with the full buffer.
func (b *ScreenBuffer) scrollUpLocked(top, bottom, n int) {
	if n <= 0 || top > bottom {
		return
	}
	top = clampInt(top, 0, b.height-1)
	bottom = clampInt(bottom, 0, b.height-1)
	if n > bottom-top+1 {
		n = bottom - top + 1
	}
	for y := top; y <= bottom-n; y++ {
		b.cells[y] = b.cells[y+n]
	}
	for y := bottom - n + 1; y <= bottom; y++ {
		row := make([]Cell, b.width)
		for x := range row {
			row[x] = NewCell(b.defaultAttr)
		}
		b.cells[y] = row
	}
	b.bump()
}

// scrollDownLocked moves lines [top, bottom-n] to [top+n, bottom], filling
// the newly exposed lines at the top with blanks.
func (b *ScreenBuffer) scrollDownLocked(top, bottom, n int) {
	if n <= 0 || top > bottom {
		return
	}
	top = clampInt(top, 0, b.height-1)
	bottom = clampInt(bottom, 0, b.height-1)
	if n > bottom-top+1 {
		n = bottom - top + 1
	}
	for y := bottom; y >= top+n; y-- {
		b.cells[y] = b.cells[y-n]
	}
	for y := top; y < top+n; y++ {
		row := make([]Cell, b.width)
		for x := range row {
			row[x] = NewCell(b.defaultAttr)
		}
		b.cells[y] = row
	}
	b.bump()
}

// ScrollUp/ScrollDown scroll within the current DECSTBM scroll region.
func (b *ScreenBuffer) ScrollUp(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrollUpLocked(b.scrollTop, b.scrollBottom, n)
}

func (b *ScreenBuffer) ScrollDown(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrollDownLocked(b.scrollTop, b.scrollBottom, n)
}

// InsertLines/DeleteLines insert or delete n lines at y, margin-aware (IL/DL).
func (b *ScreenBuffer) InsertLines(y, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if y < b.scrollTop || y > b.scrollBottom {
		return
	}
	b.scrollDownLocked(y, b.scrollBottom, n)
}

func (b *ScreenBuffer) DeleteLines(y, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if y < b.scrollTop || y > b.scrollBottom {
		return
	}
	b.scrollUpLocked(y, b.scrollBottom, n)
}

// InsertChars/DeleteChars/EraseChars implement ICH/DCH/ECH on row y.
func (b *ScreenBuffer) InsertChars(x, y, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if y < 0 || y >= b.height {
		return
	}
	row := b.cells[y]
	for c := b.width - 1; c >= x+n; c-- {
		row[c] = row[c-n]
	}
	for c := x; c < x+n && c < b.width; c++ {
		if c >= 0 {
			row[c] = NewCell(b.defaultAttr)
		}
	}
	b.bump()
}

func (b *ScreenBuffer) DeleteChars(x, y, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if y < 0 || y >= b.height {
		return
	}
	row := b.cells[y]
	for c := x; c < b.width-n; c++ {
		row[c] = row[c+n]
	}
	for c := b.width - n; c < b.width; c++ {
		if c >= 0 {
			row[c] = NewCell(b.defaultAttr)
		}
	}
	b.bump()
}

func (b *ScreenBuffer) EraseChars(x, y, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if y < 0 || y >= b.height {
		return
	}
	row := b.cells[y]
	for c := x; c < x+n && c < b.width; c++ {
		if c >= 0 {
			row[c] = NewCell(b.defaultAttr)
		}
	}
	b.bump()
}

// --- save/restore, DECALN, alternate buffer ---

// SaveCursor captures position, attributes, origin mode, charset state, and
// the delayed-wrap latch (DECSC).
func (b *ScreenBuffer) SaveCursor(attr Attribute, charsets [4]Charset, active CharsetIndex) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.savedCursor = &SavedCursor{
		X: b.cursor.X, Y: b.cursor.Y,
		Attr:          attr,
		OriginMode:    b.originMode,
		ActiveCharset: active,
		Charsets:      charsets,
		DelayedWrap:   b.delayedWrap,
	}
}

// RestoreCursor restores a previously saved cursor state (DECRC). Returns
// ok=false if nothing was saved, in which case the cursor resets to home
// (matching the DECSTR/RIS "saved cursor reset to home" behavior).
func (b *ScreenBuffer) RestoreCursor() (s SavedCursor, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.savedCursor == nil {
		b.setCursorLocked(0, 0)
		return SavedCursor{}, false
	}
	s = *b.savedCursor
	b.cursor.X, b.cursor.Y = s.X, s.Y
	b.originMode = s.OriginMode
	b.delayedWrap = s.DelayedWrap
	return s, true
}

// ResetSavedCursor clears the saved-cursor slot to home (used by DECSTR).
func (b *ScreenBuffer) ResetSavedCursor() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.savedCursor = nil
}

// FillAlignmentPattern implements DECALN: fill with 'E' at default
// attributes, reset origin mode and margins, clear reverse/underline via
// the default attribute, cursor home.
func (b *ScreenBuffer) FillAlignmentPattern() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			b.cells[y][x] = Cell{Char: 'E', Attr: b.defaultAttr}
		}
	}
	b.originMode = false
	b.scrollTop, b.scrollBottom = 0, b.height-1
	b.setCursorLocked(0, 0)
	b.bump()
}

// AdvanceAfterPrint moves the cursor right by width cells after printing a
// character. Printing into the last column with autowrap enabled
// sets the delayed-wrap latch instead of moving past the edge; with
// autowrap disabled the cursor simply pins at the last column.
func (b *ScreenBuffer) AdvanceAfterPrint(width int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	x := b.cursor.X + width
	if x >= b.width {
		b.cursor.X = b.width - 1
		if b.autowrap {
			b.delayedWrap = true
		}
		return
	}
	b.cursor.X = x
}

// ConsumeDelayedWrap clears the delayed-wrap latch and, if it was set,
// performs the pending wrap: cursor to column 0, one row down (scrolling
// the margin if at its bottom edge). Callers invoke this before writing the
// next printable character. Returns true if a wrap occurred.
func (b *ScreenBuffer) ConsumeDelayedWrap() bool {
	b.mu.Lock()
	if !b.delayedWrap {
		b.mu.Unlock()
		return false
	}
	b.delayedWrap = false
	b.cursor.X = 0
	atBottom := b.cursor.Y >= b.scrollBottom
	if atBottom {
		b.mu.Unlock()
		b.ScrollUp(1)
		return true
	}
	b.cursor.Y++
	b.mu.Unlock()
	return true
}

// LineFeed moves the cursor down one row (IND), scrolling the margin if
// already at its bottom edge, then resets the column to 0 only when
// newline_auto_return is enabled.
func (b *ScreenBuffer) LineFeed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceRowLocked()
	if b.newlineAutoReturn {
		b.cursor.X = 0
	}
	b.delayedWrap = false
}

// NextLine moves the cursor down one row and unconditionally to column 0
// (NEL), regardless of newline_auto_return.
func (b *ScreenBuffer) NextLine() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceRowLocked()
	b.cursor.X = 0
	b.delayedWrap = false
}

func (b *ScreenBuffer) advanceRowLocked() {
	if b.cursor.Y >= b.scrollBottom {
		b.scrollUpLocked(b.scrollTop, b.scrollBottom, 1)
		return
	}
	b.cursor.Y++
}

// ReverseLineFeed moves the cursor up one row (RI), scrolling the margin
// down if already at its top edge.
func (b *ScreenBuffer) ReverseLineFeed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cursor.Y <= b.scrollTop {
		b.scrollDownLocked(b.scrollTop, b.scrollBottom, 1)
		return
	}
	b.cursor.Y--
	b.delayedWrap = false
}

// alternateSnapshot captures everything EnterAlternate/ExitAlternate swap.
type alternateSnapshot struct {
	cells                   [][]Cell
	cursor                  Cursor
	defaultAttr             Attribute
	scrollTop, scrollBottom int
	savedCursor             *SavedCursor
}

// EnterAlternate switches to a freshly cleared buffer of the same size,
// snapshotting the main buffer's cells, cursor, attrs and saved-cursor for
// later restoration (CSI ?1049h). A no-op if already alternate.
func (b *ScreenBuffer) EnterAlternate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isAlt {
		return
	}
	snap := &alternateSnapshot{
		cells:       b.cells,
		cursor:      *b.cursor,
		defaultAttr: b.defaultAttr,
		scrollTop:   b.scrollTop,
		scrollBottom: b.scrollBottom,
		savedCursor: b.savedCursor,
	}
	b.altSaved = snap
	b.cells = makeGrid(b.width, b.height, b.defaultAttr)
	b.scrollTop, b.scrollBottom = 0, b.height-1
	b.setCursorLocked(0, 0)
	b.isAlt = true
	b.bump()
}

// ExitAlternate restores the main buffer verbatim (CSI ?1049l). A no-op if
// not currently alternate.
func (b *ScreenBuffer) ExitAlternate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isAlt || b.altSaved == nil {
		return
	}
	snap := b.altSaved
	b.cells = snap.cells
	*b.cursor = snap.cursor
	b.defaultAttr = snap.defaultAttr
	b.scrollTop, b.scrollBottom = snap.scrollTop, snap.scrollBottom
	b.savedCursor = snap.savedCursor
	b.altSaved = nil
	b.isAlt = false
	b.bump()
}

// IsAlternate reports whether the alternate screen is currently active.
func (b *ScreenBuffer) IsAlternate() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isAlt
}

// Resize changes the buffer's dimensions (SetConsoleScreenBufferSize),
// preserving existing cell contents in the overlapping region and filling
// any newly exposed cells with the default attribute. The viewport and
// scroll region are clamped to the new size.
func (b *ScreenBuffer) Resize(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if width <= 0 || height <= 0 {
		return
	}
	grid := makeGrid(width, height, b.defaultAttr)
	for y := 0; y < height && y < b.height; y++ {
		for x := 0; x < width && x < b.width; x++ {
			grid[y][x] = b.cells[y][x]
		}
	}
	b.cells = grid
	b.width, b.height = width, height
	b.windowRect = SmallRect{
		Left: 0, Top: 0,
		Right:  clampInt(b.windowRect.Right, 0, width-1),
		Bottom: clampInt(b.windowRect.Bottom, 0, height-1),
	}
	b.maxWindow = Coord{X: width, Y: height}
	b.scrollTop = clampInt(b.scrollTop, 0, height-1)
	b.scrollBottom = clampInt(b.scrollBottom, 0, height-1)
	if b.scrollTop >= b.scrollBottom {
		b.scrollTop, b.scrollBottom = 0, height-1
	}
	b.setCursorLocked(b.cursor.X, b.cursor.Y)
	b.bump()
}

// ScrollRect is the generic scroll primitive: copy rect to start
// at dest, fill cells left exposed within rect (and not covered by the
// copy's destination) with fill, further constraining writes to clip when
// non-nil (ScrollConsoleScreenBuffer's scroll-with-clip form).
func (b *ScreenBuffer) ScrollRect(rect SmallRect, dest Coord, clip *SmallRect, fill Cell) {
	b.mu.Lock()
	defer b.mu.Unlock()

	srcLeft := clampInt(rect.Left, 0, b.width-1)
	srcTop := clampInt(rect.Top, 0, b.height-1)
	srcRight := clampInt(rect.Right, 0, b.width-1)
	srcBottom := clampInt(rect.Bottom, 0, b.height-1)
	if srcLeft > srcRight || srcTop > srcBottom {
		return
	}

	within := func(x, y int) bool {
		if x < 0 || x >= b.width || y < 0 || y >= b.height {
			return false
		}
		if clip == nil {
			return true
		}
		return x >= clip.Left && x <= clip.Right && y >= clip.Top && y <= clip.Bottom
	}

	// Snapshot the source region before writing, since source and
	// destination may overlap.
	w, h := srcRight-srcLeft+1, srcBottom-srcTop+1
	saved := make([][]Cell, h)
	for y := 0; y < h; y++ {
		saved[y] = append([]Cell(nil), b.cells[srcTop+y][srcLeft:srcRight+1]...)
	}

	// Cells in rect not covered by the copy's destination get filled, so
	// start by filling the whole source rect (respecting clip), then
	// overwrite with the copied region.
	for y := srcTop; y <= srcBottom; y++ {
		for x := srcLeft; x <= srcRight; x++ {
			if within(x, y) {
				b.cells[y][x] = fill
			}
		}
	}

	for y := 0; y < h; y++ {
		dy := dest.Y + y
		for x := 0; x < w; x++ {
			dx := dest.X + x
			if within(dx, dy) {
				b.cells[dy][dx] = saved[y][x]
			}
		}
	}
	b.bump()
}

// --- viewport snapshot ---

// ViewportSnapshot is a read-only, revision-stamped copy of the visible
// window for external rendering.
type ViewportSnapshot struct {
	Revision      uint64
	WindowRect    SmallRect
	BufferSize    Coord
	Cursor        Coord
	CursorVisible bool
	CursorSize    int
	DefaultAttr   Attribute
	ColorTable    [16]color.RGBA
	Text          [][]uint16
	Attrs         [][]Attribute
}

// Snapshot returns a clamped, padded copy of the current viewport, built the
// same way the reference implementation's make_viewport_snapshot does: copy
// row-by-row straight from the cell grid, padding any cell outside the
// buffer with the default attribute/space, never a partial row.
func (b *ScreenBuffer) Snapshot() ViewportSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rect := b.windowRect
	w, h := rect.Width(), rect.Height()
	if w <= 0 || h <= 0 {
		w, h = 0, 0
	}

	snap := ViewportSnapshot{
		Revision:      b.revision,
		WindowRect:    rect,
		BufferSize:    Coord{X: b.width, Y: b.height},
		Cursor:        Coord{X: b.cursor.X, Y: b.cursor.Y},
		CursorVisible: b.cursor.Visible,
		CursorSize:    b.cursor.Size,
		DefaultAttr:   b.defaultAttr,
		ColorTable:    b.colorTable,
		Text:          make([][]uint16, h),
		Attrs:         make([][]Attribute, h),
	}

	for row := 0; row < h; row++ {
		y := rect.Top + row
		text := make([]uint16, w)
		attrs := make([]Attribute, w)
		for i := range text {
			text[i] = ' '
			attrs[i] = b.defaultAttr
		}
		if y >= 0 && y < b.height {
			src := b.cells[y]
			for col := 0; col < w; col++ {
				x := rect.Left + col
				if x >= 0 && x < b.width {
					text[col] = src[x].Char
					attrs[col] = src[x].Attr
				}
			}
		}
		snap.Text[row] = text
		snap.Attrs[row] = attrs
	}

	return snap
}
