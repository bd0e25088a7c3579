package condrv

import (
	"testing"

	"github.com/danielgatis/go-ansicode"
)

func newTestHandler(w, h int) (*ConsoleHandler, *ScreenBuffer, *ansicode.Decoder) {
	buf := NewScreenBuffer(w, h)
	handler := NewConsoleHandler(buf, NoopHostIO{}, nil, nil)
	return handler, buf, ansicode.NewDecoder(handler)
}

func TestConsoleHandlerPrintsPlainText(t *testing.T) {
	_, buf, dec := newTestHandler(10, 3)
	dec.Write([]byte("Hi"))

	if got := buf.Cell(0, 0).Char; got != 'H' {
		t.Errorf("expected 'H' at (0,0), got %q", rune(got))
	}
	if got := buf.Cell(1, 0).Char; got != 'i' {
		t.Errorf("expected 'i' at (1,0), got %q", rune(got))
	}
	if pos := buf.CursorPosition(); pos.X != 2 || pos.Y != 0 {
		t.Errorf("expected cursor at (2,0), got %+v", pos)
	}
}

func TestConsoleHandlerAutowrapAtLastColumn(t *testing.T) {
	_, buf, dec := newTestHandler(4, 3)
	dec.Write([]byte("ABCDE"))

	if buf.Cell(3, 0).Char != 'D' {
		t.Errorf("expected 'D' at end of first row, got %q", rune(buf.Cell(3, 0).Char))
	}
	if buf.Cell(0, 1).Char != 'E' {
		t.Errorf("expected 'E' wrapped to next row, got %q", rune(buf.Cell(0, 1).Char))
	}
}

func TestConsoleHandlerCursorPositioning(t *testing.T) {
	_, buf, dec := newTestHandler(20, 10)
	dec.Write([]byte("\x1b[5;10H"))

	pos := buf.CursorPosition()
	if pos.X != 9 || pos.Y != 4 {
		t.Errorf("expected cursor at (9,4) for CUP 5;10, got %+v", pos)
	}
}

func TestConsoleHandlerClearScreen(t *testing.T) {
	_, buf, dec := newTestHandler(10, 3)
	dec.Write([]byte("hello"))
	dec.Write([]byte("\x1b[2J"))

	if buf.Cell(0, 0).Char != ' ' {
		t.Error("expected screen cleared")
	}
}

func TestConsoleHandlerSGRReverseAndUnderline(t *testing.T) {
	_, buf, dec := newTestHandler(10, 3)
	dec.Write([]byte("\x1b[7;4mX"))

	attr := buf.Cell(0, 0).Attr
	if !attr.Reversed() {
		t.Error("expected reverse video bit set")
	}
	if attr&LVBUnderscore == 0 {
		t.Error("expected underline bit set")
	}
}

func TestConsoleHandlerSGRBoldSetsIntensity(t *testing.T) {
	_, buf, dec := newTestHandler(10, 3)
	dec.Write([]byte("\x1b[31;1mY"))

	attr := buf.Cell(0, 0).Attr
	if attr&FgIntensity == 0 {
		t.Error("expected bold to set foreground intensity")
	}
	if attr.Foreground()&0x07 != ANSIToConsole(1) {
		t.Errorf("expected red foreground index, got %d", attr.Foreground()&0x07)
	}
}

func TestConsoleHandlerSGRResetClearsAttributes(t *testing.T) {
	_, buf, dec := newTestHandler(10, 3)
	dec.Write([]byte("\x1b[1;7mX\x1b[0mY"))

	if buf.Cell(0, 0).Attr&FgIntensity == 0 {
		t.Fatal("expected first cell bold")
	}
	second := buf.Cell(1, 0).Attr
	if second&FgIntensity != 0 || second.Reversed() {
		t.Error("expected attributes reset before second cell")
	}
}

func TestConsoleHandlerAlternateBufferRestoresMainContent(t *testing.T) {
	_, buf, dec := newTestHandler(10, 3)
	dec.Write([]byte("main"))
	dec.Write([]byte("\x1b[?1049h"))

	if !buf.IsAlternate() {
		t.Fatal("expected alternate screen active after ?1049h")
	}
	if buf.Cell(0, 0).Char != ' ' {
		t.Error("expected alternate screen to start blank")
	}

	dec.Write([]byte("\x1b[?1049l"))
	if buf.IsAlternate() {
		t.Fatal("expected main screen active after ?1049l")
	}
	if buf.Cell(0, 0).Char != 'm' {
		t.Error("expected main screen content restored")
	}
}

func TestConsoleHandlerDeviceStatusReportInjectsCPR(t *testing.T) {
	buf := NewScreenBuffer(10, 5)
	host := &fakeAnsweringHost{answer: true}
	handler := NewConsoleHandler(buf, host, nil, nil)
	dec := ansicode.NewDecoder(handler)

	dec.Write([]byte("\x1b[3;4H"))
	dec.Write([]byte("\x1b[6n"))

	want := "\x1b[3;4R"
	if string(host.injected) != want {
		t.Errorf("expected CPR %q injected, got %q", want, host.injected)
	}
}

func TestConsoleHandlerDeviceStatusSuppressedWithoutHostAnswering(t *testing.T) {
	buf := NewScreenBuffer(10, 5)
	host := &fakeAnsweringHost{answer: false}
	handler := NewConsoleHandler(buf, host, nil, nil)
	dec := ansicode.NewDecoder(handler)

	dec.Write([]byte("\x1b[6n"))

	if host.injected != nil {
		t.Errorf("expected no injected bytes, got %q", host.injected)
	}
}

func TestConsoleHandlerScrollingRegionConfinesIndex(t *testing.T) {
	_, buf, dec := newTestHandler(10, 5)
	dec.Write([]byte("\x1b[2;4r"))
	buf.WriteCell(Coord{X: 0, Y: 0}, 'T', DefaultAttribute)

	dec.Write([]byte("\x1b[4;1H"))
	dec.Write([]byte("\n"))
	dec.Write([]byte("\n"))

	if buf.Cell(0, 0).Char != 'T' {
		t.Error("expected row outside scroll region untouched")
	}
}

func TestConsoleHandlerBellRingsProvider(t *testing.T) {
	buf := NewScreenBuffer(5, 2)
	bell := &countingBell{}
	handler := NewConsoleHandler(buf, NoopHostIO{}, bell, nil)
	dec := ansicode.NewDecoder(handler)

	dec.Write([]byte("\x07"))

	if bell.rings != 1 {
		t.Errorf("expected exactly one bell ring, got %d", bell.rings)
	}
}

func TestConsoleHandlerTitleNotifiesProvider(t *testing.T) {
	buf := NewScreenBuffer(5, 2)
	title := &capturingTitle{}
	handler := NewConsoleHandler(buf, NoopHostIO{}, nil, title)
	dec := ansicode.NewDecoder(handler)

	dec.Write([]byte("\x1b]0;hello\x07"))

	if title.last != "hello" {
		t.Errorf("expected title %q, got %q", "hello", title.last)
	}
}

func TestConsoleHandlerSaveRestoreCursor(t *testing.T) {
	_, buf, dec := newTestHandler(10, 5)
	dec.Write([]byte("\x1b[3;3H\x1b7"))
	dec.Write([]byte("\x1b[1;1H"))
	dec.Write([]byte("\x1b8"))

	pos := buf.CursorPosition()
	if pos.X != 2 || pos.Y != 2 {
		t.Errorf("expected cursor restored to (2,2), got %+v", pos)
	}
}

func TestConsoleHandlerDecalnFillsE(t *testing.T) {
	_, buf, dec := newTestHandler(5, 3)
	dec.Write([]byte("\x1b#8"))

	if buf.Cell(2, 1).Char != 'E' {
		t.Error("expected DECALN to fill the screen with 'E'")
	}
}

type fakeAnsweringHost struct {
	NoopHostIO
	answer   bool
	injected []byte
}

func (h *fakeAnsweringHost) VTShouldAnswerQueries() bool { return h.answer }

func (h *fakeAnsweringHost) InjectInputBytes(span []byte) bool {
	h.injected = append([]byte{}, span...)
	return true
}

type countingBell struct{ rings int }

func (b *countingBell) Ring() { b.rings++ }

type capturingTitle struct{ last string }

func (c *capturingTitle) TitleChanged(title string) { c.last = title }

func TestConsoleHandlerRISIsIdempotent(t *testing.T) {
	_, buf, dec := newTestHandler(10, 4)
	dec.Write([]byte("junk\x1b[7m\x1b[2;4r"))

	dec.Write([]byte("\x1bc"))
	once := buf.Snapshot().View()
	oncePos := buf.CursorPosition()

	dec.Write([]byte("\x1bc"))
	twice := buf.Snapshot().View()
	twicePos := buf.CursorPosition()

	if oncePos != twicePos {
		t.Errorf("cursor differs after second RIS: %+v vs %+v", oncePos, twicePos)
	}
	if len(once.Lines) != len(twice.Lines) {
		t.Fatalf("snapshot shape differs after second RIS")
	}
	for i := range once.Lines {
		if once.Lines[i].Text != twice.Lines[i].Text {
			t.Errorf("row %d differs after second RIS: %q vs %q", i, once.Lines[i].Text, twice.Lines[i].Text)
		}
	}
	if top, bottom := buf.ScrollRegion(); top != 0 || bottom != 3 {
		t.Errorf("expected full scroll region after RIS, got (%d,%d)", top, bottom)
	}
}

func TestConsoleHandlerDelayedWrapCRPrintsSameRow(t *testing.T) {
	_, buf, dec := newTestHandler(4, 3)

	// Fill the first row to latch delayed wrap, then CR: the next printable
	// lands at column 0 of the same row, not the next one.
	dec.Write([]byte("ABCD"))
	if !buf.DelayedWrap() {
		t.Fatal("expected delayed wrap latched after printing into last column")
	}
	dec.Write([]byte("\rX"))

	if buf.Cell(0, 0).Char != 'X' {
		t.Errorf("expected 'X' at (0,0), got %q", rune(buf.Cell(0, 0).Char))
	}
	if buf.Cell(0, 1).Char != ' ' {
		t.Errorf("expected row 1 untouched, got %q", rune(buf.Cell(0, 1).Char))
	}
}
