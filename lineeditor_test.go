package condrv

import "testing"

func TestLineEditorInsertsAndTerminates(t *testing.T) {
	s := NewLineEditorState()
	for _, r := range "hi" {
		if outcome := s.FeedKey(KeyEvent{UnicodeChar: uint16(r)}, false, nil); outcome != EditContinue {
			t.Fatalf("expected EditContinue for %q, got %v", r, outcome)
		}
	}
	if outcome := s.FeedKey(KeyEvent{UnicodeChar: 0x0D}, false, nil); outcome != EditComplete {
		t.Fatalf("expected EditComplete on CR, got %v", outcome)
	}

	got := s.Terminated(true)
	want := []uint16{'h', 'i', 0x0D, 0x0A}
	if !equalUnits(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLineEditorTerminatedWithoutProcessedInputIsCROnly(t *testing.T) {
	s := NewLineEditorState()
	s.FeedKey(KeyEvent{UnicodeChar: 'x'}, false, nil)
	s.FeedKey(KeyEvent{UnicodeChar: 0x0D}, false, nil)

	got := s.Terminated(false)
	want := []uint16{'x', 0x0D}
	if !equalUnits(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLineEditorBackspaceDeletesLeft(t *testing.T) {
	s := NewLineEditorState()
	s.FeedKey(KeyEvent{UnicodeChar: 'a'}, false, nil)
	s.FeedKey(KeyEvent{UnicodeChar: 'b'}, false, nil)
	s.FeedKey(KeyEvent{VirtualKeyCode: VkBack}, false, nil)

	if len(s.Buffer) != 1 || s.Buffer[0] != 'a' {
		t.Errorf("expected buffer %q, got %v", "a", s.Buffer)
	}
}

func TestLineEditorHomeEndMoveInsertionPoint(t *testing.T) {
	s := NewLineEditorState()
	for _, r := range "abc" {
		s.FeedKey(KeyEvent{UnicodeChar: uint16(r)}, false, nil)
	}
	s.FeedKey(KeyEvent{VirtualKeyCode: VkHome}, false, nil)
	if s.InsertionPoint != 0 {
		t.Fatalf("expected insertion point 0 after HOME, got %d", s.InsertionPoint)
	}
	s.FeedKey(KeyEvent{VirtualKeyCode: VkEnd}, false, nil)
	if s.InsertionPoint != 3 {
		t.Fatalf("expected insertion point 3 after END, got %d", s.InsertionPoint)
	}
}

func TestLineEditorCtrlHomeDeletesToStart(t *testing.T) {
	s := NewLineEditorState()
	for _, r := range "abcd" {
		s.FeedKey(KeyEvent{UnicodeChar: uint16(r)}, false, nil)
	}
	s.InsertionPoint = 2
	s.FeedKey(KeyEvent{VirtualKeyCode: VkHome, ControlKeyState: LeftCtrlPressed}, false, nil)

	if string(utf16ToString(s.Buffer)) != "cd" {
		t.Errorf("expected remaining buffer %q, got %q", "cd", utf16ToString(s.Buffer))
	}
	if s.InsertionPoint != 0 {
		t.Errorf("expected insertion point 0, got %d", s.InsertionPoint)
	}
}

func TestLineEditorInsertToggleOverwrite(t *testing.T) {
	s := NewLineEditorState()
	for _, r := range "abc" {
		s.FeedKey(KeyEvent{UnicodeChar: uint16(r)}, false, nil)
	}
	s.FeedKey(KeyEvent{VirtualKeyCode: VkInsert}, false, nil)
	if !s.Overwrite {
		t.Fatal("expected overwrite mode toggled on")
	}
	s.InsertionPoint = 0
	s.FeedKey(KeyEvent{UnicodeChar: 'X'}, false, nil)
	if string(utf16ToString(s.Buffer)) != "Xbc" {
		t.Errorf("expected overwrite replacing first char, got %q", utf16ToString(s.Buffer))
	}
}

func TestLineEditorEscapeClearsLine(t *testing.T) {
	s := NewLineEditorState()
	for _, r := range "abc" {
		s.FeedKey(KeyEvent{UnicodeChar: uint16(r)}, false, nil)
	}
	s.FeedKey(KeyEvent{VirtualKeyCode: VkEscape}, false, nil)
	if len(s.Buffer) != 0 || s.InsertionPoint != 0 {
		t.Errorf("expected line cleared, got %v ip=%d", s.Buffer, s.InsertionPoint)
	}
}

func TestLineEditorCtrlCDiscardsBuffer(t *testing.T) {
	s := NewLineEditorState()
	s.FeedKey(KeyEvent{UnicodeChar: 'a'}, false, nil)
	outcome := s.FeedKey(KeyEvent{UnicodeChar: 0x03}, false, nil)
	if outcome != EditCtrlC {
		t.Fatalf("expected EditCtrlC, got %v", outcome)
	}
	if len(s.Buffer) != 0 {
		t.Errorf("expected buffer discarded, got %v", s.Buffer)
	}
}

func TestLineEditorCtrlBreakDiscardsBuffer(t *testing.T) {
	s := NewLineEditorState()
	s.FeedKey(KeyEvent{UnicodeChar: 'a'}, false, nil)
	outcome := s.FeedKey(KeyEvent{VirtualKeyCode: VkCancel, ControlKeyState: LeftCtrlPressed}, false, nil)
	if outcome != EditCtrlBreak {
		t.Fatalf("expected EditCtrlBreak, got %v", outcome)
	}
	if len(s.Buffer) != 0 {
		t.Errorf("expected buffer discarded, got %v", s.Buffer)
	}
}

type recordingEchoer struct {
	ops []string
}

func (r *recordingEchoer) Input(ru rune) { r.ops = append(r.ops, "in:"+string(ru)) }
func (r *recordingEchoer) Backspace() { r.ops = append(r.ops, "bs") }

func TestLineEditorBackspaceEchoErasesCell(t *testing.T) {
	s := NewLineEditorState()
	echo := &recordingEchoer{}
	s.FeedKey(KeyEvent{UnicodeChar: 'a'}, true, echo)
	s.FeedKey(KeyEvent{VirtualKeyCode: VkBack}, true, echo)

	want := []string{"in:a", "bs", "in: ", "bs"}
	if len(echo.ops) != len(want) {
		t.Fatalf("expected echo ops %v, got %v", want, echo.ops)
	}
	for i, op := range want {
		if echo.ops[i] != op {
			t.Errorf("op %d: expected %q, got %q", i, op, echo.ops[i])
		}
	}
}
