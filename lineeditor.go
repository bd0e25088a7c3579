package condrv

// LineEditorState is the cooked-read continuation stored as InputHandle's
// pending_line while a line is in progress but has not yet seen its
// terminator — explicit continuation state rather than a thread or async
// primitive.
type LineEditorState struct {
	Buffer         []uint16
	InsertionPoint int
	Overwrite      bool
}

// NewLineEditorState returns an empty, insert-mode line editor.
func NewLineEditorState() *LineEditorState {
	return &LineEditorState{}
}

// EditOutcome reports what a FeedKey call did, so the caller (the dispatch
// handler for ReadConsole) knows whether to keep waiting, complete the read,
// or abort it.
type EditOutcome int

const (
	// EditContinue means the line is not yet terminated; keep it pending.
	EditContinue EditOutcome = iota
	// EditComplete means CR was seen; the line (plus terminator) is ready
	// for delivery.
	EditComplete
	// EditCtrlC means Ctrl+C interrupted the read: discard the buffer,
	// complete with StatusAlerted, zero bytes, SendEndTask(CtrlCEvent).
	EditCtrlC
	// EditCtrlBreak is the same as EditCtrlC but for Ctrl+Break, and also
	// requires flushing the input queue.
	EditCtrlBreak
)

// echoer is the subset of ConsoleHandler's surface the line editor needs to
// mirror edits into the screen buffer.
type echoer interface {
	Input(r rune)
	Backspace()
}

// echoErase erases one echoed cell: step left, overwrite with a space, step
// back onto it.
func echoErase(echo echoer) {
	echo.Backspace()
	echo.Input(' ')
	echo.Backspace()
}

// FeedKey applies one decoded key event to the line editor state, per the
// cooked-read editing rules. echo may be nil when ENABLE_ECHO_INPUT is off.
func (s *LineEditorState) FeedKey(k KeyEvent, echoEnabled bool, echo echoer) EditOutcome {
	if k.UnicodeChar == 0x03 {
		s.Buffer = nil
		s.InsertionPoint = 0
		return EditCtrlC
	}
	if k.ControlKeyState&(LeftCtrlPressed|RightCtrlPressed) != 0 && k.VirtualKeyCode == VkCancel {
		s.Buffer = nil
		s.InsertionPoint = 0
		return EditCtrlBreak
	}

	switch {
	case k.UnicodeChar == 0x0D:
		return EditComplete

	case k.UnicodeChar == VkBack || k.VirtualKeyCode == VkBack:
		if s.InsertionPoint > 0 {
			s.Buffer = append(s.Buffer[:s.InsertionPoint-1], s.Buffer[s.InsertionPoint:]...)
			s.InsertionPoint--
			if echoEnabled && echo != nil {
				echoErase(echo)
			}
		}
		return EditContinue

	case k.VirtualKeyCode == VkLeft:
		if s.InsertionPoint > 0 {
			s.InsertionPoint--
		}
		return EditContinue

	case k.VirtualKeyCode == VkRight:
		if s.InsertionPoint < len(s.Buffer) {
			s.InsertionPoint++
		}
		return EditContinue

	case k.VirtualKeyCode == VkHome:
		if k.ControlKeyState&(LeftCtrlPressed|RightCtrlPressed) != 0 {
			s.deleteRange(0, s.InsertionPoint, echoEnabled, echo)
			s.InsertionPoint = 0
			return EditContinue
		}
		s.InsertionPoint = 0
		return EditContinue

	case k.VirtualKeyCode == VkEnd:
		if k.ControlKeyState&(LeftCtrlPressed|RightCtrlPressed) != 0 {
			s.deleteRange(s.InsertionPoint, len(s.Buffer), echoEnabled, echo)
			return EditContinue
		}
		s.InsertionPoint = len(s.Buffer)
		return EditContinue

	case k.VirtualKeyCode == VkInsert:
		s.Overwrite = !s.Overwrite
		return EditContinue

	case k.VirtualKeyCode == VkDelete:
		if s.InsertionPoint < len(s.Buffer) {
			s.Buffer = append(s.Buffer[:s.InsertionPoint], s.Buffer[s.InsertionPoint+1:]...)
			if echoEnabled && echo != nil {
				echoErase(echo)
			}
		}
		return EditContinue

	case k.VirtualKeyCode == VkEscape:
		s.Buffer = nil
		s.InsertionPoint = 0
		return EditContinue

	default:
		if s.Overwrite && s.InsertionPoint < len(s.Buffer) {
			s.Buffer[s.InsertionPoint] = k.UnicodeChar
		} else {
			s.Buffer = append(s.Buffer, 0)
			copy(s.Buffer[s.InsertionPoint+1:], s.Buffer[s.InsertionPoint:])
			s.Buffer[s.InsertionPoint] = k.UnicodeChar
		}
		s.InsertionPoint++
		if echoEnabled && echo != nil {
			echo.Input(rune(k.UnicodeChar))
		}
		return EditContinue
	}
}

// deleteRange removes Buffer[from:to] and echoes one echoErase per deleted
// character (Ctrl+HOME / Ctrl+END).
func (s *LineEditorState) deleteRange(from, to int, echoEnabled bool, echo echoer) {
	if from < 0 {
		from = 0
	}
	if to > len(s.Buffer) {
		to = len(s.Buffer)
	}
	if from >= to {
		return
	}
	n := to - from
	s.Buffer = append(s.Buffer[:from], s.Buffer[to:]...)
	if echoEnabled && echo != nil {
		for i := 0; i < n; i++ {
			echoErase(echo)
		}
	}
}

// Terminated returns the decoded line plus its terminator, per whether
// ENABLE_PROCESSED_INPUT requests CRLF or bare CR.
func (s *LineEditorState) Terminated(processedInput bool) []uint16 {
	out := append([]uint16(nil), s.Buffer...)
	out = append(out, 0x0D)
	if processedInput {
		out = append(out, 0x0A)
	}
	return out
}
