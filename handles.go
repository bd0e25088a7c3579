package condrv

import "sync"

// ObjectID identifies a handle within a Connection's object table. The
// protocol's object ids are 32-bit; condrv uses a wider type for headroom
// but never treats the value as a pointer.
type ObjectID uint64

// Connection is created on a CONNECT request and holds the per-client
// process identity and its default object ids.
type Connection struct {
	ProcessID uint32
	ThreadID  uint32
	Input     ObjectID
	Output    ObjectID
}

// InputHandle owns the per-handle input pipeline state.
type InputHandle struct {
	mu sync.Mutex

	Codec *ByteCodec

	// pendingInputBytes carries partial sequences drained from the host
	// but not yet decoded into complete records; strictly drained from the
	// front, never seeked.
	pendingInputBytes []byte

	// pendingLine holds cooked-read continuation state when a line read is
	// in progress but awaiting a terminator.
	pendingLine *LineEditorState

	// pendingWchar is a low surrogate awaiting delivery when a surrogate
	// pair crossed a read boundary.
	pendingWchar    uint16
	hasPendingWchar bool

	// pendingTail holds the undelivered remainder of a completed cooked
	// line when the caller's budget could not take the whole line plus
	// terminator; the next read drains it without blocking.
	pendingTail []uint16

	// inputMode mirrors SetConsoleMode's input-side flags.
	inputMode InputMode

	// events is the raw INPUT_RECORD queue fed by WriteConsoleInput and by
	// the parser's non-line-mode key events, drained by ReadConsoleInput/
	// PeekConsoleInput/GetNumberOfInputEvents.
	events []KeyEvent
}

// NewInputHandle returns a handle with a UTF-8 codec and default mode flags.
func NewInputHandle() *InputHandle {
	return &InputHandle{
		Codec:     NewByteCodec(CodePageUTF8),
		inputMode: ModeEnableProcessedInput | ModeEnableLineInput | ModeEnableEchoInput,
	}
}

// Mode returns the handle's current input mode flags.
func (h *InputHandle) Mode() InputMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inputMode
}

// SetMode replaces the handle's input mode flags.
func (h *InputHandle) SetMode(m InputMode) {
	h.mu.Lock()
	h.inputMode = m
	h.mu.Unlock()
}

// AppendPendingBytes appends freshly drained host bytes to the front-drained
// retention buffer.
func (h *InputHandle) AppendPendingBytes(b []byte) {
	h.mu.Lock()
	h.pendingInputBytes = append(h.pendingInputBytes, b...)
	h.mu.Unlock()
}

// PrependPendingBytes returns already-decoded bytes to the front of the
// retention buffer, ahead of anything still undecoded (a cooked read that
// consumed past its terminator gives the excess back this way).
func (h *InputHandle) PrependPendingBytes(b []byte) {
	h.mu.Lock()
	h.pendingInputBytes = append(append([]byte(nil), b...), h.pendingInputBytes...)
	h.mu.Unlock()
}

// PendingBytes returns the bytes currently retained, undecoded.
func (h *InputHandle) PendingBytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.pendingInputBytes...)
}

// ConsumeFront removes n bytes from the front of the retention buffer,
// matching the "no seeks" invariant.
func (h *InputHandle) ConsumeFront(n int) {
	h.mu.Lock()
	if n >= len(h.pendingInputBytes) {
		h.pendingInputBytes = h.pendingInputBytes[:0]
	} else {
		h.pendingInputBytes = h.pendingInputBytes[n:]
	}
	h.mu.Unlock()
}

// PushEvent enqueues a decoded key event for ReadConsoleInput-style delivery.
func (h *InputHandle) PushEvent(k KeyEvent) {
	h.mu.Lock()
	h.events = append(h.events, k)
	h.mu.Unlock()
}

// PeekEvents returns up to n queued events without consuming them.
func (h *InputHandle) PeekEvents(n int) []KeyEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.events) {
		n = len(h.events)
	}
	return append([]KeyEvent(nil), h.events[:n]...)
}

// PopEvents removes and returns up to n queued events.
func (h *InputHandle) PopEvents(n int) []KeyEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.events) {
		n = len(h.events)
	}
	out := append([]KeyEvent(nil), h.events[:n]...)
	h.events = h.events[n:]
	return out
}

// EventCount reports the number of queued, undelivered events.
func (h *InputHandle) EventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// PendingLine returns the in-progress cooked-read continuation, or nil.
func (h *InputHandle) PendingLine() *LineEditorState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pendingLine
}

// SetPendingLine stores or clears the cooked-read continuation.
func (h *InputHandle) SetPendingLine(s *LineEditorState) {
	h.mu.Lock()
	h.pendingLine = s
	h.mu.Unlock()
}

// StashPendingWchar stores a low surrogate for delivery at the front of the
// next read: the high half goes out now, the low half waits here.
func (h *InputHandle) StashPendingWchar(u uint16) {
	h.mu.Lock()
	h.pendingWchar = u
	h.hasPendingWchar = true
	h.mu.Unlock()
}

// TakePendingWchar returns and clears the stored low surrogate, if any.
func (h *InputHandle) TakePendingWchar() (uint16, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasPendingWchar {
		return 0, false
	}
	h.hasPendingWchar = false
	return h.pendingWchar, true
}

// HasPendingWchar reports whether a low surrogate is queued for delivery.
func (h *InputHandle) HasPendingWchar() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hasPendingWchar
}

// SetPendingTail replaces the undelivered-line tail buffer.
func (h *InputHandle) SetPendingTail(units []uint16) {
	h.mu.Lock()
	if len(units) == 0 {
		h.pendingTail = nil
	} else {
		h.pendingTail = append([]uint16(nil), units...)
	}
	h.mu.Unlock()
}

// TakePendingTail returns and clears the undelivered-line tail buffer.
func (h *InputHandle) TakePendingTail() []uint16 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.pendingTail
	h.pendingTail = nil
	return out
}

// Reset clears all non-default per-handle state on CLOSE_OBJECT.
func (h *InputHandle) Reset() {
	h.mu.Lock()
	h.pendingInputBytes = nil
	h.pendingLine = nil
	h.events = nil
	h.hasPendingWchar = false
	h.pendingWchar = 0
	h.pendingTail = nil
	h.mu.Unlock()
}

// InputMode mirrors the SetConsoleMode input-side bit flags the parser and
// line editor consult.
type InputMode uint32

const (
	ModeEnableProcessedInput InputMode = 1 << iota
	ModeEnableLineInput
	ModeEnableEchoInput
	ModeEnableWindowInput
	ModeEnableMouseInput
	ModeEnableInsertMode
	ModeEnableQuickEditMode
	ModeEnableVirtualTerminalInput
)

// OutputMode mirrors the SetConsoleMode output-side bit flags.
type OutputMode uint32

const (
	ModeEnableProcessedOutput OutputMode = 1 << iota
	ModeEnableWrapAtEOLOutput
	ModeEnableVirtualTerminalProcessing
	ModeDisableNewlineAutoReturn
	ModeEnableLVBGridWorldwide
)

// OutputHandle owns (or shares) a ScreenBuffer.
type OutputHandle struct {
	mu sync.Mutex

	Buffer  *ScreenBuffer
	Handler *ConsoleHandler
	Codec   *ByteCodec
	// Decoder is the persistent VT state machine bound to Handler. It is
	// created once (not per WriteConsole call) so an escape sequence split
	// across two writes still decodes correctly.
	Decoder *VTDecoder

	outputMode OutputMode
}

// NewOutputHandle wires a freshly constructed ScreenBuffer to its
// ConsoleHandler and a UTF-8 byte codec, ready to accept WriteConsole calls.
func NewOutputHandle(width, height int, host HostIO, bell BellProvider, title TitleProvider) *OutputHandle {
	buf := NewScreenBuffer(width, height)
	handler := NewConsoleHandler(buf, host, bell, title)
	return &OutputHandle{
		Buffer:     buf,
		Handler:    handler,
		Codec:      NewByteCodec(CodePageUTF8),
		Decoder:    NewVTDecoder(handler),
		outputMode: ModeEnableProcessedOutput | ModeEnableWrapAtEOLOutput | ModeEnableVirtualTerminalProcessing,
	}
}

// Mode returns the handle's current output mode flags.
func (h *OutputHandle) Mode() OutputMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outputMode
}

// SetMode replaces the handle's output mode flags.
func (h *OutputHandle) SetMode(m OutputMode) {
	h.mu.Lock()
	h.outputMode = m
	h.mu.Unlock()
}
