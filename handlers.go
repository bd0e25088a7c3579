package condrv

import (
	"encoding/binary"
	"unicode/utf16"
	"unicode/utf8"
)

// handlers.go implements the USER_DEFINED API table dispatch.go registers.
// The wire layout for every descriptor below is condrv's own:
// the protocol fixes the operations, not their byte layout, so each handler
// documents its own fixed-size descriptor next to its definition.

// ---- shared helpers -------------------------------------------------

func decodeUTF16LE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

func encodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// keyEventWireSize is the fixed size of one condrv-wire KeyEvent record:
// KeyDown(1) + pad(1) + RepeatCount(2) + VirtualKeyCode(2) +
// VirtualScanCode(2) + UnicodeChar(2) + ControlKeyState(4) = 14 bytes.
const keyEventWireSize = 14

func encodeKeyEvent(k KeyEvent) []byte {
	out := make([]byte, keyEventWireSize)
	if k.KeyDown {
		out[0] = 1
	}
	binary.LittleEndian.PutUint16(out[2:4], k.RepeatCount)
	binary.LittleEndian.PutUint16(out[4:6], k.VirtualKeyCode)
	binary.LittleEndian.PutUint16(out[6:8], k.VirtualScanCode)
	binary.LittleEndian.PutUint16(out[8:10], k.UnicodeChar)
	binary.LittleEndian.PutUint32(out[10:14], k.ControlKeyState)
	return out
}

func decodeKeyEvent(b []byte) KeyEvent {
	var k KeyEvent
	if len(b) < keyEventWireSize {
		return k
	}
	k.KeyDown = b[0] != 0
	k.RepeatCount = binary.LittleEndian.Uint16(b[2:4])
	k.VirtualKeyCode = binary.LittleEndian.Uint16(b[4:6])
	k.VirtualScanCode = binary.LittleEndian.Uint16(b[6:8])
	k.UnicodeChar = binary.LittleEndian.Uint16(b[8:10])
	k.ControlKeyState = binary.LittleEndian.Uint32(b[10:14])
	return k
}

func statusResponse(status Status) ApiResponse {
	return ApiResponse{Status: status}
}

// rawReadResult is what decodeAvailableInput produces from the bytes
// currently pending on an input handle.
type rawReadResult struct {
	units      []uint16
	ctrlCCount int
	ctrlBreak  bool
	ctrlZ      bool
	needMore   bool
}

// decodeAvailableInput drains host bytes onto ih, then classifies and
// decodes as much of the pending byte stream as fits in budget UTF-16
// units, per the input classification rules and the Ctrl+C/Ctrl+Break/Ctrl+Z
// special rules. It stops the moment the remaining bytes are an incomplete
// prefix, Ctrl+Break or Ctrl+Z is hit, or budget runs out; needMore is set
// only when it stopped for lack of bytes (none left, or an incomplete
// prefix).
//
// Ctrl+C is special: the byte/record is not delivered to the reader and
// buffering continues from the next byte — a raw read keeps decoding past
// it and still delivers the surrounding bytes, only firing
// send_end_task once per occurrence. Cooked (line) reads override this
// (Ctrl+C aborts the whole line: STATUS_ALERTED, zero bytes delivered,
// line buffer discarded), so stopOnCtrlC lets the line-read caller opt
// into the abort-immediately behavior.
func decodeAvailableInput(ih *InputHandle, host HostIO, budget int, processedInput, stopOnCtrlC bool) rawReadResult {
	drainHostBytes(ih, host)

	var out rawReadResult
	for len(out.units) < budget {
		front := ih.PendingBytes()
		if len(front) == 0 {
			out.needMore = true
			return out
		}
		res := ParseInput(front, processedInput)
		switch res.Outcome {
		case OutcomeIncomplete:
			out.needMore = true
			return out
		case OutcomeCtrlC:
			ih.ConsumeFront(res.Consumed)
			out.ctrlCCount++
			if stopOnCtrlC {
				return out
			}
			continue
		case OutcomeCtrlBreak:
			ih.ConsumeFront(res.Consumed)
			out.ctrlBreak = true
			return out
		case OutcomeCtrlZ:
			ih.ConsumeFront(res.Consumed)
			out.ctrlZ = true
			return out
		case OutcomeDropped:
			ih.ConsumeFront(res.Consumed)
			continue
		case OutcomeKeyEvent:
			ih.ConsumeFront(res.Consumed)
			out.units = append(out.units, res.Key.UnicodeChar)
			if res.Low != 0 {
				out.units = append(out.units, res.Low)
			}
			continue
		}
	}
	return out
}

// ---- ReadConsole / WriteConsole --------------------------------------

// handleReadConsole implements ReadConsole. Descriptor byte 0
// is non-zero for a Unicode call; an ANSI call gets the units re-encoded in
// the handle's active code page. Response descriptor: 4-byte little-endian
// count of units (Unicode) or bytes (ANSI) actually delivered, followed
// inline by the payload itself.
func handleReadConsole(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	ih, ok := s.Input(iid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	if s.Host().InputDisconnected() {
		return statusResponse(StatusUnsuccessful)
	}
	unicode := len(req.Descriptor) >= 1 && req.Descriptor[0] != 0
	mode := ih.Mode()
	processed := mode&ModeEnableProcessedInput != 0
	echoEnabled := mode&ModeEnableEchoInput != 0

	// A prior read left undelivered units behind (a split surrogate pair or
	// a cooked-line tail): drain those first, without touching the host.
	var lead []uint16
	if u, ok := ih.TakePendingWchar(); ok {
		lead = append(lead, u)
	}
	lead = append(lead, ih.TakePendingTail()...)
	if len(lead) > 0 {
		return deliverReadUnits(ih, lead, unicode, req.OutputSize)
	}

	if mode&ModeEnableLineInput != 0 {
		return handleReadConsoleLine(s, ih, oid, unicode, processed, echoEnabled, req)
	}
	return handleReadConsoleRaw(s, ih, unicode, processed, req)
}

func readConsoleResponse(units []uint16) ApiResponse {
	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, uint32(len(units)))
	payload := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(payload[i*2:], u)
	}
	return ApiResponse{
		Status:        StatusSuccess,
		Information:   len(payload),
		Descriptor:    desc,
		InlinePayload: payload,
	}
}

func readConsoleBytesResponse(payload []byte) ApiResponse {
	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, uint32(len(payload)))
	return ApiResponse{
		Status:        StatusSuccess,
		Information:   len(payload),
		Descriptor:    desc,
		InlinePayload: payload,
	}
}

func isHighSurrogate(u uint16) bool { return u >= 0xD800 && u <= 0xDBFF }
func isLowSurrogate(u uint16) bool { return u >= 0xDC00 && u <= 0xDFFF }

// encodeUTF8Units converts UTF-16 units back to the UTF-8 byte form the
// pending-bytes buffer carries.
func encodeUTF8Units(units []uint16) []byte {
	var out []byte
	tmp := make([]byte, utf8.UTFMax)
	for _, r := range utf16.Decode(units) {
		n := utf8.EncodeRune(tmp, r)
		out = append(out, tmp[:n]...)
	}
	return out
}

// deliverReadUnits hands units to the client within req's output budget,
// retaining whatever does not fit on the handle so the next ReadConsole
// drains it without blocking. For a Unicode read the budget is
// in UTF-16 units; a surrogate pair cut at the budget boundary delivers its
// high half now and stashes the low half as pending_wchar. For an ANSI read
// the budget is in bytes of the handle's code page, and a first scalar that
// cannot fit at all fails with STATUS_BUFFER_TOO_SMALL without consuming it.
func deliverReadUnits(ih *InputHandle, units []uint16, unicode bool, outputSize int) ApiResponse {
	if unicode {
		budget := outputSize / 2
		if len(units) <= budget {
			return readConsoleResponse(units)
		}
		delivered := units[:budget]
		rest := units[budget:]
		if budget > 0 && isHighSurrogate(delivered[budget-1]) && isLowSurrogate(rest[0]) {
			ih.StashPendingWchar(rest[0])
			rest = rest[1:]
		}
		ih.SetPendingTail(rest)
		return readConsoleResponse(delivered)
	}

	encoded, consumed := ih.Codec.EncodeUnitsForOutput(units, outputSize)
	if consumed == 0 && len(units) > 0 {
		ih.SetPendingTail(units)
		return statusResponse(StatusBufferTooSmall)
	}
	ih.SetPendingTail(units[consumed:])
	return readConsoleBytesResponse(encoded)
}

func handleReadConsoleRaw(s *ServerState, ih *InputHandle, unicode, processed bool, req ApiRequest) ApiResponse {
	budget := req.OutputSize
	if unicode {
		budget = req.OutputSize / 2
	}
	if budget <= 0 {
		return readConsoleResponse(nil)
	}
	res := decodeAvailableInput(ih, s.Host(), budget, processed, false)

	for i := 0; i < res.ctrlCCount; i++ {
		sendCtrlEvent(s, ih, CtrlCEvent)
	}
	switch {
	case res.ctrlBreak:
		sendCtrlEvent(s, ih, CtrlBreakEvent)
		ih.Reset()
		s.Host().FlushInputBuffer()
		return ApiResponse{Status: StatusAlerted}
	case res.ctrlZ:
		return readConsoleResponse(nil)
	}
	if len(res.units) == 0 {
		// Nothing complete yet: block cooperatively.
		return ApiResponse{ReplyPending: true}
	}
	return deliverReadUnits(ih, res.units, unicode, req.OutputSize)
}

func handleReadConsoleLine(s *ServerState, ih *InputHandle, oid OutputHandleID, unicode, processed, echoEnabled bool, req ApiRequest) ApiResponse {
	if req.OutputSize <= 0 {
		return readConsoleResponse(nil)
	}

	line := ih.PendingLine()
	if line == nil {
		line = NewLineEditorState()
		ih.SetPendingLine(line)
	}

	var echo echoer
	if oh, ok := s.Output(oid); ok {
		echo = oh.Handler
	}

	res := decodeAvailableInput(ih, s.Host(), 1<<20, processed, true)
	if res.ctrlCCount > 0 {
		ih.SetPendingLine(nil)
		sendCtrlEvent(s, ih, CtrlCEvent)
		return ApiResponse{Status: StatusAlerted}
	}
	if res.ctrlBreak {
		ih.SetPendingLine(nil)
		sendCtrlEvent(s, ih, CtrlBreakEvent)
		ih.Reset()
		s.Host().FlushInputBuffer()
		return ApiResponse{Status: StatusAlerted}
	}

	for i, u := range res.units {
		outcome := line.FeedKey(KeyEvent{KeyDown: true, RepeatCount: 1, UnicodeChar: u}, echoEnabled, echo)
		switch outcome {
		case EditComplete:
			ih.SetPendingLine(nil)
			// Units decoded past the terminator belong to the next read:
			// return them to the front of the handle's byte stream.
			if rest := res.units[i+1:]; len(rest) > 0 {
				ih.PrependPendingBytes(encodeUTF8Units(rest))
			}
			return deliverReadUnits(ih, line.Terminated(processed), unicode, req.OutputSize)
		case EditCtrlC:
			ih.SetPendingLine(nil)
			sendCtrlEvent(s, ih, CtrlCEvent)
			return ApiResponse{Status: StatusAlerted}
		case EditCtrlBreak:
			ih.SetPendingLine(nil)
			sendCtrlEvent(s, ih, CtrlBreakEvent)
			ih.Reset()
			s.Host().FlushInputBuffer()
			return ApiResponse{Status: StatusAlerted}
		}
	}

	if res.ctrlZ {
		ih.SetPendingLine(nil)
		return readConsoleResponse(nil)
	}

	// No terminator yet: the line continuation is already stored on ih;
	// the caller's read loop is expected to call Dispatch again with the
	// same Identifier once more host bytes arrive.
	return ApiResponse{ReplyPending: true}
}

func sendCtrlEvent(s *ServerState, ih *InputHandle, event ConsoleCtrlEvent) {
	for _, c := range connectionsOwning(s, ih) {
		s.Host().SendEndTask(c.ProcessID, event, 0)
	}
}

// connectionsOwning returns every Connection whose input handle is ih; in
// practice there is at most one, since input handles aren't shared across
// connections, but the lookup has to scan since ServerState indexes
// handles by id, not by reverse pointer.
func connectionsOwning(s *ServerState, ih *InputHandle) []*Connection {
	var out []*Connection
	s.mu.Lock()
	for _, c := range s.connections {
		if h, ok := s.inputs[InputHandleID(c.Input)]; ok && h == ih {
			out = append(out, c)
		}
	}
	s.mu.Unlock()
	return out
}

// handleWriteConsole implements WriteConsole. Descriptor byte 0 is
// non-zero for a Unicode call, in which case InlinePayload is already
// UTF-16LE and is decoded directly instead of through the handle's code
// page codec.
func handleWriteConsole(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	oh, ok := s.Output(oid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	unicode := len(req.Descriptor) >= 1 && req.Descriptor[0] != 0
	if unicode {
		units := make([]uint16, len(req.InlinePayload)/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(req.InlinePayload[i*2:])
		}
		if oh.Mode()&ModeEnableVirtualTerminalProcessing == 0 {
			writeConsoleRaw(oh, units)
		} else {
			oh.Decoder.WriteUTF16(units)
		}
	} else {
		writeConsoleBytes(oh, req.InlinePayload)
	}
	return ApiResponse{Status: StatusSuccess, Information: len(req.InlinePayload)}
}

// ---- GetConsoleInput / PeekConsoleInput / WriteConsoleInput -----------

// handleGetConsoleInput / handlePeekConsoleInput drain or inspect the
// handle's decoded event queue.
// Descriptor: 4-byte little-endian requested record count. Response
// descriptor: 4-byte count actually returned, followed inline by that many
// keyEventWireSize-byte records.
func handleGetConsoleInput(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	return readEvents(s, iid, req, true)
}

func handlePeekConsoleInput(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	return readEvents(s, iid, req, false)
}

func readEvents(s *ServerState, iid InputHandleID, req ApiRequest, consume bool) ApiResponse {
	ih, ok := s.Input(iid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	want := 1
	if len(req.Descriptor) >= 4 {
		want = int(binary.LittleEndian.Uint32(req.Descriptor[0:4]))
	}

	// Surface any raw bytes not yet classified into events before reading
	// the queue, so polling GetNumberOfInputEvents/GetConsoleInput after a
	// raw key arrives sees it without a ReadConsole call first.
	drainHostBytes(ih, s.Host())
	for {
		front := ih.PendingBytes()
		if len(front) == 0 {
			break
		}
		res := ParseInput(front, ih.Mode()&ModeEnableProcessedInput != 0)
		if res.Outcome == OutcomeIncomplete {
			break
		}
		ih.ConsumeFront(res.Consumed)
		if res.Outcome == OutcomeKeyEvent {
			ih.PushEvent(res.Key)
			if res.Low != 0 {
				low := res.Key
				low.UnicodeChar = res.Low
				ih.PushEvent(low)
			}
		}
	}

	var events []KeyEvent
	if consume {
		events = ih.PopEvents(want)
	} else {
		events = ih.PeekEvents(want)
	}

	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, uint32(len(events)))
	payload := make([]byte, 0, len(events)*keyEventWireSize)
	for _, e := range events {
		payload = append(payload, encodeKeyEvent(e)...)
	}
	return ApiResponse{Status: StatusSuccess, Information: len(payload), Descriptor: desc, InlinePayload: payload}
}

// handleWriteConsoleInput injects synthetic events directly into the
// handle's event queue. Descriptor: 4-byte little-endian record count;
// InlinePayload: that many keyEventWireSize-byte records.
func handleWriteConsoleInput(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	ih, ok := s.Input(iid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	count := len(req.InlinePayload) / keyEventWireSize
	for i := 0; i < count; i++ {
		ih.PushEvent(decodeKeyEvent(req.InlinePayload[i*keyEventWireSize:]))
	}
	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, uint32(count))
	return ApiResponse{Status: StatusSuccess, Information: count, Descriptor: desc}
}

// handleGetNumberOfInputEvents reports ih's queued-event count. Response
// descriptor: 4-byte little-endian count.
func handleGetNumberOfInputEvents(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	ih, ok := s.Input(iid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	drainHostBytes(ih, s.Host())
	for {
		front := ih.PendingBytes()
		if len(front) == 0 {
			break
		}
		res := ParseInput(front, ih.Mode()&ModeEnableProcessedInput != 0)
		if res.Outcome == OutcomeIncomplete {
			break
		}
		ih.ConsumeFront(res.Consumed)
		if res.Outcome == OutcomeKeyEvent {
			ih.PushEvent(res.Key)
			if res.Low != 0 {
				low := res.Key
				low.UnicodeChar = res.Low
				ih.PushEvent(low)
			}
		}
	}
	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, uint32(ih.EventCount()))
	return ApiResponse{Status: StatusSuccess, Descriptor: desc}
}

// ---- screen-buffer read/write APIs ------------------------------------

// smallRectWireSize is the fixed size of a condrv-wire SmallRect: four
// little-endian int32 fields (Left, Top, Right, Bottom).
const smallRectWireSize = 16

func encodeSmallRect(r SmallRect) []byte {
	out := make([]byte, smallRectWireSize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(int32(r.Left)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(int32(r.Top)))
	binary.LittleEndian.PutUint32(out[8:12], uint32(int32(r.Right)))
	binary.LittleEndian.PutUint32(out[12:16], uint32(int32(r.Bottom)))
	return out
}

func decodeSmallRect(b []byte) SmallRect {
	if len(b) < smallRectWireSize {
		return SmallRect{}
	}
	return SmallRect{
		Left:   int(int32(binary.LittleEndian.Uint32(b[0:4]))),
		Top:    int(int32(binary.LittleEndian.Uint32(b[4:8]))),
		Right:  int(int32(binary.LittleEndian.Uint32(b[8:12]))),
		Bottom: int(int32(binary.LittleEndian.Uint32(b[12:16]))),
	}
}

// cellWireSize is the fixed size of a condrv-wire Cell: UTF-16 unit(2) +
// Attribute(2), mirroring CHAR_INFO's width.
const cellWireSize = 4

func encodeCell(c Cell) []byte {
	out := make([]byte, cellWireSize)
	binary.LittleEndian.PutUint16(out[0:2], c.Char)
	binary.LittleEndian.PutUint16(out[2:4], uint16(c.Attr))
	return out
}

func decodeCell(b []byte) Cell {
	if len(b) < cellWireSize {
		return Cell{}
	}
	return Cell{
		Char: binary.LittleEndian.Uint16(b[0:2]),
		Attr: Attribute(binary.LittleEndian.Uint16(b[2:4])),
	}
}

// handleWriteConsoleOutput implements WriteConsoleOutput. Descriptor:
// smallRectWireSize bytes for the target rect. InlinePayload: a dense
// row-major array of (Bottom-Top+1)*(Right-Left+1) condrv-wire cells.
func handleWriteConsoleOutput(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	oh, ok := s.Output(oid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	if len(req.Descriptor) < smallRectWireSize {
		return statusResponse(StatusInvalidParameter)
	}
	rect := decodeSmallRect(req.Descriptor)
	width := rect.Right - rect.Left + 1
	height := rect.Bottom - rect.Top + 1
	if width <= 0 || height <= 0 {
		return statusResponse(StatusInvalidParameter)
	}

	i := 0
	for y := rect.Top; y <= rect.Bottom; y++ {
		for x := rect.Left; x <= rect.Right; x++ {
			off := i * cellWireSize
			if off+cellWireSize > len(req.InlinePayload) {
				break
			}
			c := decodeCell(req.InlinePayload[off:])
			oh.Buffer.WriteCell(Coord{X: x, Y: y}, c.Char, c.Attr)
			i++
		}
	}
	return ApiResponse{Status: StatusSuccess, Descriptor: encodeSmallRect(rect)}
}

// handleReadConsoleOutput implements ReadConsoleOutput. Descriptor
// (request): smallRectWireSize bytes for the source rect. Response
// descriptor: the same rect clamped to the buffer; InlinePayload: the dense
// cell array for that clamped rect.
func handleReadConsoleOutput(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	oh, ok := s.Output(oid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	if len(req.Descriptor) < smallRectWireSize {
		return statusResponse(StatusInvalidParameter)
	}
	rect := decodeSmallRect(req.Descriptor)
	width, height := oh.Buffer.Size()
	rect.Left = clampInt(rect.Left, 0, width-1)
	rect.Right = clampInt(rect.Right, 0, width-1)
	rect.Top = clampInt(rect.Top, 0, height-1)
	rect.Bottom = clampInt(rect.Bottom, 0, height-1)

	var payload []byte
	for y := rect.Top; y <= rect.Bottom; y++ {
		for x := rect.Left; x <= rect.Right; x++ {
			payload = append(payload, encodeCell(oh.Buffer.Cell(x, y))...)
		}
	}
	return ApiResponse{Status: StatusSuccess, Information: len(payload), Descriptor: encodeSmallRect(rect), InlinePayload: payload}
}

// handleFillConsoleOutput implements FillConsoleOutputCharacter /
// FillConsoleOutputAttribute, unified into one handler since both
// differ only in which half of the cell they touch. Descriptor: Coord(8) +
// length(4, little-endian) + mode(1: 0 fills Char, 1 fills Attr) + Char or
// Attr value(2, little-endian, in the remaining descriptor bytes).
func handleFillConsoleOutput(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	oh, ok := s.Output(oid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	if len(req.Descriptor) < 15 {
		return statusResponse(StatusInvalidParameter)
	}
	coord := Coord{
		X: int(int32(binary.LittleEndian.Uint32(req.Descriptor[0:4]))),
		Y: int(int32(binary.LittleEndian.Uint32(req.Descriptor[4:8]))),
	}
	length := int(binary.LittleEndian.Uint32(req.Descriptor[8:12]))
	mode := req.Descriptor[12]
	value := binary.LittleEndian.Uint16(req.Descriptor[13:15])

	var written int
	if mode == 0 {
		written = oh.Buffer.FillChar(coord, length, value)
	} else {
		written = oh.Buffer.FillAttr(coord, length, Attribute(value))
	}
	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, uint32(written))
	return ApiResponse{Status: StatusSuccess, Information: written, Descriptor: desc}
}

// handleReadConsoleOutputString implements ReadConsoleOutputCharacter /
// ReadConsoleOutputAttribute. Descriptor: Coord(8) + length(4) +
// mode(1: 0 reads chars, 1 reads attrs). Response inline payload: up to
// length UTF-16 units (mode 0) or little-endian Attribute words (mode 1),
// clipped at the end of the row.
func handleReadConsoleOutputString(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	oh, ok := s.Output(oid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	if len(req.Descriptor) < 13 {
		return statusResponse(StatusInvalidParameter)
	}
	coord := Coord{
		X: int(int32(binary.LittleEndian.Uint32(req.Descriptor[0:4]))),
		Y: int(int32(binary.LittleEndian.Uint32(req.Descriptor[4:8]))),
	}
	length := int(binary.LittleEndian.Uint32(req.Descriptor[8:12]))
	mode := req.Descriptor[12]

	var payload []byte
	if mode == 0 {
		units := oh.Buffer.ReadSpan(coord, length)
		payload = make([]byte, len(units)*2)
		for i, u := range units {
			binary.LittleEndian.PutUint16(payload[i*2:], u)
		}
	} else {
		attrs := oh.Buffer.ReadAttrs(coord, length)
		payload = make([]byte, len(attrs)*2)
		for i, a := range attrs {
			binary.LittleEndian.PutUint16(payload[i*2:], uint16(a))
		}
	}
	return ApiResponse{Status: StatusSuccess, Information: len(payload), InlinePayload: payload}
}

// handleWriteConsoleOutputString implements WriteConsoleOutputCharacter /
// WriteConsoleOutputAttribute. Descriptor: Coord(8) + mode(1: 0
// writes chars, 1 writes attrs). InlinePayload: the units/attrs to write,
// little-endian.
func handleWriteConsoleOutputString(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	oh, ok := s.Output(oid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	if len(req.Descriptor) < 9 {
		return statusResponse(StatusInvalidParameter)
	}
	x := int(int32(binary.LittleEndian.Uint32(req.Descriptor[0:4])))
	y := int(int32(binary.LittleEndian.Uint32(req.Descriptor[4:8])))
	mode := req.Descriptor[8]

	count := len(req.InlinePayload) / 2
	var written int
	if mode == 0 {
		attr := oh.Buffer.Cell(x, y).Attr
		for i := 0; i < count; i++ {
			ch := binary.LittleEndian.Uint16(req.InlinePayload[i*2:])
			oh.Buffer.WriteCell(Coord{X: x + i, Y: y}, ch, attr)
			written++
		}
	} else {
		for i := 0; i < count; i++ {
			a := Attribute(binary.LittleEndian.Uint16(req.InlinePayload[i*2:]))
			ch := oh.Buffer.Cell(x+i, y).Char
			oh.Buffer.WriteCell(Coord{X: x + i, Y: y}, ch, a)
			written++
		}
	}
	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, uint32(written))
	return ApiResponse{Status: StatusSuccess, Information: written, Descriptor: desc}
}

// handleScrollConsoleScreenBuffer implements ScrollConsoleScreenBuffer.
// Descriptor: source SmallRect(16) + dest Coord(8) + hasClip(1) +
// clip SmallRect(16, meaningful only if hasClip!=0) + fill Cell(4).
func handleScrollConsoleScreenBuffer(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	oh, ok := s.Output(oid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	const fixed = smallRectWireSize + 8 + 1 + smallRectWireSize + cellWireSize
	if len(req.Descriptor) < fixed {
		return statusResponse(StatusInvalidParameter)
	}
	off := 0
	rect := decodeSmallRect(req.Descriptor[off:])
	off += smallRectWireSize
	dest := Coord{
		X: int(int32(binary.LittleEndian.Uint32(req.Descriptor[off : off+4]))),
		Y: int(int32(binary.LittleEndian.Uint32(req.Descriptor[off+4 : off+8]))),
	}
	off += 8
	hasClip := req.Descriptor[off] != 0
	off++
	clipRect := decodeSmallRect(req.Descriptor[off:])
	off += smallRectWireSize
	fill := decodeCell(req.Descriptor[off:])

	var clip *SmallRect
	if hasClip {
		clip = &clipRect
	}
	oh.Buffer.ScrollRect(rect, dest, clip, fill)
	return ApiResponse{Status: StatusSuccess}
}

// ---- title / code page / mode / cursor info ---------------------------

// handleSetTitle implements SetConsoleTitle. InlinePayload
// is the title as UTF-16LE.
func handleSetTitle(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	s.SetTitle(decodeUTF16LE(req.InlinePayload))
	return ApiResponse{Status: StatusSuccess}
}

// handleGetTitle implements GetConsoleTitle. Response inline payload: the
// title as UTF-16LE, or STATUS_BUFFER_TOO_SMALL (no payload, Information set
// to the needed byte count) if req.OutputSize can't hold it.
func handleGetTitle(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	raw := encodeUTF16LE(s.Title())
	if len(raw) > req.OutputSize {
		return ApiResponse{Status: StatusBufferTooSmall, Information: len(raw)}
	}
	return ApiResponse{Status: StatusSuccess, Information: len(raw), InlinePayload: raw}
}

// handleSetCP implements SetConsoleCP / SetConsoleOutputCP. Descriptor:
// isOutput(1) + CodePage(4, little-endian).
func handleSetCP(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	if len(req.Descriptor) < 5 {
		return statusResponse(StatusInvalidParameter)
	}
	cp := CodePage(binary.LittleEndian.Uint32(req.Descriptor[1:5]))
	if req.Descriptor[0] != 0 {
		oh, ok := s.Output(oid)
		if !ok {
			return statusResponse(StatusInvalidHandle)
		}
		oh.Codec.SetCodePage(cp)
	} else {
		ih, ok := s.Input(iid)
		if !ok {
			return statusResponse(StatusInvalidHandle)
		}
		ih.Codec.SetCodePage(cp)
	}
	return ApiResponse{Status: StatusSuccess}
}

// handleGetCP implements GetConsoleCP / GetConsoleOutputCP. Descriptor:
// isOutput(1). Response descriptor: CodePage(4, little-endian).
func handleGetCP(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	if len(req.Descriptor) < 1 {
		return statusResponse(StatusInvalidParameter)
	}
	var cp CodePage
	if req.Descriptor[0] != 0 {
		oh, ok := s.Output(oid)
		if !ok {
			return statusResponse(StatusInvalidHandle)
		}
		cp = oh.Codec.CodePage()
	} else {
		ih, ok := s.Input(iid)
		if !ok {
			return statusResponse(StatusInvalidHandle)
		}
		cp = ih.Codec.CodePage()
	}
	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, uint32(cp))
	return ApiResponse{Status: StatusSuccess, Descriptor: desc}
}

// handleSetMode implements SetConsoleMode. Descriptor: isOutput(1) +
// mode(4, little-endian).
func handleSetMode(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	if len(req.Descriptor) < 5 {
		return statusResponse(StatusInvalidParameter)
	}
	value := binary.LittleEndian.Uint32(req.Descriptor[1:5])
	if req.Descriptor[0] != 0 {
		oh, ok := s.Output(oid)
		if !ok {
			return statusResponse(StatusInvalidHandle)
		}
		oh.SetMode(OutputMode(value))
	} else {
		ih, ok := s.Input(iid)
		if !ok {
			return statusResponse(StatusInvalidHandle)
		}
		ih.SetMode(InputMode(value))
	}
	return ApiResponse{Status: StatusSuccess}
}

// handleGetMode implements GetConsoleMode. Descriptor: isOutput(1).
// Response descriptor: mode(4, little-endian).
func handleGetMode(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	if len(req.Descriptor) < 1 {
		return statusResponse(StatusInvalidParameter)
	}
	var value uint32
	if req.Descriptor[0] != 0 {
		oh, ok := s.Output(oid)
		if !ok {
			return statusResponse(StatusInvalidHandle)
		}
		value = uint32(oh.Mode())
	} else {
		ih, ok := s.Input(iid)
		if !ok {
			return statusResponse(StatusInvalidHandle)
		}
		value = uint32(ih.Mode())
	}
	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, value)
	return ApiResponse{Status: StatusSuccess, Descriptor: desc}
}

// handleSetCursorInfo implements SetConsoleCursorInfo. Descriptor:
// size(4, little-endian percentage) + visible(1).
func handleSetCursorInfo(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	oh, ok := s.Output(oid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	if len(req.Descriptor) < 5 {
		return statusResponse(StatusInvalidParameter)
	}
	size := int(binary.LittleEndian.Uint32(req.Descriptor[0:4]))
	visible := req.Descriptor[4] != 0
	oh.Buffer.SetCursorSize(size)
	oh.Buffer.SetCursorVisible(visible)
	return ApiResponse{Status: StatusSuccess}
}

// handleGetCursorInfo implements GetConsoleCursorInfo. Response descriptor:
// size(4, little-endian) + visible(1).
func handleGetCursorInfo(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	oh, ok := s.Output(oid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	desc := make([]byte, 5)
	binary.LittleEndian.PutUint32(desc[0:4], uint32(oh.Buffer.CursorSize()))
	if oh.Buffer.CursorVisible() {
		desc[4] = 1
	}
	return ApiResponse{Status: StatusSuccess, Descriptor: desc}
}

// handleSetScreenBufferSize implements SetConsoleScreenBufferSize.
// Descriptor: width(4, little-endian) + height(4, little-endian).
func handleSetScreenBufferSize(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	oh, ok := s.Output(oid)
	if !ok {
		return statusResponse(StatusInvalidHandle)
	}
	if len(req.Descriptor) < 8 {
		return statusResponse(StatusInvalidParameter)
	}
	width := int(binary.LittleEndian.Uint32(req.Descriptor[0:4]))
	height := int(binary.LittleEndian.Uint32(req.Descriptor[4:8]))
	oh.Buffer.Resize(width, height)
	return ApiResponse{Status: StatusSuccess}
}

// ---- alias store --------------------------------------------------------

// decodeAliasAddPayload decodes the three NUL-separated UTF-16LE strings
// (source, target, exe) an AddConsoleAlias payload carries.
func decodeAliasAddPayload(payload []byte) (src, target, exe string) {
	s := decodeUTF16LE(payload)
	parts := splitNUL(s, 3)
	if len(parts) > 0 {
		src = parts[0]
	}
	if len(parts) > 1 {
		target = parts[1]
	}
	if len(parts) > 2 {
		exe = parts[2]
	}
	return
}

func splitNUL(s string, max int) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == 0 {
			out = append(out, s[start:i])
			start = i + 1
			if len(out) == max-1 {
				break
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// handleAddAlias implements AddConsoleAlias. InlinePayload: UTF-16LE
// "source\0target\0exe".
func handleAddAlias(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	src, target, exe := decodeAliasAddPayload(req.InlinePayload)
	s.Aliases().Add(exe, src, target)
	return ApiResponse{Status: StatusSuccess}
}

// handleGetAlias implements GetConsoleAlias. Descriptor: UTF-16LE exe name.
// InlinePayload: UTF-16LE source string. Response inline payload: UTF-16LE
// target, or STATUS_BUFFER_TOO_SMALL if req.OutputSize can't hold it, or
// STATUS_UNSUCCESSFUL if no such alias exists.
func handleGetAlias(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	exe := decodeUTF16LE(req.Descriptor)
	src := decodeUTF16LE(req.InlinePayload)
	target, ok := s.Aliases().Get(exe, src)
	if !ok {
		return statusResponse(StatusUnsuccessful)
	}
	raw := encodeUTF16LE(target)
	if len(raw) > req.OutputSize {
		return ApiResponse{Status: StatusBufferTooSmall, Information: len(raw)}
	}
	return ApiResponse{Status: StatusSuccess, Information: len(raw), InlinePayload: raw}
}

// handleGetAliasesLength implements GetConsoleAliasesLength. Descriptor:
// UTF-16LE exe name. Response descriptor: byte length(4, little-endian).
func handleGetAliasesLength(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	exe := decodeUTF16LE(req.Descriptor)
	n := len(encodeUTF16LE(s.Aliases().Aliases(exe)))
	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, uint32(n))
	return ApiResponse{Status: StatusSuccess, Descriptor: desc}
}

// handleGetAliases implements GetConsoleAliases. Descriptor: UTF-16LE exe
// name. Response inline payload: UTF-16LE "src=tgt\0...\0\0".
func handleGetAliases(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	exe := decodeUTF16LE(req.Descriptor)
	raw := encodeUTF16LE(s.Aliases().Aliases(exe))
	if len(raw) > req.OutputSize {
		return ApiResponse{Status: StatusBufferTooSmall, Information: len(raw)}
	}
	return ApiResponse{Status: StatusSuccess, Information: len(raw), InlinePayload: raw}
}

// handleGetAliasExesLength implements GetConsoleAliasExesLength. Response
// descriptor: byte length(4, little-endian).
func handleGetAliasExesLength(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	n := len(encodeUTF16LE(s.Aliases().Exes()))
	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, uint32(n))
	return ApiResponse{Status: StatusSuccess, Descriptor: desc}
}

// handleGetAliasExes implements GetConsoleAliasExes. Response inline
// payload: UTF-16LE "exe\0exe\0\0".
func handleGetAliasExes(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse {
	raw := encodeUTF16LE(s.Aliases().Exes())
	if len(raw) > req.OutputSize {
		return ApiResponse{Status: StatusBufferTooSmall, Information: len(raw)}
	}
	return ApiResponse{Status: StatusSuccess, Information: len(raw), InlinePayload: raw}
}
