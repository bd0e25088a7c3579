package condrv

import (
	"encoding/binary"
	"testing"
)

// ---- harness helpers --------------------------------------------------
//
// These wrap Dispatch so each scenario test reads like the protocol step
// it exercises rather than the wire encoding. A fresh MemoryTransport is
// used per call — ServerState and the shared StrictHostIo carry state
// across calls, exactly as a long-lived connection would, while the
// transport is only ever scoped to one in-flight request.

func nextIdentifier(counter *uint32) Identifier {
	*counter++
	return Identifier{LowPart: *counter}
}

// connectHarness dispatches FuncConnect and returns the connection's
// object id. ServerState.Connect allocates the input and output handle
// counters in lockstep, so for any one connection the two handle ids are
// numerically equal — this is what lets callers pass a single object id
// to both InputHandleID- and OutputHandleID-shaped USER_DEFINED calls.
func connectHarness(t *testing.T, s *ServerState, host HostIO, counter *uint32, pid uint32) uint64 {
	t.Helper()
	transport := NewMemoryTransport(nil)
	req := RequestDescriptor{
		Identifier: nextIdentifier(counter),
		Function:   FuncConnect,
		Process:    pid,
		OutputSize: 24,
	}
	if err := Dispatch(s, req, transport, host); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c, ok := transport.Completion(req.Identifier)
	if !ok || c.Status != StatusSuccess {
		t.Fatalf("connect completion: %+v (ok=%v)", c, ok)
	}
	resp := transport.Response()
	iid := binary.LittleEndian.Uint64(resp[8:16])
	oid := binary.LittleEndian.Uint64(resp[16:24])
	if iid != oid {
		t.Fatalf("expected input/output handle ids to coincide, got iid=%d oid=%d", iid, oid)
	}
	return iid
}

// userDefinedCall builds the [ApiNumber(4)][DescriptorSize(4)][descriptor][inline]
// wire payload dispatchUserDefined expects and dispatches it as FuncUserDefined.
func userDefinedCall(t *testing.T, s *ServerState, host HostIO, counter *uint32, pid uint32, object uint64, api ApiNumber, descriptor, inline []byte, outputSize int) (Completion, []byte) {
	t.Helper()
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(api))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(descriptor)))
	payload := append(append(append([]byte(nil), header...), descriptor...), inline...)

	transport := NewMemoryTransport(payload)
	req := RequestDescriptor{
		Identifier: nextIdentifier(counter),
		Function:   FuncUserDefined,
		Process:    pid,
		Object:     object,
		InputSize:  len(payload),
		OutputSize: outputSize,
	}
	if err := Dispatch(s, req, transport, host); err != nil {
		t.Fatalf("user-defined api %d: %v", api, err)
	}
	c, _ := transport.Completion(req.Identifier)
	return c, transport.Response()
}

// rawReadCall dispatches FuncRawRead directly against the input handle.
func rawReadCall(t *testing.T, s *ServerState, host HostIO, counter *uint32, pid uint32, object uint64, outputSize int) (Completion, []byte) {
	t.Helper()
	transport := NewMemoryTransport(nil)
	req := RequestDescriptor{
		Identifier: nextIdentifier(counter),
		Function:   FuncRawRead,
		Process:    pid,
		Object:     object,
		OutputSize: outputSize,
	}
	if err := Dispatch(s, req, transport, host); err != nil {
		t.Fatalf("raw read: %v", err)
	}
	c, _ := transport.Completion(req.Identifier)
	return c, transport.Response()
}

func setModeHarness(t *testing.T, s *ServerState, host HostIO, counter *uint32, pid uint32, object uint64, isOutput bool, mode uint32) {
	t.Helper()
	desc := make([]byte, 5)
	if isOutput {
		desc[0] = 1
	}
	binary.LittleEndian.PutUint32(desc[1:5], mode)
	c, _ := userDefinedCall(t, s, host, counter, pid, object, ApiSetMode, desc, nil, 0)
	if c.Status != StatusSuccess {
		t.Fatalf("set mode: %+v", c)
	}
}

func writeConsoleHarness(t *testing.T, s *ServerState, host HostIO, counter *uint32, pid uint32, object uint64, text string) {
	t.Helper()
	c, _ := userDefinedCall(t, s, host, counter, pid, object, ApiWriteConsole, []byte{0}, []byte(text), 0)
	if c.Status != StatusSuccess {
		t.Fatalf("write console: %+v", c)
	}
}

func readConsoleUnits(resp []byte) []uint16 {
	if len(resp) < 4 {
		return nil
	}
	count := binary.LittleEndian.Uint32(resp[0:4])
	units := make([]uint16, count)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(resp[4+i*2:])
	}
	return units
}

// ---- scenario 1: Ctrl+C mid-buffer, raw processed read ----------------

func TestScenarioCtrlCMidBufferRawRead(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 42
	object := connectHarness(t, s, host, &counter, pid)

	// raw (non-line) processed input.
	setModeHarness(t, s, host, &counter, pid, object, false, uint32(ModeEnableProcessedInput))

	host.Feed([]byte{0x58, 0x03, 0x59})

	c, resp := userDefinedCall(t, s, host, &counter, pid, object, ApiReadConsole, []byte{0}, nil, 100)
	if c.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", c)
	}
	if c.Information != 2 {
		t.Errorf("expected Information=2, got %d", c.Information)
	}
	payload := resp[4:]
	if len(payload) != 2 || payload[0] != 0x58 || payload[1] != 0x59 {
		t.Errorf("expected output bytes [0x58, 0x59], got %v", payload)
	}

	calls := host.EndTasks()
	if len(calls) != 1 {
		t.Fatalf("expected send_end_task called exactly once, got %d", len(calls))
	}
	if calls[0].Event != CtrlCEvent || calls[0].PID != pid {
		t.Errorf("expected CtrlCEvent for pid %d, got %+v", pid, calls[0])
	}
}

// ---- scenario 2: Win32 input-mode key event ---------------------------

func TestScenarioWin32InputModeKey(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 7
	object := connectHarness(t, s, host, &counter, pid)

	host.Feed([]byte("\x1b[65;0;97;1;0;1_"))

	desc := make([]byte, 4)
	binary.LittleEndian.PutUint32(desc, 1)
	c, resp := userDefinedCall(t, s, host, &counter, pid, object, ApiGetConsoleInput, desc, nil, 4+keyEventWireSize)
	if c.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", c)
	}
	count := binary.LittleEndian.Uint32(resp[0:4])
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}
	key := decodeKeyEvent(resp[4 : 4+keyEventWireSize])
	want := KeyEvent{KeyDown: true, VirtualKeyCode: 65, VirtualScanCode: 0, UnicodeChar: 'a', ControlKeyState: 0, RepeatCount: 1}
	if key != want {
		t.Errorf("expected %+v, got %+v", want, key)
	}
}

// ---- scenario 3: split UTF-8 across reads, line input mode ------------

func TestScenarioSplitUTF8AcrossReadsLineInput(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 13
	object := connectHarness(t, s, host, &counter, pid)

	setModeHarness(t, s, host, &counter, pid, object, false,
		uint32(ModeEnableLineInput|ModeEnableProcessedInput))

	host.Feed([]byte{0xC3})
	id1 := nextIdentifier(&counter)
	// Unicode read: [ApiNumber][DescriptorSize=1][descriptor 0x01].
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(ApiReadConsole))
	binary.LittleEndian.PutUint32(header[4:8], 1)
	header = append(header, 1)
	transport1 := NewMemoryTransport(header)
	req1 := RequestDescriptor{Identifier: id1, Function: FuncUserDefined, Process: pid, Object: object, OutputSize: 200, InputSize: len(header)}
	if err := Dispatch(s, req1, transport1, host); err != nil {
		t.Fatalf("first read console: %v", err)
	}
	if _, ok := transport1.Completion(id1); ok {
		t.Fatalf("expected first read to stay reply-pending with an incomplete UTF-8 sequence")
	}

	host.Feed([]byte{0xA9, 0x0D})
	transport2 := NewMemoryTransport(header)
	req2 := RequestDescriptor{Identifier: id1, Function: FuncUserDefined, Process: pid, Object: object, OutputSize: 200, InputSize: len(header)}
	if err := Dispatch(s, req2, transport2, host); err != nil {
		t.Fatalf("second read console: %v", err)
	}
	c, ok := transport2.Completion(id1)
	if !ok || c.Status != StatusSuccess {
		t.Fatalf("expected success on resumed read, got %+v (ok=%v)", c, ok)
	}
	units := readConsoleUnits(transport2.Response())
	want := []uint16{0x00E9, 0x0D, 0x0A}
	if len(units) != len(want) {
		t.Fatalf("expected %d UTF-16 units, got %v", len(want), units)
	}
	for i, u := range want {
		if units[i] != u {
			t.Errorf("unit %d: expected %#x, got %#x", i, u, units[i])
		}
	}
}

// ---- not-implemented sanitization -------------------------------------

func TestDeprecatedAPIReturnsZeroFilledDescriptor(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 99
	object := connectHarness(t, s, host, &counter, pid)

	descriptor := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	c, resp := userDefinedCall(t, s, host, &counter, pid, object, apiDeprecatedBase, descriptor, nil, len(descriptor))
	if c.Status != StatusNotImplemented {
		t.Fatalf("expected StatusNotImplemented, got %+v", c)
	}
	if c.Information != 0 {
		t.Errorf("expected Information=0, got %d", c.Information)
	}
	if len(resp) != len(descriptor) {
		t.Fatalf("expected response descriptor of length %d, got %d", len(descriptor), len(resp))
	}
	for i, b := range resp {
		if b != 0 {
			t.Errorf("byte %d of response descriptor not zeroed: %#x", i, b)
		}
	}
}

// readConsoleCall dispatches ApiReadConsole with an explicit identifier so
// reply-pending tests can resume (or cancel) it later.
func readConsoleCall(t *testing.T, s *ServerState, host HostIO, id Identifier, pid uint32, object uint64, unicode bool, outputSize int) *MemoryTransport {
	t.Helper()
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(ApiReadConsole))
	binary.LittleEndian.PutUint32(payload[4:8], 1)
	flag := byte(0)
	if unicode {
		flag = 1
	}
	payload = append(payload, flag)

	transport := NewMemoryTransport(payload)
	req := RequestDescriptor{Identifier: id, Function: FuncUserDefined, Process: pid, Object: object, InputSize: len(payload), OutputSize: outputSize}
	if err := Dispatch(s, req, transport, host); err != nil {
		t.Fatalf("read console: %v", err)
	}
	return transport
}

func readOutputString(t *testing.T, s *ServerState, host HostIO, counter *uint32, pid uint32, object uint64, x, y, length int, attrs bool) []uint16 {
	t.Helper()
	desc := make([]byte, 13)
	binary.LittleEndian.PutUint32(desc[0:4], uint32(int32(x)))
	binary.LittleEndian.PutUint32(desc[4:8], uint32(int32(y)))
	binary.LittleEndian.PutUint32(desc[8:12], uint32(length))
	if attrs {
		desc[12] = 1
	}
	c, resp := userDefinedCall(t, s, host, counter, pid, object, ApiReadConsoleOutputString, desc, nil, length*2)
	if c.Status != StatusSuccess {
		t.Fatalf("read output string: %+v", c)
	}
	units := make([]uint16, len(resp)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(resp[i*2:])
	}
	return units
}

// ---- scenario 4: SGR reverse attribute mapping ------------------------

func TestScenarioSGRReverseAttributeMapping(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 4
	object := connectHarness(t, s, host, &counter, pid)

	writeConsoleHarness(t, s, host, &counter, pid, object, "A\x1b[7mB\x1b[27mC")

	attrs := readOutputString(t, s, host, &counter, pid, object, 0, 0, 3, true)
	want := []uint16{0x07, 0x07 | uint16(LVBReverseVideo), 0x07}
	for i, w := range want {
		if attrs[i] != w {
			t.Errorf("attr %d: expected %#x, got %#x", i, w, attrs[i])
		}
	}
}

// ---- scenario 5: alternate buffer 1049 --------------------------------

func TestScenarioAlternateBuffer1049(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 5
	object := connectHarness(t, s, host, &counter, pid)

	// Seed the main buffer: 'A' at (0,0), cursor parked at (2,1).
	writeConsoleHarness(t, s, host, &counter, pid, object, "A\x1b[2;3H")

	writeConsoleHarness(t, s, host, &counter, pid, object, "\x1b[?1049hB")
	alt := readOutputString(t, s, host, &counter, pid, object, 0, 0, 1, false)
	if alt[0] != 'B' {
		t.Errorf("expected 'B' visible at (0,0) while 1049 active, got %q", rune(alt[0]))
	}

	writeConsoleHarness(t, s, host, &counter, pid, object, "\x1b[?1049lC")
	top := readOutputString(t, s, host, &counter, pid, object, 0, 0, 1, false)
	if top[0] != 'A' {
		t.Errorf("expected main buffer (0,0)='A' after 1049 exit, got %q", rune(top[0]))
	}
	at21 := readOutputString(t, s, host, &counter, pid, object, 2, 1, 1, false)
	if at21[0] != 'C' {
		t.Errorf("expected 'C' at (2,1) after cursor restore, got %q", rune(at21[0]))
	}
}

// ---- scenario 6: DSR-CPR answered into the input queue ----------------

func TestScenarioDSRCPRAnsweredIntoInputQueue(t *testing.T) {
	host := NewStrictHostIo()
	host.SetAnswerQueries(true)
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 6
	object := connectHarness(t, s, host, &counter, pid)

	writeConsoleHarness(t, s, host, &counter, pid, object, "A\x1b[6nB")

	c, resp := rawReadCall(t, s, host, &counter, pid, object, 64)
	if c.Status != StatusSuccess {
		t.Fatalf("raw read: %+v", c)
	}
	want := "\x1b[1;2R"
	if c.Information != len(want) || string(resp[:c.Information]) != want {
		t.Errorf("expected CPR %q on the input stream, got %q", want, resp[:c.Information])
	}
}

// ---- identifier isolation ---------------------------------------------

func TestIdentifierIsolationPendingReadDoesNotBlockOthers(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 21
	object := connectHarness(t, s, host, &counter, pid)

	setModeHarness(t, s, host, &counter, pid, object, false, uint32(ModeEnableLineInput))

	idA := nextIdentifier(&counter)
	pendingTransport := readConsoleCall(t, s, host, idA, pid, object, true, 100)
	if _, ok := pendingTransport.Completion(idA); ok {
		t.Fatalf("expected read with no input to stay reply-pending")
	}

	// A write on a distinct identifier must complete while A is pending.
	writeConsoleHarness(t, s, host, &counter, pid, object, "independent")

	// And A still resumes normally when its line arrives.
	host.Feed([]byte("go\r"))
	resumed := readConsoleCall(t, s, host, idA, pid, object, true, 100)
	c, ok := resumed.Completion(idA)
	if !ok || c.Status != StatusSuccess {
		t.Fatalf("expected resumed read to complete, got %+v (ok=%v)", c, ok)
	}
	units := readConsoleUnits(resumed.Response())
	if len(units) != 3 || units[0] != 'g' || units[1] != 'o' || units[2] != 0x0D {
		t.Errorf("expected line \"go\\r\", got %v", units)
	}
}

// ---- cancellation: CLOSE_OBJECT and input disconnection ---------------

func TestCloseObjectCompletesPendingReadUnsuccessfully(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 22
	object := connectHarness(t, s, host, &counter, pid)

	setModeHarness(t, s, host, &counter, pid, object, false, uint32(ModeEnableLineInput))

	idA := nextIdentifier(&counter)
	readConsoleCall(t, s, host, idA, pid, object, true, 100)

	closeTransport := NewMemoryTransport(nil)
	closeReq := RequestDescriptor{Identifier: nextIdentifier(&counter), Function: FuncCloseObject, Process: pid, Object: object}
	if err := Dispatch(s, closeReq, closeTransport, host); err != nil {
		t.Fatalf("close object: %v", err)
	}
	c, ok := closeTransport.Completion(idA)
	if !ok || c.Status != StatusUnsuccessful || c.Information != 0 {
		t.Fatalf("expected pending read completed STATUS_UNSUCCESSFUL on close, got %+v (ok=%v)", c, ok)
	}
	cc, ok := closeTransport.Completion(closeReq.Identifier)
	if !ok || cc.Status != StatusSuccess {
		t.Fatalf("expected close itself to succeed, got %+v (ok=%v)", cc, ok)
	}
}

func TestInputDisconnectedCompletesPendingRead(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 23
	object := connectHarness(t, s, host, &counter, pid)

	setModeHarness(t, s, host, &counter, pid, object, false, uint32(ModeEnableLineInput))

	idA := nextIdentifier(&counter)
	readConsoleCall(t, s, host, idA, pid, object, true, 100)

	host.SetInputDisconnected(true)

	// Any later dispatch observes the disconnection first.
	transport := NewMemoryTransport(nil)
	req := RequestDescriptor{Identifier: nextIdentifier(&counter), Function: FuncRawFlush, Process: pid, Object: object}
	if err := Dispatch(s, req, transport, host); err != nil {
		t.Fatalf("dispatch after disconnect: %v", err)
	}
	c, ok := transport.Completion(idA)
	if !ok || c.Status != StatusUnsuccessful || c.Information != 0 {
		t.Fatalf("expected pending read completed STATUS_UNSUCCESSFUL on disconnect, got %+v (ok=%v)", c, ok)
	}
}

// ---- screen-buffer round trip without VT ------------------------------

func TestWriteConsoleRoundTripWithoutVTProcessing(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 55
	object := connectHarness(t, s, host, &counter, pid)

	setModeHarness(t, s, host, &counter, pid, object, true,
		uint32(ModeEnableProcessedOutput|ModeEnableWrapAtEOLOutput))

	const text = "round trip"
	writeConsoleHarness(t, s, host, &counter, pid, object, text)

	units := readOutputString(t, s, host, &counter, pid, object, 0, 0, len(text), false)
	for i, r := range text {
		if units[i] != uint16(r) {
			t.Errorf("cell %d: expected %q, got %q", i, r, rune(units[i]))
		}
	}
}

// ---- surrogate pair split across reads --------------------------------

func TestReadConsoleSurrogatePairSplitAcrossReads(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 31
	object := connectHarness(t, s, host, &counter, pid)

	// Raw mode: line input and processed input both off.
	setModeHarness(t, s, host, &counter, pid, object, false, 0)

	// U+1F600, one scalar, two UTF-16 units.
	host.Feed([]byte{0xF0, 0x9F, 0x98, 0x80})

	idA := nextIdentifier(&counter)
	first := readConsoleCall(t, s, host, idA, pid, object, true, 2)
	c, ok := first.Completion(idA)
	if !ok || c.Status != StatusSuccess {
		t.Fatalf("first read: %+v (ok=%v)", c, ok)
	}
	units := readConsoleUnits(first.Response())
	if len(units) != 1 || units[0] != 0xD83D {
		t.Fatalf("expected lone high surrogate 0xD83D, got %v", units)
	}

	// No new host bytes: the stored low surrogate is delivered alone.
	idB := nextIdentifier(&counter)
	second := readConsoleCall(t, s, host, idB, pid, object, true, 2)
	c, ok = second.Completion(idB)
	if !ok || c.Status != StatusSuccess {
		t.Fatalf("second read: %+v (ok=%v)", c, ok)
	}
	units = readConsoleUnits(second.Response())
	if len(units) != 1 || units[0] != 0xDE00 {
		t.Fatalf("expected stored low surrogate 0xDE00, got %v", units)
	}
}

// ---- cooked-line tail buffer and ANSI scalar boundary -----------------

func TestReadConsoleLineTailDrainsWithoutBlocking(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 32
	object := connectHarness(t, s, host, &counter, pid)

	setModeHarness(t, s, host, &counter, pid, object, false,
		uint32(ModeEnableLineInput|ModeEnableProcessedInput))

	host.Feed([]byte("abcd\r"))

	idA := nextIdentifier(&counter)
	first := readConsoleCall(t, s, host, idA, pid, object, true, 4)
	units := readConsoleUnits(first.Response())
	if len(units) != 2 || units[0] != 'a' || units[1] != 'b' {
		t.Fatalf(`expected first read to deliver "ab", got %v`, units)
	}

	idB := nextIdentifier(&counter)
	second := readConsoleCall(t, s, host, idB, pid, object, true, 4)
	units = readConsoleUnits(second.Response())
	if len(units) != 2 || units[0] != 'c' || units[1] != 'd' {
		t.Fatalf(`expected second read to deliver "cd", got %v`, units)
	}

	idC := nextIdentifier(&counter)
	third := readConsoleCall(t, s, host, idC, pid, object, true, 4)
	units = readConsoleUnits(third.Response())
	if len(units) != 2 || units[0] != 0x0D || units[1] != 0x0A {
		t.Fatalf("expected terminator CRLF, got %v", units)
	}
}

func TestReadConsoleAnsiBufferTooSmallKeepsScalar(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 33
	object := connectHarness(t, s, host, &counter, pid)

	setModeHarness(t, s, host, &counter, pid, object, false, uint32(ModeEnableLineInput))

	host.Feed([]byte{0xC3, 0xA9, 0x0D}) // "é" + CR

	// One byte of budget cannot hold é's two-byte encoding.
	idA := nextIdentifier(&counter)
	first := readConsoleCall(t, s, host, idA, pid, object, false, 1)
	c, ok := first.Completion(idA)
	if !ok || c.Status != StatusBufferTooSmall {
		t.Fatalf("expected STATUS_BUFFER_TOO_SMALL, got %+v (ok=%v)", c, ok)
	}

	// The scalar was not consumed: a retry with room gets the whole line.
	idB := nextIdentifier(&counter)
	second := readConsoleCall(t, s, host, idB, pid, object, false, 16)
	c, ok = second.Completion(idB)
	if !ok || c.Status != StatusSuccess {
		t.Fatalf("retry: %+v (ok=%v)", c, ok)
	}
	payload := second.Response()[4:]
	want := []byte{0xC3, 0xA9, 0x0D}
	if len(payload) != len(want) {
		t.Fatalf("expected %v, got %v", want, payload)
	}
	for i, b := range want {
		if payload[i] != b {
			t.Errorf("byte %d: expected %#x, got %#x", i, b, payload[i])
		}
	}
}

func TestReadConsoleLineLeavesBytesAfterTerminator(t *testing.T) {
	host := NewStrictHostIo()
	s := NewServerState(host, NoopBell{})
	var counter uint32
	const pid = 34
	object := connectHarness(t, s, host, &counter, pid)

	setModeHarness(t, s, host, &counter, pid, object, false,
		uint32(ModeEnableLineInput|ModeEnableProcessedInput))

	// Two lines arrive in one burst; each read takes exactly one.
	host.Feed([]byte("one\rtwo\r"))

	idA := nextIdentifier(&counter)
	first := readConsoleCall(t, s, host, idA, pid, object, true, 100)
	units := readConsoleUnits(first.Response())
	want := []uint16{'o', 'n', 'e', 0x0D, 0x0A}
	if len(units) != len(want) {
		t.Fatalf("first line: expected %v, got %v", want, units)
	}

	idB := nextIdentifier(&counter)
	second := readConsoleCall(t, s, host, idB, pid, object, true, 100)
	units = readConsoleUnits(second.Response())
	want = []uint16{'t', 'w', 'o', 0x0D, 0x0A}
	if len(units) != len(want) {
		t.Fatalf("second line: expected %v, got %v", want, units)
	}
	for i, w := range want {
		if units[i] != w {
			t.Errorf("unit %d: expected %#x, got %#x", i, w, units[i])
		}
	}
}
