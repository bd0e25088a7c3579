package condrv

import (
	"strconv"
	"unicode/utf16"
)

// KeyEvent mirrors the Win32 INPUT_RECORD KEY_EVENT payload.
type KeyEvent struct {
	KeyDown         bool
	RepeatCount     uint16
	VirtualKeyCode  uint16
	VirtualScanCode uint16
	UnicodeChar     uint16
	ControlKeyState uint32
}

// Control-key-state bits referenced by the special classification rules;
// only the ones the parser itself inspects are named here.
const (
	LeftCtrlPressed  uint32 = 0x0008
	RightCtrlPressed uint32 = 0x0004
)

// Virtual key codes the parser and line editor reference directly.
const (
	VkCancel uint16 = 0x03
	VkLeft   uint16 = 0x25
	VkHome   uint16 = 0x24
	VkUp     uint16 = 0x26
	VkRight  uint16 = 0x27
	VkEnd    uint16 = 0x23
	VkDown   uint16 = 0x28
	VkInsert uint16 = 0x2D
	VkDelete uint16 = 0x2E
	VkEscape uint16 = 0x1B
	VkBack   uint16 = 0x08
)

// ParseOutcome classifies what ParseInput found at the front of a byte
// stream.
type ParseOutcome int

const (
	// OutcomeIncomplete means the prefix could still extend into a longer
	// recognized form; no bytes were consumed and the caller must retain
	// them in pending_input_bytes and wait for more.
	OutcomeIncomplete ParseOutcome = iota
	// OutcomeKeyEvent means a KeyEvent was produced (printable or Win32
	// input-mode record).
	OutcomeKeyEvent
	// OutcomeDropped means a recognized sequence with no input-record
	// effect was consumed (DA response, focus in/out, unrecognized CSI).
	OutcomeDropped
	// OutcomeCtrlC means Ctrl+C was recognized and must not be delivered
	// to the reader; the caller invokes HostIO.SendEndTask(CtrlCEvent).
	OutcomeCtrlC
	// OutcomeCtrlBreak means the Ctrl+Break variant was recognized; the
	// caller invokes SendEndTask(CtrlBreakEvent), flushes the input queue,
	// and completes the current read with StatusAlerted.
	OutcomeCtrlBreak
	// OutcomeCtrlZ means Ctrl+Z was recognized in a processed raw read;
	// the caller completes the read with zero bytes delivered (EOF).
	OutcomeCtrlZ
)

// ParseResult is the output of one ParseInput call.
type ParseResult struct {
	Outcome  ParseOutcome
	Consumed int // bytes consumed from the front of the input, 0 if Incomplete
	Key      KeyEvent

	// Low is the low surrogate when the decoded scalar is above the BMP:
	// Key.UnicodeChar then carries the high half, and the pair is delivered
	// as two consecutive UTF-16 units (or two key events), never rejoined.
	Low uint16
}

// ParseInput classifies the prefix of in. It never looks past the
// prefix needed to make a decision and never consumes bytes on an
// Incomplete outcome, matching the "strictly drained from the front; no
// seeks" invariant.
//
// processedInput gates the Ctrl+C/Ctrl+Break/Ctrl+Z special classification,
// mirroring ENABLE_PROCESSED_INPUT.
func ParseInput(in []byte, processedInput bool) ParseResult {
	if len(in) == 0 {
		return ParseResult{Outcome: OutcomeIncomplete}
	}

	b0 := in[0]

	if b0 == 0x1B {
		return parseEscapeSequence(in, processedInput)
	}

	if processedInput && b0 == 0x03 {
		return ParseResult{Outcome: OutcomeCtrlC, Consumed: 1}
	}
	if processedInput && b0 == 0x1A {
		return ParseResult{Outcome: OutcomeCtrlZ, Consumed: 1}
	}

	return parseUTF8Printable(in)
}

func parseUTF8Printable(in []byte) ParseResult {
	size := utf8SequenceLen(in[0])
	if size == 0 {
		// Not a valid UTF-8 lead byte: emit the byte as-is (Latin-1-ish
		// fallback for a misconfigured stream) rather than stall forever.
		return ParseResult{
			Outcome:  OutcomeKeyEvent,
			Consumed: 1,
			Key: KeyEvent{
				KeyDown:     true,
				RepeatCount: 1,
				UnicodeChar: uint16(in[0]),
			},
		}
	}
	if len(in) < size {
		return ParseResult{Outcome: OutcomeIncomplete}
	}
	r, n := decodeUTF8Rune(in[:size])
	if r >= 0x10000 {
		hi, lo := utf16.EncodeRune(r)
		return ParseResult{
			Outcome:  OutcomeKeyEvent,
			Consumed: n,
			Key: KeyEvent{
				KeyDown:     true,
				RepeatCount: 1,
				UnicodeChar: uint16(hi),
			},
			Low: uint16(lo),
		}
	}
	return ParseResult{
		Outcome:  OutcomeKeyEvent,
		Consumed: n,
		Key: KeyEvent{
			KeyDown:     true,
			RepeatCount: 1,
			UnicodeChar: uint16(r),
		},
	}
}

func utf8SequenceLen(lead byte) int {
	switch {
	case lead < 0x80:
		return 1
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		return 0
	}
}

func decodeUTF8Rune(b []byte) (rune, int) {
	switch len(b) {
	case 1:
		return rune(b[0]), 1
	case 2:
		return rune(b[0]&0x1F)<<6 | rune(b[1]&0x3F), 2
	case 3:
		return rune(b[0]&0x0F)<<12 | rune(b[1]&0x3F)<<6 | rune(b[2]&0x3F), 3
	case 4:
		return rune(b[0]&0x07)<<18 | rune(b[1]&0x3F)<<12 | rune(b[2]&0x3F)<<6 | rune(b[3]&0x3F), 4
	default:
		return 0, len(b)
	}
}

// parseEscapeSequence handles every form that begins with ESC: Win32
// input-mode records, DA/focus sequences with a side effect but no record,
// and unrecognized CSI sequences (dropped).
func parseEscapeSequence(in []byte, processedInput bool) ParseResult {
	if len(in) < 2 {
		return ParseResult{Outcome: OutcomeIncomplete}
	}
	if in[1] != '[' {
		// A bare ESC not followed by CSI has no meaning to the input
		// parser (output-side escapes are the VT interpreter's concern);
		// treat it as a printable Escape key.
		return ParseResult{
			Outcome:  OutcomeKeyEvent,
			Consumed: 1,
			Key:      KeyEvent{KeyDown: true, RepeatCount: 1, UnicodeChar: 0x1B, VirtualKeyCode: VkEscape},
		}
	}
	if len(in) < 3 {
		return ParseResult{Outcome: OutcomeIncomplete}
	}

	// Focus in/out: ESC [ I / ESC [ O.
	if in[2] == 'I' || in[2] == 'O' {
		return ParseResult{Outcome: OutcomeDropped, Consumed: 3}
	}

	// Primary device attributes response: ESC [ ? ... c.
	if in[2] == '?' {
		end := findFinalByte(in[3:], 'c')
		if end < 0 {
			return ParseResult{Outcome: OutcomeIncomplete}
		}
		return ParseResult{Outcome: OutcomeDropped, Consumed: 3 + end + 1}
	}

	// Win32 input-mode record: ESC [ Vk;Sc;Uc;Kd;Cs;Rc _
	// or the unrecognized-CSI fallback, whichever final byte comes first.
	end := findCSIFinal(in[2:])
	if end < 0 {
		return ParseResult{Outcome: OutcomeIncomplete}
	}
	final := in[2+end]
	body := in[2 : 2+end]
	consumed := 2 + end + 1

	if final == '_' {
		key, ok := parseWin32InputRecord(body)
		if !ok {
			return ParseResult{Outcome: OutcomeDropped, Consumed: consumed}
		}
		if processedInput {
			if outcome, isSpecial := classifySpecialControl(key); isSpecial {
				return ParseResult{Outcome: outcome, Consumed: consumed}
			}
		}
		return ParseResult{Outcome: OutcomeKeyEvent, Consumed: consumed, Key: key}
	}

	// Any other final byte: an unrecognized CSI sequence, consumed and
	// dropped, never delivered as printable characters.
	return ParseResult{Outcome: OutcomeDropped, Consumed: consumed}
}

// findFinalByte scans for a single expected final byte, returning its
// offset within in, or -1 if not yet present.
func findFinalByte(in []byte, final byte) int {
	for i, b := range in {
		if b == final {
			return i
		}
	}
	return -1
}

// findCSIFinal scans a CSI sequence body (after "ESC [") for its final byte
// — any byte in 0x40-0x7E per the DEC VT state table — returning its offset,
// or -1 if the sequence is not yet complete.
func findCSIFinal(in []byte) int {
	for i, b := range in {
		if b >= 0x40 && b <= 0x7E {
			return i
		}
	}
	return -1
}

// classifySpecialControl implements the Ctrl+C/Ctrl+Break recognition
// over an already-decoded Win32 input-mode key record.
func classifySpecialControl(key KeyEvent) (ParseOutcome, bool) {
	if key.UnicodeChar == 0x03 {
		return OutcomeCtrlC, true
	}
	if key.ControlKeyState&(LeftCtrlPressed|RightCtrlPressed) != 0 && key.VirtualKeyCode == VkCancel {
		return OutcomeCtrlBreak, true
	}
	return 0, false
}

// parseWin32InputRecord decodes the six semicolon-separated parameters of
// "ESC [ Vk;Sc;Uc;Kd;Cs;Rc _". A missing parameter means 0.
func parseWin32InputRecord(body []byte) (KeyEvent, bool) {
	fields := splitSemicolon(body)
	if len(fields) > 6 {
		return KeyEvent{}, false
	}
	var nums [6]int
	for i, f := range fields {
		if len(f) == 0 {
			continue
		}
		n, err := strconv.Atoi(string(f))
		if err != nil {
			return KeyEvent{}, false
		}
		nums[i] = n
	}
	return KeyEvent{
		VirtualKeyCode:  uint16(nums[0]),
		VirtualScanCode: uint16(nums[1]),
		UnicodeChar:     uint16(nums[2]),
		KeyDown:         nums[3] != 0,
		ControlKeyState: uint32(nums[4]),
		RepeatCount:     uint16(nums[5]),
	}, true
}

func splitSemicolon(body []byte) [][]byte {
	if len(body) == 0 {
		return nil
	}
	var fields [][]byte
	start := 0
	for i, b := range body {
		if b == ';' {
			fields = append(fields, body[start:i])
			start = i + 1
		}
	}
	fields = append(fields, body[start:])
	return fields
}
