package condrv

import "time"

// HostIO is the host-I/O collaborator: the boundary between the
// dispatcher and whatever owns the real input queue and console host
// process. Implementations are injected by the surrounding process; condrv
// never talks to a real OS console directly.
type HostIO interface {
	// WriteOutputBytes delivers span to the host's output sink (e.g. a
	// connected pipe or pane), returning the count actually written.
	WriteOutputBytes(span []byte) (int, error)
	// ReadInputBytes copies up to len(span) bytes from the host's input
	// stream, consuming them.
	ReadInputBytes(span []byte) (int, error)
	// PeekInputBytes copies up to len(span) bytes without consuming them.
	PeekInputBytes(span []byte) (int, error)
	// InputBytesAvailable returns the number of unconsumed input bytes.
	InputBytesAvailable() int
	// InjectInputBytes prepends or appends span to the host's logical input
	// stream (used for DSR-CPR replies). Returns false if the host refused.
	InjectInputBytes(span []byte) bool
	// FlushInputBuffer discards all unconsumed input bytes.
	FlushInputBuffer()
	// VTShouldAnswerQueries reports whether the host wants the VT
	// interpreter to answer query sequences like DSR-CPR.
	VTShouldAnswerQueries() bool
	// WaitForInput blocks up to the given duration for input to become
	// ready, or returns immediately if input is already available.
	WaitForInput(timeout time.Duration) (ready bool, err error)
	// InputDisconnected reports whether the input side has been torn down.
	InputDisconnected() bool
	// SendEndTask delivers a console control event (CTRL_C_EVENT,
	// CTRL_BREAK_EVENT) to the given process.
	SendEndTask(pid uint32, event ConsoleCtrlEvent, flags uint32) error
}

// ConsoleCtrlEvent identifies the control event delivered by SendEndTask.
type ConsoleCtrlEvent int

const (
	CtrlCEvent ConsoleCtrlEvent = iota
	CtrlBreakEvent
)

// NoopHostIO answers every query negatively and every read with nothing.
// Useful as an embeddable base for partial host implementations.
type NoopHostIO struct{}

func (NoopHostIO) WriteOutputBytes(span []byte) (int, error) { return len(span), nil }
func (NoopHostIO) ReadInputBytes([]byte) (int, error) { return 0, nil }
func (NoopHostIO) PeekInputBytes([]byte) (int, error) { return 0, nil }
func (NoopHostIO) InputBytesAvailable() int { return 0 }
func (NoopHostIO) InjectInputBytes([]byte) bool { return false }
func (NoopHostIO) FlushInputBuffer() {}
func (NoopHostIO) VTShouldAnswerQueries() bool { return false }
func (NoopHostIO) WaitForInput(time.Duration) (bool, error) { return false, nil }
func (NoopHostIO) InputDisconnected() bool { return false }
func (NoopHostIO) SendEndTask(uint32, ConsoleCtrlEvent, uint32) error { return nil }

var _ HostIO = NoopHostIO{}
