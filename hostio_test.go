package condrv

import "time"

// EndTaskCall records one SendEndTask invocation observed by StrictHostIo.
type EndTaskCall struct {
	PID   uint32
	Event ConsoleCtrlEvent
	Flags uint32
}

// StrictHostIo is the HostIO test double condrv's scenario tests dispatch
// against: a byte queue fed via Feed/InjectInputBytes, an injected-bytes
// log so VT query replies can be asserted independently of the queue's
// eventual consumption, and a call log for SendEndTask so tests can assert
// exact firing counts for Ctrl+C/Ctrl+Break.
type StrictHostIo struct {
	input         []byte
	output        []byte
	injected      [][]byte
	endTasks      []EndTaskCall
	answerQueries bool
	disconnected  bool
}

func NewStrictHostIo() *StrictHostIo {
	return &StrictHostIo{}
}

// Feed appends b to the pending input queue, as if the host's connected
// process had just produced it.
func (h *StrictHostIo) Feed(b []byte) {
	h.input = append(h.input, b...)
}

func (h *StrictHostIo) WriteOutputBytes(span []byte) (int, error) {
	h.output = append(h.output, span...)
	return len(span), nil
}

func (h *StrictHostIo) ReadInputBytes(span []byte) (int, error) {
	n := copy(span, h.input)
	h.input = h.input[n:]
	return n, nil
}

func (h *StrictHostIo) PeekInputBytes(span []byte) (int, error) {
	return copy(span, h.input), nil
}

func (h *StrictHostIo) InputBytesAvailable() int {
	return len(h.input)
}

func (h *StrictHostIo) InjectInputBytes(span []byte) bool {
	cp := append([]byte(nil), span...)
	h.injected = append(h.injected, cp)
	h.input = append(h.input, cp...)
	return true
}

func (h *StrictHostIo) FlushInputBuffer() {
	h.input = nil
}

func (h *StrictHostIo) VTShouldAnswerQueries() bool {
	return h.answerQueries
}

// SetAnswerQueries controls VTShouldAnswerQueries' return value.
func (h *StrictHostIo) SetAnswerQueries(v bool) {
	h.answerQueries = v
}

func (h *StrictHostIo) WaitForInput(time.Duration) (bool, error) {
	return len(h.input) > 0, nil
}

func (h *StrictHostIo) InputDisconnected() bool {
	return h.disconnected
}

// SetInputDisconnected controls InputDisconnected's return value.
func (h *StrictHostIo) SetInputDisconnected(v bool) {
	h.disconnected = v
}

func (h *StrictHostIo) SendEndTask(pid uint32, event ConsoleCtrlEvent, flags uint32) error {
	h.endTasks = append(h.endTasks, EndTaskCall{PID: pid, Event: event, Flags: flags})
	return nil
}

// EndTasks returns every SendEndTask call observed so far.
func (h *StrictHostIo) EndTasks() []EndTaskCall {
	return h.endTasks
}

// Injected returns every InjectInputBytes payload observed so far.
func (h *StrictHostIo) Injected() [][]byte {
	return h.injected
}

// Output returns everything written via WriteOutputBytes so far.
func (h *StrictHostIo) Output() []byte {
	return h.output
}

var _ HostIO = (*StrictHostIo)(nil)
