package condrv

// Identifier is the unique per-request continuation key: also used
// to correlate a reply-pending request with its resumption.
type Identifier struct {
	LowPart, HighPart uint32
}

// FunctionCode is the dispatcher-level operation requested.
type FunctionCode int

const (
	FuncConnect FunctionCode = iota
	FuncDisconnect
	FuncCreateObject
	FuncCloseObject
	FuncRawRead
	FuncRawWrite
	FuncRawFlush
	FuncUserDefined
)

// RequestDescriptor is the packet header the transport hands the dispatcher
// for every request.
type RequestDescriptor struct {
	Identifier Identifier
	Function   FunctionCode
	Process    uint32 // PID of requesting client
	Object     uint64 // handle id for this connection
	InputSize  int    // bytes available to read via ReadInput
	OutputSize int    // maximum bytes the client provided for the response
}

// IoOperation describes a buffer-relative read or write against the
// transport's request/response payload.
type IoOperation struct {
	Data   []byte
	Size   int
	Offset int
}

// Completion is the record finalized via Transport.CompleteIO.
type Completion struct {
	Status      Status
	Information int // byte count meaningful to the client
	Write       struct {
		Data []byte
		Size int
	}
}

// Transport is the collaborator that owns the wire-level request/response
// payload. Every method may fail with a *DeviceCommError; the
// dispatcher treats that as a soft failure it cannot turn into a completion
// at all, as opposed to a Status value on a completion.
type Transport interface {
	// ReadInput copies op.Size bytes from the request payload at op.Offset
	// into op.Data.
	ReadInput(op IoOperation) (int, error)
	// WriteOutput copies op.Size bytes from op.Data into the response
	// payload at op.Offset, growing the payload if needed.
	WriteOutput(op IoOperation) (int, error)
	// CompleteIO finalizes the request with the given completion record.
	CompleteIO(id Identifier, completion Completion) error
}

// NoopTransport discards writes and completions and never has input ready;
// useful as an embeddable base, not as a real test double (see
// transport_test.go's MemoryTransport for that).
type NoopTransport struct{}

func (NoopTransport) ReadInput(IoOperation) (int, error) { return 0, nil }
func (NoopTransport) WriteOutput(op IoOperation) (int, error) { return op.Size, nil }
func (NoopTransport) CompleteIO(Identifier, Completion) error { return nil }

var _ Transport = NoopTransport{}
