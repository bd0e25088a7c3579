package condrv

import "encoding/binary"

// ApiNumber indexes the USER_DEFINED handler table. Values are condrv's
// own enumeration — the wire-level ApiNumber the real driver uses is
// implementation-defined and out of scope; what matters here is a flat,
// closed dispatch table per API name.
type ApiNumber uint32

const (
	ApiReadConsole ApiNumber = iota
	ApiWriteConsole
	ApiGetConsoleInput
	ApiPeekConsoleInput
	ApiWriteConsoleInput
	ApiGetNumberOfInputEvents
	ApiWriteConsoleOutput
	ApiReadConsoleOutput
	ApiFillConsoleOutput
	ApiReadConsoleOutputString
	ApiWriteConsoleOutputString
	ApiScrollConsoleScreenBuffer
	ApiSetTitle
	ApiGetTitle
	ApiSetCP
	ApiGetCP
	ApiSetMode
	ApiGetMode
	ApiSetCursorInfo
	ApiGetCursorInfo
	ApiSetScreenBufferSize
	ApiAddAlias
	ApiGetAlias
	ApiGetAliasesLength
	ApiGetAliases
	ApiGetAliasExesLength
	ApiGetAliasExes

	// apiDeprecatedBase marks the start of the deprecated range (VDM,
	// bitmap, icon, palette, hardware state, menu, show cursor, map
	// bitmap): every ApiNumber at or above this value completes with
	// STATUS_NOT_IMPLEMENTED and a zero-filled descriptor, without
	// condrv needing to enumerate each deprecated name individually.
	apiDeprecatedBase
)

// UserDefinedHeader is the fixed header every USER_DEFINED payload
// begins with.
type UserDefinedHeader struct {
	ApiNumber         ApiNumber
	ApiDescriptorSize uint32
}

// ApiRequest is everything a USER_DEFINED handler needs: the descriptor
// bytes (first ApiDescriptorSize bytes of the payload) and the inline input
// payload that follows them.
type ApiRequest struct {
	Descriptor    []byte
	InlinePayload []byte
	OutputSize    int // the client's output_size budget
}

// ApiResponse is what a handler produces: the response descriptor (must be
// exactly ApiDescriptorSize bytes when status is StatusNotImplemented)
// plus an optional inline output payload, and the completion status.
type ApiResponse struct {
	Status        Status
	Information   int
	Descriptor    []byte
	InlinePayload []byte
	// ReplyPending, when true, means the handler stored continuation state
	// on the handle and dispatch must not write a completion at all —
	// Status/Information/Descriptor are ignored.
	ReplyPending  bool
}

// apiHandler is the per-ApiNumber handler signature. iid/oid are the input
// and output handles bound to the connection that made the request — most
// handlers need only one of the two.
type apiHandler func(s *ServerState, iid InputHandleID, oid OutputHandleID, req ApiRequest) ApiResponse

var apiHandlers = map[ApiNumber]apiHandler{
	ApiReadConsole:               handleReadConsole,
	ApiWriteConsole:              handleWriteConsole,
	ApiGetConsoleInput:           handleGetConsoleInput,
	ApiPeekConsoleInput:          handlePeekConsoleInput,
	ApiWriteConsoleInput:         handleWriteConsoleInput,
	ApiGetNumberOfInputEvents:    handleGetNumberOfInputEvents,
	ApiWriteConsoleOutput:        handleWriteConsoleOutput,
	ApiReadConsoleOutput:         handleReadConsoleOutput,
	ApiFillConsoleOutput:         handleFillConsoleOutput,
	ApiReadConsoleOutputString:   handleReadConsoleOutputString,
	ApiWriteConsoleOutputString:  handleWriteConsoleOutputString,
	ApiScrollConsoleScreenBuffer: handleScrollConsoleScreenBuffer,
	ApiSetTitle:                  handleSetTitle,
	ApiGetTitle:                  handleGetTitle,
	ApiSetCP:                     handleSetCP,
	ApiGetCP:                     handleGetCP,
	ApiSetMode:                   handleSetMode,
	ApiGetMode:                   handleGetMode,
	ApiSetCursorInfo:             handleSetCursorInfo,
	ApiGetCursorInfo:             handleGetCursorInfo,
	ApiSetScreenBufferSize:       handleSetScreenBufferSize,
	ApiAddAlias:                  handleAddAlias,
	ApiGetAlias:                  handleGetAlias,
	ApiGetAliasesLength:          handleGetAliasesLength,
	ApiGetAliases:                handleGetAliases,
	ApiGetAliasExesLength:        handleGetAliasExesLength,
	ApiGetAliasExes:              handleGetAliasExes,
}

// Dispatch services one request descriptor against the server state.
// transport is used to pull the request payload and push the completion;
// the caller (the connection's read loop) is expected to call Dispatch
// again with the same Identifier to resume a reply-pending request, per
// the Reply-pending protocol.
func Dispatch(s *ServerState, req RequestDescriptor, transport Transport, host HostIO) error {
	s.log.Debug("dispatch", "function", int(req.Function), "object", req.Object, "id", req.Identifier.LowPart)

	// Input disconnection is observed between dispatches:
	// every reply-pending read completes unsuccessfully before the current
	// request is even looked at.
	if host != nil && host.InputDisconnected() {
		for _, id := range s.takeAllPendingReads() {
			if err := transport.CompleteIO(id, Completion{Status: StatusUnsuccessful}); err != nil {
				return WrapError("Dispatch", KindTransport, err)
			}
		}
	}

	switch req.Function {
	case FuncConnect:
		return dispatchConnect(s, req, transport)
	case FuncDisconnect:
		return dispatchDisconnect(s, req, transport)
	case FuncCreateObject:
		return dispatchCreateObject(s, req, transport)
	case FuncCloseObject:
		return dispatchCloseObject(s, req, transport)
	case FuncRawRead:
		return dispatchRawRead(s, req, transport, host)
	case FuncRawWrite:
		return dispatchRawWrite(s, req, transport)
	case FuncRawFlush:
		return dispatchRawFlush(s, req, transport, host)
	case FuncUserDefined:
		return dispatchUserDefined(s, req, transport)
	default:
		return completeWith(transport, req.Identifier, Completion{Status: StatusInvalidParameter})
	}
}

func completeWith(transport Transport, id Identifier, c Completion) error {
	return transport.CompleteIO(id, c)
}

func dispatchConnect(s *ServerState, req RequestDescriptor, transport Transport) error {
	payload := make([]byte, req.InputSize)
	if req.InputSize > 0 {
		if _, err := transport.ReadInput(IoOperation{Data: payload, Size: req.InputSize, Offset: 0}); err != nil {
			return WrapError("Connect", KindTransport, err)
		}
	}
	width, height := 80, 25
	if len(payload) >= 8 {
		width = int(binary.LittleEndian.Uint32(payload[0:4]))
		height = int(binary.LittleEndian.Uint32(payload[4:8]))
	}

	cid, iid, oid := s.Connect(req.Process, 0, width, height)

	out := make([]byte, 24)
	binary.LittleEndian.PutUint64(out[0:8], uint64(cid))
	binary.LittleEndian.PutUint64(out[8:16], uint64(iid))
	binary.LittleEndian.PutUint64(out[16:24], uint64(oid))

	if _, err := transport.WriteOutput(IoOperation{Data: out, Size: len(out), Offset: 0}); err != nil {
		return WrapError("Connect", KindTransport, err)
	}
	return completeWith(transport, req.Identifier, Completion{Status: StatusSuccess, Information: len(out)})
}

func dispatchDisconnect(s *ServerState, req RequestDescriptor, transport Transport) error {
	s.Disconnect(ConnectionID(req.Object))
	return completeWith(transport, req.Identifier, Completion{Status: StatusSuccess})
}

func dispatchCreateObject(s *ServerState, req RequestDescriptor, transport Transport) error {
	// req.InputSize==0 requests an input handle; any non-empty payload
	// requests an output handle. The payload's first byte is not inspected;
	// bytes 1-8 carry width/height.
	if req.InputSize == 0 {
		iid, ok := s.CreateInputHandle(ConnectionID(req.Object))
		if !ok {
			return completeWith(transport, req.Identifier, Completion{Status: StatusInvalidHandle})
		}
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, uint64(iid))
		transport.WriteOutput(IoOperation{Data: out, Size: len(out), Offset: 0})
		return completeWith(transport, req.Identifier, Completion{Status: StatusSuccess, Information: len(out)})
	}

	payload := make([]byte, req.InputSize)
	transport.ReadInput(IoOperation{Data: payload, Size: req.InputSize, Offset: 0})
	width, height := 80, 25
	if len(payload) >= 9 {
		width = int(binary.LittleEndian.Uint32(payload[1:5]))
		height = int(binary.LittleEndian.Uint32(payload[5:9]))
	}
	oid, ok := s.CreateOutputHandle(ConnectionID(req.Object), width, height)
	if !ok {
		return completeWith(transport, req.Identifier, Completion{Status: StatusInvalidHandle})
	}
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(oid))
	transport.WriteOutput(IoOperation{Data: out, Size: len(out), Offset: 0})
	return completeWith(transport, req.Identifier, Completion{Status: StatusSuccess, Information: len(out)})
}

func dispatchCloseObject(s *ServerState, req RequestDescriptor, transport Transport) error {
	if ih, ok := s.Input(InputHandleID(req.Object)); ok {
		// A read still pending on this handle completes unsuccessfully
		// before the handle goes away.
		for _, id := range s.takePendingReadsFor(InputHandleID(req.Object)) {
			if err := transport.CompleteIO(id, Completion{Status: StatusUnsuccessful}); err != nil {
				return WrapError("CloseObject", KindTransport, err)
			}
		}
		ih.Reset()
		s.CloseInputHandle(InputHandleID(req.Object))
		return completeWith(transport, req.Identifier, Completion{Status: StatusSuccess})
	}
	if s.CloseOutputHandle(OutputHandleID(req.Object)) {
		return completeWith(transport, req.Identifier, Completion{Status: StatusSuccess})
	}
	return completeWith(transport, req.Identifier, Completion{Status: StatusInvalidHandle})
}

func dispatchRawRead(s *ServerState, req RequestDescriptor, transport Transport, host HostIO) error {
	ih, ok := s.Input(InputHandleID(req.Object))
	if !ok {
		return completeWith(transport, req.Identifier, Completion{Status: StatusInvalidHandle})
	}
	if host.InputDisconnected() {
		return completeWith(transport, req.Identifier, Completion{Status: StatusUnsuccessful})
	}
	drainHostBytes(ih, host)

	budget := req.OutputSize
	pending := ih.PendingBytes()
	if len(pending) > budget {
		pending = pending[:budget]
	}
	if len(pending) > 0 {
		transport.WriteOutput(IoOperation{Data: pending, Size: len(pending), Offset: 0})
		ih.ConsumeFront(len(pending))
	}
	return completeWith(transport, req.Identifier, Completion{Status: StatusSuccess, Information: len(pending)})
}

func dispatchRawWrite(s *ServerState, req RequestDescriptor, transport Transport) error {
	oh, ok := s.Output(OutputHandleID(req.Object))
	if !ok {
		return completeWith(transport, req.Identifier, Completion{Status: StatusInvalidHandle})
	}
	payload := make([]byte, req.InputSize)
	if req.InputSize > 0 {
		transport.ReadInput(IoOperation{Data: payload, Size: req.InputSize, Offset: 0})
	}
	writeConsoleBytes(oh, payload)
	return completeWith(transport, req.Identifier, Completion{Status: StatusSuccess, Information: len(payload)})
}

func dispatchRawFlush(s *ServerState, req RequestDescriptor, transport Transport, host HostIO) error {
	ih, ok := s.Input(InputHandleID(req.Object))
	if !ok {
		return completeWith(transport, req.Identifier, Completion{Status: StatusInvalidHandle})
	}
	ih.Reset()
	host.FlushInputBuffer()
	return completeWith(transport, req.Identifier, Completion{Status: StatusSuccess})
}

func dispatchUserDefined(s *ServerState, req RequestDescriptor, transport Transport) error {
	header := make([]byte, 8)
	if _, err := transport.ReadInput(IoOperation{Data: header, Size: 8, Offset: 0}); err != nil {
		return WrapError("UserDefined", KindTransport, err)
	}
	api := ApiNumber(binary.LittleEndian.Uint32(header[0:4]))
	descSize := binary.LittleEndian.Uint32(header[4:8])

	desc := make([]byte, descSize)
	if descSize > 0 {
		transport.ReadInput(IoOperation{Data: desc, Size: int(descSize), Offset: 8})
	}
	inlineSize := req.InputSize - 8 - int(descSize)
	var inline []byte
	if inlineSize > 0 {
		inline = make([]byte, inlineSize)
		transport.ReadInput(IoOperation{Data: inline, Size: inlineSize, Offset: 8 + int(descSize)})
	}

	if api >= apiDeprecatedBase {
		s.log.Warn("deprecated api", "api", uint32(api))
		zero := make([]byte, descSize)
		transport.WriteOutput(IoOperation{Data: zero, Size: len(zero), Offset: 0})
		return completeWith(transport, req.Identifier, Completion{Status: StatusNotImplemented, Information: 0})
	}

	handler, ok := apiHandlers[api]
	if !ok {
		s.log.Warn("unknown api", "api", uint32(api))
		zero := make([]byte, descSize)
		transport.WriteOutput(IoOperation{Data: zero, Size: len(zero), Offset: 0})
		return completeWith(transport, req.Identifier, Completion{Status: StatusNotImplemented, Information: 0})
	}

	iid, oid := connectionHandlesFor(s, req.Object)
	resp := handler(s, iid, oid, ApiRequest{Descriptor: desc, InlinePayload: inline, OutputSize: req.OutputSize})
	if resp.ReplyPending {
		s.registerPendingRead(req.Identifier, iid)
		return nil
	}
	s.clearPendingRead(req.Identifier)

	out := append(append([]byte(nil), resp.Descriptor...), resp.InlinePayload...)
	if len(out) > 0 {
		transport.WriteOutput(IoOperation{Data: out, Size: len(out), Offset: 0})
	}
	return completeWith(transport, req.Identifier, Completion{Status: resp.Status, Information: resp.Information})
}

// connectionHandlesFor resolves req.Object to an (InputHandleID,
// OutputHandleID) pair. The two arenas advance their counters in lockstep
// at Connect, so a connection's default object id resolves in both: the
// input arena yields its input handle and the output arena its output
// handle. A handler looks up whichever role it needs and ignores the
// other; a lookup in the wrong arena simply misses and the handler fails
// with STATUS_INVALID_HANDLE.
func connectionHandlesFor(s *ServerState, object uint64) (InputHandleID, OutputHandleID) {
	return InputHandleID(object), OutputHandleID(object)
}

// drainHostBytes pulls everything currently available from host into ih's
// pending-bytes retention buffer.
func drainHostBytes(ih *InputHandle, host HostIO) {
	n := host.InputBytesAvailable()
	if n <= 0 {
		return
	}
	buf := make([]byte, n)
	read, err := host.ReadInputBytes(buf)
	if err != nil || read <= 0 {
		return
	}
	ih.AppendPendingBytes(buf[:read])
}

// writeConsoleBytes decodes payload (already in the output handle's active
// code page) to UTF-16 and feeds it through the VT interpreter, or
// falls back to classic console semantics when
// ENABLE_VIRTUAL_TERMINAL_PROCESSING is off for the handle.
func writeConsoleBytes(oh *OutputHandle, payload []byte) {
	units, _ := oh.Codec.Decode(payload, nil)
	if oh.Mode()&ModeEnableVirtualTerminalProcessing == 0 {
		writeConsoleRaw(oh, units)
		return
	}
	oh.Decoder.WriteUTF16(units)
}

// writeConsoleRaw implements the degraded (VT-off) mode: printable
// writes, CR/LF/BS/HT get classic console handling,
// everything else is written verbatim as a glyph.
func writeConsoleRaw(oh *OutputHandle, units []uint16) {
	h := oh.Handler
	for _, u := range units {
		switch u {
		case 0x0D:
			h.CarriageReturn()
		case 0x0A:
			h.LineFeed()
		case 0x08:
			h.Backspace()
		case 0x09:
			h.Tab(1)
		default:
			h.Input(rune(u))
		}
	}
}
