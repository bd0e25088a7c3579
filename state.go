package condrv

import (
	"sync"

	"github.com/opencondrv/condrv/internal/corelog"
)

// ConnectionID, InputHandleID and OutputHandleID are arena indices into
// ServerState: connections, handles, and screen buffers are reached by
// index, never by cross-owning pointers. They are distinct types so a
// handle id can never be mistaken for a connection id at a call site.
type ConnectionID uint64
type InputHandleID uint64
type OutputHandleID uint64

// ServerState is the single mutable root: connection table, handle table,
// mode flags, code pages, titles, alias
// store, and the screen-buffer arena. It is passed explicitly to every
// handler; there is no ambient singleton.
type ServerState struct {
	mu sync.Mutex

	nextConn   ConnectionID
	nextInput  InputHandleID
	nextOutput OutputHandleID

	connections map[ConnectionID]*Connection
	inputs      map[InputHandleID]*InputHandle
	outputs     map[OutputHandleID]*OutputHandle

	// connInputs/connOutputs let DISCONNECT find every handle id a
	// connection owns without scanning the whole arena.
	connInputs  map[ConnectionID][]InputHandleID
	connOutputs map[ConnectionID][]OutputHandleID

	// pendingReads is the reply-pending ledger: every identifier
	// currently held without a completion, keyed back to the input handle
	// its continuation lives on so CLOSE_OBJECT and input disconnection can
	// complete it unsuccessfully.
	pendingReads map[Identifier]InputHandleID

	title, originalTitle string

	aliases *AliasStore

	host HostIO
	bell BellProvider
	log  *corelog.Logger
}

// NewServerState returns an empty server with the given host-I/O
// collaborator and bell provider. ServerState itself starts empty;
// the implicit default handles are allocated by Connect (see dispatch.go).
func NewServerState(host HostIO, bell BellProvider) *ServerState {
	s := &ServerState{
		connections:  make(map[ConnectionID]*Connection),
		inputs:       make(map[InputHandleID]*InputHandle),
		outputs:      make(map[OutputHandleID]*OutputHandle),
		connInputs:   make(map[ConnectionID][]InputHandleID),
		connOutputs:  make(map[ConnectionID][]OutputHandleID),
		pendingReads: make(map[Identifier]InputHandleID),
		aliases:      NewAliasStore(),
		host:         host,
		bell:         bell,
		log:          corelog.Default(),
	}
	return s
}

// registerPendingRead reserves id in the reply-pending ledger: the
// dispatcher holds at most one in-flight request per identifier.
func (s *ServerState) registerPendingRead(id Identifier, iid InputHandleID) {
	s.mu.Lock()
	s.pendingReads[id] = iid
	s.mu.Unlock()
}

// clearPendingRead releases id from the ledger once a completion was written.
func (s *ServerState) clearPendingRead(id Identifier) {
	s.mu.Lock()
	delete(s.pendingReads, id)
	s.mu.Unlock()
}

// takePendingReadsFor removes and returns every ledger identifier whose
// continuation lives on iid; takeAllPendingReads covers the
// disconnect-everything case.
func (s *ServerState) takePendingReadsFor(iid InputHandleID) []Identifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Identifier
	for id, owner := range s.pendingReads {
		if owner == iid {
			out = append(out, id)
			delete(s.pendingReads, id)
		}
	}
	return out
}

// takeAllPendingReads drains the whole ledger (input disconnected).
func (s *ServerState) takeAllPendingReads() []Identifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Identifier
	for id := range s.pendingReads {
		out = append(out, id)
		delete(s.pendingReads, id)
	}
	return out
}

// titleProviderFunc adapts ServerState itself into a TitleProvider so
// ConsoleHandler's OSC title updates land directly in ServerState's title
// field instead of a separate, easily-desynchronized copy.
type titleProviderFunc func(string)

func (f titleProviderFunc) TitleChanged(title string) { f(title) }

// Connect registers a new connection and its default input/output handle
// pair, per CONNECT. The output handle gets a freshly constructed
// ScreenBuffer of the given size.
func (s *ServerState) Connect(pid, tid uint32, width, height int) (ConnectionID, InputHandleID, OutputHandleID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cid := s.nextConn
	s.nextConn++
	iid := s.nextInput
	s.nextInput++
	oid := s.nextOutput
	s.nextOutput++

	s.connections[cid] = &Connection{
		ProcessID: pid,
		ThreadID:  tid,
		Input:     ObjectID(iid),
		Output:    ObjectID(oid),
	}
	s.inputs[iid] = NewInputHandle()
	s.outputs[oid] = NewOutputHandle(width, height, s.host, s.bell, titleProviderFunc(s.setTitleLocked))
	s.connInputs[cid] = append(s.connInputs[cid], iid)
	s.connOutputs[cid] = append(s.connOutputs[cid], oid)

	return cid, iid, oid
}

// Disconnect tears down a connection and every handle it owns.
func (s *ServerState) Disconnect(cid ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, iid := range s.connInputs[cid] {
		delete(s.inputs, iid)
	}
	for _, oid := range s.connOutputs[cid] {
		delete(s.outputs, oid)
	}
	delete(s.connInputs, cid)
	delete(s.connOutputs, cid)
	delete(s.connections, cid)
}

// CreateInputHandle allocates an additional input handle bound to cid
// (CREATE_OBJECT).
func (s *ServerState) CreateInputHandle(cid ConnectionID) (InputHandleID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[cid]; !ok {
		return 0, false
	}
	iid := s.nextInput
	s.nextInput++
	s.inputs[iid] = NewInputHandle()
	s.connInputs[cid] = append(s.connInputs[cid], iid)
	return iid, true
}

// CreateOutputHandle allocates an additional output handle bound to cid,
// sharing no buffer with any existing handle (CREATE_OBJECT).
func (s *ServerState) CreateOutputHandle(cid ConnectionID, width, height int) (OutputHandleID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[cid]; !ok {
		return 0, false
	}
	oid := s.nextOutput
	s.nextOutput++
	s.outputs[oid] = NewOutputHandle(width, height, s.host, s.bell, titleProviderFunc(s.setTitleLocked))
	s.connOutputs[cid] = append(s.connOutputs[cid], oid)
	return oid, true
}

// CloseInputHandle releases an input handle (CLOSE_OBJECT).
func (s *ServerState) CloseInputHandle(iid InputHandleID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inputs[iid]; !ok {
		return false
	}
	delete(s.inputs, iid)
	return true
}

// CloseOutputHandle releases an output handle (CLOSE_OBJECT).
func (s *ServerState) CloseOutputHandle(oid OutputHandleID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outputs[oid]; !ok {
		return false
	}
	delete(s.outputs, oid)
	return true
}

// Input looks up an input handle, or reports false (STATUS_INVALID_HANDLE
// at the dispatch layer).
func (s *ServerState) Input(iid InputHandleID) (*InputHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.inputs[iid]
	return h, ok
}

// Output looks up an output handle.
func (s *ServerState) Output(oid OutputHandleID) (*OutputHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.outputs[oid]
	return h, ok
}

// Connection looks up a connection.
func (s *ServerState) Connection(cid ConnectionID) (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[cid]
	return c, ok
}

// Aliases returns the server-wide alias store.
func (s *ServerState) Aliases() *AliasStore { return s.aliases }

// Host returns the host-I/O collaborator every handle was constructed
// with. USER_DEFINED API handlers reach it through here rather than
// threading it through the apiHandler signature, since it never varies
// across a ServerState's lifetime.
func (s *ServerState) Host() HostIO { return s.host }

// Title returns the current console title.
func (s *ServerState) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// SetTitle sets the current title directly (distinct from OSC-driven
// changes, which flow through titleProviderFunc into setTitleLocked).
func (s *ServerState) SetTitle(title string) {
	s.mu.Lock()
	s.setTitleLocked(title)
	s.mu.Unlock()
}

func (s *ServerState) setTitleLocked(title string) {
	if s.originalTitle == "" {
		s.originalTitle = title
	}
	s.title = title
}

// OriginalTitle returns the title recorded the first time SetTitle (or an
// OSC title sequence) ran, per ServerState's "original" title field.
func (s *ServerState) OriginalTitle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.originalTitle
}
