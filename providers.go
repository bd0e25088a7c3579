package condrv

// BellProvider handles BEL (0x07) characters seen by the VT interpreter.
// condrv has no audio subsystem of its own; this is the hook a surrounding
// process wires to whatever "ring a bell" means for it.
type BellProvider interface {
	// Ring is called when a bell character is received.
	Ring()
}

// NoopBell ignores all bell events.
type NoopBell struct{}

func (NoopBell) Ring() {}

var _ BellProvider = NoopBell{}

// TitleProvider observes window title changes driven by OSC 0/2/21.
// condrv's own GetTitle/SetTitle API handlers read and write ServerState
// directly; this hook exists for processes that want a push notification
// (e.g. to update a window chrome) without polling GetTitle.
type TitleProvider interface {
	// TitleChanged is called whenever the current title changes.
	TitleChanged(title string)
}

// NoopTitle ignores all title changes.
type NoopTitle struct{}

func (NoopTitle) TitleChanged(string) {}

var _ TitleProvider = NoopTitle{}
