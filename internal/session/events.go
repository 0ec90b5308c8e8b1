package session

import "github.com/chesstty/chesstty/internal/uci"

// Event is a broadcast notification the actor publishes after every
// mutation, engine message, or error. Subscribers that lag behind may
// miss intermediate EngineThinking/UciMessage events, but are always
// guaranteed the next StateChanged, which carries the full snapshot.
type Event interface {
	isSessionEvent()
}

// StateChanged carries the full snapshot after a mutation.
type StateChanged struct {
	Snapshot Snapshot
}

func (StateChanged) isSessionEvent() {}

// EngineThinking carries one engine "info" line as it arrives.
type EngineThinking struct {
	Analysis uci.InfoEvent
}

func (EngineThinking) isSessionEvent() {}

// UciMessage carries a raw engine protocol line, in either direction,
// for diagnostics.
type UciMessage struct {
	Direction uci.Direction
	Line      string
}

func (UciMessage) isSessionEvent() {}

// ErrorNotice carries a non-fatal error for display (an illegal
// bestmove from the engine, an engine I/O failure). A lagging
// subscriber is only logged, never reported through an ErrorNotice.
type ErrorNotice struct {
	Message string
}

func (ErrorNotice) isSessionEvent() {}
