package session

import "errors"

// ErrActorStopped is returned by Send when the actor has already
// finished its run loop (game ended or Shutdown processed) and will
// never drain its mailbox again.
var ErrActorStopped = errors.New("session: actor has stopped")

// ErrUnknownSession names the "id does not name a live session" error
// category. No code in this module returns it: the session manager
// reports unknown ids with its own sessionmgr.ErrUnknownSession.
var ErrUnknownSession = errors.New("session: unknown session id")

// Command is one of the typed requests the actor's mailbox accepts.
// Each carries a single-shot reply channel; errors travel in-band on
// the reply, never by closing the channel without a value.
type Command interface {
	isCommand()
}

// MoveResult is the reply shape for any command that may move the game
// forward (MakeMove, Undo, Redo).
type MoveResult struct {
	Snapshot Snapshot
	Move     *MoveRecord
	Err      error
}

// SnapshotResult is the reply shape for commands that only need to
// report the resulting snapshot.
type SnapshotResult struct {
	Snapshot Snapshot
	Err      error
}

// LegalMovesResult is the reply shape for GetLegalMoves.
type LegalMovesResult struct {
	Moves []string
	Err   error
}

// SubscribeResult is the reply shape for Subscribe. The first event
// delivered on Events is always the current StateChanged.
type SubscribeResult struct {
	Events <-chan Event
}

// MakeMove applies a move given in UCI long-algebraic form.
type MakeMove struct {
	Move  string
	Reply chan<- MoveResult
}

func (MakeMove) isCommand() {}

// GetLegalMoves lists every legal move in the current position.
type GetLegalMoves struct {
	Reply chan<- LegalMovesResult
}

func (GetLegalMoves) isCommand() {}

// Undo pops the most recent move.
type Undo struct {
	Reply chan<- MoveResult
}

func (Undo) isCommand() {}

// Redo re-applies the most recently undone move.
type Redo struct {
	Reply chan<- MoveResult
}

func (Redo) isCommand() {}

// Reset replaces the position, optionally from a FEN, and clears
// history.
type Reset struct {
	FEN   string
	Reply chan<- SnapshotResult
}

func (Reset) isCommand() {}

// SetEngine replaces the session's engine configuration.
type SetEngine struct {
	Options EngineOptions
	Reply   chan<- SnapshotResult
}

func (SetEngine) isCommand() {}

// StopEngine interrupts any outstanding search.
type StopEngine struct {
	Reply chan<- SnapshotResult
}

func (StopEngine) isCommand() {}

// Pause halts the timer and auto-triggering.
type Pause struct {
	Reply chan<- SnapshotResult
}

func (Pause) isCommand() {}

// Resume restarts the timer and auto-triggering.
type Resume struct {
	Reply chan<- SnapshotResult
}

func (Resume) isCommand() {}

// SetSkill adjusts the engine's skill level (0-20).
type SetSkill struct {
	Skill int
	Reply chan<- SnapshotResult
}

func (SetSkill) isCommand() {}

// Subscribe registers a new broadcast listener.
type Subscribe struct {
	Reply chan<- SubscribeResult
}

func (Subscribe) isCommand() {}

// GetSnapshot reports the current snapshot without mutating anything.
type GetSnapshot struct {
	Reply chan<- SnapshotResult
}

func (GetSnapshot) isCommand() {}

// Shutdown requests the actor terminate: engine Stop+Quit, select loop
// cancellation, mailbox drop.
type Shutdown struct {
	Reply chan<- struct{}
}

func (Shutdown) isCommand() {}
