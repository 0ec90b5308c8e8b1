// Package session implements the per-session game state machine and
// the actor goroutine that serializes all mutation of it.
package session

import (
	"errors"
	"time"

	"github.com/notnil/chess"

	"github.com/chesstty/chesstty/internal/timer"
	"github.com/chesstty/chesstty/internal/uci"
)

// GameMode selects who controls each side.
type GameMode int

const (
	// HumanVsEngine pins one side to a human and the other to the engine.
	HumanVsEngine GameMode = iota
	// EngineVsEngine has the engine play both sides.
	EngineVsEngine
	// HumanVsHuman has no engine involvement at all.
	HumanVsHuman
)

// Phase is the session's lifecycle state. Ended is terminal.
type Phase int

const (
	// Setup is the state before play has begun (e.g. a non-standard
	// starting FEN that hasn't been confirmed).
	Setup Phase = iota
	// Playing is normal ongoing play.
	Playing
	// Paused suspends auto-triggering and timer accounting.
	Paused
	// Ended is terminal; no further mutation except Reset.
	Ended
)

// Outcome is the concluded-game result, independent of the chess
// library's own Outcome type because a flag fall is not something the
// rules engine knows about.
type Outcome int

const (
	// OutcomeNone means the game has not concluded.
	OutcomeNone Outcome = iota
	WhiteWon
	BlackWon
	Draw
)

// Result records how and why a game ended.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Errors returned by State mutators. These are validation errors:
// they are recovered locally, never change state, and are reported
// in-band via command replies.
var (
	ErrIllegalMove  = errors.New("session: illegal move")
	ErrGameEnded    = errors.New("session: game has ended")
	ErrNothingToUndo = errors.New("session: nothing to undo")
	ErrNothingToRedo = errors.New("session: nothing to redo")
	ErrInvalidSkill  = errors.New("session: skill out of range")
	ErrNoHumanSide   = errors.New("session: engine-vs-engine games have no human side")
	ErrNotPaused     = errors.New("session: session is not paused")
	ErrAlreadyPaused = errors.New("session: session is already paused")
)

// MoveRecord is one history entry: enough to render it, undo it in
// O(1), and persist it as part of a finished game.
type MoveRecord struct {
	From      chess.Square
	To        chess.Square
	Piece     chess.PieceType
	Captured  *chess.PieceType
	Promotion *chess.PieceType
	SAN       string
	FENBefore string
	FENAfter  string
	ClockMS   *int64
}

// EngineOptions mirrors the skill/threads/hash hints a session's
// engine is configured with.
type EngineOptions struct {
	Enabled bool
	Skill   int
	Threads *int
	HashMB  *int
}

// UCIConfig projects EngineOptions into the shape the uci package wants.
func (o EngineOptions) UCIConfig() uci.EngineConfig {
	skill := o.Skill
	return uci.EngineConfig{Skill: &skill, Threads: o.Threads, HashMB: o.HashMB}
}

// Snapshot is the immutable view of session state broadcast after
// every mutation, and the only way the outside world observes a session.
type Snapshot struct {
	SessionID      string
	FEN            string
	SideToMove     chess.Color
	Phase          Phase
	Result         *Result
	MoveCount      int
	History        []MoveRecord
	LastMove       *LastMove
	LastAnalysis   *uci.InfoEvent
	Engine         EngineOptions
	Mode           GameMode
	HumanSide      *chess.Color
	EngineThinking bool
	Timer          *timer.Snapshot
	CreatedAt      time.Time
}

// LastMove is the compact {from, to} pair of the most recent move.
type LastMove struct {
	From chess.Square
	To   chess.Square
}

// Config seeds a new session.
type Config struct {
	FEN       string
	Mode      GameMode
	HumanSide *chess.Color
	Engine    EngineOptions
	Timer     *timer.Config
}
