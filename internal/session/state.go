package session

import (
	"fmt"
	"time"

	"github.com/notnil/chess"

	"github.com/chesstty/chesstty/internal/chessutil"
	"github.com/chesstty/chesstty/internal/timer"
	"github.com/chesstty/chesstty/internal/uci"
)

const standardStartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// State is the pure, single-threaded session state machine. It
// performs no I/O; the actor is its sole caller and the sole owner of
// the live engine handle.
type State struct {
	id        string
	game      *chess.Game
	history   []MoveRecord
	redo      []MoveRecord
	mode      GameMode
	humanSide *chess.Color
	engine    EngineOptions
	phase     Phase
	result    *Result
	timer     *timer.Timer
	analysis  *uci.InfoEvent
	thinking  bool
	createdAt time.Time
}

// NewState constructs session state from a creation Config.
func NewState(id string, cfg Config) (*State, error) {
	game, err := chessutil.NewFromFEN(cfg.FEN)
	if err != nil {
		return nil, err
	}

	humanSide := cfg.HumanSide
	if cfg.Mode == EngineVsEngine {
		humanSide = nil
	}

	var tm *timer.Timer
	if cfg.Timer != nil {
		tm = timer.New(*cfg.Timer)
		tm.Start(game.Position().Turn())
	}

	return &State{
		id:        id,
		game:      game,
		mode:      cfg.Mode,
		humanSide: humanSide,
		engine:    cfg.Engine,
		phase:     derivePhase(cfg.FEN),
		timer:     tm,
		createdAt: time.Now(),
	}, nil
}

func derivePhase(fen string) Phase {
	if fen == "" || fen == standardStartFEN {
		return Playing
	}
	return Setup
}

// ID returns the session's opaque identifier.
func (s *State) ID() string { return s.id }

// Phase reports the current lifecycle phase.
func (s *State) Phase() Phase { return s.phase }

// Mode reports the configured game mode.
func (s *State) Mode() GameMode { return s.mode }

// HumanSide reports the fixed human side for HumanVsEngine games.
func (s *State) HumanSide() *chess.Color { return s.humanSide }

// Engine reports the current engine configuration.
func (s *State) Engine() EngineOptions { return s.engine }

// EngineThinking reports whether the engine has an outstanding Go.
func (s *State) EngineThinking() bool { return s.thinking }

// MarkEngineThinking sets the engine_thinking flag. The actor calls
// this immediately before enqueueing Go and immediately after BestMove,
// Stop completion, or engine error.
func (s *State) MarkEngineThinking(v bool) { s.thinking = v }

// SetLastAnalysis records the latest engine info line for the snapshot.
func (s *State) SetLastAnalysis(info uci.InfoEvent) { s.analysis = &info }

// FEN returns the current position as FEN text.
func (s *State) FEN() string { return chessutil.FEN(s.game) }

// SideToMove returns the color to move in the current position.
func (s *State) SideToMove() chess.Color { return s.game.Position().Turn() }

// Status derives Ongoing/Won/Drawn from the chess library.
func (s *State) Status() chessutil.Status { return chessutil.GameStatus(s.game) }

// LegalMoves lists every legal move as a UCI string.
func (s *State) LegalMoves() []string { return chessutil.LegalMovesUCI(s.game) }

// IsForced reports whether exactly one legal move exists.
func (s *State) IsForced() bool { return chessutil.IsForced(s.game) }

// Result returns the concluded-game result, or nil if still ongoing.
func (s *State) Result() *Result { return s.result }

// SetSkill validates and applies a new skill level (0-20).
func (s *State) SetSkill(skill int) error {
	if skill < 0 || skill > 20 {
		return ErrInvalidSkill
	}
	s.engine.Skill = skill
	return nil
}

// SetEngineOptions replaces the engine configuration wholesale
// (enabled flag, skill, thread/hash hints).
func (s *State) SetEngineOptions(opts EngineOptions) error {
	if opts.Skill < 0 || opts.Skill > 20 {
		return ErrInvalidSkill
	}
	s.engine = opts
	return nil
}

// ApplyMoveBySquares validates and applies a move given as a from/to
// square pair with an optional promotion piece.
func (s *State) ApplyMoveBySquares(from, to chess.Square, promo chess.PieceType) (MoveRecord, error) {
	if s.phase == Ended {
		return MoveRecord{}, ErrGameEnded
	}
	m, err := chessutil.FindBySquares(s.game, from, to, promo)
	if err != nil {
		return MoveRecord{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return s.applyFoundMove(m)
}

// ApplyMoveByUCI validates and applies a move given as a UCI
// long-algebraic string ("e2e4", "e7e8q"). This is how the actor
// applies both human moves and engine bestmove replies.
func (s *State) ApplyMoveByUCI(move string) (MoveRecord, error) {
	if s.phase == Ended {
		return MoveRecord{}, ErrGameEnded
	}
	m, err := chessutil.FindByUCI(s.game, move)
	if err != nil {
		return MoveRecord{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return s.applyFoundMove(m)
}

func (s *State) applyFoundMove(m *chess.Move) (MoveRecord, error) {
	pos := s.game.Position()
	fenBefore := pos.String()
	mover := pos.Turn()
	san := chessutil.SAN(pos, m)

	pieceType := chess.NoPieceType
	if p := pos.Board().Piece(m.S1()); p.Type() != chess.NoPieceType {
		pieceType = p.Type()
	}

	var captured *chess.PieceType
	if m.HasTag(chess.Capture) {
		if p := pos.Board().Piece(m.S2()); p.Type() != chess.NoPieceType {
			t := p.Type()
			captured = &t
		}
	}

	var promotion *chess.PieceType
	if m.Promo() != chess.NoPieceType {
		p := m.Promo()
		promotion = &p
	}

	if err := s.game.Move(m); err != nil {
		return MoveRecord{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	fenAfter := s.game.Position().String()

	var clockMS *int64
	if s.timer != nil {
		s.timer.SwitchTo(opponent(mover))
		var remaining time.Duration
		if mover == chess.White {
			remaining = s.timer.WhiteRemaining()
		} else {
			remaining = s.timer.BlackRemaining()
		}
		ms := remaining.Milliseconds()
		clockMS = &ms
	}

	rec := MoveRecord{
		From:      m.S1(),
		To:        m.S2(),
		Piece:     pieceType,
		Captured:  captured,
		Promotion: promotion,
		SAN:       san,
		FENBefore: fenBefore,
		FENAfter:  fenAfter,
		ClockMS:   clockMS,
	}

	s.history = append(s.history, rec)
	s.redo = nil

	if status := chessutil.GameStatus(s.game); !status.Ongoing() {
		s.phase = Ended
		s.result = resultFromStatus(status)
		if s.timer != nil {
			s.timer.Stop()
		}
	}

	return rec, nil
}

// ApplyFlagFall ends the game on a timer flag fall: the side that did
// not run out of time wins, reason "Time expired".
func (s *State) ApplyFlagFall(fallenSide chess.Color) {
	if s.phase == Ended {
		return
	}
	s.phase = Ended
	outcome := WhiteWon
	if opponent(fallenSide) == chess.Black {
		outcome = BlackWon
	}
	s.result = &Result{Outcome: outcome, Reason: "Time expired"}
	if s.timer != nil {
		s.timer.Stop()
	}
}

// TickTimer advances the timer one tick and applies a flag fall if one
// occurred. It is a no-op if no timer is configured.
func (s *State) TickTimer() bool {
	if s.timer == nil {
		return false
	}
	if s.timer.Tick() {
		if side, ok := s.timer.ActiveSide(); ok {
			s.ApplyFlagFall(side)
		} else {
			s.ApplyFlagFall(s.SideToMove())
		}
		return true
	}
	return false
}

// HasTimer reports whether this session has a running clock.
func (s *State) HasTimer() bool { return s.timer != nil }

// Undo pops the most recent move, restores the pre-move position in
// O(1) via the stored FEN snapshot, and pushes the move onto the redo
// stack. Ended is terminal: Undo is rejected once the game has
// concluded, matching ApplyMoveByUCI's own guard.
func (s *State) Undo() (*MoveRecord, error) {
	if s.phase == Ended {
		return nil, ErrGameEnded
	}
	if len(s.history) == 0 {
		return nil, ErrNothingToUndo
	}
	last := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]

	game, err := chessutil.NewFromFEN(last.FENBefore)
	if err != nil {
		return nil, fmt.Errorf("session: restoring pre-move position: %w", err)
	}
	s.game = game
	s.redo = append(s.redo, last)

	if s.timer != nil {
		s.timer.Start(s.game.Position().Turn())
	}

	return &last, nil
}

// Redo re-applies the most recently undone move from the stored
// post-move FEN, the inverse of Undo. Ended is terminal here too, for
// the same reason as Undo.
func (s *State) Redo() (*MoveRecord, error) {
	if s.phase == Ended {
		return nil, ErrGameEnded
	}
	if len(s.redo) == 0 {
		return nil, ErrNothingToRedo
	}
	last := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]

	game, err := chessutil.NewFromFEN(last.FENAfter)
	if err != nil {
		return nil, fmt.Errorf("session: restoring post-move position: %w", err)
	}
	s.game = game
	s.history = append(s.history, last)

	if status := chessutil.GameStatus(s.game); !status.Ongoing() {
		s.phase = Ended
		s.result = resultFromStatus(status)
		if s.timer != nil {
			s.timer.Stop()
		}
	} else {
		if s.timer != nil {
			s.timer.Start(s.game.Position().Turn())
		}
	}

	return &last, nil
}

// Reset replaces the position (optionally from a FEN), clears history
// and redo, and resets phase to Playing or Setup per derivePhase.
func (s *State) Reset(fen string) error {
	game, err := chessutil.NewFromFEN(fen)
	if err != nil {
		return err
	}
	s.game = game
	s.history = nil
	s.redo = nil
	s.result = nil
	s.thinking = false
	s.analysis = nil
	s.phase = derivePhase(fen)
	if s.timer != nil {
		s.timer.Stop()
		s.timer.Start(s.game.Position().Turn())
	}
	return nil
}

// Pause halts the timer and moves the session to Paused.
func (s *State) Pause() error {
	switch s.phase {
	case Ended:
		return ErrGameEnded
	case Paused:
		return ErrAlreadyPaused
	}
	s.phase = Paused
	if s.timer != nil {
		s.timer.Stop()
	}
	return nil
}

// Resume restarts the timer and moves the session back to Playing.
func (s *State) Resume() error {
	switch s.phase {
	case Ended:
		return ErrGameEnded
	case Playing, Setup:
		return ErrNotPaused
	}
	s.phase = Playing
	if s.timer != nil {
		s.timer.Start(s.game.Position().Turn())
	}
	return nil
}

// Snapshot builds the immutable view broadcast after every mutation.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:      s.id,
		FEN:            s.FEN(),
		SideToMove:     s.SideToMove(),
		Phase:          s.phase,
		Result:         s.result,
		MoveCount:      len(s.history),
		History:        append([]MoveRecord(nil), s.history...),
		LastAnalysis:   s.analysis,
		Engine:         s.engine,
		Mode:           s.mode,
		HumanSide:      s.humanSide,
		EngineThinking: s.thinking,
		CreatedAt:      s.createdAt,
	}
	if len(s.history) > 0 {
		last := s.history[len(s.history)-1]
		snap.LastMove = &LastMove{From: last.From, To: last.To}
	}
	if s.timer != nil {
		ts := s.timer.Snapshot()
		snap.Timer = &ts
	}
	return snap
}

func resultFromStatus(st chessutil.Status) *Result {
	if st.Ongoing() {
		return nil
	}
	if st.Drawn() {
		return &Result{Outcome: Draw, Reason: st.Reason()}
	}
	if winner, ok := st.Winner(); ok {
		outcome := WhiteWon
		if winner == chess.Black {
			outcome = BlackWon
		}
		return &Result{Outcome: outcome, Reason: st.Reason()}
	}
	return &Result{Outcome: OutcomeNone, Reason: st.Reason()}
}

func opponent(c chess.Color) chess.Color {
	if c == chess.White {
		return chess.Black
	}
	return chess.White
}
