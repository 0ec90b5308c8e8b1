// Package chessutil adapts github.com/notnil/chess to the shapes the
// session and review layers need: FEN import/export, legal move
// generation, move application, SAN rendering, and game-status
// detection. Nothing here implements chess rules itself; that is the
// library's job.
package chessutil

import (
	"errors"
	"fmt"

	"github.com/notnil/chess"
)

// ErrIllegalMove is returned when a requested move does not match any
// move in chess.Game.ValidMoves() for the current position.
var ErrIllegalMove = errors.New("chessutil: illegal move")

// ErrInvalidFEN is returned when a FEN string cannot be parsed.
var ErrInvalidFEN = errors.New("chessutil: invalid fen")

// Status condenses the library's outcome/method pair into the
// Ongoing/Won/Drawn shape the session and review layers consume.
type Status struct {
	Outcome chess.Outcome
	Method  chess.Method
}

// Ongoing reports whether the game has not yet concluded.
func (s Status) Ongoing() bool { return s.Outcome == chess.NoOutcome }

// Winner returns the winning color and true, or (NoColor, false) if the
// game is ongoing or drawn.
func (s Status) Winner() (chess.Color, bool) {
	switch s.Outcome {
	case chess.WhiteWon:
		return chess.White, true
	case chess.BlackWon:
		return chess.Black, true
	default:
		return chess.NoColor, false
	}
}

// Drawn reports whether the game ended without a winner.
func (s Status) Drawn() bool {
	return s.Outcome == chess.Draw
}

// Reason renders a short human-readable explanation of how the game
// concluded, used for FinishedGame.Result reason text.
func (s Status) Reason() string {
	switch s.Method {
	case chess.Checkmate:
		return "Checkmate"
	case chess.Stalemate:
		return "Stalemate"
	case chess.ThreefoldRepetition:
		return "Threefold repetition"
	case chess.FivefoldRepetition:
		return "Fivefold repetition"
	case chess.FiftyMoveRule:
		return "Fifty-move rule"
	case chess.SeventyFiveMoveRule:
		return "Seventy-five-move rule"
	case chess.InsufficientMaterial:
		return "Insufficient material"
	case chess.Resignation:
		return "Resignation"
	default:
		return ""
	}
}

// NewFromFEN constructs a game from a FEN string. An empty string
// yields the standard starting position.
func NewFromFEN(fen string) (*chess.Game, error) {
	if fen == "" {
		return chess.NewGame(), nil
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return chess.NewGame(opt), nil
}

// FEN exports the current position as FEN text. Round-tripping any FEN
// produced here through NewFromFEN yields an equivalent position.
func FEN(g *chess.Game) string {
	return g.Position().String()
}

// GameStatus derives the Ongoing/Won/Drawn status from a game.
func GameStatus(g *chess.Game) Status {
	return Status{Outcome: g.Outcome(), Method: g.Method()}
}

// FindByUCI looks up the legal move matching a UCI long-algebraic
// string ("e2e4", "e7e8q") in the current position. It never mutates g.
func FindByUCI(g *chess.Game, uci string) (*chess.Move, error) {
	for _, m := range g.ValidMoves() {
		if m.String() == uci {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
}

// FindBySquares looks up the legal move between two squares, optionally
// constrained to a promotion piece (NoPieceType if not a promotion).
func FindBySquares(g *chess.Game, from, to chess.Square, promo chess.PieceType) (*chess.Move, error) {
	for _, m := range g.ValidMoves() {
		if m.S1() != from || m.S2() != to {
			continue
		}
		if promo == chess.NoPieceType {
			if m.Promo() == chess.NoPieceType {
				return m, nil
			}
			continue
		}
		if m.Promo() == promo {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s%s", ErrIllegalMove, from, to)
}

// SAN renders a move in Standard Algebraic Notation relative to the
// position it is played from.
func SAN(pos *chess.Position, m *chess.Move) string {
	enc := chess.AlgebraicNotation{}
	return enc.Encode(pos, m)
}

// LegalMovesUCI lists every legal move in the current position encoded
// as UCI long-algebraic strings.
func LegalMovesUCI(g *chess.Game) []string {
	moves := g.ValidMoves()
	out := make([]string, 0, len(moves))
	for _, m := range moves {
		out = append(out, m.String())
	}
	return out
}

// IsForced reports whether the position has exactly one legal move,
// used by the review worker to detect forced moves.
func IsForced(g *chess.Game) bool {
	return len(g.ValidMoves()) == 1
}

// Clone returns an independent copy of g by round-tripping through FEN,
// which is sufficient because the adapter never needs move-list
// history from the cloned value.
func Clone(g *chess.Game) (*chess.Game, error) {
	return NewFromFEN(FEN(g))
}
