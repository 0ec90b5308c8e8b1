package chessutil

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestNewFromFENRoundTrip(t *testing.T) {
	g, err := NewFromFEN(startFEN)
	require.NoError(t, err)
	require.Equal(t, startFEN, FEN(g))

	// An empty string is the standard starting position.
	g2, err := NewFromFEN("")
	require.NoError(t, err)
	require.Equal(t, startFEN, FEN(g2))

	_, err = NewFromFEN("not a fen at all")
	require.ErrorIs(t, err, ErrInvalidFEN)
}

func TestFindByUCI(t *testing.T) {
	g, err := NewFromFEN("")
	require.NoError(t, err)

	mv, err := FindByUCI(g, "e2e4")
	require.NoError(t, err)
	require.Equal(t, chess.E2, mv.S1())
	require.Equal(t, chess.E4, mv.S2())

	_, err = FindByUCI(g, "e2e5")
	require.ErrorIs(t, err, ErrIllegalMove)
}

func TestFindBySquaresPromotion(t *testing.T) {
	g, err := NewFromFEN("8/P6k/8/8/8/8/8/K7 w - - 0 1")
	require.NoError(t, err)

	mv, err := FindBySquares(g, chess.A7, chess.A8, chess.Queen)
	require.NoError(t, err)
	require.Equal(t, chess.Queen, mv.Promo())

	// Without a promotion piece there is no plain a7-a8 move.
	_, err = FindBySquares(g, chess.A7, chess.A8, chess.NoPieceType)
	require.ErrorIs(t, err, ErrIllegalMove)
}

func TestGameStatusCheckmate(t *testing.T) {
	// Fool's mate final position.
	g, err := NewFromFEN("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	require.NoError(t, err)

	status := GameStatus(g)
	require.False(t, status.Ongoing())
	winner, ok := status.Winner()
	require.True(t, ok)
	require.Equal(t, chess.Black, winner)
	require.Equal(t, "Checkmate", status.Reason())
}

func TestGameStatusStalemate(t *testing.T) {
	g, err := NewFromFEN("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	require.NoError(t, err)

	status := GameStatus(g)
	require.False(t, status.Ongoing())
	require.True(t, status.Drawn())
	require.Equal(t, "Stalemate", status.Reason())
}

func TestLegalMovesUCI(t *testing.T) {
	g, err := NewFromFEN("")
	require.NoError(t, err)
	moves := LegalMovesUCI(g)
	require.Len(t, moves, 20)
	require.Contains(t, moves, "e2e4")
	require.Contains(t, moves, "g1f3")
}

func TestIsForced(t *testing.T) {
	g, err := NewFromFEN("")
	require.NoError(t, err)
	require.False(t, IsForced(g))

	// Black king in the corner: a7 and b7 are covered by the white
	// king, leaving Kb8 as the only legal move.
	forced, err := NewFromFEN("k7/8/1K6/8/8/8/8/1R6 b - - 0 1")
	require.NoError(t, err)
	require.True(t, IsForced(forced))
}

func TestSAN(t *testing.T) {
	g, err := NewFromFEN("")
	require.NoError(t, err)
	mv, err := FindByUCI(g, "g1f3")
	require.NoError(t, err)
	require.Equal(t, "Nf3", SAN(g.Position(), mv))
}
