package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chesstty/chesstty/internal/session"
	"github.com/chesstty/chesstty/internal/store"
	"github.com/chesstty/chesstty/internal/uci"
)

func TestSideToMoveFromFEN(t *testing.T) {
	white, err := sideToMoveFromFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	require.NoError(t, err)
	require.Equal(t, "white", white)

	black, err := sideToMoveFromFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1")
	require.NoError(t, err)
	require.Equal(t, "black", black)

	_, err = sideToMoveFromFEN("not-a-fen")
	require.Error(t, err)
}

func TestNormalizeToWhite(t *testing.T) {
	require.Equal(t, 50, normalizeToWhite(50, "white"))
	require.Equal(t, -50, normalizeToWhite(50, "black"))
}

func TestWinnerFromOutcome(t *testing.T) {
	require.Equal(t, "white", winnerFromOutcome(int(session.WhiteWon)))
	require.Equal(t, "black", winnerFromOutcome(int(session.BlackWon)))
	require.Equal(t, "draw", winnerFromOutcome(int(session.Draw)))
}

func TestBestMoveSANFallsBackToEmptyOnBadInput(t *testing.T) {
	require.Equal(t, "", bestMoveSAN("not-a-fen", "e2e4"))
	require.Equal(t, "", bestMoveSAN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", "z9z9"))
}

func TestIsForcedAtFEN(t *testing.T) {
	forced, err := isForcedAtFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	require.NoError(t, err)
	require.False(t, forced, "the opening position has 20 legal moves")
}

func TestPlayedEvalInfersMateAtCheckmate(t *testing.T) {
	var m Manager
	// Fool's mate final position: white is checkmated, no engine search needed.
	score, err := m.playedEval(context.Background(), nil, "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	require.NoError(t, err)
	require.Equal(t, uci.MateIn(0), score)
}

func TestPlayedEvalInfersZeroAtStalemate(t *testing.T) {
	var m Manager
	score, err := m.playedEval(context.Background(), nil, "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	require.NoError(t, err)
	require.Equal(t, uci.CP(0), score)
}

func TestNormalizeScoreToWhitePreservesMateType(t *testing.T) {
	require.Equal(t, store.Score{Type: "mate", Value: 0}, normalizeScoreToWhite(uci.MateIn(0), "black"))
	require.Equal(t, store.Score{Type: "cp", Value: -50}, normalizeScoreToWhite(uci.CP(50), "black"))
	require.Equal(t, store.Score{Type: "cp", Value: 50}, normalizeScoreToWhite(uci.CP(50), "white"))
}
