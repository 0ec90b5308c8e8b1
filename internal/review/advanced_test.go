package review

import (
	"context"
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"

	"github.com/chesstty/chesstty/internal/chessutil"
	"github.com/chesstty/chesstty/internal/store"
)

const (
	startFEN   = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	afterE4FEN = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
)

func TestKingSafetyFullPawnShieldAtStart(t *testing.T) {
	g, err := chessutil.NewFromFEN(startFEN)
	require.NoError(t, err)

	require.Equal(t, 1.0, kingSafety(g.Position(), chess.White))
	require.Equal(t, 1.0, kingSafety(g.Position(), chess.Black))
}

func TestKingSafetyDropsWithBrokenShield(t *testing.T) {
	// White has castled short but the g- and h-pawns are gone: only f2
	// remains of the three shield squares f2/g2/h2.
	g, err := chessutil.NewFromFEN("6k1/8/8/8/8/8/5P2/6K1 w - - 0 1")
	require.NoError(t, err)

	require.InDelta(t, 1.0/3.0, kingSafety(g.Position(), chess.White), 0.001)
}

func TestTensionZeroAtStartAndPositiveWithCaptures(t *testing.T) {
	start, err := chessutil.NewFromFEN(startFEN)
	require.NoError(t, err)
	require.Equal(t, 0.0, tension(start))

	// 1.e4 d5: white can take on d5, so some fraction of moves capture.
	g, err := chessutil.NewFromFEN("rnbqkbnr/ppp1pppp/8/3p4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 2")
	require.NoError(t, err)
	require.Greater(t, tension(g), 0.0)
	require.Less(t, tension(g), 1.0)
}

func TestIsCriticalOnSwingMateAndBlunder(t *testing.T) {
	quiet := store.PositionReview{
		EvalBefore:     store.Score{Type: "cp", Value: 20},
		EvalAfter:      store.Score{Type: "cp", Value: 10},
		EvalBest:       store.Score{Type: "cp", Value: 20},
		Classification: string(ClassBest),
	}
	require.False(t, isCritical(quiet))

	swing := quiet
	swing.EvalAfter = store.Score{Type: "cp", Value: -200}
	require.True(t, isCritical(swing))

	mate := quiet
	mate.EvalAfter = store.Score{Type: "mate", Value: 3}
	require.True(t, isCritical(mate))

	blunder := quiet
	blunder.Classification = string(ClassBlunder)
	require.True(t, isCritical(blunder))
}

func TestTacticalTagsMissedMate(t *testing.T) {
	tags := tacticalTags(store.PositionReview{
		FENBefore:     startFEN,
		SAN:           "a3",
		BestMoveSAN:   "Qh5",
		EvalBest:      store.Score{Type: "mate", Value: 2},
		EvalAfter:     store.Score{Type: "cp", Value: 50},
		CentipawnLoss: 800,
		PV:            []string{"d1h5", "g7g6"},
	})
	require.Len(t, tags, 1)
	require.Equal(t, "missed-mate", tags[0].Kind)
	require.Equal(t, "white", tags[0].Attacker)
	require.Equal(t, []string{"d1h5", "g7g6"}, tags[0].Lines)
}

func TestTacticalTagsMissedWinForBlack(t *testing.T) {
	// Black to move with a stored eval of -400 (white perspective) is
	// +400 for the mover; losing 250 of it is a missed win.
	tags := tacticalTags(store.PositionReview{
		FENBefore:     afterE4FEN,
		SAN:           "h6",
		BestMoveSAN:   "Qh4",
		EvalBest:      store.Score{Type: "cp", Value: -400},
		EvalAfter:     store.Score{Type: "cp", Value: -150},
		CentipawnLoss: 250,
	})
	require.Len(t, tags, 1)
	require.Equal(t, "missed-win", tags[0].Kind)
	require.Equal(t, "black", tags[0].Attacker)
	require.InDelta(t, 0.5, tags[0].Confidence, 0.001)
}

func TestTacticalTagsMateThreatAttributesAttacker(t *testing.T) {
	// White moved and left a mate against itself: the attacker is black.
	tags := tacticalTags(store.PositionReview{
		FENBefore:     startFEN,
		SAN:           "g4",
		EvalBest:      store.Score{Type: "cp", Value: 20},
		EvalAfter:     store.Score{Type: "mate", Value: -1},
		CentipawnLoss: 900,
	})
	var mateTag *store.TacticalTag
	for i := range tags {
		if tags[i].Kind == "mate-threat" {
			mateTag = &tags[i]
		}
	}
	require.NotNil(t, mateTag)
	require.Equal(t, "black", mateTag.Attacker)
}

func TestBuildProfileStreaksAndPhases(t *testing.T) {
	positions := []store.PositionReview{
		{Ply: 1, FENBefore: startFEN, CentipawnLoss: 5, EvalBefore: store.Score{Type: "cp", Value: 20}, EvalAfter: store.Score{Type: "cp", Value: 15}},
		{Ply: 2, FENBefore: afterE4FEN, CentipawnLoss: 400, EvalBefore: store.Score{Type: "cp", Value: 15}, EvalAfter: store.Score{Type: "cp", Value: 415}},
		{Ply: 3, FENBefore: startFEN, CentipawnLoss: 10, EvalBefore: store.Score{Type: "cp", Value: 415}, EvalAfter: store.Score{Type: "cp", Value: 410}},
		{Ply: 4, FENBefore: afterE4FEN, CentipawnLoss: 150, EvalBefore: store.Score{Type: "cp", Value: 410}, EvalAfter: store.Score{Type: "cp", Value: 560}},
		{Ply: 5, FENBefore: startFEN, CentipawnLoss: 20, EvalBefore: store.Score{Type: "cp", Value: 560}, EvalAfter: store.Score{Type: "cp", Value: 555}},
	}

	white := buildProfile("white", positions)
	require.Equal(t, 3, white.LongestGoodStreak, "all three white moves are good")
	require.Equal(t, 0, white.LongestPoorStreak)
	require.InDelta(t, 5.0, white.BiggestSwing, 0.001)
	require.InDelta(t, (5.0+10.0+20.0)/3.0, white.OpeningAvgLoss, 0.001)
	require.Equal(t, 0.0, white.MiddlegameAvgLoss)

	black := buildProfile("black", positions)
	require.Equal(t, 2, black.LongestPoorStreak)
	require.Equal(t, 0, black.LongestGoodStreak)
	require.InDelta(t, 400.0, black.BiggestSwing, 0.001)
}

func TestBuildProfileTimeQualityCorrelation(t *testing.T) {
	clock := func(ms int64) *int64 { return &ms }
	// White burns more clock exactly on the worse moves: time spent and
	// loss rise together, so the correlation is strongly positive.
	positions := []store.PositionReview{
		{Ply: 1, FENBefore: startFEN, CentipawnLoss: 10, ClockMS: clock(60000)},
		{Ply: 3, FENBefore: startFEN, CentipawnLoss: 50, ClockMS: clock(55000)},
		{Ply: 5, FENBefore: startFEN, CentipawnLoss: 200, ClockMS: clock(40000)},
		{Ply: 7, FENBefore: startFEN, CentipawnLoss: 350, ClockMS: clock(15000)},
	}
	prof := buildProfile("white", positions)
	require.Greater(t, prof.TimeQualityCorrelation, 0.8)

	// Without clock data the correlation is defined as zero.
	for i := range positions {
		positions[i].ClockMS = nil
	}
	require.Equal(t, 0.0, buildProfile("white", positions).TimeQualityCorrelation)
}

func TestBuildAdvancedAnalysisCoversEveryPly(t *testing.T) {
	rev := store.GameReview{
		GameID: "game-1",
		Positions: []store.PositionReview{
			{Ply: 1, FENBefore: startFEN, CentipawnLoss: 5,
				EvalBefore: store.Score{Type: "cp", Value: 20}, EvalAfter: store.Score{Type: "cp", Value: 15}, EvalBest: store.Score{Type: "cp", Value: 20}},
			{Ply: 2, FENBefore: afterE4FEN, CentipawnLoss: 600,
				EvalBefore: store.Score{Type: "cp", Value: 15}, EvalAfter: store.Score{Type: "mate", Value: 2}, EvalBest: store.Score{Type: "cp", Value: 15},
				Classification: string(ClassBlunder)},
		},
	}

	a := BuildAdvancedAnalysis(rev)
	require.Equal(t, "game-1", a.GameID)
	require.Len(t, a.Positions, 2)
	require.Len(t, a.Profiles, 2)

	require.False(t, a.Positions[0].Critical)
	require.True(t, a.Positions[1].Critical)
	require.Equal(t, 1.0, a.Positions[0].WhiteKingSafety)

	sides := []string{a.Profiles[0].Side, a.Profiles[1].Side}
	require.ElementsMatch(t, []string{"white", "black"}, sides)
}

func TestComputeAdvancedAnalysisPersistsBreakdown(t *testing.T) {
	m, st := newTestManager(t, 8)
	ctx := context.Background()
	id := seedFinishedGame(t, st)

	require.NoError(t, st.InitReview(ctx, id, store.ReviewAnalyzing, 1, 12, 1000))
	require.NoError(t, st.SavePositionReviewAndAdvance(ctx, id, store.PositionReview{
		Ply:            1,
		FENBefore:      startFEN,
		SAN:            "e4",
		BestMoveUCI:    "e2e4",
		EvalBefore:     store.Score{Type: "cp", Value: 30},
		EvalAfter:      store.Score{Type: "cp", Value: 25},
		EvalBest:       store.Score{Type: "cp", Value: 30},
		Classification: string(ClassBest),
	}))
	require.NoError(t, st.CompleteReview(ctx, id, 98.0, 97.0, "white", 1001))

	require.NoError(t, m.computeAdvancedAnalysis(ctx, id))

	analysis, err := m.GetAdvancedAnalysis(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, analysis.GameID)
	require.Len(t, analysis.Positions, 1)
	require.Len(t, analysis.Profiles, 2)
	require.Equal(t, 1.0, analysis.Positions[0].WhiteKingSafety)

	// Recomputing replaces rather than duplicates.
	require.NoError(t, m.computeAdvancedAnalysis(ctx, id))
	analysis, err = m.GetAdvancedAnalysis(ctx, id)
	require.NoError(t, err)
	require.Len(t, analysis.Positions, 1)
	require.Len(t, analysis.Profiles, 2)
}

func TestStoreScoreCPMateConversion(t *testing.T) {
	require.Equal(t, 19000, storeScoreCP(store.Score{Type: "mate", Value: 2}))
	require.Equal(t, -19500, storeScoreCP(store.Score{Type: "mate", Value: -1}))
	require.Equal(t, 75, storeScoreCP(store.Score{Type: "cp", Value: 75}))
}

func TestPearson(t *testing.T) {
	require.InDelta(t, 1.0, pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 0.001)
	require.InDelta(t, -1.0, pearson([]float64{1, 2, 3}, []float64{6, 4, 2}), 0.001)
	require.Equal(t, 0.0, pearson([]float64{1}, []float64{2}))
	require.Equal(t, 0.0, pearson([]float64{1, 1, 1}, []float64{2, 4, 6}), "zero variance")
}
