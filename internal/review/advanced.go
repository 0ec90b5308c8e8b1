package review

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/notnil/chess"

	"github.com/chesstty/chesstty/internal/chessutil"
	"github.com/chesstty/chesstty/internal/store"
)

// Advanced-analysis thresholds. Losses at or below goodMoveLoss extend
// a good streak; at or above poorMoveLoss they extend a poor one. A
// position is critical once the evaluation swings by criticalSwingCP
// or a forced mate is on the board.
const (
	goodMoveLoss    = 25
	poorMoveLoss    = 100
	criticalSwingCP = 150

	missedWinEvalCP = 300
	missedWinLossCP = 200
)

// Phase buckets by ply: 1-16 opening, 17-60 middlegame, 61+ endgame.
const (
	openingLastPly    = 16
	middlegameLastPly = 60
)

// computeAdvancedAnalysis derives a completed review's advanced
// analysis and persists it, replacing any earlier run for the same
// game. It is invoked by the worker after CompleteReview; a failure
// here never un-completes the review itself.
func (m *Manager) computeAdvancedAnalysis(ctx context.Context, gameID string) error {
	rev, err := m.store.GetReview(ctx, gameID)
	if err != nil {
		return fmt.Errorf("load review for advanced analysis: %w", err)
	}
	analysis := BuildAdvancedAnalysis(rev)
	if err := m.store.SaveAdvancedAnalysis(ctx, analysis, time.Now().Unix()); err != nil {
		return fmt.Errorf("save advanced analysis: %w", err)
	}
	return nil
}

// GetAdvancedAnalysis returns the tactical/psychological breakdown
// produced after a game's review completed.
func (m *Manager) GetAdvancedAnalysis(ctx context.Context, gameID string) (store.AdvancedAnalysis, error) {
	return m.store.GetAdvancedAnalysis(ctx, gameID)
}

// BuildAdvancedAnalysis is a pure function of a review: per-position
// tactical tags, king safety, tension, and critical flags, plus both
// sides' psychological profiles aggregated over the whole game.
func BuildAdvancedAnalysis(rev store.GameReview) store.AdvancedAnalysis {
	a := store.AdvancedAnalysis{GameID: rev.GameID}

	for _, pr := range rev.Positions {
		p := store.PositionAnalysis{
			Ply:          pr.Ply,
			Critical:     isCritical(pr),
			TacticalTags: tacticalTags(pr),
		}
		if g, err := chessutil.NewFromFEN(pr.FENBefore); err == nil {
			pos := g.Position()
			p.WhiteKingSafety = kingSafety(pos, chess.White)
			p.BlackKingSafety = kingSafety(pos, chess.Black)
			p.Tension = tension(g)
		}
		a.Positions = append(a.Positions, p)
	}

	a.Profiles = []store.PsychologicalProfile{
		buildProfile("white", rev.Positions),
		buildProfile("black", rev.Positions),
	}
	return a
}

// isCritical marks positions where the game swung: a large evaluation
// change across the move, a forced mate on the board, or a move bad
// enough to be classified mistake or blunder.
func isCritical(pr store.PositionReview) bool {
	if pr.EvalAfter.Type == "mate" || pr.EvalBest.Type == "mate" {
		return true
	}
	swing := storeScoreCP(pr.EvalAfter) - storeScoreCP(pr.EvalBefore)
	if swing < 0 {
		swing = -swing
	}
	if swing >= criticalSwingCP {
		return true
	}
	c := Classification(pr.Classification)
	return c == ClassMistake || c == ClassBlunder
}

// tacticalTags derives motif tags from the stored evaluations. The
// detectors only use information the review pipeline already has
// (scores, loss, PV); deeper motifs like pins or skewers would need
// attack-map analysis this pipeline doesn't run.
func tacticalTags(pr store.PositionReview) []store.TacticalTag {
	mover, err := sideToMoveFromFEN(pr.FENBefore)
	if err != nil {
		return nil
	}
	opponent := "black"
	if mover == "black" {
		opponent = "white"
	}

	var tags []store.TacticalTag

	bestForMover := moverPerspectiveCP(pr.EvalBest, mover)
	if pr.EvalBest.Type == "mate" && bestForMover > 0 && pr.CentipawnLoss > goodMoveLoss {
		tags = append(tags, store.TacticalTag{
			Kind:       "missed-mate",
			Confidence: 0.9,
			Attacker:   mover,
			Evidence:   fmt.Sprintf("forced mate available but %s was played", pr.SAN),
			Lines:      pr.PV,
		})
	} else if bestForMover >= missedWinEvalCP && pr.CentipawnLoss >= missedWinLossCP {
		tags = append(tags, store.TacticalTag{
			Kind:       "missed-win",
			Confidence: math.Min(1, float64(pr.CentipawnLoss)/500),
			Attacker:   mover,
			Evidence:   fmt.Sprintf("%s keeps a winning advantage; %s loses %d centipawns", pr.BestMoveSAN, pr.SAN, pr.CentipawnLoss),
			Lines:      pr.PV,
		})
	}

	if pr.EvalAfter.Type == "mate" {
		attacker := mover
		if moverPerspectiveCP(pr.EvalAfter, mover) < 0 {
			attacker = opponent
		}
		tags = append(tags, store.TacticalTag{
			Kind:       "mate-threat",
			Confidence: 1,
			Attacker:   attacker,
			Evidence:   fmt.Sprintf("forced mate on the board after %s", pr.SAN),
			Lines:      pr.PV,
		})
	}

	return tags
}

// kingSafety measures the pawn shield in front of a side's king: the
// fraction of on-board squares one rank ahead of the king (same and
// adjacent files) occupied by that side's pawns.
func kingSafety(pos *chess.Position, color chess.Color) float64 {
	board := pos.Board()
	kingSq := chess.Square(-1)
	for sq, pc := range board.SquareMap() {
		if pc.Type() == chess.King && pc.Color() == color {
			kingSq = sq
			break
		}
	}
	if kingSq < 0 {
		return 0
	}

	dir := 8
	if color == chess.Black {
		dir = -8
	}
	file := int(kingSq.File())

	candidates, shielded := 0, 0
	for df := -1; df <= 1; df++ {
		if f := file + df; f < 0 || f > 7 {
			continue
		}
		target := int(kingSq) + dir + df
		if target < 0 || target > 63 {
			continue
		}
		candidates++
		pc := board.Piece(chess.Square(target))
		if pc.Type() == chess.Pawn && pc.Color() == color {
			shielded++
		}
	}
	if candidates == 0 {
		// King on the back-most rank in its walking direction; nothing
		// to shield against from ahead.
		return 1
	}
	return float64(shielded) / float64(candidates)
}

// tension is the fraction of the side-to-move's legal moves that are
// captures.
func tension(g *chess.Game) float64 {
	moves := g.ValidMoves()
	if len(moves) == 0 {
		return 0
	}
	captures := 0
	for _, m := range moves {
		if m.HasTag(chess.Capture) || m.HasTag(chess.EnPassant) {
			captures++
		}
	}
	return float64(captures) / float64(len(moves))
}

// buildProfile aggregates one side's moves into its psychological
// profile: quality streaks, the biggest single-move evaluation swing,
// how time spent correlates with move quality, and phase-bucketed
// average loss.
func buildProfile(side string, positions []store.PositionReview) store.PsychologicalProfile {
	prof := store.PsychologicalProfile{Side: side}

	var (
		goodStreak, poorStreak int
		spentSamples           []float64
		lossSamples            []float64
		prevClock              *int64
		openLosses             []float64
		midLosses              []float64
		endLosses              []float64
	)

	for _, pr := range positions {
		mover, err := sideToMoveFromFEN(pr.FENBefore)
		if err != nil || mover != side {
			continue
		}

		loss := pr.CentipawnLoss

		if loss <= goodMoveLoss {
			goodStreak++
			poorStreak = 0
		} else if loss >= poorMoveLoss {
			poorStreak++
			goodStreak = 0
		} else {
			goodStreak = 0
			poorStreak = 0
		}
		if goodStreak > prof.LongestGoodStreak {
			prof.LongestGoodStreak = goodStreak
		}
		if poorStreak > prof.LongestPoorStreak {
			prof.LongestPoorStreak = poorStreak
		}

		swing := math.Abs(float64(storeScoreCP(pr.EvalAfter) - storeScoreCP(pr.EvalBefore)))
		if swing > prof.BiggestSwing {
			prof.BiggestSwing = swing
		}

		// Clocks record time remaining; spend is the drop between this
		// side's consecutive moves.
		if pr.ClockMS != nil {
			if prevClock != nil {
				spent := *prevClock - *pr.ClockMS
				if spent < 0 {
					spent = 0
				}
				spentSamples = append(spentSamples, float64(spent))
				lossSamples = append(lossSamples, float64(loss))
			}
			prevClock = pr.ClockMS
		}

		switch {
		case pr.Ply <= openingLastPly:
			openLosses = append(openLosses, float64(loss))
		case pr.Ply <= middlegameLastPly:
			midLosses = append(midLosses, float64(loss))
		default:
			endLosses = append(endLosses, float64(loss))
		}
	}

	prof.TimeQualityCorrelation = pearson(spentSamples, lossSamples)
	prof.OpeningAvgLoss = mean(openLosses)
	prof.MiddlegameAvgLoss = mean(midLosses)
	prof.EndgameAvgLoss = mean(endLosses)
	return prof
}

// storeScoreCP converts a stored tagged score to plain centipawns
// using the same mate conversion the review arithmetic uses.
func storeScoreCP(s store.Score) int {
	if s.Type != "mate" {
		return s.Value
	}
	if s.Value >= 0 {
		return 20000 - s.Value*500
	}
	return -(20000 - (-s.Value)*500)
}

// moverPerspectiveCP flips a white-perspective stored score into the
// moving side's perspective.
func moverPerspectiveCP(s store.Score, mover string) int {
	cp := storeScoreCP(s)
	if mover == "black" {
		return -cp
	}
	return cp
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var total float64
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

// pearson computes the correlation coefficient of two equal-length
// samples, 0 when there are fewer than two points or no variance.
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}
