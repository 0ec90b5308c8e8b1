package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/notnil/chess"

	"github.com/chesstty/chesstty/internal/chessutil"
	"github.com/chesstty/chesstty/internal/session"
	"github.com/chesstty/chesstty/internal/store"
	"github.com/chesstty/chesstty/internal/uci"
)

const analysisTimeout = 30 * time.Second

// process runs one job to completion (or failure), resuming from
// analyzed_plies if a prior partial review exists, and always releases
// the game's in-flight slot on the way out.
func (m *Manager) process(ctx context.Context, driver *uci.Driver, job analysisJob) {
	defer m.releaseInFlight(job.GameID)

	game, err := m.store.GetFinishedGame(ctx, job.GameID)
	if err != nil {
		m.logger.Errorw("review: failed to load finished game", "game_id", job.GameID, "error", err)
		return
	}

	status, currentPly, _, err := m.store.GetReviewStatus(ctx, job.GameID)
	if err != nil {
		m.logger.Errorw("review: failed to load review status", "game_id", job.GameID, "error", err)
		return
	}
	if status == store.ReviewComplete {
		return
	}
	if err := m.store.BeginReviewAnalysis(ctx, job.GameID); err != nil {
		m.logger.Errorw("review: failed to begin analysis", "game_id", job.GameID, "error", err)
		return
	}

	for ply := currentPly + 1; ply <= len(game.Moves); ply++ {
		mv := game.Moves[ply-1]
		pr, err := m.reviewOnePly(ctx, driver, ply, mv)
		if err != nil {
			m.logger.Errorw("review: ply analysis failed", "game_id", job.GameID, "ply", ply, "error", err)
			if failErr := m.store.FailReview(ctx, job.GameID, err.Error()); failErr != nil {
				m.logger.Errorw("review: failed to record failure", "game_id", job.GameID, "error", failErr)
			}
			return
		}
		if err := m.store.SavePositionReviewAndAdvance(ctx, job.GameID, pr); err != nil {
			m.logger.Errorw("review: failed to persist position review", "game_id", job.GameID, "ply", ply, "error", err)
			return
		}
	}

	if err := m.finishReview(ctx, job.GameID, game); err != nil {
		m.logger.Errorw("review: failed to finalize review", "game_id", job.GameID, "error", err)
		return
	}

	// The advanced breakdown is derived entirely from the completed
	// review; failing to produce it never un-completes the review.
	if err := m.computeAdvancedAnalysis(ctx, job.GameID); err != nil {
		m.logger.Errorw("review: failed to compute advanced analysis", "game_id", job.GameID, "error", err)
	}
}

// reviewOnePly implements the per-ply algorithm: search the position
// before the move for the best continuation, search (or infer) the
// position after, classify the centipawn loss, and normalize every
// evaluation to white's perspective for storage.
func (m *Manager) reviewOnePly(ctx context.Context, driver *uci.Driver, ply int, mv store.MoveRow) (store.PositionReview, error) {
	mover, err := sideToMoveFromFEN(mv.FENBefore)
	if err != nil {
		return store.PositionReview{}, err
	}

	bestMove, pv, bestScore, err := m.analyze(ctx, driver, mv.FENBefore)
	if err != nil {
		return store.PositionReview{}, fmt.Errorf("search fen_before: %w", err)
	}
	bestCPMover := bestScore.Centipawns()

	opponent := "black"
	if mover == "black" {
		opponent = "white"
	}

	// afterScore is from the opponent's perspective (the side to move
	// at fen_after); negate to express it in the mover's perspective for
	// the cp_loss arithmetic below.
	afterScore, err := m.playedEval(ctx, driver, mv.FENAfter)
	if err != nil {
		return store.PositionReview{}, fmt.Errorf("search fen_after: %w", err)
	}
	playedCPMover := afterScore.Negate().Centipawns()

	cpLoss := bestCPMover - playedCPMover
	if cpLoss < 0 {
		cpLoss = 0
	}

	forced, err := isForcedAtFEN(mv.FENBefore)
	if err != nil {
		return store.PositionReview{}, err
	}
	classification := Classify(cpLoss, forced)

	bestSAN := bestMoveSAN(mv.FENBefore, bestMove)

	return store.PositionReview{
		Ply:            ply,
		FENBefore:      mv.FENBefore,
		SAN:            mv.SAN,
		BestMoveSAN:    bestSAN,
		BestMoveUCI:    bestMove,
		EvalBefore:     normalizeScoreToWhite(bestScore, mover),
		EvalAfter:      normalizeScoreToWhite(afterScore, opponent),
		EvalBest:       normalizeScoreToWhite(bestScore, mover),
		Classification: string(classification),
		CentipawnLoss:  cpLoss,
		PV:             pv,
		Depth:          m.analysisDepth,
		ClockMS:        mv.ClockMS,
	}, nil
}

// playedEval evaluates the position that actually resulted from the
// move, from the perspective of the side to move at fen_after (the
// mover's opponent). A terminal position (checkmate or stalemate) has
// no legal moves to search, so its score is inferred directly instead,
// preserving the mate/cp distinction rather than collapsing to a plain
// centipawn integer.
func (m *Manager) playedEval(ctx context.Context, driver *uci.Driver, fenAfter string) (uci.Score, error) {
	g, err := chessutil.NewFromFEN(fenAfter)
	if err != nil {
		return uci.Score{}, err
	}
	status := chessutil.GameStatus(g)

	switch status.Method {
	case chess.Checkmate:
		// The side to move at fen_after has just been checkmated by the
		// move that was played: mate in 0 from their own perspective.
		return uci.MateIn(0), nil
	case chess.Stalemate:
		return uci.CP(0), nil
	}

	_, _, afterScore, err := m.analyze(ctx, driver, fenAfter)
	if err != nil {
		return uci.Score{}, err
	}
	return afterScore, nil
}

// finishReview computes final accuracy for both sides and marks the
// review Complete.
func (m *Manager) finishReview(ctx context.Context, gameID string, game store.FinishedGame) error {
	full, err := m.store.GetReview(ctx, gameID)
	if err != nil {
		return err
	}

	var whiteLosses, blackLosses []int
	for i, pr := range full.Positions {
		mv := game.Moves[i]
		mover, err := sideToMoveFromFEN(mv.FENBefore)
		if err != nil {
			return err
		}
		if mover == "white" {
			whiteLosses = append(whiteLosses, pr.CentipawnLoss)
		} else {
			blackLosses = append(blackLosses, pr.CentipawnLoss)
		}
	}

	whiteAcc := Accuracy(whiteLosses)
	blackAcc := Accuracy(blackLosses)
	winner := winnerFromOutcome(game.Outcome)

	return m.store.CompleteReview(ctx, gameID, whiteAcc, blackAcc, winner, time.Now().Unix())
}

// analyze runs a search at the given FEN and returns the bestmove,
// principal variation, and score from the last info line preceding it.
func (m *Manager) analyze(ctx context.Context, driver *uci.Driver, fen string) (bestMove string, pv []string, score uci.Score, err error) {
	actx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	driver.Send(uci.SetPosition{FEN: fen})
	driver.Send(uci.Go{Depth: m.analysisDepth})

	var lastInfo uci.InfoEvent
	haveInfo := false

	for {
		select {
		case ev, ok := <-driver.Events():
			if !ok {
				return "", nil, uci.Score{}, errors.New("review: engine event stream closed")
			}
			switch e := ev.(type) {
			case uci.InfoEvent:
				lastInfo = e
				haveInfo = true
			case uci.BestMoveEvent:
				if !haveInfo {
					return e.Move, nil, uci.Score{}, errors.New("review: bestmove without a preceding score")
				}
				return e.Move, lastInfo.PV, lastInfo.Score, nil
			case uci.ErrorEvent:
				if e.Err != nil {
					return "", nil, uci.Score{}, fmt.Errorf("engine error: %w", e.Err)
				}
				return "", nil, uci.Score{}, errors.New("engine error")
			}
		case <-actx.Done():
			return "", nil, uci.Score{}, fmt.Errorf("analysis timed out: %w", actx.Err())
		}
	}
}

// sideToMoveFromFEN reads the side-to-move field of a full FEN string.
func sideToMoveFromFEN(fen string) (string, error) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "", fmt.Errorf("review: malformed fen %q", fen)
	}
	switch fields[1] {
	case "w":
		return "white", nil
	case "b":
		return "black", nil
	default:
		return "", fmt.Errorf("review: unknown side-to-move field %q", fields[1])
	}
}

// normalizeToWhite converts a mover-perspective centipawn value to
// white's perspective, per "positive always favours white".
func normalizeToWhite(cpMoverPerspective int, mover string) int {
	if mover == "black" {
		return -cpMoverPerspective
	}
	return cpMoverPerspective
}

// normalizeScoreToWhite converts a tagged score given from perspective's
// point of view to white's perspective for storage, preserving the
// mate/cp distinction instead of collapsing it to a centipawn integer.
func normalizeScoreToWhite(s uci.Score, perspective string) store.Score {
	return store.Score{Type: s.Kind.String(), Value: normalizeToWhite(s.Value, perspective)}
}

func isForcedAtFEN(fen string) (bool, error) {
	g, err := chessutil.NewFromFEN(fen)
	if err != nil {
		return false, err
	}
	return chessutil.IsForced(g), nil
}

// bestMoveSAN renders the engine's recommended move in SAN relative to
// the position it was recommended from. An empty string is returned
// (rather than an error) if the move cannot be matched, which should
// never happen for a well-formed engine response.
func bestMoveSAN(fenBefore, uciMove string) string {
	g, err := chessutil.NewFromFEN(fenBefore)
	if err != nil {
		return ""
	}
	mv, err := chessutil.FindByUCI(g, uciMove)
	if err != nil {
		return ""
	}
	return chessutil.SAN(g.Position(), mv)
}

// winnerFromOutcome maps a stored FinishedGame.Outcome (session.Outcome
// encoding) to the review's winner field.
func winnerFromOutcome(outcome int) string {
	switch session.Outcome(outcome) {
	case session.WhiteWon:
		return "white"
	case session.BlackWon:
		return "black"
	case session.Draw:
		return "draw"
	default:
		return ""
	}
}
