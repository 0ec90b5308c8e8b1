package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// InitReview creates the game_reviews row the first time a game is
// enqueued, with current_ply 0. If a row already exists (a resume),
// it is left untouched so the caller can read back analyzed_plies.
func (s *Store) InitReview(ctx context.Context, gameID string, status ReviewStatus, totalPlies, analysisDepth int, nowUnix int64) error {
	_, err := s.sb.Insert("game_reviews").
		Columns("game_id", "status", "current_ply", "total_plies", "analysis_depth", "created_at").
		Values(gameID, string(status), 0, totalPlies, analysisDepth, nowUnix).
		Suffix("ON CONFLICT(game_id) DO NOTHING").
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: init review: %w", err)
	}
	return nil
}

// BeginReviewAnalysis transitions a queued (or previously failed)
// review to Analyzing, marking the point a worker has actually picked
// it up.
func (s *Store) BeginReviewAnalysis(ctx context.Context, gameID string) error {
	_, err := s.sb.Update("game_reviews").
		Set("status", string(ReviewAnalyzing)).
		Where("game_id = ?", gameID).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: begin review analysis: %w", err)
	}
	return nil
}

// GetReviewStatus reports a review's status and resume point without
// loading per-ply rows.
func (s *Store) GetReviewStatus(ctx context.Context, gameID string) (status ReviewStatus, currentPly, totalPlies int, err error) {
	row := s.sb.Select("status", "current_ply", "total_plies").
		From("game_reviews").Where("game_id = ?", gameID).RunWith(s.db).QueryRowContext(ctx)

	var raw string
	if err := row.Scan(&raw, &currentPly, &totalPlies); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, 0, ErrNotFound
		}
		return "", 0, 0, fmt.Errorf("store: review status: %w", err)
	}
	return ReviewStatus(raw), currentPly, totalPlies, nil
}

// SavePositionReviewAndAdvance persists one ply's review and advances
// current_ply in the same transaction: the crash-safety boundary the
// worker relies on to resume correctly after a restart.
func (s *Store) SavePositionReviewAndAdvance(ctx context.Context, gameID string, pr PositionReview) error {
	pvJSON, err := json.Marshal(pr.PV)
	if err != nil {
		return fmt.Errorf("store: marshal pv: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.sb.Insert("position_reviews").
			Columns("game_id", "ply", "fen_before", "san", "best_move_san", "best_move_uci",
				"eval_before_type", "eval_before_value", "eval_after_type", "eval_after_value",
				"eval_best_type", "eval_best_value", "classification", "centipawn_loss", "pv", "depth", "clock_ms").
			Values(gameID, pr.Ply, pr.FENBefore, pr.SAN, pr.BestMoveSAN, pr.BestMoveUCI,
				pr.EvalBefore.Type, pr.EvalBefore.Value, pr.EvalAfter.Type, pr.EvalAfter.Value,
				pr.EvalBest.Type, pr.EvalBest.Value, pr.Classification, pr.CentipawnLoss, string(pvJSON), pr.Depth, pr.ClockMS).
			Suffix(`ON CONFLICT(game_id, ply) DO UPDATE SET
				fen_before=excluded.fen_before, san=excluded.san, best_move_san=excluded.best_move_san,
				best_move_uci=excluded.best_move_uci, eval_before_type=excluded.eval_before_type,
				eval_before_value=excluded.eval_before_value, eval_after_type=excluded.eval_after_type,
				eval_after_value=excluded.eval_after_value, eval_best_type=excluded.eval_best_type,
				eval_best_value=excluded.eval_best_value, classification=excluded.classification,
				centipawn_loss=excluded.centipawn_loss, pv=excluded.pv, depth=excluded.depth, clock_ms=excluded.clock_ms`).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("insert position_review ply=%d: %w", pr.Ply, err)
		}

		_, err = s.sb.Update("game_reviews").
			Set("current_ply", pr.Ply).
			Where("game_id = ?", gameID).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("advance current_ply: %w", err)
		}
		return nil
	})
}

// CompleteReview finalizes a review once every ply has been evaluated.
func (s *Store) CompleteReview(ctx context.Context, gameID string, whiteAccuracy, blackAccuracy float64, winner string, completedAt int64) error {
	_, err := s.sb.Update("game_reviews").
		Set("status", string(ReviewComplete)).
		Set("white_accuracy", whiteAccuracy).
		Set("black_accuracy", blackAccuracy).
		Set("winner", winner).
		Set("completed_at", completedAt).
		Where("game_id = ?", gameID).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: complete review: %w", err)
	}
	return nil
}

// FailReview transitions a review to Failed with an error message.
func (s *Store) FailReview(ctx context.Context, gameID string, reviewErr string) error {
	_, err := s.sb.Update("game_reviews").
		Set("status", string(ReviewFailed)).
		Set("error", reviewErr).
		Where("game_id = ?", gameID).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: fail review: %w", err)
	}
	return nil
}

// GetReview loads a review and all of its per-ply positions, ordered
// by ply.
func (s *Store) GetReview(ctx context.Context, gameID string) (GameReview, error) {
	row := s.sb.Select("game_id", "status", "current_ply", "total_plies", "white_accuracy", "black_accuracy",
		"analysis_depth", "error", "winner", "created_at", "completed_at").
		From("game_reviews").Where("game_id = ?", gameID).RunWith(s.db).QueryRowContext(ctx)

	var gr GameReview
	var status string
	var reviewErr, winner sql.NullString
	var whiteAcc, blackAcc sql.NullFloat64
	var completedAt sql.NullInt64

	err := row.Scan(&gr.GameID, &status, &gr.CurrentPly, &gr.TotalPlies, &whiteAcc, &blackAcc,
		&gr.AnalysisDepth, &reviewErr, &winner, &gr.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return GameReview{}, ErrNotFound
	}
	if err != nil {
		return GameReview{}, fmt.Errorf("store: load review: %w", err)
	}
	gr.Status = ReviewStatus(status)
	gr.Error = reviewErr.String
	gr.Winner = winner.String
	if whiteAcc.Valid {
		gr.WhiteAccuracy = &whiteAcc.Float64
	}
	if blackAcc.Valid {
		gr.BlackAccuracy = &blackAcc.Float64
	}
	if completedAt.Valid {
		gr.CompletedAt = &completedAt.Int64
	}

	rows, err := s.sb.Select("ply", "fen_before", "san", "best_move_san", "best_move_uci",
		"eval_before_type", "eval_before_value", "eval_after_type", "eval_after_value",
		"eval_best_type", "eval_best_value", "classification", "centipawn_loss", "pv", "depth", "clock_ms").
		From("position_reviews").Where("game_id = ?", gameID).OrderBy("ply ASC").RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return GameReview{}, fmt.Errorf("store: load position reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pr PositionReview
		var pvJSON string
		if err := rows.Scan(&pr.Ply, &pr.FENBefore, &pr.SAN, &pr.BestMoveSAN, &pr.BestMoveUCI,
			&pr.EvalBefore.Type, &pr.EvalBefore.Value, &pr.EvalAfter.Type, &pr.EvalAfter.Value,
			&pr.EvalBest.Type, &pr.EvalBest.Value, &pr.Classification, &pr.CentipawnLoss, &pvJSON, &pr.Depth, &pr.ClockMS); err != nil {
			return GameReview{}, fmt.Errorf("store: scan position review: %w", err)
		}
		if err := json.Unmarshal([]byte(pvJSON), &pr.PV); err != nil {
			return GameReview{}, fmt.Errorf("store: unmarshal pv: %w", err)
		}
		gr.Positions = append(gr.Positions, pr)
	}
	return gr, rows.Err()
}

// DeleteReview removes a review and its position rows (via cascade)
// without touching the finished game itself.
func (s *Store) DeleteReview(ctx context.Context, gameID string) error {
	_, err := s.sb.Delete("game_reviews").Where("game_id = ?", gameID).RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: delete review: %w", err)
	}
	return nil
}
