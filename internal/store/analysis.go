package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SaveAdvancedAnalysis writes a finished game's advanced analysis (per
// position tactical/king-safety data plus both sides' psychological
// profiles) as one transaction, replacing any prior analysis for the
// same game.
func (s *Store) SaveAdvancedAnalysis(ctx context.Context, a AdvancedAnalysis, nowUnix int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.sb.Delete("advanced_analyses").Where("game_id = ?", a.GameID).RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("clear advanced_analyses: %w", err)
		}

		if _, err := s.sb.Insert("advanced_analyses").
			Columns("game_id", "created_at").
			Values(a.GameID, nowUnix).
			RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert advanced_analyses: %w", err)
		}

		for _, p := range a.Positions {
			tagsJSON, err := json.Marshal(p.TacticalTags)
			if err != nil {
				return fmt.Errorf("marshal tactical_tags ply=%d: %w", p.Ply, err)
			}
			if _, err := s.sb.Insert("position_analyses").
				Columns("game_id", "ply", "tactical_tags", "white_king_safety", "black_king_safety", "tension", "critical").
				Values(a.GameID, p.Ply, string(tagsJSON), p.WhiteKingSafety, p.BlackKingSafety, p.Tension, p.Critical).
				RunWith(tx).ExecContext(ctx); err != nil {
				return fmt.Errorf("insert position_analyses ply=%d: %w", p.Ply, err)
			}
		}

		for _, prof := range a.Profiles {
			if _, err := s.sb.Insert("psychological_profiles").
				Columns("game_id", "side", "longest_good_streak", "longest_poor_streak", "biggest_swing",
					"time_quality_correlation", "opening_avg_loss", "middlegame_avg_loss", "endgame_avg_loss").
				Values(a.GameID, prof.Side, prof.LongestGoodStreak, prof.LongestPoorStreak, prof.BiggestSwing,
					prof.TimeQualityCorrelation, prof.OpeningAvgLoss, prof.MiddlegameAvgLoss, prof.EndgameAvgLoss).
				RunWith(tx).ExecContext(ctx); err != nil {
				return fmt.Errorf("insert psychological_profiles side=%s: %w", prof.Side, err)
			}
		}
		return nil
	})
}

// GetAdvancedAnalysis loads a finished game's advanced analysis.
func (s *Store) GetAdvancedAnalysis(ctx context.Context, gameID string) (AdvancedAnalysis, error) {
	row := s.sb.Select("game_id", "created_at").From("advanced_analyses").Where("game_id = ?", gameID).RunWith(s.db).QueryRowContext(ctx)

	var a AdvancedAnalysis
	if err := row.Scan(&a.GameID, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AdvancedAnalysis{}, ErrNotFound
		}
		return AdvancedAnalysis{}, fmt.Errorf("store: load advanced analysis: %w", err)
	}

	posRows, err := s.sb.Select("ply", "tactical_tags", "white_king_safety", "black_king_safety", "tension", "critical").
		From("position_analyses").Where("game_id = ?", gameID).OrderBy("ply ASC").RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return AdvancedAnalysis{}, fmt.Errorf("store: load position analyses: %w", err)
	}
	defer posRows.Close()

	for posRows.Next() {
		var p PositionAnalysis
		var tagsJSON string
		if err := posRows.Scan(&p.Ply, &tagsJSON, &p.WhiteKingSafety, &p.BlackKingSafety, &p.Tension, &p.Critical); err != nil {
			return AdvancedAnalysis{}, fmt.Errorf("store: scan position analysis: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &p.TacticalTags); err != nil {
			return AdvancedAnalysis{}, fmt.Errorf("store: unmarshal tactical_tags: %w", err)
		}
		a.Positions = append(a.Positions, p)
	}
	if err := posRows.Err(); err != nil {
		return AdvancedAnalysis{}, err
	}

	profRows, err := s.sb.Select("side", "longest_good_streak", "longest_poor_streak", "biggest_swing",
		"time_quality_correlation", "opening_avg_loss", "middlegame_avg_loss", "endgame_avg_loss").
		From("psychological_profiles").Where("game_id = ?", gameID).RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return AdvancedAnalysis{}, fmt.Errorf("store: load psychological profiles: %w", err)
	}
	defer profRows.Close()

	for profRows.Next() {
		var p PsychologicalProfile
		if err := profRows.Scan(&p.Side, &p.LongestGoodStreak, &p.LongestPoorStreak, &p.BiggestSwing,
			&p.TimeQualityCorrelation, &p.OpeningAvgLoss, &p.MiddlegameAvgLoss, &p.EndgameAvgLoss); err != nil {
			return AdvancedAnalysis{}, fmt.Errorf("store: scan psychological profile: %w", err)
		}
		a.Profiles = append(a.Profiles, p)
	}
	return a, profRows.Err()
}

// DeleteAdvancedAnalysis removes an advanced analysis and its dependent
// rows via cascade, without touching the finished game itself.
func (s *Store) DeleteAdvancedAnalysis(ctx context.Context, gameID string) error {
	_, err := s.sb.Delete("advanced_analyses").Where("game_id = ?", gameID).RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: delete advanced analysis: %w", err)
	}
	return nil
}
