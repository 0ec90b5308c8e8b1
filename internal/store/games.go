package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SaveFinishedGame writes a finished game and all of its move rows in
// a single transaction.
func (s *Store) SaveFinishedGame(ctx context.Context, g FinishedGame, nowUnix int64) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.sb.Insert("finished_games").
			Columns("id", "start_fen", "final_fen", "mode", "human_side", "skill", "outcome", "reason", "created_at").
			Values(g.ID, g.StartFEN, g.FinalFEN, g.Mode, g.HumanSide, g.Skill, g.Outcome, g.Reason, nowUnix).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("insert finished_games: %w", err)
		}

		for _, m := range g.Moves {
			_, err := s.sb.Insert("move_records").
				Columns("game_id", "ply", "from_square", "to_square", "piece", "captured", "promotion", "san", "fen_before", "fen_after", "clock_ms").
				Values(g.ID, m.Ply, m.From, m.To, m.Piece, m.Captured, m.Promotion, m.SAN, m.FENBefore, m.FENAfter, m.ClockMS).
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("insert move_records ply=%d: %w", m.Ply, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store: save finished game: %w", err)
	}
	return g.ID, nil
}

// GetFinishedGame loads a finished game and its moves by id.
func (s *Store) GetFinishedGame(ctx context.Context, id string) (FinishedGame, error) {
	row := s.sb.Select("id", "start_fen", "final_fen", "mode", "human_side", "skill", "outcome", "reason", "created_at").
		From("finished_games").Where("id = ?", id).RunWith(s.db).QueryRowContext(ctx)

	var g FinishedGame
	err := row.Scan(&g.ID, &g.StartFEN, &g.FinalFEN, &g.Mode, &g.HumanSide, &g.Skill, &g.Outcome, &g.Reason, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return FinishedGame{}, ErrNotFound
	}
	if err != nil {
		return FinishedGame{}, fmt.Errorf("store: load finished game: %w", err)
	}

	rows, err := s.sb.Select("ply", "from_square", "to_square", "piece", "captured", "promotion", "san", "fen_before", "fen_after", "clock_ms").
		From("move_records").Where("game_id = ?", id).OrderBy("ply ASC").RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return FinishedGame{}, fmt.Errorf("store: load moves: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m MoveRow
		if err := rows.Scan(&m.Ply, &m.From, &m.To, &m.Piece, &m.Captured, &m.Promotion, &m.SAN, &m.FENBefore, &m.FENAfter, &m.ClockMS); err != nil {
			return FinishedGame{}, fmt.Errorf("store: scan move: %w", err)
		}
		g.Moves = append(g.Moves, m)
	}
	return g, rows.Err()
}

// ListFinishedGames lists finished games newest first, without move rows.
func (s *Store) ListFinishedGames(ctx context.Context) ([]FinishedGame, error) {
	rows, err := s.sb.Select("id", "start_fen", "final_fen", "mode", "human_side", "skill", "outcome", "reason", "created_at").
		From("finished_games").OrderBy("created_at DESC").RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list finished games: %w", err)
	}
	defer rows.Close()

	var out []FinishedGame
	for rows.Next() {
		var g FinishedGame
		if err := rows.Scan(&g.ID, &g.StartFEN, &g.FinalFEN, &g.Mode, &g.HumanSide, &g.Skill, &g.Outcome, &g.Reason, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan finished game: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// DeleteFinishedGame removes a finished game. The foreign-key cascade
// (enforced by PRAGMA foreign_keys=ON) takes its review, advanced
// analysis, and all dependent rows with it.
func (s *Store) DeleteFinishedGame(ctx context.Context, id string) error {
	_, err := s.sb.Delete("finished_games").Where("id = ?", id).RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: delete finished game: %w", err)
	}
	return nil
}
