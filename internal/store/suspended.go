package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SaveSuspended writes a new suspended-session row and returns its id.
func (s *Store) SaveSuspended(ctx context.Context, sess SuspendedSession, nowUnix int64) (string, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	_, err := s.sb.Insert("suspended_sessions").
		Columns("id", "fen", "side_to_move", "move_count", "mode", "human_side", "skill", "created_at").
		Values(sess.ID, sess.FEN, sess.SideToMove, sess.MoveCount, sess.Mode, sess.HumanSide, sess.Skill, nowUnix).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return "", fmt.Errorf("store: save suspended session: %w", err)
	}
	return sess.ID, nil
}

// LoadSuspended reads one suspended session by id.
func (s *Store) LoadSuspended(ctx context.Context, id string) (SuspendedSession, error) {
	row := s.sb.Select("id", "fen", "side_to_move", "move_count", "mode", "human_side", "skill", "created_at").
		From("suspended_sessions").
		Where("id = ?", id).
		RunWith(s.db).QueryRowContext(ctx)

	var sess SuspendedSession
	err := row.Scan(&sess.ID, &sess.FEN, &sess.SideToMove, &sess.MoveCount, &sess.Mode, &sess.HumanSide, &sess.Skill, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SuspendedSession{}, ErrNotFound
	}
	if err != nil {
		return SuspendedSession{}, fmt.Errorf("store: load suspended session: %w", err)
	}
	return sess, nil
}

// DeleteSuspended removes a suspended-session row, idempotently.
func (s *Store) DeleteSuspended(ctx context.Context, id string) error {
	_, err := s.sb.Delete("suspended_sessions").Where("id = ?", id).RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: delete suspended session: %w", err)
	}
	return nil
}

// ListSuspended lists suspended sessions newest first.
func (s *Store) ListSuspended(ctx context.Context) ([]SuspendedSession, error) {
	rows, err := s.sb.Select("id", "fen", "side_to_move", "move_count", "mode", "human_side", "skill", "created_at").
		From("suspended_sessions").
		OrderBy("created_at DESC").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list suspended sessions: %w", err)
	}
	defer rows.Close()

	var out []SuspendedSession
	for rows.Next() {
		var sess SuspendedSession
		if err := rows.Scan(&sess.ID, &sess.FEN, &sess.SideToMove, &sess.MoveCount, &sess.Mode, &sess.HumanSide, &sess.Skill, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan suspended session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
