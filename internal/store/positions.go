package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SavePosition inserts a new saved position.
func (s *Store) SavePosition(ctx context.Context, pos SavedPosition, nowUnix int64) (string, error) {
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	_, err := s.sb.Insert("saved_positions").
		Columns("id", "name", "fen", "is_default", "created_at").
		Values(pos.ID, pos.Name, pos.FEN, pos.IsDefault, nowUnix).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return "", fmt.Errorf("store: save position: %w", err)
	}
	return pos.ID, nil
}

// ListPositions lists positions ordered is_default DESC, created_at DESC.
func (s *Store) ListPositions(ctx context.Context) ([]SavedPosition, error) {
	rows, err := s.sb.Select("id", "name", "fen", "is_default", "created_at").
		From("saved_positions").
		OrderBy("is_default DESC", "created_at DESC").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list positions: %w", err)
	}
	defer rows.Close()

	var out []SavedPosition
	for rows.Next() {
		var p SavedPosition
		if err := rows.Scan(&p.ID, &p.Name, &p.FEN, &p.IsDefault, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePosition removes a saved position by id. Default positions can
// never be deleted.
func (s *Store) DeletePosition(ctx context.Context, id string) error {
	row := s.sb.Select("is_default").From("saved_positions").Where("id = ?", id).RunWith(s.db).QueryRowContext(ctx)
	var isDefault bool
	if err := row.Scan(&isDefault); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store: lookup position: %w", err)
	}
	if isDefault {
		return fmt.Errorf("%w: default positions cannot be deleted", ErrConstraint)
	}

	_, err := s.sb.Delete("saved_positions").Where("id = ?", id).RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: delete position: %w", err)
	}
	return nil
}

// SeedDefaultPositions inserts the bundled default positions exactly
// once: any position id already present is left untouched.
func (s *Store) SeedDefaultPositions(ctx context.Context, defaults []SavedPosition, nowUnix int64) error {
	for _, p := range defaults {
		p.IsDefault = true
		row := s.sb.Select("id").From("saved_positions").Where("id = ?", p.ID).RunWith(s.db).QueryRowContext(ctx)
		var existing string
		err := row.Scan(&existing)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: check default position %s: %w", p.ID, err)
		}
		if _, err := s.SavePosition(ctx, p, nowUnix); err != nil {
			return err
		}
	}
	return nil
}
