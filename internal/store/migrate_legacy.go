package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// legacyRecord is the shape of one file in the legacy JSON layout. Kind
// selects which table the payload is imported into; ID is the entity's
// own primary key and doubles as the dedup key recorded in
// legacy_imports.
type legacyRecord struct {
	Kind string          `json:"kind"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type legacySuspendedSession struct {
	FEN        string  `json:"fen"`
	SideToMove string  `json:"side_to_move"`
	MoveCount  int     `json:"move_count"`
	Mode       int     `json:"mode"`
	HumanSide  *string `json:"human_side"`
	Skill      int     `json:"skill"`
	CreatedAt  int64   `json:"created_at"`
}

type legacySavedPosition struct {
	Name      string `json:"name"`
	FEN       string `json:"fen"`
	IsDefault bool   `json:"is_default"`
	CreatedAt int64  `json:"created_at"`
}

type legacyFinishedGame struct {
	StartFEN  string    `json:"start_fen"`
	FinalFEN  string    `json:"final_fen"`
	Mode      int       `json:"mode"`
	HumanSide *string   `json:"human_side"`
	Skill     int       `json:"skill"`
	Outcome   int       `json:"outcome"`
	Reason    string    `json:"reason"`
	CreatedAt int64     `json:"created_at"`
	Moves     []MoveRow `json:"moves"`
}

// ImportLegacyDirectory walks a legacy file-based JSON layout and
// imports each record into the relational store exactly once. Imports
// already recorded in legacy_imports are skipped, so a re-run against
// the same directory is a no-op. The source files are left in place as
// backup.
func (s *Store) ImportLegacyDirectory(ctx context.Context, dir string, nowUnix int64) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: read legacy dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := s.importLegacyFile(ctx, path, nowUnix); err != nil {
			return fmt.Errorf("store: import %s: %w", path, err)
		}
	}
	return nil
}

func (s *Store) importLegacyFile(ctx context.Context, path string, nowUnix int64) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var rec legacyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if rec.ID == "" {
		return fmt.Errorf("record missing primary key")
	}

	already, err := s.legacyAlreadyImported(ctx, path, rec.ID)
	if err != nil {
		return err
	}
	if already {
		s.logger.Debugw("legacy import already applied", "path", path, "entity_id", rec.ID)
		return nil
	}

	switch rec.Kind {
	case "suspended_session":
		var payload legacySuspendedSession
		if err := json.Unmarshal(rec.Data, &payload); err != nil {
			return fmt.Errorf("parse suspended_session: %w", err)
		}
		_, err = s.SaveSuspended(ctx, SuspendedSession{
			ID:         rec.ID,
			FEN:        payload.FEN,
			SideToMove: payload.SideToMove,
			MoveCount:  payload.MoveCount,
			Mode:       payload.Mode,
			HumanSide:  payload.HumanSide,
			Skill:      payload.Skill,
		}, payload.CreatedAt)
	case "saved_position":
		var payload legacySavedPosition
		if err := json.Unmarshal(rec.Data, &payload); err != nil {
			return fmt.Errorf("parse saved_position: %w", err)
		}
		_, err = s.SavePosition(ctx, SavedPosition{
			ID:        rec.ID,
			Name:      payload.Name,
			FEN:       payload.FEN,
			IsDefault: payload.IsDefault,
		}, payload.CreatedAt)
	case "finished_game":
		var payload legacyFinishedGame
		if err := json.Unmarshal(rec.Data, &payload); err != nil {
			return fmt.Errorf("parse finished_game: %w", err)
		}
		_, err = s.SaveFinishedGame(ctx, FinishedGame{
			ID:        rec.ID,
			StartFEN:  payload.StartFEN,
			FinalFEN:  payload.FinalFEN,
			Mode:      payload.Mode,
			HumanSide: payload.HumanSide,
			Skill:     payload.Skill,
			Outcome:   payload.Outcome,
			Reason:    payload.Reason,
			Moves:     payload.Moves,
		}, payload.CreatedAt)
	default:
		return fmt.Errorf("unknown legacy record kind %q", rec.Kind)
	}
	if err != nil {
		return err
	}

	return s.recordLegacyImport(ctx, path, rec.ID, nowUnix)
}

func (s *Store) legacyAlreadyImported(ctx context.Context, path, entityID string) (bool, error) {
	row := s.sb.Select("path").From("legacy_imports").
		Where("path = ? AND entity_id = ?", path, entityID).
		RunWith(s.db).QueryRowContext(ctx)
	var existing string
	if err := row.Scan(&existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check legacy_imports: %w", err)
	}
	return true, nil
}

func (s *Store) recordLegacyImport(ctx context.Context, path, entityID string, nowUnix int64) error {
	_, err := s.sb.Insert("legacy_imports").
		Columns("path", "entity_id", "imported_at").
		Values(path, entityID, nowUnix).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("record legacy_imports: %w", err)
	}
	return nil
}
