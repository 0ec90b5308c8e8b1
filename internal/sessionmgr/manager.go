// Package sessionmgr implements the session directory: the map from
// session id to its actor, guarded by a reader-preferred shared lock,
// plus the create/close/suspend/resume lifecycle operations that sit
// above the per-session actor.
package sessionmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/notnil/chess"
	"go.uber.org/zap"

	"github.com/chesstty/chesstty/internal/session"
	"github.com/chesstty/chesstty/internal/store"
	"github.com/chesstty/chesstty/internal/uci"
)

// ErrUnknownSession is returned when an id does not name a live entry
// in the directory. It is distinct from session.ErrUnknownSession,
// which the actor layer never actually returns (a stopped actor
// reports ErrActorStopped instead); this is the directory-level
// "no such session" error callers should check with errors.Is.
var ErrUnknownSession = errors.New("sessionmgr: unknown session")

type entry struct {
	actor  *session.Actor
	cancel context.CancelFunc
}

// Manager is the session directory. It never mutates session state
// itself; every state change goes through the named actor's mailbox.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	archiveMu sync.Mutex
	archiving map[string]struct{}

	store *store.Store

	enginePath        string
	broadcastCapacity int

	logger *zap.SugaredLogger
}

// New constructs a session manager. enginePath is forwarded to
// uci.Spawn for every session whose engine is enabled.
func New(st *store.Store, enginePath string, broadcastCapacity int, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if broadcastCapacity <= 0 {
		broadcastCapacity = 100
	}
	return &Manager{
		entries:           make(map[string]*entry),
		archiving:         make(map[string]struct{}),
		store:             st,
		enginePath:        enginePath,
		broadcastCapacity: broadcastCapacity,
		logger:            logger,
	}
}

// Create spawns a new session: it instantiates session state from the
// given config, optionally spawns an engine subprocess, starts the
// actor's run loop, and registers it in the directory.
func (m *Manager) Create(ctx context.Context, cfg session.Config) (string, session.Snapshot, error) {
	id := uuid.NewString()

	// engine stays a nil interface (not a nil *uci.Driver stored in
	// one) when the session plays without an engine, so the actor's
	// `driver == nil` checks behave.
	var engine session.EngineHandle
	if cfg.Engine.Enabled {
		d, err := uci.Spawn(ctx, m.enginePath, cfg.Engine.UCIConfig(), m.logger)
		if err != nil {
			return "", session.Snapshot{}, fmt.Errorf("sessionmgr: spawn engine: %w", err)
		}
		engine = d
	}

	actor, err := session.NewActor(id, cfg, engine, m, m.broadcastCapacity, m.logger)
	if err != nil {
		if engine != nil {
			engine.Shutdown()
		}
		return "", session.Snapshot{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	go actor.Run(runCtx)

	m.mu.Lock()
	m.entries[id] = &entry{actor: actor, cancel: cancel}
	m.mu.Unlock()

	return id, actor.Snapshot(), nil
}

// Send forwards a command to the named session's mailbox.
func (m *Manager) Send(id string, cmd session.Command) error {
	e, ok := m.lookup(id)
	if !ok {
		return ErrUnknownSession
	}
	if err := e.actor.Send(cmd); err != nil {
		return err
	}
	return nil
}

// Subscribe returns a broadcast receiver for the named session, whose
// first delivered event is always the current StateChanged.
func (m *Manager) Subscribe(id string) (<-chan session.Event, error) {
	e, ok := m.lookup(id)
	if !ok {
		return nil, ErrUnknownSession
	}
	reply := make(chan session.SubscribeResult, 1)
	if err := e.actor.Send(session.Subscribe{Reply: reply}); err != nil {
		return nil, err
	}
	res := <-reply
	return res.Events, nil
}

// Snapshot returns the named session's current snapshot.
func (m *Manager) Snapshot(id string) (session.Snapshot, error) {
	e, ok := m.lookup(id)
	if !ok {
		return session.Snapshot{}, ErrUnknownSession
	}
	reply := make(chan session.SnapshotResult, 1)
	if err := e.actor.Send(session.GetSnapshot{Reply: reply}); err != nil {
		return session.Snapshot{}, err
	}
	res := <-reply
	return res.Snapshot, res.Err
}

// Close stops a session's actor and removes it from the directory. A
// session whose game already ended has no entry left to close:
// ArchiveFinished already removed it and stopped the actor on its way
// out, so Close on such an id returns ErrUnknownSession like any other
// unknown id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	reply := make(chan struct{})
	_ = e.actor.Send(session.Shutdown{Reply: reply})
	select {
	case <-reply:
	case <-time.After(5 * time.Second):
		m.logger.Warnw("session shutdown did not confirm in time", "session", id)
	}
	e.cancel()
	return nil
}

// Suspend snapshots the session, persists it as a SuspendedSession row,
// then closes the actor without archiving it as a finished game.
func (m *Manager) Suspend(ctx context.Context, id string, nowUnix int64) (string, error) {
	snap, err := m.Snapshot(id)
	if err != nil {
		return "", err
	}

	suspendedID, err := m.store.SaveSuspended(ctx, store.SuspendedSession{
		FEN:        snap.FEN,
		SideToMove: colorToString(snap.SideToMove),
		MoveCount:  snap.MoveCount,
		Mode:       int(snap.Mode),
		HumanSide:  colorPtrToString(snap.HumanSide),
		Skill:      snap.Engine.Skill,
	}, nowUnix)
	if err != nil {
		return "", fmt.Errorf("sessionmgr: save suspended session: %w", err)
	}

	if err := m.Close(id); err != nil && !errors.Is(err, ErrUnknownSession) {
		return "", err
	}
	return suspendedID, nil
}

// ResumeSuspended reads a suspended-session row, recreates a live
// session from its stored FEN (move history is intentionally not
// restored, per the resolved design question), and deletes the row
// once the new session is live.
func (m *Manager) ResumeSuspended(ctx context.Context, suspendedID string) (string, session.Snapshot, error) {
	row, err := m.store.LoadSuspended(ctx, suspendedID)
	if err != nil {
		return "", session.Snapshot{}, fmt.Errorf("sessionmgr: load suspended session: %w", err)
	}

	side, err := colorFromString(row.HumanSide)
	if err != nil {
		return "", session.Snapshot{}, err
	}

	cfg := session.Config{
		FEN:       row.FEN,
		Mode:      session.GameMode(row.Mode),
		HumanSide: side,
		Engine:    session.EngineOptions{Enabled: row.Mode != int(session.HumanVsHuman), Skill: row.Skill},
	}

	id, snap, err := m.Create(ctx, cfg)
	if err != nil {
		return "", session.Snapshot{}, err
	}

	if err := m.store.DeleteSuspended(ctx, suspendedID); err != nil {
		m.logger.Warnw("resumed session but failed to delete suspended row", "suspended_id", suspendedID, "error", err)
	}
	return id, snap, nil
}

// ArchiveFinished implements session.Archiver. It serializes the
// archival step per session id so a concluded game is written to the
// finished_games table exactly once, even if Close races with the
// actor's own end-of-game path, and drops the session's directory
// entry: the actor's own Run loop is already exiting by the time this
// is called, so sending it a Shutdown command here would be redundant.
func (m *Manager) ArchiveFinished(sessionID string, snap session.Snapshot) {
	m.archiveMu.Lock()
	if _, inFlight := m.archiving[sessionID]; inFlight {
		m.archiveMu.Unlock()
		return
	}
	m.archiving[sessionID] = struct{}{}
	m.archiveMu.Unlock()

	defer func() {
		m.archiveMu.Lock()
		delete(m.archiving, sessionID)
		m.archiveMu.Unlock()
	}()

	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if ok {
		delete(m.entries, sessionID)
	}
	m.mu.Unlock()
	if ok {
		e.cancel()
	}

	if snap.Result == nil {
		m.logger.Warnw("archive requested for a session with no result", "session", sessionID)
		return
	}

	moves := make([]store.MoveRow, 0, len(snap.History))
	for i, rec := range snap.History {
		moves = append(moves, moveRowFromRecord(i+1, rec))
	}

	_, err := m.store.SaveFinishedGame(context.Background(), store.FinishedGame{
		ID:        sessionID,
		StartFEN:  startFENOf(snap),
		FinalFEN:  snap.FEN,
		Mode:      int(snap.Mode),
		HumanSide: colorPtrToString(snap.HumanSide),
		Skill:     snap.Engine.Skill,
		Outcome:   int(snap.Result.Outcome),
		Reason:    snap.Result.Reason,
		Moves:     moves,
	}, time.Now().Unix())
	if err != nil {
		m.logger.Errorw("failed to archive finished game", "session", sessionID, "error", err)
	}
}

func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

// startFENOf recovers the game's starting FEN from its first move's
// pre-move snapshot, falling back to the current FEN for a game that
// ended before any move was played.
func startFENOf(snap session.Snapshot) string {
	if len(snap.History) == 0 {
		return snap.FEN
	}
	return snap.History[0].FENBefore
}

func moveRowFromRecord(ply int, rec session.MoveRecord) store.MoveRow {
	row := store.MoveRow{
		Ply:       ply,
		From:      rec.From.String(),
		To:        rec.To.String(),
		Piece:     rec.Piece.String(),
		SAN:       rec.SAN,
		FENBefore: rec.FENBefore,
		FENAfter:  rec.FENAfter,
		ClockMS:   rec.ClockMS,
	}
	if rec.Captured != nil {
		s := rec.Captured.String()
		row.Captured = &s
	}
	if rec.Promotion != nil {
		s := rec.Promotion.String()
		row.Promotion = &s
	}
	return row
}

// colorToString/colorFromString give the persistence layer a stable
// side-to-move encoding independent of the chess library's own String
// format, which this package never parses back from another source.
func colorToString(c chess.Color) string {
	if c == chess.Black {
		return "black"
	}
	return "white"
}

func colorPtrToString(c *chess.Color) *string {
	if c == nil {
		return nil
	}
	s := colorToString(*c)
	return &s
}

func colorFromString(s *string) (*chess.Color, error) {
	if s == nil {
		return nil, nil
	}
	switch *s {
	case "white":
		c := chess.White
		return &c, nil
	case "black":
		c := chess.Black
		return &c, nil
	default:
		return nil, fmt.Errorf("sessionmgr: unknown side %q", *s)
	}
}
