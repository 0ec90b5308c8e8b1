package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chesstty/chesstty/internal/store"
	"github.com/chesstty/chesstty/internal/uci"
)

// ErrBackpressure is returned by Enqueue when the bounded job mailbox
// is full.
var ErrBackpressure = errors.New("review: queue is full")

// ErrDuplicateEnqueue is returned by Enqueue when the game already has
// a review in flight.
var ErrDuplicateEnqueue = errors.New("review: already in flight")

type analysisJob struct {
	GameID string
}

// Manager owns the bounded analysis mailbox, the in-flight set, and the
// fixed worker pool. Each worker owns its own engine subprocess for the
// lifetime of the pool, per "a dedicated engine per worker".
type Manager struct {
	mailbox chan analysisJob

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}

	store *store.Store

	enginePath    string
	analysisDepth int
	workerCount   int

	logger *zap.SugaredLogger
	group  *errgroup.Group
}

// Config carries the review subsystem's tunables, all sourced from
// internal/config.Config.
type Config struct {
	EnginePath    string
	AnalysisDepth int
	WorkerCount   int
	QueueCapacity int
}

// New constructs a review manager. Call Start to bring up the worker
// pool before calling Enqueue.
func New(st *store.Store, cfg Config, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	queueCapacity := cfg.QueueCapacity
	if queueCapacity <= 0 {
		queueCapacity = 64
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	analysisDepth := cfg.AnalysisDepth
	if analysisDepth <= 0 {
		// A zero depth would encode as a bare "go", an unbounded search
		// that never returns a bestmove.
		analysisDepth = 18
	}
	return &Manager{
		mailbox:       make(chan analysisJob, queueCapacity),
		inFlight:      make(map[string]struct{}),
		store:         st,
		enginePath:    cfg.EnginePath,
		analysisDepth: analysisDepth,
		workerCount:   workerCount,
		logger:        logger,
	}
}

// Start spawns the fixed worker pool, each with its own engine
// subprocess, and returns once every worker's engine has been spawned
// (or the first spawn failure, which aborts the rest).
func (m *Manager) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	m.group = g

	spawned := make(chan error, m.workerCount)
	for i := 0; i < m.workerCount; i++ {
		g.Go(func() error {
			driver, err := uci.Spawn(gctx, m.enginePath, uci.EngineConfig{}, m.logger)
			spawned <- err
			if err != nil {
				return err
			}
			defer driver.Shutdown()
			m.runWorker(gctx, driver)
			return nil
		})
	}

	for i := 0; i < m.workerCount; i++ {
		if err := <-spawned; err != nil {
			return fmt.Errorf("review: start worker pool: %w", err)
		}
	}
	return nil
}

// Wait blocks until every worker goroutine has returned, propagating
// the first error (e.g. an engine that failed to spawn).
func (m *Manager) Wait() error {
	if m.group == nil {
		return nil
	}
	return m.group.Wait()
}

func (m *Manager) runWorker(ctx context.Context, driver *uci.Driver) {
	for {
		select {
		case job, ok := <-m.mailbox:
			if !ok {
				return
			}
			m.process(ctx, driver, job)
		case <-ctx.Done():
			return
		}
	}
}

// Enqueue accepts a finished game for review. It rejects a game id
// already in flight, and returns ErrBackpressure if the bounded
// mailbox is full.
func (m *Manager) Enqueue(ctx context.Context, gameID string, nowUnix int64) (store.ReviewStatus, error) {
	m.inFlightMu.Lock()
	if _, busy := m.inFlight[gameID]; busy {
		m.inFlightMu.Unlock()
		return "", ErrDuplicateEnqueue
	}
	m.inFlight[gameID] = struct{}{}
	m.inFlightMu.Unlock()

	// A completed review is returned as-is, never re-run: enqueueing a
	// finished analysis is idempotent.
	if status, _, _, err := m.store.GetReviewStatus(ctx, gameID); err == nil && status == store.ReviewComplete {
		m.releaseInFlight(gameID)
		return store.ReviewComplete, nil
	}

	game, err := m.store.GetFinishedGame(ctx, gameID)
	if err != nil {
		m.releaseInFlight(gameID)
		return "", err
	}

	if err := m.store.InitReview(ctx, gameID, store.ReviewQueued, len(game.Moves), m.analysisDepth, nowUnix); err != nil {
		m.releaseInFlight(gameID)
		return "", err
	}

	select {
	case m.mailbox <- analysisJob{GameID: gameID}:
		return store.ReviewQueued, nil
	default:
		m.releaseInFlight(gameID)
		return "", ErrBackpressure
	}
}

func (m *Manager) releaseInFlight(gameID string) {
	m.inFlightMu.Lock()
	delete(m.inFlight, gameID)
	m.inFlightMu.Unlock()
}

// GetStatus reports a review's lifecycle status and resume point.
func (m *Manager) GetStatus(ctx context.Context, gameID string) (store.ReviewStatus, int, int, error) {
	return m.store.GetReviewStatus(ctx, gameID)
}

// GetReview returns a finished review, including every analyzed ply.
func (m *Manager) GetReview(ctx context.Context, gameID string) (store.GameReview, error) {
	return m.store.GetReview(ctx, gameID)
}

// DeleteFinished removes a game's review (not the finished game
// itself), per the manager's distinct delete_finished operation.
func (m *Manager) DeleteFinished(ctx context.Context, gameID string) error {
	return m.store.DeleteReview(ctx, gameID)
}
