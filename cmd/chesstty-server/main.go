package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/notnil/chess"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chesstty/chesstty/internal/config"
	"github.com/chesstty/chesstty/internal/review"
	"github.com/chesstty/chesstty/internal/session"
	"github.com/chesstty/chesstty/internal/sessionmgr"
	"github.com/chesstty/chesstty/internal/store"
	"github.com/chesstty/chesstty/internal/timer"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalw("failed to load configuration", "error", err)
	}

	st, err := store.Open(cfg.DBPath, sugar)
	if err != nil {
		sugar.Fatalw("failed to open database", "error", err)
	}
	defer st.Close()

	if cfg.LegacyDir != "" {
		if err := st.ImportLegacyDirectory(context.Background(), cfg.LegacyDir, time.Now().Unix()); err != nil {
			sugar.Errorw("legacy import failed", "dir", cfg.LegacyDir, "error", err)
		}
	}
	if err := st.SeedDefaultPositions(context.Background(), defaultPositions(), time.Now().Unix()); err != nil {
		sugar.Errorw("failed to seed default positions", "error", err)
	}

	sessions := sessionmgr.New(st, cfg.EnginePath, cfg.BroadcastCapacity, sugar)

	reviews := review.New(st, review.Config{
		EnginePath:    cfg.EnginePath,
		AnalysisDepth: cfg.AnalysisDepth,
		WorkerCount:   cfg.ReviewWorkers,
		QueueCapacity: cfg.ReviewQueueCapacity,
	}, sugar)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		if err := reviews.Start(gctx); err != nil {
			return err
		}
		return reviews.Wait()
	})

	api := &apiServer{sessions: sessions, reviews: reviews, store: st, logger: sugar}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	api.registerRoutes(router)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	g.Go(func() error {
		sugar.Infow("starting http server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		sugar.Info("shutdown signal received")
	case <-gctx.Done():
		sugar.Infow("a background task failed, shutting down", "error", gctx.Err())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("http server forced to shutdown", "error", err)
	}

	cancel()
	if err := g.Wait(); err != nil {
		sugar.Errorw("background task exited with error", "error", err)
	}
	sugar.Info("server exiting")
}

func defaultPositions() []store.SavedPosition {
	return []store.SavedPosition{
		{ID: "default-start", Name: "Standard start", FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", IsDefault: true},
	}
}

type apiServer struct {
	sessions *sessionmgr.Manager
	reviews  *review.Manager
	store    *store.Store
	logger   *zap.SugaredLogger
}

func (a *apiServer) registerRoutes(r *gin.Engine) {
	r.POST("/sessions", a.createSession)
	r.POST("/sessions/:id/commands", a.sendCommand)
	r.GET("/sessions/:id/events", a.streamEvents)
	r.POST("/sessions/:id/suspend", a.suspendSession)
	r.POST("/sessions/suspended/:id/resume", a.resumeSuspended)

	r.GET("/sessions/suspended", a.listSuspended)

	r.GET("/games", a.listFinishedGames)
	r.DELETE("/games/:gameID", a.deleteFinishedGame)

	r.POST("/reviews/:gameID", a.enqueueReview)
	r.GET("/reviews/:gameID", a.getReview)
	r.DELETE("/reviews/:gameID", a.deleteReview)
	r.GET("/analyses/:gameID", a.getAdvancedAnalysis)

	r.GET("/positions", a.listPositions)
	r.POST("/positions", a.savePosition)
	r.DELETE("/positions/:id", a.deletePosition)
}

type createSessionRequest struct {
	FEN       string  `json:"fen"`
	Mode      int     `json:"mode"`
	HumanSide *string `json:"human_side"`
	Engine    *struct {
		Enabled bool `json:"enabled"`
		Skill   int  `json:"skill"`
		Threads *int `json:"threads"`
		HashMB  *int `json:"hash_mb"`
	} `json:"engine"`
	TimeControlMS *int64 `json:"time_control_ms"`
}

func (a *apiServer) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	side, err := parseColorPtr(req.HumanSide)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := session.Config{
		FEN:       req.FEN,
		Mode:      session.GameMode(req.Mode),
		HumanSide: side,
	}
	if req.Engine != nil {
		cfg.Engine = session.EngineOptions{
			Enabled: req.Engine.Enabled,
			Skill:   req.Engine.Skill,
			Threads: req.Engine.Threads,
			HashMB:  req.Engine.HashMB,
		}
	}
	if req.TimeControlMS != nil {
		allowance := time.Duration(*req.TimeControlMS) * time.Millisecond
		cfg.Timer = &timer.Config{White: allowance, Black: allowance}
	}

	id, snap, err := a.sessions.Create(c.Request.Context(), cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "snapshot": snap})
}

type commandRequest struct {
	Type   string                 `json:"type" binding:"required"`
	Move   string                 `json:"move"`
	FEN    string                 `json:"fen"`
	Skill  int                    `json:"skill"`
	Engine *session.EngineOptions `json:"engine"`
}

func (a *apiServer) sendCommand(c *gin.Context) {
	id := c.Param("id")
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Type {
	case "make_move":
		reply := make(chan session.MoveResult, 1)
		if err := a.sessions.Send(id, session.MakeMove{Move: req.Move, Reply: reply}); err != nil {
			respondSendErr(c, err)
			return
		}
		res := <-reply
		respondMoveResult(c, res)
	case "undo":
		reply := make(chan session.MoveResult, 1)
		if err := a.sessions.Send(id, session.Undo{Reply: reply}); err != nil {
			respondSendErr(c, err)
			return
		}
		respondMoveResult(c, <-reply)
	case "redo":
		reply := make(chan session.MoveResult, 1)
		if err := a.sessions.Send(id, session.Redo{Reply: reply}); err != nil {
			respondSendErr(c, err)
			return
		}
		respondMoveResult(c, <-reply)
	case "reset":
		reply := make(chan session.SnapshotResult, 1)
		if err := a.sessions.Send(id, session.Reset{FEN: req.FEN, Reply: reply}); err != nil {
			respondSendErr(c, err)
			return
		}
		respondSnapshotResult(c, <-reply)
	case "set_engine":
		if req.Engine == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "engine options required"})
			return
		}
		reply := make(chan session.SnapshotResult, 1)
		if err := a.sessions.Send(id, session.SetEngine{Options: *req.Engine, Reply: reply}); err != nil {
			respondSendErr(c, err)
			return
		}
		respondSnapshotResult(c, <-reply)
	case "stop_engine":
		reply := make(chan session.SnapshotResult, 1)
		if err := a.sessions.Send(id, session.StopEngine{Reply: reply}); err != nil {
			respondSendErr(c, err)
			return
		}
		respondSnapshotResult(c, <-reply)
	case "pause":
		reply := make(chan session.SnapshotResult, 1)
		if err := a.sessions.Send(id, session.Pause{Reply: reply}); err != nil {
			respondSendErr(c, err)
			return
		}
		respondSnapshotResult(c, <-reply)
	case "resume":
		reply := make(chan session.SnapshotResult, 1)
		if err := a.sessions.Send(id, session.Resume{Reply: reply}); err != nil {
			respondSendErr(c, err)
			return
		}
		respondSnapshotResult(c, <-reply)
	case "set_skill":
		reply := make(chan session.SnapshotResult, 1)
		if err := a.sessions.Send(id, session.SetSkill{Skill: req.Skill, Reply: reply}); err != nil {
			respondSendErr(c, err)
			return
		}
		respondSnapshotResult(c, <-reply)
	case "get_legal_moves":
		reply := make(chan session.LegalMovesResult, 1)
		if err := a.sessions.Send(id, session.GetLegalMoves{Reply: reply}); err != nil {
			respondSendErr(c, err)
			return
		}
		res := <-reply
		if res.Err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": res.Err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"moves": res.Moves})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command type: " + req.Type})
	}
}

func (a *apiServer) streamEvents(c *gin.Context) {
	id := c.Param("id")
	events, err := a.sessions.Subscribe(id)
	if err != nil {
		respondSendErr(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("message", ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (a *apiServer) suspendSession(c *gin.Context) {
	id := c.Param("id")
	suspendedID, err := a.sessions.Suspend(c.Request.Context(), id, time.Now().Unix())
	if err != nil {
		respondSendErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suspended_id": suspendedID})
}

func (a *apiServer) resumeSuspended(c *gin.Context) {
	id := c.Param("id")
	newID, snap, err := a.sessions.ResumeSuspended(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such suspended session"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": newID, "snapshot": snap})
}

func (a *apiServer) enqueueReview(c *gin.Context) {
	gameID := c.Param("gameID")
	status, err := a.reviews.Enqueue(c.Request.Context(), gameID, time.Now().Unix())
	if err != nil {
		switch {
		case errors.Is(err, review.ErrDuplicateEnqueue):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, review.ErrBackpressure):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no such finished game"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": status})
}

func (a *apiServer) getReview(c *gin.Context) {
	gameID := c.Param("gameID")
	rev, err := a.reviews.GetReview(c.Request.Context(), gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such review"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rev)
}

func (a *apiServer) deleteReview(c *gin.Context) {
	gameID := c.Param("gameID")
	if err := a.reviews.DeleteFinished(c.Request.Context(), gameID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *apiServer) getAdvancedAnalysis(c *gin.Context) {
	gameID := c.Param("gameID")
	analysis, err := a.reviews.GetAdvancedAnalysis(c.Request.Context(), gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no advanced analysis for this game"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (a *apiServer) listFinishedGames(c *gin.Context) {
	games, err := a.store.ListFinishedGames(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (a *apiServer) deleteFinishedGame(c *gin.Context) {
	gameID := c.Param("gameID")
	if err := a.store.DeleteFinishedGame(c.Request.Context(), gameID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *apiServer) listSuspended(c *gin.Context) {
	sessions, err := a.store.ListSuspended(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (a *apiServer) listPositions(c *gin.Context) {
	positions, err := a.store.ListPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

type savePositionRequest struct {
	Name string `json:"name" binding:"required"`
	FEN  string `json:"fen" binding:"required"`
}

func (a *apiServer) savePosition(c *gin.Context) {
	var req savePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := a.store.SavePosition(c.Request.Context(), store.SavedPosition{Name: req.Name, FEN: req.FEN}, time.Now().Unix())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (a *apiServer) deletePosition(c *gin.Context) {
	id := c.Param("id")
	if err := a.store.DeletePosition(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrConstraint) {
			c.JSON(http.StatusConflict, gin.H{"error": "the default position cannot be deleted"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func respondSendErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sessionmgr.ErrUnknownSession), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
	case errors.Is(err, session.ErrActorStopped):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func respondMoveResult(c *gin.Context, res session.MoveResult) {
	if res.Err != nil {
		c.JSON(moveErrStatus(res.Err), gin.H{"error": res.Err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": res.Snapshot, "move": res.Move})
}

func respondSnapshotResult(c *gin.Context, res session.SnapshotResult) {
	if res.Err != nil {
		c.JSON(moveErrStatus(res.Err), gin.H{"error": res.Err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": res.Snapshot})
}

func moveErrStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrIllegalMove),
		errors.Is(err, session.ErrInvalidSkill),
		errors.Is(err, session.ErrNoHumanSide),
		errors.Is(err, session.ErrNotPaused),
		errors.Is(err, session.ErrAlreadyPaused),
		errors.Is(err, session.ErrNothingToUndo),
		errors.Is(err, session.ErrNothingToRedo):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrGameEnded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseColorPtr(s *string) (*chess.Color, error) {
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
		return nil, errors.New("human_side must be \"white\" or \"black\"")
	}
}
