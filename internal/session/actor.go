package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chesstty/chesstty/internal/uci"
)

const mailboxCapacity = 32

// Archiver is the session manager's hook for persisting a finished
// game exactly once, called by the actor on its way out.
type Archiver interface {
	ArchiveFinished(sessionID string, snapshot Snapshot)
}

// EngineHandle is the slice of the UCI driver the actor uses. It is an
// interface so tests can substitute a fake engine; *uci.Driver is the
// production implementation.
type EngineHandle interface {
	Send(cmd uci.Command)
	Events() <-chan uci.Event
	Shutdown()
}

// Actor is the single goroutine that exclusively mutates one session's
// state. All access to State goes through its mailbox; nothing else
// may touch it.
type Actor struct {
	id    string
	state *State

	driver EngineHandle

	mailbox chan Command
	done    chan struct{}

	subsMu    sync.Mutex
	subs      map[uint64]chan Event
	nextSubID uint64

	broadcastCap int
	archiver     Archiver
	logger       *zap.SugaredLogger
}

// NewActor constructs an actor around freshly built session state. The
// driver may be nil for HumanVsHuman sessions with no engine at all.
func NewActor(id string, cfg Config, driver EngineHandle, archiver Archiver, broadcastCap int, logger *zap.SugaredLogger) (*Actor, error) {
	state, err := NewState(id, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if broadcastCap <= 0 {
		broadcastCap = 100
	}
	return &Actor{
		id:           id,
		state:        state,
		driver:       driver,
		mailbox:      make(chan Command, mailboxCapacity),
		done:         make(chan struct{}),
		subs:         make(map[uint64]chan Event),
		broadcastCap: broadcastCap,
		archiver:     archiver,
		logger:       logger,
	}, nil
}

// Snapshot returns the session's current snapshot, for synchronous
// callers (e.g. session creation replying with the initial state)
// before the actor's Run loop has even started.
func (a *Actor) Snapshot() Snapshot { return a.state.Snapshot() }

// Send enqueues a command for the actor. It blocks until the mailbox
// has room or the actor has stopped, whichever comes first.
func (a *Actor) Send(cmd Command) error {
	select {
	case a.mailbox <- cmd:
		return nil
	case <-a.done:
		return ErrActorStopped
	}
}

// Run executes the actor's priority selection loop: mailbox commands
// beat engine events, which beat timer ticks. Go has no
// native biased select, so each source is polled in fixed priority
// order before falling back to a blocking select over all of them.
func (a *Actor) Run(ctx context.Context) {
	defer close(a.done)

	var engineEvents <-chan uci.Event
	if a.driver != nil {
		engineEvents = a.driver.Events()
	}

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if a.state.HasTimer() {
		ticker = time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		tickC = ticker.C
	}

	// The engine may already be on the side to move at creation
	// (EngineVsEngine, or HumanVsEngine with the engine playing first):
	// the first Go must be dispatched here, before any command arrives.
	a.broadcast(StateChanged{Snapshot: a.state.Snapshot()})
	a.maybeAutoTrigger()

	for {
		select {
		case cmd := <-a.mailbox:
			if !a.handleCommand(cmd) {
				return
			}
			continue
		default:
		}

		if engineEvents != nil {
			select {
			case ev, ok := <-engineEvents:
				if !ok {
					engineEvents = nil
				} else if !a.handleEngineEvent(ev) {
					return
				}
				continue
			default:
			}
		}

		if tickC != nil {
			select {
			case <-tickC:
				if !a.handleTick() {
					return
				}
				continue
			default:
			}
		}

		select {
		case cmd := <-a.mailbox:
			if !a.handleCommand(cmd) {
				return
			}
		case ev, ok := <-engineEvents:
			if !ok {
				engineEvents = nil
			} else if !a.handleEngineEvent(ev) {
				return
			}
		case <-tickC:
			if !a.handleTick() {
				return
			}
		case <-ctx.Done():
			a.shutdownEngine()
			return
		}
	}
}

// handleCommand processes one mailbox command and reports whether the
// run loop should keep going: false either on an explicit Shutdown or
// because the mutation it just applied ended the game.
func (a *Actor) handleCommand(cmd Command) bool {
	switch c := cmd.(type) {
	case MakeMove:
		rec, err := a.state.ApplyMoveByUCI(c.Move)
		c.Reply <- a.moveResult(&rec, err)
		if err == nil {
			return !a.afterMutation()
		}

	case GetLegalMoves:
		c.Reply <- LegalMovesResult{Moves: a.state.LegalMoves()}

	case Undo:
		rec, err := a.state.Undo()
		c.Reply <- a.moveResult(rec, err)
		if err == nil {
			return !a.afterMutation()
		}

	case Redo:
		rec, err := a.state.Redo()
		c.Reply <- a.moveResult(rec, err)
		if err == nil {
			return !a.afterMutation()
		}

	case Reset:
		err := a.state.Reset(c.FEN)
		c.Reply <- SnapshotResult{Snapshot: a.state.Snapshot(), Err: err}
		if err == nil {
			return !a.afterMutation()
		}

	case SetEngine:
		err := a.state.SetEngineOptions(c.Options)
		c.Reply <- SnapshotResult{Snapshot: a.state.Snapshot(), Err: err}
		if err == nil {
			return !a.afterMutation()
		}

	case StopEngine:
		if a.driver != nil {
			a.driver.Send(uci.Stop{})
		}
		a.state.MarkEngineThinking(false)
		c.Reply <- SnapshotResult{Snapshot: a.state.Snapshot()}
		return !a.afterMutation()

	case Pause:
		err := a.state.Pause()
		c.Reply <- SnapshotResult{Snapshot: a.state.Snapshot(), Err: err}
		if err == nil {
			return !a.afterMutation()
		}

	case Resume:
		err := a.state.Resume()
		c.Reply <- SnapshotResult{Snapshot: a.state.Snapshot(), Err: err}
		if err == nil {
			return !a.afterMutation()
		}

	case SetSkill:
		err := a.state.SetSkill(c.Skill)
		c.Reply <- SnapshotResult{Snapshot: a.state.Snapshot(), Err: err}

	case Subscribe:
		c.Reply <- SubscribeResult{Events: a.addSubscriber()}

	case GetSnapshot:
		c.Reply <- SnapshotResult{Snapshot: a.state.Snapshot()}

	case Shutdown:
		a.shutdownEngine()
		close(c.Reply)
		return false
	}
	return true
}

func (a *Actor) moveResult(rec *MoveRecord, err error) MoveResult {
	return MoveResult{Snapshot: a.state.Snapshot(), Move: rec, Err: err}
}

// handleEngineEvent dispatches one classified engine event and reports
// whether the run loop should keep going.
func (a *Actor) handleEngineEvent(ev uci.Event) bool {
	switch e := ev.(type) {
	case uci.BestMoveEvent:
		if !a.state.EngineThinking() {
			return true
		}
		_, err := a.state.ApplyMoveByUCI(e.Move)
		a.state.MarkEngineThinking(false)
		if err != nil {
			a.logger.Warnw("engine proposed an illegal move", "session", a.id, "move", e.Move, "error", err)
			a.broadcast(ErrorNotice{Message: "engine proposed an illegal move: " + err.Error()})
			return true
		}
		return !a.afterMutation()

	case uci.InfoEvent:
		a.state.SetLastAnalysis(e)
		a.broadcast(EngineThinking{Analysis: e})

	case uci.ReadyEvent:
		a.logger.Debugw("engine ready", "session", a.id)

	case uci.DebugEvent:
		a.broadcast(UciMessage{Direction: e.Direction, Line: e.Line})

	case uci.ErrorEvent:
		a.state.MarkEngineThinking(false)
		msg := "engine error"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		a.broadcast(ErrorNotice{Message: msg})
	}
	return true
}

// handleTick advances the clock and reports whether the run loop should
// keep going. A plain tick with no flag fall is not a state mutation
// worth a broadcast; a flag fall is.
func (a *Actor) handleTick() bool {
	if a.state.TickTimer() {
		return !a.afterMutation()
	}
	return true
}

// afterMutation is the post-mutation sequence every command/event
// handler that changes state runs through: broadcast, then either the
// ending shutdown path or an auto-trigger check. It reports whether the
// game just ended, which the caller uses to stop the run loop.
func (a *Actor) afterMutation() bool {
	snap := a.state.Snapshot()
	a.broadcast(StateChanged{Snapshot: snap})

	if a.state.Phase() == Ended {
		a.endGame(snap)
		return true
	}
	a.maybeAutoTrigger()
	return false
}

func (a *Actor) endGame(snap Snapshot) {
	a.shutdownEngine()
	if a.archiver != nil {
		a.archiver.ArchiveFinished(a.id, snap)
	}
}

func (a *Actor) shutdownEngine() {
	if a.driver != nil {
		a.driver.Shutdown()
	}
}

// maybeAutoTrigger implements the auto-move rule: the engine is asked
// to move whenever it is its turn and nothing is already in flight.
func (a *Actor) maybeAutoTrigger() {
	if a.driver == nil {
		return
	}
	if a.state.EngineThinking() {
		return
	}
	if a.state.Phase() != Playing {
		return
	}
	if !a.state.Status().Ongoing() {
		return
	}

	human := a.state.HumanSide()
	side := a.state.SideToMove()
	engineToMove := a.state.Mode() == EngineVsEngine ||
		(a.state.Mode() == HumanVsEngine && (human == nil || side != *human))
	if !engineToMove {
		return
	}

	a.state.MarkEngineThinking(true)
	a.driver.Send(uci.SetPosition{FEN: a.state.FEN()})
	a.driver.Send(searchParamsForSkill(a.state.Engine().Skill))
}

// searchParamsForSkill maps a 0-20 skill level to a search budget:
// fixed depth at low skill, fixed movetime above.
func searchParamsForSkill(skill int) uci.Go {
	switch {
	case skill <= 3:
		return uci.Go{Depth: 4}
	case skill <= 7:
		return uci.Go{Depth: 8}
	case skill <= 12:
		return uci.Go{MoveTime: 500 * time.Millisecond}
	case skill <= 17:
		return uci.Go{MoveTime: 1000 * time.Millisecond}
	default:
		return uci.Go{MoveTime: 2000 * time.Millisecond}
	}
}

// addSubscriber registers a new broadcast listener, seeding it with
// the current StateChanged so it never starts stale.
func (a *Actor) addSubscriber() <-chan Event {
	ch := make(chan Event, a.broadcastCap)
	ch <- StateChanged{Snapshot: a.state.Snapshot()}

	a.subsMu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = ch
	a.subsMu.Unlock()

	return ch
}

// broadcast fans an event out to every subscriber without ever
// blocking: a full subscriber channel means a lagging consumer, which
// drops the event and logs rather than stalling every other
// subscriber or the actor itself.
func (a *Actor) broadcast(ev Event) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for id, ch := range a.subs {
		select {
		case ch <- ev:
		default:
			a.logger.Warnw("subscriber lagging, dropping event", "session", a.id, "subscriber", id)
		}
	}
}
