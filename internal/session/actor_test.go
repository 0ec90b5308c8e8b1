package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"

	"github.com/chesstty/chesstty/internal/uci"
)

// fakeEngine implements EngineHandle for tests: it records every
// command sent and lets the test feed events back to the actor.
type fakeEngine struct {
	mu       sync.Mutex
	commands []uci.Command
	events   chan uci.Event
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan uci.Event, 16)}
}

func (f *fakeEngine) Send(cmd uci.Command) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
}

func (f *fakeEngine) Events() <-chan uci.Event { return f.events }

func (f *fakeEngine) Shutdown() {}

func (f *fakeEngine) sent() []uci.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uci.Command(nil), f.commands...)
}

// newRunningActor starts an engine-less actor (driver == nil) and
// returns it along with a cancel func that stops its Run loop.
func newRunningActor(t *testing.T, cfg Config) (*Actor, context.CancelFunc) {
	t.Helper()
	a, err := NewActor("test-session", cfg, nil, nil, 8, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	return a, cancel
}

func TestActorAppliesMoveAndBroadcasts(t *testing.T) {
	a, cancel := newRunningActor(t, Config{Mode: HumanVsHuman})
	defer cancel()

	subReply := make(chan SubscribeResult, 1)
	require.NoError(t, a.Send(Subscribe{Reply: subReply}))
	sub := <-subReply

	select {
	case ev := <-sub.Events:
		sc, ok := ev.(StateChanged)
		require.True(t, ok, "first event delivered to a new subscriber must be StateChanged")
		require.Equal(t, 0, sc.Snapshot.MoveCount)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial StateChanged")
	}

	moveReply := make(chan MoveResult, 1)
	require.NoError(t, a.Send(MakeMove{Move: "e2e4", Reply: moveReply}))

	res := <-moveReply
	require.NoError(t, res.Err)
	require.Equal(t, 1, res.Snapshot.MoveCount)

	select {
	case ev := <-sub.Events:
		sc, ok := ev.(StateChanged)
		require.True(t, ok)
		require.Equal(t, 1, sc.Snapshot.MoveCount)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for post-move broadcast")
	}
}

func TestActorRejectsIllegalMoveWithoutBroadcast(t *testing.T) {
	a, cancel := newRunningActor(t, Config{Mode: HumanVsHuman})
	defer cancel()

	subReply := make(chan SubscribeResult, 1)
	require.NoError(t, a.Send(Subscribe{Reply: subReply}))
	sub := <-subReply
	<-sub.Events // drain the initial StateChanged

	moveReply := make(chan MoveResult, 1)
	require.NoError(t, a.Send(MakeMove{Move: "e2e5", Reply: moveReply}))
	res := <-moveReply
	require.ErrorIs(t, res.Err, ErrIllegalMove)

	select {
	case ev := <-sub.Events:
		t.Fatalf("unexpected broadcast after a rejected move: %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestActorUndoRedoViaMailbox(t *testing.T) {
	a, cancel := newRunningActor(t, Config{Mode: HumanVsHuman})
	defer cancel()

	moveReply := make(chan MoveResult, 1)
	require.NoError(t, a.Send(MakeMove{Move: "e2e4", Reply: moveReply}))
	require.NoError(t, (<-moveReply).Err)

	undoReply := make(chan MoveResult, 1)
	require.NoError(t, a.Send(Undo{Reply: undoReply}))
	undone := <-undoReply
	require.NoError(t, undone.Err)
	require.Equal(t, 0, undone.Snapshot.MoveCount)

	redoReply := make(chan MoveResult, 1)
	require.NoError(t, a.Send(Redo{Reply: redoReply}))
	redone := <-redoReply
	require.NoError(t, redone.Err)
	require.Equal(t, 1, redone.Snapshot.MoveCount)
}

func TestActorShutdownStopsMailboxProcessing(t *testing.T) {
	a, cancel := newRunningActor(t, Config{Mode: HumanVsHuman})
	defer cancel()

	shutdownReply := make(chan struct{})
	require.NoError(t, a.Send(Shutdown{Reply: shutdownReply}))

	select {
	case <-shutdownReply:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for shutdown reply")
	}

	deadline := time.After(time.Second)
	for {
		snapReply := make(chan SnapshotResult, 1)
		if err := a.Send(GetSnapshot{Reply: snapReply}); err != nil {
			require.ErrorIs(t, err, ErrActorStopped)
			return
		}
		select {
		case <-deadline:
			t.Fatal("actor never stopped accepting commands after Shutdown")
		default:
		}
	}
}

func TestActorAutoTriggersFirstEngineMoveAtStartup(t *testing.T) {
	engine := newFakeEngine()
	a, err := NewActor("test-session",
		Config{Mode: EngineVsEngine, Engine: EngineOptions{Enabled: true, Skill: 5}},
		engine, nil, 8, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.Eventually(t, func() bool { return len(engine.sent()) >= 2 },
		time.Second, 5*time.Millisecond,
		"an engine-vs-engine session must dispatch its first search without any command")

	cmds := engine.sent()
	require.IsType(t, uci.SetPosition{}, cmds[0])
	require.Equal(t, uci.Go{Depth: 8}, cmds[1])

	snapReply := make(chan SnapshotResult, 1)
	require.NoError(t, a.Send(GetSnapshot{Reply: snapReply}))
	require.True(t, (<-snapReply).Snapshot.EngineThinking)
}

func TestActorAutoTriggersWhenEngineOpensForWhite(t *testing.T) {
	engine := newFakeEngine()
	black := chess.Black
	a, err := NewActor("test-session",
		Config{Mode: HumanVsEngine, HumanSide: &black, Engine: EngineOptions{Enabled: true, Skill: 0}},
		engine, nil, 8, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.Eventually(t, func() bool { return len(engine.sent()) >= 2 },
		time.Second, 5*time.Millisecond,
		"the engine plays white here, so its opening move must be requested at startup")
	require.Equal(t, uci.Go{Depth: 4}, engine.sent()[1])
}

func TestActorAppliesBestMoveAndRetriggers(t *testing.T) {
	engine := newFakeEngine()
	a, err := NewActor("test-session",
		Config{Mode: EngineVsEngine, Engine: EngineOptions{Enabled: true, Skill: 5}},
		engine, nil, 8, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.Eventually(t, func() bool { return len(engine.sent()) >= 2 },
		time.Second, 5*time.Millisecond)

	engine.events <- uci.BestMoveEvent{Move: "e2e4"}

	// Applying the bestmove hands the turn to the other engine side, so
	// a second SetPosition/Go pair must follow.
	require.Eventually(t, func() bool { return len(engine.sent()) >= 4 },
		time.Second, 5*time.Millisecond,
		"an engine-vs-engine session must re-trigger after applying a bestmove")

	snapReply := make(chan SnapshotResult, 1)
	require.NoError(t, a.Send(GetSnapshot{Reply: snapReply}))
	snap := (<-snapReply).Snapshot
	require.Equal(t, 1, snap.MoveCount)
	require.True(t, snap.EngineThinking)
}

func TestActorStopsRunLoopWhenGameEnds(t *testing.T) {
	a, cancel := newRunningActor(t, Config{Mode: HumanVsHuman})
	defer cancel()

	for _, mv := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		reply := make(chan MoveResult, 1)
		require.NoError(t, a.Send(MakeMove{Move: mv, Reply: reply}))
		res := <-reply
		require.NoError(t, res.Err)
	}

	require.Eventually(t, func() bool {
		err := a.Send(GetSnapshot{Reply: make(chan SnapshotResult, 1)})
		return errors.Is(err, ErrActorStopped)
	}, time.Second, 5*time.Millisecond, "actor must stop its run loop once the game ends")
}

func TestActorBroadcastsStateChangedAfterPauseAndStopEngine(t *testing.T) {
	a, cancel := newRunningActor(t, Config{Mode: HumanVsHuman})
	defer cancel()

	subReply := make(chan SubscribeResult, 1)
	require.NoError(t, a.Send(Subscribe{Reply: subReply}))
	sub := <-subReply
	<-sub.Events // drain the initial StateChanged

	pauseReply := make(chan SnapshotResult, 1)
	require.NoError(t, a.Send(Pause{Reply: pauseReply}))
	require.NoError(t, (<-pauseReply).Err)

	select {
	case ev := <-sub.Events:
		sc, ok := ev.(StateChanged)
		require.True(t, ok)
		require.Equal(t, Paused, sc.Snapshot.Phase)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast after Pause")
	}

	stopReply := make(chan SnapshotResult, 1)
	require.NoError(t, a.Send(StopEngine{Reply: stopReply}))
	<-stopReply

	select {
	case <-sub.Events:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast after StopEngine")
	}
}
