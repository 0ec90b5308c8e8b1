package review

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chesstty/chesstty/internal/store"
)

func newTestManager(t *testing.T, queueCapacity int) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "chesstty.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	m := New(st, Config{AnalysisDepth: 12, WorkerCount: 1, QueueCapacity: queueCapacity}, nil)
	return m, st
}

func seedFinishedGame(t *testing.T, st *store.Store) string {
	t.Helper()
	id, err := st.SaveFinishedGame(context.Background(), store.FinishedGame{
		StartFEN: "startpos",
		FinalFEN: "startpos",
		Reason:   "Resignation",
		Moves: []store.MoveRow{
			{Ply: 1, From: "e2", To: "e4", Piece: "P", SAN: "e4",
				FENBefore: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
				FENAfter:  "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"},
		},
	}, 1000)
	require.NoError(t, err)
	return id
}

func TestEnqueuePersistsQueuedStatus(t *testing.T) {
	m, st := newTestManager(t, 8)
	ctx := context.Background()
	id := seedFinishedGame(t, st)

	status, err := m.Enqueue(ctx, id, 1001)
	require.NoError(t, err)
	require.Equal(t, store.ReviewQueued, status)

	gotStatus, currentPly, totalPlies, err := st.GetReviewStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.ReviewQueued, gotStatus)
	require.Equal(t, 0, currentPly)
	require.Equal(t, 1, totalPlies)
}

func TestEnqueueRejectsDuplicateWhileInFlight(t *testing.T) {
	m, st := newTestManager(t, 8)
	ctx := context.Background()
	id := seedFinishedGame(t, st)

	_, err := m.Enqueue(ctx, id, 1001)
	require.NoError(t, err)

	_, err = m.Enqueue(ctx, id, 1002)
	require.ErrorIs(t, err, ErrDuplicateEnqueue)
}

func TestEnqueueReturnsBackpressureWhenMailboxFull(t *testing.T) {
	m, st := newTestManager(t, 1)
	ctx := context.Background()

	first := seedFinishedGame(t, st)
	_, err := m.Enqueue(ctx, first, 1001)
	require.NoError(t, err)

	second, err := st.SaveFinishedGame(ctx, store.FinishedGame{StartFEN: "startpos", FinalFEN: "startpos", Reason: "Draw"}, 1002)
	require.NoError(t, err)

	_, err = m.Enqueue(ctx, second, 1003)
	require.ErrorIs(t, err, ErrBackpressure)
}

func TestEnqueueUnknownGameFails(t *testing.T) {
	m, _ := newTestManager(t, 8)
	_, err := m.Enqueue(context.Background(), "does-not-exist", 1001)
	require.Error(t, err)

	_, err = m.Enqueue(context.Background(), "does-not-exist", 1001)
	require.Error(t, err, "a failed enqueue must release the in-flight slot so retries are possible")
}

func TestEnqueueOfCompleteReviewReturnsCachedStatusWithoutQueueing(t *testing.T) {
	m, st := newTestManager(t, 1)
	ctx := context.Background()
	id := seedFinishedGame(t, st)

	require.NoError(t, st.InitReview(ctx, id, store.ReviewComplete, 1, 12, 1000))
	require.NoError(t, st.CompleteReview(ctx, id, 95.0, 80.0, "white", 1001))

	status, err := m.Enqueue(ctx, id, 1002)
	require.NoError(t, err)
	require.Equal(t, store.ReviewComplete, status)

	// The mailbox (capacity 1) must still be empty: a completed review
	// never occupies a worker slot.
	second, err := st.SaveFinishedGame(ctx, store.FinishedGame{StartFEN: "startpos", FinalFEN: "startpos", Reason: "Draw"}, 1003)
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, second, 1004)
	require.NoError(t, err)
}

func TestGetStatusAndDeleteFinishedDelegateToStore(t *testing.T) {
	m, st := newTestManager(t, 8)
	ctx := context.Background()
	id := seedFinishedGame(t, st)

	require.NoError(t, st.InitReview(ctx, id, store.ReviewComplete, 1, 12, 1000))
	require.NoError(t, st.CompleteReview(ctx, id, 95.0, 80.0, "white", 1001))

	status, _, _, err := m.GetStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.ReviewComplete, status)

	review, err := m.GetReview(ctx, id)
	require.NoError(t, err)
	require.InDelta(t, 95.0, *review.WhiteAccuracy, 0.001)

	require.NoError(t, m.DeleteFinished(ctx, id))
	_, err = m.GetReview(ctx, id)
	require.ErrorIs(t, err, store.ErrNotFound)
}
