package timer

import (
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests control elapsed wall time deterministically.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestTimer(cfg Config) (*Timer, *fakeClock) {
	tm := New(cfg)
	fc := &fakeClock{t: time.Now()}
	tm.now = fc.now
	return tm, fc
}

func TestTimerMonotonicity(t *testing.T) {
	tm, fc := newTestTimer(Config{White: 10 * time.Second, Black: 10 * time.Second})
	tm.Start(chess.White)

	total := func() time.Duration { return tm.WhiteRemaining() + tm.BlackRemaining() }

	before := total()
	fc.advance(500 * time.Millisecond)
	require.False(t, tm.Tick())
	after := total()

	assert.Less(t, after, before, "sum of remaining time must strictly decrease while a side is active")
}

func TestFlagFallsExactlyOnce(t *testing.T) {
	tm, fc := newTestTimer(Config{White: 200 * time.Millisecond, Black: 60 * time.Second})
	tm.Start(chess.White)

	fc.advance(300 * time.Millisecond)
	require.True(t, tm.Tick(), "first tick past zero must report true")
	assert.True(t, tm.Fallen())
	assert.Equal(t, time.Duration(0), tm.WhiteRemaining())

	fc.advance(100 * time.Millisecond)
	assert.False(t, tm.Tick(), "subsequent ticks must not report true again")
}

func TestSwitchToFlushesActiveSide(t *testing.T) {
	tm, fc := newTestTimer(Config{White: 10 * time.Second, Black: 10 * time.Second})
	tm.Start(chess.White)
	fc.advance(2 * time.Second)

	tm.SwitchTo(chess.Black)
	assert.Equal(t, 8*time.Second, tm.WhiteRemaining())

	side, ok := tm.ActiveSide()
	require.True(t, ok)
	assert.Equal(t, chess.Black, side)
}

func TestStopHaltsAccounting(t *testing.T) {
	tm, fc := newTestTimer(Config{White: 10 * time.Second, Black: 10 * time.Second})
	tm.Start(chess.White)
	fc.advance(1 * time.Second)
	tm.Stop()

	remaining := tm.WhiteRemaining()
	fc.advance(5 * time.Second)
	assert.False(t, tm.Tick(), "a stopped timer never fires a flag fall")
	assert.Equal(t, remaining, tm.WhiteRemaining())
}

func TestSaturatingSubtractionNeverGoesNegative(t *testing.T) {
	tm, fc := newTestTimer(Config{White: 50 * time.Millisecond, Black: 10 * time.Second})
	tm.Start(chess.White)
	fc.advance(5 * time.Second)

	require.True(t, tm.Tick())
	assert.Equal(t, time.Duration(0), tm.WhiteRemaining())
}
