// Package timer implements the per-session chess clock: a three-state
// machine (Stopped/RunningWhite/RunningBlack) with 100ms tick
// resolution, saturating subtraction, and one-shot flag-fall detection.
package timer

import (
	"time"

	"github.com/notnil/chess"
)

// State is the timer's running state.
type State int

const (
	// Stopped means neither side's clock is running.
	Stopped State = iota
	// RunningWhite means white's clock is counting down.
	RunningWhite
	// RunningBlack means black's clock is counting down.
	RunningBlack
)

// Resolution is the nominal tick period. Actual elapsed wall time is
// what gets subtracted, not this nominal value.
const Resolution = 100 * time.Millisecond

// Config carries each side's starting allowance.
type Config struct {
	White time.Duration
	Black time.Duration
}

// Timer is a chess clock. It is not safe for concurrent use; callers
// (the session actor) serialize access.
type Timer struct {
	state State

	whiteRemaining time.Duration
	blackRemaining time.Duration

	lastAccounted time.Time

	fallen bool
	now    func() time.Time
}

// New constructs a Timer from starting allowances. It is created
// Stopped; call Start to begin counting down a side.
func New(cfg Config) *Timer {
	return &Timer{
		whiteRemaining: cfg.White,
		blackRemaining: cfg.Black,
		now:            time.Now,
	}
}

// WhiteRemaining reports white's remaining time as of the last
// accounting point (the last Start/Stop/SwitchTo/Tick call).
func (t *Timer) WhiteRemaining() time.Duration { return t.whiteRemaining }

// BlackRemaining reports black's remaining time as of the last
// accounting point.
func (t *Timer) BlackRemaining() time.Duration { return t.blackRemaining }

// State reports which side, if any, is currently running.
func (t *Timer) State() State { return t.state }

// ActiveSide returns the side currently running, or (NoColor, false)
// if the timer is stopped.
func (t *Timer) ActiveSide() (chess.Color, bool) {
	switch t.state {
	case RunningWhite:
		return chess.White, true
	case RunningBlack:
		return chess.Black, true
	default:
		return chess.NoColor, false
	}
}

// Fallen reports whether a flag has already fallen for this timer.
func (t *Timer) Fallen() bool { return t.fallen }

// Start begins counting down the given side's clock.
func (t *Timer) Start(side chess.Color) {
	t.lastAccounted = t.now()
	t.state = stateFor(side)
}

// Stop accounts elapsed time for the active side and halts the clock.
func (t *Timer) Stop() {
	t.accrue()
	t.state = Stopped
}

// SwitchTo flushes the currently active side's elapsed time, then
// starts the given side running.
func (t *Timer) SwitchTo(side chess.Color) {
	t.accrue()
	t.Start(side)
}

// Tick accounts elapsed wall time against the active side's remaining
// balance using saturating subtraction, and reports true exactly once:
// on the tick where the active side's remaining first reaches zero.
func (t *Timer) Tick() bool {
	if t.state == Stopped || t.fallen {
		return false
	}
	t.accrue()

	var remaining time.Duration
	switch t.state {
	case RunningWhite:
		remaining = t.whiteRemaining
	case RunningBlack:
		remaining = t.blackRemaining
	}

	if remaining <= 0 {
		t.fallen = true
		return true
	}
	return false
}

// accrue subtracts elapsed wall time since the last accounting point
// from the active side, saturating at zero, and resets the reference.
func (t *Timer) accrue() {
	if t.state == Stopped {
		return
	}
	now := t.now()
	elapsed := now.Sub(t.lastAccounted)
	t.lastAccounted = now
	if elapsed <= 0 {
		return
	}

	switch t.state {
	case RunningWhite:
		t.whiteRemaining = saturatingSub(t.whiteRemaining, elapsed)
	case RunningBlack:
		t.blackRemaining = saturatingSub(t.blackRemaining, elapsed)
	}
}

func saturatingSub(d, elapsed time.Duration) time.Duration {
	r := d - elapsed
	if r < 0 {
		return 0
	}
	return r
}

func stateFor(side chess.Color) State {
	if side == chess.Black {
		return RunningBlack
	}
	return RunningWhite
}

// Snapshot is the immutable view of timer state exposed on
// SessionSnapshot.
type Snapshot struct {
	WhiteRemainingMS int64
	BlackRemainingMS int64
	Active           *chess.Color
	Fallen           bool
}

// Snapshot builds the immutable view of the current timer state.
func (t *Timer) Snapshot() Snapshot {
	snap := Snapshot{
		WhiteRemainingMS: t.whiteRemaining.Milliseconds(),
		BlackRemainingMS: t.blackRemaining.Milliseconds(),
		Fallen:           t.fallen,
	}
	if side, ok := t.ActiveSide(); ok {
		s := side
		snap.Active = &s
	}
	return snap
}
