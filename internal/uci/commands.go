package uci

import (
	"fmt"
	"strings"
	"time"
)

// Command is a typed request the command translator task converts into
// one or more raw UCI protocol lines.
type Command interface {
	encode() []string
}

// SetPosition sets the board the next Go should search from, either
// the start position (FEN == "") or an explicit FEN, followed by a
// sequence of UCI moves already played from that position.
type SetPosition struct {
	FEN   string
	Moves []string
}

func (c SetPosition) encode() []string {
	var b strings.Builder
	b.WriteString("position ")
	if c.FEN == "" {
		b.WriteString("startpos")
	} else {
		b.WriteString("fen ")
		b.WriteString(c.FEN)
	}
	if len(c.Moves) > 0 {
		b.WriteString(" moves ")
		b.WriteString(strings.Join(c.Moves, " "))
	}
	return []string{b.String()}
}

// SetOption sets a UCI engine option by name.
type SetOption struct {
	Name  string
	Value string
}

func (c SetOption) encode() []string {
	return []string{fmt.Sprintf("setoption name %s value %s", c.Name, c.Value)}
}

// Go starts a search. Exactly one of Depth, MoveTime, or Infinite
// should be set; Depth takes precedence over MoveTime if both are set,
// and Infinite overrides both.
type Go struct {
	Depth    int
	MoveTime time.Duration
	Infinite bool
}

func (c Go) encode() []string {
	if c.Infinite {
		return []string{"go infinite"}
	}
	if c.Depth > 0 {
		return []string{fmt.Sprintf("go depth %d", c.Depth)}
	}
	if c.MoveTime > 0 {
		return []string{fmt.Sprintf("go movetime %d", c.MoveTime.Milliseconds())}
	}
	return []string{"go"}
}

// Stop asks the engine to halt the current search and report bestmove.
type Stop struct{}

func (c Stop) encode() []string { return []string{"stop"} }

// Quit asks the engine to exit. It is always the last command sent on
// a driver's command channel.
type Quit struct{}

func (c Quit) encode() []string { return []string{"quit"} }

// NewGame sends "ucinewgame", signalling the engine to discard any
// retained state between unrelated games (hash tables, history heuristics).
type NewGame struct{}

func (c NewGame) encode() []string { return []string{"ucinewgame"} }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

