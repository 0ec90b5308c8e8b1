package uci

import (
	"strconv"
	"strings"
	"time"
)

// classify turns one raw engine stdout line into an Event. Lines that
// don't match a recognised shape become a DebugEvent carrying the raw
// text.
func classify(line string) Event {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return DebugEvent{Direction: FromEngine, Line: line}
	}

	switch fields[0] {
	case "uciok":
		return UciOkEvent{}
	case "readyok":
		return ReadyEvent{}
	case "bestmove":
		return parseBestMove(fields)
	case "info":
		if ev, ok := parseInfo(fields[1:]); ok {
			return ev
		}
		return DebugEvent{Direction: FromEngine, Line: line}
	default:
		return DebugEvent{Direction: FromEngine, Line: line}
	}
}

func parseBestMove(fields []string) Event {
	ev := BestMoveEvent{}
	if len(fields) >= 2 {
		ev.Move = fields[1]
	}
	for i := 2; i+1 < len(fields); i++ {
		if fields[i] == "ponder" {
			ev.Ponder = fields[i+1]
		}
	}
	return ev
}

func parseInfo(fields []string) (InfoEvent, bool) {
	ev := InfoEvent{}
	matched := false

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					ev.Depth = v
					matched = true
				}
				i++
			}
		case "seldepth":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					ev.SelDepth = v
				}
				i++
			}
		case "time":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					ev.Time = time.Duration(v) * time.Millisecond
					matched = true
				}
				i++
			}
		case "nodes":
			if i+1 < len(fields) {
				if v, err := strconv.ParseInt(fields[i+1], 10, 64); err == nil {
					ev.Nodes = v
					matched = true
				}
				i++
			}
		case "nps":
			if i+1 < len(fields) {
				if v, err := strconv.ParseInt(fields[i+1], 10, 64); err == nil {
					ev.NPS = v
				}
				i++
			}
		case "multipv":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					ev.MultiPV = v
				}
				i++
			}
		case "currmove":
			if i+1 < len(fields) {
				ev.CurrMove = fields[i+1]
				i++
			}
		case "hashfull":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					ev.HashFull = v
				}
				i++
			}
		case "score":
			if i+2 < len(fields) {
				kind := fields[i+1]
				if v, err := strconv.Atoi(fields[i+2]); err == nil {
					if kind == "mate" {
						ev.Score = MateIn(v)
					} else {
						ev.Score = CP(v)
					}
					matched = true
				}
				i += 2
				// "score cp N lowerbound"/"upperbound" qualifiers: skip.
				if i+1 < len(fields) && (fields[i+1] == "lowerbound" || fields[i+1] == "upperbound") {
					i++
				}
			}
		case "pv":
			pv := make([]string, 0, len(fields)-i-1)
			for j := i + 1; j < len(fields); j++ {
				pv = append(pv, fields[j])
			}
			ev.PV = pv
			matched = true
			i = len(fields)
		}
	}

	return ev, matched
}
