package uci

import "fmt"

// writerLoop is the line-writer task: it drains the raw-line queue
// (fed either by the translator or, for setup-only lines like
// "isready", directly by the driver) and writes each line to stdin,
// also publishing a to-engine DebugEvent for observability.
func (d *Driver) writerLoop() {
	for line := range d.lines {
		if _, err := fmt.Fprintln(d.stdin, line); err != nil {
			d.publish(ErrorEvent{Err: err})
			continue
		}
		d.publish(DebugEvent{Direction: ToEngine, Line: line})
	}
}
