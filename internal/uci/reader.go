package uci

import (
	"bufio"
	"errors"
)

// readerLoop is the line-reader task: it scans the engine's stdout
// line by line, classifies each line, and publishes the resulting
// Event. EOF or a scan error ends the loop with an ErrorEvent.
func (d *Driver) readerLoop(scanner *bufio.Scanner) {
	for scanner.Scan() {
		line := scanner.Text()
		d.publish(classify(line))
	}

	err := scanner.Err()
	if err == nil {
		err = errors.New("engine closed")
	}
	d.publish(ErrorEvent{Err: err})
}

// publish sends ev on the events channel without blocking indefinitely:
// a full buffer means nobody is listening, so the oldest guarantee
// (the actor always resyncs on the next StateChanged) lets us drop
// rather than stall the reader.
func (d *Driver) publish(ev Event) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warnw("uci: event buffer full, dropping event", "event", ev)
	}
}
