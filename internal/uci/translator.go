package uci

// translatorLoop is the command-translator task: it accepts typed
// Commands and converts each into the raw UCI line(s) queued for the
// writer. On Quit it enqueues "quit" and exits, closing the line queue
// so the writer winds down after flushing whatever remains.
func (d *Driver) translatorLoop() {
	defer close(d.lines)

	for cmd := range d.cmds {
		for _, line := range cmd.encode() {
			d.lines <- line
		}
		if _, isQuit := cmd.(Quit); isQuit {
			return
		}
	}
}
