// Package uci drives a UCI-speaking chess engine subprocess: spawning
// it, supervising its stdin/stdout over three cooperating goroutines,
// and translating between typed Commands/Events and raw protocol
// lines.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ErrHandshakeTimeout is returned when the engine does not respond
// with "uciok" within the handshake deadline.
var ErrHandshakeTimeout = errors.New("uci: handshake timeout")

// ErrEngineNotFound is returned when no engine binary could be located.
var ErrEngineNotFound = errors.New("uci: engine binary not found")

const (
	handshakeTimeout  = 10 * time.Second
	readyTimeout      = 5 * time.Second
	shutdownGrace     = 1 * time.Second
	commandBufferSize = 64
	eventBufferSize   = 256
)

// wellKnownPaths are checked, in order, before falling back to PATH.
var wellKnownPaths = []string{
	"/usr/games/stockfish",
	"/usr/bin/stockfish",
	"/usr/local/bin/stockfish",
	"/opt/homebrew/bin/stockfish",
}

// EngineConfig carries the optional engine tuning hints a session may
// request. Nil/zero means "leave the engine default".
type EngineConfig struct {
	Skill   *int // 0-20
	Threads *int // clamped 1-16
	HashMB  *int // clamped 1-2048
}

// Driver owns a running engine subprocess and the three goroutines
// (reader, writer, translator) that mediate access to it.
type Driver struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan Event
	cmds   chan Command
	lines  chan string

	logger *zap.SugaredLogger

	waitDone chan struct{}
	waitErr  error
}

// FindEngineBinary resolves the executable to spawn: an explicit
// override if given, else the fixed well-known-paths list, else PATH.
func FindEngineBinary(override string) (string, error) {
	if override != "" {
		if p, err := exec.LookPath(override); err == nil {
			return p, nil
		}
		if _, err := os.Stat(override); err == nil {
			return override, nil
		}
		return "", fmt.Errorf("%w: %s", ErrEngineNotFound, override)
	}
	for _, p := range wellKnownPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if p, err := exec.LookPath("stockfish"); err == nil {
		return p, nil
	}
	return "", ErrEngineNotFound
}

// Spawn starts the engine subprocess, brings up the
// reader/writer/translator goroutines, and performs the UCI handshake
// through them. On any handshake failure the subprocess is killed
// before the error is returned.
func Spawn(ctx context.Context, enginePath string, cfg EngineConfig, logger *zap.SugaredLogger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	path, err := FindEngineBinary(enginePath)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("uci: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("uci: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("uci: start %s: %w", path, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	d := &Driver{
		cmd:      cmd,
		stdin:    stdin,
		events:   make(chan Event, eventBufferSize),
		cmds:     make(chan Command, commandBufferSize),
		lines:    make(chan string, commandBufferSize),
		logger:   logger,
		waitDone: make(chan struct{}),
	}

	go d.readerLoop(scanner)
	go d.writerLoop()
	go d.translatorLoop()
	go d.reapLoop()

	if err := d.handshake(ctx, cfg); err != nil {
		d.Shutdown()
		return nil, err
	}

	return d, nil
}

// handshake runs steps 3-4 of the spawn protocol through the running
// reader/writer tasks, so the stdout scanner only ever has one owner.
// It is the events channel's sole consumer until Spawn returns, which
// lets it discard the engine's identification chatter safely.
func (d *Driver) handshake(ctx context.Context, cfg EngineConfig) error {
	if err := d.enqueueLine("uci"); err != nil {
		return err
	}
	if err := d.awaitEvent(ctx, handshakeTimeout, func(ev Event) bool {
		_, ok := ev.(UciOkEvent)
		return ok
	}); err != nil {
		if errors.Is(err, errAwaitTimeout) {
			return ErrHandshakeTimeout
		}
		return fmt.Errorf("uci: handshake: %w", err)
	}

	if cfg.Skill != nil {
		d.Send(SetOption{Name: "Skill Level", Value: strconv.Itoa(clampInt(*cfg.Skill, 0, 20))})
	}
	if cfg.Threads != nil {
		d.Send(SetOption{Name: "Threads", Value: strconv.Itoa(clampInt(*cfg.Threads, 1, 16))})
	}
	if cfg.HashMB != nil {
		d.Send(SetOption{Name: "Hash", Value: strconv.Itoa(clampInt(*cfg.HashMB, 1, 2048))})
	}

	if err := d.enqueueLine("isready"); err != nil {
		return err
	}
	if err := d.awaitEvent(ctx, readyTimeout, func(ev Event) bool {
		_, ok := ev.(ReadyEvent)
		return ok
	}); err != nil {
		d.logger.Warnw("engine did not confirm readiness after handshake", "error", err)
	}

	return nil
}

// enqueueLine queues a raw line for the writer task, bypassing the
// translator; used for setup-only lines like "uci" and "isready" that
// are not part of the typed Command set.
func (d *Driver) enqueueLine(line string) error {
	select {
	case d.lines <- line:
		return nil
	default:
		return errors.New("uci: writer queue full")
	}
}

var errAwaitTimeout = errors.New("uci: timed out waiting for engine")

// awaitEvent consumes events until match succeeds, failing on timeout,
// context cancellation, or an engine error. Non-matching events are
// dropped; it only runs during spawn, before any other consumer
// exists, so the discarded lines are handshake chatter nobody reads.
func (d *Driver) awaitEvent(ctx context.Context, timeout time.Duration, match func(Event) bool) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case ev := <-d.events:
			if match(ev) {
				return nil
			}
			if e, ok := ev.(ErrorEvent); ok {
				if e.Err != nil {
					return e.Err
				}
				return errors.New("uci: engine error during handshake")
			}
		case <-deadline.C:
			return errAwaitTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Events returns the channel on which the driver publishes classified
// engine output. Callers should keep draining it; the driver never
// blocks indefinitely trying to publish (see eventBufferSize).
func (d *Driver) Events() <-chan Event { return d.events }

// Send enqueues a command for the translator. It does not block
// indefinitely: the command queue is generously buffered, and a full
// queue (which only happens if the engine is wedged) is reported as an
// ErrorEvent rather than stalling the caller.
func (d *Driver) Send(cmd Command) {
	select {
	case d.cmds <- cmd:
	default:
		d.logger.Warnw("uci: command queue full, dropping command", "command", fmt.Sprintf("%T", cmd))
		select {
		case d.events <- ErrorEvent{Err: errors.New("uci: command queue full")}:
		default:
		}
	}
}

// Shutdown requests engine termination: Stop then Quit, a 1-second
// grace period, then a forced kill. It always returns once the process
// has exited.
func (d *Driver) Shutdown() {
	d.Send(Stop{})
	d.Send(Quit{})

	select {
	case <-d.waitDone:
		return
	case <-time.After(shutdownGrace):
	}

	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	<-d.waitDone
}

// reapLoop waits for the subprocess to exit and records the result,
// guaranteeing Shutdown never blocks forever on a hung engine.
func (d *Driver) reapLoop() {
	d.waitErr = d.cmd.Wait()
	close(d.waitDone)
}

