// Package engine drives a UCI-protocol chess engine subprocess through a
// handshake/analyze/recover lifecycle. A Session owns exactly one engine
// process and mediates all communication with it; it must only ever be used
// from a single goroutine.
package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the session lifecycle state
type State int

const (
	StateUninitialized State = iota
	StateHandshaking
	StateReady
	StateAnalyzing
	StateFaulted
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateAnalyzing:
		return "analyzing"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultReadyTimeout     = 2 * time.Second
	defaultAnalyzeTimeout   = 5 * time.Second
)

var (
	// ErrHandshake indicates the engine never completed the uci/isready
	// exchange. Fatal for the session.
	ErrHandshake = errors.New("engine: handshake failed")

	// ErrStreamClosed indicates the engine's stdout closed or an I/O error
	// occurred mid-protocol. The session is Faulted and needs a restart.
	ErrStreamClosed = errors.New("engine: stream closed")

	// ErrNotReady indicates an operation was attempted in the wrong state
	ErrNotReady = errors.New("engine: session not ready")

	// ErrRestart indicates a restart attempt itself failed; the caller should
	// skip the engine this cycle and retry later.
	ErrRestart = errors.New("engine: restart failed")
)

// Options are the engine settings applied via setoption. They are NOT
// remembered across a restart; the caller re-applies them.
type Options struct {
	Threads int
	HashMB  int
	MultiPV int
}

type readResult struct {
	line string
	err  error
}

// Session manages one UCI engine subprocess
type Session struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	state State

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan readResult

	handshakeTimeout time.Duration
	readyTimeout     time.Duration
	analyzeTimeout   time.Duration
}

// NewSession creates a session for the engine binary at path. The process is
// not spawned until Start is called.
func NewSession(path string, logger *zap.Logger) *Session {
	return &Session{
		path:             path,
		logger:           logger,
		state:            StateUninitialized,
		handshakeTimeout: defaultHandshakeTimeout,
		readyTimeout:     defaultReadyTimeout,
		analyzeTimeout:   defaultAnalyzeTimeout,
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// attach wires the session to the engine's stdin and stdout streams and
// starts the line pump. Split out from Start so tests can drive the protocol
// over in-memory pipes.
func (s *Session) attach(stdin io.WriteCloser, stdout io.Reader) {
	s.stdin = stdin
	s.lines = make(chan readResult, 64)

	go func(ch chan<- readResult) {
		reader := bufio.NewReader(stdout)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				ch <- readResult{line: strings.TrimSpace(line)}
			}
			if err != nil {
				ch <- readResult{err: err}
				return
			}
		}
	}(s.lines)
}

// Start spawns the engine process and performs the UCI handshake. The session
// must be Uninitialized or Faulted.
func (s *Session) Start() error {
	if st := s.State(); st != StateUninitialized && st != StateFaulted {
		return fmt.Errorf("%w: cannot start from state %s", ErrNotReady, st)
	}
	s.setState(StateHandshaking)

	cmd := exec.Command(s.path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(StateFaulted)
		return fmt.Errorf("%w: create stdin pipe: %v", ErrHandshake, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		s.setState(StateFaulted)
		return fmt.Errorf("%w: create stdout pipe: %v", ErrHandshake, err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		s.setState(StateFaulted)
		return fmt.Errorf("%w: start %s: %v", ErrHandshake, s.path, err)
	}

	s.cmd = cmd
	s.attach(stdin, stdout)

	if err := s.handshake(); err != nil {
		s.kill()
		s.setState(StateFaulted)
		return err
	}

	s.setState(StateReady)
	s.logger.Info("Engine session ready", zap.String("path", s.path))
	return nil
}

// handshake performs the uci/uciok then isready/readyok exchange with bounded
// waits. An unexpected stream closure is fatal.
func (s *Session) handshake() error {
	if err := s.send("uci"); err != nil {
		return fmt.Errorf("%w: send uci: %v", ErrHandshake, err)
	}
	if err := s.awaitToken("uciok", s.handshakeTimeout); err != nil {
		return fmt.Errorf("%w: wait uciok: %v", ErrHandshake, err)
	}

	if err := s.send("isready"); err != nil {
		return fmt.Errorf("%w: send isready: %v", ErrHandshake, err)
	}
	if err := s.awaitToken("readyok", s.handshakeTimeout); err != nil {
		return fmt.Errorf("%w: wait readyok: %v", ErrHandshake, err)
	}

	return nil
}

// ApplyOptions configures search thread count, hash size and the number of
// principal variations. Must be called after every successful Start or
// Restart; the session keeps no cross-restart option state.
func (s *Session) ApplyOptions(opt Options) error {
	if s.State() != StateReady {
		return fmt.Errorf("%w: state %s", ErrNotReady, s.State())
	}

	threads := opt.Threads
	if threads <= 0 {
		threads = 1
	}

	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d", threads),
		fmt.Sprintf("setoption name Hash value %d", opt.HashMB),
	}
	if opt.MultiPV > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name MultiPV value %d", opt.MultiPV))
	}

	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			s.setState(StateFaulted)
			return fmt.Errorf("%w: apply options: %v", ErrStreamClosed, err)
		}
	}

	return nil
}

// Analyze runs a bounded depth search on the given position and returns the
// candidate moves ranked best-first, at most lines entries.
//
// The wall-clock ceiling is a hard bound: on expiry a stop is issued and
// whatever principal variations were collected are returned, possibly none.
// A timeout is not an error by itself; only I/O failures fault the session.
func (s *Session) Analyze(fen string, depth, lines int) ([]string, error) {
	if s.State() != StateReady {
		return nil, fmt.Errorf("%w: state %s", ErrNotReady, s.State())
	}
	s.setState(StateAnalyzing)

	moves, err := s.analyze(fen, depth, lines)
	if err != nil {
		s.setState(StateFaulted)
		return nil, err
	}

	s.setState(StateReady)
	return moves, nil
}

func (s *Session) analyze(fen string, depth, lines int) ([]string, error) {
	// Re-sync first; this drains any stale output from a previous search.
	if err := s.send("isready"); err != nil {
		return nil, fmt.Errorf("%w: send isready: %v", ErrStreamClosed, err)
	}
	if err := s.awaitToken("readyok", s.readyTimeout); err != nil {
		return nil, fmt.Errorf("%w: wait readyok: %v", ErrStreamClosed, err)
	}

	if err := s.send(fmt.Sprintf("setoption name MultiPV value %d", lines)); err != nil {
		return nil, fmt.Errorf("%w: set multipv: %v", ErrStreamClosed, err)
	}
	if err := s.send("position fen " + fen); err != nil {
		return nil, fmt.Errorf("%w: send position: %v", ErrStreamClosed, err)
	}
	if err := s.send(fmt.Sprintf("go depth %d", depth)); err != nil {
		return nil, fmt.Errorf("%w: send go: %v", ErrStreamClosed, err)
	}

	deadline := time.Now().Add(s.analyzeTimeout)

	// Principal variation index -> first move of the line. Deeper search
	// reports overwrite earlier, shallower ones for the same index.
	pv := make(map[int]string)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.logger.Warn("Analysis timed out, stopping search",
				zap.Int("depth", depth),
				zap.Int("collected", len(pv)),
			)
			// Best effort; the next isready re-sync drains the stale search.
			_ = s.send("stop")
			break
		}

		line, err := s.readLine(remaining)
		if errors.Is(err, errTimeout) {
			s.logger.Warn("Analysis timed out, stopping search",
				zap.Int("depth", depth),
				zap.Int("collected", len(pv)),
			)
			_ = s.send("stop")
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}

		if strings.HasPrefix(line, "info ") {
			if idx, move, ok := parseInfoLine(line); ok {
				pv[idx] = move
			}
			continue
		}

		if strings.HasPrefix(line, "bestmove") {
			if len(pv) == 0 {
				// Single-line engines or an immediate mate report no PV;
				// fall back to the bestmove token itself.
				if fields := strings.Fields(line); len(fields) >= 2 {
					return []string{fields[1]}, nil
				}
			}
			break
		}
	}

	return collapsePV(pv, lines), nil
}

// parseInfoLine extracts the principal variation index and the first move of
// the line from a UCI info line. Lines without a pv payload are ignored. A pv
// line without an explicit multipv marker belongs to line 1.
func parseInfoLine(line string) (int, string, bool) {
	fields := strings.Fields(line)
	idx := 1
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "multipv":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					idx = v
				}
				i++
			}
		case "pv":
			if i+1 < len(fields) {
				return idx, fields[i+1], true
			}
			return 0, "", false
		}
	}
	return 0, "", false
}

// collapsePV orders the collected moves by ascending PV index (index 1 is the
// engine's best line).
func collapsePV(pv map[int]string, limit int) []string {
	if len(pv) == 0 {
		return nil
	}

	keys := make([]int, 0, len(pv))
	for k := range pv {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	moves := make([]string, 0, len(keys))
	for _, k := range keys {
		if len(moves) >= limit && limit > 0 {
			break
		}
		moves = append(moves, pv[k])
	}
	return moves
}

// Restart replaces the engine process: the old one is killed best-effort, a
// fresh one is spawned and taken through the full handshake. Previously
// applied options are gone; the caller must re-apply them.
func (s *Session) Restart() error {
	s.logger.Warn("Restarting engine session", zap.String("state", s.State().String()))

	s.kill()
	s.setState(StateFaulted)

	if err := s.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrRestart, err)
	}
	return nil
}

// Close disposes of the session: quit is sent best-effort, then the process
// is terminated if still alive.
func (s *Session) Close() error {
	_ = s.send("quit")
	s.kill()
	s.setState(StateUninitialized)
	return nil
}

// kill terminates the owned process. Termination errors are swallowed; the
// process may already be gone.
func (s *Session) kill() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
}

// errTimeout is internal: a bounded read expired without a line
var errTimeout = errors.New("engine: read timed out")

// readLine waits up to timeout for the next line from the engine
func (s *Session) readLine(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	case <-timer.C:
		return "", errTimeout
	}
}

// awaitToken reads lines until one containing token arrives
func (s *Session) awaitToken(token string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("timed out waiting for %s", token)
		}
		line, err := s.readLine(remaining)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

// send writes one command line to the engine's stdin
func (s *Session) send(cmd string) error {
	if s.stdin == nil {
		return io.ErrClosedPipe
	}
	_, err := io.WriteString(s.stdin, cmd+"\n")
	return err
}
