// Package supervise enforces at most one live agent subprocess per project
// and owns its lifecycle: lock-file gating, spawn, graceful-then-forced
// termination, and crash detection.
package supervise

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/internal/logging"
)

// RunState is the supervisor's lifecycle state machine:
// idle -> starting -> running -> {stopping -> idle | crashed}.
type RunState string

const (
	StateIdle     RunState = "idle"
	StateStarting RunState = "starting"
	StateRunning  RunState = "running"
	StateStopping RunState = "stopping"
	StateCrashed  RunState = "crashed"
)

// AlreadyRunningError reports a start attempt while the lock file names a
// live process.
type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("agent already running (pid %d)", e.PID)
}

// LockState is the persisted lock-file document. Its presence plus a live
// PID is the single gate for starting a run.
type LockState struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
}

// Command carries the opaque spawn inputs supplied by the configuration
// layer. The supervisor passes them to the OS without interpretation.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  map[string]string
}

// Probe answers process liveness questions in a platform-appropriate way.
// Injected so tests can substitute fakes. StartedAt may report ok=false
// when the start time is unavailable.
type Probe interface {
	Alive(pid int) bool
	StartedAt(pid int) (time.Time, bool)
}

// Supervisor manages one agent subprocess. Safe for concurrent use; the
// poll loop and user-initiated start/stop calls share it.
type Supervisor struct {
	mu          sync.Mutex
	lockPath    string
	probe       Probe
	stopTimeout time.Duration

	state   RunState
	cmd     *exec.Cmd
	pid     int
	started time.Time
	done    chan struct{}

	// onExit, when set, runs after the subprocess exits with whether the
	// exit was requested (stop) or unexpected (crash).
	onExit func(crashed bool)
}

// LockPath builds the conventional lock location for a project.
func LockPath(projectDir, name string) string {
	return filepath.Join(projectDir, ".state", name+".lock")
}

func New(lockPath string, probe Probe, stopTimeout time.Duration) *Supervisor {
	if probe == nil {
		probe = defaultProbe{}
	}
	return &Supervisor{
		lockPath:    lockPath,
		probe:       probe,
		stopTimeout: stopTimeout,
		state:       StateIdle,
	}
}

// OnExit registers the exit callback. Must be set before Start.
func (s *Supervisor) OnExit(fn func(crashed bool)) {
	s.mu.Lock()
	s.onExit = fn
	s.mu.Unlock()
}

func (s *Supervisor) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

func (s *Supervisor) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Start spawns the agent. It fails with *AlreadyRunningError when the lock
// file names a live process; a stale lock (dead PID) is reclaimed silently.
func (s *Supervisor) Start(cmd Command) error {
	return s.start(cmd, nil)
}

// Resume is Start plus the provider's resume flag and feedback text. The
// boundary distinction between fresh starts and resumes is the caller's:
// the supervisor only shapes the command line.
func (s *Supervisor) Resume(cmd Command, resumeFlag, feedback string) error {
	extra := []string{resumeFlag}
	if feedback != "" {
		extra = append(extra, feedback)
	}
	return s.start(cmd, extra)
}

func (s *Supervisor) start(cmd Command, extraArgs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning || s.state == StateStarting || s.state == StateStopping {
		return &AlreadyRunningError{PID: s.pid}
	}

	if lock, err := ReadLock(s.lockPath); err == nil {
		if s.probe.Alive(lock.PID) && !pidReused(s.probe, lock) {
			return &AlreadyRunningError{PID: lock.PID}
		}
		// Crash without cleanup (or PID reuse): reclaim, not an error.
		logging.Debug().Int("pid", lock.PID).Msg("reclaiming stale lock")
		_ = os.Remove(s.lockPath)
	}

	s.state = StateStarting

	args := append(append([]string(nil), cmd.Args...), extraArgs...)
	c := exec.Command(cmd.Path, args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		env := os.Environ()
		keys := make([]string, 0, len(cmd.Env))
		for k := range cmd.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+cmd.Env[k])
		}
		c.Env = env
	}

	if err := c.Start(); err != nil {
		s.state = StateIdle
		return fmt.Errorf("spawning agent: %w", err)
	}

	now := time.Now()
	if err := writeLock(s.lockPath, LockState{PID: c.Process.Pid, StartedAt: now}); err != nil {
		// Without the lock the single-writer guarantee is gone; abort the
		// spawn rather than run unguarded.
		_ = c.Process.Kill()
		_ = c.Wait()
		s.state = StateIdle
		return fmt.Errorf("writing lock file: %w", err)
	}

	s.cmd = c
	s.pid = c.Process.Pid
	s.started = now
	s.state = StateRunning
	s.done = make(chan struct{})

	logging.Info().Int("pid", s.pid).Str("command", cmd.Path).Msg("agent started")
	go s.wait(c, s.done)

	return nil
}

// wait reaps the subprocess and settles the state machine. The lock file
// is removed on every exit path.
func (s *Supervisor) wait(c *exec.Cmd, done chan struct{}) {
	err := c.Wait()

	s.mu.Lock()
	stopping := s.state == StateStopping
	if stopping {
		s.state = StateIdle
	} else {
		s.state = StateCrashed
	}
	s.pid = 0
	s.cmd = nil
	_ = os.Remove(s.lockPath)
	fn := s.onExit
	s.mu.Unlock()

	if stopping {
		logging.Info().Msg("agent stopped")
	} else {
		logging.Warn().Err(err).Msg("agent exited unexpectedly")
	}

	close(done)
	if fn != nil {
		fn(!stopping)
	}
}

// pidReused detects a live process that is not the one the lock recorded:
// if it started well after the lock was written, the kernel recycled the
// PID and the lock is stale. Unknown start times count as not reused.
func pidReused(probe Probe, lock LockState) bool {
	started, ok := probe.StartedAt(lock.PID)
	if !ok || lock.StartedAt.IsZero() {
		return false
	}
	return started.After(lock.StartedAt.Add(5 * time.Second))
}

// Stop sends the graceful terminate signal, waits one bounded timeout, then
// force-kills exactly once. Returns after the process has exited.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return fmt.Errorf("agent not running (state %s)", s.state)
	}
	s.state = StateStopping
	pid := s.pid
	done := s.done
	s.mu.Unlock()

	if err := terminate(pid, true); err != nil {
		logging.Warn().Err(err).Int("pid", pid).Msg("graceful terminate failed")
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.stopTimeout):
	}

	logging.Warn().Int("pid", pid).Msg("graceful stop timed out, force killing")
	if err := terminate(pid, false); err != nil {
		return fmt.Errorf("force kill: %w", err)
	}
	<-done
	return nil
}

// Acknowledge moves a crashed supervisor back to idle once the caller has
// recorded the failure.
func (s *Supervisor) Acknowledge() {
	s.mu.Lock()
	if s.state == StateCrashed {
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// ReadLock decodes the lock file at path.
func ReadLock(path string) (LockState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LockState{}, err
	}
	var lock LockState
	if err := json.Unmarshal(data, &lock); err != nil {
		return LockState{}, fmt.Errorf("parsing lock file: %w", err)
	}
	return lock, nil
}

func writeLock(path string, lock LockState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(lock)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
