// Package engine composes the tailer, parser, normalizer, supervisor, and
// archive manager into one pollable state machine and publishes immutable
// snapshots of the live session to subscribers.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentdeck/agentdeck/internal/archive"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/stream"
	"github.com/agentdeck/agentdeck/internal/supervise"
	"github.com/agentdeck/agentdeck/internal/tail"
)

// Options wires the engine's collaborators. Supervisor is required;
// Archive is optional (nil disables archiving).
type Options struct {
	LogPath      string
	PollInterval time.Duration
	Supervisor   *supervise.Supervisor
	Command      supervise.Command
	ResumeFlag   string
	Archive      *archive.Manager
}

// Engine owns the live in-memory session state. A single poll loop is the
// only writer of the stream state; the mutex covers the handoff to
// subscribers and to user-initiated supervisor calls.
type Engine struct {
	opts   Options
	tailer *tail.Tailer
	parser *stream.LineParser
	norm   *stream.Normalizer
	sup    *supervise.Supervisor

	mu           sync.Mutex
	offset       int64
	boundary     int
	lastError    error
	seq          uint64
	runStartedAt time.Time
	archived     bool
	subs         map[int]chan Snapshot
	nextSub      int

	wake chan struct{}
}

func New(opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Engine{
		opts:     opts,
		tailer:   tail.New(opts.LogPath),
		parser:   stream.NewLineParser(),
		norm:     stream.NewNormalizer(),
		sup:      opts.Supervisor,
		boundary: stream.NoBoundary,
		subs:     make(map[int]chan Snapshot),
		wake:     make(chan struct{}, 1),
	}
}

// Run drives the poll cadence until ctx is cancelled. Stopping between
// polls is always safe: the offset is only committed after a successful
// full read, so an abandoned cycle re-reads the same range next time.
func (e *Engine) Run(ctx context.Context) {
	e.sup.OnExit(func(crashed bool) {
		if crashed {
			e.mu.Lock()
			e.lastError = ErrAgentCrashed
			e.mu.Unlock()
		}
		// Drain whatever the agent wrote before exiting.
		e.requestWake()
	})

	watcher := e.watchLogDir()
	if watcher != nil {
		defer watcher.Close()
	}

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	logging.Info().Str("log", e.opts.LogPath).Dur("interval", e.opts.PollInterval).Msg("engine started")

	e.poll()
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("engine stopped")
			return
		case <-ticker.C:
			e.poll()
		case <-e.wake:
			e.poll()
		}
	}
}

// watchLogDir registers an fsnotify watch on the log's directory so writes
// trigger an immediate poll instead of waiting out the tick. Best-effort:
// polling remains the source of truth when the watch cannot be set up.
func (e *Engine) watchLogDir() *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Debug().Err(err).Msg("fsnotify unavailable, polling only")
		return nil
	}
	if err := watcher.Add(filepath.Dir(e.opts.LogPath)); err != nil {
		logging.Debug().Err(err).Msg("log dir watch failed, polling only")
		watcher.Close()
		return nil
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != e.opts.LogPath {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					e.requestWake()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher
}

// Poll runs one tail cycle immediately, outside the Run cadence. Safe to
// call concurrently with a running loop.
func (e *Engine) Poll() { e.poll() }

func (e *Engine) requestWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// poll runs one tail→parse→normalize cycle and publishes a snapshot when
// anything changed.
func (e *Engine) poll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.tailer.Poll(e.offset)
	if err != nil {
		// Transient I/O: retry next poll from the same offset.
		e.norm.AddIORetry()
		e.lastError = err
		logging.Warn().Err(err).Msg("tail poll failed, will retry")
		e.publishLocked()
		return
	}

	if res.Rotated {
		logging.Info().Msg("log rotated, starting new session state")
		e.resetSessionLocked()
	}

	changed := res.Rotated || len(res.Bytes) > 0
	e.offset = res.NewOffset

	if len(res.Bytes) > 0 {
		events, parseErrs := e.parser.Feed(res.Bytes)
		if len(parseErrs) > 0 {
			e.norm.AddParseErrors(len(parseErrs))
			logging.Warn().Int("count", len(parseErrs)).Msg("malformed log lines skipped")
		}
		for _, ev := range events {
			e.norm.Apply(ev)
		}
	}

	if changed {
		e.publishLocked()
	}
}

// resetSessionLocked clears all in-memory session state. The rotated file
// represents a brand-new session from offset 0.
func (e *Engine) resetSessionLocked() {
	e.norm.Reset()
	e.parser.Reset()
	e.boundary = stream.NoBoundary
	e.lastError = nil
	e.archived = false
}

// Start launches a fresh agent run. The session boundary is set to the
// pre-spawn message count atomically with the start, so history already in
// the file is excluded from current-run stats. When the previous run was
// archived, the live log is truncated first and state reset — the one
// write the engine ever performs on the log path, and only while no agent
// is running.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.archived {
		if err := os.Truncate(e.opts.LogPath, 0); err != nil && !os.IsNotExist(err) {
			logging.Warn().Err(err).Msg("fresh-start truncate failed, keeping prior history")
		} else {
			e.resetSessionLocked()
			e.offset = 0
		}
	}
	boundary := len(e.norm.Messages())
	e.mu.Unlock()

	if err := e.sup.Start(e.opts.Command); err != nil {
		e.mu.Lock()
		e.lastError = err
		e.publishLocked()
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.boundary = boundary
	e.runStartedAt = time.Now()
	e.lastError = nil
	e.publishLocked()
	e.mu.Unlock()
	return nil
}

// Stop terminates the run and, on success, archives the completed log.
func (e *Engine) Stop() error {
	if err := e.sup.Stop(); err != nil {
		e.mu.Lock()
		e.lastError = err
		e.publishLocked()
		e.mu.Unlock()
		return err
	}

	// Final drain so the archive copy includes the last lines.
	e.poll()

	e.mu.Lock()
	startedAt := e.runStartedAt
	e.mu.Unlock()

	if e.opts.Archive != nil {
		if _, err := e.opts.Archive.Archive(e.opts.LogPath, startedAt, time.Now()); err != nil {
			logging.Warn().Err(err).Msg("archiving failed, live log untouched")
		} else {
			e.mu.Lock()
			e.archived = true
			e.mu.Unlock()
		}
	}

	e.mu.Lock()
	e.publishLocked()
	e.mu.Unlock()
	return nil
}

// Resume restarts the agent against the same logical session, passing the
// provider's resume flag and the operator's feedback. Unlike Start, the
// boundary is left where it is: the resumed run extends the current
// session's stat scope instead of opening a new one.
func (e *Engine) Resume(feedback string) error {
	if err := e.sup.Resume(e.opts.Command, e.opts.ResumeFlag, feedback); err != nil {
		e.mu.Lock()
		e.lastError = err
		e.publishLocked()
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	if e.boundary == stream.NoBoundary {
		// Nothing to continue: scope the new run like a fresh start.
		e.boundary = len(e.norm.Messages())
		e.runStartedAt = time.Now()
	}
	e.lastError = nil
	e.archived = false
	e.publishLocked()
	e.mu.Unlock()
	return nil
}

// Acknowledge clears a crashed run state after the operator has seen it.
func (e *Engine) Acknowledge() {
	e.sup.Acknowledge()
	e.mu.Lock()
	e.lastError = nil
	e.publishLocked()
	e.mu.Unlock()
}
