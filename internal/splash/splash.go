// Package splash tracks startup progress for the splash screen and releases
// the launch gate once update resolution settles.
package splash

import (
	"context"
	"errors"
	"sync"
	"time"

	"ferry/internal/debug"
	"ferry/internal/launch"
	"ferry/internal/update"
)

var logSplash = debug.Scope("Splash")

// DefaultTimeout bounds how long the splash waits for an update check.
const DefaultTimeout = 90 * time.Second

// ErrTimeout is reported when resolution did not settle in time.
var ErrTimeout = errors.New("update check timed out")

// Phase is what the splash screen is currently showing.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseDownloading
	PhaseInstalling
	PhaseUpToDate
	PhaseUpdateManually
	PhaseFailed
	PhaseRestarting
	PhaseLaunching
)

var phaseNames = map[Phase]string{
	PhaseIdle:           "idle",
	PhaseChecking:       "checking-for-updates",
	PhaseDownloading:    "downloading-updates",
	PhaseInstalling:     "installing-updates",
	PhaseUpToDate:       "up-to-date",
	PhaseUpdateManually: "update-manually",
	PhaseFailed:         "update-failure",
	PhaseRestarting:     "restarting",
	PhaseLaunching:      "launching",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// State is one splash screen update.
type State struct {
	Phase    Phase
	Version  string
	Progress int
	Err      error
}

// Controller feeds splash states and owns when the launch signal fires.
type Controller struct {
	gate    *launch.Gate
	timeout time.Duration

	states    chan State
	done      chan struct{}
	startOnce sync.Once
	endOnce   sync.Once

	mu             sync.Mutex
	last           State
	closed         bool
	startMinimized bool
	subs           []*update.Subscription
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout bounds update resolution. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New returns a controller driving gate.
func New(gate *launch.Gate, opts ...Option) *Controller {
	c := &Controller{
		gate:    gate,
		timeout: DefaultTimeout,
		states:  make(chan State, 64),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init prepares the splash. A minimized start keeps the window hidden but
// still reports progress.
func (c *Controller) Init(startMinimized bool) {
	c.mu.Lock()
	c.startMinimized = startMinimized
	c.mu.Unlock()
	logSplash.Logf("init (start minimized: %t)", startMinimized)
	c.publish(State{Phase: PhaseIdle})
}

// StartMinimized reports the value given to Init.
func (c *Controller) StartMinimized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startMinimized
}

// States delivers splash updates. Intermediate states may be dropped when
// the reader falls behind; Last always has the newest one.
func (c *Controller) States() <-chan State {
	return c.states
}

// Done is closed once the splash has finished.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Last returns the most recent state.
func (c *Controller) Last() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Ready is called when the main window can be shown.
func (c *Controller) Ready() {
	c.gate.FireShow()
}

// Start runs resolution in the background and fires the launch signal once
// it settles, unless it handed over to another process.
func (c *Controller) Start(ctx context.Context, r update.Resolver) {
	c.startOnce.Do(func() {
		c.watch(r)
		go c.run(ctx, r)
	})
}

type result struct {
	res update.Resolution
	err error
}

func (c *Controller) run(ctx context.Context, r update.Resolver) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make(chan result, 1)
	go func() {
		res, err := r.Resolve(ctx)
		results <- result{res: res, err: err}
	}()

	select {
	case out := <-results:
		c.finish(out.res, out.err)
	case <-ctx.Done():
		logSplash.Logf("resolution did not settle within %s", c.timeout)
		c.finish(update.ResolveLaunch, ErrTimeout)
	}
}

func (c *Controller) finish(res update.Resolution, err error) {
	c.endOnce.Do(func() {
		c.unwatch()
		if res == update.ResolveRestart {
			logSplash.Log("handing over to a new process")
			c.publish(State{Phase: PhaseRestarting})
			c.close()
			return
		}
		if err != nil {
			logSplash.Logf("continuing after update failure: %v", err)
			c.publish(State{Phase: PhaseFailed, Err: err})
		}
		c.publish(State{Phase: PhaseLaunching})
		c.gate.FireLaunch()
		c.close()
	})
}

func (c *Controller) watch(src update.Source) {
	on := func(kind update.Kind, fn func(update.Event) State) {
		sub := src.On(kind, func(ev update.Event) { c.publish(fn(ev)) })
		c.mu.Lock()
		c.subs = append(c.subs, sub)
		c.mu.Unlock()
	}
	on(update.KindCheckingForUpdate, func(update.Event) State { return State{Phase: PhaseChecking} })
	on(update.KindUpdateAvailable, func(ev update.Event) State { return State{Phase: PhaseDownloading, Version: ev.Version} })
	on(update.KindUpdateProgress, func(ev update.Event) State {
		return State{Phase: PhaseDownloading, Version: ev.Version, Progress: ev.Progress}
	})
	on(update.KindUpdateDownloaded, func(ev update.Event) State { return State{Phase: PhaseInstalling, Version: ev.Version} })
	on(update.KindHostUpdated, func(ev update.Event) State { return State{Phase: PhaseInstalling, Version: ev.Version} })
	on(update.KindUpdateNotAvailable, func(update.Event) State { return State{Phase: PhaseUpToDate} })
	on(update.KindUpdateManually, func(ev update.Event) State { return State{Phase: PhaseUpdateManually, Version: ev.Version} })
	on(update.KindStartingNewHost, func(ev update.Event) State { return State{Phase: PhaseRestarting, Version: ev.Version} })
	on(update.KindError, func(ev update.Event) State { return State{Phase: PhaseFailed, Err: ev.Err} })
	on(update.KindUpdateError, func(ev update.Event) State { return State{Phase: PhaseFailed, Err: ev.Err} })
}

func (c *Controller) unwatch() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (c *Controller) publish(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.last = s
	select {
	case c.states <- s:
	default:
	}
}

func (c *Controller) close() {
	c.mu.Lock()
	c.closed = true
	close(c.states)
	c.mu.Unlock()
	close(c.done)
}
