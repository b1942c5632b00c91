package splash

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ferry/internal/launch"
	"ferry/internal/update"
)

type fakeResolver struct {
	update.Emitter
	resolve func(ctx context.Context, emit func(update.Event)) (update.Resolution, error)
}

func (f *fakeResolver) Resolve(ctx context.Context) (update.Resolution, error) {
	return f.resolve(ctx, f.Emit)
}

type armed struct {
	launched atomic.Int32
	shown    atomic.Int32
}

func arm(g *launch.Gate) *armed {
	a := &armed{}
	g.Arm(func() { a.launched.Add(1) }, func() { a.shown.Add(1) })
	return a
}

func collect(t *testing.T, c *Controller) []Phase {
	t.Helper()
	var phases []Phase
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-c.States():
			if !ok {
				return phases
			}
			phases = append(phases, s.Phase)
		case <-timeout:
			t.Fatal("splash never finished")
			return nil
		}
	}
}

func TestLaunchAfterUpToDate(t *testing.T) {
	gate := launch.NewGate()
	a := arm(gate)
	c := New(gate)
	c.Init(false)

	r := &fakeResolver{resolve: func(_ context.Context, emit func(update.Event)) (update.Resolution, error) {
		emit(update.Event{Kind: update.KindCheckingForUpdate})
		emit(update.Event{Kind: update.KindUpdateNotAvailable})
		return update.ResolveLaunch, nil
	}}
	c.Start(context.Background(), r)

	assert.Equal(t, []Phase{PhaseIdle, PhaseChecking, PhaseUpToDate, PhaseLaunching}, collect(t, c))
	assert.EqualValues(t, 1, a.launched.Load())
	assert.Zero(t, r.Listeners(update.KindCheckingForUpdate), "subscriptions should be released")

	c.Ready()
	c.Ready()
	assert.EqualValues(t, 1, a.shown.Load())
}

func TestRestartNeverLaunches(t *testing.T) {
	gate := launch.NewGate()
	a := arm(gate)
	c := New(gate)
	c.Init(true)
	assert.True(t, c.StartMinimized())

	r := &fakeResolver{resolve: func(_ context.Context, emit func(update.Event)) (update.Resolution, error) {
		emit(update.Event{Kind: update.KindUpdateAvailable, Version: "1.0.1"})
		emit(update.Event{Kind: update.KindUpdateProgress, Progress: 40})
		emit(update.Event{Kind: update.KindUpdateDownloaded, Version: "1.0.1"})
		return update.ResolveRestart, nil
	}}
	c.Start(context.Background(), r)

	phases := collect(t, c)
	assert.Equal(t, PhaseRestarting, phases[len(phases)-1])
	assert.NotContains(t, phases, PhaseLaunching)
	assert.Zero(t, a.launched.Load())
	assert.False(t, gate.Launch.Fired())
}

func TestFailureStillLaunches(t *testing.T) {
	gate := launch.NewGate()
	a := arm(gate)
	c := New(gate)

	boom := errors.New("feed unreachable")
	r := &fakeResolver{resolve: func(_ context.Context, emit func(update.Event)) (update.Resolution, error) {
		emit(update.Event{Kind: update.KindError, Err: boom})
		return update.ResolveLaunch, boom
	}}
	c.Start(context.Background(), r)
	<-c.Done()

	assert.EqualValues(t, 1, a.launched.Load())
	assert.Equal(t, PhaseLaunching, c.Last().Phase)
}

func TestTimeoutLaunches(t *testing.T) {
	gate := launch.NewGate()
	a := arm(gate)
	c := New(gate, WithTimeout(20*time.Millisecond))

	release := make(chan struct{})
	defer close(release)
	r := &fakeResolver{resolve: func(context.Context, func(update.Event)) (update.Resolution, error) {
		<-release
		return update.ResolveRestart, nil
	}}
	c.Start(context.Background(), r)

	phases := collect(t, c)
	assert.Equal(t, []Phase{PhaseFailed, PhaseLaunching}, phases)
	assert.EqualValues(t, 1, a.launched.Load())
}

func TestStartOnlyOnce(t *testing.T) {
	gate := launch.NewGate()
	c := New(gate)

	var calls atomic.Int32
	r := &fakeResolver{resolve: func(context.Context, func(update.Event)) (update.Resolution, error) {
		calls.Add(1)
		return update.ResolveLaunch, nil
	}}
	c.Start(context.Background(), r)
	c.Start(context.Background(), r)
	<-c.Done()

	require.EqualValues(t, 1, calls.Load())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "checking-for-updates", PhaseChecking.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
