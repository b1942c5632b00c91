package launch

import "ferry/internal/debug"

var logBootstrap = debug.Scope("Bootstrap")

// Signal names.
const (
	AppShouldShow   = "APP_SHOULD_SHOW"
	AppShouldLaunch = "APP_SHOULD_LAUNCH"
)

// Gate pairs the show and launch signals.
type Gate struct {
	Show   *Signal
	Launch *Signal
}

// NewGate returns a gate with both signals unfired.
func NewGate() *Gate {
	return &Gate{
		Show:   NewSignal(AppShouldShow),
		Launch: NewSignal(AppShouldLaunch),
	}
}

// Arm registers the listeners for both signals.
func (g *Gate) Arm(onLaunch, onShow func()) {
	g.Launch.Once(onLaunch)
	g.Show.Once(onShow)
}

// Disarm removes both listeners. Used when a newer host takes over startup
// so nothing fires against the old splash screen.
func (g *Gate) Disarm() {
	logBootstrap.Logf("removing launch listeners")
	g.Launch.Remove()
	g.Show.Remove()
}

// FireShow consumes the show signal.
func (g *Gate) FireShow() {
	if g.Show.Fire() {
		logBootstrap.Logf("%s fired", AppShouldShow)
	}
}

// FireLaunch consumes the launch signal.
func (g *Gate) FireLaunch() {
	if g.Launch.Fire() {
		logBootstrap.Logf("%s fired", AppShouldLaunch)
	}
}
