// Package bootstrap decides at startup which updater governs the install and
// wires it to the splash screen and launch signals.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"ferry/internal/buildinfo"
	"ferry/internal/config"
	"ferry/internal/debug"
	"ferry/internal/launch"
	"ferry/internal/update"
)

var logBootstrap = debug.Scope("Bootstrap")

// Channel is the update mechanism chosen for this process.
type Channel int

const (
	ChannelUnselected Channel = iota
	ChannelLegacy
	ChannelHost
)

func (c Channel) String() string {
	switch c {
	case ChannelLegacy:
		return "legacy"
	case ChannelHost:
		return "host"
	default:
		return "unselected"
	}
}

// Error variables returned by Run.
var (
	ErrAlreadySelected = errors.New("update channel already selected")
	ErrFatal           = errors.New("fatal startup error")
)

// Settings is the subset of user settings read during selection.
type Settings interface {
	Bool(key string, def bool) bool
}

// Reporter receives errors that happen during startup.
type Reporter interface {
	Handled(err error)
	Fatal(err error)
}

// HostUpdater is the modern updater as seen by the selector.
type HostUpdater interface {
	update.Resolver
	ShortcutHost
	SetPinnedManifest(ctx context.Context, raw json.RawMessage) error
}

// Splash is the splash screen controller.
type Splash interface {
	Init(startMinimized bool)
	Start(ctx context.Context, r update.Resolver)
}

// Autostart refreshes the login item after a host update.
type Autostart interface {
	UpdateAutostart(ctx context.Context) error
}

// Endpoints are the update servers for each channel.
type Endpoints struct {
	Update    string
	NewUpdate string
}

// Deps are the collaborators the selector wires together.
type Deps struct {
	Settings  Settings
	Build     buildinfo.Info
	Endpoints Endpoints

	// UserData holds the pinned manifest.
	UserData string

	Reporter   Reporter
	Gate       *launch.Gate
	Splash     Splash
	HostInit   func(ctx context.Context, info buildinfo.Info, endpoint string) (HostUpdater, error)
	LegacyInit func(endpoint string, settings Settings, info buildinfo.Info) (update.Resolver, error)
	FirstRun   *FirstRun
	Autostart  Autostart
}

// Selector picks the update channel once per process.
type Selector struct {
	deps Deps

	mu      sync.Mutex
	channel Channel
}

// NewSelector returns a selector over deps.
func NewSelector(deps Deps) *Selector {
	return &Selector{deps: deps}
}

// Channel returns the selected channel, or ChannelUnselected before Run.
func (s *Selector) Channel() Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// Run selects the channel, wires it and starts update resolution. onLaunch
// and onShow are called at most once each, and never if a new host takes
// over. A fatal error has already been reported when ErrFatal is returned.
func (s *Selector) Run(ctx context.Context, startMinimized bool, onLaunch, onShow func()) (Channel, error) {
	s.mu.Lock()
	if s.channel != ChannelUnselected {
		ch := s.channel
		s.mu.Unlock()
		return ch, ErrAlreadySelected
	}
	d := s.deps
	channel, resolver, err := s.selectChannel(ctx)
	s.channel = channel
	s.mu.Unlock()
	if err != nil {
		return channel, err
	}

	logBootstrap.Logf("update channel: %s", channel)
	d.Splash.Init(startMinimized)
	d.Gate.Arm(onLaunch, onShow)
	d.Splash.Start(ctx, resolver)
	return channel, nil
}

func (s *Selector) selectChannel(ctx context.Context) (Channel, update.Resolver, error) {
	d := s.deps
	if !d.Build.IsStandaloneModules() {
		host, err := d.HostInit(ctx, d.Build, d.Endpoints.NewUpdate)
		if err == nil && host != nil {
			if err := s.enterHost(ctx, host); err != nil {
				return ChannelHost, nil, err
			}
			return ChannelHost, host, nil
		}
		logBootstrap.Logf("host updater unavailable, using legacy updater: %v", err)
	}

	legacy, err := d.LegacyInit(d.Endpoints.Update, d.Settings, d.Build)
	if err != nil {
		d.Reporter.Fatal(err)
		return ChannelLegacy, nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	return ChannelLegacy, legacy, nil
}

func (s *Selector) enterHost(ctx context.Context, host HostUpdater) error {
	d := s.deps
	host.On(update.KindHostUpdated, func(update.Event) {
		if err := d.Autostart.UpdateAutostart(ctx); err != nil {
			d.Reporter.Handled(err)
		}
	})
	host.On(update.KindUnhandledException, func(ev update.Event) {
		d.Reporter.Fatal(eventError(ev))
	})
	host.On(update.KindInconsistentInstallerState, func(ev update.Event) {
		d.Reporter.Fatal(eventError(ev))
	})
	host.On(update.KindUpdateError, func(ev update.Event) {
		d.Reporter.Handled(eventError(ev))
	})
	host.On(update.KindStartingNewHost, func(update.Event) {
		d.Gate.Disarm()
	})

	if d.Settings.Bool(config.KeyUsePinnedManifest, false) {
		path := filepath.Join(d.UserData, PinnedManifestFileName)
		raw, err := LoadPinnedManifest(path)
		if err == nil {
			err = host.SetPinnedManifest(ctx, raw)
		}
		if err != nil {
			logBootstrap.Logf("could not apply pinned manifest: %v", err)
			d.Reporter.Fatal(err)
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
	}

	d.FirstRun.Run(ctx, host)
	return nil
}

func eventError(ev update.Event) error {
	if ev.Err != nil {
		return ev.Err
	}
	return fmt.Errorf("updater reported %s", ev.Kind)
}
