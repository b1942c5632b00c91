package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"ferry/internal/hostupdater"
	"ferry/internal/update"
)

type fakeReporter struct {
	mu      sync.Mutex
	handled []error
	fatal   []error
}

func (r *fakeReporter) Handled(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = append(r.handled, err)
}

func (r *fakeReporter) Fatal(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatal = append(r.fatal, err)
}

func (r *fakeReporter) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handled), len(r.fatal)
}

type fakeHost struct {
	update.Emitter

	folders     map[string]string
	shortcutErr error
	pinErr      error

	mu        sync.Mutex
	pinned    json.RawMessage
	shortcuts []hostupdater.ShortcutOptions
}

func (h *fakeHost) Resolve(context.Context) (update.Resolution, error) {
	return update.ResolveLaunch, nil
}

func (h *fakeHost) KnownFolder(name string) (string, error) {
	if dir, ok := h.folders[name]; ok {
		return dir, nil
	}
	return "", hostupdater.ErrUnknownFolder
}

func (h *fakeHost) CreateShortcut(_ context.Context, opts hostupdater.ShortcutOptions) error {
	if h.shortcutErr != nil {
		return h.shortcutErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shortcuts = append(h.shortcuts, opts)
	return nil
}

func (h *fakeHost) SetPinnedManifest(_ context.Context, raw json.RawMessage) error {
	if h.pinErr != nil {
		return h.pinErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pinned = raw
	return nil
}

func (h *fakeHost) shortcutCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.shortcuts)
}

type fakeLegacy struct {
	update.Emitter
}

func (l *fakeLegacy) Resolve(context.Context) (update.Resolution, error) {
	return update.ResolveLaunch, nil
}

type fakeSplash struct {
	inits          int
	startMinimized bool
	started        update.Resolver
}

func (s *fakeSplash) Init(startMinimized bool) {
	s.inits++
	s.startMinimized = startMinimized
}

func (s *fakeSplash) Start(_ context.Context, r update.Resolver) {
	s.started = r
}

type fakeProtocol struct {
	calls   int
	schemes []string
	err     error
}

func (p *fakeProtocol) InstallProtocol(_ context.Context, scheme string) error {
	p.calls++
	p.schemes = append(p.schemes, scheme)
	return p.err
}

type fakeAutostart struct {
	calls int
	err   error
}

func (a *fakeAutostart) UpdateAutostart(context.Context) error {
	a.calls++
	return a.err
}

type settingsMap map[string]bool

func (s settingsMap) Bool(key string, def bool) bool {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

var errNoHost = errors.New("host updater disabled")
