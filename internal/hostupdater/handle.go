// Package hostupdater is the modern updater: it keeps the install on the host
// version named by a release manifest, installing new hosts side by side and
// handing over to them.
package hostupdater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"ferry/internal/buildinfo"
	"ferry/internal/debug"
	apperrors "ferry/internal/errors"
	"ferry/internal/paths"
	"ferry/internal/proc"
	"ferry/internal/update"
)

var logHost = debug.Scope("HostUpdater")

// JournalFileName is the install journal kept in user data.
const JournalFileName = "host_installs.db"

const (
	userAgent       = "ferry-host-updater"
	maxManifestBody = 1 << 20
	// ManifestTimeout bounds the manifest and checksum requests.
	ManifestTimeout = 30 * time.Second
)

// Error variables for host updater setup.
var (
	ErrDisabled     = errors.New("host updater is disabled for this build")
	ErrObsoleteHost = errors.New("a newer host is installed")
)

// Handle is an initialised host updater.
type Handle struct {
	update.Emitter

	info        buildinfo.Info
	endpoint    *url.URL
	layout      paths.Layout
	store       *Store
	httpClient  *http.Client
	runner      proc.Runner
	goos        string
	goarch      string
	hostArgs    []string
	storePath   string
	knownFolder func(string) (string, error)

	mu     sync.Mutex
	pinned *Manifest
}

// Option configures a Handle.
type Option func(*Handle)

// WithHTTPClient sets the client used for manifests and packages.
func WithHTTPClient(client *http.Client) Option {
	return func(h *Handle) {
		h.httpClient = client
	}
}

// WithRunner sets how helper processes and new hosts are started.
func WithRunner(r proc.Runner) Option {
	return func(h *Handle) {
		h.runner = r
	}
}

// WithPlatform overrides the target platform.
func WithPlatform(goos, goarch string) Option {
	return func(h *Handle) {
		h.goos, h.goarch = goos, goarch
	}
}

// WithHostArgs sets the arguments a newly installed host is started with.
func WithHostArgs(args ...string) Option {
	return func(h *Handle) {
		h.hostArgs = args
	}
}

// WithStorePath moves the install journal.
func WithStorePath(p string) Option {
	return func(h *Handle) {
		h.storePath = p
	}
}

// WithKnownFolders replaces the known folder lookup.
func WithKnownFolders(fn func(string) (string, error)) Option {
	return func(h *Handle) {
		h.knownFolder = fn
	}
}

// TryInit prepares the host updater. Any error means the install should fall
// back to the legacy updater.
func TryInit(ctx context.Context, info buildinfo.Info, endpoint string, layout paths.Layout, opts ...Option) (*Handle, error) {
	if !info.NewUpdater {
		return nil, ErrDisabled
	}
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.New(apperrors.CodeHostInit, fmt.Sprintf("invalid update endpoint %q", endpoint), err)
	}

	h := &Handle{
		info:        info,
		endpoint:    u,
		layout:      layout,
		httpClient:  &http.Client{Timeout: 0},
		runner:      proc.Exec{},
		goos:        runtime.GOOS,
		goarch:      runtime.GOARCH,
		hostArgs:    os.Args[1:],
		storePath:   filepath.Join(layout.UserData, JournalFileName),
		knownFolder: lookupKnownFolder,
	}
	for _, opt := range opts {
		opt(h)
	}

	store, err := OpenStore(ctx, h.storePath)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeHostInit, "open install journal", err)
	}
	h.store = store
	logHost.Logf("initialised for %s %s against %s", info.ReleaseChannel, info.Version, u)
	return h, nil
}

// Close releases the journal.
func (h *Handle) Close() error {
	return h.store.Close()
}

// SetPinnedManifest makes Resolve use raw instead of the published manifest.
func (h *Handle) SetPinnedManifest(ctx context.Context, raw json.RawMessage) error {
	m, err := ParseManifest(raw)
	if err != nil {
		return apperrors.New(apperrors.CodeManifestParse, "invalid pinned manifest", err)
	}
	if err := h.store.RecordPinned(ctx, m.HostVersion, raw); err != nil {
		return err
	}
	h.mu.Lock()
	h.pinned = &m
	h.mu.Unlock()
	logHost.Logf("pinned manifest applied: host %s", m.HostVersion)
	return nil
}

// Resolve brings the install up to the manifest's host version. It returns
// ResolveRestart once a new host has been started; every other outcome keeps
// the current version. Failures are reported as events as well as returned.
func (h *Handle) Resolve(ctx context.Context) (res update.Resolution, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apperrors.New(apperrors.CodeUnhandled, fmt.Sprintf("host update panicked: %v", p), nil)
			logHost.Logf("%v", err)
			h.Emit(update.Event{Kind: update.KindUnhandledException, Err: err})
			res = update.ResolveLaunch
		}
	}()

	interrupted, err := h.store.Interrupted(ctx)
	if err != nil {
		return update.ResolveLaunch, h.updateError(err)
	}
	if len(interrupted) > 0 {
		err := apperrors.New(apperrors.CodeInconsistentState,
			fmt.Sprintf("interrupted host install: %s", strings.Join(interrupted, ", ")), nil)
		h.Emit(update.Event{Kind: update.KindInconsistentInstallerState, Err: err})
		return update.ResolveLaunch, err
	}

	h.Emit(update.Event{Kind: update.KindCheckingForUpdate})
	m, err := h.manifest(ctx)
	if err != nil {
		return update.ResolveLaunch, h.updateError(err)
	}

	target := update.ParseVersion(m.HostVersion)
	if !update.IsNewer(target, update.ParseVersion(h.info.Version)) {
		logHost.Logf("host %s is current (manifest %s)", h.info.Version, m.HostVersion)
		h.Emit(update.Event{Kind: update.KindUpdateNotAvailable})
		return update.ResolveLaunch, nil
	}

	pkg, err := h.platformPackage(ctx, m)
	if err != nil {
		return update.ResolveLaunch, h.updateError(err)
	}

	h.Emit(update.Event{Kind: update.KindUpdateAvailable, Version: m.HostVersion})
	if err := h.install(ctx, m.HostVersion, pkg); err != nil {
		return update.ResolveLaunch, h.updateError(err)
	}
	h.Emit(update.Event{Kind: update.KindHostUpdated, Version: m.HostVersion, Date: time.Now()})

	exe := filepath.Join(h.layout.HostDir(m.HostVersion), h.layout.ExeName)
	if err := h.runner.Start(exe, h.hostArgs...); err != nil {
		return update.ResolveLaunch, h.updateError(fmt.Errorf("start host %s: %w", m.HostVersion, err))
	}
	h.Emit(update.Event{Kind: update.KindStartingNewHost, Version: m.HostVersion})
	return update.ResolveRestart, nil
}

// StartCurrentVersion checks that the running host may keep running. A newer
// installed host is an error unless allowObsoleteHost is set.
func (h *Handle) StartCurrentVersion(ctx context.Context, allowObsoleteHost bool) error {
	interrupted, err := h.store.Interrupted(ctx)
	if err != nil {
		return err
	}
	if len(interrupted) > 0 {
		return apperrors.New(apperrors.CodeInconsistentState,
			fmt.Sprintf("interrupted host install: %s", strings.Join(interrupted, ", ")), nil)
	}

	installed, err := h.store.Installed(ctx)
	if err != nil {
		return err
	}
	current := update.ParseVersion(h.info.Version)
	for _, v := range installed {
		if !update.IsNewer(update.ParseVersion(v), current) {
			continue
		}
		if !allowObsoleteHost {
			return fmt.Errorf("%w: %s (running %s)", ErrObsoleteHost, v, h.info.Version)
		}
		logHost.Logf("running obsolete host %s, %s is installed", h.info.Version, v)
	}
	return nil
}

func (h *Handle) updateError(err error) error {
	logHost.Logf("update error: %v", err)
	h.Emit(update.Event{Kind: update.KindUpdateError, Err: err})
	return err
}

func (h *Handle) install(ctx context.Context, version string, pkg Package) error {
	dest := h.layout.HostDir(version)
	state, err := h.store.State(ctx, version)
	if err != nil {
		return err
	}
	if state == StateInstalled {
		if _, err := os.Stat(filepath.Join(dest, h.layout.ExeName)); err == nil {
			logHost.Logf("host %s already installed at %s", version, dest)
			return nil
		}
	}

	if err := h.store.Begin(ctx, version); err != nil {
		return err
	}
	logHost.Logf("installing host %s from %s", version, pkg.URL)
	progress := func(pct int) {
		h.Emit(update.Event{Kind: update.KindUpdateProgress, Version: version, Progress: pct})
	}
	// The journal must settle even when ctx is cancelled mid-download, or the
	// next start sees an interrupted install.
	journalCtx := context.WithoutCancel(ctx)
	if err := installPackage(ctx, h.httpClient, pkg, dest, progress); err != nil {
		if ferr := h.store.Fail(journalCtx, version, err); ferr != nil {
			logHost.Logf("journal failure for %s: %v", version, ferr)
		}
		return apperrors.New(apperrors.CodeDownloadFailed, fmt.Sprintf("install host %s", version), err)
	}
	return h.store.Complete(journalCtx, version)
}

func (h *Handle) manifest(ctx context.Context) (Manifest, error) {
	h.mu.Lock()
	pinned := h.pinned
	h.mu.Unlock()
	if pinned != nil {
		return *pinned, nil
	}

	u := *h.endpoint
	u.Path = path.Join(u.Path, string(h.info.ReleaseChannel), "manifest.json")
	body, err := h.get(ctx, u.String())
	if err != nil {
		return Manifest{}, err
	}
	return ParseManifest(body)
}

// platformPackage picks this platform's package and fills in its checksum
// from the manifest's checksum listing when needed.
func (h *Handle) platformPackage(ctx context.Context, m Manifest) (Package, error) {
	key := PlatformKey(h.goos, h.goarch)
	pkg, ok := m.Packages[key]
	if !ok {
		return Package{}, fmt.Errorf("%w: %s", ErrNoPackage, key)
	}
	if pkg.SHA256 != "" || m.ChecksumsURL == "" {
		return pkg, nil
	}

	body, err := h.get(ctx, m.ChecksumsURL)
	if err != nil {
		return Package{}, err
	}
	sums, err := ParseChecksumFile(strings.NewReader(string(body)))
	if err != nil {
		return Package{}, err
	}
	pu, err := url.Parse(pkg.URL)
	if err != nil {
		return Package{}, fmt.Errorf("parse package url: %w", err)
	}
	sum, ok := sums[path.Base(pu.Path)]
	if !ok {
		return Package{}, fmt.Errorf("no checksum listed for %s", path.Base(pu.Path))
	}
	pkg.SHA256 = sum
	return pkg, nil
}

func (h *Handle) get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, ManifestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent+"/"+h.info.Version)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeFeedRequest, fmt.Sprintf("fetch %s", rawURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.CodeFeedRequest, fmt.Sprintf("fetch %s: status %d", rawURL, resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBody))
	if err != nil {
		return nil, apperrors.New(apperrors.CodeFeedRequest, fmt.Sprintf("read %s", rawURL), err)
	}
	return body, nil
}
