// Package moduleupdater drives the legacy per-platform updater used by
// installs that are not on the host updater.
package moduleupdater

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"ferry/internal/buildinfo"
	"ferry/internal/config"
	"ferry/internal/debug"
	"ferry/internal/paths"
	"ferry/internal/proc"
	"ferry/internal/update"
)

var logModules = debug.Scope("Modules")

// ModulesDirName is the directory below the versioned user data that holds
// downloaded modules.
const ModulesDirName = "modules"

// Settings is the subset of user settings read here.
type Settings interface {
	Bool(key string, def bool) bool
}

// Deps carries the platform pieces the adapter is built from. Zero values
// select the real implementations.
type Deps struct {
	GOOS       string
	Layout     paths.Layout
	Runner     proc.Runner
	HTTPClient *http.Client
	Native     update.Native
}

// Updater wraps the selected platform updater.
type Updater struct {
	update.PlatformUpdater

	info       buildinfo.Info
	feed       string
	skip       bool
	modulesDir string
}

// FeedURL builds the legacy update feed address.
func FeedURL(endpoint string, ch buildinfo.Channel, goos, version string) string {
	q := url.Values{}
	q.Set("platform", goos)
	q.Set("version", version)
	return fmt.Sprintf("%s/updates/%s?%s", strings.TrimRight(endpoint, "/"), ch, q.Encode())
}

// InitPathsOnly prepares the module directory without selecting an updater.
func InitPathsOnly(info buildinfo.Info, layout paths.Layout) (string, error) {
	dir := filepath.Join(layout.UserDataVersioned(info.Version), ModulesDirName)
	//nolint:gosec // G301: user data directory needs standard permissions
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create modules directory: %w", err)
	}
	logModules.Logf("module paths ready at %s", dir)
	return dir, nil
}

// Init selects the platform updater and points it at the feed.
func Init(endpoint string, settings Settings, info buildinfo.Info, deps Deps) (*Updater, error) {
	goos := deps.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	runner := deps.Runner
	if runner == nil {
		runner = proc.Exec{}
	}

	modulesDir, err := InitPathsOnly(info, deps.Layout)
	if err != nil {
		return nil, err
	}

	cfg := update.Config{
		CurrentVersion: info.Version,
		HTTPClient:     deps.HTTPClient,
		Relauncher:     update.ExecRelauncher{Runner: runner},
		Native:         deps.Native,
	}
	if goos == "windows" {
		cfg.Installer = update.NewSquirrel(deps.Layout.UpdateExe(), deps.Layout.ExeName, runner)
	}
	platform, err := update.NewPlatformUpdater(goos, cfg)
	if err != nil {
		return nil, err
	}

	u := &Updater{
		PlatformUpdater: platform,
		info:            info,
		feed:            FeedURL(endpoint, info.ReleaseChannel, goos, info.Version),
		skip:            settings.Bool(config.KeySkipHostUpdate, false),
		modulesDir:      modulesDir,
	}
	u.SetFeedURL(u.feed)
	logModules.Logf("legacy updater for %s using %s", goos, u.feed)
	return u, nil
}

// Feed returns the configured feed URL.
func (u *Updater) Feed() string {
	return u.feed
}

// ModulesDir returns where modules are kept for this version.
func (u *Updater) ModulesDir() string {
	return u.modulesDir
}

type outcome struct {
	res     update.Resolution
	install func() error
	err     error
}

// Resolve runs one update check and waits for its terminal event. A
// downloaded update is installed and resolves as a restart; everything else
// continues with the current version. Misuse errors such as
// update.ErrFeedURLNotSet are returned without waiting.
func (u *Updater) Resolve(ctx context.Context) (update.Resolution, error) {
	if u.skip {
		logModules.Log("update check skipped by settings")
		return update.ResolveLaunch, nil
	}

	done := make(chan outcome, 1)
	var once sync.Once
	finish := func(o outcome) {
		once.Do(func() { done <- o })
	}
	subs := []*update.Subscription{
		u.On(update.KindUpdateNotAvailable, func(update.Event) {
			finish(outcome{res: update.ResolveLaunch})
		}),
		u.On(update.KindUpdateManually, func(update.Event) {
			finish(outcome{res: update.ResolveLaunch})
		}),
		u.On(update.KindError, func(ev update.Event) {
			err := ev.Err
			if err == nil {
				err = errors.New("update check failed")
			}
			finish(outcome{res: update.ResolveLaunch, err: err})
		}),
		u.On(update.KindUpdateDownloaded, func(ev update.Event) {
			finish(outcome{res: update.ResolveRestart, install: ev.Install})
		}),
	}
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	if err := u.CheckForUpdates(ctx); err != nil {
		return update.ResolveLaunch, err
	}

	select {
	case o := <-done:
		if o.res != update.ResolveRestart {
			return o.res, o.err
		}
		if o.install != nil {
			if err := o.install(); err != nil {
				return update.ResolveLaunch, fmt.Errorf("install update: %w", err)
			}
		}
		logModules.Log("update installed, restarting")
		return update.ResolveRestart, nil
	case <-ctx.Done():
		return update.ResolveLaunch, ctx.Err()
	}
}
