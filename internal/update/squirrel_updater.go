package update

import (
	"context"
	"sync"
	"time"
)

// SquirrelUpdater is the Windows variant. It drives the local installer and
// falls back to the native updater when the installer is missing.
type SquirrelUpdater struct {
	Emitter

	installer      Installer
	native         Native
	currentVersion string
	feed           feedURL
	now            func() time.Time

	mu            sync.Mutex
	updateVersion string
}

// NewSquirrelUpdater returns the Windows updater.
func NewSquirrelUpdater(installer Installer, native Native, currentVersion string) *SquirrelUpdater {
	if native == nil {
		native = UnavailableNative{}
	}
	return &SquirrelUpdater{
		installer:      installer,
		native:         native,
		currentVersion: currentVersion,
		now:            time.Now,
	}
}

// SetFeedURL implements PlatformUpdater.
func (u *SquirrelUpdater) SetFeedURL(url string) {
	u.feed.set(url)
}

// CheckForUpdates implements PlatformUpdater. When a release is pending the
// download starts immediately; completion is reported as update-downloaded.
func (u *SquirrelUpdater) CheckForUpdates(ctx context.Context) error {
	feed, err := u.feed.get()
	if err != nil {
		return err
	}

	u.Emit(Event{Kind: KindCheckingForUpdate})
	if !u.installer.Exists() {
		u.Emit(Event{Kind: KindUpdateNotAvailable})
		return nil
	}

	stdout, err := u.installer.Check(ctx, feed)
	if err != nil {
		u.Emit(Event{Kind: KindError, Err: err})
		return nil
	}

	release, found, err := parseReleasesToApply(stdout)
	if err != nil {
		u.Emit(Event{Kind: KindError, Err: err})
		return nil
	}
	if !found {
		u.Emit(Event{Kind: KindUpdateNotAvailable})
		return nil
	}

	u.Emit(Event{Kind: KindUpdateAvailable, Version: release.Version})
	return u.DownloadAndInstallUpdate(ctx, func(err error) {
		if err != nil {
			u.Emit(Event{Kind: KindError, Err: err})
			return
		}
		u.mu.Lock()
		u.updateVersion = release.Version
		u.mu.Unlock()
		u.Emit(Event{
			Kind:         KindUpdateDownloaded,
			Version:      release.Version,
			ReleaseNotes: release.Notes(),
			Date:         u.now(),
			FeedURL:      feed,
			Install:      u.QuitAndInstall,
		})
	})
}

// DownloadAndInstallUpdate implements PlatformUpdater. The install keeps
// running if ctx is cancelled; an interrupted installer leaves a broken root.
func (u *SquirrelUpdater) DownloadAndInstallUpdate(ctx context.Context, done func(error)) error {
	feed, err := u.feed.get()
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		err := u.installer.Install(ctx, feed, func(pct int) {
			u.Emit(Event{Kind: KindUpdateProgress, Progress: pct})
		})
		if done != nil {
			done(err)
		}
	}()
	return nil
}

// QuitAndInstall implements PlatformUpdater.
func (u *SquirrelUpdater) QuitAndInstall() error {
	if !u.installer.Exists() {
		return u.native.QuitAndInstall()
	}
	u.mu.Lock()
	version := u.updateVersion
	u.mu.Unlock()
	if version == "" {
		version = u.currentVersion
	}
	return u.installer.Restart(version)
}
