// Package update implements the legacy per-platform updaters and the event
// model shared with the host updater.
//
// This package handles:
//   - Parsing and comparing dotted version strings
//   - A closed set of lifecycle events with unsubscribable handlers
//   - The Windows installer protocol (check, install with progress, restart)
//   - The Linux notify-only feed check
//   - Passing everything through to a native updater on macOS
//
// One variant is selected per process:
//
//	u, err := update.NewPlatformUpdater(runtime.GOOS, update.Config{
//	    CurrentVersion: info.Version,
//	    Installer:      update.NewSquirrel(layout.UpdateExe(), layout.ExeName, nil),
//	})
//	if err != nil {
//	    // handle error
//	}
//	u.On(update.KindUpdateDownloaded, func(ev update.Event) {
//	    _ = ev.Install()
//	})
//	u.SetFeedURL(feed)
//	_ = u.CheckForUpdates(ctx)
package update
