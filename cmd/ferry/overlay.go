package main

import (
	"context"
	"fmt"
	"io"

	"ferry/internal/buildinfo"
	apperrors "ferry/internal/errors"
	"ferry/internal/hostupdater"
	"ferry/internal/moduleupdater"
)

// overlayUsesHost reports whether the overlay process must run on the host
// updater. Debug and standalone builds never do.
func overlayUsesHost(info buildinfo.Info) bool {
	return !info.Debug && !info.IsStandaloneModules() && info.NewUpdater
}

// runOverlayHost prepares the updater state for the overlay process. It never
// installs anything; the main process owns updates.
func runOverlayHost(ctx context.Context, env *environment, endpoint string, out io.Writer) error {
	if !overlayUsesHost(env.info) {
		dir, err := moduleupdater.InitPathsOnly(env.info, env.layout)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "overlay using modules in %s\n", dir)
		return nil
	}

	handle, err := hostupdater.TryInit(ctx, env.info, endpoint, env.layout, hostupdater.WithRunner(env.runner))
	if err != nil {
		return apperrors.New(apperrors.CodeHostInit, "failed to initialize updater", err)
	}
	defer func() { _ = handle.Close() }()

	if err := handle.StartCurrentVersion(ctx, true); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "overlay using host %s\n", env.info.Version)
	return nil
}
