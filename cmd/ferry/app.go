package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"ferry/internal/bootstrap"
	"ferry/internal/buildinfo"
	"ferry/internal/config"
	"ferry/internal/desktop"
	"ferry/internal/hostupdater"
	"ferry/internal/launch"
	"ferry/internal/moduleupdater"
	"ferry/internal/splash"
	"ferry/internal/update"
)

// appOptions are the launch settings after flags and settings are merged.
type appOptions struct {
	endpoints      bootstrap.Endpoints
	startMinimized bool
	headless       bool
	splashTimeout  time.Duration
}

func appOptionsFromConfig() appOptions {
	return appOptions{
		endpoints: bootstrap.Endpoints{
			Update:    config.GetString(config.KeyUpdateEndpoint),
			NewUpdate: config.GetString(config.KeyNewUpdateEndpoint),
		},
		startMinimized: config.GetBool(config.KeyStartMinimized),
		headless:       config.GetBool(config.KeySplashHeadless),
		splashTimeout:  config.GetDuration(config.KeySplashTimeout),
	}
}

// runApp resolves updates behind the splash and then either launches the
// running build or exits so a newer host can take over.
func runApp(ctx context.Context, env *environment, opts appOptions, out io.Writer) error {
	gate := launch.NewGate()
	ctrl := splash.New(gate, splash.WithTimeout(opts.splashTimeout))
	integration := desktop.New(runtime.GOOS, env.layout, env.runner, config.Settings())

	var hostArgs []string
	if opts.startMinimized {
		hostArgs = append(hostArgs, "--start-minimized")
	}

	var handle *hostupdater.Handle
	defer func() {
		if handle != nil {
			_ = handle.Close()
		}
	}()

	selector := bootstrap.NewSelector(bootstrap.Deps{
		Settings:  config.Settings(),
		Build:     env.info,
		Endpoints: opts.endpoints,
		UserData:  env.layout.UserData,
		Reporter:  env.reporter,
		Gate:      gate,
		Splash:    ctrl,
		HostInit: func(ctx context.Context, info buildinfo.Info, endpoint string) (bootstrap.HostUpdater, error) {
			h, err := hostupdater.TryInit(ctx, info, endpoint, env.layout,
				hostupdater.WithRunner(env.runner),
				hostupdater.WithHostArgs(hostArgs...),
			)
			if err != nil {
				return nil, err
			}
			handle = h
			return h, nil
		},
		LegacyInit: func(endpoint string, settings bootstrap.Settings, info buildinfo.Info) (update.Resolver, error) {
			u, err := moduleupdater.Init(endpoint, settings, info, moduleupdater.Deps{
				Layout: env.layout,
				Runner: env.runner,
			})
			if err != nil {
				return nil, err
			}
			return u, nil
		},
		FirstRun: &bootstrap.FirstRun{
			GOOS:     runtime.GOOS,
			Version:  env.info.Version,
			Layout:   env.layout,
			Branding: bootstrap.DefaultBranding,
			Protocol: integration,
			Reporter: env.reporter,
		},
		Autostart: integration,
	})

	launched := make(chan struct{})
	_, err := selector.Run(ctx, opts.startMinimized,
		func() { close(launched) },
		func() {
			_, _ = fmt.Fprintf(out, "Ferry %s ready (%s updates, %s)\n", env.info.Version, selector.Channel(), ctrl.Last().Phase)
		},
	)
	if err != nil {
		return err
	}

	if !opts.headless && !ctrl.StartMinimized() {
		if err := runSplash(ctrl, out); err != nil {
			env.reporter.Handled(fmt.Errorf("splash: %w", err))
		}
	}

	select {
	case <-ctrl.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-launched:
		ctrl.Ready()
	default:
		_, _ = fmt.Fprintln(out, "A newer Ferry is starting, exiting.")
	}
	return nil
}
