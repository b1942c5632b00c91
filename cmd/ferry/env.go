package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"ferry/internal/buildinfo"
	"ferry/internal/config"
	"ferry/internal/crashreport"
	"ferry/internal/debug"
	"ferry/internal/paths"
	"ferry/internal/proc"
)

// environment is everything a command needs after startup configuration.
type environment struct {
	info     buildinfo.Info
	layout   paths.Layout
	reporter *crashreport.Reporter
	runner   proc.Runner
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	debug        bool
	settingsFile string
	buildInfo    string
	userData     string
}

// launchFlags are the flags of the default launch command.
type launchFlags struct {
	startMinimized bool
	headless       bool
}

// developmentInfo is used when no build metadata ships with the binary.
func developmentInfo() buildinfo.Info {
	return buildinfo.Info{
		ReleaseChannel:    buildinfo.ChannelDevelopment,
		Version:           Version,
		StandaloneModules: true,
		Debug:             true,
	}
}

// loadBuildInfo reads build_info.json from path, or from next to the
// executable when path is empty.
func loadBuildInfo(path string) (buildinfo.Info, error) {
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return buildinfo.Info{}, fmt.Errorf("get executable path: %w", err)
		}
		path = filepath.Join(filepath.Dir(exe), buildinfo.FileName)
	}
	info, err := buildinfo.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return developmentInfo(), nil
	}
	return info, err
}

// setupEnvironment loads build info, settings and logging in the order the
// later steps depend on. changed reports which flags the user set.
func setupEnvironment(g globalFlags, l launchFlags, changed func(string) bool) (*environment, error) {
	info, err := loadBuildInfo(g.buildInfo)
	if err != nil {
		return nil, err
	}

	layout, err := paths.Resolve(info, paths.Overrides{UserData: g.userData})
	if err != nil {
		return nil, err
	}

	if err := config.Initialize(
		config.WithSettingsFile(config.SettingsPath(layout.UserData)),
		config.WithOverrideFile(g.settingsFile),
	); err != nil {
		return nil, fmt.Errorf("initialize config: %w", err)
	}

	overrides := map[string]any{}
	if changed("debug") {
		overrides[config.KeyDebug] = g.debug
	}
	if changed("start-minimized") {
		overrides[config.KeyStartMinimized] = l.startMinimized
	}
	if changed("headless") {
		overrides[config.KeySplashHeadless] = l.headless
	}
	if err := config.ApplyOverrides(overrides); err != nil {
		return nil, fmt.Errorf("apply flag overrides: %w", err)
	}

	userData := g.userData
	if userData == "" {
		userData = config.GetString(config.KeyUserDataDir)
	}
	layout, err = paths.Resolve(info, paths.Overrides{
		UserData:    userData,
		InstallRoot: config.GetString(config.KeyInstallRoot),
	})
	if err != nil {
		return nil, err
	}

	if err := debug.Init(config.GetBool(config.KeyDebug)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug logging disabled: %v\n", err)
	}
	debug.Logf("[Bootstrap] %s %s (%s), user data %s", paths.AppName, info.Version, info.ReleaseChannel, layout.UserData)

	runner := proc.Exec{}
	reporter := crashreport.New(info,
		crashreport.WithSink(crashreport.NewFileSink(layout.UserData)),
		crashreport.WithRunner(runner),
	)

	return &environment{
		info:     info,
		layout:   layout,
		reporter: reporter,
		runner:   runner,
	}, nil
}
