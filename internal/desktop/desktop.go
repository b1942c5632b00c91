// Package desktop wires the application into the operating system: URL
// protocol handlers and launch-at-login entries.
package desktop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ferry/internal/config"
	"ferry/internal/debug"
	apperrors "ferry/internal/errors"
	"ferry/internal/paths"
	"ferry/internal/proc"
	"ferry/internal/update"
)

var logDesktop = debug.Scope("Desktop")

const runKey = `HKCU\Software\Microsoft\Windows\CurrentVersion\Run`

// Settings is the slice of the settings store this package reads.
type Settings interface {
	Bool(key string, def bool) bool
}

// Integration performs OS integration for one install.
type Integration struct {
	goos      string
	layout    paths.Layout
	runner    proc.Runner
	settings  Settings
	configDir string
}

// Option configures an Integration.
type Option func(*Integration)

// WithConfigDir overrides the XDG config directory used on Linux.
func WithConfigDir(dir string) Option {
	return func(d *Integration) { d.configDir = dir }
}

// New returns the integration for goos.
func New(goos string, layout paths.Layout, runner proc.Runner, settings Settings, opts ...Option) *Integration {
	if runner == nil {
		runner = proc.Exec{}
	}
	d := &Integration{goos: goos, layout: layout, runner: runner, settings: settings}
	for _, opt := range opts {
		opt(d)
	}
	if d.configDir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			d.configDir = dir
		}
	}
	return d
}

// appName is the executable name without extension, used as the registry
// value and desktop file name.
func (d *Integration) appName() string {
	return strings.TrimSuffix(d.layout.ExeName, filepath.Ext(d.layout.ExeName))
}

// InstallProtocol registers the application as the handler for scheme://
// links. macOS declares handlers in the bundle, so nothing happens there.
func (d *Integration) InstallProtocol(ctx context.Context, scheme string) error {
	logDesktop.Logf("registering %s:// handler", scheme)
	switch d.goos {
	case "windows":
		return update.NewSquirrel(d.layout.UpdateExe(), d.layout.ExeName, d.runner).InstallProtocol(ctx, scheme)
	case "linux":
		if _, err := d.runner.Run(ctx, "xdg-mime", "default", d.appName()+".desktop", "x-scheme-handler/"+scheme); err != nil {
			return apperrors.New(apperrors.CodeProtocolFailed, "register "+scheme+" protocol", err)
		}
		return nil
	default:
		return nil
	}
}

// AutostartInstalled reports whether a launch-at-login entry exists.
func (d *Integration) AutostartInstalled(ctx context.Context) bool {
	switch d.goos {
	case "windows":
		out, _ := d.runner.Run(ctx, "reg.exe", "query", runKey, "/v", d.appName())
		return strings.Contains(string(out), d.appName())
	case "linux":
		_, err := os.Stat(d.autostartFile())
		return err == nil
	default:
		return false
	}
}

// InstallAutostart writes the launch-at-login entry. START_MINIMIZED adds
// the arguments that keep the window hidden.
func (d *Integration) InstallAutostart(ctx context.Context) error {
	minimized := d.settings != nil && d.settings.Bool(config.KeyStartMinimized, false)
	switch d.goos {
	case "windows":
		command := fmt.Sprintf(`"%s" --processStart %s`, d.layout.UpdateExe(), d.layout.ExeName)
		if minimized {
			command += " --process-start-args --start-minimized"
		}
		if _, err := d.runner.Run(ctx, "reg.exe", "add", runKey, "/v", d.appName(), "/d", command, "/f"); err != nil {
			return apperrors.New(apperrors.CodeAutostartFailed, "write autostart key", err)
		}
		return nil
	case "linux":
		return d.writeAutostartFile(minimized)
	default:
		return nil
	}
}

// UpdateAutostart rewrites an existing launch-at-login entry so it points
// at the current install. It never creates one.
func (d *Integration) UpdateAutostart(ctx context.Context) error {
	if !d.AutostartInstalled(ctx) {
		return nil
	}
	logDesktop.Logf("refreshing autostart entry")
	return d.InstallAutostart(ctx)
}

func (d *Integration) autostartFile() string {
	return filepath.Join(d.configDir, "autostart", d.appName()+".desktop")
}

func (d *Integration) writeAutostartFile(minimized bool) error {
	exec := fmt.Sprintf("%q", filepath.Join(d.layout.AppDir, d.layout.ExeName))
	if minimized {
		exec += " --start-minimized"
	}
	entry := strings.Join([]string{
		"[Desktop Entry]",
		"Type=Application",
		"Name=" + d.appName(),
		"Exec=" + exec,
		"X-GNOME-Autostart-enabled=true",
		"",
	}, "\n")

	path := d.autostartFile()
	//nolint:gosec // G301: XDG autostart directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.New(apperrors.CodeAutostartFailed, "create autostart directory", err)
	}
	//nolint:gosec // G306: desktop entries are world readable
	if err := os.WriteFile(path, []byte(entry), 0644); err != nil {
		return apperrors.New(apperrors.CodeAutostartFailed, "write autostart entry", err)
	}
	return nil
}
