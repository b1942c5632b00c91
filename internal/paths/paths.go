// Package paths resolves the on-disk layout used during startup.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ferry/internal/buildinfo"
)

// AppName is the base name of the user data directory.
const AppName = "ferry"

// Layout describes where the running build and its data live.
//
// A squirrel-style install keeps every version in its own app directory
// below a shared root:
//
//	<root>/Update.exe
//	<root>/app-1.0.12/ferry.exe
type Layout struct {
	UserData    string
	InstallRoot string
	AppDir      string
	ExeName     string
}

// Overrides replaces individual layout entries, usually from settings.
type Overrides struct {
	UserData    string
	InstallRoot string
}

// Resolve computes the layout for the running executable.
func Resolve(info buildinfo.Info, o Overrides) (Layout, error) {
	exe, err := os.Executable()
	if err != nil {
		return Layout{}, fmt.Errorf("get executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return resolveFrom(exe, info, o)
}

func resolveFrom(exe string, info buildinfo.Info, o Overrides) (Layout, error) {
	l := Layout{
		AppDir:  filepath.Dir(exe),
		ExeName: filepath.Base(exe),
	}
	l.InstallRoot = filepath.Dir(l.AppDir)
	if strings.TrimSpace(o.InstallRoot) != "" {
		l.InstallRoot = o.InstallRoot
	}

	l.UserData = strings.TrimSpace(o.UserData)
	if l.UserData == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Layout{}, fmt.Errorf("determine user config dir: %w", err)
		}
		l.UserData = filepath.Join(base, UserDataName(info.ReleaseChannel))
	}
	return l, nil
}

// UserDataName returns the per-channel data directory name. Stable builds
// use the bare app name so settings survive a channel switch back to stable.
func UserDataName(ch buildinfo.Channel) string {
	if ch == buildinfo.ChannelStable || ch == "" {
		return AppName
	}
	return AppName + string(ch)
}

// UserDataVersioned returns the data directory owned by one build version.
func (l Layout) UserDataVersioned(version string) string {
	return filepath.Join(l.UserData, version)
}

// UpdateExe returns the squirrel installer at the install root.
func (l Layout) UpdateExe() string {
	return filepath.Join(l.InstallRoot, "Update.exe")
}

// HostDir returns the directory a host version is installed into.
func (l Layout) HostDir(version string) string {
	return filepath.Join(l.InstallRoot, "app-"+version)
}
