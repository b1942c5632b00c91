package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apperrors "ferry/internal/errors"
	"ferry/internal/hostupdater"
	"ferry/internal/paths"
)

// FirstRunMarkerName is written to the versioned user data directory once
// first-run tasks are done.
const FirstRunMarkerName = ".first-run"

// IconFileName is the icon shipped in the app directory.
const IconFileName = "app.ico"

// ShortcutHost creates shortcuts; the host updater provides it.
type ShortcutHost interface {
	KnownFolder(name string) (string, error)
	CreateShortcut(ctx context.Context, opts hostupdater.ShortcutOptions) error
}

// ProtocolInstaller registers the app's URL scheme.
type ProtocolInstaller interface {
	InstallProtocol(ctx context.Context, scheme string) error
}

// Branding names the app in shortcuts and registrations.
type Branding struct {
	AppName     string
	Company     string
	Description string
	AppID       string
	Protocol    string
}

// DefaultBranding is used by the shipped binary.
var DefaultBranding = Branding{
	AppName:     "Ferry",
	Company:     "Ferry",
	Description: "Ferry - chat for crews",
	AppID:       "com.squirrel.Ferry.Ferry",
	Protocol:    "ferry",
}

// FirstRun performs one-time tasks after an install.
type FirstRun struct {
	GOOS     string
	Version  string
	Layout   paths.Layout
	Branding Branding
	Protocol ProtocolInstaller
	Reporter Reporter
}

// MarkerPath is where completion is recorded.
func (f *FirstRun) MarkerPath() string {
	return filepath.Join(f.Layout.UserDataVersioned(f.Version), FirstRunMarkerName)
}

// Run updates shortcuts through host, registers the protocol and records
// completion. Nothing happens when the marker already exists. Failures are
// reported as handled; the marker is only written when shortcuts succeeded.
func (f *FirstRun) Run(ctx context.Context, host ShortcutHost) {
	marker := f.MarkerPath()
	if _, err := os.Stat(marker); err == nil {
		logBootstrap.Logf("first run already done (%s)", marker)
		return
	}
	logBootstrap.Log("performing first run tasks")

	shortcutsUpdated := false
	if host != nil {
		if err := f.updateShortcuts(ctx, host); err != nil {
			f.Reporter.Handled(err)
		} else {
			shortcutsUpdated = true
		}
	}

	if err := f.Protocol.InstallProtocol(ctx, f.Branding.Protocol); err != nil {
		f.Reporter.Handled(err)
	}

	if !shortcutsUpdated {
		return
	}
	if err := writeMarker(marker); err != nil {
		f.Reporter.Handled(apperrors.New(apperrors.CodeMarkerWrite, "write first run marker", err))
	}
}

func writeMarker(path string) error {
	//nolint:gosec // G301: user data directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	//nolint:gosec // G306: marker holds no secrets
	return os.WriteFile(path, []byte("true"), 0644)
}

func (f *FirstRun) updateShortcuts(ctx context.Context, host ShortcutHost) error {
	name := f.Branding.AppName + ".lnk"
	desktop, err := host.KnownFolder(hostupdater.FolderDesktop)
	if err != nil {
		return apperrors.New(apperrors.CodeShortcutFailed, "resolve desktop folder", err)
	}
	programs, err := host.KnownFolder(hostupdater.FolderPrograms)
	if err != nil {
		return apperrors.New(apperrors.CodeShortcutFailed, "resolve programs folder", err)
	}
	locations := []string{
		filepath.Join(desktop, name),
		filepath.Join(programs, f.Branding.Company, name),
	}

	target, args := f.shortcutTarget()
	icon := f.copyIconToRoot()
	for _, location := range locations {
		if info, err := os.Stat(filepath.Dir(location)); err != nil || !info.IsDir() {
			logBootstrap.Logf("skipping shortcut %s: folder missing", location)
			continue
		}
		err := host.CreateShortcut(ctx, hostupdater.ShortcutOptions{
			ShortcutPath:   location,
			TargetPath:     target,
			Arguments:      args,
			IconPath:       icon,
			IconIndex:      0,
			Description:    f.Branding.Description,
			AppUserModelID: f.Branding.AppID,
			WorkingDir:     f.Layout.AppDir,
		})
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeShortcutFailed {
				return err
			}
			return apperrors.New(apperrors.CodeShortcutFailed, fmt.Sprintf("create shortcut %s", location), err)
		}
	}
	return nil
}

// shortcutTarget launches through the installer on Windows so shortcuts keep
// working across versions.
func (f *FirstRun) shortcutTarget() (string, string) {
	if f.GOOS == "windows" {
		return f.Layout.UpdateExe(), "--processStart " + f.Layout.ExeName
	}
	return filepath.Join(f.Layout.AppDir, f.Layout.ExeName), ""
}

// copyIconToRoot copies the icon next to the installer so it outlives the
// version directory. The original icon path is used if the copy fails.
func (f *FirstRun) copyIconToRoot() string {
	src := filepath.Join(f.Layout.AppDir, IconFileName)
	dest := filepath.Join(f.Layout.InstallRoot, IconFileName)
	//nolint:gosec // G304: icon path is inside the install directory
	data, err := os.ReadFile(src)
	if err == nil {
		//nolint:gosec // G306: icons must be readable by the shell
		err = os.WriteFile(dest, data, 0644)
	}
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logBootstrap.Logf("copy icon: %v", err)
		}
		return src
	}
	return dest
}
