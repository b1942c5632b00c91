package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ferry/internal/errors"
	"ferry/internal/hostupdater"
	"ferry/internal/paths"
)

type firstRunFixture struct {
	run      *FirstRun
	host     *fakeHost
	protocol *fakeProtocol
	reporter *fakeReporter
	desktop  string
	programs string
}

func newFirstRunFixture(t *testing.T, goos string) *firstRunFixture {
	t.Helper()
	root := t.TempDir()
	layout := paths.Layout{
		UserData:    filepath.Join(root, "data"),
		InstallRoot: filepath.Join(root, "install"),
		AppDir:      filepath.Join(root, "install", "app-1.0.0"),
		ExeName:     "Ferry.exe",
	}
	f := &firstRunFixture{
		protocol: &fakeProtocol{},
		reporter: &fakeReporter{},
		desktop:  filepath.Join(root, "Desktop"),
		programs: filepath.Join(root, "Programs"),
	}
	f.host = &fakeHost{folders: map[string]string{
		hostupdater.FolderDesktop:  f.desktop,
		hostupdater.FolderPrograms: f.programs,
	}}
	f.run = &FirstRun{
		GOOS:     goos,
		Version:  "1.0.0",
		Layout:   layout,
		Branding: DefaultBranding,
		Protocol: f.protocol,
		Reporter: f.reporter,
	}
	return f
}

func (f *firstRunFixture) mkdirs(t *testing.T, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
}

func TestFirstRunOnlyOnce(t *testing.T) {
	f := newFirstRunFixture(t, "windows")
	f.mkdirs(t, f.desktop, filepath.Join(f.programs, DefaultBranding.Company), f.run.Layout.AppDir)
	require.NoError(t, os.WriteFile(filepath.Join(f.run.Layout.AppDir, IconFileName), []byte("ico"), 0o644))

	f.run.Run(context.Background(), f.host)
	f.run.Run(context.Background(), f.host)

	assert.Equal(t, 2, f.host.shortcutCount())
	assert.Equal(t, 1, f.protocol.calls)
	assert.Equal(t, []string{"ferry"}, f.protocol.schemes)

	content, err := os.ReadFile(f.run.MarkerPath())
	require.NoError(t, err)
	assert.Equal(t, "true", string(content))

	first := f.host.shortcuts[0]
	assert.Equal(t, filepath.Join(f.desktop, "Ferry.lnk"), first.ShortcutPath)
	assert.Equal(t, f.run.Layout.UpdateExe(), first.TargetPath)
	assert.Equal(t, "--processStart Ferry.exe", first.Arguments)
	assert.Equal(t, filepath.Join(f.run.Layout.InstallRoot, IconFileName), first.IconPath)
	assert.Equal(t, f.run.Layout.AppDir, first.WorkingDir)
	assert.Equal(t, DefaultBranding.AppID, first.AppUserModelID)
	assert.Equal(t, filepath.Join(f.programs, DefaultBranding.Company, "Ferry.lnk"), f.host.shortcuts[1].ShortcutPath)
}

func TestFirstRunSkipsMissingLocations(t *testing.T) {
	f := newFirstRunFixture(t, "linux")
	f.mkdirs(t, f.desktop)

	f.run.Run(context.Background(), f.host)

	require.Equal(t, 1, f.host.shortcutCount())
	sc := f.host.shortcuts[0]
	assert.Equal(t, filepath.Join(f.run.Layout.AppDir, "Ferry.exe"), sc.TargetPath)
	assert.Empty(t, sc.Arguments)
	assert.Equal(t, filepath.Join(f.run.Layout.AppDir, IconFileName), sc.IconPath, "icon falls back to the source when the copy fails")
	assert.NoDirExists(t, filepath.Join(f.programs, DefaultBranding.Company))
	assert.FileExists(t, f.run.MarkerPath())
}

func TestFirstRunShortcutFailure(t *testing.T) {
	f := newFirstRunFixture(t, "windows")
	f.mkdirs(t, f.desktop)
	f.host.shortcutErr = errors.New("access denied")

	f.run.Run(context.Background(), f.host)

	handled, fatal := f.reporter.counts()
	assert.Equal(t, 1, handled)
	assert.Zero(t, fatal)
	assert.True(t, apperrors.IsCode(f.reporter.handled[0], apperrors.CodeShortcutFailed))
	assert.Equal(t, 1, f.protocol.calls, "protocol registration still runs")
	assert.NoFileExists(t, f.run.MarkerPath())
}

func TestFirstRunProtocolFailureStillCompletes(t *testing.T) {
	f := newFirstRunFixture(t, "windows")
	f.protocol.err = apperrors.New(apperrors.CodeProtocolFailed, "register ferry protocol", errors.New("reg.exe failed"))

	f.run.Run(context.Background(), f.host)

	handled, _ := f.reporter.counts()
	assert.Equal(t, 1, handled)
	assert.FileExists(t, f.run.MarkerPath())
}

func TestFirstRunWithoutHost(t *testing.T) {
	f := newFirstRunFixture(t, "windows")

	f.run.Run(context.Background(), nil)

	assert.Equal(t, 1, f.protocol.calls)
	assert.NoFileExists(t, f.run.MarkerPath())
}

func TestFirstRunUnknownFolder(t *testing.T) {
	f := newFirstRunFixture(t, "windows")
	delete(f.host.folders, hostupdater.FolderPrograms)

	f.run.Run(context.Background(), f.host)

	handled, _ := f.reporter.counts()
	assert.Equal(t, 1, handled)
	assert.NoFileExists(t, f.run.MarkerPath())
}
