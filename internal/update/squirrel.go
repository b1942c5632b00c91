package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	apperrors "ferry/internal/errors"
	"ferry/internal/proc"
)

// Installer is the local installer protocol used on Windows.
type Installer interface {
	// Exists reports whether the installer binary is present on disk.
	Exists() bool
	// Check asks the installer for pending releases and returns its stdout.
	Check(ctx context.Context, feedURL string) (string, error)
	// Install downloads and applies pending releases, reporting percent progress.
	Install(ctx context.Context, feedURL string, progress func(int)) error
	// Restart launches the newest installed version through the installer.
	// version names the release that was just applied and is used for logging;
	// the installer picks the app directory itself.
	Restart(version string) error
}

// Squirrel drives an Update.exe that sits at the install root.
type Squirrel struct {
	updateExe string
	exeName   string
	runner    proc.Runner
}

// NewSquirrel returns an installer for updateExe that restarts exeName.
func NewSquirrel(updateExe, exeName string, runner proc.Runner) *Squirrel {
	if runner == nil {
		runner = proc.Exec{}
	}
	return &Squirrel{updateExe: updateExe, exeName: exeName, runner: runner}
}

// Exists implements Installer.
func (s *Squirrel) Exists() bool {
	info, err := os.Stat(s.updateExe)
	return err == nil && !info.IsDir()
}

// Check implements Installer.
func (s *Squirrel) Check(ctx context.Context, feedURL string) (string, error) {
	out, err := s.runner.Run(ctx, s.updateExe, "--check", feedURL)
	if err != nil {
		return string(out), apperrors.New(apperrors.CodeInstallerFailed, "installer check failed", err)
	}
	return string(out), nil
}

// Install implements Installer. Update.exe prints one integer percentage
// per line while it works; anything else is ignored.
func (s *Squirrel) Install(ctx context.Context, feedURL string, progress func(int)) error {
	err := s.runner.Stream(ctx, s.updateExe, []string{"--update", feedURL}, func(line string) {
		if pct, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && progress != nil {
			progress(pct)
		}
	})
	if err != nil {
		return apperrors.New(apperrors.CodeInstallerFailed, "installer update failed", err)
	}
	return nil
}

// Restart implements Installer. Update.exe --processStartAndWait starts the
// newest app-<version> directory under the install root, so version is only
// logged.
func (s *Squirrel) Restart(version string) error {
	logUpdates.Logf("restarting into %s via %s", version, s.updateExe)
	return s.runner.Start(s.updateExe, "--processStartAndWait", s.exeName)
}

// InstallProtocol registers scheme through the installer's shortcut helper.
// The registry entry points at Update.exe so it survives version changes.
func (s *Squirrel) InstallProtocol(ctx context.Context, scheme string) error {
	key := `HKCU\Software\Classes\` + scheme
	command := fmt.Sprintf(`"%s" --processStart %s --process-start-args "%%1"`, s.updateExe, s.exeName)
	queue := [][]string{
		{"add", key, "/ve", "/d", "URL:" + scheme + " Protocol", "/f"},
		{"add", key, "/v", "URL Protocol", "/f"},
		{"add", key + `\DefaultIcon`, "/ve", "/d", s.exeName + ",-1", "/f"},
		{"add", key + `\shell\open\command`, "/ve", "/d", command, "/f"},
	}
	for _, args := range queue {
		if _, err := s.runner.Run(ctx, "reg.exe", args...); err != nil {
			return apperrors.New(apperrors.CodeProtocolFailed, "register "+scheme+" protocol", err)
		}
	}
	return nil
}

// Release is one entry of the installer's releasesToApply list.
type Release struct {
	Version      string `json:"version"`
	Release      string `json:"release"`
	ReleaseNotes string `json:"releaseNotes"`
}

// Notes returns whichever release notes field the installer filled in.
func (r Release) Notes() string {
	if r.ReleaseNotes != "" {
		return r.ReleaseNotes
	}
	return r.Release
}

// InstallerOutputError reports installer output that could not be parsed.
type InstallerOutputError struct {
	Stdout string
	Err    error
}

func (e *InstallerOutputError) Error() string {
	return fmt.Sprintf("parse installer output: %v", e.Err)
}

func (e *InstallerOutputError) Unwrap() error {
	return e.Err
}

// parseReleasesToApply reads the last line of the installer's stdout and
// returns the newest pending release. found is false when nothing is pending.
func parseReleasesToApply(stdout string) (rel Release, found bool, err error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return Release{}, false, &InstallerOutputError{Stdout: stdout, Err: errors.New("empty output")}
	}

	var payload struct {
		ReleasesToApply []Release `json:"releasesToApply"`
	}
	if err := json.Unmarshal([]byte(last), &payload); err != nil {
		return Release{}, false, &InstallerOutputError{
			Stdout: stdout,
			Err:    apperrors.New(apperrors.CodeInstallerOutput, "", err),
		}
	}
	if len(payload.ReleasesToApply) == 0 {
		return Release{}, false, nil
	}
	return payload.ReleasesToApply[len(payload.ReleasesToApply)-1], true, nil
}
