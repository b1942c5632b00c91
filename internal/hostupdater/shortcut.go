package hostupdater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "ferry/internal/errors"
)

// Known folder names accepted by KnownFolder.
const (
	FolderDesktop   = "desktop"
	FolderPrograms  = "programs"
	FolderStartMenu = "startmenu"
	FolderStartup   = "startup"
)

// ErrUnknownFolder is returned for folder names KnownFolder does not map.
var ErrUnknownFolder = errors.New("unknown folder")

// ShortcutOptions describes a launcher shortcut.
type ShortcutOptions struct {
	ShortcutPath   string
	TargetPath     string
	Arguments      string
	IconPath       string
	IconIndex      int
	Description    string
	AppUserModelID string
	WorkingDir     string
}

// KnownFolder resolves a well-known per-user folder.
func (h *Handle) KnownFolder(name string) (string, error) {
	return h.knownFolder(name)
}

// CreateShortcut writes a shortcut. Windows gets a .lnk through WScript.Shell,
// Linux a desktop entry; macOS keeps launchers in the bundle and ignores it.
func (h *Handle) CreateShortcut(ctx context.Context, opts ShortcutOptions) error {
	if strings.TrimSpace(opts.ShortcutPath) == "" || strings.TrimSpace(opts.TargetPath) == "" {
		return apperrors.New(apperrors.CodeShortcutFailed, "shortcut path and target are required", nil)
	}
	logHost.Logf("creating shortcut %s -> %s", opts.ShortcutPath, opts.TargetPath)

	var err error
	switch h.goos {
	case "windows":
		_, err = h.runner.Run(ctx, "powershell.exe", "-NoProfile", "-NonInteractive", "-Command", shortcutScript(opts))
	case "darwin":
		return nil
	default:
		err = writeDesktopEntry(opts)
	}
	if err != nil {
		return apperrors.New(apperrors.CodeShortcutFailed, fmt.Sprintf("create shortcut %s", opts.ShortcutPath), err)
	}
	return nil
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func shortcutScript(o ShortcutOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$s = (New-Object -ComObject WScript.Shell).CreateShortcut(%s);", psQuote(o.ShortcutPath))
	fmt.Fprintf(&b, "$s.TargetPath = %s;", psQuote(o.TargetPath))
	if o.Arguments != "" {
		fmt.Fprintf(&b, "$s.Arguments = %s;", psQuote(o.Arguments))
	}
	if o.IconPath != "" {
		fmt.Fprintf(&b, "$s.IconLocation = %s;", psQuote(fmt.Sprintf("%s,%d", o.IconPath, o.IconIndex)))
	}
	if o.Description != "" {
		fmt.Fprintf(&b, "$s.Description = %s;", psQuote(o.Description))
	}
	workDir := o.WorkingDir
	if workDir == "" {
		workDir = filepath.Dir(o.TargetPath)
	}
	fmt.Fprintf(&b, "$s.WorkingDirectory = %s;", psQuote(workDir))
	b.WriteString("$s.Save()")
	return b.String()
}

func writeDesktopEntry(o ShortcutOptions) error {
	name := strings.TrimSuffix(filepath.Base(o.ShortcutPath), filepath.Ext(o.ShortcutPath))
	path := strings.TrimSuffix(o.ShortcutPath, filepath.Ext(o.ShortcutPath)) + ".desktop"

	var b strings.Builder
	b.WriteString("[Desktop Entry]\nType=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", name)
	if o.Description != "" {
		fmt.Fprintf(&b, "Comment=%s\n", o.Description)
	}
	exec := fmt.Sprintf("%q", o.TargetPath)
	if o.Arguments != "" {
		exec += " " + o.Arguments
	}
	fmt.Fprintf(&b, "Exec=%s\n", exec)
	if o.IconPath != "" {
		fmt.Fprintf(&b, "Icon=%s\n", o.IconPath)
	}
	if o.AppUserModelID != "" {
		fmt.Fprintf(&b, "StartupWMClass=%s\n", o.AppUserModelID)
	}
	b.WriteString("Terminal=false\n")

	//nolint:gosec // G306: desktop entries must be readable by the desktop shell
	return os.WriteFile(path, []byte(b.String()), 0644)
}
