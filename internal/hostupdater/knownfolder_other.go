//go:build !windows

package hostupdater

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

func lookupKnownFolder(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	switch name {
	case FolderDesktop:
		if dir := os.Getenv("XDG_DESKTOP_DIR"); dir != "" {
			return dir, nil
		}
		return filepath.Join(home, "Desktop"), nil
	case FolderPrograms, FolderStartMenu:
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Applications"), nil
		}
		data := os.Getenv("XDG_DATA_HOME")
		if data == "" {
			data = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(data, "applications"), nil
	case FolderStartup:
		cfg, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolve config directory: %w", err)
		}
		return filepath.Join(cfg, "autostart"), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFolder, name)
	}
}
