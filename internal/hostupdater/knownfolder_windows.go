//go:build windows

package hostupdater

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var knownFolderIDs = map[string]*windows.KNOWNFOLDERID{
	FolderDesktop:   windows.FOLDERID_Desktop,
	FolderPrograms:  windows.FOLDERID_Programs,
	FolderStartMenu: windows.FOLDERID_StartMenu,
	FolderStartup:   windows.FOLDERID_Startup,
}

func lookupKnownFolder(name string) (string, error) {
	id, ok := knownFolderIDs[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFolder, name)
	}
	path, err := windows.KnownFolderPath(id, windows.KF_FLAG_DEFAULT)
	if err != nil {
		return "", fmt.Errorf("resolve known folder %s: %w", name, err)
	}
	return path, nil
}
