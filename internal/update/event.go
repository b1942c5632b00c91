package update

import (
	"fmt"
	"time"
)

// Kind identifies an updater lifecycle event.
type Kind int

const (
	KindCheckingForUpdate Kind = iota + 1
	KindUpdateAvailable
	KindUpdateNotAvailable
	KindUpdateDownloaded
	KindUpdateProgress
	// KindUpdateManually asks the user to install a newer build themselves.
	KindUpdateManually
	KindError

	// Host updater lifecycle.
	KindHostUpdated
	KindStartingNewHost
	KindUnhandledException
	KindUpdateError
	KindInconsistentInstallerState
)

var kindNames = map[Kind]string{
	KindCheckingForUpdate:          "checking-for-update",
	KindUpdateAvailable:            "update-available",
	KindUpdateNotAvailable:         "update-not-available",
	KindUpdateDownloaded:           "update-downloaded",
	KindUpdateProgress:             "update-progress",
	KindUpdateManually:             "update-manually",
	KindError:                      "error",
	KindHostUpdated:                "host-updated",
	KindStartingNewHost:            "starting-new-host",
	KindUnhandledException:         "unhandled-exception",
	KindUpdateError:                "update-error",
	KindInconsistentInstallerState: "inconsistent-installer-state",
}

// String returns the event's wire name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Terminal reports whether the event ends a legacy update check.
func (k Kind) Terminal() bool {
	switch k {
	case KindUpdateNotAvailable, KindUpdateDownloaded, KindUpdateManually, KindError:
		return true
	}
	return false
}

// Event is a single updater notification. Which payload fields are set
// depends on Kind:
//
//	update-available, update-manually, host-updated, starting-new-host: Version
//	update-downloaded: Version, ReleaseNotes, Date, FeedURL, Install
//	update-progress: Progress (0-100)
//	error, update-error, unhandled-exception, inconsistent-installer-state: Err
type Event struct {
	Kind         Kind
	Version      string
	ReleaseNotes string
	Progress     int
	FeedURL      string
	Date         time.Time
	Err          error

	// Install finalizes a downloaded update by restarting into it.
	Install func() error
}

func (e Event) String() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Kind == KindUpdateProgress:
		return fmt.Sprintf("%s %d%%", e.Kind, e.Progress)
	case e.Version != "":
		return fmt.Sprintf("%s %s", e.Kind, e.Version)
	default:
		return e.Kind.String()
	}
}
