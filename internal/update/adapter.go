package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	apperrors "ferry/internal/errors"
)

// Error variables for adapter misuse and unsupported operations.
var (
	ErrFeedURLNotSet    = apperrors.New(apperrors.CodeFeedURLNotSet, "update URL is not set", nil)
	ErrUnsupportedOS    = errors.New("unsupported operating system")
	ErrManualUpdateOnly = errors.New("updates on this platform are installed manually")
	ErrNativeManaged    = errors.New("download is managed by the native updater")
)

// PlatformUpdater is the capability set every OS variant implements.
//
// SetFeedURL must be called before CheckForUpdates or
// DownloadAndInstallUpdate; both return ErrFeedURLNotSet otherwise. Failures
// after that point are reported as KindError events, not returned.
type PlatformUpdater interface {
	Source
	SetFeedURL(url string)
	CheckForUpdates(ctx context.Context) error
	// DownloadAndInstallUpdate starts the install in the background and
	// calls done with its result.
	DownloadAndInstallUpdate(ctx context.Context, done func(error)) error
	// QuitAndInstall hands over to the updated build. The caller exits the
	// process once it returns nil.
	QuitAndInstall() error
}

// Native is the operating system's own auto-updater.
type Native interface {
	SetFeedURL(url string)
	CheckForUpdates(ctx context.Context, emit func(Event)) error
	QuitAndInstall() error
}

// Config carries what the platform variants need. Only the fields used by
// the selected variant have to be set.
type Config struct {
	CurrentVersion string

	// Windows
	Installer Installer

	// Linux
	HTTPClient *http.Client
	Relauncher Relauncher

	// macOS, and the Windows fallback when no installer is present.
	Native Native
}

// NewPlatformUpdater selects the variant for goos. The choice is made once;
// callers keep the returned updater for the life of the process.
func NewPlatformUpdater(goos string, cfg Config) (PlatformUpdater, error) {
	native := cfg.Native
	if native == nil {
		native = UnavailableNative{}
	}
	switch goos {
	case "windows":
		if cfg.Installer == nil {
			return nil, fmt.Errorf("windows updater requires an installer")
		}
		return NewSquirrelUpdater(cfg.Installer, native, cfg.CurrentVersion), nil
	case "linux":
		opts := []FeedOption{}
		if cfg.HTTPClient != nil {
			opts = append(opts, WithHTTPClient(cfg.HTTPClient))
		}
		if cfg.Relauncher != nil {
			opts = append(opts, WithRelauncher(cfg.Relauncher))
		}
		return NewFeedUpdater(cfg.CurrentVersion, opts...), nil
	case "darwin":
		return NewNativeUpdater(native), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
	}
}

// feedURL holds the URL shared by the variants.
type feedURL struct {
	mu  sync.Mutex
	url string
}

func (f *feedURL) set(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
}

func (f *feedURL) get() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.url == "" {
		return "", ErrFeedURLNotSet
	}
	return f.url, nil
}
