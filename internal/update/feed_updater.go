package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	apperrors "ferry/internal/errors"
	"ferry/internal/proc"
)

// DefaultTimeout bounds a single feed request.
const DefaultTimeout = 30 * time.Second

// maxFeedBody caps how much of a feed response is read.
const maxFeedBody = 1 << 20

// Relauncher starts a fresh copy of the running application.
type Relauncher interface {
	Relaunch() error
}

// ExecRelauncher relaunches os.Executable with the current arguments.
type ExecRelauncher struct {
	Runner proc.Runner
}

// Relaunch implements Relauncher.
func (r ExecRelauncher) Relaunch() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}
	runner := r.Runner
	if runner == nil {
		runner = proc.Exec{}
	}
	return runner.Start(exe, os.Args[1:]...)
}

// FeedUpdater is the Linux variant. It never installs anything itself: a
// version mismatch with the feed is reported as update-manually.
type FeedUpdater struct {
	Emitter

	currentVersion string
	httpClient     *http.Client
	relauncher     Relauncher
	feed           feedURL
}

// FeedOption configures a FeedUpdater.
type FeedOption func(*FeedUpdater)

// WithHTTPClient sets a custom HTTP client for feed requests. A nil client
// keeps the default.
func WithHTTPClient(client *http.Client) FeedOption {
	return func(u *FeedUpdater) {
		if client != nil {
			u.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP client timeout. The client is copied so one
// supplied through WithHTTPClient is left untouched.
func WithTimeout(timeout time.Duration) FeedOption {
	return func(u *FeedUpdater) {
		c := *u.httpClient
		c.Timeout = timeout
		u.httpClient = &c
	}
}

// WithRelauncher sets how QuitAndInstall restarts the application.
func WithRelauncher(r Relauncher) FeedOption {
	return func(u *FeedUpdater) {
		u.relauncher = r
	}
}

// NewFeedUpdater returns the Linux updater for the running version.
func NewFeedUpdater(currentVersion string, opts ...FeedOption) *FeedUpdater {
	u := &FeedUpdater{
		currentVersion: currentVersion,
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		relauncher:     ExecRelauncher{},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// SetFeedURL implements PlatformUpdater.
func (u *FeedUpdater) SetFeedURL(url string) {
	u.feed.set(url)
}

// CheckForUpdates implements PlatformUpdater.
func (u *FeedUpdater) CheckForUpdates(ctx context.Context) error {
	feed, err := u.feed.get()
	if err != nil {
		return err
	}
	current := ParseVersion(u.currentVersion)
	u.Emit(Event{Kind: KindCheckingForUpdate})

	status, body, err := u.fetch(ctx, feed)
	if err != nil {
		logUpdates.Logf("error fetching %s: %v", feed, err)
		u.Emit(Event{Kind: KindError, Err: err})
		return nil
	}
	if status == http.StatusNoContent {
		u.Emit(Event{Kind: KindUpdateNotAvailable})
		return nil
	}

	name, latest := parseFeedMetadata(body)
	switch {
	case IsNewer(latest, current):
		logUpdates.Logf("out of date: %s -> %q", u.currentVersion, name)
		u.Emit(Event{Kind: KindUpdateManually, Version: name})
	case IsNewer(current, latest):
		logUpdates.Logf("running %s, ahead of feed version %q", u.currentVersion, name)
		u.Emit(Event{Kind: KindUpdateManually, Version: name})
	case IsEqual(latest, current):
		logUpdates.Logf("up to date at %s", u.currentVersion)
		u.Emit(Event{Kind: KindUpdateNotAvailable})
	default:
		logUpdates.Logf("feed version %q not comparable with %s", name, u.currentVersion)
		u.Emit(Event{Kind: KindUpdateNotAvailable})
	}
	return nil
}

// DownloadAndInstallUpdate implements PlatformUpdater. Linux builds are
// updated by the user, so this always fails.
func (u *FeedUpdater) DownloadAndInstallUpdate(_ context.Context, _ func(error)) error {
	if _, err := u.feed.get(); err != nil {
		return err
	}
	return ErrManualUpdateOnly
}

// QuitAndInstall implements PlatformUpdater by relaunching; the caller quits.
func (u *FeedUpdater) QuitAndInstall() error {
	return u.relauncher.Relaunch()
}

func (u *FeedUpdater) fetch(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, apperrors.New(apperrors.CodeFeedRequest, "create feed request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ferry-updater/"+u.currentVersion)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return 0, nil, apperrors.New(apperrors.CodeFeedRequest, fmt.Sprintf("fetch %s: %v", url, err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return 0, nil, apperrors.New(apperrors.CodeFeedRequest, "read feed response", err)
	}
	return resp.StatusCode, body, nil
}

// parseFeedMetadata extracts the version name from a feed body. Anything
// malformed yields an empty name and an empty version.
func parseFeedMetadata(body []byte) (string, Version) {
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", Version{}
	}
	return meta.Name, ParseVersion(meta.Name)
}
