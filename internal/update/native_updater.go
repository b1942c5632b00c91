package update

import "context"

// NativeUpdater is the macOS variant: every call goes to the native updater.
type NativeUpdater struct {
	Emitter
	native Native
	feed   feedURL
}

// NewNativeUpdater wraps native.
func NewNativeUpdater(native Native) *NativeUpdater {
	if native == nil {
		native = UnavailableNative{}
	}
	return &NativeUpdater{native: native}
}

// SetFeedURL implements PlatformUpdater.
func (u *NativeUpdater) SetFeedURL(url string) {
	u.feed.set(url)
	u.native.SetFeedURL(url)
}

// CheckForUpdates implements PlatformUpdater.
func (u *NativeUpdater) CheckForUpdates(ctx context.Context) error {
	if _, err := u.feed.get(); err != nil {
		return err
	}
	return u.native.CheckForUpdates(ctx, u.Emit)
}

// DownloadAndInstallUpdate implements PlatformUpdater. The native updater
// downloads as part of its check, so there is nothing to start here.
func (u *NativeUpdater) DownloadAndInstallUpdate(_ context.Context, _ func(error)) error {
	if _, err := u.feed.get(); err != nil {
		return err
	}
	return ErrNativeManaged
}

// QuitAndInstall implements PlatformUpdater.
func (u *NativeUpdater) QuitAndInstall() error {
	return u.native.QuitAndInstall()
}

// UnavailableNative stands in when the platform offers no native updater.
// Checks always resolve as up to date.
type UnavailableNative struct{}

// SetFeedURL implements Native.
func (UnavailableNative) SetFeedURL(string) {}

// CheckForUpdates implements Native.
func (UnavailableNative) CheckForUpdates(_ context.Context, emit func(Event)) error {
	logUpdates.Logf("no native updater available, reporting up to date")
	emit(Event{Kind: KindCheckingForUpdate})
	emit(Event{Kind: KindUpdateNotAvailable})
	return nil
}

// QuitAndInstall implements Native.
func (UnavailableNative) QuitAndInstall() error {
	return ErrNativeManaged
}
