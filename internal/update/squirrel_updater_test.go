package update

import (
	"context"
	"errors"
	"testing"
	"time"
)

const releasesOutput = `Checking for updates...
Downloading RELEASES
{"currentVersion":"1.0.9","futureVersion":"1.0.11","releasesToApply":[{"version":"1.0.10","release":"notes 10"},{"version":"1.0.11","release":"notes 11"}]}`

func TestSquirrelUpdaterDownloadsLatestRelease(t *testing.T) {
	installer := &fakeInstaller{exists: true, checkOut: releasesOutput, progress: []int{10, 60, 100}}
	u := NewSquirrelUpdater(installer, nil, "1.0.9")
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	u.now = func() time.Time { return fixed }
	rec := record(u)
	u.SetFeedURL("https://updates.example/win")

	if err := u.CheckForUpdates(context.Background()); err != nil {
		t.Fatalf("CheckForUpdates error: %v", err)
	}
	ev := rec.waitTerminal(t)

	if ev.Kind != KindUpdateDownloaded {
		t.Fatalf("terminal event = %v", ev)
	}
	if ev.Version != "1.0.11" || ev.ReleaseNotes != "notes 11" {
		t.Errorf("downloaded payload = %+v", ev)
	}
	if ev.FeedURL != "https://updates.example/win" || !ev.Date.Equal(fixed) {
		t.Errorf("downloaded metadata = %+v", ev)
	}
	assertKinds(t, rec.kinds(),
		KindCheckingForUpdate, KindUpdateAvailable,
		KindUpdateProgress, KindUpdateProgress, KindUpdateProgress,
		KindUpdateDownloaded)

	if err := ev.Install(); err != nil {
		t.Fatalf("Install error: %v", err)
	}
	if len(installer.restarted) != 1 || installer.restarted[0] != "1.0.11" {
		t.Fatalf("restarted = %v, want [1.0.11]", installer.restarted)
	}
	if len(installer.feeds) != 1 || installer.feeds[0] != "https://updates.example/win" {
		t.Fatalf("check feeds = %v", installer.feeds)
	}
}

func TestSquirrelUpdaterNoInstaller(t *testing.T) {
	native := &fakeNative{}
	u := NewSquirrelUpdater(&fakeInstaller{}, native, "1.0.0")
	rec := record(u)
	u.SetFeedURL("https://updates.example/win")

	if err := u.CheckForUpdates(context.Background()); err != nil {
		t.Fatalf("CheckForUpdates error: %v", err)
	}
	assertKinds(t, rec.kinds(), KindCheckingForUpdate, KindUpdateNotAvailable)

	if err := u.QuitAndInstall(); err != nil {
		t.Fatalf("QuitAndInstall error: %v", err)
	}
	if native.quits != 1 {
		t.Fatalf("native quits = %d, want 1", native.quits)
	}
}

func TestSquirrelUpdaterCheckOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		checkErr error
		want     []Kind
	}{
		{"empty list", `{"releasesToApply":[]}`, nil, []Kind{KindCheckingForUpdate, KindUpdateNotAvailable}},
		{"missing list", "noise\n{}", nil, []Kind{KindCheckingForUpdate, KindUpdateNotAvailable}},
		{"subprocess failure", "", errors.New("exit status 1"), []Kind{KindCheckingForUpdate, KindError}},
		{"garbage", "Checking...\nnot json", nil, []Kind{KindCheckingForUpdate, KindError}},
		{"no output", "  \n", nil, []Kind{KindCheckingForUpdate, KindError}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewSquirrelUpdater(&fakeInstaller{exists: true, checkOut: tt.out, checkErr: tt.checkErr}, nil, "1.0.0")
			rec := record(u)
			u.SetFeedURL("https://updates.example/win")

			if err := u.CheckForUpdates(context.Background()); err != nil {
				t.Fatalf("CheckForUpdates error: %v", err)
			}
			assertKinds(t, rec.kinds(), tt.want...)
		})
	}
}

func TestSquirrelUpdaterParseErrorCarriesStdout(t *testing.T) {
	u := NewSquirrelUpdater(&fakeInstaller{exists: true, checkOut: "line\n{broken"}, nil, "1.0.0")
	rec := record(u)
	u.SetFeedURL("https://updates.example/win")

	_ = u.CheckForUpdates(context.Background())
	ev := rec.waitTerminal(t)

	var outErr *InstallerOutputError
	if !errors.As(ev.Err, &outErr) {
		t.Fatalf("error = %v, want *InstallerOutputError", ev.Err)
	}
	if outErr.Stdout != "line\n{broken" {
		t.Errorf("Stdout = %q", outErr.Stdout)
	}
}

func TestSquirrelUpdaterInstallFailure(t *testing.T) {
	installer := &fakeInstaller{
		exists:     true,
		checkOut:   `{"releasesToApply":[{"version":"2.0.0"}]}`,
		installErr: errors.New("disk full"),
	}
	u := NewSquirrelUpdater(installer, nil, "1.0.0")
	rec := record(u)
	u.SetFeedURL("https://updates.example/win")

	_ = u.CheckForUpdates(context.Background())
	ev := rec.waitTerminal(t)
	if ev.Kind != KindError {
		t.Fatalf("terminal event = %v, want error", ev)
	}

	// Nothing was downloaded, so a restart targets the running version.
	if err := u.QuitAndInstall(); err != nil {
		t.Fatalf("QuitAndInstall error: %v", err)
	}
	if len(installer.restarted) != 1 || installer.restarted[0] != "1.0.0" {
		t.Fatalf("restarted = %v, want [1.0.0]", installer.restarted)
	}
}

func TestSquirrelUpdaterRequiresFeedURL(t *testing.T) {
	u := NewSquirrelUpdater(&fakeInstaller{exists: true}, nil, "1.0.0")
	if err := u.CheckForUpdates(context.Background()); !errors.Is(err, ErrFeedURLNotSet) {
		t.Fatalf("CheckForUpdates error = %v", err)
	}
	if err := u.DownloadAndInstallUpdate(context.Background(), nil); !errors.Is(err, ErrFeedURLNotSet) {
		t.Fatalf("DownloadAndInstallUpdate error = %v", err)
	}
}
