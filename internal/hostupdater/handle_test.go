package hostupdater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ferry/internal/buildinfo"
	apperrors "ferry/internal/errors"
	"ferry/internal/paths"
	"ferry/internal/proc/proctest"
	"ferry/internal/update"
)

type eventLog struct {
	mu     sync.Mutex
	events []update.Event
}

func (l *eventLog) watch(src update.Source) {
	for _, k := range []update.Kind{
		update.KindCheckingForUpdate, update.KindUpdateAvailable, update.KindUpdateNotAvailable,
		update.KindUpdateProgress, update.KindHostUpdated, update.KindStartingNewHost,
		update.KindUnhandledException, update.KindUpdateError, update.KindInconsistentInstallerState,
	} {
		src.On(k, func(ev update.Event) {
			l.mu.Lock()
			l.events = append(l.events, ev)
			l.mu.Unlock()
		})
	}
}

// kinds returns the recorded kinds with progress events dropped.
func (l *eventLog) kinds() []update.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []update.Kind
	for _, ev := range l.events {
		if ev.Kind != update.KindUpdateProgress {
			out = append(out, ev.Kind)
		}
	}
	return out
}

type fixture struct {
	t        *testing.T
	layout   paths.Layout
	runner   *proctest.Runner
	srv      *httptest.Server
	manifest atomic.Value
	pkg      []byte
	hits     atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		t: t,
		layout: paths.Layout{
			UserData:    filepath.Join(root, "data"),
			InstallRoot: filepath.Join(root, "install"),
			AppDir:      filepath.Join(root, "install", "app-1.0.0"),
			ExeName:     "ferry",
		},
		runner: proctest.New(),
		pkg:    buildTarball(t, map[string]string{"ferry": "new host"}),
	}
	f.manifest.Store("")
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stable/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		body := f.manifest.Load().(string)
		if body == "" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/pkg/ferry-linux-amd64.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(f.pkg)
	})
	mux.HandleFunc("/pkg/SHA256SUMS", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "%s  ferry-linux-amd64.tar.gz\n", sha256Hex(f.pkg))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) manifestJSON(version string, withSum bool) string {
	pkg := map[string]string{"url": f.srv.URL + "/pkg/ferry-linux-amd64.tar.gz"}
	if withSum {
		pkg["sha256"] = sha256Hex(f.pkg)
	}
	m := map[string]any{
		"host_version": version,
		"packages":     map[string]any{"linux-amd64": pkg},
	}
	if !withSum {
		m["checksums_url"] = f.srv.URL + "/pkg/SHA256SUMS"
	}
	b, err := json.Marshal(m)
	require.NoError(f.t, err)
	return string(b)
}

func (f *fixture) init(opts ...Option) *Handle {
	f.t.Helper()
	info := buildinfo.Info{ReleaseChannel: buildinfo.ChannelStable, Version: "1.0.0", NewUpdater: true}
	all := append([]Option{
		WithHTTPClient(f.srv.Client()),
		WithRunner(f.runner),
		WithPlatform("linux", "amd64"),
		WithHostArgs("--start-minimized"),
	}, opts...)
	h, err := TryInit(context.Background(), info, f.srv.URL+"/api", f.layout, all...)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestTryInitRejectsDisabledBuilds(t *testing.T) {
	info := buildinfo.Info{ReleaseChannel: buildinfo.ChannelStable, Version: "1.0.0"}
	_, err := TryInit(context.Background(), info, "https://updates.example/api", paths.Layout{UserData: t.TempDir()})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestTryInitRejectsInvalidEndpoint(t *testing.T) {
	info := buildinfo.Info{ReleaseChannel: buildinfo.ChannelStable, Version: "1.0.0", NewUpdater: true}
	for _, endpoint := range []string{"", "not a url", "ftp://updates.example", "https://"} {
		_, err := TryInit(context.Background(), info, endpoint, paths.Layout{UserData: t.TempDir()})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeHostInit), "endpoint %q: %v", endpoint, err)
	}
}

func TestResolveUpToDate(t *testing.T) {
	f := newFixture(t)
	f.manifest.Store(f.manifestJSON("1.0.0", true))
	h := f.init()
	var log eventLog
	log.watch(h)

	res, err := h.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, update.ResolveLaunch, res)
	assert.Equal(t, []update.Kind{update.KindCheckingForUpdate, update.KindUpdateNotAvailable}, log.kinds())
	assert.Empty(t, f.runner.Calls())
}

func TestResolveInstallsAndStartsNewHost(t *testing.T) {
	f := newFixture(t)
	f.manifest.Store(f.manifestJSON("1.0.1", true))
	h := f.init()
	var log eventLog
	log.watch(h)

	res, err := h.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, update.ResolveRestart, res)
	assert.Equal(t, []update.Kind{
		update.KindCheckingForUpdate,
		update.KindUpdateAvailable,
		update.KindHostUpdated,
		update.KindStartingNewHost,
	}, log.kinds())

	exe := filepath.Join(f.layout.HostDir("1.0.1"), "ferry")
	content, err := os.ReadFile(exe)
	require.NoError(t, err)
	assert.Equal(t, "new host", string(content))

	calls := f.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "start", calls[0].Method)
	assert.Equal(t, exe, calls[0].Bin)
	assert.Equal(t, []string{"--start-minimized"}, calls[0].Args)

	state, err := h.store.State(context.Background(), "1.0.1")
	require.NoError(t, err)
	assert.Equal(t, StateInstalled, state)
}

func TestResolveUsesChecksumListing(t *testing.T) {
	f := newFixture(t)
	f.manifest.Store(f.manifestJSON("2.0.0", false))
	h := f.init()

	res, err := h.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, update.ResolveRestart, res)
}

func TestResolveManifestFailureIsUpdateError(t *testing.T) {
	f := newFixture(t)
	h := f.init()
	var log eventLog
	log.watch(h)

	res, err := h.Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, update.ResolveLaunch, res)
	assert.Equal(t, []update.Kind{update.KindCheckingForUpdate, update.KindUpdateError}, log.kinds())
}

func TestResolveChecksumMismatchJournalsFailure(t *testing.T) {
	f := newFixture(t)
	f.manifest.Store(f.manifestJSON("1.0.1", true))
	f.pkg = buildTarball(t, map[string]string{"ferry": "tampered"})
	h := f.init()
	var log eventLog
	log.watch(h)

	res, err := h.Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, update.ResolveLaunch, res)
	assert.Contains(t, log.kinds(), update.KindUpdateError)
	assert.NotContains(t, log.kinds(), update.KindHostUpdated)

	state, err := h.store.State(context.Background(), "1.0.1")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)
	assert.NoDirExists(t, f.layout.HostDir("1.0.1"))
}

func TestResolveCancelledDownloadJournalsFailure(t *testing.T) {
	started := make(chan struct{})
	stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write([]byte("partial"))
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		close(started)
		<-r.Context().Done()
	}))
	t.Cleanup(stalled.Close)

	f := newFixture(t)
	f.manifest.Store(fmt.Sprintf(`{"host_version":"1.0.1","packages":{"linux-amd64":{"url":%q,"sha256":"00"}}}`,
		stalled.URL+"/pkg/ferry-linux-amd64.tar.gz"))
	h := f.init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
	}()

	res, err := h.Resolve(ctx)
	require.Error(t, err)
	assert.Equal(t, update.ResolveLaunch, res)

	state, err := h.store.State(context.Background(), "1.0.1")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)

	interrupted, err := h.store.Interrupted(context.Background())
	require.NoError(t, err)
	assert.Empty(t, interrupted)
	assert.NoError(t, h.StartCurrentVersion(context.Background(), false))
}

func TestResolveInterruptedInstall(t *testing.T) {
	f := newFixture(t)
	f.manifest.Store(f.manifestJSON("1.0.1", true))
	h := f.init()
	require.NoError(t, h.store.Begin(context.Background(), "1.0.1"))
	var log eventLog
	log.watch(h)

	res, err := h.Resolve(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInconsistentState))
	assert.Equal(t, update.ResolveLaunch, res)
	assert.Equal(t, []update.Kind{update.KindInconsistentInstallerState}, log.kinds())
	assert.Zero(t, f.hits.Load())
}

func TestResolveRecoversPanics(t *testing.T) {
	f := newFixture(t)
	f.manifest.Store(f.manifestJSON("1.0.0", true))
	h := f.init()
	var log eventLog
	log.watch(h)
	h.On(update.KindCheckingForUpdate, func(update.Event) { panic("boom") })

	res, err := h.Resolve(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnhandled))
	assert.Equal(t, update.ResolveLaunch, res)
	assert.Contains(t, log.kinds(), update.KindUnhandledException)
}

func TestPinnedManifest(t *testing.T) {
	f := newFixture(t)
	h := f.init()

	err := h.SetPinnedManifest(context.Background(), json.RawMessage(`{"host_version": "beta"}`))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeManifestParse))

	require.NoError(t, h.SetPinnedManifest(context.Background(), json.RawMessage(f.manifestJSON("1.0.1", true))))
	res, err := h.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, update.ResolveRestart, res)
	assert.Zero(t, f.hits.Load(), "pinned manifest should not be fetched")

	n, err := h.store.PinnedCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStartCurrentVersion(t *testing.T) {
	f := newFixture(t)
	h := f.init()
	ctx := context.Background()

	require.NoError(t, h.StartCurrentVersion(ctx, false))

	require.NoError(t, h.store.Complete(ctx, "1.0.3"))
	assert.ErrorIs(t, h.StartCurrentVersion(ctx, false), ErrObsoleteHost)
	assert.NoError(t, h.StartCurrentVersion(ctx, true))
}

func TestKnownFolderAndShortcut(t *testing.T) {
	f := newFixture(t)
	desktop := t.TempDir()
	h := f.init(WithKnownFolders(func(name string) (string, error) {
		if name == FolderDesktop {
			return desktop, nil
		}
		return "", ErrUnknownFolder
	}))

	dir, err := h.KnownFolder(FolderDesktop)
	require.NoError(t, err)
	assert.Equal(t, desktop, dir)
	_, err = h.KnownFolder("fonts")
	assert.ErrorIs(t, err, ErrUnknownFolder)

	err = h.CreateShortcut(context.Background(), ShortcutOptions{
		ShortcutPath: filepath.Join(desktop, "Ferry.lnk"),
		TargetPath:   "/opt/ferry/ferry",
		IconPath:     "/opt/ferry/app.ico",
		Description:  "Ferry",
	})
	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(desktop, "Ferry.desktop"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `Exec="/opt/ferry/ferry"`)
	assert.Contains(t, string(content), "Icon=/opt/ferry/app.ico")
}

func TestCreateShortcutWindows(t *testing.T) {
	f := newFixture(t)
	h := f.init(WithPlatform("windows", "amd64"))

	err := h.CreateShortcut(context.Background(), ShortcutOptions{
		ShortcutPath: `C:\Users\me\Desktop\Ferry.lnk`,
		TargetPath:   `C:\Ferry\Update.exe`,
		Arguments:    "--processStart Ferry.exe",
		IconPath:     `C:\Ferry\app.ico`,
	})
	require.NoError(t, err)

	calls := f.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "powershell.exe", calls[0].Bin)
	script := calls[0].Args[len(calls[0].Args)-1]
	assert.Contains(t, script, `CreateShortcut('C:\Users\me\Desktop\Ferry.lnk')`)
	assert.Contains(t, script, `$s.Arguments = '--processStart Ferry.exe'`)
	assert.Contains(t, script, `$s.IconLocation = 'C:\Ferry\app.ico,0'`)

	f.runner.On("powershell.exe", proctest.Response{Err: fmt.Errorf("denied")})
	err = h.CreateShortcut(context.Background(), ShortcutOptions{ShortcutPath: "x.lnk", TargetPath: "y.exe"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeShortcutFailed))
}
