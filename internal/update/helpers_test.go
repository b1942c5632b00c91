package update

import (
	"context"
	"sync"
	"testing"
	"time"
)

var allKinds = []Kind{
	KindCheckingForUpdate, KindUpdateAvailable, KindUpdateNotAvailable,
	KindUpdateDownloaded, KindUpdateProgress, KindUpdateManually, KindError,
	KindHostUpdated, KindStartingNewHost, KindUnhandledException,
	KindUpdateError, KindInconsistentInstallerState,
}

// recorder captures every event emitted on a source.
type recorder struct {
	mu       sync.Mutex
	events   []Event
	terminal chan Event
}

func record(src Source) *recorder {
	r := &recorder{terminal: make(chan Event, 8)}
	for _, k := range allKinds {
		src.On(k, func(ev Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
			if ev.Kind.Terminal() {
				r.terminal <- ev
			}
		})
	}
	return r
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) waitTerminal(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.terminal:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no terminal event; saw %v", r.kinds())
		return Event{}
	}
}

func assertKinds(t *testing.T, got []Kind, want ...Kind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

// fakeInstaller scripts the Windows installer protocol.
type fakeInstaller struct {
	mu         sync.Mutex
	exists     bool
	checkOut   string
	checkErr   error
	progress   []int
	installErr error
	restarted  []string
	feeds      []string
}

func (f *fakeInstaller) Exists() bool { return f.exists }

func (f *fakeInstaller) Check(_ context.Context, feed string) (string, error) {
	f.mu.Lock()
	f.feeds = append(f.feeds, feed)
	f.mu.Unlock()
	return f.checkOut, f.checkErr
}

func (f *fakeInstaller) Install(_ context.Context, _ string, progress func(int)) error {
	for _, p := range f.progress {
		progress(p)
	}
	return f.installErr
}

func (f *fakeInstaller) Restart(version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, version)
	return nil
}

// fakeNative records passthrough calls.
type fakeNative struct {
	feed      string
	checks    int
	quits     int
	emitKinds []Kind
}

func (n *fakeNative) SetFeedURL(url string) { n.feed = url }

func (n *fakeNative) CheckForUpdates(_ context.Context, emit func(Event)) error {
	n.checks++
	for _, k := range n.emitKinds {
		emit(Event{Kind: k})
	}
	return nil
}

func (n *fakeNative) QuitAndInstall() error {
	n.quits++
	return nil
}
