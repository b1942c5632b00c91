// Package crashreport is the error-reporting sink for the bootstrap.
//
// Errors come in two severities. Handled errors are logged, sampled and
// recorded, and startup carries on. Fatal errors are always recorded and
// then terminate the process; only the first fatal error is acted on.
package crashreport

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ferry/internal/buildinfo"
	"ferry/internal/debug"
	apperrors "ferry/internal/errors"
	"ferry/internal/proc"
)

var logReports = debug.Scope("CrashReporter")

// ReportsFileName is the JSON lines file reports are appended to.
const ReportsFileName = "reports.log"

// Level distinguishes handled reports from fatal ones.
type Level string

const (
	LevelHandled Level = "handled"
	LevelFatal   Level = "fatal"
)

// Report is one recorded error.
type Report struct {
	Time     time.Time         `json:"time"`
	Level    Level             `json:"level"`
	Code     apperrors.Code    `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Sink stores reports.
type Sink interface {
	Write(Report) error
}

// FileSink appends reports as JSON lines.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink returns a sink writing to <dir>/reports.log.
func NewFileSink(dir string) *FileSink {
	return &FileSink{path: filepath.Join(dir, ReportsFileName)}
}

// Write implements Sink.
func (s *FileSink) Write(r Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	//nolint:gosec // G301: user data directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	//nolint:gosec // G304: path is inside the user data directory
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open reports: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Reporter routes handled and fatal errors to a sink.
type Reporter struct {
	sink       Sink
	metadata   map[string]string
	sampleRate float64
	random     func() float64
	exit       func(int)
	now        func() time.Time

	fatalOnce  sync.Once
	fatalCount atomic.Int32
}

type settings struct {
	sink   Sink
	exit   func(int)
	random func() float64
	runner proc.Runner
	goos   string
	getenv func(string) string
}

// Option configures a Reporter.
type Option func(*settings)

// WithSink sets where reports are recorded.
func WithSink(s Sink) Option {
	return func(cfg *settings) { cfg.sink = s }
}

// WithExit replaces os.Exit for fatal errors.
func WithExit(exit func(int)) Option {
	return func(cfg *settings) { cfg.exit = exit }
}

// WithRandom replaces the sampling source. It must return values in [0,1).
func WithRandom(random func() float64) Option {
	return func(cfg *settings) { cfg.random = random }
}

// WithRunner sets the runner used to query the Linux distribution.
func WithRunner(r proc.Runner) Option {
	return func(cfg *settings) { cfg.runner = r }
}

// WithPlatform overrides the OS and environment lookups used for metadata.
func WithPlatform(goos string, getenv func(string) string) Option {
	return func(cfg *settings) {
		cfg.goos = goos
		cfg.getenv = getenv
	}
}

// New builds a reporter for the given build.
func New(info buildinfo.Info, opts ...Option) *Reporter {
	cfg := settings{
		exit:   os.Exit,
		random: rand.Float64,
		runner: proc.Exec{},
		goos:   runtime.GOOS,
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Reporter{
		sink:       cfg.sink,
		metadata:   buildMetadata(info, cfg),
		sampleRate: SampleRate(cfg.goos, info.ReleaseChannel),
		random:     cfg.random,
		exit:       cfg.exit,
		now:        time.Now,
	}
	logReports.Logf("initialized for %s %s (sample rate %.2f)", info.ReleaseChannel, info.Version, r.sampleRate)
	return r
}

// SampleRate returns the fraction of handled errors recorded for a build.
// Linux and macOS builds record everything; Windows stable samples 1%.
func SampleRate(goos string, ch buildinfo.Channel) float64 {
	if goos == "linux" || goos == "darwin" {
		return 1
	}
	if ch == buildinfo.ChannelStable {
		return 0.01
	}
	return 1
}

func buildMetadata(info buildinfo.Info, cfg settings) map[string]string {
	md := map[string]string{
		"release_channel": string(info.ReleaseChannel),
		"release":         info.Version,
		"session":         uuid.NewString(),
		"platform":        cfg.goos,
	}
	if cfg.goos != "linux" {
		return md
	}

	desktop := cfg.getenv("XDG_CURRENT_DESKTOP")
	if desktop == "" {
		desktop = "unknown"
	}
	session := cfg.getenv("GDMSESSION")
	if session == "" {
		session = "unknown"
	}
	md["wm"] = desktop + "," + session

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if out, err := cfg.runner.Run(ctx, "lsb_release", "-ds"); err == nil {
		if distro := strings.TrimSpace(string(out)); distro != "" {
			md["distro"] = distro
		}
	}
	return md
}

// Metadata returns a copy of the metadata attached to every report.
func (r *Reporter) Metadata() map[string]string {
	out := make(map[string]string, len(r.metadata))
	for k, v := range r.metadata {
		out[k] = v
	}
	return out
}

// Handled records a non-fatal error. Startup continues.
func (r *Reporter) Handled(err error) {
	if err == nil {
		return
	}
	logReports.Logf("handled: %v", err)
	if r.random() >= r.sampleRate {
		return
	}
	r.record(LevelHandled, err)
}

// Fatal records err and terminates the process with status 1. Only the
// first call has any effect.
func (r *Reporter) Fatal(err error) {
	r.fatalOnce.Do(func() {
		r.fatalCount.Add(1)
		if err == nil {
			err = apperrors.New(apperrors.CodeUnknown, "fatal error", nil)
		}
		logReports.Logf("fatal: %v", err)
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		r.record(LevelFatal, err)
		debug.Close()
		r.exit(1)
	})
}

// FatalCount reports how many times the fatal path actually ran.
func (r *Reporter) FatalCount() int {
	return int(r.fatalCount.Load())
}

func (r *Reporter) record(level Level, err error) {
	if r.sink == nil {
		return
	}
	report := Report{
		Time:     r.now(),
		Level:    level,
		Code:     apperrors.CodeOf(err),
		Message:  err.Error(),
		Metadata: r.metadata,
	}
	if werr := r.sink.Write(report); werr != nil {
		logReports.Logf("could not record report: %v", werr)
	}
}
