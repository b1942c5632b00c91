package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	// KeyUsePinnedManifest applies <userData>/pinned_update.json before the host updater runs.
	KeyUsePinnedManifest = "USE_PINNED_UPDATE_MANIFEST"
	// KeyStartMinimized keeps the main window hidden on launch and is baked into autostart entries.
	KeyStartMinimized = "START_MINIMIZED"
	// KeySkipHostUpdate stops the legacy updater from checking its feed.
	KeySkipHostUpdate = "SKIP_HOST_UPDATE"

	KeyDebug             = "debug"
	KeyBuildInfoPath     = "build-info"
	KeyUserDataDir       = "paths.user-data"
	KeyInstallRoot       = "paths.install-root"
	KeyUpdateEndpoint    = "endpoints.update"
	KeyNewUpdateEndpoint = "endpoints.new-update"
	KeySplashHeadless    = "splash.headless"
	KeySplashTimeout     = "splash.timeout"
)

const (
	// DefaultSplashTimeout bounds how long the splash waits for update resolution.
	DefaultSplashTimeout = 90 * time.Second
	// SettingsFileName is the settings file kept in the user data directory.
	SettingsFileName = "settings.json"

	envPrefix = "FERRY"
)

type initSettings struct {
	settingsPath string
	overridePath string
}

// Option configures Initialize behaviour. Useful for tests to override paths.
type Option func(*initSettings)

// WithSettingsFile sets the user settings file (normally <userData>/settings.json).
func WithSettingsFile(path string) Option {
	return func(cfg *initSettings) {
		cfg.settingsPath = path
	}
}

// WithOverrideFile merges a second settings file on top of the user settings.
// Build override tooling drops one next to the install root.
func WithOverrideFile(path string) Option {
	return func(cfg *initSettings) {
		cfg.overridePath = path
	}
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	configInst *viper.Viper
	initErr    error
)

// Initialize loads configuration using the precedence:
// defaults < user settings < override file < environment variables < overrides.
func Initialize(opts ...Option) error {
	configOnce.Do(func() {
		settings := initSettings{}
		for _, opt := range opts {
			opt(&settings)
		}
		initErr = configure(&settings)
	})
	return initErr
}

// ApplyOverrides injects values typically coming from CLI flags.
func ApplyOverrides(overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	for k, v := range overrides {
		configInst.Set(k, v)
	}
	return nil
}

// GetString fetches a string configuration value, initializing on demand.
func GetString(key string) string {
	v, err := getViper()
	if err != nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool fetches a bool configuration value, initializing on demand.
func GetBool(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.GetBool(key)
}

// GetDuration fetches a duration configuration value, initializing on demand.
func GetDuration(key string) time.Duration {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetDuration(key)
}

// IsSet reports whether key has a value from any layer other than defaults.
func IsSet(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.IsSet(key)
}

// Set updates a configuration key at runtime, initializing on demand.
func Set(key string, value any) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	configInst.Set(key, value)
	return nil
}

// Store is a read-only view over the loaded settings.
type Store struct{}

// Settings returns the read-only settings view handed to the bootstrap.
func Settings() Store {
	return Store{}
}

// Bool returns the boolean at key, or def when nothing sets it.
func (Store) Bool(key string, def bool) bool {
	if !IsSet(key) {
		return def
	}
	return GetBool(key)
}

// String returns the string at key, or def when nothing sets it.
func (Store) String(key, def string) string {
	if !IsSet(key) {
		return def
	}
	return GetString(key)
}

func configure(settings *initSettings) error {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(v, strings.TrimSpace(settings.settingsPath)); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := mergeConfigFile(v, strings.TrimSpace(settings.overridePath)); err != nil {
		return fmt.Errorf("load override settings: %w", err)
	}

	configMu.Lock()
	defer configMu.Unlock()
	configInst = v
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads the user settings file
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyUpdateEndpoint, "https://updates.ferry.app/api")
	v.SetDefault(KeyNewUpdateEndpoint, "https://updates.ferry.app/api/updates/")
	v.SetDefault(KeySplashHeadless, false)
	v.SetDefault(KeySplashTimeout, DefaultSplashTimeout)
}

// SettingsPath returns the settings file inside a user data directory.
func SettingsPath(userDataDir string) string {
	return filepath.Join(userDataDir, SettingsFileName)
}

func getViper() (*viper.Viper, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if configInst == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return configInst, nil
}

// reset clears package state for tests.
func reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configInst = nil
	initErr = nil
	configOnce = sync.Once{}
}

// ResetForTesting clears package state for tests in other packages and
// loads settings from an empty temp directory.
// Returns a cleanup function that should be deferred.
func ResetForTesting(t interface{ TempDir() string }) func() {
	reset()
	tmp := t.TempDir()
	_ = Initialize(WithSettingsFile(SettingsPath(tmp)))
	return reset
}
