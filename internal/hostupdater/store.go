package hostupdater

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, WAL-friendly
)

// InstallState is the journal state of one host version.
type InstallState string

const (
	StateInstalling InstallState = "installing"
	StateInstalled  InstallState = "installed"
	StateFailed     InstallState = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS host_installs (
	version    TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pinned_manifests (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	host_version TEXT NOT NULL,
	body         TEXT NOT NULL,
	applied_at   TEXT NOT NULL
);`

// Store journals host installs so an interrupted install is detected on the
// next start.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// buildStoreDSN creates a read-write WAL DSN for the given path.
func buildStoreDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenStore opens or creates the journal at dbPath.
func OpenStore(ctx context.Context, dbPath string) (*Store, error) {
	//nolint:gosec // G301: user data directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", buildStoreDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open host journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping host journal: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate host journal: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) setState(ctx context.Context, version string, state InstallState, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO host_installs (version, state, detail, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET state = excluded.state, detail = excluded.detail, updated_at = excluded.updated_at`,
		version, string(state), detail, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record %s as %s: %w", version, state, err)
	}
	return nil
}

// Begin marks version as being installed.
func (s *Store) Begin(ctx context.Context, version string) error {
	return s.setState(ctx, version, StateInstalling, "")
}

// Complete marks version as installed.
func (s *Store) Complete(ctx context.Context, version string) error {
	return s.setState(ctx, version, StateInstalled, "")
}

// Fail marks version as failed with a reason.
func (s *Store) Fail(ctx context.Context, version string, reason error) error {
	detail := ""
	if reason != nil {
		detail = reason.Error()
	}
	return s.setState(ctx, version, StateFailed, detail)
}

// State returns the journal state of version, or "" if it was never seen.
func (s *Store) State(ctx context.Context, version string) (InstallState, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM host_installs WHERE version = ?`, version).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query %s: %w", version, err)
	}
	return InstallState(state), nil
}

// Interrupted returns versions whose install started but never finished.
func (s *Store) Interrupted(ctx context.Context) ([]string, error) {
	return s.versionsIn(ctx, StateInstalling)
}

// Installed returns every fully installed version.
func (s *Store) Installed(ctx context.Context) ([]string, error) {
	return s.versionsIn(ctx, StateInstalled)
}

func (s *Store) versionsIn(ctx context.Context, state InstallState) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM host_installs WHERE state = ? ORDER BY updated_at`, string(state))
	if err != nil {
		return nil, fmt.Errorf("query %s installs: %w", state, err)
	}
	defer func() { _ = rows.Close() }()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan install: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// RecordPinned keeps an audit trail of applied pinned manifests.
func (s *Store) RecordPinned(ctx context.Context, hostVersion string, body []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pinned_manifests (host_version, body, applied_at) VALUES (?, ?, ?)`,
		hostVersion, string(body), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record pinned manifest: %w", err)
	}
	return nil
}

// PinnedCount returns how many pinned manifests were applied.
func (s *Store) PinnedCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pinned_manifests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pinned manifests: %w", err)
	}
	return n, nil
}
