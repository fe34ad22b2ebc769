// Package libsql provides a durable core.SessionStore backed by libSQL (local
// files or remote Turso databases). The schema is managed with goose from
// migrations embedded in the binary.
package libsql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/logging"
	"github.com/hupe1980/raaf/session"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Options configure the libSQL store.
type Options struct {
	// TTL is the idle lifetime of a session, refreshed by Create and Save.
	TTL time.Duration
	// AuthToken is appended to remote (non file:) URLs.
	AuthToken    string
	MaxOpenConns int
	Now          func() time.Time
	Logger       logging.Logger
}

// Store persists sessions as JSON documents in a single table.
type Store struct {
	db     *sql.DB
	opts   Options
	ownsDB bool
}

// Open connects to dsn ("file:/path/raaf.db" or a libsql:// URL), runs the
// migrations and returns a ready Store.
func Open(ctx context.Context, dsn string, optFns ...func(o *Options)) (*Store, error) {
	opts := defaultOptions(optFns...)

	connURL := dsn
	if !strings.HasPrefix(dsn, "file:") && opts.AuthToken != "" {
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid libsql url: %w", err)
		}
		q := u.Query()
		q.Set("authToken", opts.AuthToken)
		u.RawQuery = q.Encode()
		connURL = u.String()
	}

	db, err := sql.Open("libsql", connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	s, err := newStore(ctx, db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an existing connection. The caller keeps ownership of db.
func New(ctx context.Context, db *sql.DB, optFns ...func(o *Options)) (*Store, error) {
	return newStore(ctx, db, defaultOptions(optFns...))
}

func defaultOptions(optFns ...func(o *Options)) Options {
	opts := Options{Now: time.Now, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return opts
}

func newStore(ctx context.Context, db *sql.DB, opts Options) (*Store, error) {
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db, opts: opts}, nil
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectTurso, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

// Close releases the connection when the store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// Create inserts (or overwrites) an empty session with the given id.
func (s *Store) Create(ctx context.Context, id string) (*core.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty session id", core.ErrInvalidArgument)
	}
	sess := core.NewSession(id)
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// Get loads a live session; unknown or expired ids yield core.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, id string) (*core.Session, error) {
	var (
		data      string
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, expires_at FROM sessions WHERE id = ?`, id).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if expiresAt.Valid && !s.opts.Now().Before(time.Unix(0, expiresAt.Int64)) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND expires_at = ?`, id, expiresAt.Int64); err != nil {
			s.opts.Logger.Warn("session.evict.error", "session.id", id, "error", err.Error())
		}
		return nil, fmt.Errorf("%w: %s (expired)", core.ErrSessionNotFound, id)
	}

	sess := core.NewSession(id)
	if err := json.Unmarshal([]byte(data), sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	if sess.Vars == nil {
		sess.Vars = map[string]any{}
	}
	if sess.Messages == nil {
		sess.Messages = []core.Message{}
	}
	return sess, nil
}

// Save upserts sess and refreshes its TTL.
func (s *Store) Save(ctx context.Context, sess *core.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("%w: session without id", core.ErrInvalidArgument)
	}
	sess.Touch(s.opts.Now(), s.opts.TTL)
	snap := sess.Clone()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}
	var expiresAt sql.NullInt64
	if !snap.ExpiresAt.IsZero() {
		expiresAt = sql.NullInt64{Int64: snap.ExpiresAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		snap.ID, string(data), snap.Created.UnixNano(), snap.Updated.UnixNano(), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// PurgeExpired deletes every expired session and returns how many rows went.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.opts.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.opts.Logger.Info("session.purge", "count", n)
	}
	return n, nil
}

var (
	_ core.SessionStore = (*Store)(nil)
	_ session.Purger    = (*Store)(nil)
)
