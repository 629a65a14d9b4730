package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/neotutor/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers; the chat view and the mirror share it.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(strings.TrimPrefix(pragma, "PRAGMA ")), err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func newULID() string { return models.NewID() }

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Mirror ---

func (s *SQLiteStore) GetMirror(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM mirror WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get mirror %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetMirror(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mirror (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set mirror %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteMirror(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		args[i] = k
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM mirror WHERE key IN ("+strings.Join(placeholders, ",")+")", args...)
	if err != nil {
		return fmt.Errorf("delete mirror: %w", err)
	}
	return nil
}

// --- Cookies ---

// SaveCookies records cookies as set by the server for rawURL. A cookie with
// a negative MaxAge or an expiry in the past removes the stored entry.
func (s *SQLiteStore) SaveCookies(ctx context.Context, rawURL string, cookies []*http.Cookie) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save cookies: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, c := range cookies {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			if _, err := tx.ExecContext(ctx, "DELETE FROM cookies WHERE url = ? AND name = ?", rawURL, c.Name); err != nil {
				return fmt.Errorf("delete cookie %s: %w", c.Name, err)
			}
			continue
		}

		var expires sql.NullTime
		switch {
		case c.MaxAge > 0:
			expires = sql.NullTime{Time: now.Add(time.Duration(c.MaxAge) * time.Second).UTC(), Valid: true}
		case !c.Expires.IsZero():
			expires = sql.NullTime{Time: c.Expires.UTC(), Valid: true}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO cookies (url, name, value, path, domain, expires, secure, http_only)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(url, name) DO UPDATE SET value = excluded.value, path = excluded.path,
				domain = excluded.domain, expires = excluded.expires, secure = excluded.secure,
				http_only = excluded.http_only`,
			rawURL, c.Name, c.Value, c.Path, c.Domain, expires, boolToInt(c.Secure), boolToInt(c.HttpOnly),
		)
		if err != nil {
			return fmt.Errorf("save cookie %s: %w", c.Name, err)
		}
	}
	return tx.Commit()
}

// LoadCookies returns unexpired stored cookies grouped by the URL they were set for.
func (s *SQLiteStore) LoadCookies(ctx context.Context) (map[string][]*http.Cookie, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT url, name, value, path, domain, expires, secure, http_only FROM cookies ORDER BY url, name")
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	now := time.Now()
	out := make(map[string][]*http.Cookie)
	for rows.Next() {
		var (
			rawURL   string
			c        http.Cookie
			expires  sql.NullTime
			secure   bool
			httpOnly bool
		)
		if err := rows.Scan(&rawURL, &c.Name, &c.Value, &c.Path, &c.Domain, &expires, &secure, &httpOnly); err != nil {
			return nil, fmt.Errorf("scan cookie: %w", err)
		}
		if expires.Valid {
			if expires.Time.Before(now) {
				continue
			}
			c.Expires = expires.Time
		}
		c.Secure = secure
		c.HttpOnly = httpOnly
		out[rawURL] = append(out[rawURL], &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ClearCookies(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cookies"); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return nil
}

// --- Transcripts ---

func (s *SQLiteStore) CreateTranscript(ctx context.Context, t *models.Transcript) error {
	if t.ID == "" {
		t.ID = newULID()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, channel, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Channel, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	return nil
}

const transcriptColumns = `t.id, t.channel, t.created_at, t.updated_at,
	(SELECT COUNT(*) FROM messages m WHERE m.transcript_id = t.id)`

func (s *SQLiteStore) GetTranscript(ctx context.Context, id string) (*models.Transcript, error) {
	t := &models.Transcript{}
	err := s.db.QueryRowContext(ctx,
		"SELECT "+transcriptColumns+" FROM transcripts t WHERE t.id = ?", id,
	).Scan(&t.ID, &t.Channel, &t.CreatedAt, &t.UpdatedAt, &t.MessageCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transcript %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTranscripts(ctx context.Context, limit int) ([]*models.Transcript, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+transcriptColumns+" FROM transcripts t ORDER BY t.updated_at DESC, t.id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Transcript
	for rows.Next() {
		t := &models.Transcript{}
		if err := rows.Scan(&t.ID, &t.Channel, &t.CreatedAt, &t.UpdatedAt, &t.MessageCount); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteTranscript(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM transcripts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("transcript %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendMessage stores m at the end of the transcript. Messages keep the
// order in which they were appended.
func (s *SQLiteStore) AppendMessage(ctx context.Context, transcriptID string, m *models.Message) error {
	if m.ID == "" {
		m.ID = newULID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var citation sql.NullString
	if m.Citation != nil {
		data, err := json.Marshal(m.Citation)
		if err != nil {
			return fmt.Errorf("marshal citation: %w", err)
		}
		citation = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, transcript_id, seq, sender, text, citation, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE transcript_id = ?), ?, ?, ?, ?)`,
		m.ID, transcriptID, transcriptID, string(m.Sender), m.Text, citation, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	result, err := tx.ExecContext(ctx, "UPDATE transcripts SET updated_at = ? WHERE id = ?", time.Now().UTC(), transcriptID)
	if err != nil {
		return fmt.Errorf("touch transcript: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("transcript %s: %w", transcriptID, ErrNotFound)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListMessages(ctx context.Context, transcriptID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, text, citation, created_at FROM messages
		WHERE transcript_id = ? ORDER BY seq`, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Message
	for rows.Next() {
		m := &models.Message{}
		var sender string
		var citation sql.NullString
		if err := rows.Scan(&m.ID, &sender, &m.Text, &citation, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = models.Sender(sender)
		if citation.Valid {
			var c models.VideoCitation
			if err := json.Unmarshal([]byte(citation.String), &c); err != nil {
				return nil, fmt.Errorf("parse citation for message %s: %w", m.ID, err)
			}
			m.Citation = &c
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
