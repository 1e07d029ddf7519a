package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

// Event is one entry in an item's narration history.
type Event struct {
	ID        int64
	ItemID    string
	Language  string
	Type      string
	Detail    string
	CreatedAt time.Time
}

// Narration summarizes one narrated message.
type Narration struct {
	ItemID    string
	Language  string
	From      string
	Subject   string
	Degraded  bool
	CreatedAt time.Time
}

// Store wraps a SQLite-backed narration history.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS narrations (
    item_id TEXT NOT NULL,
    language TEXT NOT NULL,
    from_addr TEXT,
    subject TEXT,
    degraded INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (item_id, language)
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id TEXT NOT NULL,
    language TEXT,
    event_type TEXT NOT NULL,
    detail TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_item_created ON events(item_id, created_at);
CREATE INDEX IF NOT EXISTS idx_narrations_created ON narrations(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendNarration upserts the narration row for an item and language.
func (s *Store) AppendNarration(ctx context.Context, n Narration) error {
	if s.disabled() {
		return nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO narrations(item_id, language, from_addr, subject, degraded, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(item_id, language) DO UPDATE SET
		   from_addr=excluded.from_addr, subject=excluded.subject,
		   degraded=excluded.degraded, created_at=excluded.created_at`,
		n.ItemID, n.Language, n.From, n.Subject, n.Degraded, n.CreatedAt.UnixNano())
	return err
}

// AppendEvent writes an event into the store.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.disabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(item_id, language, event_type, detail, created_at) VALUES(?, ?, ?, ?, ?)`,
		evt.ItemID, evt.Language, evt.Type, evt.Detail, evt.CreatedAt.UnixNano())
	return err
}

// Record appends an event; it lets the store observe the audio cache.
func (s *Store) Record(ctx context.Context, itemID, language, kind, detail string) error {
	return s.AppendEvent(ctx, Event{ItemID: itemID, Language: language, Type: kind, Detail: detail})
}

// ListItemEvents retrieves up to limit events for an item ordered ascending by time.
func (s *Store) ListItemEvents(ctx context.Context, itemID string, limit int) ([]Event, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, language, event_type, detail, created_at
		 FROM events WHERE item_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			lang    sql.NullString
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.ItemID, &lang, &e.Type, &detail, &created); err != nil {
			return nil, err
		}
		e.Language, e.Detail = lang.String, detail.String
		e.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentNarrations lists the latest narrations, newest first.
func (s *Store) RecentNarrations(ctx context.Context, limit int) ([]Narration, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, language, from_addr, subject, degraded, created_at
		 FROM narrations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Narration
	for rows.Next() {
		var (
			n             Narration
			from, subject sql.NullString
			created       int64
		)
		if err := rows.Scan(&n.ItemID, &n.Language, &from, &subject, &n.Degraded, &created); err != nil {
			return nil, err
		}
		n.From, n.Subject = from.String, subject.String
		n.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	if s.cfg.RetentionMode != "persistent" && s.cfg.RetentionMode != "session" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UnixNano()
		if _, err = tx.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM narrations WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxEvents > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM events WHERE id IN (
			SELECT id FROM events ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxEvents)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Ensure supplies a no-op store when persistence disabled.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}
