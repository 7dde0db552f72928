// Package store persists request, modmail and routing-audit state in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Request is a user request forwarded from a request channel.
type Request struct {
	ID                string
	MessageID         string
	ChannelID         string
	AuthorID          string
	InternalChannelID string
	InternalMessageID string
	Tickets           []string
	CreatedAt         time.Time
}

// ProgressNote is an internal update posted on a request.
type ProgressNote struct {
	RequestID string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

// RouteEntry is one routing decision recorded for auditing.
type RouteEntry struct {
	ID         string
	MessageID  string
	ChannelID  string
	AuthorID   string
	Outcome    string // routed | suppressed | failed
	Category   string
	Detail     string // suppress reason or error text
	DurationMS int64
	CreatedAt  time.Time
}

// SQLiteStore is the SQLite-backed store.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- requests ---

// CreateRequest stores req, assigning an ID and creation time when unset.
func (s *SQLiteStore) CreateRequest(ctx context.Context, req Request) (Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (id, message_id, channel_id, author_id, internal_channel_id, internal_message_id, tickets, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.MessageID, req.ChannelID, req.AuthorID, req.InternalChannelID, req.InternalMessageID,
		strings.Join(req.Tickets, ","), req.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return Request{}, fmt.Errorf("insert request: %w", err)
	}
	return req, nil
}

// CountRequestsSince counts requests authorID made in channelID at or after since.
func (s *SQLiteStore) CountRequestsSince(ctx context.Context, channelID, authorID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests WHERE channel_id = ? AND author_id = ? AND created_at >= ?`,
		channelID, authorID, since.UnixMilli(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// RequestByInternalMessage finds the request that was forwarded as internalMessageID.
func (s *SQLiteStore) RequestByInternalMessage(ctx context.Context, internalMessageID string) (*Request, error) {
	var (
		req     Request
		tickets string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, channel_id, author_id, internal_channel_id, internal_message_id, tickets, created_at
		 FROM requests WHERE internal_message_id = ? LIMIT 1`, internalMessageID,
	).Scan(&req.ID, &req.MessageID, &req.ChannelID, &req.AuthorID, &req.InternalChannelID, &req.InternalMessageID, &tickets, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}
	if tickets != "" {
		req.Tickets = strings.Split(tickets, ",")
	}
	req.CreatedAt = time.UnixMilli(created)
	return &req, nil
}

// AddProgressNote appends a progress note to a request.
func (s *SQLiteStore) AddProgressNote(ctx context.Context, note ProgressNote) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress_notes (request_id, author_id, content, created_at) VALUES (?, ?, ?, ?)`,
		note.RequestID, note.AuthorID, note.Content, note.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert progress note: %w", err)
	}
	return nil
}

// ProgressNotes returns the notes of a request, oldest first.
func (s *SQLiteStore) ProgressNotes(ctx context.Context, requestID string) ([]ProgressNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, author_id, content, created_at FROM progress_notes WHERE request_id = ? ORDER BY created_at, id`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("query progress notes: %w", err)
	}
	defer rows.Close()

	var notes []ProgressNote
	for rows.Next() {
		var n ProgressNote
		var created int64
		if err := rows.Scan(&n.RequestID, &n.AuthorID, &n.Content, &created); err != nil {
			return nil, err
		}
		n.CreatedAt = time.UnixMilli(created)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// --- modmail ---

func (s *SQLiteStore) ModmailThreadForUser(ctx context.Context, userID string) (string, error) {
	var threadID string
	err := s.db.QueryRowContext(ctx, `SELECT thread_id FROM modmail_threads WHERE user_id = ?`, userID).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query modmail thread: %w", err)
	}
	return threadID, nil
}

func (s *SQLiteStore) ModmailUserForThread(ctx context.Context, threadID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM modmail_threads WHERE thread_id = ?`, threadID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query modmail user: %w", err)
	}
	return userID, nil
}

// SaveModmailThread links userID to threadID, replacing any previous thread.
func (s *SQLiteStore) SaveModmailThread(ctx context.Context, userID, threadID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO modmail_threads (user_id, thread_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET thread_id = excluded.thread_id, created_at = excluded.created_at`,
		userID, threadID, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save modmail thread: %w", err)
	}
	return nil
}

// --- route log ---

func (s *SQLiteStore) RecordRoute(ctx context.Context, e RouteEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO route_log (id, message_id, channel_id, author_id, outcome, category, detail, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MessageID, e.ChannelID, e.AuthorID, e.Outcome, e.Category, e.Detail, e.DurationMS, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert route entry: %w", err)
	}
	return nil
}

// RecentRoutes returns up to limit routing decisions, newest first.
func (s *SQLiteStore) RecentRoutes(ctx context.Context, limit int) ([]RouteEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, channel_id, author_id, outcome, category, detail, duration_ms, created_at
		 FROM route_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query route log: %w", err)
	}
	defer rows.Close()

	var entries []RouteEntry
	for rows.Next() {
		var e RouteEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.MessageID, &e.ChannelID, &e.AuthorID, &e.Outcome, &e.Category, &e.Detail, &e.DurationMS, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SchemaVersion reports the applied schema version.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	return GetSchemaVersion(s.db)
}
