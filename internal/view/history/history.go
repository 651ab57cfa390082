// Package history persists viewing sessions to sqlite: cache transitions and
// periodic stats samples, keyed by session. Useful for diagnosing cache
// thrash after the fact without keeping the viewer open.
package history

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/lidarview/internal/view"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the sqlite session history database.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the history database at path and runs any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	store := &Store{db}
	if err := store.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Note: we don't close m because it would close the underlying DB
	// connection.
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Session is one viewing session recorded in the store.
type Session struct {
	SessionID string     `json:"session_id"`
	SensorID  string     `json:"sensor_id"`
	Source    string     `json:"source"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// BeginSession creates a new session row and returns its ID.
func (s *Store) BeginSession(sensorID, source string) (string, error) {
	sessionID := uuid.New().String()
	_, err := s.Exec(
		`INSERT INTO sessions (session_id, sensor_id, source) VALUES (?, ?, ?)`,
		sessionID, sensorID, source,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return sessionID, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(sessionID string) error {
	_, err := s.Exec(
		`UPDATE sessions SET ended_at = CURRENT_TIMESTAMP WHERE session_id = ?`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// RecordEvent stores a cache transition for the session.
func (s *Store) RecordEvent(sessionID string, ev view.CacheEvent) error {
	_, err := s.Exec(
		`INSERT INTO cache_events (session_id, kind, sequence_number, point_count, frame_timestamp_ns)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, ev.Kind.String(), int64(ev.SequenceNumber), ev.PointCount, ev.TimestampNanos,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cache event: %w", err)
	}
	return nil
}

// RecordStats stores a stats sample for the session.
func (s *Store) RecordStats(sessionID string, stats view.CompositeStats, buf view.BufferStats, state view.CacheState) error {
	_, err := s.Exec(
		`INSERT INTO stats_samples
		 (session_id, background_points, foreground_points, total_points,
		  bg_capacity, bg_used, fg_capacity, fg_used, cache_state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, stats.Background, stats.Foreground, stats.Total,
		buf.BgCapacity, buf.BgUsed, buf.FgCapacity, buf.FgUsed, state.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert stats sample: %w", err)
	}
	return nil
}

// ListSessions returns sessions newest first, up to limit (0 = all).
func (s *Store) ListSessions(limit int) ([]Session, error) {
	query := `SELECT session_id, sensor_id, source, started_at, ended_at
	          FROM sessions ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var ended sql.NullTime
		if err := rows.Scan(&sess.SessionID, &sess.SensorID, &sess.Source, &sess.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// EventRecord is a stored cache transition.
type EventRecord struct {
	Kind             string    `json:"kind"`
	SequenceNumber   uint64    `json:"sequence_number"`
	PointCount       int       `json:"point_count"`
	FrameTimestampNs int64     `json:"frame_timestamp_ns"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// SessionEvents returns the cache transitions for a session in insert order.
func (s *Store) SessionEvents(sessionID string) ([]EventRecord, error) {
	rows, err := s.Query(
		`SELECT kind, sequence_number, point_count, frame_timestamp_ns, recorded_at
		 FROM cache_events WHERE session_id = ? ORDER BY event_id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var ev EventRecord
		var seq int64
		if err := rows.Scan(&ev.Kind, &seq, &ev.PointCount, &ev.FrameTimestampNs, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache event: %w", err)
		}
		ev.SequenceNumber = uint64(seq)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountEvents returns the number of stored events of the given kind for a
// session ("" counts all kinds).
func (s *Store) CountEvents(sessionID, kind string) (int, error) {
	var count int
	var err error
	if kind == "" {
		err = s.QueryRow(
			`SELECT COUNT(*) FROM cache_events WHERE session_id = ?`, sessionID,
		).Scan(&count)
	} else {
		err = s.QueryRow(
			`SELECT COUNT(*) FROM cache_events WHERE session_id = ? AND kind = ?`, sessionID, kind,
		).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count cache events: %w", err)
	}
	return count, nil
}
