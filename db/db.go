// Package db provides the optional Postgres journal of live sessions.
//
// The journal is write-only from the poller's point of view: it records when each
// tracked streamer was seen live and when the stream ended, but nothing is read
// back at startup.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/twitch-recorder/poller"
)

// Connect opens a Postgres connection pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	database.SetMaxOpenConns(4)
	database.SetConnMaxIdleTime(5 * time.Minute)
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return database, nil
}

// Migrate applies idempotent schema changes for the journal tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS live_sessions (
			id SERIAL PRIMARY KEY,
			login TEXT NOT NULL,
			stream_id TEXT NOT NULL,
			title TEXT,
			game_name TEXT,
			started_at TIMESTAMPTZ,
			first_seen_at TIMESTAMPTZ NOT NULL,
			last_seen_at TIMESTAMPTZ NOT NULL,
			peak_viewers INTEGER DEFAULT 0,
			ended_at TIMESTAMPTZ,
			UNIQUE (login, stream_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_live_sessions_open ON live_sessions(login) WHERE ended_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_live_sessions_started ON live_sessions(started_at)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// Journal is a live-action that records live sessions. It is safe to fire on
// every poll: repeated detections of the same stream update one row.
type Journal struct {
	DB  *sql.DB
	now func() time.Time
}

// NewJournal returns a Journal writing to database.
func NewJournal(database *sql.DB) *Journal {
	return &Journal{DB: database, now: time.Now}
}

// sessionID keys a session. Helix always sends a stream id; the start time is the
// fallback so repeated detections still land on one row.
func sessionID(ev poller.Event) string {
	if ev.Stream.ID != "" {
		return ev.Stream.ID
	}
	return fmt.Sprintf("live-%d", ev.Stream.StartedAt.Unix())
}

func (j *Journal) OnLive(ctx context.Context, ev poller.Event) error {
	var startedAt any
	if !ev.Stream.StartedAt.IsZero() {
		startedAt = ev.Stream.StartedAt.UTC()
	}
	seen := ev.DetectedAt
	if seen.IsZero() {
		seen = j.now()
	}
	_, err := j.DB.ExecContext(ctx, `INSERT INTO live_sessions (login, stream_id, title, game_name, started_at, first_seen_at, last_seen_at, peak_viewers)
		VALUES ($1,$2,$3,$4,$5,$6,$6,$7)
		ON CONFLICT (login, stream_id) DO UPDATE SET
			title=EXCLUDED.title,
			game_name=EXCLUDED.game_name,
			last_seen_at=EXCLUDED.last_seen_at,
			peak_viewers=GREATEST(live_sessions.peak_viewers, EXCLUDED.peak_viewers),
			ended_at=NULL`,
		ev.Login, sessionID(ev), ev.Stream.Title, ev.Stream.GameName, startedAt, seen.UTC(), ev.Stream.ViewerCount)
	if err != nil {
		return fmt.Errorf("journal live session for %s: %w", ev.Login, err)
	}
	return nil
}

func (j *Journal) OnOffline(ctx context.Context, login string, _ poller.Options) error {
	res, err := j.DB.ExecContext(ctx, `UPDATE live_sessions SET ended_at=$2 WHERE login=$1 AND ended_at IS NULL`, login, j.now().UTC())
	if err != nil {
		return fmt.Errorf("journal end session for %s: %w", login, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.Debug("journal: session closed", slog.String("login", login), slog.Int64("rows", n), slog.String("component", "db"))
	}
	return nil
}
