// Package monitoring - sqlite.go persists lifecycle events to SQLite for
// queryable history (per-backend failure rates, latency percentiles).
package monitoring

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS gateway_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	type         TEXT    NOT NULL,
	timestamp    TEXT    NOT NULL,
	request_id   TEXT    NOT NULL,
	backend_id   TEXT,
	model        TEXT,
	dialect      TEXT,
	attempt      INTEGER,
	latency_ms   INTEGER,
	error_kind   TEXT,
	error_msg    TEXT,
	input_tokens  INTEGER,
	output_tokens INTEGER,
	total_tokens  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_gateway_events_request ON gateway_events(request_id);
CREATE INDEX IF NOT EXISTS idx_gateway_events_backend ON gateway_events(backend_id, type);
`

// SQLiteSink records events into a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if necessary) the database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer; SQLite handles its own locking.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

// Record implements Sink.
func (s *SQLiteSink) Record(ev Event) {
	_, err := s.db.Exec(`INSERT INTO gateway_events
		(type, timestamp, request_id, backend_id, model, dialect, attempt,
		 latency_ms, error_kind, error_msg, input_tokens, output_tokens, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Type), ev.Timestamp.Format(time.RFC3339Nano), ev.RequestID,
		ev.BackendID, ev.Model, ev.Dialect, ev.Attempt, ev.Latency.Milliseconds(),
		ev.ErrorKind, ev.ErrorMsg, ev.InputTokens, ev.OutputTokens, ev.TotalTokens)
	if err != nil {
		log.Error().Err(err).Msg("failed to insert telemetry event")
	}
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error { return s.db.Close() }
