// Package monitoring - tracker.go records events to a JSONL file.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per
// line). Events are appended immediately after each event for real-time
// inspection; the file handle is reopened per write so external rotation is
// safe.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/relaycore/inference-gateway/internal/redact"
)

// Tracker is a JSONL-backed Sink.
type Tracker struct {
	path string
	mu   sync.Mutex
}

// NewTracker creates a JSONL tracker writing to path, creating parent
// directories as needed.
func NewTracker(path string) (*Tracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if f, err := os.Create(path); err == nil {
			_ = f.Close()
		}
	}
	return &Tracker{path: path}, nil
}

// Record implements Sink.
func (t *Tracker) Record(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal telemetry event")
		return
	}
	data = append(redact.Scrub(data), '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		log.Error().Err(err).Str("path", t.path).Msg("failed to open telemetry log")
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(data); err != nil {
		log.Error().Err(err).Str("path", t.path).Msg("failed to append telemetry event")
	}
}
