// File: internal/infra/diagnostics/log.go
package diagnostics

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Entry is one labelled request outcome.
type Entry struct {
	Label   string          `json:"label"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Log is a bounded, append-only ring of recent backend outcomes.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	now      func() time.Time
	logger   *zerolog.Logger
}

var _ adapter.Diagnostics = (*Log)(nil)

func New(capacity int, logger *zerolog.Logger) *Log {
	if capacity <= 0 {
		capacity = 100
	}
	return &Log{
		capacity: capacity,
		now:      time.Now,
		logger:   logging.OrNop(logger),
	}
}

// Record appends an entry, evicting the oldest one when full.
func (l *Log) Record(label string, payload any, err error) {
	e := Entry{Label: label, At: l.now(), Payload: encode(payload)}
	if err != nil {
		e.Error = err.Error()
	}

	l.mu.Lock()
	if len(l.entries) >= l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	ev := l.logger.Debug()
	if err != nil {
		ev = l.logger.Warn().Err(err)
	}
	ev.Str("label", label).Msg("diagnostics: recorded")
}

// Entries returns a copy, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Latest returns the newest entry recorded under label.
func (l *Log) Latest(label string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Label == label {
			return l.entries[i], true
		}
	}
	return Entry{}, false
}

func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

func encode(payload any) json.RawMessage {
	switch v := payload.(type) {
	case nil:
		return nil
	case json.RawMessage:
		if json.Valid(v) {
			return v
		}
	case []byte:
		if json.Valid(v) {
			return json.RawMessage(v)
		}
		payload = string(v)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		b, _ = json.Marshal(fmt.Sprintf("%v", payload))
	}
	return b
}
