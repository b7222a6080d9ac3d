package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	"tripartite/core/events"
	"tripartite/core/types"
	"tripartite/observability/metrics"
)

// ErrPathRequired is returned when no database path was configured.
var ErrPathRequired = errors.New("eventlog: path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS events (
    sequence INTEGER PRIMARY KEY AUTOINCREMENT,
    uid TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    agreement_id INTEGER,
    payload TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_agreement ON events(agreement_id, sequence);
`

// Record is a persisted event.
type Record struct {
	Sequence    int64             `json:"sequence"`
	UID         string            `json:"uid"`
	Type        string            `json:"type"`
	AgreementID *uint64           `json:"agreementId,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Log is an append-only event journal backed by SQLite. It implements
// events.Emitter so it can be plugged into the engine directly.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu       sync.Mutex
	failures uint64
}

// Open creates or opens the journal at path. Use ":memory:" for an
// ephemeral journal.
func Open(path string, logger *slog.Logger) (*Log, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply event log schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{db: db, logger: logger, nowFn: time.Now}, nil
}

// Close releases database resources.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// SetNowFunc overrides the timestamp source used for new records.
func (l *Log) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.nowFn = now
}

// Append persists evt and returns the stored record.
func (l *Log) Append(ctx context.Context, evt *types.Event) (*Record, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("eventlog: not open")
	}
	if evt == nil || evt.Type == "" {
		return nil, fmt.Errorf("eventlog: event type required")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	rec := &Record{
		UID:        uuid.NewString(),
		Type:       evt.Type,
		Attributes: attrs,
		CreatedAt:  l.nowFn().UTC(),
	}
	var agreement sql.NullInt64
	if raw, ok := attrs["id"]; ok {
		id, err := strconv.ParseUint(raw, 10, 63)
		if err == nil {
			agreement = sql.NullInt64{Int64: int64(id), Valid: true}
			rec.AgreementID = &id
		}
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO events(uid, type, agreement_id, payload, created_at) VALUES(?, ?, ?, ?, ?)`,
		rec.UID, rec.Type, agreement, string(payload), rec.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("event sequence: %w", err)
	}
	rec.Sequence = seq
	return rec, nil
}

// Emit implements events.Emitter. Persistence failures are logged and
// counted; they never propagate into the emitting operation.
func (l *Log) Emit(evt events.Event) {
	payload := events.Payload(evt)
	if payload == nil {
		return
	}
	if _, err := l.Append(context.Background(), payload); err != nil {
		l.mu.Lock()
		l.failures++
		l.mu.Unlock()
		metrics.Arbitration().RecordEventLogFailure()
		l.logger.Error("persist event failed", slog.String("type", payload.Type), slog.Any("error", err))
	}
}

// Failures returns how many emitted events could not be persisted since the
// log was opened. The health endpoint reports it.
func (l *Log) Failures() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// ByAgreement returns the events of one agreement in emission order.
func (l *Log) ByAgreement(ctx context.Context, id uint64) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT sequence, uid, type, agreement_id, payload, created_at FROM events WHERE agreement_id = ? ORDER BY sequence`,
		int64(id))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanRecords(rows)
}

// Since returns up to limit events with a sequence greater than after.
func (l *Log) Since(ctx context.Context, after int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT sequence, uid, type, agreement_id, payload, created_at FROM events WHERE sequence > ? ORDER BY sequence LIMIT ?`,
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			rec       Record
			agreement sql.NullInt64
			payload   string
			created   int64
		)
		if err := rows.Scan(&rec.Sequence, &rec.UID, &rec.Type, &agreement, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if agreement.Valid {
			id := uint64(agreement.Int64)
			rec.AgreementID = &id
		}
		if err := json.Unmarshal([]byte(payload), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", rec.Sequence, err)
		}
		rec.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
