// Package history persists routing decisions so they can be reviewed and
// turned into evaluation datasets.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/apexion-ai/turnkit/internal/router"
)

const defaultListLimit = 20

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one persisted routing decision.
type Record struct {
	ID         string            `json:"id"`
	Input      string            `json:"input"`
	Capability router.Capability `json:"capability"`
	Confidence float64           `json:"confidence"`
	Tier       router.Tier       `json:"tier"`
	AgentID    string            `json:"agent_id"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Store abstracts decision persistence.
type Store interface {
	Add(ctx context.Context, input string, res router.RoutingResult) (*Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	// Search matches input text or capability by substring.
	Search(ctx context.Context, query string, limit int) ([]Record, error)
	Close() error
}

var _ Store = (*SQLiteStore)(nil)

// NullStore discards everything.
type NullStore struct{}

func (NullStore) Add(context.Context, string, router.RoutingResult) (*Record, error) { return nil, nil }
func (NullStore) List(context.Context, int) ([]Record, error)                       { return nil, nil }
func (NullStore) Search(context.Context, string, int) ([]Record, error)             { return nil, nil }
func (NullStore) Close() error                                                      { return nil }

const createDecisionsTableSQL = `
CREATE TABLE IF NOT EXISTS decisions (
    id         TEXT PRIMARY KEY,
    input      TEXT NOT NULL,
    capability TEXT NOT NULL,
    confidence REAL NOT NULL,
    tier       TEXT NOT NULL,
    agent_id   TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
`

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
	now    func() time.Time
}

// DefaultPath returns ~/.local/share/turnkit/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "turnkit", "history.db"), nil
}

// Open opens (creating if needed) the database file at path. ":memory:" is
// accepted for tests.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	// One connection: a ":memory:" database is per-connection.
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLiteStore creates a store using an existing connection. The
// decisions table is created if it doesn't exist. Close leaves db open.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(createDecisionsTableSQL); err != nil {
		return nil, fmt.Errorf("create decisions table: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Add(ctx context.Context, input string, res router.RoutingResult) (*Record, error) {
	r := &Record{
		ID:         uuid.NewString(),
		Input:      input,
		Capability: res.Capability,
		Confidence: res.Confidence,
		Tier:       res.Tier,
		AgentID:    res.AgentID,
		CreatedAt:  s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, input, capability, confidence, tier, agent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Input, string(r.Capability), r.Confidence, string(r.Tier), r.AgentID,
		r.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert decision: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, input, capability, confidence, tier, agent_id, created_at
		FROM decisions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, input, capability, confidence, tier, agent_id, created_at
		FROM decisions
		WHERE input LIKE ? OR capability LIKE ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search decisions: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var capability, tier, ts string
		if err := rows.Scan(&r.ID, &r.Input, &capability, &r.Confidence, &tier, &r.AgentID, &ts); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		r.Capability = router.Capability(capability)
		r.Tier = router.Tier(tier)
		createdAt, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("decision %s: parse created_at: %w", r.ID, err)
		}
		r.CreatedAt = createdAt
		records = append(records, r)
	}
	return records, rows.Err()
}

// ToDataset turns records into evaluation cases labeled with the recorded
// outcome, oldest first. The result is a regression baseline: replaying it
// flags any decision that changed.
func ToDataset(version string, records []Record) *router.EvalDataset {
	ds := &router.EvalDataset{Version: version, Cases: make([]router.EvalCase, 0, len(records))}
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		ds.Cases = append(ds.Cases, router.EvalCase{
			ID:                 r.ID,
			Input:              r.Input,
			ExpectedCapability: r.Capability,
			ExpectedTier:       r.Tier,
			ExpectedAgent:      r.AgentID,
		})
	}
	return ds
}
