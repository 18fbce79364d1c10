package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

var ErrPlanNotFound = errors.New("plan not found")

// Store is the local log of prepared plans. Writes are serialised across
// processes with a file lock.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create plan store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create plan lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open plan sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS plans (
			plan_id TEXT PRIMARY KEY,
			intent TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			from_address TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_plans_intent_created ON plans(intent, created_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init plan schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, plan Plan) error {
	if strings.TrimSpace(plan.PlanID) == "" {
		return fmt.Errorf("save plan: missing plan id")
	}
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock plan store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock plan store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	created, err := time.Parse(time.RFC3339, plan.CreatedAt)
	if err != nil {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (plan_id, intent, chain_id, from_address, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			intent=excluded.intent,
			chain_id=excluded.chain_id,
			from_address=excluded.from_address,
			payload=excluded.payload
	`, plan.PlanID, plan.Intent, plan.ChainID, strings.ToLower(plan.From), created.UTC().Unix(), payload)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, planID string) (Plan, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM plans WHERE plan_id = ?", planID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
		}
		return Plan{}, fmt.Errorf("read plan: %w", err)
	}
	var plan Plan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return Plan{}, fmt.Errorf("decode plan payload: %w", err)
	}
	return plan, nil
}

// List returns the newest plans first, optionally filtered by intent.
func (s *Store) List(ctx context.Context, intent string, limit int) ([]Plan, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(intent) == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT payload FROM plans ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT payload FROM plans WHERE intent = ? ORDER BY created_at DESC, rowid DESC LIMIT ?", intent, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	plans := make([]Plan, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan plan row: %w", err)
		}
		var plan Plan
		if err := json.Unmarshal(payload, &plan); err != nil {
			return nil, fmt.Errorf("decode plan row: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan rows: %w", err)
	}
	return plans, nil
}
