// Package ledger is the system of record for token balances, subscription
// tiers and usage transactions, stored in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("ledger: record not found")

type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Paid reports whether the tier is a paying one.
func (t Tier) Paid() bool {
	return t != "" && t != TierFree
}

func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, nil
	case TierPro:
		return TierPro, nil
	case TierEnterprise:
		return TierEnterprise, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

const (
	KindUsage = "usage"
	KindGrant = "grant"
)

// Transaction is one audit record. Usage entries carry a negative amount.
type Transaction struct {
	ID        string
	UserID    string
	Amount    int64
	Kind      string
	Provider  string
	Model     string
	CreatedAt time.Time
}

// Defaults are the opening balances of new accounts.
type Defaults struct {
	FreeTokens int64
	PaidTokens int64
}

// For returns the opening balance for tier.
func (d Defaults) For(t Tier) int64 {
	if t.Paid() {
		return d.PaidTokens
	}
	return d.FreeTokens
}

type Store struct {
	DBPath   string
	db       *sql.DB
	defaults Defaults
	now      func() time.Time
}

// Open opens or creates the ledger database at path.
func Open(path string, defaults Defaults) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve ledger path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// One connection serialises writers; balance updates rely on it.
	db.SetMaxOpenConns(1)

	s := &Store{DBPath: absPath, db: db, defaults: defaults, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS token_balances (
	user_id TEXT PRIMARY KEY,
	balance INTEGER NOT NULL CHECK (balance >= 0),
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_plans (
	user_id TEXT PRIMARY KEY,
	tier TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS token_transactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	amount INTEGER NOT NULL,
	kind TEXT NOT NULL,
	provider TEXT,
	model TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tx_user_created ON token_transactions(user_id, created_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

func (s *Store) stamp() int64 {
	return s.now().UTC().UnixMilli()
}

// GetOrCreateBalance returns the user's balance, opening an account with the
// tier default when none exists.
func (s *Store) GetOrCreateBalance(ctx context.Context, userID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx, "SELECT balance FROM token_balances WHERE user_id = ?", userID).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read balance: %w", err)
	}

	tier, err := readPlan(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	balance = s.defaults.For(tier)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO token_balances (user_id, balance, updated_at) VALUES (?, ?, ?)",
		userID, balance, s.stamp()); err != nil {
		return 0, fmt.Errorf("create balance: %w", err)
	}
	if err := insertTx(ctx, tx, userID, balance, KindGrant, "", "", s.stamp()); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

// ReadBalance returns ErrNotFound when the user has no account.
func (s *Store) ReadBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, "SELECT balance FROM token_balances WHERE user_id = ?", userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// Deduct removes tokens and records a usage transaction in one database
// transaction. The balance is clamped at zero; the usage record always carries
// the full amount so monthly totals see every exchange.
func (s *Store) Deduct(ctx context.Context, userID string, tokens int64, provider, model string) (int64, error) {
	if tokens < 0 {
		return 0, fmt.Errorf("deduct: negative amount %d", tokens)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE token_balances SET balance = MAX(balance - ?, 0), updated_at = ? WHERE user_id = ?",
		tokens, s.stamp(), userID)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	if err := insertTx(ctx, tx, userID, -tokens, KindUsage, provider, model, s.stamp()); err != nil {
		return 0, err
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, "SELECT balance FROM token_balances WHERE user_id = ?", userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

// Grant credits tokens, creating the account if needed.
func (s *Store) Grant(ctx context.Context, userID string, tokens int64) (int64, error) {
	if tokens <= 0 {
		return 0, fmt.Errorf("grant: amount must be positive, got %d", tokens)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO token_balances (user_id, balance, updated_at) VALUES (?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET balance = balance + excluded.balance, updated_at = excluded.updated_at`,
		userID, tokens, s.stamp()); err != nil {
		return 0, fmt.Errorf("grant balance: %w", err)
	}
	if err := insertTx(ctx, tx, userID, tokens, KindGrant, "", "", s.stamp()); err != nil {
		return 0, err
	}
	var balance int64
	if err := tx.QueryRowContext(ctx, "SELECT balance FROM token_balances WHERE user_id = ?", userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

// ReadPlan returns the user's tier; users without a plan are on the free tier.
func (s *Store) ReadPlan(ctx context.Context, userID string) (Tier, error) {
	return readPlan(ctx, s.db, userID)
}

func (s *Store) SetPlan(ctx context.Context, userID string, tier Tier) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO user_plans (user_id, tier) VALUES (?, ?)
ON CONFLICT(user_id) DO UPDATE SET tier = excluded.tier`, userID, string(tier))
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}

// ReadMonthlyUsage returns usage transactions created at or after since.
func (s *Store) ReadMonthlyUsage(ctx context.Context, userID string, since time.Time) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, amount, kind, COALESCE(provider, ''), COALESCE(model, ''), created_at
FROM token_transactions
WHERE user_id = ? AND kind = ? AND created_at >= ?
ORDER BY created_at`, userID, KindUsage, since.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var created int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.Provider, &t.Model, &created); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		t.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readPlan(ctx context.Context, q querier, userID string) (Tier, error) {
	var tier string
	err := q.QueryRowContext(ctx, "SELECT tier FROM user_plans WHERE user_id = ?", userID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("read plan: %w", err)
	}
	return Tier(tier), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTx(ctx context.Context, e execer, userID string, amount int64, kind, provider, model string, at int64) error {
	_, err := e.ExecContext(ctx, `
INSERT INTO token_transactions (id, user_id, amount, kind, provider, model, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`, uuid.NewString(), userID, amount, kind, provider, model, at)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}
