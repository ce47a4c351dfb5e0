// Package quota gates model calls on a user's token balance and monthly
// allowance, and meters completed exchanges against the ledger.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"workforce/internal/ledger"
	"workforce/internal/logger"
)

// Ledger is the subset of the token ledger the guard depends on.
type Ledger interface {
	GetOrCreateBalance(ctx context.Context, userID string) (int64, error)
	ReadBalance(ctx context.Context, userID string) (int64, error)
	Deduct(ctx context.Context, userID string, tokens int64, provider, model string) (int64, error)
	ReadPlan(ctx context.Context, userID string) (ledger.Tier, error)
	ReadMonthlyUsage(ctx context.Context, userID string, since time.Time) ([]ledger.Transaction, error)
}

// TierDefaults are the fallback pools and the free monthly cap.
type TierDefaults struct {
	FreeTokens       int64
	PaidTokens       int64
	FreeMonthlyLimit int64
}

// Unlimited is the allowance limit reported for paid tiers.
const Unlimited int64 = math.MaxInt64

// Usage is what one completed exchange cost.
type Usage struct {
	Tokens   int64
	Provider string
	Model    string
}

type DeductResult struct {
	Success    bool
	NewBalance int64
	Error      string
}

type Check struct {
	Allowed bool
	Reason  string
}

type Allowance struct {
	Allowed   bool
	Used      int64
	Limit     int64
	Remaining int64
}

// Guard holds no state of its own; every call re-reads the ledger.
type Guard struct {
	ledger   Ledger
	defaults TierDefaults
	now      func() time.Time
}

func NewGuard(l Ledger, defaults TierDefaults) *Guard {
	return &Guard{ledger: l, defaults: defaults, now: time.Now}
}

// EstimateTokensForRequest rounds input up to whole tokens at four characters
// each and assumes twice as many output tokens.
func EstimateTokensForRequest(messageLength, historyLength int) int64 {
	chars := int64(messageLength) + int64(historyLength)
	if chars <= 0 {
		return 0
	}
	input := (chars + 3) / 4
	return input + 2*input
}

// GetUserTokenBalance returns nil when the balance cannot be established.
// Tier defaults are only used when the account is known not to exist.
func (g *Guard) GetUserTokenBalance(ctx context.Context, userID string) *int64 {
	log := logger.Log.With("user", userID)

	balance, err := g.ledger.GetOrCreateBalance(ctx, userID)
	if err == nil {
		return clamp(balance)
	}
	log.Warn("get-or-create balance failed, reading directly", "err", err)

	balance, err = g.ledger.ReadBalance(ctx, userID)
	switch {
	case err == nil:
		return clamp(balance)
	case !errors.Is(err, ledger.ErrNotFound):
		log.Error("balance read failed, denying", "err", err)
		return nil
	}

	tier, err := g.ledger.ReadPlan(ctx, userID)
	if err != nil {
		log.Error("plan read failed, denying", "err", err)
		return nil
	}
	def := g.defaults.FreeTokens
	if tier.Paid() {
		def = g.defaults.PaidTokens
	}
	log.Info("no balance record, using tier default", "tier", tier, "tokens", def)
	return clamp(def)
}

func clamp(v int64) *int64 {
	if v < 0 {
		v = 0
	}
	return &v
}

func (g *Guard) CheckTokenSufficiency(ctx context.Context, userID string, estimated int64) Check {
	balance := g.GetUserTokenBalance(ctx, userID)
	if balance == nil {
		return Check{Reason: "Failed to fetch token balance. Please try again later."}
	}
	if *balance < estimated {
		return Check{Reason: fmt.Sprintf("Insufficient tokens: need %d, have %d (short by %d).",
			estimated, *balance, estimated-*balance)}
	}
	return Check{Allowed: true}
}

// DeductTokens calls the ledger exactly once and never returns an error.
func (g *Guard) DeductTokens(ctx context.Context, userID string, usage Usage) DeductResult {
	balance, err := g.ledger.Deduct(ctx, userID, usage.Tokens, usage.Provider, usage.Model)
	if err != nil {
		logger.Log.Warn("token deduction failed", "user", userID, "tokens", usage.Tokens, "err", err)
		return DeductResult{Error: err.Error()}
	}
	return DeductResult{Success: true, NewBalance: balance}
}

// CheckMonthlyAllowance allows on any lookup error, reporting the free cap.
func (g *Guard) CheckMonthlyAllowance(ctx context.Context, userID string) Allowance {
	open := Allowance{Allowed: true, Limit: g.defaults.FreeMonthlyLimit, Remaining: g.defaults.FreeMonthlyLimit}

	tier, err := g.ledger.ReadPlan(ctx, userID)
	if err != nil {
		logger.Log.Warn("plan read failed, allowing", "user", userID, "err", err)
		return open
	}
	if tier.Paid() {
		return Allowance{Allowed: true, Limit: Unlimited, Remaining: Unlimited}
	}

	txs, err := g.ledger.ReadMonthlyUsage(ctx, userID, monthStart(g.now()))
	if err != nil {
		logger.Log.Warn("usage read failed, allowing", "user", userID, "err", err)
		return open
	}
	var used int64
	for _, t := range txs {
		if t.Kind == ledger.KindUsage && t.Amount < 0 {
			used += -t.Amount
		}
	}
	limit := g.defaults.FreeMonthlyLimit
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Allowance{Allowed: used < limit, Used: used, Limit: limit, Remaining: remaining}
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CanUserMakeRequest checks the monthly allowance, then the balance.
func (g *Guard) CanUserMakeRequest(ctx context.Context, userID string, estimated int64) Check {
	a := g.CheckMonthlyAllowance(ctx, userID)
	if !a.Allowed {
		return Check{Reason: fmt.Sprintf("Monthly limit reached: used %d of %d tokens.", a.Used, a.Limit)}
	}
	return g.CheckTokenSufficiency(ctx, userID, estimated)
}
