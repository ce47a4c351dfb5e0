package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"), Defaults{FreeTokens: 1000, PaidTokens: 50000})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOrCreateBalanceUsesTierDefault(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.ReadBalance(ctx, "free-user")
	assert.ErrorIs(t, err, ErrNotFound)

	b, err := s.GetOrCreateBalance(ctx, "free-user")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), b)

	require.NoError(t, s.SetPlan(ctx, "pro-user", TierPro))
	b, err = s.GetOrCreateBalance(ctx, "pro-user")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), b)

	b, err = s.GetOrCreateBalance(ctx, "free-user")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), b, "existing account is not re-created")
}

func TestDeductAndUsage(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	_, err := s.GetOrCreateBalance(ctx, "u")
	require.NoError(t, err)

	b, err := s.Deduct(ctx, "u", 300, "anthropic", "claude")
	require.NoError(t, err)
	assert.Equal(t, int64(700), b)

	b, err = s.Deduct(ctx, "u", 700, "openai", "gpt")
	require.NoError(t, err)
	assert.Zero(t, b)

	usage, err := s.ReadMonthlyUsage(ctx, "u", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, int64(-300), usage[0].Amount)
	assert.Equal(t, "openai", usage[1].Provider)

	usage, err = s.ReadMonthlyUsage(ctx, "u", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, usage)

	_, err = s.Deduct(ctx, "ghost", 1, "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeductBeyondBalanceClampsAndRecordsFullUsage(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	_, err := s.GetOrCreateBalance(ctx, "u")
	require.NoError(t, err)

	b, err := s.Deduct(ctx, "u", 1400, "anthropic", "claude")
	require.NoError(t, err)
	assert.Zero(t, b)

	b, err = s.Deduct(ctx, "u", 50, "anthropic", "claude")
	require.NoError(t, err)
	assert.Zero(t, b)

	usage, err := s.ReadMonthlyUsage(ctx, "u", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, int64(-1400), usage[0].Amount)
	assert.Equal(t, int64(-50), usage[1].Amount)
}

func TestConcurrentDeductsAllRecorded(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	_, err := s.GetOrCreateBalance(ctx, "u")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Deduct(ctx, "u", 100, "", ""); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, ok)
	b, err := s.ReadBalance(ctx, "u")
	require.NoError(t, err)
	assert.Zero(t, b)

	usage, err := s.ReadMonthlyUsage(ctx, "u", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, usage, 20)
}

func TestGrantAndPlans(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	b, err := s.Grant(ctx, "new", 250)
	require.NoError(t, err)
	assert.Equal(t, int64(250), b)
	b, err = s.Grant(ctx, "new", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(300), b)

	_, err = s.Grant(ctx, "new", 0)
	assert.Error(t, err)

	tier, err := s.ReadPlan(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, TierFree, tier)

	require.NoError(t, s.SetPlan(ctx, "new", TierEnterprise))
	tier, err = s.ReadPlan(ctx, "new")
	require.NoError(t, err)
	assert.True(t, tier.Paid())
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Pro ")
	require.NoError(t, err)
	assert.Equal(t, TierPro, tier)
	_, err = ParseTier("platinum")
	assert.Error(t, err)
}
