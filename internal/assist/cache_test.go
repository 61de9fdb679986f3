package assist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepairer struct {
	calls [][]RepairRequest
	err   error
}

func (c *countingRepairer) RepairCells(ctx context.Context, reqs []RepairRequest) ([]string, error) {
	c.calls = append(c.calls, reqs)
	if c.err != nil {
		return nil, c.err
	}
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = "fixed:" + r.Value
	}
	return out, nil
}

type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("connection refused")
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestCachedRepairer_OnlyMissesReachNext(t *testing.T) {
	ctx := context.Background()
	next := &countingRepairer{}
	r := NewCachedRepairer(next, NewMemoryCache(), time.Hour, nil)

	first, err := r.RepairCells(ctx, []RepairRequest{
		{Field: "order_id", Value: "a"},
		{Field: "order_id", Value: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed:a", "fixed:b"}, first)

	second, err := r.RepairCells(ctx, []RepairRequest{
		{Field: "order_id", Value: "b"},
		{Field: "quantity", Value: "b"},
		{Field: "order_id", Value: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed:b", "fixed:b", "fixed:a"}, second)

	require.Len(t, next.calls, 2)
	assert.Equal(t, []RepairRequest{{Field: "quantity", Value: "b"}}, next.calls[1])
}

func TestCachedRepairer_CacheFaultsFallThrough(t *testing.T) {
	next := &countingRepairer{}
	r := NewCachedRepairer(next, brokenCache{}, time.Hour, nil)

	got, err := r.RepairCells(context.Background(), []RepairRequest{{Field: "email", Value: "x"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed:x"}, got)
}

func TestCachedRepairer_PropagatesNextError(t *testing.T) {
	next := &countingRepairer{err: errors.New("timeout")}
	r := NewCachedRepairer(next, NewMemoryCache(), time.Hour, nil)

	_, err := r.RepairCells(context.Background(), []RepairRequest{{Field: "email", Value: "x"}})
	assert.Error(t, err)
}
