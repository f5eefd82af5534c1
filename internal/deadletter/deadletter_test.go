package deadletter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s, err := New(db)
	require.NoError(t, err)
	return s
}

func TestRecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, "mainnet", "0xabc", "rpc fetch failed", 3))
	require.NoError(t, s.Record(ctx, "mainnet", "0xdef", "rpc fetch failed", 3))
	require.NoError(t, s.Record(ctx, "testnet", "0x111", "rpc fetch failed", 3))

	entries, err := s.List(ctx, "mainnet", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestListRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, "mainnet", "0xabc", "x", 1))
	}
	entries, err := s.List(ctx, "mainnet", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
