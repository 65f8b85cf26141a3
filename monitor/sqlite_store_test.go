package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := newSQLiteStore(map[string]string{"path": ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateTransactionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id1, err := s.CreateTransaction(ctx, TransactionRecord{TransactionID: "t1", User: "alice", Group: "g", APIAction: "put"})
	require.NoError(t, err)
	id2, err := s.CreateTransaction(ctx, TransactionRecord{TransactionID: "t1", User: "alice", Group: "g", APIAction: "put"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestUpsertSubRecordRatchetsForward(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateTransaction(ctx, TransactionRecord{TransactionID: "t1", User: "alice", Group: "g", APIAction: "put"})
	require.NoError(t, err)

	state, changed, err := s.UpsertSubRecord(ctx, SubRecord{SubID: "s1", TransactionID: "t1", State: StateIndexing})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateIndexing, state)

	state, changed, err = s.UpsertSubRecord(ctx, SubRecord{SubID: "s1", TransactionID: "t1", State: StateRouting})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StateIndexing, state)

	state, changed, err = s.UpsertSubRecord(ctx, SubRecord{SubID: "s1", TransactionID: "t1", State: StateComplete})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateComplete, state)
}

func TestTransactionStatusRollsUpSubStates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateTransaction(ctx, TransactionRecord{TransactionID: "t1", User: "alice", Group: "g", APIAction: "put"})
	require.NoError(t, err)
	_, _, err = s.UpsertSubRecord(ctx, SubRecord{SubID: "s1", TransactionID: "t1", State: StateComplete})
	require.NoError(t, err)
	_, _, err = s.UpsertSubRecord(ctx, SubRecord{SubID: "s2", TransactionID: "t1", State: StateIndexing})
	require.NoError(t, err)

	_, subs, rollup, err := s.TransactionStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
	assert.Equal(t, StateIndexing, rollup)
}

func TestRecordFailureRatchetsToFailedAndLogsReason(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateTransaction(ctx, TransactionRecord{TransactionID: "t1", User: "alice", Group: "g", APIAction: "put"})
	require.NoError(t, err)
	_, _, err = s.UpsertSubRecord(ctx, SubRecord{SubID: "s1", TransactionID: "t1", State: StateIndexing})
	require.NoError(t, err)

	err = s.RecordFailure(ctx, "s1", []FailedFile{{FilePath: "a.txt", Reason: "file too large"}})
	require.NoError(t, err)

	_, subs, rollup, err := s.TransactionStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, subs[0].State)
	assert.Equal(t, StateFailed, rollup)
}

func TestTransactionStatusNotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, _, err := s.TransactionStatus(context.Background(), "nope")
	assert.Error(t, err)
}
