package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlds-storage/nlds/core"
)

func newTestCatalog(t *testing.T) Store {
	t.Helper()
	s, err := newSQLiteEngine(map[string]string{"path": ":memory:", "default_tenancy": "nlds-tenancy"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCatalogPutCreatesHoldingTransactionAndFiles(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()
	completed, failed, err := s.CatalogPut(ctx, PutRequest{
		User: "alice", Group: "g1", TransactionID: "tx1", HoldingLabel: "exp1",
		Files: []core.PathDetails{
			{OriginalPath: "a.txt", Size: 10240, PathType: core.PathTypeFile},
			{OriginalPath: "b.txt", Size: 20480, PathType: core.PathTypeFile},
		},
	})
	require.NoError(t, err)
	assert.Len(t, completed, 2)
	assert.Empty(t, failed)
	assert.NotEmpty(t, completed[0].ObjectName)
}

func TestCatalogPutRejectsDuplicateInSameHolding(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()
	_, _, err := s.CatalogPut(ctx, PutRequest{
		User: "alice", Group: "g1", TransactionID: "tx1", HoldingLabel: "exp1",
		Files: []core.PathDetails{{OriginalPath: "a.txt", Size: 1, PathType: core.PathTypeFile}},
	})
	require.NoError(t, err)

	completed, failed, err := s.CatalogPut(ctx, PutRequest{
		User: "alice", Group: "g1", TransactionID: "tx2", HoldingLabel: "exp1",
		Files: []core.PathDetails{{OriginalPath: "a.txt", Size: 1, PathType: core.PathTypeFile}},
	})
	require.NoError(t, err)
	assert.Empty(t, completed)
	require.Len(t, failed, 1)
	assert.NotEmpty(t, failed[0].FailReason)
}

func TestCatalogUpdateAttachesObjectStoreLocation(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()
	completed, _, err := s.CatalogPut(ctx, PutRequest{
		User: "alice", Group: "g1", TransactionID: "tx1", HoldingLabel: "exp1",
		Files: []core.PathDetails{{OriginalPath: "a.txt", Size: 1, PathType: core.PathTypeFile}},
	})
	require.NoError(t, err)

	err = s.CatalogUpdate(ctx, "tx1", "", completed)
	require.NoError(t, err)

	result, err := s.CatalogGet(ctx, GetRequest{OriginalPaths: []string{"a.txt"}})
	require.NoError(t, err)
	assert.Len(t, result.TransferList, 1)
	assert.Empty(t, result.ArchiveList)
	assert.Empty(t, result.FailedList)
}

func TestCatalogGetReportsNoLocationAsFailed(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()
	_, _, err := s.CatalogPut(ctx, PutRequest{
		User: "alice", Group: "g1", TransactionID: "tx1", HoldingLabel: "exp1",
		Files: []core.PathDetails{{OriginalPath: "a.txt", Size: 1, PathType: core.PathTypeFile}},
	})
	require.NoError(t, err)

	result, err := s.CatalogGet(ctx, GetRequest{OriginalPaths: []string{"a.txt"}})
	require.NoError(t, err)
	assert.Len(t, result.FailedList, 1)
}

func TestCatalogArchiveNextStakesEmptyTapeLocations(t *testing.T) {
	s := newTestCatalog(t)
	ctx := context.Background()
	completed, _, err := s.CatalogPut(ctx, PutRequest{
		User: "alice", Group: "g1", TransactionID: "tx1", HoldingLabel: "exp1",
		Files: []core.PathDetails{
			{OriginalPath: "a.txt", Size: 1, PathType: core.PathTypeFile},
			{OriginalPath: "b.txt", Size: 1, PathType: core.PathTypeFile},
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.CatalogUpdate(ctx, "tx1", "", completed))

	label, candidates, err := s.CatalogArchiveNext(ctx, "root://tape.example/nlds")
	require.NoError(t, err)
	assert.Equal(t, "exp1", label)
	assert.Len(t, candidates, 2)

	_, candidatesAgain, err := s.CatalogArchiveNext(ctx, "root://tape.example/nlds")
	require.NoError(t, err)
	assert.Empty(t, candidatesAgain, "a second pass must not double-archive")
}
