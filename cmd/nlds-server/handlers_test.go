package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlds-storage/nlds/core"
	"github.com/nlds-storage/nlds/monitor"
)

func newTestMonitorStore(t *testing.T) monitor.Store {
	t.Helper()
	store, err := monitor.NewStore("sqlite", map[string]string{"path": filepath.Join(t.TempDir(), "monitor.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestMonitorHandlerRatchetsFailedAfterGetFailure exercises the path a real
// transfer-get failure now takes: transferget.Run calls pd.Fail() on the
// entry (see transferget_test.go), transferGetHandler republishes it
// straight to monitor-get.start, and monitorHandler must ratchet the
// sub-transaction to StateFailed rather than recording it as complete.
func TestMonitorHandlerRatchetsFailedAfterGetFailure(t *testing.T) {
	store := newTestMonitorStore(t)
	ctx := context.Background()
	_, err := store.CreateTransaction(ctx, monitor.TransactionRecord{TransactionID: "t1", User: "alice", Group: "g", APIAction: "get"})
	require.NoError(t, err)

	s := &service{monitor: store}

	failed := core.PathDetails{OriginalPath: "a.txt", ObjectName: "obj1"}
	failed.Fail("object missing from object store: file does not exist")

	env := core.Envelope{
		RoutingKey: core.RoutingKey{Application: "nlds-api", Worker: "monitor-get", State: "start"},
		Details:    core.Details{TransactionID: "t1", SubID: "sub1"},
		Data:       core.Data{Filelist: []core.PathDetails{failed}},
	}
	_, err = s.monitorHandler(env)
	require.NoError(t, err)

	_, subs, rollup, err := store.TransactionStatus(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, monitor.StateFailed, subs[0].State)
	assert.Equal(t, monitor.StateFailed, rollup)
}
