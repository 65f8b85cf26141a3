package archiveget

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlds-storage/nlds/core"
	"github.com/nlds-storage/nlds/tape"
)

type fakeStater struct {
	statuses   map[string]tape.Status
	prepareIDs map[string]string
}

func (f fakeStater) Stat(ctx context.Context, aggregate string) (tape.Status, error) {
	return f.statuses[aggregate], nil
}

func (f fakeStater) RequestPrepare(ctx context.Context, aggregates []string) (string, error) {
	return f.prepareIDs[aggregates[0]], nil
}

func TestPrepareRoutesStagedAggregatesDirectly(t *testing.T) {
	client := fakeStater{
		statuses: map[string]tape.Status{
			"agg1.tar": {Staged: true},
			"agg2.tar": {Staged: false},
		},
		prepareIDs: map[string]string{"agg2.tar": "p-1"},
	}

	result := Prepare(context.Background(), client, []string{"agg1.tar", "agg2.tar"})
	assert.Equal(t, []string{"agg1.tar"}, result.Ready)
	assert.Equal(t, "agg2.tar", result.Pending["p-1"])
	assert.Empty(t, result.Failed)
}

type fakePoller struct {
	done    map[string][]string
	pending map[string][]string
}

func (f fakePoller) PollPrepare(ctx context.Context, prepareID string) (done, pending []string, err error) {
	return f.done[prepareID], f.pending[prepareID], nil
}

func TestPrepareCheckMovesDoneAggregatesToReady(t *testing.T) {
	client := fakePoller{
		done:    map[string][]string{"p-1": {"agg2.tar"}},
		pending: map[string][]string{"p-2": {}},
	}
	result := PrepareCheck(context.Background(), client, map[string]string{
		"p-1": "agg2.tar",
		"p-2": "agg3.tar",
	})
	assert.Equal(t, []string{"agg2.tar"}, result.Ready)
	assert.Equal(t, "agg3.tar", result.Pending["p-2"])
}

type fakeTapeReader struct {
	containers map[string][]byte
}

func (f fakeTapeReader) Get(ctx context.Context, aggregate string) (io.ReadCloser, error) {
	data, found := f.containers[aggregate]
	if !found {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeObjectPutter struct {
	stored map[string][]byte
}

func (f *fakeObjectPutter) EnsureBucket(ctx context.Context, bucket string) error { return nil }

func (f *fakeObjectPutter) Put(ctx context.Context, bucket, object string, src io.Reader, size int64) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	if f.stored == nil {
		f.stored = map[string][]byte{}
	}
	f.stored[bucket+"/"+object] = data
	return nil
}

func buildTar(t *testing.T, entries map[string]string) []byte {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content))}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestStartExtractsMembersAndRestoresToObjectStore(t *testing.T) {
	container := buildTar(t, map[string]string{"obj-a": "hello", "obj-b": "world"})
	tapeReader := fakeTapeReader{containers: map[string][]byte{"agg1.tar": container}}
	objectStore := &fakeObjectPutter{}

	result := Start(context.Background(), tapeReader, objectStore, "tx1", "agg1.tar", []core.PathDetails{
		{ObjectName: "obj-a", TapeLocation: "obj-a"},
		{ObjectName: "obj-b", TapeLocation: "obj-b"},
	})
	require.Len(t, result.Transferred, 2)
	assert.Empty(t, result.Failed)
	assert.Equal(t, "hello", string(objectStore.stored["tx1/obj-a"]))
}

func TestStartFailsMissingMemberWithoutFailingWholeAggregate(t *testing.T) {
	container := buildTar(t, map[string]string{"obj-a": "hello"})
	tapeReader := fakeTapeReader{containers: map[string][]byte{"agg1.tar": container}}
	objectStore := &fakeObjectPutter{}

	result := Start(context.Background(), tapeReader, objectStore, "tx1", "agg1.tar", []core.PathDetails{
		{ObjectName: "obj-a", TapeLocation: "obj-a"},
		{ObjectName: "missing", TapeLocation: "missing"},
	})
	require.Len(t, result.Transferred, 1)
	require.Len(t, result.Failed, 1)
	assert.False(t, result.AggregateFailed)
}

func TestStartFailsWholeAggregateOnTapeReadError(t *testing.T) {
	tapeReader := fakeTapeReader{containers: map[string][]byte{}}
	objectStore := &fakeObjectPutter{}

	result := Start(context.Background(), tapeReader, objectStore, "tx1", "missing.tar", []core.PathDetails{
		{ObjectName: "obj-a", TapeLocation: "obj-a"},
	})
	assert.True(t, result.AggregateFailed)
	require.Len(t, result.Failed, 1)
	assert.Empty(t, result.Transferred)
}
