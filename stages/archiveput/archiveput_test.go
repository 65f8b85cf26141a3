package archiveput

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlds-storage/nlds/core"
)

type fakeObjectGetter struct {
	objects map[string][]byte
}

func (f fakeObjectGetter) Get(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	data, found := f.objects[bucket+"/"+object]
	if !found {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeTapeWriter struct {
	written map[string][]byte
	putErr  error
}

func (f *fakeTapeWriter) Put(ctx context.Context, aggregate string, src io.Reader, size int64) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	if f.written == nil {
		f.written = map[string][]byte{}
	}
	f.written[aggregate] = data
	return nil
}

func TestBinPackSplitsOnSizeBoundary(t *testing.T) {
	candidates := []core.PathDetails{
		{OriginalPath: "a", Size: 600},
		{OriginalPath: "b", Size: 600},
		{OriginalPath: "c", Size: 600},
	}
	aggregates := BinPack(candidates, nil, 1000)
	require.Len(t, aggregates, 3)
	assert.Len(t, aggregates[0].Members, 1)
}

func TestBinPackKeepsSmallMembersTogether(t *testing.T) {
	candidates := []core.PathDetails{
		{OriginalPath: "a", Size: 100},
		{OriginalPath: "b", Size: 100},
	}
	aggregates := BinPack(candidates, nil, 1000)
	require.Len(t, aggregates, 1)
	assert.Len(t, aggregates[0].Members, 2)
}

func TestRunWritesMembersAndComputesChecksum(t *testing.T) {
	store := fakeObjectGetter{objects: map[string][]byte{
		"tx1/obj-a": []byte("hello"),
		"tx1/obj-b": []byte("world"),
	}}
	tapeWriter := &fakeTapeWriter{}

	agg := Aggregate{
		TarName: "agg1.tar",
		Members: []core.PathDetails{
			{ObjectName: "obj-a", Size: 5},
			{ObjectName: "obj-b", Size: 5},
		},
	}

	result := Run(context.Background(), store, tapeWriter, "tx1", agg, false)
	require.Len(t, result.Completed, 2)
	assert.Empty(t, result.Failed)
	assert.False(t, result.AggregateFailed)
	assert.NotZero(t, result.Checksum)
	assert.Equal(t, "obj-a", result.Completed[0].TapeLocation)

	written, ok := tapeWriter.written["agg1.tar"]
	require.True(t, ok)
	tr := tar.NewReader(bytes.NewReader(written))
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "obj-a", hdr.Name)
}

func TestRunFailsMissingMemberWithoutFailingWholeAggregate(t *testing.T) {
	store := fakeObjectGetter{objects: map[string][]byte{"tx1/obj-a": []byte("hello")}}
	tapeWriter := &fakeTapeWriter{}

	agg := Aggregate{
		TarName: "agg1.tar",
		Members: []core.PathDetails{
			{ObjectName: "obj-a", Size: 5},
			{ObjectName: "missing", Size: 5},
		},
	}

	result := Run(context.Background(), store, tapeWriter, "tx1", agg, false)
	require.Len(t, result.Completed, 1)
	require.Len(t, result.Failed, 1)
	assert.False(t, result.AggregateFailed)
}

func TestRunFailsWholeAggregateOnTapeWriteError(t *testing.T) {
	store := fakeObjectGetter{objects: map[string][]byte{"tx1/obj-a": []byte("hello")}}
	tapeWriter := &fakeTapeWriter{putErr: io.ErrClosedPipe}

	agg := Aggregate{
		TarName: "agg1.tar",
		Members: []core.PathDetails{{ObjectName: "obj-a", Size: 5}},
	}

	result := Run(context.Background(), store, tapeWriter, "tx1", agg, false)
	assert.True(t, result.AggregateFailed)
	assert.Empty(t, result.Completed)
	require.Len(t, result.Failed, 1)
}

func TestRunCompressesAggregateAndSuffixesTarName(t *testing.T) {
	store := fakeObjectGetter{objects: map[string][]byte{
		"tx1/obj-a": []byte("hello"),
		"tx1/obj-b": []byte("world"),
	}}
	tapeWriter := &fakeTapeWriter{}

	agg := Aggregate{
		TarName: "agg1.tar",
		Members: []core.PathDetails{
			{ObjectName: "obj-a", Size: 5},
			{ObjectName: "obj-b", Size: 5},
		},
	}

	result := Run(context.Background(), store, tapeWriter, "tx1", agg, true)
	require.Len(t, result.Completed, 2)
	assert.Equal(t, "agg1.tar.zst", result.TarName)

	written, ok := tapeWriter.written["agg1.tar.zst"]
	require.True(t, ok)

	dec, err := zstd.NewReader(bytes.NewReader(written))
	require.NoError(t, err)
	defer dec.Close()
	plain, err := io.ReadAll(dec)
	require.NoError(t, err)

	tr := tar.NewReader(bytes.NewReader(plain))
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "obj-a", hdr.Name)
}
