package transferput

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlds-storage/nlds/core"
)

type fakeObjectStore struct {
	objects   map[string][]byte
	putErr    error
	existsErr error
}

func newFakeStore() *fakeObjectStore { return &fakeObjectStore{objects: map[string][]byte{}} }

func (f *fakeObjectStore) EnsureBucket(ctx context.Context, bucket string) error { return nil }

func (f *fakeObjectStore) Exists(ctx context.Context, bucket, object string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, found := f.objects[bucket+"/"+object]
	return found, nil
}

func (f *fakeObjectStore) Put(ctx context.Context, bucket, object string, src io.Reader, size int64) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+object] = data
	return nil
}

func TestRunUploadsFileAndPopulatesObjectName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	store := newFakeStore()
	result := Run(context.Background(), store, "tx1", []core.PathDetails{{OriginalPath: path}}, 5)

	require.Len(t, result.Completed, 1)
	assert.Empty(t, result.Failed)
	assert.NotEmpty(t, result.Completed[0].ObjectName)
}

func TestRunFailsImmediatelyOnMissingSource(t *testing.T) {
	store := newFakeStore()
	result := Run(context.Background(), store, "tx1", []core.PathDetails{{OriginalPath: "/nonexistent"}}, 5)
	require.Len(t, result.Failed, 1)
	assert.True(t, result.Failed[0].Failed())
	assert.Equal(t, 0, result.Failed[0].Retries, "user errors must not be retried")
}

func TestRunPutsTransientFailureIntoRetryingNotFailed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	store := newFakeStore()
	store.putErr = io.ErrClosedPipe

	result := Run(context.Background(), store, "tx1", []core.PathDetails{{OriginalPath: path}}, 5)
	assert.Empty(t, result.Completed)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Retrying, 1)
	assert.False(t, result.Retrying[0].Failed())
	assert.Equal(t, 1, result.Retrying[0].Retries)
}

func TestRunPermanentlyFailsOnceMaxRetriesReached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	store := newFakeStore()
	store.putErr = io.ErrClosedPipe

	pd := core.PathDetails{OriginalPath: path, Retries: 4}
	result := Run(context.Background(), store, "tx1", []core.PathDetails{pd}, 5)
	assert.Empty(t, result.Retrying)
	require.Len(t, result.Failed, 1)
	assert.True(t, result.Failed[0].Failed())
	assert.Equal(t, 5, result.Failed[0].Retries)
}

func TestRunSkipsAlreadyUploadedObject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	store := newFakeStore()
	objectName := ObjectName("tx1", path)
	store.objects["tx1/"+objectName] = []byte("hello")

	result := Run(context.Background(), store, "tx1", []core.PathDetails{{OriginalPath: path}}, 5)
	require.Len(t, result.Completed, 1)
	assert.Equal(t, objectName, result.Completed[0].ObjectName)
}
