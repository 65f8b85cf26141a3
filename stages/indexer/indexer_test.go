package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlds-storage/nlds/core"
)

func TestSplitChunksByFilelistMaxLength(t *testing.T) {
	paths := make([]string, 2500)
	for i := range paths {
		paths[i] = "f"
	}
	subs := Split(paths, Options{FilelistMaxLength: 1000})
	require.Len(t, subs, 3)
	assert.Len(t, subs[0].Paths, 1000)
	assert.Len(t, subs[2].Paths, 500)
}

func TestSplitExactMultipleYieldsExactSubTransactions(t *testing.T) {
	paths := make([]string, 1000)
	subs := Split(paths, Options{FilelistMaxLength: 1000})
	assert.Len(t, subs, 1)
}

func TestSplitEmptyYieldsNoSubTransactions(t *testing.T) {
	subs := Split(nil, Options{FilelistMaxLength: 1000})
	assert.Empty(t, subs)
}

func TestWalkClassifiesMissingPathAsFailed(t *testing.T) {
	batches := Walk([]string{"/nonexistent/path/for/test"}, os.Getuid(), os.Getgid(), nil, Options{FilelistMaxLength: 1000})
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Failed, 1)
	assert.Equal(t, "file not found", batches[0].Failed[0].FailReason)
}

func TestWalkIndexesRegularFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("hello"), 0644))

	batches := Walk([]string{f}, os.Getuid(), os.Getgid(), nil, Options{FilelistMaxLength: 1000})
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Completed, 1)
	assert.Equal(t, int64(5), batches[0].Completed[0].Size)
}

func TestWalkRecursesIntoDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bb"), 0644))

	batches := Walk([]string{dir}, os.Getuid(), os.Getgid(), nil, Options{FilelistMaxLength: 1000})
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Completed, 2)
}

func TestWalkFlagsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(f, make([]byte, 100), 0644))

	batches := Walk([]string{f}, os.Getuid(), os.Getgid(), nil, Options{FilelistMaxLength: 1000, CheckFilesize: true, MaxFilesize: 10})
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Failed, 1)
	assert.Equal(t, "file too large", batches[0].Failed[0].FailReason)
}

func TestWalkClassifiesSymlinkWithinRootAsLinkCommon(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("a"), 0644))
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink("a.txt", link))

	batches := Walk([]string{link}, os.Getuid(), os.Getgid(), nil, Options{FilelistMaxLength: 1000})
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Completed, 1)
	assert.Equal(t, "a.txt", batches[0].Completed[0].LinkTarget)
	assert.Equal(t, core.PathTypeLinkCommon, batches[0].Completed[0].PathType)
}

func TestWalkFlushesOnMessageThreshold(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, string(rune('a'+i))+".bin"), make([]byte, 50), 0644))
	}
	batches := Walk([]string{dir}, os.Getuid(), os.Getgid(), nil, Options{FilelistMaxLength: 1000, MessageThreshold: 60})
	require.GreaterOrEqual(t, len(batches), 2)
}
