// Package archiveput implements spec §4.7: bin-pack catalogued files into
// tape-sized aggregates, stream each member into a tar-like container with
// a running ADLER32 checksum, and write the container to tape.
package archiveput

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"hash/adler32"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/nlds-storage/nlds/core"
)

// defaultMaxAggregateSize matches spec §6's "5-20 GB" guidance for
// archive_put_q.chunk_size; callers should pass the configured value.
const defaultMaxAggregateSize = 10 << 30

// ObjectGetter is the subset of objectstore.Client archive-put depends on.
type ObjectGetter interface {
	Get(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// TapeWriter is the subset of tape.Client archive-put depends on.
type TapeWriter interface {
	Put(ctx context.Context, aggregate string, src io.Reader, size int64) error
}

// Aggregate is one bin-packed bundle awaiting a tar name (spec §4.7 step 1).
type Aggregate struct {
	TarName string
	Members []core.PathDetails
}

// BinPack greedily packs candidates into aggregates no larger than
// maxAggregateSize bytes, preserving input order within each aggregate
// (spec §4.7 step 1). A single oversized member still gets its own
// aggregate rather than being dropped.
func BinPack(candidates []core.PathDetails, tarNames []string, maxAggregateSize int64) []Aggregate {
	if maxAggregateSize <= 0 {
		maxAggregateSize = defaultMaxAggregateSize
	}

	var aggregates []Aggregate
	var current Aggregate
	var currentSize int64
	nameAt := 0
	nextName := func() string {
		if nameAt < len(tarNames) {
			name := tarNames[nameAt]
			nameAt++
			return name
		}
		nameAt++
		return fmt.Sprintf("aggregate-%04d.tar", nameAt)
	}

	flush := func() {
		if len(current.Members) > 0 {
			current.TarName = nextName()
			aggregates = append(aggregates, current)
		}
		current = Aggregate{}
		currentSize = 0
	}

	for _, pd := range candidates {
		if currentSize > 0 && currentSize+pd.Size > maxAggregateSize {
			flush()
		}
		current.Members = append(current.Members, pd)
		currentSize += pd.Size
	}
	flush()
	return aggregates
}

// Result partitions an aggregate's outcome. TarName (with a ".zst" suffix
// once compressed) and Checksum describe the container; the caller carries
// them to catalog.Store.CatalogArchiveUpdate as a catalog.Aggregation.
type Result struct {
	TarName   string
	Checksum  uint32
	Completed []core.PathDetails
	Failed    []core.PathDetails
	// AggregateFailed is set when the tape write itself failed, meaning
	// every member -- not just the unreadable ones -- must be failed
	// (spec §4.7 step 2: "if the tape write itself fails, the whole
	// aggregate fails").
	AggregateFailed bool
}

// Run streams each member of agg from the object store into a tar
// container, computing a running ADLER32 checksum over the container bytes,
// then writes the finished container to tape (spec §4.7 steps 2-3).
//
// The container is assembled in memory before the tape write because the
// tape gateway's Put needs an exact Content-Length up front; for the
// aggregate sizes spec §6 describes (5-20 GB, bounded by chunk_size) this
// trades memory for a simple, correct streaming order guarantee.
//
// When compress is true (archive_put_q.compress, SPEC_FULL §6), the tar
// container is zstd-compressed before the tape write and TarName gains a
// ".zst" suffix so archive-get can tell a compressed aggregate from a plain
// one by name alone, without a separate catalog column. The checksum is
// always computed over the uncompressed tar bytes, matching spec §4.7's
// "running checksum over the aggregate" before any wire-level transform.
func Run(ctx context.Context, objectStore ObjectGetter, tapeWriter TapeWriter, bucket string, agg Aggregate, compress bool) Result {
	result := Result{TarName: agg.TarName}

	var buf bytes.Buffer
	checksum := adler32.New()
	tw := tar.NewWriter(io.MultiWriter(&buf, checksum))

	for _, pd := range agg.Members {
		obj, err := objectStore.Get(ctx, bucket, pd.ObjectName)
		if err != nil {
			pd.Fail(fmt.Sprintf("reading member from object store: %s", err))
			result.Failed = append(result.Failed, pd)
			continue
		}

		if err := tw.WriteHeader(&tar.Header{
			Name: pd.ObjectName,
			Mode: int64(pd.Permissions),
			Size: pd.Size,
		}); err != nil {
			obj.Close()
			pd.Fail(fmt.Sprintf("writing tar header: %s", err))
			result.Failed = append(result.Failed, pd)
			continue
		}

		_, copyErr := io.Copy(tw, obj)
		obj.Close()
		if copyErr != nil {
			pd.Fail(fmt.Sprintf("streaming member into aggregate: %s", copyErr))
			result.Failed = append(result.Failed, pd)
			continue
		}

		pd.TapeLocation = pd.ObjectName
		result.Completed = append(result.Completed, pd)
	}

	if err := tw.Close(); err != nil {
		result.AggregateFailed = true
		result.Failed = append(result.Failed, result.Completed...)
		result.Completed = nil
		for i := range result.Failed {
			result.Failed[i].Fail(fmt.Sprintf("closing tar container: %s", err))
		}
		return result
	}

	result.Checksum = checksum.Sum32()

	if len(result.Completed) == 0 {
		return result
	}

	payload := buf.Bytes()
	tarName := agg.TarName
	if compress {
		compressed, err := zstdCompress(payload)
		if err != nil {
			result.AggregateFailed = true
			for i := range result.Completed {
				result.Completed[i].Fail(fmt.Sprintf("compressing aggregate: %s", err))
			}
			result.Failed = append(result.Failed, result.Completed...)
			result.Completed = nil
			return result
		}
		payload = compressed
		tarName += ".zst"
	}
	result.TarName = tarName

	if err := tapeWriter.Put(ctx, tarName, bytes.NewReader(payload), int64(len(payload))); err != nil {
		result.AggregateFailed = true
		for i := range result.Completed {
			result.Completed[i].Fail(fmt.Sprintf("writing aggregate to tape: %s", err))
		}
		result.Failed = append(result.Failed, result.Completed...)
		result.Completed = nil
	}

	return result
}

// zstdCompress compresses payload with klauspost/compress/zstd, the
// ecosystem's pure-Go zstd implementation (grounded on storj-storj and
// itchio-butler's shared dependency on it, there used for object and patch
// compression): tape capacity is the scarcest resource in the system, so
// archive-put trades CPU for a smaller aggregate whenever archive_put_q
// enables it.
func zstdCompress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(payload); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
