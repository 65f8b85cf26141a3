// Package archiveget implements spec §4.8's three-state sub-state-machine
// for tape retrieval: prepare (stage an aggregate), prepare-check (poll
// staging progress), and start (stream the staged aggregate back into the
// object store). Aggregates are identified by tar name; callers group a
// catalog-get's archive list by owning Aggregation before calling into this
// package, matching how the marshaller routes one message per worker state
// rather than this package doing its own catalog lookups.
package archiveget

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/nlds-storage/nlds/core"
	"github.com/nlds-storage/nlds/tape"
)

// TapeStater is the subset of tape.Client the prepare state depends on.
type TapeStater interface {
	Stat(ctx context.Context, aggregate string) (tape.Status, error)
	RequestPrepare(ctx context.Context, aggregates []string) (string, error)
}

// TapePoller is the subset of tape.Client the prepare-check state depends
// on.
type TapePoller interface {
	PollPrepare(ctx context.Context, prepareID string) (done, pending []string, err error)
}

// TapeReader is the subset of tape.Client the start state depends on.
type TapeReader interface {
	Get(ctx context.Context, aggregate string) (io.ReadCloser, error)
}

// ObjectPutter is the subset of objectstore.Client the start state uploads
// extracted members through.
type ObjectPutter interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, object string, src io.Reader, size int64) error
}

// PrepareResult partitions a prepare pass's aggregates (spec §4.8's
// "prepare" state).
type PrepareResult struct {
	// Ready holds aggregate names that were already staged and can go
	// straight to the start state.
	Ready []string
	// Pending maps a tape-issued prepare_id to the aggregate name it is
	// staging, for a caller to persist and feed into PrepareCheck after
	// the configured requeue delay (spec §6's prepare_requeue, default
	// 30000 ms).
	Pending map[string]string
	Failed  map[string]error
}

// Prepare queries tape for each aggregate in names; staged aggregates are
// returned directly, unstaged ones get a prepare request issued and their
// prepare_id recorded (spec §4.8 "prepare").
func Prepare(ctx context.Context, client TapeStater, names []string) PrepareResult {
	result := PrepareResult{Pending: map[string]string{}, Failed: map[string]error{}}
	for _, name := range names {
		status, err := client.Stat(ctx, name)
		if err != nil {
			result.Failed[name] = err
			continue
		}
		if status.Staged {
			result.Ready = append(result.Ready, name)
			continue
		}

		prepareID, err := client.RequestPrepare(ctx, []string{name})
		if err != nil {
			result.Failed[name] = err
			continue
		}
		result.Pending[prepareID] = name
	}
	return result
}

// PrepareCheckResult partitions a prepare-check poll (spec §4.8
// "prepare-check").
type PrepareCheckResult struct {
	Ready   []string
	Pending map[string]string
	Failed  map[string]error
}

// PrepareCheck polls every outstanding prepare_id in pending. Aggregates
// tape reports done move to Ready; aggregates still staging are carried
// forward in Pending so the caller can re-emit a delayed
// archive-get.prepare-check exactly as spec §4.8 describes.
func PrepareCheck(ctx context.Context, client TapePoller, pending map[string]string) PrepareCheckResult {
	result := PrepareCheckResult{Pending: map[string]string{}, Failed: map[string]error{}}
	for prepareID, name := range pending {
		done, stillPending, err := client.PollPrepare(ctx, prepareID)
		if err != nil {
			result.Failed[name] = err
			continue
		}
		if containsName(done, name) {
			result.Ready = append(result.Ready, name)
			continue
		}
		if containsName(stillPending, name) || len(done) == 0 {
			result.Pending[prepareID] = name
			continue
		}
		// Tape reported neither done nor pending for this aggregate; treat
		// as still pending rather than silently dropping it.
		result.Pending[prepareID] = name
	}
	return result
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Result partitions a start pass's outcome (spec §4.8 "start").
type Result struct {
	Transferred []core.PathDetails
	Failed      []core.PathDetails
	// AggregateFailed is set when the tape read itself failed, meaning
	// every member in the aggregate -- not just individually-corrupt ones
	// -- must be failed (spec §4.8: "on whole-aggregate read failure add
	// every member to failed list").
	AggregateFailed bool
}

// Start streams aggregate's tar container back from tape, extracting each
// member named in members (matched by its TapeLocation, the member's name
// inside the container) and uploading it to the object store under its
// empty OBJECT_STORE location (ObjectName).
func Start(ctx context.Context, tapeReader TapeReader, objectStore ObjectPutter, bucket, aggregate string, members []core.PathDetails) Result {
	wanted := make(map[string]core.PathDetails, len(members))
	for _, pd := range members {
		key := pd.TapeLocation
		if key == "" {
			key = pd.ObjectName
		}
		wanted[key] = pd
	}

	var result Result
	rc, err := tapeReader.Get(ctx, aggregate)
	if err != nil {
		result.AggregateFailed = true
		for _, pd := range members {
			pd.Fail(fmt.Sprintf("reading aggregate %s from tape: %s", aggregate, err))
			result.Failed = append(result.Failed, pd)
		}
		return result
	}
	defer rc.Close()

	// A ".zst" suffix on the aggregate's own name (stamped by archive-put's
	// optional compression, see SPEC_FULL §6's archive_put_q.compress) is
	// the only record that it was written compressed; wrap the tape stream
	// in a zstd decoder before handing it to the tar reader below.
	reader := io.Reader(rc)
	if strings.HasSuffix(aggregate, ".zst") {
		dec, err := zstd.NewReader(rc)
		if err != nil {
			result.AggregateFailed = true
			for _, pd := range members {
				pd.Fail(fmt.Sprintf("decompressing aggregate %s from tape: %s", aggregate, err))
				result.Failed = append(result.Failed, pd)
			}
			return result
		}
		defer dec.Close()
		reader = dec
	}

	if err := objectStore.EnsureBucket(ctx, bucket); err != nil {
		result.AggregateFailed = true
		for _, pd := range members {
			pd.Fail(fmt.Sprintf("ensuring bucket for restore: %s", err))
			result.Failed = append(result.Failed, pd)
		}
		return result
	}

	tr := tar.NewReader(reader)
	seen := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.AggregateFailed = true
			for _, pd := range members {
				if !seen[pd.ObjectName] {
					pd.Fail(fmt.Sprintf("reading aggregate %s from tape: %s", aggregate, err))
					result.Failed = append(result.Failed, pd)
				}
			}
			return result
		}

		pd, wantedMember := wanted[hdr.Name]
		if !wantedMember {
			continue
		}
		seen[pd.ObjectName] = true

		if err := objectStore.Put(ctx, bucket, pd.ObjectName, tr, hdr.Size); err != nil {
			pd.Fail(fmt.Sprintf("restoring %s to object store: %s", pd.ObjectName, err))
			result.Failed = append(result.Failed, pd)
			continue
		}
		result.Transferred = append(result.Transferred, pd)
	}

	for _, pd := range members {
		if !seen[pd.ObjectName] {
			pd.Fail(fmt.Sprintf("member %s not found in aggregate %s", pd.ObjectName, aggregate))
			result.Failed = append(result.Failed, pd)
		}
	}

	return result
}
