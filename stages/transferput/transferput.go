// Package transferput implements spec §4.5: stream files from POSIX disk
// to the object store, deriving object_name deterministically and
// classifying failures for the retry/fail-fast split spec §7 requires.
package transferput

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nlds-storage/nlds/core"
)

// ObjectPutter is the subset of objectstore.Client transfer-put depends on,
// narrowed to an interface so tests can substitute a fake without standing
// up a real S3-compatible endpoint.
type ObjectPutter interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Exists(ctx context.Context, bucket, object string) (bool, error)
	Put(ctx context.Context, bucket, object string, src io.Reader, size int64) error
}

// ObjectName derives the deterministic object name for a path within a
// transaction: sha256(original_path) prefixed by the transaction id (spec
// §4.5, §8 scenario S1).
func ObjectName(transactionID, originalPath string) string {
	h := sha256.Sum256([]byte(originalPath))
	return transactionID + "-" + hex.EncodeToString(h[:])
}

// Result partitions transfer-put's outcome into the lists spec §4.5, §7
// distinguishes: Completed moves on to catalog-update, Failed is permanent
// (Retries has reached maxRetries, or the source itself is gone) and moves
// to catalog-del, and Retrying is a transient failure still below
// maxRetries that the caller should republish to transfer-put.start after
// the matching back-off delay rather than ever handing to the marshaller as
// a terminal failure (spec §5, §8 invariant 4, Scenario S6).
type Result struct {
	Completed []core.PathDetails
	Retrying  []core.PathDetails
	Failed    []core.PathDetails
}

// Run streams every entry in filelist to bucket (the transaction id) under
// tenancy, skipping objects that already exist so a replay after a crash is
// a no-op (spec §5's idempotence requirement).
func Run(ctx context.Context, client ObjectPutter, transactionID string, filelist []core.PathDetails, maxRetries int) Result {
	var result Result
	if err := client.EnsureBucket(ctx, transactionID); err != nil {
		for _, pd := range filelist {
			classifyAndRetry(&pd, err, maxRetries, &result)
		}
		return result
	}

	for _, pd := range filelist {
		objectName := ObjectName(transactionID, pd.OriginalPath)

		exists, err := client.Exists(ctx, transactionID, objectName)
		if err == nil && exists {
			pd.ObjectName = objectName
			result.Completed = append(result.Completed, pd)
			continue
		}

		f, err := os.Open(pd.OriginalPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				pd.Fail(fmt.Sprintf("source vanished or inaccessible: %s", err))
				result.Failed = append(result.Failed, pd)
			} else {
				classifyAndRetry(&pd, err, maxRetries, &result)
			}
			continue
		}

		info, statErr := f.Stat()
		if statErr != nil {
			f.Close()
			pd.Fail(fmt.Sprintf("cannot stat source: %s", statErr))
			result.Failed = append(result.Failed, pd)
			continue
		}

		err = client.Put(ctx, transactionID, objectName, f, info.Size())
		f.Close()
		if err != nil {
			classifyAndRetry(&pd, err, maxRetries, &result)
			continue
		}

		pd.ObjectName = objectName
		result.Completed = append(result.Completed, pd)
	}
	return result
}

// classifyAndRetry appends reason to pd's retry history; once Retries
// reaches maxRetries the file is permanently failed rather than requeued
// again (spec §5, §8 invariant 4). Below that ceiling it lands in Retrying,
// never Failed, so a mid-retry item is never mistaken for a permanent one
// downstream.
func classifyAndRetry(pd *core.PathDetails, err error, maxRetries int, result *Result) {
	pd.AddRetry(err.Error())
	if pd.Retries >= maxRetries {
		pd.Fail(fmt.Sprintf("exceeded max_retries: %s", err))
		result.Failed = append(result.Failed, *pd)
		return
	}
	result.Retrying = append(result.Retrying, *pd)
}
