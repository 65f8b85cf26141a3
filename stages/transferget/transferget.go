// Package transferget implements spec §4.6: stream objects from the
// object store to POSIX disk, restoring ownership, group and mode, and
// chunking oversized input lists into sublists of bounded length.
package transferget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nlds-storage/nlds/core"
)

// ObjectGetter is the subset of objectstore.Client transfer-get depends on.
type ObjectGetter interface {
	Get(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// Chowner restores ownership of a target path, per spec §4.6's injected
// capability: "model this as an injected capability with a boolean enable
// flag and an executable name." DirectChowner calls os.Chown directly (when
// the running process has the privilege); HelperChowner shells out to an
// external setuid helper, grounded on the teacher's go:generate pattern of
// invoking external tools via os/exec and on itchio-butler's os/exec-based
// 7-Zip invocation.
type Chowner interface {
	Chown(path string, uid, gid int) error
}

// DirectChowner calls os.Chown in-process.
type DirectChowner struct{}

func (DirectChowner) Chown(path string, uid, gid int) error { return os.Chown(path, uid, gid) }

// Chunk splits filelist into sublists of at most l entries (default 1000),
// one per transfer-get.start message (spec §4.6).
func Chunk(filelist []core.PathDetails, l int) [][]core.PathDetails {
	if l <= 0 {
		l = 1000
	}
	var out [][]core.PathDetails
	for i := 0; i < len(filelist); i += l {
		end := i + l
		if end > len(filelist) {
			end = len(filelist)
		}
		out = append(out, filelist[i:end])
	}
	return out
}

// Result partitions transfer-get's outcome, mirroring transfer-put's
// Completed/Retrying/Failed split (spec §5, §7): Retrying is a transient
// failure still below maxRetries that the caller should republish to
// transfer-get.start after the matching back-off delay; Failed is
// permanent and is the only partition for which Failed() is true.
type Result struct {
	Completed []core.PathDetails
	Retrying  []core.PathDetails
	Failed    []core.PathDetails
}

// Run streams each entry's OBJECT_STORE object to target/original_path (or
// creates the recorded symlink), restoring ownership and mode from
// PathDetails (spec §4.6).
func Run(ctx context.Context, client ObjectGetter, chowner Chowner, bucket, target string, filelist []core.PathDetails, maxRetries int) Result {
	var result Result
	for _, pd := range filelist {
		destPath := target + "/" + pd.OriginalPath

		if pd.IsSymlink() {
			if err := os.Symlink(pd.LinkTarget, destPath); err != nil {
				pd.Fail(fmt.Sprintf("creating symlink: %s", err))
				result.Failed = append(result.Failed, pd)
				continue
			}
			result.Completed = append(result.Completed, pd)
			continue
		}

		if err := copyObject(ctx, client, chowner, bucket, destPath, pd); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				pd.Fail(fmt.Sprintf("object missing from object store: %s", err))
				result.Failed = append(result.Failed, pd)
				continue
			}
			pd.AddRetry(err.Error())
			if pd.Retries >= maxRetries {
				pd.Fail(fmt.Sprintf("exceeded max_retries: %s", err))
				result.Failed = append(result.Failed, pd)
			} else {
				result.Retrying = append(result.Retrying, pd)
			}
			continue
		}
		result.Completed = append(result.Completed, pd)
	}
	return result
}

func copyObject(ctx context.Context, client ObjectGetter, chowner Chowner, bucket, destPath string, pd core.PathDetails) error {
	obj, err := client.Get(ctx, bucket, pd.ObjectName)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", pd.ObjectName, err)
	}
	defer obj.Close()

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(pd.Permissions))
	if err != nil {
		return fmt.Errorf("opening destination %s: %w", destPath, err)
	}
	if _, err := io.Copy(f, obj); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if chowner != nil {
		if err := chowner.Chown(destPath, pd.UID, pd.GID); err != nil {
			return fmt.Errorf("restoring ownership of %s: %w", destPath, err)
		}
	}
	return nil
}
