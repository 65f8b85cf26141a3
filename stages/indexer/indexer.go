// Package indexer implements spec §4.3: expanding a user's raw file list
// into verified PathDetails, split into sub-transactions of bounded size
// and walked in batches bounded by count and cumulative byte size.
package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	"github.com/nlds-storage/nlds/core"
)

// Options configures a Split/Walk pass, mirroring config.IndexQ (spec §6).
type Options struct {
	FilelistMaxLength int
	MessageThreshold  int64
	CheckPermissions  bool
	CheckFilesize     bool
	MaxFilesize       int64
}

// SubTransaction is one chunk of the original file list, addressed by a
// fresh sub_id under the parent transaction (spec §4.3's split step).
type SubTransaction struct {
	SubID string
	Paths []string
}

// Split implements the "init" entry state: chunk a raw path list of length
// N into ceil(N/L) SubTransactions of at most L paths each (spec §4.3,
// §8's boundary behaviours).
func Split(paths []string, opts Options) []SubTransaction {
	l := opts.FilelistMaxLength
	if l <= 0 {
		l = 1000
	}
	if len(paths) == 0 {
		return nil
	}
	var subs []SubTransaction
	for i := 0; i < len(paths); i += l {
		end := i + l
		if end > len(paths) {
			end = len(paths)
		}
		subs = append(subs, SubTransaction{SubID: uuid.NewString(), Paths: paths[i:end]})
	}
	return subs
}

// Batch is one flushed group of successfully-indexed entries, emitted once
// it reaches FilelistMaxLength entries or MessageThreshold cumulative bytes
// (spec §4.3's "start" entry state).
type Batch struct {
	Completed []core.PathDetails
	Failed    []core.PathDetails
}

// Walk performs the "start" entry state: stat each path, recursing into
// directories depth-first, classifying every entry, and flushing Batches as
// the running count/size crosses the configured thresholds. The returned
// slice is the ordered sequence of batches to emit as index.complete.
func Walk(paths []string, uid, gid int, gids []int, opts Options) []Batch {
	w := &walker{opts: opts, uid: uid, gid: gid, gids: gids, root: commonRoot(paths)}
	for _, p := range paths {
		w.visit(p)
	}
	w.flush()
	return w.batches
}

type walker struct {
	opts Options
	uid, gid int
	gids []int
	root string

	batches []Batch
	current Batch
	currentSize int64
}

func (w *walker) visit(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		w.fail(path, "file not found")
		return
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		w.visitSymlink(path)
		return
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			w.fail(path, "permission denied")
			return
		}
		for _, e := range entries {
			w.visit(filepath.Join(path, e.Name()))
		}
		return
	}

	w.visitFile(path, info)
}

func (w *walker) visitFile(path string, info fs.FileInfo) {
	if w.opts.CheckPermissions && !w.readable(info) {
		w.fail(path, "permission denied")
		return
	}
	if w.opts.CheckFilesize && w.opts.MaxFilesize > 0 && info.Size() > w.opts.MaxFilesize {
		w.fail(path, "file too large")
		return
	}

	pd := core.PathDetails{
		OriginalPath: path,
		Size:         info.Size(),
		Permissions:  uint32(info.Mode().Perm()),
		PathType:     core.PathTypeFile,
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		pd.UID = int(st.Uid)
		pd.GID = int(st.Gid)
		pd.AccessTime = st.Atim.Sec
	}
	w.add(pd)
}

func (w *walker) visitSymlink(path string) {
	target, err := os.Readlink(path)
	if err != nil {
		w.fail(path, "file not found")
		return
	}
	pathType := core.PathTypeLinkAbsolute
	if filepath.IsAbs(target) {
		resolved := target
		if withinRoot(resolved, w.root) {
			pathType = core.PathTypeLinkCommon
		}
	} else {
		resolved := filepath.Join(filepath.Dir(path), target)
		if withinRoot(resolved, w.root) {
			pathType = core.PathTypeLinkCommon
		}
	}
	w.add(core.PathDetails{OriginalPath: path, PathType: pathType, LinkTarget: target})
}

func (w *walker) readable(info fs.FileInfo) bool {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return true
	}
	if int(st.Uid) == w.uid {
		return info.Mode().Perm()&0400 != 0
	}
	for _, g := range w.gids {
		if int(st.Gid) == g {
			return info.Mode().Perm()&0040 != 0
		}
	}
	return info.Mode().Perm()&0004 != 0
}

func (w *walker) add(pd core.PathDetails) {
	w.current.Completed = append(w.current.Completed, pd)
	w.currentSize += pd.Size
	l := w.opts.FilelistMaxLength
	if l <= 0 {
		l = 1000
	}
	threshold := w.opts.MessageThreshold
	if len(w.current.Completed)+len(w.current.Failed) >= l || (threshold > 0 && w.currentSize >= threshold) {
		w.flush()
	}
}

func (w *walker) fail(path, reason string) {
	pd := core.PathDetails{OriginalPath: path}
	pd.Fail(reason)
	w.current.Failed = append(w.current.Failed, pd)
}

func (w *walker) flush() {
	if len(w.current.Completed) == 0 && len(w.current.Failed) == 0 {
		return
	}
	w.batches = append(w.batches, w.current)
	w.current = Batch{}
	w.currentSize = 0
}

// commonRoot is the shared ancestor directory of a batch's input paths,
// used to classify symlinks as link-common vs link-absolute (spec §4.3).
func commonRoot(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	root := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		root = commonPrefix(root, filepath.Dir(p))
	}
	return root
}

func commonPrefix(a, b string) string {
	for {
		if a == b {
			return a
		}
		if len(a) > len(b) {
			a = filepath.Dir(a)
		} else {
			b = filepath.Dir(b)
		}
		if a == "." || a == "/" {
			return a
		}
	}
}

func withinRoot(target, root string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && len(rel) > 0 && rel[0] != '.'
}

// LookupGroups resolves the union of a user's primary and supplementary
// gids from the host name service (spec §4.3's permission-check basis),
// using stdlib os/user: no retrieved example repo ships a name-service
// client, and this is a thin OS lookup rather than a domain concern worth a
// third-party dependency.
func LookupGroups(username string) (uid int, gids []int, err error) {
	u, err := user.Lookup(username)
	if err != nil {
		return 0, nil, fmt.Errorf("indexer: looking up user %q: %w", username, err)
	}
	uid, err = strconv.Atoi(u.Uid)
	if err != nil {
		return 0, nil, err
	}
	gidStrs, err := u.GroupIds()
	if err != nil {
		return uid, nil, err
	}
	for _, g := range gidStrs {
		gid, err := strconv.Atoi(g)
		if err == nil {
			gids = append(gids, gid)
		}
	}
	return uid, gids, nil
}
