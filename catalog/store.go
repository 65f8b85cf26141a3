package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/nlds-storage/nlds/core"
)

// RoleChecker is the injected capability spec §4.4 and §9 describe: a
// single interface standing in for "dynamic dispatch of authenticators" so
// the role lookup used by delete permission checks can be swapped without
// touching catalog logic. The default (auth.RoleChecker over
// auth.DefaultAuthenticator) always returns "user".
type RoleChecker interface {
	RoleOf(ctx context.Context, principal, group string) (string, error)
}

// Store is the Catalog's persistence contract (spec §4.4): holdings,
// transactions, files, locations, aggregations, checksums and quotas,
// exposed as the fixed set of operations named in spec §4.4, each expected
// to run through a single-consumer queue (spec §5) to avoid write races.
type Store interface {
	// CatalogPut implements catalog-put.start: resolves or creates the
	// Holding, appends a Transaction, and creates a provisional File for
	// each successful PathDetails. Duplicates of (holding, original_path)
	// are moved to the returned failed list rather than erroring the whole
	// batch.
	CatalogPut(ctx context.Context, req PutRequest) (completed, failed []core.PathDetails, err error)
	// CatalogUpdate implements catalog-update.start: attaches an
	// OBJECT_STORE Location to each transferred File.
	CatalogUpdate(ctx context.Context, transactionID, tenancy string, files []core.PathDetails) error
	// CatalogDel implements catalog-del.start: removes provisional File
	// rows (used to undo a failed transfer-put, spec §4.2). group scopes the
	// delete to files owned by that group; role, resolved by the caller's
	// RoleChecker, lets a deputy or manager delete a file owned by another
	// user within the same group, matching spec §4.4's group-based access
	// model. A plain user may only delete files they themselves own.
	CatalogDel(ctx context.Context, transactionID, user, group, role string, files []core.PathDetails) error
	// CatalogRemove implements catalog-remove.start: strips the empty
	// OBJECT_STORE Location created for a pending recall (used on
	// archive-get failure, spec §4.2, §4.8).
	CatalogRemove(ctx context.Context, transactionID string, files []core.PathDetails) error
	// CatalogGet implements catalog-get.start: resolves Files by any of the
	// supplied selectors and partitions them into a direct-transfer list
	// (OBJECT_STORE Location already present), an archive-restore list
	// (TAPE-only, with a fresh empty OBJECT_STORE marker created), and a
	// failed list (no Location at all).
	CatalogGet(ctx context.Context, req GetRequest) (GetResult, error)
	// CatalogArchiveNext implements catalog-archive-next.start: selects the
	// oldest Holding with any File lacking a TAPE Location, and stakes an
	// empty TAPE Location for each such File so a concurrent pass can't
	// double-archive it.
	CatalogArchiveNext(ctx context.Context, defaultTapeURL string) (holdingLabel string, candidates []core.PathDetails, err error)
	// CatalogArchiveUpdate implements catalog-archive-update.start: creates
	// or reuses an Aggregation and fills in the TAPE Location for each
	// completed member.
	CatalogArchiveUpdate(ctx context.Context, agg Aggregation, members []core.PathDetails) error
	// CatalogArchiveDel/Remove implement catalog-archive-del/remove.start:
	// strip the empty TAPE (resp. OBJECT_STORE) Locations staked before a
	// failed archive-put (resp. archive-get) so the next cycle retries
	// cleanly.
	CatalogArchiveDel(ctx context.Context, files []core.PathDetails) error

	// ListHoldings implements the list-holdings query endpoint (spec §6):
	// every Holding owned by user within group, optionally narrowed by a
	// label match.
	ListHoldings(ctx context.Context, user, group, label string) ([]Holding, error)
	// FindFiles implements the find-files query endpoint (spec §6): every
	// File belonging to group, optionally narrowed to the given original
	// paths.
	FindFiles(ctx context.Context, group string, originalPaths []string) ([]core.PathDetails, error)
	// GetQuota implements the read-quota query endpoint (spec §6): group's
	// allotment and current usage.
	GetQuota(ctx context.Context, group string) (Quota, error)

	Close() error
}

// PutRequest carries the identity and target parameters catalog-put needs
// beyond the filelist itself (spec §4.4).
type PutRequest struct {
	User, Group   string
	TransactionID string
	HoldingLabel  string
	Tags          map[string]string
	Files         []core.PathDetails
}

// GetRequest carries the selector set catalog-get resolves by (spec §4.4):
// any combination of original path, transaction, holding, or tag map.
type GetRequest struct {
	User, Group    string
	OriginalPaths  []string
	TransactionID  string
	HoldingID      int64
	HoldingLabel   string
	Tags           map[string]string
	FullUnpack     bool
}

// GetResult partitions a catalog-get's resolved Files into the three lists
// spec §4.4 names.
type GetResult struct {
	TransferList []core.PathDetails
	ArchiveList  []core.PathDetails
	FailedList   []core.PathDetails
}

// registry-factory pattern, grounded on the teacher's databases.NewDatabase
// (package-level map of named constructors).
var engines = map[string]func(options map[string]string) (Store, error){}

// RegisterEngine adds a named Store constructor, called from an engine
// package's init().
func RegisterEngine(name string, ctor func(options map[string]string) (Store, error)) {
	engines[name] = ctor
}

var (
	cacheMu sync.Mutex
	cache   = map[string]Store{}
)

// NewStore returns the cached Store for (engine, options), constructing it
// on first use.
func NewStore(engine string, options map[string]string) (Store, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	key := fmt.Sprintf("%s:%v", engine, options)
	if s, found := cache[key]; found {
		return s, nil
	}
	ctor, found := engines[engine]
	if !found {
		return nil, &UnsupportedEngineError{Engine: engine}
	}
	s, err := ctor(options)
	if err != nil {
		return nil, err
	}
	cache[key] = s
	return s, nil
}
