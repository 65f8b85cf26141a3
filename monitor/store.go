package monitor

import (
	"context"
	"fmt"
	"sync"
)

// Store is the Monitor's persistence contract (spec §4.9): ratcheted
// sub-transaction state plus the failure/warning log behind it. All writes
// are expected to be serialised through a single-consumer, prefetch=1
// queue (spec §5); the sqlite implementation also serialises every call,
// reads included, through one mutex-guarded connection.
type Store interface {
	// CreateTransaction records a new TransactionRecord, idempotent on
	// TransactionID.
	CreateTransaction(ctx context.Context, tr TransactionRecord) (int64, error)
	// UpsertSubRecord creates sub if absent, or applies Ratchet against the
	// stored state if present. Returns the resulting state and whether it
	// changed.
	UpsertSubRecord(ctx context.Context, sub SubRecord) (State, bool, error)
	// RecordFailure appends a FailedFile to sub_id's log and ratchets its
	// state to StateFailed.
	RecordFailure(ctx context.Context, subID string, failures []FailedFile) error
	// RecordWarning appends a Warning to a TransactionRecord.
	RecordWarning(ctx context.Context, transactionID, warning string) error
	// TransactionStatus returns the TransactionRecord, its SubRecords, and
	// the rolled-up overall State (spec §4.9's Rollup).
	TransactionStatus(ctx context.Context, transactionID string) (TransactionRecord, []SubRecord, State, error)
	Close() error
}

// registry-factory pattern grounded on the teacher's databases.NewDatabase:
// a package-level map of named constructors, keyed by db_engine.
var engines = map[string]func(options map[string]string) (Store, error){}

// RegisterEngine adds a named Store constructor. Engine packages call this
// from an init() function, the same registration shape the teacher uses
// for endpoint/database providers.
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
