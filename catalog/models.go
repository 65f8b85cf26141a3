package catalog

import "time"

// StorageType distinguishes a Location's physical tier (spec §3).
type StorageType string

const (
	StorageTypeObjectStore StorageType = "OBJECT_STORE"
	StorageTypeTape        StorageType = "TAPE"
)

// Holding is a user-labelled collection of transactions (spec §3).
type Holding struct {
	ID    int64
	Label string
	User  string
	Group string
}

// Transaction is one user put-batch, possibly split into sub-transactions
// downstream, retaining a single uuid throughout (spec §3).
type Transaction struct {
	ID         int64
	UUID       string
	IngestTime time.Time
	HoldingID  int64
}

// Tag is a key/value pair attached to a Holding (spec §3).
type Tag struct {
	ID        int64
	Key       string
	Value     string
	HoldingID int64
}

// PathType mirrors core.PathType for catalog persistence.
type PathType string

// File is one catalogued filesystem entry (spec §3).
type File struct {
	ID            int64
	OriginalPath  string
	PathType      PathType
	LinkPath      string
	Size          int64
	User          string
	Group         string
	Permissions   uint32
	TransactionID int64
}

// Location is a File's physical placement, OBJECT_STORE or TAPE (spec §3).
// A File may have zero, one, or both kinds; an empty OBJECT_STORE Location
// (Path == "") is the recall-in-progress marker described in spec §3/§4.4.
type Location struct {
	ID            int64
	StorageType   StorageType
	URLScheme     string
	URLNetloc     string
	Root          string
	Path          string
	AccessTime    time.Time
	FileID        int64
	AggregationID int64 // 0 if unset
}

// Empty reports whether this is the recall-pending marker (spec §3).
func (l Location) Empty() bool {
	return l.Path == ""
}

// Aggregation is a tar-like bundle stored on tape (spec §3).
type Aggregation struct {
	ID        int64
	TarName   string
	Checksum  string
	Algorithm string
	Failed    bool
}

// Checksum is a per-file checksum record (spec §3).
type Checksum struct {
	ID        int64
	Value     string
	Algorithm string
	FileID    int64
}

// Quota tracks a group's usage against its allotment (spec §3).
type Quota struct {
	ID    int64
	Group string
	Size  int64
	Used  int64
}
