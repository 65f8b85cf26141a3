package monitor

import "time"

// TransactionRecord is the user-visible top-level record for one put/get/
// del/archive-put request (spec §3).
type TransactionRecord struct {
	ID            int64
	TransactionID string
	JobLabel      string
	User          string
	Group         string
	APIAction     string
	CreationTime  time.Time
}

// SubRecord tracks one sub-transaction's progress through the ratchet
// (spec §3, §4.9).
type SubRecord struct {
	ID            int64
	SubID         string
	TransactionID string
	State         State
	RetryCount    int
	LastUpdated   time.Time
}

// FailedFile records a permanent per-file failure attributed to a
// SubRecord (spec §3, §7).
type FailedFile struct {
	ID          int64
	FilePath    string
	Reason      string
	SubRecordID int64
}

// Warning records a non-fatal, transaction-scoped notice supplementing the
// Monitor model with the original source's Warning entity (SPEC_FULL §3).
type Warning struct {
	ID                  int64
	Warning             string
	TransactionRecordID int64
}
