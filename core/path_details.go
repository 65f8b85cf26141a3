package core

// PathType distinguishes the kinds of filesystem entry the indexer can
// encounter while walking a user's file list (spec §3, §4.3).
type PathType string

const (
	PathTypeFile          PathType = "file"
	PathTypeDirectory     PathType = "directory"
	PathTypeLinkCommon    PathType = "link-common"
	PathTypeLinkAbsolute  PathType = "link-absolute"
)

// PathDetails is the unit of work carried through every stage: one
// filesystem entry, annotated with everything downstream stages need and
// everything upstream stages need to know about how many times it has
// failed.
type PathDetails struct {
	OriginalPath string `json:"original_path"`
	// ObjectName is assigned deterministically once transfer-put succeeds
	// (sha256 of OriginalPath, prefixed by the transaction id).
	ObjectName string `json:"object_name,omitempty"`
	Size       int64  `json:"size"`
	UID        int    `json:"uid"`
	GID        int    `json:"gid"`
	Permissions uint32 `json:"permissions"`
	AccessTime  int64  `json:"access_time"`
	PathType    PathType `json:"path_type"`
	LinkTarget  string   `json:"link_target,omitempty"`

	Retries      int      `json:"retries"`
	RetryReasons []string `json:"retry_reasons,omitempty"`

	// FailReason, when set, records why this entry was moved to a failed
	// partition; it is distinct from RetryReasons, which accumulate across
	// retryable attempts.
	FailReason string `json:"fail_reason,omitempty"`

	// TapeLocation and ObjectLocation are optional per-location hints a
	// stage may attach so the next stage doesn't need to re-resolve the
	// catalog (e.g. archive-get filling in where on tape a member sits).
	TapeLocation   string `json:"tape_location,omitempty"`
	ObjectLocation string `json:"object_location,omitempty"`
}

// AddRetry records a retryable failure, incrementing Retries and appending
// reason to RetryReasons. Callers compare Retries against
// config.General.MaxRetries to decide whether to give up.
func (pd *PathDetails) AddRetry(reason string) {
	pd.Retries++
	pd.RetryReasons = append(pd.RetryReasons, reason)
}

// Fail moves this entry into a failed partition with a terminal,
// non-retryable reason.
func (pd *PathDetails) Fail(reason string) {
	pd.FailReason = reason
}

// Failed reports whether Fail has been called on this entry.
func (pd *PathDetails) Failed() bool {
	return pd.FailReason != ""
}

// IsSymlink reports whether PathType is one of the two link variants.
func (pd *PathDetails) IsSymlink() bool {
	return pd.PathType == PathTypeLinkCommon || pd.PathType == PathTypeLinkAbsolute
}
