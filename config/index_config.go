package config

// indexQConfig configures the indexer stage (spec §4.3, §6).
type indexQConfig struct {
	// FilelistMaxLength (L) bounds the number of paths per sub-transaction
	// and per completed index batch.
	FilelistMaxLength int `yaml:"filelist_max_length"`
	// MessageThreshold (B) is the cumulative byte threshold at which an index
	// batch is flushed early, in bytes.
	MessageThreshold int64 `yaml:"message_threshold"`
	CheckPermissions bool  `yaml:"check_permissions"`
	CheckFilesize    bool  `yaml:"check_filesize"`
	// MaxFilesize is the per-file ceiling, in bytes (default 500 GB, set by
	// tape-cache size per spec §4.3).
	MaxFilesize int64 `yaml:"max_filesize"`
}
