package config

// loggingQConfig configures structured logging and log rotation, shared by
// every stage worker (spec §6).
type loggingQConfig struct {
	LogFiles    []string `yaml:"log_files"`
	MaxBytes    int      `yaml:"max_bytes"`
	BackupCount int      `yaml:"backup_count"`
	// Level is the minimum slog level name ("debug", "info", "warning", "error").
	Level string `yaml:"level"`
}

// rpcPublisherConfig configures the synchronous RPC channel (spec §4.10, §6).
type rpcPublisherConfig struct {
	// TimeLimit bounds how long a caller blocks for a reply, in seconds.
	TimeLimit int `yaml:"time_limit"`
	// QueueExclusivity requests an exclusive reply-to queue per call.
	QueueExclusivity bool `yaml:"queue_exclusivity"`
}
