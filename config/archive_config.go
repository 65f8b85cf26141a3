package config

// archivePutQConfig configures the archive-put stage (spec §4.7, §6).
type archivePutQConfig struct {
	TapeURL  string `yaml:"tape_url"`
	TapePool string `yaml:"tape_pool"`
	// ChunkSize is the streaming chunk size, in bytes (default 5 MiB,
	// constrained by the object-store multipart minimum).
	ChunkSize int64 `yaml:"chunk_size"`
	// MaxAggregationSize bounds the size of a single tape aggregate, in
	// bytes (configurable, e.g. 5-20 GB per spec §4.7).
	MaxAggregationSize int64 `yaml:"max_aggregation_size"`
	QueryChecksum       bool   `yaml:"query_checksum"`
	// Compress zstd-compresses each aggregate's tar container before the
	// tape write, trading CPU for tape capacity.
	Compress bool `yaml:"compress"`
	// ObjectStoreEndpoint/AccessKey/SecretKey name the service-level
	// object-store credentials catalog-archive-next's background sweep
	// reads from. Unlike transfer-put/transfer-get, archiving is not
	// initiated by a live user request, so there is no per-call
	// access_key/secret_key riding along in Details to use instead.
	ObjectStoreEndpoint  string `yaml:"object_store_endpoint"`
	ObjectStoreAccessKey string `yaml:"object_store_access_key"`
	ObjectStoreSecretKey string `yaml:"object_store_secret_key"`
}

// archiveGetQConfig configures the archive-get stage (spec §4.8, §6).
type archiveGetQConfig struct {
	TapeURL  string `yaml:"tape_url"`
	TapePool string `yaml:"tape_pool"`
	// PrepareRequeueDelay is the delay, in milliseconds, before re-polling a
	// pending tape prepare (default 30000 per spec §4.8).
	PrepareRequeueDelay int `yaml:"prepare_requeue"`
	// FullUnpack governs whether a get of one tape-only file enqueues every
	// member of its Aggregation (spec §4.4, §9 Open Questions).
	FullUnpack bool `yaml:"full_unpack"`
}
