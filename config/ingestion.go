package config

import (
	"os"
	"strings"
	"time"
)

const (
	DefaultIngestBatchSize        = 500
	DefaultMaxUploadSizeBytes     = 50 << 20
	DefaultIngestMaxConcurrentJob = 4
	DefaultStaleClaimAfter        = 15 * time.Minute
)

// IngestBatchSize is the number of financial records flushed per insert.
//
// Set via env:
// - INGEST_BATCH_SIZE=500
func IngestBatchSize() int {
	if n := intFromEnv("INGEST_BATCH_SIZE", DefaultIngestBatchSize); n > 0 {
		return n
	}
	return DefaultIngestBatchSize
}

// IngestStaleClaimAfter is how long a PROCESSING dataset stays leased to the worker
// that claimed it. After that another delivery may reclaim it.
//
// Set via env:
// - INGEST_STALE_CLAIM_SECONDS=900
func IngestStaleClaimAfter() time.Duration {
	if n := intFromEnv("INGEST_STALE_CLAIM_SECONDS", 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return DefaultStaleClaimAfter
}

// IngestMaxConcurrentJobs bounds how many jobs one worker process runs in parallel.
func IngestMaxConcurrentJobs() int {
	if n := intFromEnv("INGEST_MAX_CONCURRENT_JOBS", DefaultIngestMaxConcurrentJob); n > 0 {
		return n
	}
	return DefaultIngestMaxConcurrentJob
}

func MaxUploadSizeBytes() int64 {
	if n := intFromEnv("MAX_UPLOAD_SIZE_BYTES", 0); n > 0 {
		return int64(n)
	}
	return DefaultMaxUploadSizeBytes
}

// UploadDir is the root directory for the local storage provider.
func UploadDir() string {
	if v := strings.TrimSpace(os.Getenv("UPLOAD_DIR")); v != "" {
		return v
	}
	return "uploads"
}

// CacheLifespan controls how long dashboard summaries stay cached in redis.
//
// Set via env:
// - CACHE_LIFESPAN_MINUTES=10
func CacheLifespan() time.Duration {
	if n := intFromEnv("CACHE_LIFESPAN_MINUTES", 0); n > 0 {
		return time.Duration(n) * time.Minute
	}
	return 10 * time.Minute
}

func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}
