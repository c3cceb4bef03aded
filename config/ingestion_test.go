package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIngestBatchSize_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("INGEST_BATCH_SIZE", "")
	assert.Equal(t, DefaultIngestBatchSize, IngestBatchSize())

	t.Setenv("INGEST_BATCH_SIZE", "250")
	assert.Equal(t, 250, IngestBatchSize())

	t.Setenv("INGEST_BATCH_SIZE", "0")
	assert.Equal(t, DefaultIngestBatchSize, IngestBatchSize())

	t.Setenv("INGEST_BATCH_SIZE", "lots")
	assert.Equal(t, DefaultIngestBatchSize, IngestBatchSize())
}

func TestIngestStaleClaimAfter(t *testing.T) {
	t.Setenv("INGEST_STALE_CLAIM_SECONDS", "")
	assert.Equal(t, DefaultStaleClaimAfter, IngestStaleClaimAfter())

	t.Setenv("INGEST_STALE_CLAIM_SECONDS", "30")
	assert.Equal(t, 30*time.Second, IngestStaleClaimAfter())
}

func TestMaxUploadSizeBytes(t *testing.T) {
	t.Setenv("MAX_UPLOAD_SIZE_BYTES", "")
	assert.Equal(t, int64(DefaultMaxUploadSizeBytes), MaxUploadSizeBytes())

	t.Setenv("MAX_UPLOAD_SIZE_BYTES", "1024")
	assert.Equal(t, int64(1024), MaxUploadSizeBytes())
}

func TestMysqlDSN_CloudSQLSocket(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "finrating")
	t.Setenv("DB_HOST", "/cloudsql/proj:region:instance")
	t.Setenv("DB_PORT", "")

	dsn := mysqlDSN()
	assert.Contains(t, dsn, "app:pw@unix(/cloudsql/proj:region:instance)/finrating")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestMysqlDSN_TCP(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "finrating")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "3306")

	assert.Contains(t, mysqlDSN(), "app:pw@tcp(127.0.0.1:3306)/finrating")
}

func TestTracingSampleRatio(t *testing.T) {
	t.Setenv("OTEL_SAMPLER_RATIO", "")
	assert.Equal(t, 0.1, tracingSampleRatio())

	t.Setenv("OTEL_SAMPLER_RATIO", "0.5")
	assert.Equal(t, 0.5, tracingSampleRatio())

	t.Setenv("OTEL_SAMPLER_RATIO", "7")
	assert.Equal(t, 1.0, tracingSampleRatio())

	t.Setenv("OTEL_SAMPLER_RATIO", "-1")
	assert.Equal(t, 0.0, tracingSampleRatio())
}

func TestOtlpHeaders(t *testing.T) {
	assert.Nil(t, otlpHeaders(""))
	assert.Nil(t, otlpHeaders("novalue,=x"))
	assert.Equal(t, map[string]string{"api-key": "abc", "team": "risk"}, otlpHeaders(" api-key=abc , team=risk,broken"))
}

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	shutdown := InitTracing(context.Background(), GetLogger())
	assert.NoError(t, shutdown(context.Background()))
}
