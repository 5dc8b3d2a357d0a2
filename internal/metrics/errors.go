package metrics

import "codeberg.org/mutker/thrud/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("metrics_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("metrics_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("metrics_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("metrics_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("metrics_transaction_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("metrics_storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed

	// Validation Errors
	ErrInvalidSample = errors.ErrorCode("metrics_invalid_sample")
	ErrEmptyRound    = errors.ErrorCode("metrics_empty_round")
	ErrInvalidChart  = errors.ErrorCode("metrics_invalid_chart")
	ErrInvalidQuery  = errors.ErrorCode("metrics_invalid_query")
	ErrCorruptRow    = errors.ErrorCode("metrics_corrupt_row")
)
