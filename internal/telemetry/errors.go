package telemetry

import "codeberg.org/mutker/thrud/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")

	// Registration Errors
	ErrRegisterFailed = errors.ErrorCode("telemetry_register_failed")

	// Operation Errors
	ErrServeFailed     = errors.ErrorCode("telemetry_serve_failed")
	ErrServiceShutdown = errors.ErrorCode("telemetry_service_shutdown_failed")
)
