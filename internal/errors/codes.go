package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotSupported    ErrorCode = "not_supported"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Lifecycle errors
	ErrInitFailed      ErrorCode = "initialization_failed"
	ErrShutdownFailed  ErrorCode = "shutdown_failed"
	ErrAlreadyRunning  ErrorCode = "already_running"
	ErrAlreadyRestored ErrorCode = "already_restored"

	// Telemetry source errors
	ErrSourceUnavailable ErrorCode = "source_unavailable"
	ErrSourceParse       ErrorCode = "source_parse_failed"
	ErrSourceWrite       ErrorCode = "source_write_failed"

	// Persistence errors
	ErrPersistenceUnavailable ErrorCode = "persistence_unavailable"
	ErrPersistenceCorrupt     ErrorCode = "persistence_corrupt"
	ErrCounterRegression      ErrorCode = "counter_regression"
	ErrInvalidCounter         ErrorCode = "invalid_counter"

	// Monitor chain errors
	ErrHandlerFault   ErrorCode = "handler_fault"
	ErrHandlerPanic   ErrorCode = "handler_panic"
	ErrHandlerOverrun ErrorCode = "handler_overrun"

	// Boundary errors
	ErrExportFailed ErrorCode = "export_failed"
	ErrInvalidInput ErrorCode = "invalid_input"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:               "Internal error occurred",
	ErrInvalidArgument:        "Invalid argument provided",
	ErrNotSupported:           "Operation not supported",
	ErrInvalidConfig:          "Invalid configuration",
	ErrReadConfig:             "Failed to read configuration",
	ErrBindFlags:              "Failed to bind flags",
	ErrInvalidInterval:        "Invalid interval value",
	ErrInvalidLogLevel:        "Invalid log level",
	ErrInitFailed:             "Initialization failed",
	ErrShutdownFailed:         "Shutdown failed",
	ErrAlreadyRunning:         "Another instance is already running",
	ErrAlreadyRestored:        "Counter already restored",
	ErrSourceUnavailable:      "Telemetry source unavailable",
	ErrSourceParse:            "Failed to parse telemetry source",
	ErrSourceWrite:            "Failed to write telemetry attribute",
	ErrPersistenceUnavailable: "Persistent storage unavailable",
	ErrPersistenceCorrupt:     "Persisted value is corrupt",
	ErrCounterRegression:      "Counter regressed below backed-up value",
	ErrInvalidCounter:         "Counter value is invalid",
	ErrHandlerFault:           "Monitor handler failed",
	ErrHandlerPanic:           "Monitor handler panicked",
	ErrHandlerOverrun:         "Monitor handler exceeded its deadline",
	ErrExportFailed:           "Failed to export service",
	ErrInvalidInput:           "Invalid input",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
