package counterstore

import "codeberg.org/mutker/healthd/internal/errors"

const (
	ErrStoreUnavailable = errors.ErrPersistenceUnavailable
	ErrInvalidKey       = errors.ErrorCode("counterstore_invalid_key")
	ErrStoreClosed      = errors.ErrorCode("counterstore_closed")
	ErrSchemaInitFailed = errors.ErrorCode("counterstore_schema_init_failed")
)

type phaseError struct {
	Phase string
	Key   string
	Error string
}
