// Package counterstore persists small counter blobs outside their live location.
package counterstore

// Store is durable key/value storage for counter backups.
//
// Load reports ok=false with a nil error when the key has never been stored.
// Store is atomic from the caller's perspective: a failed Store leaves the
// previous value in place.
type Store interface {
	Load(key string) (value []byte, ok bool, err error)
	Store(key string, value []byte) error
	Close() error
}
