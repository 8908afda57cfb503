// Package storage is the binary object collaborator: admins hand us
// poster bytes, we hand back a public URL. The Title write is attempted
// only after a successful store, so an upload failure never corrupts a
// record.
package storage

import "context"

// ObjectStore is the store(bytes) -> URL capability consumed by the
// admin surface. Implementations must be safe for concurrent use.
type ObjectStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
