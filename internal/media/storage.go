package media

import (
	"context"
	"errors"
)

// ErrForeignAddress is reported for addresses that do not belong to the
// configured bucket.
var ErrForeignAddress = errors.New("media: address outside managed storage")

// Storage is the object store that permanent references resolve against.
type Storage interface {
	// List returns names, relative to prefix, of objects under prefix whose
	// name starts with pattern.
	List(ctx context.Context, prefix, pattern string) ([]string, error)
	Put(ctx context.Context, key string, p Pending) error
	// PublicURL returns the permanent reference for key.
	PublicURL(key string) string
	// Delete removes the objects behind addresses. It keeps going after
	// individual failures and reports them joined.
	Delete(ctx context.Context, addresses []string) error
}
