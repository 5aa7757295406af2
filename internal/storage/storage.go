// Package storage holds the backends a cart state is persisted to. Every backend stores one
// opaque value per key and overwrites it on Save.
package storage

import "errors"

// ErrNotFound is returned by Load when nothing is stored under the key.
var ErrNotFound = errors.New("storage: key not found")
