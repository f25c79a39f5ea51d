package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Key identifies stored content by its absolute URL.
type Key string

type Value []byte

var ErrClosed = errors.New("content store closed")

// Store persists fetched tile content between runs. A miss is reported with
// ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, k Key) (v Value, ok bool, err error)
	Set(ctx context.Context, k Key, v Value) error
	Close() error
}

// digest is a fixed-length, path-safe form of a key.
func (k Key) digest() string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:])
}
