// Package secret holds shared authentication keys for the lifetime of one IPC call.
//
// A Key copies the decoded credential into memory that is zeroed on Close and,
// on unix, lives outside the Go heap and is locked against swap when the
// process limits allow it.
package secret

import (
	"errors"
	"sync"
)

// ErrEmptyKey rejects zero-length key material.
var ErrEmptyKey = errors.New("secret: key must not be empty")

// Key is a shared secret used as an HMAC key. It must not be copied after creation.
type Key struct {
	mu     sync.Mutex
	data   []byte
	region region
	closed bool
}

// FromBytes copies source into protected memory and zeroes source in place.
func FromBytes(source []byte) (*Key, error) {
	if len(source) == 0 {
		return nil, ErrEmptyKey
	}

	r, err := allocate(len(source))
	if err != nil {
		return nil, err
	}
	data := r.bytes()
	copy(data, source)
	clear(source)

	return &Key{data: data, region: r}, nil
}

// Bytes returns the key material. Panics after Close.
func (k *Key) Bytes() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		panic("secret: read from closed key")
	}
	return k.data
}

// Len returns the key size in bytes.
func (k *Key) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.data)
}

// Close zeroes and releases the key. Close is idempotent.
func (k *Key) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	clear(k.data)
	k.data = nil
	return k.region.release()
}
