// Package secure holds secret material in protected memory.
//
// The authentication password and the fetched secret value live in a
// memguard enclave between uses: encrypted at rest in memory, guarded
// against swapping, and wiped on destruction. Callers open the buffer
// only for the duration of a single request body and destroy the
// plaintext immediately after.
package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed buffer is opened.
var ErrDestroyed = errors.New("secure buffer already destroyed")

// Buffer is a protected container for one secret value.
type Buffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// NewBuffer seals data into a protected buffer. The caller should not
// retain the input slice; the enclave keeps its own encrypted copy.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{enclave: memguard.NewEnclave(data)}
}

// NewBufferFromString seals a string value.
func NewBufferFromString(s string) *Buffer {
	return NewBuffer([]byte(s))
}

// Open decrypts the buffer and returns the plaintext in a locked
// region. The caller must Destroy the returned LockedBuffer when done.
func (b *Buffer) Open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return nil, ErrDestroyed
	}
	return b.enclave.Open()
}

// WithValue opens the buffer, passes the plaintext to fn, and wipes the
// plaintext before returning. The string must not escape fn.
func (b *Buffer) WithValue(fn func(value string) error) error {
	locked, err := b.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.String())
}

// Destroy prevents further use of the buffer. Idempotent; after
// Destroy, Open returns ErrDestroyed.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}

// Purge wipes all memguard-managed memory. Call once on process exit.
func Purge() {
	memguard.Purge()
}
