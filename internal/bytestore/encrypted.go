package bytestore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"mn-go/internal/encryption"
	"mn-go/internal/mn"
)

// UnlockFunc returns the unlocked private key of an encrypted store.
type UnlockFunc func() (encryption.DecryptionContext, error)

// EncryptedStore seals bytes with an Encryptor before handing them to the
// wrapped store. Writing needs only the public key; the private key is
// unlocked on the first Open.
type EncryptedStore struct {
	inner  mn.ByteStore
	enc    encryption.Encryptor
	unlock UnlockFunc

	mu  sync.Mutex
	dec encryption.DecryptionContext
}

// NewEncryptedStore wraps inner. unlock may be nil for write-only use.
func NewEncryptedStore(inner mn.ByteStore, enc encryption.Encryptor, unlock UnlockFunc) *EncryptedStore {
	return &EncryptedStore{inner: inner, enc: enc, unlock: unlock}
}

// Put encrypts r into the wrapped store. size counts plaintext bytes.
func (e *EncryptedStore) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- e.seal(pw, r, size)
	}()

	u, err := e.inner.Put(ctx, key, pr, -1)
	pr.Close() // unblocks the sealer if the inner store stopped reading
	sealErr := <-done
	if err != nil {
		return "", err
	}
	if sealErr != nil {
		e.inner.Delete(context.WithoutCancel(ctx), u)
		return "", sealErr
	}
	return u, nil
}

func (e *EncryptedStore) seal(pw *io.PipeWriter, r io.Reader, size int64) (err error) {
	defer func() { pw.CloseWithError(err) }()

	w, err := e.enc.Encrypt(pw)
	if err != nil {
		return fmt.Errorf("starting encryption: %w", err)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := checkSize(size, n); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Open decrypts the bytes stored at u.
func (e *EncryptedStore) Open(ctx context.Context, u string) (io.ReadCloser, error) {
	dec, err := e.decryption()
	if err != nil {
		return nil, err
	}
	rc, err := e.inner.Open(ctx, u)
	if err != nil {
		return nil, err
	}
	r, err := dec.Decrypt(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("decrypting %s: %w", u, err)
	}
	return readCloser{Reader: r, close: rc.Close}, nil
}

func (e *EncryptedStore) Exists(ctx context.Context, u string) (bool, error) {
	return e.inner.Exists(ctx, u)
}

func (e *EncryptedStore) Delete(ctx context.Context, u string) error {
	return e.inner.Delete(ctx, u)
}

func (e *EncryptedStore) decryption() (encryption.DecryptionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dec != nil {
		return e.dec, nil
	}
	if e.unlock == nil {
		return nil, fmt.Errorf("encrypted store is locked")
	}
	dec, err := e.unlock()
	if err != nil {
		return nil, err
	}
	e.dec = dec
	return dec, nil
}

// Compile-time check that EncryptedStore implements mn.ByteStore
var _ mn.ByteStore = (*EncryptedStore)(nil)
