package bytestore

import (
	"context"
	"fmt"

	"mn-go/internal/config"
	"mn-go/internal/encryption"
	"mn-go/internal/mn"
)

// NewStoreFromConfig creates a byte store based on the store config type,
// sealed with the configured encryption. unlock is called on the first
// read from an encrypted store; it may be nil for write-only use.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, unlock func(encryption.Encryptor) UnlockFunc) (mn.ByteStore, error) {
	base, err := newBaseStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return base, nil
	}
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("store encryption is enabled but keys are not set up (run 'mn keys init')")
	}
	var u UnlockFunc
	if unlock != nil {
		u = unlock(enc)
	}
	return NewEncryptedStore(base, enc, u), nil
}

func newBaseStore(ctx context.Context, cfg config.StoreConfig) (mn.ByteStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem store requires root to be set")
		}
		return NewFileSystemStore(cfg.Root, cfg.Compress)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
