package encryption

import "fmt"

// Unlocked pairs an Encryptor with its unlocked private key.
type Unlocked struct {
	Encryptor
	DecryptionContext
}

// UnlockWith unlocks e with the passphrase returned by read.
func UnlockWith(e Encryptor, read func(prompt string) (string, error)) (*Unlocked, error) {
	if !e.IsConfigured() {
		return nil, fmt.Errorf("encryption keys are not set up (run 'mn keys init')")
	}
	passphrase, err := read("Passphrase: ")
	if err != nil {
		return nil, err
	}
	dec, err := e.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	return &Unlocked{Encryptor: e, DecryptionContext: dec}, nil
}
