// Package encryption seals stored object bytes with an age key pair.
package encryption

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"mn-go/internal/config"
)

// PassphraseEnv names the environment variable consulted before prompting.
const PassphraseEnv = "MN_PASSPHRASE"

// Encryptor encrypts data with a public key. Decryption requires unlocking
// the private key with a passphrase.
type Encryptor interface {
	// Setup generates and stores a new key pair protected by passphrase.
	Setup(passphrase string) error
	// Encrypt returns a writer that encrypts into w. Closing it flushes the
	// final chunk; it does not close w.
	Encrypt(w io.Writer) (io.WriteCloser, error)
	Unlock(passphrase string) (DecryptionContext, error)
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key.
type DecryptionContext interface {
	Decrypt(r io.Reader) (io.Reader, error)
}

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// It returns nil for type "none".
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

// ReadPassphrase returns the passphrase from MN_PASSPHRASE, or prompts on
// the terminal with echo disabled.
func ReadPassphrase(prompt string) (string, error) {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal available for passphrase prompt (set %s)", PassphraseEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
