package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/awm/vaire-cfg/pkg/manifest"
)

// EncryptedSuffix marks uploaded objects as client-side encrypted.
const EncryptedSuffix = ".enc"

// KeyFromSecret resolves the dotted key reference against the secret store
// and decodes it as a 64-character hex AES-256 key. Error messages only name
// the reference, never the resolved value.
func KeyFromSecret(store *manifest.SecretStore, ref string) ([]byte, error) {
	raw, err := store.Lookup(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackupKey, ref, err)
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid hex", ErrBackupKey, ref)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: %s must decode to 32 bytes, got %d", ErrBackupKey, ref, len(key))
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM. The random nonce is prepended to
// the ciphertext so each artifact is self-contained.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt.
func Decrypt(key, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
