package infra

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"vault-store/internal/domain"
)

const (
	kekSize   = 32
	saltSize  = 16
	nonceSize = chacha20poly1305.NonceSize

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// PassphraseWrapper はパスフレーズから導出した鍵でマスター鍵をラップする。
// ラップ済みの形式は [16 bytes: salt][12 bytes: nonce][暗号文‖タグ]。
type PassphraseWrapper struct {
	passphrase []byte
}

// NewPassphraseWrapper は新しいPassphraseWrapperを生成する。
func NewPassphraseWrapper(passphrase string) (*PassphraseWrapper, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase must not be empty")
	}
	return &PassphraseWrapper{passphrase: []byte(passphrase)}, nil
}

func (w *PassphraseWrapper) deriveKEK(salt []byte) []byte {
	return argon2.IDKey(w.passphrase, salt, argonTime, argonMemory, argonThreads, kekSize)
}

// Encrypt はマスター鍵をラップする。
func (w *PassphraseWrapper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	out := make([]byte, saltSize+nonceSize, saltSize+nonceSize+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := rand.Read(out[:saltSize+nonceSize]); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	salt, nonce := out[:saltSize], out[saltSize:saltSize+nonceSize]

	kek := w.deriveKEK(salt)
	defer zero(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return aead.Seal(out, nonce, plaintext, salt), nil
}

// Decrypt はラップ済みの鍵を復元する。パスフレーズが違う場合は失敗する。
func (w *PassphraseWrapper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < saltSize+nonceSize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("wrapped key too short: %d bytes", len(ciphertext))
	}
	salt, nonce := ciphertext[:saltSize], ciphertext[saltSize:saltSize+nonceSize]

	kek := w.deriveKEK(salt)
	defer zero(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext[saltSize+nonceSize:], salt)
	if err != nil {
		return nil, fmt.Errorf("unwrapping key: %w", err)
	}
	return plaintext, nil
}

// Protection はパスフレーズ保護を返す。
func (w *PassphraseWrapper) Protection() domain.ProtectionLevel {
	return domain.ProtectionPassphrase
}

// SoftwareWrapper は鍵をラップせずに保存する。他の保護手段が無い場合の最後の選択肢。
type SoftwareWrapper struct{}

// NewSoftwareWrapper は新しいSoftwareWrapperを生成する。
func NewSoftwareWrapper() *SoftwareWrapper {
	return &SoftwareWrapper{}
}

// Encrypt は鍵のコピーを返す。
func (SoftwareWrapper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

// Decrypt は鍵のコピーを返す。
func (SoftwareWrapper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return append([]byte(nil), ciphertext...), nil
}

// Protection はソフトウェア保護を返す。
func (SoftwareWrapper) Protection() domain.ProtectionLevel {
	return domain.ProtectionSoftware
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
