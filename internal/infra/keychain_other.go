//go:build !darwin || !cgo

package infra

import (
	"context"
	"errors"

	"vault-store/internal/domain"
)

// ErrKeychainUnsupported はキーチェーンが使えないプラットフォームで返すエラー。
var ErrKeychainUnsupported = errors.New("keychain is not supported on this platform")

// KeychainKeyStore はこのプラットフォームでは利用できない。
type KeychainKeyStore struct{}

// NewKeychainKeyStore は常にErrKeychainUnsupportedを返す。
func NewKeychainKeyStore() (*KeychainKeyStore, error) {
	return nil, ErrKeychainUnsupported
}

func (s *KeychainKeyStore) GetOrCreateKey(ctx context.Context, alias string) (domain.SymmetricKey, error) {
	return domain.SymmetricKey{}, ErrKeychainUnsupported
}

func (s *KeychainKeyStore) DeleteKey(ctx context.Context, alias string) error {
	return ErrKeychainUnsupported
}

func (s *KeychainKeyStore) KeyExists(ctx context.Context, alias string) (bool, error) {
	return false, ErrKeychainUnsupported
}
