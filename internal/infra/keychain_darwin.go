//go:build darwin && cgo

package infra

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	keychain "github.com/keybase/go-keychain"

	"vault-store/internal/domain"
)

// keychainService はキーチェーン項目のサービス名。エイリアスはアカウント名に入れる。
const keychainService = "dev.vault-store.masterkey"

// KeychainKeyStore はmacOSのキーチェーンにマスター鍵を保存するKeyStore。
type KeychainKeyStore struct {
	mu sync.Mutex
}

// NewKeychainKeyStore は新しいKeychainKeyStoreを生成する。
func NewKeychainKeyStore() (*KeychainKeyStore, error) {
	return &KeychainKeyStore{}, nil
}

func (s *KeychainKeyStore) lookup(alias string) ([]byte, error) {
	data, err := keychain.GetGenericPassword(keychainService, alias, "", "")
	if err == keychain.ErrorItemNotFound {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading keychain item: %w", err)
	}
	return data, nil
}

// GetOrCreateKey は鍵を返し、存在しなければ生成してキーチェーンに保存する。
func (s *KeychainKeyStore) GetOrCreateKey(ctx context.Context, alias string) (domain.SymmetricKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.lookup(alias)
	if err != nil {
		return domain.SymmetricKey{}, err
	}
	if key == nil {
		key = make([]byte, domain.MasterKeySize)
		if _, err := rand.Read(key); err != nil {
			return domain.SymmetricKey{}, fmt.Errorf("generating random key: %w", err)
		}
		item := keychain.NewGenericPassword(keychainService, alias, alias, key, "")
		item.SetSynchronizable(keychain.SynchronizableNo)
		item.SetAccessible(keychain.AccessibleWhenUnlocked)
		if err := keychain.AddItem(item); err != nil {
			return domain.SymmetricKey{}, fmt.Errorf("adding keychain item: %w", err)
		}
	}
	return domain.SymmetricKey{Alias: alias, Material: key, Protection: domain.ProtectionKeychain}, nil
}

// DeleteKey はキーチェーンから鍵を削除する。存在しなくてもエラーにしない。
func (s *KeychainKeyStore) DeleteKey(ctx context.Context, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := keychain.DeleteGenericPasswordItem(keychainService, alias)
	if err != nil && err != keychain.ErrorItemNotFound {
		return fmt.Errorf("deleting keychain item: %w", err)
	}
	return nil
}

// KeyExists はキーチェーンに鍵が存在するかを返す。
func (s *KeychainKeyStore) KeyExists(ctx context.Context, alias string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.lookup(alias)
	if err != nil {
		return false, err
	}
	return key != nil, nil
}
