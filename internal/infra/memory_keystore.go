package infra

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"vault-store/internal/domain"
)

// MemoryKeyStore はプロセス内に鍵を保持するKeyStore。テストと一時的な実行に使う。
type MemoryKeyStore struct {
	mu   sync.Mutex
	keys map[string][]byte
}

// NewMemoryKeyStore は新しいMemoryKeyStoreを生成する。
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string][]byte)}
}

// GetOrCreateKey は鍵を返し、存在しなければ生成する。
func (s *MemoryKeyStore) GetOrCreateKey(ctx context.Context, alias string) (domain.SymmetricKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[alias]
	if !ok {
		key = make([]byte, domain.MasterKeySize)
		if _, err := rand.Read(key); err != nil {
			return domain.SymmetricKey{}, fmt.Errorf("generating random key: %w", err)
		}
		s.keys[alias] = key
	}
	return domain.SymmetricKey{
		Alias:      alias,
		Material:   append([]byte(nil), key...),
		Protection: domain.ProtectionSoftware,
	}, nil
}

// DeleteKey は鍵を削除する。存在しなくてもエラーにしない。
func (s *MemoryKeyStore) DeleteKey(ctx context.Context, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[alias]; ok {
		zero(key)
		delete(s.keys, alias)
	}
	return nil
}

// KeyExists は鍵が存在するかを返す。
func (s *MemoryKeyStore) KeyExists(ctx context.Context, alias string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.keys[alias]
	return ok, nil
}
