// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"vault-store/internal/domain"
)

// KeyRepository はラップ済みマスター鍵のデータアクセスのインターフェース。
type KeyRepository interface {
	ExistsByAlias(ctx context.Context, alias string) (bool, error)
	Create(ctx context.Context, key *domain.WrappedKey) error
	FindByAlias(ctx context.Context, alias string) (*domain.WrappedKey, error)
	DeleteByAlias(ctx context.Context, alias string) error
}

// KeyWrapper はマスター鍵のラップ/アンラップのインターフェース。
type KeyWrapper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Protection() domain.ProtectionLevel
}

// MasterKeyService はラップ済みの鍵を永続化するKeyStoreの実装。
type MasterKeyService struct {
	repo    KeyRepository
	wrapper KeyWrapper

	// 初回作成を直列化し、並行呼び出しで異なる鍵が作られないようにする。
	mu sync.Mutex
}

var _ KeyStore = (*MasterKeyService)(nil)

// NewMasterKeyService は新しいMasterKeyServiceを生成する。
func NewMasterKeyService(repo KeyRepository, wrapper KeyWrapper) *MasterKeyService {
	return &MasterKeyService{
		repo:    repo,
		wrapper: wrapper,
	}
}

// generateAESKey はAES-256鍵を生成する。
func generateAESKey() ([]byte, error) {
	key := make([]byte, domain.MasterKeySize)
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	return key, nil
}

// GetOrCreateKey は指定されたエイリアスの鍵を取得し、存在しなければ生成する。
func (s *MasterKeyService) GetOrCreateKey(ctx context.Context, alias string) (domain.SymmetricKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.repo.FindByAlias(ctx, alias)
	if err != nil {
		return domain.SymmetricKey{}, fmt.Errorf("finding key: %w", err)
	}
	if key != nil {
		return s.unwrap(ctx, key)
	}

	// AES-256鍵を生成
	plainKey, err := generateAESKey()
	if err != nil {
		return domain.SymmetricKey{}, err
	}

	// ラップして保存
	wrapped, err := s.wrapper.Encrypt(ctx, plainKey)
	if err != nil {
		return domain.SymmetricKey{}, fmt.Errorf("wrapping key: %w", err)
	}
	record := &domain.WrappedKey{
		Alias:      alias,
		Material:   wrapped,
		Protection: s.wrapper.Protection(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return domain.SymmetricKey{}, fmt.Errorf("creating key: %w", err)
	}

	slog.InfoContext(ctx, "master key created",
		"operation", "get_or_create_key",
		"alias", alias,
		"protection", record.Protection,
	)
	return domain.SymmetricKey{
		Alias:      alias,
		Material:   plainKey,
		Protection: record.Protection,
	}, nil
}

func (s *MasterKeyService) unwrap(ctx context.Context, key *domain.WrappedKey) (domain.SymmetricKey, error) {
	if key.Protection != s.wrapper.Protection() {
		return domain.SymmetricKey{}, fmt.Errorf("key %q is protected by %s, wrapper is %s",
			key.Alias, key.Protection, s.wrapper.Protection())
	}
	plainKey, err := s.wrapper.Decrypt(ctx, key.Material)
	if err != nil {
		return domain.SymmetricKey{}, fmt.Errorf("unwrapping key: %w", err)
	}
	return domain.SymmetricKey{
		Alias:      key.Alias,
		Material:   plainKey,
		Protection: key.Protection,
	}, nil
}

// DeleteKey は指定されたエイリアスの鍵を削除する。
func (s *MasterKeyService) DeleteKey(ctx context.Context, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteByAlias(ctx, alias); err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("deleting key: %w", err)
	}
	return nil
}

// KeyExists は指定されたエイリアスの鍵が存在するかを返す。
func (s *MasterKeyService) KeyExists(ctx context.Context, alias string) (bool, error) {
	exists, err := s.repo.ExistsByAlias(ctx, alias)
	if err != nil {
		return false, fmt.Errorf("checking existing key: %w", err)
	}
	return exists, nil
}
