// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"vault-store/internal/domain"
)

// MasterKeyModel はgorm用のモデル定義。
type MasterKeyModel struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	Alias      string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_alias"`
	WrappedKey []byte    `gorm:"type:blob;not null"`
	Protection string    `gorm:"type:varchar(16);not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (MasterKeyModel) TableName() string {
	return "master_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *MasterKeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *MasterKeyModel) toDomain() *domain.WrappedKey {
	return &domain.WrappedKey{
		ID:         m.ID,
		Alias:      m.Alias,
		Material:   m.WrappedKey,
		Protection: domain.ProtectionLevel(m.Protection),
		CreatedAt:  m.CreatedAt,
	}
}

// KeyRepository はラップ済みマスター鍵のデータアクセスを提供する。
type KeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository は新しいKeyRepositoryを生成する。
func NewKeyRepository(db *gorm.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// ExistsByAlias は指定されたエイリアスの鍵が存在するか確認する。
func (r *KeyRepository) ExistsByAlias(ctx context.Context, alias string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&MasterKeyModel{}).
		Where("alias = ?", alias).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count keys by alias",
			"operation", "exists_by_alias",
			"alias", alias,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// Create は新しいラップ済み鍵を保存する。
func (r *KeyRepository) Create(ctx context.Context, key *domain.WrappedKey) error {
	model := &MasterKeyModel{
		ID:         key.ID,
		Alias:      key.Alias,
		WrappedKey: key.Material,
		Protection: string(key.Protection),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrKeyAlreadyExists
		}
		slog.ErrorContext(ctx, "failed to create key",
			"operation", "create",
			"alias", key.Alias,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	return nil
}

// FindByAlias は指定されたエイリアスの鍵を取得する。存在しない場合はnilを返す。
func (r *KeyRepository) FindByAlias(ctx context.Context, alias string) (*domain.WrappedKey, error) {
	var model MasterKeyModel
	err := r.db.WithContext(ctx).
		Where("alias = ?", alias).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find key",
			"operation", "find_by_alias",
			"alias", alias,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// DeleteByAlias は指定されたエイリアスの鍵を削除する。存在しない場合はErrKeyNotFoundを返す。
func (r *KeyRepository) DeleteByAlias(ctx context.Context, alias string) error {
	result := r.db.WithContext(ctx).
		Where("alias = ?", alias).
		Delete(&MasterKeyModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to delete key",
			"operation", "delete_by_alias",
			"alias", alias,
			"error", result.Error,
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrKeyNotFound
	}
	return nil
}
