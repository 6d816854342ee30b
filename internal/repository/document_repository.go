package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vault-store/internal/domain"
)

// DefaultDocumentSlot は既定のドキュメントの保存先。
const DefaultDocumentSlot = "default"

// VaultDocumentModel はvault_documentsテーブルのモデル。
type VaultDocumentModel struct {
	Slot      string    `gorm:"type:varchar(64);primaryKey"`
	Data      []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (VaultDocumentModel) TableName() string {
	return "vault_documents"
}

// VaultBackupModel はvault_backupsテーブルのモデル。
type VaultBackupModel struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Slot      string    `gorm:"type:varchar(64);not null;index:idx_backup_slot"`
	Name      string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_backup_name"`
	Data      []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (VaultBackupModel) TableName() string {
	return "vault_backups"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *VaultBackupModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// DocumentRepository は暗号化済みドキュメントとバックアップをデータベースに保存する。
type DocumentRepository struct {
	db   *gorm.DB
	slot string
}

// NewDocumentRepository は新しいDocumentRepositoryを生成する。
func NewDocumentRepository(db *gorm.DB, slot string) *DocumentRepository {
	if slot == "" {
		slot = DefaultDocumentSlot
	}
	return &DocumentRepository{db: db, slot: slot}
}

// LoadRawBytes は保存済みのバイト列を返す。存在しない場合はErrDocumentNotFoundを返す。
func (r *DocumentRepository) LoadRawBytes(ctx context.Context) ([]byte, error) {
	var model VaultDocumentModel
	err := r.db.WithContext(ctx).
		Where("slot = ?", r.slot).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		slog.ErrorContext(ctx, "failed to load document",
			"operation", "load_raw_bytes",
			"slot", r.slot,
			"error", err,
		)
		return nil, err
	}
	return model.Data, nil
}

// SaveRawBytes はバイト列を保存する。既存の内容は置き換える。
func (r *DocumentRepository) SaveRawBytes(ctx context.Context, data []byte) error {
	model := &VaultDocumentModel{Slot: r.slot, Data: data}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slot"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to save document",
			"operation", "save_raw_bytes",
			"slot", r.slot,
			"error", err,
		)
		return err
	}
	return nil
}

// SaveBackup はバックアップを保存する。
func (r *DocumentRepository) SaveBackup(ctx context.Context, name string, data []byte) error {
	model := &VaultBackupModel{Slot: r.slot, Name: name, Data: data}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to save backup",
			"operation", "save_backup",
			"slot", r.slot,
			"backup_name", name,
			"error", err,
		)
		return err
	}
	return nil
}

// ListBackups はバックアップ名を作成順に返す。
func (r *DocumentRepository) ListBackups(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&VaultBackupModel{}).
		Where("slot = ?", r.slot).
		Order("created_at ASC").
		Pluck("name", &names).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to list backups",
			"operation", "list_backups",
			"slot", r.slot,
			"error", err,
		)
		return nil, err
	}
	return names, nil
}

// LoadBackup は指定されたバックアップのバイト列を返す。
func (r *DocumentRepository) LoadBackup(ctx context.Context, name string) ([]byte, error) {
	var model VaultBackupModel
	err := r.db.WithContext(ctx).
		Where("slot = ? AND name = ?", r.slot, name).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		slog.ErrorContext(ctx, "failed to load backup",
			"operation", "load_backup",
			"backup_name", name,
			"error", err,
		)
		return nil, err
	}
	return model.Data, nil
}
