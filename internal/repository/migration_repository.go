package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"vault-store/internal/domain"
)

// SchemaMigrationModel はschema_migrationsテーブルのモデル。
type SchemaMigrationModel struct {
	ID          string    `gorm:"type:char(36);primaryKey"`
	FromVersion int       `gorm:"column:from_version;not null"`
	ToVersion   int       `gorm:"column:to_version;not null"`
	Status      string    `gorm:"type:varchar(16);not null"`
	Message     string    `gorm:"type:text"`
	DurationMs  int64     `gorm:"column:duration_ms;not null"`
	BackupName  string    `gorm:"type:varchar(128)"`
	AppliedAt   time.Time `gorm:"column:applied_at;not null;autoCreateTime;index:idx_applied_at"`
}

// TableName はテーブル名を指定。
func (SchemaMigrationModel) TableName() string {
	return "schema_migrations"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *SchemaMigrationModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *SchemaMigrationModel) toDomain() *domain.MigrationRecord {
	return &domain.MigrationRecord{
		ID:          m.ID,
		FromVersion: m.FromVersion,
		ToVersion:   m.ToVersion,
		Status:      domain.MigrationStatus(m.Status),
		Message:     m.Message,
		DurationMs:  m.DurationMs,
		BackupName:  m.BackupName,
		AppliedAt:   m.AppliedAt,
	}
}

// MigrationRepository はマイグレーション履歴を管理するリポジトリ。
type MigrationRepository struct {
	db *gorm.DB
}

// NewMigrationRepository は新しいMigrationRepositoryを生成する。
func NewMigrationRepository(db *gorm.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// FindAll はマイグレーション履歴を古い順に取得する。
func (r *MigrationRepository) FindAll(ctx context.Context) ([]*domain.MigrationRecord, error) {
	var models []SchemaMigrationModel
	if err := r.db.WithContext(ctx).Order("applied_at ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find migration history",
			"operation", "find_all",
			"error", err,
		)
		return nil, err
	}

	records := make([]*domain.MigrationRecord, len(models))
	for i := range models {
		records[i] = models[i].toDomain()
	}
	return records, nil
}

// Record はマイグレーションの結果を記録する。
func (r *MigrationRepository) Record(ctx context.Context, record *domain.MigrationRecord) error {
	model := &SchemaMigrationModel{
		ID:          record.ID,
		FromVersion: record.FromVersion,
		ToVersion:   record.ToVersion,
		Status:      string(record.Status),
		Message:     record.Message,
		DurationMs:  record.DurationMs,
		BackupName:  record.BackupName,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to record migration",
			"operation", "record_migration",
			"from_version", record.FromVersion,
			"to_version", record.ToVersion,
			"error", err,
		)
		return err
	}
	record.ID = model.ID
	record.AppliedAt = model.AppliedAt
	return nil
}
