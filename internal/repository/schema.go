package repository

import (
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate はリポジトリが使うテーブルを作成・更新する。
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&MasterKeyModel{},
		&VaultDocumentModel{},
		&VaultBackupModel{},
		&SchemaMigrationModel{},
	); err != nil {
		return fmt.Errorf("migrating database schema: %w", err)
	}
	return nil
}
