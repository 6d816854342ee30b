// Package migrations は出荷済みのドキュメントマイグレーションを定義する。
package migrations

import (
	"vault-store/internal/domain"
)

// All は登録すべきすべてのマイグレーションユニットを返す。順序は問わない。
func All() []domain.MigrationUnit {
	return []domain.MigrationUnit{
		NewInitialMigration(),
		NewAddPreferencesMigration(),
	}
}
