package migrations

import (
	"context"

	"vault-store/internal/domain"
)

// DefaultPreferences はバージョン2で追加される設定の既定値を返す。
func DefaultPreferences() domain.Preferences {
	return domain.Preferences{
		Theme:              "system",
		TerminalFontSize:   13,
		KeepAliveSeconds:   30,
		ConfirmBeforeClose: true,
	}
}

// AddPreferencesMigration はドキュメントにアプリケーション設定を追加する。
type AddPreferencesMigration struct {
	domain.BaseMigration
}

// NewAddPreferencesMigration は新しいAddPreferencesMigrationを生成する。
func NewAddPreferencesMigration() *AddPreferencesMigration {
	return &AddPreferencesMigration{BaseMigration: domain.BaseMigration{
		From:       domain.SchemaVersionInitial.Number,
		To:         domain.SchemaVersionPreferences.Number,
		UnitName:   "add_preferences",
		Summary:    domain.SchemaVersionPreferences.Description,
		CanReverse: true,
	}}
}

// Migrate は設定が無ければ既定値を設定する。
func (m *AddPreferencesMigration) Migrate(ctx context.Context, doc domain.Document, onProgress domain.ProgressFunc) (domain.Document, error) {
	if err := m.CheckMigrate(doc); err != nil {
		return doc, err
	}

	out := doc.Clone()
	if out.Preferences == nil {
		prefs := DefaultPreferences()
		out.Preferences = &prefs
	}
	out.Version = m.To
	onProgress.Report(domain.MigrationProgress{CurrentStep: 1, TotalSteps: 1, StepDescription: m.Summary})
	return out, nil
}

// Rollback は設定を取り除く。
func (m *AddPreferencesMigration) Rollback(ctx context.Context, doc domain.Document, onProgress domain.ProgressFunc) (domain.Document, error) {
	if err := m.CheckRollback(doc); err != nil {
		return doc, err
	}

	out := doc.Clone()
	out.Preferences = nil
	out.Version = m.From
	onProgress.Report(domain.MigrationProgress{CurrentStep: 1, TotalSteps: 1, StepDescription: "Remove application preferences"})
	return out, nil
}

// Validate は設定が存在し、認証情報が失われず、参照切れが増えていないことを確認する。
func (m *AddPreferencesMigration) Validate(original, migrated domain.Document) bool {
	if migrated.Version != m.To || migrated.Preferences == nil {
		return false
	}
	if len(migrated.Identities) != len(original.Identities) {
		return false
	}
	return len(migrated.OrphanedReferences()) <= len(original.OrphanedReferences())
}
