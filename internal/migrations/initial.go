package migrations

import (
	"context"

	"vault-store/internal/domain"
)

// InitialMigration はバージョンを持たない旧形式(0)をバージョン1にする。
type InitialMigration struct {
	domain.BaseMigration
}

// NewInitialMigration は新しいInitialMigrationを生成する。
func NewInitialMigration() *InitialMigration {
	return &InitialMigration{BaseMigration: domain.BaseMigration{
		From:       0,
		To:         domain.SchemaVersionInitial.Number,
		UnitName:   "initial",
		Summary:    "Add explicit schema version and initialize empty collections",
		CanReverse: true,
	}}
}

// Migrate は空のコレクションを初期化してバージョンを付与する。
func (m *InitialMigration) Migrate(ctx context.Context, doc domain.Document, onProgress domain.ProgressFunc) (domain.Document, error) {
	if err := m.CheckMigrate(doc); err != nil {
		return doc, err
	}

	out := doc.Clone()
	if out.Identities == nil {
		out.Identities = []domain.SSHIdentity{}
	}
	if out.Servers == nil {
		out.Servers = []domain.ServerProfile{}
	}
	if out.Projects == nil {
		out.Projects = []domain.Project{}
	}
	out.Version = m.To
	onProgress.Report(domain.MigrationProgress{CurrentStep: 1, TotalSteps: 1, StepDescription: m.Summary})
	return out, nil
}

// Rollback はバージョンを0に戻す。コレクションはそのまま残す。
func (m *InitialMigration) Rollback(ctx context.Context, doc domain.Document, onProgress domain.ProgressFunc) (domain.Document, error) {
	if err := m.CheckRollback(doc); err != nil {
		return doc, err
	}

	out := doc.Clone()
	out.Version = m.From
	onProgress.Report(domain.MigrationProgress{CurrentStep: 1, TotalSteps: 1, StepDescription: "Remove schema version"})
	return out, nil
}

// Validate はコレクションが初期化され、件数が変わっていないことを確認する。
func (m *InitialMigration) Validate(original, migrated domain.Document) bool {
	return migrated.Version == m.To &&
		migrated.Identities != nil &&
		migrated.Servers != nil &&
		migrated.Projects != nil &&
		len(migrated.Identities) == len(original.Identities) &&
		len(migrated.Servers) == len(original.Servers) &&
		len(migrated.Projects) == len(original.Projects)
}
