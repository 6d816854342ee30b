package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-store/internal/domain"
)

func sampleDocument(version int) domain.Document {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return domain.Document{
		Version: version,
		Identities: []domain.SSHIdentity{
			{ID: "id-1", Name: "deploy", Username: "ubuntu", PublicKey: "ssh-ed25519 AAAA", CreatedAt: created},
		},
		Servers: []domain.ServerProfile{
			{ID: "srv-1", Name: "web", Host: "10.0.0.1", Port: 22, IdentityID: "id-1", CreatedAt: created},
		},
		Projects: []domain.Project{
			{ID: "prj-1", Name: "prod", ServerIDs: []string{"srv-1"}},
		},
		LastModified: created,
	}
}

func TestAll_UniquePairs(t *testing.T) {
	seen := map[[2]int]bool{}
	for _, u := range All() {
		key := [2]int{u.FromVersion(), u.ToVersion()}
		assert.False(t, seen[key], "duplicate %v", key)
		seen[key] = true
		assert.NotEqual(t, u.FromVersion(), u.ToVersion())
	}
	assert.True(t, seen[[2]int{1, domain.CurrentSchemaVersion.Number}])
}

func TestInitialMigration_Migrate(t *testing.T) {
	m := NewInitialMigration()
	doc := domain.Document{Version: 0}

	got, err := m.Migrate(context.Background(), doc, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.NotNil(t, got.Identities)
	assert.NotNil(t, got.Servers)
	assert.NotNil(t, got.Projects)
	assert.True(t, m.Validate(doc, got))
	assert.Nil(t, doc.Identities, "input must not be modified")
}

func TestInitialMigration_WrongVersion(t *testing.T) {
	m := NewInitialMigration()

	_, err := m.Migrate(context.Background(), sampleDocument(2), nil)

	assert.ErrorIs(t, err, domain.ErrInvalidVersion)
}

func TestAddPreferencesMigration_Migrate(t *testing.T) {
	m := NewAddPreferencesMigration()
	doc := sampleDocument(1)
	var reported []domain.MigrationProgress

	got, err := m.Migrate(context.Background(), doc, func(p domain.MigrationProgress) {
		reported = append(reported, p)
	})

	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.Preferences)
	assert.Equal(t, DefaultPreferences(), *got.Preferences)
	assert.Equal(t, doc.Identities, got.Identities)
	assert.True(t, m.Validate(doc, got))
	assert.Len(t, reported, 1)
	assert.Nil(t, doc.Preferences, "input must not be modified")
}

func TestAddPreferencesMigration_KeepsExistingPreferences(t *testing.T) {
	m := NewAddPreferencesMigration()
	doc := sampleDocument(1)
	doc.Preferences = &domain.Preferences{Theme: "dark", TerminalFontSize: 16}

	got, err := m.Migrate(context.Background(), doc, nil)

	require.NoError(t, err)
	assert.Equal(t, "dark", got.Preferences.Theme)
}

func TestAddPreferencesMigration_ValidateRejectsLostIdentity(t *testing.T) {
	m := NewAddPreferencesMigration()
	doc := sampleDocument(1)
	got, err := m.Migrate(context.Background(), doc, nil)
	require.NoError(t, err)

	got.Identities = nil

	assert.False(t, m.Validate(doc, got))
}

func TestAddPreferencesMigration_ValidateRejectsNewOrphans(t *testing.T) {
	m := NewAddPreferencesMigration()
	doc := sampleDocument(1)
	got, err := m.Migrate(context.Background(), doc, nil)
	require.NoError(t, err)

	got.Servers[0].IdentityID = "missing"

	assert.False(t, m.Validate(doc, got))
}

func TestReversibility(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		unit domain.MigrationUnit
		doc  domain.Document
	}{
		{"initial", NewInitialMigration(), sampleDocument(0)},
		{"add_preferences", NewAddPreferencesMigration(), sampleDocument(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.unit.Reversible())

			migrated, err := tt.unit.Migrate(ctx, tt.doc, nil)
			require.NoError(t, err)
			restored, err := tt.unit.Rollback(ctx, migrated, nil)
			require.NoError(t, err)

			restored.LastModified = tt.doc.LastModified
			assert.Equal(t, tt.doc, restored)
		})
	}
}

func TestRollback_WrongVersion(t *testing.T) {
	_, err := NewAddPreferencesMigration().Rollback(context.Background(), sampleDocument(1), nil)

	assert.ErrorIs(t, err, domain.ErrInvalidVersion)
}
