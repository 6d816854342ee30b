package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-store/config"
	"vault-store/internal/domain"
	"vault-store/internal/repository"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DatabaseURL: "sqlite:" + filepath.Join(t.TempDir(), "vault.db"),
		KeyAlias:    config.DefaultKeyAlias,
	}
}

func TestNewWire_SoftwareFallback(t *testing.T) {
	w, err := NewWire(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, domain.ProtectionSoftware, w.Protection)
	assert.IsType(t, &repository.DocumentRepository{}, w.Store)
}

func TestNewWire_Passphrase(t *testing.T) {
	cfg := testConfig(t)
	cfg.VaultPassphrase = "secret"

	w, err := NewWire(context.Background(), cfg)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, domain.ProtectionPassphrase, w.Protection)
}

func TestNewWire_FileStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.DocumentPath = filepath.Join(t.TempDir(), "document.bin")

	w, err := NewWire(context.Background(), cfg)
	require.NoError(t, err)
	defer w.Close()

	assert.IsType(t, &repository.FileDocumentRepository{}, w.Store)
}

func TestNewWire_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.VaultPassphrase = "secret"

	w, err := NewWire(ctx, cfg)
	require.NoError(t, err)
	doc, err := w.Documents.Load(ctx, nil)
	require.NoError(t, err)
	doc.Identities = append(doc.Identities, domain.SSHIdentity{ID: "id-1", Name: "deploy"})
	require.NoError(t, w.Documents.Save(ctx, doc))
	require.NoError(t, w.Close())

	// 同じパスフレーズで開き直すと読める
	w, err = NewWire(ctx, cfg)
	require.NoError(t, err)
	defer w.Close()
	got, err := w.Documents.Load(ctx, nil)
	require.NoError(t, err)
	require.Len(t, got.Identities, 1)
	assert.Equal(t, "id-1", got.Identities[0].ID)
}

func TestNewRegistry_ValidChain(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	result := r.ValidateChain()

	assert.True(t, result.Valid, result.Errors)
	assert.Equal(t, domain.CurrentSchemaVersion.Number, r.HighestVersion())
	assert.Equal(t, 0, r.LowestVersion())
}
