package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-store/config"
	"vault-store/internal/domain"
)

func TestPassphraseWrapper_RoundTrip(t *testing.T) {
	ctx := context.Background()
	w, err := NewPassphraseWrapper("correct horse battery staple")
	require.NoError(t, err)
	key := bytes.Repeat([]byte{0x42}, domain.MasterKeySize)

	wrapped, err := w.Encrypt(ctx, key)
	require.NoError(t, err)
	assert.Len(t, wrapped, saltSize+nonceSize+len(key)+16)
	assert.NotContains(t, string(wrapped), string(key))

	got, err := w.Decrypt(ctx, wrapped)
	require.NoError(t, err)
	assert.Equal(t, key, got)
	assert.Equal(t, domain.ProtectionPassphrase, w.Protection())
}

func TestPassphraseWrapper_FreshSaltPerWrap(t *testing.T) {
	ctx := context.Background()
	w, err := NewPassphraseWrapper("pass")
	require.NoError(t, err)
	key := make([]byte, domain.MasterKeySize)

	a, err := w.Encrypt(ctx, key)
	require.NoError(t, err)
	b, err := w.Encrypt(ctx, key)
	require.NoError(t, err)

	assert.NotEqual(t, a[:saltSize], b[:saltSize])
}

func TestPassphraseWrapper_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	w, err := NewPassphraseWrapper("right")
	require.NoError(t, err)
	wrapped, err := w.Encrypt(ctx, make([]byte, domain.MasterKeySize))
	require.NoError(t, err)

	other, err := NewPassphraseWrapper("wrong")
	require.NoError(t, err)
	_, err = other.Decrypt(ctx, wrapped)

	assert.Error(t, err)
}

func TestPassphraseWrapper_Invalid(t *testing.T) {
	_, err := NewPassphraseWrapper("")
	assert.Error(t, err)

	w, err := NewPassphraseWrapper("pass")
	require.NoError(t, err)
	_, err = w.Decrypt(context.Background(), []byte("short"))
	assert.Error(t, err)
}

func TestSoftwareWrapper(t *testing.T) {
	ctx := context.Background()
	w := NewSoftwareWrapper()
	key := []byte("material")

	wrapped, err := w.Encrypt(ctx, key)
	require.NoError(t, err)
	got, err := w.Decrypt(ctx, wrapped)
	require.NoError(t, err)

	assert.Equal(t, key, got)
	assert.Equal(t, domain.ProtectionSoftware, w.Protection())
}

func TestMemoryKeyStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKeyStore()

	exists, err := s.KeyExists(ctx, "alias")
	require.NoError(t, err)
	assert.False(t, exists)

	first, err := s.GetOrCreateKey(ctx, "alias")
	require.NoError(t, err)
	assert.True(t, first.Valid())
	second, err := s.GetOrCreateKey(ctx, "alias")
	require.NoError(t, err)
	assert.Equal(t, first.Material, second.Material)

	// 返された鍵を書き換えても保存済みの鍵は変わらない
	first.Material[0] ^= 0xff
	third, err := s.GetOrCreateKey(ctx, "alias")
	require.NoError(t, err)
	assert.Equal(t, second.Material, third.Material)

	require.NoError(t, s.DeleteKey(ctx, "alias"))
	require.NoError(t, s.DeleteKey(ctx, "alias"))
	exists, err = s.KeyExists(ctx, "alias")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewDB_SQLite(t *testing.T) {
	db, err := NewDB("sqlite:"+t.TempDir()+"/vault.db", &config.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
	assert.Equal(t, "sqlite", db.Dialector.Name())
	require.NoError(t, sqlDB.Close())
}

func TestNewDB_EmptyDSN(t *testing.T) {
	_, err := NewDB("", &config.Config{})
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("nonsense"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, &config.Config{}, slog.LevelInfo)

	logger.Info("hello", "operation", "test")
	logger.Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "test", entry["operation"])
}

func TestIsLocalEndpoint(t *testing.T) {
	assert.True(t, isLocalEndpoint("localhost:4317"))
	assert.True(t, isLocalEndpoint("127.0.0.1:4317"))
	assert.False(t, isLocalEndpoint("collector.example.com:4317"))
}
