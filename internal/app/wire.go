// Package app は依存関係の組み立てを提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"vault-store/config"
	"vault-store/internal/domain"
	"vault-store/internal/infra"
	"vault-store/internal/migrations"
	"vault-store/internal/repository"
	"vault-store/internal/usecase"
)

// DefaultDatabaseURL はDATABASE_URLが未設定の場合に使うDSN。
const DefaultDatabaseURL = "sqlite:vault-store.db"

// DocumentStore は暗号化済みドキュメントとバックアップの保存先。
type DocumentStore interface {
	usecase.DocumentRepository
	usecase.BackupRepository
	ListBackups(ctx context.Context) ([]string, error)
}

// Wire はアプリケーションのストア・サービスをまとめる。
type Wire struct {
	DB         *gorm.DB
	KeyStore   usecase.KeyStore
	Protection domain.ProtectionLevel
	Store      DocumentStore
	Encryption *usecase.EncryptionService
	Registry   *usecase.MigrationRegistry
	Runner     *usecase.MigrationRunner
	Documents  *usecase.DocumentService

	closers []func() error
}

// NewRegistry は出荷済みのマイグレーションを登録したレジストリを生成する。
func NewRegistry() (*usecase.MigrationRegistry, error) {
	registry, err := usecase.NewMigrationRegistryWith(migrations.All()...)
	if err != nil {
		return nil, fmt.Errorf("registering migrations: %w", err)
	}
	return registry, nil
}

// NewWire は設定から依存関係を組み立てる。
func NewWire(ctx context.Context, cfg *config.Config) (*Wire, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = DefaultDatabaseURL
	}
	db, err := infra.NewDB(dsn, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		return nil, err
	}

	w := &Wire{DB: db}
	w.KeyStore, w.Protection = w.selectKeyStore(ctx, cfg, repository.NewKeyRepository(db))

	if cfg.DocumentPath != "" {
		w.Store = repository.NewFileDocumentRepository(cfg.DocumentPath)
	} else {
		w.Store = repository.NewDocumentRepository(db, repository.DefaultDocumentSlot)
	}

	w.Registry, err = NewRegistry()
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	if result := w.Registry.ValidateChain(); !result.Valid {
		slog.WarnContext(ctx, "migration chain has gaps",
			"operation", "new_wire",
			"errors", result.Errors,
		)
	}

	w.Encryption = usecase.NewEncryptionService(w.KeyStore, cfg.KeyAlias)
	w.Runner = usecase.NewMigrationRunner(w.Registry)
	w.Documents = usecase.NewDocumentService(
		w.Encryption,
		w.Runner,
		w.Store,
		w.Store,
		repository.NewMigrationRepository(db),
	)
	return w, nil
}

// selectKeyStore はKMS、キーチェーン、パスフレーズ、ソフトウェアの順に使えるものを選ぶ。
// ハードウェア保護が使えなくても失敗しない。
func (w *Wire) selectKeyStore(ctx context.Context, cfg *config.Config, keys usecase.KeyRepository) (usecase.KeyStore, domain.ProtectionLevel) {
	if cfg.KMSKeyName != "" {
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err == nil {
			err = kmsClient.Probe(ctx)
			if err != nil {
				_ = kmsClient.Close()
			}
		}
		if err == nil {
			w.closers = append(w.closers, kmsClient.Close)
			return usecase.NewMasterKeyService(keys, kmsClient), domain.ProtectionHSM
		}
		slog.WarnContext(ctx, "KMS unavailable, falling back",
			"operation", "select_key_store",
			"error", err,
		)
	}

	if cfg.KeychainEnabled {
		keychain, err := infra.NewKeychainKeyStore()
		if err == nil {
			return keychain, domain.ProtectionKeychain
		}
		slog.WarnContext(ctx, "keychain unavailable, falling back",
			"operation", "select_key_store",
			"error", err,
		)
	}

	if cfg.VaultPassphrase != "" {
		wrapper, err := infra.NewPassphraseWrapper(cfg.VaultPassphrase)
		if err == nil {
			return usecase.NewMasterKeyService(keys, wrapper), domain.ProtectionPassphrase
		}
		slog.WarnContext(ctx, "passphrase wrapper unavailable, falling back",
			"operation", "select_key_store",
			"error", err,
		)
	}

	slog.WarnContext(ctx, "master key is stored without hardware or passphrase protection",
		"operation", "select_key_store",
	)
	return usecase.NewMasterKeyService(keys, infra.NewSoftwareWrapper()), domain.ProtectionSoftware
}

// Close は保持しているクライアントとデータベース接続を閉じる。
func (w *Wire) Close() error {
	var errs []error
	for _, c := range w.closers {
		errs = append(errs, c())
	}
	if w.DB != nil {
		if sqlDB, err := w.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
