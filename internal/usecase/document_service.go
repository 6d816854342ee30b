package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"vault-store/internal/domain"
	"vault-store/internal/envelope"
)

// DocumentRepository は暗号化済みドキュメントの生バイト列を保存するリポジトリのインターフェース。
// 保存済みのドキュメントが無い場合、LoadRawBytesはdomain.ErrDocumentNotFoundを返す。
type DocumentRepository interface {
	LoadRawBytes(ctx context.Context) ([]byte, error)
	SaveRawBytes(ctx context.Context, data []byte) error
}

// BackupRepository はマイグレーション前のバックアップを保存するリポジトリのインターフェース。
type BackupRepository interface {
	SaveBackup(ctx context.Context, name string, data []byte) error
}

// MigrationHistoryRepository はマイグレーション履歴を管理するリポジトリのインターフェース。
type MigrationHistoryRepository interface {
	FindAll(ctx context.Context) ([]*domain.MigrationRecord, error)
	Record(ctx context.Context, record *domain.MigrationRecord) error
}

// VaultStatus は保存済みドキュメントの状態を表す。
type VaultStatus struct {
	DocumentExists bool
	StoredVersion  int
	CurrentVersion int
	NeedsMigration bool
	KeyExists      bool
	Intact         bool
}

// DocumentService はドキュメントの読み込み・マイグレーション・保存を提供する。
type DocumentService struct {
	encryption *EncryptionService
	runner     *MigrationRunner
	docs       DocumentRepository
	backups    BackupRepository
	history    MigrationHistoryRepository
	current    int
	now        func() time.Time

	// 読み込みから保存までを直列化する。
	mu sync.Mutex
}

// NewDocumentService は新しいDocumentServiceを生成する。
func NewDocumentService(
	encryption *EncryptionService,
	runner *MigrationRunner,
	docs DocumentRepository,
	backups BackupRepository,
	history MigrationHistoryRepository,
) *DocumentService {
	return &DocumentService{
		encryption: encryption,
		runner:     runner,
		docs:       docs,
		backups:    backups,
		history:    history,
		current:    domain.CurrentSchemaVersion.Number,
		now:        time.Now,
	}
}

// Load はドキュメントを読み込む。保存済みのバージョンが古い場合は現在のバージョンへ移行して保存する。
// ドキュメントが無い場合は現在のバージョンの空のドキュメントを返す。
func (s *DocumentService) Load(ctx context.Context, onProgress domain.ProgressFunc) (domain.Document, error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Load")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, doc, err := s.readLocked(ctx)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return s.emptyDocument(), nil
	}
	if err != nil {
		return domain.Document{}, err
	}
	span.SetAttributes(attribute.Int("document.version", doc.Version))

	if doc.Version == s.current {
		return doc, nil
	}

	migrated, outcome, err := s.migrateLocked(ctx, raw, doc, s.current, onProgress)
	if err != nil {
		return domain.Document{}, err
	}
	if !outcome.Success {
		return domain.Document{}, outcome.Cause
	}
	return migrated, nil
}

// Migrate は保存済みドキュメントをtargetバージョンへ移行して保存する。
func (s *DocumentService) Migrate(ctx context.Context, target int, onProgress domain.ProgressFunc) (domain.MigrationOutcome, error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Migrate")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, doc, err := s.readLocked(ctx)
	if err != nil {
		return domain.MigrationOutcome{}, err
	}
	_, outcome, err := s.migrateLocked(ctx, raw, doc, target, onProgress)
	return outcome, err
}

// Save はドキュメントを暗号化して保存する。
func (s *DocumentService) Save(ctx context.Context, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked(ctx, doc)
}

// Status は保存済みドキュメントと鍵の状態を返す。
func (s *DocumentService) Status(ctx context.Context) (VaultStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := VaultStatus{CurrentVersion: s.current}

	keyExists, err := s.encryption.MasterKeyExists(ctx)
	if err != nil {
		return VaultStatus{}, err
	}
	status.KeyExists = keyExists

	_, doc, err := s.readLocked(ctx)
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		status.Intact = true
		return status, nil
	case err != nil && isUnreadable(err):
		status.DocumentExists = true
		return status, nil
	case err != nil:
		return VaultStatus{}, err
	}

	status.DocumentExists = true
	status.Intact = true
	status.StoredVersion = doc.Version
	status.NeedsMigration = doc.Version != s.current
	return status, nil
}

// Verify は保存済みドキュメントを復号できるかを返す。
func (s *DocumentService) Verify(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.docs.LoadRawBytes(ctx)
	if err != nil {
		return false, err
	}
	env, err := envelope.Deserialize(raw)
	if err != nil {
		return false, nil
	}
	return s.encryption.VerifyIntegrity(ctx, env), nil
}

// Wipe はマスター鍵を削除する。保存済みのドキュメントは以後復号できない。
func (s *DocumentService) Wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.encryption.DeleteMasterKey(ctx)
}

// History はマイグレーション履歴を返す。
func (s *DocumentService) History(ctx context.Context) ([]*domain.MigrationRecord, error) {
	records, err := s.history.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching migration history: %w", err)
	}
	return records, nil
}

func (s *DocumentService) emptyDocument() domain.Document {
	return domain.Document{
		Version:      s.current,
		Identities:   []domain.SSHIdentity{},
		Servers:      []domain.ServerProfile{},
		Projects:     []domain.Project{},
		LastModified: s.now(),
	}
}

// readLocked は生バイト列と復号済みのドキュメントを返す。
func (s *DocumentService) readLocked(ctx context.Context) ([]byte, domain.Document, error) {
	raw, err := s.docs.LoadRawBytes(ctx)
	if err != nil {
		return nil, domain.Document{}, err
	}

	plaintext, err := s.encryption.Open(ctx, raw)
	if err != nil {
		slog.ErrorContext(ctx, "failed to decrypt document",
			"operation", "load_document",
			"error", err,
		)
		return nil, domain.Document{}, err
	}

	var doc domain.Document
	if err := json.Unmarshal([]byte(plaintext), &doc); err != nil {
		return nil, domain.Document{}, domain.NewEncryptionError(domain.EncryptionMalformedEnvelope, "decode",
			fmt.Errorf("decoding document: %w", err))
	}
	return raw, doc, nil
}

func (s *DocumentService) writeLocked(ctx context.Context, doc domain.Document) error {
	if now := s.now(); now.After(doc.LastModified) {
		doc.LastModified = now
	}
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	data, err := s.encryption.Seal(ctx, string(plaintext))
	if err != nil {
		return err
	}
	if err := s.docs.SaveRawBytes(ctx, data); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// migrateLocked はバックアップを取ってから移行し、成功した場合のみ保存する。
// 返すerrorはバックアップや保存の失敗で、移行自体の失敗はoutcomeで返す。
func (s *DocumentService) migrateLocked(ctx context.Context, raw []byte, doc domain.Document, target int, onProgress domain.ProgressFunc) (domain.Document, domain.MigrationOutcome, error) {
	from := doc.Version
	if from == target {
		outcome := domain.MigrationOutcome{Success: true, FromVersion: from, ToVersion: target, Message: "already at target version"}
		return doc, outcome, nil
	}
	if !s.runner.Registry().HasPath(from, target) {
		outcome := domain.MigrationOutcome{
			FromVersion: from,
			ToVersion:   target,
			Cause: domain.NewMigrationError(domain.MigrationNoPath, from, target,
				fmt.Errorf("no registered path from %d to %d", from, target)),
		}
		outcome.Message = outcome.Cause.Error()
		s.recordLocked(ctx, outcome)
		return doc, outcome, nil
	}

	backupName := fmt.Sprintf("backup-v%d-%s-%s", from, s.now().UTC().Format("20060102150405"), uuid.NewString()[:8])
	if err := s.backups.SaveBackup(ctx, backupName, raw); err != nil {
		slog.ErrorContext(ctx, "failed to save backup",
			"operation", "migrate_document",
			"backup_name", backupName,
			"error", err,
		)
		return doc, domain.MigrationOutcome{}, fmt.Errorf("saving backup: %w", err)
	}

	migrated, outcome := s.runner.Run(ctx, doc, target, onProgress)
	outcome.BackupCreated = true
	outcome.BackupName = backupName

	if outcome.Success {
		if err := s.writeLocked(ctx, migrated); err != nil {
			outcome.Success = false
			outcome.Message = err.Error()
			outcome.Cause = err
			s.recordLocked(ctx, outcome)
			return doc, outcome, err
		}
	}
	s.recordLocked(ctx, outcome)
	return migrated, outcome, nil
}

func (s *DocumentService) recordLocked(ctx context.Context, outcome domain.MigrationOutcome) {
	if err := s.history.Record(ctx, domain.NewMigrationRecord(outcome)); err != nil {
		slog.ErrorContext(ctx, "failed to record migration",
			"operation", "record_migration",
			"from_version", outcome.FromVersion,
			"to_version", outcome.ToVersion,
			"error", err,
		)
	}
}

func isUnreadable(err error) bool {
	var encErr *domain.EncryptionError
	return errors.As(err, &encErr)
}
