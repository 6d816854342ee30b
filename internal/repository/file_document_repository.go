package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vault-store/internal/domain"
)

const (
	documentFileMode = 0o600
	backupDirName    = "backups"
)

// FileDocumentRepository は暗号化済みドキュメントをファイルに保存する。
// バックアップは同じディレクトリのbackups/以下に保存する。
type FileDocumentRepository struct {
	path string
}

// NewFileDocumentRepository は新しいFileDocumentRepositoryを生成する。
func NewFileDocumentRepository(path string) *FileDocumentRepository {
	return &FileDocumentRepository{path: path}
}

// LoadRawBytes はファイルの内容を返す。ファイルが無い場合はErrDocumentNotFoundを返す。
func (r *FileDocumentRepository) LoadRawBytes(ctx context.Context) ([]byte, error) {
	b, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read document file",
			"operation", "load_raw_bytes",
			"path", r.path,
			"error", err,
		)
		return nil, err
	}
	return b, nil
}

// SaveRawBytes は一時ファイルに書いてからリネームで置き換える。
func (r *FileDocumentRepository) SaveRawBytes(ctx context.Context, data []byte) error {
	if err := writeFileAtomic(r.path, data, documentFileMode); err != nil {
		slog.ErrorContext(ctx, "failed to write document file",
			"operation", "save_raw_bytes",
			"path", r.path,
			"error", err,
		)
		return err
	}
	return nil
}

// SaveBackup はバックアップファイルを書き込む。
func (r *FileDocumentRepository) SaveBackup(ctx context.Context, name string, data []byte) error {
	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid backup name %q", name)
	}
	dir := r.backupDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, name), data, documentFileMode); err != nil {
		slog.ErrorContext(ctx, "failed to write backup file",
			"operation", "save_backup",
			"backup_name", name,
			"error", err,
		)
		return err
	}
	return nil
}

// ListBackups はバックアップ名を名前順に返す。
func (r *FileDocumentRepository) ListBackups(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.backupDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.Contains(e.Name(), ".tmp-") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (r *FileDocumentRepository) backupDir() string {
	return filepath.Join(filepath.Dir(r.path), backupDirName)
}

// writeFileAtomic は一時ファイル経由で対象を置き換える。
func writeFileAtomic(path string, b []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
