package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEnvelope はエンベロープのバイト列が不正な場合のエラー。
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrAuthenticationFailed は認証タグの検証に失敗した場合のエラー。
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrKeyUnavailable はマスター鍵を取得できない場合のエラー。
	ErrKeyUnavailable = errors.New("master key unavailable")

	// ErrKeyNotFound は指定されたエイリアスの鍵が存在しない場合のエラー。
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyAlreadyExists は指定されたエイリアスに既に鍵が存在する場合のエラー。
	ErrKeyAlreadyExists = errors.New("key already exists")

	// ErrDuplicateMigration は同じ (from, to) のマイグレーションが登録済みの場合のエラー。
	ErrDuplicateMigration = errors.New("duplicate migration")

	// ErrInvalidVersion はマイグレーションが扱えないバージョンのドキュメントを受け取った場合のエラー。
	ErrInvalidVersion = errors.New("invalid version")

	// ErrNoMigrationPath は移行経路が見つからない場合のエラー。
	ErrNoMigrationPath = errors.New("no migration path")

	// ErrRollbackFailure はロールバックできない場合のエラー。
	ErrRollbackFailure = errors.New("rollback failure")

	// ErrValidationFailed はマイグレーション後の検証に失敗した場合のエラー。
	ErrValidationFailed = errors.New("migration validation failed")

	// ErrDocumentNotFound は保存済みドキュメントが存在しない場合のエラー。
	ErrDocumentNotFound = errors.New("document not found")
)

// EncryptionErrorKind は暗号化系エラーの種別。
type EncryptionErrorKind int

const (
	EncryptionMalformedEnvelope EncryptionErrorKind = iota
	EncryptionAuthenticationFailed
	EncryptionKeyUnavailable
)

func (k EncryptionErrorKind) sentinel() error {
	switch k {
	case EncryptionMalformedEnvelope:
		return ErrMalformedEnvelope
	case EncryptionAuthenticationFailed:
		return ErrAuthenticationFailed
	case EncryptionKeyUnavailable:
		return ErrKeyUnavailable
	}
	return nil
}

// String はエラー種別の名前を返す。
func (k EncryptionErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("encryption error kind %d", int(k))
}

// EncryptionError はストレージ暗号化エンジンが返すエラー。
type EncryptionError struct {
	Kind EncryptionErrorKind
	Op   string
	Err  error
}

func (e *EncryptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// Is は種別に対応するセンチネルエラーと一致するかを返す。
func (e *EncryptionError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// NewEncryptionError はEncryptionErrorを生成する。
func NewEncryptionError(kind EncryptionErrorKind, op string, err error) *EncryptionError {
	return &EncryptionError{Kind: kind, Op: op, Err: err}
}

// MigrationErrorKind はマイグレーション系エラーの種別。
type MigrationErrorKind int

const (
	MigrationDuplicate MigrationErrorKind = iota
	MigrationInvalidVersion
	MigrationNoPath
	MigrationRollbackFailure
	MigrationValidationFailed
	MigrationStepFailed
)

func (k MigrationErrorKind) sentinel() error {
	switch k {
	case MigrationDuplicate:
		return ErrDuplicateMigration
	case MigrationInvalidVersion:
		return ErrInvalidVersion
	case MigrationNoPath:
		return ErrNoMigrationPath
	case MigrationRollbackFailure:
		return ErrRollbackFailure
	case MigrationValidationFailed:
		return ErrValidationFailed
	}
	return nil
}

// String はエラー種別の名前を返す。
func (k MigrationErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	if k == MigrationStepFailed {
		return "migration step failed"
	}
	return fmt.Sprintf("migration error kind %d", int(k))
}

// MigrationError はマイグレーションの登録・経路探索・実行で返すエラー。
type MigrationError struct {
	Kind MigrationErrorKind
	From int
	To   int
	Err  error
}

func (e *MigrationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%d -> %d)", e.Kind, e.From, e.To)
	}
	return fmt.Sprintf("%s (%d -> %d): %v", e.Kind, e.From, e.To, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Is は種別に対応するセンチネルエラーと一致するかを返す。
func (e *MigrationError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// NewMigrationError はMigrationErrorを生成する。
func NewMigrationError(kind MigrationErrorKind, from, to int, err error) *MigrationError {
	return &MigrationError{Kind: kind, From: from, To: to, Err: err}
}

const (
	userMessageUnreadable     = "data unreadable"
	userMessageUpdateRequired = "update required, could not complete automatically"
	userMessageInternal       = "internal error"
)

// UserMessage はエラーを利用者向けのメッセージに変換する。
// 暗号処理の詳細は表に出さない。
func UserMessage(err error) string {
	var encErr *EncryptionError
	if errors.As(err, &encErr) {
		return userMessageUnreadable
	}
	var migErr *MigrationError
	if errors.As(err, &migErr) {
		return userMessageUpdateRequired
	}
	switch {
	case errors.Is(err, ErrMalformedEnvelope),
		errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrKeyUnavailable):
		return userMessageUnreadable
	case errors.Is(err, ErrNoMigrationPath),
		errors.Is(err, ErrInvalidVersion),
		errors.Is(err, ErrRollbackFailure),
		errors.Is(err, ErrValidationFailed):
		return userMessageUpdateRequired
	}
	return userMessageInternal
}
