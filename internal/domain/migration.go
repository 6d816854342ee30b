package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion はドキュメントのスキーマバージョンを表す。
type SchemaVersion struct {
	Number      int
	Name        string
	Description string
}

// NewSchemaVersion は検証済みのSchemaVersionを生成する。
func NewSchemaVersion(number int, name, description string) (SchemaVersion, error) {
	v := SchemaVersion{Number: number, Name: name, Description: description}
	if err := v.Validate(); err != nil {
		return SchemaVersion{}, err
	}
	return v, nil
}

// Validate は番号が1以上で、名前と説明が空でないことを検証する。
func (v SchemaVersion) Validate() error {
	if v.Number < 1 {
		return fmt.Errorf("%w: schema version number must be >= 1, got %d", ErrInvalidVersion, v.Number)
	}
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: schema version %d has a blank name", ErrInvalidVersion, v.Number)
	}
	if strings.TrimSpace(v.Description) == "" {
		return fmt.Errorf("%w: schema version %d has a blank description", ErrInvalidVersion, v.Number)
	}
	return nil
}

// Compare は番号順で比較する。
func (v SchemaVersion) Compare(other SchemaVersion) int {
	switch {
	case v.Number < other.Number:
		return -1
	case v.Number > other.Number:
		return 1
	}
	return 0
}

var (
	// SchemaVersionInitial は最初のバージョン付きスキーマ。
	SchemaVersionInitial = SchemaVersion{
		Number:      1,
		Name:        "initial",
		Description: "Identities, server profiles and projects with an explicit version field",
	}
	// SchemaVersionPreferences はアプリケーション設定を追加したスキーマ。
	SchemaVersionPreferences = SchemaVersion{
		Number:      2,
		Name:        "preferences",
		Description: "Adds application preferences to the document",
	}

	// CurrentSchemaVersion は現在のビルドが期待するスキーマバージョン。
	CurrentSchemaVersion = SchemaVersionPreferences
)

// KnownSchemaVersions は既知のスキーマバージョンを番号順に返す。
func KnownSchemaVersions() []SchemaVersion {
	return []SchemaVersion{SchemaVersionInitial, SchemaVersionPreferences}
}

// MigrationProgress はマイグレーションの進捗を表す。
type MigrationProgress struct {
	CurrentStep     int
	TotalSteps      int
	StepDescription string
}

// NewMigrationProgress は 0 <= currentStep <= totalSteps を満たす進捗を生成する。
func NewMigrationProgress(currentStep, totalSteps int, description string) (MigrationProgress, error) {
	if totalSteps < 0 || currentStep < 0 || currentStep > totalSteps {
		return MigrationProgress{}, fmt.Errorf("invalid progress %d/%d", currentStep, totalSteps)
	}
	return MigrationProgress{
		CurrentStep:     currentStep,
		TotalSteps:      totalSteps,
		StepDescription: description,
	}, nil
}

// Percent は進捗率を返す。
func (p MigrationProgress) Percent() int {
	if p.TotalSteps == 0 {
		return 100
	}
	return p.CurrentStep * 100 / p.TotalSteps
}

// ProgressFunc は進捗通知のコールバック。nilの場合は通知しない。
type ProgressFunc func(MigrationProgress)

// Report はnilでなければコールバックを呼び出す。
func (f ProgressFunc) Report(p MigrationProgress) {
	if f != nil {
		f(p)
	}
}

// MigrationOutcome は1回のマイグレーション試行の結果を表す。生成後に変更しない。
type MigrationOutcome struct {
	Success       bool
	FromVersion   int
	ToVersion     int
	Message       string
	Duration      time.Duration
	BackupCreated bool
	BackupName    string
	Cause         error
}

// DurationMs は所要時間をミリ秒で返す。
func (o MigrationOutcome) DurationMs() int64 {
	return o.Duration.Milliseconds()
}

// MigrationUnit はスキーマバージョン間の変換単位。
type MigrationUnit interface {
	FromVersion() int
	ToVersion() int
	Name() string
	Description() string
	Reversible() bool

	// CanMigrate は変換の前提条件を軽く確認する。
	CanMigrate(doc Document) bool
	// Migrate は新しいドキュメントを返す。CanMigrateがfalseの場合はErrInvalidVersionを返す。
	Migrate(ctx context.Context, doc Document, onProgress ProgressFunc) (Document, error)
	// Rollback はMigrateの逆変換。Reversibleがfalseの場合はErrRollbackFailureを返す。
	Rollback(ctx context.Context, doc Document, onProgress ProgressFunc) (Document, error)
	// Validate はMigrate後の事後条件を確認する。
	Validate(original, migrated Document) bool
}

// BaseMigration はMigrationUnitのメタデータと既定の振る舞いを提供する。
type BaseMigration struct {
	From       int
	To         int
	UnitName   string
	Summary    string
	CanReverse bool
}

// NewBaseMigration は from != to を検証してBaseMigrationを生成する。
func NewBaseMigration(from, to int, name, summary string, reversible bool) (BaseMigration, error) {
	if from == to {
		return BaseMigration{}, fmt.Errorf("%w: migration %q has equal from and to version %d", ErrInvalidVersion, name, from)
	}
	if strings.TrimSpace(name) == "" {
		return BaseMigration{}, errors.New("migration name must not be blank")
	}
	return BaseMigration{From: from, To: to, UnitName: name, Summary: summary, CanReverse: reversible}, nil
}

func (b BaseMigration) FromVersion() int    { return b.From }
func (b BaseMigration) ToVersion() int      { return b.To }
func (b BaseMigration) Name() string        { return b.UnitName }
func (b BaseMigration) Description() string { return b.Summary }
func (b BaseMigration) Reversible() bool    { return b.CanReverse }

// CanMigrate はドキュメントのバージョンがFromと一致するかを返す。
func (b BaseMigration) CanMigrate(doc Document) bool {
	return doc.Version == b.From
}

// CanRollback はドキュメントのバージョンがToと一致し、逆変換可能かを返す。
func (b BaseMigration) CanRollback(doc Document) bool {
	return b.CanReverse && doc.Version == b.To
}

// Rollback は逆変換を持たないユニットの既定実装。
func (b BaseMigration) Rollback(ctx context.Context, doc Document, onProgress ProgressFunc) (Document, error) {
	return doc, NewMigrationError(MigrationRollbackFailure, b.To, b.From,
		fmt.Errorf("migration %q is not reversible", b.UnitName))
}

// CheckMigrate はMigrateの前提条件を検証する。
func (b BaseMigration) CheckMigrate(doc Document) error {
	if !b.CanMigrate(doc) {
		return NewMigrationError(MigrationInvalidVersion, b.From, b.To,
			fmt.Errorf("migration %q cannot handle document version %d", b.UnitName, doc.Version))
	}
	return nil
}

// CheckRollback はRollbackの前提条件を検証する。
func (b BaseMigration) CheckRollback(doc Document) error {
	if !b.CanReverse {
		return NewMigrationError(MigrationRollbackFailure, b.To, b.From,
			fmt.Errorf("migration %q is not reversible", b.UnitName))
	}
	if doc.Version != b.To {
		return NewMigrationError(MigrationInvalidVersion, b.To, b.From,
			fmt.Errorf("migration %q cannot roll back document version %d", b.UnitName, doc.Version))
	}
	return nil
}

// MigrationStatus はマイグレーション履歴の結果を表す。
type MigrationStatus string

const (
	MigrationStatusApplied MigrationStatus = "applied"
	MigrationStatusFailed  MigrationStatus = "failed"
)

// MigrationRecord はマイグレーション履歴を表すドメインモデル。
type MigrationRecord struct {
	ID          string
	FromVersion int
	ToVersion   int
	Status      MigrationStatus
	Message     string
	DurationMs  int64
	BackupName  string
	AppliedAt   time.Time
}

// NewMigrationRecord はMigrationOutcomeから履歴レコードを生成する。
func NewMigrationRecord(o MigrationOutcome) *MigrationRecord {
	status := MigrationStatusApplied
	if !o.Success {
		status = MigrationStatusFailed
	}
	return &MigrationRecord{
		FromVersion: o.FromVersion,
		ToVersion:   o.ToVersion,
		Status:      status,
		Message:     o.Message,
		DurationMs:  o.DurationMs(),
		BackupName:  o.BackupName,
	}
}
