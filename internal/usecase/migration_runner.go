package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"vault-store/internal/domain"
)

var tracer = otel.Tracer("vault-store/internal/usecase")

// MigrationRunner はレジストリの経路に沿ってドキュメントを変換する。
type MigrationRunner struct {
	registry *MigrationRegistry
	now      func() time.Time
}

// NewMigrationRunner は新しいMigrationRunnerを生成する。
func NewMigrationRunner(registry *MigrationRegistry) *MigrationRunner {
	return &MigrationRunner{
		registry: registry,
		now:      time.Now,
	}
}

// Registry は使用中のレジストリを返す。
func (r *MigrationRunner) Registry() *MigrationRegistry {
	return r.registry
}

// Run はドキュメントをtargetバージョンまで変換する。
// 失敗した場合は元のドキュメントをそのまま返し、途中の結果は返さない。
// キャンセルはステップ間でのみ確認する。
func (r *MigrationRunner) Run(ctx context.Context, doc domain.Document, target int, onProgress domain.ProgressFunc) (domain.Document, domain.MigrationOutcome) {
	ctx, span := tracer.Start(ctx, "MigrationRunner.Run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("migration.from", doc.Version),
		attribute.Int("migration.to", target),
	)

	start := r.now()
	from := doc.Version
	fail := func(err error) (domain.Document, domain.MigrationOutcome) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "migration failed")
		slog.ErrorContext(ctx, "failed to migrate document",
			"operation", "run_migration",
			"from_version", from,
			"to_version", target,
			"error", err,
		)
		return doc, domain.MigrationOutcome{
			Success:     false,
			FromVersion: from,
			ToVersion:   target,
			Message:     err.Error(),
			Duration:    r.now().Sub(start),
			Cause:       err,
		}
	}

	if from == target {
		return doc, domain.MigrationOutcome{
			Success:     true,
			FromVersion: from,
			ToVersion:   target,
			Message:     "already at target version",
			Duration:    r.now().Sub(start),
		}
	}

	path := r.registry.FindPath(from, target)
	if len(path) == 0 {
		return fail(domain.NewMigrationError(domain.MigrationNoPath, from, target,
			fmt.Errorf("no registered path from %d to %d", from, target)))
	}

	upgrade := from < target
	current := doc.Clone()
	for i, unit := range path {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("migration cancelled before step %d: %w", i+1, err))
		}

		next, err := r.step(ctx, unit, current, upgrade)
		if err != nil {
			return fail(err)
		}
		current = next

		onProgress.Report(domain.MigrationProgress{
			CurrentStep:     i + 1,
			TotalSteps:      len(path),
			StepDescription: unit.Description(),
		})
	}

	now := r.now()
	if now.Before(doc.LastModified) {
		now = doc.LastModified
	}
	current.LastModified = now

	slog.InfoContext(ctx, "document migrated",
		"operation", "run_migration",
		"from_version", from,
		"to_version", target,
		"steps", len(path),
	)
	return current, domain.MigrationOutcome{
		Success:     true,
		FromVersion: from,
		ToVersion:   target,
		Message:     fmt.Sprintf("migrated from version %d to %d in %d step(s)", from, target, len(path)),
		Duration:    r.now().Sub(start),
	}
}

// step は1つのユニットを適用し、事前条件と事後条件を確認する。
func (r *MigrationRunner) step(ctx context.Context, unit domain.MigrationUnit, doc domain.Document, upgrade bool) (domain.Document, error) {
	if upgrade {
		if !unit.CanMigrate(doc) {
			return doc, domain.NewMigrationError(domain.MigrationInvalidVersion, unit.FromVersion(), unit.ToVersion(),
				fmt.Errorf("migration %q cannot handle document version %d", unit.Name(), doc.Version))
		}
		migrated, err := unit.Migrate(ctx, doc.Clone(), nil)
		if err != nil {
			return doc, stepError(unit.FromVersion(), unit.ToVersion(), unit.Name(), err)
		}
		if !unit.Validate(doc, migrated) {
			return doc, domain.NewMigrationError(domain.MigrationValidationFailed, unit.FromVersion(), unit.ToVersion(),
				fmt.Errorf("migration %q produced an invalid document", unit.Name()))
		}
		return migrated, nil
	}

	if !unit.Reversible() || doc.Version != unit.ToVersion() {
		return doc, domain.NewMigrationError(domain.MigrationRollbackFailure, unit.ToVersion(), unit.FromVersion(),
			fmt.Errorf("migration %q cannot roll back document version %d", unit.Name(), doc.Version))
	}
	rolledBack, err := unit.Rollback(ctx, doc.Clone(), nil)
	if err != nil {
		var merr *domain.MigrationError
		if errors.As(err, &merr) {
			return doc, err
		}
		return doc, domain.NewMigrationError(domain.MigrationRollbackFailure, unit.ToVersion(), unit.FromVersion(), err)
	}
	if !unit.Validate(rolledBack, doc) {
		return doc, domain.NewMigrationError(domain.MigrationValidationFailed, unit.ToVersion(), unit.FromVersion(),
			fmt.Errorf("rollback of %q produced an invalid document", unit.Name()))
	}
	return rolledBack, nil
}

func stepError(from, to int, name string, err error) error {
	var merr *domain.MigrationError
	if errors.As(err, &merr) {
		return err
	}
	return domain.NewMigrationError(domain.MigrationStepFailed, from, to,
		fmt.Errorf("migration %q: %w", name, err))
}
