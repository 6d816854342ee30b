package repository

import (
	"context"
	"testing"
	"time"

	"vault-store/internal/domain"
)

func TestMigrationRepository_RecordAndFindAll(t *testing.T) {
	ctx := context.Background()
	repo := NewMigrationRepository(setupTestDB(t))

	// 履歴が無い場合
	records, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected 0 records, got %d", len(records))
	}

	applied := domain.NewMigrationRecord(domain.MigrationOutcome{
		Success:     true,
		FromVersion: 1,
		ToVersion:   2,
		Message:     "migrated",
		Duration:    15 * time.Millisecond,
		BackupName:  "backup-v1-20260101000000-abcd1234",
	})
	if err := repo.Record(ctx, applied); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if applied.ID == "" || applied.AppliedAt.IsZero() {
		t.Errorf("expected ID and AppliedAt to be set, got %+v", applied)
	}

	failed := domain.NewMigrationRecord(domain.MigrationOutcome{FromVersion: 2, ToVersion: 9, Message: "no path"})
	if err := repo.Record(ctx, failed); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	records, err = repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Status != domain.MigrationStatusApplied || records[0].DurationMs != 15 {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[0].BackupName != "backup-v1-20260101000000-abcd1234" {
		t.Errorf("unexpected backup name: %s", records[0].BackupName)
	}
	if records[1].Status != domain.MigrationStatusFailed || records[1].ToVersion != 9 {
		t.Errorf("unexpected second record: %+v", records[1])
	}
}
