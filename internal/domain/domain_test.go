package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestEncryptionError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("loading document: %w",
		NewEncryptionError(EncryptionAuthenticationFailed, "decrypt", errors.New("cipher: message authentication failed")))

	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("want ErrAuthenticationFailed, got %v", err)
	}
	if errors.Is(err, ErrMalformedEnvelope) {
		t.Error("did not expect ErrMalformedEnvelope")
	}

	var encErr *EncryptionError
	if !errors.As(err, &encErr) {
		t.Fatal("want *EncryptionError")
	}
	if encErr.Kind != EncryptionAuthenticationFailed {
		t.Errorf("want kind AuthenticationFailed, got %s", encErr.Kind)
	}
}

func TestMigrationError_IsMatchesKind(t *testing.T) {
	err := NewMigrationError(MigrationNoPath, 1, 5, nil)

	if !errors.Is(err, ErrNoMigrationPath) {
		t.Errorf("want ErrNoMigrationPath, got %v", err)
	}
	if errors.Is(err, ErrDuplicateMigration) {
		t.Error("did not expect ErrDuplicateMigration")
	}

	step := NewMigrationError(MigrationStepFailed, 1, 2, errors.New("boom"))
	if errors.Is(step, ErrNoMigrationPath) {
		t.Error("step failure should not match ErrNoMigrationPath")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth", NewEncryptionError(EncryptionAuthenticationFailed, "decrypt", nil), "data unreadable"},
		{"sentinel key", fmt.Errorf("x: %w", ErrKeyUnavailable), "data unreadable"},
		{"no path", NewMigrationError(MigrationNoPath, 1, 3, nil), "update required, could not complete automatically"},
		{"rollback", fmt.Errorf("x: %w", ErrRollbackFailure), "update required, could not complete automatically"},
		{"other", errors.New("disk full"), "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSchemaVersion_Validate(t *testing.T) {
	if _, err := NewSchemaVersion(0, "zero", "bad"); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("want ErrInvalidVersion for number 0, got %v", err)
	}
	if _, err := NewSchemaVersion(3, " ", "desc"); err == nil {
		t.Error("want error for blank name")
	}
	if _, err := NewSchemaVersion(3, "name", ""); err == nil {
		t.Error("want error for blank description")
	}
	v, err := NewSchemaVersion(3, "tags", "adds tags")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Compare(CurrentSchemaVersion) <= 0 {
		t.Errorf("want version 3 to sort after current version %d", CurrentSchemaVersion.Number)
	}
	for _, known := range KnownSchemaVersions() {
		if err := known.Validate(); err != nil {
			t.Errorf("known version %d invalid: %v", known.Number, err)
		}
	}
}

func TestMigrationProgress(t *testing.T) {
	p, err := NewMigrationProgress(1, 4, "step")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Percent() != 25 {
		t.Errorf("want 25 percent, got %d", p.Percent())
	}
	if _, err := NewMigrationProgress(5, 4, "overflow"); err == nil {
		t.Error("want error when current step exceeds total")
	}
	if _, err := NewMigrationProgress(-1, 4, "negative"); err == nil {
		t.Error("want error for negative step")
	}

	var nilFunc ProgressFunc
	nilFunc.Report(p)
}

func TestMigrationOutcome_DurationMs(t *testing.T) {
	o := MigrationOutcome{Duration: 1500 * time.Millisecond}
	if o.DurationMs() != 1500 {
		t.Errorf("want 1500ms, got %d", o.DurationMs())
	}
	rec := NewMigrationRecord(MigrationOutcome{Success: false, FromVersion: 1, ToVersion: 2})
	if rec.Status != MigrationStatusFailed {
		t.Errorf("want failed status, got %s", rec.Status)
	}
}

func TestBaseMigration(t *testing.T) {
	if _, err := NewBaseMigration(2, 2, "same", "", false); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("want ErrInvalidVersion for equal versions, got %v", err)
	}

	b, err := NewBaseMigration(1, 2, "one-way", "not reversible", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.CanMigrate(Document{Version: 1}) || b.CanMigrate(Document{Version: 2}) {
		t.Error("CanMigrate should match only the from version")
	}
	if err := b.CheckMigrate(Document{Version: 3}); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("want ErrInvalidVersion, got %v", err)
	}
	if _, err := b.Rollback(context.Background(), Document{Version: 2}, nil); !errors.Is(err, ErrRollbackFailure) {
		t.Errorf("want ErrRollbackFailure, got %v", err)
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	doc := Document{
		Version:     2,
		Identities:  []SSHIdentity{{ID: "id-1"}},
		Projects:    []Project{{ID: "p-1", ServerIDs: []string{"s-1"}}},
		Preferences: &Preferences{Theme: "dark"},
	}
	clone := doc.Clone()
	clone.Identities[0].ID = "changed"
	clone.Projects[0].ServerIDs[0] = "changed"
	clone.Preferences.Theme = "light"

	if doc.Identities[0].ID != "id-1" || doc.Projects[0].ServerIDs[0] != "s-1" || doc.Preferences.Theme != "dark" {
		t.Error("clone shares state with the original")
	}
}

func TestDocument_ClonePreservesEmptyCollections(t *testing.T) {
	doc := Document{
		Version:    1,
		Identities: []SSHIdentity{},
		Servers:    []ServerProfile{},
		Projects:   []Project{{ID: "p-1", ServerIDs: []string{}}},
	}

	clone := doc.Clone()

	if clone.Identities == nil || clone.Servers == nil || clone.Projects[0].ServerIDs == nil {
		t.Errorf("empty collections became nil: %+v", clone)
	}
	if (Document{}).Clone().Identities != nil {
		t.Error("nil collections must stay nil")
	}
}

func TestDocument_OrphanedReferences(t *testing.T) {
	doc := Document{
		Identities: []SSHIdentity{{ID: "id-1"}},
		Servers: []ServerProfile{
			{ID: "s-1", IdentityID: "id-1"},
			{ID: "s-2", IdentityID: "missing"},
		},
		Projects: []Project{{ID: "p-1", ServerIDs: []string{"s-1", "s-404"}}},
	}
	orphans := doc.OrphanedReferences()
	if len(orphans) != 2 {
		t.Fatalf("want 2 orphans, got %d: %v", len(orphans), orphans)
	}
}
