package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"vault-store/internal/domain"
	"vault-store/internal/migrations"
)

func newShippedRunner(t *testing.T) *MigrationRunner {
	t.Helper()
	return NewMigrationRunner(mustRegistry(t, migrations.All()...))
}

func TestMigrationRunner_Run_ConcreteScenario(t *testing.T) {
	runner := newShippedRunner(t)
	before := time.Now().Add(-time.Hour)
	identity := domain.SSHIdentity{ID: "id-1", Name: "deploy", Username: "root", PublicKey: "ssh-ed25519 AAAA"}
	doc := domain.Document{
		Version:      1,
		Identities:   []domain.SSHIdentity{identity},
		Servers:      []domain.ServerProfile{},
		LastModified: before,
	}

	var progress []domain.MigrationProgress
	got, outcome := runner.Run(context.Background(), doc, domain.CurrentSchemaVersion.Number, func(p domain.MigrationProgress) {
		progress = append(progress, p)
	})

	if !outcome.Success {
		t.Fatalf("want success, got %s", outcome.Message)
	}
	if got.Version != 2 {
		t.Errorf("want version 2, got %d", got.Version)
	}
	if len(got.Identities) != 1 || got.Identities[0] != identity {
		t.Errorf("identity not preserved: %+v", got.Identities)
	}
	if got.LastModified.Before(before) {
		t.Errorf("lastModified went backwards: %v < %v", got.LastModified, before)
	}
	if outcome.FromVersion != 1 || outcome.ToVersion != 2 {
		t.Errorf("unexpected outcome versions: %d -> %d", outcome.FromVersion, outcome.ToVersion)
	}
	if len(progress) != 1 || progress[0].CurrentStep != 1 || progress[0].TotalSteps != 1 {
		t.Errorf("unexpected progress: %+v", progress)
	}
}

func TestMigrationRunner_Run_FromUnversioned(t *testing.T) {
	runner := newShippedRunner(t)

	var steps []int
	got, outcome := runner.Run(context.Background(), domain.Document{}, 2, func(p domain.MigrationProgress) {
		steps = append(steps, p.CurrentStep)
	})

	if !outcome.Success {
		t.Fatalf("want success, got %s", outcome.Message)
	}
	if got.Version != 2 || got.Preferences == nil {
		t.Errorf("unexpected document: %+v", got)
	}
	if got.Identities == nil || got.Servers == nil || got.Projects == nil {
		t.Errorf("collections must survive every step non-nil: %+v", got)
	}
	if len(steps) != 2 || steps[0] != 1 || steps[1] != 2 {
		t.Errorf("want progress steps [1 2], got %v", steps)
	}
}

func TestMigrationRunner_Run_Downgrade(t *testing.T) {
	runner := newShippedRunner(t)
	doc := domain.Document{Version: 1, Identities: []domain.SSHIdentity{}, Servers: []domain.ServerProfile{}, Projects: []domain.Project{}}

	up, outcome := runner.Run(context.Background(), doc, 2, nil)
	if !outcome.Success {
		t.Fatalf("want success, got %s", outcome.Message)
	}
	down, outcome := runner.Run(context.Background(), up, 1, nil)
	if !outcome.Success {
		t.Fatalf("want success, got %s", outcome.Message)
	}

	if down.Version != 1 || down.Preferences != nil {
		t.Errorf("unexpected document after downgrade: %+v", down)
	}
}

func TestMigrationRunner_Run_DowngradeEmptyDocumentToUnversioned(t *testing.T) {
	runner := newShippedRunner(t)
	doc := domain.Document{Version: 2, Identities: []domain.SSHIdentity{}, Servers: []domain.ServerProfile{}, Projects: []domain.Project{}, Preferences: &domain.Preferences{}}

	for _, target := range []int{1, 0} {
		got, outcome := runner.Run(context.Background(), doc, target, nil)
		if !outcome.Success {
			t.Fatalf("downgrade to %d: want success, got %s", target, outcome.Message)
		}
		if got.Version != target {
			t.Errorf("want version %d, got %d", target, got.Version)
		}
	}
}

func TestMigrationRunner_Run_NoOp(t *testing.T) {
	runner := newShippedRunner(t)
	doc := domain.Document{Version: 2}

	got, outcome := runner.Run(context.Background(), doc, 2, nil)

	if !outcome.Success {
		t.Fatalf("want success, got %s", outcome.Message)
	}
	if got.Version != 2 {
		t.Errorf("want version 2, got %d", got.Version)
	}
}

func TestMigrationRunner_Run_NoPath(t *testing.T) {
	runner := newShippedRunner(t)
	doc := domain.Document{Version: 2}

	got, outcome := runner.Run(context.Background(), doc, 5, nil)

	if outcome.Success {
		t.Fatal("want failure")
	}
	if !errors.Is(outcome.Cause, domain.ErrNoMigrationPath) {
		t.Errorf("want ErrNoMigrationPath, got %v", outcome.Cause)
	}
	if got.Version != 2 {
		t.Errorf("want original document, got version %d", got.Version)
	}
}

func TestMigrationRunner_Run_StepFailurePreservesOriginal(t *testing.T) {
	failing := newStub(2, 3, false)
	failing.migrateErr = errors.New("boom")
	runner := NewMigrationRunner(mustRegistry(t, newStub(1, 2, false), failing))
	doc := domain.Document{Version: 1, Identities: []domain.SSHIdentity{{ID: "a"}}}

	var progress int
	got, outcome := runner.Run(context.Background(), doc, 3, func(domain.MigrationProgress) { progress++ })

	if outcome.Success {
		t.Fatal("want failure")
	}
	var merr *domain.MigrationError
	if !errors.As(outcome.Cause, &merr) || merr.Kind != domain.MigrationStepFailed {
		t.Errorf("want step failure, got %v", outcome.Cause)
	}
	if got.Version != 1 {
		t.Errorf("want original version 1, got %d", got.Version)
	}
	if progress != 1 {
		t.Errorf("want 1 progress event before the failure, got %d", progress)
	}
	if domain.UserMessage(outcome.Cause) != "update required, could not complete automatically" {
		t.Errorf("unexpected user message: %q", domain.UserMessage(outcome.Cause))
	}
}

func TestMigrationRunner_Run_ValidationFailure(t *testing.T) {
	invalid := newStub(1, 2, false)
	invalid.invalid = true
	runner := NewMigrationRunner(mustRegistry(t, invalid))

	got, outcome := runner.Run(context.Background(), domain.Document{Version: 1}, 2, nil)

	if outcome.Success {
		t.Fatal("want failure")
	}
	if !errors.Is(outcome.Cause, domain.ErrValidationFailed) {
		t.Errorf("want ErrValidationFailed, got %v", outcome.Cause)
	}
	if got.Version != 1 {
		t.Errorf("want original version 1, got %d", got.Version)
	}
}

func TestMigrationRunner_Run_CancelledBetweenSteps(t *testing.T) {
	first := newStub(1, 2, false)
	second := newStub(2, 3, false)
	runner := NewMigrationRunner(mustRegistry(t, first, second))
	ctx, cancel := context.WithCancel(context.Background())

	got, outcome := runner.Run(ctx, domain.Document{Version: 1}, 3, func(domain.MigrationProgress) { cancel() })

	if outcome.Success {
		t.Fatal("want failure")
	}
	if !errors.Is(outcome.Cause, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", outcome.Cause)
	}
	if second.calls != 0 {
		t.Error("second step must not run after cancellation")
	}
	if got.Version != 1 {
		t.Errorf("want original version 1, got %d", got.Version)
	}
}
