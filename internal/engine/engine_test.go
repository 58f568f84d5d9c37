package engine_test

import (
	"context"
	"testing"
	"time"

	"bonusdesk/internal/config"
	"bonusdesk/internal/db"
	"bonusdesk/internal/domain"
	"bonusdesk/internal/engine"
	"bonusdesk/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func mustCreate(t *testing.T, env testEnv, in engine.EmployeeInput) domain.Employee {
	t.Helper()
	emp, err := env.Engine.CreateEmployee(env.Ctx, in, "tester")
	if err != nil {
		t.Fatalf("create %s: %v", in.EmployeeID, err)
	}
	return emp
}

func TestCreateEmployeeRejectsDuplicateID(t *testing.T) {
	env := newTestEnv(t)
	mustCreate(t, env, engine.EmployeeInput{EmployeeID: "E100", FirstName: "Alice", LastName: "Boss"})
	_, err := env.Engine.CreateEmployee(env.Ctx, engine.EmployeeInput{EmployeeID: "E100", FirstName: "Other"}, "tester")
	if re, ok := err.(*engine.RuleError); !ok || re.Code != engine.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBulkImportReportsSkippedAndInvalid(t *testing.T) {
	env := newTestEnv(t)
	mustCreate(t, env, engine.EmployeeInput{EmployeeID: "E100", FirstName: "Alice", LastName: "Boss"})

	res, err := env.Engine.BulkImport(env.Ctx, []engine.EmployeeInput{
		{EmployeeID: "E101", FirstName: "Bob", LastName: "Chief"},
		{EmployeeID: "E100", FirstName: "Alice", LastName: "Boss"},
		{EmployeeID: "E102"},
		{EmployeeID: "E103", FirstName: "Carol", LastName: "Dale"},
		{EmployeeID: "E103", FirstName: "Carol", LastName: "Dale"},
	}, "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Created != 2 {
		t.Fatalf("created = %d, want 2", res.Created)
	}
	if len(res.Skipped) != 2 {
		t.Fatalf("skipped = %d, want 2", len(res.Skipped))
	}
	if len(res.Invalid) != 1 || res.Invalid[0].Row != 3 {
		t.Fatalf("invalid = %+v, want row 3", res.Invalid)
	}
	if !res.Partial() {
		t.Fatalf("expected partial result")
	}
}

func TestBulkImportRunsApproverSync(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.BulkImport(env.Ctx, []engine.EmployeeInput{
		{EmployeeID: "E100", FirstName: "Alice", LastName: "Boss"},
		{
			EmployeeID: "E101", FirstName: "Bob", LastName: "Chief",
			SupervisorName: "Boss, Alice",
			ApproverNames:  [domain.NumLevels]string{"Alice Boss", "Nobody Known"},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Created != 2 {
		t.Fatalf("created = %d, want 2", res.Created)
	}

	alice, err := env.Engine.Repo.GetByEmployeeID(env.Ctx, "E100")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := env.Engine.Repo.GetByEmployeeID(env.Ctx, "E101")
	if err != nil {
		t.Fatal(err)
	}
	if bob.SupervisorID == nil || *bob.SupervisorID != alice.ID {
		t.Fatalf("supervisor not linked: %+v", bob.SupervisorID)
	}
	if bob.Approvers[0].ID == nil || *bob.Approvers[0].ID != alice.ID {
		t.Fatalf("level 1 approver not linked")
	}
	if bob.Approvers[1].ID != nil {
		t.Fatalf("unresolvable name must stay unlinked")
	}
	if len(res.SyncErrors) != 1 || res.SyncErrors[0].ApproverName != "Nobody Known" {
		t.Fatalf("sync errors = %+v", res.SyncErrors)
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	emp := mustCreate(t, env, engine.EmployeeInput{
		EmployeeID: "E100", FirstName: "Alice", LastName: "Boss",
		Email: "alice@example.com", Password: "s3cret",
	})

	got, err := env.Engine.Authenticate(env.Ctx, "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != emp.ID {
		t.Fatalf("wrong account: %s", got.ID)
	}

	if _, err := env.Engine.Authenticate(env.Ctx, "alice@example.com", "wrong"); err == nil {
		t.Fatalf("expected bad password to fail")
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "nobody@example.com", "s3cret"); err == nil {
		t.Fatalf("expected unknown email to fail")
	}

	if _, err := env.Engine.ToggleActive(env.Ctx, emp.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "alice@example.com", "s3cret"); err == nil {
		t.Fatalf("expected disabled account to fail")
	}
}

func TestUpdateEmployeeChangedNameInvalidatesLink(t *testing.T) {
	env := newTestEnv(t)
	alice := mustCreate(t, env, engine.EmployeeInput{EmployeeID: "E100", FirstName: "Alice", LastName: "Boss"})
	bob := mustCreate(t, env, engine.EmployeeInput{
		EmployeeID: "E101", FirstName: "Bob", LastName: "Chief",
		ApproverNames: [domain.NumLevels]string{"Alice Boss"},
	})
	if _, err := env.Engine.SyncApprovers(env.Ctx, "tester"); err != nil {
		t.Fatal(err)
	}
	bob, err := env.Engine.GetEmployee(env.Ctx, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if bob.Approvers[0].ID == nil || *bob.Approvers[0].ID != alice.ID {
		t.Fatalf("precondition: link not resolved")
	}

	name := "Chief, Bob"
	bob, err = env.Engine.UpdateEmployee(env.Ctx, bob.ID, engine.EmployeeUpdate{
		ApproverNames: [domain.NumLevels]*string{&name},
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if bob.Approvers[0].ID != nil {
		t.Fatalf("changed raw name must clear the resolved link")
	}
	if bob.Approvers[0].Name == nil || *bob.Approvers[0].Name != name {
		t.Fatalf("raw name not stored: %+v", bob.Approvers[0].Name)
	}
}
