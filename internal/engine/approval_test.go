package engine_test

import (
	"errors"
	"testing"

	"bonusdesk/internal/domain"
	"bonusdesk/internal/engine"
)

// buildChain seeds a supervisor who is also the level 1 approver, a level 2
// approver, and one employee, then links them by name resolution.
func buildChain(t *testing.T, env testEnv) (sup, l2, emp domain.Employee) {
	t.Helper()
	sup = mustCreate(t, env, engine.EmployeeInput{
		EmployeeID: "E100", FirstName: "Alice", LastName: "Boss", Role: string(domain.RoleApprover),
	})
	l2 = mustCreate(t, env, engine.EmployeeInput{
		EmployeeID: "E101", FirstName: "Bob", LastName: "Chief", Role: string(domain.RoleApprover),
	})
	emp = mustCreate(t, env, engine.EmployeeInput{
		EmployeeID: "E102", FirstName: "Carol", LastName: "Dale",
		SupervisorName: "Boss, Alice",
		ApproverNames:  [domain.NumLevels]string{"Alice Boss", "Chief, Bob"},
	})
	if _, err := env.Engine.SyncApprovers(env.Ctx, "tester"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	var err error
	emp, err = env.Engine.GetEmployee(env.Ctx, emp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if emp.SupervisorID == nil || !emp.HasApprover(1) || !emp.HasApprover(2) {
		t.Fatalf("chain not linked: %+v", emp)
	}
	return sup, l2, emp
}

func ruleCode(t *testing.T, err error) string {
	t.Helper()
	var re *engine.RuleError
	if !errors.As(err, &re) {
		t.Fatalf("expected rule error, got %v", err)
	}
	return re.Code
}

func TestEnterBonusInitializesChain(t *testing.T) {
	env := newTestEnv(t)
	sup, _, emp := buildChain(t, env)

	got, err := env.Engine.EnterBonus(env.Ctx, emp.ID, 1500, sup.ID)
	if err != nil {
		t.Fatalf("enter bonus: %v", err)
	}
	if got.Bonus2025 == nil || *got.Bonus2025 != 1500 {
		t.Fatalf("bonus amount = %v", got.Bonus2025)
	}
	st := got.Status
	if st == nil || st.EnteredBy != sup.ID {
		t.Fatalf("status = %+v", st)
	}
	for level := 1; level <= domain.NumLevels; level++ {
		want := domain.StatusNotRequired
		if level <= 2 {
			want = domain.StatusPending
		}
		if st.Level(level).Status != want {
			t.Fatalf("level %d = %s, want %s", level, st.Level(level).Status, want)
		}
	}
}

func TestEnterBonusRequiresSupervisorOfRecord(t *testing.T) {
	env := newTestEnv(t)
	_, l2, emp := buildChain(t, env)
	_, err := env.Engine.EnterBonus(env.Ctx, emp.ID, 1000, l2.ID)
	if code := ruleCode(t, err); code != engine.CodeNotAuthorized {
		t.Fatalf("code = %s", code)
	}
	_, err = env.Engine.EnterBonus(env.Ctx, emp.ID, -5, emp.ID)
	if code := ruleCode(t, err); code != engine.CodeValidation {
		t.Fatalf("negative amount code = %s", code)
	}
}

func TestProcessApprovalSequentialGating(t *testing.T) {
	env := newTestEnv(t)
	sup, l2, emp := buildChain(t, env)
	if _, err := env.Engine.EnterBonus(env.Ctx, emp.ID, 1000, sup.ID); err != nil {
		t.Fatal(err)
	}

	// level 2 before level 1 is blocked
	_, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 2, domain.ActionApprove, "", l2.ID)
	var re *engine.RuleError
	if !errors.As(err, &re) || re.Code != engine.CodePreviousLevelPending || re.Level != 1 {
		t.Fatalf("expected previous_level_pending at 1, got %v", err)
	}

	got, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 1, domain.ActionApprove, "ok", sup.ID)
	if err != nil {
		t.Fatalf("approve level 1: %v", err)
	}
	lv := got.Status.Level(1)
	if lv.Status != domain.StatusApproved || lv.ApprovedBy == nil || *lv.ApprovedBy != sup.ID || lv.Comments != "ok" {
		t.Fatalf("level 1 decision = %+v", lv)
	}

	got, err = env.Engine.ProcessApproval(env.Ctx, emp.ID, 2, domain.ActionApprove, "", l2.ID)
	if err != nil {
		t.Fatalf("approve level 2: %v", err)
	}
	if got.Status.Level(2).Status != domain.StatusApproved {
		t.Fatalf("level 2 = %s", got.Status.Level(2).Status)
	}
}

func TestProcessApprovalPreconditionOrder(t *testing.T) {
	env := newTestEnv(t)
	sup, l2, emp := buildChain(t, env)

	// level range first
	_, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 7, domain.ActionApprove, "", sup.ID)
	if code := ruleCode(t, err); code != engine.CodeValidation {
		t.Fatalf("out of range code = %s", code)
	}
	// bonus entry before actor check: the wrong actor still sees bonus_not_entered
	_, err = env.Engine.ProcessApproval(env.Ctx, emp.ID, 1, domain.ActionApprove, "", l2.ID)
	if code := ruleCode(t, err); code != engine.CodeBonusNotEntered {
		t.Fatalf("no bonus code = %s", code)
	}

	if _, err := env.Engine.EnterBonus(env.Ctx, emp.ID, 1000, sup.ID); err != nil {
		t.Fatal(err)
	}
	// actor check before level state
	_, err = env.Engine.ProcessApproval(env.Ctx, emp.ID, 1, domain.ActionApprove, "", l2.ID)
	if code := ruleCode(t, err); code != engine.CodeNotAuthorized {
		t.Fatalf("wrong actor code = %s", code)
	}
	_, err = env.Engine.ProcessApproval(env.Ctx, emp.ID, 1, "maybe", "", sup.ID)
	if code := ruleCode(t, err); code != engine.CodeValidation {
		t.Fatalf("bad action code = %s", code)
	}
}

func TestDecisionsAreTerminal(t *testing.T) {
	env := newTestEnv(t)
	sup, l2, emp := buildChain(t, env)
	if _, err := env.Engine.EnterBonus(env.Ctx, emp.ID, 1000, sup.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 1, domain.ActionReject, "no", sup.ID); err != nil {
		t.Fatal(err)
	}

	// a decided level cannot be decided again
	_, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 1, domain.ActionApprove, "", sup.ID)
	if code := ruleCode(t, err); code != engine.CodeAlreadyProcessed {
		t.Fatalf("re-decide code = %s", code)
	}
	// a rejection does not cascade, but it blocks later levels
	emp2, err := env.Engine.GetEmployee(env.Ctx, emp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if emp2.Status.Level(2).Status != domain.StatusPending {
		t.Fatalf("level 2 = %s, want pending", emp2.Status.Level(2).Status)
	}
	_, err = env.Engine.ProcessApproval(env.Ctx, emp.ID, 2, domain.ActionApprove, "", l2.ID)
	var re *engine.RuleError
	if !errors.As(err, &re) || re.Code != engine.CodePreviousLevelPending || re.Level != 1 {
		t.Fatalf("expected block at level 1, got %v", err)
	}
}

func TestNotRequiredLevelRefusesAction(t *testing.T) {
	env := newTestEnv(t)
	sup, l2, emp := buildChain(t, env)
	if _, err := env.Engine.EnterBonus(env.Ctx, emp.ID, 1000, sup.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 1, domain.ActionApprove, "", sup.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 2, domain.ActionApprove, "", l2.ID); err != nil {
		t.Fatal(err)
	}
	// level 3 has no approver assigned; the actor check fails before the
	// not_required state is ever reachable by an outsider
	_, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 3, domain.ActionApprove, "", sup.ID)
	if code := ruleCode(t, err); code != engine.CodeNotAuthorized {
		t.Fatalf("not_required level code = %s", code)
	}
}

func TestReEntryRestartsChain(t *testing.T) {
	env := newTestEnv(t)
	sup, _, emp := buildChain(t, env)
	if _, err := env.Engine.EnterBonus(env.Ctx, emp.ID, 1000, sup.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 1, domain.ActionApprove, "", sup.ID); err != nil {
		t.Fatal(err)
	}

	got, err := env.Engine.EnterBonus(env.Ctx, emp.ID, 2000, sup.ID)
	if err != nil {
		t.Fatalf("re-enter: %v", err)
	}
	if got.Status.Level(1).Status != domain.StatusPending {
		t.Fatalf("level 1 after re-entry = %s, want pending", got.Status.Level(1).Status)
	}
	if got.Status.Level(1).ApprovedBy != nil {
		t.Fatalf("re-entry must clear the prior decision")
	}
	if *got.Bonus2025 != 2000 {
		t.Fatalf("amount = %v", *got.Bonus2025)
	}
}

func TestEligibilityAgreesWithProcess(t *testing.T) {
	env := newTestEnv(t)
	sup, l2, emp := buildChain(t, env)

	el := env.Engine.CheckEligibility(&emp, 1, sup.ID)
	if el.Eligible || el.Reason != engine.CodeBonusNotEntered {
		t.Fatalf("before entry: %+v", el)
	}

	entered, err := env.Engine.EnterBonus(env.Ctx, emp.ID, 1000, sup.ID)
	if err != nil {
		t.Fatal(err)
	}
	if el := env.Engine.CheckEligibility(&entered, 1, sup.ID); !el.Eligible {
		t.Fatalf("supervisor at level 1: %+v", el)
	}
	el = env.Engine.CheckEligibility(&entered, 2, l2.ID)
	if el.Eligible || el.Reason != engine.CodePreviousLevelPending || el.BlockingLevel != 1 {
		t.Fatalf("level 2 gate: %+v", el)
	}
	if el := env.Engine.CheckEligibility(&entered, 1, l2.ID); el.Eligible || el.Reason != engine.CodeNotAuthorized {
		t.Fatalf("wrong actor: %+v", el)
	}

	// eligibility and the mutation must agree on every case above
	if _, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 1, domain.ActionApprove, "", sup.ID); err != nil {
		t.Fatalf("process disagrees with eligibility: %v", err)
	}
	after, err := env.Engine.GetEmployee(env.Ctx, emp.ID)
	if err != nil {
		t.Fatal(err)
	}
	el = env.Engine.CheckEligibility(&after, 1, sup.ID)
	if el.Eligible || el.Reason != engine.CodeAlreadyProcessed || el.LevelStatus != domain.StatusApproved {
		t.Fatalf("after approval: %+v", el)
	}
	if el := env.Engine.CheckEligibility(&after, 2, l2.ID); !el.Eligible {
		t.Fatalf("level 2 unblocked: %+v", el)
	}
}

func TestApprovalQueues(t *testing.T) {
	env := newTestEnv(t)
	sup, l2, emp := buildChain(t, env)
	if _, err := env.Engine.EnterBonus(env.Ctx, emp.ID, 1000, sup.ID); err != nil {
		t.Fatal(err)
	}

	q, err := env.Engine.MyApprovals(env.Ctx, sup.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Levels[0]) != 1 || q.Levels[0][0].ID != emp.ID {
		t.Fatalf("level 1 bucket = %+v", q.Levels[0])
	}

	// next actionable level is 1, so only the supervisor sees the employee
	mine, err := env.Engine.MyBonusApprovals(env.Ctx, sup.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != emp.ID {
		t.Fatalf("supervisor worklist = %+v", mine)
	}
	theirs, err := env.Engine.MyBonusApprovals(env.Ctx, l2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(theirs) != 0 {
		t.Fatalf("level 2 worklist should be empty, got %d", len(theirs))
	}

	if _, err := env.Engine.ProcessApproval(env.Ctx, emp.ID, 1, domain.ActionApprove, "", sup.ID); err != nil {
		t.Fatal(err)
	}
	theirs, err = env.Engine.MyBonusApprovals(env.Ctx, l2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(theirs) != 1 {
		t.Fatalf("level 2 worklist after level 1 approval = %d", len(theirs))
	}
}
