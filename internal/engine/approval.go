package engine

import (
	"context"
	"time"

	"bonusdesk/internal/domain"
	"bonusdesk/internal/events"
	"bonusdesk/internal/repo"
)

// bonusEntered reports whether a bonus cycle has been started for the
// employee. Entry metadata is authoritative; a positive amount or an
// already-decided level also counts, so older rows missing the metadata
// still behave as entered.
func bonusEntered(e *domain.Employee) bool {
	if e.Status == nil {
		return false
	}
	if e.Status.EnteredBy != "" {
		return true
	}
	if e.Bonus2025 != nil && *e.Bonus2025 > 0 {
		return true
	}
	for _, lv := range e.Status.Levels {
		if lv.Status == domain.StatusApproved || lv.Status == domain.StatusRejected {
			return true
		}
	}
	return false
}

// approvalRefusal is the single rule set deciding whether actorID may act
// at level. Returns nil when the action is allowed. Checks run in a fixed
// order so callers always see the first failing rule.
func approvalRefusal(e *domain.Employee, level int, actorID string) *RuleError {
	if level < 1 || level > domain.NumLevels {
		return ruleErr(CodeValidation, "level must be between 1 and %d", domain.NumLevels)
	}
	if !bonusEntered(e) {
		return levelErr(CodeBonusNotEntered, level, "no bonus entered for %s", e.EmployeeID)
	}
	link := e.Approver(level)
	if link.ID == nil || *link.ID != actorID {
		return levelErr(CodeNotAuthorized, level, "actor is not the level %d approver for %s", level, e.EmployeeID)
	}
	lv := e.Status.Level(level)
	if lv.Status != domain.StatusPending {
		return levelErr(CodeAlreadyProcessed, level, "level %d already resolved as %s", level, lv.Status)
	}
	for prior := 1; prior < level; prior++ {
		st := e.Status.Level(prior).Status
		if st == domain.StatusNotRequired || st == domain.StatusApproved {
			continue
		}
		return levelErr(CodePreviousLevelPending, prior, "level %d is still %s", prior, st)
	}
	return nil
}

// Eligibility is the read-only answer to "could actorID act at this level".
type Eligibility struct {
	Eligible      bool               `json:"eligible"`
	Reason        string             `json:"reason,omitempty"`
	Message       string             `json:"message,omitempty"`
	LevelStatus   domain.LevelStatus `json:"level_status,omitempty"`
	BlockingLevel int                `json:"blocking_level,omitempty"`
}

// CheckEligibility mirrors the ProcessApproval preconditions without side
// effects. Used by clients to gate action buttons; agreement with
// ProcessApproval is guaranteed by sharing approvalRefusal.
func (e Engine) CheckEligibility(emp *domain.Employee, level int, actorID string) Eligibility {
	refusal := approvalRefusal(emp, level, actorID)
	if refusal == nil {
		return Eligibility{Eligible: true, LevelStatus: domain.StatusPending}
	}
	out := Eligibility{Reason: refusal.Code, Message: refusal.Message}
	if emp.Status != nil && level >= 1 && level <= domain.NumLevels {
		out.LevelStatus = emp.Status.Level(level).Status
	}
	if refusal.Code == CodePreviousLevelPending {
		out.BlockingLevel = refusal.Level
	}
	return out
}

// EnterBonus records a bonus amount for an employee and starts a fresh
// approval cycle: pending at each level with a resolved approver,
// not_required elsewhere. Re-entering restarts the whole chain; the prior
// chain is captured in the audit event before being overwritten.
func (e Engine) EnterBonus(ctx context.Context, employeeID string, amount float64, actorID string) (domain.Employee, error) {
	if amount < 0 {
		return domain.Employee{}, ruleErr(CodeValidation, "bonus amount must be zero or positive")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()

	emp, err := e.Repo.GetEmployeeTx(ctx, tx, employeeID)
	if err != nil {
		return domain.Employee{}, err
	}
	if emp.SupervisorID == nil || *emp.SupervisorID != actorID {
		return domain.Employee{}, ruleErr(CodeNotAuthorized, "only the supervisor of record may enter a bonus for %s", emp.EmployeeID)
	}

	now := e.now().UTC().Format(time.RFC3339)
	st := &domain.ApprovalStatus{EnteredBy: actorID, EnteredAt: now}
	for i := 0; i < domain.NumLevels; i++ {
		if emp.HasApprover(i + 1) {
			st.Levels[i].Status = domain.StatusPending
		} else {
			st.Levels[i].Status = domain.StatusNotRequired
		}
	}

	payload := events.EventPayload{"amount": amount}
	if emp.Status != nil {
		payload["previous_cycle"] = emp.Status
	}
	if err := e.Repo.UpdateApprovalStatus(ctx, tx, emp.ID, st, &amount, now); err != nil {
		return domain.Employee{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeBonusEntered, "employee", emp.ID, actorID, payload); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	emp.Status = st
	emp.Bonus2025 = &amount
	emp.UpdatedAt = now
	return emp, nil
}

// ProcessApproval applies an approve or reject decision at one level. The
// employee row is re-read inside the write transaction so preconditions
// are checked against current state. A decision is terminal for its level
// and never cascades to other levels.
func (e Engine) ProcessApproval(ctx context.Context, employeeID string, level int, action domain.Action, comments, actorID string) (domain.Employee, error) {
	if !domain.ValidAction(action) {
		return domain.Employee{}, ruleErr(CodeValidation, "action must be approve or reject")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()

	emp, err := e.Repo.GetEmployeeTx(ctx, tx, employeeID)
	if err != nil {
		return domain.Employee{}, err
	}
	if refusal := approvalRefusal(&emp, level, actorID); refusal != nil {
		return domain.Employee{}, refusal
	}

	now := e.now().UTC().Format(time.RFC3339)
	lv := emp.Status.Level(level)
	if action == domain.ActionApprove {
		lv.Status = domain.StatusApproved
	} else {
		lv.Status = domain.StatusRejected
	}
	lv.ApprovedBy = &actorID
	lv.ApprovedAt = &now
	lv.Comments = comments

	if err := e.Repo.UpdateApprovalStatus(ctx, tx, emp.ID, emp.Status, emp.Bonus2025, now); err != nil {
		return domain.Employee{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeApprovalProcessed, "employee", emp.ID, actorID, events.EventPayload{
		"level":  level,
		"action": string(action),
		"status": string(lv.Status),
	}); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	emp.UpdatedAt = now
	return emp, nil
}

// nextActionableLevel returns the lowest pending level whose earlier
// assigned levels are all approved, or 0 when nothing is actionable.
func nextActionableLevel(e *domain.Employee) int {
	if e.Status == nil {
		return 0
	}
	for i := 0; i < domain.NumLevels; i++ {
		switch e.Status.Levels[i].Status {
		case domain.StatusNotRequired, domain.StatusApproved:
			continue
		case domain.StatusPending:
			return i + 1
		default:
			return 0
		}
	}
	return 0
}

// ApprovalQueue buckets employees by the level an approver covers.
// Levels[0] is level 1.
type ApprovalQueue struct {
	Levels [domain.NumLevels][]domain.Employee `json:"levels"`
}

// MyApprovals lists active employees the actor approves for, bucketed by
// level. An employee covered at several levels appears only at the lowest
// one.
func (e Engine) MyApprovals(ctx context.Context, actorID string) (ApprovalQueue, error) {
	active := true
	employees, err := e.Repo.ListEmployees(ctx, repo.EmployeeFilters{Active: &active})
	if err != nil {
		return ApprovalQueue{}, err
	}
	var q ApprovalQueue
	for _, emp := range employees {
		for level := 1; level <= domain.NumLevels; level++ {
			link := emp.Approver(level)
			if link.ID != nil && *link.ID == actorID {
				q.Levels[level-1] = append(q.Levels[level-1], emp)
				break
			}
		}
	}
	return q, nil
}

// MyBonusApprovals lists employees whose next actionable level belongs to
// the actor right now.
func (e Engine) MyBonusApprovals(ctx context.Context, actorID string) ([]domain.Employee, error) {
	active := true
	employees, err := e.Repo.ListEmployees(ctx, repo.EmployeeFilters{Active: &active})
	if err != nil {
		return nil, err
	}
	var res []domain.Employee
	for _, emp := range employees {
		level := nextActionableLevel(&emp)
		if level == 0 {
			continue
		}
		link := emp.Approver(level)
		if link.ID != nil && *link.ID == actorID {
			res = append(res, emp)
		}
	}
	return res, nil
}
