package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bonusdesk/internal/config"
	"bonusdesk/internal/domain"
	"bonusdesk/internal/events"
	"bonusdesk/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	syncMu *sync.Mutex
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		syncMu: &sync.Mutex{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// EmployeeInput carries the writable employee fields for create and import.
type EmployeeInput struct {
	EmployeeID     string                    `json:"employee_id"`
	FirstName      string                    `json:"first_name"`
	LastName       string                    `json:"last_name,omitempty"`
	Email          string                    `json:"email,omitempty"`
	JobTitle       string                    `json:"job_title,omitempty"`
	Role           string                    `json:"role,omitempty"`
	BranchID       string                    `json:"branch_id,omitempty"`
	Password       string                    `json:"password,omitempty"`
	Bonus2024      *float64                  `json:"bonus_2024,omitempty"`
	Bonus2025      *float64                  `json:"bonus_2025,omitempty"`
	SupervisorName string                    `json:"supervisor_name,omitempty"`
	ApproverNames  [domain.NumLevels]string `json:"approver_names,omitempty"`
}

func (in EmployeeInput) validate() *RuleError {
	if strings.TrimSpace(in.EmployeeID) == "" {
		return ruleErr(CodeValidation, "employee_id is required")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return ruleErr(CodeValidation, "first_name is required")
	}
	if in.Role != "" && !domain.ValidRole(domain.Role(in.Role)) {
		return ruleErr(CodeValidation, "unknown role %q", in.Role)
	}
	return nil
}

func (e Engine) buildEmployee(in EmployeeInput, now string) (domain.Employee, error) {
	role := domain.Role(in.Role)
	if in.Role == "" {
		role = domain.RoleEmployee
	}
	password := in.Password
	if password == "" && e.Config != nil {
		password = e.Config.Import.DefaultPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Employee{}, fmt.Errorf("hash password: %w", err)
	}
	emp := domain.Employee{
		ID:           uuid.New().String(),
		EmployeeID:   strings.TrimSpace(in.EmployeeID),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        strings.TrimSpace(in.Email),
		JobTitle:     strings.TrimSpace(in.JobTitle),
		Role:         role,
		Active:       true,
		BranchID:     optionalString(in.BranchID),
		PasswordHash: string(hash),
		Bonus2024:    in.Bonus2024,
		Bonus2025:    in.Bonus2025,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	emp.SupervisorName = optionalString(strings.TrimSpace(in.SupervisorName))
	for i := 0; i < domain.NumLevels; i++ {
		emp.Approvers[i].Name = optionalString(strings.TrimSpace(in.ApproverNames[i]))
	}
	return emp, nil
}

func (e Engine) CreateEmployee(ctx context.Context, in EmployeeInput, actorID string) (domain.Employee, error) {
	if err := in.validate(); err != nil {
		return domain.Employee{}, err
	}
	if _, err := e.Repo.GetByEmployeeID(ctx, strings.TrimSpace(in.EmployeeID)); err == nil {
		return domain.Employee{}, ruleErr(CodeValidation, "employee %s already exists", in.EmployeeID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Employee{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	emp, err := e.buildEmployee(in, now)
	if err != nil {
		return domain.Employee{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEmployeeTx(ctx, tx, emp); err != nil {
		return domain.Employee{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeEmployeeCreated, "employee", emp.ID, actorID, events.EventPayload{"employee_id": emp.EmployeeID}); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	return emp, nil
}

// EmployeeUpdate holds partial updates; nil fields are left unchanged.
type EmployeeUpdate struct {
	FirstName      *string
	LastName       *string
	Email          *string
	JobTitle       *string
	Role           *string
	BranchID       *string
	Password       *string
	Bonus2024      *float64
	SupervisorName *string
	ApproverNames  [domain.NumLevels]*string
}

func (e Engine) UpdateEmployee(ctx context.Context, id string, upd EmployeeUpdate, actorID string) (domain.Employee, error) {
	if upd.Role != nil && !domain.ValidRole(domain.Role(*upd.Role)) {
		return domain.Employee{}, ruleErr(CodeValidation, "unknown role %q", *upd.Role)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()

	emp, err := e.Repo.GetEmployeeTx(ctx, tx, id)
	if err != nil {
		return domain.Employee{}, err
	}
	if upd.FirstName != nil {
		emp.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		emp.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Email != nil {
		emp.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.JobTitle != nil {
		emp.JobTitle = strings.TrimSpace(*upd.JobTitle)
	}
	if upd.Role != nil {
		emp.Role = domain.Role(*upd.Role)
	}
	if upd.BranchID != nil {
		emp.BranchID = optionalString(*upd.BranchID)
	}
	if upd.Bonus2024 != nil {
		emp.Bonus2024 = upd.Bonus2024
	}
	if upd.Password != nil && *upd.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*upd.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Employee{}, fmt.Errorf("hash password: %w", err)
		}
		emp.PasswordHash = string(hash)
	}
	if upd.SupervisorName != nil {
		name := strings.TrimSpace(*upd.SupervisorName)
		emp.SupervisorName = optionalString(name)
		// a changed raw name invalidates the resolved link
		emp.SupervisorID = nil
	}
	for i := 0; i < domain.NumLevels; i++ {
		if upd.ApproverNames[i] == nil {
			continue
		}
		name := strings.TrimSpace(*upd.ApproverNames[i])
		emp.Approvers[i].Name = optionalString(name)
		emp.Approvers[i].ID = nil
	}
	emp.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateEmployee(ctx, tx, emp); err != nil {
		return domain.Employee{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeEmployeeUpdated, "employee", emp.ID, actorID, events.EventPayload{"employee_id": emp.EmployeeID}); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	return emp, nil
}

func (e Engine) DeleteEmployee(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	emp, err := e.Repo.GetEmployeeTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteEmployee(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeEmployeeDeleted, "employee", id, actorID, events.EventPayload{"employee_id": emp.EmployeeID}); err != nil {
		return err
	}
	return tx.Commit()
}

// ToggleActive flips the active flag and returns the updated employee.
func (e Engine) ToggleActive(ctx context.Context, id, actorID string) (domain.Employee, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()
	emp, err := e.Repo.GetEmployeeTx(ctx, tx, id)
	if err != nil {
		return domain.Employee{}, err
	}
	emp.Active = !emp.Active
	emp.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateEmployee(ctx, tx, emp); err != nil {
		return domain.Employee{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeEmployeeUpdated, "employee", emp.ID, actorID, events.EventPayload{"active": emp.Active}); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	return emp, nil
}

func (e Engine) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	return e.Repo.GetEmployee(ctx, id)
}

func (e Engine) ListEmployees(ctx context.Context, f repo.EmployeeFilters) ([]domain.Employee, error) {
	return e.Repo.ListEmployees(ctx, f)
}

// MyTeam lists the active employees supervised by the actor.
func (e Engine) MyTeam(ctx context.Context, supervisorID string) ([]domain.Employee, error) {
	active := true
	return e.Repo.ListEmployees(ctx, repo.EmployeeFilters{SupervisorID: supervisorID, Active: &active})
}

// Authenticate verifies credentials and returns the account.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.Employee, error) {
	emp, err := e.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Employee{}, ruleErr(CodeNotAuthorized, "invalid credentials")
		}
		return domain.Employee{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(emp.PasswordHash), []byte(password)) != nil {
		return domain.Employee{}, ruleErr(CodeNotAuthorized, "invalid credentials")
	}
	if !emp.Active {
		return domain.Employee{}, ruleErr(CodeNotAuthorized, "account disabled")
	}
	return emp, nil
}

// RowError reports a rejected import row.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// SkippedRow reports an import row skipped as a duplicate.
type SkippedRow struct {
	Row        int    `json:"row"`
	EmployeeID string `json:"employee_id"`
	Reason     string `json:"reason"`
}

// ImportResult is the partial-success report of a bulk import.
type ImportResult struct {
	Created    int          `json:"created"`
	Skipped    []SkippedRow `json:"skipped,omitempty"`
	Invalid    []RowError   `json:"invalid,omitempty"`
	SyncErrors []SyncError  `json:"sync_errors,omitempty"`
}

// Partial reports whether some rows did not make it in.
func (r ImportResult) Partial() bool {
	return len(r.Skipped) > 0 || len(r.Invalid) > 0
}

// BulkImport loads a batch of employee rows. Invalid rows and duplicates
// are reported, not fatal; valid rows are inserted in one transaction and
// a full approver sync runs afterwards so the new names get linked.
func (e Engine) BulkImport(ctx context.Context, rows []EmployeeInput, actorID string) (ImportResult, error) {
	var res ImportResult
	if len(rows) == 0 {
		return res, ruleErr(CodeValidation, "no rows to import")
	}

	existing, err := e.Repo.ListEmployees(ctx, repo.EmployeeFilters{})
	if err != nil {
		return res, err
	}
	seen := make(map[string]bool, len(existing))
	for _, emp := range existing {
		seen[emp.EmployeeID] = true
	}

	now := e.now().UTC().Format(time.RFC3339)
	batchID := uuid.New().String()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for i, in := range rows {
		if verr := in.validate(); verr != nil {
			res.Invalid = append(res.Invalid, RowError{Row: i + 1, Reason: verr.Message})
			continue
		}
		id := strings.TrimSpace(in.EmployeeID)
		if seen[id] {
			res.Skipped = append(res.Skipped, SkippedRow{Row: i + 1, EmployeeID: id, Reason: "duplicate employee_id"})
			continue
		}
		emp, err := e.buildEmployee(in, now)
		if err != nil {
			return res, err
		}
		if err := e.Repo.InsertEmployeeTx(ctx, tx, emp); err != nil {
			return res, fmt.Errorf("insert row %d: %w", i+1, err)
		}
		seen[id] = true
		res.Created++
	}
	if err := e.Events.Append(ctx, tx, events.TypeEmployeeImported, "directory", batchID, actorID, events.EventPayload{
		"created": res.Created,
		"skipped": len(res.Skipped),
		"invalid": len(res.Invalid),
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}

	sync, err := e.SyncApprovers(ctx, actorID)
	if err != nil {
		return res, fmt.Errorf("post-import sync: %w", err)
	}
	res.SyncErrors = sync.Errors
	return res, nil
}

func (e Engine) CreateBranch(ctx context.Context, code, name, location, actorID string) (domain.Branch, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(name) == "" {
		return domain.Branch{}, ruleErr(CodeValidation, "branch code and name are required")
	}
	b := domain.Branch{
		ID:        uuid.New().String(),
		Code:      strings.TrimSpace(code),
		Name:      strings.TrimSpace(name),
		Location:  strings.TrimSpace(location),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Branch{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO branches(id,code,name,location,created_at) VALUES (?,?,?,?,?)`,
		b.ID, b.Code, b.Name, nullable(b.Location), b.CreatedAt); err != nil {
		return domain.Branch{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeBranchCreated, "branch", b.ID, actorID, events.EventPayload{"code": b.Code}); err != nil {
		return domain.Branch{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Branch{}, err
	}
	return b, nil
}

func (e Engine) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return e.Repo.ListBranches(ctx)
}

func (e Engine) GetBranch(ctx context.Context, id string) (domain.Branch, error) {
	return e.Repo.GetBranch(ctx, id)
}

func (e Engine) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, evtType, entityKind, entityID)
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
