package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bonusdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const employeeCols = `id,employee_id,first_name,last_name,email,job_title,role,active,branch_id,password_hash,bonus_2024,bonus_2025,supervisor_id,supervisor_name,
level1_approver_id,level1_approver_name,level2_approver_id,level2_approver_name,level3_approver_id,level3_approver_name,level4_approver_id,level4_approver_name,level5_approver_id,level5_approver_name,
approval_status_json,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (domain.Employee, error) {
	var e domain.Employee
	var branchID, supervisorID, supervisorName, statusJSON sql.NullString
	var bonus2024, bonus2025 sql.NullFloat64
	var linkID [domain.NumLevels]sql.NullString
	var linkName [domain.NumLevels]sql.NullString
	err := row.Scan(&e.ID, &e.EmployeeID, &e.FirstName, &e.LastName, &e.Email, &e.JobTitle, &e.Role, &e.Active, &branchID, &e.PasswordHash,
		&bonus2024, &bonus2025, &supervisorID, &supervisorName,
		&linkID[0], &linkName[0], &linkID[1], &linkName[1], &linkID[2], &linkName[2], &linkID[3], &linkName[3], &linkID[4], &linkName[4],
		&statusJSON, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if branchID.Valid {
		e.BranchID = &branchID.String
	}
	if bonus2024.Valid {
		e.Bonus2024 = &bonus2024.Float64
	}
	if bonus2025.Valid {
		e.Bonus2025 = &bonus2025.Float64
	}
	if supervisorID.Valid {
		e.SupervisorID = &supervisorID.String
	}
	if supervisorName.Valid {
		e.SupervisorName = &supervisorName.String
	}
	for i := 0; i < domain.NumLevels; i++ {
		if linkID[i].Valid {
			v := linkID[i].String
			e.Approvers[i].ID = &v
		}
		if linkName[i].Valid {
			v := linkName[i].String
			e.Approvers[i].Name = &v
		}
	}
	if statusJSON.Valid && statusJSON.String != "" {
		var st domain.ApprovalStatus
		if err := json.Unmarshal([]byte(statusJSON.String), &st); err != nil {
			return e, fmt.Errorf("decode approval status for %s: %w", e.EmployeeID, err)
		}
		e.Status = &st
	}
	return e, nil
}

func statusJSON(st *domain.ApprovalStatus) (any, error) {
	if st == nil {
		return nil, nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode approval status: %w", err)
	}
	return string(data), nil
}

func employeeArgs(e domain.Employee) ([]any, error) {
	st, err := statusJSON(e.Status)
	if err != nil {
		return nil, err
	}
	args := []any{e.ID, e.EmployeeID, e.FirstName, e.LastName, e.Email, e.JobTitle, string(e.Role), e.Active,
		nullableStringPtr(e.BranchID), e.PasswordHash, nullableFloatPtr(e.Bonus2024), nullableFloatPtr(e.Bonus2025),
		nullableStringPtr(e.SupervisorID), nullableStringPtr(e.SupervisorName)}
	for i := 0; i < domain.NumLevels; i++ {
		args = append(args, nullableStringPtr(e.Approvers[i].ID), nullableStringPtr(e.Approvers[i].Name))
	}
	args = append(args, st, e.CreatedAt, e.UpdatedAt)
	return args, nil
}

const employeeInsert = `INSERT INTO employees(` + employeeCols + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

func (r Repo) InsertEmployee(ctx context.Context, e domain.Employee) error {
	args, err := employeeArgs(e)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, employeeInsert, args...)
	return err
}

func (r Repo) InsertEmployeeTx(ctx context.Context, tx *sql.Tx, e domain.Employee) error {
	args, err := employeeArgs(e)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, employeeInsert, args...)
	return err
}

func (r Repo) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	return scanEmployee(r.DB.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE id=?`, id))
}

func (r Repo) GetEmployeeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Employee, error) {
	return scanEmployee(tx.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE id=?`, id))
}

// GetByEmployeeID looks an employee up by the external personnel number.
func (r Repo) GetByEmployeeID(ctx context.Context, employeeID string) (domain.Employee, error) {
	return scanEmployee(r.DB.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE employee_id=?`, employeeID))
}

func (r Repo) GetByEmail(ctx context.Context, email string) (domain.Employee, error) {
	return scanEmployee(r.DB.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE email=?`, email))
}

type EmployeeFilters struct {
	Active       *bool
	BranchID     string
	Role         string
	SupervisorID string
}

func (r Repo) ListEmployees(ctx context.Context, f EmployeeFilters) ([]domain.Employee, error) {
	var clauses []string
	var args []any
	if f.Active != nil {
		clauses = append(clauses, "active=?")
		args = append(args, *f.Active)
	}
	if f.BranchID != "" {
		clauses = append(clauses, "branch_id=?")
		args = append(args, f.BranchID)
	}
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.SupervisorID != "" {
		clauses = append(clauses, "supervisor_id=?")
		args = append(args, f.SupervisorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + employeeCols + ` FROM employees ` + where + ` ORDER BY last_name ASC, first_name ASC, employee_id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) UpdateEmployee(ctx context.Context, tx *sql.Tx, e domain.Employee) error {
	st, err := statusJSON(e.Status)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE employees SET employee_id=?, first_name=?, last_name=?, email=?, job_title=?, role=?, active=?, branch_id=?, password_hash=?,
bonus_2024=?, bonus_2025=?, supervisor_id=?, supervisor_name=?,
level1_approver_id=?, level1_approver_name=?, level2_approver_id=?, level2_approver_name=?, level3_approver_id=?, level3_approver_name=?,
level4_approver_id=?, level4_approver_name=?, level5_approver_id=?, level5_approver_name=?,
approval_status_json=?, updated_at=? WHERE id=?`,
		e.EmployeeID, e.FirstName, e.LastName, e.Email, e.JobTitle, string(e.Role), e.Active, nullableStringPtr(e.BranchID), e.PasswordHash,
		nullableFloatPtr(e.Bonus2024), nullableFloatPtr(e.Bonus2025), nullableStringPtr(e.SupervisorID), nullableStringPtr(e.SupervisorName),
		nullableStringPtr(e.Approvers[0].ID), nullableStringPtr(e.Approvers[0].Name),
		nullableStringPtr(e.Approvers[1].ID), nullableStringPtr(e.Approvers[1].Name),
		nullableStringPtr(e.Approvers[2].ID), nullableStringPtr(e.Approvers[2].Name),
		nullableStringPtr(e.Approvers[3].ID), nullableStringPtr(e.Approvers[3].Name),
		nullableStringPtr(e.Approvers[4].ID), nullableStringPtr(e.Approvers[4].Name),
		st, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteEmployee(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM employees WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApproverLinkUpdate carries one employee's staged link resolution. The
// update writes all six link columns from the staged values; partial
// column updates are not supported, so callers stage the current ids for
// links they leave alone.
type ApproverLinkUpdate struct {
	EmployeeRowID string
	SupervisorID  *string
	LevelIDs      [domain.NumLevels]*string
	UpdatedAt     string
}

// ApplyApproverLinks writes a batch of staged link resolutions in one
// transaction. Only the id columns change; the raw names stay as imported.
func (r Repo) ApplyApproverLinks(ctx context.Context, tx *sql.Tx, updates []ApproverLinkUpdate) error {
	for _, u := range updates {
		_, err := tx.ExecContext(ctx, `UPDATE employees SET supervisor_id=?,
level1_approver_id=?, level2_approver_id=?, level3_approver_id=?, level4_approver_id=?, level5_approver_id=?, updated_at=? WHERE id=?`,
			nullableStringPtr(u.SupervisorID),
			nullableStringPtr(u.LevelIDs[0]), nullableStringPtr(u.LevelIDs[1]), nullableStringPtr(u.LevelIDs[2]),
			nullableStringPtr(u.LevelIDs[3]), nullableStringPtr(u.LevelIDs[4]),
			u.UpdatedAt, u.EmployeeRowID)
		if err != nil {
			return fmt.Errorf("apply links for %s: %w", u.EmployeeRowID, err)
		}
	}
	return nil
}

// ClearApproverLinks nulls every resolved link while keeping the raw names.
func (r Repo) ClearApproverLinks(ctx context.Context, tx *sql.Tx, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE employees SET supervisor_id=NULL,
level1_approver_id=NULL, level2_approver_id=NULL, level3_approver_id=NULL, level4_approver_id=NULL, level5_approver_id=NULL, updated_at=?`, updatedAt)
	return err
}

// UpdateApprovalStatus writes the status document and the bonus amount for
// one employee inside the caller's transaction.
func (r Repo) UpdateApprovalStatus(ctx context.Context, tx *sql.Tx, id string, st *domain.ApprovalStatus, bonus2025 *float64, updatedAt string) error {
	payload, err := statusJSON(st)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE employees SET approval_status_json=?, bonus_2025=?, updated_at=? WHERE id=?`,
		payload, nullableFloatPtr(bonus2025), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertBranch(ctx context.Context, b domain.Branch) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO branches(id,code,name,location,created_at) VALUES (?,?,?,?,?)`,
		b.ID, b.Code, b.Name, nullable(b.Location), b.CreatedAt)
	return err
}

func (r Repo) GetBranch(ctx context.Context, id string) (domain.Branch, error) {
	var b domain.Branch
	var location sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,location,created_at FROM branches WHERE id=?`, id).
		Scan(&b.ID, &b.Code, &b.Name, &location, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if location.Valid {
		b.Location = location.String
	}
	return b, err
}

func (r Repo) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,code,name,location,created_at FROM branches ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Branch
	for rows.Next() {
		var b domain.Branch
		var location sql.NullString
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &location, &b.CreatedAt); err != nil {
			return nil, err
		}
		if location.Valid {
			b.Location = location.String
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entID.Valid {
			e.EntityID = entID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
