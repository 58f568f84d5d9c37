package server

import (
	"bonusdesk/internal/domain"
	"bonusdesk/internal/engine"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateEmployeeRequest struct {
	EmployeeID     string    `json:"employee_id"`
	FirstName      string    `json:"first_name"`
	LastName       *string   `json:"last_name,omitempty"`
	Email          *string   `json:"email,omitempty"`
	JobTitle       *string   `json:"job_title,omitempty"`
	Role           *string   `json:"role,omitempty" enum:"employee,approver,hr,admin"`
	BranchID       *string   `json:"branch_id,omitempty"`
	Password       *string   `json:"password,omitempty"`
	Bonus2024      *float64  `json:"bonus_2024,omitempty"`
	SupervisorName *string   `json:"supervisor_name,omitempty"`
	ApproverNames  []*string `json:"approver_names,omitempty" maxItems:"5"`
}

type UpdateEmployeeRequest struct {
	FirstName      *string   `json:"first_name,omitempty"`
	LastName       *string   `json:"last_name,omitempty"`
	Email          *string   `json:"email,omitempty"`
	JobTitle       *string   `json:"job_title,omitempty"`
	Role           *string   `json:"role,omitempty" enum:"employee,approver,hr,admin"`
	BranchID       *string   `json:"branch_id,omitempty"`
	Password       *string   `json:"password,omitempty"`
	Bonus2024      *float64  `json:"bonus_2024,omitempty"`
	SupervisorName *string   `json:"supervisor_name,omitempty"`
	ApproverNames  []*string `json:"approver_names,omitempty" maxItems:"5"`
}

type BulkImportRequest struct {
	Rows []ImportRowRequest `json:"rows" minItems:"1"`
}

type ImportRowRequest struct {
	EmployeeID     string   `json:"employee_id"`
	FirstName      string   `json:"first_name"`
	LastName       *string  `json:"last_name,omitempty"`
	Email          *string  `json:"email,omitempty"`
	JobTitle       *string  `json:"job_title,omitempty"`
	Role           *string  `json:"role,omitempty" enum:"employee,approver,hr,admin"`
	BranchID       *string  `json:"branch_id,omitempty"`
	Password       *string  `json:"password,omitempty"`
	Bonus2024      *float64 `json:"bonus_2024,omitempty"`
	Bonus2025      *float64 `json:"bonus_2025,omitempty"`
	SupervisorName *string  `json:"supervisor_name,omitempty"`
	Reporting1st   *string  `json:"reporting_1st,omitempty"`
	Reporting2nd   *string  `json:"reporting_2nd,omitempty"`
	Reporting3rd   *string  `json:"reporting_3rd,omitempty"`
	Reporting4th   *string  `json:"reporting_4th,omitempty"`
	Reporting5th   *string  `json:"reporting_5th,omitempty"`
}

type EnterBonusRequest struct {
	Amount *float64 `json:"amount"`
}

type ProcessApprovalRequest struct {
	Level    int    `json:"level" minimum:"1" maximum:"5"`
	Action   string `json:"action" enum:"approve,reject"`
	Comments string `json:"comments,omitempty"`
}

type CreateBranchRequest struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Location *string `json:"location,omitempty"`
}

// Response payloads

type LoginResponse struct {
	Token    string           `json:"token"`
	Employee EmployeeResponse `json:"employee"`
}

type ApproverLinkResponse struct {
	ID   *string `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}

type LevelDecisionResponse struct {
	Status     string  `json:"status" enum:"pending,approved,rejected,not_required"`
	ApprovedBy *string `json:"approved_by,omitempty"`
	ApprovedAt *string `json:"approved_at,omitempty" format:"date-time"`
	Comments   string  `json:"comments,omitempty"`
}

type ApprovalStatusResponse struct {
	EnteredBy string                  `json:"entered_by"`
	EnteredAt string                  `json:"entered_at" format:"date-time"`
	Levels    []LevelDecisionResponse `json:"levels"`
}

type EmployeeResponse struct {
	ID             string                  `json:"id"`
	EmployeeID     string                  `json:"employee_id"`
	FirstName      string                  `json:"first_name"`
	LastName       string                  `json:"last_name,omitempty"`
	FullName       string                  `json:"full_name"`
	Email          string                  `json:"email,omitempty"`
	JobTitle       string                  `json:"job_title,omitempty"`
	Role           string                  `json:"role" enum:"employee,approver,hr,admin"`
	Active         bool                    `json:"active"`
	BranchID       *string                 `json:"branch_id,omitempty"`
	Bonus2024      *float64                `json:"bonus_2024,omitempty"`
	Bonus2025      *float64                `json:"bonus_2025,omitempty"`
	SupervisorID   *string                 `json:"supervisor_id,omitempty"`
	SupervisorName *string                 `json:"supervisor_name,omitempty"`
	Approvers      []ApproverLinkResponse  `json:"approvers"`
	ApprovalStatus *ApprovalStatusResponse `json:"approval_status,omitempty"`
	CreatedAt      string                  `json:"created_at" format:"date-time"`
	UpdatedAt      string                  `json:"updated_at" format:"date-time"`
}

type SyncErrorResponse struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Level        string `json:"level"`
	ApproverName string `json:"approver_name"`
	Reason       string `json:"reason"`
}

type SyncResultResponse struct {
	Checked int                 `json:"checked"`
	Updated int                 `json:"updated"`
	Errors  []SyncErrorResponse `json:"errors,omitempty"`
}

type ImportResultResponse struct {
	Created    int                 `json:"created"`
	Skipped    []SkippedRowBody    `json:"skipped,omitempty"`
	Invalid    []RowErrorBody      `json:"invalid,omitempty"`
	SyncErrors []SyncErrorResponse `json:"sync_errors,omitempty"`
}

type SkippedRowBody struct {
	Row        int    `json:"row"`
	EmployeeID string `json:"employee_id"`
	Reason     string `json:"reason"`
}

type RowErrorBody struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ApprovalQueueResponse struct {
	Level1 []EmployeeResponse `json:"level1"`
	Level2 []EmployeeResponse `json:"level2"`
	Level3 []EmployeeResponse `json:"level3"`
	Level4 []EmployeeResponse `json:"level4"`
	Level5 []EmployeeResponse `json:"level5"`
}

type EligibilityResponse struct {
	Eligible      bool   `json:"eligible"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
	LevelStatus   string `json:"level_status,omitempty"`
	BlockingLevel int    `json:"blocking_level,omitempty"`
}

type BranchResponse struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

// Mappers

func employeeResponse(e domain.Employee) EmployeeResponse {
	out := EmployeeResponse{
		ID:             e.ID,
		EmployeeID:     e.EmployeeID,
		FirstName:      e.FirstName,
		LastName:       e.LastName,
		FullName:       e.FullName(),
		Email:          e.Email,
		JobTitle:       e.JobTitle,
		Role:           string(e.Role),
		Active:         e.Active,
		BranchID:       e.BranchID,
		Bonus2024:      e.Bonus2024,
		Bonus2025:      e.Bonus2025,
		SupervisorID:   e.SupervisorID,
		SupervisorName: e.SupervisorName,
		Approvers:      make([]ApproverLinkResponse, domain.NumLevels),
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	for i := 0; i < domain.NumLevels; i++ {
		out.Approvers[i] = ApproverLinkResponse{ID: e.Approvers[i].ID, Name: e.Approvers[i].Name}
	}
	if e.Status != nil {
		st := ApprovalStatusResponse{
			EnteredBy: e.Status.EnteredBy,
			EnteredAt: e.Status.EnteredAt,
			Levels:    make([]LevelDecisionResponse, domain.NumLevels),
		}
		for i, lv := range e.Status.Levels {
			st.Levels[i] = LevelDecisionResponse{
				Status:     string(lv.Status),
				ApprovedBy: lv.ApprovedBy,
				ApprovedAt: lv.ApprovedAt,
				Comments:   lv.Comments,
			}
		}
		out.ApprovalStatus = &st
	}
	return out
}

func mapEmployees(items []domain.Employee) []EmployeeResponse {
	res := make([]EmployeeResponse, 0, len(items))
	for _, e := range items {
		res = append(res, employeeResponse(e))
	}
	return res
}

func syncErrorsResponse(errs []engine.SyncError) []SyncErrorResponse {
	res := make([]SyncErrorResponse, 0, len(errs))
	for _, se := range errs {
		res = append(res, SyncErrorResponse(se))
	}
	return res
}

func syncResultResponse(r engine.SyncResult) SyncResultResponse {
	return SyncResultResponse{
		Checked: r.Checked,
		Updated: r.Updated,
		Errors:  syncErrorsResponse(r.Errors),
	}
}

func importResultResponse(r engine.ImportResult) ImportResultResponse {
	out := ImportResultResponse{Created: r.Created, SyncErrors: syncErrorsResponse(r.SyncErrors)}
	for _, s := range r.Skipped {
		out.Skipped = append(out.Skipped, SkippedRowBody(s))
	}
	for _, iv := range r.Invalid {
		out.Invalid = append(out.Invalid, RowErrorBody(iv))
	}
	return out
}

func queueResponse(q engine.ApprovalQueue) ApprovalQueueResponse {
	return ApprovalQueueResponse{
		Level1: mapEmployees(q.Levels[0]),
		Level2: mapEmployees(q.Levels[1]),
		Level3: mapEmployees(q.Levels[2]),
		Level4: mapEmployees(q.Levels[3]),
		Level5: mapEmployees(q.Levels[4]),
	}
}

func eligibilityResponse(el engine.Eligibility) EligibilityResponse {
	return EligibilityResponse{
		Eligible:      el.Eligible,
		Reason:        el.Reason,
		Message:       el.Message,
		LevelStatus:   string(el.LevelStatus),
		BlockingLevel: el.BlockingLevel,
	}
}

func branchResponse(b domain.Branch) BranchResponse {
	return BranchResponse(b)
}

func mapBranches(items []domain.Branch) []BranchResponse {
	res := make([]BranchResponse, 0, len(items))
	for _, b := range items {
		res = append(res, branchResponse(b))
	}
	return res
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse(e))
	}
	return res
}

func importRowInput(r ImportRowRequest) engine.EmployeeInput {
	in := engine.EmployeeInput{
		EmployeeID: r.EmployeeID,
		FirstName:  r.FirstName,
		LastName:   deref(r.LastName),
		Email:      deref(r.Email),
		JobTitle:   deref(r.JobTitle),
		Role:       deref(r.Role),
		BranchID:   deref(r.BranchID),
		Password:   deref(r.Password),
		Bonus2024:  r.Bonus2024,
		Bonus2025:  r.Bonus2025,
	}
	in.SupervisorName = deref(r.SupervisorName)
	in.ApproverNames = [domain.NumLevels]string{
		deref(r.Reporting1st), deref(r.Reporting2nd), deref(r.Reporting3rd), deref(r.Reporting4th), deref(r.Reporting5th),
	}
	return in
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
