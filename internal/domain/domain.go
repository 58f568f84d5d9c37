package domain

// NumLevels is the number of sequential approval gates in a bonus cycle.
// Level 1 is decided first, level NumLevels last.
const NumLevels = 5

type Role string

const (
	RoleEmployee Role = "employee"
	RoleApprover Role = "approver"
	RoleHR       Role = "hr"
	RoleAdmin    Role = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleEmployee, RoleApprover, RoleHR, RoleAdmin:
		return true
	}
	return false
}

type LevelStatus string

const (
	StatusPending     LevelStatus = "pending"
	StatusApproved    LevelStatus = "approved"
	StatusRejected    LevelStatus = "rejected"
	StatusNotRequired LevelStatus = "not_required"
)

// Terminal reports whether the status cannot change again within the cycle.
func (s LevelStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusNotRequired
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func ValidAction(a Action) bool {
	return a == ActionApprove || a == ActionReject
}

// ApproverLink pairs the canonical approver identity with the raw text the
// reference arrived as. The name is kept even when resolution fails so a
// later sync pass can retry it.
type ApproverLink struct {
	ID   *string `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}

// LevelDecision is one level's slot in the approval chain.
type LevelDecision struct {
	Status     LevelStatus `json:"status" enum:"pending,approved,rejected,not_required"`
	ApprovedBy *string     `json:"approved_by,omitempty"`
	ApprovedAt *string     `json:"approved_at,omitempty" format:"date-time"`
	Comments   string      `json:"comments,omitempty"`
}

// ApprovalStatus is the per-cycle approval document. Levels[0] holds level 1.
// It exists only once a supervisor has entered a bonus.
type ApprovalStatus struct {
	EnteredBy string                   `json:"entered_by"`
	EnteredAt string                   `json:"entered_at" format:"date-time"`
	Levels    [NumLevels]LevelDecision `json:"levels"`
}

// Level returns the decision slot for a 1-based level.
func (a *ApprovalStatus) Level(n int) *LevelDecision {
	return &a.Levels[n-1]
}

type Employee struct {
	ID             string                  `json:"id"`
	EmployeeID     string                  `json:"employee_id"`
	FirstName      string                  `json:"first_name"`
	LastName       string                  `json:"last_name,omitempty"`
	Email          string                  `json:"email,omitempty"`
	JobTitle       string                  `json:"job_title,omitempty"`
	Role           Role                    `json:"role" enum:"employee,approver,hr,admin"`
	Active         bool                    `json:"active"`
	BranchID       *string                 `json:"branch_id,omitempty"`
	Bonus2024      *float64                `json:"bonus_2024,omitempty"`
	Bonus2025      *float64                `json:"bonus_2025,omitempty"`
	SupervisorID   *string                 `json:"supervisor_id,omitempty"`
	SupervisorName *string                 `json:"supervisor_name,omitempty"`
	Approvers      [NumLevels]ApproverLink `json:"approvers"`
	Status         *ApprovalStatus         `json:"approval_status,omitempty"`
	PasswordHash   string                  `json:"-"`
	CreatedAt      string                  `json:"created_at" format:"date-time"`
	UpdatedAt      string                  `json:"updated_at" format:"date-time"`
}

// FullName is the "First Last" display form used in listings.
func (e *Employee) FullName() string {
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// Approver returns the link slot for a 1-based level.
func (e *Employee) Approver(level int) *ApproverLink {
	return &e.Approvers[level-1]
}

// HasApprover reports whether a resolved approver is assigned at level.
func (e *Employee) HasApprover(level int) bool {
	link := e.Approvers[level-1]
	return link.ID != nil && *link.ID != ""
}

type Branch struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
