package engine

import (
	"context"
	"fmt"
	"time"

	"bonusdesk/internal/domain"
	"bonusdesk/internal/events"
	"bonusdesk/internal/repo"
)

// SyncError reports one raw reference that could not be resolved. These
// are data in the sync report, not failures: the run continues and the raw
// name stays on the row for the next pass.
type SyncError struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Level        string `json:"level"`
	ApproverName string `json:"approver_name"`
	Reason       string `json:"reason"`
}

// SyncResult summarizes one reconciliation run.
type SyncResult struct {
	Checked int         `json:"checked"`
	Updated int         `json:"updated"`
	Errors  []SyncError `json:"errors,omitempty"`
}

const reasonNotFound = "person not found in directory"

// "-" is what placeholder-filled spreadsheets put in approver cells.
func emptyRef(name *string) bool {
	return name == nil || *name == "" || *name == "-"
}

// SyncApprovers resolves every unlinked supervisor and level approver name
// across the directory. The lookup index is built once, updates are staged
// in memory and written in a single transaction. Already-linked references
// are left untouched. Concurrent runs are serialized.
func (e Engine) SyncApprovers(ctx context.Context, actorID string) (SyncResult, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.syncApprovers(ctx, actorID)
}

// ResetAndSyncApprovers clears every resolved link, keeping the raw names,
// then runs a full sync. Used to repair links after directory changes.
func (e Engine) ResetAndSyncApprovers(ctx context.Context, actorID string) (SyncResult, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SyncResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.ClearApproverLinks(ctx, tx, now); err != nil {
		return SyncResult{}, fmt.Errorf("clear approver links: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeApproversReset, "directory", "", actorID, nil); err != nil {
		return SyncResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SyncResult{}, err
	}
	return e.syncApprovers(ctx, actorID)
}

func (e Engine) syncApprovers(ctx context.Context, actorID string) (SyncResult, error) {
	employees, err := e.Repo.ListEmployees(ctx, repo.EmployeeFilters{})
	if err != nil {
		return SyncResult{}, err
	}
	idx := NewDirectoryIndex(employees)
	now := e.now().UTC().Format(time.RFC3339)

	var res SyncResult
	var updates []repo.ApproverLinkUpdate
	for i := range employees {
		emp := &employees[i]
		res.Checked++
		u := repo.ApproverLinkUpdate{
			EmployeeRowID: emp.ID,
			SupervisorID:  emp.SupervisorID,
			UpdatedAt:     now,
		}
		for l := 0; l < domain.NumLevels; l++ {
			u.LevelIDs[l] = emp.Approvers[l].ID
		}
		changed := false

		if emp.SupervisorID == nil && !emptyRef(emp.SupervisorName) {
			if match := idx.Resolve(*emp.SupervisorName); match != nil {
				id := match.ID
				u.SupervisorID = &id
				changed = true
			} else {
				res.Errors = append(res.Errors, SyncError{
					EmployeeID:   emp.EmployeeID,
					EmployeeName: emp.FullName(),
					Level:        "supervisor",
					ApproverName: *emp.SupervisorName,
					Reason:       reasonNotFound,
				})
			}
		}
		for l := 0; l < domain.NumLevels; l++ {
			link := emp.Approvers[l]
			if link.ID != nil || emptyRef(link.Name) {
				continue
			}
			if match := idx.Resolve(*link.Name); match != nil {
				id := match.ID
				u.LevelIDs[l] = &id
				changed = true
			} else {
				res.Errors = append(res.Errors, SyncError{
					EmployeeID:   emp.EmployeeID,
					EmployeeName: emp.FullName(),
					Level:        fmt.Sprintf("level%d", l+1),
					ApproverName: *link.Name,
					Reason:       reasonNotFound,
				})
			}
		}
		if changed {
			updates = append(updates, u)
		}
	}

	if len(updates) == 0 && len(res.Errors) == 0 {
		return res, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	if err := e.Repo.ApplyApproverLinks(ctx, tx, updates); err != nil {
		return res, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeApproversSynced, "directory", "", actorID, events.EventPayload{
		"checked":    res.Checked,
		"updated":    len(updates),
		"unresolved": len(res.Errors),
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	res.Updated = len(updates)
	return res, nil
}
