package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bonusdesk/internal/domain"
	"bonusdesk/internal/engine"
	"bonusdesk/internal/repo"
)

// EnsureAdmin guarantees an admin account exists so a fresh workspace can
// log in. Returns the admin without touching it when one is already there.
func EnsureAdmin(ctx context.Context, e engine.Engine, email, password string) (domain.Employee, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.Employee{}, fmt.Errorf("admin email is required")
	}
	if existing, err := e.Repo.GetByEmail(ctx, email); err == nil {
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Employee{}, err
	}

	admins, err := e.Repo.ListEmployees(ctx, repo.EmployeeFilters{Role: string(domain.RoleAdmin)})
	if err != nil {
		return domain.Employee{}, err
	}
	if len(admins) > 0 {
		return admins[0], nil
	}

	if password == "" {
		return domain.Employee{}, fmt.Errorf("admin password is required for a fresh workspace")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Employee{}, fmt.Errorf("hash admin password: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	admin := domain.Employee{
		ID:           uuid.New().String(),
		EmployeeID:   "ADMIN",
		FirstName:    "System",
		LastName:     "Administrator",
		Email:        email,
		Role:         domain.RoleAdmin,
		Active:       true,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertEmployee(ctx, admin); err != nil {
		return domain.Employee{}, fmt.Errorf("insert admin: %w", err)
	}
	return admin, nil
}

// SeedDemo loads a small demo directory: two branches and a four-person
// chain (supervisor, two approvers, one employee), then links approvers.
// Idempotent: an already-seeded workspace is left alone.
func SeedDemo(ctx context.Context, e engine.Engine, actorID string) error {
	if _, err := e.Repo.GetByEmployeeID(ctx, "E1001"); err == nil {
		return nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	branches, err := e.Repo.ListBranches(ctx)
	if err != nil {
		return err
	}
	branchID := ""
	for _, b := range branches {
		if b.Code == "HQ" {
			branchID = b.ID
		}
	}
	if branchID == "" {
		b, err := e.CreateBranch(ctx, "HQ", "Headquarters", "Main Street 1", actorID)
		if err != nil {
			return err
		}
		branchID = b.ID
		if _, err := e.CreateBranch(ctx, "WEST", "West Branch", "", actorID); err != nil {
			return err
		}
	}

	rows := []engine.EmployeeInput{
		{EmployeeID: "E1001", FirstName: "Maria", LastName: "Santos", Email: "maria.santos@example.com", JobTitle: "Branch Manager", Role: string(domain.RoleApprover), BranchID: branchID},
		{EmployeeID: "E1002", FirstName: "Jose", LastName: "Reyes", Email: "jose.reyes@example.com", JobTitle: "Department Head", Role: string(domain.RoleApprover), BranchID: branchID},
		{EmployeeID: "E1003", FirstName: "Ana", LastName: "Cruz", Email: "ana.cruz@example.com", JobTitle: "HR Officer", Role: string(domain.RoleHR), BranchID: branchID},
		{
			EmployeeID: "E1004", FirstName: "Leo", LastName: "Garcia",
			Email: "leo.garcia@example.com", JobTitle: "Analyst",
			Role: string(domain.RoleEmployee), BranchID: branchID,
			SupervisorName: "Santos, Maria",
			ApproverNames:  [domain.NumLevels]string{"Santos, Maria", "Jose Reyes"},
		},
	}
	res, err := e.BulkImport(ctx, rows, actorID)
	if err != nil {
		return err
	}
	if len(res.Invalid) > 0 {
		return fmt.Errorf("demo seed rejected %d rows", len(res.Invalid))
	}
	return nil
}
