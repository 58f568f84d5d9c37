package bonusdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Bonusdesk HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ApproverLink is one slot in an employee's approval chain.
type ApproverLink struct {
	ID   *string `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}

// LevelDecision is the state of one approval level.
type LevelDecision struct {
	Status     string  `json:"status"`
	ApprovedBy *string `json:"approved_by,omitempty"`
	ApprovedAt *string `json:"approved_at,omitempty"`
	Comments   string  `json:"comments,omitempty"`
}

// ApprovalStatus is the per-employee approval chain document.
type ApprovalStatus struct {
	EnteredBy string          `json:"entered_by"`
	EnteredAt string          `json:"entered_at"`
	Levels    []LevelDecision `json:"levels"`
}

// Employee represents the API employee model.
type Employee struct {
	ID             string          `json:"id"`
	EmployeeID     string          `json:"employee_id"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name,omitempty"`
	FullName       string          `json:"full_name"`
	Email          string          `json:"email,omitempty"`
	Role           string          `json:"role"`
	Active         bool            `json:"active"`
	Bonus2024      *float64        `json:"bonus_2024,omitempty"`
	Bonus2025      *float64        `json:"bonus_2025,omitempty"`
	SupervisorID   *string         `json:"supervisor_id,omitempty"`
	SupervisorName *string         `json:"supervisor_name,omitempty"`
	Approvers      []ApproverLink  `json:"approvers"`
	ApprovalStatus *ApprovalStatus `json:"approval_status,omitempty"`
}

// SyncError is one unresolved reference from an approver sync.
type SyncError struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Level        string `json:"level"`
	ApproverName string `json:"approver_name"`
	Reason       string `json:"reason"`
}

// SyncResult summarizes an approver sync run.
type SyncResult struct {
	Checked int         `json:"checked"`
	Updated int         `json:"updated"`
	Errors  []SyncError `json:"errors,omitempty"`
}

// Eligibility answers whether the caller could act at a level.
type Eligibility struct {
	Eligible      bool   `json:"eligible"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
	LevelStatus   string `json:"level_status,omitempty"`
	BlockingLevel int    `json:"blocking_level,omitempty"`
}

// LoginResult carries the bearer token and account.
type LoginResult struct {
	Token    string   `json:"token"`
	Employee Employee `json:"employee"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var resp LoginResult
	err := c.do(ctx, http.MethodPost, "v0/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Employees lists the directory.
func (c *Client) Employees(ctx context.Context) ([]Employee, error) {
	var resp []Employee
	err := c.do(ctx, http.MethodGet, "v0/employees", nil, &resp)
	return resp, err
}

// Employee fetches one employee by row id.
func (c *Client) Employee(ctx context.Context, id string) (Employee, error) {
	var resp Employee
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/employees/%s", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// EnterBonus records a bonus amount and starts the approval chain.
func (c *Client) EnterBonus(ctx context.Context, employeeID string, amount float64) (Employee, error) {
	var resp Employee
	endpoint := fmt.Sprintf("v0/employees/%s/bonus", url.PathEscape(employeeID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"amount": amount}, &resp)
	return resp, err
}

// ProcessApproval approves or rejects one level.
func (c *Client) ProcessApproval(ctx context.Context, employeeID string, level int, action, comments string) (Employee, error) {
	var resp Employee
	endpoint := fmt.Sprintf("v0/employees/approvals/%s", url.PathEscape(employeeID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{
		"level":    level,
		"action":   action,
		"comments": comments,
	}, &resp)
	return resp, err
}

// Eligibility checks whether the caller could act at a level.
func (c *Client) Eligibility(ctx context.Context, employeeID string, level int) (Eligibility, error) {
	var resp Eligibility
	endpoint := fmt.Sprintf("v0/employees/%s/eligibility?level=%d", url.PathEscape(employeeID), level)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SyncApprovers resolves approver names against the directory.
func (c *Client) SyncApprovers(ctx context.Context) (SyncResult, error) {
	var resp SyncResult
	err := c.do(ctx, http.MethodPost, "v0/employees/sync-approvers", nil, &resp)
	return resp, err
}

// MyBonusApprovals lists employees whose next actionable level is the caller's.
func (c *Client) MyBonusApprovals(ctx context.Context) ([]Employee, error) {
	var resp []Employee
	err := c.do(ctx, http.MethodGet, "v0/employees/approvals/my-bonus-approvals", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
