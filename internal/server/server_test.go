package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"bonusdesk/internal/config"
	"bonusdesk/internal/db"
	"bonusdesk/internal/domain"
	"bonusdesk/internal/engine"
	"bonusdesk/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	Auth   AuthConfig
	client *http.Client
	close  func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	auth := AuthConfig{JWTSecret: "test-secret", TokenTTLHours: 1}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		Auth:   auth,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func (s *testServer) token(t *testing.T, emp domain.Employee) string {
	t.Helper()
	token, err := IssueToken(s.Auth, emp.ID, emp.Role, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

type errEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeErr(t *testing.T, data []byte) errEnvelope {
	t.Helper()
	var env errEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope %s: %v", data, err)
	}
	return env
}

// seedChain creates a linked supervisor, level 2 approver, and employee.
func seedChain(t *testing.T, ts *testServer) (sup, l2, emp domain.Employee) {
	t.Helper()
	ctx := context.Background()
	var err error
	sup, err = ts.Engine.CreateEmployee(ctx, engine.EmployeeInput{
		EmployeeID: "E100", FirstName: "Alice", LastName: "Boss",
		Email: "alice@example.com", Password: "s3cret", Role: string(domain.RoleApprover),
	}, "seed")
	if err != nil {
		t.Fatal(err)
	}
	l2, err = ts.Engine.CreateEmployee(ctx, engine.EmployeeInput{
		EmployeeID: "E101", FirstName: "Bob", LastName: "Chief",
		Email: "bob@example.com", Password: "s3cret", Role: string(domain.RoleApprover),
	}, "seed")
	if err != nil {
		t.Fatal(err)
	}
	emp, err = ts.Engine.CreateEmployee(ctx, engine.EmployeeInput{
		EmployeeID: "E102", FirstName: "Carol", LastName: "Dale",
		Email: "carol@example.com", Password: "s3cret",
		SupervisorName: "Boss, Alice",
		ApproverNames:  [domain.NumLevels]string{"Alice Boss", "Chief, Bob"},
	}, "seed")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ts.Engine.SyncApprovers(ctx, "seed"); err != nil {
		t.Fatal(err)
	}
	return sup, l2, emp
}

func TestHealthIsOpen(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	resp, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/employees", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, data)
	}
	if env := decodeErr(t, data); env.Error.Code != "unauthorized" {
		t.Fatalf("code = %s", env.Error.Code)
	}

	// the legacy actor header is off by default
	resp, _ = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/employees", nil, map[string]string{"X-Actor-Id": "someone"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("legacy header status = %d", resp.StatusCode)
	}
}

func TestLoginIssuesWorkingToken(t *testing.T) {
	ts := newTestServer(t)
	sup, _, _ := seedChain(t, ts)

	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/auth/login", map[string]string{
		"email": "alice@example.com", "password": "s3cret",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", resp.StatusCode, data)
	}
	var login LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Token == "" || login.Employee.ID != sup.ID {
		t.Fatalf("login = %+v", login)
	}

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/me", nil, bearer(login.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, body = %s", resp.StatusCode, data)
	}

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/auth/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("bad login status = %d, body = %s", resp.StatusCode, data)
	}
}

func TestRoleEnforcement(t *testing.T) {
	ts := newTestServer(t)
	_, _, emp := seedChain(t, ts)

	resp, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/employees", nil, bearer(ts.token(t, emp)))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, data)
	}
	if env := decodeErr(t, data); env.Error.Code != "forbidden" {
		t.Fatalf("code = %s", env.Error.Code)
	}
}

func TestBonusAndApprovalFlow(t *testing.T) {
	ts := newTestServer(t)
	sup, l2, emp := seedChain(t, ts)
	supToken := ts.token(t, sup)
	l2Token := ts.token(t, l2)

	// only the supervisor of record may enter the bonus
	resp, data := doJSON(t, ts.client, http.MethodPut, ts.URL+"/v0/employees/"+emp.ID+"/bonus",
		map[string]any{"amount": 1200.0}, bearer(l2Token))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-supervisor status = %d, body = %s", resp.StatusCode, data)
	}
	if env := decodeErr(t, data); env.Error.Code != "not_authorized" {
		t.Fatalf("code = %s", env.Error.Code)
	}

	resp, data = doJSON(t, ts.client, http.MethodPut, ts.URL+"/v0/employees/"+emp.ID+"/bonus",
		map[string]any{"amount": 1200.0}, bearer(supToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("enter bonus status = %d, body = %s", resp.StatusCode, data)
	}
	var entered EmployeeResponse
	if err := json.Unmarshal(data, &entered); err != nil {
		t.Fatal(err)
	}
	if entered.ApprovalStatus == nil || entered.ApprovalStatus.Levels[0].Status != "pending" {
		t.Fatalf("approval status = %+v", entered.ApprovalStatus)
	}

	// level 2 before level 1 conflicts
	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/employees/approvals/"+emp.ID,
		map[string]any{"level": 2, "action": "approve"}, bearer(l2Token))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("out of order status = %d, body = %s", resp.StatusCode, data)
	}
	env := decodeErr(t, data)
	if env.Error.Code != "previous_level_pending" {
		t.Fatalf("code = %s", env.Error.Code)
	}
	if lvl, ok := env.Error.Details["level"].(float64); !ok || lvl != 1 {
		t.Fatalf("details = %+v", env.Error.Details)
	}

	// eligibility mirrors the refusal
	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/employees/"+emp.ID+"/eligibility?level=2", nil, bearer(l2Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("eligibility status = %d, body = %s", resp.StatusCode, data)
	}
	var el EligibilityResponse
	if err := json.Unmarshal(data, &el); err != nil {
		t.Fatal(err)
	}
	if el.Eligible || el.Reason != "previous_level_pending" || el.BlockingLevel != 1 {
		t.Fatalf("eligibility = %+v", el)
	}

	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/employees/approvals/"+emp.ID,
		map[string]any{"level": 1, "action": "approve", "comments": "ok"}, bearer(supToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve level 1 status = %d, body = %s", resp.StatusCode, data)
	}
	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/employees/approvals/"+emp.ID,
		map[string]any{"level": 2, "action": "approve"}, bearer(l2Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve level 2 status = %d, body = %s", resp.StatusCode, data)
	}
	var done EmployeeResponse
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatal(err)
	}
	if done.ApprovalStatus.Levels[1].Status != "approved" {
		t.Fatalf("level 2 = %s", done.ApprovalStatus.Levels[1].Status)
	}

	// deciding the same level twice conflicts
	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/employees/approvals/"+emp.ID,
		map[string]any{"level": 1, "action": "approve"}, bearer(supToken))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("re-decide status = %d, body = %s", resp.StatusCode, data)
	}
	if env := decodeErr(t, data); env.Error.Code != "already_processed" {
		t.Fatalf("code = %s", env.Error.Code)
	}
}

func TestBulkImportPartialIsMultiStatus(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	hr, err := ts.Engine.CreateEmployee(ctx, engine.EmployeeInput{
		EmployeeID: "E900", FirstName: "Ana", LastName: "Cruz", Role: string(domain.RoleHR),
	}, "seed")
	if err != nil {
		t.Fatal(err)
	}
	hrToken := ts.token(t, hr)

	body := map[string]any{"rows": []map[string]any{
		{"employee_id": "E101", "first_name": "Bob", "last_name": "Chief"},
		{"employee_id": "E900", "first_name": "Ana", "last_name": "Cruz"},
	}}
	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/employees/bulk", body, bearer(hrToken))
	if resp.StatusCode != http.StatusMultiStatus {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, data)
	}
	var res ImportResultResponse
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Created != 1 || len(res.Skipped) != 1 {
		t.Fatalf("result = %+v", res)
	}

	// a clean import is a plain 201
	body = map[string]any{"rows": []map[string]any{
		{"employee_id": "E102", "first_name": "Carol", "last_name": "Dale"},
	}}
	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/employees/bulk", body, bearer(hrToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("clean import status = %d, body = %s", resp.StatusCode, data)
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	ts := newTestServer(t)
	sup, _, _ := seedChain(t, ts)
	resp, data := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/employees/no-such-row", nil, bearer(ts.token(t, sup)))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, data)
	}
	if env := decodeErr(t, data); env.Error.Code != "not_found" {
		t.Fatalf("code = %s", env.Error.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	admin, err := ts.Engine.CreateEmployee(ctx, engine.EmployeeInput{
		EmployeeID: "E999", FirstName: "Root", LastName: "Admin", Role: string(domain.RoleAdmin),
	}, "seed")
	if err != nil {
		t.Fatal(err)
	}
	_, l2, _ := seedChain(t, ts)

	// sync is admin only
	resp, data := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/employees/sync-approvers", nil, bearer(ts.token(t, l2)))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("approver sync status = %d, body = %s", resp.StatusCode, data)
	}
	resp, data = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v0/employees/sync-approvers", nil, bearer(ts.token(t, admin)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin sync status = %d, body = %s", resp.StatusCode, data)
	}
	var sync SyncResultResponse
	if err := json.Unmarshal(data, &sync); err != nil {
		t.Fatal(err)
	}
	if sync.Checked == 0 {
		t.Fatalf("sync = %+v", sync)
	}

	resp, data = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v0/events?limit=5", nil, bearer(ts.token(t, admin)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events status = %d, body = %s", resp.StatusCode, data)
	}
	var events []EventResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Fatalf("expected audit events")
	}
}
