package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bonusdesk/internal/domain"
	"bonusdesk/internal/engine"
	"bonusdesk/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_authorized"`
	Message string         `json:"message" example:"actor is not the level 2 approver"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"level\":2}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Bonusdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Bonusdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerEmployees(group, cfg.Engine)
	registerApprovals(group, cfg.Engine)
	registerBranches(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var re *engine.RuleError
	if errors.As(err, &re) {
		var details map[string]any
		if re.Level > 0 {
			details = map[string]any{"level": re.Level}
		}
		switch re.Code {
		case engine.CodeValidation, engine.CodeBonusNotEntered:
			return newAPIError(http.StatusBadRequest, re.Code, re.Message, details)
		case engine.CodeNotAuthorized:
			return newAPIError(http.StatusForbidden, re.Code, re.Message, details)
		case engine.CodeNotFound:
			return newAPIError(http.StatusNotFound, re.Code, re.Message, details)
		case engine.CodeAlreadyProcessed, engine.CodePreviousLevelPending:
			return newAPIError(http.StatusConflict, re.Code, re.Message, details)
		}
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):     true,
		path.Join(basePath, "auth/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Bonusdesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if input.Body.Email == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email and password are required", nil)
		}
		emp, err := e.Authenticate(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := IssueToken(auth, emp.ID, emp.Role, e.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, Employee: employeeResponse(emp)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current account",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		emp, err := e.GetEmployee(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})
}

func registerEmployees(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-employees",
		Method:      http.MethodGet,
		Path:        "/employees",
		Summary:     "List employees",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Active   *bool  `query:"active"`
		BranchID string `query:"branch_id"`
		Role     string `query:"role"`
	}) (*struct {
		Body []EmployeeResponse `json:"body"`
	}, error) {
		if _, err := requireRole(ctx, domain.RoleHR, domain.RoleApprover); err != nil {
			return nil, err
		}
		items, err := e.ListEmployees(ctx, repo.EmployeeFilters{
			Active:   input.Active,
			BranchID: input.BranchID,
			Role:     input.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EmployeeResponse `json:"body"`
		}{Body: mapEmployees(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-employee",
		Method:        http.MethodPost,
		Path:          "/employees",
		Summary:       "Create employee",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateEmployeeRequest `json:"body"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleHR)
		if err != nil {
			return nil, err
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		in := engine.EmployeeInput{
			EmployeeID:     input.Body.EmployeeID,
			FirstName:      input.Body.FirstName,
			LastName:       deref(input.Body.LastName),
			Email:          deref(input.Body.Email),
			JobTitle:       deref(input.Body.JobTitle),
			Role:           deref(input.Body.Role),
			BranchID:       deref(input.Body.BranchID),
			Password:       deref(input.Body.Password),
			Bonus2024:      input.Body.Bonus2024,
			SupervisorName: deref(input.Body.SupervisorName),
		}
		for i, name := range input.Body.ApproverNames {
			if i >= domain.NumLevels {
				break
			}
			in.ApproverNames[i] = deref(name)
		}
		emp, cerr := e.CreateEmployee(ctx, in, p.ActorID)
		if cerr != nil {
			return nil, handleError(cerr)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-employee",
		Method:      http.MethodGet,
		Path:        "/employees/{id}",
		Summary:     "Get employee",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		emp, err := e.GetEmployee(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-employee",
		Method:      http.MethodPut,
		Path:        "/employees/{id}",
		Summary:     "Update employee",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpdateEmployeeRequest `json:"body"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleHR)
		if err != nil {
			return nil, err
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		upd := engine.EmployeeUpdate{
			FirstName:      input.Body.FirstName,
			LastName:       input.Body.LastName,
			Email:          input.Body.Email,
			JobTitle:       input.Body.JobTitle,
			Role:           input.Body.Role,
			BranchID:       input.Body.BranchID,
			Password:       input.Body.Password,
			Bonus2024:      input.Body.Bonus2024,
			SupervisorName: input.Body.SupervisorName,
		}
		for i, name := range input.Body.ApproverNames {
			if i >= domain.NumLevels {
				break
			}
			upd.ApproverNames[i] = name
		}
		emp, uerr := e.UpdateEmployee(ctx, input.ID, upd, p.ActorID)
		if uerr != nil {
			return nil, handleError(uerr)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-employee",
		Method:      http.MethodDelete,
		Path:        "/employees/{id}",
		Summary:     "Delete employee",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, err := requireRole(ctx, domain.RoleAdmin)
		if err != nil {
			return nil, err
		}
		if derr := e.DeleteEmployee(ctx, input.ID, p.ActorID); derr != nil {
			return nil, handleError(derr)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-employee-status",
		Method:      http.MethodPatch,
		Path:        "/employees/{id}/toggle-status",
		Summary:     "Toggle employee active flag",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleHR)
		if err != nil {
			return nil, err
		}
		emp, terr := e.ToggleActive(ctx, input.ID, p.ActorID)
		if terr != nil {
			return nil, handleError(terr)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "bulk-import-employees",
		Method:        http.MethodPost,
		Path:          "/employees/bulk",
		Summary:       "Bulk import employees",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusMultiStatus},
	}, func(ctx context.Context, input *struct {
		Body BulkImportRequest `json:"body"`
	}) (*struct {
		Status int
		Body   ImportResultResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleHR)
		if err != nil {
			return nil, err
		}
		rows := make([]engine.EmployeeInput, 0, len(input.Body.Rows))
		for _, r := range input.Body.Rows {
			rows = append(rows, importRowInput(r))
		}
		res, ierr := e.BulkImport(ctx, rows, p.ActorID)
		if ierr != nil {
			return nil, handleError(ierr)
		}
		status := http.StatusCreated
		if res.Partial() {
			status = http.StatusMultiStatus
		}
		return &struct {
			Status int
			Body   ImportResultResponse `json:"body"`
		}{Status: status, Body: importResultResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-approvers",
		Method:      http.MethodPost,
		Path:        "/employees/sync-approvers",
		Summary:     "Resolve approver names to directory identities",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SyncResultResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleAdmin)
		if err != nil {
			return nil, err
		}
		res, serr := e.SyncApprovers(ctx, p.ActorID)
		if serr != nil {
			return nil, handleError(serr)
		}
		return &struct {
			Body SyncResultResponse `json:"body"`
		}{Body: syncResultResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-and-sync-approvers",
		Method:      http.MethodPost,
		Path:        "/employees/approvals/reset-and-sync",
		Summary:     "Clear resolved approver links and re-run sync",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SyncResultResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleAdmin)
		if err != nil {
			return nil, err
		}
		res, serr := e.ResetAndSyncApprovers(ctx, p.ActorID)
		if serr != nil {
			return nil, handleError(serr)
		}
		return &struct {
			Body SyncResultResponse `json:"body"`
		}{Body: syncResultResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-team",
		Method:      http.MethodGet,
		Path:        "/employees/supervisor/my-team",
		Summary:     "Active employees supervised by the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []EmployeeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.MyTeam(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EmployeeResponse `json:"body"`
		}{Body: mapEmployees(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "enter-bonus",
		Method:      http.MethodPut,
		Path:        "/employees/{id}/bonus",
		Summary:     "Enter a bonus and start the approval chain",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body EnterBonusRequest `json:"body"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Amount == nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "amount is required", nil)
		}
		emp, err := e.EnterBonus(ctx, input.ID, *input.Body.Amount, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "employee-eligibility",
		Method:      http.MethodGet,
		Path:        "/employees/{id}/eligibility",
		Summary:     "Check whether the caller could act at a level",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Level int    `query:"level" minimum:"1" maximum:"5"`
		Actor string `query:"actor" doc:"Check on behalf of another account (hr/admin only)"`
	}) (*struct {
		Body EligibilityResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Actor != "" && input.Actor != actorID {
			if _, err := requireRole(ctx, domain.RoleHR); err != nil {
				return nil, err
			}
			actorID = input.Actor
		}
		emp, err := e.GetEmployee(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		el := e.CheckEligibility(&emp, input.Level, actorID)
		return &struct {
			Body EligibilityResponse `json:"body"`
		}{Body: eligibilityResponse(el)}, nil
	})
}

func registerApprovals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "my-approvals",
		Method:      http.MethodGet,
		Path:        "/employees/approvals/my-approvals",
		Summary:     "Employees the caller approves for, bucketed by level",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ApprovalQueueResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleApprover, domain.RoleHR)
		if err != nil {
			return nil, err
		}
		q, qerr := e.MyApprovals(ctx, p.ActorID)
		if qerr != nil {
			return nil, handleError(qerr)
		}
		return &struct {
			Body ApprovalQueueResponse `json:"body"`
		}{Body: queueResponse(q)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-bonus-approvals",
		Method:      http.MethodGet,
		Path:        "/employees/approvals/my-bonus-approvals",
		Summary:     "Employees whose next actionable level belongs to the caller",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []EmployeeResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleApprover, domain.RoleHR)
		if err != nil {
			return nil, err
		}
		items, lerr := e.MyBonusApprovals(ctx, p.ActorID)
		if lerr != nil {
			return nil, handleError(lerr)
		}
		return &struct {
			Body []EmployeeResponse `json:"body"`
		}{Body: mapEmployees(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "process-approval",
		Method:      http.MethodPost,
		Path:        "/employees/approvals/{id}",
		Summary:     "Approve or reject one level of an employee's bonus",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body ProcessApprovalRequest `json:"body"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleApprover, domain.RoleHR)
		if err != nil {
			return nil, err
		}
		emp, perr := e.ProcessApproval(ctx, input.ID, input.Body.Level, domain.Action(input.Body.Action), input.Body.Comments, p.ActorID)
		if perr != nil {
			return nil, handleError(perr)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})
}

func registerBranches(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-branches",
		Method:      http.MethodGet,
		Path:        "/branches",
		Summary:     "List branches",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []BranchResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListBranches(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []BranchResponse `json:"body"`
		}{Body: mapBranches(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-branch",
		Method:        http.MethodPost,
		Path:          "/branches",
		Summary:       "Create branch",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateBranchRequest `json:"body"`
	}) (*struct {
		Body BranchResponse `json:"body"`
	}, error) {
		p, err := requireRole(ctx, domain.RoleHR)
		if err != nil {
			return nil, err
		}
		b, berr := e.CreateBranch(ctx, input.Body.Code, input.Body.Name, deref(input.Body.Location), p.ActorID)
		if berr != nil {
			return nil, handleError(berr)
		}
		return &struct {
			Body BranchResponse `json:"body"`
		}{Body: branchResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-branch",
		Method:      http.MethodGet,
		Path:        "/branches/{id}",
		Summary:     "Get branch",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body BranchResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		b, err := e.GetBranch(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BranchResponse `json:"body"`
		}{Body: branchResponse(b)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit event tail",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"100"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
			return nil, err
		}
		items, err := e.LatestEvents(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
