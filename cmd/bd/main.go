package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bonusdesk/internal/app"
	"bonusdesk/internal/config"
	"bonusdesk/internal/db"
	"bonusdesk/internal/domain"
	"bonusdesk/internal/engine"
	"bonusdesk/internal/migrate"
	"bonusdesk/internal/repo"
	"bonusdesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bd",
	Short: "Bonusdesk CLI",
	Long: `Bonusdesk manages the yearly bonus cycle for an employee directory.
- Workspace: your .bonusdesk directory with the database; config lives in bonusdesk.yml.
- Employees: imported in bulk with raw supervisor and approver names; a sync
  pass resolves those names against the directory.
- Bonus entry: the supervisor of record enters the amount, which opens a
  five-level approval chain.
- Approvals: each level is pending, approved, rejected, or not_required;
  levels resolve strictly in order and decisions are final for their level.
- Event log: diary of changes, view with 'bd log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BONUSDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(employeeCmd())
	rootCmd.AddCommand(bonusCmd())
	rootCmd.AddCommand(approvalCmd())
	rootCmd.AddCommand(branchCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default bonusdesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var adminEmail, adminPassword string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed an admin account and a small demo directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				admin, err := app.EnsureAdmin(ctx, e, adminEmail, adminPassword)
				if err != nil {
					return err
				}
				if err := app.SeedDemo(ctx, e, admin.ID); err != nil {
					return err
				}
				fmt.Printf("admin: %s (%s)\n", admin.Email, admin.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&adminEmail, "admin-email", "admin@example.com", "admin account email")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "admin account password (required on first seed)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Auth.JWTSecret,
				TokenTTLHours:          cfg.Auth.TokenTTLHours,
				AllowLegacyActorHeader: cfg.Auth.AllowActorHeader,
			}
			if s := os.Getenv("BONUSDESK_JWT_SECRET"); s != "" {
				authCfg.JWTSecret = s
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("jwt secret not configured; set auth.jwt_secret or BONUSDESK_JWT_SECRET")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Bonusdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var actorID, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an account (dev helper)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			authCfg := server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret, TokenTTLHours: cfg.Auth.TokenTTLHours}
			if s := os.Getenv("BONUSDESK_JWT_SECRET"); s != "" {
				authCfg.JWTSecret = s
			}
			token, err := server.IssueToken(authCfg, actorID, domain.Role(role), time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "account id")
	cmd.Flags().StringVar(&role, "role", "employee", "role claim")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func employeeCmd() *cobra.Command {
	emp := &cobra.Command{
		Use:   "employee",
		Short: "Manage the employee directory",
	}
	emp.AddCommand(employeeListCmd())
	emp.AddCommand(employeeGetCmd())
	emp.AddCommand(employeeImportCmd())
	emp.AddCommand(employeeSyncCmd())
	emp.AddCommand(employeeResetSyncCmd())
	return emp
}

func employeeListCmd() *cobra.Command {
	var branchID, role string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f := repo.EmployeeFilters{BranchID: branchID, Role: role}
				if activeOnly {
					active := true
					f.Active = &active
				}
				items, err := e.ListEmployees(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Active", "Supervisor", "Bonus 2025", "Chain"})
				for _, emp := range items {
					sup := ""
					if emp.SupervisorName != nil {
						sup = *emp.SupervisorName
					}
					bonus := ""
					if emp.Bonus2025 != nil {
						bonus = fmt.Sprintf("%.2f", *emp.Bonus2025)
					}
					tw.AppendRow(table.Row{emp.EmployeeID, emp.FullName(), emp.Role, emp.Active, sup, bonus, chainSummary(emp)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&branchID, "branch", "", "branch id filter")
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active employees")
	return cmd
}

func employeeGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <employee-id>",
		Short: "Show one employee by personnel number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				emp, err := e.Repo.GetByEmployeeID(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	return cmd
}

func employeeImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import employees from a JSON file",
		Long:  "Reads a JSON array of employee rows, inserts the valid ones in a single batch and reports skipped duplicates and invalid rows. A full approver sync runs afterwards.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var rows []engine.EmployeeInput
			if err := json.Unmarshal(data, &rows); err != nil {
				return fmt.Errorf("parse %s: %w", filePath, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.BulkImport(ctx, rows, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to JSON rows")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func employeeSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-approvers",
		Short: "Resolve supervisor and approver names against the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SyncApprovers(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printSyncResult(res)
			})
		},
	}
}

func employeeResetSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-and-sync",
		Short: "Clear all resolved approver links and re-run the sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ResetAndSyncApprovers(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printSyncResult(res)
			})
		},
	}
}

func bonusCmd() *cobra.Command {
	bonus := &cobra.Command{
		Use:   "bonus",
		Short: "Enter bonus amounts",
	}
	var amount float64
	enter := &cobra.Command{
		Use:   "enter <employee-row-id>",
		Short: "Enter a bonus and start the approval chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("amount") {
				return fmt.Errorf("--amount required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				emp, err := e.EnterBonus(ctx, args[0], amount, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	enter.Flags().Float64Var(&amount, "amount", 0, "bonus amount")
	bonus.AddCommand(enter)
	return bonus
}

func approvalCmd() *cobra.Command {
	appr := &cobra.Command{
		Use:   "approval",
		Short: "Work the approval queue",
	}
	appr.AddCommand(approvalQueueCmd())
	appr.AddCommand(approvalProcessCmd())
	return appr
}

func approvalQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Employees the actor approves for, bucketed by level",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.MyApprovals(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(q)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Level", "Employee", "Bonus 2025", "Status"})
				for i, bucket := range q.Levels {
					for _, emp := range bucket {
						bonus := ""
						if emp.Bonus2025 != nil {
							bonus = fmt.Sprintf("%.2f", *emp.Bonus2025)
						}
						status := ""
						if emp.Status != nil {
							status = string(emp.Status.Level(i + 1).Status)
						}
						tw.AppendRow(table.Row{i + 1, emp.FullName(), bonus, status})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func approvalProcessCmd() *cobra.Command {
	var level int
	var action, comments string
	cmd := &cobra.Command{
		Use:   "process <employee-row-id>",
		Short: "Approve or reject one level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				emp, err := e.ProcessApproval(ctx, args[0], level, domain.Action(action), comments, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	cmd.Flags().IntVar(&level, "level", 0, "approval level (1-5)")
	cmd.Flags().StringVar(&action, "action", "", "approve or reject")
	cmd.Flags().StringVar(&comments, "comments", "", "decision comments")
	_ = cmd.MarkFlagRequired("level")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func branchCmd() *cobra.Command {
	br := &cobra.Command{
		Use:   "branch",
		Short: "Manage branches",
	}
	br.AddCommand(branchListCmd())
	br.AddCommand(branchCreateCmd())
	return br
}

func branchListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListBranches(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Code", "Name", "Location"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.ID, b.Code, b.Name, b.Location})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func branchCreateCmd() *cobra.Command {
	var code, name, location string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.CreateBranch(ctx, code, name, location, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "branch code")
	cmd.Flags().StringVar(&name, "name", "", "branch name")
	cmd.Flags().StringVar(&location, "location", "", "location")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSyncResult(res engine.SyncResult) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	fmt.Printf("checked %d, updated %d, unresolved %d\n", res.Checked, res.Updated, len(res.Errors))
	if len(res.Errors) == 0 {
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Employee", "Level", "Name", "Reason"})
	for _, se := range res.Errors {
		tw.AppendRow(table.Row{se.EmployeeID, se.Level, se.ApproverName, se.Reason})
	}
	tw.Render()
	return nil
}

func chainSummary(e domain.Employee) string {
	if e.Status == nil {
		return ""
	}
	parts := make([]string, 0, domain.NumLevels)
	for i, lv := range e.Status.Levels {
		switch lv.Status {
		case domain.StatusApproved:
			parts = append(parts, fmt.Sprintf("%d+", i+1))
		case domain.StatusRejected:
			parts = append(parts, fmt.Sprintf("%d-", i+1))
		case domain.StatusPending:
			parts = append(parts, fmt.Sprintf("%d?", i+1))
		}
	}
	return strings.Join(parts, " ")
}
