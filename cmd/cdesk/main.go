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

	"contractdesk/internal/app"
	"contractdesk/internal/config"
	"contractdesk/internal/db"
	"contractdesk/internal/domain"
	"contractdesk/internal/engine"
	"contractdesk/internal/engine/authz"
	"contractdesk/internal/notify"
	"contractdesk/internal/repo"
	"contractdesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cdesk",
	Short: "Contractdesk CLI",
	Long: `Contractdesk tracks contracts through delivery, warranty and settlement.
Core concepts:
- Workspace: your .contractdesk directory holding the database; contractdesk.yml next to it configures auth and push endpoints.
- Actors: owners issue contracts, executors deliver them, settlement leads route construction-investment contracts to settlement executors, admins can do everything.
- Contracts: maintenance, framework or construction-investment; each field is writable only by the roles responsible for it, everything else in a patch is silently dropped.
- Workflow state: derived from the filled fields (unfilled -> new -> in_delivery -> accepted -> payment_approved -> under_warranty -> settled); nothing stores it, later stages win.
- Settlement: only construction-investment contracts settle; assignment needs payment approval first and a settled contract is read-only.
- Notifications: assignment and update notices for the people involved; delivery failures never fail the operation.
- Event log: diary of changes, view with 'cdesk log tail'.`,
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
	viper.SetEnvPrefix("CONTRACTDESK")
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
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			dir, err := db.EnsureWorkspace(workspace)
			if err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault(name)), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", cfgPath)
			} else {
				fmt.Printf("Config already exists at %s\n", cfgPath)
			}
			appCtx, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer appCtx.Close()
			fmt.Printf("Workspace ready at %s\n", dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "contractdesk", "workspace name")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer appCtx.Close()
			fmt.Println("migrations up to date")
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func contractCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "contract",
		Short: "Manage contracts",
		Long:  "Contracts are issued by owners, delivered by executors, and (for construction investments) settled by settlement executors. Field writes outside your role are dropped, not rejected.",
	}
	c.AddCommand(contractCreateCmd())
	c.AddCommand(contractListCmd())
	c.AddCommand(contractGetCmd())
	c.AddCommand(contractUpdateCmd())
	c.AddCommand(contractDeleteCmd())
	c.AddCommand(contractReassignCmd())
	c.AddCommand(contractAssignSettlementCmd())
	c.AddCommand(contractSummaryCmd())
	return c
}

func contractCreateCmd() *cobra.Command {
	var opts engine.ContractCreateOptions
	var number, frameworkNumber, title, signedDate, executorID string
	var value float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.ContractNumber = number
			if cmd.Flags().Changed("framework-number") {
				opts.FrameworkContractNumber = &frameworkNumber
			}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("value") {
				opts.ContractValue = &value
			}
			if cmd.Flags().Changed("signed-date") {
				opts.SignedDate = &signedDate
			}
			if cmd.Flags().Changed("executor-id") {
				opts.ExecutorID = &executorID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateContract(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "contract id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&number, "number", "", "contract number")
	cmd.Flags().StringVar(&frameworkNumber, "framework-number", "", "framework contract number")
	cmd.Flags().BoolVar(&opts.IsFrameworkContract, "framework", false, "framework contract")
	cmd.Flags().BoolVar(&opts.IsConstructionInvestment, "construction", false, "construction-investment contract")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().Float64Var(&value, "value", 0, "contract value")
	cmd.Flags().StringVar(&signedDate, "signed-date", "", "signed date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&executorID, "executor-id", "", "initial executor")
	cmd.Flags().StringVar(&opts.IssuedByID, "issued-by", "", "issuing owner (admin only, defaults to actor)")
	return cmd
}

func contractListCmd() *cobra.Command {
	var f repo.ContractFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				contracts, err := e.Repo.ListContracts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(contracts)
				}
				now := time.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Number", "Title", "State", "Executor", "Settlement"})
				for _, c := range contracts {
					tw.AppendRow(table.Row{
						c.ID, c.ContractNumber, strDeref(c.Title), domain.Status(c, now),
						strDeref(c.ExecutorID), strDeref(c.SettlementHandlerID),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ExecutorID, "executor-id", "", "executor filter")
	cmd.Flags().StringVar(&f.SettlementHandlerID, "settlement-handler-id", "", "settlement handler filter")
	cmd.Flags().StringVar(&f.IssuedByID, "issued-by", "", "issuer filter")
	cmd.Flags().BoolVar(&f.ConstructionOnly, "construction", false, "construction-investment contracts only")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results (0 for all)")
	return cmd
}

func contractGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetContract(ctx, id)
				if err != nil {
					return err
				}
				out := map[string]any{"contract": c, "status": domain.Status(c, time.Now())}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func contractUpdateCmd() *cobra.Command {
	var set []string
	var clear []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update contract fields",
		Long:  "Apply field=value pairs as a patch. Fields outside your role's authority are dropped and listed under 'ignored'.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			patch := authz.Patch{}
			for _, kv := range set {
				key, raw, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --set %q, expected field=value", kv)
				}
				patch[key] = parsePatchValue(raw)
			}
			for _, key := range clear {
				patch[key] = nil
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update; use --set field=value or --clear field")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, decision, err := e.UpdateContract(ctx, id, patch, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"contract": c,
					"applied":  decision.Applied,
					"ignored":  decision.Ignored,
				})
			})
		},
	}
	cmd.Flags().StringArrayVar(&set, "set", []string{}, "field=value to set (repeatable)")
	cmd.Flags().StringArrayVar(&clear, "clear", []string{}, "field to clear (repeatable)")
	return cmd
}

func contractDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete contract (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteContract(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func contractReassignCmd() *cobra.Command {
	var executorID string
	cmd := &cobra.Command{
		Use:   "reassign <id>",
		Short: "Reassign executor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ReassignExecutor(ctx, id, executorID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&executorID, "executor-id", "", "new assignee (settlement executor when acting as a settlement lead; empty clears)")
	return cmd
}

func contractAssignSettlementCmd() *cobra.Command {
	var handlerID string
	cmd := &cobra.Command{
		Use:   "assign-settlement <id>",
		Short: "Assign settlement handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AssignSettlementHandler(ctx, id, handlerID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&handlerID, "handler-id", "", "settlement executor (empty clears)")
	return cmd
}

func contractSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Contracts per workflow state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ContractSummary(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Total: %d\n", s.Total)
				for _, state := range domain.WorkflowStates {
					fmt.Printf("  %s: %d\n", state, s.States[state])
				}
				if len(s.Workload) > 0 {
					fmt.Println("Executor workload:")
					for executor, n := range s.Workload {
						fmt.Printf("  %s: %d\n", executor, n)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func actorCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "actor",
		Short: "Manage actors",
	}
	a.AddCommand(actorCreateCmd())
	a.AddCommand(actorListCmd())
	a.AddCommand(actorGetCmd())
	a.AddCommand(actorDeleteCmd())
	a.AddCommand(actorInactiveCmd())
	return a
}

func actorCreateCmd() *cobra.Command {
	var opts engine.ActorCreateOptions
	var role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.Role = domain.Role(role)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateActor(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "actor id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "role (owner, executor, settlement_lead, settlement_executor, admin)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func actorListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actors, err := e.Repo.ListActors(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Last Activity"})
				for _, a := range actors {
					tw.AppendRow(table.Row{a.ID, a.DisplayName, a.Role, strDeref(a.LastActivityAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func actorGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetActor(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func actorDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete actor (admin only, blocked while assigned)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteActor(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func actorInactiveCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "inactive",
		Short: "List actors with no recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if !cmd.Flags().Changed("days") && e.Config != nil && e.Config.Activity.InactiveAfterDays > 0 {
					days = e.Config.Activity.InactiveAfterDays
				}
				cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
				actors, err := e.Repo.InactiveSince(ctx, cutoff)
				if err != nil {
					return err
				}
				return printJSONOrTable(actors)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "inactivity threshold in days")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	k.AddCommand(apikeyIssueCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyIssueCmd() *cobra.Command {
	var target, name string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				target = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, secret, err := e.IssueAPIKey(ctx, target, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "secret": secret})
				}
				fmt.Printf("Issued key %s for %s\n", key.ID, key.ActorID)
				fmt.Printf("Secret (shown once): %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				target = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, target)
				if err != nil {
					return err
				}
				out := make([]map[string]any, 0, len(keys))
				for _, k := range keys {
					out = append(out, map[string]any{
						"id": k.ID, "actor_id": k.ActorID, "name": k.Name, "created_at": k.CreatedAt,
					})
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id (defaults to --actor-id)")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{
		Use:   "notification",
		Short: "Manage notifications",
	}
	n.AddCommand(notificationListCmd())
	n.AddCommand(notificationReadCmd())
	n.AddCommand(notificationReadAllCmd())
	return n
}

func notificationListCmd() *cobra.Command {
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List my notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListNotifications(ctx, repo.NotificationFilters{
					RecipientID: viper.GetString("actor-id"),
					UnreadOnly:  unread,
					Limit:       limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Message", "Read", "Created"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Type, n.Message, n.IsRead, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "unread only")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func notificationReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.MarkNotificationRead(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func notificationReadAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read-all",
		Short: "Mark all notifications read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.Repo.MarkAllNotificationsRead(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"marked": n})
				}
				fmt.Printf("Marked %d notifications read\n", n)
				return nil
			})
		},
	}
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
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
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

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			appCtx, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer appCtx.Close()
			cfg := appCtx.Config
			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Auth.JWTSecret,
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
			}
			if secret := os.Getenv("CONTRACTDESK_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("auth.jwt_secret (or CONTRACTDESK_JWT_SECRET) is required when the legacy actor header is disabled")
			}
			handler, err := server.New(server.Config{Engine: appCtx.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			notify.Start(appCtx.Engine.Repo, cfg)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Contractdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	appCtx, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(ctx, appCtx.Engine)
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

// parsePatchValue keeps patch values typed the way a JSON body would be:
// numbers and booleans parse, everything else stays a string.
func parsePatchValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch v.(type) {
		case float64, bool:
			return v
		}
	}
	return raw
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
