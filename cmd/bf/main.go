package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"boardflow/internal/config"
	"boardflow/internal/db"
	"boardflow/internal/distribution"
	"boardflow/internal/docket"
	"boardflow/internal/domain"
	"boardflow/internal/engine"
	"boardflow/internal/migrate"
	"boardflow/internal/repo"
	"boardflow/internal/schedule"
	"boardflow/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bf",
	Short: "Boardflow CLI",
	Long: `Boardflow runs the casework of an appeals board: intake, task trees,
hearings, and docket math.
- Workspace: your .boardflow directory holding the database; settings live in boardflow.yml.
- Appeals: cases on one of four dockets (legacy, direct_review, evidence_submission, hearing),
  flagged AOD or CAVC for priority handling.
- Tasks: the work tree under each appeal; statuses go assigned -> in_progress -> completed
  (on_hold and cancelled are detours and exits). Closing a parent closes its open children.
- Hearings: scheduled onto hearing days; dispositions (held, cancelled, postponed, no_show)
  drive the follow-up tasks automatically.
- Schedule: judges are swept onto hearing days around their blackout dates ('bf schedule assign-judges').
- Docket: proportions decide how the next batch of decisions splits across dockets.
- Event log: diary of changes, view with 'bf log tail'.`,
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
	viper.SetEnvPrefix("BOARDFLOW")
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
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(appealCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(hearingCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(docketCmd())
	rootCmd.AddCommand(distributeCmd())
	rootCmd.AddCommand(cavcCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage boardflow.yml",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var boardID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default boardflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(boardID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&boardID, "board-id", "", "board identifier")
	_ = cmd.MarkFlagRequired("board-id")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate boardflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
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

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userAPIKeyCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var u domain.User
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if u.ID == "" {
					u.ID = uuid.New().String()
				}
				u.CreatedAt = time.Now().UTC().Format(time.RFC3339)
				if err := r.InsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&u.ID, "id", "", "user id (optional)")
	cmd.Flags().StringVar(&u.Handle, "handle", "", "unique handle")
	cmd.Flags().StringVar(&u.FullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&u.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&u.MiddleInitial, "middle-initial", "", "middle initial")
	cmd.Flags().StringVar(&u.LastName, "last-name", "", "last name")
	cmd.Flags().BoolVar(&u.Judge, "judge", false, "judge flag")
	cmd.Flags().BoolVar(&u.Attorney, "attorney", false, "attorney flag")
	_ = cmd.MarkFlagRequired("handle")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Handle", "Name", "Judge", "Attorney"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Handle, u.DisplayName(), u.Judge, u.Attorney})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userAPIKeyCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Issue an API key for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetUser(ctx, userID); err != nil {
					return err
				}
				raw := uuid.New().String()
				key := domain.APIKey{
					ID:      uuid.New().String(),
					UserID:  userID,
					Name:    name,
					KeyHash: repo.HashAPIKey(raw),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "key": raw})
				}
				fmt.Printf("API key (store it now, it is not recoverable): %s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	org.AddCommand(orgSyncCmd())
	org.AddCommand(orgMembersCmd())
	return org
}

func orgSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the configured organization registry into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SyncOrganizations(ctx); err != nil {
					return err
				}
				fmt.Println("organizations synced")
				return nil
			})
		},
	}
	return cmd
}

func orgMembersCmd() *cobra.Command {
	var nonAdmins bool
	cmd := &cobra.Command{
		Use:   "members <name>",
		Short: "List organization members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				members, err := r.OrgMembers(ctx, args[0], nonAdmins)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Handle", "Name"})
				for _, u := range members {
					tw.AppendRow(table.Row{u.ID, u.Handle, u.DisplayName()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&nonAdmins, "non-admins", false, "exclude admins")
	return cmd
}

func appealCmd() *cobra.Command {
	appeal := &cobra.Command{
		Use:   "appeal",
		Short: "Manage appeals",
	}
	appeal.AddCommand(appealCreateCmd())
	appeal.AddCommand(appealShowCmd())
	appeal.AddCommand(appealTreeCmd())
	appeal.AddCommand(appealAddIssueCmd())
	return appeal
}

func appealCreateCmd() *cobra.Command {
	var opts engine.AppealCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Intake an appeal",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAppeal(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "appeal id (optional)")
	cmd.Flags().StringVar(&opts.Docket, "docket", "", "docket (legacy, direct_review, evidence_submission, hearing)")
	cmd.Flags().StringVar(&opts.ReceiptDate, "receipt-date", "", "receipt date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.AOD, "aod", false, "advanced on the docket")
	cmd.Flags().BoolVar(&opts.CAVC, "cavc", false, "court remand involvement")
	cmd.Flags().StringVar(&opts.TiedJudgeID, "tied-judge", "", "judge id the case is tied to")
	cmd.Flags().StringVar(&opts.RegionalOffice, "regional-office", "", "regional office key")
	cmd.Flags().BoolVar(&opts.Ready, "ready", false, "mark ready for distribution")
	_ = cmd.MarkFlagRequired("docket")
	_ = cmd.MarkFlagRequired("receipt-date")
	return cmd
}

func appealShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an appeal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetAppeal(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func appealTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <id>",
		Short: "Show an appeal's task tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListAppealTasks(ctx, args[0])
				if err != nil {
					return err
				}
				nodes := map[string][]domain.Task{}
				var roots []domain.Task
				for _, t := range tasks {
					if t.ParentID != nil {
						nodes[*t.ParentID] = append(nodes[*t.ParentID], t)
					} else {
						roots = append(roots, t)
					}
				}
				if viper.GetBool("json") {
					type Node struct {
						Task     domain.Task `json:"task"`
						Children []Node      `json:"children,omitempty"`
					}
					var build func(t domain.Task) Node
					build = func(t domain.Task) Node {
						var childNodes []Node
						for _, c := range nodes[t.ID] {
							childNodes = append(childNodes, build(c))
						}
						return Node{Task: t, Children: childNodes}
					}
					var treeNodes []Node
					for _, r := range roots {
						treeNodes = append(treeNodes, build(r))
					}
					return printJSON(treeNodes)
				}
				for _, r := range roots {
					printTaskTree(r, nodes, "", true)
				}
				return nil
			})
		},
	}
	return cmd
}

func appealAddIssueCmd() *cobra.Command {
	var di domain.DecisionIssue
	cmd := &cobra.Command{
		Use:   "add-issue <appeal-id>",
		Short: "Record a decision issue on an appeal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			di.AppealID = args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetAppeal(ctx, di.AppealID); err != nil {
					return err
				}
				if di.ID == "" {
					di.ID = uuid.New().String()
				}
				if err := r.InsertDecisionIssue(ctx, di); err != nil {
					return err
				}
				return printJSONOrTable(di)
			})
		},
	}
	cmd.Flags().StringVar(&di.ID, "id", "", "issue id (optional)")
	cmd.Flags().StringVar(&di.Description, "description", "", "issue description")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks form a tree under each appeal. They carry a closed set of types, assignments to a user or an organization, append-only instructions, and timed holds.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskHoldCmd())
	task.AddCommand(taskBulkAssignCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var instructions []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.AssignedByID = viper.GetString("actor-id")
			opts.Instructions = instructions
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional)")
	cmd.Flags().StringVar(&opts.AppealID, "appeal", "", "appeal id")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent task id")
	cmd.Flags().StringVar(&opts.Type, "type", "generic", "task type")
	cmd.Flags().StringVar(&opts.AssignedToID, "assign-user", "", "assignee user id")
	cmd.Flags().StringVar(&opts.AssignedToOrg, "assign-org", "", "assignee organization name")
	cmd.Flags().StringArrayVar(&instructions, "instructions", []string{}, "instruction text (repeatable)")
	_ = cmd.MarkFlagRequired("appeal")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var opts engine.TaskUpdateOptions
	var assign string
	var instructions []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task status, assignee, or instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			opts.Instructions = instructions
			if cmd.Flags().Changed("assign") {
				opts.AssignTo = &assign
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "new status (in_progress, completed, cancelled)")
	cmd.Flags().StringVar(&assign, "assign", "", "reassign to user id")
	cmd.Flags().StringArrayVar(&instructions, "instructions", []string{}, "append instruction text (repeatable)")
	return cmd
}

func taskHoldCmd() *cobra.Command {
	var days int
	var instructions []string
	cmd := &cobra.Command{
		Use:   "hold <id>",
		Short: "Place a task on a timed hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.PlaceOnTimedHold(ctx, args[0], days, instructions, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "hold duration in days")
	cmd.Flags().StringArrayVar(&instructions, "instructions", []string{}, "instruction text (repeatable)")
	_ = cmd.MarkFlagRequired("days")
	return cmd
}

func taskBulkAssignCmd() *cobra.Command {
	var opts engine.BulkAssignmentOptions
	cmd := &cobra.Command{
		Use:   "bulk-assign",
		Short: "Assign a batch of queue tasks to a member, priority cases first",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.AssignedByID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.BulkAssign(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(created)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Appeal", "Type", "Assignee"})
				for _, t := range created {
					assignee := ""
					if t.AssignedToID != nil {
						assignee = *t.AssignedToID
					}
					tw.AppendRow(table.Row{t.ID, t.AppealID, t.Type, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.OrgName, "org", "", "organization name")
	cmd.Flags().StringVar(&opts.TaskType, "type", "", "task type")
	cmd.Flags().StringVar(&opts.AssignedToID, "assign", "", "assignee user id")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "number of tasks to assign")
	cmd.Flags().StringVar(&opts.RegionalOffice, "regional-office", "", "only tasks for appeals in this office")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("assign")
	_ = cmd.MarkFlagRequired("count")
	return cmd
}

func hearingCmd() *cobra.Command {
	hearing := &cobra.Command{
		Use:   "hearing",
		Short: "Schedule hearings and record dispositions",
	}
	hearing.AddCommand(hearingScheduleCmd())
	hearing.AddCommand(hearingDispositionCmd())
	hearing.AddCommand(hearingChangeDispositionCmd())
	return hearing
}

func hearingScheduleCmd() *cobra.Command {
	var opts engine.ScheduleHearingOptions
	cmd := &cobra.Command{
		Use:   "schedule <task-id>",
		Short: "Schedule a hearing from a scheduling task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TaskID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				h, err := e.ScheduleHearing(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
	cmd.Flags().StringVar(&opts.HearingDayID, "day", "", "hearing day id")
	cmd.Flags().StringVar(&opts.ScheduledTime, "time", "", "scheduled time (HH:MM)")
	cmd.Flags().BoolVar(&opts.EvidenceWindowWaived, "waive-evidence-window", false, "waive the evidence submission window")
	_ = cmd.MarkFlagRequired("day")
	return cmd
}

func hearingDispositionCmd() *cobra.Command {
	var disposition string
	var instructions []string
	var action, newDay, newTime, adminInstructions string
	var withAdminAction bool
	cmd := &cobra.Command{
		Use:   "disposition <task-id>",
		Short: "Record a hearing disposition and run its follow-up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.SetDispositionOptions{
				TaskID:       args[0],
				Disposition:  disposition,
				Instructions: instructions,
				ActorID:      viper.GetString("actor-id"),
			}
			if disposition == domain.DispositionPostponed || action != "" {
				after := &engine.AfterDispositionUpdate{
					Action:           action,
					NewHearingDayID:  newDay,
					NewScheduledTime: newTime,
					WithAdminAction:  withAdminAction,
				}
				if adminInstructions != "" {
					after.AdminActionInstructions = []string{adminInstructions}
				}
				opts.After = after
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				h, err := e.SetHearingDisposition(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
	cmd.Flags().StringVar(&disposition, "disposition", "", "held, cancelled, postponed, or no_show")
	cmd.Flags().StringArrayVar(&instructions, "instructions", []string{}, "instruction text (repeatable)")
	cmd.Flags().StringVar(&action, "after", "", "postponement follow-up (reschedule or schedule_later)")
	cmd.Flags().StringVar(&newDay, "new-day", "", "new hearing day id for reschedule")
	cmd.Flags().StringVar(&newTime, "new-time", "", "new scheduled time for reschedule")
	cmd.Flags().BoolVar(&withAdminAction, "admin-action", false, "open an admin action alongside schedule_later")
	cmd.Flags().StringVar(&adminInstructions, "admin-instructions", "", "admin action instructions")
	_ = cmd.MarkFlagRequired("disposition")
	return cmd
}

func hearingChangeDispositionCmd() *cobra.Command {
	var instructions []string
	cmd := &cobra.Command{
		Use:   "change-disposition <task-id>",
		Short: "Route a recorded disposition to hearings management for correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CompleteWithChangeDisposition(ctx, args[0], instructions, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringArrayVar(&instructions, "instructions", []string{}, "why the disposition should change (repeatable)")
	return cmd
}

func scheduleCmd() *cobra.Command {
	sched := &cobra.Command{
		Use:   "schedule",
		Short: "Build the hearing schedule",
	}
	sched.AddCommand(schedulePeriodCmd())
	sched.AddCommand(scheduleDayCmd())
	sched.AddCommand(scheduleNACmd())
	sched.AddCommand(scheduleTravelBoardCmd())
	sched.AddCommand(scheduleAssignJudgesCmd())
	return sched
}

func schedulePeriodCmd() *cobra.Command {
	var p domain.SchedulePeriod
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Create a schedule period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if p.ID == "" {
					p.ID = uuid.New().String()
				}
				p.CreatedAt = time.Now().UTC().Format(time.RFC3339)
				if err := r.InsertSchedulePeriod(ctx, p); err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&p.ID, "id", "", "period id (optional)")
	cmd.Flags().StringVar(&p.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&p.EndDate, "end", "", "end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func scheduleDayCmd() *cobra.Command {
	var d domain.HearingDay
	var regionalOffice, judgeID string
	cmd := &cobra.Command{
		Use:   "day",
		Short: "Add a hearing day to a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.Type != domain.HearingDayTypeCentral && d.Type != domain.HearingDayTypeVideo && d.Type != domain.HearingDayTypeTravelBoard {
				return fmt.Errorf("invalid hearing day type %s", d.Type)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetSchedulePeriod(ctx, d.SchedulePeriodID); err != nil {
					return err
				}
				if d.ID == "" {
					d.ID = uuid.New().String()
				}
				if regionalOffice != "" {
					d.RegionalOffice = &regionalOffice
				}
				if judgeID != "" {
					d.JudgeID = &judgeID
				}
				if err := r.InsertHearingDay(ctx, d); err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&d.ID, "id", "", "day id (optional)")
	cmd.Flags().StringVar(&d.SchedulePeriodID, "period", "", "schedule period id")
	cmd.Flags().StringVar(&d.Date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.Type, "type", domain.HearingDayTypeVideo, "central, video, or travel_board")
	cmd.Flags().StringVar(&d.Room, "room", "", "room")
	cmd.Flags().StringVar(&regionalOffice, "regional-office", "", "regional office (omit for central)")
	cmd.Flags().StringVar(&judgeID, "judge", "", "pre-assigned judge id")
	_ = cmd.MarkFlagRequired("period")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func scheduleNACmd() *cobra.Command {
	var periodID, judgeHandle string
	var dates []string
	cmd := &cobra.Command{
		Use:   "unavailable",
		Short: "Record judge non-availability dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetSchedulePeriod(ctx, periodID); err != nil {
					return err
				}
				if _, err := r.GetUserByHandle(ctx, judgeHandle); err != nil {
					return err
				}
				for _, date := range dates {
					na := domain.NonAvailability{
						SchedulePeriodID: periodID,
						JudgeHandle:      judgeHandle,
						Date:             date,
					}
					if err := r.InsertNonAvailability(ctx, na); err != nil {
						return err
					}
				}
				fmt.Printf("recorded %d dates for %s\n", len(dates), judgeHandle)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&periodID, "period", "", "schedule period id")
	cmd.Flags().StringVar(&judgeHandle, "judge", "", "judge handle")
	cmd.Flags().StringArrayVar(&dates, "date", []string{}, "blocked date (repeatable)")
	_ = cmd.MarkFlagRequired("period")
	_ = cmd.MarkFlagRequired("judge")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func scheduleTravelBoardCmd() *cobra.Command {
	var tb domain.TravelBoardDay
	cmd := &cobra.Command{
		Use:   "travel-board",
		Short: "Record a travel board commitment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if tb.ID == "" {
					tb.ID = uuid.New().String()
				}
				if err := r.InsertTravelBoardDay(ctx, tb); err != nil {
					return err
				}
				return printJSONOrTable(tb)
			})
		},
	}
	cmd.Flags().StringVar(&tb.ID, "id", "", "id (optional)")
	cmd.Flags().StringVar(&tb.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&tb.EndDate, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&tb.MemberIDs, "member", []string{}, "travelling judge id (repeatable)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func scheduleAssignJudgesCmd() *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "assign-judges <period-id>",
		Short: "Sweep judges onto the period's hearing days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				assigner := &schedule.Assigner{DB: e.DB, Repo: e.Repo, Config: e.Config, Logger: newLogger(), Now: e.Now}
				plan, err := assigner.Plan(ctx, args[0])
				if err != nil {
					return err
				}
				if apply {
					if err := assigner.Apply(ctx, args[0], plan, viper.GetString("actor-id")); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(plan)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Type", "Room", "Judge"})
				for _, a := range plan {
					tw.AppendRow(table.Row{a.Date, a.Type, a.Room, a.JudgeName})
				}
				tw.Render()
				if !apply {
					fmt.Println("dry run; pass --apply to persist")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "persist the assignments")
	return cmd
}

func docketCmd() *cobra.Command {
	dk := &cobra.Command{
		Use:   "docket",
		Short: "Docket math and range tracking",
	}
	dk.AddCommand(docketProportionsCmd())
	dk.AddCommand(docketUpcomingCmd())
	dk.AddCommand(docketMarkInRangeCmd())
	dk.AddCommand(docketTargetHearingsCmd())
	return dk
}

func docketProportionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proportions",
		Short: "Show how the next decision batch splits across dockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c := &docket.Coordinator{Repo: e.Repo, Config: e.Config, Now: e.Now, Logger: newLogger()}
				proportions, err := c.DocketProportions(ctx)
				if err != nil {
					return err
				}
				batch, err := c.TotalBatchSize(ctx)
				if err != nil {
					return err
				}
				priority, err := c.PriorityCount(ctx)
				if err != nil {
					return err
				}
				out := map[string]any{
					"proportions": proportions,
					"batch_size":  batch,
					"priority":    priority,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Docket", "Proportion"})
				for _, name := range domain.Dockets {
					tw.AppendRow(table.Row{name, proportions[name]})
				}
				tw.Render()
				fmt.Printf("batch size: %d, priority cases: %d\n", batch, priority)
				return nil
			})
		},
	}
	return cmd
}

func docketUpcomingCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List hearing-docket appeals coming into range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c := &docket.Coordinator{Repo: e.Repo, Config: e.Config, Now: e.Now, Logger: newLogger()}
				appeals, err := c.UpcomingAppealsInRange(ctx, days)
				if err != nil {
					return err
				}
				return printJSONOrTable(appeals)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 365, "window in days")
	return cmd
}

func docketMarkInRangeCmd() *cobra.Command {
	var appealIDs []string
	cmd := &cobra.Command{
		Use:   "mark-in-range",
		Short: "Stamp appeals with today's docket range date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(appealIDs) == 0 {
				return fmt.Errorf("--appeal required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c := &docket.Coordinator{Repo: e.Repo, Config: e.Config, Now: e.Now, Logger: newLogger()}
				if err := c.MarkInRange(ctx, appealIDs); err != nil {
					return err
				}
				fmt.Printf("marked %d appeals\n", len(appealIDs))
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&appealIDs, "appeal", []string{}, "appeal id (repeatable)")
	return cmd
}

func docketTargetHearingsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "target-hearings",
		Short: "Target number of hearings to hold over a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c := &docket.Coordinator{Repo: e.Repo, Config: e.Config, Now: e.Now, Logger: newLogger()}
				target, err := c.TargetNumberOfAMAHearings(ctx, days)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"target": target, "days": days})
				}
				fmt.Printf("target hearings over %d days: %d\n", days, target)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 365, "window in days")
	return cmd
}

func distributeCmd() *cobra.Command {
	var orgName, taskType, appealID string
	cmd := &cobra.Command{
		Use:   "next-assignee",
		Short: "Pick the next assignee for a task entering an organization's queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				org, ok := e.Config.Organizations[orgName]
				if !ok {
					return fmt.Errorf("unknown organization %s", orgName)
				}
				d := distribution.ForOrg(e.DB, orgName, org.Distributor, newLogger())
				u, err := d.NextAssignee(ctx, distribution.Request{AppealID: appealID, TaskType: taskType})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&orgName, "org", "", "organization name")
	cmd.Flags().StringVar(&taskType, "type", "", "task type")
	cmd.Flags().StringVar(&appealID, "appeal", "", "appeal id (enables affinity checks)")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func cavcCmd() *cobra.Command {
	cavc := &cobra.Command{
		Use:   "cavc",
		Short: "Record court decisions",
	}
	cavc.AddCommand(cavcCreateCmd())
	cavc.AddCommand(cavcCompleteCmd())
	return cavc
}

func cavcCreateCmd() *cobra.Command {
	var opts engine.CavcRemandOptions
	var instructions string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a court decision against an appeal",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.CreatedByID = viper.GetString("actor-id")
			opts.Instructions = instructions
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCavcRemand(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AppealID, "appeal", "", "appeal id")
	cmd.Flags().StringVar(&opts.CavcDocketNumber, "docket-number", "", "court docket number")
	cmd.Flags().StringVar(&opts.DecisionType, "type", domain.CavcTypeRemand, "remand, straight_reversal, or death_dismissal")
	cmd.Flags().StringVar(&opts.RemandSubtype, "subtype", "", "jmr, jmpr, or mdr (remands only)")
	cmd.Flags().StringVar(&opts.JudgeName, "judge-name", "", "deciding judge name")
	cmd.Flags().StringVar(&opts.DecisionDate, "decision-date", "", "decision date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.JudgementDate, "judgement-date", "", "judgement date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.MandateDate, "mandate-date", "", "mandate date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&opts.DecisionIssueIDs, "issue", []string{}, "decision issue id (repeatable)")
	cmd.Flags().StringVar(&instructions, "instructions", "", "instructions")
	_ = cmd.MarkFlagRequired("appeal")
	_ = cmd.MarkFlagRequired("docket-number")
	_ = cmd.MarkFlagRequired("judge-name")
	_ = cmd.MarkFlagRequired("decision-date")
	return cmd
}

func cavcCompleteCmd() *cobra.Command {
	var judgementDate, mandateDate string
	cmd := &cobra.Command{
		Use:   "complete <remand-id>",
		Short: "Supply judgement and mandate dates, establishing the court remand stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CompleteCavcRemand(ctx, args[0], judgementDate, mandateDate, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&judgementDate, "judgement-date", "", "judgement date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&mandateDate, "mandate-date", "", "mandate date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("judgement-date")
	_ = cmd.MarkFlagRequired("mandate-date")
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
	var appealID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, appealID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&appealID, "appeal", "", "appeal id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowUserHeader bool
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
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			logger := newLogger()
			authCfg := server.AuthConfig{
				JWTSecret:             os.Getenv("BOARDFLOW_JWT_SECRET"),
				AllowLegacyUserHeader: allowUserHeader,
				Logger:                logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("BOARDFLOW_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Logger: logger})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e, logger)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Boardflow API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowUserHeader, "allow-user-header", false, "accept X-User-Id without auth (dev only)")
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
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
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

func printTaskTree(t domain.Task, children map[string][]domain.Task, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	assignee := ""
	if t.AssignedToOrg != nil {
		assignee = " -> " + *t.AssignedToOrg
	} else if t.AssignedToID != nil {
		assignee = " -> " + *t.AssignedToID
	}
	fmt.Printf("%s%s%s [%s]%s\n", prefix, connector, engine.TaskTypeLabel(t.Type), t.Status, assignee)
	for i, c := range children[t.ID] {
		printTaskTree(c, children, newPrefix, i == len(children[t.ID])-1)
	}
}
