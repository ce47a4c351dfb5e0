package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"workforce/internal/config"
	"workforce/internal/console"
	"workforce/internal/logger"
	"workforce/internal/orchestrator"
)

var (
	configPath  string
	userID      string
	direct      bool
	agentNames  string
	grantTokens int64
	planTier    string

	app *App
)

var rootCmd = &cobra.Command{
	Use:   "workforce",
	Short: "An AI workforce that plans, delegates and executes your requests",
	Long: `workforce turns a request into a plan of tasks, assigns each task to the best
matching AI employee and runs them, billing model usage against your token balance.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Log.File != "" {
			if err := logger.Init(cfg.Log.File, cfg.Log.Level); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
		}
		app, err = NewApp(cmd.Context(), cfg)
		return err
	},
}

func mode() orchestrator.Mode {
	if direct {
		return orchestrator.ModeDirect
	}
	return orchestrator.ModeMission
}

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Plan and execute one request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunMission(cmd.Context(), userID, args[0], mode())
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session, each line runs as a background mission",
	RunE: func(cmd *cobra.Command, args []string) error {
		con, err := console.New("> ")
		if err != nil {
			return fmt.Errorf("init terminal input: %w", err)
		}
		defer con.Close()
		return app.Chat(cmd.Context(), con, userID, mode())
	},
}

var collabCmd = &cobra.Command{
	Use:   "collab <request>",
	Short: "Run a request with a team of collaborating agents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunCollab(cmd.Context(), userID, args[0], splitNames(agentNames))
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show a user's token balance and monthly usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Balance(cmd.Context(), userID, grantTokens, planTier)
	},
}

var employeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "List the available AI employees",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Employees(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./workforce.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "local", "user id billed for model usage")

	runCmd.Flags().BoolVar(&direct, "direct", false, "skip planning and run the goal as a single task")
	chatCmd.Flags().BoolVar(&direct, "direct", false, "skip planning for every line")
	collabCmd.Flags().StringVar(&agentNames, "agents", "", "comma separated employee names")
	balanceCmd.Flags().Int64Var(&grantTokens, "grant", 0, "add tokens before showing the balance")
	balanceCmd.Flags().StringVar(&planTier, "plan", "", "set the plan tier (free, pro, enterprise)")

	rootCmd.AddCommand(runCmd, chatCmd, collabCmd, balanceCmd, employeesCmd)
}

// Execute runs the root command until it finishes or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// execute runs one command line. The app is closed whether or not the command
// failed; cobra skips post-run hooks after an error.
func execute(ctx context.Context, args []string) error {
	defer closeApp()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func closeApp() {
	if app == nil {
		return
	}
	if err := app.Close(); err != nil {
		logger.Log.Warn("closing app", "err", err)
	}
	app = nil
}
