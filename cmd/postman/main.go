package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/brizzai/postman/internal/commandfile"
	"github.com/brizzai/postman/internal/config"
	"github.com/brizzai/postman/internal/httpcache"
	"github.com/brizzai/postman/internal/logger"
	"github.com/brizzai/postman/internal/notify"
	"github.com/brizzai/postman/internal/requester"
	"github.com/brizzai/postman/internal/signing"
	"github.com/brizzai/postman/internal/wakeful"
)

const shutdownTimeout = 15 * time.Second

func main() {
	Execute()
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "postman",
	Short: "Run signed REST commands",
	Long: `Postman executes commands declared in YAML files: ordered groups of REST
calls, optionally signed with named credentials, reported as a single result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run <command-file>",
	Short: "Execute a command file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommandFile,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		pterm.Info.Println(config.GetVersionInfo())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")
	rootCmd.AddCommand(runCmd, versionCmd)
}

// appOptions wires the executor stack. Every notification is also delivered
// to results.
func appOptions(cfg *config.Config, results *notify.ChannelSink) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		notify.Module,
		httpcache.Module,
		signing.Module,
		requester.Module,
		wakeful.Module,
		fx.Decorate(func(base notify.Sink) notify.Sink {
			return notify.Multi(base, results)
		}),
	)
}

func runCommandFile(cmd *cobra.Command, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pterm.Error.Printf("\nCaught panic: %v\n", r)
			pterm.Error.Printf("%s\n", debug.Stack())
			os.Exit(2)
		}
	}()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := logger.InitLogger(&cfg.Logging); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	command, err := commandfile.Load(args[0], cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("loading command file: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := notify.NewChannelSink(1)
	var service *wakeful.Service
	app := fx.New(
		appOptions(cfg, results),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.GetLogger()}
		}),
		fx.Populate(&service),
	)

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("starting: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := app.Stop(stopCtx); stopErr != nil && err == nil {
			err = fmt.Errorf("stopping: %w", stopErr)
		}
	}()

	if err := service.Send(ctx, command); err != nil {
		return fmt.Errorf("submitting command: %w", err)
	}

	select {
	case n := <-results.C():
		if !n.Success {
			return errors.New(n.Message)
		}
		pterm.Success.Printfln("%s: %s", n.CommandID, n.Message)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
