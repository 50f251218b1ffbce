// Package cmd defines and implements the CLI commands for the
// scribblehub-fetch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/app"
	"github.com/JakeFAU/scribblehub-fetch/internal/config"
	"github.com/JakeFAU/scribblehub-fetch/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	cfgFile   string
	verbosity int
	quiet     bool
	v         *viper.Viper

	// app is set by the pre-run hook and closed by close.
	app *app.App
}

// close releases the App built for this invocation, if any. Cobra skips
// post-run hooks when a command fails, so this runs after Execute instead.
func (o *rootOptions) close() {
	if o.app != nil {
		o.app.Close()
		o.app = nil
	}
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = app.New

// newRootCmd creates and configures the root command. The caller must call
// close on the returned options once the command has executed.
func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "scribblehub-fetch",
		Short: "Download serialized novels from Scribble Hub.",
		Long: `scribblehub-fetch resolves a Scribble Hub series or chapter URL, loads the
table of contents, downloads the requested chapters with their images and
writes the book as a JSON manifest for downstream tooling.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flags are parsed but before the subcommand's RunE, so
		// flag values bound into viper are visible to config.Load.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(opts.v, opts.cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, logging.LevelFor(opts.verbosity, opts.quiet))
			if err != nil {
				return err
			}
			appInstance, err := newApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			opts.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.CountVarP(&opts.verbosity, "verbose", "v", "increase log verbosity (-v debug, -vv also logs every progress event)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "only log errors; overrides -v")

	cmd.AddCommand(newFetchCmd(opts))
	cmd.AddCommand(newTOCCmd())

	return cmd, opts
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, opts := newRootCmd()
	err := root.ExecuteContext(ctx)
	opts.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		// Only possible when the flag was never defined.
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func logFields(appInstance *app.App) []zap.Field {
	s := appInstance.Metrics.Summary()
	return []zap.Field{
		zap.Int("chapters_loaded", s.ChaptersLoaded),
		zap.Int("chapters_failed", s.ChaptersFailed),
		zap.Int("assets_downloaded", s.AssetsDownloaded),
		zap.Int("assets_cached", s.AssetsCached),
		zap.Int64("asset_bytes", s.AssetBytes),
	}
}
