package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scribblehub-fetch/internal/export"
	"github.com/JakeFAU/scribblehub-fetch/internal/progress/sinks"
	"github.com/JakeFAU/scribblehub-fetch/internal/storage/local"
)

type fetchOptions struct {
	startWith    int
	endWith      int
	noProgress   bool
	allowPartial bool
}

// newFetchCmd creates the 'fetch' subcommand.
func newFetchCmd(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch <url> [out-file]",
		Short: "Download a series and write it as a JSON manifest",
		Long: `Downloads the chapters of a series together with their inline images and
cover. <url> may be a series page or a chapter page; a chapter page starts the
download at that chapter. The manifest is written to out-file, or to
<output.dir>/<slug>.json when out-file is omitted.

Chapters that fail to load abort the run unless --allow-partial is set.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args, opts, root.verbosity)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.startWith, "start-with", 1, "first chapter to download (1-based)")
	flags.IntVar(&opts.endWith, "end-with", 0, "last chapter to download, 0 for the latest")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")
	flags.BoolVar(&opts.allowPartial, "allow-partial", false, "write the manifest even when some chapters failed")
	flags.String("cache-dir", "", "asset cache directory")
	flags.String("strategy", "", "page fetch strategy: http or headless")
	bindFlag(root.v, "cache.dir", cmd, "cache-dir")
	bindFlag(root.v, "fetch.strategy", cmd, "strategy")

	return cmd
}

func (o *fetchOptions) validate() error {
	if o.startWith < 1 {
		return fmt.Errorf("--start-with must be at least 1, got %d", o.startWith)
	}
	if o.endWith < 0 {
		return fmt.Errorf("--end-with must not be negative, got %d", o.endWith)
	}
	if o.endWith > 0 && o.endWith < o.startWith {
		return fmt.Errorf("--end-with %d is before --start-with %d", o.endWith, o.startWith)
	}
	return nil
}

func runFetch(cmd *cobra.Command, args []string, opts *fetchOptions, verbosity int) error {
	if err := opts.validate(); err != nil {
		return err
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger

	store, err := appInstance.OpenCache()
	if err != nil {
		return err
	}
	lock, err := store.Lock()
	if err != nil {
		if errors.Is(err, local.ErrLocked) {
			return fmt.Errorf("another fetch is using %s: %w", store.BaseDir(), err)
		}
		return err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			logger.Warn("Failed to release cache lock", zap.Error(uerr))
		}
	}()

	if !opts.noProgress && isTerminal(cmd.ErrOrStderr()) {
		sinks.NewBarSink(cmd.ErrOrStderr()).Attach(appInstance.Bus)
	}
	if verbosity >= 2 {
		sinks.NewLogSink(logger.Named("events")).Attach(appInstance.Bus)
	}

	book, err := appInstance.NewBook(args[0], store, false)
	if err != nil {
		return err
	}

	exportOpts := export.Options{
		Dir:          appInstance.Config.Output.Dir,
		AllowPartial: opts.allowPartial,
		RunID:        book.RunID(),
	}
	if len(args) == 2 {
		exportOpts.Target = args[1]
	}

	path, err := export.NewManifest(appInstance.Bus, logger.Named("export")).Export(
		cmd.Context(), book, export.Range{Start: opts.startWith, End: opts.endWith}, exportOpts)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", args[0], err)
	}

	logger.Info("Fetch finished", append(logFields(appInstance), zap.String("manifest", path))...)
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
