package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"hashdiff/internal/compare"
	"hashdiff/internal/config"
	"hashdiff/internal/hash"
	"hashdiff/internal/tree"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// errDrift is returned when --exit-code is set and the roots differ.
var errDrift = errors.New("drift detected")

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type cliOptions struct {
	configPath  string
	algorithm   string
	scheme      string
	workers     int
	context     int
	ignoreDirs  []string
	ignoreFiles []string
	verbose     bool
	showDiff    bool
	json        bool
	exitCode    bool
	progress    bool
	color       colorMode
	logLevel    string
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errDrift):
		return exitFailure
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)

	var uerr *usageError
	if errors.As(err, &uerr) || errors.Is(err, compare.ErrUsage) {
		fmt.Fprintln(stderr, cmd.UsageString())
		return exitUsage
	}
	return exitFailure
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{color: colorAuto}

	cmd := &cobra.Command{
		Use:   "hashdiff [flags] <source> <target>",
		Short: "Detect drift between two files or two directory trees",
		Long: `Digests both roots and reports whether they are identical.
Directories are compared by a digest over every included relative path and its
contents. With --verbose a drifted directory pair is broken down into added,
removed and modified paths; --diff adds a unified diff for each modified file.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(2)(cmd, args); err != nil {
				return &usageError{err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, opts, args[0], args[1], stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	registerFlags(cmd.Flags(), opts)
	return cmd
}

func registerFlags(flags *pflag.FlagSet, opts *cliOptions) {
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "list added, removed and modified paths of drifted directories")
	flags.BoolVarP(&opts.showDiff, "diff", "d", false, "show a unified diff for drifted files")
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/hashdiff/config.yaml)")
	flags.StringVarP(&opts.algorithm, "algorithm", "a", "", fmt.Sprintf("digest algorithm %v", hash.Algorithms()))
	flags.StringVar(&opts.scheme, "scheme", "", "tree digest scheme (stream, merkle)")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "number of hashing goroutines")
	flags.IntVarP(&opts.context, "context", "U", 0, "lines of context around each diff hunk")
	flags.StringArrayVar(&opts.ignoreDirs, "ignore-dir", nil, "additional directory name to ignore (repeatable)")
	flags.StringArrayVar(&opts.ignoreFiles, "ignore-file", nil, "additional file name to ignore (repeatable)")
	flags.Var(&opts.color, "color", "colorize output (auto, always, never)")
	flags.BoolVar(&opts.progress, "progress", false, "show a progress bar while hashing files")
	flags.BoolVar(&opts.json, "json", false, "print the result as JSON")
	flags.BoolVar(&opts.exitCode, "exit-code", false, "exit with status 1 when drift is found")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func runCompare(cmd *cobra.Command, opts *cliOptions, source, target string, stdout, stderr io.Writer) error {
	logger, err := newLogger(opts.logLevel, stderr)
	if err != nil {
		return &usageError{err}
	}

	cfg, err := loadConfig(cmd.Flags(), opts)
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			return &usageError{err}
		}
		return err
	}
	logger.Debug("config loaded",
		"algorithm", cfg.Algorithm,
		"scheme", cfg.Scheme,
		"workers", cfg.Workers,
		"ignore_dirs", cfg.Ignore.Directories,
		"ignore_files", cfg.Ignore.Files)

	compOpts := []compare.Option{compare.WithLogger(logger)}
	if opts.progress {
		compOpts = append(compOpts, compare.WithProgress(stderr))
	}
	comparator := compare.New(cfg, compOpts...)

	outcome, err := comparator.Check(cmd.Context(), source, target, compare.Options{
		Verbose:  opts.verbose,
		ShowDiff: opts.showDiff,
	})
	if err != nil {
		return err
	}

	if opts.json {
		err = compare.WriteJSON(stdout, outcome)
	} else {
		err = writeOutcome(stdout, outcome, newStyler(opts.color.enabled(stdout)))
	}
	if err != nil {
		return err
	}

	if opts.exitCode && !outcome.Result.Identical {
		return errDrift
	}
	return nil
}

// loadConfig reads the config file and applies explicitly set flags on top.
func loadConfig(flags *pflag.FlagSet, opts *cliOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	if flags.Changed("algorithm") {
		cfg.Algorithm = hash.Algorithm(opts.algorithm)
	}
	if flags.Changed("scheme") {
		cfg.Scheme = tree.Scheme(opts.scheme)
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("context") {
		cfg.ContextLines = opts.context
	}
	cfg.Ignore.Directories = append(cfg.Ignore.Directories, opts.ignoreDirs...)
	cfg.Ignore.Files = append(cfg.Ignore.Files, opts.ignoreFiles...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func writeOutcome(w io.Writer, outcome *compare.Outcome, st compare.Styler) error {
	if err := compare.WriteHeader(w, outcome, st); err != nil {
		return err
	}
	if outcome.Report != nil {
		if err := compare.WriteReport(w, outcome.Report, st); err != nil {
			return err
		}
	}
	if outcome.Diff != nil {
		return compare.WriteDiff(w, outcome.Diff, st)
	}
	return nil
}
