// Package cli wires the river-ls command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mcncl/river-ls/internal/cache"
	"github.com/mcncl/river-ls/internal/config"
	"github.com/mcncl/river-ls/internal/registry"
	"github.com/mcncl/river-ls/internal/source"
)

var (
	// Version information - set during build
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries the state shared by the commands of one invocation.
type app struct {
	configPath string
	flags      config.Options
	opts       config.Options
	logger     *zap.Logger
}

// NewRootCommand returns the river-ls command tree.
func NewRootCommand() *cobra.Command {
	a := &app{flags: config.DefaultOptions()}

	root := &cobra.Command{
		Use:   "river-ls",
		Short: "Language server for Grafana Agent Flow River configuration",
		Long: `river-ls serves completions for River configuration files over the
language server protocol on stdin and stdout.

Component schemas are built from the Grafana Agent reference documentation
for the configured agent version and cached on disk.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: a.serve,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to a YAML options file")
	flags.StringVar(&a.flags.SchemaVersion, "schema-version", a.flags.SchemaVersion, "Agent release the schema is built for, e.g. release-v0.40")
	flags.IntVar(&a.flags.Verbosity, "verbosity", a.flags.Verbosity, "Snippet verbosity: 1 minimal, 2 normal, 3 detailed")
	flags.StringVar(&a.flags.Source, "source", a.flags.Source, "Where reference pages come from: github, dir or fixture")
	flags.StringVar(&a.flags.DocsDir, "docs-dir", "", "Local documentation directory for --source dir")
	flags.BoolVar(&a.flags.Watch, "watch", false, "Rebuild the schema when --docs-dir changes")
	flags.StringVar(&a.flags.CacheDir, "cache-dir", "", "Schema cache directory (default: user cache dir)")
	flags.DurationVar(&a.flags.CacheTTL, "cache-ttl", a.flags.CacheTTL, "How long cached schemas stay valid")
	flags.BoolVar(&a.flags.NoCache, "no-cache", false, "Do not read or write the schema cache")
	flags.StringVar(&a.flags.LogFile, "log-file", "", "Write logs to this file instead of stderr")
	flags.BoolVar(&a.flags.Debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newVersionCommand(),
		newWarmCacheCommand(a),
		newComponentsCommand(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// setup merges the options file with explicitly set flags and builds the
// logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	opts, err := config.LoadOptions(a.configPath)
	if err != nil {
		return err
	}

	changed := cmd.Flags().Changed
	if changed("schema-version") {
		opts.SchemaVersion = a.flags.SchemaVersion
	}
	if changed("verbosity") {
		opts.Verbosity = a.flags.Verbosity
	}
	if changed("source") {
		opts.Source = a.flags.Source
	}
	if changed("docs-dir") {
		opts.DocsDir = a.flags.DocsDir
	}
	if changed("watch") {
		opts.Watch = a.flags.Watch
	}
	if changed("cache-dir") {
		opts.CacheDir = a.flags.CacheDir
	}
	if changed("cache-ttl") {
		opts.CacheTTL = a.flags.CacheTTL
	}
	if changed("no-cache") {
		opts.NoCache = a.flags.NoCache
	}
	if changed("log-file") {
		opts.LogFile = a.flags.LogFile
	}
	if changed("debug") {
		opts.Debug = a.flags.Debug
	}

	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	a.opts = opts

	a.logger, err = newLogger(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// newLogger builds a production logger. stdout carries the protocol, so
// logs go to stderr or the log file.
func newLogger(opts config.Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Debug {
		level.SetLevel(zapcore.DebugLevel)
	}
	cfg.Level = level

	output := "stderr"
	if opts.LogFile != "" {
		output = opts.LogFile
	}
	cfg.OutputPaths = []string{output}
	cfg.ErrorOutputPaths = []string{output}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("river-ls"), nil
}

func (a *app) newSource() (source.Source, error) {
	switch a.opts.Source {
	case config.SourceGitHub:
		var ghOpts []source.GitHubOption
		if base := a.opts.GitHub.APIBase; base != "" {
			ghOpts = append(ghOpts, source.WithAPIBase(base))
		}
		if repo := a.opts.GitHub.Repo; repo != "" {
			ghOpts = append(ghOpts, source.WithRepo(repo))
		}
		if n := a.opts.GitHub.Concurrency; n > 0 {
			ghOpts = append(ghOpts, source.WithConcurrency(n))
		}
		return source.NewGitHub(a.logger, ghOpts...), nil
	case config.SourceDir:
		return source.NewLocalDir(a.opts.DocsDir, a.logger), nil
	case config.SourceFixture:
		return source.NewFixture(a.logger), nil
	default:
		return nil, fmt.Errorf("unknown source %q", a.opts.Source)
	}
}

// newCache returns nil when caching is disabled. Pages read from a docs
// directory may change between runs, so that source caches in memory only,
// as does any setup without a usable cache directory.
func (a *app) newCache() *cache.Cache {
	if a.opts.NoCache {
		return nil
	}
	if a.opts.Source == config.SourceDir {
		return cache.New("", a.opts.CacheTTL, a.logger)
	}

	dir := a.opts.CacheDir
	if dir == "" {
		var err error
		dir, err = cache.DefaultDir()
		if err != nil {
			a.logger.Warn("No cache directory, caching in memory only", zap.Error(err))
		}
	}
	return cache.New(dir, a.opts.CacheTTL, a.logger)
}

func (a *app) newStore(c *cache.Cache) (*registry.Store, error) {
	src, err := a.newSource()
	if err != nil {
		return nil, err
	}
	return registry.New(src, c, a.logger), nil
}
