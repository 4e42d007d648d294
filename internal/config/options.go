package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcncl/river-ls/internal/snippet"
)

// Source kinds.
const (
	SourceGitHub  = "github"
	SourceDir     = "dir"
	SourceFixture = "fixture"
)

// Options configure the server process. They come from an optional YAML
// file and are then overridden by command line flags.
type Options struct {
	SchemaVersion string        `yaml:"schema_version"`
	Verbosity     int           `yaml:"verbosity"`
	Source        string        `yaml:"source"`
	DocsDir       string        `yaml:"docs_dir"`
	Watch         bool          `yaml:"watch"`
	CacheDir      string        `yaml:"cache_dir"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	NoCache       bool          `yaml:"no_cache"`
	LogFile       string        `yaml:"log_file"`
	Debug         bool          `yaml:"debug"`
	GitHub        GitHubOptions `yaml:"github"`
}

// GitHubOptions tune the GitHub source.
type GitHubOptions struct {
	APIBase     string `yaml:"api_base"`
	Repo        string `yaml:"repo"`
	Concurrency int    `yaml:"concurrency"`
}

// DefaultOptions returns the options used without a config file or flags.
func DefaultOptions() Options {
	return Options{
		SchemaVersion: DefaultSchemaVersion,
		Verbosity:     int(snippet.DefaultVerbosity),
		Source:        SourceGitHub,
		CacheTTL:      24 * time.Hour,
	}
}

// LoadOptions reads path over the defaults. An empty path returns the
// defaults. Unknown keys are an error.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("config: reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return opts, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("config: %s: %w", path, err)
	}
	return opts, nil
}

// Validate checks option combinations.
func (o Options) Validate() error {
	switch o.Source {
	case SourceGitHub, SourceFixture:
	case SourceDir:
		if o.DocsDir == "" {
			return errors.New("source \"dir\" needs docs_dir")
		}
	default:
		return fmt.Errorf("unknown source %q (want %s, %s or %s)", o.Source, SourceGitHub, SourceDir, SourceFixture)
	}

	if o.Watch && o.Source != SourceDir {
		return errors.New("watch is only supported with source \"dir\"")
	}
	if _, err := snippet.ParseVerbosity(o.Verbosity); err != nil {
		return err
	}
	if o.SchemaVersion == "" {
		return errors.New("schema_version must not be empty")
	}
	if o.CacheTTL < 0 {
		return errors.New("cache_ttl must not be negative")
	}
	return nil
}

// Settings returns the initial host settings implied by the options.
func (o Options) Settings() Settings {
	s := DefaultSettings()
	if o.SchemaVersion != "" {
		s.SchemaVersion = o.SchemaVersion
	}
	if v, err := snippet.ParseVerbosity(o.Verbosity); err == nil {
		s.Verbosity = v
	}
	return s
}
