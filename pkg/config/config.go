package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ADDONBUMP"

// Config is the single configuration value threaded through a run.
type Config struct {
	Repo     RepoConfig
	Store    StoreConfig
	Registry RegistryConfig
	Patch    PatchConfig
	Notify   NotifyConfig
	Daemon   DaemonConfig
	DryRun   bool
	Verbose  bool
	Only     []string
}

type RepoConfig struct {
	Path        string
	URL         string
	Branch      string
	Username    string
	Token       string
	AuthorName  string
	AuthorEmail string
	Timeout     time.Duration
}

type StoreConfig struct {
	Ignore []string
}

type RegistryConfig struct {
	HubURL   string
	PageSize int
	Workers  int
	Timeout  time.Duration
}

type PatchConfig struct {
	Changelog bool
}

type NotifyConfig struct {
	Enabled  bool
	Kind     string
	Endpoint string
	Token    string
	Priority int
	Timeout  time.Duration
	SkipIdle bool
}

type DaemonConfig struct {
	Listen   string
	Schedule string
}

// SetDefaults registers every known key so that env overrides apply even
// when no config file is present.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("repo.path", "./addons")
	v.SetDefault("repo.url", "")
	v.SetDefault("repo.branch", "main")
	v.SetDefault("repo.username", "x-access-token")
	v.SetDefault("repo.token", "")
	v.SetDefault("repo.author_name", "addonbump")
	v.SetDefault("repo.author_email", "addonbump@users.noreply.github.com")
	v.SetDefault("repo.timeout", 2*time.Minute)
	v.SetDefault("store.ignore", []string{})
	v.SetDefault("registry.hub_url", "https://hub.docker.com")
	v.SetDefault("registry.page_size", 100)
	v.SetDefault("registry.workers", 4)
	v.SetDefault("registry.timeout", 30*time.Second)
	v.SetDefault("patch.changelog", true)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.kind", "gotify")
	v.SetDefault("notify.endpoint", "")
	v.SetDefault("notify.token", "")
	v.SetDefault("notify.priority", 5)
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.skip_idle", false)
	v.SetDefault("dry_run", false)
	v.SetDefault("verbose", false)
	v.SetDefault("only", []string{})
	v.SetDefault("daemon.listen", ":8080")
	v.SetDefault("daemon.schedule", "@every 6h")
}

// New returns a viper instance wired for addonbump: defaults, environment
// and, when configFile is empty, the usual search paths.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("addonbump")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/addonbump")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Repo: RepoConfig{
			Path:        v.GetString("repo.path"),
			URL:         v.GetString("repo.url"),
			Branch:      v.GetString("repo.branch"),
			Username:    v.GetString("repo.username"),
			Token:       v.GetString("repo.token"),
			AuthorName:  v.GetString("repo.author_name"),
			AuthorEmail: v.GetString("repo.author_email"),
			Timeout:     v.GetDuration("repo.timeout"),
		},
		Store: StoreConfig{
			Ignore: v.GetStringSlice("store.ignore"),
		},
		Registry: RegistryConfig{
			HubURL:   strings.TrimSuffix(v.GetString("registry.hub_url"), "/"),
			PageSize: v.GetInt("registry.page_size"),
			Workers:  v.GetInt("registry.workers"),
			Timeout:  v.GetDuration("registry.timeout"),
		},
		Patch: PatchConfig{
			Changelog: v.GetBool("patch.changelog"),
		},
		Notify: NotifyConfig{
			Enabled:  v.GetBool("notify.enabled"),
			Kind:     strings.ToLower(v.GetString("notify.kind")),
			Endpoint: v.GetString("notify.endpoint"),
			Token:    v.GetString("notify.token"),
			Priority: v.GetInt("notify.priority"),
			Timeout:  v.GetDuration("notify.timeout"),
			SkipIdle: v.GetBool("notify.skip_idle"),
		},
		Daemon: DaemonConfig{
			Listen:   v.GetString("daemon.listen"),
			Schedule: v.GetString("daemon.schedule"),
		},
		DryRun:  v.GetBool("dry_run"),
		Verbose: v.GetBool("verbose"),
		Only:    v.GetStringSlice("only"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the module relies on.
func (c *Config) Validate() error {
	if c.Repo.Path == "" {
		return fmt.Errorf("repo.path is required")
	}
	if c.Repo.URL != "" && c.Repo.Branch == "" {
		return fmt.Errorf("repo.branch is required when repo.url is set")
	}
	if c.Registry.PageSize <= 0 || c.Registry.PageSize > 1000 {
		return fmt.Errorf("registry.page_size must be between 1 and 1000, got %d", c.Registry.PageSize)
	}
	if c.Registry.Workers <= 0 {
		return fmt.Errorf("registry.workers must be positive, got %d", c.Registry.Workers)
	}
	if c.Registry.Timeout <= 0 {
		return fmt.Errorf("registry.timeout must be positive")
	}
	switch c.Notify.Kind {
	case "gotify", "discord":
	default:
		return fmt.Errorf("unsupported notify.kind %q", c.Notify.Kind)
	}
	return nil
}
