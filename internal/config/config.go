package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Repository RepositoryConfig `yaml:"repository"`
	Train      TrainConfig      `yaml:"train"`
	Events     EventsConfig     `yaml:"events"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig holds run log settings.
type LoggingConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// ProvidersConfig holds git provider configurations.
type ProvidersConfig struct {
	GitHub GitHubConfig `yaml:"github"`
}

// GitHubConfig holds GitHub-specific settings.
type GitHubConfig struct {
	Token         string `yaml:"token"`
	BaseURL       string `yaml:"base_url"` // API endpoint, empty for github.com
	WebURL        string `yaml:"web_url"`  // used for profile and pull request links
	WebhookSecret string `yaml:"webhook_secret"`
}

// RepositoryConfig identifies the repository the train runs against.
type RepositoryConfig struct {
	Owner         string `yaml:"owner"`
	Name          string `yaml:"name"`
	Trunk         string `yaml:"trunk"`
	ChangelogPath string `yaml:"changelog_path"`
}

// FullName returns owner/name.
func (r RepositoryConfig) FullName() string {
	return r.Owner + "/" + r.Name
}

// TrainConfig controls how proposals are selected, merged and published.
type TrainConfig struct {
	ReadyLabel       string `yaml:"ready_label"`
	CategoryPrefix   string `yaml:"category_prefix"`
	DefaultCategory  string `yaml:"default_category"`
	PriorityCategory string `yaml:"priority_category"`
	PrepareBranch    string `yaml:"prepare_branch"`
	ProposedBranch   string `yaml:"proposed_branch"`
	DefaultVersion   string `yaml:"default_version"`
	PullRequestTitle string `yaml:"pull_request_title"` // "{version}" is substituted
	ScheduleMinutes  int    `yaml:"schedule_minutes"`
	DebounceSeconds  int    `yaml:"debounce_seconds"`
}

// EventsConfig controls which webhook events trigger a run.
type EventsConfig struct {
	ProposalLabeled   bool `yaml:"proposal_labeled"`
	ProposalUnlabeled bool `yaml:"proposal_unlabeled"`
	TrunkPushed       bool `yaml:"trunk_pushed"`
}

// StorageConfig selects where run history is kept.
type StorageConfig struct {
	Type     string         `yaml:"type"` // memory, postgres
	Limit    int            `yaml:"limit"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 7000,
		},
		Logging: LoggingConfig{
			Dir:           "/var/log/releasetrain",
			RetentionDays: 30,
		},
		Providers: ProvidersConfig{
			GitHub: GitHubConfig{
				WebURL: "https://github.com",
			},
		},
		Repository: RepositoryConfig{
			Trunk:         "master",
			ChangelogPath: "CHANGELOG.md",
		},
		Train: TrainConfig{
			ReadyLabel:       "c:ready",
			CategoryPrefix:   "category:",
			DefaultCategory:  "Others",
			PriorityCategory: "New stuff",
			PrepareBranch:    "prepare",
			ProposedBranch:   "proposed",
			DefaultVersion:   "Unreleased",
			PullRequestTitle: "Release {version}",
			DebounceSeconds:  10,
		},
		Storage: StorageConfig{
			Type:  "memory",
			Limit: 100,
		},
	}
}

// Load reads and parses the config file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Substitute environment variables
	data = envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings a run cannot do without.
func (c *Config) Validate() error {
	switch {
	case c.Repository.Owner == "" || c.Repository.Name == "":
		return fmt.Errorf("invalid config: repository.owner and repository.name are required")
	case c.Train.PrepareBranch == "" || c.Train.ProposedBranch == "":
		return fmt.Errorf("invalid config: train.prepare_branch and train.proposed_branch are required")
	case c.Train.PrepareBranch == c.Train.ProposedBranch || c.Train.PrepareBranch == c.Repository.Trunk:
		return fmt.Errorf("invalid config: train.prepare_branch must differ from the trunk and proposed branches")
	}
	return nil
}
