package config

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound indicates the repo config file doesn't exist.
var ErrConfigNotFound = errors.New("config not found")

// RepoConfigPath is where the repo-level config lives on the trunk.
const RepoConfigPath = ".releasetrain.yaml"

// RepoConfig represents repository-level configuration.
// Branch names can only be set in the server config.
type RepoConfig struct {
	ChangelogPath    string `yaml:"changelog_path"`
	ReadyLabel       string `yaml:"ready_label"`
	CategoryPrefix   string `yaml:"category_prefix"`
	DefaultCategory  string `yaml:"default_category"`
	PriorityCategory string `yaml:"priority_category"`
	PullRequestTitle string `yaml:"pull_request_title"`
}

// FileReader reads files from a repository.
type FileReader interface {
	ReadFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

// LoadRepoConfig loads the repo config from .releasetrain.yaml.
func LoadRepoConfig(ctx context.Context, reader FileReader, owner, repo, ref string) (*RepoConfig, error) {
	data, err := reader.ReadFile(ctx, owner, repo, RepoConfigPath, ref)
	if errors.Is(err, ErrConfigNotFound) {
		return &RepoConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading repo config: %w", err)
	}

	var cfg RepoConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing repo config: %w", err)
	}

	return &cfg, nil
}
