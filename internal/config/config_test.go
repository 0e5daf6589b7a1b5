package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadConfig_ValidFile(t *testing.T) {
	configPath := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 8080

logging:
  dir: "/var/log/releasetrain"
  retention_days: 7

repository:
  owner: acme
  name: widgets
  trunk: main

train:
  ready_label: "ship-it"
  prepare_branch: "train/prepare"
  proposed_branch: "train/proposed"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Logging.RetentionDays != 7 {
		t.Errorf("Logging.RetentionDays = %d, want %d", cfg.Logging.RetentionDays, 7)
	}
	if cfg.Repository.FullName() != "acme/widgets" {
		t.Errorf("Repository.FullName() = %q, want %q", cfg.Repository.FullName(), "acme/widgets")
	}
	if cfg.Repository.Trunk != "main" {
		t.Errorf("Repository.Trunk = %q, want %q", cfg.Repository.Trunk, "main")
	}
	if cfg.Train.ReadyLabel != "ship-it" {
		t.Errorf("Train.ReadyLabel = %q, want %q", cfg.Train.ReadyLabel, "ship-it")
	}
	if cfg.Train.PrepareBranch != "train/prepare" {
		t.Errorf("Train.PrepareBranch = %q, want %q", cfg.Train.PrepareBranch, "train/prepare")
	}

	// Unset values keep their defaults
	if cfg.Train.DefaultCategory != "Others" {
		t.Errorf("Train.DefaultCategory = %q, want default %q", cfg.Train.DefaultCategory, "Others")
	}
	if cfg.Repository.ChangelogPath != "CHANGELOG.md" {
		t.Errorf("Repository.ChangelogPath = %q, want default", cfg.Repository.ChangelogPath)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Storage.Type = %q, want %q", cfg.Storage.Type, "memory")
	}
}

func TestLoadConfig_EnvSubstitution(t *testing.T) {
	t.Setenv("RELEASETRAIN_TEST_TOKEN", "secret-token")

	configPath := writeConfig(t, `
providers:
  github:
    token: "${RELEASETRAIN_TEST_TOKEN}"
repository:
  owner: acme
  name: widgets
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Providers.GitHub.Token != "secret-token" {
		t.Errorf("GitHub.Token = %q, want %q", cfg.Providers.GitHub.Token, "secret-token")
	}
	if cfg.Providers.GitHub.WebURL != "https://github.com" {
		t.Errorf("GitHub.WebURL = %q, want default", cfg.Providers.GitHub.WebURL)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file, got nil")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing repository",
			content: "server:\n  port: 7000\n",
			want:    "repository.owner",
		},
		{
			name:    "prepare equals proposed",
			content: "repository: {owner: a, name: b}\ntrain: {prepare_branch: x, proposed_branch: x}\n",
			want:    "prepare_branch",
		},
		{
			name:    "prepare equals trunk",
			content: "repository: {owner: a, name: b, trunk: main}\ntrain: {prepare_branch: main}\n",
			want:    "prepare_branch",
		},
		{
			name:    "malformed yaml",
			content: "server: [",
			want:    "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
