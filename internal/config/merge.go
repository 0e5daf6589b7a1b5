package config

// MergedConfig represents the settings in effect for one run.
type MergedConfig struct {
	Repository RepositoryConfig
	Train      TrainConfig
}

// MergeConfigs merges server config with repo config.
// Repo config values take precedence over server defaults.
func MergeConfigs(server *Config, repo *RepoConfig) *MergedConfig {
	merged := &MergedConfig{
		Repository: server.Repository,
		Train:      server.Train,
	}

	merged.Repository.ChangelogPath = coalesce(repo.ChangelogPath, server.Repository.ChangelogPath)

	merged.Train.ReadyLabel = coalesce(repo.ReadyLabel, server.Train.ReadyLabel)
	merged.Train.CategoryPrefix = coalesce(repo.CategoryPrefix, server.Train.CategoryPrefix)
	merged.Train.DefaultCategory = coalesce(repo.DefaultCategory, server.Train.DefaultCategory)
	merged.Train.PriorityCategory = coalesce(repo.PriorityCategory, server.Train.PriorityCategory)
	merged.Train.PullRequestTitle = coalesce(repo.PullRequestTitle, server.Train.PullRequestTitle)

	return merged
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
