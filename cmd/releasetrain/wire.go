package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/drewdunne/releasetrain/internal/config"
	"github.com/drewdunne/releasetrain/internal/history"
	"github.com/drewdunne/releasetrain/internal/history/postgres"
	"github.com/drewdunne/releasetrain/internal/logging"
	"github.com/drewdunne/releasetrain/internal/provider"
	"github.com/drewdunne/releasetrain/internal/provider/github"
	"github.com/drewdunne/releasetrain/internal/train"
)

func newHost(cfg *config.Config) provider.Host {
	var opts []github.Option
	if cfg.Providers.GitHub.BaseURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.Providers.GitHub.BaseURL))
	}
	return github.New(cfg.Providers.GitHub.Token, opts...)
}

func newRunner(cfg *config.Config, host provider.Host, store history.Store) *train.Runner {
	return train.NewRunner(host, cfg,
		train.WithRecorder(historyRecorder(store)),
		train.WithRecorder(logRecorder(logging.NewWriter(cfg.Logging.Dir))),
	)
}

func openHistory(ctx context.Context, cfg *config.Config) (history.Store, error) {
	switch cfg.Storage.Type {
	case "", "memory":
		return history.NewMemoryStore(cfg.Storage.Limit), nil
	case "postgres":
		store, err := postgres.New(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func historyRecorder(store history.Store) train.Recorder {
	return func(ctx context.Context, report *train.Report) {
		if err := store.Save(ctx, history.FromReport(report)); err != nil {
			log.Printf("Failed to save run %s: %v", report.RunID, err)
		}
	}
}

func logRecorder(w *logging.Writer) train.Recorder {
	return func(ctx context.Context, report *train.Report) {
		owner, name, _ := strings.Cut(report.Repository, "/")
		path, err := w.Write(logging.LogEntry{
			RunID:     report.RunID,
			RepoOwner: owner,
			RepoName:  name,
			Version:   report.Version,
			Trigger:   report.Trigger,
			Timestamp: report.StartedAt,
		}, []byte(report.Log))
		if err != nil {
			log.Printf("Failed to write log for run %s: %v", report.RunID, err)
			return
		}
		log.Printf("Run %s log written to %s", report.RunID, path)
	}
}
