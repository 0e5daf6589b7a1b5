package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/drewdunne/releasetrain/internal/config"
	"github.com/drewdunne/releasetrain/internal/event"
	"github.com/drewdunne/releasetrain/internal/handler"
	"github.com/drewdunne/releasetrain/internal/logging"
	"github.com/drewdunne/releasetrain/internal/server"
	"github.com/drewdunne/releasetrain/internal/train"
)

var version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "run":
		runOnce(os.Args[2:])
	case "preview":
		runPreview(os.Args[2:])
	case "version":
		fmt.Printf("releasetrain v%s\n", version)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: releasetrain <command> [options] [version]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the HTTP server")
	fmt.Println("  run      Run the release train once")
	fmt.Println("  preview  Print the changelog the next run would produce")
	fmt.Println("  version  Print version information")
}

// parseFlags parses the flags shared by every command, loads the env file
// and the config, and returns the remaining arguments.
func parseFlags(name string, args []string) (*config.Config, []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to config file")
	envFile := fs.String("env-file", "", "Path to .env file (optional)")
	fs.Parse(args)

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Printf("Warning: could not load env file %s: %v", *envFile, err)
		}
	} else {
		// Try default locations
		godotenv.Load(".env")
		godotenv.Load("/etc/releasetrain/releasetrain.env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg, fs.Args()
}

func runServe(args []string) {
	cfg, _ := parseFlags("serve", args)
	ctx := context.Background()

	store, err := openHistory(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	defer store.Close()

	host := newHost(cfg)
	runner := newRunner(cfg, host, store)

	trains := handler.NewTrainHandler(runner)
	router := event.NewRouter(cfg, trains.Handle, train.NewFileReader(host))

	cleanup := logging.NewCleanupScheduler(logging.NewCleaner(cfg.Logging.Dir, cfg.Logging.RetentionDays), 24*time.Hour)
	cleanup.Start()
	defer cleanup.Stop()

	if cfg.Train.ScheduleMinutes > 0 {
		interval := time.Duration(cfg.Train.ScheduleMinutes) * time.Minute
		schedule := logging.NewScheduler(interval, false, func() {
			_, err := runner.Run(ctx, train.Request{Trigger: "schedule"})
			if err != nil && !errors.Is(err, train.ErrRunInProgress) {
				log.Printf("Scheduled run failed: %v", err)
			}
		})
		schedule.Start()
		defer schedule.Stop()
		log.Printf("Running the release train every %s", interval)
	}

	srv := server.New(cfg,
		server.WithRunner(runner),
		server.WithHistory(store),
		server.WithEventRouter(router),
	)

	log.Printf("Starting release train server for %s", cfg.Repository.FullName())
	if err := srv.ListenAndServeWithShutdown(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	// Events still inside their debounce window are run before exiting
	router.Flush()
	trains.Wait()
}

func runOnce(args []string) {
	cfg, rest := parseFlags("run", args)
	ctx := context.Background()

	store, err := openHistory(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	defer store.Close()

	runner := newRunner(cfg, newHost(cfg), store)
	report, err := runner.Run(ctx, train.Request{Version: firstArg(rest), Trigger: "cli"})
	if err != nil {
		log.Printf("Release train failed: %v", err)
		store.Close()
		os.Exit(1)
	}

	fmt.Printf("Run %s published %d proposals for %s", report.RunID, len(report.Merged()), report.Version)
	if report.PullRequest != nil {
		fmt.Printf(": %s", report.PullRequest.URL)
	}
	fmt.Println()
	for _, o := range report.Skipped() {
		fmt.Printf("  skipped #%d %s (%s)\n", o.Proposal.Number, o.Proposal.Title, o.Reason())
	}
}

func runPreview(args []string) {
	cfg, rest := parseFlags("preview", args)

	runner := train.NewRunner(newHost(cfg), cfg)
	preview, err := runner.Preview(context.Background(), firstArg(rest))
	if err != nil {
		log.Fatalf("Preview failed: %v", err)
	}
	fmt.Print(preview.Markdown)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
