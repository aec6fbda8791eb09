// Command pagepulse runs one ingestion cycle: read raw page-load records,
// validate and flatten them, aggregate per page URL, and upsert the results
// into the analytics store and the search index. Transient failures retry
// with exponential backoff; exhausted or fatal runs escalate for approval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pagepulse/pagepulse/pkg/pagepulse"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/config"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/sink"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/source"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pagepulse:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a YAML or JSON config file")
		structured = flag.String("structured", "", "comma-separated NDJSON files of structured records")
		semi       = flag.String("semi", "", "comma-separated NDJSON files of semi-structured records")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	// .env is optional; real environment variables win over file values.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := config.New(nil)
	if *configPath != "" {
		loaded, err := config.FromFile(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	settings, err := cfg.Settings()
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sources, err := buildSources(ctx, cfg, *structured, *semi)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no input sources: pass -structured/-semi or configure s3_bucket")
	}

	store, err := sink.NewAnalyticsStore(settings.AnalyticsPath)
	if err != nil {
		return fmt.Errorf("open analytics store: %w", err)
	}
	defer store.Close()
	index := sink.NewSearchIndex()

	pipe := pagepulse.NewPipeline(
		sources[0],
		sink.NewWriter(store, index).WithLogger(logger),
		pagepulse.WithPartitions(sources[1:]...),
		pagepulse.WithShards(settings.Shards),
		pagepulse.WithPipelineLogger(logger),
	)

	o := pagepulse.NewOrchestrator(pipe, settings,
		pagepulse.WithLogger(logger),
	)

	runResult, err := o.Trigger(ctx)
	if err != nil {
		return err
	}

	logger.Info("run finished",
		slog.String("run_id", runResult.ID),
		slog.String("outcome", string(runResult.Outcome)),
		slog.Int("attempts", len(runResult.History)),
	)

	rows, err := store.Count(ctx)
	if err == nil {
		logger.Info("analytics store state", slog.Int64("pages", rows))
	}
	return nil
}

// buildSources assembles one source per input partition. Local NDJSON files
// come from the -structured/-semi flags; S3 objects from config keys
// s3_bucket, s3_structured_keys, and s3_semi_keys.
func buildSources(ctx context.Context, cfg config.Config, structured, semi string) ([]source.Source, error) {
	var sources []source.Source

	for _, path := range splitPaths(structured) {
		sources = append(sources, source.File{Path: path, Kind: record.KindStructured})
	}
	for _, path := range splitPaths(semi) {
		sources = append(sources, source.File{Path: path, Kind: record.KindSemiStructured})
	}

	bucket := cfg.String("s3_bucket", "")
	if bucket == "" {
		return sources, nil
	}
	s3cfg := source.DefaultS3Config()
	s3cfg.Region = cfg.String("s3_region", s3cfg.Region)
	s3cfg.Endpoint = cfg.String("s3_endpoint", s3cfg.Endpoint)
	s3cfg.UsePathStyle = cfg.Bool("s3_path_style", s3cfg.UsePathStyle)

	if keys := cfg.StringSlice("s3_structured_keys", nil); len(keys) > 0 {
		src, err := source.NewS3(ctx, bucket, keys, record.KindStructured, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("s3 source: %w", err)
		}
		sources = append(sources, src)
	}
	if keys := cfg.StringSlice("s3_semi_keys", nil); len(keys) > 0 {
		src, err := source.NewS3(ctx, bucket, keys, record.KindSemiStructured, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("s3 source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func splitPaths(s string) []string {
	if s == "" {
		return nil
	}
	var paths []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
