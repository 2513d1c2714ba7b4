// Command migrate is the storage maintenance tool: it initializes the MySQL
// archive schema, backfills recent Redis history into it, and enforces
// retention on both layers.
//
//	go run ./tools -mode init
//	go run ./tools -mode backfill -subscribers sub-1,sub-2
//	go run ./tools -mode trim
package main

import (
	"context"
	"flag"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/config"
	"github.com/Shiki0138/hotelbooking-sub004/internal/logging"
	"github.com/Shiki0138/hotelbooking-sub004/internal/storage"
)

var (
	configFile  = flag.String("config", "etc/app.yaml", "config file path")
	mode        = flag.String("mode", "init", "operation: init|backfill|trim")
	subscribers = flag.String("subscribers", "", "comma-separated subscriber ids for backfill")
	limit       = flag.Int64("limit", 1000, "records per subscriber for backfill")
	dryRun      = flag.Bool("dry-run", false, "preview only, no writes")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fallback := logging.New(logging.Config{})
		fallback.Fatal().Err(err).Msg("load configuration")
	}
	log := logging.New(cfg.Logging)

	if cfg.MySQL.DSN == "" {
		log.Fatal().Msg("mysql dsn is required")
	}

	// OpenMySQL runs the schema DDL, so init is done by connecting.
	archive, err := storage.OpenMySQL(cfg.MySQL.DSN, cfg.MaxKeepRecords, log)
	if err != nil {
		log.Fatal().Err(err).Msg("mysql connect")
	}
	defer archive.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch *mode {
	case "init":
		log.Info().Msg("archive schema ready")

	case "backfill":
		if cfg.Redis.Addr == "" {
			log.Fatal().Msg("redis addr is required for backfill")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		primary := storage.NewRedis(client, cfg.Namespace, cfg.MaxKeepRecords)
		backfill(ctx, log, primary, archive)

	case "trim":
		if *dryRun {
			log.Info().Msg("dry run, skipping trim")
			return
		}
		evicted, err := archive.Trim(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("archive trim")
		}
		log.Info().Int("evicted", evicted).Msg("archive trimmed")

	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}
}

// backfill copies each subscriber's recent primary history into the archive.
// SaveRecord upserts on request id, so re-running is safe.
func backfill(ctx context.Context, log zerolog.Logger, primary *storage.Redis, archive *storage.MySQL) {
	ids := strings.Split(*subscribers, ",")
	copied := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		records, err := primary.Query(ctx, id, *limit)
		if err != nil {
			log.Error().Err(err).Str("subscriber", id).Msg("primary query failed")
			continue
		}
		for _, rec := range records {
			if *dryRun {
				copied++
				continue
			}
			if err := archive.SaveRecord(ctx, rec); err != nil {
				log.Error().Err(err).Str("request", rec.RequestID).Msg("archive save failed")
				continue
			}
			copied++
		}
	}
	log.Info().Int("records", copied).Bool("dry_run", *dryRun).Msg("backfill complete")
}
