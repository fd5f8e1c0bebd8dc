package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/content"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/logger"
)

// seed-exam validates paper files (JSON or YAML) and caches them in Redis for the hub.
func main() {
	examID := flag.String("id", "", "Exam id (default: file name without extension)")
	dryRun := flag.Bool("dry-run", false, "Validate only")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Println("Usage: seed-exam [-id ID] [-dry-run] <paper.json|paper.yaml>...")
		os.Exit(2)
	}
	if *examID != "" && flag.NArg() > 1 {
		fmt.Println("Error: -id can only be used with a single file")
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, nil)
	ctx := context.Background()

	var papers *content.RedisProvider
	if !*dryRun {
		rdb, err := database.NewRedisClient(ctx, cfg, "seed-exam", log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		papers = content.NewRedisProvider(rdb)
	}

	failed := 0
	for _, path := range flag.Args() {
		id := *examID
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		exam, err := content.DecodeFile(path)
		if err == nil {
			err = content.Prepare(exam, id)
		}
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Invalid paper")
			failed++
			continue
		}

		if papers != nil {
			if err := papers.Publish(ctx, exam); err != nil {
				log.Error().Err(err).Str("exam_id", id).Msg("Failed to publish paper")
				failed++
				continue
			}
		}
		log.Info().
			Str("exam_id", id).
			Int("questions", len(exam.Questions)).
			Int("duration_minutes", exam.DurationMinutes).
			Bool("published", papers != nil).
			Msg("Paper OK")
	}

	if failed > 0 {
		os.Exit(1)
	}
}
