package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/nif-edu/fees-api/pkg/config"
	"github.com/nif-edu/fees-api/pkg/database"
)

// Assigns a campus id to rows that predate campus scoping. Tenant rows are
// never moved between schools; the school flag only narrows the update.
func main() {
	var (
		schoolID string
		campusID string
		dryRun   bool
		timeout  time.Duration
	)

	flag.StringVar(&schoolID, "school", "", "School ID to backfill (required)")
	flag.StringVar(&campusID, "campus", "", "Campus ID to assign (required)")
	flag.BoolVar(&dryRun, "dry-run", false, "Report row counts without updating")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall run timeout")
	flag.Parse()

	if schoolID == "" || campusID == "" {
		log.Fatal("both -school and -campus are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	tables := []string{"students", "fee_records", "exam_results"}

	if dryRun {
		for _, table := range tables {
			var count int
			query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE school_id = $1 AND (campus_id IS NULL OR campus_id = '')`, table)
			if err := db.GetContext(ctx, &count, query, schoolID); err != nil {
				log.Fatalf("%s: count failed: %v", table, err)
			}
			log.Printf("%s: %d rows would be backfilled", table, count)
		}
		return
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		log.Fatalf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range tables {
		query := fmt.Sprintf(`UPDATE %s SET campus_id = $1 WHERE school_id = $2 AND (campus_id IS NULL OR campus_id = '')`, table)
		result, err := tx.ExecContext(ctx, query, campusID, schoolID)
		if err != nil {
			log.Fatalf("%s: update failed: %v", table, err)
		}
		affected, _ := result.RowsAffected()
		log.Printf("%s: %d rows backfilled", table, affected)
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("commit failed: %v", err)
	}
	log.Printf("backfill complete for school %s -> campus %s", schoolID, campusID)
}
