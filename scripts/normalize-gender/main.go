package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/nif-edu/fees-api/pkg/config"
	"github.com/nif-edu/fees-api/pkg/database"
)

// Canonical gender codes are M, F and O. Legacy imports carried free-form
// values (male, Female, f, ...); this maps them in place.
var genderMappings = map[string]string{
	"m":      "M",
	"male":   "M",
	"f":      "F",
	"female": "F",
	"o":      "O",
	"other":  "O",
}

func main() {
	var (
		schoolID string
		dryRun   bool
		timeout  time.Duration
	)

	flag.StringVar(&schoolID, "school", "", "Limit to one school (default: all)")
	flag.BoolVar(&dryRun, "dry-run", false, "Report row counts without updating")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall run timeout")
	flag.Parse()

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

	total := int64(0)
	for raw, canonical := range genderMappings {
		if raw == canonical {
			continue
		}

		args := []interface{}{canonical, raw}
		query := `UPDATE students SET gender = $1 WHERE LOWER(gender) = $2 AND gender <> $1`
		countQuery := `SELECT COUNT(*) FROM students WHERE LOWER(gender) = $2 AND gender <> $1`
		if schoolID != "" {
			query += ` AND school_id = $3`
			countQuery += ` AND school_id = $3`
			args = append(args, schoolID)
		}

		if dryRun {
			var count int64
			if err := db.GetContext(ctx, &count, countQuery, args...); err != nil {
				log.Fatalf("count failed for %q: %v", raw, err)
			}
			total += count
			continue
		}

		result, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			log.Fatalf("update failed for %q: %v", raw, err)
		}
		affected, _ := result.RowsAffected()
		total += affected
	}

	if dryRun {
		log.Printf("%d rows would be normalized", total)
		return
	}
	log.Printf("%d rows normalized", total)
}
