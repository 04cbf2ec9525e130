package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/WillDent/guess-that-tune/go/internal/dbconfig"
	"github.com/WillDent/guess-that-tune/go/internal/models"
)

const defaultPath = "go/internal/assets/question_sets.json"

// SeedSet mirrors the JSON snapshot. Question order in the file is the
// play order.
type SeedSet struct {
	models.QuestionSet
	Owner models.User `json:"owner"`
}

func main() {
	_ = godotenv.Load()

	path := defaultPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var sets []SeedSet
	if err := json.Unmarshal(data, &sets); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert each set in its own transaction
	var (
		total     = len(sets)
		inserted  int
		skipped   int
		questions int
		errs      int
	)
	for _, s := range sets {
		n, err := seedSet(ctx, pool, s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error seeding set %s: %v\n", s.ID, err)
			errs++
			continue
		}
		if n == 0 {
			skipped++
			continue
		}
		inserted++
		questions += n
	}

	// 4) Print summary
	fmt.Printf(
		"Question sets seed complete: %d total, %d inserted, %d skipped, %d questions, %d errors\n",
		total, inserted, skipped, questions, errs,
	)
}

// seedSet returns how many questions were inserted; zero when the set
// already existed.
func seedSet(ctx context.Context, pool *pgxpool.Pool, s SeedSet) (int, error) {
	inserted := 0
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO users (id, username, display_name)
            VALUES ($1, $2, NULLIF($3, ''))
            ON CONFLICT (id) DO NOTHING
        `, s.Owner.ID, s.Owner.Username, s.Owner.Name()); err != nil {
			return fmt.Errorf("insert owner: %w", err)
		}

		tag, err := tx.Exec(ctx, `
            INSERT INTO question_sets (id, user_id, name)
            VALUES ($1, $2, $3)
            ON CONFLICT (id) DO NOTHING
        `, s.ID, s.Owner.ID, s.Name)
		if err != nil {
			return fmt.Errorf("insert set: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, q := range s.Questions {
			correct, err := json.Marshal(q.CorrectSong)
			if err != nil {
				return err
			}
			detractors, err := json.Marshal(q.Detractors)
			if err != nil {
				return err
			}
			batch.Queue(`
                INSERT INTO questions (id, question_set_id, correct_song, detractors, order_index)
                VALUES ($1, $2, $3, $4, $5)
            `, q.ID, s.ID, correct, detractors, i)
		}
		results := tx.SendBatch(ctx, batch)
		for range s.Questions {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("insert question: %w", err)
			}
			inserted++
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
