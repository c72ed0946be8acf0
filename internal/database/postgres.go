package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
)

// ApplicationName tags this service's connections in pg_stat_activity.
const ApplicationName = "exstem-quiz"

// ErrSchemaMissing is returned when the quiz tables have not been migrated.
var ErrSchemaMissing = errors.New("quiz schema missing, run `migrate up`")

// quizTables are the relations the quiz stores read and write.
var quizTables = []string{"quizzes", "questions", "quiz_attempts", "attempt_integrity_events"}

// NewPostgresPool connects to PostgreSQL and checks that the quiz schema is
// in place before any session can try to create an attempt.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxDBConns
	if _, ok := poolCfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	missing, err := missingTables(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if len(missing) > 0 {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrSchemaMissing, missing)
	}

	log.Info().
		Int32("max_conns", cfg.MaxDBConns).
		Msg("PostgreSQL connected")

	return pool, nil
}

func missingTables(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	var missing []string
	for _, table := range quizTables {
		var exists bool
		if err := pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	return missing, nil
}
