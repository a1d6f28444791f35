package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// StagingSuffix is appended to a table name to form its staging table.
const StagingSuffix = "__staging"

// Table is the full replacement content of one table.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// ReplaceTables stages every table and swaps them all in at once. Each
// staging table is created from the target's definition, filled by COPY,
// and renamed over the target in the same transaction, so readers see
// either every old table or every new one. Returns the rows written.
func ReplaceTables(ctx context.Context, pool Pool, tables []Table) (int64, error) {
	if len(tables) == 0 {
		return 0, nil
	}
	log := zap.L().With(zap.String("component", "db.swap"))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: swap: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var total int64
	for _, t := range tables {
		stage := t.Name + StagingSuffix
		create := fmt.Sprintf(
			"CREATE TABLE %s (LIKE %s INCLUDING ALL)",
			pgx.Identifier{stage}.Sanitize(), sanitizeTable(t.Name),
		)
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{stage}.Sanitize()); err != nil {
			return 0, eris.Wrapf(err, "db: swap: clear staging for %s", t.Name)
		}
		if _, err := tx.Exec(ctx, create); err != nil {
			return 0, eris.Wrapf(err, "db: swap: create staging for %s", t.Name)
		}
		n, err := CopyFrom(ctx, tx, stage, t.Columns, t.Rows, 0)
		if err != nil {
			return 0, eris.Wrapf(err, "db: swap: stage %s", t.Name)
		}
		total += n
	}

	for _, t := range tables {
		stage := pgx.Identifier{t.Name + StagingSuffix}.Sanitize()
		if _, err := tx.Exec(ctx, "DROP TABLE "+sanitizeTable(t.Name)); err != nil {
			return 0, eris.Wrapf(err, "db: swap: drop %s", t.Name)
		}
		rename := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", stage, pgx.Identifier{t.Name}.Sanitize())
		if _, err := tx.Exec(ctx, rename); err != nil {
			return 0, eris.Wrapf(err, "db: swap: rename %s", t.Name)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: swap: commit tx")
	}
	log.Info("tables replaced", zap.Int("tables", len(tables)), zap.Int64("rows", total))
	return total, nil
}
