// Package db provides shared database helpers for bulk copy, upsert and
// staged table replacement.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of rows sent per COPY.
const DefaultBatchSize = 50000

// CopyFrom bulk-inserts rows into a table using PostgreSQL COPY protocol,
// batchSize rows at a time (0 = DefaultBatchSize).
func CopyFrom(ctx context.Context, c Copier, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ident := Identifier(table)
	var total int64
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		n, err := c.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows[i:end]))
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s (batch %d-%d)", table, i, end)
		}
		total += n
		zap.L().Debug("db: batch copied",
			zap.String("table", table),
			zap.Int("batch_start", i),
			zap.Int64("batch_rows", n),
		)
	}
	return total, nil
}
