package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using PostgreSQL COPY protocol.
// This is the fastest way to insert large volumes of data.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	copySource := pgx.CopyFromRows(rows)
	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, copySource)
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}

// CopyFromBatched splits rows into fixed-size batches and COPYs each batch
// independently, invoking progress after each committed batch. A batch
// failure aborts the remainder; rows already copied stand.
func CopyFromBatched(ctx context.Context, pool Pool, table string, columns []string, rows [][]any, batchSize int, progress func(done, total int)) (int64, error) {
	if batchSize <= 0 {
		return 0, eris.Errorf("db: invalid batch size %d", batchSize)
	}

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		n, err := CopyFrom(ctx, pool, table, columns, rows[start:end])
		total += n
		if err != nil {
			return total, eris.Wrapf(err, "db: batch starting at row %d", start)
		}

		if progress != nil {
			progress(end, len(rows))
		}
	}

	return total, nil
}
