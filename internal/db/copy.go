package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into table using the COPY protocol.
func CopyFrom(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := c.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// CopyRecords bulk-inserts records into table, converting each one with
// row. row must return values in columns order.
func CopyRecords[T any](ctx context.Context, c Copier, table string, columns []string, records []T, row func(T) []any) (int64, error) {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = row(r)
	}
	return CopyFrom(ctx, c, table, columns, rows)
}
