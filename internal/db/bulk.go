package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpdateConfig defines a bulk update keyed on one or more columns.
type UpdateConfig struct {
	Table   string   // target table
	Columns []string // all columns in each row, keys included
	KeyCols []string // columns that identify the target row
}

// BulkUpdate writes rows through a temp table:
// 1. CREATE TEMP TABLE with the column types of the target
// 2. COPY rows into it
// 3. UPDATE target SET ... FROM temp WHERE keys match
// It returns the number of target rows updated.
func BulkUpdate(ctx context.Context, pool Pool, cfg UpdateConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.KeyCols) == 0 {
		return 0, eris.New("db: bulk update: no key columns specified")
	}

	keys := make(map[string]bool, len(cfg.KeyCols))
	for _, k := range cfg.KeyCols {
		keys[k] = true
	}
	var setClauses, where []string
	for _, c := range cfg.Columns {
		col := pgx.Identifier{c}.Sanitize()
		if keys[c] {
			where = append(where, fmt.Sprintf("t.%s = s.%s", col, col))
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = s.%s", col, col))
	}
	if len(setClauses) == 0 {
		return 0, eris.New("db: bulk update: no columns to update")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: bulk update: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempName := pgx.Identifier{"_tmp_update_" + strings.ReplaceAll(cfg.Table, ".", "_")}
	tempTable := tempName.Sanitize()
	target := sanitizeTable(cfg.Table)

	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WITH NO DATA",
		tempTable, quoteAndJoin(cfg.Columns), target)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: bulk update: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, tempName, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: bulk update: COPY into temp table for %s", cfg.Table)
	}

	updateSQL := fmt.Sprintf("UPDATE %s AS t SET %s FROM %s AS s WHERE %s",
		target,
		strings.Join(setClauses, ", "),
		tempTable,
		strings.Join(where, " AND "),
	)
	tag, err := tx.Exec(ctx, updateSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: bulk update: UPDATE FROM for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: bulk update: commit tx")
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable handles schema-qualified table names like "crm.contacts".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
