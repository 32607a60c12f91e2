package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

const (
	DefaultTable = "datos"

	// columns with more distinct values than this get no sample list in the schema
	maxSampleValues = 20
)

// Row is one result row keyed by column name.
type Row map[string]any

// Table is a tabular sheet ready to be loaded. Cells are raw strings; empty
// cells become NULL.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Options tunes how the schema and keyword set are derived.
type Options struct {
	// ExtraKeywords are appended to the column-derived keyword set.
	ExtraKeywords []string
	// SkipSampleColumns never get sample values in the enriched schema.
	SkipSampleColumns []string
}

// Dataset is the read-only structured dataset. It is built once at startup
// and only queried afterwards, so concurrent readers need no coordination.
type Dataset struct {
	db       *sql.DB
	pin      *sql.Conn
	table    string
	columns  []string
	schema   string
	keywords []string
}

// New loads t into a private in-memory SQLite database.
func New(ctx context.Context, t Table, opts Options) (*Dataset, error) {
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("dataset: table has no columns")
	}
	name := t.Name
	if name == "" {
		name = DefaultTable
	}
	name = SanitizeColumn(name)

	// shared cache lets every pooled connection see the same memory database
	dsn := fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", name, uuid.NewString())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("dataset: open sqlite: %w", err)
	}
	// the memory database lives as long as one connection stays open
	pin, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dataset: pin connection: %w", err)
	}

	d := &Dataset{db: db, pin: pin, table: name}
	if err := d.load(ctx, t); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.buildSchema(ctx, opts.SkipSampleColumns); err != nil {
		d.Close()
		return nil, err
	}
	d.keywords = BuildKeywords(d.columns, opts.ExtraKeywords)

	logx.Info().
		Str("table", d.table).
		Int("rows", len(t.Rows)).
		Int("columns", len(d.columns)).
		Int("keywords", len(d.keywords)).
		Msg("dataset loaded")
	return d, nil
}

func (d *Dataset) load(ctx context.Context, t Table) error {
	d.columns = uniqueColumns(t.Columns)
	types := inferTypes(len(d.columns), t.Rows)

	defs := make([]string, len(d.columns))
	for i, c := range d.columns {
		defs[i] = fmt.Sprintf("%q %s", c, types[i])
	}
	ddl := fmt.Sprintf("CREATE TABLE %q (%s)", d.table, strings.Join(defs, ", "))
	if _, err := d.pin.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("dataset: create table: %w", err)
	}

	tx, err := d.pin.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dataset: begin load: %w", err)
	}
	defer tx.Rollback()

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(d.columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %q VALUES (%s)", d.table, marks))
	if err != nil {
		return fmt.Errorf("dataset: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range t.Rows {
		if isBlankRow(r) {
			continue
		}
		args := make([]any, len(d.columns))
		for j := range d.columns {
			args[j] = cellValue(r, j, types[j])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("dataset: insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dataset: commit load: %w", err)
	}
	return nil
}

func (d *Dataset) buildSchema(ctx context.Context, skip []string) error {
	var base string
	err := d.pin.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type='table' AND name = ?", d.table).Scan(&base)
	if err != nil {
		return fmt.Errorf("dataset: read schema: %w", err)
	}

	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[strings.ToLower(s)] = true
	}

	parts := []string{base, "\n-- Valores de ejemplo para columnas categóricas:"}
	for _, c := range d.columns {
		if skipped[c] {
			continue
		}
		values, err := d.distinct(ctx, c, maxSampleValues+1)
		if err != nil {
			return err
		}
		if len(values) > 1 && len(values) <= maxSampleValues {
			quoted := make([]string, len(values))
			for i, v := range values {
				quoted[i] = "'" + v + "'"
			}
			parts = append(parts, fmt.Sprintf("-- Columna '%s': [%s]", c, strings.Join(quoted, ", ")))
		}
	}
	d.schema = strings.Join(parts, "\n")
	return nil
}

// Schema returns the enriched table definition handed to the query generator.
func (d *Dataset) Schema(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.schema, nil
}

// Keywords returns the routing keyword set derived at load time.
func (d *Dataset) Keywords() []string {
	out := make([]string, len(d.keywords))
	copy(out, d.keywords)
	return out
}

// Columns returns the sanitized column names.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// Table returns the table name queries must target.
func (d *Dataset) Table() string {
	return d.table
}

// Execute runs a guarded read-only query. Statements rejected by Guard never
// reach the database.
func (d *Dataset) Execute(ctx context.Context, query string) ([]Row, error) {
	if err := Guard(query); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error al ejecutar la consulta: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("error al leer columnas: %w", err)
	}

	out := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("error al leer fila: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error al ejecutar la consulta: %w", err)
	}
	return out, nil
}

// distinct lists the non-null distinct values of column, sorted.
func (d *Dataset) distinct(ctx context.Context, column string, limit int) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT %q FROM %q WHERE %q IS NOT NULL ORDER BY 1", column, d.table, column)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("dataset: distinct %s: %w", column, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("dataset: distinct %s: %w", column, err)
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out = append(out, fmt.Sprint(v))
	}
	return out, rows.Err()
}

// Close releases the pinned connection, dropping the memory database.
func (d *Dataset) Close() error {
	if d.pin != nil {
		d.pin.Close()
	}
	return d.db.Close()
}

// BuildKeywords splits column names on '_' and keeps words longer than two
// runes, plus the extra words. The result is lowercased, unique and sorted.
func BuildKeywords(columns, extra []string) []string {
	set := map[string]struct{}{}
	for _, c := range columns {
		for _, w := range strings.Split(strings.ToLower(c), "_") {
			if utf8.RuneCountInString(w) > 2 {
				set[w] = struct{}{}
			}
		}
	}
	for _, w := range extra {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
