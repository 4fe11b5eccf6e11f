package upsert

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ruslano69/dbcon/pkg/adapters"
)

// Reconciler приводит схему таблицы к колонкам записи:
// создает таблицу и добавляет недостающие nullable колонки.
type Reconciler struct {
	conn  adapters.Conn
	exec  *Executor
	cache *SchemaCache
	table string
	log   *slog.Logger

	// onDDL вызывается после каждого зафиксированного DDL
	onDDL func(ctx context.Context, statement string)
}

// NewReconciler создает reconciler для таблицы кэша
func NewReconciler(conn adapters.Conn, exec *Executor, cache *SchemaCache, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{conn: conn, exec: exec, cache: cache, table: cache.table, log: log}
}

// EnsureTable создает таблицу из колонок записи (порядок сохраняется),
// если ее еще нет, и перечитывает схему
func (r *Reconciler) EnsureTable(ctx context.Context, typed TypedRecord) error {
	if r.cache.Exists() {
		return nil
	}
	if len(typed) == 0 {
		return &SchemaError{Table: r.table, Err: errors.New("no columns to create table from")}
	}
	for _, c := range typed {
		if c.Type == "" {
			return &UnresolvedTypeError{Column: c.Column, Tag: c.Tag}
		}
	}

	query := createTableSQL(r.conn.Dialect(), r.table, typed)
	if err := r.apply(ctx, query); err != nil {
		return &SchemaError{Table: r.table, Statement: query, Err: err}
	}
	r.log.Info("table created", "table", r.table, "columns", len(typed))

	if err := r.cache.Refresh(ctx); err != nil {
		return &SchemaError{Table: r.table, Err: err}
	}
	return nil
}

// EnsureColumns добавляет колонки, которых нет в кэше.
// Неразрешенный тип любой из них прерывает операцию до DDL. Ошибка одной
// колонки не мешает добавлению следующих; ошибки объединяются.
func (r *Reconciler) EnsureColumns(ctx context.Context, typed TypedRecord) error {
	missing := r.Missing(typed)
	if len(missing) == 0 {
		return nil
	}

	var errs []error
	for _, c := range missing {
		if c.Type == "" {
			errs = append(errs, &UnresolvedTypeError{Column: c.Column, Tag: c.Tag})
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	d := r.conn.Dialect()
	for _, c := range missing {
		query := d.AddColumnSQL(r.table, c.Column, c.Type)
		if err := r.apply(ctx, query); err != nil {
			r.log.Error("failed to add column", "table", r.table, "column", c.Column, "error", err)
			errs = append(errs, &SchemaError{Table: r.table, Column: c.Column, Statement: query, Err: err})
			continue
		}
		r.cache.AddColumn(c.Column)
		r.log.Info("column added", "table", r.table, "column", c.Column, "type", c.Type)
	}
	return errors.Join(errs...)
}

// Missing возвращает колонки записи, которых нет в таблице
func (r *Reconciler) Missing(typed TypedRecord) TypedRecord {
	var out TypedRecord
	seen := make(map[string]bool)
	for _, c := range typed {
		folded := adapters.FoldName(r.cache.dialect, c.Column)
		if r.cache.HasColumn(c.Column) || seen[folded] {
			continue
		}
		seen[folded] = true
		out = append(out, c)
	}
	return out
}

// apply выполняет и сразу фиксирует один DDL оператор
func (r *Reconciler) apply(ctx context.Context, query string) error {
	res, err := r.exec.Execute(ctx, Statement{Query: query})
	if err != nil {
		return err
	}
	if res == nil {
		return ErrNoResult
	}
	ok, err := r.exec.Commit(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoResult
	}
	if r.onDDL != nil {
		r.onDDL(ctx, query)
	}
	return nil
}
