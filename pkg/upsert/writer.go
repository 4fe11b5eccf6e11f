package upsert

import (
	"context"
	"time"

	"github.com/ruslano69/dbcon/pkg/record"
)

// Upsert записывает одну запись: INSERT если ключа нет в кэше,
// UPDATE если он есть и задан Force, иначе Rejected без записи.
//
// Структурные ошибки (MissingKeyError, UnresolvedTypeError,
// InvalidColumnError, SchemaError) возвращаются всегда. Исчерпание попыток дает Dropped в мягком режиме
// и ExhaustedError в strict режиме. Ключ попадает в кэш только после
// успешной фиксации.
func (e *Engine) Upsert(ctx context.Context, rec *record.Record, opts Options) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return NoOutcome, ErrClosed
	}

	start := time.Now()
	key, outcome, err := e.upsert(ctx, rec, opts)
	e.auditUpsert(ctx, key, outcome, err, time.Since(start))
	return outcome, err
}

func (e *Engine) upsert(ctx context.Context, rec *record.Record, opts Options) (string, Outcome, error) {
	typed, err := typeRecord(e.prepare(rec), e.mapper, opts.KeepNulls)
	if err != nil {
		return "", NoOutcome, err
	}
	if e.cfg.Composite != nil {
		if typed, err = withComposite(typed, e.cfg.Composite, e.mapper); err != nil {
			return "", NoOutcome, err
		}
	}

	keyColumn := e.keyColumn()
	ki := typed.Index(keyColumn)
	if ki < 0 || typed[ki].Value == nil {
		return "", NoOutcome, &MissingKeyError{Column: keyColumn, Row: -1}
	}
	// ключ в той же форме, что хранится в таблице и в кэше
	key := record.KeyString(bindValue(typed[ki].Value, typed[ki].Class()))
	if key == "" {
		return "", NoOutcome, &MissingKeyError{Column: keyColumn, Row: -1}
	}

	if !e.cache.Exists() {
		if err := e.recon.EnsureTable(ctx, typed); err != nil {
			return key, NoOutcome, err
		}
	}

	if opts.Recache {
		if err := e.cache.RefreshKeys(ctx); err != nil {
			return key, NoOutcome, err
		}
	}

	exists := e.cache.HasKey(key)
	if exists && !opts.Force {
		e.log.Debug("key exists, skipping", "key", key)
		return key, Rejected, nil
	}

	if opts.NoCreateColumns {
		if missing := e.recon.Missing(typed); len(missing) > 0 {
			return key, NoOutcome, &SchemaError{Table: e.cfg.Table, Column: missing[0].Column, Err: ErrColumnMissing}
		}
	} else if err := e.recon.EnsureColumns(ctx, typed); err != nil {
		return key, NoOutcome, err
	}

	st := e.rowStatement(typed, key, exists)
	outcome := Inserted
	if exists {
		outcome = Updated
		e.log.Debug("updating", "key", key)
	} else {
		e.log.Debug("inserting", "key", key)
	}

	res, err := e.exec.Execute(ctx, st)
	if err != nil {
		return key, NoOutcome, err
	}
	if res == nil {
		return key, Dropped, nil
	}
	committed, err := e.exec.Commit(ctx)
	if err != nil {
		return key, NoOutcome, err
	}
	if !committed {
		return key, Dropped, nil
	}

	e.cache.AddKey(key)
	return key, outcome, nil
}

// rowStatement строит INSERT или UPDATE одной строки
func (e *Engine) rowStatement(typed TypedRecord, key string, update bool) Statement {
	columns := make([]string, len(typed))
	args := make([]any, len(typed))
	literals := make([]string, len(typed))
	for i, c := range typed {
		columns[i] = e.cache.column(c.Column)
		args[i] = bindValue(c.Value, c.Class())
		literals[i] = Literal(c.Value, c.Class())
	}

	var query string
	if update {
		kc := typed[typed.Index(e.keyColumn())]
		query = updateSQL(e.dialect, e.cfg.Table, columns, e.cache.column(kc.Column))
		args = append(args, bindValue(kc.Value, kc.Class()))
		literals = append(literals, Literal(kc.Value, kc.Class()))
	} else {
		query = insertSQL(e.dialect, e.cfg.Table, columns, 1)
	}

	return Statement{
		Query: query,
		Args:  args,
		letters: func() []DeadLetter {
			return []DeadLetter{{
				Table:     e.cfg.Table,
				Key:       key,
				Statement: inline(query, literals),
				Record:    typed.Record(),
			}}
		},
	}
}
