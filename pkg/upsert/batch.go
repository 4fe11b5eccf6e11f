package upsert

import (
	"context"
	"sort"
	"time"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/record"
)

// FlushReport - итог одного Flush
type FlushReport struct {
	Table    string        `json:"table"`
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Dropped  int           `json:"dropped"`
	Duration time.Duration `json:"duration"`
}

// Append добавляет запись в буфер пакета без записи в БД.
// При первой записи в отсутствующую таблицу таблица создается по ней.
func (e *Engine) Append(ctx context.Context, rec *record.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	flat := e.prepare(rec)
	if len(e.buffer) == 0 && !e.cache.Exists() {
		typed, err := typeRecord(flat, e.mapper, false)
		if err != nil {
			return err
		}
		if e.cfg.Composite != nil {
			if typed, err = withComposite(typed, e.cfg.Composite, e.mapper); err != nil {
				return err
			}
		}
		if err := e.recon.EnsureTable(ctx, typed); err != nil {
			return err
		}
	}

	e.buffer = append(e.buffer, flat)
	return nil
}

// Pending - количество записей в буфере
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

// Discard очищает буфер и возвращает количество отброшенных записей
func (e *Engine) Discard() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.buffer)
	e.buffer = nil
	return n
}

// batchRow - строка буфера, готовая к отправке
type batchRow struct {
	key    string
	values []any
}

// Flush записывает буфер: новые ключи одним многострочным INSERT,
// существующие одним UPDATE по ключу. Все строки буфера должны иметь
// одинаковый набор колонок.
//
// Структурная ошибка оставляет буфер нетронутым. В strict режиме буфер
// сохраняется и при исчерпании попыток, в мягком режиме очищается, а
// несохраненные строки уходят в DLQ.
func (e *Engine) Flush(ctx context.Context) (FlushReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return FlushReport{}, ErrClosed
	}

	start := time.Now()
	report, err := e.flush(ctx)
	report.Table = e.cfg.Table
	report.Duration = time.Since(start)
	if len(e.buffer) > 0 || report.Inserted+report.Updated+report.Dropped > 0 || err != nil {
		e.auditFlush(ctx, report, err)
	}
	return report, err
}

func (e *Engine) flush(ctx context.Context) (FlushReport, error) {
	var report FlushReport
	if len(e.buffer) == 0 {
		return report, nil
	}

	header, rows, err := e.stage()
	if err != nil {
		return report, err
	}

	if !e.cache.Exists() {
		if err := e.recon.EnsureTable(ctx, header); err != nil {
			return report, err
		}
	}
	if e.cfg.BatchRecache {
		if err := e.cache.RefreshKeys(ctx); err != nil {
			return report, err
		}
	}
	if err := e.recon.EnsureColumns(ctx, header); err != nil {
		return report, err
	}

	var inserts, updates []batchRow
	for _, row := range rows {
		if e.cache.HasKey(row.key) {
			updates = append(updates, row)
		} else {
			inserts = append(inserts, row)
		}
	}

	columns := make([]string, len(header))
	for i, c := range header {
		columns[i] = e.cache.column(c.Column)
	}
	keyColumn := e.cache.column(e.keyColumn())

	if len(inserts) > 0 {
		ok, err := e.flushInserts(ctx, header, columns, inserts)
		if err != nil {
			return report, err
		}
		if ok {
			report.Inserted = len(inserts)
		} else {
			report.Dropped += len(inserts)
		}
	}

	if len(updates) > 0 {
		ok, err := e.flushUpdates(ctx, header, columns, keyColumn, updates)
		if err != nil {
			return report, err
		}
		if ok {
			report.Updated = len(updates)
		} else {
			report.Dropped += len(updates)
		}
	}

	e.buffer = nil
	e.log.Info("batch flushed", "inserted", report.Inserted, "updated", report.Updated, "dropped", report.Dropped)
	return report, nil
}

// stage проверяет форму буфера, объединяет теги колонок и строит строки
// параметров. Колонки, пустые во всем буфере, не отправляются. Повтор
// ключа в буфере схлопывается: остается последняя строка.
func (e *Engine) stage() (TypedRecord, []batchRow, error) {
	first := e.buffer[0]
	columns := first.Keys()

	for i, rec := range e.buffer[1:] {
		if err := sameShape(columns, rec); err != nil {
			err.Row = i + 1
			return nil, nil, err
		}
	}

	tags := make(map[string]record.Tag, len(columns))
	for _, rec := range e.buffer {
		rec.Range(func(column string, v record.Value) bool {
			tags[column] = record.MergeTags(tags[column], v.Tag())
			return true
		})
	}

	var header TypedRecord
	for _, column := range columns {
		tag := tags[column]
		if tag == record.TagUnknown {
			continue
		}
		if err := validateColumn(column); err != nil {
			return nil, nil, err
		}
		sqlType, _ := e.mapper.Map(column, tag)
		header = append(header, TypedColumn{Column: column, Type: sqlType, Tag: tag})
	}

	composite := e.cfg.Composite
	if composite != nil && header.Index(composite.Column) < 0 {
		sqlType, _ := e.mapper.Map(composite.Column, record.TagText)
		header = append(header, TypedColumn{Column: composite.Column, Type: sqlType, Tag: record.TagText})
	}

	keyColumn := e.keyColumn()
	ki := header.Index(keyColumn)
	if ki < 0 {
		return nil, nil, &MissingKeyError{Column: keyColumn, Row: 0}
	}

	byKey := make(map[string]int)
	var rows []batchRow
	for r, rec := range e.buffer {
		values := make([]any, len(header))
		for i, c := range header {
			v, _ := rec.Get(c.Column)
			values[i] = bindValue(v.Interface(), c.Class())
		}

		if composite != nil {
			joined, err := composite.Join(func(field string) (any, bool) {
				v, ok := rec.Get(field)
				return v.Interface(), ok
			})
			if err != nil {
				if mk, ok := err.(*MissingKeyError); ok {
					mk.Row = r
				}
				return nil, nil, err
			}
			values[ki] = joined
		}

		key := record.KeyString(values[ki])
		if key == "" {
			return nil, nil, &MissingKeyError{Column: keyColumn, Row: r}
		}

		if pos, ok := byKey[key]; ok {
			rows[pos].values = values
			continue
		}
		byKey[key] = len(rows)
		rows = append(rows, batchRow{key: key, values: values})
	}

	return header, rows, nil
}

// flushInserts - многострочный INSERT, разбитый по пределу параметров
func (e *Engine) flushInserts(ctx context.Context, header TypedRecord, columns []string, rows []batchRow) (bool, error) {
	per := rowsPerStatement(len(columns), e.dialect.MaxParams())
	for from := 0; from < len(rows); from += per {
		to := from + per
		if to > len(rows) {
			to = len(rows)
		}
		chunk := rows[from:to]

		query := insertSQL(e.dialect, e.cfg.Table, columns, len(chunk))
		args := make([]any, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			args = append(args, row.values...)
		}

		st := Statement{Query: query, Args: args, letters: e.batchLetters(header, chunk, false)}
		res, err := e.exec.Execute(ctx, st)
		if err != nil {
			return false, err
		}
		if res == nil {
			// Откат уже отбросил предыдущие части; они тоже в DLQ
			e.deadLetterRows(header, rows[:from], false)
			return false, nil
		}
	}

	ok, err := e.exec.Commit(ctx)
	if err != nil || !ok {
		return false, err
	}
	for _, row := range rows {
		e.cache.AddKey(row.key)
	}
	return true, nil
}

// flushUpdates - UPDATE по ключу для каждой строки; ключ передается дважды
func (e *Engine) flushUpdates(ctx context.Context, header TypedRecord, columns []string, keyColumn string, rows []batchRow) (bool, error) {
	ki := header.Index(e.keyColumn())
	params := make([][]any, len(rows))
	for i, row := range rows {
		params[i] = append(append(make([]any, 0, len(row.values)+1), row.values...), row.values[ki])
	}

	st := Statement{
		Query:   updateSQL(e.dialect, e.cfg.Table, columns, keyColumn),
		Rows:    params,
		letters: e.batchLetters(header, rows, true),
	}
	res, err := e.exec.Execute(ctx, st)
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, nil
	}

	ok, err := e.exec.Commit(ctx)
	if err != nil || !ok {
		return false, err
	}
	for _, row := range rows {
		e.cache.AddKey(row.key)
	}
	return true, nil
}

// batchLetters строит записи DLQ для строк пакета
func (e *Engine) batchLetters(header TypedRecord, rows []batchRow, update bool) func() []DeadLetter {
	return func() []DeadLetter {
		columns := header.Columns()
		letters := make([]DeadLetter, len(rows))
		for i, row := range rows {
			rec := record.New()
			literals := make([]string, len(header))
			for j, c := range header {
				rec.SetScalar(c.Column, row.values[j])
				literals[j] = Literal(row.values[j], c.Class())
			}

			var query string
			if update {
				ki := header.Index(e.keyColumn())
				query = updateSQL(e.dialect, e.cfg.Table, columns, e.keyColumn())
				literals = append(literals, literals[ki])
			} else {
				query = insertSQL(e.dialect, e.cfg.Table, columns, 1)
			}

			letters[i] = DeadLetter{
				Table:     e.cfg.Table,
				Key:       row.key,
				Statement: inline(query, literals),
				Record:    rec,
			}
		}
		return letters
	}
}

// deadLetterRows отправляет в DLQ строки, потерянные при откате
func (e *Engine) deadLetterRows(header TypedRecord, rows []batchRow, update bool) {
	if len(rows) == 0 {
		return
	}
	e.exec.deadLetter(StatementFailure, 0, ErrNoResult, e.batchLetters(header, rows, update)())
}

// sameShape сравнивает набор колонок записи с эталонным
func sameShape(columns []string, rec *record.Record) *ShapeMismatchError {
	want := make(map[string]bool, len(columns))
	for _, c := range columns {
		want[c] = true
	}

	var missing, extra []string
	got := make(map[string]bool, rec.Len())
	for _, c := range rec.Keys() {
		got[c] = true
		if !want[c] {
			extra = append(extra, c)
		}
	}
	for _, c := range columns {
		if !got[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return &ShapeMismatchError{Missing: missing, Extra: extra}
}

// validateColumn проверяет имя колонки пакета
func validateColumn(column string) error {
	if err := adapters.ValidateIdentifier(column); err != nil {
		return &InvalidColumnError{Column: column, Err: err}
	}
	return nil
}
