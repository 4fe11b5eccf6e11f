// Package ingest - циклы загрузки записей в движок upsert: из файлового
// источника (Load) и из очереди сообщений (Consume).
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ruslano69/dbcon/pkg/processors"
	"github.com/ruslano69/dbcon/pkg/record"
	"github.com/ruslano69/dbcon/pkg/source"
	"github.com/ruslano69/dbcon/pkg/upsert"
)

// Sink - приемник записей; *upsert.Engine удовлетворяет интерфейсу
type Sink interface {
	Upsert(ctx context.Context, rec *record.Record, opts upsert.Options) (upsert.Outcome, error)
	Append(ctx context.Context, rec *record.Record) error
	Flush(ctx context.Context) (upsert.FlushReport, error)
	Pending() int
	Discard() int
}

// Publisher публикует итог прогона (см. resultlog)
type Publisher interface {
	Publish(ctx context.Context, name string, stats Stats, runErr error) error
}

// Options - параметры загрузки
type Options struct {
	// BatchSize - размер пакета Append/Flush; 0 - по одной записи через Upsert
	BatchSize int

	// Upsert - параметры Upsert в режиме по одной записи
	Upsert upsert.Options

	// Processor - обработка записи перед Upsert/Append (nil - без обработки)
	Processor processors.Processor

	// StopOnError - прекратить загрузку на первой структурной ошибке записи
	StopOnError bool

	// MaxMessages - Consume завершается после стольких сообщений (0 - без предела)
	MaxMessages int

	Logger *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Stats - итог прогона
type Stats struct {
	StartTime time.Time     `json:"started_at"`
	EndTime   time.Time     `json:"finished_at"`
	Duration  time.Duration `json:"duration"`

	Records  int `json:"records"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Rejected int `json:"rejected"`
	Dropped  int `json:"dropped"`
	Failed   int `json:"failed"`

	Messages int `json:"messages,omitempty"`
	Flushes  int `json:"flushes,omitempty"`
}

func (s *Stats) begin() {
	s.StartTime = time.Now()
}

func (s *Stats) end() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

func (s *Stats) count(outcome upsert.Outcome) {
	switch outcome {
	case upsert.Inserted:
		s.Inserted++
	case upsert.Updated:
		s.Updated++
	case upsert.Rejected:
		s.Rejected++
	case upsert.Dropped:
		s.Dropped++
	}
}

func (s *Stats) add(r upsert.FlushReport) {
	s.Inserted += r.Inserted
	s.Updated += r.Updated
	s.Dropped += r.Dropped
	s.Flushes++
}

// Written - строки, записанные в таблицу
func (s Stats) Written() int {
	return s.Inserted + s.Updated
}

// IsRecordError - ошибка относится к самой записи и повтор ее не исправит.
// SchemaError - ошибка записи только с ErrColumnMissing; сбой DDL
// относится к приемнику.
func IsRecordError(err error) bool {
	var (
		mk *upsert.MissingKeyError
		ut *upsert.UnresolvedTypeError
		ic *upsert.InvalidColumnError
		sm *upsert.ShapeMismatchError
		ve *processors.ValidationError
	)
	return errors.As(err, &mk) || errors.As(err, &ut) || errors.As(err, &ic) ||
		errors.As(err, &sm) || errors.As(err, &ve) || errors.Is(err, upsert.ErrColumnMissing)
}

// process применяет Options.Processor
func (o *Options) process(ctx context.Context, rec *record.Record) (*record.Record, error) {
	if o.Processor == nil {
		return rec, nil
	}
	return o.Processor.Process(ctx, rec)
}

// Load читает все записи источника и передает их в приемник.
// В пакетном режиме при расхождении формы пакета или ошибке одной из его
// записей (без StopOnError) записи пакета пишутся по одной с Force.
func Load(ctx context.Context, r source.Reader, sink Sink, opts Options) (stats Stats, err error) {
	l := &loader{sink: sink, opts: opts, log: opts.logger()}
	l.stats.begin()
	defer func() {
		l.stats.end()
		stats = l.stats
	}()

	for {
		rec, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return l.stats, fmt.Errorf("read record %d: %w", l.stats.Records+1, err)
		}
		l.stats.Records++

		if err := l.put(ctx, rec); err != nil {
			return l.stats, err
		}
	}

	if err := l.flush(ctx); err != nil {
		return l.stats, err
	}
	l.log.Info("load finished",
		"records", l.stats.Records,
		"inserted", l.stats.Inserted,
		"updated", l.stats.Updated,
		"rejected", l.stats.Rejected,
		"dropped", l.stats.Dropped,
		"failed", l.stats.Failed)
	return l.stats, nil
}

type loader struct {
	sink    Sink
	opts    Options
	log     *slog.Logger
	stats   Stats
	batched []*record.Record
}

func (l *loader) put(ctx context.Context, rec *record.Record) error {
	rec, err := l.opts.process(ctx, rec)
	if err != nil {
		return l.recordError(l.stats.Records, err)
	}

	if l.opts.BatchSize <= 0 {
		outcome, err := l.sink.Upsert(ctx, rec, l.opts.Upsert)
		l.stats.count(outcome)
		return l.recordError(l.stats.Records, err)
	}

	if err := l.sink.Append(ctx, rec); err != nil {
		return l.recordError(l.stats.Records, err)
	}
	l.batched = append(l.batched, rec)
	if l.sink.Pending() >= l.opts.BatchSize {
		return l.flush(ctx)
	}
	return nil
}

func (l *loader) flush(ctx context.Context) error {
	if l.sink.Pending() == 0 {
		l.batched = nil
		return nil
	}

	report, err := l.sink.Flush(ctx)
	var sm *upsert.ShapeMismatchError
	switch {
	case errors.As(err, &sm):
		l.log.Warn("batch shape mismatch, writing records one by one", "row", sm.Row, "records", len(l.batched))
		return l.single(ctx)
	case err != nil && IsRecordError(err) && !l.opts.StopOnError:
		l.log.Warn("batch rejected, writing records one by one", "error", err, "records", len(l.batched))
		return l.single(ctx)
	case err != nil:
		return err
	}
	l.stats.add(report)
	l.batched = nil
	return nil
}

// single пишет записи отклоненного пакета по одной
func (l *loader) single(ctx context.Context) error {
	recs := l.batched
	l.batched = nil
	l.sink.Discard()

	opts := l.opts.Upsert
	opts.Force = true
	for i, rec := range recs {
		outcome, err := l.sink.Upsert(ctx, rec, opts)
		l.stats.count(outcome)
		if err := l.recordError(l.stats.Records-len(recs)+i+1, err); err != nil {
			return err
		}
	}
	return nil
}

// recordError учитывает ошибку записи n; возвращает ошибку, если загрузку
// нужно прервать
func (l *loader) recordError(n int, err error) error {
	if err == nil {
		return nil
	}
	if !IsRecordError(err) || l.opts.StopOnError {
		return fmt.Errorf("record %d: %w", n, err)
	}
	l.stats.Failed++
	l.log.Warn("record skipped", "record", n, "error", err)
	return nil
}
