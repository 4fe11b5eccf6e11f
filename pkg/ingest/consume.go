package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruslano69/dbcon/pkg/brokers"
	"github.com/ruslano69/dbcon/pkg/record"
	"github.com/ruslano69/dbcon/pkg/resilience"
	"github.com/ruslano69/dbcon/pkg/upsert"
)

// ErrDropped - часть записей сообщения ушла в DLQ
var ErrDropped = errors.New("records dropped to dead letter queue")

// IsSinkFailure - ошибка говорит о сбое приемника (БД), а не о записи.
// Используется как Config.IsFailure размыкателя цепи.
func IsSinkFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrDropped) {
		return true
	}
	var ex *upsert.ExhaustedError
	if errors.As(err, &ex) {
		return true
	}
	return !IsRecordError(err)
}

// Consume читает сообщения и записывает их записи через Upsert.
//
// Сообщение подтверждается, когда все его записи обработаны (в том числе
// отброшены в DLQ или пропущены как ошибочные). Сбой приемника возвращает
// сообщение в очередь. Нечитаемое сообщение отклоняется без возврата.
// breaker может быть nil. Цикл завершается отменой ctx или по MaxMessages.
func Consume(ctx context.Context, src brokers.Source, sink Sink, breaker *resilience.Breaker, opts Options) (stats Stats, err error) {
	log := opts.logger()
	stats.begin()
	defer stats.end()

	for opts.MaxMessages <= 0 || stats.Messages < opts.MaxMessages {
		if breaker != nil {
			if err := breaker.Wait(ctx); err != nil {
				return stats, nil
			}
		}

		var body []byte
		body, err = src.Receive(ctx)
		if errors.Is(err, brokers.ErrNoMessage) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return stats, nil
			}
			return stats, fmt.Errorf("receive: %w", err)
		}
		stats.Messages++

		recs, err := brokers.Records(body)
		if err != nil {
			stats.Failed++
			log.Warn("rejecting message", "error", err, "bytes", len(body))
			if err := src.Nack(ctx, false); err != nil {
				return stats, err
			}
			continue
		}

		handle := func(ctx context.Context) error {
			return deliver(ctx, sink, recs, opts, &stats)
		}
		if breaker != nil {
			err = breaker.Execute(ctx, handle)
		} else {
			err = handle(ctx)
		}

		switch {
		case err == nil, errors.Is(err, ErrDropped):
			if err := src.Ack(ctx); err != nil {
				return stats, err
			}
		default:
			log.Warn("message returned to queue", "error", err)
			if nackErr := src.Nack(context.WithoutCancel(ctx), true); nackErr != nil {
				return stats, nackErr
			}
			if ctx.Err() != nil {
				return stats, nil
			}
			if breaker == nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// deliver пишет записи одного сообщения
func deliver(ctx context.Context, sink Sink, recs []*record.Record, opts Options, stats *Stats) error {
	log := opts.logger()
	dropped := false
	for i, rec := range recs {
		rec, err := opts.process(ctx, rec)
		if err != nil {
			stats.Failed++
			log.Warn("record rejected", "record", i, "error", err)
			continue
		}
		outcome, err := sink.Upsert(ctx, rec, opts.Upsert)
		if err != nil {
			if !IsRecordError(err) {
				return err
			}
			stats.Failed++
			log.Warn("record skipped", "record", i, "error", err)
			continue
		}
		stats.Records++
		stats.count(outcome)
		if outcome == upsert.Dropped {
			dropped = true
		}
	}
	if dropped {
		return ErrDropped
	}
	return nil
}
