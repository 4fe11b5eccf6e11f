package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruslano69/dbcon/pkg/audit"
	"github.com/ruslano69/dbcon/pkg/brokers"
	"github.com/ruslano69/dbcon/pkg/ingest"
	"github.com/ruslano69/dbcon/pkg/record"
	"github.com/ruslano69/dbcon/pkg/resilience"
	"github.com/ruslano69/dbcon/pkg/retry"
	"github.com/ruslano69/dbcon/pkg/source"
	"github.com/ruslano69/dbcon/pkg/upsert"
)

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// IngestCmd loads a file or S3 object.
type IngestCmd struct {
	Path  string `arg:"" help:"JSON, JSONL(.zst), XLSX file or s3://bucket/key"`
	Batch int    `short:"b" default:"-1" help:"Records per batch (0 = one by one, -1 = from config)"`
	Force bool   `short:"f" help:"Overwrite rows with existing keys"`
	Sheet string `help:"XLSX sheet (default: first)"`
}

func (c *IngestCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	opts := a.cfg.Source
	if c.Sheet != "" {
		opts.Sheet = c.Sheet
	}
	r, err := source.Open(ctx, c.Path, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	stats, runErr := ingest.Load(ctx, r, a.engine, a.ingestOptions(c.Batch, c.Force))
	a.record(ctx, audit.OpIngest, stats, runErr)
	a.publish(ctx, a.cfg.Table.Table, stats, runErr)
	printStats(stats)
	return runErr
}

// ConsumeCmd loads records from the configured broker until interrupted.
type ConsumeCmd struct {
	Max   int  `help:"Stop after N messages (0 = until interrupted)"`
	Force bool `short:"f" help:"Overwrite rows with existing keys"`
}

func (c *ConsumeCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	src, err := brokers.New(a.cfg.Broker)
	if err != nil {
		return err
	}
	if err := src.Connect(ctx); err != nil {
		return err
	}
	defer src.Close()

	var breaker *resilience.Breaker
	if a.cfg.Breaker.Enabled {
		bc := a.cfg.Breaker
		if bc.Name == "" {
			bc.Name = a.cfg.Table.Table
		}
		bc.IsFailure = ingest.IsSinkFailure
		if breaker, err = resilience.New(bc, a.log); err != nil {
			return err
		}
	}

	opts := a.ingestOptions(0, c.Force)
	opts.MaxMessages = c.Max

	a.log.Info("consuming", "broker", src.Type(), "table", a.cfg.Table.Table)
	stats, runErr := ingest.Consume(ctx, src, a.engine, breaker, opts)
	a.record(ctx, audit.OpConsume, stats, runErr)
	a.publish(ctx, a.cfg.Table.Table, stats, runErr)
	printStats(stats)
	return runErr
}

// PublishCmd sends file records to the configured broker.
type PublishCmd struct {
	Path  string `arg:"" help:"JSON, JSONL(.zst), XLSX file or s3://bucket/key"`
	Batch int    `short:"b" default:"1" help:"Records per message"`
	Sheet string `help:"XLSX sheet (default: first)"`
}

func (c *PublishCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, log, err := loadConfig(g)
	if err != nil {
		return err
	}

	opts := cfg.Source
	if c.Sheet != "" {
		opts.Sheet = c.Sheet
	}
	r, err := source.Open(ctx, c.Path, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	dst, err := brokers.New(cfg.Broker)
	if err != nil {
		return err
	}
	if err := dst.Connect(ctx); err != nil {
		return err
	}
	defer dst.Close()

	records, messages, err := publishRecords(ctx, r, dst, c.Batch)
	log.Info("published", "broker", dst.Type(), "records", records, "messages", messages)
	fmt.Printf("Published %d records in %d messages\n", records, messages)
	return err
}

// publishRecords groups records into messages of up to batch records.
// A one-record message is a JSON object, larger ones are arrays.
func publishRecords(ctx context.Context, r source.Reader, dst brokers.Source, batch int) (records, messages int, err error) {
	if batch < 1 {
		batch = 1
	}
	pending := make([]*record.Record, 0, batch)

	send := func() error {
		if len(pending) == 0 {
			return nil
		}
		var body []byte
		var err error
		if len(pending) == 1 {
			body, err = json.Marshal(pending[0])
		} else {
			body, err = json.Marshal(pending)
		}
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		if err := dst.Send(ctx, body); err != nil {
			return err
		}
		records += len(pending)
		messages++
		pending = pending[:0]
		return nil
	}

	for {
		rec, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return records, messages, err
		}
		pending = append(pending, rec)
		if len(pending) >= batch {
			if err := send(); err != nil {
				return records, messages, err
			}
		}
	}
	return records, messages, send()
}

// ReplayCmd re-upserts records from a dead letter file.
type ReplayCmd struct {
	File  string `arg:"" help:"Dead letter queue JSON file" type:"existingfile"`
	Force bool   `default:"true" negatable:"" help:"Overwrite rows with existing keys"`
}

func (c *ReplayCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()

	entries, err := retry.ReadFile(c.File)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	letters, err := deadLetters(entries, a.cfg.Table.Table)
	if err != nil {
		return err
	}
	a.log.Info("replaying", "entries", len(entries), "records", len(letters))

	stats, runErr := replay(ctx, a.engine, letters, upsert.Options{Force: c.Force})
	a.record(ctx, audit.OpReplay, stats, runErr)
	printStats(stats)
	return runErr
}

// deadLetters extracts the records of table from DLQ entries.
// Letters of other tables and letters without a record are skipped.
func deadLetters(entries []retry.DLQEntry, table string) ([]*record.Record, error) {
	var out []*record.Record
	for _, e := range entries {
		if len(e.Data) == 0 {
			continue
		}
		var letters []upsert.DeadLetter
		if err := json.Unmarshal(e.Data, &letters); err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		for _, l := range letters {
			if l.Record == nil || (table != "" && l.Table != table) {
				continue
			}
			out = append(out, l.Record)
		}
	}
	return out, nil
}

// replay upserts recovered records one by one
func replay(ctx context.Context, sink ingest.Sink, recs []*record.Record, opts upsert.Options) (ingest.Stats, error) {
	stats := ingest.Stats{StartTime: time.Now()}
	finish := func(err error) (ingest.Stats, error) {
		stats.EndTime = time.Now()
		stats.Duration = stats.EndTime.Sub(stats.StartTime)
		return stats, err
	}

	for i, rec := range recs {
		stats.Records++
		outcome, err := sink.Upsert(ctx, rec, opts)
		switch outcome {
		case upsert.Inserted:
			stats.Inserted++
		case upsert.Updated:
			stats.Updated++
		case upsert.Rejected:
			stats.Rejected++
		case upsert.Dropped:
			stats.Dropped++
		}
		if err == nil {
			continue
		}
		if !ingest.IsRecordError(err) {
			return finish(fmt.Errorf("record %d: %w", i+1, err))
		}
		stats.Failed++
	}
	return finish(nil)
}
