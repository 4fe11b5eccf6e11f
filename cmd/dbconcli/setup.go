package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ruslano69/dbcon/pkg/adapters"
	_ "github.com/ruslano69/dbcon/pkg/adapters/mssql"
	_ "github.com/ruslano69/dbcon/pkg/adapters/mysql"
	_ "github.com/ruslano69/dbcon/pkg/adapters/odbc"
	_ "github.com/ruslano69/dbcon/pkg/adapters/postgres"
	_ "github.com/ruslano69/dbcon/pkg/adapters/sqlite"
	"github.com/ruslano69/dbcon/pkg/audit"
	"github.com/ruslano69/dbcon/pkg/ingest"
	"github.com/ruslano69/dbcon/pkg/processors"
	"github.com/ruslano69/dbcon/pkg/resultlog"
	"github.com/ruslano69/dbcon/pkg/upsert"
)

// app - everything a loading command needs
type app struct {
	cfg    *Config
	log    *slog.Logger
	engine *upsert.Engine
	audit  *audit.AuditLogger
	proc   processors.Processor

	// closers run in reverse order
	closers []func(ctx context.Context) error
}

// newLogger builds the diagnostic logger
func newLogger(cfg LoggingConfig, verbose bool) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", cfg.Format)
}

// loadConfig reads .env and the YAML config and applies global overrides
func loadConfig(g *Globals) (*Config, *slog.Logger, error) {
	if err := LoadEnv(g.EnvFile); err != nil {
		return nil, nil, err
	}
	cfg, err := LoadConfig(g.Config)
	if err != nil {
		return nil, nil, err
	}
	if g.Table != "" {
		cfg.Table.Table = g.Table
	}
	if g.Verbose {
		cfg.Table.Verbose = true
	}
	log, err := newLogger(cfg.Logging, g.Verbose)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, nil
}

// openApp connects to the database and creates the engine
func openApp(ctx context.Context, g *Globals) (*app, error) {
	cfg, log, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	if a.proc, err = processors.Build(cfg.Processors); err != nil {
		return nil, err
	}

	dbCfg := adapters.Config{Type: cfg.Database.Type, DSN: cfg.Database.BuildDSN()}
	if dbCfg.DSN == "" {
		return nil, fmt.Errorf("database type %q: cannot build connection string", cfg.Database.Type)
	}

	if err := a.openAudit(ctx, dbCfg); err != nil {
		a.Close(ctx)
		return nil, err
	}

	conn, err := adapters.New(ctx, dbCfg)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	tableCfg := cfg.Table
	tableCfg.Logger = log
	if a.audit != nil {
		tableCfg.Audit = a.audit
	}
	engine, err := upsert.New(ctx, conn, tableCfg)
	if err != nil {
		conn.Close(ctx)
		a.Close(ctx)
		return nil, err
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)

	if dlq := engine.DLQ(); dlq != nil {
		if removed := dlq.CleanupOld(); removed > 0 {
			log.Info("expired dead letters removed", "count", removed)
		}
	}

	log.Debug("engine ready",
		"database", cfg.Database.Type,
		"table", cfg.Table.Table,
		"columns", len(engine.Columns()))
	return a, nil
}

// openAudit builds the audit logger from the file, console and table appenders
func (a *app) openAudit(ctx context.Context, dbCfg adapters.Config) error {
	cfg := a.cfg.Audit
	if !cfg.Enabled {
		return nil
	}
	level, err := cfg.auditLevel()
	if err != nil {
		return err
	}

	var appenders []audit.Appender
	if cfg.File != "" {
		fa, err := audit.NewFileAppender(audit.FileAppenderConfig{
			FilePath:   cfg.File,
			MaxSizeMB:  cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			Level:      level,
			FormatJSON: cfg.JSON,
		})
		if err != nil {
			return err
		}
		appenders = append(appenders, fa)
	}
	if cfg.Console {
		appenders = append(appenders, audit.NewWriterAppender(os.Stderr, level, cfg.JSON))
	}
	if cfg.Table != "" {
		// the audit table commits on its own connection
		conn, err := adapters.New(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("failed to connect audit table: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		ta, err := audit.NewTableAppender(ctx, audit.TableAppenderConfig{
			Conn:       conn,
			Table:      cfg.Table,
			Level:      level,
			BatchSize:  100,
			AutoCreate: true,
		})
		if err != nil {
			return err
		}
		appenders = append(appenders, ta)
	}
	if len(appenders) == 0 {
		return errors.New("audit is enabled but no file, console or table is configured")
	}

	loggerCfg := audit.SyncConfig()
	if cfg.Async {
		loggerCfg = audit.DefaultConfig()
	}
	loggerCfg.DefaultSource = "dbconcli"
	loggerCfg.OnError = func(err error) { a.log.Warn("audit", "error", err) }
	a.audit = audit.NewLogger(loggerCfg, appenders...)
	a.closers = append(a.closers, func(context.Context) error { return a.audit.Close() })
	return nil
}

// record writes a command-level audit entry
func (a *app) record(ctx context.Context, op audit.Operation, stats ingest.Stats, runErr error) {
	if a.audit == nil {
		return
	}
	status := audit.StatusSuccess
	switch {
	case runErr != nil:
		status = audit.StatusFailure
	case stats.Dropped > 0 || stats.Failed > 0:
		status = audit.StatusPartial
	}
	entry := audit.NewEntry(op, status).
		WithResource(a.cfg.Table.Table).
		WithRecordsAffected(int64(stats.Written())).
		WithDuration(stats.Duration).
		WithMetadata("records", stats.Records).
		WithMetadata("rejected", stats.Rejected).
		WithMetadata("dropped", stats.Dropped).
		WithMetadata("failed", stats.Failed)
	if runErr != nil {
		entry.WithError(runErr)
	}
	a.audit.Log(ctx, entry)
}

// publish sends the run result to Redis when result_log is enabled
func (a *app) publish(ctx context.Context, run string, stats ingest.Stats, runErr error) {
	if !a.cfg.ResultLog.Enabled {
		return
	}
	p := resultlog.NewRedisPublisher(a.cfg.ResultLog, a.cfg.Table.Table)
	defer p.Close()

	if err := p.Publish(context.WithoutCancel(ctx), run, stats, runErr); err != nil {
		a.log.Warn("failed to publish run result", "error", err)
	}
}

// ingestOptions merges config defaults with command flags
func (a *app) ingestOptions(batch int, force bool) ingest.Options {
	opts := ingest.Options{
		BatchSize:   a.cfg.Ingest.BatchSize,
		StopOnError: a.cfg.Ingest.StopOnError,
		Processor:   a.proc,
		Logger:      a.log,
		Upsert: upsert.Options{
			Force:           a.cfg.Ingest.Force || force,
			KeepNulls:       a.cfg.Ingest.KeepNulls,
			NoCreateColumns: a.cfg.Ingest.NoCreate,
		},
	}
	if batch >= 0 {
		opts.BatchSize = batch
	}
	return opts
}

// Close releases everything in reverse order
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// printStats prints the run summary
func printStats(stats ingest.Stats) {
	fmt.Printf("Records:  %d\n", stats.Records)
	fmt.Printf("Inserted: %d\n", stats.Inserted)
	fmt.Printf("Updated:  %d\n", stats.Updated)
	if stats.Rejected > 0 {
		fmt.Printf("Rejected: %d (existing keys, use --force to overwrite)\n", stats.Rejected)
	}
	if stats.Dropped > 0 {
		fmt.Printf("Dropped:  %d (see dead letter queue)\n", stats.Dropped)
	}
	if stats.Failed > 0 {
		fmt.Printf("Failed:   %d\n", stats.Failed)
	}
	if stats.Messages > 0 {
		fmt.Printf("Messages: %d\n", stats.Messages)
	}
	fmt.Printf("Duration: %s\n", stats.Duration)
}
