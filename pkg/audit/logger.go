package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrLoggerClosed возвращается при записи в закрытый логгер
var ErrLoggerClosed = errors.New("audit logger is closed")

// Logger - журнал операций движка
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	Flush() error
	Close() error
}

// LoggerConfig - конфигурация журнала
type LoggerConfig struct {
	// AsyncMode - запись в appenders из отдельной горутины
	AsyncMode bool `yaml:"async"`

	// BufferSize - размер очереди асинхронного режима
	BufferSize int `yaml:"buffer_size,omitempty"`

	// DefaultUser / DefaultSource подставляются в пустые поля записи
	DefaultUser   string `yaml:"user,omitempty"`
	DefaultSource string `yaml:"source,omitempty"`

	// FlushInterval - период сброса appenders (0 = только при Close)
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`

	// OnError - обработчик ошибок appenders (по умолчанию slog)
	OnError func(error) `yaml:"-"`
}

// AuditLogger пишет записи во все appenders синхронно или через очередь
type AuditLogger struct {
	config    LoggerConfig
	mu        sync.RWMutex
	appenders []Appender

	queue  chan *Entry
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLogger создает журнал с набором appenders
func NewLogger(config LoggerConfig, appenders ...Appender) *AuditLogger {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())

	l := &AuditLogger{
		config:    config,
		appenders: appenders,
		ctx:       ctx,
		cancel:    cancel,
	}

	if config.AsyncMode {
		l.queue = make(chan *Entry, config.BufferSize)
		l.wg.Add(1)
		go l.processEntries()
	}
	if config.FlushInterval > 0 {
		l.wg.Add(1)
		go l.autoFlush()
	}
	return l
}

// Log записывает запись. В асинхронном режиме при переполненной очереди
// запись выполняется синхронно.
func (l *AuditLogger) Log(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}
	if l.ctx.Err() != nil {
		return ErrLoggerClosed
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.User == "" {
		entry.User = l.config.DefaultUser
	}
	if entry.Source == "" {
		entry.Source = l.config.DefaultSource
	}

	if l.queue == nil {
		return l.writeEntry(ctx, entry)
	}

	select {
	case l.queue <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return l.writeEntry(ctx, entry)
	}
}

// writeEntry пишет во все appenders, возвращая первую ошибку
func (l *AuditLogger) writeEntry(ctx context.Context, entry *Entry) error {
	l.mu.RLock()
	appenders := l.appenders
	l.mu.RUnlock()

	var first error
	for _, a := range appenders {
		if err := a.Append(ctx, entry); err != nil {
			if first == nil {
				first = err
			}
			l.handleError(fmt.Errorf("appender failed: %w", err))
		}
	}
	return first
}

func (l *AuditLogger) processEntries() {
	defer l.wg.Done()
	for {
		select {
		case entry := <-l.queue:
			l.writeEntry(context.Background(), entry)
		case <-l.ctx.Done():
			// дописываем остаток очереди
			for {
				select {
				case entry := <-l.queue:
					l.writeEntry(context.Background(), entry)
				default:
					return
				}
			}
		}
	}
}

func (l *AuditLogger) autoFlush() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Flush()
		case <-l.ctx.Done():
			return
		}
	}
}

// Flush сбрасывает appenders, которые это поддерживают
func (l *AuditLogger) Flush() error {
	l.mu.RLock()
	appenders := l.appenders
	l.mu.RUnlock()

	var first error
	for _, a := range appenders {
		f, ok := a.(interface{ Flush() error })
		if !ok {
			continue
		}
		if err := f.Flush(); err != nil {
			if first == nil {
				first = err
			}
			l.handleError(fmt.Errorf("flush failed: %w", err))
		}
	}
	return first
}

// Close дописывает очередь и закрывает appenders
func (l *AuditLogger) Close() error {
	if l.ctx.Err() != nil {
		return nil
	}
	l.cancel()
	l.wg.Wait()
	l.Flush()

	l.mu.RLock()
	appenders := l.appenders
	l.mu.RUnlock()

	var first error
	for _, a := range appenders {
		if err := a.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AddAppender добавляет appender
func (l *AuditLogger) AddAppender(appender Appender) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appenders = append(l.appenders, appender)
}

func (l *AuditLogger) handleError(err error) {
	if l.config.OnError != nil {
		l.config.OnError(err)
		return
	}
	slog.Warn("audit", "error", err)
}

// DefaultConfig - асинхронный журнал
func DefaultConfig() LoggerConfig {
	return LoggerConfig{AsyncMode: true, BufferSize: 1000}
}

// SyncConfig - синхронный журнал (тесты, CLI команды с коротким временем жизни)
func SyncConfig() LoggerConfig {
	return LoggerConfig{AsyncMode: false}
}
