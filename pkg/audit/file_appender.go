package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileAppender пишет записи в файл (JSON Lines или текст) с ротацией по размеру
type FileAppender struct {
	mu          sync.Mutex
	file        *os.File
	filePath    string
	maxSize     int64
	maxBackups  int
	currentSize int64
	level       Level
	formatJSON  bool
}

// FileAppenderConfig - конфигурация файлового appender
type FileAppenderConfig struct {
	FilePath   string `yaml:"file"`
	MaxSizeMB  int64  `yaml:"max_size_mb,omitempty"` // по умолчанию 100
	MaxBackups int    `yaml:"max_backups,omitempty"` // по умолчанию 5
	Level      Level  `yaml:"-"`
	FormatJSON bool   `yaml:"json"`
}

// NewFileAppender открывает (или создает) файл журнала
func NewFileAppender(config FileAppenderConfig) (*FileAppender, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	maxSize := config.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	maxBackups := config.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}

	return &FileAppender{
		file:        file,
		filePath:    config.FilePath,
		maxSize:     maxSize * 1024 * 1024,
		maxBackups:  maxBackups,
		currentSize: info.Size(),
		level:       config.Level,
		formatJSON:  config.FormatJSON,
	}, nil
}

// Append пишет одну строку, при необходимости ротируя файл
func (fa *FileAppender) Append(ctx context.Context, entry *Entry) error {
	data, err := format(entry.FilterByLevel(fa.level), fa.formatJSON)
	if err != nil {
		return err
	}

	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.currentSize > 0 && fa.currentSize+int64(len(data)) > fa.maxSize {
		if err := fa.rotate(); err != nil {
			return fmt.Errorf("failed to rotate file: %w", err)
		}
	}

	n, err := fa.file.Write(data)
	fa.currentSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

// rotate сдвигает backups (.1 → .2 ...), самый старый удаляется
func (fa *FileAppender) rotate() error {
	if err := fa.file.Close(); err != nil {
		return err
	}

	os.Remove(fmt.Sprintf("%s.%d", fa.filePath, fa.maxBackups))
	for i := fa.maxBackups - 1; i > 0; i-- {
		from := fmt.Sprintf("%s.%d", fa.filePath, i)
		if _, err := os.Stat(from); err == nil {
			os.Rename(from, fmt.Sprintf("%s.%d", fa.filePath, i+1))
		}
	}
	if err := os.Rename(fa.filePath, fa.filePath+".1"); err != nil {
		return err
	}

	file, err := os.OpenFile(fa.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	fa.file = file
	fa.currentSize = 0
	return nil
}

// Flush синхронизирует файл с диском
func (fa *FileAppender) Flush() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.file.Sync()
}

// Close закрывает файл
func (fa *FileAppender) Close() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.file.Close()
}

// CurrentSize - текущий размер файла в байтах
func (fa *FileAppender) CurrentSize() int64 {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.currentSize
}

// WriterAppender пишет записи в io.Writer (stderr CLI)
type WriterAppender struct {
	mu         sync.Mutex
	w          io.Writer
	level      Level
	formatJSON bool
}

// NewWriterAppender создает appender поверх w
func NewWriterAppender(w io.Writer, level Level, formatJSON bool) *WriterAppender {
	return &WriterAppender{w: w, level: level, formatJSON: formatJSON}
}

// Append пишет одну строку
func (wa *WriterAppender) Append(ctx context.Context, entry *Entry) error {
	data, err := format(entry.FilterByLevel(wa.level), wa.formatJSON)
	if err != nil {
		return err
	}
	wa.mu.Lock()
	defer wa.mu.Unlock()
	_, err = wa.w.Write(data)
	return err
}

// Close - noop, writer принадлежит вызывающему
func (wa *WriterAppender) Close() error {
	return nil
}

func format(entry *Entry, asJSON bool) ([]byte, error) {
	if !asJSON {
		return []byte(entry.String() + "\n"), nil
	}
	data, err := entry.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}
	return append(data, '\n'), nil
}
