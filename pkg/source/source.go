// Package source - чтение записей из файлов и объектов S3.
//
// Поддерживаемые форматы: JSON Lines и JSON массивы (.json, .jsonl, .ndjson),
// те же форматы в zstd (.zst), листы Excel (.xlsx). Путь вида
// s3://bucket/key читается из S3.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/ruslano69/dbcon/pkg/record"
)

// Reader выдает записи по одной. Конец данных - io.EOF.
type Reader interface {
	Next(ctx context.Context) (*record.Record, error)
	Close() error
}

// Options - параметры открытия источника
type Options struct {
	// Sheet - лист XLSX (по умолчанию первый)
	Sheet string `yaml:"sheet,omitempty"`

	// S3 - параметры доступа к S3 для путей s3://
	S3 S3Config `yaml:"s3,omitempty"`
}

// Open открывает источник по пути: s3://bucket/key, файл .xlsx или JSON
func Open(ctx context.Context, path string, opts Options) (Reader, error) {
	if strings.HasPrefix(path, "s3://") {
		return OpenS3(ctx, path, opts.S3)
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return OpenXLSX(path, opts.Sheet)
	}
	return OpenJSON(path)
}

// OpenJSON открывает JSON файл; суффикс .zst включает распаковку zstd
func OpenJSON(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	r, err := NewJSONReader(f, IsZstd(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// IsZstd - сжат ли файл по имени
func IsZstd(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zst")
}

// JSONReader - записи из потока JSON Lines, последовательности объектов
// или массивов объектов
type JSONReader struct {
	body io.Closer
	zr   *zstd.Decoder
	dec  *record.Decoder
}

// NewJSONReader читает записи из rc; compressed - поток сжат zstd.
// Close закрывает rc.
func NewJSONReader(rc io.ReadCloser, compressed bool) (*JSONReader, error) {
	r := &JSONReader{body: rc}
	var in io.Reader = rc
	if compressed {
		zr, err := zstd.NewReader(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		r.zr = zr
		in = zr
	}
	r.dec = record.NewDecoder(in)
	return r, nil
}

// Next возвращает следующую запись
func (r *JSONReader) Next(ctx context.Context) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.dec.Next()
}

// Close освобождает декодер и закрывает поток
func (r *JSONReader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	return r.body.Close()
}

// ReadAll читает все записи источника
func ReadAll(ctx context.Context, r Reader) ([]*record.Record, error) {
	var out []*record.Record
	for {
		rec, err := r.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
