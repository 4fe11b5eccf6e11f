package source

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/dbcon/pkg/record"
)

// XLSXReader - записи листа Excel. Первая строка - заголовок с именами
// колонок, пустые ячейки дают NULL.
type XLSXReader struct {
	file   *excelize.File
	sheet  string
	rows   *excelize.Rows
	header []string
	row    int
}

// OpenXLSX открывает лист файла (пустое имя - первый лист)
func OpenXLSX(path, sheet string) (*XLSXReader, error) {
	f, err := excelize.OpenFile(path, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	r, err := newXLSXReader(f, sheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// NewXLSXReader читает лист из потока
func NewXLSXReader(in io.Reader, sheet string) (*XLSXReader, error) {
	f, err := excelize.OpenReader(in, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	r, err := newXLSXReader(f, sheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newXLSXReader(f *excelize.File, sheet string) (*XLSXReader, error) {
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	r := &XLSXReader{file: f, sheet: sheet, rows: rows}

	if !rows.Next() {
		return nil, fmt.Errorf("sheet %s has no header row", sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			header[i] = "column" + strconv.Itoa(i+1)
		}
	}
	r.header = header
	r.row = 1
	return r, nil
}

// Header возвращает имена колонок листа
func (r *XLSXReader) Header() []string {
	return append([]string(nil), r.header...)
}

// Next возвращает следующую непустую строку листа
func (r *XLSXReader) Next(ctx context.Context) (*record.Record, error) {
	for r.rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.row++
		cells, err := r.rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r.row, err)
		}
		if blank(cells) {
			continue
		}

		rec := record.New()
		for i, name := range r.header {
			if i >= len(cells) || cells[i] == "" {
				rec.Set(name, record.Null())
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(i+1, r.row)
			ct, _ := r.file.GetCellType(r.sheet, cell)
			rec.SetScalar(name, cellValue(cells[i], ct))
		}
		return rec, nil
	}
	if err := r.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close закрывает книгу
func (r *XLSXReader) Close() error {
	r.rows.Close()
	return r.file.Close()
}

// cellValue приводит сырое значение ячейки к скаляру по типу ячейки
func cellValue(raw string, ct excelize.CellType) any {
	switch ct {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
	}
	return raw
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
