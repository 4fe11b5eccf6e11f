package retry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

// DLQEntry представляет запись в Dead Letter Queue
type DLQEntry struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error"`
	FailureType string          `json:"failure_type"` // max_attempts_exceeded, commit_failed, etc.
	Fingerprint string          `json:"fingerprint,omitempty"`
	Occurrences int             `json:"occurrences,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// DLQ - Dead Letter Queue для хранения записей, которые не удалось записать.
// Записи с одинаковым payload (по xxh3 отпечатку) не дублируются: повторная
// неудача увеличивает счетчик Occurrences существующей записи.
type DLQ struct {
	mu      sync.RWMutex
	config  DLQConfig
	entries []DLQEntry
	counter int
}

// NewDLQ создает новый DLQ
func NewDLQ(config DLQConfig) (*DLQ, error) {
	dlq := &DLQ{
		config:  config,
		entries: make([]DLQEntry, 0),
		counter: 0,
	}

	// Загружаем существующий DLQ если файл существует
	if config.FilePath != "" {
		if _, err := os.Stat(config.FilePath); err == nil {
			if err := dlq.Load(); err != nil {
				return nil, fmt.Errorf("failed to load DLQ: %w", err)
			}
		}
	}

	return dlq, nil
}

// Fingerprint возвращает xxh3 отпечаток payload
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}

// Add добавляет запись в DLQ и возвращает ее ID.
// duplicate = true, если запись с тем же payload уже была в очереди.
func (d *DLQ) Add(entry DLQEntry) (id string, duplicate bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Occurrences == 0 {
		entry.Occurrences = 1
	}

	if len(entry.Data) > 0 {
		entry.Fingerprint = Fingerprint(entry.Data)
		for i := range d.entries {
			existing := &d.entries[i]
			if existing.Fingerprint != entry.Fingerprint {
				continue
			}
			existing.Occurrences += entry.Occurrences
			existing.Attempts += entry.Attempts
			existing.LastError = entry.LastError
			existing.FailureType = entry.FailureType
			existing.Timestamp = entry.Timestamp
			d.saveUnsafe()
			return existing.ID, true
		}
		entry.ID = "dlq-" + entry.Fingerprint
	} else {
		d.counter++
		entry.ID = fmt.Sprintf("dlq-%d-%d", time.Now().Unix(), d.counter)
	}

	d.entries = append(d.entries, entry)

	// Проверяем лимит размера
	if d.config.MaxSize > 0 && len(d.entries) > d.config.MaxSize {
		// Удаляем самые старые записи
		d.entries = d.entries[len(d.entries)-d.config.MaxSize:]
	}

	// Автосохранение
	d.saveUnsafe()
	return entry.ID, false
}

// Get возвращает все записи из DLQ
func (d *DLQ) Get() []DLQEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]DLQEntry, len(d.entries))
	copy(result, d.entries)
	return result
}

// GetByID возвращает запись по ID
func (d *DLQ) GetByID(id string) *DLQEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for i := range d.entries {
		if d.entries[i].ID == id {
			entry := d.entries[i]
			return &entry
		}
	}

	return nil
}

// Remove удаляет запись из DLQ
func (d *DLQ) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, entry := range d.entries {
		if entry.ID == id {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			d.saveUnsafe()
			return true
		}
	}

	return false
}

// Clear очищает весь DLQ
func (d *DLQ) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries = make([]DLQEntry, 0)
	return d.saveUnsafe()
}

// CleanupOld удаляет записи старше RetentionPeriod
func (d *DLQ) CleanupOld() int {
	if d.config.RetentionPeriod == 0 {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoffTime := time.Now().Add(-d.config.RetentionPeriod)
	newEntries := make([]DLQEntry, 0, len(d.entries))
	removed := 0

	for _, entry := range d.entries {
		if entry.Timestamp.After(cutoffTime) {
			newEntries = append(newEntries, entry)
		} else {
			removed++
		}
	}

	if removed > 0 {
		d.entries = newEntries
		d.saveUnsafe()
	}

	return removed
}

// Size возвращает количество записей в DLQ
func (d *DLQ) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Save сохраняет DLQ в файл
func (d *DLQ) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveUnsafe()
}

// saveUnsafe сохраняет без блокировки (вызывается когда lock уже взят)
func (d *DLQ) saveUnsafe() error {
	if d.config.FilePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(d.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ: %w", err)
	}

	if err := os.WriteFile(d.config.FilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write DLQ file: %w", err)
	}

	return nil
}

// Load загружает DLQ из файла
func (d *DLQ) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := ReadFile(d.config.FilePath)
	if err != nil {
		return err
	}
	d.entries = entries
	return nil
}

// ReadFile читает записи DLQ из файла без создания очереди
func ReadFile(path string) ([]DLQEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ file: %w", err)
	}

	var entries []DLQEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DLQ: %w", err)
	}

	// MarshalIndent переформатирует и Data: возвращаем payload в компактный вид
	for i := range entries {
		if len(entries[i].Data) == 0 {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, entries[i].Data); err != nil {
			return nil, fmt.Errorf("failed to compact DLQ entry %s: %w", entries[i].ID, err)
		}
		entries[i].Data = buf.Bytes()
	}
	return entries, nil
}

// GetStats возвращает статистику DLQ
func (d *DLQ) GetStats() DLQStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := DLQStats{
		TotalEntries: len(d.entries),
		FailureTypes: make(map[string]int),
	}

	if len(d.entries) == 0 {
		return stats
	}

	stats.OldestEntry = d.entries[0].Timestamp
	stats.NewestEntry = d.entries[len(d.entries)-1].Timestamp

	for _, entry := range d.entries {
		stats.FailureTypes[entry.FailureType]++
	}

	return stats
}

// DLQStats содержит статистику DLQ
type DLQStats struct {
	TotalEntries int
	OldestEntry  time.Time
	NewestEntry  time.Time
	FailureTypes map[string]int
}
