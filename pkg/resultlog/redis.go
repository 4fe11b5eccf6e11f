package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruslano69/dbcon/pkg/ingest"
)

// Config - параметры публикации итога прогона в Redis
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// TTL - время жизни ключа состояния в секундах (0 - без срока)
	TTL int `yaml:"ttl"`
	// Name - имя в ключах; по умолчанию имя прогона
	Name string `yaml:"name"`
}

// RunResult - состояние прогона загрузки, публикуемое после его завершения.
//
// Redis-ключи:
//
//	SET  dbcon:ingest:<name>:state  <JSON>  EX <ttl>
//	PUB  dbcon:ingest:<name>
type RunResult struct {
	Run        string    `json:"run"`
	Table      string    `json:"table,omitempty"`
	Status     string    `json:"status"` // "success" | "failed"
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	Records    int       `json:"records"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Rejected   int       `json:"rejected"`
	Dropped    int       `json:"dropped"`
	Failed     int       `json:"failed"`
	Messages   int       `json:"messages,omitempty"`
	Error      *string   `json:"error,omitempty"`
}

// NewRunResult собирает RunResult из статистики прогона
func NewRunResult(run string, stats ingest.Stats, runErr error) RunResult {
	result := RunResult{
		Run:        run,
		Status:     "success",
		StartedAt:  stats.StartTime,
		FinishedAt: stats.EndTime,
		DurationMs: stats.Duration.Milliseconds(),
		Records:    stats.Records,
		Inserted:   stats.Inserted,
		Updated:    stats.Updated,
		Rejected:   stats.Rejected,
		Dropped:    stats.Dropped,
		Failed:     stats.Failed,
		Messages:   stats.Messages,
	}
	if runErr != nil {
		result.Status = "failed"
		errStr := runErr.Error()
		result.Error = &errStr
	}
	return result
}

// StateKey - ключ последнего состояния
func StateKey(name string) string {
	return fmt.Sprintf("dbcon:ingest:%s:state", name)
}

// Channel - канал событий
func Channel(name string) string {
	return fmt.Sprintf("dbcon:ingest:%s", name)
}

// RedisPublisher публикует итог прогона в Redis
type RedisPublisher struct {
	client *redis.Client
	config Config
	table  string
}

var _ ingest.Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher создает publisher; table попадает в RunResult.Table
func NewRedisPublisher(config Config, table string) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisPublisher{client: client, config: config, table: table}
}

// Publish публикует итог:
//   - SET dbcon:ingest:<name>:state <JSON> EX <ttl> для опроса
//   - PUBLISH dbcon:ingest:<name> <JSON> для подписчиков
//
// runErr == nil означает успешный прогон.
func (p *RedisPublisher) Publish(ctx context.Context, run string, stats ingest.Stats, runErr error) error {
	result := NewRunResult(run, stats, runErr)
	result.Table = p.table

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	name := p.config.Name
	if name == "" {
		name = run
	}
	ttl := time.Duration(p.config.TTL) * time.Second

	if err := p.client.Set(ctx, StateKey(name), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(name), payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
