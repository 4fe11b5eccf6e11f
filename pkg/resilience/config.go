package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config - конфигурация Breaker
type Config struct {
	// Enabled - включить Breaker; выключенный пропускает все вызовы
	Enabled bool `yaml:"enabled"`

	// Name - имя для журналов (обычно имя очереди или топика)
	Name string `yaml:"name,omitempty"`

	// MaxFailures - последовательные ошибки для размыкания
	MaxFailures uint32 `yaml:"max_failures"`

	// Cooldown - время в Open состоянии перед пробным вызовом
	Cooldown time.Duration `yaml:"cooldown"`

	// SuccessThreshold - успешные пробные вызовы для замыкания
	SuccessThreshold uint32 `yaml:"success_threshold"`

	// IsFailure решает, считается ли ошибка сбоем приемника.
	// nil - сбоем считается любая ошибка, кроме отмены контекста.
	IsFailure func(err error) bool `yaml:"-"`

	// OnStateChange вызывается синхронно после смены состояния
	OnStateChange func(name string, from, to State) `yaml:"-"`
}

// Counts - счетчики вызовов текущего поколения
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Validate проверяет конфигурацию и заполняет значения по умолчанию
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxFailures == 0 {
		return fmt.Errorf("max_failures must be greater than 0")
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be greater than 0")
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	if c.Name == "" {
		c.Name = "breaker"
	}
	return nil
}

// DefaultConfig - 5 ошибок подряд размыкают цепь на 30 секунд
func DefaultConfig(name string) Config {
	return Config{
		Enabled:          true,
		Name:             name,
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		SuccessThreshold: 1,
	}
}

func (c *Config) failure(err error) bool {
	if err == nil {
		return false
	}
	if c.IsFailure != nil {
		return c.IsFailure(err)
	}
	return !errors.Is(err, context.Canceled)
}
