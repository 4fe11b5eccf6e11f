// Package resilience - размыкатель цепи для цикла потребления сообщений.
//
// Пока приемник (движок upsert и его БД) стабильно отказывает, Breaker
// отклоняет вызовы без обращения к нему, а потребитель возвращает сообщения
// брокеру. По истечении Cooldown пропускается пробный вызов.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrOpen - цепь разомкнута, вызов не выполнялся
var ErrOpen = errors.New("circuit breaker is open")

// Breaker - защита приемника от потока вызовов во время сбоя
type Breaker struct {
	config Config
	sm     *stateManager
	log    *slog.Logger
}

// New создает Breaker
func New(config Config, log *slog.Logger) (*Breaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid breaker config: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Breaker{config: config, sm: newStateManager(config), log: log}, nil
}

// Execute выполняет fn, если цепь не разомкнута.
// Ошибка fn возвращается как есть; ErrOpen означает, что fn не вызывалась.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.config.Enabled {
		return fn(ctx)
	}

	generation, tr, err := b.sm.before()
	b.notify(tr)
	if err != nil {
		return err
	}

	failed := true
	defer func() {
		b.notify(b.sm.after(generation, failed))
	}()

	err = fn(ctx)
	failed = b.config.failure(err)
	return err
}

// Wait блокируется, пока цепь разомкнута
func (b *Breaker) Wait(ctx context.Context) error {
	for {
		stats := b.Stats()
		if stats.State != StateOpen || stats.RetryIn <= 0 {
			return nil
		}
		timer := time.NewTimer(stats.RetryIn)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// State - текущее состояние
func (b *Breaker) State() State {
	b.sm.mu.Lock()
	state, tr := b.sm.current()
	b.sm.mu.Unlock()
	b.notify(tr)
	return state
}

// Stats - снимок счетчиков
func (b *Breaker) Stats() Stats {
	return b.sm.snapshot()
}

// Reset замыкает цепь
func (b *Breaker) Reset() {
	b.notify(b.sm.reset())
}

// Name - имя Breaker
func (b *Breaker) Name() string {
	return b.config.Name
}

func (b *Breaker) String() string {
	s := b.Stats()
	return fmt.Sprintf("Breaker(%s state=%s failures=%d/%d)",
		b.config.Name, s.State, s.Counts.ConsecutiveFailures, b.config.MaxFailures)
}

func (b *Breaker) notify(tr *transition) {
	if tr == nil {
		return
	}
	b.log.Warn("breaker state changed", "name", b.config.Name, "from", tr.from.String(), "to", tr.to.String())
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.config.Name, tr.from, tr.to)
	}
}
