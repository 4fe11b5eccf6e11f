package processors

import (
	"context"
	"fmt"

	"github.com/ruslano69/dbcon/pkg/record"
)

// Chain представляет цепочку процессоров
type Chain struct {
	processors []Processor
}

var _ Processor = (*Chain)(nil)

// NewChain создает новую цепочку процессоров
func NewChain(processors ...Processor) *Chain {
	return &Chain{
		processors: processors,
	}
}

// Name возвращает имя цепочки
func (c *Chain) Name() string {
	return "chain"
}

// Process выполняет все процессоры в цепочке последовательно
func (c *Chain) Process(ctx context.Context, rec *record.Record) (*record.Record, error) {
	result := rec
	for i, proc := range c.processors {
		var err error
		result, err = proc.Process(ctx, result)
		if err != nil {
			return nil, fmt.Errorf("processor %d (%s) failed: %w", i, proc.Name(), err)
		}
	}
	return result, nil
}

// Add добавляет процессор в цепочку
func (c *Chain) Add(processor Processor) {
	c.processors = append(c.processors, processor)
}

// Len возвращает количество процессоров в цепочке
func (c *Chain) Len() int {
	return len(c.processors)
}

// IsEmpty проверяет, пуста ли цепочка
func (c *Chain) IsEmpty() bool {
	return len(c.processors) == 0
}
