package processors

import (
	"fmt"
	"sort"
)

// CreatorFunc создает процессор из params конфигурации
type CreatorFunc func(params map[string]any) (Processor, error)

// Factory создает процессоры по типу
type Factory struct {
	creators map[string]CreatorFunc
}

// NewFactory создает фабрику со встроенными процессорами
func NewFactory() *Factory {
	f := &Factory{creators: make(map[string]CreatorFunc)}
	f.Register("field_masker", func(params map[string]any) (Processor, error) {
		return NewFieldMaskerFromConfig(params)
	})
	f.Register("field_normalizer", func(params map[string]any) (Processor, error) {
		return NewFieldNormalizerFromConfig(params)
	})
	f.Register("field_validator", func(params map[string]any) (Processor, error) {
		return NewFieldValidatorFromConfig(params)
	})
	return f
}

// Register регистрирует тип процессора
func (f *Factory) Register(processorType string, creator CreatorFunc) {
	f.creators[processorType] = creator
}

// Types - зарегистрированные типы
func (f *Factory) Types() []string {
	types := make([]string, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create создает процессор по конфигурации
func (f *Factory) Create(config Config) (Processor, error) {
	creator, ok := f.creators[config.Type]
	if !ok {
		return nil, fmt.Errorf("unknown processor type: %s", config.Type)
	}
	p, err := creator(config.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor '%s': %w", config.Type, err)
	}
	return p, nil
}

// Build создает цепочку из конфигураций; пустой список дает nil
func (f *Factory) Build(configs []Config) (Processor, error) {
	if len(configs) == 0 {
		return nil, nil
	}
	chain := NewChain()
	for i, config := range configs {
		p, err := f.Create(config)
		if err != nil {
			return nil, fmt.Errorf("processor %d: %w", i, err)
		}
		chain.Add(p)
	}
	return chain, nil
}

// Build создает цепочку встроенной фабрикой
func Build(configs []Config) (Processor, error) {
	return NewFactory().Build(configs)
}
