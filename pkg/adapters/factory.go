package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DialectConstructor - функция-конструктор диалекта
type DialectConstructor func() Dialect

// Factory - фабрика соединений
// Управляет регистрацией диалектов и открытием соединений
type Factory struct {
	registry map[string]DialectConstructor
	mu       sync.RWMutex
}

// NewFactory создает новую фабрику
func NewFactory() *Factory {
	return &Factory{
		registry: make(map[string]DialectConstructor),
	}
}

// Register регистрирует диалект для типа БД
//
// Пример:
//
//	factory.Register("postgres", func() adapters.Dialect {
//	    return postgres.New()
//	})
func (f *Factory) Register(dbType string, constructor DialectConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[dbType] = constructor
}

// Unregister удаляет диалект
func (f *Factory) Unregister(dbType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registry, dbType)
}

// IsRegistered проверяет, зарегистрирован ли диалект для данного типа БД
func (f *Factory) IsRegistered(dbType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.registry[dbType]
	return ok
}

// GetRegisteredTypes возвращает отсортированный список зарегистрированных типов БД
func (f *Factory) GetRegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.registry))
	for dbType := range f.registry {
		types = append(types, dbType)
	}
	sort.Strings(types)
	return types
}

// Dialect создает диалект по типу БД без подключения
func (f *Factory) Dialect(dbType string) (Dialect, error) {
	f.mu.RLock()
	constructor, ok := f.registry[dbType]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown database type: %s (available types: %v)",
			dbType, f.GetRegisteredTypes())
	}
	return constructor(), nil
}

// Create открывает соединение по конфигурации
func (f *Factory) Create(ctx context.Context, cfg Config) (*SQLConn, error) {
	d, err := f.Dialect(cfg.Type)
	if err != nil {
		return nil, err
	}

	conn, err := Connect(ctx, cfg, d)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Type, err)
	}
	return conn, nil
}

// ========== Global Factory ==========

var globalFactory = NewFactory()

// Register регистрирует диалект в глобальной фабрике
// Обычно вызывается в init() пакета диалекта:
//
//	func init() {
//	    adapters.Register("sqlite", func() adapters.Dialect {
//	        return New()
//	    })
//	}
func Register(dbType string, constructor DialectConstructor) {
	globalFactory.Register(dbType, constructor)
}

// Unregister удаляет диалект из глобальной фабрики
func Unregister(dbType string) {
	globalFactory.Unregister(dbType)
}

// IsRegistered проверяет регистрацию в глобальной фабрике
func IsRegistered(dbType string) bool {
	return globalFactory.IsRegistered(dbType)
}

// GetRegisteredTypes возвращает типы из глобальной фабрики
func GetRegisteredTypes() []string {
	return globalFactory.GetRegisteredTypes()
}

// LookupDialect возвращает диалект из глобальной фабрики
func LookupDialect(dbType string) (Dialect, error) {
	return globalFactory.Dialect(dbType)
}

// New открывает соединение через глобальную фабрику
//
// Пример:
//
//	conn, err := adapters.New(ctx, adapters.Config{
//	    Type: "sqlite",
//	    DSN:  "file:app.db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close(ctx)
func New(ctx context.Context, cfg Config) (*SQLConn, error) {
	return globalFactory.Create(ctx, cfg)
}

// MustNew открывает соединение или паникует при ошибке
// Использовать только в init() или main() где паника допустима
func MustNew(ctx context.Context, cfg Config) *SQLConn {
	conn, err := New(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to open connection: %v", err))
	}
	return conn
}
