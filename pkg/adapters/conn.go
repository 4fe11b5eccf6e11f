package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Compile-time check
var _ Conn = (*SQLConn)(nil)

// SQLConn - реализация Conn поверх sqlx.
// Пул ограничен одним соединением: движок работает с одним живым соединением,
// а метаданные при открытой транзакции читаются через нее.
type SQLConn struct {
	cfg     Config
	dialect Dialect

	mu sync.Mutex
	db *sqlx.DB
	tx *sqlx.Tx
}

// Connect открывает соединение с заданным диалектом
func Connect(ctx context.Context, cfg Config, d Dialect) (*SQLConn, error) {
	c := &SQLConn{cfg: cfg, dialect: d}
	if err := c.open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SQLConn) open(ctx context.Context) error {
	db, err := sqlx.Open(c.dialect.DriverName(), c.cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := c.dialect.Prepare(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("failed to prepare connection: %w", err)
	}

	c.db = db
	return nil
}

// DB возвращает *sqlx.DB для прямого доступа
func (c *SQLConn) DB() *sqlx.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}

// Dialect возвращает диалект соединения
func (c *SQLConn) Dialect() Dialect {
	return c.dialect
}

func (c *SQLConn) rebind(query string) string {
	return sqlx.Rebind(c.dialect.BindType(), query)
}

// begin открывает транзакцию, если она еще не открыта (под c.mu)
func (c *SQLConn) begin(ctx context.Context) (*sqlx.Tx, error) {
	if c.db == nil {
		return nil, ErrNotConnected
	}
	if c.tx != nil {
		return c.tx, nil
	}
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	c.tx = tx
	return tx, nil
}

// abort откатывает транзакцию после ошибки оператора (под c.mu)
func (c *SQLConn) abort() {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
}

// queryer возвращает открытую транзакцию или пул (под c.mu)
func (c *SQLConn) queryer() (sqlx.QueryerContext, error) {
	if c.db == nil {
		return nil, ErrNotConnected
	}
	if c.tx != nil {
		return c.tx, nil
	}
	return c.db, nil
}

// Exec выполняет оператор в текущей транзакции.
// При ошибке транзакция откатывается целиком.
func (c *SQLConn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, c.rebind(query), args...)
	if err != nil {
		c.abort()
		return nil, err
	}
	return res, nil
}

// ExecMany выполняет подготовленный оператор для каждой строки параметров
func (c *SQLConn) ExecMany(ctx context.Context, query string, rows [][]any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PreparexContext(ctx, c.rebind(query))
	if err != nil {
		c.abort()
		return 0, err
	}
	defer stmt.Close()

	var affected int64
	for i, args := range rows {
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			c.abort()
			return affected, fmt.Errorf("row %d: %w", i, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
	}
	return affected, nil
}

// Query выполняет запрос через открытую транзакцию или пул
func (c *SQLConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.queryer()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryxContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Commit фиксирует открытую транзакцию
func (c *SQLConn) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return ErrNotConnected
	}
	if c.tx == nil {
		return nil
	}
	err := c.tx.Commit()
	c.tx = nil
	return err
}

// Rollback откатывает открытую транзакцию
func (c *SQLConn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	return err
}

// Reconnect закрывает текущее соединение и открывает новое с теми же параметрами.
// Незафиксированные изменения теряются.
func (c *SQLConn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.abort()
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
	return c.open(ctx)
}

// TableExists проверяет существование таблицы
func (c *SQLConn) TableExists(ctx context.Context, table string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.queryer()
	if err != nil {
		return false, err
	}
	return c.dialect.TableExists(ctx, q, table)
}

// ListColumns возвращает колонки таблицы
func (c *SQLConn) ListColumns(ctx context.Context, table string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.queryer()
	if err != nil {
		return nil, err
	}
	return c.dialect.ListColumns(ctx, q, table)
}

// Close откатывает незафиксированные изменения и закрывает соединение
func (c *SQLConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.abort()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
