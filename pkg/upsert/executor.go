package upsert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/record"
	"github.com/ruslano69/dbcon/pkg/retry"
)

// Statement - оператор для Executor. Если Rows не nil, оператор
// выполняется для каждой строки параметров (ExecMany).
type Statement struct {
	Query string
	Args  []any
	Rows  [][]any

	// letters строит записи DLQ только когда оператор исчерпал попытки
	letters func() []DeadLetter
}

// Result - результат выполненного оператора
type Result struct {
	RowsAffected int64
}

// DeadLetter - запись, которую не удалось сохранить.
// Попадает в DLQ как JSON; replay восстанавливает из нее запись.
type DeadLetter struct {
	Table     string         `json:"table"`
	Key       string         `json:"key"`
	Statement string         `json:"statement"`
	Record    *record.Record `json:"record"`
}

// deadLetters сериализуется лениво, только при записи в DLQ
type deadLetters func() []DeadLetter

func (f deadLetters) MarshalJSON() ([]byte, error) {
	return json.Marshal(f())
}

// ExecutorConfig - настройки устойчивого исполнителя
type ExecutorConfig struct {
	// Retry - повторы операторов (retry.StatementDefaults: 10 попыток без задержки)
	Retry retry.Config

	// ReconnectAttempts - переподключения при ошибке фиксации
	ReconnectAttempts int

	// Strict - возвращать ExhaustedError вместо пустого результата
	Strict bool

	// Verbose - трассировка операторов на уровне debug
	Verbose bool

	Logger *slog.Logger
}

// Executor выполняет операторы и фиксацию с ограниченными повторами.
//
// Ошибка оператора откатывает транзакцию соединения, поэтому перед
// повтором заново выполняются операторы, выполненные после последней
// фиксации (журнал). Ошибка фиксации ведет к переподключению, повтору
// журнала и новой фиксации, не более ReconnectAttempts раз.
//
// По исчерпании попыток в мягком режиме ошибка журналируется, записи
// уходят в DLQ, а вызывающий получает пустой результат (nil, nil).
type Executor struct {
	conn       adapters.Conn
	retryer    *retry.Retryer
	reconnects int
	strict     bool
	verbose    bool
	log        *slog.Logger

	journal []Statement
	broken  bool
}

// NewExecutor создает исполнитель поверх соединения
func NewExecutor(conn adapters.Conn, cfg ExecutorConfig) (*Executor, error) {
	retryer, err := retry.NewRetryer(cfg.Retry)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.ReconnectAttempts < 0 {
		cfg.ReconnectAttempts = 0
	}
	return &Executor{
		conn:       conn,
		retryer:    retryer,
		reconnects: cfg.ReconnectAttempts,
		strict:     cfg.Strict,
		verbose:    cfg.Verbose,
		log:        log,
	}, nil
}

// Execute выполняет оператор с повторами
func (x *Executor) Execute(ctx context.Context, st Statement) (*Result, error) {
	var (
		res      *Result
		attempts int
	)

	var data any
	if !x.strict && st.letters != nil {
		data = deadLetters(st.letters)
	}

	err := x.retryer.DoWithData(ctx, func(ctx context.Context) error {
		attempts++
		if x.broken {
			if err := x.replay(ctx); err != nil {
				return err
			}
		}
		r, err := x.once(ctx, st)
		if err != nil {
			x.broken = true
			x.log.Warn("statement failed", "attempt", attempts, "error", err)
			return err
		}
		res = r
		return nil
	}, data)

	if err == nil {
		x.journal = append(x.journal, st)
		return res, nil
	}

	x.reset(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// Retryer пишет в DLQ только при исчерпании попыток
	var ae *retry.AttemptsError
	if !errors.As(err, &ae) && st.letters != nil {
		x.deadLetter(StatementFailure, attempts, err, st.letters())
	}
	return nil, x.giveUp(StatementFailure, st.Query, attempts, err)
}

// Commit фиксирует транзакцию. false без ошибки - фиксация не удалась
// в мягком режиме, изменения журнала потеряны.
func (x *Executor) Commit(ctx context.Context) (bool, error) {
	err := x.conn.Commit(ctx)
	if err == nil {
		x.journal = nil
		x.broken = false
		return true, nil
	}
	return x.recommit(ctx, err, x.reconnects)
}

// recommit переподключается, повторяет журнал и фиксирует заново
func (x *Executor) recommit(ctx context.Context, cause error, left int) (bool, error) {
	if left <= 0 || ctx.Err() != nil {
		letters := x.journalLetters()
		x.reset(ctx)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		x.deadLetter(CommitFailure, x.reconnects+1, cause, letters)
		return false, x.giveUp(CommitFailure, "COMMIT", x.reconnects+1, cause)
	}

	x.log.Warn("commit failed, reconnecting", "error", cause, "reconnects_left", left)
	if err := x.conn.Reconnect(ctx); err != nil {
		return x.recommit(ctx, err, left-1)
	}
	x.broken = true
	if err := x.replay(ctx); err != nil {
		return x.recommit(ctx, err, left-1)
	}
	if err := x.conn.Commit(ctx); err != nil {
		return x.recommit(ctx, err, left-1)
	}
	x.journal = nil
	return true, nil
}

// Pending - количество операторов после последней фиксации
func (x *Executor) Pending() int {
	return len(x.journal)
}

// DLQ возвращает очередь недоставленных записей (nil если отключена)
func (x *Executor) DLQ() *retry.DLQ {
	return x.retryer.GetDLQ()
}

// Close сохраняет DLQ
func (x *Executor) Close() error {
	return x.retryer.Close()
}

func (x *Executor) once(ctx context.Context, st Statement) (*Result, error) {
	if x.verbose {
		x.log.Debug("execute", "sql", st.Query, "rows", len(st.Rows))
	}
	if st.Rows != nil {
		n, err := x.conn.ExecMany(ctx, st.Query, st.Rows)
		if err != nil {
			return nil, err
		}
		return &Result{RowsAffected: n}, nil
	}
	res, err := x.conn.Exec(ctx, st.Query, st.Args...)
	if err != nil {
		return nil, err
	}
	r := &Result{}
	if res != nil {
		r.RowsAffected, _ = res.RowsAffected()
	}
	return r, nil
}

// replay повторяет журнал после отката транзакции
func (x *Executor) replay(ctx context.Context) error {
	for i, st := range x.journal {
		if _, err := x.once(ctx, st); err != nil {
			return fmt.Errorf("replay of statement %d: %w", i, err)
		}
	}
	if len(x.journal) > 0 {
		x.log.Info("journal replayed", "statements", len(x.journal))
	}
	x.broken = false
	return nil
}

// reset отбрасывает журнал и незафиксированную транзакцию
func (x *Executor) reset(ctx context.Context) {
	x.journal = nil
	x.broken = false
	if err := x.conn.Rollback(context.WithoutCancel(ctx)); err != nil {
		x.log.Debug("rollback failed", "error", err)
	}
}

func (x *Executor) journalLetters() []DeadLetter {
	var out []DeadLetter
	for _, st := range x.journal {
		if st.letters != nil {
			out = append(out, st.letters()...)
		}
	}
	return out
}

// giveUp - конец попыток: ExhaustedError в strict режиме, иначе запись в журнал
func (x *Executor) giveUp(kind FailureKind, query string, attempts int, err error) error {
	var ae *retry.AttemptsError
	if errors.As(err, &ae) {
		err = ae.Err
	}
	if x.strict {
		return &ExhaustedError{Kind: kind, Statement: query, Attempts: attempts, Err: err}
	}
	x.log.Error("giving up", "kind", kind.String(), "attempts", attempts, "sql", query, "error", err)
	return nil
}

// deadLetter пишет записи в DLQ (только мягкий режим)
func (x *Executor) deadLetter(kind FailureKind, attempts int, err error, letters []DeadLetter) {
	dlq := x.retryer.GetDLQ()
	if dlq == nil || x.strict || len(letters) == 0 {
		return
	}
	data, mErr := json.Marshal(letters)
	if mErr != nil {
		x.log.Error("failed to encode dead letters", "error", mErr)
		return
	}
	dlq.Add(retry.DLQEntry{
		Timestamp:   time.Now(),
		Attempts:    attempts,
		LastError:   err.Error(),
		FailureType: kind.failureType(),
		Data:        data,
	})
}
