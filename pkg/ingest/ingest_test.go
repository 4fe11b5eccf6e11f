package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruslano69/dbcon/pkg/adapters"
	_ "github.com/ruslano69/dbcon/pkg/adapters/sqlite"
	"github.com/ruslano69/dbcon/pkg/brokers"
	"github.com/ruslano69/dbcon/pkg/processors"
	"github.com/ruslano69/dbcon/pkg/record"
	"github.com/ruslano69/dbcon/pkg/resilience"
	"github.com/ruslano69/dbcon/pkg/source"
	"github.com/ruslano69/dbcon/pkg/upsert"
)

func newEngine(t *testing.T) *upsert.Engine {
	t.Helper()
	ctx := context.Background()
	conn, err := adapters.New(ctx, adapters.Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "ingest.db"),
	})
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	e, err := upsert.New(ctx, conn, upsert.Config{Table: "orders", KeyColumn: "id"})
	if err != nil {
		t.Fatalf("upsert.New failed: %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })
	return e
}

func openLines(t *testing.T, lines ...string) source.Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	r, err := source.OpenJSON(path)
	if err != nil {
		t.Fatalf("OpenJSON failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestLoad_SingleRecords(t *testing.T) {
	e := newEngine(t)
	r := openLines(t,
		`{"id": 1, "v": "a"}`,
		`{"id": 2, "v": "b"}`,
		`{"id": 1, "v": "c"}`,
		`{"v": "no key"}`,
	)

	stats, err := Load(context.Background(), r, e, Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stats.Records != 4 || stats.Inserted != 2 || stats.Rejected != 1 || stats.Failed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.EndTime.IsZero() || stats.Duration < 0 {
		t.Errorf("bad timing %+v", stats)
	}
}

func TestLoad_StopOnError(t *testing.T) {
	e := newEngine(t)
	r := openLines(t, `{"v": "no key"}`, `{"id": 1}`)

	_, err := Load(context.Background(), r, e, Options{StopOnError: true})
	var mk *upsert.MissingKeyError
	if !errors.As(err, &mk) {
		t.Fatalf("expected MissingKeyError, got %v", err)
	}
	if !strings.Contains(err.Error(), "record 1") {
		t.Errorf("error must name the record: %v", err)
	}
}

func TestLoad_Batched(t *testing.T) {
	e := newEngine(t)
	r := openLines(t,
		`{"id": 1, "v": "a"}`,
		`{"id": 2, "v": "b"}`,
		`{"id": 3, "v": "c"}`,
		`{"id": 1, "v": "d"}`,
		`{"id": 4, "v": "e"}`,
	)

	stats, err := Load(context.Background(), r, e, Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stats.Flushes != 3 {
		t.Errorf("flushes = %d, want 3", stats.Flushes)
	}
	if stats.Inserted != 4 || stats.Updated != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if e.Pending() != 0 {
		t.Errorf("pending = %d", e.Pending())
	}
}

func TestLoad_BatchShapeFallback(t *testing.T) {
	e := newEngine(t)
	r := openLines(t,
		`{"id": 1, "a": 1}`,
		`{"id": 2, "b": 2}`,
	)

	stats, err := Load(context.Background(), r, e, Options{BatchSize: 10})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stats.Inserted != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if !e.HasColumn("a") || !e.HasColumn("b") {
		t.Error("expected both columns after fallback")
	}
}

func TestLoad_BatchRecordErrorFallback(t *testing.T) {
	e := newEngine(t)
	r := openLines(t,
		`{"id": 1}`,
		`{"id": null}`,
		`{"id": 3}`,
	)

	stats, err := Load(context.Background(), r, e, Options{BatchSize: 10})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stats.Inserted != 2 || stats.Failed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if !e.HasKey(1) || !e.HasKey(3) {
		t.Error("valid records of the batch must be written")
	}
	if e.Pending() != 0 {
		t.Errorf("pending = %d", e.Pending())
	}

	// со StopOnError ошибка пакета прерывает загрузку
	e = newEngine(t)
	r = openLines(t, `{"id": 1}`, `{"id": null}`)
	if _, err := Load(context.Background(), r, e, Options{BatchSize: 10, StopOnError: true}); err == nil {
		t.Error("expected error with StopOnError")
	}
}

func TestLoad_Processor(t *testing.T) {
	e := newEngine(t)
	r := openLines(t,
		`{"id": 1, "email": "John@Example.com"}`,
		`{"id": 2, "email": "broken"}`,
	)
	p, err := processors.Build([]processors.Config{
		{Type: "field_normalizer", Params: map[string]any{"fields": map[string]any{"email": "email"}}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	stats, err := Load(context.Background(), r, e, Options{Processor: p})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if stats.Inserted != 1 || stats.Failed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if e.HasKey(2) {
		t.Error("record that failed normalization must not be written")
	}
}

// memorySource - очередь в памяти
type memorySource struct {
	queue    [][]byte
	current  []byte
	acked    int
	nacked   int
	requeued int
}

func (s *memorySource) Connect(context.Context) error { return nil }
func (s *memorySource) Ping(context.Context) error    { return nil }
func (s *memorySource) Type() string                  { return "memory" }
func (s *memorySource) Close() error                  { return nil }

func (s *memorySource) Send(_ context.Context, message []byte) error {
	s.queue = append(s.queue, message)
	return nil
}

func (s *memorySource) Receive(ctx context.Context) ([]byte, error) {
	if len(s.queue) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, brokers.ErrNoMessage
	}
	s.current, s.queue = s.queue[0], s.queue[1:]
	return s.current, nil
}

func (s *memorySource) Ack(context.Context) error {
	if s.current == nil {
		return brokers.ErrNoDelivery
	}
	s.acked++
	s.current = nil
	return nil
}

func (s *memorySource) Nack(_ context.Context, requeue bool) error {
	if s.current == nil {
		return brokers.ErrNoDelivery
	}
	s.nacked++
	if requeue {
		s.requeued++
		s.queue = append(s.queue, s.current)
	}
	s.current = nil
	return nil
}

func TestConsume_AcksProcessedMessages(t *testing.T) {
	e := newEngine(t)
	src := &memorySource{}
	ctx := context.Background()
	src.Send(ctx, []byte(`{"id": 1, "v": "a"}`))
	src.Send(ctx, []byte(`[{"id": 2}, {"id": 3}]`))
	src.Send(ctx, []byte(`not json`))
	src.Send(ctx, []byte(`{"v": "no key"}`))

	stats, err := Consume(ctx, src, e, nil, Options{MaxMessages: 4, Upsert: upsert.Options{Force: true}})
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if stats.Messages != 4 || stats.Inserted != 3 || stats.Failed != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if src.acked != 3 || src.nacked != 1 || src.requeued != 0 {
		t.Errorf("acked=%d nacked=%d requeued=%d", src.acked, src.nacked, src.requeued)
	}
	for _, key := range []int{1, 2, 3} {
		if !e.HasKey(key) {
			t.Errorf("key %d missing", key)
		}
	}
}

func TestConsume_StopsOnCancel(t *testing.T) {
	e := newEngine(t)
	src := &memorySource{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	stats, err := Consume(ctx, src, e, nil, Options{})
	if err != nil {
		t.Fatalf("cancel must end the loop cleanly: %v", err)
	}
	if stats.Messages != 0 {
		t.Errorf("messages = %d", stats.Messages)
	}
}

// failingSink - приемник, у которого отказала БД
type failingSink struct {
	Sink
	calls int
	err   error
}

func (s *failingSink) Upsert(context.Context, *record.Record, upsert.Options) (upsert.Outcome, error) {
	s.calls++
	if s.err != nil {
		return upsert.NoOutcome, s.err
	}
	return upsert.NoOutcome, &upsert.ExhaustedError{Kind: upsert.StatementFailure, Attempts: 10, Err: errors.New("connection reset")}
}

func TestConsume_SchemaFailureRequeues(t *testing.T) {
	src := &memorySource{}
	ctx := context.Background()
	src.Send(ctx, []byte(`{"id": 1, "extra": "x"}`))

	sink := &failingSink{err: &upsert.SchemaError{Table: "orders", Column: "extra", Err: upsert.ErrNoResult}}
	stats, err := Consume(ctx, src, sink, nil, Options{MaxMessages: 1})
	if err == nil {
		t.Fatal("failed ALTER must stop consuming without a breaker")
	}
	if src.acked != 0 || src.requeued != 1 || len(src.queue) != 1 {
		t.Errorf("acked=%d requeued=%d queue=%d", src.acked, src.requeued, len(src.queue))
	}
	if stats.Failed != 0 {
		t.Errorf("sink failure must not count as a failed record, got %+v", stats)
	}
}

func TestLoad_SchemaFailureStops(t *testing.T) {
	r := openLines(t, `{"id": 1}`, `{"id": 2}`)
	sink := &failingSink{err: &upsert.SchemaError{Table: "orders", Err: upsert.ErrNoResult}}

	stats, err := Load(context.Background(), r, sink, Options{})
	if !errors.Is(err, upsert.ErrNoResult) {
		t.Fatalf("expected schema failure, got %v", err)
	}
	if sink.calls != 1 || stats.Failed != 0 {
		t.Errorf("calls=%d stats=%+v", sink.calls, stats)
	}
}

func TestConsume_BreakerRequeues(t *testing.T) {
	src := &memorySource{}
	ctx := context.Background()
	src.Send(ctx, []byte(`{"id": 1}`))

	cfg := resilience.DefaultConfig("orders")
	cfg.MaxFailures = 2
	cfg.Cooldown = time.Hour
	cfg.IsFailure = IsSinkFailure
	breaker, err := resilience.New(cfg, nil)
	if err != nil {
		t.Fatalf("resilience.New failed: %v", err)
	}

	sink := &failingSink{}
	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := Consume(runCtx, src, sink, breaker, Options{}); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	if sink.calls != 2 {
		t.Errorf("open breaker must stop deliveries, got %d calls", sink.calls)
	}
	if breaker.State() != resilience.StateOpen {
		t.Errorf("breaker = %s", breaker.State())
	}
	if src.requeued != 2 || len(src.queue) != 1 {
		t.Errorf("message must stay queued: requeued=%d queue=%d", src.requeued, len(src.queue))
	}
}

func TestIsSinkFailure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{ErrDropped, true},
		{&upsert.ExhaustedError{Err: errors.New("x")}, true},
		{&upsert.MissingKeyError{Column: "id"}, false},
		{&upsert.InvalidColumnError{Column: "a;b", Err: errors.New("invalid")}, false},
		{&upsert.SchemaError{Table: "orders", Column: "v", Err: upsert.ErrColumnMissing}, false},
		{&upsert.SchemaError{Table: "orders", Column: "v", Err: upsert.ErrNoResult}, true},
		{errors.Join(&upsert.SchemaError{Table: "orders", Column: "v", Err: errors.New("locked")}), true},
		{errors.New("connection refused"), true},
	}
	for _, tt := range tests {
		if got := IsSinkFailure(tt.err); got != tt.want {
			t.Errorf("IsSinkFailure(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
