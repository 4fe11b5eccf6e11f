package retry

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestRetryer_Success(t *testing.T) {
	retryer, err := NewRetryer(StatementDefaults())
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	attempts := 0
	err = retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

// TestRetryer_StatementDefaults - 10 попыток подряд без задержки
func TestRetryer_StatementDefaults(t *testing.T) {
	retryer, err := NewRetryer(StatementDefaults())
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	attempts := 0
	start := time.Now()
	err = retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("statement failed")
	})

	if attempts != 10 {
		t.Errorf("Expected 10 attempts, got %d", attempts)
	}
	var ae *AttemptsError
	if !errors.As(err, &ae) {
		t.Fatalf("Expected AttemptsError, got %v", err)
	}
	if ae.Attempts != 10 {
		t.Errorf("Expected Attempts=10, got %d", ae.Attempts)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Expected no backoff delay, took %v", time.Since(start))
	}
}

func TestRetryer_SuccessAfterRetries(t *testing.T) {
	retryer, err := NewRetryer(EnableRetry(5, 10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	attempts := 0
	start := time.Now()
	err = retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	// Проверяем что были задержки
	if time.Since(start) < 15*time.Millisecond {
		t.Errorf("Expected delays between retries, duration was too short: %v", time.Since(start))
	}
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	config := StatementDefaults()
	config.MaxAttempts = 3
	retryer, err := NewRetryer(config)
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	attempts := 0
	err = retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Error("Expected error after max attempts")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_ExponentialBackoff(t *testing.T) {
	config := EnableRetry(4, 50*time.Millisecond)
	config.BackoffStrategy = BackoffExponential
	config.Jitter = 0

	retryer, err := NewRetryer(config)
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	if d := retryer.calculateDelay(1); d != 50*time.Millisecond {
		t.Errorf("delay(1) = %v, want 50ms", d)
	}
	if d := retryer.calculateDelay(3); d != 200*time.Millisecond {
		t.Errorf("delay(3) = %v, want 200ms", d)
	}
	config.MaxDelay = 100 * time.Millisecond
	retryer, _ = NewRetryer(config)
	if d := retryer.calculateDelay(5); d != 100*time.Millisecond {
		t.Errorf("delay(5) = %v, want capped 100ms", d)
	}
}

func TestRetryer_LinearBackoff(t *testing.T) {
	config := EnableRetry(4, 10*time.Millisecond)
	config.BackoffStrategy = BackoffLinear
	config.Jitter = 0

	retryer, err := NewRetryer(config)
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}
	if d := retryer.calculateDelay(3); d != 30*time.Millisecond {
		t.Errorf("delay(3) = %v, want 30ms", d)
	}
}

func TestRetryer_ContextCancellation(t *testing.T) {
	retryer, err := NewRetryer(EnableRetry(10, 100*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err = retryer.Do(ctx, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	})
	if err == nil {
		t.Error("Expected context cancellation error")
	}
	if attempts > 3 {
		t.Errorf("Expected max 3 attempts with context cancellation, got %d", attempts)
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	callbackCalls := 0
	config := StatementDefaults()
	config.MaxAttempts = 3
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		callbackCalls++
	}

	retryer, err := NewRetryer(config)
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	retryer.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("error")
	})

	// 3 попытки = 2 retry = 2 callback calls
	if callbackCalls != 2 {
		t.Errorf("Expected 2 callback calls, got %d", callbackCalls)
	}
}

func TestRetryer_WithDLQ(t *testing.T) {
	config := StatementDefaults()
	config.MaxAttempts = 2
	config.DLQ.Enabled = true
	config.DLQ.FilePath = filepath.Join(t.TempDir(), "dlq.json")

	retryer, err := NewRetryer(config)
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}
	defer retryer.Close()

	fn := func(ctx context.Context) error {
		return errors.New("persistent error")
	}

	testData := map[string]string{"order_id": "12345"}
	if err := retryer.DoWithData(context.Background(), fn, testData); err == nil {
		t.Error("Expected error")
	}
	// Тот же payload второй раз не дублируется
	retryer.DoWithData(context.Background(), fn, testData)

	entries := retryer.GetDLQ().Get()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 DLQ entry, got %d", len(entries))
	}
	if entries[0].Occurrences != 2 {
		t.Errorf("Expected 2 occurrences, got %d", entries[0].Occurrences)
	}

	var got map[string]string
	if err := json.Unmarshal(entries[0].Data, &got); err != nil {
		t.Fatalf("DLQ data is not JSON: %v", err)
	}
	if got["order_id"] != "12345" {
		t.Errorf("unexpected DLQ data %v", got)
	}
}

func TestRetryer_RetryableErrors(t *testing.T) {
	config := StatementDefaults()
	config.MaxAttempts = 3
	config.RetryableErrors = []string{"timeout", "connection refused"}

	retryer, err := NewRetryer(config)
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	attempts := 0
	retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("connection refused")
	})
	if attempts != 3 {
		t.Errorf("Expected 3 retries for retryable error, got %d", attempts)
	}

	attempts = 0
	retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("invalid input")
	})
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestRetryer_Permanent(t *testing.T) {
	retryer, _ := NewRetryer(StatementDefaults())

	sentinel := errors.New("bad identifier")
	attempts := 0
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(sentinel)
	})

	if attempts != 1 {
		t.Errorf("Expected 1 attempt for permanent error, got %d", attempts)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped sentinel, got %v", err)
	}
}

func TestRetryer_Disabled(t *testing.T) {
	retryer, err := NewRetryer(DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	attempts := 0
	err = retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("error")
	})
	if err == nil {
		t.Error("Expected error when retry disabled")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt when retry disabled, got %d", attempts)
	}
}

func TestConfig_Validate(t *testing.T) {
	config := StatementDefaults()
	config.BackoffStrategy = ""
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if config.BackoffStrategy != BackoffConstant {
		t.Errorf("Expected default constant backoff, got %s", config.BackoffStrategy)
	}

	config.BackoffStrategy = "random"
	if err := config.Validate(); err == nil {
		t.Error("Expected error for unknown strategy")
	}

	config = EnableRetry(3, time.Second)
	config.MaxDelay = time.Millisecond
	if err := config.Validate(); err == nil {
		t.Error("Expected error for max_delay < initial_delay")
	}
}
