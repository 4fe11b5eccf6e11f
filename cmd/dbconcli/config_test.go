package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ruslano69/dbcon/pkg/processors"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "sqlite",
			cfg:  DatabaseConfig{Type: "sqlite", Database: "app.db"},
			want: "app.db",
		},
		{
			name: "postgres defaults",
			cfg:  DatabaseConfig{Type: "postgres", Host: "db", Port: 5432, Database: "x", User: "u", Password: "p"},
			want: "postgres://u:p@db:5432/x?sslmode=disable&search_path=public",
		},
		{
			name: "mssql",
			cfg:  DatabaseConfig{Type: "mssql", Host: "db", Port: 1433, Database: "x", User: "sa", Password: "p"},
			want: "sqlserver://sa:p@db:1433?database=x",
		},
		{
			name: "mysql",
			cfg:  DatabaseConfig{Type: "mysql", Host: "db", Port: 3306, Database: "x", User: "root", Password: "p"},
			want: "root:p@tcp(db:3306)/x?parseTime=true",
		},
		{
			name: "odbc",
			cfg:  DatabaseConfig{Type: "odbc", Driver: "ODBC Driver 17 for SQL Server", Host: "10.0.0.5", Database: "x", User: "u", Password: "p"},
			want: "Driver={ODBC Driver 17 for SQL Server};Server=10.0.0.5;Database=x;UID=u;PWD=p;Trusted_Connection=no;",
		},
		{
			name: "explicit dsn wins",
			cfg:  DatabaseConfig{Type: "postgres", DSN: "postgres://other", Host: "db"},
			want: "postgres://other",
		},
		{
			name: "unknown",
			cfg:  DatabaseConfig{Type: "oracle"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BuildDSN(); got != tt.want {
				t.Errorf("BuildDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestODBCConnectionString(t *testing.T) {
	got := ODBCConnectionString("{SQL Server}", "srv,1433", "db", "", "", true)
	want := "Driver={SQL Server};Server=srv,1433;Database=db;UID=;PWD=;Trusted_Connection=yes;"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}

	if got := ODBCConnectionString("", "s", "d", "u", "p", false); got != "Driver={SQL Server};Server=s;Database=d;UID=u;PWD=p;Trusted_Connection=no;" {
		t.Errorf("default driver: %q", got)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("DBCON_TEST_PASSWORD", "s3cret")

	got := string(expandEnv([]byte("password: ${DBCON_TEST_PASSWORD}\nraw: pa$$word\nmissing: ${DBCON_TEST_UNSET}")))
	want := "password: s3cret\nraw: pa$$word\nmissing: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("DBCON_TEST_DB=orders.db\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("DBCON_TEST_DB") })

	configFile := filepath.Join(dir, "config.yaml")
	data := `
database:
  type: sqlite
  database: ${DBCON_TEST_DB}
table:
  table: orders
  key_column: id
  list_keys: [sku]
  types:
    prefix:
      dt_: DATETIME
      is_: BOOLEAN
  retry:
    enabled: true
    max_attempts: 4
    initial_delay: 250ms
circuit_breaker:
  enabled: true
  max_failures: 3
  cooldown: 1m
ingest:
  batch_size: 200
processors:
  - type: field_masker
    params:
      fields:
        email: partial
  - type: field_validator
    params:
      fields:
        age: ["range:0-150"]
`
	if err := os.WriteFile(configFile, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := LoadEnv(envFile); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	cfg, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Database.BuildDSN() != "orders.db" {
		t.Errorf("env reference not expanded: %q", cfg.Database.Database)
	}
	if cfg.Table.Table != "orders" || cfg.Table.KeyColumn != "id" || len(cfg.Table.ListKeys) != 1 {
		t.Errorf("unexpected table config %+v", cfg.Table)
	}
	if len(cfg.Table.Types.Prefix) != 2 || cfg.Table.Types.Prefix[0].Pattern != "dt_" {
		t.Errorf("prefix order lost: %+v", cfg.Table.Types.Prefix)
	}
	if cfg.Table.Retry.MaxAttempts != 4 || cfg.Table.Retry.InitialDelay != 250*time.Millisecond {
		t.Errorf("unexpected retry %+v", cfg.Table.Retry)
	}
	if !cfg.Breaker.Enabled || cfg.Breaker.MaxFailures != 3 || cfg.Breaker.Cooldown != time.Minute {
		t.Errorf("unexpected breaker %+v", cfg.Breaker)
	}
	if cfg.Ingest.BatchSize != 200 {
		t.Errorf("batch size = %d", cfg.Ingest.BatchSize)
	}
	if len(cfg.Processors) != 2 {
		t.Fatalf("processors = %d", len(cfg.Processors))
	}
	if _, err := processors.Build(cfg.Processors); err != nil {
		t.Errorf("processors from YAML must build: %v", err)
	}
}

func TestLoadEnv_MissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env must be ignored: %v", err)
	}
}

func TestSampleConfigRoundTrip(t *testing.T) {
	for _, dbType := range []string{"sqlite", "postgres", "mysql", "mssql", "odbc"} {
		t.Run(dbType, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := SaveConfig(path, CreateSampleConfig(dbType)); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if cfg.Database.Type != dbType {
				t.Errorf("type = %s", cfg.Database.Type)
			}
			if cfg.Table.Retry.MaxAttempts != 10 || !cfg.Table.Retry.DLQ.Enabled {
				t.Errorf("unexpected retry %+v", cfg.Table.Retry)
			}
			if cfg.Breaker.Cooldown != 30*time.Second {
				t.Errorf("cooldown = %s", cfg.Breaker.Cooldown)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger(LoggingConfig{Level: "debug", Format: "json"}, false); err != nil {
		t.Errorf("newLogger failed: %v", err)
	}
	if _, err := newLogger(LoggingConfig{Level: "loud"}, false); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger(LoggingConfig{Format: "xml"}, false); err == nil {
		t.Error("expected error for unknown format")
	}
}
