package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ruslano69/dbcon/pkg/audit"
	"github.com/ruslano69/dbcon/pkg/brokers"
	"github.com/ruslano69/dbcon/pkg/processors"
	"github.com/ruslano69/dbcon/pkg/resilience"
	"github.com/ruslano69/dbcon/pkg/resultlog"
	"github.com/ruslano69/dbcon/pkg/retry"
	"github.com/ruslano69/dbcon/pkg/source"
	"github.com/ruslano69/dbcon/pkg/upsert"
)

// Config represents the main configuration structure
type Config struct {
	Database  DatabaseConfig    `yaml:"database"`
	Table     upsert.Config     `yaml:"table"`
	Ingest    IngestConfig      `yaml:"ingest,omitempty"`
	Source    source.Options    `yaml:"source,omitempty"`
	Broker    brokers.Config    `yaml:"broker,omitempty"`
	Breaker   resilience.Config `yaml:"circuit_breaker,omitempty"`
	Audit     AuditConfig       `yaml:"audit,omitempty"`
	ResultLog resultlog.Config  `yaml:"result_log,omitempty"`
	Logging   LoggingConfig     `yaml:"logging,omitempty"`

	Processors []processors.Config `yaml:"processors,omitempty"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Type        string `yaml:"type"`                   // sqlite, postgres, mssql, mysql, odbc
	DSN         string `yaml:"dsn,omitempty"`          // Overrides the fields below
	Host        string `yaml:"host,omitempty"`         // For network databases
	Port        int    `yaml:"port,omitempty"`         // Database port
	Database    string `yaml:"database"`               // Database name or file path
	User        string `yaml:"user,omitempty"`         // Username
	Password    string `yaml:"password,omitempty"`     // Password
	Schema      string `yaml:"schema,omitempty"`       // PostgreSQL schema (default: public)
	WindowsAuth bool   `yaml:"windows_auth,omitempty"` // MS SQL / ODBC trusted connection
	SSLMode     string `yaml:"sslmode,omitempty"`      // PostgreSQL SSL mode
	Driver      string `yaml:"driver,omitempty"`       // ODBC driver name
}

// IngestConfig - defaults for the ingest and consume commands
type IngestConfig struct {
	BatchSize   int  `yaml:"batch_size,omitempty"`
	Force       bool `yaml:"force,omitempty"`
	KeepNulls   bool `yaml:"keep_nulls,omitempty"`
	NoCreate    bool `yaml:"no_create_columns,omitempty"`
	StopOnError bool `yaml:"stop_on_error,omitempty"`
}

// AuditConfig for audit logging settings
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"` // minimal, standard, full
	Async   bool   `yaml:"async,omitempty"`

	File       string `yaml:"file,omitempty"`
	MaxSize    int64  `yaml:"max_size_mb,omitempty"` // Max file size in MB
	MaxBackups int    `yaml:"max_backups,omitempty"`
	JSON       bool   `yaml:"json,omitempty"`
	Console    bool   `yaml:"console,omitempty"` // Log to stderr

	// Table - audit table in the target database (empty = disabled)
	Table string `yaml:"table,omitempty"`
}

// LoggingConfig for diagnostic logging
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text, json
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references; bare $ is left as is
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadEnv loads a dotenv file; a missing file is not an error
func LoadEnv(filename string) error {
	if filename == "" {
		return nil
	}
	if err := godotenv.Load(filename); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", filename, err)
	}
	return nil
}

// LoadConfig loads configuration from YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveConfig saves configuration to YAML file
func SaveConfig(filename string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateSampleConfig creates sample configuration for different database types
func CreateSampleConfig(dbType string) *Config {
	config := &Config{
		Database: DatabaseConfig{
			Type: dbType,
		},
		Table: upsert.Config{
			Table:     "records",
			KeyColumn: "id",
			Retry:     retry.StatementDefaults(),
		},
		Ingest: IngestConfig{
			BatchSize: 500,
			Force:     true,
		},
		Breaker: resilience.DefaultConfig("records"),
		Audit: AuditConfig{
			Enabled: true,
			Level:   "standard",
			File:    "audit.log",
			MaxSize: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	config.Table.Retry.DLQ.Enabled = true
	config.Table.Retry.DLQ.FilePath = "dlq.json"

	switch dbType {
	case "postgres", "postgresql":
		config.Database.Host = "localhost"
		config.Database.Port = 5432
		config.Database.Database = "mydb"
		config.Database.User = "postgres"
		config.Database.Password = "${DB_PASSWORD}"
		config.Database.Schema = "public"
		config.Database.SSLMode = "disable"

	case "mssql", "sqlserver":
		config.Database.Host = "localhost"
		config.Database.Port = 1433
		config.Database.Database = "mydb"
		config.Database.User = "sa"
		config.Database.Password = "${DB_PASSWORD}"

	case "odbc":
		config.Database.Driver = "ODBC Driver 17 for SQL Server"
		config.Database.Host = "localhost"
		config.Database.Database = "mydb"
		config.Database.User = "sa"
		config.Database.Password = "${DB_PASSWORD}"

	case "sqlite":
		config.Database.Database = "database.db"

	case "mysql":
		config.Database.Host = "localhost"
		config.Database.Port = 3306
		config.Database.Database = "mydb"
		config.Database.User = "root"
		config.Database.Password = "${DB_PASSWORD}"
	}

	return config
}

// BuildDSN constructs database connection string from config
func (c *DatabaseConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	switch c.Type {
	case "postgres", "postgresql":
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		schema := c.Schema
		if schema == "" {
			schema = "public"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
			c.User, c.Password, c.Host, c.Port, c.Database, sslMode, schema)

	case "mssql", "sqlserver":
		if c.WindowsAuth {
			return fmt.Sprintf("sqlserver://%s:%d?database=%s&integrated security=SSPI",
				c.Host, c.Port, c.Database)
		}
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			c.User, c.Password, c.Host, c.Port, c.Database)

	case "odbc":
		return ODBCConnectionString(c.Driver, c.server(), c.Database, c.User, c.Password, c.WindowsAuth)

	case "sqlite":
		return c.Database

	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)

	default:
		return ""
	}
}

// server - host[,port] in SQL Server notation
func (c *DatabaseConfig) server() string {
	if c.Port > 0 {
		return fmt.Sprintf("%s,%d", c.Host, c.Port)
	}
	return c.Host
}

// ODBCConnectionString builds a driver-manager connection string.
// The driver name is wrapped in braces unless it already is.
func ODBCConnectionString(driver, server, database, user, password string, trusted bool) string {
	if driver == "" {
		driver = "SQL Server"
	}
	if !strings.HasPrefix(driver, "{") {
		driver = "{" + driver + "}"
	}
	trustedConn := "no"
	if trusted {
		trustedConn = "yes"
	}
	return fmt.Sprintf("Driver=%s;Server=%s;Database=%s;UID=%s;PWD=%s;Trusted_Connection=%s;",
		driver, server, database, user, password, trustedConn)
}

// auditLevel parses the configured level
func (a AuditConfig) auditLevel() (audit.Level, error) {
	return audit.ParseLevel(a.Level)
}
