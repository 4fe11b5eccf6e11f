// Command dbconcli loads JSON, XLSX and broker records into a database
// table whose schema follows the data.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"
)

const version = "0.1.0"

// Globals - flags shared by all commands
type Globals struct {
	Config  string `short:"c" default:"config.yaml" help:"Path to YAML config" type:"path"`
	EnvFile string `name:"env-file" default:".env" help:"dotenv file loaded before the config" type:"path"`
	Table   string `short:"t" help:"Target table (overrides config)"`
	Verbose bool   `short:"v" help:"Debug logging and statement traces"`
}

// CLI defines the command-line interface for dbconcli.
var CLI struct {
	Globals

	Ingest  IngestCmd  `cmd:"" help:"Load records from a JSON, JSONL, XLSX file or s3:// object"`
	Consume ConsumeCmd `cmd:"" help:"Load records from a RabbitMQ queue or Kafka topic"`
	Publish PublishCmd `cmd:"" help:"Send records from a file to the configured broker"`
	Replay  ReplayCmd  `cmd:"" help:"Re-upsert records saved in a dead letter file"`
	Init    InitCmd    `cmd:"" help:"Write a sample config file"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("dbconcli %s\n", version)
	return nil
}

// InitCmd writes a sample config.
type InitCmd struct {
	Type   string `default:"sqlite" enum:"sqlite,postgres,mysql,mssql,odbc" help:"Database type"`
	Output string `short:"o" default:"config.yaml" help:"Output file" type:"path"`
}

func (c *InitCmd) Run() error {
	if err := SaveConfig(c.Output, CreateSampleConfig(c.Type)); err != nil {
		return err
	}
	fmt.Printf("✓ Created sample %s config: %s\n", c.Type, c.Output)
	fmt.Println("Edit the file with your database credentials and run:")
	fmt.Printf("  dbconcli ingest --config %s data.jsonl\n", c.Output)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("dbconcli"),
		kong.Description("Schema-evolving record loader"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
