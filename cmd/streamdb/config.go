package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	dslog "github.com/grafana/dskit/log"
	"gopkg.in/yaml.v3"

	"github.com/grafana/streamdb/pkg/engine"
	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/types"
)

// Config is the root configuration of the streamdb binary.
type Config struct {
	HTTPListenAddress string      `yaml:"http_listen_address"`
	LogLevel          dslog.Level `yaml:"log_level"`

	Engine engine.Config `yaml:"engine"`

	// Tables and Views are created in order on startup.
	Tables []TableConfig `yaml:"tables"`
	Views  []ViewConfig  `yaml:"views"`
}

type TableConfig struct {
	Name       string            `yaml:"name"`
	System     bool              `yaml:"system"`
	Columns    []ColumnConfig    `yaml:"columns"`
	PrimaryKey []string          `yaml:"primary_key"`
	With       map[string]string `yaml:"with"`
}

type ColumnConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	NotNull bool   `yaml:"not_null"`
}

type ViewConfig struct {
	Name    string   `yaml:"name"`
	Plan    string   `yaml:"plan"`
	Columns []string `yaml:"columns"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&cfg.HTTPListenAddress, "server.http-listen-address", ":8080", "HTTP listen address for metrics and readiness.")
	_ = cfg.LogLevel.Set("info")
	f.Var(&cfg.LogLevel, "log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error]")
	cfg.Engine.RegisterFlagsWithPrefix("engine.", f)
}

func (cfg *Config) Validate() error {
	if err := cfg.Engine.Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	names := make(map[string]struct{})
	for _, t := range cfg.Tables {
		if _, err := t.statement(); err != nil {
			return err
		}
		names[t.Name] = struct{}{}
	}
	for _, v := range cfg.Views {
		if v.Name == "" || v.Plan == "" {
			return errors.New("views need a name and a plan")
		}
		if _, ok := names[v.Name]; ok {
			return fmt.Errorf("view %s has the name of another table or view", v.Name)
		}
		names[v.Name] = struct{}{}
	}
	return nil
}

func (t TableConfig) statement() (*engine.CreateTable, error) {
	if t.Name == "" {
		return nil, errors.New("tables need a name")
	}
	stmt := &engine.CreateTable{
		Name:       t.Name,
		Type:       catalog.Base,
		PrimaryKey: t.PrimaryKey,
		With:       t.With,
	}
	if t.System {
		stmt.Type = catalog.System
	}
	for _, c := range t.Columns {
		kind, err := types.ParseKind(c.Type)
		if err != nil {
			return nil, fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
		}
		typ := kind.Nullable()
		if c.NotNull {
			typ = kind.NotNull()
		}
		stmt.Columns = append(stmt.Columns, catalog.ColumnDesc{Name: c.Name, Type: typ})
	}
	return stmt, nil
}

func (v ViewConfig) statement() *engine.CreateMaterializedView {
	return &engine.CreateMaterializedView{Name: v.Name, Plan: v.Plan, Columns: v.Columns}
}

// loadConfig registers flags on fs, applies the YAML file named by
// -config.file and then lets command line flags override file values.
func loadConfig(args []string, fs *flag.FlagSet) (*Config, error) {
	var (
		cfg        Config
		configFile string
	)
	cfg.RegisterFlags(fs)
	fs.StringVar(&configFile, "config.file", "", "YAML file to load.")

	// First pass only looks for the config file.
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configFile, err)
		}
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
