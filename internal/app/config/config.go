package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/addrmap"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/adapters/opcua"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/app/sampler"
	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/store"
)

type Config struct {
	OPCUA    opcua.Config            `yaml:"opcua"`
	Sampler  sampler.Config          `yaml:"sampler"`
	Store    StoreConfig             `yaml:"store"`
	Metrics  MetricsConfig           `yaml:"metrics"`
	Reactors []addrmap.ReactorConfig `yaml:"reactors"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	c.OPCUA.ApplyDefaults()
	c.Sampler.ApplyDefaults()
	if c.Store.Driver == "" {
		c.Store.Driver = store.DriverSQLite
	}
	if c.Store.Driver == store.DriverSQLite && c.Store.DSN == "" {
		c.Store.DSN = "data/reactors.db"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	// The catalog ships with the rack's finalized NodeIds; explicit
	// reactor configuration replaces it wholesale.
	if len(c.Reactors) == 0 {
		c.Reactors = addrmap.DefaultCatalog()
	}
}

func (c *Config) Validate() error {
	if err := c.OPCUA.Validate(); err != nil {
		return fmt.Errorf("opcua config: %w", err)
	}
	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("store.driver must be %q or %q", store.DriverSQLite, store.DriverPostgres)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	if _, err := addrmap.New(c.Reactors); err != nil {
		return err
	}
	return nil
}
