package dbconnector

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Driver selects the backend a pool talks to.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// Config controls the behavior of one connection pool. It is read once at
// Connect and immutable thereafter.
type Config struct {
	// Driver selects the backend. Required.
	Driver Driver `yaml:"driver"`

	// Host and Port locate the server. Port defaults per driver (5432 for
	// postgres, 3306 for mysql). Ignored for sqlite.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// User and Password authenticate. Ignored for sqlite.
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Database is the database name. For sqlite it doubles as the file
	// path when Path is unset.
	Database string `yaml:"database"`

	// Path is the sqlite database file. Takes precedence over Database.
	Path string `yaml:"path"`

	// DisableTLS turns off transport encryption. The default negotiates
	// TLS with the server.
	DisableTLS bool `yaml:"disable_tls"`

	// PoolSize bounds the number of simultaneously lent connections.
	// Defaults to 5.
	PoolSize int `yaml:"pool_size"`

	// ConnectTimeout bounds dialing one physical connection. Defaults to 10s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// PingAttempts and PingDelay bound the liveness probe run before an
	// existing connection is reused. Defaults: 2 attempts, 250ms apart.
	PingAttempts int           `yaml:"ping_attempts"`
	PingDelay    time.Duration `yaml:"ping_delay"`
}

// withDefaults returns a copy of c with unset knobs filled in.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		switch c.Driver {
		case DriverPostgres:
			c.Port = 5432
		case DriverMySQL:
			c.Port = 3306
		}
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 5
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PingAttempts <= 0 {
		c.PingAttempts = 2
	}
	if c.PingDelay <= 0 {
		c.PingDelay = 250 * time.Millisecond
	}
	return c
}

func (c Config) validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" && c.Database == "" {
			return errors.New("dbconnector: sqlite requires Config.Path or Config.Database")
		}
	case DriverPostgres, DriverMySQL:
		if c.Host == "" {
			return errors.New("dbconnector: Config.Host is required")
		}
		if c.Database == "" {
			return errors.New("dbconnector: Config.Database is required")
		}
	default:
		return fmt.Errorf("dbconnector: unknown driver %q", c.Driver)
	}
	return nil
}

// LoadConfig reads one named section from a YAML configuration file.
//
// The file holds one section per pool:
//
//	film_archive:
//	  driver: mysql
//	  host: db.example.com
//	  user: app
//	  password: hunter2
//	  database: film
//	  pool_size: 8
//
// A missing file or section is a hard configuration error.
func LoadConfig(path, section string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("dbconnector: read config %s: %w", path, err)
	}

	var sections map[string]Config
	if err := yaml.Unmarshal(raw, &sections); err != nil {
		return Config{}, fmt.Errorf("dbconnector: parse config %s: %w", path, err)
	}

	cfg, ok := sections[section]
	if !ok {
		return Config{}, fmt.Errorf("dbconnector: config %s has no section %q", path, section)
	}
	return cfg, nil
}
