package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/drone/envsubst"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nwah/tripplanner/nav"
	"github.com/nwah/tripplanner/session"
	"github.com/nwah/tripplanner/storage"
	"github.com/nwah/tripplanner/waypoint"
)

// Config holds the application configuration
type Config struct {
	Port    string         `toml:"port"`
	Nav     nav.NavConfig  `toml:"nav"`
	Session session.Config `toml:"session"`
	Storage storage.Config `toml:"storage"`
	Log     LogConfig      `toml:"log"`
}

// LogConfig selects the logger level and encoder
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

var config Config

// LoadConfig loads the configuration from a TOML file. ${VAR} references
// are expanded from the environment, after loading .env if present.
func LoadConfig(filename string) error {
	cfg, err := readConfig(filename)
	if err != nil {
		return err
	}
	config = cfg
	return nil
}

func readConfig(filename string) (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("error loading .env: %v", err)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %v", err)
	}
	expanded, err := envsubst.EvalEnv(string(data))
	if err != nil {
		return cfg, fmt.Errorf("error expanding config file: %v", err)
	}
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return cfg, fmt.Errorf("error decoding config file: %v", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	// Validate required fields
	if c.Port == "" {
		c.Port = ":8080" // Default port
	}
	if c.Nav.NominatimURL == "" {
		return fmt.Errorf("nav.nominatim_url is required in config file")
	}
	if c.Nav.OverpassURL == "" {
		return fmt.Errorf("nav.overpass_url is required in config file")
	}

	if c.Nav.Router == "" {
		c.Nav.Router = string(nav.RouterOSRM)
	}
	switch kind := nav.RouterKind(c.Nav.Router); {
	case !kind.IsValid():
		return fmt.Errorf("nav.router must be %q or %q, got %q", nav.RouterOSRM, nav.RouterGoogle, c.Nav.Router)
	case kind == nav.RouterOSRM && c.Nav.OSRMURL == "":
		return fmt.Errorf("nav.osrm_url is required in config file")
	case kind == nav.RouterGoogle && c.Nav.GoogleAPIKey == "":
		return fmt.Errorf("nav.google_api_key is required when nav.router is google")
	}

	if c.Session.Mode == "" {
		c.Session.Mode = string(waypoint.DefaultMode)
	}
	if !waypoint.Mode(c.Session.Mode).IsValid() {
		return fmt.Errorf("session.mode must be %q or %q, got %q", waypoint.ModeDestinationFirst, waypoint.ModeBothEndpoints, c.Session.Mode)
	}
	if c.Session.Denylist == nil {
		c.Session.Denylist = nav.DefaultDenylist
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "tripplanner.db"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %v", err)
	}
	return nil
}

// GetConfig returns the current configuration
func GetConfig() Config {
	return config
}

// GetNavConfig returns the navigation-specific configuration
func GetNavConfig() nav.NavConfig {
	return config.Nav
}

// NewLogger builds the root logger from the log section
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
