package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ernie/fortress-ops/internal/logger"
)

// Config holds the application configuration
type Config struct {
	HTTP      HTTPConfig    `yaml:"http"`
	Telemetry Telemetry     `yaml:"telemetry"`
	Database  Database      `yaml:"database"`
	Auth      AuthConfig    `yaml:"auth"`
	Schedule  Schedule      `yaml:"schedule"`
	Log       logger.Config `yaml:"log"`
	Servers   []GameServer  `yaml:"servers"`
}

// HTTPConfig holds operator API settings
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Port       int    `yaml:"port"`
}

// Telemetry holds UDP ingress settings
type Telemetry struct {
	BindAddr string `yaml:"bind_addr"`
	BindPort int    `yaml:"bind_port"`
}

// Database holds SQLite settings
type Database struct {
	Path string `yaml:"path"`
}

// AuthConfig holds operator authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// Schedule holds scheduled-job settings
type Schedule struct {
	Timezone string `yaml:"timezone"`
}

// GameServer describes one managed TF2 server
type GameServer struct {
	Address           string `yaml:"address"`
	Name              string `yaml:"name"`
	Glyph             string `yaml:"glyph"`
	RconPassword      string `yaml:"rcon_password"`
	Aggregated        bool   `yaml:"aggregated"`
	AllowRally        bool   `yaml:"allow_rally"`
	CfgControlled     bool   `yaml:"cfg_controlled"`
	Schedulable       bool   `yaml:"schedulable"`
	PresenceChannelID string `yaml:"presence_channel_id"`
	EventLogSink      string `yaml:"event_log_sink"`

	FileTransfer FileTransfer `yaml:"file_transfer"`
}

// FileTransfer holds remote file channel credentials for a server
type FileTransfer struct {
	Kind     string `yaml:"kind"` // "ftp" (default) or "sftp"
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Set defaults
	if cfg.HTTP.ListenAddr == "" {
		cfg.HTTP.ListenAddr = "127.0.0.1"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Telemetry.BindAddr == "" {
		cfg.Telemetry.BindAddr = "0.0.0.0"
	}
	if cfg.Telemetry.BindPort == 0 {
		cfg.Telemetry.BindPort = 27100
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/fortress/fortress.db"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "US/Eastern"
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	for i := range cfg.Servers {
		if cfg.Servers[i].FileTransfer.Kind == "" {
			cfg.Servers[i].FileTransfer.Kind = "ftp"
		}
	}

	// Addresses are the registry's primary key; refuse duplicates early.
	seen := make(map[string]bool, len(cfg.Servers))
	for _, srv := range cfg.Servers {
		if srv.Address == "" {
			return nil, fmt.Errorf("server %q has no address", srv.Name)
		}
		if seen[srv.Address] {
			return nil, fmt.Errorf("duplicate server address %q", srv.Address)
		}
		seen[srv.Address] = true
	}

	return &cfg, nil
}
