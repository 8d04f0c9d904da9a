package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	Session   SessionConfig   `yaml:"session"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	Projects  []ProjectTool   `yaml:"projects"`
	MCP       MCPConfig       `yaml:"mcp"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Path, when set, sends logs to a size-capped file instead of the console.
	Path string `yaml:"path"`
}

// TransportConfig selects how the coordinator is served: "http" or "stdio".
type TransportConfig struct {
	Mode string `yaml:"mode"`
}

// SessionConfig controls the in-memory session registry and its cookie.
type SessionConfig struct {
	CookieName    string        `yaml:"cookie_name"`
	CookieSecure  bool          `yaml:"cookie_secure"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Tools         []string      `yaml:"tools"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

type StoreConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ProjectTool maps a tool to the document collection holding its projects.
type ProjectTool struct {
	Tool       string `yaml:"tool"`
	Collection string `yaml:"collection"`
}

// MCPConfig holds settings for the MCP tool surface.
type MCPConfig struct {
	// UserID is the local operator every MCP call acts as.
	UserID string `yaml:"user_id"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "dungeonmind.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Session: SessionConfig{
			CookieName:    "dungeonmind_session_id",
			IdleTimeout:   24 * time.Hour,
			SweepInterval: 5 * time.Minute,
			Tools:         []string{"cardgenerator", "storegenerator", "ruleslawyer", "statblockgenerator"},
		},
		Auth: AuthConfig{
			JWTIssuer: "dungeonmind",
		},
		Store: StoreConfig{
			Timeout: 5 * time.Second,
		},
		Projects: []ProjectTool{
			{Tool: "cardgenerator", Collection: "cardgen_projects"},
		},
		MCP: MCPConfig{
			UserID: "local",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("DUNGEONMIND_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("DUNGEONMIND_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("DUNGEONMIND_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid DUNGEONMIND_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("DUNGEONMIND_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("DUNGEONMIND_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("DUNGEONMIND_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if mode := os.Getenv("DUNGEONMIND_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if secret := os.Getenv("DUNGEONMIND_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if timeout := os.Getenv("DUNGEONMIND_SESSION_IDLE_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid DUNGEONMIND_SESSION_IDLE_TIMEOUT: %w", err)
		}
		cfg.Session.IdleTimeout = d
	}
	if secure := os.Getenv("DUNGEONMIND_COOKIE_SECURE"); secure != "" {
		b, err := strconv.ParseBool(secure)
		if err != nil {
			return fmt.Errorf("invalid DUNGEONMIND_COOKIE_SECURE: %w", err)
		}
		cfg.Session.CookieSecure = b
	}
	if userID := os.Getenv("DUNGEONMIND_MCP_USER_ID"); userID != "" {
		cfg.MCP.UserID = userID
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Transport.Mode != "http" && c.Transport.Mode != "stdio" {
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if c.Session.IdleTimeout < 0 {
		return fmt.Errorf("session idle timeout must not be negative")
	}
	if len(c.Projects) == 0 {
		return fmt.Errorf("at least one project tool is required")
	}
	seen := make(map[string]bool, len(c.Projects))
	for _, p := range c.Projects {
		if p.Tool == "" || p.Collection == "" {
			return fmt.Errorf("project tool and collection are required")
		}
		if seen[p.Tool] {
			return fmt.Errorf("duplicate project tool %q", p.Tool)
		}
		seen[p.Tool] = true
		if !slices.Contains(c.Session.Tools, p.Tool) {
			return fmt.Errorf("project tool %q is not a session tool", p.Tool)
		}
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
