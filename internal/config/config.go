package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	View    ViewConfig
	Notify  NotifyConfig
	MCP     MCPConfig
	Auth    AuthConfig
	Client  ClientConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
	JSON  bool
}

// ViewConfig controls how lists are ordered for display.
type ViewConfig struct {
	Locale string
}

// NotifyConfig enables cross-process change notifications. Empty RedisAddr
// keeps notifications in-process.
type NotifyConfig struct {
	RedisAddr string
	Channel   string
}

type MCPConfig struct {
	Principal string
}

// AuthConfig holds the server-side token table as JSON (token -> principal).
type AuthConfig struct {
	Tokens string
}

// ClientConfig holds the CLI's credentials for talking to a running server.
type ClientConfig struct {
	Principal string
	Token     string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		View: ViewConfig{
			Locale: "en",
		},
		Notify: NotifyConfig{
			Channel: "jobtrack:changes",
		},
	}
}

// Addr returns the host:port the server listens on.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.jobtrack.app) and secrets
// live in the macOS Keychain (service: jobtrack).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/jobtrack/config.json
// and secrets live in $XDG_DATA_HOME/jobtrack/secrets.json.
//
// Environment variables (JOBTRACK_*) override backend values on all platforms.
func Load() (Config, error) {
	loadDotEnv()
	return loadWith(newPlatformBackend(), keychainStore{})
}

// loadDotEnv populates the environment from .env without overriding
// variables that are already set.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load .env: %v\n", err)
	}
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid config: server.port %d out of range", cfg.Server.Port)
	}

	return cfg, nil
}

// applySecrets fills secret keys not provided by the environment from the
// secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		if v, _ := s.extract(*cfg).(string); v != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

const secretService = "jobtrack"

// keychainStore reads and writes the platform secret store.
type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
