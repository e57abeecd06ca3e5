package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	account string // secret store account, for secret keys
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "JOBTRACK_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "JOBTRACK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "JOBTRACK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "JOBTRACK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.json", typ: kBool, env: "JOBTRACK_LOG_JSON",
		apply:   func(cfg *Config, v any) { cfg.Log.JSON = v.(bool) },
		extract: func(cfg Config) any { return cfg.Log.JSON },
	},
	{
		key: "view.locale", typ: kString, env: "JOBTRACK_VIEW_LOCALE",
		apply:   func(cfg *Config, v any) { cfg.View.Locale = v.(string) },
		extract: func(cfg Config) any { return cfg.View.Locale },
	},
	{
		key: "notify.redis_addr", typ: kString, env: "JOBTRACK_NOTIFY_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Notify.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.RedisAddr },
	},
	{
		key: "notify.channel", typ: kString, env: "JOBTRACK_NOTIFY_CHANNEL",
		apply:   func(cfg *Config, v any) { cfg.Notify.Channel = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.Channel },
	},
	{
		key: "mcp.principal", typ: kString, env: "JOBTRACK_MCP_PRINCIPAL",
		apply:   func(cfg *Config, v any) { cfg.MCP.Principal = v.(string) },
		extract: func(cfg Config) any { return cfg.MCP.Principal },
	},
	{
		key: "client.principal", typ: kString, env: "JOBTRACK_CLIENT_PRINCIPAL",
		apply:   func(cfg *Config, v any) { cfg.Client.Principal = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.Principal },
	},
	{
		key: "auth.tokens", typ: kString, env: "JOBTRACK_API_TOKENS",
		secret: true, account: "api_tokens",
		apply:   func(cfg *Config, v any) { cfg.Auth.Tokens = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.Tokens },
	},
	{
		key: "client.token", typ: kString, env: "JOBTRACK_TOKEN",
		secret: true, account: "client_token",
		apply:   func(cfg *Config, v any) { cfg.Client.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.Token },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
