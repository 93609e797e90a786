package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/sandeepkv93/pickupd/internal/notify"
)

type Config struct {
	Policy    PolicyConfig    `koanf:"policy"`
	Store     StoreConfig     `koanf:"store"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Bridge    BridgeConfig    `koanf:"bridge"`
	Notify    NotifyConfig    `koanf:"notify"`
	UI        UIConfig        `koanf:"ui"`
	Log       LogConfig       `koanf:"log"`
}

type PolicyConfig struct {
	Grace  time.Duration `koanf:"grace" validate:"gte=0"`
	Repeat time.Duration `koanf:"repeat" validate:"gte=0"`
}

type StoreConfig struct {
	Driver         string        `koanf:"driver" validate:"oneof=sqlite3 sqlite"`
	Path           string        `koanf:"path" validate:"required"`
	CompletedLimit int           `koanf:"completed_limit" validate:"gte=1"`
	RetryAttempts  int           `koanf:"retry_attempts" validate:"gte=1"`
	RetryBackoff   time.Duration `koanf:"retry_backoff" validate:"gte=0"`
}

type SchedulerConfig struct {
	Periodic            bool          `koanf:"periodic"`
	PeriodicTag         string        `koanf:"periodic_tag" validate:"required"`
	CatchUpTag          string        `koanf:"catchup_tag" validate:"required"`
	MinInterval         time.Duration `koanf:"min_interval" validate:"gt=0"`
	RegistrationTimeout time.Duration `koanf:"registration_timeout" validate:"gte=0"`
	WakeBuffer          int           `koanf:"wake_buffer" validate:"gte=1"`
}

type BridgeConfig struct {
	Addr        string        `koanf:"addr" validate:"required,hostname_port"`
	Path        string        `koanf:"path" validate:"required,startswith=/"`
	DialTimeout time.Duration `koanf:"dial_timeout" validate:"gt=0"`
}

type NotifyConfig struct {
	Desktop           bool          `koanf:"desktop"`
	PermissionTimeout time.Duration `koanf:"permission_timeout" validate:"gt=0"`
	WebPush           WebPushConfig `koanf:"webpush"`
}

type WebPushConfig struct {
	Enabled         bool                  `koanf:"enabled"`
	Subscriber      string                `koanf:"subscriber" validate:"required_if=Enabled true"`
	VAPIDPublicKey  string                `koanf:"vapid_public_key" validate:"required_if=Enabled true"`
	VAPIDPrivateKey string                `koanf:"vapid_private_key" validate:"required_if=Enabled true"`
	TTL             int                   `koanf:"ttl" validate:"gte=0"`
	Subscriptions   []notify.Subscription `koanf:"subscriptions" validate:"dive"`
}

type UIConfig struct {
	Theme        string        `koanf:"theme" validate:"oneof=dark light"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
	File   string `koanf:"file"`
}

var validate = validator.New()

// Load layers defaults, the config file (YAML or TOML by extension) and
// PICKUPD_ environment variables, in that order. A missing file is not an
// error. Nested env keys use a double underscore: PICKUPD_POLICY__GRACE.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)
		if _, err := os.Stat(configPath); err == nil {
			if err := loadFile(k, configPath); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Store.Path = expandPath(cfg.Store.Path)
	cfg.Log.File = expandPath(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func loadFile(k *koanf.Koanf, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var tree map[string]interface{}
		if err := toml.Unmarshal(raw, &tree); err != nil {
			return err
		}
		return k.Load(confmap.Provider(tree, ""), nil)
	default:
		return k.Load(file.Provider(path), yaml.Parser())
	}
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// WriteDefault writes the default configuration as TOML. An existing file
// is left alone unless overwrite is set.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	path = expandPath(path)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("config %s already exists", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return path, err
		}
	}
	k := koanf.New(".")
	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return path, err
	}
	data, err := toml.Marshal(k.Raw())
	if err != nil {
		return path, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, err
	}
	return path, os.WriteFile(path, data, 0o644)
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
