package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

const (
	DefaultConfigPath = "~/.pickupd/config.toml"
	envPrefix         = "PICKUPD_"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"policy": map[string]interface{}{
			"grace":  "15m",
			"repeat": "10m",
		},
		"store": map[string]interface{}{
			"driver":          "sqlite3",
			"path":            "~/.pickupd/pickupd.db",
			"completed_limit": 10,
			"retry_attempts":  3,
			"retry_backoff":   "100ms",
		},
		"scheduler": map[string]interface{}{
			"periodic":             true,
			"periodic_tag":         "reminder-check",
			"catchup_tag":          "check-reminders",
			"min_interval":         "10m",
			"registration_timeout": "2s",
			"wake_buffer":          64,
		},
		"bridge": map[string]interface{}{
			"addr":         "127.0.0.1:7878",
			"path":         "/bridge",
			"dial_timeout": "2s",
		},
		"notify": map[string]interface{}{
			"desktop":            true,
			"permission_timeout": "2s",
			"webpush": map[string]interface{}{
				"enabled":           false,
				"subscriber":        "",
				"vapid_public_key":  "",
				"vapid_private_key": "",
				"ttl":               30,
			},
		},
		"ui": map[string]interface{}{
			"theme":         "dark",
			"poll_interval": "30s",
		},
		"log": map[string]interface{}{
			"level":  "info",
			"format": "console",
			"file":   "~/.pickupd/pickupd.log",
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}
