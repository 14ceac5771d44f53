package config

import (
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Config is everything the bot reads from the environment at startup.
type Config struct {
	BotToken    string `mapstructure:"TG_BOT_TOKEN"`
	RedisHost   string `mapstructure:"REDIS_HOST"`
	RedisPort   int    `mapstructure:"REDIS_PORT"`
	AuthBaseURL string `mapstructure:"AUTH_BASE_URL"`
	MainBaseURL string `mapstructure:"MAIN_BASE_URL"`
	RedisPrefix string `mapstructure:"TG_REDIS_PREFIX"`

	// NotificationIntervalSec is the notification sweep period; values
	// below 5 are floored to 5 so a misconfigured deployment cannot
	// hammer the main service.
	NotificationIntervalSec int `mapstructure:"TG_NOTIFICATION_INTERVAL_SEC"`

	// SuccessMarker is the status string the auth service returns when
	// a login has been completed. It is localized on the auth side, so
	// it must stay configurable.
	SuccessMarker string `mapstructure:"AUTH_SUCCESS_MARKER"`

	// OpsAddr enables the ops HTTP endpoint when non-empty, e.g. ":9090".
	OpsAddr string `mapstructure:"OPS_ADDR"`
}

func defaults() map[string]string {
	return map[string]string{
		"REDIS_HOST":                   "127.0.0.1",
		"REDIS_PORT":                   "6379",
		"AUTH_BASE_URL":                "http://127.0.0.1:8080",
		"MAIN_BASE_URL":                "http://127.0.0.1:8000",
		"TG_REDIS_PREFIX":              "tg",
		"TG_NOTIFICATION_INTERVAL_SEC": "30",
		"AUTH_SUCCESS_MARKER":          "доступ предоставлен",
	}
}

// Load reads the environment into a Config. The bot token is the only
// required variable.
func Load() (*Config, error) {
	m := map[string]interface{}{}
	for k, v := range defaults() {
		m[k] = v
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" {
			continue
		}
		m[k] = v
	}

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true, // numeric envs arrive as strings
	})
	if err != nil {
		return nil, errors.Wrap(err, "config decoder")
	}
	if err := dec.Decode(m); err != nil {
		return nil, errors.Wrap(err, "decode environment")
	}

	if cfg.BotToken == "" {
		return nil, errors.New("TG_BOT_TOKEN env var is required")
	}
	if cfg.NotificationIntervalSec < 5 {
		cfg.NotificationIntervalSec = 5
	}
	return &cfg, nil
}
