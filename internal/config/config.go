package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN" validate:"required"`
	W2GAPIKey        string `mapstructure:"W2G_API_KEY" validate:"required"`
	W2GAPIURL        string `mapstructure:"W2G_API_URL" validate:"required,url"`
	W2GRoomURL       string `mapstructure:"W2G_ROOM_URL" validate:"required,url"`

	BadgerDBPath     string `mapstructure:"BADGERDB_PATH" validate:"required"`
	BadgerGCSchedule string `mapstructure:"BADGER_GC_SCHEDULE"`
	LogLevel         string `mapstructure:"LOG_LEVEL" validate:"required"`

	PromptGrace     time.Duration `mapstructure:"PROMPT_GRACE" validate:"gt=0"`
	RecencyWindow   time.Duration `mapstructure:"RECENCY_WINDOW" validate:"gt=0"`
	UsedIDsCapacity int           `mapstructure:"USED_IDS_CAPACITY" validate:"gt=0"`
	CallTimeout     time.Duration `mapstructure:"CALL_TIMEOUT" validate:"gt=0"`
	HandleTimeout   time.Duration `mapstructure:"HANDLE_TIMEOUT" validate:"gt=0"`

	OEmbedURL     string `mapstructure:"OEMBED_URL" validate:"omitempty,url"`
	NoEmbedURL    string `mapstructure:"NOEMBED_URL" validate:"omitempty,url"`
	BrowserScrape bool   `mapstructure:"BROWSER_SCRAPE"`
}

var defaults = map[string]any{
	"W2G_API_URL":        "https://api.w2g.tv",
	"W2G_ROOM_URL":       "https://w2g.tv/rooms",
	"BADGERDB_PATH":      "./badger_data",
	"BADGER_GC_SCHEDULE": "@every 10m",
	"LOG_LEVEL":          "info",
	"PROMPT_GRACE":       "60s",
	"RECENCY_WINDOW":     "5m",
	"USED_IDS_CAPACITY":  20,
	"CALL_TIMEOUT":       "5s",
	"HANDLE_TIMEOUT":     "30s",
	"OEMBED_URL":         "https://www.youtube.com/oembed",
	"NOEMBED_URL":        "https://noembed.com/embed",
	"BROWSER_SCRAPE":     false,
}

// LoadConfig reads config.yaml from path, if present, with environment
// variables taking precedence.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// No defaults, so AutomaticEnv alone would not surface them to Unmarshal.
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "W2G_API_KEY"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required keys and ranges.
func (c Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid config: LOG_LEVEL: %w", err)
	}
	return nil
}

// Level returns the parsed LOG_LEVEL. Validate has already rejected bad values.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
