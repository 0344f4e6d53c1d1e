// Package config loads server settings from defaults, an optional
// config.yaml and RECSHARE_* environment variables, in rising precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "RECSHARE"

// MinSecretLength is the shortest JWT secret Validate accepts.
const MinSecretLength = 16

type Config struct {
	Port        int
	DBPath      string
	JWTSecret   string
	TokenTTL    time.Duration
	LogLevel    string
	CORSOrigins []string

	InvitationPrice  int64
	GiftPrice        int64
	LikeReward       int64
	AuthorLikeReward int64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "data/recshare.db")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", 15*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("invitation_price", 50)
	v.SetDefault("gift_price", 20)
	v.SetDefault("like_reward", 1)
	v.SetDefault("author_like_reward", 5)
}

// Load reads config.yaml from dir when present. A missing file is not an
// error; a malformed one is.
func Load(dir string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: reading %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := Config{
		Port:             v.GetInt("port"),
		DBPath:           v.GetString("db_path"),
		JWTSecret:        v.GetString("jwt_secret"),
		TokenTTL:         v.GetDuration("token_ttl"),
		LogLevel:         strings.ToLower(v.GetString("log_level")),
		CORSOrigins:      splitList(v.GetStringSlice("cors_origins")),
		InvitationPrice:  v.GetInt64("invitation_price"),
		GiftPrice:        v.GetInt64("gift_price"),
		LikeReward:       v.GetInt64("like_reward"),
		AuthorLikeReward: v.GetInt64("author_like_reward"),
	}
	return cfg, nil
}

// splitList accepts both a YAML list and a comma-separated env value.
func splitList(in []string) []string {
	out := []string{}
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if len(c.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("jwt_secret must be at least %d characters", MinSecretLength))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	for name, v := range map[string]int64{
		"invitation_price":   c.InvitationPrice,
		"gift_price":         c.GiftPrice,
		"like_reward":        c.LikeReward,
		"author_like_reward": c.AuthorLikeReward,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
