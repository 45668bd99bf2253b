package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	LogLevel string `mapstructure:"log_level"`

	SignalURL   string `mapstructure:"signal_url"`
	APIBaseURL  string `mapstructure:"api_base_url"`
	ControlAddr string `mapstructure:"control_addr"`

	Room string `mapstructure:"room"`
	Name string `mapstructure:"name"`
	Role string `mapstructure:"role"`

	ICEServers []string `mapstructure:"ice_servers"`

	// Mesh initiation backpressure: wait SettleDelay after the roster
	// arrives, then OfferGap between consecutive outbound offers.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	OfferGap    time.Duration `mapstructure:"offer_gap"`

	AudioOnly bool `mapstructure:"audio_only"`
	Record    bool `mapstructure:"record"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("signal_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("api_base_url", "http://localhost:8080/api")
	v.SetDefault("control_addr", ":7010")
	v.SetDefault("role", "student")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("settle_delay", "1s")
	v.SetDefault("offer_gap", "500ms")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
