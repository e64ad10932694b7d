package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/berfenger/alarm2mqtt/internal/config"
	"github.com/berfenger/alarm2mqtt/internal/core/domain"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// keys written before the first section of an ini file land under this
// section name
const INI_DEFAULT_SECTION = "default"

var topLevelKeys = []string{"log_level", "port", "http_log", "sensors_file"}

func initConfig(cfgFile string, sensorsFile string) (*config.Config, error) {

	v := viper.New()
	setConfigDefaults(v)

	v.SetEnvPrefix("alarm2mqtt")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// CONFIG_FILE wins over the flag
	if envFile := os.Getenv("CONFIG_FILE"); envFile != "" {
		cfgFile = envFile
	}

	// if present, load config from ini file
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)
			v.SetConfigType("ini")

			if err := v.ReadInConfig(); err != nil {
				return nil, &domain.ConfigError{Source: cfgFile, Err: err}
			}
			liftDefaultSection(v)
		} else {
			slog.Warn("Config file not found, using defaults and environment", "file", cfgFile)
		}
	}

	var cfg config.Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if sensorsFile != "" {
		cfg.SensorsFile = sensorsFile
	}

	// parse log level
	switch v.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// liftDefaultSection moves section-less ini keys to the top level. They
// replace the built-in defaults, so the environment still overrides them.
func liftDefaultSection(v *viper.Viper) {
	for _, key := range topLevelKeys {
		if iniKey := INI_DEFAULT_SECTION + "." + key; v.InConfig(iniKey) {
			v.SetDefault(key, v.Get(iniKey))
		}
	}
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.channel", "")
	v.SetDefault("mqtt.keepalive_seconds", 60)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("rtl433.bin", "rtl_433")
	v.SetDefault("rtl433.protocol", 68)
	v.SetDefault("rtl433.args", []string{})
	v.SetDefault("motion.dwell_seconds", 60)
	v.SetDefault("sensors_file", "sensor_config.ini")
}

func safePrintConfig(cfg config.Config) {
	if cfg.MQTT.Username != "" {
		cfg.MQTT.Username = "*redacted*"
	}
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = "*redacted*"
	}
	slog.Info("Using", "config", cfg)
}
