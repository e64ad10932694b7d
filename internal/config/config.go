package config

import (
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel    zapcore.Level
	MQTT        MQTTConfig   `mapstructure:"mqtt"`
	RTL433      RTL433Config `mapstructure:"rtl433"`
	Motion      MotionConfig `mapstructure:"motion"`
	SensorsFile string       `mapstructure:"sensors_file"`
	Port        uint         `mapstructure:"port"`
	HttpLog     bool         `mapstructure:"http_log"`
}

type MQTTConfig struct {
	Host             string
	Port             int
	Username         string
	Password         string
	Channel          string
	KeepAliveSeconds uint `mapstructure:"keepalive_seconds"`
}

type RTL433Config struct {
	Bin      string
	Protocol int
	Args     []string
}

type MotionConfig struct {
	DwellSeconds uint `mapstructure:"dwell_seconds"`
}

func (c MotionConfig) Dwell() time.Duration {
	return time.Duration(c.DwellSeconds) * time.Second
}

func (c MQTTConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

var channelRegexp = regexp.MustCompile(`^[a-zA-Z0-9_\-/]*$`)

// CheckMQTTChannel validates the topic prefix every sensor name is appended
// to. Wildcards are not allowed in publish topics.
func CheckMQTTChannel(channel string) (string, error) {
	if !channelRegexp.MatchString(channel) {
		return "", errors.New("invalid channel. can only contain letters, numbers, '_', '-' and '/'")
	}
	return channel, nil
}

func (c *Config) Validate() error {
	if c.MQTT.Host == "" {
		return errors.New("config param mqtt.host is required")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return errors.New("config param mqtt.port should be in 1..65535")
	}
	channel, err := CheckMQTTChannel(c.MQTT.Channel)
	if err != nil {
		return err
	}
	c.MQTT.Channel = channel
	if c.RTL433.Bin == "" {
		return errors.New("config param rtl433.bin is required")
	}
	if c.RTL433.Protocol <= 0 {
		return errors.New("config param rtl433.protocol should be > 0")
	}
	if c.Motion.DwellSeconds < 1 {
		return errors.New("config param motion.dwell_seconds should be >= 1")
	}
	if c.Port > 65535 {
		return errors.New("config param port should be <= 65535")
	}
	if c.SensorsFile == "" {
		return errors.New("config param sensors_file is required")
	}
	return nil
}
