package util

import (
	"github.com/berfenger/alarm2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			Channel:          "alarm/",
			KeepAliveSeconds: 60,
		},
		RTL433: config.RTL433Config{
			Bin:      "rtl_433",
			Protocol: 68,
		},
		Motion: config.MotionConfig{
			DwellSeconds: 60,
		},
		SensorsFile: "sensor_config.ini",
		Port:        8080,
	}
}
