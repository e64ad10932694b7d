package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/berfenger/alarm2mqtt/internal/core/domain"

	"gopkg.in/ini.v1"
)

const SENSORS_SECTION = "sensors"

// LoadSensorRegistry reads the sensor table, one "<id> = <name>" entry per
// line under the [sensors] section.
func LoadSensorRegistry(path string) (*domain.Registry, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, &domain.ConfigError{Source: path, Err: err}
	}
	return registryFromINI(path, file)
}

// ParseSensorRegistry is LoadSensorRegistry for in-memory content.
func ParseSensorRegistry(source string, data []byte) (*domain.Registry, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, &domain.ConfigError{Source: source, Err: err}
	}
	return registryFromINI(source, file)
}

func registryFromINI(source string, file *ini.File) (*domain.Registry, error) {
	section, err := file.GetSection(SENSORS_SECTION)
	if err != nil {
		return nil, &domain.ConfigError{Source: source, Err: err}
	}
	names := make(map[int]string)
	for _, key := range section.Keys() {
		id, err := strconv.Atoi(strings.TrimSpace(key.Name()))
		if err != nil {
			return nil, &domain.ConfigError{Source: source, Err: fmt.Errorf("sensor id %q is not an integer", key.Name())}
		}
		name := strings.TrimSpace(key.String())
		if name == "" {
			return nil, &domain.ConfigError{Source: source, Err: fmt.Errorf("sensor %d has no name", id)}
		}
		if _, dup := names[id]; dup {
			return nil, &domain.ConfigError{Source: source, Err: fmt.Errorf("sensor id %d defined twice", id)}
		}
		names[id] = name
	}
	return domain.NewRegistry(names), nil
}
