package port

import "github.com/berfenger/alarm2mqtt/internal/core/domain"

// SensorPublisher publishes sensor state to the broker. Publishes are
// retained and fire-and-forget.
type SensorPublisher interface {
	PublishSensorState(sensorName, payload string)
	PublishAllOffline(sensors []domain.Sensor)
	Disconnect()
}
