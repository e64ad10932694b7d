package port

import "github.com/berfenger/alarm2mqtt/internal/core/domain"

type MotionScheduler interface {
	OnTrigger(sensor domain.Sensor, state string)
	Stop()
}
