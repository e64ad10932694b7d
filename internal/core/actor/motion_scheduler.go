package actor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/alarm2mqtt/internal/core/domain"
	"github.com/berfenger/alarm2mqtt/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const DEFAULT_MOTION_DWELL = 60 * time.Second

// MotionResetScheduler arms a delayed "clear" for motion sensors. Every
// motion sensor is backed by its own actor under a hub actor.
type MotionResetScheduler struct {
	root     *actor.RootContext
	hub      *actor.PID
	logger   *zap.Logger
	stopOnce sync.Once
}

func NewMotionResetScheduler(system *actor.ActorSystem, registry *domain.Registry, publisher port.SensorPublisher,
	dwell time.Duration, logger *zap.Logger) (*MotionResetScheduler, error) {
	if dwell <= 0 {
		dwell = DEFAULT_MOTION_DWELL
	}
	sensors := registry.MotionSensors()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMotionHubActor(sensors, dwell, publisher, logger)
	})
	pid, err := system.Root.SpawnNamed(props, domain.ACTOR_ID_MOTION_HUB)
	if err != nil {
		return nil, err
	}
	return &MotionResetScheduler{
		root:   system.Root,
		hub:    pid,
		logger: logger,
	}, nil
}

func (s *MotionResetScheduler) Hub() *actor.PID {
	return s.hub
}

// OnTrigger is a no-op for non motion sensors. It never blocks.
func (s *MotionResetScheduler) OnTrigger(sensor domain.Sensor, state string) {
	if !sensor.IsMotion() {
		return
	}
	s.root.Send(s.hub, domain.MotionTriggerRequest{
		Sensor: sensor,
		State:  state,
		At:     time.Now(),
	})
}

func (s *MotionResetScheduler) States(timeout time.Duration) ([]domain.MotionSensorState, error) {
	res, err := s.root.RequestFuture(s.hub, domain.MotionStatesRequest{}, timeout).Result()
	if err != nil {
		return nil, err
	}
	resp, ok := res.(domain.MotionStatesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response %T", res)
	}
	if resp.HasResponseError() {
		return nil, resp.GetResponseError()
	}
	return resp.States, nil
}

func (s *MotionResetScheduler) Health(timeout time.Duration) (domain.ActorHealthResponse, error) {
	res, err := s.root.RequestFuture(s.hub, domain.ActorHealthRequest{}, timeout).Result()
	if err != nil {
		return domain.ActorHealthResponse{}, err
	}
	resp, ok := res.(domain.ActorHealthResponse)
	if !ok {
		return domain.ActorHealthResponse{}, errors.New("unexpected health response")
	}
	return resp, nil
}

// Stop stops the hub and every sensor actor, cancelling pending resets.
func (s *MotionResetScheduler) Stop() {
	s.stopOnce.Do(func() {
		if err := s.root.StopFuture(s.hub).Wait(); err != nil {
			s.logger.Warn("motion: stop timed out", zap.Error(err))
		}
	})
}

// ensure interface compliance
var _ port.MotionScheduler = (*MotionResetScheduler)(nil)
