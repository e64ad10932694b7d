package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/alarm2mqtt/internal/core/domain"
	"github.com/berfenger/alarm2mqtt/internal/core/port"
	. "github.com/berfenger/alarm2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// MotionSensorActor owns the idle/armed state of one motion sensor. Being an
// actor, every transition of the sensor is serialized by its mailbox.
type MotionSensorActor struct {
	ActorWithStates
	sensor    domain.Sensor
	dwell     time.Duration
	publisher port.SensorPublisher
	scheduler *scheduler.TimerScheduler
	logger    *zap.Logger
}

type motionDwellElapsed struct {
	triggeredAt time.Time
}

func NewMotionSensorActor(sensor domain.Sensor, dwell time.Duration, publisher port.SensorPublisher, logger *zap.Logger) *MotionSensorActor {
	act := &MotionSensorActor{
		sensor:    sensor,
		dwell:     dwell,
		publisher: publisher,
		logger:    ActorLogger(fmt.Sprintf("%s/%s", domain.ACTOR_ID_MOTION_HUB, sensor.Name), logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(MSIdleState{
		actor: act,
	})
	return act
}

func (state *MotionSensorActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (state *MotionSensorActor) respondState(ctx actor.Context, req domain.MotionStatesRequest, triggeredAt time.Time) {
	ForRequest(req).Respond(ctx, domain.MotionStatesResponse{
		QueryId: req.QueryId,
		States:  []domain.MotionSensorState{{
			Sensor:      state.sensor,
			State:       state.StateName(),
			TriggeredAt: triggeredAt,
		}},
	})
}

// Idle state

type MSIdleState struct {
	actor *MotionSensorActor
}

func (state MSIdleState) Name() string {
	return domain.MOTION_STATE_IDLE
}

func (state MSIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("motion@idle started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
	case domain.MotionTriggerRequest:
		triggeredAt := msg.At
		if triggeredAt.IsZero() {
			triggeredAt = time.Now()
		}
		// the dwell counts from the reading, not from when it was dequeued
		delay := state.actor.dwell - time.Since(triggeredAt)
		if delay < 0 {
			delay = 0
		}
		state.actor.logger.Debug("motion@idle triggered, arming reset", zap.String("state", msg.State), zap.Duration("delay", delay))
		cancel := state.actor.scheduler.RequestOnce(delay, ctx.Self(), motionDwellElapsed{triggeredAt: triggeredAt})
		state.actor.Become(MSArmedState{
			actor:       state.actor,
			triggeredAt: triggeredAt,
			cancelReset: cancel,
		})
	case domain.MotionStatesRequest:
		state.actor.respondState(ctx, msg, time.Time{})
	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      state.actor.sensor.Name,
			Healthy: true,
			State:   state.Name(),
		})
	case motionDwellElapsed:
		state.actor.logger.Debug("motion@idle stale reset ignored")
	default:
		state.actor.logger.Debug("motion@idle recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Armed state

type MSArmedState struct {
	actor       *MotionSensorActor
	triggeredAt time.Time
	cancelReset scheduler.CancelFunc
}

func (state MSArmedState) Name() string {
	return domain.MOTION_STATE_ARMED
}

func (state MSArmedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.MotionTriggerRequest:
		state.actor.logger.Debug("motion@armed trigger ignored, reset already pending", zap.String("state", msg.State))
	case motionDwellElapsed:
		if !msg.triggeredAt.Equal(state.triggeredAt) {
			state.actor.logger.Debug("motion@armed stale reset ignored")
			return
		}
		state.actor.logger.Debug("motion@armed dwell elapsed, clearing")
		state.actor.publisher.PublishSensorState(state.actor.sensor.Name, domain.STATE_CLEAR)
		state.actor.Become(MSIdleState{
			actor: state.actor,
		})
	case domain.MotionStatesRequest:
		state.actor.respondState(ctx, msg, state.triggeredAt)
	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      state.actor.sensor.Name,
			Healthy: true,
			State:   state.Name(),
		})
	case *actor.Stopping:
		state.actor.logger.Debug("motion@armed stopping, reset cancelled")
		if state.cancelReset != nil {
			state.cancelReset()
		}
	case *actor.Restarting:
		if state.cancelReset != nil {
			state.cancelReset()
		}
	default:
		state.actor.logger.Debug("motion@armed recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
