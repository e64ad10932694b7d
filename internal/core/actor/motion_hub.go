package actor

import (
	"fmt"
	"log"
	"time"

	"github.com/berfenger/alarm2mqtt/internal/core/domain"
	"github.com/berfenger/alarm2mqtt/internal/core/port"
	. "github.com/berfenger/alarm2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	childQueryTimeout = 500 * time.Millisecond
	hubQueryTimeout   = 1 * time.Second
)

// MotionHubActor spawns one MotionSensorActor per motion sensor and routes
// triggers to them by sensor name.
type MotionHubActor struct {
	behavior  actor.Behavior
	stash     *Stash
	sensors   []domain.Sensor
	dwell     time.Duration
	publisher port.SensorPublisher
	children  map[string]*actor.PID
	query     motionQuery
	querySeq  uint64
	logger    *zap.Logger
	rawLogger *zap.Logger
}

type motionQuery struct {
	id        uint64
	health    bool
	respondTo *actor.PID
	expected  int
	received  int
	failed    int
	states    []domain.MotionSensorState
}

type motionQueryFailed struct {
	queryId uint64
	sensor  string
	err     error
}

func NewMotionHubActor(sensors []domain.Sensor, dwell time.Duration, publisher port.SensorPublisher, logger *zap.Logger) *MotionHubActor {
	act := &MotionHubActor{
		behavior:  actor.NewBehavior(),
		stash:     &Stash{},
		sensors:   sensors,
		dwell:     dwell,
		publisher: publisher,
		children:  make(map[string]*actor.PID, len(sensors)),
		logger:    ActorLogger(domain.ACTOR_ID_MOTION_HUB, logger),
		rawLogger: logger,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MotionHubActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MotionHubActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("motion@starting started", zap.Int("sensors", len(state.sensors)))
		for _, sensor := range state.sensors {
			pid, err := state.startSensorActor(ctx, sensor)
			if err != nil {
				panic(err)
			}
			state.children[sensor.Name] = pid
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("motion@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MotionHubActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.MotionTriggerRequest:
		state.forwardTrigger(ctx, msg)
	case domain.ActorHealthRequest:
		state.logger.Debug("motion@default ActorHealthRequest")
		state.startQuery(ctx, true, ForRequest(msg).ReplyTo(ctx))
	case domain.MotionStatesRequest:
		state.logger.Debug("motion@default MotionStatesRequest")
		state.startQuery(ctx, false, ForRequest(msg).ReplyTo(ctx))
	case *actor.Terminated:
		state.logger.Warn("motion@default sensor actor terminated", zap.String("who", msg.Who.Id))
	default:
		state.logger.Debug("motion@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MotionHubActor) QueryReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.MotionTriggerRequest:
		// triggers are never delayed by a pending query
		state.forwardTrigger(ctx, msg)
	case domain.MotionStatesResponse:
		if msg.QueryId != state.query.id {
			state.logger.Debug("motion@query late answer dropped", zap.Uint64("query", msg.QueryId))
			return
		}
		state.query.received++
		state.query.states = append(state.query.states, msg.States...)
		state.finishQueryIfComplete(ctx)
	case motionQueryFailed:
		if msg.queryId != state.query.id {
			return
		}
		state.logger.Warn("motion@query sensor actor did not answer", zap.String("sensor", msg.sensor), zap.Error(msg.err))
		state.query.received++
		state.query.failed++
		state.finishQueryIfComplete(ctx)
	case *actor.ReceiveTimeout:
		state.logger.Warn("motion@query timed out", zap.Int("received", state.query.received), zap.Int("expected", state.query.expected))
		state.query.failed += state.query.expected - state.query.received
		state.finishQuery(ctx)
	default:
		state.logger.Debug("motion@query stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MotionHubActor) forwardTrigger(ctx actor.Context, msg domain.MotionTriggerRequest) {
	pid, ok := state.children[msg.Sensor.Name]
	if !ok {
		state.logger.Debug("motion@default trigger for a non motion sensor", zap.String("sensor", msg.Sensor.Name))
		return
	}
	ctx.Send(pid, msg)
}

func (state *MotionHubActor) startQuery(ctx actor.Context, health bool, respondTo *actor.PID) {
	state.querySeq++
	state.query = motionQuery{
		id:        state.querySeq,
		health:    health,
		respondTo: respondTo,
		expected:  len(state.sensors),
	}
	if state.query.expected == 0 {
		state.respondQuery(ctx)
		return
	}
	queryId := state.query.id
	for _, sensor := range state.sensors {
		name := sensor.Name
		req := domain.MotionStatesRequest{QueryId: queryId}
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.children[name], req, childQueryTimeout), func(err error) any {
			return motionQueryFailed{queryId: queryId, sensor: name, err: err}
		})
	}
	ctx.SetReceiveTimeout(hubQueryTimeout)
	state.behavior.BecomeStacked(state.QueryReceive)
}

func (state *MotionHubActor) finishQueryIfComplete(ctx actor.Context) {
	if state.query.received >= state.query.expected {
		state.finishQuery(ctx)
	}
}

func (state *MotionHubActor) finishQuery(ctx actor.Context) {
	ctx.SetReceiveTimeout(0)
	state.respondQuery(ctx)
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *MotionHubActor) respondQuery(ctx actor.Context) {
	if state.query.respondTo == nil {
		return
	}
	if state.query.health {
		armed := 0
		for _, s := range state.query.states {
			if s.State == domain.MOTION_STATE_ARMED {
				armed++
			}
		}
		ctx.Send(state.query.respondTo, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MOTION_HUB,
			Healthy: state.query.failed == 0,
			State:   fmt.Sprintf("%d/%d armed", armed, len(state.sensors)),
		})
		return
	}
	ctx.Send(state.query.respondTo, domain.MotionStatesResponse{
		States: sortedStates(state.sensors, state.query.states),
	})
}

func (state *MotionHubActor) startSensorActor(ctx actor.Context, sensor domain.Sensor) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for motion sensor %s. reason: %v", sensor.Name, reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMotionSensorActor(sensor, state.dwell, state.publisher, state.rawLogger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, sensor.Name)
}

// sortedStates orders the answers like the registry.
func sortedStates(sensors []domain.Sensor, states []domain.MotionSensorState) []domain.MotionSensorState {
	byName := make(map[string]domain.MotionSensorState, len(states))
	for _, s := range states {
		byName[s.Sensor.Name] = s
	}
	out := make([]domain.MotionSensorState, 0, len(states))
	for _, sensor := range sensors {
		if s, ok := byName[sensor.Name]; ok {
			out = append(out, s)
		}
	}
	return out
}
