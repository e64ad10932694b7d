package domain

import "time"

const (
	ACTOR_ID_MOTION_HUB = "motion"

	MOTION_STATE_IDLE  = "idle"
	MOTION_STATE_ARMED = "armed"
)

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// MotionTriggerRequest is sent to the motion hub for every reading of a
// motion sensor.
type MotionTriggerRequest struct {
	ActorRequestMixIn
	Sensor Sensor
	State  string
	At     time.Time
}

// MotionStatesRequest asks for timer states. QueryId is echoed back in the
// response so late answers can be told apart.
type MotionStatesRequest struct {
	ActorRequestMixIn
	QueryId uint64
}

type MotionSensorState struct {
	Sensor      Sensor
	State       string
	TriggeredAt time.Time
}

type MotionStatesResponse struct {
	ActorResponseMixIn
	QueryId uint64
	States  []MotionSensorState
}
