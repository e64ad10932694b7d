package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/berfenger/alarm2mqtt/internal/core/domain"
	"github.com/berfenger/alarm2mqtt/internal/util/actorutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	sensor  string
	payload string
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) PublishSensorState(sensorName, payload string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{sensor: sensorName, payload: payload})
}

func (p *recordingPublisher) PublishAllOffline(sensors []domain.Sensor) {
	for _, s := range sensors {
		p.PublishSensorState(s.Name, domain.PAYLOAD_OFFLINE)
	}
}

func (p *recordingPublisher) Disconnect() {}

func (p *recordingPublisher) count(sensor, payload string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if m.sensor == sensor && m.payload == payload {
			n++
		}
	}
	return n
}

const testDwell = 300 * time.Millisecond

func newTestScheduler(t *testing.T, pub *recordingPublisher) *MotionResetScheduler {
	t.Helper()

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	reg := domain.NewRegistry(map[int]string{5: "door_front", 7: "pir_hall", 8: "pir_garage"})

	s, err := NewMotionResetScheduler(as, reg, pub, testDwell, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Stop()
		as.Shutdown()
	})
	return s
}

func stateOf(t *testing.T, s *MotionResetScheduler, name string) string {
	t.Helper()
	states, err := s.States(2 * time.Second)
	require.NoError(t, err)
	for _, st := range states {
		if st.Sensor.Name == name {
			return st.State
		}
	}
	t.Fatalf("no state for %s", name)
	return ""
}

func TestMotionTriggerArmsAndClears(t *testing.T) {

	pub := &recordingPublisher{}
	s := newTestScheduler(t, pub)
	pir := domain.Sensor{ID: 7, Name: "pir_hall"}

	assert.Equal(t, "idle", stateOf(t, s, "pir_hall"))

	s.OnTrigger(pir, "open")
	assert.Equal(t, "armed", stateOf(t, s, "pir_hall"))
	assert.Equal(t, 0, pub.count("pir_hall", "clear"), "no clear before the dwell")

	require.Eventually(t, func() bool {
		return pub.count("pir_hall", "clear") == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "idle", stateOf(t, s, "pir_hall"))

	// nothing else is published afterwards
	time.Sleep(2 * testDwell)
	assert.Equal(t, 1, pub.count("pir_hall", "clear"))
}

func TestMotionRetriggerWhileArmedIsIgnored(t *testing.T) {

	pub := &recordingPublisher{}
	s := newTestScheduler(t, pub)
	pir := domain.Sensor{ID: 7, Name: "pir_hall"}

	s.OnTrigger(pir, "open")
	time.Sleep(testDwell / 3)
	s.OnTrigger(pir, "open")
	s.OnTrigger(pir, "open")

	require.Eventually(t, func() bool {
		return pub.count("pir_hall", "clear") == 1
	}, 3*time.Second, 20*time.Millisecond)

	// a second timer would publish another clear
	time.Sleep(2 * testDwell)
	assert.Equal(t, 1, pub.count("pir_hall", "clear"), "exactly one reset per arming")
}

func TestMotionRearmAfterClear(t *testing.T) {

	pub := &recordingPublisher{}
	s := newTestScheduler(t, pub)
	pir := domain.Sensor{ID: 7, Name: "pir_hall"}

	s.OnTrigger(pir, "open")
	require.Eventually(t, func() bool {
		return pub.count("pir_hall", "clear") == 1
	}, 3*time.Second, 20*time.Millisecond)

	s.OnTrigger(pir, "open")
	assert.Equal(t, "armed", stateOf(t, s, "pir_hall"))
	require.Eventually(t, func() bool {
		return pub.count("pir_hall", "clear") == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestMotionSensorsAreIndependent(t *testing.T) {

	pub := &recordingPublisher{}
	s := newTestScheduler(t, pub)

	s.OnTrigger(domain.Sensor{ID: 7, Name: "pir_hall"}, "open")
	time.Sleep(testDwell / 2)
	s.OnTrigger(domain.Sensor{ID: 8, Name: "pir_garage"}, "open")

	require.Eventually(t, func() bool {
		return pub.count("pir_hall", "clear") == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "armed", stateOf(t, s, "pir_garage"), "garage armed later, still pending")

	require.Eventually(t, func() bool {
		return pub.count("pir_garage", "clear") == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestNonMotionTriggerIsNoop(t *testing.T) {

	pub := &recordingPublisher{}
	s := newTestScheduler(t, pub)

	s.OnTrigger(domain.Sensor{ID: 5, Name: "door_front"}, "open")

	time.Sleep(2 * testDwell)
	assert.Equal(t, 0, pub.count("door_front", "clear"))

	states, err := s.States(2 * time.Second)
	require.NoError(t, err)
	assert.Len(t, states, 2, "only motion sensors have timer state")
	assert.Equal(t, "pir_hall", states[0].Sensor.Name)
	assert.Equal(t, "pir_garage", states[1].Sensor.Name)
}

func TestMotionStopCancelsPendingReset(t *testing.T) {

	pub := &recordingPublisher{}
	s := newTestScheduler(t, pub)

	s.OnTrigger(domain.Sensor{ID: 7, Name: "pir_hall"}, "open")
	assert.Equal(t, "armed", stateOf(t, s, "pir_hall"))
	s.Stop()

	time.Sleep(2 * testDwell)
	assert.Equal(t, 0, pub.count("pir_hall", "clear"), "no clear after stop")
}

func TestMotionHubHealth(t *testing.T) {

	pub := &recordingPublisher{}
	s := newTestScheduler(t, pub)

	s.OnTrigger(domain.Sensor{ID: 7, Name: "pir_hall"}, "open")

	resp, err := s.Health(2 * time.Second)
	require.NoError(t, err)
	assert.True(t, resp.Healthy)
	assert.Equal(t, domain.ACTOR_ID_MOTION_HUB, resp.Id)
	assert.Equal(t, "1/2 armed", resp.State)
}

func TestMotionQueryDropsLateAnswers(t *testing.T) {

	pub := &recordingPublisher{}
	s := newTestScheduler(t, pub)

	// answers left over from an earlier query, queued right behind the request
	future := s.root.RequestFuture(s.Hub(), domain.MotionStatesRequest{}, 2*time.Second)
	for i := 0; i < 2; i++ {
		s.root.Send(s.Hub(), domain.MotionStatesResponse{
			QueryId: 1000 + uint64(i),
			States: []domain.MotionSensorState{
				{Sensor: domain.Sensor{ID: 99, Name: "pir_stale"}, State: domain.MOTION_STATE_ARMED},
			},
		})
	}

	res, err := future.Result()
	require.NoError(t, err)
	resp, ok := res.(domain.MotionStatesResponse)
	require.True(t, ok)

	require.Len(t, resp.States, 2)
	assert.Equal(t, "pir_hall", resp.States[0].Sensor.Name)
	assert.Equal(t, "pir_garage", resp.States[1].Sensor.Name)
	for _, st := range resp.States {
		assert.Equal(t, domain.MOTION_STATE_IDLE, st.State)
	}
}
