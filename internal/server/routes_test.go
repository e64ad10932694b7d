package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/alarm2mqtt/internal/core/domain"
	"github.com/berfenger/alarm2mqtt/internal/core/service"
	"github.com/berfenger/alarm2mqtt/internal/util"
	"github.com/berfenger/alarm2mqtt/pkg/rtl433"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMotion struct {
	healthy bool
	err     error
	states  []domain.MotionSensorState
}

func (m fakeMotion) Health(timeout time.Duration) (domain.ActorHealthResponse, error) {
	return domain.ActorHealthResponse{Id: domain.ACTOR_ID_MOTION_HUB, Healthy: m.healthy, State: "1/1 armed"}, m.err
}

func (m fakeMotion) States(timeout time.Duration) ([]domain.MotionSensorState, error) {
	return m.states, m.err
}

type fakeDecoder struct {
	state rtl433.State
}

func (d fakeDecoder) State() rtl433.State   { return d.state }
func (d fakeDecoder) ExitCode() (int, bool) { return 0, d.state == rtl433.Exited }

type fakeStats struct{}

func (fakeStats) Stats() service.Stats { return service.Stats{Lines: 4, Readings: 2} }

var registry = domain.NewRegistry(map[int]string{5: "door_front", 7: "pir_hall"})

func serve(t *testing.T, motion MotionStatus, decoder DecoderStatus, path string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer(util.LoadTestConfig(), registry, motion, decoder, fakeStats{})
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthCheckOK(t *testing.T) {

	rec := serve(t, fakeMotion{healthy: true}, fakeDecoder{state: rtl433.Running}, "/healthcheck")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, "running", resp.Decoder)
	assert.Equal(t, "1/1 armed", resp.Motion)
	assert.Equal(t, int64(2), resp.Stats.Readings)
}

func TestHealthCheckFailsWhenDecoderStopped(t *testing.T) {

	rec := serve(t, fakeMotion{healthy: true}, fakeDecoder{state: rtl433.Exited}, "/healthcheck")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthCheckFailsWhenMotionUnavailable(t *testing.T) {

	rec := serve(t, fakeMotion{err: errors.New("timeout")}, fakeDecoder{state: rtl433.Running}, "/healthcheck")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Motion)
}

func TestSensorsListing(t *testing.T) {

	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	motion := fakeMotion{
		healthy: true,
		states: []domain.MotionSensorState{
			{Sensor: domain.Sensor{ID: 7, Name: "pir_hall"}, State: domain.MOTION_STATE_ARMED, TriggeredAt: at},
		},
	}
	rec := serve(t, motion, fakeDecoder{state: rtl433.Running}, "/sensors")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []sensorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)

	assert.Equal(t, "door_front", resp[0].Name)
	assert.False(t, resp[0].Motion)
	assert.Empty(t, resp[0].TimerState)
	assert.Nil(t, resp[0].TriggeredAt)

	assert.Equal(t, "pir_hall", resp[1].Name)
	assert.True(t, resp[1].Motion)
	assert.Equal(t, "armed", resp[1].TimerState)
	require.NotNil(t, resp[1].TriggeredAt)
	assert.True(t, at.Equal(*resp[1].TriggeredAt))
}

func TestVersion(t *testing.T) {

	rec := serve(t, fakeMotion{healthy: true}, fakeDecoder{state: rtl433.Running}, "/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}
