package server

import (
	"net/http"
	"time"

	"github.com/berfenger/alarm2mqtt/internal/core/domain"
	"github.com/berfenger/alarm2mqtt/internal/core/service"
	"github.com/berfenger/alarm2mqtt/pkg/rtl433"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const queryTimeout = 5 * time.Second

type healthResponse struct {
	Status  string        `json:"status"`
	Decoder string        `json:"decoder"`
	Motion  string        `json:"motion"`
	Stats   service.Stats `json:"stats"`
}

type sensorResponse struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Motion      bool       `json:"motion"`
	TimerState  string     `json:"timer_state,omitempty"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/sensors", s.SensorsHandler)
	e.GET("/version", s.VersionHandler)

	return e
}

// HealthCheckHandler is OK while the decoder runs and every motion actor
// answers.
func (s *Server) HealthCheckHandler(c echo.Context) error {
	resp := healthResponse{
		Status:  "OK",
		Decoder: s.decoder.State().String(),
		Stats:   s.stats.Stats(),
	}
	if s.decoder.State() != rtl433.Running {
		resp.Status = "FAIL"
	}
	motion, err := s.motion.Health(queryTimeout)
	if err != nil || !motion.Healthy {
		resp.Status = "FAIL"
		resp.Motion = "unavailable"
	} else {
		resp.Motion = motion.State
	}
	if resp.Status != "OK" {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) SensorsHandler(c echo.Context) error {
	states, err := s.motion.States(queryTimeout)
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "sensors: motion states unavailable")
	}
	byName := make(map[string]domain.MotionSensorState, len(states))
	for _, st := range states {
		byName[st.Sensor.Name] = st
	}

	sensors := s.registry.Sensors()
	out := make([]sensorResponse, 0, len(sensors))
	for _, sensor := range sensors {
		item := sensorResponse{
			ID:     sensor.ID,
			Name:   sensor.Name,
			Motion: sensor.IsMotion(),
		}
		if st, ok := byName[sensor.Name]; ok {
			item.TimerState = st.State
			if !st.TriggeredAt.IsZero() {
				at := st.TriggeredAt
				item.TriggeredAt = &at
			}
		}
		out = append(out, item)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.String(http.StatusOK, versioninfo.Short())
}
