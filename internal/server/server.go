package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/alarm2mqtt/internal/config"
	"github.com/berfenger/alarm2mqtt/internal/core/domain"
	"github.com/berfenger/alarm2mqtt/internal/core/service"
	"github.com/berfenger/alarm2mqtt/pkg/rtl433"

	_ "github.com/joho/godotenv/autoload"
)

type MotionStatus interface {
	Health(timeout time.Duration) (domain.ActorHealthResponse, error)
	States(timeout time.Duration) ([]domain.MotionSensorState, error)
}

type DecoderStatus interface {
	State() rtl433.State
	ExitCode() (int, bool)
}

type StatsProvider interface {
	Stats() service.Stats
}

type Server struct {
	port     uint
	httpLog  bool
	registry *domain.Registry
	motion   MotionStatus
	decoder  DecoderStatus
	stats    StatsProvider
}

func NewServer(cfg config.Config, registry *domain.Registry, motion MotionStatus, decoder DecoderStatus, stats StatsProvider) *http.Server {
	NewServer := &Server{
		port:     cfg.Port,
		httpLog:  cfg.HttpLog,
		registry: registry,
		motion:   motion,
		decoder:  decoder,
		stats:    stats,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
