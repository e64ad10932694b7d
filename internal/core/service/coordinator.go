package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/berfenger/alarm2mqtt/internal/core/domain"
	"github.com/berfenger/alarm2mqtt/internal/core/port"
	"github.com/berfenger/alarm2mqtt/pkg/rtl433"

	"go.uber.org/zap"
)

// EXIT_CODE_FAILURE is used when the decoder did not exit on its own.
const EXIT_CODE_FAILURE = 1

// Coordinator moves decoder output to the broker and owns the shutdown path.
type Coordinator struct {
	registry  *domain.Registry
	publisher port.SensorPublisher
	decoder   port.Decoder
	motion    port.MotionScheduler
	logger    *zap.Logger

	lines     atomic.Int64
	readings  atomic.Int64
	malformed atomic.Int64
	unknown   atomic.Int64

	shutdownOnce sync.Once
	exitCode     int
}

type Stats struct {
	Lines     int64 `json:"lines"`
	Readings  int64 `json:"readings"`
	Malformed int64 `json:"malformed"`
	Unknown   int64 `json:"unknown"`
}

func NewCoordinator(registry *domain.Registry, publisher port.SensorPublisher, decoder port.Decoder,
	motion port.MotionScheduler, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		registry:  registry,
		publisher: publisher,
		decoder:   decoder,
		motion:    motion,
		logger:    logger.With(zap.String("component", "coordinator")),
	}
}

// Prime publishes a known initial state for every sensor.
func (c *Coordinator) Prime() {
	for _, sensor := range c.registry.Sensors() {
		c.publisher.PublishSensorState(sensor.Name, sensor.InitialState())
	}
	c.logger.Info("coordinator: initial sensor states published", zap.Int("sensors", c.registry.Len()))
}

// Run consumes decoder lines until a fatal condition and reports which one.
// A panic while handling a line is recovered and reported as ReasonPanic.
func (c *Coordinator) Run(ctx context.Context) (reason domain.ShutdownReason) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("coordinator: main loop panicked", zap.Any("panic", r), zap.Stack("stack"))
			reason = domain.ReasonPanic
		}
	}()

	lines := c.decoder.Lines()
	for {
		if code, exited := c.decoder.ExitCode(); exited {
			c.logger.Warn("coordinator: decoder exited", zap.Int("exit_code", code))
			return domain.ReasonDecoderExited
		}
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator: stop requested")
			return domain.ReasonSignal
		case line, ok := <-lines:
			if !ok {
				// end of output, the process is about to be reaped
				select {
				case <-c.decoder.Done():
					code, _ := c.decoder.ExitCode()
					c.logger.Warn("coordinator: decoder output closed", zap.Int("exit_code", code))
					return domain.ReasonDecoderExited
				case <-ctx.Done():
					c.logger.Info("coordinator: stop requested")
					return domain.ReasonSignal
				}
			}
			if fatal := c.HandleLine(line); fatal {
				return domain.ReasonNoDevices
			}
		}
	}
}

// HandleLine processes one decoder line. It returns true when the line
// reports a fatal condition.
func (c *Coordinator) HandleLine(line string) bool {
	c.lines.Add(1)
	c.logger.Debug("coordinator: line", zap.String("line", line))

	parsed, err := rtl433.Parse(line)
	if err != nil {
		c.malformed.Add(1)
		var malformed *domain.MalformedRecordError
		if errors.As(err, &malformed) {
			c.logger.Warn("coordinator: malformed record discarded", zap.String("line", malformed.Line), zap.Error(malformed.Err))
		} else {
			c.logger.Warn("coordinator: line discarded", zap.Error(err))
		}
		return false
	}

	switch parsed.Kind {
	case rtl433.LineTuned:
		c.logger.Info("coordinator: decoder tuned", zap.String("line", line))
	case rtl433.LineNoDevices:
		c.logger.Error("coordinator: decoder found no supported devices", zap.String("line", line))
		return true
	case rtl433.LineReading:
		c.handleReading(parsed.Reading)
	}
	return false
}

func (c *Coordinator) handleReading(reading *rtl433.Reading) {
	sensor, ok := c.registry.Lookup(reading.ID)
	if !ok {
		c.unknown.Add(1)
		c.logger.Info("coordinator: reading ignored", zap.Error(&domain.UnknownSensorError{ID: reading.ID, State: reading.State}))
		return
	}
	c.readings.Add(1)
	state := domain.NormalizeState(reading.State)
	c.logger.Debug("coordinator: reading", zap.String("sensor", sensor.Name), zap.String("state", state))
	c.publisher.PublishSensorState(sensor.Name, state)
	c.motion.OnTrigger(sensor, state)
}

// Shutdown runs the cleanup path once and returns the process exit code.
// Later or concurrent calls wait for the first one and get the same code.
func (c *Coordinator) Shutdown(reason domain.ShutdownReason) int {
	c.shutdownOnce.Do(func() {
		code, exited := c.decoder.ExitCode()
		c.logger.Info("coordinator: shutting down",
			zap.Stringer("reason", reason),
			zap.Bool("decoder_exited", exited),
			zap.Int("decoder_exit_code", code))

		c.decoder.TerminateAll()
		c.motion.Stop()
		c.publisher.PublishAllOffline(c.registry.Sensors())
		c.publisher.Disconnect()

		c.exitCode = exitCodeFor(code, exited)
		c.logger.Info("coordinator: shutdown complete", zap.Int("exit_code", c.exitCode))
	})
	return c.exitCode
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Lines:     c.lines.Load(),
		Readings:  c.readings.Load(),
		Malformed: c.malformed.Load(),
		Unknown:   c.unknown.Load(),
	}
}

func exitCodeFor(code int, exited bool) int {
	if exited && code >= 0 {
		return code
	}
	return EXIT_CODE_FAILURE
}
