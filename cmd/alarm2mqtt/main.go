package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/berfenger/alarm2mqtt/internal/config"
	"github.com/berfenger/alarm2mqtt/internal/core/actor"
	"github.com/berfenger/alarm2mqtt/internal/core/domain"
	"github.com/berfenger/alarm2mqtt/internal/core/service"
	"github.com/berfenger/alarm2mqtt/internal/mqtt"
	"github.com/berfenger/alarm2mqtt/internal/server"
	"github.com/berfenger/alarm2mqtt/internal/util/actorutil"
	"github.com/berfenger/alarm2mqtt/pkg/rtl433"

	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	EXIT_CODE_STARTUP = 1
	EXIT_CODE_FORCED  = 1
)

var (
	configFile  string
	sensorsFile string
)

var rootCmd = &cobra.Command{
	Use:   "alarm2mqtt",
	Short: "Bridge rtl_433 alarm sensors to MQTT",
	Long:  `Runs rtl_433, maps sensor ids to names and publishes every reading as a retained MQTT message.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		os.Exit(run())
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "config.ini", "main config file")
	rootCmd.Flags().StringVarP(&sensorsFile, "sensors", "s", "", "sensor table file (overrides sensors_file)")
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}

func run() int {

	// load and print config
	cfg, err := initConfig(configFile, sensorsFile)
	if err != nil {
		slog.Error("config errors", "error", err)
		return EXIT_CODE_STARTUP
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("alarm2mqtt starting", zap.String("version", versioninfo.Short()))

	registry, err := config.LoadSensorRegistry(cfg.SensorsFile)
	if err != nil {
		logger.Error("could not load sensors", zap.Error(err))
		return EXIT_CODE_STARTUP
	}
	logger.Info("sensors loaded", zap.Int("sensors", registry.Len()), zap.Int("motion", len(registry.MotionSensors())))

	// broker first, nothing is launched if it is unreachable
	mqttClient := mqtt.CreateMQTTClient(cfg, mqtt.OptsFromConfig(cfg), logger)
	if err := mqttClient.Connect(); err != nil {
		logger.Error("could not connect to broker", zap.Error(err))
		return EXIT_CODE_STARTUP
	}

	decoder := rtl433.NewProcess(cfg.RTL433.Bin, rtl433.CommandArgs(cfg.RTL433.Protocol, cfg.RTL433.Args), logger)
	if err := decoder.Start(); err != nil {
		var launchErr *domain.LaunchError
		if errors.As(err, &launchErr) {
			logger.Error("could not launch decoder", zap.String("command", launchErr.Command), zap.Error(launchErr.Err))
		} else {
			logger.Error("could not launch decoder", zap.Error(err))
		}
		decoder.Sweep()
		mqttClient.Disconnect()
		return EXIT_CODE_STARTUP
	}
	logger.Info("decoder started", zap.String("command", decoder.CommandLine()))

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	motion, err := actor.NewMotionResetScheduler(as, registry, mqttClient, cfg.Motion.Dwell(), logger)
	if err != nil {
		logger.Error("could not start motion scheduler", zap.Error(err))
		decoder.TerminateAll()
		mqttClient.Disconnect()
		return EXIT_CODE_STARTUP
	}

	coordinator := service.NewCoordinator(registry, mqttClient, decoder, motion, logger)
	coordinator.Prime()

	var apiServer *http.Server
	if cfg.Port > 0 {
		apiServer = server.NewServer(*cfg, registry, motion, decoder, coordinator)
		go func() {
			err := apiServer.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", zap.Error(err))
			}
		}()
	}

	// signals stay caught until cleanup is over
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go watchSignals(sigs, watchDone, cancel, func() { os.Exit(EXIT_CODE_FORCED) }, logger)

	reason := coordinator.Run(ctx)

	code := coordinator.Shutdown(reason)

	if apiServer != nil {
		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server forced to shutdown", zap.Error(err))
		}
	}

	logger.Info("alarm2mqtt exiting", zap.Stringer("reason", reason), zap.Int("exit_code", code))
	return code
}
