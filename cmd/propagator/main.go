package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thatsimonsguy/propagator/db"
	"github.com/thatsimonsguy/propagator/internal/api"
	"github.com/thatsimonsguy/propagator/internal/config"
	"github.com/thatsimonsguy/propagator/internal/controller"
	"github.com/thatsimonsguy/propagator/internal/datadog"
	"github.com/thatsimonsguy/propagator/internal/datalog"
	"github.com/thatsimonsguy/propagator/internal/device"
	"github.com/thatsimonsguy/propagator/internal/gpio"
	"github.com/thatsimonsguy/propagator/internal/influx"
	"github.com/thatsimonsguy/propagator/internal/logging"
	"github.com/thatsimonsguy/propagator/internal/mqtt"
	"github.com/thatsimonsguy/propagator/internal/notifications"
	"github.com/thatsimonsguy/propagator/internal/state"
	"github.com/thatsimonsguy/propagator/system/shutdown"
	"github.com/thatsimonsguy/propagator/system/startup"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config", cfg.ConfigFile).
		Str("title", cfg.Title).
		Int("channels", len(cfg.Channels)).
		Msg("Starting propagator")

	if cfg.Hardware.BootScript != "" {
		installBootScript(&cfg)
	}

	if cfg.Hardware.VerifyPins {
		verifyRelayPins(&cfg)
	}

	bus := gpio.NewBus(newBackend(cfg.Hardware))
	bus.SetSafeMode(cfg.Hardware.SafeMode)
	if cfg.Hardware.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED: relay outputs will not be driven")
	}
	if err := bus.Open(); err != nil {
		shutdown.ExitWithError(err, "Failed to open GPIO")
	}

	datadog.InitMetrics(cfg.Metrics)
	notifier := notifications.New("", cfg.NtfyTopic)

	board := device.NewBoard(bus, &cfg)
	tracker := state.NewTracker(cfg.ChannelNames())
	ctrl := controller.New(&cfg, board, tracker, controller.WithNotifier(notifier))

	cleanup := func() {
		if err := bus.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to release GPIO")
		}
		datadog.Close()
	}

	if err := ctrl.SafeOff(); err != nil {
		shutdown.ExitWithError(err, "Failed to switch heaters off at startup", cleanup)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loggerOpts := []datalog.Option{datalog.WithNotifier(notifier)}
	var sessions api.SessionLister

	if cfg.Database != "" {
		store, err := db.Open(cfg.Database)
		if err != nil {
			shutdown.ExitWithError(err, "Failed to open session index", cleanup)
		}
		defer store.Close()

		if n, err := store.CloseDangling(time.Now()); err != nil {
			log.Warn().Err(err).Msg("Failed to close interrupted sessions")
		} else if n > 0 {
			log.Warn().Int64("sessions", n).Msg("Marked interrupted logging sessions")
		}
		loggerOpts = append(loggerOpts, datalog.WithStore(store))
		sessions = store
	}

	var exporters []datalog.Exporter
	if cfg.MQTT.Broker != "" {
		publisher, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			log.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT exporter disabled")
		} else {
			defer publisher.Close()
			exporters = append(exporters, publisher)
		}
	}
	if cfg.Influx.Host != "" {
		writer := influx.NewWriter(cfg.Influx)
		defer writer.Close()
		exporters = append(exporters, writer)
	}
	if len(exporters) > 0 {
		loggerOpts = append(loggerOpts, datalog.WithExporters(exporters...))
	}

	logger := datalog.New(ctx, &cfg, tracker, loggerOpts...)
	server := api.NewServer(&cfg, tracker, logger, shutdown.Commander{}, sessions)
	httpServer := server.HTTPServer(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	stop()
	logger.Wait()

	if err != nil {
		shutdown.ExitWithError(err, "Propagator stopped with error", cleanup)
	}
	cleanup()
	log.Info().Msg("Propagator stopped")
}

func newBackend(hw config.Hardware) gpio.Backend {
	if hw.Backend == "gpiocdev" {
		log.Info().Str("chip", hw.Chip).Msg("Using gpiocdev backend")
		return gpio.NewCdevBackend(hw.Chip)
	}
	log.Info().Msg("Using rpio backend")
	return gpio.RPIOBackend{}
}

// verifyRelayPins exits unless every relay pin is parked. A configured boot
// script gets one chance to park them first.
func verifyRelayPins(cfg *config.Config) {
	err := gpio.ValidateStartupPins(cfg.RelayPins())
	if err != nil && cfg.Hardware.BootScript != "" {
		log.Warn().Err(err).Msg("Relay pins not parked, running boot script")
		if runErr := startup.RunBootScript(cfg.Hardware.BootScript); runErr != nil {
			log.Error().Err(runErr).Msg("Boot script failed")
		}
		err = gpio.ValidateStartupPins(cfg.RelayPins())
	}
	if err != nil {
		shutdown.ExitWithError(err, "Refusing to enable relay board due to unsafe pin states")
	}
}

// installBootScript refreshes the pin parking script and, when configured,
// its systemd unit. Failures are logged; the controller parks relays itself.
func installBootScript(cfg *config.Config) {
	script := cfg.Hardware.BootScript
	if err := startup.WriteBootScript(script, cfg.ChannelNames(), cfg.RelayPins()); err != nil {
		log.Error().Err(err).Str("path", script).Msg("Failed to write boot script")
		return
	}
	log.Info().Str("path", script).Msg("Boot script written")

	if cfg.Hardware.BootService == "" {
		return
	}
	if err := startup.InstallBootService(script, cfg.Hardware.BootService); err != nil {
		log.Error().Err(err).Str("unit", cfg.Hardware.BootService).Msg("Failed to install boot service")
		return
	}
	log.Info().Str("unit", cfg.Hardware.BootService).Msg("Boot service installed")
}
