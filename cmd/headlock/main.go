package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/dtiendzai123/newheadlockengine/internal/aimlock"
	"github.com/dtiendzai123/newheadlockengine/internal/cache"
	"github.com/dtiendzai123/newheadlockengine/internal/channel"
	"github.com/dtiendzai123/newheadlockengine/internal/config"
	"github.com/dtiendzai123/newheadlockengine/internal/controller"
	"github.com/dtiendzai123/newheadlockengine/internal/detector"
	"github.com/dtiendzai123/newheadlockengine/internal/dispatcher"
	"github.com/dtiendzai123/newheadlockengine/internal/feed"
	"github.com/dtiendzai123/newheadlockengine/internal/logging"
	"github.com/dtiendzai123/newheadlockengine/internal/monitor"
	intOtel "github.com/dtiendzai123/newheadlockengine/internal/otel"
	"github.com/dtiendzai123/newheadlockengine/internal/profile"
	"github.com/dtiendzai123/newheadlockengine/internal/session"
	"github.com/dtiendzai123/newheadlockengine/internal/sink"
	"github.com/dtiendzai123/newheadlockengine/internal/telemetry"
)

// Version can be set at build time via ldflags.
var (
	Version   string = "0.1.0"
	BuildDate string = "unknown"
)

// app holds the live targeting pipeline. The controller is rebuilt when a
// profile is applied, so access goes through the mutex.
type app struct {
	mu     sync.RWMutex
	ctl    *controller.Controller
	driver sink.Driver
	events channel.Channel[aimlock.Event]
}

func (a *app) controller() *controller.Controller {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctl
}

// rebuild constructs a fresh detector/lock/controller from params and
// swaps it in. The old controller is deactivated first so its lock
// releases cleanly.
func (a *app) rebuild(params profile.Params) error {
	engagementZone, err := config.Zone()
	if err != nil {
		return fmt.Errorf("building engagement zone: %w", err)
	}

	det, err := detector.New(params.Detection, detector.WithZone(engagementZone))
	if err != nil {
		return fmt.Errorf("building detector: %w", err)
	}
	lock, err := aimlock.New(params.AimLock, aimlock.WithEvents(a.events))
	if err != nil {
		return fmt.Errorf("building aim lock: %w", err)
	}
	ctl, err := controller.New(params.Controller, det, lock, a.driver)
	if err != nil {
		return fmt.Errorf("building controller: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctl != nil {
		wasActive := a.ctl.IsActive()
		a.ctl.Deactivate()
		if wasActive {
			ctl.Activate()
		}
	}
	a.ctl = ctl
	return nil
}

func loadParams() (profile.Params, error) {
	detCfg, err := config.DetectorConfig()
	if err != nil {
		return profile.Params{}, err
	}
	aimCfg, err := config.AimLockConfig()
	if err != nil {
		return profile.Params{}, err
	}
	ctlCfg, err := config.ControllerConfig()
	if err != nil {
		return profile.Params{}, err
	}
	return profile.Params{
		Detection:  detCfg,
		AimLock:    aimCfg,
		Controller: ctlCfg,
	}, nil
}

func registerCommands(
	d *dispatcher.Dispatcher,
	a *app,
	store *profile.Store,
	mon *monitor.Service,
	logger *slog.Logger,
) {
	d.Register("control:activate", func(e dispatcher.Event) (any, error) {
		a.controller().Activate()
		return "ok", nil
	})

	d.Register("control:deactivate", func(e dispatcher.Event) (any, error) {
		a.controller().Deactivate()
		return "ok", nil
	})

	d.Register("status", func(e dispatcher.Event) (any, error) {
		raw, err := json.Marshal(mon.Snapshot())
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	})

	d.Register("version", func(e dispatcher.Event) (any, error) {
		return []string{Version, BuildDate}, nil
	})

	d.Register("profile:save", func(e dispatcher.Event) (any, error) {
		if len(e.Args) < 1 {
			return nil, fmt.Errorf("profile:save requires a name")
		}
		if !store.IsValid {
			return nil, fmt.Errorf("profile store unavailable")
		}
		params, err := loadParams()
		if err != nil {
			return nil, err
		}
		if err := store.Save(e.Args[0], params); err != nil {
			return nil, err
		}
		logger.Info("Profile saved", "name", e.Args[0])
		return "ok", nil
	})

	d.Register("profile:apply", func(e dispatcher.Event) (any, error) {
		if len(e.Args) < 1 {
			return nil, fmt.Errorf("profile:apply requires a name")
		}
		if !store.IsValid {
			return nil, fmt.Errorf("profile store unavailable")
		}
		params, err := store.Load(e.Args[0])
		if err != nil {
			return nil, err
		}
		if err := a.rebuild(params); err != nil {
			return nil, err
		}
		logger.Info("Profile applied", "name", e.Args[0])
		return "ok", nil
	})

	d.Register("profile:list", func(e dispatcher.Event) (any, error) {
		if !store.IsValid {
			return nil, fmt.Errorf("profile store unavailable")
		}
		return store.List()
	})

	d.Register("profile:delete", func(e dispatcher.Event) (any, error) {
		if len(e.Args) < 1 {
			return nil, fmt.Errorf("profile:delete requires a name")
		}
		if !store.IsValid {
			return nil, fmt.Errorf("profile store unavailable")
		}
		if err := store.Delete(e.Args[0]); err != nil {
			return nil, err
		}
		return "ok", nil
	})
}

func main() {
	configDir := flag.String("config", ".", "directory containing headlock.cfg.json")
	dryRun := flag.Bool("dry-run", false, "log aim output instead of streaming it")
	profileName := flag.String("profile", "", "stored profile to apply at startup")
	flag.Parse()

	// bootstrap logging to stdout until the log file is ready
	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, "info", nil)
	logger := slogManager.Logger()

	if err := config.Load(*configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config")
	}

	logsDir := config.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.MkdirAll(logsDir, 0755)
	}

	logFilePath := logging.LogFilePath(logsDir, "headlock", time.Now())
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
	}

	// OTel provider if enabled (after log file is created)
	var otelProvider *intOtel.Provider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		otelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			logger.Info("OTel provider initialized", "file", logFilePath)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if otelProvider != nil {
		otelLogProvider = otelProvider.LoggerProvider()
	}
	slogManager.Setup(logFile, config.GetString("logLevel"), otelLogProvider)
	logger = slogManager.Logger()
	logger.Info("Logging to file", "path", logFilePath, "version", Version)

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// profile store
	store := profile.NewStore(zlog)
	if err := store.Connect(); err != nil {
		logger.Error("Profile store unavailable", "error", err)
	}
	defer store.Close()

	// sink driver
	var driver sink.Driver
	sinkURL := config.GetString("sink.url")
	if *dryRun || sinkURL == "" {
		logger.Info("Using null output driver", "dryRun", *dryRun)
		driver = sink.NewNullDriver(logger)
	} else {
		wsDriver := sink.NewWebSocketDriver(sink.Config{
			URL:    sinkURL,
			Secret: config.GetString("sink.secret"),
		}, logger)
		if err := wsDriver.Dial(); err != nil {
			logger.Error("Failed to connect output driver, falling back to dry run",
				"error", err, "url", sinkURL)
			driver = sink.NewNullDriver(logger)
		} else {
			driver = wsDriver
		}
	}
	defer driver.Close()

	// targeting pipeline
	a := &app{
		driver: driver,
		// Debug builds swap in an unbuffered channel so lock transitions
		// are observed in lockstep with the ticks that caused them.
		events: channel.New[aimlock.Event](64),
	}

	params, err := loadParams()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if *profileName != "" && store.IsValid {
		stored, err := store.Load(*profileName)
		if err != nil {
			logger.Error("Failed to load startup profile", "error", err, "name", *profileName)
		} else {
			params = stored
			logger.Info("Applied startup profile", "name", *profileName)
		}
	}
	if err := a.rebuild(params); err != nil {
		logger.Error("Failed to build targeting pipeline", "error", err)
		os.Exit(1)
	}

	// shared state fed by the host stream
	entityCache := cache.NewEntityCache()
	sessionCtx := session.NewContext()

	// stamp the active session onto everything logged from here on
	logger = slog.New(logging.NewContextHandler(logger.Handler(), func() []slog.Attr {
		if s := sessionCtx.Session(); s != nil {
			return []slog.Attr{slog.String("session", s.SessionName)}
		}
		return nil
	}))

	disp, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		logger.Error("Failed to create dispatcher", "error", err)
		os.Exit(1)
	}

	// optional InfluxDB telemetry
	var tele *telemetry.Manager
	if config.GetBool("influx.enabled") {
		tele = telemetry.NewManager(zlog, filepath.Join(logsDir, "telemetry_backup.gz"))
		if err := tele.Connect(); err != nil {
			logger.Warn("Telemetry unavailable", "error", err)
		}
		defer tele.Close()
	}

	// status monitor
	mon := monitor.NewService(monitor.Dependencies{
		LogManager: slogManager,
		Session:    sessionCtx,
		Controller: a.controller,
		Cache:      entityCache,
		Telemetry:  tele,
		StatusDir:  logsDir,
	})
	mon.Start()
	defer mon.Stop()

	registerCommands(disp, a, store, mon, logger)

	// drain lock transition events
	go func() {
		for ev := range a.events.Receive() {
			if ev.Kind == aimlock.EventLocked {
				logger.Info("Lock acquired", "entity", lockEntityID(ev))
			} else {
				logger.Info("Lock released", "entity", lockEntityID(ev), "reason", ev.Reason)
			}
			if tele != nil && tele.IsValid {
				sessionName := ""
				if s := sessionCtx.Session(); s != nil {
					sessionName = s.SessionName
				}
				if err := tele.WriteLockEvent(context.Background(), sessionName, ev); err != nil {
					logger.Warn("Failed to export lock event", "error", err)
				}
			}
		}
	}()

	// host telemetry feed
	feedClient := feed.NewClient(feed.Config{
		URL:    config.GetString("feed.url"),
		Secret: config.GetString("feed.secret"),
	}, feed.Dependencies{
		EntityCache: entityCache,
		Session:     sessionCtx,
		Dispatcher:  disp,
		Logger:      logger,
	})
	if err := feedClient.Dial(); err != nil {
		logger.Error("Failed to connect to host feed", "error", err,
			"url", config.GetString("feed.url"))
		os.Exit(1)
	}
	defer feedClient.Close()

	// tick loop
	interval := params.Controller.UpdateInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	logger.Info("Targeting pipeline running", "interval", interval)

	for {
		select {
		case <-sig:
			logger.Info("Shutting down")
			a.controller().Deactivate()
			if otelProvider != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := otelProvider.Shutdown(ctx); err != nil {
					logger.Warn("OTel shutdown failed", "error", err)
				}
				cancel()
			}
			return
		case <-ticker.C:
			viewer, ok := sessionCtx.Viewer()
			if !ok {
				continue
			}
			a.controller().Tick(viewer, entityCache.Snapshot())
		}
	}
}

func lockEntityID(ev aimlock.Event) string {
	if ev.Target != nil && ev.Target.Entity != nil {
		return ev.Target.Entity.ID
	}
	return ""
}
