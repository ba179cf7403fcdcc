// Command beacond is the iBeacon daemon. It serves the configuration
// protocol on a serial port, persists the beacon identity and keeps the
// advertiser, HTTP API and LAN announcements in sync with it.
// Run with --mock to use an in-memory store and no LED hardware.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/micro-nova/ibeacon-go/internal/api"
	"github.com/micro-nova/ibeacon-go/internal/config"
	"github.com/micro-nova/ibeacon-go/internal/dispatch"
	"github.com/micro-nova/ibeacon-go/internal/events"
	"github.com/micro-nova/ibeacon-go/internal/identity"
	"github.com/micro-nova/ibeacon-go/internal/indicator"
	"github.com/micro-nova/ibeacon-go/internal/radio"
	"github.com/micro-nova/ibeacon-go/internal/settings"
	"github.com/micro-nova/ibeacon-go/internal/storage"
	"github.com/micro-nova/ibeacon-go/internal/telemetry"
	"github.com/micro-nova/ibeacon-go/internal/uart"
	"github.com/micro-nova/ibeacon-go/internal/zeroconf"
)

const (
	uartRetryDelay = time.Second
	logFileName    = "beacon.log"
)

func main() {
	var (
		settingsPath = flag.String("settings", "", "YAML settings file (watched for log level changes)")
		port         = flag.String("port", "", "serial port carrying the command protocol")
		baud         = flag.Int("baud", 0, "serial baud rate")
		dataDir      = flag.String("data-dir", "", "directory holding the configuration log")
		addr         = flag.String("addr", "", "HTTP listen address, empty string disables the API")
		logFile      = flag.String("log-file", "", "also write logs to this rotating file")
		mqttURL      = flag.String("mqtt", "", "MQTT broker URL for configuration telemetry, e.g. mqtt://host:1883/prefix")
		ledPin       = flag.String("led-pin", "", "GPIO pin name of the status LED")
		adapter      = flag.String("adapter", "", "BlueZ adapter path, e.g. /org/bluez/hci0; empty logs the payload instead")
		mock         = flag.Bool("mock", false, "use an in-memory store and a simulated LED")
		strict       = flag.Bool("strict", false, "reject malformed configure commands instead of decoding them leniently")
		debug        = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	// Configure logging before anything can fail.
	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	cfg, err := settings.Load(*settingsPath)
	if err != nil {
		slog.Error("cannot load settings", "path", *settingsPath, "err", err)
		os.Exit(1)
	}
	// Flags given on the command line win over the settings file.
	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "baud":
			cfg.Baud = *baud
		case "data-dir":
			cfg.DataDir = *dataDir
		case "addr":
			cfg.Addr = *addr
		case "log-file":
			cfg.LogFile = *logFile
		case "mqtt":
			cfg.MQTT = *mqttURL
		case "led-pin":
			cfg.LEDPin = *ledPin
		case "adapter":
			cfg.Adapter = *adapter
		case "mock":
			cfg.Mock = *mock
		case "strict":
			cfg.Strict = *strict
		case "debug":
			cfg.Debug = *debug
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid settings", "err", err)
		os.Exit(1)
	}

	level.Set(logLevel(cfg.Debug))
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		defer rotator.Close()
		w := io.MultiWriter(os.Stderr, rotator)
		slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &level})))
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		slog.Error("cannot create data directory", "path", cfg.DataDir, "err", err)
		os.Exit(1)
	}

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Storage backend
	var backend storage.Backend
	var logBackend *storage.LogBackend
	if cfg.Mock {
		slog.Info("using in-memory storage backend")
		backend = storage.NewMemBackend()
	} else {
		logBackend = storage.NewLogBackend(filepath.Join(cfg.DataDir, logFileName))
		slog.Info("using log storage backend", "path", logBackend.Path())
		backend = logBackend
	}

	// Config store: a storage failure here halts the device.
	store := config.New(backend)
	// Init waits for the backend with no timeout; only a shutdown signal aborts it.
	if err := store.Init(ctx); err != nil {
		slog.Error("storage initialization failed", "err", err)
		os.Exit(1)
	}
	current, err := store.Load()
	if err != nil {
		slog.Error("cannot load configuration", "err", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded", "config", current)

	info := identity.Detect(cfg.DataDir)
	slog.Info("device identity", "version", info.Version, "device", info.DeviceID)

	// Event bus and dispatcher
	bus := events.NewBus()
	d := dispatch.New(store, info, bus, dispatch.WithStrictParsing(cfg.Strict))

	// Radio
	var adv radio.Advertiser = radio.NewLogAdvertiser()
	if cfg.Adapter != "" && !cfg.Mock {
		bluez, err := radio.NewBlueZAdvertiser(dbus.ObjectPath(cfg.Adapter))
		if err != nil {
			slog.Warn("bluez unavailable, logging advertisements instead", "err", err)
		} else {
			defer bluez.Close()
			adv = bluez
		}
	}
	go func() {
		if err := radio.Run(ctx, adv, bus, store); err != nil {
			slog.Error("radio failed", "err", err)
		}
	}()

	// Status LED
	var led indicator.LED
	switch {
	case cfg.Mock || cfg.LEDPin == "":
		led = indicator.NewMock()
	default:
		gpio, err := indicator.OpenGPIO(cfg.LEDPin)
		if err != nil {
			slog.Warn("status LED unavailable", "pin", cfg.LEDPin, "err", err)
			led = indicator.NewMock()
		} else {
			led = gpio
		}
	}
	go indicator.Run(ctx, led, bus, indicator.DefaultPattern())

	// Telemetry
	if cfg.MQTT != "" {
		client, prefix, err := telemetry.Dial(cfg.MQTT)
		if err != nil {
			slog.Warn("telemetry disabled", "err", err)
		} else {
			defer client.Close()
			pub := telemetry.NewPublisher(client, prefix, info.DeviceID, info.Version)
			slog.Info("telemetry enabled", "topic", pub.Topic())
			go pub.Run(ctx, bus, store)
		}
	}

	// HTTP server and mDNS announcement
	var srv *http.Server
	if cfg.Addr != "" {
		srv = &http.Server{
			Addr:         cfg.Addr,
			Handler:      api.NewRouter(d, bus),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // 0 = no timeout (needed for SSE)
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			slog.Info("HTTP API listening", "addr", cfg.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("server error", "err", err)
			}
		}()

		zc := zeroconf.New(serviceName(info.DeviceID), listenPort(cfg.Addr), info)
		go func() {
			if err := zc.Run(ctx, bus, store); err != nil {
				slog.Warn("zeroconf failed", "err", err)
			}
		}()
	}

	// Settings hot reload
	if *settingsPath != "" {
		go func() {
			err := settings.Watch(ctx, *settingsPath, func(s settings.Settings) {
				if explicit["debug"] {
					return
				}
				level.Set(logLevel(s.Debug))
				slog.Info("log level updated", "level", level.Level())
			})
			if err != nil {
				slog.Warn("settings watch failed", "err", err)
			}
		}()
	}

	// Serial protocol
	uartDone := make(chan struct{})
	go func() {
		defer close(uartDone)
		serveUART(ctx, cfg, d)
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if srv != nil {
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Warn("server shutdown error", "err", err)
		}
	}
	select {
	case <-uartDone:
	case <-shutCtx.Done():
		slog.Warn("serial session did not stop in time")
	}
	if logBackend != nil {
		if err := logBackend.Shutdown(); err != nil {
			slog.Warn("storage shutdown error", "err", err)
		}
	}

	slog.Info("shutdown complete")
}

// serveUART runs sessions on the serial port, reopening it after
// communication errors, until ctx is cancelled.
func serveUART(ctx context.Context, cfg settings.Settings, h uart.LineHandler) {
	if cfg.Port == "" {
		slog.Info("no serial port configured, command protocol disabled")
		return
	}
	for {
		port, err := uart.Open(cfg.Port, cfg.Baud)
		if err != nil {
			if cfg.Mock {
				slog.Warn("serial port unavailable in mock mode, command protocol disabled", "err", err)
				return
			}
			slog.Error("serial port unavailable", "err", err)
		} else {
			slog.Info("serving command protocol", "port", cfg.Port, "baud", cfg.Baud)
			err = uart.NewSession(port, h).Serve(ctx)
			_ = port.Close()
			if err == nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(uartRetryDelay):
		}
	}
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// serviceName builds the mDNS instance name from the device id,
// e.g. "ibeacon-ddeeff".
func serviceName(deviceID string) string {
	id := strings.ToLower(strings.ReplaceAll(deviceID, ":", ""))
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return "ibeacon-" + id
}

// listenPort extracts the port from a listen address, defaulting to 80.
func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 80
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return 80
	}
	return p
}
