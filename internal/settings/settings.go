// Package settings loads the daemon settings file and watches it for changes.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"
)

// Settings are the daemon options. Every field can also be set by a flag.
type Settings struct {
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
	DataDir string `yaml:"data_dir"`
	Addr    string `yaml:"addr"`
	LogFile string `yaml:"log_file"`
	MQTT    string `yaml:"mqtt"`
	LEDPin  string `yaml:"led_pin"`
	Adapter string `yaml:"adapter"`
	Strict  bool   `yaml:"strict"`
	Mock    bool   `yaml:"mock"`
	Debug   bool   `yaml:"debug"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Port:    "/dev/ttyUSB0",
		Baud:    115200,
		DataDir: "/var/lib/ibeacon",
		Addr:    ":8080",
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// not empty) and then with environment overrides.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("settings: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("settings: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(&s)
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func applyEnvOverrides(s *Settings) {
	if port := os.Getenv("BEACON_PORT"); port != "" {
		s.Port = port
	}
	if dir := os.Getenv("BEACON_DATA_DIR"); dir != "" {
		s.DataDir = dir
	}
	if baud := os.Getenv("BEACON_BAUD"); baud != "" {
		if n, err := strconv.Atoi(baud); err == nil {
			s.Baud = n
		}
	}
}

// Validate checks the settings for values the daemon cannot run with.
func (s Settings) Validate() error {
	if s.Baud <= 0 {
		return fmt.Errorf("settings: invalid baud rate %d", s.Baud)
	}
	if s.DataDir == "" {
		return errors.New("settings: data_dir must be set")
	}
	if !s.Mock && s.Port == "" {
		return errors.New("settings: port must be set unless mock is enabled")
	}
	return nil
}

// Watch calls onChange with the reloaded settings whenever the file at path
// is written or created, until ctx is cancelled. Files that fail to load are
// logged and skipped.
func Watch(ctx context.Context, path string, onChange func(Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings: create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("settings: resolve %s: %w", path, err)
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("settings: watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			s, err := Load(abs)
			if err != nil {
				slog.Warn("settings: failed to reload", "path", abs, "err", err)
				continue
			}
			slog.Info("settings: reloaded", "path", abs)
			onChange(s)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("settings: watcher error", "err", err)
		}
	}
}
