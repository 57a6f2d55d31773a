package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"pxlsync.dev/internal/accel"
	"pxlsync.dev/internal/canvas"
)

type Config struct {
	Site    string `yaml:"site"`
	BaseURL string `yaml:"base_url"`
	// Layers are layer names; empty means all.
	Layers []string `yaml:"layers"`

	ReconnectBackoff  time.Duration `yaml:"reconnect_backoff"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatSlack    time.Duration `yaml:"heartbeat_slack"`

	// Accel is auto, reference or parallel.
	Accel string `yaml:"accel"`

	Cooldown canvas.CooldownConfig `yaml:"cooldown"`
	Log      Log                   `yaml:"log"`

	NotificationsDB string `yaml:"notifications_db"`
	ChatLogDir      string `yaml:"chat_log_dir"`
	TemplateCacheMB int    `yaml:"template_cache_mb"`
	// Templates are template links tracked by watch and progress.
	Templates []string `yaml:"templates"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	JSON       bool   `yaml:"json"`
}

func Defaults() Config {
	return Config{
		Site:              canvas.DefaultSite,
		ReconnectBackoff:  canvas.DefaultReconnectBackoff,
		HeartbeatInterval: canvas.DefaultHeartbeatInterval,
		HeartbeatSlack:    canvas.DefaultHeartbeatSlack,
		Accel:             "auto",
		Cooldown:          canvas.DefaultCooldown(),
		Log: Log{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		TemplateCacheMB: 64,
	}
}

// Load overlays the file at path on Defaults. An empty path returns Defaults.
func Load(path string) (Config, error) {
	c := Defaults()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Site == "" && c.BaseURL == "" {
		errs = append(errs, errors.New("site or base_url is required"))
	}
	if _, err := c.ParseLayers(); err != nil {
		errs = append(errs, err)
	}
	if c.ReconnectBackoff < 0 || c.HeartbeatInterval < 0 || c.HeartbeatSlack < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.Accel != "" && c.Accel != "auto" {
		if _, err := accel.Select(c.Accel); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		errs = append(errs, errors.New("log rotation limits must not be negative"))
	}
	if c.TemplateCacheMB < 0 {
		errs = append(errs, errors.New("template_cache_mb must not be negative"))
	}
	if c.Cooldown.Steepness < 0 || c.Cooldown.Multiplier < 0 {
		errs = append(errs, errors.New("cooldown steepness and multiplier must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) ParseLayers() ([]canvas.Layer, error) {
	var out []canvas.Layer
	for _, name := range c.Layers {
		l, err := canvas.ParseLayer(name)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// SiteURL is the canvas root the client connects to.
func (c Config) SiteURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return canvas.SiteURL(c.Site)
}

// Options builds the canvas client options. The logger is shared.
func (c Config) Options(log logrus.FieldLogger) (canvas.Options, error) {
	layers, err := c.ParseLayers()
	if err != nil {
		return canvas.Options{}, err
	}
	return canvas.Options{
		BaseURL:           c.SiteURL(),
		Layers:            layers,
		ReconnectBackoff:  c.ReconnectBackoff,
		HeartbeatInterval: c.HeartbeatInterval,
		HeartbeatSlack:    c.HeartbeatSlack,
		Cooldown:          c.Cooldown,
		Logger:            log,
	}, nil
}

// ApplyAccel installs the configured backend. auto keeps the probed default.
func (c Config) ApplyAccel() error {
	if c.Accel == "" || c.Accel == "auto" {
		return nil
	}
	b, err := accel.Select(c.Accel)
	if err != nil {
		return err
	}
	return accel.Use(b)
}
