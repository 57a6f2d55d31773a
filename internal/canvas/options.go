package canvas

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"pxlsync.dev/internal/transport/rest"
	"pxlsync.dev/internal/transport/ws"
)

// Fetcher performs the REST half of a sync. *rest.Client implements it.
type Fetcher interface {
	JSON(ctx context.Context, path string) ([]byte, error)
	Raw(ctx context.Context, path string, size int) ([]byte, error)
}

const (
	DefaultSite              = "pxls.space"
	DefaultReconnectBackoff  = 30 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatSlack    = time.Second
)

type Options struct {
	// BaseURL is the site root, e.g. https://pxls.space. The socket lives at
	// the same host under /ws.
	BaseURL string
	// Layers lists the grids to mirror. Empty means all of them.
	Layers []Layer

	ReconnectBackoff  time.Duration
	HeartbeatInterval time.Duration
	HeartbeatSlack    time.Duration

	Cooldown CooldownConfig

	Logger logrus.FieldLogger

	// Dialer and Fetcher default to the gorilla and net/http transports.
	Dialer  ws.Dialer
	Fetcher Fetcher
}

func DefaultOptions() Options {
	return Options{
		BaseURL:           "https://" + DefaultSite,
		Layers:            AllLayers(),
		ReconnectBackoff:  DefaultReconnectBackoff,
		HeartbeatInterval: DefaultHeartbeatInterval,
		HeartbeatSlack:    DefaultHeartbeatSlack,
		Cooldown:          DefaultCooldown(),
	}
}

// SiteURL turns a bare host like "pxls.space" into https://pxls.space and
// leaves full URLs alone.
func SiteURL(site string) string {
	u, err := url.Parse(site)
	if err == nil && u.Scheme != "" && u.Host != "" {
		return site
	}
	return "https://" + site
}

func (o *Options) normalize() (*url.URL, error) {
	if o.BaseURL == "" {
		o.BaseURL = "https://" + DefaultSite
	}
	base, err := url.Parse(SiteURL(o.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", o.BaseURL)
	}
	if len(o.Layers) == 0 {
		o.Layers = AllLayers()
	}
	for _, l := range o.Layers {
		if !l.valid() {
			return nil, fmt.Errorf("unknown layer %d", int(l))
		}
	}
	if o.ReconnectBackoff < 0 || o.HeartbeatInterval < 0 || o.HeartbeatSlack < 0 {
		return nil, fmt.Errorf("durations must not be negative")
	}
	if o.ReconnectBackoff == 0 {
		o.ReconnectBackoff = DefaultReconnectBackoff
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.Cooldown == (CooldownConfig{}) {
		o.Cooldown = DefaultCooldown()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Dialer == nil {
		o.Dialer = ws.NewDialer()
	}
	if o.Fetcher == nil {
		o.Fetcher = rest.New(base)
	}
	return base, nil
}
