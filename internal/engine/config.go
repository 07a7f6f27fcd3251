package engine

import (
	"time"

	"github.com/rs/zerolog"

	"modelbridge/internal/events"
	"modelbridge/internal/transport"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultHealthRetries        = 20
	defaultHealthRetryDelay     = 500 * time.Millisecond
	defaultHealthAttemptTimeout = 10 * time.Second
	defaultRequestTimeout       = 10 * time.Second
)

// Config encapsulates all tunables and collaborators for Client construction.
type Config struct {
	// BaseURL of the engine's HTTP API, e.g. http://127.0.0.1:39291.
	BaseURL string
	// SocketURL of the engine's push socket base. Derived from BaseURL when empty.
	SocketURL string
	// APIKey is forwarded opaquely to the engine.
	APIKey string

	// RequestTimeout bounds each engine request. Zero means 10s; negative
	// disables the bound.
	RequestTimeout time.Duration
	ConnectTimeout time.Duration

	// HealthRetries is the number of retries of the health probe after the
	// first attempt fails. Zero means the default of 20; negative disables
	// retries.
	HealthRetries    int
	HealthRetryDelay time.Duration
	// HealthAttemptTimeout bounds one probe attempt, so an engine that accepts
	// connections but never answers cannot hold the queue. Zero means 10s.
	HealthAttemptTimeout time.Duration

	ListChangedDelay   time.Duration
	SocketDialAttempts int

	// Name labels the request queue in metrics.
	Name string

	// Requester, Dialer and Clock override the production transport (tests).
	Requester transport.Requester
	Dialer    transport.Dialer
	Clock     events.Clock
	Logger    *zerolog.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.HealthRetries < 0 {
		cfg.HealthRetries = 0
	} else if cfg.HealthRetries == 0 {
		cfg.HealthRetries = defaultHealthRetries
	}
	if cfg.HealthRetryDelay <= 0 {
		cfg.HealthRetryDelay = defaultHealthRetryDelay
	}
	if cfg.HealthAttemptTimeout <= 0 {
		cfg.HealthAttemptTimeout = defaultHealthAttemptTimeout
	}
	if cfg.RequestTimeout < 0 {
		cfg.RequestTimeout = 0
	} else if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.SocketURL == "" {
		cfg.SocketURL = transport.SocketURLFromHTTP(cfg.BaseURL)
	}
	if cfg.Name == "" {
		cfg.Name = "engine"
	}
	if cfg.Requester == nil {
		cfg.Requester = transport.NewHTTP(transport.HTTPOptions{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			ConnectTimeout: cfg.ConnectTimeout,
			RequestTimeout: cfg.RequestTimeout,
		})
	}
	if cfg.Dialer == nil {
		cfg.Dialer = transport.WebsocketDialer{APIKey: cfg.APIKey}
	}
	return cfg
}
