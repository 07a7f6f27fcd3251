package cli

import (
	"context"

	"github.com/rs/zerolog"

	"modelbridge/internal/config"
	"modelbridge/internal/engine"
	"modelbridge/internal/httpapi"
)

// session is what commands need from an engine connection.
type session struct {
	svc     httpapi.Service
	events  httpapi.EventSource
	done    <-chan struct{}
	healthz func(ctx context.Context) error
	close   func() error
}

// Indirection layer to allow stubbing in tests
var fnOpenSession = openSession

func openSession(fc config.Config, log zerolog.Logger) *session {
	c := engine.New(engine.Config{
		BaseURL:          fc.EngineURL,
		SocketURL:        fc.SocketURL,
		APIKey:           fc.APIKey,
		RequestTimeout:   fc.RequestTimeout(),
		HealthRetries:    fc.HealthRetries,
		HealthRetryDelay: fc.HealthRetryDelay(),
		ListChangedDelay: fc.ListChangedDelay(),
		Logger:           &log,
	})
	return &session{
		svc:     c,
		events:  c.Events(),
		done:    c.Events().Done(),
		healthz: c.Healthz,
		close:   c.Close,
	}
}
