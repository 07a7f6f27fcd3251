package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelbridge/internal/events"
	"modelbridge/internal/queue"
	"modelbridge/internal/transport"
	"modelbridge/pkg/types"
)

// Client is the engine client. Every engine call goes through one
// single-concurrency queue, so no two calls from the same Client overlap.
type Client struct {
	q          *queue.Queue
	tr         transport.Requester
	bridge     *events.Bridge
	log        zerolog.Logger
	retries    int
	retryDelay time.Duration
	attemptTTL time.Duration
	health     *queue.Future[struct{}]
	closeOnce  sync.Once
}

// New constructs a Client, enqueues the startup health probe as the first
// queue operation and starts the event bridge.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	log = log.With().Str("component", "engine").Logger()
	c := &Client{
		q:          queue.New(queue.Options{Name: cfg.Name, Logger: &log}),
		tr:         cfg.Requester,
		log:        log,
		retries:    cfg.HealthRetries,
		retryDelay: cfg.HealthRetryDelay,
		attemptTTL: cfg.HealthAttemptTimeout,
	}
	c.bridge = events.NewBridge(events.Config{
		SocketURL:        cfg.SocketURL,
		Dialer:           cfg.Dialer,
		Clock:            cfg.Clock,
		ListChangedDelay: cfg.ListChangedDelay,
		DialAttempts:     cfg.SocketDialAttempts,
		DialRetryDelay:   cfg.HealthRetryDelay,
		Logger:           &log,
	})
	c.health = queue.Enqueue(c.q, context.Background(), "healthz", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.probeHealth(ctx)
	})
	c.bridge.Start()
	return c
}

// Events returns the bridge republishing the engine's push frames.
func (c *Client) Events() *events.Bridge { return c.bridge }

// Health returns the startup health probe's future.
func (c *Client) Health() *queue.Future[struct{}] { return c.health }

// Ready reports whether the startup health probe succeeded.
func (c *Client) Ready() bool {
	select {
	case <-c.health.Done():
		_, err := c.health.Wait(context.Background())
		return err == nil
	default:
		return false
	}
}

// Close stops the bridge and the queue. Pending calls fail with queue.ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.bridge.Close()
		c.q.Close()
	})
	return err
}

// call enqueues one engine request and waits for its raw result.
func (c *Client) call(ctx context.Context, name, method, path string, body any) ([]byte, error) {
	return queue.Do(c.q, ctx, name, func(ctx context.Context) ([]byte, error) {
		return c.tr.Do(ctx, method, path, body)
	})
}

// GetModel returns one normalized model.
func (c *Client) GetModel(ctx context.Context, id string) (types.Model, error) {
	if id == "" {
		return types.Model{}, errRequired("model id")
	}
	b, err := c.call(ctx, "getModel", http.MethodGet, "/v1/models/"+url.PathEscape(id), nil)
	if err != nil {
		return types.Model{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return types.Model{}, err
	}
	return NormalizeModel(raw), nil
}

// GetModels lists normalized models in engine order. A response that is not
// an object with a "data" array yields an empty list, not an error, so list
// views stay renderable through a partial engine hiccup.
func (c *Client) GetModels(ctx context.Context) ([]types.Model, error) {
	b, err := c.call(ctx, "getModels", http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	return decodeModelList(b, c.log), nil
}

func decodeModelList(b []byte, log zerolog.Logger) []types.Model {
	out := []types.Model{}
	var body map[string]any
	if err := json.Unmarshal(b, &body); err != nil {
		log.Debug().Err(err).Msg("models list is not an object")
		return out
	}
	items, ok := body["data"].([]any)
	if !ok {
		log.Debug().Msg("models list has no data array")
		return out
	}
	for _, it := range items {
		raw, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, NormalizeModel(raw))
	}
	return out
}

// PullModel asks the engine to download id. jobID and name are optional.
// When the engine rejects the pull with a JSON body, the returned error is a
// *BackendError carrying that body; otherwise the transport error is returned.
func (c *Client) PullModel(ctx context.Context, id, jobID, name string) error {
	if id == "" {
		return errRequired("model id")
	}
	body := pullBody{Model: id, ID: jobID, Name: name}
	if _, err := c.call(ctx, "pullModel", http.MethodPost, "/v1/models/pull", body); err != nil {
		return backendErrorFrom(err)
	}
	return nil
}

type pullBody struct {
	Model string `json:"model"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ImportModel registers a local model file with the engine. Import is best
// effort: failures are logged and never returned. It returns once the queued
// call has finished.
func (c *Client) ImportModel(ctx context.Context, model, modelPath, name, option string) {
	if model == "" || modelPath == "" {
		c.log.Warn().Str("model", model).Str("path", modelPath).Msg("import skipped: model and path are required")
		return
	}
	body := importBody{Model: model, ModelPath: modelPath, Name: name, Option: option}
	if _, err := c.call(ctx, "importModel", http.MethodPost, "/v1/models/import", body); err != nil {
		c.log.Warn().Err(err).Str("model", model).Str("path", modelPath).Msg("import failed")
	}
}

type importBody struct {
	Model     string `json:"model"`
	ModelPath string `json:"modelPath"`
	Name      string `json:"name,omitempty"`
	Option    string `json:"option,omitempty"`
}

// DeleteModel removes a model from the engine.
func (c *Client) DeleteModel(ctx context.Context, id string) error {
	if id == "" {
		return errRequired("model id")
	}
	_, err := c.call(ctx, "deleteModel", http.MethodDelete, "/models/"+url.PathEscape(id), nil)
	return err
}

// UpdateModel sends a partial model record. partial must carry a string "id".
func (c *Client) UpdateModel(ctx context.Context, partial map[string]any) error {
	id, _ := partial["id"].(string)
	if id == "" {
		return errRequired("model id")
	}
	_, err := c.call(ctx, "updateModel", http.MethodPatch, "/v1/models/"+url.PathEscape(id), partial)
	return err
}

// CancelModelPull asks the engine to stop a download job it already knows.
// It does not withdraw a pull still waiting in the local queue.
func (c *Client) CancelModelPull(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errRequired("job id")
	}
	_, err := c.call(ctx, "cancelModelPull", http.MethodDelete, "/models/pull", cancelBody{TaskID: jobID})
	return err
}

type cancelBody struct {
	TaskID string `json:"taskId"`
}

// GetModelStatus reports whether the engine's status probe for id succeeds.
// Every failure, including network errors and non-2xx, reads as false.
func (c *Client) GetModelStatus(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	if _, err := c.call(ctx, "getModelStatus", http.MethodGet, "/models/status/"+url.PathEscape(id), nil); err != nil {
		c.log.Debug().Err(err).Str("model", id).Msg("status probe failed")
		return false
	}
	return true
}

// Healthz queues a health probe, retried up to the configured count.
func (c *Client) Healthz(ctx context.Context) error {
	_, err := queue.Do(c.q, ctx, "healthz", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.probeHealth(ctx)
	})
	return err
}

// probeHealth runs inside a queued operation so the retries hold the queue.
func (c *Client) probeHealth(ctx context.Context) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(c.retryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err = c.healthAttempt(ctx); err == nil {
			if attempt > 0 {
				c.log.Info().Int("attempts", attempt+1).Msg("engine healthy")
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Debug().Err(err).Int("attempt", attempt+1).Msg("engine health probe failed")
	}
	c.log.Warn().Err(err).Int("attempts", c.retries+1).Msg("engine did not become healthy")
	return err
}

func (c *Client) healthAttempt(ctx context.Context) error {
	actx, cancel := context.WithTimeout(ctx, c.attemptTTL)
	defer cancel()
	_, err := c.tr.Do(actx, http.MethodGet, "/healthz", nil)
	return err
}
