package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelbridge/pkg/types"
)

// Service defines the engine operations required by the HTTP API layer.
// *engine.Client satisfies it.
type Service interface {
	GetModels(ctx context.Context) ([]types.Model, error)
	GetModel(ctx context.Context, id string) (types.Model, error)
	GetModelStatus(ctx context.Context, id string) bool
	PullModel(ctx context.Context, id, jobID, name string) error
	ImportModel(ctx context.Context, model, modelPath, name, option string)
	DeleteModel(ctx context.Context, id string) error
	UpdateModel(ctx context.Context, partial map[string]any) error
	CancelModelPull(ctx context.Context, jobID string) error
	Ready() bool
}

// EventSource feeds GET /events. *events.Bridge satisfies it.
type EventSource interface {
	SubscribeChan(buf int) (<-chan types.Event, func())
}

const (
	eventBuffer     = 64
	eventWriteWait  = 10 * time.Second
	eventPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The facade binds to loopback; origin policy is left to CORS settings.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewMux builds the local HTTP facade. events may be nil, in which case
// GET /events is not served.
func NewMux(svc Service, events EventSource) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Accept", "Content-Type", "X-Request-Id"}),
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := engineContext(r)
		defer cancel()
		start := time.Now()
		models, err := svc.GetModels(ctx)
		if err != nil {
			logEngineCall(r, "getModels", writeEngineError(w, err), start, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ModelsResponse{Data: models})
		logEngineCall(r, "getModels", http.StatusOK, start, nil)
	})

	r.Post("/models/pull", func(w http.ResponseWriter, r *http.Request) {
		var req types.PullRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Model) == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}
		ctx, cancel := engineContext(r)
		defer cancel()
		start := time.Now()
		if err := svc.PullModel(ctx, req.Model, req.JobID, req.Name); err != nil {
			logEngineCall(r, "pullModel", writeEngineError(w, err), start, err)
			return
		}
		writeJSON(w, http.StatusAccepted, types.PullAccepted{Model: req.Model, JobID: req.JobID})
		logEngineCall(r, "pullModel", http.StatusAccepted, start, nil)
	})

	r.Delete("/models/pull/{jobId}", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := engineContext(r)
		defer cancel()
		start := time.Now()
		if err := svc.CancelModelPull(ctx, urlParam(r, "jobId")); err != nil {
			logEngineCall(r, "cancelModelPull", writeEngineError(w, err), start, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		logEngineCall(r, "cancelModelPull", http.StatusNoContent, start, nil)
	})

	r.Post("/models/import", func(w http.ResponseWriter, r *http.Request) {
		var req types.ImportRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Model) == "" || strings.TrimSpace(req.ModelPath) == "" {
			writeJSONError(w, http.StatusBadRequest, "model and modelPath are required")
			return
		}
		// Import is best effort and may wait behind other engine calls, so
		// it outlives the request and only stops on shutdown.
		go svc.ImportModel(serverBaseCtx, req.Model, req.ModelPath, req.Name, req.Option)
		writeJSON(w, http.StatusAccepted, req)
	})

	r.Get("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := engineContext(r)
		defer cancel()
		start := time.Now()
		m, err := svc.GetModel(ctx, urlParam(r, "id"))
		if err != nil {
			logEngineCall(r, "getModel", writeEngineError(w, err), start, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
		logEngineCall(r, "getModel", http.StatusOK, start, nil)
	})

	r.Get("/models/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := engineContext(r)
		defer cancel()
		id := urlParam(r, "id")
		writeJSON(w, http.StatusOK, types.StatusResponse{ModelID: id, Running: svc.GetModelStatus(ctx, id)})
	})

	r.Delete("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := engineContext(r)
		defer cancel()
		start := time.Now()
		if err := svc.DeleteModel(ctx, urlParam(r, "id")); err != nil {
			logEngineCall(r, "deleteModel", writeEngineError(w, err), start, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		logEngineCall(r, "deleteModel", http.StatusNoContent, start, nil)
	})

	r.Patch("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		partial := map[string]any{}
		if !decodeJSONBody(w, r, &partial) {
			return
		}
		// The path names the model; a conflicting body id is overridden.
		partial["id"] = urlParam(r, "id")
		ctx, cancel := engineContext(r)
		defer cancel()
		start := time.Now()
		if err := svc.UpdateModel(ctx, partial); err != nil {
			logEngineCall(r, "updateModel", writeEngineError(w, err), start, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		logEngineCall(r, "updateModel", http.StatusNoContent, start, nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("waiting for engine"))
	})

	if events != nil {
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			serveEvents(w, r, events)
		})
	}

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// serveEvents streams every bridge event to one websocket client until the
// client goes away or the server shuts down.
func serveEvents(w http.ResponseWriter, r *http.Request, src EventSource) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		if zlog != nil {
			zlog.Warn().Err(err).Msg("events upgrade failed")
		}
		return
	}
	defer ws.Close()
	eventStreamsActive.Inc()
	defer eventStreamsActive.Dec()

	ch, unsubscribe := src.SubscribeChan(eventBuffer)
	defer unsubscribe()

	// Drain client frames so close and pong control messages are handled.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-serverBaseCtx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(eventWriteWait))
			return
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case e, ok := <-ch:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := ws.WriteJSON(e); err != nil {
				return
			}
		}
	}
}

// decodeJSONBody enforces a JSON content type and the body size limit, and
// writes the error response itself when it returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		// Oversized bodies also land here; keep the message generic.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// urlParam returns a decoded route parameter. chi routes on RawPath when the
// request has one, so ids like "org%2Fmodel" arrive still escaped.
func urlParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
