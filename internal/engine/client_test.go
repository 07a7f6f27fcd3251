package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelbridge/internal/queue"
	"modelbridge/internal/transport"
)

func TestClient_HealthProbeIsFirstCall(t *testing.T) {
	fr := &fakeRequester{}
	c := newTestClient(t, fr)
	require.NoError(t, c.DeleteModel(testCtx(t), "m1"))

	calls := fr.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, recordedCall{Method: http.MethodGet, Path: "/healthz"}, calls[0])
	assert.Equal(t, http.MethodDelete, calls[1].Method)
	assert.Equal(t, "/models/m1", calls[1].Path)
	assert.True(t, c.Ready())
}

func TestClient_HealthProbeRetriesThenGivesUp(t *testing.T) {
	var probes int32
	fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
		if path == "/healthz" {
			atomic.AddInt32(&probes, 1)
			return nil, errors.New("connection refused")
		}
		return []byte(`{}`), nil
	}}
	c := newTestClient(t, fr)

	_, err := c.Health().Wait(testCtx(t))
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&probes), "one attempt plus two retries")
	assert.False(t, c.Ready())

	// the queue keeps going after the probe gives up
	assert.True(t, c.GetModelStatus(testCtx(t), "m"))
}

func TestClient_HealthzRecovers(t *testing.T) {
	var probes int32
	fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
		if path == "/healthz" && atomic.AddInt32(&probes, 1) < 3 {
			return nil, errors.New("not yet")
		}
		return []byte(`ok`), nil
	}}
	c := newTestClient(t, fr)
	_, err := c.Health().Wait(testCtx(t))
	require.NoError(t, err)
	require.NoError(t, c.Healthz(testCtx(t)))
}

func TestClient_ConcurrentMutationsAreSerializedInOrder(t *testing.T) {
	gate := make(chan struct{})
	fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
		if path == "/healthz" {
			<-gate
		}
		time.Sleep(200 * time.Microsecond)
		return []byte(`{}`), nil
	}}
	c := newTestClient(t, fr)

	// While the health probe holds the queue, submit mutations one after another.
	const n = 12
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		id := fmt.Sprintf("m%02d", i)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				errs[i] = c.DeleteModel(context.Background(), id)
			case 1:
				errs[i] = c.UpdateModel(context.Background(), map[string]any{"id": id, "name": "x"})
			default:
				errs[i] = c.CancelModelPull(context.Background(), id)
			}
		}(i)
		// each submission is admitted before the next one starts
		require.Eventually(t, func() bool { return c.q.Len() == i+1 }, time.Second, time.Millisecond)
	}
	close(gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fr.MaxInflight())
	calls := fr.Calls()
	require.Len(t, calls, n+1)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("m%02d", i)
		got := calls[i+1]
		switch i % 3 {
		case 0:
			assert.Equal(t, http.MethodDelete, got.Method)
			assert.Equal(t, "/models/"+id, got.Path)
		case 1:
			assert.Equal(t, http.MethodPatch, got.Method)
			assert.Equal(t, "/v1/models/"+id, got.Path)
			assert.Equal(t, id, got.Body["id"])
		default:
			assert.Equal(t, http.MethodDelete, got.Method)
			assert.Equal(t, "/models/pull", got.Path)
			assert.Equal(t, id, got.Body["taskId"])
		}
	}
}

func TestClient_FailedCallDoesNotStopQueue(t *testing.T) {
	fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
		if path == "/models/bad" {
			return nil, &transport.StatusError{Method: method, Path: path, Code: 500, Status: "500 Internal Server Error"}
		}
		return []byte(`{}`), nil
	}}
	c := newTestClient(t, fr)

	err := c.DeleteModel(testCtx(t), "bad")
	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Code)
	require.NoError(t, c.DeleteModel(testCtx(t), "good"))
}

func TestClient_GetModels(t *testing.T) {
	cases := []struct {
		name string
		body string
		ids  []string
	}{
		{"data array", `{"object":"list","data":[{"id":"b"},{"id":"a"},{"id":"c"}]}`, []string{"b", "a", "c"}},
		{"not an object", `[{"id":"a"}]`, []string{}},
		{"not json", `<html>`, []string{}},
		{"data not array", `{"data":{"id":"a"}}`, []string{}},
		{"missing data", `{"models":[]}`, []string{}},
		{"non-object elements skipped", `{"data":[1,{"id":"a"},"x"]}`, []string{"a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
				if path == "/models" {
					return []byte(tc.body), nil
				}
				return []byte(`{}`), nil
			}}
			c := newTestClient(t, fr)
			models, err := c.GetModels(testCtx(t))
			require.NoError(t, err)
			require.NotNil(t, models)
			ids := []string{}
			for _, m := range models {
				ids = append(ids, m.ID)
				assert.NotNil(t, m.Parameters)
				assert.NotNil(t, m.Settings)
				assert.NotNil(t, m.Metadata)
			}
			assert.Equal(t, tc.ids, ids)
		})
	}
}

func TestClient_GetModelsPropagatesTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
		if path == "/models" {
			return nil, boom
		}
		return []byte(`{}`), nil
	}}
	c := newTestClient(t, fr)
	_, err := c.GetModels(testCtx(t))
	assert.ErrorIs(t, err, boom)
}

func TestClient_GetModelNormalizes(t *testing.T) {
	fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
		if path == "/v1/models/tinyllama%2Fq4" {
			return []byte(`{"id":"tinyllama/q4","temperature":0.8,"parameters":{"temperature":0.5},"size":42}`), nil
		}
		return []byte(`{}`), nil
	}}
	c := newTestClient(t, fr)
	m, err := c.GetModel(testCtx(t), "tinyllama/q4")
	require.NoError(t, err)
	assert.Equal(t, "tinyllama/q4", m.ID)
	assert.Equal(t, 0.5, m.Parameters["temperature"])
	assert.Equal(t, uint64(42), m.Size())

	_, err = c.GetModel(testCtx(t), "")
	assert.True(t, IsInvalidArgument(err))
}

func TestClient_PullModel(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		fr := &fakeRequester{}
		c := newTestClient(t, fr)
		require.NoError(t, c.PullModel(testCtx(t), "llama3", "job-1", "Llama 3"))
		calls := fr.Calls()
		last := calls[len(calls)-1]
		assert.Equal(t, http.MethodPost, last.Method)
		assert.Equal(t, "/v1/models/pull", last.Path)
		assert.Equal(t, map[string]any{"model": "llama3", "id": "job-1", "name": "Llama 3"}, last.Body)
	})

	t.Run("backend error body surfaced", func(t *testing.T) {
		fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
			if path == "/v1/models/pull" {
				return nil, &transport.StatusError{Method: method, Path: path, Code: 409, Status: "409 Conflict", Body: []byte(`{"message":"Model already exists"}`)}
			}
			return []byte(`{}`), nil
		}}
		c := newTestClient(t, fr)
		err := c.PullModel(testCtx(t), "llama3", "", "")
		var be *BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, 409, be.StatusCode())
		assert.Equal(t, "Model already exists", be.Message)
		assert.JSONEq(t, `{"message":"Model already exists"}`, string(be.Body))
	})

	t.Run("raw transport error", func(t *testing.T) {
		boom := errors.New("dial tcp: refused")
		fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
			if path == "/v1/models/pull" {
				return nil, boom
			}
			return []byte(`{}`), nil
		}}
		c := newTestClient(t, fr)
		err := c.PullModel(testCtx(t), "llama3", "", "")
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsBackendError(err))
	})

	t.Run("non-json error body", func(t *testing.T) {
		fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
			if path == "/v1/models/pull" {
				return nil, &transport.StatusError{Method: method, Path: path, Code: 502, Status: "502 Bad Gateway", Body: []byte("upstream down")}
			}
			return []byte(`{}`), nil
		}}
		c := newTestClient(t, fr)
		err := c.PullModel(testCtx(t), "llama3", "", "")
		var se *transport.StatusError
		require.ErrorAs(t, err, &se)
		assert.False(t, IsBackendError(err))
	})

	t.Run("id required", func(t *testing.T) {
		c := newTestClient(t, &fakeRequester{})
		assert.True(t, IsInvalidArgument(c.PullModel(testCtx(t), "", "", "")))
	})
}

func TestClient_ImportModelSwallowsErrors(t *testing.T) {
	fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
		if path == "/v1/models/import" {
			return nil, errors.New("disk full")
		}
		return []byte(`{}`), nil
	}}
	c := newTestClient(t, fr)
	c.ImportModel(testCtx(t), "local", "/models/local.gguf", "Local", "symlink")

	calls := fr.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "/v1/models/import", last.Path)
	assert.Equal(t, map[string]any{"model": "local", "modelPath": "/models/local.gguf", "name": "Local", "option": "symlink"}, last.Body)

	// missing path: nothing is sent
	before := len(fr.Calls())
	c.ImportModel(testCtx(t), "local", "", "", "")
	assert.Len(t, fr.Calls(), before)
}

func TestClient_UpdateModelRequiresID(t *testing.T) {
	fr := &fakeRequester{}
	c := newTestClient(t, fr)
	assert.True(t, IsInvalidArgument(c.UpdateModel(testCtx(t), map[string]any{"name": "x"})))
	assert.True(t, IsInvalidArgument(c.UpdateModel(testCtx(t), map[string]any{"id": 5})))
	assert.True(t, IsInvalidArgument(c.CancelModelPull(testCtx(t), "")))
	assert.True(t, IsInvalidArgument(c.DeleteModel(testCtx(t), "")))
}

func TestClient_GetModelStatusNeverFails(t *testing.T) {
	fr := &fakeRequester{handle: func(method, path string) ([]byte, error) {
		switch path {
		case "/models/status/up":
			return []byte(`{"running":true}`), nil
		case "/models/status/down":
			return nil, &transport.StatusError{Method: method, Path: path, Code: 404, Status: "404 Not Found"}
		case "/models/status/gone":
			return nil, errors.New("connection refused")
		}
		return []byte(`{}`), nil
	}}
	c := newTestClient(t, fr)
	assert.True(t, c.GetModelStatus(testCtx(t), "up"))
	assert.False(t, c.GetModelStatus(testCtx(t), "down"))
	assert.False(t, c.GetModelStatus(testCtx(t), "gone"))
	assert.False(t, c.GetModelStatus(testCtx(t), ""))
}

func TestClient_CloseRejectsLaterCalls(t *testing.T) {
	c := newTestClient(t, &fakeRequester{})
	require.NoError(t, c.Close())
	err := c.DeleteModel(testCtx(t), "m")
	assert.ErrorIs(t, err, queue.ErrClosed)
	assert.False(t, c.GetModelStatus(testCtx(t), "m"))
}

func TestClient_AgainstHTTPEngine(t *testing.T) {
	var mu sync.Mutex
	var auth []string
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"a","ctx_len":2048},{"id":"b","metadata":{"tags":["x"]}}]}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, APIKey: "k", SocketDialAttempts: 1, HealthRetryDelay: time.Millisecond, Name: t.Name()})
	defer c.Close()

	models, err := c.GetModels(testCtx(t))
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, float64(2048), models[0].Settings["ctx_len"])
	assert.Equal(t, []any{"x"}, models[1].Metadata["tags"])
	mu.Lock()
	assert.Equal(t, []string{"Bearer k"}, auth)
	mu.Unlock()
}

func TestClient_HungEngineDoesNotWedgeQueue(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// accept the connection, never answer
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"a"}]}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	defer close(release)

	c := New(Config{
		BaseURL:              ts.URL,
		SocketDialAttempts:   1,
		HealthRetries:        1,
		HealthRetryDelay:     time.Millisecond,
		HealthAttemptTimeout: 50 * time.Millisecond,
		Name:                 t.Name(),
	})
	defer c.Close()

	start := time.Now()
	_, err := c.Health().Wait(testCtx(t))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, c.Ready())

	models, err := c.GetModels(testCtx(t))
	require.NoError(t, err)
	require.Len(t, models, 1)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{BaseURL: "http://e:1"}.withDefaults()
	assert.Equal(t, defaultHealthRetries, cfg.HealthRetries, "zero retries means the default")
	assert.Equal(t, defaultHealthAttemptTimeout, cfg.HealthAttemptTimeout)
	assert.Equal(t, defaultRequestTimeout, cfg.RequestTimeout)

	cfg = Config{BaseURL: "http://e:1", HealthRetries: -1, RequestTimeout: -1}.withDefaults()
	assert.Equal(t, 0, cfg.HealthRetries)
	assert.Equal(t, time.Duration(0), cfg.RequestTimeout)
}
