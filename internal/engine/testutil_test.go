package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"modelbridge/internal/transport"
)

// recordedCall is one request seen by fakeRequester.
type recordedCall struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeRequester records calls and tracks how many run at once.
type fakeRequester struct {
	mu          sync.Mutex
	calls       []recordedCall
	inflight    int
	maxInflight int
	handle      func(method, path string) ([]byte, error)
}

func (f *fakeRequester) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var decoded map[string]any
	if body != nil {
		b, _ := json.Marshal(body)
		_ = json.Unmarshal(b, &decoded)
	}
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: method, Path: path, Body: decoded})
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	handle := f.handle
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()
	if handle == nil {
		return []byte(`{}`), nil
	}
	return handle(method, path)
}

func (f *fakeRequester) Calls() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeRequester) MaxInflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

// offlineDialer never connects; the bridge gives up after one attempt.
type offlineDialer struct{}

func (offlineDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	return nil, errors.New("offline")
}

func newTestClient(t *testing.T, fr *fakeRequester) *Client {
	t.Helper()
	c := New(Config{
		BaseURL:            "http://engine.test",
		Requester:          fr,
		Dialer:             offlineDialer{},
		SocketDialAttempts: 1,
		HealthRetries:      2,
		HealthRetryDelay:   time.Millisecond,
		Name:               t.Name(),
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
