package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxErrorBody bounds how much of a non-2xx response body is kept.
const maxErrorBody = 64 << 10

// Requester issues one request against the engine and returns the raw body.
// body is JSON-encoded when non-nil.
type Requester interface {
	Do(ctx context.Context, method, path string, body any) ([]byte, error)
}

// StatusError reports a non-2xx response from the engine.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
	Body   []byte
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	if msg == "" {
		return fmt.Sprintf("engine %s %s: %s", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("engine %s %s: %s: %s", e.Method, e.Path, e.Status, msg)
}

// StatusCode lets HTTP layers map the engine's status back to callers.
func (e *StatusError) StatusCode() int { return e.Code }

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	BaseURL string
	// APIKey is passed through as a bearer token when non-empty.
	APIKey         string
	ConnectTimeout time.Duration
	// RequestTimeout bounds each request via context when > 0.
	RequestTimeout time.Duration
	// Client overrides the default http.Client (tests).
	Client *http.Client
}

// HTTP is the engine's HTTP request function.
type HTTP struct {
	baseURL    string
	apiKey     string
	reqTimeout time.Duration
	httpClient *http.Client
}

// NewHTTP constructs an HTTP transport.
func NewHTTP(opts HTTPOptions) *HTTP {
	cli := opts.Client
	if cli == nil {
		connectTimeout := opts.ConnectTimeout
		if connectTimeout <= 0 {
			connectTimeout = 5 * time.Second
		}
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		// Timeout=0: deadlines come from the request context.
		cli = &http.Client{Transport: tr, Timeout: 0}
	}
	return &HTTP{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		reqTimeout: opts.RequestTimeout,
		httpClient: cli,
	}
}

// Do implements Requester.
func (h *HTTP) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if h.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.reqTimeout)
		defer cancel()
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Status: resp.Status, Body: b}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read %s %s body: %w", method, path, err)
	}
	return b, nil
}
