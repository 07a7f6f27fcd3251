package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelbridge/internal/transport"
	"modelbridge/pkg/types"
)

// State is the lifecycle state of the bridge's socket.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultListChangedDelay = 500 * time.Millisecond
	defaultDialAttempts     = 20
	defaultDialRetryDelay   = 500 * time.Millisecond
)

// Config encapsulates the bridge's collaborators and tunables.
type Config struct {
	// SocketURL is the engine's socket base; the bridge connects to SocketURL + "/events".
	SocketURL string
	Dialer    transport.Dialer
	Clock     Clock
	// ListChangedDelay separates a download success event from the deferred
	// models.updated event.
	ListChangedDelay time.Duration
	// DialAttempts bounds connection attempts while connecting. Once open,
	// a dropped socket is not redialed.
	DialAttempts   int
	DialRetryDelay time.Duration
	Logger         *zerolog.Logger
}

// Bridge turns the engine's push frames into typed events for subscribers.
type Bridge struct {
	url            string
	dialer         transport.Dialer
	clock          Clock
	delay          time.Duration
	dialAttempts   int
	dialRetryDelay time.Duration
	log            zerolog.Logger

	mu      sync.Mutex
	state   State
	conn    transport.Conn
	subs    map[uint64]EventPublisher
	timers  map[uint64]Timer
	nextID  uint64
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge constructs a bridge in the connecting state. Call Start to dial.
func NewBridge(cfg Config) *Bridge {
	b := &Bridge{
		url:            strings.TrimRight(cfg.SocketURL, "/") + "/events",
		dialer:         cfg.Dialer,
		clock:          cfg.Clock,
		delay:          cfg.ListChangedDelay,
		dialAttempts:   cfg.DialAttempts,
		dialRetryDelay: cfg.DialRetryDelay,
		state:          StateConnecting,
		subs:           make(map[uint64]EventPublisher),
		timers:         make(map[uint64]Timer),
		done:           make(chan struct{}),
	}
	if b.dialer == nil {
		b.dialer = transport.WebsocketDialer{}
	}
	if b.clock == nil {
		b.clock = RealClock{}
	}
	if b.delay <= 0 {
		b.delay = defaultListChangedDelay
	}
	if b.dialAttempts <= 0 {
		b.dialAttempts = defaultDialAttempts
	}
	if b.dialRetryDelay <= 0 {
		b.dialRetryDelay = defaultDialRetryDelay
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	b.log = log.With().Str("component", "events").Logger()
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

// URL returns the socket endpoint the bridge dials.
func (b *Bridge) URL() string { return b.url }

// State reports the current socket state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Done is closed when the reader goroutine has exited.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Start dials the socket and begins reading frames in the background.
// It is a no-op after the first call or after Close.
func (b *Bridge) Start() {
	b.mu.Lock()
	if b.started || b.closed {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()
	go b.run()
}

// Subscribe registers h for every subsequent event and returns its
// unsubscribe func.
func (b *Bridge) Subscribe(h Handler) func() {
	return b.AddPublisher(handlerPublisher(h))
}

// SubscribeChan returns a channel receiving events. Events are dropped when the
// channel is full. The cancel func unsubscribes; the channel is never closed.
func (b *Bridge) SubscribeChan(buf int) (<-chan types.Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan types.Event, buf)
	cancel := b.AddPublisher(chanPublisher{ch: ch, dropped: subscriberDropsTotal.Inc})
	return ch, cancel
}

// AddPublisher registers an EventPublisher sink.
func (b *Bridge) AddPublisher(p EventPublisher) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = p
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Close stops pending deferred events, closes the socket and waits for the
// reader goroutine.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.state = StateClosed
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	conn := b.conn
	started := b.started
	b.mu.Unlock()

	b.cancel()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if started {
		<-b.done
	} else {
		close(b.done)
	}
	return err
}

func (b *Bridge) run() {
	defer close(b.done)
	conn, err := b.dial()
	if err != nil {
		if b.ctx.Err() == nil {
			b.log.Warn().Err(err).Str("url", b.url).Msg("event socket unavailable")
		}
		b.setState(StateClosed)
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.conn = conn
	b.state = StateOpen
	b.mu.Unlock()
	b.log.Info().Str("url", b.url).Msg("event socket open")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if b.ctx.Err() == nil {
				b.log.Warn().Err(err).Msg("event socket closed")
			}
			b.setState(StateClosed)
			return
		}
		b.handle(data)
	}
}

func (b *Bridge) dial() (transport.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= b.dialAttempts; attempt++ {
		conn, err := b.dialer.Dial(b.ctx, b.url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if b.ctx.Err() != nil {
			return nil, b.ctx.Err()
		}
		b.log.Debug().Err(err).Int("attempt", attempt).Msg("event socket dial failed")
		if attempt == b.dialAttempts {
			break
		}
		t := time.NewTimer(b.dialRetryDelay)
		select {
		case <-b.ctx.Done():
			t.Stop()
			return nil, b.ctx.Err()
		case <-t.C:
		}
	}
	return nil, lastErr
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// handle decodes one push frame and republishes it.
func (b *Bridge) handle(data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		framesDroppedTotal.WithLabelValues("decode").Inc()
		b.log.Warn().Err(err).Msg("dropping push frame")
		return
	}
	typ, ok := f.EventType()
	if !ok {
		framesDroppedTotal.WithLabelValues("unknown_type").Inc()
		b.log.Warn().Str("type", f.Type).Msg("dropping push frame of unknown type")
		return
	}
	framesTotal.WithLabelValues(f.Type).Inc()
	size, percent := Aggregate(f.Task.Items)
	b.publish(types.Event{
		Type:    typ,
		ModelID: f.Task.ID,
		Percent: percent,
		Size:    size,
		Time:    b.clock.Now(),
	})
	if typ == types.EventDownloadSuccess {
		b.scheduleModelsUpdated()
	}
}

// scheduleModelsUpdated emits models.updated after the configured delay so
// the engine can settle its own state before dependents re-query it.
func (b *Bridge) scheduleModelsUpdated() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	id := b.nextID
	b.nextID++
	b.timers[id] = b.clock.AfterFunc(b.delay, func() {
		b.mu.Lock()
		_, live := b.timers[id]
		delete(b.timers, id)
		closed := b.closed
		b.mu.Unlock()
		if !live || closed {
			return
		}
		b.publish(types.Event{Type: types.EventModelsUpdated, Time: b.clock.Now()})
	})
}

func (b *Bridge) publish(e types.Event) {
	b.mu.Lock()
	subs := make([]EventPublisher, 0, len(b.subs))
	for _, p := range b.subs {
		subs = append(subs, p)
	}
	b.mu.Unlock()
	for _, p := range subs {
		b.deliver(p, e)
	}
}

func (b *Bridge) deliver(p EventPublisher, e types.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("event", string(e.Type)).Msg("subscriber panicked")
		}
	}()
	p.Publish(e)
}

type handlerPublisher Handler

func (h handlerPublisher) Publish(e types.Event) { h(e) }
