package consumer

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/airliftlabs/airlift/internal/observe"
	"github.com/airliftlabs/airlift/internal/pipeline"
	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ pipeline.Consumer = (*LiveStream)(nil)
	_ http.Handler      = (*LiveStream)(nil)
)

// subscriberChanCap bounds each websocket subscriber's payload queue. Slow
// clients lose frames instead of backpressuring the drain loop.
const subscriberChanCap = 16

// LiveStreamOption configures a [LiveStream] consumer.
type LiveStreamOption func(*LiveStream)

// WithLiveLogger sets the consumer's logger.
func WithLiveLogger(log *slog.Logger) LiveStreamOption {
	return func(c *LiveStream) {
		c.log = log
	}
}

// WithLiveMetrics sets the metrics instance subscriber counts are recorded
// to.
func WithLiveMetrics(m *observe.Metrics) LiveStreamOption {
	return func(c *LiveStream) {
		c.metrics = m
	}
}

// LiveStream fans a buffer out to websocket clients as binary little-endian
// PCM messages, one message per frame. It doubles as the http.Handler for
// the live endpoint: each accepted connection becomes a subscriber with its
// own bounded queue, so one slow client cannot stall the rest.
type LiveStream struct {
	name    string
	log     *slog.Logger
	metrics *observe.Metrics

	lifecycle
	buf *ring.Buffer

	subMu sync.Mutex
	subs  map[string]chan []byte

	frames atomic.Uint64
	bytes  atomic.Uint64
	errs   atomic.Uint64
}

// NewLiveStream creates a live streaming consumer named name.
func NewLiveStream(name string, opts ...LiveStreamOption) *LiveStream {
	c := &LiveStream{
		name: name,
		log:  slog.Default(),
		subs: make(map[string]chan []byte),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Name returns the consumer's identity.
func (c *LiveStream) Name() string {
	return c.name
}

// AttachInput sets the buffer frames are drained from. Attach before Start.
func (c *LiveStream) AttachInput(buf *ring.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = buf
}

// Start launches the fan-out loop. No-op success when already running.
func (c *LiveStream) Start(ctx context.Context) error {
	if c.start(ctx, c.run) {
		c.log.Info("live stream consumer started", slog.String("consumer", c.name))
	}
	return nil
}

// Stop terminates the loop, blocks until it has exited, and disconnects all
// subscribers.
func (c *LiveStream) Stop() error {
	if c.stop() {
		c.subMu.Lock()
		for id, ch := range c.subs {
			delete(c.subs, id)
			close(ch)
		}
		c.subMu.Unlock()
		c.log.Info("live stream consumer stopped", slog.String("consumer", c.name))
	}
	return nil
}

// Status returns a snapshot of the consumer. Connected means at least one
// subscriber is attached.
func (c *LiveStream) Status() pipeline.ConsumerStatus {
	c.subMu.Lock()
	connected := len(c.subs) > 0
	c.subMu.Unlock()

	return pipeline.ConsumerStatus{
		Name:            c.name,
		Running:         c.isRunning(),
		Connected:       connected,
		FramesProcessed: c.frames.Load(),
		BytesWritten:    c.bytes.Load(),
		Errors:          c.errs.Load(),
	}
}

// Subscribers returns the current subscriber count.
func (c *LiveStream) Subscribers() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs)
}

// ServeHTTP upgrades the request to a websocket and streams PCM payloads
// until the client disconnects or the consumer stops.
func (c *LiveStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	attrs := metric.WithAttributes(observe.Attr("consumer", c.name))

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		c.errs.Add(1)
		c.metrics.ConsumerErrors.Add(r.Context(), 1, attrs)
		c.log.Warn("websocket accept failed",
			slog.String("consumer", c.name),
			slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	// Write-only connection: CloseRead pumps control frames and cancels the
	// context when the client goes away.
	ctx := conn.CloseRead(r.Context())

	id, ch := c.subscribe(ctx)
	defer c.unsubscribe(context.Background(), id)

	c.log.Info("live subscriber connected",
		slog.String("consumer", c.name),
		slog.String("subscriber", id))

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream stopped")
				return
			}
			if err := conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
				c.errs.Add(1)
				c.metrics.ConsumerErrors.Add(context.Background(), 1, attrs)
				return
			}
		}
	}
}

// subscribe registers a new subscriber queue and returns its id.
func (c *LiveStream) subscribe(ctx context.Context) (string, chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, subscriberChanCap)

	c.subMu.Lock()
	c.subs[id] = ch
	c.subMu.Unlock()

	c.metrics.LiveSubscribers.Add(ctx, 1)
	return id, ch
}

// unsubscribe removes a subscriber and drains its queue so the fan-out loop
// never blocks on it.
func (c *LiveStream) unsubscribe(ctx context.Context, id string) {
	c.subMu.Lock()
	ch, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
		close(ch)
	}
	c.subMu.Unlock()

	if ok {
		c.metrics.LiveSubscribers.Add(ctx, -1)
		go audio.Drain(ch)
	}
}

func (c *LiveStream) run(ctx context.Context) {
	ticker := time.NewTicker(drainTick)
	defer ticker.Stop()

	attrs := metric.WithAttributes(observe.Attr("consumer", c.name))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			frame, ok := c.buf.Pop()
			if !ok {
				break
			}
			payload := audio.Int16ToBytes(frame.Samples)

			c.subMu.Lock()
			for _, ch := range c.subs {
				select {
				case ch <- payload:
				default: // slow subscriber, frame skipped
				}
			}
			c.subMu.Unlock()

			c.frames.Add(1)
			c.bytes.Add(uint64(len(payload)))
			c.metrics.BytesWritten.Add(ctx, int64(len(payload)), attrs)
		}
	}
}
