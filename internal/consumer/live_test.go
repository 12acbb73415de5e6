package consumer_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/airliftlabs/airlift/internal/consumer"
	"github.com/airliftlabs/airlift/internal/ring"
	"github.com/airliftlabs/airlift/pkg/audio"
)

func TestLiveStream_StreamsPCMToSubscriber(t *testing.T) {
	buf := ring.New(16)
	c := consumer.NewLiveStream("live")
	c.AttachInput(buf)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	srv := httptest.NewServer(c)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	waitUntil(t, func() bool { return c.Subscribers() == 1 })

	samples := []int16{100, -100, 200, -200}
	buf.Push(monoFrame(samples...))

	typ, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageBinary {
		t.Errorf("message type: got %v, want binary", typ)
	}

	want := audio.Int16ToBytes(samples)
	if len(payload) != len(want) {
		t.Fatalf("payload length: got %d, want %d", len(payload), len(want))
	}
	for i := range want {
		if payload[i] != want[i] {
			t.Errorf("payload byte %d: got %#x, want %#x", i, payload[i], want[i])
		}
	}
}

func TestLiveStream_SubscriberGoneIsRemoved(t *testing.T) {
	buf := ring.New(16)
	c := consumer.NewLiveStream("live")
	c.AttachInput(buf)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	srv := httptest.NewServer(c)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitUntil(t, func() bool { return c.Subscribers() == 1 })
	conn.Close(websocket.StatusNormalClosure, "")

	waitUntil(t, func() bool { return c.Subscribers() == 0 })
}

func TestLiveStream_StopDisconnectsSubscribers(t *testing.T) {
	buf := ring.New(16)
	c := consumer.NewLiveStream("live")
	c.AttachInput(buf)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	srv := httptest.NewServer(c)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	waitUntil(t, func() bool { return c.Subscribers() == 1 })

	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// The server closes the stream; the client read eventually fails.
	waitUntil(t, func() bool {
		_, _, err := conn.Read(ctx)
		return err != nil
	})
}

func TestLiveStream_NoSubscribersStillDrains(t *testing.T) {
	buf := ring.New(4)
	c := consumer.NewLiveStream("live")
	c.AttachInput(buf)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	for i := 0; i < 3; i++ {
		buf.Push(monoFrame(1, 2))
	}
	waitUntil(t, func() bool { return c.Status().FramesProcessed == 3 })

	if got := buf.Len(); got != 0 {
		t.Errorf("buffer depth: got %d, want 0 (drained without subscribers)", got)
	}
}
