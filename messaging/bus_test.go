package messaging

import (
	"context"
	"errors"
	"testing"
)

type fakeTransport struct {
	published    []IMessage
	batches      [][]IMessage
	subscribed   map[string]int
	unsubscribed map[string]int
	failWith     error
	order        *[]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subscribed:   make(map[string]int),
		unsubscribed: make(map[string]int),
	}
}

func (f *fakeTransport) Publish(ctx context.Context, message IMessage) error {
	if f.order != nil {
		*f.order = append(*f.order, "transport")
	}
	f.published = append(f.published, message)
	return f.failWith
}

func (f *fakeTransport) PublishAll(ctx context.Context, messages []IMessage) error {
	f.batches = append(f.batches, messages)
	return f.failWith
}

func (f *fakeTransport) Subscribe(messageType string, handler IMessageHandler) error {
	f.subscribed[messageType]++
	return nil
}

func (f *fakeTransport) Unsubscribe(messageType string, handler IMessageHandler) error {
	f.unsubscribed[messageType]++
	return nil
}

func (f *fakeTransport) Start(ctx context.Context) error { return nil }
func (f *fakeTransport) Close() error                    { return nil }
func (f *fakeTransport) Stats() TransportStats           { return TransportStats{} }

type orderedMiddleware struct {
	name  string
	order *[]string
	err   error
}

func (mw orderedMiddleware) Handle(ctx context.Context, message IMessage, next HandlerFunc) error {
	*mw.order = append(*mw.order, mw.name)
	if mw.err != nil {
		return mw.err
	}
	return next(ctx, message)
}

func (mw orderedMiddleware) Name() string { return mw.name }

type countingHandler struct{ n *int }

func (h countingHandler) Handle(ctx context.Context, message IMessage) error {
	*h.n++
	return nil
}
func (h countingHandler) Type() string { return "countingHandler" }

func TestMessageBus_MiddlewareOrder(t *testing.T) {
	order := make([]string, 0, 3)
	transport := newFakeTransport()
	transport.order = &order

	bus := NewMessageBus(transport)
	bus.Use(orderedMiddleware{name: "first", order: &order})
	bus.Use(orderedMiddleware{name: "second", order: &order})

	msg := NewMessage("m1", "stage.changed", nil)
	if err := bus.Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	want := []string{"first", "second", "transport"}
	if len(order) != len(want) {
		t.Fatalf("unexpected call order: got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected call order at %d: got %s want %s", i, order[i], want[i])
		}
	}
	if len(transport.published) != 1 || transport.published[0] != msg {
		t.Fatalf("expected exactly one published message")
	}
}

func TestMessageBus_MiddlewareErrorStopsPublish(t *testing.T) {
	order := make([]string, 0, 1)
	transport := newFakeTransport()

	mwErr := errors.New("rejected")
	bus := NewMessageBus(transport)
	bus.Use(orderedMiddleware{name: "gate", order: &order, err: mwErr})

	err := bus.Publish(context.Background(), NewMessage("m1", "stage.changed", nil))
	if !errors.Is(err, mwErr) {
		t.Fatalf("expected middleware error, got %v", err)
	}
	if len(transport.published) != 0 {
		t.Fatalf("message must not reach transport after middleware failure")
	}
}

func TestMessageBus_PublishAllBatchesAfterMiddleware(t *testing.T) {
	order := make([]string, 0, 2)
	transport := newFakeTransport()

	bus := NewMessageBus(transport)
	bus.Use(orderedMiddleware{name: "pass", order: &order})

	messages := []IMessage{
		NewMessage("m1", "stage.changed", nil),
		NewMessage("m2", "child.created", nil),
	}
	if err := bus.PublishAll(context.Background(), messages); err != nil {
		t.Fatalf("publish all failed: %v", err)
	}

	if len(order) != 2 {
		t.Fatalf("middleware should run once per message, got %d calls", len(order))
	}
	if len(transport.batches) != 1 || len(transport.batches[0]) != 2 {
		t.Fatalf("expected a single batch of 2 messages, got %v", transport.batches)
	}
	if len(transport.published) != 0 {
		t.Fatalf("batch publish must not use single-message path")
	}
}

func TestMessageBus_PublishAllEmpty(t *testing.T) {
	transport := newFakeTransport()
	bus := NewMessageBus(transport)

	if err := bus.PublishAll(context.Background(), nil); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
	if len(transport.batches) != 0 {
		t.Fatalf("empty batch must not reach transport")
	}
}

func TestMessageBus_SubscribeDelegatesToTransport(t *testing.T) {
	transport := newFakeTransport()
	bus := NewMessageBus(transport)

	var n int
	handler := countingHandler{n: &n}
	ctx := context.Background()

	if err := bus.Subscribe(ctx, "stage.changed", handler); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := bus.Unsubscribe(ctx, "stage.changed", handler); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}

	if transport.subscribed["stage.changed"] != 1 {
		t.Fatalf("subscribe not delegated")
	}
	if transport.unsubscribed["stage.changed"] != 1 {
		t.Fatalf("unsubscribe not delegated")
	}
}
