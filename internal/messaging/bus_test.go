package messaging_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dealdojo/backend/internal/messaging"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := messaging.NewBus()
	defer bus.Close()

	first := bus.Subscribe("events")
	second := bus.Subscribe("events")

	if err := bus.Publish(t.Context(), "events", []byte("payload")); err != nil {
		t.Fatalf("Publish err: %v", err)
	}

	for i, ch := range []<-chan []byte{first, second} {
		select {
		case got := <-ch:
			if string(got) != "payload" {
				t.Fatalf("subscriber %d got %q", i, got)
			}
		default:
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestPublishUnknownTopicIsNoop(t *testing.T) {
	bus := messaging.NewBus()
	defer bus.Close()

	if err := bus.Publish(t.Context(), "nobody-listens", []byte("x")); err != nil {
		t.Fatalf("Publish to topic without subscribers should succeed: %v", err)
	}
}

func TestDuplicatePublishTolerated(t *testing.T) {
	bus := messaging.NewBus()
	defer bus.Close()

	ch := bus.Subscribe("events")
	for i := 0; i < 2; i++ {
		if err := bus.Publish(t.Context(), "events", []byte("same")); err != nil {
			t.Fatalf("Publish %d err: %v", i, err)
		}
	}
	if len(ch) != 2 {
		t.Fatalf("expected both deliveries buffered, got %d", len(ch))
	}
}

func TestPublishFullBufferFails(t *testing.T) {
	bus := messaging.NewBus()
	defer bus.Close()

	bus.Subscribe("events")
	var err error
	for i := 0; i < 32; i++ {
		if err = bus.Publish(t.Context(), "events", []byte(fmt.Sprintf("m%d", i))); err != nil {
			break
		}
	}
	if err == nil {
		t.Fatal("expected an error once the subscriber buffer filled")
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := messaging.NewBus()
	bus.Close()
	bus.Close() // idempotent

	if err := bus.Publish(t.Context(), "events", []byte("x")); !errors.Is(err, messaging.ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
}
