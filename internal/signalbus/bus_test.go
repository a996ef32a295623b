package signalbus_test

import (
	"testing"

	"easel/internal/signalbus"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := signalbus.New()
	var first, second []any
	bus.Subscribe(signalbus.ChannelAPIError, func(payload any) { first = append(first, payload) })
	bus.Subscribe(signalbus.ChannelAPIError, func(payload any) { second = append(second, payload) })

	payload := &signalbus.APIError{Title: "Server Error", Message: "boom"}
	bus.Publish(signalbus.ChannelAPIError, payload)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected both subscribers invoked once, got %d and %d", len(first), len(second))
	}
	if first[0] != payload || second[0] != payload {
		t.Fatal("expected payload delivered unchanged")
	}
}

func TestPublishIsSynchronous(t *testing.T) {
	bus := signalbus.New()
	delivered := false
	bus.Subscribe(signalbus.ChannelUnauthorized, func(any) { delivered = true })

	bus.Publish(signalbus.ChannelUnauthorized, nil)
	if !delivered {
		t.Fatal("expected delivery before Publish returned")
	}
}

func TestUnsubscribeRemovesOnlyThatCallback(t *testing.T) {
	bus := signalbus.New()
	var kept, removed int
	sub := bus.Subscribe(signalbus.ChannelAPIError, func(any) { removed++ })
	bus.Subscribe(signalbus.ChannelAPIError, func(any) { kept++ })

	bus.Unsubscribe(sub)
	bus.Publish(signalbus.ChannelAPIError, &signalbus.APIError{})

	if removed != 0 {
		t.Fatalf("unsubscribed callback invoked %d times", removed)
	}
	if kept != 1 {
		t.Fatalf("remaining callback invoked %d times, want 1", kept)
	}
}

func TestUnsubscribeTwiceIsHarmless(t *testing.T) {
	bus := signalbus.New()
	sub := bus.Subscribe(signalbus.ChannelAPIError, func(any) {})
	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	bus.Publish(signalbus.ChannelAPIError, nil)
}

func TestChannelsAreIndependent(t *testing.T) {
	bus := signalbus.New()
	var apiErrors, unauthorized int
	bus.Subscribe(signalbus.ChannelAPIError, func(any) { apiErrors++ })
	bus.Subscribe(signalbus.ChannelUnauthorized, func(any) { unauthorized++ })

	bus.Publish(signalbus.ChannelUnauthorized, nil)

	if apiErrors != 0 {
		t.Fatalf("api-error subscriber saw %d events from another channel", apiErrors)
	}
	if unauthorized != 1 {
		t.Fatalf("unauthorized subscriber invoked %d times, want 1", unauthorized)
	}
}
