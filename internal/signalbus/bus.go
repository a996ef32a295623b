package signalbus

import "sync"

// Channel names a signal stream. Publishers and subscribers agree only on the
// channel name, never on each other's identity.
type Channel string

const (
	// ChannelAPIError carries advisory failures (*APIError payload).
	ChannelAPIError Channel = "api-error"
	// ChannelUnauthorized announces session loss. No payload.
	ChannelUnauthorized Channel = "unauthorized"
)

// APIError is the payload published on ChannelAPIError.
type APIError struct {
	Title   string
	Message string
}

// Subscription identifies a registered callback so it can be removed later.
// Go functions are not comparable, so the token stands in for callback
// identity.
type Subscription struct {
	channel Channel
	id      uint64
}

type subscriber struct {
	id uint64
	fn func(payload any)
}

// Bus is a minimal named-channel publish/subscribe registry. Publishing is
// synchronous and fans out to the subscribers registered at publish time.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Channel][]subscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Channel][]subscriber)}
}

// Subscribe registers fn on the named channel and returns the token needed to
// unsubscribe. A nil fn returns a token that matches nothing.
func (b *Bus) Subscribe(channel Channel, fn func(payload any)) *Subscription {
	if b == nil || fn == nil {
		return &Subscription{channel: channel}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[channel] = append(b.subs[channel], subscriber{id: b.nextID, fn: fn})
	return &Subscription{channel: channel, id: b.nextID}
}

// Unsubscribe removes the callback identified by sub. Unknown or already
// removed subscriptions are ignored.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if b == nil || sub == nil || sub.id == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.subs[sub.channel]
	for i, entry := range entries {
		if entry.id == sub.id {
			b.subs[sub.channel] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every subscriber currently registered for the
// channel, in registration order, on the caller's goroutine. No subscriber
// may assume exclusive delivery.
func (b *Bus) Publish(channel Channel, payload any) {
	if b == nil {
		return
	}
	b.mu.Lock()
	entries := append([]subscriber(nil), b.subs[channel]...)
	b.mu.Unlock()
	for _, entry := range entries {
		entry.fn(payload)
	}
}
