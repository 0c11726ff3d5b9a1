package session

import (
	"go.uber.org/zap"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

// Subscribe registers a callback for an event kind and returns a
// detachment handle. Subscribers are notified in registration order;
// one subscriber panicking does not prevent the rest from running and
// never propagates to the emitter.
func (c *Coordinator) Subscribe(kind types.EventKind, cb func(types.AuthStatus)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[kind] = append(c.subs[kind], subscription{id: id, cb: cb})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.subs[kind]
		for i, sub := range list {
			if sub.id == id {
				c.subs[kind] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

// deliver pushes notifications into the bridge and subscriber channel.
// Called outside the coordinator's critical section but before the
// operation that produced the transition returns, so callers never
// observe a stale downstream state after an awaited call.
func (c *Coordinator) deliver(notes ...notification) {
	for _, note := range notes {
		if c.bridge != nil {
			c.bridge.SetAuthStatus(note.status)
		}
		if note.event != nil {
			c.emit(*note.event, note.status)
		}
	}
}

// emit invokes all callbacks registered for kind, in registration
// order, isolating each from the others' failures.
func (c *Coordinator) emit(kind types.EventKind, status types.AuthStatus) {
	c.mu.Lock()
	subs := make([]subscription, len(c.subs[kind]))
	copy(subs, c.subs[kind])
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordSessionEvent(string(kind))
	}

	for _, sub := range subs {
		c.invoke(kind, sub, status)
	}
}

func (c *Coordinator) invoke(kind types.EventKind, sub subscription, status types.AuthStatus) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session subscriber panicked",
				zap.String("event", string(kind)),
				zap.Any("panic", r),
			)
		}
	}()
	sub.cb(status)
}
