package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Bus is a synchronous, ordered publish/subscribe channel. Publish delivers an
// event to every handler registered for its kind and for KindAll, in
// registration order, before returning. Deliveries are serialized so handlers
// never run concurrently with each other.
type Bus struct {
	mu       sync.RWMutex
	handlers []subscription
	dispatch sync.Mutex
	now      func() time.Time
	logger   *zap.Logger
}

type subscription struct {
	kind    Kind
	handler Handler
}

// NewBus returns an empty bus. A nil logger disables diagnostics.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Subscribe registers handler for kind. Use KindAll to receive every event.
func (b *Bus) Subscribe(kind Kind, handler Handler) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, subscription{kind: kind, handler: handler})
	b.mu.Unlock()
}

// Publish validates evt, stamps its timestamp and delivers it.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		b.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	if evt.TS.IsZero() {
		evt.TS = b.now()
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.handlers))
	for _, sub := range b.handlers {
		if sub.kind == evt.Kind || sub.kind == KindAll {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.RUnlock()

	b.dispatch.Lock()
	defer b.dispatch.Unlock()
	for _, h := range targets {
		h(evt)
	}
}

// Discard is a Sink that drops every event.
type Discard struct{}

// Publish implements Sink.
func (Discard) Publish(Event) {}

// Subscribe implements Sink.
func (Discard) Subscribe(Kind, Handler) {}
