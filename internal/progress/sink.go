package progress

// Handler receives published events. Handlers run on the publishing goroutine
// and must not publish to the same bus.
type Handler func(Event)

// Sink is the event channel handed to pipeline components.
type Sink interface {
	Publish(evt Event)
	Subscribe(kind Kind, handler Handler)
}

// Emitter is the publish-only view used by components that never subscribe.
type Emitter interface {
	Publish(evt Event)
}
