package core

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// eventHandler is notified of one event's SR when a matching event fires.
type eventHandler func(event StorageReference)

// eventRegistry is the SR-keyed (nullable) event subscription registry from
// §4.H: a concurrent map of creator-SR to its ordered handler list, plus a
// separate wildcard list for subscribers with no creator filter.
type eventRegistry struct {
	mu        sync.Mutex
	byCreator map[StorageReference][]eventHandler
	wildcard  []eventHandler
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{byCreator: make(map[StorageReference][]eventHandler)}
}

// Subscribe registers handler for events raised by creator; a nil creator
// subscribes to every event regardless of its creator.
func (r *eventRegistry) Subscribe(creator *StorageReference, handler eventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if creator == nil {
		r.wildcard = append(r.wildcard, handler)
		return
	}
	r.byCreator[*creator] = append(r.byCreator[*creator], handler)
}

// Publish delivers event, raised by creator, synchronously and
// at-most-once to every matching subscriber. All wildcard subscribers run
// first, in the order they subscribed, then creator's subscribers, in the
// order they subscribed; the relative order of a wildcard and a
// creator-specific subscription is not kept. Any panic or error from a
// handler is logged, never propagated — §4.H.
func (r *eventRegistry) Publish(creator StorageReference, event StorageReference) {
	r.mu.Lock()
	handlers := append(append([]eventHandler{}, r.wildcard...), r.byCreator[creator]...)
	r.mu.Unlock()

	for _, h := range handlers {
		invokeEventHandler(h, event)
	}
}

func invokeEventHandler(h eventHandler, event StorageReference) {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.WithField("event", event).Warnf("node: event subscriber panicked: %v", rec)
		}
	}()
	h(event)
}

// Subscribe registers a handler on the node's event registry.
func (n *Node) Subscribe(creator *StorageReference, handler func(event StorageReference)) {
	n.events.Subscribe(creator, handler)
}

// publishResponseEvents extracts the (creator, events) pair from a
// delivered response and notifies subscribers in order. Responses without
// an event-carrying shape (jar-store, initial, failed) are a no-op.
func (n *Node) publishResponseEvents(resp Response, _ WithUpdates) {
	creator, events, ok := eventsOf(resp)
	if !ok {
		return
	}
	for _, e := range events {
		n.events.Publish(creator, e)
	}
}

// eventsOf reports a creator and the ordered event SRs for responses that
// can raise events, per §4.G ("constructor and method responses carry a
// possibly-empty ordered sequence of event SRs"). The creator is the new
// object for a successful constructor call and the zero StorageReference
// for every other variant, so creator-specific subscribers see only
// events of successful constructor calls.
func eventsOf(resp Response) (creator StorageReference, events []StorageReference, ok bool) {
	switch r := resp.(type) {
	case *ConstructorCallSuccessfulResponse:
		return r.NewObject, r.Events, true
	case *ConstructorCallExceptionResponse:
		return StorageReference{}, r.Events, true
	case *MethodCallSuccessfulResponse:
		return StorageReference{}, r.Events, true
	case *VoidMethodCallSuccessfulResponse:
		return StorageReference{}, r.Events, true
	case *MethodCallExceptionResponse:
		return StorageReference{}, r.Events, true
	default:
		return StorageReference{}, nil, false
	}
}
