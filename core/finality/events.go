package finality

// Subscribe returns channel of finality events and function to unsubscribe.
// Delivery is best effort: an event is dropped for a subscriber whose buffer is full
func (t *Tracker) Subscribe(bufSize int) (<-chan Event, func()) {
	if bufSize <= 0 {
		bufSize = 1
	}
	ch := make(chan Event, bufSize)

	t.subscribersMutex.Lock()
	id := t.nextSubscriberID
	t.nextSubscriberID++
	t.subscribers[id] = ch
	t.subscribersMutex.Unlock()

	return ch, func() {
		t.subscribersMutex.Lock()
		defer t.subscribersMutex.Unlock()

		if _, found := t.subscribers[id]; found {
			delete(t.subscribers, id)
			close(ch)
		}
	}
}

func (t *Tracker) NumSubscribers() int {
	t.subscribersMutex.RLock()
	defer t.subscribersMutex.RUnlock()

	return len(t.subscribers)
}

func (t *Tracker) broadcast(ev Event) {
	t.subscribersMutex.RLock()
	defer t.subscribersMutex.RUnlock()

	for id, ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
			t.metrics.droppedEvents.Inc()
			t.Tracef(TraceTag, "event dropped for subscriber #%d: %s", id, ev.String)
		}
	}
}
