package worker

// EventSubscriber attaches its handlers to the event dispatcher.
type EventSubscriber interface {
	RegisterHandlers()
}

// StartEventSubscribers registers every subscriber and returns how many were started.
func StartEventSubscribers(subscribers ...EventSubscriber) int {
	started := 0
	for _, s := range subscribers {
		if s == nil {
			continue
		}
		s.RegisterHandlers()
		started++
	}
	return started
}
