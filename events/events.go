package events

import "context"

type Event struct {
	Name   string      `json:"name"`
	Action string      `json:"action"`
	Data   interface{} `json:"data,omitempty"`
}

// Publisher is the sending side of a Stream
type Publisher interface {
	Publish(e Event)
}

type Stream struct {
	channel chan Event

	subcriptions chan *subscription
	unsubcribes  chan *subscription
	done         chan struct{}
}

type subscription struct {
	events chan Event
}

const subscriptionBuffer = 32

func NewStream() *Stream {
	return &Stream{
		channel:      make(chan Event, subscriptionBuffer),
		subcriptions: make(chan *subscription),
		unsubcribes:  make(chan *subscription),
		done:         make(chan struct{}),
	}
}

// Publish hands e to the dispatcher, events published after the dispatcher
// terminated are dropped
func (s *Stream) Publish(e Event) {
	select {
	case s.channel <- e:
	case <-s.done:
	}
}

// Listen calls f for every event until ctx is done
func (s *Stream) Listen(ctx context.Context, f func(e Event)) {
	subscription, ok := s.subscribe(ctx)
	if !ok {
		return
	}
	for {
		select {
		case e, open := <-subscription.events:
			if !open {
				return
			}
			f(e)
		case <-ctx.Done():
			select {
			case s.unsubcribes <- subscription:
			case <-s.done:
			}
			return
		}
	}
}

func (s *Stream) subscribe(ctx context.Context) (*subscription, bool) {
	sub := &subscription{
		events: make(chan Event, subscriptionBuffer),
	}
	select {
	case s.subcriptions <- sub:
		return sub, true
	case <-ctx.Done():
	case <-s.done:
	}
	return nil, false
}

// Dispatch forwards published events to all listeners until ctx is done.
// Listeners which do not keep up lose events.
func (s *Stream) Dispatch(ctx context.Context) {
	var subscribers []*subscription
	defer func() {
		close(s.done)
		for _, sub := range subscribers {
			close(sub.events)
		}
	}()
	for {
		select {
		case sub := <-s.subcriptions:
			// New subscribe
			subscribers = append(subscribers, sub)
		case sub := <-s.unsubcribes:
			// Removed subscriber
			idx := -1
			for i := range subscribers {
				if subscribers[i] == sub {
					idx = i
					break
				}
			}
			if idx != -1 {
				close(subscribers[idx].events)
				subscribers = append(subscribers[:idx], subscribers[idx+1:]...)
			}
		case e := <-s.channel:
			for _, s := range subscribers {
				select {
				case s.events <- e:
				default:
				}
			}
		case <-ctx.Done():
			// Terminate
			return
		}
	}
}
