// Package authstate fans provider auth-state changes out to subscribers.
//
// Every subscriber first receives the current state and then each later change in
// publish order. Publishing never blocks on a slow subscriber: each one owns an
// unbounded queue drained by its own pump goroutine.
package authstate

import (
	"sync"

	domainauth "github.com/target/tourbook/internal/domain/auth"
)

// Broadcaster holds the current identity of one provider client and notifies subscribers.
type Broadcaster struct {
	mu      sync.Mutex
	current *domainauth.Identity
	subs    map[int]*subscriber
	nextID  int
	closed  bool
}

// New returns a broadcaster with no signed-in identity.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Current returns a copy of the current identity, or nil.
func (b *Broadcaster) Current() *domainauth.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current.Clone()
}

// Publish records id as the current identity and queues the change for every subscriber.
// A nil id means signed out.
func (b *Broadcaster) Publish(id *domainauth.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.current = id.Clone()
	for _, s := range b.subs {
		s.push(domainauth.AuthEvent{Identity: id.Clone()})
	}
}

// Subscribe delivers the current state immediately, then every change in order.
// cancel stops delivery and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan domainauth.AuthEvent, func()) {
	s := newSubscriber()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stop()
		go s.run()
		return s.out, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	s.push(domainauth.AuthEvent{Identity: b.current.Clone()})
	b.mu.Unlock()

	go s.run()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		s.stop()
	}
	return s.out, cancel
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close cancels every subscription. Later publishes are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

type subscriber struct {
	mu    sync.Mutex
	queue []domainauth.AuthEvent
	wake  chan struct{}
	out   chan domainauth.AuthEvent
	done  chan struct{}
	once  sync.Once
}

func newSubscriber() *subscriber {
	return &subscriber{
		wake: make(chan struct{}, 1),
		out:  make(chan domainauth.AuthEvent),
		done: make(chan struct{}),
	}
}

func (s *subscriber) push(ev domainauth.AuthEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
